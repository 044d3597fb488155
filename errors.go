package gromozeka

import (
	"errors"
	"fmt"
)

// ValidationError marks a malformed inbound message. The pipeline logs it
// and drops the message without a user-visible reply.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid message: missing %s", e.Field)
}

// ConfigError marks a required setting missing at startup. Fatal; the
// process refuses to start.
type ConfigError struct {
	Key     string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Key, e.Message)
}

// ErrHTTP carries an upstream HTTP failure status.
type ErrHTTP struct {
	Status int
	Body   string
}

func (e *ErrHTTP) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Body)
}

// ErrReplayMiss is returned by the HTTP replayer when no recorded call
// matches an outbound request. Tests treat it as an assertion failure.
var ErrReplayMiss = errors.New("no recorded call matches request")

// ErrNotFound marks a lookup that resolved nothing, e.g. a place name the
// geocoder does not know.
var ErrNotFound = errors.New("not found")
