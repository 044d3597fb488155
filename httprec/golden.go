// Package httprec records and replays HTTP traffic for deterministic
// integration tests. Both sides are http.RoundTripper wrappers installed
// by transport injection; recordings are persisted as golden-data JSON
// with secrets masked before anything touches disk.
package httprec

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Scenario is the golden-data document: descriptive metadata plus the
// ordered recordings of one traffic capture.
type Scenario struct {
	Metadata   map[string]any `json:"metadata"`
	Recordings []Call         `json:"recordings"`
}

// Call is one recorded request/response exchange.
type Call struct {
	Request   Request  `json:"request"`
	Response  Response `json:"response"`
	Timestamp string   `json:"timestamp"`
}

// Request is the captured request side. Body is null for bodiless
// requests, distinguishing them from requests with an empty body.
type Request struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
	Params  map[string]string `json:"params,omitempty"`
	Body    *string           `json:"body"`
}

// Response is the captured response side, body fully materialized.
type Response struct {
	StatusCode int               `json:"status_code"`
	Headers    map[string]string `json:"headers,omitempty"`
	Content    string            `json:"content"`
}

// legacyEntry is one element of the pre-golden bare-array format. Entries
// either wrap the exchange under a "call" key or inline it.
type legacyEntry struct {
	Call      *Call     `json:"call"`
	Request   *Request  `json:"request"`
	Response  *Response `json:"response"`
	Timestamp string    `json:"timestamp"`
}

// LoadScenario reads a scenario file in either the current
// {metadata, recordings} format or the legacy bare-array format.
func LoadScenario(path string) (Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Scenario{}, fmt.Errorf("read scenario: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes scenario JSON, accepting both supported formats.
func ParseScenario(data []byte) (Scenario, error) {
	trimmed := firstNonSpace(data)
	if trimmed == '[' {
		var entries []legacyEntry
		if err := json.Unmarshal(data, &entries); err != nil {
			return Scenario{}, fmt.Errorf("decode legacy scenario: %w", err)
		}
		s := Scenario{Metadata: map[string]any{}}
		for _, e := range entries {
			switch {
			case e.Call != nil:
				s.Recordings = append(s.Recordings, *e.Call)
			case e.Request != nil && e.Response != nil:
				s.Recordings = append(s.Recordings, Call{
					Request: *e.Request, Response: *e.Response, Timestamp: e.Timestamp,
				})
			}
		}
		return s, nil
	}

	var s Scenario
	if err := json.Unmarshal(data, &s); err != nil {
		return Scenario{}, fmt.Errorf("decode scenario: %w", err)
	}
	return s, nil
}

// SaveGoldenData writes {metadata, recordings} as indented JSON, creating
// parent directories. The recordings must already be masked; the recorder
// masks on capture.
func SaveGoldenData(path string, metadata map[string]any, recordings []Call) error {
	if metadata == nil {
		metadata = map[string]any{}
	}
	s := Scenario{Metadata: metadata, Recordings: recordings}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode golden data: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create golden dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write golden data: %w", err)
	}
	return nil
}

func firstNonSpace(data []byte) byte {
	for _, b := range data {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		}
		return b
	}
	return 0
}
