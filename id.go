package gromozeka

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// NewID returns a random 16-byte hex identifier.
func NewID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand never fails on supported platforms
		panic("gromozeka: rand.Read: " + err.Error())
	}
	return hex.EncodeToString(b)
}

// NowUnix returns the current Unix timestamp in seconds.
func NowUnix() int64 { return time.Now().Unix() }
