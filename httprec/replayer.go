package httprec

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"sync"

	gromozeka "github.com/NotA-Company/gromozeka-sub003"
)

// Replayer is a RoundTripper answering requests from a recorded scenario
// instead of the network. Matching tolerates masked secrets: a Masked run
// in the recording matches any non-separator characters at its position,
// so replay succeeds against requests carrying real credentials.
type Replayer struct {
	scenario Scenario

	mu   sync.Mutex
	used []bool
}

var _ http.RoundTripper = (*Replayer)(nil)

// NewReplayer creates a Replayer over a loaded scenario.
func NewReplayer(s Scenario) *Replayer {
	return &Replayer{scenario: s, used: make([]bool, len(s.Recordings))}
}

// RoundTrip serves the first recorded call matching the request, or
// gromozeka.ErrReplayMiss. Responses are byte-identical across
// invocations of the same recording.
func (r *Replayer) RoundTrip(req *http.Request) (*http.Response, error) {
	var body string
	if req.Body != nil && req.Body != http.NoBody {
		data, err := io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, err
		}
		req.Body = io.NopCloser(bytes.NewReader(data))
		body = string(data)
	}

	r.mu.Lock()
	idx := -1
	for i, c := range r.scenario.Recordings {
		if r.matches(c, req, body) {
			idx = i
			r.used[i] = true
			break
		}
	}
	r.mu.Unlock()

	if idx < 0 {
		return nil, fmt.Errorf("replay %s %s: %w", req.Method, req.URL, gromozeka.ErrReplayMiss)
	}

	rec := r.scenario.Recordings[idx].Response
	resp := &http.Response{
		StatusCode: rec.StatusCode,
		Status:     fmt.Sprintf("%d %s", rec.StatusCode, http.StatusText(rec.StatusCode)),
		Header:     make(http.Header, len(rec.Headers)),
		Body:       io.NopCloser(strings.NewReader(rec.Content)),
		Request:    req,
		Proto:      "HTTP/1.1",
		ProtoMajor: 1,
		ProtoMinor: 1,
	}
	for k, v := range rec.Headers {
		resp.Header.Set(k, v)
	}
	resp.ContentLength = int64(len(rec.Content))
	return resp, nil
}

func (r *Replayer) matches(c Call, req *http.Request, body string) bool {
	if c.Request.Method != req.Method {
		return false
	}
	if !maskedMatch(c.Request.URL, req.URL.String()) {
		return false
	}
	if len(c.Request.Params) > 0 {
		q := req.URL.Query()
		for k, want := range c.Request.Params {
			if !maskedMatch(want, q.Get(k)) {
				return false
			}
		}
	}
	if c.Request.Body != nil && !maskedMatch(*c.Request.Body, body) {
		return false
	}
	return true
}

// VerifyAllCallsUsed reports which recordings were never served, for
// coverage assertions in tests.
func (r *Replayer) VerifyAllCallsUsed() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var unused []string
	for i, u := range r.used {
		if !u {
			c := r.scenario.Recordings[i]
			unused = append(unused, fmt.Sprintf("%d: %s %s", i, c.Request.Method, c.Request.URL))
		}
	}
	if len(unused) > 0 {
		return fmt.Errorf("recordings never replayed: %s", strings.Join(unused, "; "))
	}
	return nil
}

// maskedMatch compares a recorded value against an actual one, treating
// every Masked run in the recording as the anchored pattern [^&]*.
func maskedMatch(recorded, actual string) bool {
	if !strings.Contains(recorded, Masked) {
		return recorded == actual
	}
	parts := strings.Split(recorded, Masked)
	quoted := make([]string, len(parts))
	for i, p := range parts {
		quoted[i] = regexp.QuoteMeta(p)
	}
	re, err := regexp.Compile("^" + strings.Join(quoted, "[^&]*") + "$")
	if err != nil {
		return false
	}
	return re.MatchString(actual)
}
