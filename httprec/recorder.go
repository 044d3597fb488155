package httprec

import (
	"bytes"
	"io"
	"net/http"
	"sync"
	"time"
)

// Recorder is a RoundTripper that forwards requests to an inner transport
// while buffering masked copies of every exchange. Install it on an
// http.Client (or a client's Transport field) for the capture window and
// restore the original transport afterwards.
type Recorder struct {
	inner  http.RoundTripper
	masker *Masker
	now    func() time.Time

	mu    sync.Mutex
	calls []Call
}

var _ http.RoundTripper = (*Recorder)(nil)

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithRecorderClock overrides the timestamp source, for tests.
func WithRecorderClock(now func() time.Time) RecorderOption {
	return func(r *Recorder) { r.now = now }
}

// NewRecorder wraps inner (nil means http.DefaultTransport). A nil masker
// records unmasked traffic; pass one whenever recordings may leave the
// process.
func NewRecorder(inner http.RoundTripper, masker *Masker, opts ...RecorderOption) *Recorder {
	if inner == nil {
		inner = http.DefaultTransport
	}
	if masker == nil {
		masker = NewMasker(nil)
	}
	r := &Recorder{inner: inner, masker: masker, now: time.Now}
	for _, o := range opts {
		o(r)
	}
	return r
}

// RoundTrip forwards the request and buffers the exchange. The response
// body is read to completion and re-materialized so callers see identical
// bytes; streaming responses are therefore fully buffered.
func (r *Recorder) RoundTrip(req *http.Request) (*http.Response, error) {
	var reqBody *string
	if req.Body != nil && req.Body != http.NoBody {
		data, err := io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, err
		}
		req.Body = io.NopCloser(bytes.NewReader(data))
		s := string(data)
		reqBody = &s
	}

	resp, err := r.inner.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	respData, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, err
	}
	resp.Body = io.NopCloser(bytes.NewReader(respData))

	call := Call{
		Request: Request{
			Method:  req.Method,
			URL:     req.URL.String(),
			Headers: flattenHeader(req.Header),
			Params:  flattenQuery(req),
			Body:    reqBody,
		},
		Response: Response{
			StatusCode: resp.StatusCode,
			Headers:    flattenHeader(resp.Header),
			Content:    string(respData),
		},
		Timestamp: r.now().UTC().Format(time.RFC3339),
	}
	r.masker.MaskCall(&call)

	r.mu.Lock()
	r.calls = append(r.calls, call)
	r.mu.Unlock()

	return resp, nil
}

// Recordings returns a copy of the masked exchanges captured so far.
func (r *Recorder) Recordings() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}

// Save writes the captured exchanges as golden data.
func (r *Recorder) Save(path string, metadata map[string]any) error {
	return SaveGoldenData(path, metadata, r.Recordings())
}

func flattenHeader(h http.Header) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, vs := range h {
		if len(vs) > 0 {
			out[k] = vs[0]
		}
	}
	return out
}

func flattenQuery(req *http.Request) map[string]string {
	q := req.URL.Query()
	if len(q) == 0 {
		return nil
	}
	out := make(map[string]string, len(q))
	for k, vs := range q {
		if len(vs) > 0 {
			out[k] = vs[0]
		}
	}
	return out
}
