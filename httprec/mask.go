package httprec

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Masked is the placeholder substituted for secret material.
const Masked = "***MASKED***"

// defaultKeyPatterns recognize secret-bearing key names in headers,
// query parameters, and JSON objects.
var defaultKeyPatterns = []string{
	`api[_-]?key`,
	`token`,
	`auth`,
	`password`,
	`secret`,
	`key`,
}

// Masker scrubs recordings before they are persisted or handed to
// callers: explicit secret substrings are replaced wherever they appear,
// and values under secret-looking keys are replaced wholesale.
type Masker struct {
	secrets []string
	keyRes  []*regexp.Regexp
}

// NewMasker creates a Masker for the given explicit secrets. Extra key
// patterns extend the default set.
func NewMasker(secrets []string, extraKeyPatterns ...string) *Masker {
	m := &Masker{}
	for _, s := range secrets {
		if s != "" {
			m.secrets = append(m.secrets, s)
		}
	}
	for _, p := range append(append([]string{}, defaultKeyPatterns...), extraKeyPatterns...) {
		m.keyRes = append(m.keyRes, regexp.MustCompile(`(?i)`+p))
	}
	return m
}

// MaskString replaces every explicit secret occurring in s.
func (m *Masker) MaskString(s string) string {
	for _, secret := range m.secrets {
		s = strings.ReplaceAll(s, secret, Masked)
	}
	return s
}

// secretKey reports whether a key name looks secret-bearing.
func (m *Masker) secretKey(key string) bool {
	for _, re := range m.keyRes {
		if re.MatchString(key) {
			return true
		}
	}
	return false
}

// MaskStringMap masks a flat map: secret-named keys lose their value
// entirely, other values lose embedded explicit secrets.
func (m *Masker) MaskStringMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		if m.secretKey(k) {
			out[k] = Masked
		} else {
			out[k] = m.MaskString(v)
		}
	}
	return out
}

// MaskValue recursively masks decoded JSON structures: maps, lists, and
// strings. Other scalar types pass through.
func (m *Masker) MaskValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if m.secretKey(k) {
				out[k] = Masked
			} else {
				out[k] = m.MaskValue(val)
			}
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = m.MaskValue(val)
		}
		return out
	case string:
		return m.MaskString(t)
	default:
		return v
	}
}

// MaskCall masks every field of a recorded exchange in place.
func (m *Masker) MaskCall(c *Call) {
	c.Request.URL = m.MaskString(c.Request.URL)
	c.Request.Headers = m.MaskStringMap(c.Request.Headers)
	c.Request.Params = m.MaskStringMap(c.Request.Params)
	if c.Request.Body != nil {
		masked := m.maskBody(*c.Request.Body)
		c.Request.Body = &masked
	}
	c.Response.Headers = m.MaskStringMap(c.Response.Headers)
	c.Response.Content = m.maskBody(c.Response.Content)
}

// maskBody masks a body string. JSON bodies are masked structurally so
// secret-named keys are caught; anything else gets substring masking.
func (m *Masker) maskBody(body string) string {
	masked, ok := m.maskJSON(body)
	if ok {
		return masked
	}
	return m.MaskString(body)
}

func (m *Masker) maskJSON(body string) (string, bool) {
	trimmed := strings.TrimSpace(body)
	if !strings.HasPrefix(trimmed, "{") && !strings.HasPrefix(trimmed, "[") {
		return "", false
	}
	var v any
	if err := json.Unmarshal([]byte(trimmed), &v); err != nil {
		return "", false
	}
	out, err := json.Marshal(m.MaskValue(v))
	if err != nil {
		return "", false
	}
	return string(out), true
}
