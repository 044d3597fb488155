package cache

import (
	"encoding/json"
	"fmt"
)

// Codec encodes cache values to strings and back.
type Codec interface {
	Encode(v any) (string, error)
	Decode(s string) (any, error)
}

// StringCodec passes string values through unchanged and rejects
// everything else.
type StringCodec struct{}

func (StringCodec) Encode(v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("string codec: %T is not a string", v)
	}
	return s, nil
}

func (StringCodec) Decode(s string) (any, error) { return s, nil }

// JSONCodec round-trips any JSON-serializable value.
type JSONCodec struct{}

func (JSONCodec) Encode(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("json codec: %w", err)
	}
	return string(data), nil
}

func (JSONCodec) Decode(s string) (any, error) {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, fmt.Errorf("json codec: %w", err)
	}
	return v, nil
}

var (
	_ Codec = StringCodec{}
	_ Codec = JSONCodec{}
)
