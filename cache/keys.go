// Package cache provides the in-memory and null implementations of
// gromozeka.Cache together with the key generators and value codecs shared
// by every cache backend.
package cache

import (
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// KeyFunc maps an arbitrary cache key to a stable string.
type KeyFunc func(key any) (string, error)

// IdentityKey requires the key to already be a string and rejects
// everything else.
func IdentityKey(key any) (string, error) {
	s, ok := key.(string)
	if !ok {
		return "", fmt.Errorf("identity key: %T is not a string", key)
	}
	return s, nil
}

// HashKey maps any input to the SHA-512 hex digest of its Go
// representation. Tolerates any input.
func HashKey(key any) (string, error) {
	sum := sha512.Sum512([]byte(fmt.Sprintf("%#v", key)))
	return hex.EncodeToString(sum[:]), nil
}

// StructuredKeyConfig controls StructuredKey generation.
type StructuredKeyConfig struct {
	// SortKeys serializes maps with sorted keys so logically equal inputs
	// produce equal cache keys. Default true.
	SortKeys bool
	// Hash replaces the canonical JSON with its SHA-512 hex digest.
	// Default true.
	Hash bool
}

// StructuredKey returns a KeyFunc serializing the input to canonical JSON
// (deterministic, sorted map keys) and optionally hashing the result.
func StructuredKey(cfg StructuredKeyConfig) KeyFunc {
	return func(key any) (string, error) {
		data, err := json.Marshal(key)
		if err != nil {
			return "", fmt.Errorf("structured key: %w", err)
		}
		if cfg.SortKeys {
			// A decode/encode round trip forces map keys into sorted
			// order regardless of the input type's field layout.
			var v any
			if err := json.Unmarshal(data, &v); err != nil {
				return "", fmt.Errorf("structured key: %w", err)
			}
			if data, err = json.Marshal(v); err != nil {
				return "", fmt.Errorf("structured key: %w", err)
			}
		}
		if !cfg.Hash {
			return string(data), nil
		}
		sum := sha512.Sum512(data)
		return hex.EncodeToString(sum[:]), nil
	}
}

// DefaultStructuredKey is StructuredKey with both flags on.
var DefaultStructuredKey = StructuredKey(StructuredKeyConfig{SortKeys: true, Hash: true})
