// Package normalize produces the canonical serialization used to decide
// whether two primitive trees are equal.
//
// Canonical form is RFC 8785 (JSON Canonicalization Scheme) applied after
// null-valued map entries have been removed. Keys come out lexicographically
// sorted and numbers in their canonical shortest form, so the result is
// independent of map iteration order and of cosmetic number formatting.
// Sequence order is preserved: it is semantically meaningful (for example
// routing policy application order). No type coercion happens anywhere; a
// numeric VLAN id and its string form never compare equal.
package normalize

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// Canonical returns the canonical JSON form of v.
//
// v is first marshaled through encoding/json so struct tags are honored,
// then decoded generically with json.Number to keep number text intact,
// null-stripped, and finally canonicalized per RFC 8785.
func Canonical(v any) ([]byte, error) {
	intermediate, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("normalize: marshal failed: %w", err)
	}

	var generic any
	dec := json.NewDecoder(bytes.NewReader(intermediate))
	dec.UseNumber()
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("normalize: decode failed: %w", err)
	}

	stripped, err := json.Marshal(StripNulls(generic))
	if err != nil {
		return nil, fmt.Errorf("normalize: re-marshal failed: %w", err)
	}

	out, err := jcs.Transform(stripped)
	if err != nil {
		return nil, fmt.Errorf("normalize: canonicalization failed: %w", err)
	}
	return out, nil
}

// CanonicalString is Canonical with a string result.
func CanonicalString(v any) (string, error) {
	b, err := Canonical(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Equal reports whether a and b have identical canonical forms.
func Equal(a, b any) (bool, error) {
	ca, err := Canonical(a)
	if err != nil {
		return false, err
	}
	cb, err := Canonical(b)
	if err != nil {
		return false, err
	}
	return bytes.Equal(ca, cb), nil
}

// Hash returns the SHA-256 hex digest of the canonical form of v. It is
// used as the identity of a pulled template snapshot.
func Hash(v any) (string, error) {
	b, err := Canonical(v)
	if err != nil {
		return "", err
	}
	return HashBytes(b), nil
}

// HashBytes computes the SHA-256 hex digest of raw bytes.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// StripNulls returns v with nil-valued map entries removed, recursively.
// Sequence elements are kept in place even when nil: removing them would
// shift positions and change meaning.
func StripNulls(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if val == nil {
				continue
			}
			out[k] = StripNulls(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = StripNulls(val)
		}
		return out
	default:
		return v
	}
}
