// Copyright 2025 Certen Protocol

// Package canonicaljson implements deterministic JSON canonicalization and
// hashing shared by every component that must produce a hash that two
// independent processes, given the same logical input, compute identically:
// the event hash chain, the Global State Hash, Merkle proof packages, and
// governance signing payloads.
//
// Canonical form: object keys sorted lexicographically at every nesting
// level, no insignificant whitespace, array order preserved as given.
// Hashes are returned as plain lowercase 64-character hex, with no "0x"
// prefix.
package canonicaljson

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// Marshal renders v into its canonical JSON byte form.
func Marshal(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonicaljson: marshal: %w", err)
	}
	return Canonicalize(raw)
}

// Canonicalize re-encodes an arbitrary JSON document into its canonical
// form: sorted object keys at every level, compact separators.
func Canonicalize(raw []byte) ([]byte, error) {
	var v interface{}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("canonicaljson: decode: %w", err)
	}
	canon := canonicalize(v)
	out, err := json.Marshal(canon)
	if err != nil {
		return nil, fmt.Errorf("canonicaljson: encode: %w", err)
	}
	return out, nil
}

func canonicalize(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		ordered := make(sortedMap, 0, len(keys))
		for _, k := range keys {
			ordered = append(ordered, sortedEntry{key: k, value: canonicalize(val[k])})
		}
		return ordered
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, e := range val {
			out[i] = canonicalize(e)
		}
		return out
	default:
		return val
	}
}

// sortedMap preserves explicit key order through json.Marshal, since Go's
// map marshaling would otherwise re-sort by its own (already-sorted, but
// untyped) key order; keeping an explicit slice makes the sort order an
// invariant of this package rather than of encoding/json's map handling.
type sortedEntry struct {
	key   string
	value interface{}
}
type sortedMap []sortedEntry

func (m sortedMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range m {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(e.key)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		v, err := json.Marshal(e.value)
		if err != nil {
			return nil, err
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Hash returns the lowercase hex SHA-256 digest of b.
func Hash(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// HashConcat returns the lowercase hex SHA-256 digest of the concatenation
// of parts, streamed rather than built up as one slice.
func HashConcat(parts ...[]byte) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// HashOf canonicalizes v and returns the hex SHA-256 digest of its
// canonical form.
func HashOf(v interface{}) (string, error) {
	canon, err := Marshal(v)
	if err != nil {
		return "", err
	}
	return Hash(canon), nil
}
