// Package cas is the canonical hasher. Every identity and fingerprint in the
// engine is a hex BLAKE3-256 digest over raw bytes, newline-normalized text,
// or canonical JSON.
package cas

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"lukechampine.com/blake3"
)

// DigestSize is the byte length of a digest.
const DigestSize = 32

// Digest is a raw BLAKE3-256 digest.
type Digest [DigestSize]byte

// Sum digests data.
func Sum(data []byte) Digest {
	return blake3.Sum256(data)
}

// String is the lowercase hex form used everywhere outside this package.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// ParseDigest reads the hex form of a digest.
func ParseDigest(s string) (Digest, error) {
	var d Digest
	b, err := hex.DecodeString(s)
	if err != nil {
		return d, fmt.Errorf("cas: parsing digest: %w", err)
	}
	if len(b) != DigestSize {
		return d, fmt.Errorf("cas: digest has %d bytes, want %d", len(b), DigestSize)
	}
	copy(d[:], b)
	return d, nil
}

// HashBytes digests a buffer as is. Used for binary assets.
func HashBytes(data []byte) string {
	return Sum(data).String()
}

// HashText digests text with CRLF and lone CR rewritten to LF, so checkouts
// that differ only in line endings agree.
func HashText(data []byte) string {
	return Sum(NormalizeNewlines(data)).String()
}

// NormalizeNewlines rewrites \r\n and lone \r to \n. Input without \r is
// returned as is.
func NormalizeNewlines(data []byte) []byte {
	if bytes.IndexByte(data, '\r') < 0 {
		return data
	}
	out := make([]byte, 0, len(data))
	for i, c := range data {
		if c != '\r' {
			out = append(out, c)
			continue
		}
		if i+1 < len(data) && data[i+1] == '\n' {
			continue
		}
		out = append(out, '\n')
	}
	return out
}

// Hash digests the canonical JSON form of v.
func Hash(v interface{}) (string, error) {
	data, err := CanonicalJSON(v)
	if err != nil {
		return "", err
	}
	return Sum(data).String(), nil
}

// MustHash is Hash for values built from strings, numbers, slices and maps.
// It panics on anything encoding/json rejects.
func MustHash(v interface{}) string {
	h, err := Hash(v)
	if err != nil {
		panic(fmt.Sprintf("cas: unhashable value %T: %v", v, err))
	}
	return h
}

// NodeID is the hex digest of kind, a newline, and the canonical payload.
func NodeID(kind string, payload interface{}) (string, error) {
	data, err := CanonicalJSON(payload)
	if err != nil {
		return "", err
	}
	h := blake3.New(DigestSize, nil)
	h.Write([]byte(kind))
	h.Write([]byte{'\n'})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Fold digests an ordered sequence of key/value pairs without building the
// whole sequence in memory.
type Fold struct {
	h *blake3.Hasher
}

// NewFold starts an empty fold.
func NewFold() *Fold {
	return &Fold{h: blake3.New(DigestSize, nil)}
}

// Add appends one pair.
func (f *Fold) Add(key, value string) {
	f.h.Write([]byte(key))
	f.h.Write([]byte{0})
	f.h.Write([]byte(value))
	f.h.Write([]byte{'\n'})
}

// Sum returns the hex digest of every pair added so far.
func (f *Fold) Sum() string {
	return hex.EncodeToString(f.h.Sum(nil))
}

// CanonicalJSON encodes v as JSON with object keys sorted at every depth and
// no insignificant whitespace. Array order is kept, so sets must be sorted by
// the caller.
func CanonicalJSON(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var tree interface{}
	if err := dec.Decode(&tree); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.Grow(len(raw))
	if err := encodeCanonical(&buf, tree); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// encodeCanonical writes a decoded JSON tree. Scalars reuse encoding/json so
// string escaping matches the standard encoder.
func encodeCanonical(buf *bytes.Buffer, v interface{}) error {
	switch t := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeCanonical(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := encodeCanonical(buf, t[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case []interface{}:
		buf.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeCanonical(buf, e); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return err
		}
		buf.Write(b)
	}
	return nil
}
