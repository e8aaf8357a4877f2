// Package distribution models percentage distributions and the proportional
// allocator that keeps them summing to exactly 100.
//
// A distribution is an ordered set of named integer buckets (for example the
// age ranges of a campaign audience). It is edited one bucket at a time: the
// edited bucket takes the requested value and the other buckets absorb the
// inverse delta in proportion to their current share:
//
//	others_after[k] = others_before[k] - delta * others_before[k] / sum(others_before)
//
// All intermediate arithmetic is exact; rounding to integers happens once.
package distribution

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Total is the value every settled distribution sums to.
const Total = 100

var (
	// ErrInvalidKey is returned when a change references a bucket that is not in the set.
	ErrInvalidKey = errors.New("invalid bucket key")

	// ErrPreconditionViolated is returned when the input set is not a valid distribution.
	ErrPreconditionViolated = errors.New("distribution precondition violated")

	// ErrInvariantViolated is returned when rounding correction cannot restore the total.
	ErrInvariantViolated = errors.New("distribution invariant violated")

	// ErrInvalidBucketSet is returned by constructors for malformed input.
	ErrInvalidBucketSet = errors.New("invalid bucket set")
)

// Bucket is one named slot of a distribution.
type Bucket struct {
	Key   string `json:"key"`
	Value int    `json:"value"`
}

// Status describes where a set stands relative to the 100 total.
type Status string

const (
	// StatusPristine means every bucket is zero; no allocation has been made yet.
	StatusPristine Status = "pristine"
	// StatusPartial means the buckets hold something but do not sum to 100.
	StatusPartial Status = "partial"
	// StatusSettled means the buckets sum to exactly 100.
	StatusSettled Status = "settled"
)

// BucketSet is an ordered collection of buckets with unique keys.
// Order only matters for tie-breaking and output.
type BucketSet struct {
	Buckets []Bucket
}

// NewBucketSet builds a set with the given key order. Keys missing from
// values start at zero.
func NewBucketSet(keys []string, values map[string]int) (BucketSet, error) {
	if len(keys) == 0 {
		return BucketSet{}, fmt.Errorf("%w: no keys", ErrInvalidBucketSet)
	}

	seen := make(map[string]bool, len(keys))
	buckets := make([]Bucket, 0, len(keys))
	for _, key := range keys {
		if key == "" {
			return BucketSet{}, fmt.Errorf("%w: empty key", ErrInvalidBucketSet)
		}
		if seen[key] {
			return BucketSet{}, fmt.Errorf("%w: duplicate key %q", ErrInvalidBucketSet, key)
		}
		seen[key] = true

		value := values[key]
		if value < 0 || value > Total {
			return BucketSet{}, fmt.Errorf("%w: %s=%d out of range [0,%d]", ErrInvalidBucketSet, key, value, Total)
		}
		buckets = append(buckets, Bucket{Key: key, Value: value})
	}

	for key := range values {
		if !seen[key] {
			return BucketSet{}, fmt.Errorf("%w: unknown key %q", ErrInvalidBucketSet, key)
		}
	}

	return BucketSet{Buckets: buckets}, nil
}

// ZeroSet returns a pristine set over keys. It panics on duplicate or empty
// keys, so it is meant for static key lists.
func ZeroSet(keys ...string) BucketSet {
	set, err := NewBucketSet(keys, nil)
	if err != nil {
		panic(err)
	}
	return set
}

// Len returns the number of buckets.
func (s BucketSet) Len() int {
	return len(s.Buckets)
}

// Value returns the value held by key.
func (s BucketSet) Value(key string) (int, bool) {
	i := s.index(key)
	if i < 0 {
		return 0, false
	}
	return s.Buckets[i].Value, true
}

func (s BucketSet) index(key string) int {
	for i, b := range s.Buckets {
		if b.Key == key {
			return i
		}
	}
	return -1
}

// Sum returns the sum of all bucket values.
func (s BucketSet) Sum() int {
	total := 0
	for _, b := range s.Buckets {
		total += b.Value
	}
	return total
}

// Keys returns the bucket keys in order.
func (s BucketSet) Keys() []string {
	keys := make([]string, len(s.Buckets))
	for i, b := range s.Buckets {
		keys[i] = b.Key
	}
	return keys
}

// Map returns the set as a key -> value mapping.
func (s BucketSet) Map() map[string]int {
	m := make(map[string]int, len(s.Buckets))
	for _, b := range s.Buckets {
		m[b.Key] = b.Value
	}
	return m
}

// Clone returns a deep copy.
func (s BucketSet) Clone() BucketSet {
	buckets := make([]Bucket, len(s.Buckets))
	copy(buckets, s.Buckets)
	return BucketSet{Buckets: buckets}
}

// Equal reports whether both sets hold the same keys, in the same order, with the same values.
func (s BucketSet) Equal(other BucketSet) bool {
	if len(s.Buckets) != len(other.Buckets) {
		return false
	}
	for i := range s.Buckets {
		if s.Buckets[i] != other.Buckets[i] {
			return false
		}
	}
	return true
}

// Status classifies the set relative to the 100 total.
func (s BucketSet) Status() Status {
	switch sum := s.Sum(); {
	case sum == Total:
		return StatusSettled
	case sum == 0 && s.allZero():
		return StatusPristine
	default:
		return StatusPartial
	}
}

// seeded reports whether exactly one bucket is non-zero, the shape a seed
// edit leaves behind.
func (s BucketSet) seeded() bool {
	nonZero := 0
	for _, b := range s.Buckets {
		if b.Value != 0 {
			nonZero++
		}
	}
	return nonZero == 1
}

func (s BucketSet) allZero() bool {
	for _, b := range s.Buckets {
		if b.Value != 0 {
			return false
		}
	}
	return true
}

// check verifies range and key uniqueness.
func (s BucketSet) check() error {
	if len(s.Buckets) == 0 {
		return fmt.Errorf("%w: empty set", ErrPreconditionViolated)
	}
	seen := make(map[string]bool, len(s.Buckets))
	for _, b := range s.Buckets {
		if b.Key == "" {
			return fmt.Errorf("%w: empty key", ErrPreconditionViolated)
		}
		if seen[b.Key] {
			return fmt.Errorf("%w: duplicate key %q", ErrPreconditionViolated, b.Key)
		}
		seen[b.Key] = true
		if b.Value < 0 || b.Value > Total {
			return fmt.Errorf("%w: %s=%d out of range [0,%d]", ErrPreconditionViolated, b.Key, b.Value, Total)
		}
	}
	return nil
}

// MarshalJSON encodes the set as a flat object in bucket order.
func (s BucketSet) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, b := range s.Buckets {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(b.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		fmt.Fprintf(&buf, ":%d", b.Value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a flat object, keeping the document's key order.
func (s *BucketSet) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("%w: expected object", ErrInvalidBucketSet)
	}

	var keys []string
	values := make(map[string]int)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("%w: expected key", ErrInvalidBucketSet)
		}
		var value int
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidBucketSet, key, err)
		}
		if _, dup := values[key]; dup {
			return fmt.Errorf("%w: duplicate key %q", ErrInvalidBucketSet, key)
		}
		keys = append(keys, key)
		values[key] = value
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	set, err := NewBucketSet(keys, values)
	if err != nil {
		return err
	}
	*s = set
	return nil
}
