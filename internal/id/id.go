// Package id provides record and batch ID generators.
package id

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// UUIDv7 creates time-ordered UUID strings.
type UUIDv7 struct{}

// NewUUIDv7 creates a new generator.
func NewUUIDv7() UUIDv7 {
	return UUIDv7{}
}

// NewID returns a UUIDv7 string.
func (UUIDv7) NewID() (string, error) {
	v, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid7: %w", err)
	}
	return v.String(), nil
}

// Sequence yields prefix-1, prefix-2, ... and is meant for deterministic
// output in tests and previews.
type Sequence struct {
	prefix string
	next   atomic.Int64
}

// NewSequence returns a Sequence using prefix.
func NewSequence(prefix string) *Sequence {
	return &Sequence{prefix: prefix}
}

// NewID returns the next ID in the sequence.
func (s *Sequence) NewID() (string, error) {
	return fmt.Sprintf("%s-%d", s.prefix, s.next.Add(1)), nil
}
