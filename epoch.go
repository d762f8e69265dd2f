package authclient

import (
	"fmt"
	"hash/fnv"
	"sync/atomic"

	"github.com/golang-jwt/jwt/v5"
)

// Epoch is a monotonic counter partitioning cached responses by
// authentication generation. It is bumped exactly once per login, logout,
// or token rotation and never decremented.
type Epoch struct {
	n atomic.Int64
}

// NewEpoch returns an Epoch starting at seed.
func NewEpoch(seed int64) *Epoch {
	e := &Epoch{}
	e.n.Store(seed)
	return e
}

// Current returns the epoch value.
func (e *Epoch) Current() int64 {
	return e.n.Load()
}

// Bump advances the epoch and returns the new value.
func (e *Epoch) Bump() int64 {
	return e.n.Add(1)
}

// EpochSeedFromToken derives a deterministic epoch seed from a stored access
// token, so a process restart with the same token resumes the same cache
// namespace while any rotation moves to a fresh one. A missing or unparsable
// token seeds zero.
func EpochSeedFromToken(token string) int64 {
	if token == "" {
		return 0
	}

	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return 0
	}

	h := fnv.New64a()
	if sub, err := claims.GetSubject(); err == nil {
		fmt.Fprint(h, sub)
	}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		fmt.Fprint(h, iat.Unix())
	}

	// Keep the seed positive so bumped epochs never collide with the
	// zero-seed namespace of an unauthenticated session.
	return int64(h.Sum64()&0x7fffffffffff) + 1
}
