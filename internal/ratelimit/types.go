package ratelimit

import (
	"context"
	"time"
)

// Result describes the outcome of a rate limit check.
type Result struct {
	Allowed   bool
	Remaining int
	Reset     time.Time
}

// Limiter provides fixed-window rate limit checks.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (Result, error)
}

// Scope indicates which console action the rate limit applies to.
type Scope int

const (
	ScopeNone Scope = iota
	ScopeAPI
	ScopeLogin
	ScopeTwoFA
)

// Decision describes the resolved rate limit for one scope.
type Decision struct {
	Limit  int
	Window time.Duration
	Scope  Scope
}

// windowStart returns the index of the window containing now and its end.
func windowStart(now time.Time, window time.Duration) (int64, time.Time) {
	if window < time.Second {
		window = time.Second
	}
	size := int64(window / time.Second)
	idx := now.Unix() / size
	return idx, time.Unix((idx+1)*size, 0).UTC()
}
