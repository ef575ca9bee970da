package ratelimit

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrRateLimited     = errors.New("rate limit exceeded")
	ErrUnknownCategory = errors.New("unknown rate limit category")
	ErrInvalidUser     = errors.New("user id cannot be empty")
)

const (
	ScopeGlobal = "global"
	ScopeUser   = "user"
)

// LimitError is returned when an admission check fails. It matches
// ErrRateLimited with errors.Is.
type LimitError struct {
	Scope      string
	Constraint string
	UserID     string
	Limit      int
	Window     time.Duration
	RetryAfter time.Duration
}

func (e *LimitError) Error() string {
	who := e.Scope
	if e.UserID != "" {
		who = fmt.Sprintf("%s %s", e.Scope, e.UserID)
	}
	return fmt.Sprintf("rate limit exceeded for %s: %s (%d per %s), retry in %s",
		who, e.Constraint, e.Limit, e.Window, e.RetryAfter.Round(time.Second))
}

func (e *LimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// RetryAfter extracts the suggested delay from a rate limit error.
func RetryAfter(err error) (time.Duration, bool) {
	var le *LimitError
	if errors.As(err, &le) {
		return le.RetryAfter, true
	}
	return 0, false
}
