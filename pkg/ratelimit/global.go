package ratelimit

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

const (
	MinuteWindow = time.Minute
	HourWindow   = time.Hour
	BurstWindow  = 10 * time.Second
)

// Global window names, as reported in LimitError.Constraint.
const (
	WindowMinute = "per-minute"
	WindowHour   = "per-hour"
	WindowBurst  = "burst"
)

// GlobalLimits caps calls to the hub. A non-positive value disables that
// window.
type GlobalLimits struct {
	PerMinute int `json:"per_minute" yaml:"per_minute"`
	PerHour   int `json:"per_hour" yaml:"per_hour"`
	Burst     int `json:"burst" yaml:"burst"`
}

// DefaultGlobalLimits returns the limits used when none are configured.
func DefaultGlobalLimits() GlobalLimits {
	return GlobalLimits{
		PerMinute: 60,
		PerHour:   1000,
		Burst:     10,
	}
}

// GlobalStatus is a snapshot of the global limiter.
type GlobalStatus struct {
	Allowed    bool
	LastBurst  int
	LastMinute int
	LastHour   int
	Limits     GlobalLimits

	// Set only when Allowed is false: the violated window that frees up
	// last, the call whose expiry frees a slot, and the delay until then.
	Constraint   string
	BlockingCall time.Time
	RetryAfter   time.Duration
}

// GlobalLimiter tracks every outbound hub call in three sliding windows.
// It never blocks: Check reports, Record counts, Allow does both atomically.
type GlobalLimiter struct {
	mu     sync.Mutex
	clock  clock.Clock
	limits GlobalLimits
	calls  []time.Time
}

type window struct {
	name   string
	length time.Duration
	limit  int
}

// NewGlobalLimiter creates a limiter. A nil clock uses wall time.
func NewGlobalLimiter(limits GlobalLimits, clk clock.Clock) *GlobalLimiter {
	if clk == nil {
		clk = clock.New()
	}
	return &GlobalLimiter{
		clock:  clk,
		limits: limits,
		calls:  make([]time.Time, 0, 64),
	}
}

func (l *GlobalLimiter) windows() []window {
	return []window{
		{WindowMinute, MinuteWindow, l.limits.PerMinute},
		{WindowHour, HourWindow, l.limits.PerHour},
		{WindowBurst, BurstWindow, l.limits.Burst},
	}
}

// Check reports whether one more call may be made now. It does not count
// the call.
func (l *GlobalLimiter) Check() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.admitLocked(l.clock.Now())
}

// Allow checks and, when admitted, records in one step. Concurrent callers
// can never overshoot a cap.
func (l *GlobalLimiter) Allow() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if err := l.admitLocked(now); err != nil {
		return err
	}
	l.calls = insert(l.calls, now)
	return nil
}

func (l *GlobalLimiter) admitLocked(now time.Time) error {
	l.calls = prune(l.calls, now, HourWindow)

	st := l.statusLocked(now)
	if st.Allowed {
		return nil
	}
	w := l.window(st.Constraint)
	return &LimitError{
		Scope:      ScopeGlobal,
		Constraint: st.Constraint,
		Limit:      w.limit,
		Window:     w.length,
		RetryAfter: st.RetryAfter,
	}
}

// Record counts one attempted call. Call it once per request actually sent.
func (l *GlobalLimiter) Record() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	l.calls = insert(prune(l.calls, now, HourWindow), now)
}

// Status returns the current window counts.
func (l *GlobalLimiter) Status() GlobalStatus {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	l.calls = prune(l.calls, now, HourWindow)
	return l.statusLocked(now)
}

// Limits returns the configured caps.
func (l *GlobalLimiter) Limits() GlobalLimits {
	return l.limits
}

func (l *GlobalLimiter) statusLocked(now time.Time) GlobalStatus {
	st := GlobalStatus{
		Allowed:    true,
		LastBurst:  countWithin(l.calls, now, BurstWindow),
		LastMinute: countWithin(l.calls, now, MinuteWindow),
		LastHour:   countWithin(l.calls, now, HourWindow),
		Limits:     l.limits,
	}

	for _, w := range l.windows() {
		at, retry, blocked := blocking(l.calls, now, w.length, w.limit)
		if !blocked {
			continue
		}
		if st.Allowed || retry > st.RetryAfter {
			st.Constraint = w.name
			st.BlockingCall = at
			st.RetryAfter = retry
		}
		st.Allowed = false
	}

	return st
}

func (l *GlobalLimiter) window(name string) window {
	for _, w := range l.windows() {
		if w.name == name {
			return w
		}
	}
	return window{}
}
