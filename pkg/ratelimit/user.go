package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// Category names a class of user-triggered operation.
type Category string

const (
	CategoryJoin       Category = "join-requests-per-hour"
	CategoryPost       Category = "post-submissions-per-minute"
	CategorySearch     Category = "search-requests-per-minute"
	CategoryRingCreate Category = "ring-creations-per-day"
)

// RetentionWindow is the longest window a per-user rule may use. The sweep
// never keeps anything older.
const RetentionWindow = 24 * time.Hour

// Rule is a cap of Limit operations per trailing Window.
type Rule struct {
	Limit  int           `json:"limit" yaml:"limit"`
	Window time.Duration `json:"window" yaml:"window"`
}

// DefaultRules returns the per-user caps used when none are configured.
func DefaultRules() map[Category]Rule {
	return map[Category]Rule{
		CategoryJoin:       {Limit: 10, Window: time.Hour},
		CategoryPost:       {Limit: 5, Window: time.Minute},
		CategorySearch:     {Limit: 30, Window: time.Minute},
		CategoryRingCreate: {Limit: 5, Window: RetentionWindow},
	}
}

// UserStatus is a snapshot of one (user, category) window.
type UserStatus struct {
	Allowed    bool
	Count      int
	Rule       Rule
	RetryAfter time.Duration
}

// UserLimiter keeps an independent sliding window per (user, category).
type UserLimiter struct {
	mu      sync.Mutex
	clock   clock.Clock
	rules   map[Category]Rule
	entries map[string]map[Category][]time.Time
	logger  *zap.Logger

	sweepInterval time.Duration
	stopOnce      sync.Once
	stopSweep     chan struct{}
}

// NewUserLimiter validates rules and creates a limiter. A nil clock uses wall
// time.
func NewUserLimiter(rules map[Category]Rule, clk clock.Clock, logger *zap.Logger) (*UserLimiter, error) {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	copied := make(map[Category]Rule, len(rules))
	for cat, rule := range rules {
		if rule.Limit <= 0 || rule.Window <= 0 {
			return nil, fmt.Errorf("rule %s: limit and window must be positive", cat)
		}
		if rule.Window > RetentionWindow {
			return nil, fmt.Errorf("rule %s: window %s exceeds retention %s", cat, rule.Window, RetentionWindow)
		}
		copied[cat] = rule
	}

	return &UserLimiter{
		clock:         clk,
		rules:         copied,
		entries:       make(map[string]map[Category][]time.Time),
		logger:        logger,
		sweepInterval: 10 * time.Minute,
		stopSweep:     make(chan struct{}),
	}, nil
}

// Check reports whether userID may perform one more cat operation. It does
// not count the operation.
func (l *UserLimiter) Check(userID string, cat Category) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, err := l.admitLocked(userID, cat)
	return err
}

// Record counts one cat operation for userID.
func (l *UserLimiter) Record(userID string, cat Category) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rule, err := l.lookupLocked(userID, cat)
	if err != nil {
		return err
	}
	l.recordLocked(userID, cat, rule)
	return nil
}

// Allow checks and, when admitted, records in one step.
func (l *UserLimiter) Allow(userID string, cat Category) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rule, err := l.admitLocked(userID, cat)
	if err != nil {
		return err
	}
	l.recordLocked(userID, cat, rule)
	return nil
}

// Status returns the window state for userID and cat.
func (l *UserLimiter) Status(userID string, cat Category) (UserStatus, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rule, err := l.lookupLocked(userID, cat)
	if err != nil {
		return UserStatus{}, err
	}

	now := l.clock.Now()
	ts := l.entries[userID][cat]
	st := UserStatus{
		Allowed: true,
		Count:   countWithin(ts, now, rule.Window),
		Rule:    rule,
	}
	if _, retry, blocked := blocking(ts, now, rule.Window, rule.Limit); blocked {
		st.Allowed = false
		st.RetryAfter = retry
	}
	return st, nil
}

// Rules returns a copy of the configured rules.
func (l *UserLimiter) Rules() map[Category]Rule {
	out := make(map[Category]Rule, len(l.rules))
	for cat, rule := range l.rules {
		out[cat] = rule
	}
	return out
}

// Users returns how many users currently have tracked entries.
func (l *UserLimiter) Users() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Sweep drops entries that no window can count any more and removes users
// left without entries. It returns the number of users removed.
func (l *UserLimiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	removed := 0
	for userID, cats := range l.entries {
		for cat, ts := range cats {
			window := RetentionWindow
			if rule, ok := l.rules[cat]; ok {
				window = rule.Window
			}
			if kept := prune(ts, now, window); len(kept) > 0 {
				cats[cat] = kept
			} else {
				delete(cats, cat)
			}
		}
		if len(cats) == 0 {
			delete(l.entries, userID)
			removed++
		}
	}
	return removed
}

// Start runs Sweep periodically until ctx is done or Stop is called.
func (l *UserLimiter) Start(ctx context.Context) {
	go l.sweepLoop(ctx)
}

// Stop ends the sweep loop.
func (l *UserLimiter) Stop() {
	l.stopOnce.Do(func() {
		close(l.stopSweep)
	})
}

func (l *UserLimiter) sweepLoop(ctx context.Context) {
	ticker := l.clock.Ticker(l.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if removed := l.Sweep(); removed > 0 {
				l.logger.Debug("Swept idle rate limit entries",
					zap.Int("users_removed", removed))
			}
		case <-ctx.Done():
			return
		case <-l.stopSweep:
			return
		}
	}
}

func (l *UserLimiter) lookupLocked(userID string, cat Category) (Rule, error) {
	if strings.TrimSpace(userID) == "" {
		return Rule{}, ErrInvalidUser
	}
	rule, ok := l.rules[cat]
	if !ok {
		return Rule{}, fmt.Errorf("%w: %s", ErrUnknownCategory, cat)
	}
	return rule, nil
}

func (l *UserLimiter) admitLocked(userID string, cat Category) (Rule, error) {
	rule, err := l.lookupLocked(userID, cat)
	if err != nil {
		return Rule{}, err
	}

	now := l.clock.Now()
	ts := l.pruneLocked(userID, cat, rule, now)
	if _, retry, blocked := blocking(ts, now, rule.Window, rule.Limit); blocked {
		return Rule{}, &LimitError{
			Scope:      ScopeUser,
			Constraint: string(cat),
			UserID:     userID,
			Limit:      rule.Limit,
			Window:     rule.Window,
			RetryAfter: retry,
		}
	}
	return rule, nil
}

func (l *UserLimiter) recordLocked(userID string, cat Category, rule Rule) {
	now := l.clock.Now()
	ts := l.pruneLocked(userID, cat, rule, now)

	cats, ok := l.entries[userID]
	if !ok {
		cats = make(map[Category][]time.Time)
		l.entries[userID] = cats
	}
	cats[cat] = insert(ts, now)
}

func (l *UserLimiter) pruneLocked(userID string, cat Category, rule Rule, now time.Time) []time.Time {
	cats, ok := l.entries[userID]
	if !ok {
		return nil
	}
	ts := prune(cats[cat], now, rule.Window)
	if len(ts) == 0 {
		delete(cats, cat)
		if len(cats) == 0 {
			delete(l.entries, userID)
		}
		return nil
	}
	cats[cat] = ts
	return ts
}
