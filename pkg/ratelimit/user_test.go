package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestUserLimiter(t *testing.T, mock *clock.Mock) *UserLimiter {
	t.Helper()
	l, err := NewUserLimiter(map[Category]Rule{
		CategoryPost:   {Limit: 2, Window: time.Minute},
		CategorySearch: {Limit: 3, Window: time.Minute},
		CategoryJoin:   {Limit: 1, Window: time.Hour},
	}, mock, nil)
	require.NoError(t, err)
	return l
}

func TestUserLimiter_PerUserIsolation(t *testing.T) {
	mock := clock.NewMock()
	l := newTestUserLimiter(t, mock)

	require.NoError(t, l.Allow("alice", CategoryPost))
	require.NoError(t, l.Allow("alice", CategoryPost))
	assert.ErrorIs(t, l.Allow("alice", CategoryPost), ErrRateLimited)

	// Bob is unaffected by Alice's usage.
	assert.NoError(t, l.Allow("bob", CategoryPost))
	assert.NoError(t, l.Allow("bob", CategoryPost))
}

func TestUserLimiter_CategoryIsolation(t *testing.T) {
	mock := clock.NewMock()
	l := newTestUserLimiter(t, mock)

	require.NoError(t, l.Allow("alice", CategoryPost))
	require.NoError(t, l.Allow("alice", CategoryPost))
	require.ErrorIs(t, l.Check("alice", CategoryPost), ErrRateLimited)

	for i := 0; i < 3; i++ {
		assert.NoError(t, l.Allow("alice", CategorySearch))
	}
}

func TestUserLimiter_WindowSlides(t *testing.T) {
	mock := clock.NewMock()
	l := newTestUserLimiter(t, mock)

	require.NoError(t, l.Allow("alice", CategoryJoin))
	mock.Add(30 * time.Minute)

	err := l.Check("alice", CategoryJoin)
	var le *LimitError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, ScopeUser, le.Scope)
	assert.Equal(t, "alice", le.UserID)
	assert.Equal(t, string(CategoryJoin), le.Constraint)
	assert.Equal(t, 30*time.Minute, le.RetryAfter)

	mock.Add(30 * time.Minute)
	assert.NoError(t, l.Check("alice", CategoryJoin))
}

func TestUserLimiter_CheckThenRecord(t *testing.T) {
	mock := clock.NewMock()
	l := newTestUserLimiter(t, mock)

	require.NoError(t, l.Check("alice", CategoryJoin))
	require.NoError(t, l.Check("alice", CategoryJoin))
	require.NoError(t, l.Record("alice", CategoryJoin))
	assert.ErrorIs(t, l.Check("alice", CategoryJoin), ErrRateLimited)

	st, err := l.Status("alice", CategoryJoin)
	require.NoError(t, err)
	assert.False(t, st.Allowed)
	assert.Equal(t, 1, st.Count)
	assert.Equal(t, time.Hour, st.RetryAfter)
}

func TestUserLimiter_InvalidInput(t *testing.T) {
	l := newTestUserLimiter(t, clock.NewMock())

	assert.ErrorIs(t, l.Check("", CategoryPost), ErrInvalidUser)
	assert.ErrorIs(t, l.Check("alice", Category("unknown")), ErrUnknownCategory)
	assert.ErrorIs(t, l.Record("alice", Category("unknown")), ErrUnknownCategory)
	_, err := l.Status(" ", CategoryPost)
	assert.ErrorIs(t, err, ErrInvalidUser)
}

func TestNewUserLimiter_RejectsBadRules(t *testing.T) {
	_, err := NewUserLimiter(map[Category]Rule{CategoryPost: {Limit: 0, Window: time.Minute}}, nil, nil)
	assert.Error(t, err)

	_, err = NewUserLimiter(map[Category]Rule{CategoryPost: {Limit: 1, Window: 48 * time.Hour}}, nil, nil)
	assert.Error(t, err)

	l, err := NewUserLimiter(DefaultRules(), nil, nil)
	require.NoError(t, err)
	assert.Len(t, l.Rules(), 4)
}

func TestUserLimiter_Sweep(t *testing.T) {
	mock := clock.NewMock()
	l := newTestUserLimiter(t, mock)

	require.NoError(t, l.Record("alice", CategoryPost))
	require.NoError(t, l.Record("bob", CategoryJoin))
	assert.Equal(t, 2, l.Users())

	mock.Add(2 * time.Minute)
	assert.Equal(t, 1, l.Sweep())
	assert.Equal(t, 1, l.Users())

	mock.Add(RetentionWindow)
	assert.Equal(t, 1, l.Sweep())
	assert.Equal(t, 0, l.Users())
}

func TestUserLimiter_SweepLoop(t *testing.T) {
	mock := clock.NewMock()
	l := newTestUserLimiter(t, mock)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, l.Record("alice", CategoryPost))
	l.Start(ctx)
	defer l.Stop()

	assert.Eventually(t, func() bool {
		mock.Add(l.sweepInterval)
		return l.Users() == 0
	}, time.Second, 10*time.Millisecond)

	// Stop is idempotent.
	l.Stop()
}
