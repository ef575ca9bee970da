package hub

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"hublink/pkg/ratelimit"
)

// UserGate applies per-user limits to user-triggered hub operations before
// they reach the client. A call counts against the user once it has been
// attempted against the hub, whatever the outcome.
type UserGate struct {
	client  *Client
	limiter *ratelimit.UserLimiter
	logger  *zap.Logger
}

// NewUserGate wraps client with limiter.
func NewUserGate(client *Client, limiter *ratelimit.UserLimiter, logger *zap.Logger) *UserGate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserGate{client: client, limiter: limiter, logger: logger}
}

// Limiter returns the per-user limiter.
func (g *UserGate) Limiter() *ratelimit.UserLimiter {
	return g.limiter
}

// JoinRing joins slug on behalf of userID.
func (g *UserGate) JoinRing(ctx context.Context, userID, slug string) (*Membership, error) {
	return gated(g, userID, ratelimit.CategoryJoin, func() (*Membership, error) {
		return g.client.JoinRing(ctx, slug)
	})
}

// SubmitPost submits content on behalf of userID.
func (g *UserGate) SubmitPost(ctx context.Context, userID string, in PostSubmission) (*PostRef, error) {
	return gated(g, userID, ratelimit.CategoryPost, func() (*PostRef, error) {
		return g.client.SubmitPost(ctx, in)
	})
}

// SearchRings runs a ring search on behalf of userID.
func (g *UserGate) SearchRings(ctx context.Context, userID string, opts ListRingsOptions) (*RingList, error) {
	return gated(g, userID, ratelimit.CategorySearch, func() (*RingList, error) {
		return g.client.ListRings(ctx, opts)
	})
}

// CreateRing creates a ring on behalf of userID.
func (g *UserGate) CreateRing(ctx context.Context, userID string, in RingCreate) (*Ring, error) {
	return gated(g, userID, ratelimit.CategoryRingCreate, func() (*Ring, error) {
		return g.client.CreateRing(ctx, in)
	})
}

// ForkRing forks parentSlug on behalf of userID. Forks share the ring
// creation allowance.
func (g *UserGate) ForkRing(ctx context.Context, userID, parentSlug string, in RingCreate) (*Ring, error) {
	return gated(g, userID, ratelimit.CategoryRingCreate, func() (*Ring, error) {
		return g.client.ForkRing(ctx, parentSlug, in)
	})
}

func gated[T any](g *UserGate, userID string, cat ratelimit.Category, call func() (T, error)) (T, error) {
	var zero T
	if err := g.limiter.Check(userID, cat); err != nil {
		if errors.Is(err, ratelimit.ErrRateLimited) {
			g.logger.Info("User operation rate limited",
				zap.String("user", userID),
				zap.String("category", string(cat)),
				zap.Error(err))
			if g.client.observer != nil {
				g.client.observer.ObserveRateLimited(ratelimit.ScopeUser, string(cat))
			}
		}
		return zero, err
	}

	out, err := call()

	// Only calls that reached the hub count.
	var he *Error
	if err == nil || (errors.As(err, &he) && he.Status != 0) {
		if rerr := g.limiter.Record(userID, cat); rerr != nil {
			g.logger.Warn("Failed to record user operation",
				zap.String("user", userID),
				zap.String("category", string(cat)),
				zap.Error(rerr))
		}
	}
	return out, err
}
