package hub

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Hub API paths.
const (
	PathRings      = "/trp/rings"
	PathRoot       = "/trp/root"
	PathStats      = "/trp/stats"
	PathJoin       = "/trp/join"
	PathLeave      = "/trp/leave"
	PathSubmit     = "/trp/submit"
	PathCurate     = "/trp/curate"
	PathFork       = "/trp/fork"
	PathMyFeed     = "/trp/my/feed"
	PathMyRings    = "/trp/my/memberships"
	pathActors     = "/trp/actors"
	pathPosts      = "/trp/posts"
	maxSearchLimit = 100
)

var (
	ErrEmptySlug   = errors.New("ring slug is required")
	ErrEmptyActor  = errors.New("actor DID is required")
	ErrEmptyPostID = errors.New("post id is required")
)

func ringPath(slug string, sub ...string) string {
	parts := append([]string{PathRings, url.PathEscape(slug)}, sub...)
	return strings.Join(parts, "/")
}

func withQuery(path string, q url.Values) string {
	if len(q) == 0 {
		return path
	}
	return path + "?" + q.Encode()
}

func pageQuery(limit, offset int) url.Values {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	return q
}

func feedQuery(opts FeedOptions) url.Values {
	q := pageQuery(opts.Limit, opts.Offset)
	if opts.Since != nil {
		q.Set("since", opts.Since.UTC().Format(time.RFC3339))
	}
	if opts.Status != "" {
		q.Set("status", opts.Status)
	}
	return q
}

// lookup performs a single-entity GET. A 404 or an empty body yields
// (false, nil).
func (c *Client) lookup(ctx context.Context, path string, out any) (bool, error) {
	resp, err := c.Do(ctx, http.MethodGet, path, nil, out)
	if err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return !resp.NoContent, nil
}

// GetRing returns the ring with slug, or nil if the hub has none.
func (c *Client) GetRing(ctx context.Context, slug string) (*Ring, error) {
	if slug == "" {
		return nil, ErrEmptySlug
	}
	if ring, ok := c.rings.get(slug); ok {
		return ring, nil
	}

	var ring Ring
	found, err := c.lookup(ctx, ringPath(slug), &ring)
	if err != nil || !found {
		return nil, err
	}
	c.rings.put(&ring)
	return &ring, nil
}

// GetRootRing returns the hub's root ring, or nil if none is configured.
func (c *Client) GetRootRing(ctx context.Context) (*Ring, error) {
	var ring Ring
	found, err := c.lookup(ctx, PathRoot, &ring)
	if err != nil || !found {
		return nil, err
	}
	return &ring, nil
}

// ListRings returns one page of rings matching opts.
func (c *Client) ListRings(ctx context.Context, opts ListRingsOptions) (*RingList, error) {
	q := pageQuery(min(opts.Limit, maxSearchLimit), opts.Offset)
	if opts.Search != "" {
		q.Set("search", opts.Search)
	}
	if opts.Visibility != "" {
		q.Set("visibility", opts.Visibility)
	}
	if opts.Sort != "" {
		q.Set("sort", opts.Sort)
	}

	var list RingList
	if _, err := c.Do(ctx, http.MethodGet, withQuery(PathRings, q), nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// GetNetworkStats returns hub-wide counters.
func (c *Client) GetNetworkStats(ctx context.Context) (*NetworkStats, error) {
	var stats NetworkStats
	if _, err := c.Do(ctx, http.MethodGet, PathStats, nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// GetActorBadges lists the badges held by actorDID.
func (c *Client) GetActorBadges(ctx context.Context, actorDID string) (*BadgeList, error) {
	if actorDID == "" {
		return nil, ErrEmptyActor
	}
	var badges BadgeList
	path := pathActors + "/" + url.PathEscape(actorDID) + "/badges"
	if _, err := c.Do(ctx, http.MethodGet, path, nil, &badges); err != nil {
		return nil, err
	}
	return &badges, nil
}

// GetRingFeed returns a page of a ring's accepted content.
func (c *Client) GetRingFeed(ctx context.Context, slug string, opts FeedOptions) (*FeedPage, error) {
	if slug == "" {
		return nil, ErrEmptySlug
	}
	var page FeedPage
	if _, err := c.Do(ctx, http.MethodGet, withQuery(ringPath(slug, "feed"), feedQuery(opts)), nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// GetRingMembers returns a page of a ring's members.
func (c *Client) GetRingMembers(ctx context.Context, slug string, limit, offset int) (*MemberList, error) {
	if slug == "" {
		return nil, ErrEmptySlug
	}
	var members MemberList
	if _, err := c.Do(ctx, http.MethodGet, withQuery(ringPath(slug, "members"), pageQuery(limit, offset)), nil, &members); err != nil {
		return nil, err
	}
	return &members, nil
}

// GetMembershipInfo describes the caller's standing in a ring, or nil if the
// ring does not exist.
func (c *Client) GetMembershipInfo(ctx context.Context, slug string) (*MembershipInfo, error) {
	if slug == "" {
		return nil, ErrEmptySlug
	}
	var info MembershipInfo
	found, err := c.lookup(ctx, ringPath(slug, "membership-info"), &info)
	if err != nil || !found {
		return nil, err
	}
	return &info, nil
}

// GetMyMemberships lists the rings the caller belongs to.
func (c *Client) GetMyMemberships(ctx context.Context) (*MembershipList, error) {
	var list MembershipList
	if _, err := c.Do(ctx, http.MethodGet, PathMyRings, nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// GetMyFeed returns content from every ring the caller belongs to.
func (c *Client) GetMyFeed(ctx context.Context, opts FeedOptions) (*FeedPage, error) {
	var page FeedPage
	if _, err := c.Do(ctx, http.MethodGet, withQuery(PathMyFeed, feedQuery(opts)), nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// GetPost returns one content reference, or nil if it does not exist.
func (c *Client) GetPost(ctx context.Context, id string) (*PostRef, error) {
	if id == "" {
		return nil, ErrEmptyPostID
	}
	var post PostRef
	found, err := c.lookup(ctx, pathPosts+"/"+url.PathEscape(id), &post)
	if err != nil || !found {
		return nil, err
	}
	return &post, nil
}

// CreateRing creates a new top-level ring.
func (c *Client) CreateRing(ctx context.Context, in RingCreate) (*Ring, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, errors.New("ring name is required")
	}
	var ring Ring
	if _, err := c.Do(ctx, http.MethodPost, PathRings, in, &ring); err != nil {
		return nil, err
	}
	c.rings.put(&ring)
	return &ring, nil
}

// UpdateRing changes ring settings.
func (c *Client) UpdateRing(ctx context.Context, slug string, in RingUpdate) (*Ring, error) {
	if slug == "" {
		return nil, ErrEmptySlug
	}
	c.rings.invalidate(slug)

	var ring Ring
	if _, err := c.Do(ctx, http.MethodPut, ringPath(slug), in, &ring); err != nil {
		return nil, err
	}
	c.rings.put(&ring)
	return &ring, nil
}

type forkRequest struct {
	ParentSlug string `json:"parentSlug"`
	RingCreate
}

// ForkRing creates a child ring of parentSlug.
func (c *Client) ForkRing(ctx context.Context, parentSlug string, in RingCreate) (*Ring, error) {
	if parentSlug == "" {
		return nil, ErrEmptySlug
	}
	if strings.TrimSpace(in.Name) == "" {
		return nil, errors.New("ring name is required")
	}
	var ring Ring
	if _, err := c.Do(ctx, http.MethodPost, PathFork, forkRequest{ParentSlug: parentSlug, RingCreate: in}, &ring); err != nil {
		return nil, err
	}
	c.rings.invalidate(parentSlug)
	c.rings.put(&ring)
	return &ring, nil
}

// DeleteRing removes a ring the caller owns.
func (c *Client) DeleteRing(ctx context.Context, slug string) error {
	if slug == "" {
		return ErrEmptySlug
	}
	c.rings.invalidate(slug)
	_, err := c.Do(ctx, http.MethodDelete, ringPath(slug), nil, nil)
	return err
}

type ringRef struct {
	RingSlug string `json:"ringSlug"`
}

// JoinRing joins or requests to join a ring. The returned membership may be
// pending when the ring's join policy requires approval.
func (c *Client) JoinRing(ctx context.Context, slug string) (*Membership, error) {
	if slug == "" {
		return nil, ErrEmptySlug
	}
	var m Membership
	resp, err := c.Do(ctx, http.MethodPost, PathJoin, ringRef{RingSlug: slug}, &m)
	if err != nil {
		return nil, err
	}
	c.rings.invalidate(slug)
	if resp.NoContent {
		return &Membership{RingSlug: slug, Status: "active"}, nil
	}
	return &m, nil
}

// LeaveRing ends the caller's membership.
func (c *Client) LeaveRing(ctx context.Context, slug string) error {
	if slug == "" {
		return ErrEmptySlug
	}
	if _, err := c.Do(ctx, http.MethodPost, PathLeave, ringRef{RingSlug: slug}, nil); err != nil {
		return err
	}
	c.rings.invalidate(slug)
	return nil
}

// SubmitPost submits a content reference to a ring.
func (c *Client) SubmitPost(ctx context.Context, in PostSubmission) (*PostRef, error) {
	if in.RingSlug == "" {
		return nil, ErrEmptySlug
	}
	if strings.TrimSpace(in.URI) == "" {
		return nil, errors.New("post URI is required")
	}
	var post PostRef
	if _, err := c.Do(ctx, http.MethodPost, PathSubmit, in, &post); err != nil {
		return nil, err
	}
	c.rings.invalidate(in.RingSlug)
	return &post, nil
}

type curateRequest struct {
	RingSlug string `json:"ringSlug"`
	CurateDecision
}

// CuratePost applies a moderation decision to a post in a ring.
func (c *Client) CuratePost(ctx context.Context, slug string, d CurateDecision) (*PostRef, error) {
	if slug == "" {
		return nil, ErrEmptySlug
	}
	if d.PostID == "" {
		return nil, ErrEmptyPostID
	}
	switch d.Action {
	case CurateAccept, CurateReject, CuratePin, CurateUnpin, CurateRemove:
	default:
		return nil, errors.New("unknown curate action: " + string(d.Action))
	}

	var post PostRef
	resp, err := c.Do(ctx, http.MethodPost, PathCurate, curateRequest{RingSlug: slug, CurateDecision: d}, &post)
	if err != nil {
		return nil, err
	}
	c.rings.invalidate(slug)
	if resp.NoContent {
		return nil, nil
	}
	return &post, nil
}

// UpdateMemberRole changes a member's role in a ring.
func (c *Client) UpdateMemberRole(ctx context.Context, slug, actorDID, role string) (*Member, error) {
	if slug == "" {
		return nil, ErrEmptySlug
	}
	if actorDID == "" {
		return nil, ErrEmptyActor
	}
	body := struct {
		Role string `json:"role"`
	}{Role: role}

	var m Member
	resp, err := c.Do(ctx, http.MethodPut, ringPath(slug, "members", url.PathEscape(actorDID)), body, &m)
	if err != nil {
		return nil, err
	}
	if resp.NoContent {
		return &Member{ActorDID: actorDID, Role: role}, nil
	}
	return &m, nil
}

// BlockActor bars an actor from a ring.
func (c *Client) BlockActor(ctx context.Context, slug, actorDID, reason string) error {
	if slug == "" {
		return ErrEmptySlug
	}
	if actorDID == "" {
		return ErrEmptyActor
	}
	body := struct {
		ActorDID string `json:"actorDid"`
		Reason   string `json:"reason,omitempty"`
	}{ActorDID: actorDID, Reason: reason}

	if _, err := c.Do(ctx, http.MethodPost, ringPath(slug, "blocks"), body, nil); err != nil {
		return err
	}
	c.rings.invalidate(slug)
	return nil
}
