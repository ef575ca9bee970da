package hub

import "time"

// Ring is a hub-hosted community.
type Ring struct {
	Slug        string     `json:"slug"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	ShortCode   string     `json:"shortCode,omitempty"`
	Visibility  string     `json:"visibility,omitempty"`
	JoinPolicy  string     `json:"joinPolicy,omitempty"`
	PostPolicy  string     `json:"postPolicy,omitempty"`
	ParentSlug  string     `json:"parentSlug,omitempty"`
	OwnerDID    string     `json:"ownerDid,omitempty"`
	CuratorNote string     `json:"curatorNote,omitempty"`
	MemberCount int        `json:"memberCount"`
	PostCount   int        `json:"postCount"`
	Depth       int        `json:"depth,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   *time.Time `json:"updatedAt,omitempty"`
}

// RingList is one page of rings.
type RingList struct {
	Rings   []Ring `json:"rings"`
	Total   int    `json:"total"`
	Limit   int    `json:"limit"`
	Offset  int    `json:"offset"`
	HasMore bool   `json:"hasMore"`
}

// RingCreate is the payload for creating or forking a ring.
type RingCreate struct {
	Name        string `json:"name"`
	Slug        string `json:"slug,omitempty"`
	Description string `json:"description,omitempty"`
	Visibility  string `json:"visibility,omitempty"`
	JoinPolicy  string `json:"joinPolicy,omitempty"`
	PostPolicy  string `json:"postPolicy,omitempty"`
}

// RingUpdate carries the fields to change on a ring; nil fields are left
// alone.
type RingUpdate struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Visibility  *string `json:"visibility,omitempty"`
	JoinPolicy  *string `json:"joinPolicy,omitempty"`
	PostPolicy  *string `json:"postPolicy,omitempty"`
	CuratorNote *string `json:"curatorNote,omitempty"`
}

// Membership is an actor's standing in a ring.
type Membership struct {
	RingSlug string     `json:"ringSlug"`
	RingName string     `json:"ringName,omitempty"`
	ActorDID string     `json:"actorDid"`
	Role     string     `json:"role"`
	Status   string     `json:"status"`
	JoinedAt *time.Time `json:"joinedAt,omitempty"`
	Badge    *Badge     `json:"badge,omitempty"`
}

// MembershipList is a page of memberships.
type MembershipList struct {
	Memberships []Membership `json:"memberships"`
	Total       int          `json:"total"`
}

// MembershipInfo describes the caller's relationship with one ring.
type MembershipInfo struct {
	RingSlug   string      `json:"ringSlug"`
	IsMember   bool        `json:"isMember"`
	Membership *Membership `json:"membership,omitempty"`
	CanPost    bool        `json:"canPost"`
	CanCurate  bool        `json:"canCurate"`
}

// Member is an entry in a ring's member list.
type Member struct {
	ActorDID  string     `json:"actorDid"`
	ActorName string     `json:"actorName,omitempty"`
	Role      string     `json:"role"`
	Status    string     `json:"status"`
	JoinedAt  *time.Time `json:"joinedAt,omitempty"`
}

// MemberList is a page of members.
type MemberList struct {
	Members []Member `json:"members"`
	Total   int      `json:"total"`
}

// Badge is a verifiable membership badge.
type Badge struct {
	ID       string     `json:"id,omitempty"`
	RingSlug string     `json:"ringSlug"`
	Title    string     `json:"title,omitempty"`
	ImageURL string     `json:"imageUrl,omitempty"`
	IssuedAt *time.Time `json:"issuedAt,omitempty"`
	Revoked  bool       `json:"revoked,omitempty"`
}

// BadgeList is the set of badges an actor holds.
type BadgeList struct {
	Badges []Badge `json:"badges"`
	Total  int     `json:"total"`
}

// PostSubmission references externally hosted content for a ring.
type PostSubmission struct {
	RingSlug string            `json:"ringSlug"`
	URI      string            `json:"uri"`
	Digest   string            `json:"digest,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// PostRef is a content reference held by the hub.
type PostRef struct {
	ID          string            `json:"id"`
	RingSlug    string            `json:"ringSlug"`
	URI         string            `json:"uri"`
	Digest      string            `json:"digest,omitempty"`
	ActorDID    string            `json:"actorDid,omitempty"`
	ActorName   string            `json:"actorName,omitempty"`
	Status      string            `json:"status,omitempty"`
	Pinned      bool              `json:"pinned,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	SubmittedAt time.Time         `json:"submittedAt"`
}

// FeedPage is a page of content references.
type FeedPage struct {
	Posts   []PostRef `json:"posts"`
	Total   int       `json:"total"`
	Limit   int       `json:"limit"`
	Offset  int       `json:"offset"`
	HasMore bool      `json:"hasMore"`
}

// CurateAction is a moderation verb.
type CurateAction string

const (
	CurateAccept CurateAction = "accept"
	CurateReject CurateAction = "reject"
	CuratePin    CurateAction = "pin"
	CurateUnpin  CurateAction = "unpin"
	CurateRemove CurateAction = "remove"
)

// CurateDecision is the payload for a moderation call.
type CurateDecision struct {
	PostID string       `json:"postId"`
	Action CurateAction `json:"action"`
	Reason string       `json:"reason,omitempty"`
}

// NetworkStats are hub-wide counters.
type NetworkStats struct {
	TotalRings       int        `json:"totalRings"`
	TotalActors      int        `json:"totalActors"`
	TotalPosts       int        `json:"totalPosts"`
	TotalMemberships int        `json:"totalMemberships"`
	ActiveRings24h   int        `json:"activeRings24h,omitempty"`
	GeneratedAt      *time.Time `json:"generatedAt,omitempty"`
}

// ListRingsOptions filters a ring listing.
type ListRingsOptions struct {
	Search     string
	Visibility string
	Sort       string
	Limit      int
	Offset     int
}

// FeedOptions pages a feed.
type FeedOptions struct {
	Limit  int
	Offset int
	Since  *time.Time
	Status string
}
