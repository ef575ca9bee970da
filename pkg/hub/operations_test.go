package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookups_SoftMiss(t *testing.T) {
	hub := newTestHub(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	})
	c := newTestClient(t, hub.URL, testIdentity(t), Options{})
	ctx := context.Background()

	ring, err := c.GetRing(ctx, "missing")
	assert.NoError(t, err)
	assert.Nil(t, ring)

	root, err := c.GetRootRing(ctx)
	assert.NoError(t, err)
	assert.Nil(t, root)

	info, err := c.GetMembershipInfo(ctx, "missing")
	assert.NoError(t, err)
	assert.Nil(t, info)

	post, err := c.GetPost(ctx, "p-1")
	assert.NoError(t, err)
	assert.Nil(t, post)
}

func TestLookups_OtherStatusesPropagate(t *testing.T) {
	hub := newTestHub(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "private ring"})
	})
	c := newTestClient(t, hub.URL, testIdentity(t), Options{})

	ring, err := c.GetRing(context.Background(), "secret")
	require.Error(t, err)
	assert.Nil(t, ring)
	assert.Equal(t, http.StatusForbidden, StatusOf(err))
}

func TestCollections_NotFoundIsError(t *testing.T) {
	hub := newTestHub(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "ring not found"})
	})
	c := newTestClient(t, hub.URL, testIdentity(t), Options{})

	_, err := c.GetRingFeed(context.Background(), "gone", FeedOptions{})
	assert.True(t, IsNotFound(err))

	_, err = c.JoinRing(context.Background(), "gone")
	assert.True(t, IsNotFound(err))
}

func TestGetRing_Cached(t *testing.T) {
	hub := newTestHub(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/trp/rings/demo":
			writeJSON(w, http.StatusOK, Ring{Slug: "demo", Name: "Demo", MemberCount: 4})
		case PathJoin:
			writeJSON(w, http.StatusOK, Membership{RingSlug: "demo", Role: "member", Status: "active"})
		default:
			http.NotFound(w, r)
		}
	})
	c := newTestClient(t, hub.URL, testIdentity(t), Options{CacheSize: 8, CacheTTL: time.Minute})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ring, err := c.GetRing(ctx, "demo")
		require.NoError(t, err)
		assert.Equal(t, "Demo", ring.Name)
	}
	assert.Equal(t, 1, hub.count())
	assert.Equal(t, 1, c.rings.size())

	_, err := c.JoinRing(ctx, "demo")
	require.NoError(t, err)
	assert.Equal(t, 0, c.rings.size())

	_, err = c.GetRing(ctx, "demo")
	require.NoError(t, err)
	assert.Equal(t, 3, hub.count())
}

func TestGetRing_MissNotCached(t *testing.T) {
	hub := newTestHub(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	c := newTestClient(t, hub.URL, testIdentity(t), Options{CacheSize: 8})

	for i := 0; i < 2; i++ {
		ring, err := c.GetRing(context.Background(), "nope")
		require.NoError(t, err)
		assert.Nil(t, ring)
	}
	assert.Equal(t, 2, hub.count())
}

func TestListRings_Query(t *testing.T) {
	hub := newTestHub(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, RingList{
			Rings: []Ring{{Slug: "go"}, {Slug: "golang"}},
			Total: 2,
		})
	})
	c := newTestClient(t, hub.URL, testIdentity(t), Options{})

	list, err := c.ListRings(context.Background(), ListRingsOptions{Search: "go lang", Limit: 500, Offset: 20})
	require.NoError(t, err)
	assert.Len(t, list.Rings, 2)

	req := hub.last(t)
	assert.Equal(t, "/trp/rings?limit=100&offset=20&search=go+lang", req.Target)
	assert.NotEmpty(t, req.Header.Get("Authorization"))
	assert.NoError(t, req.Checked)
}

func TestReadOperations_Paths(t *testing.T) {
	hub := newTestHub(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{})
	})
	c := newTestClient(t, hub.URL, testIdentity(t), Options{})
	ctx := context.Background()
	since := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name   string
		call   func() error
		target string
		signed bool
	}{
		{"stats", func() error { _, err := c.GetNetworkStats(ctx); return err }, "/trp/stats", false},
		{"root", func() error { _, err := c.GetRootRing(ctx); return err }, "/trp/root", false},
		{"badges", func() error { _, err := c.GetActorBadges(ctx, "did:key:z6Mk"); return err }, "/trp/actors/did:key:z6Mk/badges", false},
		{"feed", func() error {
			_, err := c.GetRingFeed(ctx, "demo", FeedOptions{Limit: 10, Since: &since})
			return err
		}, "/trp/rings/demo/feed?limit=10&since=2024-01-02T03%3A04%3A05Z", true},
		{"members", func() error { _, err := c.GetRingMembers(ctx, "demo", 5, 0); return err }, "/trp/rings/demo/members?limit=5", true},
		{"membership info", func() error { _, err := c.GetMembershipInfo(ctx, "demo"); return err }, "/trp/rings/demo/membership-info", true},
		{"my memberships", func() error { _, err := c.GetMyMemberships(ctx); return err }, "/trp/my/memberships", true},
		{"my feed", func() error { _, err := c.GetMyFeed(ctx, FeedOptions{Status: "accepted"}); return err }, "/trp/my/feed?status=accepted", true},
		{"post", func() error { _, err := c.GetPost(ctx, "p 1"); return err }, "/trp/posts/p%201", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, tt.call())
			req := hub.last(t)
			assert.Equal(t, http.MethodGet, req.Method)
			assert.Equal(t, tt.target, req.Target)
			assert.Equal(t, tt.signed, req.Header.Get("Authorization") != "")
			assert.NoError(t, req.Checked)
		})
	}
}

func TestWriteOperations_Bodies(t *testing.T) {
	hub := newTestHub(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"id": "p-1", "slug": "child"})
	})
	c := newTestClient(t, hub.URL, testIdentity(t), Options{})
	ctx := context.Background()
	name := "Renamed"

	tests := []struct {
		name   string
		call   func() error
		method string
		target string
		body   map[string]any
	}{
		{"join", func() error { _, err := c.JoinRing(ctx, "demo"); return err },
			http.MethodPost, PathJoin, map[string]any{"ringSlug": "demo"}},
		{"leave", func() error { return c.LeaveRing(ctx, "demo") },
			http.MethodPost, PathLeave, map[string]any{"ringSlug": "demo"}},
		{"submit", func() error {
			_, err := c.SubmitPost(ctx, PostSubmission{RingSlug: "demo", URI: "https://blog.example/p/1"})
			return err
		}, http.MethodPost, PathSubmit, map[string]any{"ringSlug": "demo", "uri": "https://blog.example/p/1"}},
		{"curate", func() error {
			_, err := c.CuratePost(ctx, "demo", CurateDecision{PostID: "p-1", Action: CuratePin})
			return err
		}, http.MethodPost, PathCurate, map[string]any{"ringSlug": "demo", "postId": "p-1", "action": "pin"}},
		{"create", func() error { _, err := c.CreateRing(ctx, RingCreate{Name: "Demo"}); return err },
			http.MethodPost, PathRings, map[string]any{"name": "Demo"}},
		{"fork", func() error { _, err := c.ForkRing(ctx, "demo", RingCreate{Name: "Child"}); return err },
			http.MethodPost, PathFork, map[string]any{"parentSlug": "demo", "name": "Child"}},
		{"update", func() error { _, err := c.UpdateRing(ctx, "demo", RingUpdate{Name: &name}); return err },
			http.MethodPut, "/trp/rings/demo", map[string]any{"name": "Renamed"}},
		{"role", func() error { _, err := c.UpdateMemberRole(ctx, "demo", "did:key:zAlice", "moderator"); return err },
			http.MethodPut, "/trp/rings/demo/members/did:key:zAlice", map[string]any{"role": "moderator"}},
		{"block", func() error { return c.BlockActor(ctx, "demo", "did:key:zMallory", "") },
			http.MethodPost, "/trp/rings/demo/blocks", map[string]any{"actorDid": "did:key:zMallory"}},
		{"delete", func() error { return c.DeleteRing(ctx, "demo") },
			http.MethodDelete, "/trp/rings/demo", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, tt.call())
			req := hub.last(t)
			assert.Equal(t, tt.method, req.Method)
			assert.Equal(t, tt.target, req.Target)
			assert.NotEmpty(t, req.Header.Get("Authorization"))
			assert.NoError(t, req.Checked)

			if tt.body == nil {
				assert.Empty(t, req.Body)
				assert.Empty(t, req.Header.Get("Digest"))
				return
			}
			var got map[string]any
			require.NoError(t, json.Unmarshal(req.Body, &got))
			assert.Equal(t, tt.body, got)
			assert.NotEmpty(t, req.Header.Get("Digest"))
		})
	}
}

func TestOperations_ValidateInput(t *testing.T) {
	c := newTestClient(t, "https://hub.example", testIdentity(t), Options{})
	ctx := context.Background()

	_, err := c.GetRing(ctx, "")
	assert.ErrorIs(t, err, ErrEmptySlug)
	_, err = c.GetActorBadges(ctx, "")
	assert.ErrorIs(t, err, ErrEmptyActor)
	_, err = c.GetPost(ctx, "")
	assert.ErrorIs(t, err, ErrEmptyPostID)
	_, err = c.CreateRing(ctx, RingCreate{})
	assert.Error(t, err)
	_, err = c.SubmitPost(ctx, PostSubmission{RingSlug: "demo"})
	assert.Error(t, err)
	_, err = c.CuratePost(ctx, "demo", CurateDecision{PostID: "p", Action: "shred"})
	assert.Error(t, err)
	assert.ErrorIs(t, c.BlockActor(ctx, "demo", "", ""), ErrEmptyActor)
}

func TestJoinRing_NoContent(t *testing.T) {
	hub := newTestHub(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	c := newTestClient(t, hub.URL, testIdentity(t), Options{})

	m, err := c.JoinRing(context.Background(), "demo")
	require.NoError(t, err)
	assert.Equal(t, "demo", m.RingSlug)
}
