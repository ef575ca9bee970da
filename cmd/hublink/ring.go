package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"hublink/pkg/hub"
)

func ringCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ring",
		Short: "Work with rings on the hub",
	}

	cmd.AddCommand(
		ringGetCmd(),
		ringRootCmd(),
		ringListCmd(),
		ringCreateCmd(),
		ringForkCmd(),
		ringDeleteCmd(),
		ringJoinCmd(),
		ringLeaveCmd(),
		ringInfoCmd(),
		ringMembersCmd(),
		ringFeedCmd(),
		ringSubmitCmd(),
		ringPostCmd(),
		ringCurateCmd(),
		ringRoleCmd(),
		ringBlockCmd(),
	)
	return cmd
}

// withApp builds the app, runs fn with a timeout bound to the hub timeout,
// and tears the app down.
func withApp(fn func(ctx context.Context, a *app) error) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.HubTimeout()+5*time.Second)
	defer cancel()
	return fn(ctx, a)
}

func ringGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get SLUG",
		Short: "Show a ring",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				ring, err := a.client.GetRing(ctx, args[0])
				if err != nil {
					return err
				}
				if ring == nil {
					return fmt.Errorf("ring %q not found", args[0])
				}
				return printOutput(ring, func() { printRing(ring) })
			})
		},
	}
}

func ringRootCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "root",
		Short: "Show the hub's root ring",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				ring, err := a.client.GetRootRing(ctx)
				if err != nil {
					return err
				}
				if ring == nil {
					return fmt.Errorf("hub has no root ring")
				}
				return printOutput(ring, func() { printRing(ring) })
			})
		},
	}
}

func printRing(r *hub.Ring) {
	fields := []field{
		{"Slug", r.Slug, accentValueStyle},
		{"Name", r.Name, valueStyle},
		{"Description", orDash(r.Description), valueStyle},
		{"Visibility", orDash(r.Visibility), valueStyle},
		{"Join Policy", orDash(r.JoinPolicy), valueStyle},
		{"Post Policy", orDash(r.PostPolicy), valueStyle},
		{"Parent", orDash(r.ParentSlug), valueStyle},
		{"Owner", orDash(r.OwnerDID), mutedStyle},
		{"Members", strconv.Itoa(r.MemberCount), valueStyle},
		{"Posts", strconv.Itoa(r.PostCount), valueStyle},
		{"Created", formatTime(&r.CreatedAt), mutedStyle},
	}
	fmt.Println(createPanel("RING", "◎", renderFields(fields), 0))
}

func ringListCmd() *cobra.Command {
	var opts hub.ListRingsOptions

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"search"},
		Short:   "List or search rings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				var (
					list *hub.RingList
					err  error
				)
				// Searches count against the acting user; plain listings do not.
				if opts.Search != "" {
					list, err = a.gate.SearchRings(ctx, actingUser, opts)
				} else {
					list, err = a.client.ListRings(ctx, opts)
				}
				if err != nil {
					return err
				}

				return printOutput(list, func() {
					t := newTable("SLUG", "NAME", "VISIBILITY", "MEMBERS", "POSTS")
					for _, r := range list.Rings {
						t.Row(r.Slug, r.Name, orDash(r.Visibility), strconv.Itoa(r.MemberCount), strconv.Itoa(r.PostCount))
					}
					fmt.Println(t.Render())
					fmt.Println(mutedStyle.Render(fmt.Sprintf("%d of %d rings", len(list.Rings), list.Total)))
				})
			})
		},
	}

	cmd.Flags().StringVarP(&opts.Search, "search", "s", "", "search term")
	cmd.Flags().StringVar(&opts.Visibility, "visibility", "", "filter by visibility")
	cmd.Flags().StringVar(&opts.Sort, "sort", "", "sort order")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "page size (max 100)")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "page offset")
	return cmd
}

func ringCreateFlags(cmd *cobra.Command, in *hub.RingCreate) {
	cmd.Flags().StringVar(&in.Name, "name", "", "ring name")
	cmd.Flags().StringVar(&in.Slug, "slug", "", "ring slug (derived from the name when empty)")
	cmd.Flags().StringVar(&in.Description, "description", "", "ring description")
	cmd.Flags().StringVar(&in.Visibility, "visibility", "", "public, unlisted or private")
	cmd.Flags().StringVar(&in.JoinPolicy, "join-policy", "", "open, application or invitation")
	cmd.Flags().StringVar(&in.PostPolicy, "post-policy", "", "open, members, curated or closed")
	_ = cmd.MarkFlagRequired("name")
}

func ringCreateCmd() *cobra.Command {
	var in hub.RingCreate

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a ring",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				ring, err := a.gate.CreateRing(ctx, actingUser, in)
				if err != nil {
					return err
				}
				return printOutput(ring, func() { printRing(ring) })
			})
		},
	}
	ringCreateFlags(cmd, &in)
	return cmd
}

func ringForkCmd() *cobra.Command {
	var in hub.RingCreate

	cmd := &cobra.Command{
		Use:   "fork PARENT",
		Short: "Fork a ring into a new child ring",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				ring, err := a.gate.ForkRing(ctx, actingUser, args[0], in)
				if err != nil {
					return err
				}
				return printOutput(ring, func() { printRing(ring) })
			})
		},
	}
	ringCreateFlags(cmd, &in)
	return cmd
}

func ringDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete SLUG",
		Short: "Delete a ring you own",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				if err := a.client.DeleteRing(ctx, args[0]); err != nil {
					return err
				}
				fmt.Println(accentValueStyle.Render("✓ deleted " + args[0]))
				return nil
			})
		},
	}
}

func ringJoinCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "join SLUG",
		Short: "Join a ring",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				m, err := a.gate.JoinRing(ctx, actingUser, args[0])
				if err != nil {
					return err
				}
				return printOutput(m, func() {
					fmt.Println(createPanel("MEMBERSHIP", "◎", renderFields([]field{
						{"Ring", m.RingSlug, accentValueStyle},
						{"Role", orDash(m.Role), valueStyle},
						{"Status", orDash(m.Status), statusStyle(m.Status)},
						{"Joined", formatTime(m.JoinedAt), mutedStyle},
					}), 0))
				})
			})
		},
	}
}

func ringLeaveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "leave SLUG",
		Short: "Leave a ring",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				if err := a.client.LeaveRing(ctx, args[0]); err != nil {
					return err
				}
				fmt.Println(accentValueStyle.Render("✓ left " + args[0]))
				return nil
			})
		},
	}
}

func ringInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info SLUG",
		Short: "Show this instance's relationship with a ring",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				info, err := a.client.GetMembershipInfo(ctx, args[0])
				if err != nil {
					return err
				}
				if info == nil {
					return fmt.Errorf("ring %q not found", args[0])
				}
				return printOutput(info, func() {
					role, status := "-", "-"
					if info.Membership != nil {
						role, status = orDash(info.Membership.Role), orDash(info.Membership.Status)
					}
					fmt.Println(createPanel("MEMBERSHIP INFO", "◎", renderFields([]field{
						{"Ring", info.RingSlug, accentValueStyle},
						{"Member", strconv.FormatBool(info.IsMember), valueStyle},
						{"Role", role, valueStyle},
						{"Status", status, statusStyle(status)},
						{"Can Post", strconv.FormatBool(info.CanPost), valueStyle},
						{"Can Curate", strconv.FormatBool(info.CanCurate), valueStyle},
					}), 0))
				})
			})
		},
	}
}

func ringMembersCmd() *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "members SLUG",
		Short: "List a ring's members",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				list, err := a.client.GetRingMembers(ctx, args[0], limit, offset)
				if err != nil {
					return err
				}
				return printOutput(list, func() {
					t := newTable("ACTOR", "NAME", "ROLE", "STATUS", "JOINED")
					for _, m := range list.Members {
						t.Row(m.ActorDID, orDash(m.ActorName), m.Role, m.Status, formatTime(m.JoinedAt))
					}
					fmt.Println(t.Render())
					fmt.Println(mutedStyle.Render(fmt.Sprintf("%d of %d members", len(list.Members), list.Total)))
				})
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "page size")
	cmd.Flags().IntVar(&offset, "offset", 0, "page offset")
	return cmd
}

func feedFlags(cmd *cobra.Command, opts *hub.FeedOptions, since *time.Duration) {
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "page size")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "page offset")
	cmd.Flags().StringVar(&opts.Status, "status", "", "only posts with this status")
	cmd.Flags().DurationVar(since, "since", 0, "only posts newer than this (e.g. 24h)")
}

func applySince(opts *hub.FeedOptions, since time.Duration) {
	if since > 0 {
		t := time.Now().Add(-since)
		opts.Since = &t
	}
}

func printFeed(page *hub.FeedPage) {
	t := newTable("ID", "RING", "URI", "AUTHOR", "STATUS", "SUBMITTED")
	for _, p := range page.Posts {
		author := p.ActorName
		if author == "" {
			author = p.ActorDID
		}
		status := orDash(p.Status)
		if p.Pinned {
			status += " 📌"
		}
		t.Row(p.ID, p.RingSlug, p.URI, orDash(author), status, formatTime(&p.SubmittedAt))
	}
	fmt.Println(t.Render())
	fmt.Println(mutedStyle.Render(fmt.Sprintf("%d of %d posts", len(page.Posts), page.Total)))
}

func ringFeedCmd() *cobra.Command {
	var (
		opts  hub.FeedOptions
		since time.Duration
	)

	cmd := &cobra.Command{
		Use:   "feed SLUG",
		Short: "Show a ring's feed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			applySince(&opts, since)
			return withApp(func(ctx context.Context, a *app) error {
				page, err := a.client.GetRingFeed(ctx, args[0], opts)
				if err != nil {
					return err
				}
				return printOutput(page, func() { printFeed(page) })
			})
		},
	}
	feedFlags(cmd, &opts, &since)
	return cmd
}

func ringSubmitCmd() *cobra.Command {
	var (
		digest   string
		metadata []string
	)

	cmd := &cobra.Command{
		Use:   "submit SLUG URI",
		Short: "Submit a post reference to a ring",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := hub.PostSubmission{RingSlug: args[0], URI: args[1], Digest: digest}
			for _, kv := range metadata {
				k, v, ok := strings.Cut(kv, "=")
				if !ok {
					return fmt.Errorf("invalid metadata %q (expected key=value)", kv)
				}
				if in.Metadata == nil {
					in.Metadata = make(map[string]string)
				}
				in.Metadata[k] = v
			}

			return withApp(func(ctx context.Context, a *app) error {
				post, err := a.gate.SubmitPost(ctx, actingUser, in)
				if err != nil {
					return err
				}
				return printOutput(post, func() {
					fmt.Println(createPanel("SUBMITTED", "✉", renderFields([]field{
						{"ID", post.ID, accentValueStyle},
						{"Ring", post.RingSlug, valueStyle},
						{"URI", post.URI, valueStyle},
						{"Status", orDash(post.Status), statusStyle(post.Status)},
					}), 0))
				})
			})
		},
	}

	cmd.Flags().StringVar(&digest, "digest", "", "content digest")
	cmd.Flags().StringArrayVar(&metadata, "meta", nil, "metadata as key=value (repeatable)")
	return cmd
}

func ringPostCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "post POST_ID",
		Short: "Show a post reference",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				post, err := a.client.GetPost(ctx, args[0])
				if err != nil {
					return err
				}
				if post == nil {
					return fmt.Errorf("post %q not found", args[0])
				}
				return printOutput(post, func() {
					author := post.ActorName
					if author == "" {
						author = post.ActorDID
					}
					fmt.Println(createPanel("POST", "✉", renderFields([]field{
						{"ID", post.ID, accentValueStyle},
						{"Ring", post.RingSlug, valueStyle},
						{"URI", post.URI, valueStyle},
						{"Author", orDash(author), valueStyle},
						{"Status", orDash(post.Status), statusStyle(post.Status)},
						{"Pinned", strconv.FormatBool(post.Pinned), valueStyle},
						{"Digest", orDash(post.Digest), mutedStyle},
						{"Submitted", formatTime(&post.SubmittedAt), mutedStyle},
					}), 0))
				})
			})
		},
	}
}

func ringCurateCmd() *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "curate SLUG POST_ID ACTION",
		Short: "Moderate a post (accept, reject, pin, unpin, remove)",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			d := hub.CurateDecision{PostID: args[1], Action: hub.CurateAction(args[2]), Reason: reason}
			return withApp(func(ctx context.Context, a *app) error {
				post, err := a.client.CuratePost(ctx, args[0], d)
				if err != nil {
					return err
				}
				return printOutput(post, func() {
					fmt.Println(accentValueStyle.Render(fmt.Sprintf("✓ %s %s", d.Action, post.ID)))
				})
			})
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "reason shown to the author")
	return cmd
}

func ringRoleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "role SLUG ACTOR_DID ROLE",
		Short: "Change a member's role",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				m, err := a.client.UpdateMemberRole(ctx, args[0], args[1], args[2])
				if err != nil {
					return err
				}
				return printOutput(m, func() {
					fmt.Println(accentValueStyle.Render(fmt.Sprintf("✓ %s is now %s", m.ActorDID, m.Role)))
				})
			})
		},
	}
}

func ringBlockCmd() *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "block SLUG ACTOR_DID",
		Short: "Block an actor from a ring",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				if err := a.client.BlockActor(ctx, args[0], args[1], reason); err != nil {
					return err
				}
				fmt.Println(accentValueStyle.Render("✓ blocked " + args[1]))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "reason for the block")
	return cmd
}
