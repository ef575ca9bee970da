package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"hublink/pkg/hub"
)

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show hub-wide network statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				stats, err := a.client.GetNetworkStats(ctx)
				if err != nil {
					return err
				}
				return printOutput(stats, func() {
					fmt.Println(createPanel("NETWORK", "🌐", renderFields([]field{
						{"Hub", a.client.BaseURL(), accentValueStyle},
						{"Rings", strconv.Itoa(stats.TotalRings), valueStyle},
						{"Active Rings (24h)", strconv.Itoa(stats.ActiveRings24h), valueStyle},
						{"Actors", strconv.Itoa(stats.TotalActors), valueStyle},
						{"Posts", strconv.Itoa(stats.TotalPosts), valueStyle},
						{"Memberships", strconv.Itoa(stats.TotalMemberships), valueStyle},
						{"Generated", formatTime(stats.GeneratedAt), mutedStyle},
					}), 0))
				})
			})
		},
	}
}

func myCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "my",
		Short: "Views scoped to this instance (always signed)",
	}
	cmd.AddCommand(myMembershipsCmd(), myFeedCmd(), myBadgesCmd())
	return cmd
}

func myMembershipsCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "memberships",
		Aliases: []string{"rings"},
		Short:   "List the rings this instance belongs to",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				list, err := a.client.GetMyMemberships(ctx)
				if err != nil {
					return err
				}
				return printOutput(list, func() {
					t := newTable("RING", "NAME", "ROLE", "STATUS", "JOINED")
					for _, m := range list.Memberships {
						t.Row(m.RingSlug, orDash(m.RingName), m.Role, statusStyle(m.Status).Render(m.Status), formatTime(m.JoinedAt))
					}
					fmt.Println(t.Render())
					fmt.Println(mutedStyle.Render(fmt.Sprintf("%d memberships", list.Total)))
				})
			})
		},
	}
}

func myFeedCmd() *cobra.Command {
	var (
		opts  hub.FeedOptions
		since time.Duration
	)

	cmd := &cobra.Command{
		Use:   "feed",
		Short: "Show the combined feed of this instance's rings",
		RunE: func(cmd *cobra.Command, args []string) error {
			applySince(&opts, since)
			return withApp(func(ctx context.Context, a *app) error {
				page, err := a.client.GetMyFeed(ctx, opts)
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

func myBadgesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "badges ACTOR_DID",
		Short: "List the badges an actor holds",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				list, err := a.client.GetActorBadges(ctx, args[0])
				if err != nil {
					return err
				}
				return printOutput(list, func() {
					t := newTable("RING", "TITLE", "ISSUED", "REVOKED")
					for _, b := range list.Badges {
						t.Row(b.RingSlug, orDash(b.Title), formatTime(b.IssuedAt), strconv.FormatBool(b.Revoked))
					}
					fmt.Println(t.Render())
				})
			})
		},
	}
}
