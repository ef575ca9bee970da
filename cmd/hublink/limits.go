package main

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"hublink/pkg/ratelimit"
)

type limitsView struct {
	Global ratelimit.GlobalStatus `json:"global"`
	User   string                 `json:"user"`
	Rules  []ruleView             `json:"rules"`
}

type ruleView struct {
	Category   string `json:"category"`
	Limit      int    `json:"limit"`
	Window     string `json:"window"`
	Used       int    `json:"used"`
	Allowed    bool   `json:"allowed"`
	RetryAfter string `json:"retry_after,omitempty"`
}

func limitsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "limits",
		Short: "Show the configured rate limits and current usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			view := limitsView{Global: a.global.Status(), User: actingUser}

			rules := a.users.Rules()
			cats := make([]string, 0, len(rules))
			for cat := range rules {
				cats = append(cats, string(cat))
			}
			sort.Strings(cats)
			for _, cat := range cats {
				st, err := a.users.Status(actingUser, ratelimit.Category(cat))
				if err != nil {
					return err
				}
				rv := ruleView{
					Category: cat,
					Limit:    st.Rule.Limit,
					Window:   st.Rule.Window.String(),
					Used:     st.Count,
					Allowed:  st.Allowed,
				}
				if !st.Allowed {
					rv.RetryAfter = st.RetryAfter.String()
				}
				view.Rules = append(view.Rules, rv)
			}

			return printOutput(view, func() { printLimits(view) })
		},
	}
}

func printLimits(v limitsView) {
	g := v.Global
	gt := newTable("WINDOW", "USED", "LIMIT")
	gt.Row(ratelimit.WindowBurst, usageStyle(g.LastBurst, g.Limits.Burst).Render(strconv.Itoa(g.LastBurst)), limitString(g.Limits.Burst))
	gt.Row(ratelimit.WindowMinute, usageStyle(g.LastMinute, g.Limits.PerMinute).Render(strconv.Itoa(g.LastMinute)), limitString(g.Limits.PerMinute))
	gt.Row(ratelimit.WindowHour, usageStyle(g.LastHour, g.Limits.PerHour).Render(strconv.Itoa(g.LastHour)), limitString(g.Limits.PerHour))

	state := accentValueStyle.Render("accepting calls")
	if !g.Allowed {
		state = dangerValueStyle.Render(fmt.Sprintf("blocked by %s, retry in %s", g.Constraint, g.RetryAfter))
	}
	fmt.Println(createPanel("GLOBAL LIMITS", "⏱", state+"\n"+gt.Render(), 0))

	ut := newTable("CATEGORY", "USED", "LIMIT", "WINDOW", "RETRY")
	for _, r := range v.Rules {
		ut.Row(r.Category, usageStyle(r.Used, r.Limit).Render(strconv.Itoa(r.Used)), strconv.Itoa(r.Limit), r.Window, orDash(r.RetryAfter))
	}
	fmt.Println(createPanel("USER LIMITS: "+v.User, "👤", ut.Render(), 0))
}

func limitString(limit int) string {
	if limit <= 0 {
		return "off"
	}
	return strconv.Itoa(limit)
}
