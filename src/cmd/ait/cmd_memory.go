package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"ait-main/src/internal/binding"
	"ait-main/src/internal/gateway"
	"ait-main/src/internal/memory"
	"ait-main/src/internal/system"
)

type relatedRow struct {
	ID       string  `json:"id"`
	Distance float32 `json:"distance"`
	Rank     uint32  `json:"rank"`
	Query    string  `json:"query"`
}

type experienceRow struct {
	ID       string   `json:"id" yaml:"id"`
	Rank     uint32   `json:"rank" yaml:"rank"`
	Query    string   `json:"query" yaml:"query"`
	Response string   `json:"response" yaml:"response"`
	Links    []string `json:"links,omitempty" yaml:"links,omitempty"`
	Positive uint64   `json:"positive" yaml:"positive"`
	Total    uint64   `json:"total" yaml:"total"`
	// only filled by export --embeddings
	Embedding []float32 `json:"embedding,omitempty" yaml:"embedding,omitempty,flow"`
}

func toRow(gw *gateway.Gateway, e memory.Experience) experienceRow {
	row := experienceRow{
		ID:       e.ID.String(),
		Rank:     e.Rank,
		Query:    e.Query,
		Response: e.Response,
	}
	if links, ok := gw.History.Links(e.ID); ok && len(links) > 0 {
		row.Links = binding.Hex(links)
	}
	if fb, ok := gw.History.Feedback(e.ID); ok {
		row.Positive, row.Total = fb.Positive, fb.Total
	}
	return row
}

func newAskCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask the agent and remember the exchange",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gw, err := openGateway(cmd)
			if err != nil {
				return err
			}
			defer closeGateway(gw)

			ans, err := gw.Agent.Ask(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), ans)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, ans.Response)
			for _, r := range ans.Related {
				fmt.Fprintf(out, "  recalled %s (%.3f) %s\n", r.ID.Short(), r.Distance, oneLine(r.Query, 60))
			}
			fmt.Fprintf(out, "  stored as %s\n", ans.ID.Short())
			return nil
		},
	}
}

func newRememberCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remember <query> <response>",
		Short: "Store an exchange without asking the model",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rawLinks, _ := cmd.Flags().GetStringSlice("link")
			links, err := binding.TextIDsHex(rawLinks)
			if err != nil {
				return err
			}

			gw, err := openGateway(cmd)
			if err != nil {
				return err
			}
			defer closeGateway(gw)

			id, err := gw.Agent.RememberText(cmd.Context(), args[0], args[1], links)
			if err != nil {
				return err
			}
			e, _ := gw.History.Get(id)
			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), map[string]any{"id": id.String(), "rank": e.Rank})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stored %s (rank %d)\n", id.Short(), e.Rank)
			return nil
		},
	}
	cmd.Flags().StringSliceP("link", "l", nil, "Id of a related experience (repeatable)")
	return cmd
}

func newRelatedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "related <text>",
		Short: "List experiences related to a text",
		Long: `Embed the text and walk the link graph from the most recent experience,
returning the closest experiences found on the way.

With --exhaustive every stored experience is scored instead.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			num, _ := cmd.Flags().GetInt("num")
			exhaustive, _ := cmd.Flags().GetBool("exhaustive")

			gw, err := openGateway(cmd)
			if err != nil {
				return err
			}
			defer closeGateway(gw)

			probe, err := gw.Embed(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			var scored []memory.Scored
			if exhaustive {
				scored, err = gw.History.Exhaustive(probe, num)
			} else {
				scored, err = gw.History.RelatedScored(probe, num)
			}
			if err != nil {
				return err
			}

			rows := make([]relatedRow, 0, len(scored))
			for _, s := range scored {
				row := relatedRow{ID: s.ID.String(), Distance: s.Distance}
				if e, ok := gw.History.Get(s.ID); ok {
					row.Rank, row.Query = e.Rank, e.Query
				}
				rows = append(rows, row)
			}
			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), rows)
			}
			if len(rows) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No related experiences.")
				return nil
			}
			for _, r := range rows {
				fmt.Fprintf(cmd.OutOrStdout(), "%.4f  %s  %5d  %s\n", r.Distance, r.ID[:12], r.Rank, oneLine(r.Query, 60))
			}
			return nil
		},
	}
	cmd.Flags().IntP("num", "n", 3, "Maximum number of experiences")
	cmd.Flags().Bool("exhaustive", false, "Score every experience instead of walking links")
	return cmd
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one experience",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			gw, err := openGateway(cmd)
			if err != nil {
				return err
			}
			defer closeGateway(gw)

			e, ok := gw.History.Get(id)
			if !ok {
				return errNotFound
			}
			row := toRow(gw, e)
			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), row)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "id:       %s\n", row.ID)
			fmt.Fprintf(out, "rank:     %d\n", row.Rank)
			fmt.Fprintf(out, "feedback: %d/%d positive\n", row.Positive, row.Total)
			if len(row.Links) > 0 {
				fmt.Fprintf(out, "links:    %s\n", strings.Join(row.Links, "\n          "))
			}
			fmt.Fprintf(out, "\n# Query\n%s\n\n# Response\n%s\n", row.Query, row.Response)
			return nil
		},
	}
}

func newRecentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recent",
		Short: "List the most recently stored experiences",
		RunE: func(cmd *cobra.Command, args []string) error {
			num, _ := cmd.Flags().GetInt("num")
			gw, err := openGateway(cmd)
			if err != nil {
				return err
			}
			defer closeGateway(gw)

			rows := []experienceRow{}
			for _, e := range gw.History.Recent(num) {
				rows = append(rows, toRow(gw, e))
			}
			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), rows)
			}
			if len(rows) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No experiences yet.")
				return nil
			}
			for _, r := range rows {
				fmt.Fprintf(cmd.OutOrStdout(), "%5d  %s  %s\n", r.Rank, r.ID[:12], oneLine(r.Query, 60))
			}
			return nil
		},
	}
	cmd.Flags().IntP("num", "n", 10, "Number of experiences")
	return cmd
}

func newRateCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "rate <id> <up|down>",
		Short:     "Record feedback for an experience",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"up", "down"},
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			var positive bool
			switch args[1] {
			case "up", "+", "good":
				positive = true
			case "down", "-", "bad":
			default:
				return fmt.Errorf("rating must be up or down, got %q", args[1])
			}

			gw, err := openGateway(cmd)
			if err != nil {
				return err
			}
			defer closeGateway(gw)

			fb, ok, err := gw.Agent.Rate(cmd.Context(), id, positive)
			if err != nil {
				return err
			}
			if !ok {
				return errNotFound
			}
			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"id": id.String(), "positive": fb.Positive, "total": fb.Total, "score": fb.Score(),
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d/%d positive\n", id.Short(), fb.Positive, fb.Total)
			return nil
		},
	}
}

func newRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "remove <id>",
		Aliases: []string{"rm", "forget"},
		Short:   "Remove an experience",
		Long: `Remove an experience. Links pointing at it stay in place and are
skipped during retrieval.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			gw, err := openGateway(cmd)
			if err != nil {
				return err
			}
			defer closeGateway(gw)

			ok, err := gw.Agent.Forget(cmd.Context(), id)
			if err != nil {
				return err
			}
			if !ok {
				return errNotFound
			}
			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), map[string]string{"removed": id.String()})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", id.Short())
			return nil
		},
	}
}

func newGraphCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Write the link graph in Graphviz DOT format",
		RunE: func(cmd *cobra.Command, args []string) error {
			output, _ := cmd.Flags().GetString("output")
			gw, err := openGateway(cmd)
			if err != nil {
				return err
			}
			defer closeGateway(gw)

			if output == "" {
				return gw.History.WriteDOT(cmd.OutOrStdout())
			}
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", output, err)
			}
			defer f.Close()
			return gw.History.WriteDOT(f)
		},
	}
	cmd.Flags().StringP("output", "o", "", "Write to a file instead of stdout")
	return cmd
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show memory and process statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			gw, err := openGateway(cmd)
			if err != nil {
				return err
			}
			defer closeGateway(gw)

			st, err := gw.History.Stats()
			if err != nil {
				return err
			}
			info := system.GetInfo()
			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), map[string]any{"memory": st, "system": info})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "experiences:    %d\n", st.Experiences)
			fmt.Fprintf(out, "links:          %d (%d dangling)\n", st.Links, st.DanglingLinks)
			fmt.Fprintf(out, "reachable:      %d\n", st.Reachable)
			fmt.Fprintf(out, "next rank:      %d\n", st.NextRank)
			fmt.Fprintf(out, "dims:           %d\n", st.Dims)
			fmt.Fprintf(out, "process memory: %d MB alloc, %d MB sys\n", info.AllocMB, info.SysMB)
			return nil
		},
	}
}

func oneLine(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > n {
		return string(r[:n-1]) + "…"
	}
	return s
}
