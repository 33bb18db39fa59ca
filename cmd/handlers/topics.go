package handlers

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"blogwire/internal/core"
	"blogwire/internal/persistence"

	"github.com/spf13/cobra"
)

// NewTopicsCmd creates the topics command group
func NewTopicsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "topics",
		Short: "Inspect and seed the topic queue",
	}
	cmd.AddCommand(newTopicsListCmd())
	cmd.AddCommand(newTopicsAddCmd())
	return cmd
}

func newTopicsListCmd() *cobra.Command {
	var (
		status string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List topics, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := openDatabase(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			topics, err := db.Topics().List(ctx, persistence.ListOptions{Status: status, Limit: limit})
			if err != nil {
				return err
			}
			if len(topics) == 0 {
				fmt.Println("No topics found")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tKEYWORD\tSCORE\tSTATUS\tREASON\tDISCOVERED")
			for _, t := range topics {
				reason := ""
				if t.SkipReason != nil {
					reason = *t.SkipReason
				}
				fmt.Fprintf(w, "%s\t%s\t%.0f\t%s\t%s\t%s\n",
					shortID(t.ID), t.Keyword, t.TrendScore, t.Status, reason, t.DiscoveredAt.Format("2006-01-02 15:04"))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by status (pending, in_progress, completed, skipped)")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum topics to show")
	return cmd
}

func newTopicsAddCmd() *cobra.Command {
	var (
		score    float64
		category string
	)

	cmd := &cobra.Command{
		Use:   "add <keyword>",
		Short: "Queue a keyword as a pending topic",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := openDatabase(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			topic := &core.Topic{
				Keyword:    strings.Join(args, " "),
				TrendScore: score,
				Category:   category,
			}
			if err := db.Topics().Create(ctx, topic); err != nil {
				return err
			}
			fmt.Printf("Queued %q (%s)\n", topic.Keyword, topic.ID)
			return nil
		},
	}

	cmd.Flags().Float64Var(&score, "score", 50, "Trend score; higher scores are processed first")
	cmd.Flags().StringVar(&category, "category", "manual", "Topic category")
	return cmd
}
