package handlers

import (
	"fmt"
	"io"
	"os"

	"blogwire/internal/persistence"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

// NewStatsCmd creates the stats command
func NewStatsCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show article and topic counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := openDatabase(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			stats, err := persistence.CollectStats(ctx, db)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(stats)
			}
			renderStats(os.Stdout, stats)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}

func renderStats(w io.Writer, s *persistence.Stats) {
	posts := fmt.Sprintf("%s\nTotal      %d\nPublished  %d\nDrafts     %d\nViews      %d",
		titleStyle.Render("Posts"), s.Articles.Total, s.Articles.Published, s.Articles.Drafts, s.Articles.TotalViews)
	topics := fmt.Sprintf("%s\nTotal        %d\nPending      %d\nIn progress  %d\nCompleted    %d\nSkipped      %d",
		titleStyle.Render("Topics"), s.Topics.Total, s.Topics.Pending, s.Topics.InProgress, s.Topics.Completed, s.Topics.Skipped)

	fmt.Fprintln(w, lipgloss.JoinHorizontal(lipgloss.Top, boxStyle.Render(posts), " ", boxStyle.Render(topics)))
}
