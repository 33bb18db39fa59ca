package handlers

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"blogwire/internal/config"
	"blogwire/internal/pipeline"

	"github.com/spf13/cobra"
)

// NewRunCmd creates the run command that executes one publication cycle
func NewRunCmd() *cobra.Command {
	var (
		count      int
		noDiscover bool
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one publication cycle",
		Long: `Run one publication cycle.

The cycle discovers trending topics (unless --no-discover), then processes up to
--count pending topics, highest trend score first. Topics already covered by a
published article are skipped without a generation call. When nothing is pending
keywords from the fallback topics file are used instead.

Examples:
  # Publish the configured number of posts
  blogwire run

  # Publish three posts from topics already stored
  blogwire run --count 3 --no-discover`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := openDatabase(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			p, err := buildPipeline(ctx, db, nil)
			if err != nil {
				return err
			}
			defer p.Close()

			result, err := p.RunCycle(ctx, pipeline.CycleOptions{
				Count:    count,
				Discover: !noDiscover && config.Get().Trends.Enabled,
			})
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(result)
			}
			renderCycleReport(os.Stdout, result)
			return nil
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", 0, "Articles to attempt (default from content.posts_per_cycle)")
	cmd.Flags().BoolVar(&noDiscover, "no-discover", false, "Skip trend discovery and use stored topics only")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the cycle result as JSON")

	return cmd
}

// NewGenerateCmd creates the generate command for a single ad-hoc keyword
func NewGenerateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "generate <keyword>",
		Short: "Generate and publish one article for a keyword",
		Long: `Generate and publish one article for the given keyword, bypassing the topic store.

The keyword still goes through duplicate detection, link injection and imaging.

Example:
  blogwire generate "home espresso machines"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := openDatabase(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			p, err := buildPipeline(ctx, db, nil)
			if err != nil {
				return err
			}
			defer p.Close()

			outcome := p.GenerateOne(ctx, strings.Join(args, " "))
			fmt.Println(renderOutcome(outcome))
			if !outcome.Success() {
				return fmt.Errorf("article not published: %s", outcome.Reason)
			}
			return nil
		},
	}
}

// NewDiscoverCmd creates the discover command that only refreshes topics
func NewDiscoverCmd() *cobra.Command {
	var maxResults int

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Fetch trending topics and store the new ones",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := openDatabase(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			p, err := buildPipeline(ctx, db, nil)
			if err != nil {
				return err
			}
			defer p.Close()

			if maxResults <= 0 {
				maxResults = config.Get().Trends.MaxResults
			}
			saved, err := p.DiscoverTopics(ctx, maxResults)
			if err != nil {
				return err
			}

			fmt.Printf("Stored %d new topics\n", len(saved))
			for _, t := range saved {
				fmt.Printf("  %-40s score=%.0f volume=%d\n", t.Keyword, t.TrendScore, t.SearchVolume)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&maxResults, "max", 0, "Maximum topics to fetch (default from trends.max_results)")
	return cmd
}

func writeJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
