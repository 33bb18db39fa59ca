package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"blogwire/internal/core"
	"blogwire/internal/persistence"

	"github.com/spf13/cobra"
)

// NewPostsCmd creates the post management commands
func NewPostsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "posts",
		Aliases: []string{"articles"},
		Short:   "List, delete, export and import articles",
	}
	cmd.AddCommand(newPostsListCmd())
	cmd.AddCommand(newPostsDeleteCmd())
	cmd.AddCommand(newPostsDeleteEmptyCmd())
	cmd.AddCommand(newPostsExportCmd())
	cmd.AddCommand(newPostsImportCmd())
	return cmd
}

func newPostsListCmd() *cobra.Command {
	var (
		status string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List articles, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := openDatabase(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			articles, err := db.Articles().List(ctx, persistence.ListOptions{Status: status, Limit: limit})
			if err != nil {
				return err
			}
			if len(articles) == 0 {
				fmt.Println("No articles found")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSLUG\tSTATUS\tWORDS\tVIEWS\tCREATED")
			for _, a := range articles {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
					a.ID, a.Slug, a.Status, a.WordCount, a.ViewCount, a.CreatedAt.Format("2006-01-02"))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by status (draft, published)")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum articles to show")
	return cmd
}

func newPostsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an article",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := openDatabase(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.Articles().Delete(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("Deleted article %s\n", args[0])
			return nil
		},
	}
}

func newPostsDeleteEmptyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete-empty",
		Short: "Delete articles with an empty body or zero word count",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := openDatabase(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			n, err := db.Articles().DeleteEmpty(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Deleted %d empty articles\n", n)
			return nil
		},
	}
}

func newPostsExportCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export all articles as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := openDatabase(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			w := io.Writer(os.Stdout)
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", output, err)
				}
				defer f.Close()
				w = f
			}

			n, err := exportArticles(ctx, db.Articles(), w)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Exported %d articles\n", n)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default stdout)")
	return cmd
}

func newPostsImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Import articles from a JSON export",
		Long: `Import articles from a file written by 'blogwire posts export'.

Articles whose slug already exists are skipped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", args[0], err)
			}
			defer f.Close()

			db, err := openDatabase(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			imported, skipped, err := importArticles(ctx, db.Articles(), f)
			if err != nil {
				return err
			}
			fmt.Printf("Imported %d articles, skipped %d existing\n", imported, skipped)
			return nil
		},
	}
}

func exportArticles(ctx context.Context, repo persistence.ArticleRepository, w io.Writer) (int, error) {
	articles, err := repo.List(ctx, persistence.ListOptions{})
	if err != nil {
		return 0, err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(articles); err != nil {
		return 0, fmt.Errorf("failed to encode articles: %w", err)
	}
	return len(articles), nil
}

func importArticles(ctx context.Context, repo persistence.ArticleRepository, r io.Reader) (imported, skipped int, err error) {
	var articles []core.Article
	if err := json.NewDecoder(r).Decode(&articles); err != nil {
		return 0, 0, fmt.Errorf("invalid export file: %w", err)
	}

	for i := range articles {
		a := &articles[i]
		if a.Slug == "" || a.Title == "" {
			return imported, skipped, fmt.Errorf("article %d has no title or slug: %w", i, core.ErrValidation)
		}
		exists, err := repo.SlugExists(ctx, a.Slug)
		if err != nil {
			return imported, skipped, err
		}
		if exists {
			skipped++
			continue
		}
		if err := repo.Create(ctx, a); err != nil {
			return imported, skipped, fmt.Errorf("failed to import %q: %w", a.Slug, err)
		}
		imported++
	}
	return imported, skipped, nil
}
