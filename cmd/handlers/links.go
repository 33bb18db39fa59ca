package handlers

import (
	"fmt"
	"os"
	"text/tabwriter"

	"blogwire/internal/core"
	"blogwire/internal/persistence"

	"github.com/spf13/cobra"
)

// NewLinksCmd creates the affiliate link admin commands
func NewLinksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "links",
		Aliases: []string{"affiliate"},
		Short:   "Manage affiliate links",
	}
	cmd.AddCommand(newLinksListCmd())
	cmd.AddCommand(newLinksAddCmd())
	cmd.AddCommand(newLinksToggleCmd("enable", true))
	cmd.AddCommand(newLinksToggleCmd("disable", false))
	return cmd
}

func newLinksListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List affiliate links",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := openDatabase(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			links, err := db.AffiliateLinks().List(ctx, persistence.ListOptions{})
			if err != nil {
				return err
			}
			if len(links) == 0 {
				fmt.Println("No affiliate links")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tKEYWORD\tPLATFORM\tACTIVE\tINSERTED\tCLICKS\tURL")
			for _, l := range links {
				fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%d\t%d\t%s\n",
					l.ID, l.Keyword, l.Platform, l.Active, l.InsertCount, l.ClickCount, l.URL)
			}
			return w.Flush()
		},
	}
}

func newLinksAddCmd() *cobra.Command {
	var (
		platform string
		inactive bool
	)

	cmd := &cobra.Command{
		Use:   "add <keyword> <url>",
		Short: "Add an affiliate link",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := openDatabase(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			link := &core.AffiliateLink{
				Keyword:  args[0],
				URL:      args[1],
				Platform: platform,
				Active:   !inactive,
			}
			if err := db.AffiliateLinks().Create(ctx, link); err != nil {
				return err
			}
			fmt.Printf("Added link %s for %q\n", link.ID, link.Keyword)
			return nil
		},
	}

	cmd.Flags().StringVar(&platform, "platform", "", "Free text platform label (amazon, impact, ...)")
	cmd.Flags().BoolVar(&inactive, "inactive", false, "Create the link disabled")
	return cmd
}

func newLinksToggleCmd(use string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: fmt.Sprintf("Mark an affiliate link %sd", use),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := openDatabase(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.AffiliateLinks().SetActive(ctx, args[0], active); err != nil {
				return err
			}
			fmt.Printf("Link %s %sd\n", args[0], use)
			return nil
		},
	}
}
