package cli

import (
	"context"
	"fmt"

	"github.com/yokoszn/CreatureGRC/internal/app"
	"github.com/yokoszn/CreatureGRC/internal/config"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newControlsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "controls",
		Short: "Manage the control catalog",
	}

	importCmd := &cobra.Command{
		Use:   "import <catalog.yaml>",
		Short: "Import a framework catalog and its implementations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := config.LoadCatalog(args[0])
			if err != nil {
				return err
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				if a.Mode == app.ModeMemory {
					color.New(color.FgYellow).Fprintln(cmd.ErrOrStderr(), "warning: POSTGRES_DSN not set; the import is not persisted")
				}
				res, err := app.ImportCatalog(ctx, a.Scheduler, catalog, now().UTC())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "imported %d controls (%d implementations) for %s\n", res.Controls, res.Implementations, catalog.Framework)
				return nil
			})
		},
	}

	var (
		asOfFlag string
		limit    int
	)
	dueCmd := &cobra.Command{
		Use:   "due",
		Short: "List controls due for testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			asOf, err := parseDate("as-of", asOfFlag)
			if err != nil {
				return err
			}
			if asOf.IsZero() {
				asOf = now().UTC()
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				if limit <= 0 {
					limit = a.Config.DueLimit
				}
				due, err := a.Scheduler.DueControls(ctx, asOf, limit)
				if err != nil {
					return err
				}
				printDue(cmd.OutOrStdout(), due)
				return nil
			})
		},
	}
	dueCmd.Flags().StringVar(&asOfFlag, "as-of", "", "date YYYY-MM-DD (default today)")
	dueCmd.Flags().IntVar(&limit, "limit", 0, "maximum controls (default $DUE_LIMIT)")

	cmd.AddCommand(importCmd, dueCmd)
	return cmd
}
