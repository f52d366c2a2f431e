package cli

import (
	"fmt"

	"github.com/yokoszn/CreatureGRC/internal/app"
	"github.com/yokoszn/CreatureGRC/internal/config"

	"github.com/spf13/cobra"
)

func newScheduleCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Manage recurring workflow schedules",
	}
	var set app.ScheduleSet
	install := &cobra.Command{
		Use:   "install",
		Short: "Create the collection, testing and package schedules",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.config()
			sources, err := config.LoadSources(cfg.SourcesConfig)
			if err != nil {
				return fmt.Errorf("load sources: %w", err)
			}
			c, err := dialTemporal(cfg)
			if err != nil {
				return err
			}
			defer c.Close()

			schedules := app.Schedules(cfg, sources, set)
			created, err := app.InstallSchedules(cmd.Context(), c, schedules)
			for _, id := range created {
				fmt.Fprintf(cmd.OutOrStdout(), "created schedule %s\n", id)
			}
			if err != nil {
				return err
			}
			if skipped := len(schedules) - len(created); skipped > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "%d schedules already existed\n", skipped)
			}
			return nil
		},
	}
	install.Flags().StringVar(&set.Client, "client", "", "client for the weekly audit package (omit to skip)")
	install.Flags().StringVar(&set.Framework, "framework", "", "framework (default from sources config)")
	install.Flags().StringVar(&set.CollectionCron, "collection-cron", "", "collection cron (default 0 2 * * *)")
	install.Flags().StringVar(&set.TestingCron, "testing-cron", "", "testing cron (default 0 */6 * * *)")
	install.Flags().StringVar(&set.PackageCron, "package-cron", "", "package cron (default 0 6 * * 1)")
	cmd.AddCommand(install)
	return cmd
}
