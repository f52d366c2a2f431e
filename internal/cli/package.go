package cli

import (
	"context"
	"errors"

	"github.com/yokoszn/CreatureGRC/internal/activities"
	"github.com/yokoszn/CreatureGRC/internal/app"
	"github.com/yokoszn/CreatureGRC/internal/domain"
	"github.com/yokoszn/CreatureGRC/internal/workflows"

	"github.com/spf13/cobra"
)

const defaultPackageDays = 365

func newPackageCmd(opts *rootOptions) *cobra.Command {
	var (
		clientName string
		framework  string
		startFlag  string
		endFlag    string
		local      bool
		wait       bool
	)
	cmd := &cobra.Command{
		Use:   "package",
		Short: "Assemble an audit package for a client and framework",
		RunE: func(cmd *cobra.Command, args []string) error {
			if clientName == "" {
				return errors.New("--client is required")
			}
			start, err := parseDate("start", startFlag)
			if err != nil {
				return err
			}
			end, err := parseDate("end", endFlag)
			if err != nil {
				return err
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				if framework == "" {
					framework = a.Sources.Framework
				}
				if local {
					if end.IsZero() {
						end = domain.DateOf(now())
					}
					if start.IsZero() {
						start = domain.AddDays(end, -defaultPackageDays)
					}
					period, err := domain.NewPeriod(start, end)
					if err != nil {
						return err
					}
					pkg, err := a.Assembler.Assemble(ctx, clientName, framework, period)
					if err != nil {
						return err
					}
					a.Metrics.PackageAssembled(len(pkg.IntegrityWarnings))
					printPackage(cmd.OutOrStdout(), activities.AssemblePackageOutput{
						PackageID:         pkg.ID,
						ManifestHash:      pkg.ManifestHash,
						Directory:         pkg.Directory,
						ArchivePath:       pkg.ArchivePath,
						Stats:             pkg.Stats,
						IntegrityWarnings: len(pkg.IntegrityWarnings),
					})
					return nil
				}
				in := workflows.AuditPackageInput{
					Client:        clientName,
					Framework:     framework,
					PeriodStart:   start,
					PeriodEnd:     end,
					NotifyChannel: a.Config.NotifyChannel,
				}
				var out activities.AssemblePackageOutput
				done, err := startWorkflow(ctx, cmd.OutOrStdout(), a.Config, workflows.AuditPackageWorkflowID(clientName, framework),
					workflows.AuditPackageWorkflow, in, &out, wait)
				if err != nil || !done {
					return err
				}
				printPackage(cmd.OutOrStdout(), out)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&clientName, "client", "", "client name")
	cmd.Flags().StringVar(&framework, "framework", "", "framework (default from sources config)")
	cmd.Flags().StringVar(&startFlag, "start", "", "period start YYYY-MM-DD (default end minus 365 days)")
	cmd.Flags().StringVar(&endFlag, "end", "", "period end YYYY-MM-DD (default today)")
	cmd.Flags().BoolVar(&local, "local", false, "assemble in-process")
	cmd.Flags().BoolVar(&wait, "wait", false, "wait for the workflow result")
	return cmd
}
