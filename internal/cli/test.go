package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yokoszn/CreatureGRC/internal/app"
	"github.com/yokoszn/CreatureGRC/internal/domain"
	"github.com/yokoszn/CreatureGRC/internal/usecase"
	"github.com/yokoszn/CreatureGRC/internal/workflows"

	"github.com/spf13/cobra"
)

func newTestCmd(opts *rootOptions) *cobra.Command {
	var (
		asOfFlag string
		limit    int
		local    bool
		wait     bool
	)
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Test every control that is due",
		RunE: func(cmd *cobra.Command, args []string) error {
			asOf, err := parseDate("as-of", asOfFlag)
			if err != nil {
				return err
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				if limit <= 0 {
					limit = a.Config.DueLimit
				}
				if local {
					if asOf.IsZero() {
						asOf = now().UTC()
					}
					summary, err := TestLocal(ctx, a, asOf, limit)
					if err != nil {
						return err
					}
					printTesting(cmd.OutOrStdout(), summary)
					return nil
				}
				in := workflows.ControlTestingInput{
					AsOf:          asOf,
					Limit:         limit,
					NotifyChannel: a.Config.NotifyChannel,
					AlertChannel:  a.Config.NotifyAlertChannel,
				}
				var summary domain.ControlTestingSummary
				done, err := startWorkflow(ctx, cmd.OutOrStdout(), a.Config, workflows.ControlTestingWorkflowID(),
					workflows.ControlTestingWorkflow, in, &summary, wait)
				if err != nil || !done {
					return err
				}
				printTesting(cmd.OutOrStdout(), summary)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&asOfFlag, "as-of", "", "test date YYYY-MM-DD (default today)")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum controls to test (default $DUE_LIMIT)")
	cmd.Flags().BoolVar(&local, "local", false, "run in-process")
	cmd.Flags().BoolVar(&wait, "wait", false, "wait for the workflow result")
	return cmd
}

// TestLocal tests due controls in due order and records each result.
func TestLocal(ctx context.Context, a *app.App, asOf time.Time, limit int) (domain.ControlTestingSummary, error) {
	due, err := a.Scheduler.DueControls(ctx, asOf, limit)
	if err != nil {
		return domain.ControlTestingSummary{}, err
	}
	results := make([]domain.ControlTestResult, 0, len(due))
	for _, impl := range due {
		res, err := a.Tester.Run(ctx, impl, asOf)
		if err != nil {
			res = usecase.FailedTestResult(impl, asOf, err)
		}
		if _, err := a.Testing.Record(ctx, res); err != nil && !errors.Is(err, domain.ErrNotFound) {
			return domain.ControlTestingSummary{}, fmt.Errorf("record %s: %w", impl.ControlCode, err)
		}
		a.Metrics.ControlTest(res.Passed, res.Metadata[domain.MetadataVerification])
		results = append(results, res)
	}
	return usecase.SummarizeTests(asOf, results, now().UTC()), nil
}
