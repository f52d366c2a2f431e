package cli

import (
	"context"

	"github.com/yokoszn/CreatureGRC/internal/app"
	"github.com/yokoszn/CreatureGRC/internal/domain"
	"github.com/yokoszn/CreatureGRC/internal/usecase"
	"github.com/yokoszn/CreatureGRC/internal/workflows"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newCollectCmd(opts *rootOptions) *cobra.Command {
	var (
		framework string
		local     bool
		wait      bool
	)
	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Collect evidence from every configured source",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				if framework == "" {
					framework = a.Sources.Framework
				}
				if local {
					printCollection(cmd.OutOrStdout(), CollectLocal(ctx, a, framework))
					return nil
				}
				in := workflows.CollectionInput(a.Sources, a.Config.NotifyChannel)
				in.Framework = framework
				var summary domain.CollectionSummary
				done, err := startWorkflow(ctx, cmd.OutOrStdout(), a.Config, workflows.CollectionWorkflowID(framework),
					workflows.EvidenceCollectionWorkflow, in, &summary, wait)
				if err != nil || !done {
					return err
				}
				printCollection(cmd.OutOrStdout(), summary)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&framework, "framework", "", "framework label (default from sources config)")
	cmd.Flags().BoolVar(&local, "local", false, "run in-process, one attempt per source")
	cmd.Flags().BoolVar(&wait, "wait", false, "wait for the workflow result")
	return cmd
}

// CollectLocal runs every source once, in parallel, under its configured
// timeout.
func CollectLocal(ctx context.Context, a *app.App, framework string) domain.CollectionSummary {
	owner := "grcctl-" + uuid.NewString()
	timeouts := a.Sources.Timeouts()
	ids := a.Sources.IDs()
	outcomes := make([]usecase.SourceOutcome, len(ids))

	var g errgroup.Group
	for i, id := range ids {
		g.Go(func() error {
			sctx, cancel := context.WithTimeout(ctx, timeouts[id])
			defer cancel()
			res, err := a.Collection.CollectSource(sctx, id, a.Sources.LookbackDays, owner)
			a.Metrics.SourceRun(id, err)
			outcomes[i] = usecase.SourceOutcome{Source: id, Result: res, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return usecase.SummarizeCollection(framework, outcomes, now().UTC())
}
