package workflows

import (
	"errors"

	"github.com/yokoszn/CreatureGRC/internal/activities"
	"github.com/yokoszn/CreatureGRC/internal/domain"
	"github.com/yokoszn/CreatureGRC/internal/usecase"

	"go.temporal.io/sdk/workflow"
)

// EvidenceCollectionWorkflow fans out one collection job per source and
// waits for all of them. Source failures are reported in the summary; the
// workflow itself only fails on cancellation.
func EvidenceCollectionWorkflow(ctx workflow.Context, input EvidenceCollectionInput) (domain.CollectionSummary, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("starting evidence collection", "framework", input.Framework, "sources", len(input.Sources))

	retry := input.Retry.policy()
	futures := make([]workflow.Future, len(input.Sources))
	for i, src := range input.Sources {
		timeout := src.Timeout
		if timeout <= 0 {
			timeout = defaultSourceTimeout
		}
		actx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
			StartToCloseTimeout: timeout,
			RetryPolicy:         retry,
		})
		futures[i] = workflow.ExecuteActivity(actx, activities.CollectSourceActivityName, activities.CollectSourceInput{
			Source:       src.ID,
			LookbackDays: input.LookbackDays,
		})
	}

	outcomes := make([]usecase.SourceOutcome, len(input.Sources))
	for i, src := range input.Sources {
		outcomes[i].Source = src.ID
		if err := futures[i].Get(ctx, &outcomes[i].Result); err != nil {
			logger.Warn("source failed", "source", src.ID, "error", err)
			outcomes[i].Err = errors.New(failureMessage(err))
		}
	}
	if err := ctx.Err(); err != nil {
		return domain.CollectionSummary{}, err
	}

	summary := usecase.SummarizeCollection(input.Framework, outcomes, workflow.Now(ctx).UTC())
	channel := input.NotifyChannel
	if channel == "" {
		channel = DefaultNotifyChannel
	}
	err := workflow.ExecuteActivity(notifyContext(ctx), activities.NotifyActivityName, activities.NotifyInput{
		Message: usecase.FormatCollectionSummary(summary),
		Channel: channel,
	}).Get(ctx, nil)
	if err != nil {
		logger.Error("notify activity failed", "error", err)
	}

	logger.Info("evidence collection complete",
		"framework", input.Framework,
		"evidence", summary.TotalEvidenceCollected,
		"successful_sources", summary.SuccessfulSources,
		"failed_sources", len(summary.FailedSources))
	return summary, nil
}
