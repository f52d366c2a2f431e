package workflows

import (
	"time"

	"github.com/yokoszn/CreatureGRC/internal/activities"
	"github.com/yokoszn/CreatureGRC/internal/domain"
	"github.com/yokoszn/CreatureGRC/internal/usecase"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// ControlTestingWorkflow tests every due control in due order, records the
// outcomes and alerts when any control failed.
func ControlTestingWorkflow(ctx workflow.Context, input ControlTestingInput) (domain.ControlTestingSummary, error) {
	logger := workflow.GetLogger(ctx)
	phase := PhaseFetching
	var summary domain.ControlTestingSummary
	if err := workflow.SetQueryHandler(ctx, QueryPhase, func() (string, error) {
		return phase, nil
	}); err != nil {
		return summary, err
	}
	if err := workflow.SetQueryHandler(ctx, QueryOutcome, func() (domain.ControlTestingSummary, error) {
		return summary, nil
	}); err != nil {
		return summary, err
	}

	asOf := input.AsOf
	if asOf.IsZero() {
		asOf = workflow.Now(ctx)
	}
	asOf = asOf.UTC()

	fetchCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 3},
	})
	var due []domain.ControlImplementation
	err := workflow.ExecuteActivity(fetchCtx, activities.DueControlsActivityName, activities.DueControlsInput{
		AsOf:  asOf,
		Limit: input.Limit,
	}).Get(ctx, &due)
	if err != nil {
		return summary, err
	}
	logger.Info("controls due for testing", "count", len(due))

	phase = PhaseTesting
	testCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 15 * time.Minute,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 2},
	})
	results := make([]domain.ControlTestResult, 0, len(due))
	for _, impl := range due {
		var result domain.ControlTestResult
		err := workflow.ExecuteActivity(testCtx, activities.RunControlTestActivityName, activities.RunControlTestInput{
			Implementation: impl,
			TestedAt:       asOf,
		}).Get(ctx, &result)
		if err != nil {
			if ctx.Err() != nil {
				return summary, ctx.Err()
			}
			logger.Warn("control test failed", "control", impl.ControlCode, "error", err)
			result = usecase.FailedTestResult(impl, asOf, err)
		}
		results = append(results, result)
	}

	phase = PhaseUpdating
	updateCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    5,
		},
	})
	for _, result := range results {
		var out activities.RecordTestResultOutput
		err := workflow.ExecuteActivity(updateCtx, activities.RecordTestResultActivityName, activities.RecordTestResultInput{
			Result: result,
		}).Get(ctx, &out)
		if err != nil {
			return summary, err
		}
		if out.FindingCreated {
			logger.Info("finding opened", "control", result.ControlCode, "finding_id", out.FindingID)
		}
	}

	phase = PhaseSummarizing
	summary = usecase.SummarizeTests(asOf, results, workflow.Now(ctx).UTC())
	if summary.Failed > 0 {
		channel := input.AlertChannel
		if channel == "" {
			channel = DefaultAlertChannel
		}
		err := workflow.ExecuteActivity(notifyContext(ctx), activities.NotifyActivityName, activities.NotifyInput{
			Message: usecase.FormatTestingSummary(summary),
			Channel: channel,
		}).Get(ctx, nil)
		if err != nil {
			logger.Error("notify activity failed", "error", err)
		}
	}
	if summary.Unverified > 0 {
		logger.Warn("controls passed without an independent test", "count", summary.Unverified)
	}

	phase = PhaseTerminal
	return summary, nil
}
