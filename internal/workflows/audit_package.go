package workflows

import (
	"fmt"
	"time"

	"github.com/yokoszn/CreatureGRC/internal/activities"
	"github.com/yokoszn/CreatureGRC/internal/domain"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const defaultPeriodDays = 365

func AuditPackageWorkflow(ctx workflow.Context, input AuditPackageInput) (activities.AssemblePackageOutput, error) {
	logger := workflow.GetLogger(ctx)

	start, end := input.PeriodStart, input.PeriodEnd
	if end.IsZero() {
		end = domain.DateOf(workflow.Now(ctx))
	}
	if start.IsZero() {
		days := input.PeriodDays
		if days <= 0 {
			days = defaultPeriodDays
		}
		start = domain.AddDays(end, -days)
	}
	logger.Info("assembling audit package", "client", input.Client, "framework", input.Framework,
		"period_start", start.Format(time.DateOnly), "period_end", end.Format(time.DateOnly))

	actx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Minute,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 2},
	})
	var out activities.AssemblePackageOutput
	err := workflow.ExecuteActivity(actx, activities.AssemblePackageActivityName, activities.AssemblePackageInput{
		Client:      input.Client,
		Framework:   input.Framework,
		PeriodStart: start,
		PeriodEnd:   end,
	}).Get(ctx, &out)
	if err != nil {
		return out, err
	}

	msg := fmt.Sprintf("Audit package ready for %s (%s): %s", input.Client, input.Framework, out.ArchivePath)
	if out.IntegrityWarnings > 0 {
		msg += fmt.Sprintf(" with %d integrity warnings", out.IntegrityWarnings)
	}
	channel := input.NotifyChannel
	if channel == "" {
		channel = DefaultNotifyChannel
	}
	if err := workflow.ExecuteActivity(notifyContext(ctx), activities.NotifyActivityName, activities.NotifyInput{
		Message: msg,
		Channel: channel,
	}).Get(ctx, nil); err != nil {
		logger.Error("notify activity failed", "error", err)
	}
	return out, nil
}
