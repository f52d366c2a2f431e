package workflows

import (
	"errors"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const (
	defaultSourceTimeout = 10 * time.Minute
	notifyTimeout        = 30 * time.Second
)

func (r RetryConfig) policy() *temporal.RetryPolicy {
	if r.MaximumAttempts <= 0 {
		r.MaximumAttempts = 3
	}
	if r.InitialInterval <= 0 {
		r.InitialInterval = 10 * time.Second
	}
	if r.MaximumInterval <= 0 {
		r.MaximumInterval = 5 * time.Minute
	}
	if r.BackoffCoefficient < 1 {
		r.BackoffCoefficient = 2.0
	}
	return &temporal.RetryPolicy{
		InitialInterval:    r.InitialInterval,
		BackoffCoefficient: r.BackoffCoefficient,
		MaximumInterval:    r.MaximumInterval,
		MaximumAttempts:    r.MaximumAttempts,
	}
}

func notifyContext(ctx workflow.Context) workflow.Context {
	return workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: notifyTimeout,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    10 * time.Second,
			MaximumAttempts:    3,
		},
	})
}

// failureMessage strips the activity envelope so summaries carry the
// collector's own error text.
func failureMessage(err error) string {
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		return appErr.Message()
	}
	var timeoutErr *temporal.TimeoutError
	if errors.As(err, &timeoutErr) {
		return "timed out (" + timeoutErr.TimeoutType().String() + ")"
	}
	var canceledErr *temporal.CanceledError
	if errors.As(err, &canceledErr) {
		return "canceled"
	}
	return err.Error()
}
