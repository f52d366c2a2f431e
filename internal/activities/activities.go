package activities

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yokoszn/CreatureGRC/internal/domain"
	"github.com/yokoszn/CreatureGRC/internal/infra/metrics"
	"github.com/yokoszn/CreatureGRC/internal/usecase"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
)

const (
	CollectSourceActivityName    = "CollectSource"
	DueControlsActivityName      = "DueControls"
	RunControlTestActivityName   = "RunControlTest"
	RecordTestResultActivityName = "RecordTestResult"
	AssemblePackageActivityName  = "AssemblePackage"
	NotifyActivityName           = "Notify"
)

// Application error types surfaced to workflows.
const (
	ErrTypePermanentSource = "PermanentSourceError"
	ErrTypeTransientSource = "TransientSourceError"
	ErrTypeStorage         = "StorageFailure"
	ErrTypeInvalidInput    = "InvalidInput"
)

type Activities struct {
	Collection *usecase.Collection
	Scheduler  *usecase.Scheduler
	Tester     *usecase.ControlTester
	Testing    *usecase.ControlTesting
	Assembler  *usecase.Assembler
	Notifier   domain.Notifier
	Metrics    *metrics.Metrics
	DueLimit   int
}

type CollectSourceInput struct {
	Source       string
	LookbackDays int
}

type DueControlsInput struct {
	AsOf  time.Time
	Limit int
}

type RunControlTestInput struct {
	Implementation domain.ControlImplementation
	TestedAt       time.Time
}

type RecordTestResultInput struct {
	Result domain.ControlTestResult
}

type RecordTestResultOutput struct {
	NextTestDate   time.Time
	FindingID      string
	FindingCreated bool
	// Skipped is set when the control implementation no longer exists.
	Skipped bool
}

type AssemblePackageInput struct {
	Client      string
	Framework   string
	PeriodStart time.Time
	PeriodEnd   time.Time
}

type AssemblePackageOutput struct {
	PackageID         string
	ManifestHash      string
	Directory         string
	ArchivePath       string
	Stats             domain.PackageStats
	IntegrityWarnings int
}

type NotifyInput struct {
	Message string
	Channel string
}

// CollectSource runs one collection job. The lease owner is the workflow
// run, so retries of the same job reacquire their own lease.
func (a *Activities) CollectSource(ctx context.Context, input CollectSourceInput) (domain.SourceResult, error) {
	if a == nil || a.Collection == nil {
		return domain.SourceResult{}, temporal.NewNonRetryableApplicationError("collection not configured", ErrTypeInvalidInput, nil)
	}
	info := activity.GetInfo(ctx)
	logger := activity.GetLogger(ctx)
	owner := info.WorkflowExecution.RunID
	if owner == "" {
		owner = info.ActivityID
	}
	result, err := a.Collection.CollectSource(ctx, input.Source, input.LookbackDays, owner)
	a.Metrics.SourceRun(input.Source, err)
	if err != nil {
		logger.Warn("collection attempt failed", "source", input.Source, "attempt", info.Attempt, "error", err)
		return domain.SourceResult{}, toApplicationError(err)
	}
	a.Metrics.EvidenceStored(input.Source, result.EvidenceCount, result.Deduplicated)
	if len(result.ItemErrors) > 0 {
		logger.Warn("collection finished with item errors", "source", input.Source, "stored", result.EvidenceCount, "item_errors", len(result.ItemErrors))
	} else {
		logger.Info("collection finished", "source", input.Source, "stored", result.EvidenceCount, "deduplicated", result.Deduplicated)
	}
	return result, nil
}

func (a *Activities) DueControls(ctx context.Context, input DueControlsInput) ([]domain.ControlImplementation, error) {
	if a == nil || a.Scheduler == nil {
		return nil, temporal.NewNonRetryableApplicationError("scheduler not configured", ErrTypeInvalidInput, nil)
	}
	limit := input.Limit
	if limit <= 0 {
		limit = a.DueLimit
	}
	due, err := a.Scheduler.DueControls(ctx, input.AsOf, limit)
	if err != nil {
		return nil, err
	}
	activity.GetLogger(ctx).Info("controls due for testing", "count", len(due), "as_of", domain.DateOf(input.AsOf).Format(time.DateOnly))
	return due, nil
}

func (a *Activities) RunControlTest(ctx context.Context, input RunControlTestInput) (domain.ControlTestResult, error) {
	if a == nil || a.Tester == nil {
		return domain.ControlTestResult{}, temporal.NewNonRetryableApplicationError("control tester not configured", ErrTypeInvalidInput, nil)
	}
	logger := activity.GetLogger(ctx)
	result, err := a.Tester.Run(ctx, input.Implementation, input.TestedAt)
	if err != nil {
		return domain.ControlTestResult{}, err
	}
	if result.Unverified() {
		logger.Warn("no test registered for control; passing without independent verification", "control", input.Implementation.ControlCode)
	}
	a.Metrics.ControlTest(result.Passed, result.Metadata[domain.MetadataVerification])
	return result, nil
}

// RecordTestResult persists the result and moves the schedule forward. A
// control removed since it was fetched is skipped with a warning.
func (a *Activities) RecordTestResult(ctx context.Context, input RecordTestResultInput) (RecordTestResultOutput, error) {
	if a == nil || a.Testing == nil {
		return RecordTestResultOutput{}, temporal.NewNonRetryableApplicationError("control testing not configured", ErrTypeInvalidInput, nil)
	}
	logger := activity.GetLogger(ctx)
	res, err := a.Testing.Record(ctx, input.Result)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			logger.Warn("control implementation not found; skipping schedule update", "control", input.Result.ControlCode)
			return RecordTestResultOutput{Skipped: true}, nil
		}
		return RecordTestResultOutput{}, err
	}
	out := RecordTestResultOutput{NextTestDate: res.NextTestDate, FindingCreated: res.FindingCreated}
	if res.Finding != nil {
		out.FindingID = res.Finding.ID
	}
	return out, nil
}

func (a *Activities) AssemblePackage(ctx context.Context, input AssemblePackageInput) (AssemblePackageOutput, error) {
	if a == nil || a.Assembler == nil {
		return AssemblePackageOutput{}, temporal.NewNonRetryableApplicationError("assembler not configured", ErrTypeInvalidInput, nil)
	}
	period, err := domain.NewPeriod(input.PeriodStart, input.PeriodEnd)
	if err != nil {
		return AssemblePackageOutput{}, temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeInvalidInput, err)
	}
	pkg, err := a.Assembler.Assemble(ctx, input.Client, input.Framework, period)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidControl) || errors.Is(err, domain.ErrInvalidPeriod) {
			return AssemblePackageOutput{}, temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeInvalidInput, err)
		}
		return AssemblePackageOutput{}, err
	}
	a.Metrics.PackageAssembled(len(pkg.IntegrityWarnings))
	logger := activity.GetLogger(ctx)
	for _, w := range pkg.IntegrityWarnings {
		logger.Warn("integrity warning", "control", w.ControlCode, "evidence_id", w.EvidenceID, "reason", w.Reason)
	}
	logger.Info("audit package assembled", "package_id", pkg.ID, "manifest_hash", pkg.ManifestHash, "archive", pkg.ArchivePath)
	return AssemblePackageOutput{
		PackageID:         pkg.ID,
		ManifestHash:      pkg.ManifestHash,
		Directory:         pkg.Directory,
		ArchivePath:       pkg.ArchivePath,
		Stats:             pkg.Stats,
		IntegrityWarnings: len(pkg.IntegrityWarnings),
	}, nil
}

// Notify never fails the calling workflow; delivery errors are logged.
func (a *Activities) Notify(ctx context.Context, input NotifyInput) error {
	logger := activity.GetLogger(ctx)
	if a == nil || a.Notifier == nil {
		logger.Info("notification", "channel", input.Channel, "message", input.Message)
		return nil
	}
	if err := a.Notifier.Notify(ctx, input.Message, input.Channel); err != nil {
		a.Metrics.NotifyFailed()
		logger.Error("notification failed", "channel", input.Channel, "error", err)
	}
	return nil
}

func toApplicationError(err error) error {
	var perm *domain.PermanentSourceError
	var transient *domain.TransientSourceError
	switch {
	case errors.As(err, &perm):
		return temporal.NewNonRetryableApplicationError(err.Error(), ErrTypePermanentSource, err)
	case errors.As(err, &transient):
		return temporal.NewApplicationError(err.Error(), ErrTypeTransientSource, transient.Source)
	case domain.IsStorageFailure(err):
		return temporal.NewApplicationError(err.Error(), ErrTypeStorage)
	}
	return fmt.Errorf("collect: %w", err)
}
