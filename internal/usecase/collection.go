package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/yokoszn/CreatureGRC/internal/domain"
)

const defaultLeaseTTL = 30 * time.Minute

// Collection runs one source collector and stores what it returns. It is
// the body of a single collection job; fan-out belongs to the workflow.
type Collection struct {
	Store    *EvidenceStore
	Sources  map[string]SourceCollector
	Lease    SourceLease
	LeaseTTL time.Duration
}

// CollectSource is safe to re-execute: stored blobs and records are
// deduplicated by content, so a retry after partial success only fills
// in what is missing.
func (c *Collection) CollectSource(ctx context.Context, source string, lookbackDays int, owner string) (domain.SourceResult, error) {
	collector, ok := c.Sources[source]
	if !ok {
		return domain.SourceResult{}, &domain.PermanentSourceError{Source: source, Err: domain.ErrUnknownSource}
	}

	if c.Lease != nil {
		ttl := c.LeaseTTL
		if ttl <= 0 {
			ttl = defaultLeaseTTL
		}
		key := "collect:" + source
		acquired, err := c.Lease.Acquire(ctx, key, owner, ttl)
		if err != nil {
			return domain.SourceResult{}, &domain.TransientSourceError{Source: source, Err: fmt.Errorf("acquire lease: %w", err)}
		}
		if !acquired {
			return domain.SourceResult{}, &domain.TransientSourceError{Source: source, Err: domain.ErrSourceBusy}
		}
		defer func() {
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			_ = c.Lease.Release(releaseCtx, key, owner)
		}()
	}

	batch, err := collector.Collect(ctx, lookbackDays)
	if err != nil {
		return domain.SourceResult{}, classifySourceError(source, err)
	}
	if len(batch.Items) == 0 && len(batch.Errors) > 0 {
		return domain.SourceResult{}, &domain.TransientSourceError{Source: source, Err: errors.New(strings.Join(batch.Errors, "; "))}
	}

	result := domain.SourceResult{Source: source, ItemErrors: append([]string(nil), batch.Errors...)}
	var lastStorageErr error
	for _, item := range batch.Items {
		if err := ctx.Err(); err != nil {
			return domain.SourceResult{}, &domain.TransientSourceError{Source: source, Err: err}
		}
		rec, ref, err := c.Store.Store(ctx, source, domain.CollectionAutomated, item)
		if err != nil {
			if domain.IsStorageFailure(err) {
				lastStorageErr = err
			}
			result.ItemErrors = append(result.ItemErrors, fmt.Sprintf("%s: %v", item.LogicalName, err))
			continue
		}
		result.EvidenceCount++
		result.EvidenceIDs = append(result.EvidenceIDs, rec.ID)
		if ref.Deduplicated {
			result.Deduplicated++
		}
	}
	if result.EvidenceCount == 0 && lastStorageErr != nil {
		return domain.SourceResult{}, lastStorageErr
	}
	return result, nil
}

func classifySourceError(source string, err error) error {
	var transient *domain.TransientSourceError
	var permanent *domain.PermanentSourceError
	switch {
	case errors.As(err, &transient), errors.As(err, &permanent):
		return err
	case errors.Is(err, context.Canceled):
		return err
	}
	return &domain.TransientSourceError{Source: source, Err: err}
}

// SourceOutcome is the terminal state of one collection job.
type SourceOutcome struct {
	Source string
	Result domain.SourceResult
	Err    error
}

// SummarizeCollection aggregates job outcomes. It never fails; failed jobs
// are listed, not dropped.
func SummarizeCollection(framework string, outcomes []SourceOutcome, completedAt time.Time) domain.CollectionSummary {
	summary := domain.CollectionSummary{
		Framework:     framework,
		FailedSources: []domain.SourceFailure{},
		CompletedAt:   completedAt,
	}
	for _, o := range outcomes {
		if o.Err != nil {
			summary.FailedSources = append(summary.FailedSources, domain.SourceFailure{Source: o.Source, Error: o.Err.Error()})
			continue
		}
		summary.SuccessfulSources++
		summary.TotalEvidenceCollected += o.Result.EvidenceCount
		summary.Results = append(summary.Results, o.Result)
	}
	return summary
}

func FormatCollectionSummary(s domain.CollectionSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Evidence collection for %s: %d items from %d sources", s.Framework, s.TotalEvidenceCollected, s.SuccessfulSources)
	if len(s.FailedSources) > 0 {
		fmt.Fprintf(&b, ", %d failed:", len(s.FailedSources))
		for _, f := range s.FailedSources {
			fmt.Fprintf(&b, "\n- %s: %s", f.Source, f.Error)
		}
	}
	return b.String()
}

func FormatTestingSummary(s domain.ControlTestingSummary) string {
	msg := fmt.Sprintf("Control testing as of %s: %d tested, %d passed, %d failed",
		s.AsOf.Format(time.DateOnly), s.ControlsTested, s.Passed, s.Failed)
	if s.Unverified > 0 {
		msg += fmt.Sprintf(", %d passed without an independent test", s.Unverified)
	}
	for _, r := range s.Results {
		if !r.Passed {
			msg += fmt.Sprintf("\n- %s: %s", r.ControlCode, strings.Join(r.Findings, "; "))
		}
	}
	return msg
}
