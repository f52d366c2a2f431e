package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/yokoszn/CreatureGRC/internal/domain"
)

const defaultEvidenceWindow = 90 * domain.Day

type ControlTestInput struct {
	Implementation domain.ControlImplementation `json:"implementation"`
	Evidence       []domain.EvidenceRecord      `json:"evidence"`
	AsOf           time.Time                    `json:"as_of"`
}

type ControlTestOutcome struct {
	Passed   bool
	Findings []string
}

type ControlTestFunc func(ctx context.Context, in ControlTestInput) (ControlTestOutcome, error)

// PolicyEvaluator runs declarative control tests, such as rego policies.
type PolicyEvaluator interface {
	Covers(controlCode string) bool
	Evaluate(ctx context.Context, controlCode string, in ControlTestInput) (ControlTestOutcome, error)
}

// TestRegistry maps control codes to test functions.
type TestRegistry struct {
	mu    sync.RWMutex
	funcs map[string]ControlTestFunc
}

func NewTestRegistry() *TestRegistry {
	return &TestRegistry{funcs: make(map[string]ControlTestFunc)}
}

func (r *TestRegistry) Register(controlCode string, fn ControlTestFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[controlCode] = fn
}

func (r *TestRegistry) Lookup(controlCode string) (ControlTestFunc, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[controlCode]
	return fn, ok
}

func (r *TestRegistry) Codes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	codes := make([]string, 0, len(r.funcs))
	for code := range r.funcs {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// RequireRecentEvidence fails a control that has no evidence collected
// within maxAge of the test time.
func RequireRecentEvidence(maxAge time.Duration) ControlTestFunc {
	return func(_ context.Context, in ControlTestInput) (ControlTestOutcome, error) {
		cutoff := in.AsOf.Add(-maxAge)
		for _, rec := range in.Evidence {
			if !rec.CollectedAt.Before(cutoff) && rec.ReviewStatus != domain.ReviewRejected {
				return ControlTestOutcome{
					Passed:   true,
					Findings: []string{fmt.Sprintf("Evidence %s collected %s", rec.Name, rec.CollectedAt.Format(time.RFC3339))},
				}, nil
			}
		}
		return ControlTestOutcome{
			Passed:   false,
			Findings: []string{fmt.Sprintf("No evidence for %s since %s", in.Implementation.ControlCode, cutoff.Format(time.DateOnly))},
		}, nil
	}
}

// ControlTester resolves and runs the test for one control. Lookup order:
// registered functions, then policies, then the default pass.
type ControlTester struct {
	Registry       *TestRegistry
	Policies       PolicyEvaluator
	Evidence       EvidenceRepository
	EvidenceWindow time.Duration
}

// Run never fails because of the test itself: errors and panics become a
// failed result. The error return is reserved for loading test input.
func (t *ControlTester) Run(ctx context.Context, impl domain.ControlImplementation, testedAt time.Time) (domain.ControlTestResult, error) {
	testedAt = testedAt.UTC()
	result := domain.ControlTestResult{
		ControlID:   impl.ControlID,
		ControlCode: impl.ControlCode,
		TestedAt:    testedAt,
		Findings:    []string{},
		Metadata:    map[string]string{},
	}

	fn, verification := t.resolve(impl.ControlCode)
	if fn == nil {
		result.Passed = true
		result.Metadata[domain.MetadataVerification] = domain.VerificationNotIndependent
		result.NextTestDate = domain.NextTestDate(impl.TestingFrequency, true, testedAt)
		return result, nil
	}

	in := ControlTestInput{Implementation: impl, AsOf: testedAt}
	if t.Evidence != nil {
		window := t.EvidenceWindow
		if window <= 0 {
			window = defaultEvidenceWindow
		}
		evidence, err := t.Evidence.ListRecent(ctx, impl.ControlCode, testedAt.Add(-window), 100)
		if err != nil {
			return domain.ControlTestResult{}, fmt.Errorf("load evidence for %s: %w", impl.ControlCode, err)
		}
		in.Evidence = evidence
	}

	result.Metadata[domain.MetadataVerification] = verification
	outcome, err := safeRun(ctx, fn, in)
	if err != nil {
		return FailedTestResult(impl, testedAt, err), nil
	}
	result.Passed = outcome.Passed
	if outcome.Findings != nil {
		result.Findings = outcome.Findings
	}
	result.NextTestDate = domain.NextTestDate(impl.TestingFrequency, result.Passed, testedAt)
	return result, nil
}

func (t *ControlTester) resolve(code string) (ControlTestFunc, string) {
	if fn, ok := t.Registry.Lookup(code); ok {
		return fn, domain.VerificationGoTest
	}
	if t.Policies != nil && t.Policies.Covers(code) {
		policies := t.Policies
		return func(ctx context.Context, in ControlTestInput) (ControlTestOutcome, error) {
			return policies.Evaluate(ctx, code, in)
		}, domain.VerificationPolicy
	}
	return nil, ""
}

func safeRun(ctx context.Context, fn ControlTestFunc, in ControlTestInput) (out ControlTestOutcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx, in)
}

// FailedTestResult is the result recorded when a test cannot complete.
func FailedTestResult(impl domain.ControlImplementation, testedAt time.Time, err error) domain.ControlTestResult {
	return domain.ControlTestResult{
		ControlID:    impl.ControlID,
		ControlCode:  impl.ControlCode,
		Passed:       false,
		Findings:     []string{"Test failed: " + err.Error()},
		TestedAt:     testedAt,
		NextTestDate: domain.AddDays(testedAt, 1),
		Metadata:     map[string]string{domain.MetadataTestError: err.Error()},
	}
}

// ControlTesting persists outcomes through the scheduler.
type ControlTesting struct {
	Tester    *ControlTester
	Scheduler *Scheduler
	Results   TestResultRepository
}

// Record is safe to repeat for the same control and day.
func (c *ControlTesting) Record(ctx context.Context, result domain.ControlTestResult) (RescheduleResult, error) {
	if err := c.Results.Upsert(ctx, result); err != nil {
		return RescheduleResult{}, fmt.Errorf("store test result %s: %w", result.ControlCode, err)
	}
	return c.Scheduler.Reschedule(ctx, result.ControlID, result.Passed, result.TestedAt, result.Findings)
}

func SummarizeTests(asOf time.Time, results []domain.ControlTestResult, completedAt time.Time) domain.ControlTestingSummary {
	summary := domain.ControlTestingSummary{
		AsOf:           asOf,
		ControlsTested: len(results),
		Results:        results,
		CompletedAt:    completedAt,
	}
	for _, r := range results {
		if r.Passed {
			summary.Passed++
		} else {
			summary.Failed++
		}
		if r.Unverified() {
			summary.Unverified++
		}
	}
	return summary
}
