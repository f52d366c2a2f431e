package activities

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/yokoszn/CreatureGRC/internal/domain"
	"github.com/yokoszn/CreatureGRC/internal/infra/blobstore"
	"github.com/yokoszn/CreatureGRC/internal/infra/memstore"
	"github.com/yokoszn/CreatureGRC/internal/usecase"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"
)

type stubCollector struct {
	batch domain.EvidenceBatch
	err   error
}

func (c stubCollector) Collect(context.Context, int) (domain.EvidenceBatch, error) {
	return c.batch, c.err
}

type recordingNotifier struct {
	messages []string
	err      error
}

func (n *recordingNotifier) Notify(_ context.Context, message, channel string) error {
	n.messages = append(n.messages, channel+": "+message)
	return n.err
}

type fixture struct {
	acts *Activities
	mem  *memstore.Store
}

func newFixture(t *testing.T, sources map[string]usecase.SourceCollector) *fixture {
	t.Helper()
	blobs, err := blobstore.NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("blobs: %v", err)
	}
	mem := memstore.New()
	store := usecase.NewEvidenceStore(blobs, mem.Evidence())
	scheduler := usecase.NewScheduler(mem.Controls(), mem.Findings())
	tester := &usecase.ControlTester{Registry: usecase.NewTestRegistry(), Evidence: mem.Evidence()}
	return &fixture{
		mem: mem,
		acts: &Activities{
			Collection: &usecase.Collection{Store: store, Sources: sources},
			Scheduler:  scheduler,
			Tester:     tester,
			Testing:    &usecase.ControlTesting{Tester: tester, Scheduler: scheduler, Results: mem.TestResults()},
			Assembler: &usecase.Assembler{
				Controls: mem.Controls(),
				Evidence: mem.Evidence(),
				Findings: mem.Findings(),
				Packages: mem.Packages(),
				Blobs:    blobs,
			},
		},
	}
}

func newActivityEnv(acts *Activities) *testsuite.TestActivityEnvironment {
	suite := &testsuite.WorkflowTestSuite{}
	env := suite.NewTestActivityEnvironment()
	env.RegisterActivityWithOptions(acts.CollectSource, activity.RegisterOptions{Name: CollectSourceActivityName})
	env.RegisterActivityWithOptions(acts.DueControls, activity.RegisterOptions{Name: DueControlsActivityName})
	env.RegisterActivityWithOptions(acts.RunControlTest, activity.RegisterOptions{Name: RunControlTestActivityName})
	env.RegisterActivityWithOptions(acts.RecordTestResult, activity.RegisterOptions{Name: RecordTestResultActivityName})
	env.RegisterActivityWithOptions(acts.AssemblePackage, activity.RegisterOptions{Name: AssemblePackageActivityName})
	env.RegisterActivityWithOptions(acts.Notify, activity.RegisterOptions{Name: NotifyActivityName})
	return env
}

func TestCollectSourceStoresEvidence(t *testing.T) {
	f := newFixture(t, map[string]usecase.SourceCollector{
		"github": stubCollector{batch: domain.EvidenceBatch{Items: []domain.EvidenceItem{
			{ControlReference: "A.8.32", LogicalName: "branch-protection.json", Category: "github", Content: []byte(`{"protected":true}`)},
		}}},
	})
	env := newActivityEnv(f.acts)

	val, err := env.ExecuteActivity(CollectSourceActivityName, CollectSourceInput{Source: "github", LookbackDays: 1})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	var result domain.SourceResult
	if err := val.Get(&result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.EvidenceCount != 1 || len(result.EvidenceIDs) != 1 {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestCollectSourcePermanentErrorIsNonRetryable(t *testing.T) {
	f := newFixture(t, map[string]usecase.SourceCollector{
		"idp": stubCollector{err: &domain.PermanentSourceError{Source: "idp", Err: errors.New("401 unauthorized")}},
	})
	env := newActivityEnv(f.acts)

	_, err := env.ExecuteActivity(CollectSourceActivityName, CollectSourceInput{Source: "idp"})
	var appErr *temporal.ApplicationError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected application error, got %v", err)
	}
	if !appErr.NonRetryable() || appErr.Type() != ErrTypePermanentSource {
		t.Fatalf("expected non-retryable %s, got type=%s retryable=%v", ErrTypePermanentSource, appErr.Type(), !appErr.NonRetryable())
	}
}

func TestCollectSourceEmptyBatchWithErrorsIsRetryable(t *testing.T) {
	f := newFixture(t, map[string]usecase.SourceCollector{
		"siem": stubCollector{batch: domain.EvidenceBatch{Errors: []string{"timeout"}}},
	})
	env := newActivityEnv(f.acts)

	_, err := env.ExecuteActivity(CollectSourceActivityName, CollectSourceInput{Source: "siem"})
	var appErr *temporal.ApplicationError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected application error, got %v", err)
	}
	if appErr.NonRetryable() || appErr.Type() != ErrTypeTransientSource {
		t.Fatalf("expected retryable transient error, got type=%s", appErr.Type())
	}
}

func TestRecordTestResultSkipsMissingControl(t *testing.T) {
	f := newFixture(t, nil)
	env := newActivityEnv(f.acts)

	val, err := env.ExecuteActivity(RecordTestResultActivityName, RecordTestResultInput{Result: domain.ControlTestResult{
		ControlID:   "gone",
		ControlCode: "A.5.9",
		Passed:      true,
		TestedAt:    time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	var out RecordTestResultOutput
	if err := val.Get(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !out.Skipped {
		t.Fatalf("expected skipped output, got %+v", out)
	}
}

func TestRunAndRecordFailingTest(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	testedAt := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	control, err := f.acts.Scheduler.Enroll(ctx, domain.Control{Framework: "ISO27001", DomainCode: "A.8", DomainName: "Technological", Code: "A.8.8", Name: "Vulnerabilities"},
		domain.ControlImplementation{ImplementationStatus: domain.Implemented, TestingFrequency: domain.FrequencyMonthly}, testedAt)
	if err != nil {
		t.Fatalf("enroll: %v", err)
	}
	f.acts.Tester.Registry.Register("A.8.8", usecase.RequireRecentEvidence(7*domain.Day))
	env := newActivityEnv(f.acts)

	impl, err := f.mem.Controls().GetImplementation(ctx, control.ID)
	if err != nil {
		t.Fatalf("get impl: %v", err)
	}
	val, err := env.ExecuteActivity(RunControlTestActivityName, RunControlTestInput{Implementation: impl, TestedAt: testedAt})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	var result domain.ControlTestResult
	if err := val.Get(&result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Passed {
		t.Fatalf("expected failure without evidence")
	}

	for i := 0; i < 2; i++ {
		val, err = env.ExecuteActivity(RecordTestResultActivityName, RecordTestResultInput{Result: result})
		if err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	open, _ := f.mem.Findings().ListOpen(ctx, control.ID)
	if len(open) != 1 || open[0].Severity != domain.SeverityHigh {
		t.Fatalf("expected one high finding, got %+v", open)
	}
}

func TestAssemblePackageRejectsInvertedPeriod(t *testing.T) {
	f := newFixture(t, nil)
	env := newActivityEnv(f.acts)
	_, err := env.ExecuteActivity(AssemblePackageActivityName, AssemblePackageInput{
		Client:      "acme",
		Framework:   "ISO27001",
		PeriodStart: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	var appErr *temporal.ApplicationError
	if !errors.As(err, &appErr) || !appErr.NonRetryable() {
		t.Fatalf("expected non-retryable error, got %v", err)
	}
}

func TestNotifySwallowsDeliveryErrors(t *testing.T) {
	f := newFixture(t, nil)
	notifier := &recordingNotifier{err: errors.New("webhook down")}
	f.acts.Notifier = notifier
	env := newActivityEnv(f.acts)

	if _, err := env.ExecuteActivity(NotifyActivityName, NotifyInput{Message: "done", Channel: "compliance"}); err != nil {
		t.Fatalf("notify should not fail: %v", err)
	}
	if len(notifier.messages) != 1 || notifier.messages[0] != "compliance: done" {
		t.Fatalf("unexpected messages %v", notifier.messages)
	}
}
