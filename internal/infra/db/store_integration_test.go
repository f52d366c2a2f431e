//go:build integration
// +build integration

package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/yokoszn/CreatureGRC/internal/domain"
	"github.com/yokoszn/CreatureGRC/internal/infra/db/testdb"
)

func day(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

func seedControl(t *testing.T, store *Store, code string, freq domain.TestingFrequency, next string) domain.Control {
	t.Helper()
	ctx := context.Background()
	control, err := store.Controls().UpsertControl(ctx, domain.Control{
		Framework:  "ISO27001",
		DomainCode: "A.5",
		DomainName: "Organizational controls",
		Code:       code,
		Name:       "Control " + code,
	})
	if err != nil {
		t.Fatalf("upsert control: %v", err)
	}
	nextDate := day(next)
	err = store.Controls().UpsertImplementation(ctx, domain.ControlImplementation{
		ControlID:            control.ID,
		ImplementationStatus: domain.Implemented,
		TestingFrequency:     freq,
		NextTestDate:         &nextDate,
	})
	if err != nil {
		t.Fatalf("upsert implementation: %v", err)
	}
	return control
}

func TestEvidenceUpsertIsIdempotent(t *testing.T) {
	store := NewStoreFromDB(testdb.NewDatabase(t))
	ctx := context.Background()
	rec := domain.EvidenceRecord{
		ControlReference: "A.5.1",
		SourceSystem:     "github",
		CollectedAt:      day("2025-01-10"),
		PeriodStart:      day("2025-01-10"),
		PeriodEnd:        day("2025-01-10"),
		ContentHash:      "aa0000000000000000000000000000000000000000000000000000000000000a",
		StoragePath:      "github/aa/aa.json",
		CollectionMethod: domain.CollectionAutomated,
		ReviewStatus:     domain.ReviewPending,
		Metadata:         map[string]any{"repo": "grc"},
	}
	first, created, err := store.Evidence().Upsert(ctx, rec)
	if err != nil || !created {
		t.Fatalf("first upsert: created=%v err=%v", created, err)
	}
	second, created, err := store.Evidence().Upsert(ctx, rec)
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if created || second.ID != first.ID {
		t.Fatalf("expected original id %s, got %s (created=%v)", first.ID, second.ID, created)
	}

	if _, err := store.Evidence().SetReviewStatus(ctx, first.ID, domain.ReviewApproved); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := store.Evidence().SetReviewStatus(ctx, first.ID, domain.ReviewRejected); !errors.Is(err, domain.ErrAlreadyReviewed) {
		t.Fatalf("expected ErrAlreadyReviewed, got %v", err)
	}
	period, _ := domain.NewPeriod(day("2025-01-01"), day("2025-01-10"))
	approved, err := store.Evidence().ListApproved(ctx, "A.5.1", period)
	if err != nil || len(approved) != 1 {
		t.Fatalf("expected 1 approved record, got %d (%v)", len(approved), err)
	}
}

func TestRecordTestIgnoresOlderRetries(t *testing.T) {
	store := NewStoreFromDB(testdb.NewDatabase(t))
	ctx := context.Background()
	control := seedControl(t, store, "A.5.2", domain.FrequencyQuarterly, "2025-01-01")

	if err := store.Controls().RecordTest(ctx, control.ID, day("2025-02-01"), day("2025-05-02")); err != nil {
		t.Fatalf("record newer: %v", err)
	}
	if err := store.Controls().RecordTest(ctx, control.ID, day("2025-01-01"), day("2025-04-01")); err != nil {
		t.Fatalf("record older: %v", err)
	}
	impl, err := store.Controls().GetImplementation(ctx, control.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !impl.NextTestDate.Equal(day("2025-05-02")) {
		t.Fatalf("older retry moved next date to %s", impl.NextTestDate)
	}
	if impl.ControlCode != "A.5.2" {
		t.Fatalf("expected joined control code, got %q", impl.ControlCode)
	}
}

func TestListDueOrdersByNextDate(t *testing.T) {
	store := NewStoreFromDB(testdb.NewDatabase(t))
	ctx := context.Background()
	seedControl(t, store, "A.5.3", domain.FrequencyWeekly, "2025-01-05")
	seedControl(t, store, "A.5.4", domain.FrequencyWeekly, "2025-01-02")
	seedControl(t, store, "A.5.5", domain.FrequencyWeekly, "2025-02-01")

	due, err := store.Controls().ListDue(ctx, day("2025-01-10"), 10)
	if err != nil {
		t.Fatalf("list due: %v", err)
	}
	if len(due) != 2 || due[0].ControlCode != "A.5.4" || due[1].ControlCode != "A.5.3" {
		t.Fatalf("unexpected due list %+v", due)
	}
}

func TestFindingUpsertAndSeverityOrder(t *testing.T) {
	store := NewStoreFromDB(testdb.NewDatabase(t))
	ctx := context.Background()
	control := seedControl(t, store, "A.5.6", domain.FrequencyDaily, "2025-01-01")

	for _, f := range []domain.Finding{
		{ControlID: control.ID, Title: "low", Severity: domain.SeverityLow, Status: domain.FindingOpen, IdentifiedDate: day("2025-01-03")},
		{ControlID: control.ID, Title: "critical", Severity: domain.SeverityCritical, Status: domain.FindingInProgress, IdentifiedDate: day("2025-01-01")},
		{ControlID: control.ID, Title: "done", Severity: domain.SeverityHigh, Status: domain.FindingResolved, IdentifiedDate: day("2025-01-02")},
	} {
		if _, _, err := store.Findings().Upsert(ctx, f); err != nil {
			t.Fatalf("upsert finding: %v", err)
		}
	}
	_, created, err := store.Findings().Upsert(ctx, domain.Finding{ControlID: control.ID, Title: "dup", Severity: domain.SeverityHigh, Status: domain.FindingOpen, IdentifiedDate: day("2025-01-03")})
	if err != nil || created {
		t.Fatalf("expected same-day finding to be reused, created=%v err=%v", created, err)
	}

	open, err := store.Findings().ListOpen(ctx, control.ID)
	if err != nil {
		t.Fatalf("list open: %v", err)
	}
	if len(open) != 2 || open[0].Title != "critical" || open[1].Title != "low" {
		t.Fatalf("unexpected open findings %+v", open)
	}
}
