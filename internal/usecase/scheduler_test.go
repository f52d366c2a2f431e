package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/yokoszn/CreatureGRC/internal/domain"
	"github.com/yokoszn/CreatureGRC/internal/infra/memstore"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func newTestScheduler(t *testing.T) (*Scheduler, *memstore.Store) {
	t.Helper()
	mem := memstore.New()
	return NewScheduler(mem.Controls(), mem.Findings()), mem
}

func enroll(t *testing.T, s *Scheduler, code string, freq domain.TestingFrequency, status domain.ImplementationStatus, asOf time.Time) domain.Control {
	t.Helper()
	control, err := s.Enroll(context.Background(), domain.Control{
		Framework:  "ISO27001",
		DomainCode: "A.5",
		Code:       code,
		Name:       "Control " + code,
	}, domain.ControlImplementation{
		ImplementationStatus: status,
		TestingFrequency:     freq,
	}, asOf)
	if err != nil {
		t.Fatalf("enroll %s: %v", code, err)
	}
	return control
}

func TestRescheduleQuarterlyIsFixedNinetyDays(t *testing.T) {
	s, _ := newTestScheduler(t)
	control := enroll(t, s, "A.5.1", domain.FrequencyQuarterly, domain.Implemented, date(2025, 1, 1))

	res, err := s.Reschedule(context.Background(), control.ID, true, date(2025, 1, 1).Add(9*time.Hour), nil)
	if err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	if want := date(2025, 4, 1); !res.NextTestDate.Equal(want) {
		t.Fatalf("next = %s, want %s", res.NextTestDate.Format(time.DateOnly), want.Format(time.DateOnly))
	}
	if res.Finding != nil {
		t.Fatalf("passing test must not create a finding")
	}
}

func TestRescheduleAlwaysMovesForward(t *testing.T) {
	testedAt := date(2025, 6, 15).Add(23 * time.Hour)
	for _, freq := range []domain.TestingFrequency{
		domain.FrequencyDaily, domain.FrequencyWeekly, domain.FrequencyMonthly,
		domain.FrequencyQuarterly, domain.FrequencyAnnually,
	} {
		for _, passed := range []bool{true, false} {
			s, _ := newTestScheduler(t)
			control := enroll(t, s, "C-"+string(freq), freq, domain.Implemented, testedAt)
			res, err := s.Reschedule(context.Background(), control.ID, passed, testedAt, []string{"x"})
			if err != nil {
				t.Fatalf("%s/%v: %v", freq, passed, err)
			}
			if !res.NextTestDate.After(testedAt) {
				t.Fatalf("%s/%v: next %s not after %s", freq, passed, res.NextTestDate, testedAt)
			}
			impl, _ := s.Controls.GetImplementation(context.Background(), control.ID)
			if impl.NextTestDate.Before(*impl.LastTestDate) {
				t.Fatalf("next before last for %s", freq)
			}
		}
	}
}

func TestRescheduleFailureOverridesFrequencyAndRaisesOneFinding(t *testing.T) {
	s, mem := newTestScheduler(t)
	control := enroll(t, s, "A.8.2", domain.FrequencyAnnually, domain.Implemented, date(2025, 2, 1))
	ctx := context.Background()
	testedAt := date(2025, 2, 1).Add(8 * time.Hour)

	first, err := s.Reschedule(ctx, control.ID, false, testedAt, []string{"Test failed: boom"})
	if err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	if want := date(2025, 2, 2); !first.NextTestDate.Equal(want) {
		t.Fatalf("next = %s, want %s", first.NextTestDate, want)
	}
	if !first.FindingCreated || first.Finding.Severity != domain.SeverityHigh {
		t.Fatalf("expected new high finding, got %+v", first.Finding)
	}

	second, err := s.Reschedule(ctx, control.ID, false, testedAt.Add(2*time.Hour), []string{"Test failed: boom"})
	if err != nil {
		t.Fatalf("rerun: %v", err)
	}
	if second.FindingCreated || second.Finding.ID != first.Finding.ID {
		t.Fatalf("rerun on the same day created a second finding")
	}
	open, _ := mem.Findings().ListOpen(ctx, control.ID)
	if len(open) != 1 {
		t.Fatalf("expected exactly one open finding, got %d", len(open))
	}
	if open[0].Title != "Automated test failed: A.8.2" || open[0].Description != "Test failed: boom" {
		t.Fatalf("unexpected finding %+v", open[0])
	}
}

func TestReschedulePassLeavesFindingsOpen(t *testing.T) {
	s, mem := newTestScheduler(t)
	control := enroll(t, s, "A.8.5", domain.FrequencyDaily, domain.Implemented, date(2025, 2, 1))
	ctx := context.Background()
	if _, err := s.Reschedule(ctx, control.ID, false, date(2025, 2, 1), []string{"no mfa"}); err != nil {
		t.Fatalf("fail: %v", err)
	}
	if _, err := s.Reschedule(ctx, control.ID, true, date(2025, 2, 2), nil); err != nil {
		t.Fatalf("pass: %v", err)
	}
	open, _ := mem.Findings().ListOpen(ctx, control.ID)
	if len(open) != 1 {
		t.Fatalf("pass must not resolve findings, got %d open", len(open))
	}
}

func TestRescheduleStaleRetryDoesNotRewindDates(t *testing.T) {
	s, _ := newTestScheduler(t)
	control := enroll(t, s, "A.5.9", domain.FrequencyWeekly, domain.Implemented, date(2025, 3, 1))
	ctx := context.Background()
	if _, err := s.Reschedule(ctx, control.ID, true, date(2025, 3, 10), nil); err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	if _, err := s.Reschedule(ctx, control.ID, true, date(2025, 3, 3), nil); err != nil {
		t.Fatalf("stale reschedule: %v", err)
	}
	impl, _ := s.Controls.GetImplementation(ctx, control.ID)
	if !impl.LastTestDate.Equal(date(2025, 3, 10)) || !impl.NextTestDate.Equal(date(2025, 3, 17)) {
		t.Fatalf("dates rewound: last=%s next=%s", impl.LastTestDate, impl.NextTestDate)
	}
}

func TestDueControlsOrderingAndFilter(t *testing.T) {
	s, _ := newTestScheduler(t)
	ctx := context.Background()
	late := enroll(t, s, "A.5.2", domain.FrequencyMonthly, domain.Implemented, date(2025, 1, 5))
	early := enroll(t, s, "A.5.3", domain.FrequencyMonthly, domain.Implemented, date(2025, 1, 2))
	enroll(t, s, "A.5.4", domain.FrequencyMonthly, domain.Implemented, date(2025, 2, 1))
	enroll(t, s, "A.5.5", domain.FrequencyMonthly, domain.PartiallyImplemented, date(2025, 1, 1))

	due, err := s.DueControls(ctx, date(2025, 1, 10), 10)
	if err != nil {
		t.Fatalf("due: %v", err)
	}
	if len(due) != 2 {
		t.Fatalf("expected 2 due controls, got %d", len(due))
	}
	if due[0].ControlID != early.ID || due[1].ControlID != late.ID {
		t.Fatalf("expected oldest-due first, got %s then %s", due[0].ControlCode, due[1].ControlCode)
	}

	limited, _ := s.DueControls(ctx, date(2025, 1, 10), 1)
	if len(limited) != 1 || limited[0].ControlID != early.ID {
		t.Fatalf("limit not applied: %+v", limited)
	}
}

func TestEnrollRejectsImplementedWithoutFrequency(t *testing.T) {
	s, _ := newTestScheduler(t)
	_, err := s.Enroll(context.Background(), domain.Control{Framework: "SOC2", Code: "CC6.1"}, domain.ControlImplementation{
		ImplementationStatus: domain.Implemented,
	}, date(2025, 1, 1))
	if err == nil {
		t.Fatalf("expected validation error")
	}
}
