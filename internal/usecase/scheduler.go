package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/yokoszn/CreatureGRC/internal/domain"
)

const DefaultDueLimit = 100

// Scheduler owns next_test_date. Nothing else writes it.
type Scheduler struct {
	Controls ControlRepository
	Findings FindingRepository
}

func NewScheduler(controls ControlRepository, findings FindingRepository) *Scheduler {
	return &Scheduler{Controls: controls, Findings: findings}
}

func (s *Scheduler) DueControls(ctx context.Context, asOf time.Time, limit int) ([]domain.ControlImplementation, error) {
	if limit <= 0 {
		limit = DefaultDueLimit
	}
	return s.Controls.ListDue(ctx, domain.DateOf(asOf), limit)
}

type RescheduleResult struct {
	NextTestDate   time.Time
	Finding        *domain.Finding
	FindingCreated bool
}

// Reschedule records a test outcome. A failure moves the control to the
// next day and upserts one high-severity finding per control and day.
func (s *Scheduler) Reschedule(ctx context.Context, controlID string, passed bool, testedAt time.Time, findings []string) (RescheduleResult, error) {
	impl, err := s.Controls.GetImplementation(ctx, controlID)
	if err != nil {
		return RescheduleResult{}, fmt.Errorf("load implementation %s: %w", controlID, err)
	}
	next := domain.NextTestDate(impl.TestingFrequency, passed, testedAt)
	if err := s.Controls.RecordTest(ctx, controlID, domain.DateOf(testedAt), next); err != nil {
		return RescheduleResult{}, fmt.Errorf("record test %s: %w", controlID, err)
	}
	res := RescheduleResult{NextTestDate: next}
	if passed {
		return res, nil
	}

	code := impl.ControlCode
	if code == "" {
		code = controlID
	}
	finding, created, err := s.Findings.Upsert(ctx, domain.Finding{
		ControlID:      controlID,
		Title:          "Automated test failed: " + code,
		Description:    strings.Join(findings, "\n"),
		Severity:       domain.SeverityHigh,
		Status:         domain.FindingOpen,
		IdentifiedDate: domain.DateOf(testedAt),
	})
	if err != nil {
		return res, fmt.Errorf("upsert finding %s: %w", controlID, err)
	}
	res.Finding = &finding
	res.FindingCreated = created
	return res, nil
}

// Enroll registers a catalog control with its implementation. An
// implemented control that has never been tested is due on asOf.
func (s *Scheduler) Enroll(ctx context.Context, control domain.Control, impl domain.ControlImplementation, asOf time.Time) (domain.Control, error) {
	stored, err := s.Controls.UpsertControl(ctx, control)
	if err != nil {
		return domain.Control{}, err
	}
	if impl.ImplementationStatus == "" {
		return stored, nil
	}
	impl.ControlID = stored.ID
	impl.ControlCode = stored.Code
	impl.ControlName = stored.Name

	existing, err := s.Controls.GetImplementation(ctx, stored.ID)
	switch {
	case err == nil:
		impl.LastTestDate = existing.LastTestDate
		impl.NextTestDate = existing.NextTestDate
		if impl.LastTestDate != nil && impl.TestingFrequency != existing.TestingFrequency {
			next := domain.NextTestDate(impl.TestingFrequency, true, *impl.LastTestDate)
			impl.NextTestDate = &next
		}
	case errors.Is(err, domain.ErrNotFound):
	default:
		return domain.Control{}, err
	}
	if impl.ImplementationStatus == domain.Implemented && impl.NextTestDate == nil {
		due := domain.DateOf(asOf)
		impl.NextTestDate = &due
	}
	if err := impl.Validate(); err != nil {
		return domain.Control{}, err
	}
	if err := s.Controls.UpsertImplementation(ctx, impl); err != nil {
		return domain.Control{}, err
	}
	return stored, nil
}
