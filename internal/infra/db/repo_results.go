package db

import (
	"context"

	"github.com/google/uuid"
	"github.com/yokoszn/CreatureGRC/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type TestResultRepository struct {
	db *gorm.DB
}

func NewTestResultRepository(db *gorm.DB) *TestResultRepository {
	return &TestResultRepository{db: db}
}

// Upsert keeps one row per control and day; the latest run of the day wins.
func (r *TestResultRepository) Upsert(ctx context.Context, result domain.ControlTestResult) error {
	if r.db == nil {
		return errDBUnavailable
	}
	findings, err := marshalJSON(result.Findings, "[]")
	if err != nil {
		return err
	}
	metadata, err := marshalJSON(result.Metadata, "{}")
	if err != nil {
		return err
	}
	model := ControlTestResultModel{
		ID:           uuid.NewString(),
		ControlID:    result.ControlID,
		TestedOn:     domain.DateOf(result.TestedAt),
		TestedAt:     result.TestedAt.UTC(),
		Passed:       result.Passed,
		Findings:     findings,
		NextTestDate: domain.DateOf(result.NextTestDate),
		Metadata:     metadata,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "control_id"}, {Name: "tested_on"}},
			DoUpdates: clause.AssignmentColumns([]string{"tested_at", "passed", "findings", "next_test_date", "metadata"}),
		}).
		Create(&model).Error
}

// ForControl lists stored results newest first.
func (r *TestResultRepository) ForControl(ctx context.Context, controlID string, limit int) ([]domain.ControlTestResult, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	query := r.db.WithContext(ctx).Where("control_id = ?", controlID).Order("tested_on DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var models []ControlTestResultModel
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.ControlTestResult, 0, len(models))
	for _, m := range models {
		findings, err := unmarshalJSON[[]string](m.Findings)
		if err != nil {
			return nil, err
		}
		metadata, err := unmarshalJSON[map[string]string](m.Metadata)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.ControlTestResult{
			ControlID:    m.ControlID,
			Passed:       m.Passed,
			Findings:     findings,
			TestedAt:     m.TestedAt.UTC(),
			NextTestDate: m.NextTestDate.UTC(),
			Metadata:     metadata,
		})
	}
	return out, nil
}
