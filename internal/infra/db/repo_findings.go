package db

import (
	"context"

	"github.com/google/uuid"
	"github.com/yokoszn/CreatureGRC/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const severityOrder = "CASE severity WHEN 'critical' THEN 4 WHEN 'high' THEN 3 WHEN 'medium' THEN 2 WHEN 'low' THEN 1 ELSE 0 END DESC"

type FindingRepository struct {
	db *gorm.DB
}

func NewFindingRepository(db *gorm.DB) *FindingRepository {
	return &FindingRepository{db: db}
}

func (r *FindingRepository) Upsert(ctx context.Context, finding domain.Finding) (domain.Finding, bool, error) {
	if r.db == nil {
		return domain.Finding{}, false, errDBUnavailable
	}
	if finding.ID == "" {
		finding.ID = uuid.NewString()
	}
	finding.IdentifiedDate = domain.DateOf(finding.IdentifiedDate)
	model := FindingModel{
		ID:             finding.ID,
		ControlID:      finding.ControlID,
		Title:          finding.Title,
		Description:    finding.Description,
		Severity:       string(finding.Severity),
		Status:         string(finding.Status),
		IdentifiedDate: finding.IdentifiedDate,
		DueDate:        datePtr(finding.DueDate),
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "control_id"}, {Name: "identified_date"}},
			DoNothing: true,
		}).
		Create(&model)
	if res.Error != nil {
		return domain.Finding{}, false, res.Error
	}
	if res.RowsAffected == 1 {
		return finding, true, nil
	}
	var existing FindingModel
	err := r.db.WithContext(ctx).
		Where("control_id = ? AND identified_date = ?", finding.ControlID, finding.IdentifiedDate).
		First(&existing).Error
	if err != nil {
		return domain.Finding{}, false, mapNotFound(err)
	}
	return fromFindingModel(existing), false, nil
}

func (r *FindingRepository) ListOpen(ctx context.Context, controlID string) ([]domain.Finding, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var models []FindingModel
	err := r.db.WithContext(ctx).
		Where("control_id = ? AND status IN ?", controlID, []string{string(domain.FindingOpen), string(domain.FindingInProgress)}).
		Order(severityOrder).
		Order("identified_date DESC, id ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.Finding, 0, len(models))
	for _, m := range models {
		out = append(out, fromFindingModel(m))
	}
	return out, nil
}

func (r *FindingRepository) SetStatus(ctx context.Context, id string, status domain.FindingStatus) error {
	if r.db == nil {
		return errDBUnavailable
	}
	res := r.db.WithContext(ctx).Model(&FindingModel{}).Where("id = ?", id).Update("status", string(status))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func fromFindingModel(m FindingModel) domain.Finding {
	return domain.Finding{
		ID:             m.ID,
		ControlID:      m.ControlID,
		Title:          m.Title,
		Description:    m.Description,
		Severity:       domain.Severity(m.Severity),
		Status:         domain.FindingStatus(m.Status),
		IdentifiedDate: domain.DateOf(m.IdentifiedDate),
		DueDate:        datePtr(m.DueDate),
	}
}
