package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/yokoszn/CreatureGRC/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type EvidenceRepository struct {
	db *gorm.DB
}

func NewEvidenceRepository(db *gorm.DB) *EvidenceRepository {
	return &EvidenceRepository{db: db}
}

func (r *EvidenceRepository) Upsert(ctx context.Context, rec domain.EvidenceRecord) (domain.EvidenceRecord, bool, error) {
	if r.db == nil {
		return domain.EvidenceRecord{}, false, errDBUnavailable
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	model, err := toEvidenceModel(rec)
	if err != nil {
		return domain.EvidenceRecord{}, false, err
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "control_reference"}, {Name: "content_hash"}},
			DoNothing: true,
		}).
		Create(&model)
	if res.Error != nil {
		return domain.EvidenceRecord{}, false, res.Error
	}
	if res.RowsAffected == 1 {
		return rec, true, nil
	}
	var existing EvidenceModel
	err = r.db.WithContext(ctx).
		Where("control_reference = ? AND content_hash = ?", rec.ControlReference, rec.ContentHash).
		First(&existing).Error
	if err != nil {
		return domain.EvidenceRecord{}, false, mapNotFound(err)
	}
	out, err := fromEvidenceModel(existing)
	return out, false, err
}

func (r *EvidenceRepository) Get(ctx context.Context, id string) (domain.EvidenceRecord, error) {
	if r.db == nil {
		return domain.EvidenceRecord{}, errDBUnavailable
	}
	if _, err := uuid.Parse(id); err != nil {
		return domain.EvidenceRecord{}, domain.ErrNotFound
	}
	var model EvidenceModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return domain.EvidenceRecord{}, mapNotFound(err)
	}
	return fromEvidenceModel(model)
}

// SetReviewStatus only moves records out of pending.
func (r *EvidenceRepository) SetReviewStatus(ctx context.Context, id string, status domain.ReviewStatus) (domain.EvidenceRecord, error) {
	if r.db == nil {
		return domain.EvidenceRecord{}, errDBUnavailable
	}
	current, err := r.Get(ctx, id)
	if err != nil {
		return domain.EvidenceRecord{}, err
	}
	res := r.db.WithContext(ctx).
		Model(&EvidenceModel{}).
		Where("id = ? AND review_status = ?", id, string(domain.ReviewPending)).
		Update("review_status", string(status))
	if res.Error != nil {
		return domain.EvidenceRecord{}, res.Error
	}
	if res.RowsAffected == 0 {
		latest, err := r.Get(ctx, id)
		if err != nil {
			return domain.EvidenceRecord{}, err
		}
		return latest, domain.ErrAlreadyReviewed
	}
	current.ReviewStatus = status
	return current, nil
}

func (r *EvidenceRepository) ListApproved(ctx context.Context, controlCode string, period domain.Period) ([]domain.EvidenceRecord, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	windowEnd := domain.DateOf(period.End).Add(domain.Day)
	var models []EvidenceModel
	err := r.db.WithContext(ctx).
		Where("control_reference = ? AND review_status = ?", controlCode, string(domain.ReviewApproved)).
		Where("period_start < ? AND period_end >= ?", windowEnd, domain.DateOf(period.Start)).
		Order("collected_at DESC, id ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return fromEvidenceModels(models)
}

func (r *EvidenceRepository) ListRecent(ctx context.Context, controlCode string, since time.Time, limit int) ([]domain.EvidenceRecord, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	query := r.db.WithContext(ctx).Where("collected_at >= ?", since)
	if controlCode != "" {
		query = query.Where("control_reference = ?", controlCode)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	var models []EvidenceModel
	if err := query.Order("collected_at DESC, id ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	return fromEvidenceModels(models)
}

func toEvidenceModel(rec domain.EvidenceRecord) (EvidenceModel, error) {
	metadata, err := marshalJSON(rec.Metadata, "{}")
	if err != nil {
		return EvidenceModel{}, err
	}
	return EvidenceModel{
		ID:               rec.ID,
		ControlReference: rec.ControlReference,
		SourceSystem:     rec.SourceSystem,
		EvidenceType:     rec.EvidenceType,
		Name:             rec.Name,
		CollectedAt:      rec.CollectedAt.UTC(),
		PeriodStart:      rec.PeriodStart.UTC(),
		PeriodEnd:        rec.PeriodEnd.UTC(),
		ContentHash:      rec.ContentHash,
		StoragePath:      rec.StoragePath,
		CollectionMethod: string(rec.CollectionMethod),
		ReviewStatus:     string(rec.ReviewStatus),
		Metadata:         metadata,
	}, nil
}

func fromEvidenceModel(m EvidenceModel) (domain.EvidenceRecord, error) {
	metadata, err := unmarshalJSON[map[string]any](m.Metadata)
	if err != nil {
		return domain.EvidenceRecord{}, err
	}
	if len(metadata) == 0 {
		metadata = nil
	}
	return domain.EvidenceRecord{
		ID:               m.ID,
		ControlReference: m.ControlReference,
		SourceSystem:     m.SourceSystem,
		EvidenceType:     m.EvidenceType,
		Name:             m.Name,
		CollectedAt:      m.CollectedAt.UTC(),
		PeriodStart:      m.PeriodStart.UTC(),
		PeriodEnd:        m.PeriodEnd.UTC(),
		ContentHash:      m.ContentHash,
		StoragePath:      m.StoragePath,
		CollectionMethod: domain.CollectionMethod(m.CollectionMethod),
		ReviewStatus:     domain.ReviewStatus(m.ReviewStatus),
		Metadata:         metadata,
	}, nil
}

func fromEvidenceModels(models []EvidenceModel) ([]domain.EvidenceRecord, error) {
	out := make([]domain.EvidenceRecord, 0, len(models))
	for _, m := range models {
		rec, err := fromEvidenceModel(m)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}
