package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/yokoszn/CreatureGRC/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ControlRepository struct {
	db *gorm.DB
}

func NewControlRepository(db *gorm.DB) *ControlRepository {
	return &ControlRepository{db: db}
}

// implementationRow is control_implementations joined with its control.
type implementationRow struct {
	ControlID            string
	ControlCode          string
	ControlName          string
	ImplementationStatus string
	AutomationLevel      string
	TestingFrequency     string
	LastTestDate         *time.Time
	NextTestDate         *time.Time
}

const implementationColumns = "ci.control_id, c.control_code, c.control_name, ci.implementation_status, " +
	"ci.automation_level, ci.testing_frequency, ci.last_test_date, ci.next_test_date"

func (r *ControlRepository) UpsertControl(ctx context.Context, control domain.Control) (domain.Control, error) {
	if r.db == nil {
		return domain.Control{}, errDBUnavailable
	}
	if control.Framework == "" || control.Code == "" {
		return domain.Control{}, domain.ErrInvalidControl
	}
	if control.ID == "" {
		control.ID = uuid.NewString()
	}
	model := ControlModel{
		ID:          control.ID,
		Framework:   control.Framework,
		DomainCode:  control.DomainCode,
		DomainName:  control.DomainName,
		ControlCode: control.Code,
		ControlName: control.Name,
		Description: control.Description,
		CreatedAt:   time.Now().UTC(),
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "framework"}, {Name: "control_code"}},
			DoUpdates: clause.AssignmentColumns([]string{"domain_code", "domain_name", "control_name", "description"}),
		}).
		Create(&model).Error
	if err != nil {
		return domain.Control{}, err
	}
	var stored ControlModel
	err = r.db.WithContext(ctx).
		Where("framework = ? AND control_code = ?", control.Framework, control.Code).
		First(&stored).Error
	if err != nil {
		return domain.Control{}, mapNotFound(err)
	}
	return fromControlModel(stored), nil
}

func (r *ControlRepository) UpsertImplementation(ctx context.Context, impl domain.ControlImplementation) error {
	if r.db == nil {
		return errDBUnavailable
	}
	if err := impl.Validate(); err != nil {
		return err
	}
	var control ControlModel
	if err := r.db.WithContext(ctx).Select("id").First(&control, "id = ?", impl.ControlID).Error; err != nil {
		return mapNotFound(err)
	}
	model := ControlImplementationModel{
		ControlID:            impl.ControlID,
		ImplementationStatus: string(impl.ImplementationStatus),
		AutomationLevel:      string(impl.AutomationLevel),
		TestingFrequency:     string(impl.TestingFrequency),
		LastTestDate:         datePtr(impl.LastTestDate),
		NextTestDate:         datePtr(impl.NextTestDate),
		UpdatedAt:            time.Now().UTC(),
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "control_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"implementation_status", "automation_level", "testing_frequency",
				"last_test_date", "next_test_date", "updated_at",
			}),
		}).
		Create(&model).Error
}

func (r *ControlRepository) GetImplementation(ctx context.Context, controlID string) (domain.ControlImplementation, error) {
	if r.db == nil {
		return domain.ControlImplementation{}, errDBUnavailable
	}
	if _, err := uuid.Parse(controlID); err != nil {
		return domain.ControlImplementation{}, domain.ErrNotFound
	}
	var rows []implementationRow
	err := r.implementations(ctx).Where("ci.control_id = ?", controlID).Limit(1).Scan(&rows).Error
	if err != nil {
		return domain.ControlImplementation{}, err
	}
	if len(rows) == 0 {
		return domain.ControlImplementation{}, domain.ErrNotFound
	}
	return rows[0].toDomain(), nil
}

func (r *ControlRepository) ListDue(ctx context.Context, asOf time.Time, limit int) ([]domain.ControlImplementation, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	query := r.implementations(ctx).
		Where("ci.implementation_status = ? AND ci.next_test_date <= ?", string(domain.Implemented), domain.DateOf(asOf)).
		Order("ci.next_test_date ASC, c.control_code ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var rows []implementationRow
	if err := query.Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.ControlImplementation, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

type frameworkRow struct {
	ID                   string
	Framework            string
	DomainCode           string
	DomainName           string
	ControlCode          string
	ControlName          string
	Description          string
	ImplementationStatus *string
	AutomationLevel      *string
	TestingFrequency     *string
	LastTestDate         *time.Time
	NextTestDate         *time.Time
}

func (r *ControlRepository) ListFramework(ctx context.Context, framework string) ([]domain.ControlView, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var rows []frameworkRow
	err := r.db.WithContext(ctx).
		Table("controls AS c").
		Select("c.id, c.framework, c.domain_code, c.domain_name, c.control_code, c.control_name, c.description, "+
			"ci.implementation_status, ci.automation_level, ci.testing_frequency, ci.last_test_date, ci.next_test_date").
		Joins("LEFT JOIN control_implementations AS ci ON ci.control_id = c.id").
		Where("c.framework = ?", framework).
		Order("c.domain_code ASC, c.control_code ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.ControlView, 0, len(rows))
	for _, row := range rows {
		view := domain.ControlView{Control: domain.Control{
			ID:          row.ID,
			Framework:   row.Framework,
			DomainCode:  row.DomainCode,
			DomainName:  row.DomainName,
			Code:        row.ControlCode,
			Name:        row.ControlName,
			Description: row.Description,
		}}
		if row.ImplementationStatus != nil {
			view.Implementation = &domain.ControlImplementation{
				ControlID:            row.ID,
				ControlCode:          row.ControlCode,
				ControlName:          row.ControlName,
				ImplementationStatus: domain.ImplementationStatus(*row.ImplementationStatus),
				AutomationLevel:      domain.AutomationLevel(deref(row.AutomationLevel)),
				TestingFrequency:     domain.TestingFrequency(deref(row.TestingFrequency)),
				LastTestDate:         datePtr(row.LastTestDate),
				NextTestDate:         datePtr(row.NextTestDate),
			}
		}
		out = append(out, view)
	}
	return out, nil
}

// RecordTest is guarded so a retried older test never moves dates back.
func (r *ControlRepository) RecordTest(ctx context.Context, controlID string, testedOn, nextTestDate time.Time) error {
	if r.db == nil {
		return errDBUnavailable
	}
	testedOn = domain.DateOf(testedOn)
	res := r.db.WithContext(ctx).
		Model(&ControlImplementationModel{}).
		Where("control_id = ? AND (last_test_date IS NULL OR last_test_date <= ?)", controlID, testedOn).
		Updates(map[string]any{
			"last_test_date": testedOn,
			"next_test_date": domain.DateOf(nextTestDate),
			"updated_at":     time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}
	var count int64
	if err := r.db.WithContext(ctx).Model(&ControlImplementationModel{}).Where("control_id = ?", controlID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *ControlRepository) implementations(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Table("control_implementations AS ci").
		Select(implementationColumns).
		Joins("JOIN controls AS c ON c.id = ci.control_id")
}

func (row implementationRow) toDomain() domain.ControlImplementation {
	return domain.ControlImplementation{
		ControlID:            row.ControlID,
		ControlCode:          row.ControlCode,
		ControlName:          row.ControlName,
		ImplementationStatus: domain.ImplementationStatus(row.ImplementationStatus),
		AutomationLevel:      domain.AutomationLevel(row.AutomationLevel),
		TestingFrequency:     domain.TestingFrequency(row.TestingFrequency),
		LastTestDate:         datePtr(row.LastTestDate),
		NextTestDate:         datePtr(row.NextTestDate),
	}
}

func fromControlModel(m ControlModel) domain.Control {
	return domain.Control{
		ID:          m.ID,
		Framework:   m.Framework,
		DomainCode:  m.DomainCode,
		DomainName:  m.DomainName,
		Code:        m.ControlCode,
		Name:        m.ControlName,
		Description: m.Description,
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
