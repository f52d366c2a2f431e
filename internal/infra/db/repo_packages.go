package db

import (
	"context"

	"github.com/yokoszn/CreatureGRC/internal/domain"

	"gorm.io/gorm"
)

type PackageRepository struct {
	db *gorm.DB
}

func NewPackageRepository(db *gorm.DB) *PackageRepository {
	return &PackageRepository{db: db}
}

// Create inserts a package row. Packages are never updated; every
// assembly gets its own row.
func (r *PackageRepository) Create(ctx context.Context, pkg domain.AuditPackage) error {
	if r.db == nil {
		return errDBUnavailable
	}
	evidenceIDs, err := marshalJSON(pkg.EvidenceIDs(), "[]")
	if err != nil {
		return err
	}
	warnings, err := marshalJSON(pkg.IntegrityWarnings, "[]")
	if err != nil {
		return err
	}
	stats, err := marshalJSON(pkg.Stats, "{}")
	if err != nil {
		return err
	}
	model := AuditPackageModel{
		ID:                pkg.ID,
		Client:            pkg.Client,
		Framework:         pkg.Framework,
		PeriodStart:       domain.DateOf(pkg.Period.Start),
		PeriodEnd:         domain.DateOf(pkg.Period.End),
		ManifestHash:      pkg.ManifestHash,
		EvidenceIDs:       evidenceIDs,
		IntegrityWarnings: warnings,
		Stats:             stats,
		Directory:         pkg.Directory,
		ArchivePath:       pkg.ArchivePath,
		CreatedAt:         pkg.CreatedAt.UTC(),
	}
	return r.db.WithContext(ctx).Create(&model).Error
}

// Get returns the stored package header; controls are not persisted and
// come back empty.
func (r *PackageRepository) Get(ctx context.Context, id string) (domain.AuditPackage, error) {
	if r.db == nil {
		return domain.AuditPackage{}, errDBUnavailable
	}
	var m AuditPackageModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return domain.AuditPackage{}, mapNotFound(err)
	}
	warnings, err := unmarshalJSON[[]domain.IntegrityWarning](m.IntegrityWarnings)
	if err != nil {
		return domain.AuditPackage{}, err
	}
	stats, err := unmarshalJSON[domain.PackageStats](m.Stats)
	if err != nil {
		return domain.AuditPackage{}, err
	}
	return domain.AuditPackage{
		ID:                m.ID,
		Client:            m.Client,
		Framework:         m.Framework,
		Period:            domain.Period{Start: m.PeriodStart.UTC(), End: m.PeriodEnd.UTC()},
		ManifestHash:      m.ManifestHash,
		IntegrityWarnings: warnings,
		Stats:             stats,
		Directory:         m.Directory,
		ArchivePath:       m.ArchivePath,
		CreatedAt:         m.CreatedAt.UTC(),
	}, nil
}
