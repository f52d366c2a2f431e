package usecase

import (
	"context"
	"io"
	"time"

	"github.com/yokoszn/CreatureGRC/internal/domain"
)

// BlobStore persists evidence bytes content-addressed by SHA-256.
type BlobStore interface {
	BlobReader
	Put(ctx context.Context, content io.Reader, logicalName, category string) (domain.BlobRef, error)
}

type EvidenceRepository interface {
	// Upsert inserts the record or returns the existing one with the same
	// (control_reference, content_hash).
	Upsert(ctx context.Context, rec domain.EvidenceRecord) (domain.EvidenceRecord, bool, error)
	Get(ctx context.Context, id string) (domain.EvidenceRecord, error)
	SetReviewStatus(ctx context.Context, id string, status domain.ReviewStatus) (domain.EvidenceRecord, error)
	ListApproved(ctx context.Context, controlCode string, period domain.Period) ([]domain.EvidenceRecord, error)
	ListRecent(ctx context.Context, controlCode string, since time.Time, limit int) ([]domain.EvidenceRecord, error)
}

type ControlRepository interface {
	UpsertControl(ctx context.Context, control domain.Control) (domain.Control, error)
	UpsertImplementation(ctx context.Context, impl domain.ControlImplementation) error
	GetImplementation(ctx context.Context, controlID string) (domain.ControlImplementation, error)
	// ListDue returns implemented controls due on or before asOf, oldest first.
	ListDue(ctx context.Context, asOf time.Time, limit int) ([]domain.ControlImplementation, error)
	// ListFramework returns the catalog of a framework ordered by
	// (domain_code, control_code), unlinked controls included.
	ListFramework(ctx context.Context, framework string) ([]domain.ControlView, error)
	// RecordTest moves last/next test dates forward. Older test dates never
	// overwrite newer ones.
	RecordTest(ctx context.Context, controlID string, testedOn, nextTestDate time.Time) error
}

type TestResultRepository interface {
	Upsert(ctx context.Context, result domain.ControlTestResult) error
}

type FindingRepository interface {
	// Upsert keyed on (control_id, identified_date); returns true when a new
	// finding was created.
	Upsert(ctx context.Context, finding domain.Finding) (domain.Finding, bool, error)
	ListOpen(ctx context.Context, controlID string) ([]domain.Finding, error)
}

type PackageRepository interface {
	Create(ctx context.Context, pkg domain.AuditPackage) error
}

type SourceCollector interface {
	Collect(ctx context.Context, lookbackDays int) (domain.EvidenceBatch, error)
}

// SourceLease keeps concurrent runs from collecting the same source twice.
type SourceLease interface {
	Acquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key, owner string) error
}

type PackageWriter interface {
	Write(ctx context.Context, pkg domain.AuditPackage, blobs BlobReader) (dir string, archive string, err error)
}

type BlobReader interface {
	Open(ctx context.Context, path string) (io.ReadCloser, error)
}
