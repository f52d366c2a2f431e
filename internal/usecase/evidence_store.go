package usecase

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/yokoszn/CreatureGRC/internal/domain"
)

// EvidenceStore is the content-addressed evidence store: blobs first,
// metadata second.
type EvidenceStore struct {
	Blobs   BlobStore
	Records EvidenceRepository
	Now     func() time.Time
}

func NewEvidenceStore(blobs BlobStore, records EvidenceRepository) *EvidenceStore {
	return &EvidenceStore{Blobs: blobs, Records: records, Now: time.Now}
}

func (s *EvidenceStore) Put(ctx context.Context, content []byte, logicalName, category string) (domain.BlobRef, error) {
	if s == nil || s.Blobs == nil {
		return domain.BlobRef{}, &domain.StorageFailure{Op: "put", Err: domain.ErrStoreUnavailable}
	}
	if logicalName == "" {
		return domain.BlobRef{}, fmt.Errorf("%w: logical name is required", domain.ErrInvalidEvidence)
	}
	ref, err := s.Blobs.Put(ctx, bytes.NewReader(content), logicalName, category)
	if err != nil {
		if domain.IsStorageFailure(err) {
			return domain.BlobRef{}, err
		}
		return domain.BlobRef{}, &domain.StorageFailure{Op: "put", Path: logicalName, Err: err}
	}
	return ref, nil
}

// Record commits evidence metadata. Retries with the same control and
// content return the ID of the first record.
func (s *EvidenceStore) Record(ctx context.Context, rec domain.EvidenceRecord) (string, error) {
	if s == nil || s.Records == nil {
		return "", &domain.StorageFailure{Op: "record", Err: domain.ErrStoreUnavailable}
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CollectedAt.IsZero() {
		rec.CollectedAt = s.now()
	}
	rec.CollectedAt = rec.CollectedAt.UTC().Truncate(time.Microsecond)
	// A missing bound takes the other one; with neither, the period is the
	// collection instant.
	switch {
	case rec.PeriodStart.IsZero() && rec.PeriodEnd.IsZero():
		rec.PeriodStart, rec.PeriodEnd = rec.CollectedAt, rec.CollectedAt
	case rec.PeriodStart.IsZero():
		rec.PeriodStart = rec.PeriodEnd
	case rec.PeriodEnd.IsZero():
		rec.PeriodEnd = rec.CollectedAt
		if rec.PeriodEnd.Before(rec.PeriodStart) {
			rec.PeriodEnd = rec.PeriodStart
		}
	}
	if rec.CollectionMethod == "" {
		rec.CollectionMethod = domain.CollectionAutomated
	}
	if rec.ReviewStatus == "" {
		rec.ReviewStatus = domain.ReviewPending
	}
	if err := rec.Validate(); err != nil {
		return "", err
	}
	stored, _, err := s.Records.Upsert(ctx, rec)
	if err != nil {
		return "", &domain.StorageFailure{Op: "record", Path: rec.StoragePath, Err: err}
	}
	return stored.ID, nil
}

func (s *EvidenceStore) Get(ctx context.Context, id string) (domain.EvidenceRecord, error) {
	if s == nil || s.Records == nil {
		return domain.EvidenceRecord{}, domain.ErrStoreUnavailable
	}
	return s.Records.Get(ctx, id)
}

// Review applies the single allowed review transition out of pending.
func (s *EvidenceStore) Review(ctx context.Context, id string, status domain.ReviewStatus) (domain.EvidenceRecord, error) {
	if status != domain.ReviewApproved && status != domain.ReviewRejected {
		return domain.EvidenceRecord{}, fmt.Errorf("%w: review status %q", domain.ErrInvalidEvidence, status)
	}
	return s.Records.SetReviewStatus(ctx, id, status)
}

// Store puts the item bytes and records the metadata in that order.
func (s *EvidenceStore) Store(ctx context.Context, source string, method domain.CollectionMethod, item domain.EvidenceItem) (domain.EvidenceRecord, domain.BlobRef, error) {
	ref, err := s.Put(ctx, item.Content, item.LogicalName, item.Category)
	if err != nil {
		return domain.EvidenceRecord{}, domain.BlobRef{}, err
	}
	rec := domain.EvidenceRecord{
		ControlReference: item.ControlReference,
		SourceSystem:     source,
		EvidenceType:     item.EvidenceType,
		Name:             item.LogicalName,
		PeriodStart:      item.PeriodStart,
		PeriodEnd:        item.PeriodEnd,
		ContentHash:      ref.Hash,
		StoragePath:      ref.Path,
		CollectionMethod: method,
		Metadata:         item.Metadata,
	}
	id, err := s.Record(ctx, rec)
	if err != nil {
		return domain.EvidenceRecord{}, ref, err
	}
	rec.ID = id
	return rec, ref, nil
}

// Verify re-hashes the stored blob and compares it with want.
func (s *EvidenceStore) Verify(ctx context.Context, path, want string) (string, error) {
	return VerifyBlob(ctx, s.Blobs, path, want)
}

func VerifyBlob(ctx context.Context, blobs BlobReader, path, want string) (string, error) {
	if blobs == nil {
		return "", domain.ErrStoreUnavailable
	}
	rc, err := blobs.Open(ctx, path)
	if err != nil {
		return "", err
	}
	defer rc.Close()
	h := sha256.New()
	if _, err := io.Copy(h, rc); err != nil {
		return "", err
	}
	got := hex.EncodeToString(h.Sum(nil))
	if got != want {
		return got, fmt.Errorf("%w: expected %s, got %s", domain.ErrContentMismatch, want, got)
	}
	return got, nil
}

func (s *EvidenceStore) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}
