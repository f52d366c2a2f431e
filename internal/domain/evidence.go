package domain

import (
	"fmt"
	"strings"
	"time"
)

type CollectionMethod string

const (
	CollectionAutomated CollectionMethod = "automated"
	CollectionManual    CollectionMethod = "manual"
)

type ReviewStatus string

const (
	ReviewPending  ReviewStatus = "pending"
	ReviewApproved ReviewStatus = "approved"
	ReviewRejected ReviewStatus = "rejected"
)

func (s ReviewStatus) Valid() bool {
	switch s {
	case ReviewPending, ReviewApproved, ReviewRejected:
		return true
	}
	return false
}

type EvidenceRecord struct {
	ID               string           `json:"id"`
	ControlReference string           `json:"control_reference"`
	SourceSystem     string           `json:"source_system"`
	EvidenceType     string           `json:"evidence_type,omitempty"`
	Name             string           `json:"name,omitempty"`
	CollectedAt      time.Time        `json:"collected_at"`
	PeriodStart      time.Time        `json:"period_start"`
	PeriodEnd        time.Time        `json:"period_end"`
	ContentHash      string           `json:"content_hash"`
	StoragePath      string           `json:"storage_path"`
	CollectionMethod CollectionMethod `json:"collection_method"`
	ReviewStatus     ReviewStatus     `json:"review_status"`
	Metadata         map[string]any   `json:"metadata,omitempty"`
}

func (r EvidenceRecord) Validate() error {
	switch {
	case strings.TrimSpace(r.ControlReference) == "":
		return fmt.Errorf("%w: control_reference is required", ErrInvalidEvidence)
	case strings.TrimSpace(r.SourceSystem) == "":
		return fmt.Errorf("%w: source_system is required", ErrInvalidEvidence)
	case len(r.ContentHash) != 64:
		return fmt.Errorf("%w: content_hash must be a sha256 hex digest", ErrInvalidEvidence)
	case r.StoragePath == "":
		return fmt.Errorf("%w: storage_path is required", ErrInvalidEvidence)
	case r.CollectionMethod != CollectionAutomated && r.CollectionMethod != CollectionManual:
		return fmt.Errorf("%w: collection_method %q", ErrInvalidEvidence, r.CollectionMethod)
	case !r.ReviewStatus.Valid():
		return fmt.Errorf("%w: review_status %q", ErrInvalidEvidence, r.ReviewStatus)
	case r.PeriodEnd.Before(r.PeriodStart):
		return fmt.Errorf("%w: period_end before period_start", ErrInvalidEvidence)
	}
	return nil
}

// EvidenceItem is one raw artifact produced by a source collector.
type EvidenceItem struct {
	ControlReference string
	LogicalName      string
	Category         string
	EvidenceType     string
	Content          []byte
	PeriodStart      time.Time
	PeriodEnd        time.Time
	Metadata         map[string]any
}

// EvidenceBatch is the result of one collector invocation. Errors lists
// per-item problems that did not stop the collector.
type EvidenceBatch struct {
	Items  []EvidenceItem
	Errors []string
}
