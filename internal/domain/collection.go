package domain

import "time"

type SourceFailure struct {
	Source string `json:"source"`
	Error  string `json:"error"`
}

// SourceResult is what one successful collection job reports.
type SourceResult struct {
	Source        string   `json:"source"`
	EvidenceCount int      `json:"evidence_count"`
	Deduplicated  int      `json:"deduplicated"`
	EvidenceIDs   []string `json:"evidence_ids,omitempty"`
	ItemErrors    []string `json:"item_errors,omitempty"`
}

// CollectionSummary is produced by every collection run, including runs
// where some or all sources failed.
type CollectionSummary struct {
	Framework              string          `json:"framework"`
	TotalEvidenceCollected int             `json:"total_evidence_collected"`
	SuccessfulSources      int             `json:"successful_sources"`
	FailedSources          []SourceFailure `json:"failed_sources"`
	Results                []SourceResult  `json:"results,omitempty"`
	CompletedAt            time.Time       `json:"completed_at"`
}

func (s CollectionSummary) Degraded() bool {
	return len(s.FailedSources) > 0
}

type ControlTestingSummary struct {
	AsOf           time.Time           `json:"as_of"`
	ControlsTested int                 `json:"controls_tested"`
	Passed         int                 `json:"passed"`
	Failed         int                 `json:"failed"`
	Unverified     int                 `json:"unverified"`
	Results        []ControlTestResult `json:"results,omitempty"`
	CompletedAt    time.Time           `json:"completed_at"`
}
