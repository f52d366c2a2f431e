package domain

import "time"

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Rank orders severities; unknown values sort last.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	}
	return 0
}

type FindingStatus string

const (
	FindingOpen       FindingStatus = "open"
	FindingInProgress FindingStatus = "in_progress"
	FindingResolved   FindingStatus = "resolved"
)

func (s FindingStatus) IsOpen() bool {
	return s == FindingOpen || s == FindingInProgress
}

type Finding struct {
	ID             string        `json:"id"`
	ControlID      string        `json:"control_id"`
	Title          string        `json:"title"`
	Description    string        `json:"description"`
	Severity       Severity      `json:"severity"`
	Status         FindingStatus `json:"status"`
	IdentifiedDate time.Time     `json:"identified_date"`
	DueDate        *time.Time    `json:"due_date,omitempty"`
}
