package domain

import "time"

// IntegrityWarning flags evidence whose stored bytes are missing or no
// longer match the recorded hash. Assembly continues past it.
type IntegrityWarning struct {
	ControlCode string `json:"control_code"`
	EvidenceID  string `json:"evidence_id"`
	StoragePath string `json:"storage_path"`
	Expected    string `json:"expected_hash"`
	Actual      string `json:"actual_hash,omitempty"`
	Reason      string `json:"reason"`
}

func (w IntegrityWarning) Error() string {
	return "integrity warning: " + w.ControlCode + " evidence " + w.EvidenceID + ": " + w.Reason
}

type PackageControl struct {
	Control        Control               `json:"control"`
	Implementation ControlImplementation `json:"implementation"`
	Linked         bool                  `json:"linked"`
	Evidence       []EvidenceRecord      `json:"evidence"`
	OpenFindings   []Finding             `json:"open_findings"`
}

type PackageStats struct {
	TotalControls         int `json:"total_controls"`
	Implemented           int `json:"implemented"`
	PartiallyImplemented  int `json:"partially_implemented"`
	NotImplemented        int `json:"not_implemented"`
	FullyAutomated        int `json:"fully_automated"`
	EvidenceCount         int `json:"evidence_count"`
	OpenFindingCount      int `json:"open_finding_count"`
	IntegrityWarningCount int `json:"integrity_warning_count"`
}

type AuditPackage struct {
	ID                string             `json:"id"`
	Client            string             `json:"client"`
	Framework         string             `json:"framework"`
	Period            Period             `json:"period"`
	Controls          []PackageControl   `json:"controls"`
	ManifestHash      string             `json:"manifest_hash"`
	IntegrityWarnings []IntegrityWarning `json:"integrity_warnings,omitempty"`
	Stats             PackageStats       `json:"stats"`
	Directory         string             `json:"directory,omitempty"`
	ArchivePath       string             `json:"archive_path,omitempty"`
	CreatedAt         time.Time          `json:"created_at"`
}

// EvidenceIDs lists every referenced evidence record in package order.
func (p AuditPackage) EvidenceIDs() []string {
	var out []string
	for _, c := range p.Controls {
		for _, e := range c.Evidence {
			out = append(out, e.ID)
		}
	}
	return out
}
