package db

import "time"

type ControlModel struct {
	ID          string    `gorm:"type:uuid;primaryKey"`
	Framework   string    `gorm:"not null;uniqueIndex:controls_framework_code"`
	DomainCode  string    `gorm:"not null"`
	DomainName  string    `gorm:"not null"`
	ControlCode string    `gorm:"not null;uniqueIndex:controls_framework_code"`
	ControlName string    `gorm:"not null"`
	Description string    `gorm:"not null;default:''"`
	CreatedAt   time.Time `gorm:"not null"`
}

func (ControlModel) TableName() string { return "controls" }

type ControlImplementationModel struct {
	ControlID            string     `gorm:"type:uuid;primaryKey"`
	ImplementationStatus string     `gorm:"not null"`
	AutomationLevel      string     `gorm:"not null;default:''"`
	TestingFrequency     string     `gorm:"not null;default:''"`
	LastTestDate         *time.Time `gorm:"type:date"`
	NextTestDate         *time.Time `gorm:"type:date;index"`
	UpdatedAt            time.Time  `gorm:"not null"`
}

func (ControlImplementationModel) TableName() string { return "control_implementations" }

type EvidenceModel struct {
	ID               string    `gorm:"type:uuid;primaryKey"`
	ControlReference string    `gorm:"not null;uniqueIndex:evidence_control_hash"`
	SourceSystem     string    `gorm:"not null"`
	EvidenceType     string    `gorm:"not null;default:''"`
	Name             string    `gorm:"not null;default:''"`
	CollectedAt      time.Time `gorm:"not null"`
	PeriodStart      time.Time `gorm:"not null"`
	PeriodEnd        time.Time `gorm:"not null"`
	ContentHash      string    `gorm:"not null;uniqueIndex:evidence_control_hash"`
	StoragePath      string    `gorm:"not null"`
	CollectionMethod string    `gorm:"not null"`
	ReviewStatus     string    `gorm:"not null"`
	Metadata         []byte    `gorm:"type:jsonb;not null"`
}

func (EvidenceModel) TableName() string { return "evidence" }

type ControlTestResultModel struct {
	ID           string    `gorm:"type:uuid;primaryKey"`
	ControlID    string    `gorm:"type:uuid;not null;uniqueIndex:test_results_control_day"`
	TestedOn     time.Time `gorm:"type:date;not null;uniqueIndex:test_results_control_day"`
	TestedAt     time.Time `gorm:"not null"`
	Passed       bool      `gorm:"not null"`
	Findings     []byte    `gorm:"type:jsonb;not null"`
	NextTestDate time.Time `gorm:"type:date;not null"`
	Metadata     []byte    `gorm:"type:jsonb;not null"`
}

func (ControlTestResultModel) TableName() string { return "control_test_results" }

type FindingModel struct {
	ID             string     `gorm:"type:uuid;primaryKey"`
	ControlID      string     `gorm:"type:uuid;not null;uniqueIndex:findings_control_day"`
	Title          string     `gorm:"not null"`
	Description    string     `gorm:"not null"`
	Severity       string     `gorm:"not null"`
	Status         string     `gorm:"not null"`
	IdentifiedDate time.Time  `gorm:"type:date;not null;uniqueIndex:findings_control_day"`
	DueDate        *time.Time `gorm:"type:date"`
}

func (FindingModel) TableName() string { return "findings" }

type AuditPackageModel struct {
	ID                string    `gorm:"type:uuid;primaryKey"`
	Client            string    `gorm:"not null"`
	Framework         string    `gorm:"not null"`
	PeriodStart       time.Time `gorm:"type:date;not null"`
	PeriodEnd         time.Time `gorm:"type:date;not null"`
	ManifestHash      string    `gorm:"not null"`
	EvidenceIDs       []byte    `gorm:"type:jsonb;not null"`
	IntegrityWarnings []byte    `gorm:"type:jsonb;not null"`
	Stats             []byte    `gorm:"type:jsonb;not null"`
	Directory         string    `gorm:"not null"`
	ArchivePath       string    `gorm:"not null"`
	CreatedAt         time.Time `gorm:"not null"`
}

func (AuditPackageModel) TableName() string { return "audit_packages" }
