package workflows

import (
	"time"

	"github.com/yokoszn/CreatureGRC/internal/config"
)

const (
	QueryPhase   = "phase"
	QueryOutcome = "outcome"

	PhaseFetching    = "fetching"
	PhaseTesting     = "testing"
	PhaseUpdating    = "updating"
	PhaseSummarizing = "summarizing"
	PhaseTerminal    = "terminal"

	DefaultNotifyChannel = "compliance"
	DefaultAlertChannel  = "compliance-alerts"
)

type RetryConfig struct {
	MaximumAttempts    int32
	InitialInterval    time.Duration
	MaximumInterval    time.Duration
	BackoffCoefficient float64
}

type SourceSpec struct {
	ID      string
	Timeout time.Duration
}

type EvidenceCollectionInput struct {
	Framework     string
	Sources       []SourceSpec
	LookbackDays  int
	Retry         RetryConfig
	NotifyChannel string
}

type ControlTestingInput struct {
	// AsOf defaults to the workflow start time.
	AsOf          time.Time
	Limit         int
	NotifyChannel string
	AlertChannel  string
}

type AuditPackageInput struct {
	Client    string
	Framework string
	// PeriodStart and PeriodEnd default to the PeriodDays (365) days
	// ending on the run date.
	PeriodStart   time.Time
	PeriodEnd     time.Time
	PeriodDays    int
	NotifyChannel string
}

// CollectionInput builds the workflow input from the sources file.
func CollectionInput(s config.Sources, channel string) EvidenceCollectionInput {
	in := EvidenceCollectionInput{
		Framework:    s.Framework,
		LookbackDays: s.LookbackDays,
		Retry: RetryConfig{
			MaximumAttempts:    int32(s.Retry.MaxAttempts),
			InitialInterval:    s.Retry.InitialInterval,
			MaximumInterval:    s.Retry.MaxInterval,
			BackoffCoefficient: s.Retry.Backoff,
		},
		NotifyChannel: channel,
	}
	for _, src := range s.Sources {
		in.Sources = append(in.Sources, SourceSpec{ID: src.ID, Timeout: src.Timeout})
	}
	return in
}

func CollectionWorkflowID(framework string) string {
	return "evidence-collection:" + framework
}

func ControlTestingWorkflowID() string {
	return "control-testing"
}

func AuditPackageWorkflowID(client, framework string) string {
	return "audit-package:" + client + ":" + framework
}
