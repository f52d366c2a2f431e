package domain

import (
	"fmt"
	"time"
)

type ImplementationStatus string

const (
	NotImplemented       ImplementationStatus = "not_implemented"
	PartiallyImplemented ImplementationStatus = "partially_implemented"
	Implemented          ImplementationStatus = "implemented"
)

type AutomationLevel string

const (
	AutomationManual         AutomationLevel = "manual"
	AutomationSemiAutomated  AutomationLevel = "semi_automated"
	AutomationFullyAutomated AutomationLevel = "fully_automated"
)

type TestingFrequency string

const (
	FrequencyDaily     TestingFrequency = "daily"
	FrequencyWeekly    TestingFrequency = "weekly"
	FrequencyMonthly   TestingFrequency = "monthly"
	FrequencyQuarterly TestingFrequency = "quarterly"
	FrequencyAnnually  TestingFrequency = "annually"
)

var frequencyOffsets = map[TestingFrequency]int{
	FrequencyDaily:     1,
	FrequencyWeekly:    7,
	FrequencyMonthly:   30,
	FrequencyQuarterly: 90,
	FrequencyAnnually:  365,
}

// FrequencyOffset is a fixed day count; no calendar-month arithmetic.
func FrequencyOffset(f TestingFrequency) (int, bool) {
	days, ok := frequencyOffsets[f]
	return days, ok
}

// NextTestDate derives the next due date. A failed test is always
// re-checked the following day.
func NextTestDate(f TestingFrequency, passed bool, testedAt time.Time) time.Time {
	if !passed {
		return AddDays(testedAt, 1)
	}
	days, ok := FrequencyOffset(f)
	if !ok {
		days = frequencyOffsets[FrequencyQuarterly]
	}
	return AddDays(testedAt, days)
}

// Control is a catalog entry of a framework.
type Control struct {
	ID          string `json:"id"`
	Framework   string `json:"framework"`
	DomainCode  string `json:"domain_code"`
	DomainName  string `json:"domain_name"`
	Code        string `json:"control_code"`
	Name        string `json:"control_name"`
	Description string `json:"description,omitempty"`
}

type ControlImplementation struct {
	ControlID            string               `json:"control_id"`
	ControlCode          string               `json:"control_code"`
	ControlName          string               `json:"control_name,omitempty"`
	ImplementationStatus ImplementationStatus `json:"implementation_status"`
	AutomationLevel      AutomationLevel      `json:"automation_level,omitempty"`
	LastTestDate         *time.Time           `json:"last_test_date,omitempty"`
	NextTestDate         *time.Time           `json:"next_test_date,omitempty"`
	TestingFrequency     TestingFrequency     `json:"testing_frequency,omitempty"`
}

func (c ControlImplementation) Validate() error {
	if c.ControlID == "" {
		return fmt.Errorf("%w: control_id is required", ErrInvalidControl)
	}
	switch c.ImplementationStatus {
	case NotImplemented, PartiallyImplemented, Implemented:
	default:
		return fmt.Errorf("%w: implementation_status %q", ErrInvalidControl, c.ImplementationStatus)
	}
	if c.TestingFrequency != "" {
		if _, ok := FrequencyOffset(c.TestingFrequency); !ok {
			return fmt.Errorf("%w: testing_frequency %q", ErrInvalidControl, c.TestingFrequency)
		}
	}
	if c.ImplementationStatus == Implemented && c.TestingFrequency == "" {
		return fmt.Errorf("%w: implemented control %s has no testing_frequency", ErrInvalidControl, c.ControlID)
	}
	if c.LastTestDate != nil && c.NextTestDate != nil && c.NextTestDate.Before(*c.LastTestDate) {
		return fmt.Errorf("%w: next_test_date before last_test_date", ErrInvalidControl)
	}
	return nil
}

// ControlView is a catalog row joined with its implementation, if any.
type ControlView struct {
	Control        Control
	Implementation *ControlImplementation
}

const (
	MetadataVerification       = "verification"
	VerificationNotIndependent = "not_independently_verified"
	VerificationGoTest         = "go_test"
	VerificationPolicy         = "policy"
	MetadataTestError          = "test_error"
)

type ControlTestResult struct {
	ControlID    string            `json:"control_id"`
	ControlCode  string            `json:"control_code"`
	Passed       bool              `json:"passed"`
	Findings     []string          `json:"findings"`
	TestedAt     time.Time         `json:"tested_at"`
	NextTestDate time.Time         `json:"next_test_date"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

func (r ControlTestResult) Unverified() bool {
	return r.Metadata[MetadataVerification] == VerificationNotIndependent
}
