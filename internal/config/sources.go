package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	SourceKindHTTP = "http"
	SourceKindExec = "exec"
)

// Sources is the collection plan: which systems to pull evidence from,
// how long each may run, and how failed jobs are retried.
type Sources struct {
	Framework    string              `yaml:"framework"`
	LookbackDays int                 `yaml:"lookback_days"`
	Retry        RetryPolicy         `yaml:"retry"`
	Notify       []NotifyTarget      `yaml:"notify"`
	Sources      []Source            `yaml:"sources"`
	Tests        []ControlTestConfig `yaml:"tests"`
}

type RetryPolicy struct {
	MaxAttempts     int           `yaml:"max_attempts"`
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"`
	Backoff         float64       `yaml:"backoff"`
}

type NotifyTarget struct {
	Channel string            `yaml:"channel"`
	URL     string            `yaml:"url"`
	Format  string            `yaml:"format"`
	Headers map[string]string `yaml:"headers"`
}

type Source struct {
	ID       string            `yaml:"id"`
	Kind     string            `yaml:"kind"`
	Timeout  time.Duration     `yaml:"timeout"`
	BaseURL  string            `yaml:"base_url"`
	TokenEnv string            `yaml:"token_env"`
	Headers  map[string]string `yaml:"headers"`
	Evidence []EvidenceSpec    `yaml:"evidence"`
}

// EvidenceSpec describes one artifact a source yields. HTTP sources use
// Path (may contain {since}); exec sources run Command.
type EvidenceSpec struct {
	Control  string   `yaml:"control"`
	Name     string   `yaml:"name"`
	Category string   `yaml:"category"`
	Type     string   `yaml:"type"`
	Path     string   `yaml:"path"`
	Command  []string `yaml:"command"`
	// OKExitCodes lists non-zero exits that still produce a report, such
	// as scanners exiting 2 when rules fail.
	OKExitCodes []int `yaml:"ok_exit_codes"`
}

// ControlTestConfig binds a built-in test to a control code.
type ControlTestConfig struct {
	Control        string        `yaml:"control"`
	MaxEvidenceAge time.Duration `yaml:"max_evidence_age"`
}

const defaultMaxEvidenceAge = 30 * 24 * time.Hour

var defaultTimeouts = map[string]time.Duration{
	SourceKindHTTP: 5 * time.Minute,
	SourceKindExec: 30 * time.Minute,
}

func LoadSources(path string) (Sources, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Sources{}, err
	}
	return ParseSources(data)
}

func ParseSources(data []byte) (Sources, error) {
	var s Sources
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Sources{}, fmt.Errorf("parse sources: %w", err)
	}
	s.applyDefaults()
	if err := s.Validate(); err != nil {
		return Sources{}, err
	}
	return s, nil
}

func (s *Sources) applyDefaults() {
	if s.LookbackDays <= 0 {
		s.LookbackDays = 90
	}
	if s.Retry.MaxAttempts <= 0 {
		s.Retry.MaxAttempts = 3
	}
	if s.Retry.InitialInterval <= 0 {
		s.Retry.InitialInterval = 10 * time.Second
	}
	if s.Retry.MaxInterval <= 0 {
		s.Retry.MaxInterval = 5 * time.Minute
	}
	if s.Retry.Backoff < 1 {
		s.Retry.Backoff = 2.0
	}
	for i := range s.Tests {
		if s.Tests[i].MaxEvidenceAge <= 0 {
			s.Tests[i].MaxEvidenceAge = defaultMaxEvidenceAge
		}
	}
	for i := range s.Sources {
		src := &s.Sources[i]
		if src.Timeout <= 0 {
			src.Timeout = defaultTimeouts[src.Kind]
		}
		for j := range src.Evidence {
			if src.Evidence[j].Category == "" {
				src.Evidence[j].Category = src.ID
			}
		}
	}
}

func (s Sources) Validate() error {
	seen := make(map[string]bool, len(s.Sources))
	for _, src := range s.Sources {
		if src.ID == "" {
			return errors.New("source id is required")
		}
		if seen[src.ID] {
			return fmt.Errorf("duplicate source %q", src.ID)
		}
		seen[src.ID] = true
		if _, ok := defaultTimeouts[src.Kind]; !ok {
			return fmt.Errorf("source %s: unknown kind %q", src.ID, src.Kind)
		}
		if src.Kind == SourceKindHTTP && src.BaseURL == "" {
			return fmt.Errorf("source %s: base_url is required", src.ID)
		}
		if len(src.Evidence) == 0 {
			return fmt.Errorf("source %s: no evidence configured", src.ID)
		}
		for _, ev := range src.Evidence {
			if ev.Control == "" || ev.Name == "" {
				return fmt.Errorf("source %s: evidence needs control and name", src.ID)
			}
			if src.Kind == SourceKindExec && len(ev.Command) == 0 {
				return fmt.Errorf("source %s: evidence %s has no command", src.ID, ev.Name)
			}
		}
	}
	for _, t := range s.Tests {
		if t.Control == "" {
			return errors.New("test control is required")
		}
	}
	return nil
}

func (s Sources) IDs() []string {
	out := make([]string, 0, len(s.Sources))
	for _, src := range s.Sources {
		out = append(out, src.ID)
	}
	return out
}

func (s Sources) Timeouts() map[string]time.Duration {
	out := make(map[string]time.Duration, len(s.Sources))
	for _, src := range s.Sources {
		out[src.ID] = src.Timeout
	}
	return out
}
