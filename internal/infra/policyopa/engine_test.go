package policyopa

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/yokoszn/CreatureGRC/internal/domain"
	"github.com/yokoszn/CreatureGRC/internal/usecase"
)

const controlsPolicy = `package grc.controls

import rego.v1

covers := {"CC6.1", "A.8.15"}

deny contains {"control": "CC6.1", "message": "no MFA configuration evidence"} if {
	input.control_code == "CC6.1"
	count([e | some e in input.evidence; e.evidence_type == "mfa_config"]) == 0
}

deny contains {"control": "A.8.15", "message": sprintf("only %d log exports", [count(input.evidence)])} if {
	input.control_code == "A.8.15"
	count(input.evidence) < 2
}
`

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	engine, err := NewEngineFromModules(context.Background(), map[string]string{"controls.rego": controlsPolicy})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	return engine
}

func TestEngineCovers(t *testing.T) {
	engine := newTestEngine(t)
	if !engine.Covers("CC6.1") || !engine.Covers("A.8.15") || engine.Covers("CC7.1") {
		t.Fatalf("unexpected coverage %v", engine.Codes())
	}
}

func TestEngineEvaluate(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()
	asOf := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

	out, err := engine.Evaluate(ctx, "CC6.1", usecase.ControlTestInput{AsOf: asOf})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if out.Passed || len(out.Findings) != 1 || out.Findings[0] != "no MFA configuration evidence" {
		t.Fatalf("expected denial, got %+v", out)
	}

	out, err = engine.Evaluate(ctx, "CC6.1", usecase.ControlTestInput{
		AsOf:     asOf,
		Evidence: []domain.EvidenceRecord{{ID: "e1", EvidenceType: "mfa_config"}},
	})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !out.Passed || len(out.Findings) != 0 {
		t.Fatalf("expected pass, got %+v", out)
	}

	out, err = engine.Evaluate(ctx, "A.8.15", usecase.ControlTestInput{AsOf: asOf, Evidence: []domain.EvidenceRecord{{ID: "e1"}}})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if out.Passed || out.Findings[0] != "only 1 log exports" {
		t.Fatalf("unexpected outcome %+v", out)
	}
}

func TestEngineRejectsForbiddenBuiltins(t *testing.T) {
	policy := `package grc.controls

import rego.v1

covers := {"X"}

deny contains {"control": "X", "message": "down"} if {
	resp := http.send({"method": "GET", "url": "http://example.com"})
	resp.status_code != 200
}
`
	if _, err := NewEngineFromModules(context.Background(), map[string]string{"bad.rego": policy}); err == nil {
		t.Fatalf("expected http.send to be rejected")
	}
}

func TestNewEngineFromPath(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "controls.rego"), []byte(controlsPolicy), 0o600); err != nil {
		t.Fatalf("write policy: %v", err)
	}
	engine, err := NewEngineFromPath(context.Background(), dir)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	if !engine.Covers("CC6.1") {
		t.Fatalf("policy not loaded")
	}
}
