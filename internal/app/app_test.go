package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/yokoszn/CreatureGRC/internal/config"
	"github.com/yokoszn/CreatureGRC/internal/workflows"

	"go.temporal.io/sdk/client"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	return config.Config{
		BlobBackend:        "fs",
		EvidenceDir:        filepath.Join(dir, "evidence"),
		PackageDir:         filepath.Join(dir, "packages"),
		SourcesConfig:      filepath.Join(dir, "missing.yaml"),
		TaskQueue:          "grc-compliance",
		NotifyChannel:      "compliance",
		NotifyAlertChannel: "compliance-alerts",
		DueLimit:           50,
		LeaseTTL:           time.Minute,
		EvidenceWindowDays: 90,
	}
}

func TestOpenInMemoryMode(t *testing.T) {
	a, err := Open(context.Background(), testConfig(t))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer a.Close()
	if a.Mode != ModeMemory {
		t.Fatalf("expected memory mode, got %s", a.Mode)
	}
	if a.Notifier != nil {
		t.Fatalf("no notifier expected without targets")
	}
	acts := a.Activities()
	if acts.Notifier != nil || acts.DueLimit != 50 || acts.Collection == nil {
		t.Fatalf("unexpected activities %+v", acts)
	}
}

func TestOpenRejectsUnknownBlobBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.BlobBackend = "tape"
	if _, err := Open(context.Background(), cfg); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}

func TestOpenLoadsSources(t *testing.T) {
	cfg := testConfig(t)
	cfg.SourcesConfig = filepath.Join(t.TempDir(), "sources.yaml")
	doc := "framework: ISO27001\nnotify:\n  - channel: compliance\n    url: http://127.0.0.1:1/hook\ntests:\n  - control: A.8.15\n"
	if err := os.WriteFile(cfg.SourcesConfig, []byte(doc), 0o600); err != nil {
		t.Fatalf("write sources: %v", err)
	}
	a, err := Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer a.Close()
	if a.Sources.Framework != "ISO27001" || a.Notifier == nil {
		t.Fatalf("sources not applied: %+v", a.Sources)
	}
	if _, ok := a.Tester.Registry.Lookup("A.8.15"); !ok {
		t.Fatalf("configured test not registered")
	}
}

func TestImportCatalogEnrollsImplementedControls(t *testing.T) {
	a, err := Open(context.Background(), testConfig(t))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer a.Close()

	catalog := config.Catalog{
		Framework: "ISO27001",
		Domains: []config.CatalogDomain{{
			Code: "A.5",
			Name: "Organizational controls",
			Controls: []config.CatalogControl{
				{Code: "A.5.1", Name: "Policies", Implementation: &config.CatalogImplementation{Status: "implemented", Automation: "manual", Frequency: "quarterly"}},
				{Code: "A.5.2", Name: "Roles"},
			},
		}},
	}
	asOf := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	res, err := ImportCatalog(context.Background(), a.Scheduler, catalog, asOf)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if res.Controls != 2 || res.Implementations != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	due, err := a.Scheduler.DueControls(context.Background(), asOf, 10)
	if err != nil {
		t.Fatalf("due: %v", err)
	}
	if len(due) != 1 || due[0].ControlCode != "A.5.1" {
		t.Fatalf("expected A.5.1 due, got %+v", due)
	}

	if _, err := ImportCatalog(context.Background(), a.Scheduler, catalog, asOf); err != nil {
		t.Fatalf("re-import: %v", err)
	}

	catalog.Domains[0].Controls[0].Implementation.Frequency = "hourly"
	if _, err := ImportCatalog(context.Background(), a.Scheduler, catalog, asOf); err == nil {
		t.Fatalf("expected invalid frequency to fail")
	}
}

func TestSchedules(t *testing.T) {
	cfg := testConfig(t)
	sources := config.Sources{Framework: "ISO27001", Sources: []config.Source{{ID: "github", Timeout: 5 * time.Minute}}}

	opts := Schedules(cfg, sources, ScheduleSet{})
	if len(opts) != 2 {
		t.Fatalf("package schedule needs a client, got %d schedules", len(opts))
	}
	if opts[0].ID != CollectionScheduleID || opts[0].Spec.CronExpressions[0] != "0 2 * * *" {
		t.Fatalf("unexpected collection schedule %+v", opts[0])
	}

	opts = Schedules(cfg, sources, ScheduleSet{Client: "acme", PackageCron: "0 7 * * 1"})
	if len(opts) != 3 || opts[2].Spec.CronExpressions[0] != "0 7 * * 1" {
		t.Fatalf("unexpected schedules %+v", opts)
	}
	action, ok := opts[2].Action.(*client.ScheduleWorkflowAction)
	if !ok {
		t.Fatalf("unexpected action %T", opts[2].Action)
	}
	in, ok := action.Args[0].(workflows.AuditPackageInput)
	if !ok || in.Client != "acme" || in.Framework != "ISO27001" || action.TaskQueue != "grc-compliance" {
		t.Fatalf("unexpected package action %+v", action)
	}
}

func TestNotifyTargetsSkipsEmptyURL(t *testing.T) {
	targets := NotifyTargets([]config.NotifyTarget{{Channel: "a"}, {Channel: "b", URL: "http://example.com", Format: "slack"}})
	if len(targets) != 1 || targets[0].Channel != "b" || targets[0].Format != "slack" {
		t.Fatalf("unexpected targets %+v", targets)
	}
}
