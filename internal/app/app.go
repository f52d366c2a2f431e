// Package app wires configuration into the stores and services shared by
// the worker, the API daemon and the CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/yokoszn/CreatureGRC/internal/activities"
	"github.com/yokoszn/CreatureGRC/internal/config"
	"github.com/yokoszn/CreatureGRC/internal/domain"
	"github.com/yokoszn/CreatureGRC/internal/infra/blobstore"
	"github.com/yokoszn/CreatureGRC/internal/infra/bundles"
	"github.com/yokoszn/CreatureGRC/internal/infra/collectors"
	"github.com/yokoszn/CreatureGRC/internal/infra/db"
	"github.com/yokoszn/CreatureGRC/internal/infra/lease"
	"github.com/yokoszn/CreatureGRC/internal/infra/memstore"
	"github.com/yokoszn/CreatureGRC/internal/infra/metrics"
	"github.com/yokoszn/CreatureGRC/internal/infra/notify"
	"github.com/yokoszn/CreatureGRC/internal/infra/policyopa"
	"github.com/yokoszn/CreatureGRC/internal/usecase"
)

const (
	ModeDB     = "db"
	ModeMemory = "memory"

	leasePrefix = "grc:lease:"
)

// PackageRepository stores and reads back assembled packages.
type PackageRepository interface {
	usecase.PackageRepository
	Get(ctx context.Context, id string) (domain.AuditPackage, error)
}

type repositories struct {
	evidence usecase.EvidenceRepository
	controls usecase.ControlRepository
	results  usecase.TestResultRepository
	findings usecase.FindingRepository
	packages PackageRepository
}

type App struct {
	Config  config.Config
	Sources config.Sources
	// Mode is ModeDB when POSTGRES_DSN is set, ModeMemory otherwise.
	Mode string

	Evidence   *usecase.EvidenceStore
	Scheduler  *usecase.Scheduler
	Tester     *usecase.ControlTester
	Testing    *usecase.ControlTesting
	Assembler  *usecase.Assembler
	Collection *usecase.Collection
	Packages   PackageRepository
	Notifier   domain.Notifier
	Metrics    *metrics.Metrics

	closers []func() error
}

// Open builds every service from cfg. A missing sources file is not an
// error; the app then has no collectors and no notify targets.
func Open(ctx context.Context, cfg config.Config) (*App, error) {
	a := &App{Config: cfg, Metrics: metrics.New()}

	sources, err := loadSources(cfg.SourcesConfig)
	if err != nil {
		return nil, err
	}
	a.Sources = sources

	repos, err := a.openRepositories(cfg)
	if err != nil {
		return nil, err
	}
	blobs, err := openBlobs(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	exporter, err := bundles.NewExporter(cfg.PackageDir)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("package dir: %w", err)
	}

	a.Evidence = usecase.NewEvidenceStore(blobs, repos.evidence)
	a.Scheduler = usecase.NewScheduler(repos.controls, repos.findings)
	a.Packages = repos.packages

	a.Tester = &usecase.ControlTester{
		Registry:       TestRegistry(sources.Tests),
		Evidence:       repos.evidence,
		EvidenceWindow: time.Duration(cfg.EvidenceWindowDays) * 24 * time.Hour,
	}
	if cfg.PolicyDir != "" {
		engine, err := policyopa.NewEngineFromPath(ctx, cfg.PolicyDir)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("load policies: %w", err)
		}
		a.Tester.Policies = engine
	}
	a.Testing = &usecase.ControlTesting{
		Tester:    a.Tester,
		Scheduler: a.Scheduler,
		Results:   repos.results,
	}
	a.Assembler = &usecase.Assembler{
		Controls: repos.controls,
		Evidence: repos.evidence,
		Findings: repos.findings,
		Packages: repos.packages,
		Blobs:    blobs,
		Writer:   exporter,
	}

	sourceCollectors, err := collectors.Build(sources)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Collection = &usecase.Collection{
		Store:    a.Evidence,
		Sources:  sourceCollectors,
		Lease:    a.openLease(cfg),
		LeaseTTL: cfg.LeaseTTL,
	}
	if targets := NotifyTargets(sources.Notify); len(targets) > 0 {
		a.Notifier = notify.NewWebhook(targets)
	}
	return a, nil
}

// Activities returns the Temporal activity set backed by this app.
func (a *App) Activities() *activities.Activities {
	acts := &activities.Activities{
		Collection: a.Collection,
		Scheduler:  a.Scheduler,
		Tester:     a.Tester,
		Testing:    a.Testing,
		Assembler:  a.Assembler,
		Metrics:    a.Metrics,
		DueLimit:   a.Config.DueLimit,
	}
	if a.Notifier != nil {
		acts.Notifier = a.Notifier
	}
	return acts
}

func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) openRepositories(cfg config.Config) (repositories, error) {
	if cfg.PostgresDSN == "" {
		log.Printf("POSTGRES_DSN not set; using in-memory metadata store")
		a.Mode = ModeMemory
		s := memstore.New()
		return repositories{
			evidence: s.Evidence(),
			controls: s.Controls(),
			results:  s.TestResults(),
			findings: s.Findings(),
			packages: s.Packages(),
		}, nil
	}
	store, err := db.NewStore(cfg)
	if err != nil {
		return repositories{}, fmt.Errorf("failed to init store: %w", err)
	}
	a.Mode = ModeDB
	a.closers = append(a.closers, store.Close)
	return repositories{
		evidence: store.Evidence(),
		controls: store.Controls(),
		results:  store.TestResults(),
		findings: store.Findings(),
		packages: store.Packages(),
	}, nil
}

func (a *App) openLease(cfg config.Config) usecase.SourceLease {
	if cfg.RedisAddr == "" {
		return lease.NewMemory(time.Now)
	}
	r, err := lease.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, leasePrefix)
	if err != nil {
		log.Printf("redis lease unavailable, falling back to in-process lease: %v", err)
		return lease.NewMemory(time.Now)
	}
	a.closers = append(a.closers, r.Close)
	return r
}

func openBlobs(cfg config.Config) (usecase.BlobStore, error) {
	switch cfg.BlobBackend {
	case "", "fs":
		fs, err := blobstore.NewFS(cfg.EvidenceDir)
		if err != nil {
			return nil, err
		}
		return fs, nil
	case "s3":
		s3, err := blobstore.NewS3(blobstore.S3Config{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			Prefix:    cfg.S3Prefix,
			UseSSL:    cfg.S3UseSSL,
		})
		if err != nil {
			return nil, err
		}
		return s3, nil
	default:
		return nil, fmt.Errorf("unknown BLOB_BACKEND %q", cfg.BlobBackend)
	}
}

func loadSources(path string) (config.Sources, error) {
	if path == "" {
		return config.Sources{}, nil
	}
	sources, err := config.LoadSources(path)
	if errors.Is(err, os.ErrNotExist) {
		log.Printf("sources config %s not found; no collectors configured", path)
		return config.Sources{}, nil
	}
	if err != nil {
		return config.Sources{}, fmt.Errorf("load sources: %w", err)
	}
	return sources, nil
}

// TestRegistry registers the built-in tests named in the sources file.
func TestRegistry(tests []config.ControlTestConfig) *usecase.TestRegistry {
	reg := usecase.NewTestRegistry()
	for _, t := range tests {
		reg.Register(t.Control, usecase.RequireRecentEvidence(t.MaxEvidenceAge))
	}
	return reg
}

func NotifyTargets(in []config.NotifyTarget) []notify.Target {
	out := make([]notify.Target, 0, len(in))
	for _, t := range in {
		if t.URL == "" {
			continue
		}
		out = append(out, notify.Target{Channel: t.Channel, URL: t.URL, Format: t.Format, Headers: t.Headers})
	}
	return out
}
