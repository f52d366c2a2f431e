package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/yokoszn/CreatureGRC/internal/domain"
	"golang.org/x/sync/errgroup"
)

const defaultVerifyConcurrency = 8

// Assembler builds audit packages. Reads are side-effect free; every call
// still writes a new package directory, archive and row.
type Assembler struct {
	Controls ControlRepository
	Evidence EvidenceRepository
	Findings FindingRepository
	Packages PackageRepository
	Blobs    BlobReader
	Writer   PackageWriter

	VerifyConcurrency int
	Now               func() time.Time
}

func (a *Assembler) Assemble(ctx context.Context, client, framework string, period domain.Period) (domain.AuditPackage, error) {
	if strings.TrimSpace(client) == "" || strings.TrimSpace(framework) == "" {
		return domain.AuditPackage{}, fmt.Errorf("%w: client and framework are required", domain.ErrInvalidControl)
	}
	if err := period.Validate(); err != nil {
		return domain.AuditPackage{}, err
	}

	controls, err := a.join(ctx, framework, period)
	if err != nil {
		return domain.AuditPackage{}, err
	}
	manifestHash, err := ManifestHash(controls)
	if err != nil {
		return domain.AuditPackage{}, fmt.Errorf("manifest hash: %w", err)
	}
	warnings, err := a.verify(ctx, controls)
	if err != nil {
		return domain.AuditPackage{}, err
	}

	pkg := domain.AuditPackage{
		ID:                uuid.NewString(),
		Client:            client,
		Framework:         framework,
		Period:            period,
		Controls:          controls,
		ManifestHash:      manifestHash,
		IntegrityWarnings: warnings,
		Stats:             packageStats(controls, len(warnings)),
		CreatedAt:         a.now().UTC(),
	}
	if a.Writer != nil {
		dir, archive, err := a.Writer.Write(ctx, pkg, a.Blobs)
		if err != nil {
			return domain.AuditPackage{}, fmt.Errorf("write package: %w", err)
		}
		pkg.Directory, pkg.ArchivePath = dir, archive
	}
	if a.Packages != nil {
		if err := a.Packages.Create(ctx, pkg); err != nil {
			return domain.AuditPackage{}, fmt.Errorf("store package: %w", err)
		}
	}
	return pkg, nil
}

func (a *Assembler) join(ctx context.Context, framework string, period domain.Period) ([]domain.PackageControl, error) {
	views, err := a.Controls.ListFramework(ctx, framework)
	if err != nil {
		return nil, fmt.Errorf("list controls: %w", err)
	}
	out := make([]domain.PackageControl, 0, len(views))
	for _, view := range views {
		pc := domain.PackageControl{
			Control:      view.Control,
			Evidence:     []domain.EvidenceRecord{},
			OpenFindings: []domain.Finding{},
		}
		if view.Implementation == nil {
			pc.Implementation = domain.ControlImplementation{
				ControlID:            view.Control.ID,
				ControlCode:          view.Control.Code,
				ControlName:          view.Control.Name,
				ImplementationStatus: domain.NotImplemented,
			}
			out = append(out, pc)
			continue
		}
		pc.Linked = true
		pc.Implementation = *view.Implementation

		evidence, err := a.Evidence.ListApproved(ctx, view.Control.Code, period)
		if err != nil {
			return nil, fmt.Errorf("list evidence %s: %w", view.Control.Code, err)
		}
		for _, e := range evidence {
			if period.Overlaps(e.PeriodStart, e.PeriodEnd) {
				pc.Evidence = append(pc.Evidence, e)
			}
		}
		findings, err := a.Findings.ListOpen(ctx, view.Control.ID)
		if err != nil {
			return nil, fmt.Errorf("list findings %s: %w", view.Control.Code, err)
		}
		pc.OpenFindings = append(pc.OpenFindings, findings...)
		out = append(out, pc)
	}
	return out, nil
}

// verify re-hashes every referenced blob. Missing or altered content
// becomes a warning; only context cancellation aborts.
func (a *Assembler) verify(ctx context.Context, controls []domain.PackageControl) ([]domain.IntegrityWarning, error) {
	type ref struct {
		code string
		rec  domain.EvidenceRecord
	}
	var refs []ref
	for _, c := range controls {
		for _, e := range c.Evidence {
			refs = append(refs, ref{code: c.Control.Code, rec: e})
		}
	}
	slots := make([]*domain.IntegrityWarning, len(refs))

	limit := a.VerifyConcurrency
	if limit <= 0 {
		limit = defaultVerifyConcurrency
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, r := range refs {
		g.Go(func() error {
			actual, err := VerifyBlob(gctx, a.Blobs, r.rec.StoragePath, r.rec.ContentHash)
			if err == nil {
				return nil
			}
			if ctxErr := gctx.Err(); ctxErr != nil {
				return ctxErr
			}
			w := domain.IntegrityWarning{
				ControlCode: r.code,
				EvidenceID:  r.rec.ID,
				StoragePath: r.rec.StoragePath,
				Expected:    r.rec.ContentHash,
			}
			switch {
			case errors.Is(err, domain.ErrContentMismatch):
				w.Actual = actual
				w.Reason = "content hash mismatch"
			case errors.Is(err, domain.ErrNotFound):
				w.Reason = "stored content missing"
			default:
				w.Reason = err.Error()
			}
			slots[i] = &w
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var warnings []domain.IntegrityWarning
	for _, w := range slots {
		if w != nil {
			warnings = append(warnings, *w)
		}
	}
	return warnings, nil
}

func packageStats(controls []domain.PackageControl, warnings int) domain.PackageStats {
	stats := domain.PackageStats{TotalControls: len(controls), IntegrityWarningCount: warnings}
	for _, c := range controls {
		switch c.Implementation.ImplementationStatus {
		case domain.Implemented:
			stats.Implemented++
		case domain.PartiallyImplemented:
			stats.PartiallyImplemented++
		default:
			stats.NotImplemented++
		}
		if c.Implementation.AutomationLevel == domain.AutomationFullyAutomated {
			stats.FullyAutomated++
		}
		stats.EvidenceCount += len(c.Evidence)
		stats.OpenFindingCount += len(c.OpenFindings)
	}
	return stats
}

func (a *Assembler) now() time.Time {
	if a.Now == nil {
		return time.Now()
	}
	return a.Now()
}
