// Package memstore keeps evidence metadata, controls and findings in
// process memory. It backs the no-database mode and tests.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/yokoszn/CreatureGRC/internal/domain"
)

type Store struct {
	mu sync.RWMutex

	evidence      map[string]domain.EvidenceRecord
	evidenceByKey map[string]string

	controls      map[string]domain.Control
	controlByCode map[string]string
	impls         map[string]domain.ControlImplementation

	results map[string]domain.ControlTestResult

	findings     map[string]domain.Finding
	findingByKey map[string]string
	packages     map[string]domain.AuditPackage
}

func New() *Store {
	return &Store{
		evidence:      make(map[string]domain.EvidenceRecord),
		evidenceByKey: make(map[string]string),
		controls:      make(map[string]domain.Control),
		controlByCode: make(map[string]string),
		impls:         make(map[string]domain.ControlImplementation),
		results:       make(map[string]domain.ControlTestResult),
		findings:      make(map[string]domain.Finding),
		findingByKey:  make(map[string]string),
		packages:      make(map[string]domain.AuditPackage),
	}
}

func (s *Store) Evidence() *EvidenceRepo      { return &EvidenceRepo{s: s} }
func (s *Store) Controls() *ControlRepo       { return &ControlRepo{s: s} }
func (s *Store) TestResults() *TestResultRepo { return &TestResultRepo{s: s} }
func (s *Store) Findings() *FindingRepo       { return &FindingRepo{s: s} }
func (s *Store) Packages() *PackageRepo       { return &PackageRepo{s: s} }

func dayKey(id string, t time.Time) string {
	return id + "|" + domain.DateOf(t).Format(time.DateOnly)
}

type EvidenceRepo struct{ s *Store }

func (r *EvidenceRepo) Upsert(ctx context.Context, rec domain.EvidenceRecord) (domain.EvidenceRecord, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.EvidenceRecord{}, false, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := rec.ControlReference + "|" + rec.ContentHash
	if id, ok := r.s.evidenceByKey[key]; ok {
		return r.s.evidence[id], false, nil
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	r.s.evidence[rec.ID] = rec
	r.s.evidenceByKey[key] = rec.ID
	return rec, true, nil
}

func (r *EvidenceRepo) Get(ctx context.Context, id string) (domain.EvidenceRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	rec, ok := r.s.evidence[id]
	if !ok {
		return domain.EvidenceRecord{}, domain.ErrNotFound
	}
	return rec, nil
}

func (r *EvidenceRepo) SetReviewStatus(ctx context.Context, id string, status domain.ReviewStatus) (domain.EvidenceRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rec, ok := r.s.evidence[id]
	if !ok {
		return domain.EvidenceRecord{}, domain.ErrNotFound
	}
	if rec.ReviewStatus != domain.ReviewPending {
		return rec, domain.ErrAlreadyReviewed
	}
	rec.ReviewStatus = status
	r.s.evidence[id] = rec
	return rec, nil
}

func (r *EvidenceRepo) ListApproved(ctx context.Context, controlCode string, period domain.Period) ([]domain.EvidenceRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.EvidenceRecord
	for _, rec := range r.s.evidence {
		if rec.ControlReference != controlCode || rec.ReviewStatus != domain.ReviewApproved {
			continue
		}
		if !period.Overlaps(rec.PeriodStart, rec.PeriodEnd) {
			continue
		}
		out = append(out, rec)
	}
	sortNewestFirst(out)
	return out, nil
}

func (r *EvidenceRepo) ListRecent(ctx context.Context, controlCode string, since time.Time, limit int) ([]domain.EvidenceRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.EvidenceRecord
	for _, rec := range r.s.evidence {
		if controlCode != "" && rec.ControlReference != controlCode {
			continue
		}
		if rec.CollectedAt.Before(since) {
			continue
		}
		out = append(out, rec)
	}
	sortNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func sortNewestFirst(recs []domain.EvidenceRecord) {
	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].CollectedAt.Equal(recs[j].CollectedAt) {
			return recs[i].CollectedAt.After(recs[j].CollectedAt)
		}
		return recs[i].ID < recs[j].ID
	})
}

type ControlRepo struct{ s *Store }

func (r *ControlRepo) UpsertControl(ctx context.Context, control domain.Control) (domain.Control, error) {
	if control.Framework == "" || control.Code == "" {
		return domain.Control{}, domain.ErrInvalidControl
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := control.Framework + "|" + control.Code
	if id, ok := r.s.controlByCode[key]; ok {
		control.ID = id
	} else if control.ID == "" {
		control.ID = uuid.NewString()
	}
	r.s.controls[control.ID] = control
	r.s.controlByCode[key] = control.ID
	if impl, ok := r.s.impls[control.ID]; ok {
		impl.ControlCode = control.Code
		impl.ControlName = control.Name
		r.s.impls[control.ID] = impl
	}
	return control, nil
}

func (r *ControlRepo) UpsertImplementation(ctx context.Context, impl domain.ControlImplementation) error {
	if err := impl.Validate(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	control, ok := r.s.controls[impl.ControlID]
	if !ok {
		return domain.ErrNotFound
	}
	impl.ControlCode = control.Code
	impl.ControlName = control.Name
	r.s.impls[impl.ControlID] = impl
	return nil
}

func (r *ControlRepo) GetImplementation(ctx context.Context, controlID string) (domain.ControlImplementation, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	impl, ok := r.s.impls[controlID]
	if !ok {
		return domain.ControlImplementation{}, domain.ErrNotFound
	}
	return impl, nil
}

func (r *ControlRepo) ListDue(ctx context.Context, asOf time.Time, limit int) ([]domain.ControlImplementation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	cutoff := domain.DateOf(asOf)
	var out []domain.ControlImplementation
	for _, impl := range r.s.impls {
		if impl.ImplementationStatus != domain.Implemented || impl.NextTestDate == nil {
			continue
		}
		if impl.NextTestDate.After(cutoff) {
			continue
		}
		out = append(out, impl)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].NextTestDate.Equal(*out[j].NextTestDate) {
			return out[i].NextTestDate.Before(*out[j].NextTestDate)
		}
		return out[i].ControlCode < out[j].ControlCode
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *ControlRepo) ListFramework(ctx context.Context, framework string) ([]domain.ControlView, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.ControlView
	for _, control := range r.s.controls {
		if control.Framework != framework {
			continue
		}
		view := domain.ControlView{Control: control}
		if impl, ok := r.s.impls[control.ID]; ok {
			implCopy := impl
			view.Implementation = &implCopy
		}
		out = append(out, view)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Control, out[j].Control
		if a.DomainCode != b.DomainCode {
			return a.DomainCode < b.DomainCode
		}
		return a.Code < b.Code
	})
	return out, nil
}

func (r *ControlRepo) RecordTest(ctx context.Context, controlID string, testedOn, nextTestDate time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	impl, ok := r.s.impls[controlID]
	if !ok {
		return domain.ErrNotFound
	}
	testedOn = domain.DateOf(testedOn)
	if impl.LastTestDate != nil && testedOn.Before(*impl.LastTestDate) {
		return nil
	}
	next := domain.DateOf(nextTestDate)
	impl.LastTestDate = &testedOn
	impl.NextTestDate = &next
	r.s.impls[controlID] = impl
	return nil
}

type TestResultRepo struct{ s *Store }

func (r *TestResultRepo) Upsert(ctx context.Context, result domain.ControlTestResult) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.results[dayKey(result.ControlID, result.TestedAt)] = result
	return nil
}

// Latest returns the stored result for a control on the day of testedAt.
func (r *TestResultRepo) Latest(controlID string, testedAt time.Time) (domain.ControlTestResult, bool) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	res, ok := r.s.results[dayKey(controlID, testedAt)]
	return res, ok
}

type FindingRepo struct{ s *Store }

func (r *FindingRepo) Upsert(ctx context.Context, finding domain.Finding) (domain.Finding, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := dayKey(finding.ControlID, finding.IdentifiedDate)
	if id, ok := r.s.findingByKey[key]; ok {
		return r.s.findings[id], false, nil
	}
	if finding.ID == "" {
		finding.ID = uuid.NewString()
	}
	finding.IdentifiedDate = domain.DateOf(finding.IdentifiedDate)
	r.s.findings[finding.ID] = finding
	r.s.findingByKey[key] = finding.ID
	return finding, true, nil
}

func (r *FindingRepo) ListOpen(ctx context.Context, controlID string) ([]domain.Finding, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.Finding
	for _, f := range r.s.findings {
		if f.ControlID == controlID && f.Status.IsOpen() {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Severity.Rank() != out[j].Severity.Rank() {
			return out[i].Severity.Rank() > out[j].Severity.Rank()
		}
		if !out[i].IdentifiedDate.Equal(out[j].IdentifiedDate) {
			return out[i].IdentifiedDate.After(out[j].IdentifiedDate)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// SetStatus is the explicit review action; nothing in the pipeline
// resolves findings on its own.
func (r *FindingRepo) SetStatus(ctx context.Context, id string, status domain.FindingStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	f, ok := r.s.findings[id]
	if !ok {
		return domain.ErrNotFound
	}
	f.Status = status
	r.s.findings[id] = f
	return nil
}

type PackageRepo struct{ s *Store }

func (r *PackageRepo) Create(ctx context.Context, pkg domain.AuditPackage) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.packages[pkg.ID] = pkg
	return nil
}

func (r *PackageRepo) Get(ctx context.Context, id string) (domain.AuditPackage, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	pkg, ok := r.s.packages[id]
	if !ok {
		return domain.AuditPackage{}, domain.ErrNotFound
	}
	return pkg, nil
}
