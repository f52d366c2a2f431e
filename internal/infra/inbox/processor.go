package inbox

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/yokoszn/CreatureGRC/internal/domain"
	"github.com/yokoszn/CreatureGRC/internal/usecase"
)

const (
	ManualSource = "manual"
	processedDir = ".processed"
	failedDir    = ".failed"
)

// Processor stores inbox files as manual evidence and moves them out of
// the way.
type Processor struct {
	Root  string
	Store *usecase.EvidenceStore
	Now   func() time.Time
}

func (p *Processor) Handle(ctx context.Context, path string) {
	rec, err := p.Process(ctx, path)
	if err != nil {
		log.Printf("inbox: %s: %v", path, err)
		return
	}
	log.Printf("inbox: stored %s as evidence %s for %s", filepath.Base(path), rec.ID, rec.ControlReference)
}

func (p *Processor) Process(ctx context.Context, path string) (domain.EvidenceRecord, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return domain.EvidenceRecord{}, err
	}
	control := filepath.Base(filepath.Dir(path))
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	ts := now().UTC()
	rec, _, err := p.Store.Store(ctx, ManualSource, domain.CollectionManual, domain.EvidenceItem{
		ControlReference: control,
		LogicalName:      filepath.Base(path),
		Category:         ManualSource,
		EvidenceType:     "manual_upload",
		Content:          content,
		PeriodStart:      ts,
		PeriodEnd:        ts,
		Metadata:         map[string]any{"original_path": path},
	})
	if err != nil {
		if domain.IsStorageFailure(err) {
			return domain.EvidenceRecord{}, err
		}
		if moveErr := p.move(path, failedDir, control); moveErr != nil {
			return domain.EvidenceRecord{}, fmt.Errorf("%w (move: %v)", err, moveErr)
		}
		return domain.EvidenceRecord{}, err
	}
	if err := p.move(path, processedDir, control); err != nil {
		return rec, fmt.Errorf("stored as %s but not moved: %w", rec.ID, err)
	}
	return rec, nil
}

func (p *Processor) move(path, bucket, control string) error {
	dir := filepath.Join(p.Root, bucket, control)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}
	return os.Rename(path, filepath.Join(dir, filepath.Base(path)))
}
