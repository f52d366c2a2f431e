package usecase

import (
	"sort"

	"github.com/yokoszn/CreatureGRC/internal/domain"
	"github.com/yokoszn/CreatureGRC/internal/infra/crypto"
)

type manifestEntry struct {
	ControlCode string   `json:"control_code"`
	Evidence    []string `json:"evidence"`
	Findings    []string `json:"findings"`
}

// ManifestHash fingerprints a package by identifiers only: control codes
// in package order, each with its sorted evidence hashes and finding IDs.
// Timestamps and generated text do not contribute.
func ManifestHash(controls []domain.PackageControl) (string, error) {
	entries := make([]manifestEntry, 0, len(controls))
	for _, c := range controls {
		entry := manifestEntry{
			ControlCode: c.Control.Code,
			Evidence:    make([]string, 0, len(c.Evidence)),
			Findings:    make([]string, 0, len(c.OpenFindings)),
		}
		for _, e := range c.Evidence {
			entry.Evidence = append(entry.Evidence, e.ContentHash)
		}
		for _, f := range c.OpenFindings {
			entry.Findings = append(entry.Findings, f.ID)
		}
		sort.Strings(entry.Evidence)
		sort.Strings(entry.Findings)
		entries = append(entries, entry)
	}
	return crypto.Digest(entries)
}
