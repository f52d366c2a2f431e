package bundles

import (
	"fmt"
	"strings"

	"github.com/yokoszn/CreatureGRC/internal/domain"
)

func renderReadme(pkg domain.AuditPackage) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s audit package: %s\n\n", pkg.Framework, pkg.Client)
	fmt.Fprintf(&b, "Audit period: %s to %s\n\n", pkg.Period.Start.Format("2006-01-02"), pkg.Period.End.Format("2006-01-02"))
	fmt.Fprintf(&b, "Manifest hash: `%s`\n\n", pkg.ManifestHash)

	s := pkg.Stats
	b.WriteString("## Summary\n\n")
	fmt.Fprintf(&b, "| | |\n|---|---|\n")
	fmt.Fprintf(&b, "| Controls | %d |\n", s.TotalControls)
	fmt.Fprintf(&b, "| Implemented | %d |\n", s.Implemented)
	fmt.Fprintf(&b, "| Partially implemented | %d |\n", s.PartiallyImplemented)
	fmt.Fprintf(&b, "| Not implemented | %d |\n", s.NotImplemented)
	fmt.Fprintf(&b, "| Fully automated | %d |\n", s.FullyAutomated)
	fmt.Fprintf(&b, "| Evidence items | %d |\n", s.EvidenceCount)
	fmt.Fprintf(&b, "| Open findings | %d |\n\n", s.OpenFindingCount)

	if len(pkg.IntegrityWarnings) > 0 {
		b.WriteString("## Integrity warnings\n\n")
		for _, w := range pkg.IntegrityWarnings {
			fmt.Fprintf(&b, "- %s evidence %s: %s\n", w.ControlCode, w.EvidenceID, w.Reason)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Layout\n\n")
	fmt.Fprintf(&b, "- `%s` package statistics and warnings\n", SummaryFile)
	fmt.Fprintf(&b, "- `%s` control, evidence and finding identifiers\n", ManifestFile)
	b.WriteString("- `<domain>/<control>.json` control detail, with copies of evidence under `<domain>/evidence/<control>/`\n")
	return b.String()
}
