package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/yokoszn/CreatureGRC/internal/activities"
	"github.com/yokoszn/CreatureGRC/internal/domain"

	"github.com/fatih/color"
)

var (
	okColor   = color.New(color.FgGreen)
	failColor = color.New(color.FgRed)
	warnColor = color.New(color.FgYellow)
)

func printCollection(w io.Writer, s domain.CollectionSummary) {
	fmt.Fprintf(w, "Evidence collection: %s\n", s.Framework)
	fmt.Fprintf(w, "%-20s %-6s %s\n", "SOURCE", "STATUS", "DETAIL")
	for _, r := range s.Results {
		detail := fmt.Sprintf("%d items, %d deduplicated", r.EvidenceCount, r.Deduplicated)
		if len(r.ItemErrors) > 0 {
			warnColor.Fprintf(w, "%-20s %-6s %s, %d item errors\n", r.Source, "ok", detail, len(r.ItemErrors))
			continue
		}
		okColor.Fprintf(w, "%-20s %-6s %s\n", r.Source, "ok", detail)
	}
	for _, f := range s.FailedSources {
		failColor.Fprintf(w, "%-20s %-6s %s\n", f.Source, "failed", f.Error)
	}
	fmt.Fprintf(w, "Total evidence: %d from %d sources\n", s.TotalEvidenceCollected, s.SuccessfulSources)
}

func printTesting(w io.Writer, s domain.ControlTestingSummary) {
	fmt.Fprintf(w, "Control testing as of %s\n", s.AsOf.Format(time.DateOnly))
	for _, r := range s.Results {
		switch {
		case !r.Passed:
			failColor.Fprintf(w, "FAIL %-12s %s\n", r.ControlCode, strings.Join(r.Findings, "; "))
		case r.Unverified():
			warnColor.Fprintf(w, "PASS %-12s not independently verified\n", r.ControlCode)
		default:
			okColor.Fprintf(w, "PASS %-12s\n", r.ControlCode)
		}
	}
	fmt.Fprintf(w, "%d tested, %d passed, %d failed\n", s.ControlsTested, s.Passed, s.Failed)
}

func printPackage(w io.Writer, out activities.AssemblePackageOutput) {
	fmt.Fprintf(w, "Package %s\n", out.PackageID)
	fmt.Fprintf(w, "  manifest hash: %s\n", out.ManifestHash)
	fmt.Fprintf(w, "  directory:     %s\n", out.Directory)
	fmt.Fprintf(w, "  archive:       %s\n", out.ArchivePath)
	fmt.Fprintf(w, "  controls:      %d (%d implemented, %d partial, %d not implemented)\n",
		out.Stats.TotalControls, out.Stats.Implemented, out.Stats.PartiallyImplemented, out.Stats.NotImplemented)
	fmt.Fprintf(w, "  evidence:      %d\n", out.Stats.EvidenceCount)
	fmt.Fprintf(w, "  open findings: %d\n", out.Stats.OpenFindingCount)
	if out.IntegrityWarnings > 0 {
		warnColor.Fprintf(w, "  integrity warnings: %d\n", out.IntegrityWarnings)
	}
}

func printDue(w io.Writer, due []domain.ControlImplementation) {
	if len(due) == 0 {
		fmt.Fprintln(w, "No controls due.")
		return
	}
	fmt.Fprintf(w, "%-12s %-12s %-10s %s\n", "CONTROL", "DUE", "FREQUENCY", "NAME")
	for _, impl := range due {
		dueOn := "-"
		if impl.NextTestDate != nil {
			dueOn = impl.NextTestDate.Format(time.DateOnly)
		}
		fmt.Fprintf(w, "%-12s %-12s %-10s %s\n", impl.ControlCode, dueOn, impl.TestingFrequency, impl.ControlName)
	}
}
