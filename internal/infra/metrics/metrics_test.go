package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHandlerExposesCounters(t *testing.T) {
	m := New()
	m.SourceRun("github", nil)
	m.SourceRun("scanner", errors.New("boom"))
	m.EvidenceStored("github", 3, 1)
	m.ControlTest(false, "go_test")
	m.PackageAssembled(2)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	text := string(body)

	for _, want := range []string{
		`grc_collection_jobs_total{outcome="error",source="scanner"} 1`,
		`grc_evidence_stored_total{deduplicated="true",source="github"} 1`,
		`grc_evidence_stored_total{deduplicated="false",source="github"} 2`,
		`grc_control_tests_total{outcome="failed",verification="go_test"} 1`,
		`grc_integrity_warnings_total 2`,
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("missing %q in\n%s", want, text)
		}
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.SourceRun("x", nil)
	m.ControlTest(true, "")
	m.PackageAssembled(1)
	m.NotifyFailed()
}
