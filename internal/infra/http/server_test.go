package http

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/yokoszn/CreatureGRC/internal/config"
	"github.com/yokoszn/CreatureGRC/internal/domain"
	"github.com/yokoszn/CreatureGRC/internal/infra/blobstore"
	"github.com/yokoszn/CreatureGRC/internal/infra/bundles"
	"github.com/yokoszn/CreatureGRC/internal/infra/memstore"
	"github.com/yokoszn/CreatureGRC/internal/usecase"

	"github.com/gin-gonic/gin"
)

type testServer struct {
	srv       *Server
	mem       *memstore.Store
	blobRoot  string
	scheduler *usecase.Scheduler
}

func newTestServer(t *testing.T, apiKey string) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	blobRoot := t.TempDir()
	blobs, err := blobstore.NewFS(blobRoot)
	if err != nil {
		t.Fatalf("blobs: %v", err)
	}
	exporter, err := bundles.NewExporter(t.TempDir())
	if err != nil {
		t.Fatalf("exporter: %v", err)
	}
	mem := memstore.New()
	scheduler := usecase.NewScheduler(mem.Controls(), mem.Findings())
	srv := NewServer(config.Config{APIKey: apiKey}, ServerDeps{
		Evidence:  usecase.NewEvidenceStore(blobs, mem.Evidence()),
		Scheduler: scheduler,
		Assembler: &usecase.Assembler{
			Controls: mem.Controls(),
			Evidence: mem.Evidence(),
			Findings: mem.Findings(),
			Packages: mem.Packages(),
			Blobs:    blobs,
			Writer:   exporter,
		},
		Packages: mem.Packages(),
	})
	return &testServer{srv: srv, mem: mem, blobRoot: blobRoot, scheduler: scheduler}
}

func (ts *testServer) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func uploadRequest(t *testing.T, control, filename string, content []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if control != "" {
		_ = mw.WriteField("control_code", control)
	}
	for k, v := range fields {
		_ = mw.WriteField(k, v)
	}
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	_, _ = fw.Write(content)
	_ = mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/v1/evidence", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
	return out
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t, "")
	rec := ts.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decode[map[string]string](t, rec)
	if body["mode"] != "memory" {
		t.Fatalf("expected memory mode, got %v", body)
	}
}

func TestUploadEvidenceIsIdempotent(t *testing.T) {
	ts := newTestServer(t, "")
	content := []byte("signed access review")

	first := ts.do(t, uploadRequest(t, "A.5.18", "review.pdf", content, map[string]string{"period_start": "2025-01-01", "period_end": "2025-03-31"}))
	if first.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", first.Code, first.Body.String())
	}
	firstBody := decode[uploadResponse](t, first)
	if firstBody.Evidence.CollectionMethod != domain.CollectionManual || firstBody.Evidence.ReviewStatus != domain.ReviewPending {
		t.Fatalf("unexpected record %+v", firstBody.Evidence)
	}
	if firstBody.Deduplicated {
		t.Fatalf("first upload should not be deduplicated")
	}

	second := ts.do(t, uploadRequest(t, "A.5.18", "review.pdf", content, nil))
	secondBody := decode[uploadResponse](t, second)
	if secondBody.Evidence.ID != firstBody.Evidence.ID || !secondBody.Deduplicated {
		t.Fatalf("expected same evidence id and dedup, got %+v", secondBody)
	}
}

func TestUploadWithOnlyPeriodEndCoversThatDay(t *testing.T) {
	ts := newTestServer(t, "")
	rec := ts.do(t, uploadRequest(t, "A.5.18", "review.pdf", []byte("q4 review"), map[string]string{"period_end": "2024-12-31"}))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	ev := decode[uploadResponse](t, rec).Evidence
	wantStart := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)
	if !ev.PeriodStart.Equal(wantStart) || ev.PeriodEnd.Before(ev.PeriodStart) || ev.PeriodEnd.After(wantStart.Add(domain.Day)) {
		t.Fatalf("unexpected period %s..%s", ev.PeriodStart, ev.PeriodEnd)
	}
}

func TestUploadRequiresControlCode(t *testing.T) {
	ts := newTestServer(t, "")
	rec := ts.do(t, uploadRequest(t, "", "x.txt", []byte("x"), nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestWriteEndpointsRequireAPIKey(t *testing.T) {
	ts := newTestServer(t, "secret")
	rec := ts.do(t, uploadRequest(t, "A.5.1", "x.txt", []byte("x"), nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	req := uploadRequest(t, "A.5.1", "x.txt", []byte("x"), nil)
	req.Header.Set("X-API-Key", "secret")
	if rec := ts.do(t, req); rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 with key, got %d", rec.Code)
	}
}

func TestReviewOnlyOnce(t *testing.T) {
	ts := newTestServer(t, "")
	up := decode[uploadResponse](t, ts.do(t, uploadRequest(t, "A.8.2", "policy.md", []byte("policy"), nil)))

	review := func(status string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v1/evidence/"+up.Evidence.ID+"/review", bytes.NewBufferString(`{"status":"`+status+`"}`))
		req.Header.Set("Content-Type", "application/json")
		return ts.do(t, req)
	}
	if rec := review("approved"); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec := review("rejected"); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if rec := review("maybe"); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d", rec.Code)
	}
}

func TestVerifyDetectsTampering(t *testing.T) {
	ts := newTestServer(t, "")
	up := decode[uploadResponse](t, ts.do(t, uploadRequest(t, "A.8.15", "logs.json", []byte(`{"ok":true}`), nil)))

	rec := ts.do(t, httptest.NewRequest(http.MethodGet, "/v1/evidence/"+up.Evidence.ID+"/verify", nil))
	if got := decode[verifyResponse](t, rec); !got.Valid {
		t.Fatalf("expected valid evidence, got %+v", got)
	}

	path := filepath.Join(ts.blobRoot, filepath.FromSlash(up.Evidence.StoragePath))
	if err := os.WriteFile(path, []byte("tampered"), 0o600); err != nil {
		t.Fatalf("tamper: %v", err)
	}
	rec = ts.do(t, httptest.NewRequest(http.MethodGet, "/v1/evidence/"+up.Evidence.ID+"/verify", nil))
	got := decode[verifyResponse](t, rec)
	if got.Valid || got.Reason != "content hash mismatch" {
		t.Fatalf("expected mismatch, got %+v", got)
	}
}

func TestGetEvidenceNotFound(t *testing.T) {
	ts := newTestServer(t, "")
	rec := ts.do(t, httptest.NewRequest(http.MethodGet, "/v1/evidence/missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if body := decode[errorResponse](t, rec); body.Code != "NOT_FOUND" {
		t.Fatalf("unexpected error body %+v", body)
	}
}

func TestDueControls(t *testing.T) {
	ts := newTestServer(t, "")
	asOf := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := ts.scheduler.Enroll(context.Background(), domain.Control{
		Framework: "ISO27001", DomainCode: "A.5", DomainName: "Organizational", Code: "A.5.1", Name: "Policies",
	}, domain.ControlImplementation{ImplementationStatus: domain.Implemented, TestingFrequency: domain.FrequencyMonthly}, asOf)
	if err != nil {
		t.Fatalf("enroll: %v", err)
	}

	rec := ts.do(t, httptest.NewRequest(http.MethodGet, "/v1/controls/due?as_of=2025-01-02", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decode[struct {
		Controls []domain.ControlImplementation `json:"controls"`
	}](t, rec)
	if len(body.Controls) != 1 || body.Controls[0].ControlCode != "A.5.1" {
		t.Fatalf("unexpected due controls %+v", body.Controls)
	}

	if rec := ts.do(t, httptest.NewRequest(http.MethodGet, "/v1/controls/due?as_of=yesterday", nil)); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestAssemblePackage(t *testing.T) {
	ts := newTestServer(t, "")
	_, err := ts.scheduler.Enroll(context.Background(), domain.Control{
		Framework: "ISO27001", DomainCode: "A.5", DomainName: "Organizational", Code: "A.5.1", Name: "Policies",
	}, domain.ControlImplementation{ImplementationStatus: domain.Implemented, TestingFrequency: domain.FrequencyAnnually}, time.Now())
	if err != nil {
		t.Fatalf("enroll: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/packages", bytes.NewBufferString(`{"client":"acme","framework":"ISO27001","period_start":"2025-01-01","period_end":"2025-03-31"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := ts.do(t, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	pkg := decode[packageResponse](t, rec)
	if len(pkg.ManifestHash) != 64 || pkg.Stats.TotalControls != 1 {
		t.Fatalf("unexpected package %+v", pkg)
	}

	got := ts.do(t, httptest.NewRequest(http.MethodGet, "/v1/packages/"+pkg.ID, nil))
	if got.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", got.Code)
	}

	bad := httptest.NewRequest(http.MethodPost, "/v1/packages", bytes.NewBufferString(`{"client":"acme","framework":"ISO27001","period_start":"2025-03-31","period_end":"2025-01-01"}`))
	bad.Header.Set("Content-Type", "application/json")
	if rec := ts.do(t, bad); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for inverted period, got %d", rec.Code)
	}
}
