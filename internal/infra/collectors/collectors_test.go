package collectors

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/yokoszn/CreatureGRC/internal/config"
	"github.com/yokoszn/CreatureGRC/internal/domain"
)

func TestHTTPCollectorFetchesEvidence(t *testing.T) {
	var gotAuth, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.RawQuery
		w.Write([]byte(`{"events":[]}`))
	}))
	defer srv.Close()

	t.Setenv("TEST_TOKEN", "s3cret")
	c := NewHTTP(config.Source{
		ID:       "wazuh",
		Kind:     config.SourceKindHTTP,
		BaseURL:  srv.URL + "/",
		TokenEnv: "TEST_TOKEN",
		Timeout:  time.Second,
		Evidence: []config.EvidenceSpec{
			{Control: "A.8.15", Name: "auth.json", Category: "logging", Path: "/events?since={since}"},
			{Control: "A.8.16", Name: "gone.json", Path: "/missing"},
		},
	})
	c.now = func() time.Time { return time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC) }

	batch, err := c.Collect(context.Background(), 30)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(batch.Items) != 1 || len(batch.Errors) != 1 {
		t.Fatalf("unexpected batch %+v", batch)
	}
	if gotAuth != "Bearer s3cret" {
		t.Fatalf("authorization = %q", gotAuth)
	}
	if gotPath != "since=2025-03-02T00:00:00Z" {
		t.Fatalf("query = %q", gotPath)
	}
	item := batch.Items[0]
	if item.ControlReference != "A.8.15" || string(item.Content) != `{"events":[]}` {
		t.Fatalf("unexpected item %+v", item)
	}
	if !item.PeriodStart.Equal(time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("period start = %s", item.PeriodStart)
	}
}

func TestHTTPCollectorRejectsOversizedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/big" {
			w.Write([]byte(strings.Repeat("x", 32)))
			return
		}
		w.Write([]byte("small"))
	}))
	defer srv.Close()
	c := NewHTTP(config.Source{ID: "github", BaseURL: srv.URL, Timeout: time.Second, Evidence: []config.EvidenceSpec{
		{Control: "A.8.32", Name: "audit-log.json", Path: "/big"},
		{Control: "A.8.4", Name: "branch-protection.json", Path: "/small"},
	}})
	c.maxBody = 16

	batch, err := c.Collect(context.Background(), 1)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(batch.Items) != 1 || batch.Items[0].LogicalName != "branch-protection.json" {
		t.Fatalf("oversized body must not become an item: %+v", batch.Items)
	}
	if len(batch.Errors) != 1 || !strings.Contains(batch.Errors[0], "audit-log.json") || !strings.Contains(batch.Errors[0], "size limit") {
		t.Fatalf("expected a size limit error, got %v", batch.Errors)
	}
}

func TestHTTPCollectorAuthFailureIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()
	c := NewHTTP(config.Source{ID: "keycloak", BaseURL: srv.URL, Timeout: time.Second, Evidence: []config.EvidenceSpec{{Control: "A.5.15", Name: "users.json", Path: "/users"}}})
	_, err := c.Collect(context.Background(), 1)
	if !domain.IsPermanent(err) {
		t.Fatalf("expected permanent error, got %v", err)
	}
}

func TestExecCollector(t *testing.T) {
	c := NewExec(config.Source{
		ID:   "scanner",
		Kind: config.SourceKindExec,
		Evidence: []config.EvidenceSpec{
			{Control: "A.8.8", Name: "report.txt", Command: []string{"sh", "-c", "echo scan-ok; exit 2"}, OKExitCodes: []int{2}},
			{Control: "A.8.9", Name: "broken.txt", Command: []string{"sh", "-c", "echo bad >&2; exit 1"}},
			{Control: "A.8.9", Name: "since.txt", Command: []string{"sh", "-c", "echo $GRC_LOOKBACK_DAYS"}},
		},
	})
	batch, err := c.Collect(context.Background(), 7)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(batch.Items) != 2 || len(batch.Errors) != 1 {
		t.Fatalf("unexpected batch %+v", batch)
	}
	if strings.TrimSpace(string(batch.Items[0].Content)) != "scan-ok" {
		t.Fatalf("unexpected content %q", batch.Items[0].Content)
	}
	if strings.TrimSpace(string(batch.Items[1].Content)) != "7" {
		t.Fatalf("lookback not passed: %q", batch.Items[1].Content)
	}
	if !strings.Contains(batch.Errors[0], "bad") {
		t.Fatalf("stderr not reported: %v", batch.Errors)
	}
}

func TestExecCollectorMissingBinaryIsPermanent(t *testing.T) {
	c := NewExec(config.Source{ID: "scanner", Evidence: []config.EvidenceSpec{
		{Control: "A.8.8", Name: "r.xml", Command: []string{"definitely-not-a-real-scanner-binary"}},
	}})
	_, err := c.Collect(context.Background(), 1)
	var perm *domain.PermanentSourceError
	if !errors.As(err, &perm) {
		t.Fatalf("expected permanent error, got %v", err)
	}
}

func TestBuild(t *testing.T) {
	got, err := Build(config.Sources{Sources: []config.Source{
		{ID: "a", Kind: config.SourceKindHTTP},
		{ID: "b", Kind: config.SourceKindExec},
	}})
	if err != nil || len(got) != 2 {
		t.Fatalf("build: %v %v", got, err)
	}
	if _, err := Build(config.Sources{Sources: []config.Source{{ID: "c", Kind: "ftp"}}}); err == nil {
		t.Fatalf("expected unknown kind error")
	}
}
