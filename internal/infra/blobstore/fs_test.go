package blobstore

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/yokoszn/CreatureGRC/internal/domain"
)

func TestFSPutIsContentAddressed(t *testing.T) {
	store, err := NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("new fs: %v", err)
	}
	ctx := context.Background()

	first, err := store.Put(ctx, strings.NewReader("user list"), "users.json", "Access")
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if first.Deduplicated {
		t.Fatalf("first put should write a new blob")
	}
	want := "access/" + first.Hash[:2] + "/" + first.Hash
	if first.Path != want {
		t.Fatalf("path = %s, want %s", first.Path, want)
	}

	second, err := store.Put(ctx, strings.NewReader("user list"), "other-name.json", "access")
	if err != nil {
		t.Fatalf("second put: %v", err)
	}
	if !second.Deduplicated || second.Path != first.Path || second.Hash != first.Hash {
		t.Fatalf("expected dedup to %s, got %+v", first.Path, second)
	}

	rc, err := store.Open(ctx, first.Path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rc.Close()
	body, _ := io.ReadAll(rc)
	if string(body) != "user list" {
		t.Fatalf("unexpected content %q", body)
	}
}

func TestFSPutDedupsAcrossExtensions(t *testing.T) {
	store, err := NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("new fs: %v", err)
	}
	ctx := context.Background()

	a, err := store.Put(ctx, strings.NewReader("same bytes"), "users.json", "access")
	if err != nil {
		t.Fatalf("put json: %v", err)
	}
	b, err := store.Put(ctx, strings.NewReader("same bytes"), "users.txt", "access")
	if err != nil {
		t.Fatalf("put txt: %v", err)
	}
	if a.Path != b.Path || !b.Deduplicated {
		t.Fatalf("identical bytes stored twice: a=%s b=%s dedup=%v", a.Path, b.Path, b.Deduplicated)
	}

	other, err := store.Put(ctx, strings.NewReader("same bytes"), "users.json", "logging")
	if err != nil {
		t.Fatalf("put other category: %v", err)
	}
	if other.Path == a.Path || other.Deduplicated {
		t.Fatalf("categories should not share objects: %+v", other)
	}
}

func TestFSPutReplacesDamagedObject(t *testing.T) {
	root := t.TempDir()
	store, err := NewFS(root)
	if err != nil {
		t.Fatalf("new fs: %v", err)
	}
	ctx := context.Background()

	first, err := store.Put(ctx, strings.NewReader("genuine"), "report.pdf", "vuln")
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	full := filepath.Join(root, filepath.FromSlash(first.Path))
	if err := os.WriteFile(full, []byte("tampered"), 0o640); err != nil {
		t.Fatalf("tamper: %v", err)
	}

	second, err := store.Put(ctx, strings.NewReader("genuine"), "report.pdf", "vuln")
	if err != nil {
		t.Fatalf("second put: %v", err)
	}
	if second.Deduplicated || second.Path != first.Path {
		t.Fatalf("expected the damaged object to be rewritten, got %+v", second)
	}
	body, err := os.ReadFile(full)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(body) != "genuine" {
		t.Fatalf("object not repaired: %q", body)
	}
}

func TestFSPutLeavesNoTempFiles(t *testing.T) {
	root := t.TempDir()
	store, err := NewFS(root)
	if err != nil {
		t.Fatalf("new fs: %v", err)
	}
	if _, err := store.Put(context.Background(), strings.NewReader("x"), "a.txt", ""); err != nil {
		t.Fatalf("put: %v", err)
	}
	entries, err := os.ReadDir(filepath.Join(root, ".tmp"))
	if err != nil {
		t.Fatalf("read tmp: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty tmp dir, got %d entries", len(entries))
	}
}

func TestFSPutCancelledWritesNothing(t *testing.T) {
	root := t.TempDir()
	store, err := NewFS(root)
	if err != nil {
		t.Fatalf("new fs: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := store.Put(ctx, strings.NewReader("x"), "a.txt", "logs"); err == nil {
		t.Fatalf("expected error for cancelled context")
	}
	if _, err := os.Stat(filepath.Join(root, "logs")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("category dir should not exist: %v", err)
	}
}

func TestFSPutUnwritableRootIsStorageFailure(t *testing.T) {
	root := t.TempDir()
	store, err := NewFS(root)
	if err != nil {
		t.Fatalf("new fs: %v", err)
	}
	if err := os.RemoveAll(filepath.Join(root, ".tmp")); err != nil {
		t.Fatalf("remove tmp: %v", err)
	}
	_, err = store.Put(context.Background(), strings.NewReader("x"), "a.txt", "logs")
	if !domain.IsStorageFailure(err) {
		t.Fatalf("expected storage failure, got %v", err)
	}
}

func TestFSOpenRejectsTraversal(t *testing.T) {
	store, err := NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("new fs: %v", err)
	}
	for _, p := range []string{"../etc/passwd", "/etc/passwd", "", ".."} {
		if _, err := store.Open(context.Background(), p); !errors.Is(err, ErrInvalidPath) {
			t.Fatalf("open %q: expected ErrInvalidPath, got %v", p, err)
		}
	}
	if _, err := store.Open(context.Background(), "logs/ab/missing.txt"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
