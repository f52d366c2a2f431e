package blobstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/yokoszn/CreatureGRC/internal/domain"
)

// FS stores blobs on a local filesystem. Content is streamed to a temp
// file, fsynced, and renamed into place, so a visible path always has
// complete bytes.
type FS struct {
	root string
}

func NewFS(root string) (*FS, error) {
	if root == "" {
		return nil, errors.New("blob root is required")
	}
	if err := os.MkdirAll(filepath.Join(root, ".tmp"), 0o750); err != nil {
		return nil, &domain.StorageFailure{Op: "init", Path: root, Err: err}
	}
	return &FS{root: root}, nil
}

func (s *FS) Root() string { return s.root }

func (s *FS) Put(ctx context.Context, content io.Reader, logicalName, category string) (domain.BlobRef, error) {
	if err := ctx.Err(); err != nil {
		return domain.BlobRef{}, err
	}
	tmp, err := os.CreateTemp(filepath.Join(s.root, ".tmp"), "blob-*")
	if err != nil {
		return domain.BlobRef{}, &domain.StorageFailure{Op: "put", Path: logicalName, Err: err}
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	hasher := sha256.New()
	size, err := io.Copy(io.MultiWriter(tmp, hasher), &ctxReader{ctx: ctx, r: content})
	if err == nil {
		err = tmp.Sync()
	}
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return domain.BlobRef{}, &domain.StorageFailure{Op: "put", Path: logicalName, Err: err}
	}

	hash := hex.EncodeToString(hasher.Sum(nil))
	rel := ObjectPath(category, hash)
	dst := filepath.Join(s.root, filepath.FromSlash(rel))
	ref := domain.BlobRef{Path: rel, Hash: hash, Size: size}

	// An existing object is reused only if its bytes still match; a
	// damaged one is replaced by the fresh copy below.
	if existing, err := hashFile(dst); err == nil && existing == hash {
		ref.Deduplicated = true
		return ref, nil
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return domain.BlobRef{}, &domain.StorageFailure{Op: "put", Path: rel, Err: err}
	}
	if err := os.Rename(tmpName, dst); err != nil {
		return domain.BlobRef{}, &domain.StorageFailure{Op: "put", Path: rel, Err: err}
	}
	committed = true
	syncDir(filepath.Dir(dst))
	return ref, nil
}

func (s *FS) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	clean, err := checkPath(p)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(s.root, filepath.FromSlash(clean)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: blob %s", domain.ErrNotFound, clean)
		}
		return nil, &domain.StorageFailure{Op: "open", Path: clean, Err: err}
	}
	return f, nil
}

func hashFile(p string) (string, error) {
	f, err := os.Open(p)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
