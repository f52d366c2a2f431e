package usecase

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/yokoszn/CreatureGRC/internal/domain"
)

type failingBlobs struct{}

func (failingBlobs) Put(context.Context, io.Reader, string, string) (domain.BlobRef, error) {
	return domain.BlobRef{}, errors.New("no space left on device")
}

func (failingBlobs) Open(context.Context, string) (io.ReadCloser, error) {
	return nil, domain.ErrNotFound
}

type stubCollector struct {
	batch domain.EvidenceBatch
	err   error
	calls int
}

func (c *stubCollector) Collect(context.Context, int) (domain.EvidenceBatch, error) {
	c.calls++
	return c.batch, c.err
}

type stubLease struct {
	held map[string]string
}

func (l *stubLease) Acquire(_ context.Context, key, owner string, _ time.Duration) (bool, error) {
	if l.held == nil {
		l.held = map[string]string{}
	}
	if cur, ok := l.held[key]; ok && cur != owner {
		return false, nil
	}
	l.held[key] = owner
	return true, nil
}

func (l *stubLease) Release(_ context.Context, key, owner string) error {
	if l.held[key] == owner {
		delete(l.held, key)
	}
	return nil
}
