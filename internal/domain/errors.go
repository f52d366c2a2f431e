package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidEvidence  = errors.New("invalid evidence")
	ErrInvalidControl   = errors.New("invalid control")
	ErrInvalidPeriod    = errors.New("invalid period")
	ErrAlreadyReviewed  = errors.New("evidence already reviewed")
	ErrUnknownSource    = errors.New("unknown source")
	ErrSourceBusy       = errors.New("source collection already in progress")
	ErrContentMismatch  = errors.New("content hash mismatch")
	ErrStoreUnavailable = errors.New("store unavailable")
)

// TransientSourceError is a network or timeout failure of a source
// collector. It is retried under the activity retry policy.
type TransientSourceError struct {
	Source string
	Err    error
}

func (e *TransientSourceError) Error() string {
	return fmt.Sprintf("source %s: transient: %v", e.Source, e.Err)
}

func (e *TransientSourceError) Unwrap() error { return e.Err }

// PermanentSourceError is an auth or configuration failure. It is recorded
// and not retried again within the same run.
type PermanentSourceError struct {
	Source string
	Err    error
}

func (e *PermanentSourceError) Error() string {
	return fmt.Sprintf("source %s: permanent: %v", e.Source, e.Err)
}

func (e *PermanentSourceError) Unwrap() error { return e.Err }

// StorageFailure means evidence bytes or metadata could not be persisted.
// Only the affected evidence item is aborted; callers may retry.
type StorageFailure struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageFailure) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageFailure) Unwrap() error { return e.Err }

func IsPermanent(err error) bool {
	var perm *PermanentSourceError
	return errors.As(err, &perm)
}

func IsStorageFailure(err error) bool {
	var sf *StorageFailure
	return errors.As(err, &sf)
}
