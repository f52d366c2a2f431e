package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/yokoszn/CreatureGRC/internal/domain"
)

type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	UseSSL    bool
}

// S3 stores blobs in an S3-compatible bucket. Objects become visible only
// once PutObject completes.
type S3 struct {
	client *minio.Client
	bucket string
	prefix string
}

func NewS3(cfg S3Config) (*S3, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, errors.New("s3 endpoint and bucket are required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, err
	}
	return &S3{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (s *S3) key(p string) string {
	if s.prefix == "" {
		return p
	}
	return s.prefix + "/" + p
}

func (s *S3) Put(ctx context.Context, content io.Reader, logicalName, category string) (domain.BlobRef, error) {
	data, err := io.ReadAll(content)
	if err != nil {
		return domain.BlobRef{}, &domain.StorageFailure{Op: "put", Path: logicalName, Err: err}
	}
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])
	rel := ObjectPath(category, hash)
	ref := domain.BlobRef{Path: rel, Hash: hash, Size: int64(len(data))}

	if _, err := s.client.StatObject(ctx, s.bucket, s.key(rel), minio.StatObjectOptions{}); err == nil {
		ref.Deduplicated = true
		return ref, nil
	} else if minio.ToErrorResponse(err).Code != "NoSuchKey" {
		return domain.BlobRef{}, &domain.StorageFailure{Op: "stat", Path: rel, Err: err}
	}

	_, err = s.client.PutObject(ctx, s.bucket, s.key(rel), bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:  "application/octet-stream",
		UserMetadata: map[string]string{"sha256": hash},
	})
	if err != nil {
		return domain.BlobRef{}, &domain.StorageFailure{Op: "put", Path: rel, Err: err}
	}
	return ref, nil
}

func (s *S3) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	clean, err := checkPath(p)
	if err != nil {
		return nil, err
	}
	if _, err := s.client.StatObject(ctx, s.bucket, s.key(clean), minio.StatObjectOptions{}); err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, fmt.Errorf("%w: blob %s", domain.ErrNotFound, clean)
		}
		return nil, &domain.StorageFailure{Op: "stat", Path: clean, Err: err}
	}
	obj, err := s.client.GetObject(ctx, s.bucket, s.key(clean), minio.GetObjectOptions{})
	if err != nil {
		return nil, &domain.StorageFailure{Op: "open", Path: clean, Err: err}
	}
	return obj, nil
}
