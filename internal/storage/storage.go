// Package storage persists processed artifacts. Every artifact lives
// under a content-local directory below the upload root; when an S3
// bucket is configured each artifact is additionally mirrored there so
// serving nodes can be rebuilt from object storage.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/sentinel-secure/awareness-platform/internal/pkg/logger"
)

// artifactName is the fixed filename of the processed document inside a
// content directory; mirrored assets live alongside it.
const artifactName = "index.html"

// S3Uploader is the slice of the S3 API the store uses.
type S3Uploader interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Store writes artifacts below a local root, optionally mirroring to S3.
type Store struct {
	root   string
	bucket string
	s3     S3Uploader // nil when S3 mirroring is disabled
}

// NewLocal creates a store without S3 mirroring.
func NewLocal(root string) (*Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve upload root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create upload root: %w", err)
	}
	return &Store{root: abs}, nil
}

// NewWithS3 creates a store that also mirrors artifacts to the given
// bucket using the default AWS credential chain.
func NewWithS3(ctx context.Context, root, bucket, region string) (*Store, error) {
	st, err := NewLocal(root)
	if err != nil {
		return nil, err
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	st.bucket = bucket
	st.s3 = s3.NewFromConfig(cfg)
	return st, nil
}

// ContentRoot returns the local directory all of a content item's files
// (artifact and mirrored assets) live under.
func (s *Store) ContentRoot(contentID string) string {
	return filepath.Join(s.root, contentID)
}

// WriteArtifact stores the processed document for a content item and
// returns its path relative to the upload root. The S3 mirror is
// best-effort: a mirror failure is logged, not returned, because the
// local copy is the serving source of truth.
func (s *Store) WriteArtifact(ctx context.Context, contentID string, data []byte) (string, error) {
	dir := s.ContentRoot(contentID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create content dir: %w", err)
	}

	dest := filepath.Join(dir, artifactName)
	tmp := dest + ".part"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("publish artifact: %w", err)
	}

	rel := filepath.ToSlash(filepath.Join(contentID, artifactName))
	if s.s3 != nil {
		if err := s.mirrorToS3(ctx, rel, data); err != nil {
			logger.Warn("artifact S3 mirror failed", "key", rel, "error", err.Error())
		}
	}
	return rel, nil
}

func (s *Store) mirrorToS3(ctx context.Context, key string, data []byte) error {
	_, err := s.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("text/html; charset=utf-8"),
	})
	return err
}

// ReadArtifact loads a processed document by its root-relative path.
func (s *Store) ReadArtifact(artifactPath string) ([]byte, error) {
	clean := filepath.Clean(artifactPath)
	if filepath.IsAbs(clean) || clean == ".." || len(clean) >= 3 && clean[:3] == ".."+string(filepath.Separator) {
		return nil, fmt.Errorf("artifact path %q escapes upload root", artifactPath)
	}
	return os.ReadFile(filepath.Join(s.root, clean))
}
