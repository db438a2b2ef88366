package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"hsmt-backend/internal/shared/storage/object"
)

// Store implements object.Store on the local filesystem as baseDir/bucket/key.
type Store struct {
	baseDir string
}

// New creates a new local object store rooted at baseDir.
func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

// Put writes r to baseDir/bucket/key.
func (s *Store) Put(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fullPath, err := s.resolve(bucket, key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	f, err := os.OpenFile(fullPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	return nil
}

// Get opens a stored object for reading.
func (s *Store) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fullPath, err := s.resolve(bucket, key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(fullPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("local get %s/%s: %w", bucket, key, object.ErrNotFound)
		}
		return nil, err
	}
	return f, nil
}

// Exists reports whether bucket/key is present.
func (s *Store) Exists(ctx context.Context, bucket, key string) (bool, error) {
	fullPath, err := s.resolve(bucket, key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(fullPath)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func (s *Store) resolve(bucket, key string) (string, error) {
	cleanBucket := filepath.Clean(bucket)
	clean := filepath.Clean(key)
	for _, part := range []string{cleanBucket, clean} {
		if part == "." || strings.HasPrefix(part, "..") || filepath.IsAbs(part) {
			return "", fmt.Errorf("invalid storage key %s/%s", bucket, key)
		}
	}
	return filepath.Join(s.baseDir, cleanBucket, clean), nil
}

var _ object.Store = (*Store)(nil)
