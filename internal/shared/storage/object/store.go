package object

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ErrNotFound is returned when bucket/key does not exist.
var ErrNotFound = errors.New("object not found")

// Store defines the contract for blobs keyed by bucket and object name.
type Store interface {
	Put(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	Exists(ctx context.Context, bucket, key string) (bool, error)
}

// ContentType infers a MIME type from the file extension, falling back to sniffing head.
func ContentType(name string, head []byte) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".md":
		return "text/markdown; charset=utf-8"
	case ".pdf":
		return "application/pdf"
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	}
	if byExt := mime.TypeByExtension(path.Ext(name)); byExt != "" {
		return byExt
	}
	if len(head) == 0 {
		return "application/octet-stream"
	}
	return http.DetectContentType(head)
}

// PutBytes uploads data with an inferred content type and verifies it is readable.
func PutBytes(ctx context.Context, s Store, bucket, key string, data []byte) error {
	contentType := ContentType(key, data)
	if err := s.Put(ctx, bucket, key, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		return err
	}
	return verify(ctx, s, bucket, key)
}

// PutFile uploads a local file and verifies it is readable.
func PutFile(ctx context.Context, s Store, bucket, key, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", localPath, err)
	}
	var sniff [512]byte
	n, readErr := io.ReadFull(f, sniff[:])
	if readErr != nil && readErr != io.EOF && readErr != io.ErrUnexpectedEOF {
		return fmt.Errorf("read sniff: %w", readErr)
	}
	body := io.MultiReader(bytes.NewReader(sniff[:n]), f)
	if err := s.Put(ctx, bucket, key, body, info.Size(), ContentType(key, sniff[:n])); err != nil {
		return err
	}
	return verify(ctx, s, bucket, key)
}

// ReadAll downloads bucket/key into memory.
func ReadAll(ctx context.Context, s Store, bucket, key string) ([]byte, error) {
	rc, err := s.Get(ctx, bucket, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s/%s: %w", bucket, key, err)
	}
	return data, nil
}

// Download copies bucket/key into dir and returns the local path.
func Download(ctx context.Context, s Store, bucket, key, dir string) (string, error) {
	rc, err := s.Get(ctx, bucket, key)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	localPath := filepath.Join(dir, filepath.Base(key))
	f, err := os.Create(localPath)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", localPath, err)
	}
	if _, err := io.Copy(f, rc); err != nil {
		f.Close()
		return "", fmt.Errorf("download %s/%s: %w", bucket, key, err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return localPath, nil
}

// SplitLink splits a "bucket/key" link. A link without a slash has no bucket.
func SplitLink(link string) (bucket, key string) {
	clean := strings.TrimLeft(strings.TrimSpace(link), "/")
	idx := strings.IndexByte(clean, '/')
	if idx <= 0 {
		return "", clean
	}
	return clean[:idx], clean[idx+1:]
}

// JoinLink is the inverse of SplitLink.
func JoinLink(bucket, key string) string {
	return strings.Trim(bucket, "/") + "/" + strings.TrimLeft(key, "/")
}

func verify(ctx context.Context, s Store, bucket, key string) error {
	ok, err := s.Exists(ctx, bucket, key)
	if err != nil {
		return fmt.Errorf("verify %s/%s: %w", bucket, key, err)
	}
	if !ok {
		return fmt.Errorf("verify %s/%s: %w", bucket, key, ErrNotFound)
	}
	return nil
}
