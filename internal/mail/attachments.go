package mail

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/oauth2/clientcredentials"

	"hsmt-backend/internal/shared/storage/object"
)

// FileStore fetches attachments referenced by id from an external file
// service authenticated with OAuth2 client credentials.
type FileStore struct {
	BaseURL string
	HTTP    *http.Client
}

// NewFileStore builds a FileStore whose client refreshes tokens on demand.
func NewFileStore(ctx context.Context, baseURL, tokenURL, clientID, clientSecret string) *FileStore {
	cfg := clientcredentials.Config{ClientID: clientID, ClientSecret: clientSecret, TokenURL: tokenURL}
	return &FileStore{BaseURL: strings.TrimRight(baseURL, "/"), HTTP: cfg.Client(ctx)}
}

// Fetch downloads a file into dir and returns its path, name and type.
func (s *FileStore) Fetch(ctx context.Context, fileID, dir string) (string, string, string, error) {
	endpoint := s.BaseURL + "/files/" + url.PathEscape(fileID) + "/content"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", "", "", err
	}
	resp, err := s.HTTP.Do(req)
	if err != nil {
		return "", "", "", fmt.Errorf("fetch file %s: %w", fileID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", "", "", fmt.Errorf("fetch file %s: status %d", fileID, resp.StatusCode)
	}

	name := fileID
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil && params["filename"] != "" {
		name = params["filename"]
	}
	tmp, err := os.CreateTemp(dir, "attachment-*")
	if err != nil {
		return "", "", "", err
	}
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", "", "", err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", "", "", err
	}
	return tmp.Name(), name, resp.Header.Get("Content-Type"), nil
}

// Resolver turns outgoing attachment references into in-memory files.
type Resolver struct {
	Files  *FileStore
	TmpDir string
}

// Resolve loads every attachment. Temporary downloads are removed before
// Resolve returns, on success or failure.
func (r *Resolver) Resolve(ctx context.Context, refs []OutgoingAttachment) ([]Attachment, error) {
	out := make([]Attachment, 0, len(refs))
	for _, ref := range refs {
		a, err := r.resolveOne(ctx, ref)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func (r *Resolver) resolveOne(ctx context.Context, ref OutgoingAttachment) (Attachment, error) {
	sources := 0
	for _, s := range []string{ref.Path, ref.FileID, ref.Base64} {
		if s != "" {
			sources++
		}
	}
	if sources != 1 {
		return Attachment{}, errors.New("attachment needs exactly one of path, file id or base64")
	}

	switch {
	case ref.Path != "":
		data, err := os.ReadFile(ref.Path)
		if err != nil {
			return Attachment{}, fmt.Errorf("read attachment: %w", err)
		}
		name := firstNonEmpty(ref.FileName, filepath.Base(ref.Path))
		return Attachment{FileName: name, ContentType: firstNonEmpty(ref.ContentType, object.ContentType(name, data)), Data: data}, nil

	case ref.FileID != "":
		if r.Files == nil {
			return Attachment{}, errors.New("attachment by file id: no file store configured")
		}
		path, name, ct, err := r.Files.Fetch(ctx, ref.FileID, r.TmpDir)
		if err != nil {
			return Attachment{}, err
		}
		defer os.Remove(path)
		data, err := os.ReadFile(path)
		if err != nil {
			return Attachment{}, err
		}
		name = firstNonEmpty(ref.FileName, name)
		return Attachment{FileName: name, ContentType: firstNonEmpty(ref.ContentType, ct, object.ContentType(name, data)), Data: data}, nil

	default:
		if ref.ContentType == "" || ref.FileName == "" {
			return Attachment{}, errors.New("base64 attachment needs file name and content type")
		}
		data, err := base64.StdEncoding.DecodeString(ref.Base64)
		if err != nil {
			return Attachment{}, fmt.Errorf("decode attachment %s: %w", ref.FileName, err)
		}
		return Attachment{FileName: ref.FileName, ContentType: ref.ContentType, Data: data}, nil
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
