package local

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"hsmt-backend/internal/shared/storage/object"
)

func TestPutBytesThenReadAll(t *testing.T) {
	store := New(t.TempDir())
	ctx := context.Background()

	if err := object.PutBytes(ctx, store, "markdown", "hs-1/chuong_3.md", []byte("# Chương III")); err != nil {
		t.Fatalf("PutBytes: %v", err)
	}
	data, err := object.ReadAll(ctx, store, "markdown", "hs-1/chuong_3.md")
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(data) != "# Chương III" {
		t.Fatalf("unexpected content %q", data)
	}
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	store := New(t.TempDir())
	_, err := store.Get(context.Background(), "hsmt", "missing.pdf")
	if !errors.Is(err, object.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRejectsTraversal(t *testing.T) {
	store := New(t.TempDir())
	if _, err := store.Exists(context.Background(), "hsmt", "../../etc/passwd"); err == nil {
		t.Fatalf("expected traversal error")
	}
}

func TestPutFileAndDownload(t *testing.T) {
	dir := t.TempDir()
	store := New(filepath.Join(dir, "store"))
	src := filepath.Join(dir, "a.pdf")
	if err := os.WriteFile(src, []byte("%PDF-1.4 test"), 0o644); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := object.PutFile(ctx, store, "hsmt", "hs-9/a.pdf", src); err != nil {
		t.Fatalf("PutFile: %v", err)
	}
	out, err := object.Download(ctx, store, "hsmt", "hs-9/a.pdf", t.TempDir())
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	data, _ := os.ReadFile(out)
	if string(data) != "%PDF-1.4 test" {
		t.Fatalf("unexpected downloaded content %q", data)
	}
}
