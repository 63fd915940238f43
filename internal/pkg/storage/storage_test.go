package storage

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLocalStoragePutExists(t *testing.T) {
	dir := t.TempDir()
	st, err := NewLocalStorage(dir, "http://localhost:8080/assets/")
	if err != nil {
		t.Fatalf("new local storage: %v", err)
	}

	ctx := context.Background()
	key := "backgrounds/u1/gen.png"

	ok, err := st.Exists(ctx, key)
	if err != nil || ok {
		t.Fatalf("expected missing object, got ok=%v err=%v", ok, err)
	}

	if err := st.Put(ctx, key, bytes.NewReader([]byte("png")), "image/png"); err != nil {
		t.Fatalf("put: %v", err)
	}

	ok, err = st.Exists(ctx, key)
	if err != nil || !ok {
		t.Fatalf("expected object, got ok=%v err=%v", ok, err)
	}
	if _, err := os.Stat(filepath.Join(dir, key)); err != nil {
		t.Fatalf("file not written: %v", err)
	}
	if got := st.GetURL(key); got != "http://localhost:8080/assets/backgrounds/u1/gen.png" {
		t.Fatalf("unexpected url %q", got)
	}
}

func TestLocalStorageRejectsEscape(t *testing.T) {
	dir := t.TempDir()
	st, _ := NewLocalStorage(dir, "http://x")
	if err := st.Put(context.Background(), "../../etc/passwd", bytes.NewReader(nil), "text/plain"); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "etc", "passwd")); err != nil {
		t.Fatalf("expected key to be confined to base path: %v", err)
	}
}

func TestValidateImage(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n0000")
	mime, err := ValidateImage(png, MaxImageSize)
	if err != nil || mime != "image/png" {
		t.Fatalf("expected image/png, got %q err=%v", mime, err)
	}
	if _, err := ValidateImage(nil, MaxImageSize); !errors.Is(err, ErrEmptyFile) {
		t.Fatalf("expected ErrEmptyFile, got %v", err)
	}
	if _, err := ValidateImage([]byte("<html></html>"), MaxImageSize); !errors.Is(err, ErrInvalidMimeType) {
		t.Fatalf("expected ErrInvalidMimeType, got %v", err)
	}
	if _, err := ValidateImage(png, 4); !errors.Is(err, ErrFileTooLarge) {
		t.Fatalf("expected ErrFileTooLarge, got %v", err)
	}
}

func TestNewUnknownDriver(t *testing.T) {
	if _, err := New(Config{Driver: "ftp"}); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}
