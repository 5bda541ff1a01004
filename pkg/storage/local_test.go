package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLocalStorageRoundTrip(t *testing.T) {
	base := t.TempDir()
	s, err := NewLocalStorage(LocalConfig{BasePath: base})
	if err != nil {
		t.Fatalf("NewLocalStorage: %v", err)
	}
	ctx := context.Background()
	key := "attachments/2024-03-01/a1.txt"

	if err := s.Put(ctx, key, strings.NewReader("payload"), 7, "text/plain"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if ok, err := s.Exists(ctx, key); err != nil || !ok {
		t.Fatalf("Exists = %v, %v", ok, err)
	}

	rc, err := s.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "payload" {
		t.Fatalf("content = %q", data)
	}

	if url, err := s.URL(ctx, key, 0); err != nil || url != "/"+key {
		t.Fatalf("URL = %q, %v", url, err)
	}

	entries, _ := os.ReadDir(filepath.Join(base, "attachments", "2024-03-01"))
	if len(entries) != 1 {
		t.Fatalf("expected only the stored file, found %d entries", len(entries))
	}

	if err := s.Delete(ctx, key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(ctx, key); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
	if _, err := s.Get(ctx, key); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get after delete: %v", err)
	}
	if _, err := s.URL(ctx, key, 0); !errors.Is(err, ErrNotFound) {
		t.Fatalf("URL after delete: %v", err)
	}
}

func TestLocalStorageRejectsEscapingKeys(t *testing.T) {
	s, err := NewLocalStorage(LocalConfig{BasePath: t.TempDir()})
	if err != nil {
		t.Fatalf("NewLocalStorage: %v", err)
	}
	ctx := context.Background()

	for _, key := range []string{"../outside", "a/../../outside", ".", "/etc/passwd"} {
		if err := s.Put(ctx, key, strings.NewReader("x"), 1, ""); err == nil {
			t.Errorf("Put(%q) succeeded", key)
		}
	}
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	if _, err := New(context.Background(), Config{Driver: "ftp"}); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}
