package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWriteFileIsAtomic(t *testing.T) {
	root, err := NewRoot(t.TempDir())
	if err != nil {
		t.Fatalf("NewRoot failed: %v", err)
	}

	if err := root.WriteFile("images/demo.thumb.jpg", []byte("jpeg")); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	full := filepath.Join(root.Dir(), "images", "demo.thumb.jpg")
	data, err := os.ReadFile(full)
	if err != nil || string(data) != "jpeg" {
		t.Fatalf("unexpected content %q err=%v", data, err)
	}
	if _, err := os.Stat(full + ".part"); !os.IsNotExist(err) {
		t.Fatalf("expected .part file to be gone, stat err=%v", err)
	}

	if err := root.WriteFile("images/demo.thumb.jpg", []byte("new")); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}
	if data, _ := root.ReadFile("images/demo.thumb.jpg"); string(data) != "new" {
		t.Fatalf("expected overwrite, got %q", data)
	}
}

func TestAbsRejectsEscapes(t *testing.T) {
	root, err := NewRoot(t.TempDir())
	if err != nil {
		t.Fatalf("NewRoot failed: %v", err)
	}

	for _, rel := range []string{"../outside", "hls/../../x", "/etc/passwd"} {
		_, err := root.Abs(rel)
		var se *StorageError
		if !errors.As(err, &se) {
			t.Errorf("Abs(%q): expected StorageError, got %v", rel, err)
		}
	}

	if _, err := root.Abs("hls/demo/ep-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestWriteFileFailureIsStorageError(t *testing.T) {
	dir := t.TempDir()
	root, err := NewRoot(dir)
	if err != nil {
		t.Fatalf("NewRoot failed: %v", err)
	}
	// a regular file where a directory is needed
	if err := os.WriteFile(filepath.Join(dir, "hls"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	err = root.WriteFile("hls/demo/index.m3u8", []byte("#EXTM3U"))
	var se *StorageError
	if !errors.As(err, &se) {
		t.Fatalf("expected StorageError, got %v", err)
	}
}

func TestLockDirSerializesWriters(t *testing.T) {
	root, err := NewRoot(t.TempDir())
	if err != nil {
		t.Fatalf("NewRoot failed: %v", err)
	}

	unlock, err := root.LockDir(context.Background(), "hls/demo/ep-1")
	if err != nil {
		t.Fatalf("LockDir failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	if _, err := root.LockDir(ctx, "hls/demo/ep-1"); err == nil {
		t.Fatal("expected second lock to wait and fail while the first is held")
	}

	unlock()

	unlock2, err := root.LockDir(context.Background(), "hls/demo/ep-1")
	if err != nil {
		t.Fatalf("expected lock after release, got %v", err)
	}
	unlock2()
}
