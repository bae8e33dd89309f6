package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
)

const lockFileName = ".mediaq.lock"

// StorageError wraps any local filesystem failure. The orchestrator treats it
// as fatal for the job, unlike a single failed segment download.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Root is the directory every job target path is resolved against.
type Root struct {
	dir string
}

func NewRoot(dir string) (*Root, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, &StorageError{Op: "resolve", Path: dir, Err: err}
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, &StorageError{Op: "mkdir", Path: abs, Err: err}
	}
	return &Root{dir: abs}, nil
}

func (r *Root) Dir() string { return r.dir }

// Abs maps a relative target path onto the root, refusing anything that
// would land outside it.
func (r *Root) Abs(rel string) (string, error) {
	if filepath.IsAbs(rel) {
		return "", &StorageError{Op: "resolve", Path: rel, Err: fmt.Errorf("path must be relative")}
	}
	full := filepath.Join(r.dir, filepath.FromSlash(rel))
	if full != r.dir && !strings.HasPrefix(full, r.dir+string(filepath.Separator)) {
		return "", &StorageError{Op: "resolve", Path: rel, Err: fmt.Errorf("path escapes storage root")}
	}
	return full, nil
}

func (r *Root) MkdirAll(rel string) error {
	full, err := r.Abs(rel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(full, 0755); err != nil {
		return &StorageError{Op: "mkdir", Path: full, Err: err}
	}
	return nil
}

// WriteFile stores data at rel. The bytes go to a .part sibling first and are
// renamed into place after a sync, so readers never observe a partial file.
func (r *Root) WriteFile(rel string, data []byte) error {
	full, err := r.Abs(rel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return &StorageError{Op: "mkdir", Path: filepath.Dir(full), Err: err}
	}

	partPath := full + ".part"
	f, err := os.OpenFile(partPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return &StorageError{Op: "create", Path: partPath, Err: err}
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(partPath)
		return &StorageError{Op: "write", Path: partPath, Err: err}
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(partPath)
		return &StorageError{Op: "sync", Path: partPath, Err: err}
	}
	if err := f.Close(); err != nil {
		os.Remove(partPath)
		return &StorageError{Op: "close", Path: partPath, Err: err}
	}

	if err := os.Rename(partPath, full); err != nil {
		os.Remove(partPath)
		return &StorageError{Op: "rename", Path: full, Err: err}
	}
	return nil
}

func (r *Root) ReadFile(rel string) ([]byte, error) {
	full, err := r.Abs(rel)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, &StorageError{Op: "read", Path: full, Err: err}
	}
	return data, nil
}

// LockDir takes an exclusive advisory lock on the directory rel, creating it
// if needed. The returned func releases the lock.
func (r *Root) LockDir(ctx context.Context, rel string) (func(), error) {
	if err := r.MkdirAll(rel); err != nil {
		return nil, err
	}
	full, _ := r.Abs(rel)
	lockPath := filepath.Join(full, lockFileName)

	fl := flock.New(lockPath)
	locked, err := fl.TryLockContext(ctx, 100*time.Millisecond)
	if err != nil {
		return nil, &StorageError{Op: "lock", Path: lockPath, Err: err}
	}
	if !locked {
		return nil, &StorageError{Op: "lock", Path: lockPath, Err: fmt.Errorf("lock not acquired")}
	}

	// The lock file stays on disk; every holder must share its inode.
	return func() { fl.Unlock() }, nil
}
