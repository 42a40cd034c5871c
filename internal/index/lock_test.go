package index

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRunLock_LockUnlock(t *testing.T) {
	dir := t.TempDir()

	lock := NewRunLock(dir)

	if err := lock.Lock(); err != nil {
		t.Fatalf("Lock() failed: %v", err)
	}
	if !lock.IsLocked() {
		t.Error("IsLocked() should be true after Lock()")
	}

	if _, err := os.Stat(lock.Path()); os.IsNotExist(err) {
		t.Error("Lock file was not created")
	}

	if err := lock.Unlock(); err != nil {
		t.Fatalf("Unlock() failed: %v", err)
	}
	if lock.IsLocked() {
		t.Error("IsLocked() should be false after Unlock()")
	}
}

func TestRunLock_UnlockWithoutLock(t *testing.T) {
	dir := t.TempDir()
	lock := NewRunLock(dir)

	if err := lock.Unlock(); err != nil {
		t.Errorf("Unlock() without Lock() should not error: %v", err)
	}
}

func TestRunLock_DoubleUnlock(t *testing.T) {
	dir := t.TempDir()
	lock := NewRunLock(dir)

	if err := lock.Lock(); err != nil {
		t.Fatalf("Lock() failed: %v", err)
	}

	if err := lock.Unlock(); err != nil {
		t.Fatalf("First Unlock() failed: %v", err)
	}

	if err := lock.Unlock(); err != nil {
		t.Errorf("Second Unlock() should not error: %v", err)
	}
}

func TestRunLock_TryLock_Success(t *testing.T) {
	dir := t.TempDir()
	lock := NewRunLock(dir)

	acquired, err := lock.TryLock()
	if err != nil {
		t.Fatalf("TryLock() failed: %v", err)
	}
	if !acquired {
		t.Error("TryLock() should return true when lock is available")
	}

	if err := lock.Unlock(); err != nil {
		t.Fatalf("Unlock() failed: %v", err)
	}
}

func TestRunLock_TryLock_AlreadyHeld(t *testing.T) {
	dir := t.TempDir()

	lock1 := NewRunLock(dir)
	if err := lock1.Lock(); err != nil {
		t.Fatalf("Lock() failed: %v", err)
	}
	defer func() { _ = lock1.Unlock() }()

	lock2 := NewRunLock(dir)
	acquired, err := lock2.TryLock()
	if err != nil {
		t.Fatalf("TryLock() error: %v", err)
	}
	if acquired {
		t.Error("TryLock() should return false when lock is held")
		_ = lock2.Unlock()
	}
}

func TestRunLock_Path(t *testing.T) {
	dir := "/some/dir"
	lock := NewRunLock(dir)

	expected := filepath.Join(dir, "index.lock")
	if lock.Path() != expected {
		t.Errorf("Path() = %q, want %q", lock.Path(), expected)
	}
}

func TestRunLock_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "index")
	lock := NewRunLock(dir)

	acquired, err := lock.TryLock()
	if err != nil {
		t.Fatalf("TryLock() failed: %v", err)
	}
	if !acquired {
		t.Error("TryLock() should acquire in a fresh directory")
	}
	defer func() { _ = lock.Unlock() }()

	if _, err := os.Stat(dir); err != nil {
		t.Errorf("lock directory was not created: %v", err)
	}
}
