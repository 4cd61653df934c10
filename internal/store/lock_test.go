package store

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeLock(t *testing.T, root string, owner any) {
	t.Helper()
	var data []byte
	switch v := owner.(type) {
	case string:
		data = []byte(v)
	default:
		var err error
		if data, err = json.Marshal(v); err != nil {
			t.Fatalf("marshal owner: %v", err)
		}
	}
	if err := os.WriteFile(filepath.Join(root, lockFileName), data, 0o644); err != nil {
		t.Fatalf("write lock failed: %v", err)
	}
}

func thisHost(t *testing.T) string {
	t.Helper()
	host, _ := os.Hostname()
	return host
}

func TestAcquireLockExclusive(t *testing.T) {
	root := t.TempDir()
	lock, err := AcquireLock(root, LockOptions{Label: "bitkub:THB_BTC satang:btc_thb"})
	if err != nil {
		t.Fatalf("AcquireLock() error = %v", err)
	}
	_, err = AcquireLock(root, LockOptions{Takeover: true})
	if !errors.Is(err, ErrLocked) {
		t.Fatalf("second AcquireLock() error = %v, want ErrLocked (owner is this process)", err)
	}
	var locked *LockedError
	if !errors.As(err, &locked) || locked.Owner == nil || locked.Owner.PID != os.Getpid() {
		t.Fatalf("error = %#v, want LockedError naming this process", err)
	}
	if !strings.Contains(err.Error(), "bitkub:THB_BTC satang:btc_thb") {
		t.Fatalf("error = %q, want holder label", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	again, err := AcquireLock(root, LockOptions{})
	if err != nil {
		t.Fatalf("AcquireLock() after release error = %v", err)
	}
	defer again.Release()
}

func TestAcquireLockTakesOverDeadOwner(t *testing.T) {
	root := t.TempDir()
	writeLock(t, root, LockOwner{PID: 999999, Host: thisHost(t), StartedAt: time.Now().UTC()})

	if _, err := AcquireLock(root, LockOptions{}); !errors.Is(err, ErrLocked) {
		t.Fatalf("AcquireLock() without takeover error = %v, want ErrLocked", err)
	}
	lock, err := AcquireLock(root, LockOptions{Takeover: true})
	if err != nil {
		t.Fatalf("AcquireLock() error = %v", err)
	}
	defer lock.Release()
	held, err := readLockOwner(lock.Path())
	if err != nil || held.PID != os.Getpid() {
		t.Fatalf("owner = %+v, %v; want this process", held, err)
	}
}

func TestAcquireLockExpiresForeignHost(t *testing.T) {
	root := t.TempDir()
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	writeLock(t, root, LockOwner{PID: 1, Host: "other-box", StartedAt: now.Add(-time.Hour)})
	clock := func() time.Time { return now }

	_, err := AcquireLock(root, LockOptions{Takeover: true, StaleAfter: 2 * time.Hour, Now: clock})
	if !errors.Is(err, ErrLocked) {
		t.Fatalf("AcquireLock() error = %v, want ErrLocked for fresh lock", err)
	}
	lock, err := AcquireLock(root, LockOptions{Takeover: true, StaleAfter: 30 * time.Minute, Now: clock})
	if err != nil {
		t.Fatalf("AcquireLock() error = %v, want takeover of expired lock", err)
	}
	defer lock.Release()
	if got := lock.Owner(); !got.StartedAt.Equal(now) {
		t.Fatalf("Owner().StartedAt = %s, want %s", got.StartedAt, now)
	}
}

func TestAcquireLockKeepsUnreadableOwner(t *testing.T) {
	root := t.TempDir()
	writeLock(t, root, "garbage\n")
	if _, err := AcquireLock(root, LockOptions{Takeover: true, StaleAfter: time.Second}); !errors.Is(err, ErrLocked) {
		t.Fatalf("AcquireLock() error = %v, want ErrLocked", err)
	}
}

func TestReleaseLeavesTakenOverLock(t *testing.T) {
	root := t.TempDir()
	lock, err := AcquireLock(root, LockOptions{})
	if err != nil {
		t.Fatalf("AcquireLock() error = %v", err)
	}
	successor := LockOwner{PID: os.Getpid() + 1, Host: "other-box", StartedAt: time.Now().UTC()}
	writeLock(t, root, successor)

	if err := lock.Release(); !errors.Is(err, ErrLocked) {
		t.Fatalf("Release() error = %v, want ErrLocked", err)
	}
	held, err := readLockOwner(filepath.Join(root, lockFileName))
	if err != nil || held.Host != "other-box" {
		t.Fatalf("lock after Release() = %+v, %v; want successor kept", held, err)
	}
}

func TestReleaseNilAndTwice(t *testing.T) {
	var nilLock *InstanceLock
	if err := nilLock.Release(); err != nil {
		t.Fatalf("nil Release() error = %v", err)
	}
	root := t.TempDir()
	lock, err := AcquireLock(root, LockOptions{})
	if err != nil {
		t.Fatalf("AcquireLock() error = %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("second Release() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, lockFileName)); !os.IsNotExist(err) {
		t.Fatalf("lock file stat error = %v, want not exist", err)
	}
}
