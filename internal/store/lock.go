package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

// ErrLocked means another coordinator owns the state directory. Two
// coordinators on the same keys would draw colliding wall-clock nonces.
var ErrLocked = errors.New("instance lock held")

const lockFileName = ".instance.lock"

// LockOwner is the JSON body of the lock file.
type LockOwner struct {
	PID       int       `json:"pid"`
	Host      string    `json:"host,omitempty"`
	Label     string    `json:"label,omitempty"`
	StartedAt time.Time `json:"started_at"`
}

func (o LockOwner) String() string {
	s := fmt.Sprintf("pid %d", o.PID)
	if o.Host != "" {
		s += " on " + o.Host
	}
	if o.Label != "" {
		s += " (" + o.Label + ")"
	}
	if !o.StartedAt.IsZero() {
		s += " since " + o.StartedAt.Format(time.RFC3339)
	}
	return s
}

// LockedError reports who holds the lock. It matches ErrLocked.
type LockedError struct {
	Path   string
	Owner  *LockOwner
	Reason string
}

func (e *LockedError) Error() string {
	msg := fmt.Sprintf("%s: %s", ErrLocked, e.Path)
	if e.Owner != nil {
		msg += " held by " + e.Owner.String()
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *LockedError) Is(target error) bool { return target == ErrLocked }

type LockOptions struct {
	// Takeover removes a lock whose local owner process is gone, or which is
	// older than StaleAfter when the owner runs on another host.
	Takeover   bool
	StaleAfter time.Duration
	// Label names what the holder trades, e.g. "bitkub:THB_BTC satang:btc_thb".
	Label string
	Now   func() time.Time
}

type InstanceLock struct {
	path  string
	owner LockOwner
}

func AcquireLock(root string, opts LockOptions) (*InstanceLock, error) {
	if root == "" {
		return nil, errors.New("state dir required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	host, _ := os.Hostname()
	me := LockOwner{PID: os.Getpid(), Host: host, Label: opts.Label, StartedAt: now().UTC().Truncate(time.Second)}
	path := filepath.Join(root, lockFileName)

	var last *LockedError
	for attempt := 0; attempt < 3; attempt++ {
		err := createLock(path, me)
		if err == nil {
			return &InstanceLock{path: path, owner: me}, nil
		}
		if !os.IsExist(err) {
			return nil, err
		}
		held, readErr := readLockOwner(path)
		if errors.Is(readErr, os.ErrNotExist) {
			continue
		}
		last = &LockedError{Path: path, Owner: held}
		if readErr != nil {
			last.Reason = readErr.Error()
			return nil, last
		}
		if !opts.Takeover {
			return nil, last
		}
		stale, reason := staleOwner(*held, host, now().UTC(), opts.StaleAfter)
		last.Reason = reason
		if !stale {
			return nil, last
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return nil, err
		}
	}
	if last == nil {
		last = &LockedError{Path: path}
	}
	return nil, last
}

func (l *InstanceLock) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

func (l *InstanceLock) Owner() LockOwner {
	if l == nil {
		return LockOwner{}
	}
	return l.owner
}

// Release removes the lock file unless another process has taken it over.
// Calling it more than once is a no-op.
func (l *InstanceLock) Release() error {
	if l == nil || l.path == "" {
		return nil
	}
	path := l.path
	l.path = ""
	held, err := readLockOwner(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err == nil && (held.PID != l.owner.PID || held.Host != l.owner.Host || !held.StartedAt.Equal(l.owner.StartedAt)) {
		return &LockedError{Path: path, Owner: held, Reason: "taken over, left in place"}
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func createLock(path string, owner LockOwner) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	data, err := json.Marshal(owner)
	if err == nil {
		_, err = f.Write(append(data, '\n'))
	}
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
	}
	return err
}

func readLockOwner(path string) (*LockOwner, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var o LockOwner
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("unreadable lock owner: %w", err)
	}
	return &o, nil
}

// staleOwner only checks the pid when the lock was written on this host.
func staleOwner(o LockOwner, host string, now time.Time, staleAfter time.Duration) (bool, string) {
	if o.PID > 0 && o.Host == host {
		if processAlive(o.PID) {
			return false, "owner process running"
		}
		return true, "owner process gone"
	}
	if o.StartedAt.IsZero() || staleAfter <= 0 {
		return false, "owner unknown"
	}
	if now.Sub(o.StartedAt) >= staleAfter {
		return true, "lock expired"
	}
	return false, "lock not stale"
}

// processAlive sends signal 0. EPERM means the process exists under another user.
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	return errors.Is(err, syscall.EPERM)
}
