// Package daemonrunner owns the daemon's single-instance guard: the lock
// file that keeps a second daemon from racing the first for the RPC socket,
// and a PID file recording the running daemon's process id.
package daemonrunner

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// ErrLocked is returned when another process already holds the daemon lock.
var ErrLocked = errors.New("histd: daemon lock already held by another process")

// LockInfo is the metadata persisted into daemon.lock when the lock is
// acquired, so the running daemon can be identified without opening the
// RPC socket (see ReadLockInfo).
type LockInfo struct {
	PID        int       `json:"pid"`
	SocketPath string    `json:"socket_path"`
	Version    string    `json:"version"`
	StartedAt  time.Time `json:"started_at"`
}

// Lock represents a held lock on the daemon.lock file.
type Lock struct {
	file *os.File
}

// Close releases the lock.
func (l *Lock) Close() error {
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// Acquire takes an exclusive lock on <stateDir>/daemon.lock, writes lock
// metadata into it, and mirrors the PID into <stateDir>/daemon.pid. Returns
// ErrLocked if another live daemon already holds the lock.
func Acquire(stateDir, socketPath, version string) (*Lock, error) {
	if err := os.MkdirAll(stateDir, 0o700); err != nil {
		return nil, fmt.Errorf("daemonrunner: create state dir: %w", err)
	}

	lockPath := filepath.Join(stateDir, "daemon.lock")
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("daemonrunner: open lock file: %w", err)
	}

	if err := flockExclusive(f); err != nil {
		_ = f.Close()
		if errors.Is(err, ErrLocked) {
			return nil, ErrLocked
		}
		return nil, fmt.Errorf("daemonrunner: lock file: %w", err)
	}

	info := LockInfo{
		PID:        os.Getpid(),
		SocketPath: socketPath,
		Version:    version,
		StartedAt:  time.Now().UTC(),
	}

	_ = f.Truncate(0)
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("daemonrunner: seek lock file: %w", err)
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(info); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("daemonrunner: write lock metadata: %w", err)
	}
	_ = f.Sync()

	pidPath := filepath.Join(stateDir, "daemon.pid")
	if err := os.WriteFile(pidPath, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0o600); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("daemonrunner: write pid file: %w", err)
	}

	return &Lock{file: f}, nil
}

// ReadLockInfo reads the lock metadata, including the daemon's socket
// path, without acquiring the lock.
func ReadLockInfo(stateDir string) (LockInfo, error) {
	data, err := os.ReadFile(filepath.Join(stateDir, "daemon.lock"))
	if err != nil {
		return LockInfo{}, err
	}
	var info LockInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return LockInfo{}, fmt.Errorf("daemonrunner: parse lock metadata: %w", err)
	}
	return info, nil
}
