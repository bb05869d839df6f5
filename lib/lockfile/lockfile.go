// Package lockfile keeps two crawler processes from sharing one data directory.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

var ErrAlreadyLocked = errors.New("data directory is in use by another process")

type Lock struct {
	path string
	f    *os.File
}

// Acquire takes an exclusive lock on path without blocking, the holder's pid is
// written into the file.
func Acquire(path string) (*Lock, error) {
	if path == "" {
		return nil, fmt.Errorf("lock path is empty")
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	err = lockFile(f)
	if errors.Is(err, ErrAlreadyLocked) {
		f.Close()
		if pid, ok := Holder(path); ok {
			return nil, fmt.Errorf("%w (pid %d)", ErrAlreadyLocked, pid)
		}
		return nil, err
	}
	if err != nil {
		f.Close()
		return nil, err
	}

	_ = f.Truncate(0)
	_, _ = f.Seek(0, 0)
	_, _ = fmt.Fprintf(f, "%d\n", os.Getpid())
	_ = f.Sync()

	return &Lock{path: path, f: f}, nil
}

// Holder returns the pid last written to the lock file.
func Holder(path string) (int, bool) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(contents)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

func (l *Lock) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

func (l *Lock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	unlockErr := unlockFile(l.f)
	closeErr := l.f.Close()
	l.f = nil
	return errors.Join(unlockErr, closeErr)
}
