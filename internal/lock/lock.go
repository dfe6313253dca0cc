// Package lock keeps one roomchatd per profile. The daemon holds an flock on
// the profile's LOCK file and writes its PID and start time into it, so
// other tools can tell who owns the profile and whether it is still alive.
package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

const fileName = "LOCK"

// Owner describes the daemon recorded in a LOCK file.
type Owner struct {
	PID   int
	Since time.Time
}

// LockHeldError is returned when another daemon holds the profile lock.
type LockHeldError struct {
	Owner Owner
	Path  string
}

func (e *LockHeldError) Error() string {
	if e.Owner.Since.IsZero() {
		return fmt.Sprintf("profile already served by PID %d (%s)", e.Owner.PID, e.Path)
	}
	return fmt.Sprintf("profile already served by PID %d since %s (%s)",
		e.Owner.PID, e.Owner.Since.Local().Format(time.DateTime), e.Path)
}

// Lock is a held profile lock.
type Lock struct {
	file *os.File
	path string
}

// Acquire takes the profile lock in profileDir, creating the directory if
// needed, and records the calling process as owner.
func Acquire(profileDir string) (*Lock, error) {
	if err := os.MkdirAll(profileDir, 0700); err != nil {
		return nil, fmt.Errorf("create profile dir: %w", err)
	}
	path := filepath.Join(profileDir, fileName)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = f.Close()
		if !errors.Is(err, syscall.EWOULDBLOCK) {
			return nil, fmt.Errorf("lock %s: %w", path, err)
		}
		owner, _ := readOwner(path)
		return nil, &LockHeldError{Owner: owner, Path: path}
	}

	// A crashed daemon can leave its owner line behind; overwrite it.
	owner := Owner{PID: os.Getpid(), Since: time.Now().UTC().Truncate(time.Second)}
	if err := writeOwner(f, owner); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("record lock owner: %w", err)
	}
	return &Lock{file: f, path: path}, nil
}

// Holder reports the daemon serving profileDir. A LOCK file whose flock is
// free belongs to a daemon that died without releasing it and is ignored.
func Holder(profileDir string) (Owner, bool) {
	path := filepath.Join(profileDir, fileName)
	f, err := os.Open(path)
	if err != nil {
		return Owner{}, false
	}
	defer func() { _ = f.Close() }()

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_SH|syscall.LOCK_NB); err == nil {
		_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		return Owner{}, false
	}
	owner, err := readOwner(path)
	if err != nil || owner.PID == 0 {
		return Owner{}, false
	}
	return owner, true
}

// Release drops the lock and removes the LOCK file. It is safe on a nil or
// already released lock.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	_ = os.Remove(l.path)
	err := l.file.Close()
	l.file = nil
	return err
}

func writeOwner(f *os.File, o Owner) error {
	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.Seek(0, 0); err != nil {
		return err
	}
	_, err := fmt.Fprintf(f, "pid=%d\nsince=%s\n", o.PID, o.Since.Format(time.RFC3339))
	return err
}

func readOwner(path string) (Owner, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Owner{}, err
	}
	return parseOwner(string(data)), nil
}

func parseOwner(content string) Owner {
	var o Owner
	for _, line := range strings.Split(content, "\n") {
		key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
		if !ok {
			continue
		}
		switch key {
		case "pid":
			o.PID, _ = strconv.Atoi(value)
		case "since":
			o.Since, _ = time.Parse(time.RFC3339, value)
		}
	}
	return o
}
