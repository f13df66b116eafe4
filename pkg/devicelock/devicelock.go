// Package devicelock keeps two vftune processes from tuning the same device
// at once.
package devicelock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/gofrs/flock"
)

// ErrBusy is returned when another process holds the lock.
var ErrBusy = errors.New("device is in use by another vftune process")

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Lock is an exclusive, process-wide lock on one device.
type Lock struct {
	flock *flock.Flock
	path  string
}

// Path returns the lock file used for the device identified by backend and
// arg inside dir.
func Path(dir, backend, arg string) string {
	name := backend
	if arg != "" {
		name += "-" + arg
	}
	name = unsafeChars.ReplaceAllString(name, "_")
	return filepath.Join(dir, "vftune-"+name+".lock")
}

// Acquire takes the lock at path without blocking.
func Acquire(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
	}

	l := &Lock{flock: flock.New(path), path: path}
	acquired, err := l.flock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to try lock on %s: %w", path, err)
	}
	if !acquired {
		return nil, fmt.Errorf("%w (lock file %s)", ErrBusy, path)
	}
	return l, nil
}

// Release releases the lock. The lock file is left in place, removing it
// would race with a process that just opened it.
func (l *Lock) Release() error {
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock on %s: %w", l.path, err)
	}
	return nil
}
