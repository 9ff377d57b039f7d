// Package lockfile provides per-action mutual exclusion. The periodic
// facility gives no overlap guarantee when an invocation outlives its
// interval, so each action takes a flock'd file before running.
package lockfile

import (
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// ErrHeld is returned by TryLock when another holder has the lock.
var ErrHeld = errors.New("lock is held elsewhere")

// Lock is an advisory file lock.
type Lock struct {
	path string
	file *os.File
}

func New(path string) *Lock {
	return &Lock{path: path}
}

// TryLock acquires the lock without blocking. A held lock yields ErrHeld,
// the signal for a periodic action to skip this cycle instead of piling
// up behind the previous one.
func (l *Lock) TryLock() error {
	if l.file != nil {
		return errors.Errorf("lock %q already acquired by this process", l.path)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return errors.Wrapf(err, "unable to open lock file %q", l.path)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if err == unix.EWOULDBLOCK {
			return ErrHeld
		}
		return errors.Wrapf(err, "unable to lock %q", l.path)
	}
	l.file = f
	return nil
}

// Unlock releases the lock. The file itself stays behind; only the flock
// matters.
func (l *Lock) Unlock() error {
	if l.file == nil {
		return nil
	}
	err := unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	closeErr := l.file.Close()
	l.file = nil
	if err != nil {
		return errors.Wrapf(err, "unable to unlock %q", l.path)
	}
	return closeErr
}
