package storage

import (
	"os"
	"sync"

	"github.com/gofrs/flock"
)

// FileLock guards a storage file against concurrent writers, including
// writers in other processes, via a sidecar ".lock" file.
type FileLock struct {
	path string
	fl   *flock.Flock
	mu   sync.Mutex
}

// NewFileLock creates a lock for the file at path.
func NewFileLock(path string) *FileLock {
	return &FileLock{
		path: path,
		fl:   flock.New(path + ".lock"),
	}
}

// Lock acquires an exclusive lock, blocking until it is available.
func (l *FileLock) Lock() error {
	l.mu.Lock()

	if err := l.fl.Lock(); err != nil {
		l.mu.Unlock()
		return err
	}

	return nil
}

// TryLock attempts to acquire the lock without blocking.
func (l *FileLock) TryLock() bool {
	if !l.mu.TryLock() {
		return false
	}

	ok, err := l.fl.TryLock()
	if err != nil || !ok {
		l.mu.Unlock()
		return false
	}

	return true
}

// Unlock releases the lock and removes the sidecar file.
func (l *FileLock) Unlock() error {
	err := l.fl.Unlock()
	os.Remove(l.path + ".lock")
	l.mu.Unlock()
	return err
}
