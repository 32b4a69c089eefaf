package lockmgr

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/sKV/lib/store"
	"github.com/gofrs/flock"
)

type lockMgrImpl struct {
	path       string
	retryDelay time.Duration
}

// NewLockManager creates a lock manager for the given lock file. The file
// is created on first acquisition if it does not exist. The manager holds
// no state besides the path, so creating multiple managers for the same
// file is safe and they will coordinate through the OS lock.
func NewLockManager(path string) ILockManager {
	return &lockMgrImpl{
		path:       path,
		retryDelay: defaultRetryDelay,
	}
}

func (lm *lockMgrImpl) AcquireShared(timeout time.Duration) (IFileLock, error) {
	return lm.acquire(timeout, false)
}

func (lm *lockMgrImpl) AcquireExclusive(timeout time.Duration) (IFileLock, error) {
	return lm.acquire(timeout, true)
}

func (lm *lockMgrImpl) Path() string {
	return lm.path
}

// acquire obtains the lock in the requested mode. Every acquisition uses
// a fresh file description so that shared and exclusive holders conflict
// correctly even within a single process.
func (lm *lockMgrImpl) acquire(timeout time.Duration, exclusive bool) (IFileLock, error) {
	fl := flock.New(lm.path)

	var (
		ok  bool
		err error
	)

	if timeout <= 0 {
		// Single non-blocking attempt
		if exclusive {
			ok, err = fl.TryLock()
		} else {
			ok, err = fl.TryRLock()
		}
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if exclusive {
			ok, err = fl.TryLockContext(ctx, lm.retryDelay)
		} else {
			ok, err = fl.TryRLockContext(ctx, lm.retryDelay)
		}
	}

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, store.Errorf(store.RetCBusy,
				"timed out acquiring %s lock on %s after %s", modeName(exclusive), lm.path, timeout)
		}
		return nil, store.Errorf(store.RetCInternalError,
			"acquiring %s lock on %s: %v", modeName(exclusive), lm.path, err)
	}
	if !ok {
		return nil, store.Errorf(store.RetCBusy,
			"%s lock on %s is held elsewhere", modeName(exclusive), lm.path)
	}

	return &fileLockImpl{fl: fl}, nil
}

type fileLockImpl struct {
	fl       *flock.Flock
	released atomic.Bool
}

func (l *fileLockImpl) Path() string {
	return l.fl.Path()
}

func (l *fileLockImpl) Release() error {
	if !l.released.CompareAndSwap(false, true) {
		return nil
	}
	if err := l.fl.Unlock(); err != nil {
		return store.Errorf(store.RetCInternalError, "releasing lock on %s: %v", l.fl.Path(), err)
	}
	return nil
}
