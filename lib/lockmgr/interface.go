package lockmgr

import "time"

// ILockManager defines the interface for an advisory file lock provider.
// One manager guards one lock file; concurrent acquisitions through the
// same manager or through other processes coordinate via the OS lock.
type ILockManager interface {
	// AcquireShared acquires a shared (read) lock on the lock file.
	// Multiple shared locks may be held at the same time, but a shared
	// lock excludes all exclusive locks. A timeout <= 0 means a single
	// non-blocking attempt. On timeout the returned error carries the
	// busy code (check with store.IsBusy).
	AcquireShared(timeout time.Duration) (lock IFileLock, err error)

	// AcquireExclusive acquires an exclusive (write) lock on the lock
	// file. An exclusive lock excludes all other locks, shared and
	// exclusive. Timeout semantics match AcquireShared.
	AcquireExclusive(timeout time.Duration) (lock IFileLock, err error)

	// Path returns the path of the lock file guarded by this manager.
	Path() string
}

// IFileLock represents a held advisory lock.
type IFileLock interface {
	// Path returns the path of the underlying lock file.
	Path() string

	// Release drops the lock. Releasing an already released lock is a
	// no-op and returns nil.
	Release() error
}
