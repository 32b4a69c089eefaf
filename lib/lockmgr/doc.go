// Package lockmgr implements advisory file locking for the durable files
// of the storage engine and its sibling components. It provides a simple
// yet robust way to coordinate access to shared files across goroutines
// and across processes.
//
// The lock manager only ever holds the path of its lock file and has no
// other internal state. It is therefore safe to create multiple managers
// for the same file, even one per operation. As long as the same path is
// used every time, all locks will coordinate as expected.
//
// Core Functionality:
//   - Shared (read) locks that may be held concurrently
//   - Exclusive (write) locks that exclude all other holders
//   - Bounded acquisition timeouts that surface as busy errors
//
// Implementation Approach:
//
//	Locks are advisory OS file locks (flock on Unix, LockFileEx on
//	Windows) taken on a sidecar file next to the guarded data file.
//	Specifically:
//
//	- Sidecar File: The data file itself is rewritten via atomic rename,
//	  which would silently detach any lock held on the old inode. Taking
//	  the lock on a stable sidecar file (SidecarPath) avoids this.
//
//	- Fresh Descriptors: Every acquisition opens its own file
//	  description. OS file locks conflict per description, so shared and
//	  exclusive holders exclude each other correctly even within a
//	  single process.
//
//	- Timeouts: Acquisition polls the lock at a fixed interval until it
//	  succeeds or the timeout elapses. A timeout of zero performs a
//	  single non-blocking attempt. On timeout the error carries the busy
//	  code so callers can map contention to a retryable condition
//	  (check with store.IsBusy).
//
// Thread Safety:
//
//	All methods are safe for concurrent use. Each returned IFileLock is
//	an independent handle; Release is idempotent.
//
// Usage Example:
//
//	mgr := lockmgr.NewLockManager(lockmgr.SidecarPath("/data/store.db"))
//
//	lock, err := mgr.AcquireExclusive(10 * time.Second)
//	if err != nil {
//	    if store.IsBusy(err) {
//	        // Another process holds the file, retry later
//	    }
//	    return err
//	}
//	defer lock.Release()
//
//	// Rewrite the data file safely
//
// Limitations:
//
//	The locks are advisory: they only coordinate processes that use the
//	same lock file. A process that writes the data file without taking
//	the lock is not blocked. File locks on network filesystems (NFS,
//	SMB) have platform-specific semantics and should not be relied on.
package lockmgr
