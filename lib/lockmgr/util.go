package lockmgr

import "time"

const (
	// defaultRetryDelay is the polling interval while waiting for a
	// contended lock.
	defaultRetryDelay = 25 * time.Millisecond

	// SidecarSuffix is appended to a data file path to derive the path
	// of its lock file.
	SidecarSuffix = ".lock"
)

// SidecarPath derives the lock file path for a data file. The lock is
// taken on a sidecar file rather than the data file itself so that
// atomic-rename rewrites of the data file never invalidate held locks.
func SidecarPath(dataPath string) string {
	return dataPath + SidecarSuffix
}

// modeName returns a human-readable name for a lock mode.
func modeName(exclusive bool) string {
	if exclusive {
		return "exclusive"
	}
	return "shared"
}
