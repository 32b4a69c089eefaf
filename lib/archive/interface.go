package archive

import (
	"time"

	"github.com/ValentinKolb/sKV/lib/cache"
	"github.com/ValentinKolb/sKV/lib/store"
)

// --------------------------------------------------------------------------
// Result types
// --------------------------------------------------------------------------

// ArchivedKeyInfo describes one archived key as kept in the index.
type ArchivedKeyInfo struct {
	Key        string         `json:"key"`
	ArchivedAt time.Time      `json:"archived_at"`
	Size       int            `json:"size"` // payload size in bytes at archive time
	DataType   store.DataType `json:"data_type"`
}

// ArchiveStats describes the archive on disk.
type ArchiveStats struct {
	ArchivedKeys     int     `json:"archived_keys"`
	ArchiveExists    bool    `json:"archive_exists"`
	ArchiveSizeBytes int64   `json:"archive_size_bytes"`
	CompressionRatio float64 `json:"compression_ratio"` // compressed size relative to raw, 0 if unknown
}

// --------------------------------------------------------------------------
// Interface
// --------------------------------------------------------------------------

// IArchiveManager moves rarely used entries out of the live store into a
// compressed archive file and restores them on demand. Archived entries
// keep their full metadata snapshot; restoring re-inserts them as fresh
// writes, so the ttl clock starts over and access counters reset.
type IArchiveManager interface {
	// ArchiveKeys copies the given keys with their metadata into the
	// archive and returns how many were archived. Keys absent from the
	// store are silently skipped, duplicates in keys count once. With
	// removeFromStore the live entries are deleted after the archive
	// was written. On an error the archive and store may be partially
	// updated; archiving is retry-safe.
	ArchiveKeys(s store.IStore, keys []string, removeFromStore bool) (int, error)

	// ArchiveColdKeys asks the cache for keys predicted below the
	// threshold and archives up to maxKeys of them, removing the live
	// entries. Non-positive arguments use the defaults (0.3, 100).
	ArchiveColdKeys(s store.IStore, c cache.ICache, threshold float64, maxKeys int) (int, error)

	// RestoreKeys re-inserts archived entries into the store and removes
	// them from the archive, returning how many were restored. A nil
	// keys slice restores everything; an empty non-nil slice restores
	// nothing. Restored entries that carried a ttl get a fresh ttl
	// clock.
	RestoreKeys(s store.IStore, keys []string) (int, error)

	// ListArchivedKeys returns the index, sorted by key.
	ListArchivedKeys() []ArchivedKeyInfo

	// IsArchived reports whether the key is in the archive index.
	IsArchived(key string) bool

	// ArchiveStats describes the archive on disk.
	ArchiveStats() ArchiveStats

	// DeleteArchive removes the archive and its index permanently.
	DeleteArchive() error
}
