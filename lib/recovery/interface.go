package recovery

import (
	"time"

	"github.com/ValentinKolb/sKV/lib/store"
)

// --------------------------------------------------------------------------
// Operation kinds
// --------------------------------------------------------------------------

// OpKind identifies the kind of a logged mutation.
type OpKind uint8

const (
	// OpPut records a write of a value (with optional ttl) to a key.
	OpPut OpKind = iota + 1
	// OpDelete records the removal of a single key.
	OpDelete
	// OpClear records the removal of all keys.
	OpClear
)

// String returns the log name of the operation kind.
func (k OpKind) String() string {
	switch k {
	case OpPut:
		return "PUT"
	case OpDelete:
		return "DELETE"
	case OpClear:
		return "CLEAR"
	default:
		return "UNKNOWN"
	}
}

// Valid reports whether k is a known operation kind.
func (k OpKind) Valid() bool {
	return k >= OpPut && k <= OpClear
}

// --------------------------------------------------------------------------
// Records
// --------------------------------------------------------------------------

// LogRecord is one immutable record of the transaction log. Records are
// strictly ordered; replay applies them in the order they were appended.
type LogRecord struct {
	ID        string        // unique record id
	Timestamp time.Time     // when the operation was logged
	Op        OpKind        // PUT, DELETE or CLEAR
	Key       string        // target key (empty for CLEAR)
	Value     store.Value   // payload (PUT only)
	TTL       time.Duration // entry ttl (PUT only, 0 = none)
}

// LogStats describes the current state of the transaction log and
// checkpoint artifacts.
type LogStats struct {
	LogExists           bool  `json:"log_exists"`            // transaction log file present on disk
	CheckpointExists    bool  `json:"checkpoint_exists"`     // checkpoint file present on disk
	BufferedRecords     int   `json:"buffered_records"`      // records waiting in the in-memory buffer
	LogRecords          int   `json:"log_records"`           // records in the on-disk log (0 if unreadable)
	LogSizeBytes        int64 `json:"log_size_bytes"`        // size of the transaction log file
	CheckpointSizeBytes int64 `json:"checkpoint_size_bytes"` // size of the checkpoint file
	RecoveryPerformed   bool  `json:"recovery_performed"`    // whether Recover has run in this process
}

// --------------------------------------------------------------------------
// Interface
// --------------------------------------------------------------------------

// IRecoveryManager maintains a write-ahead transaction log and full-state
// checkpoints for a store.IStore, and replays them once at startup.
//
// The intended call order is: Recover before any traffic, LogOperation
// after every successful mutation, CreateCheckpoint periodically, Close
// on shutdown.
type IRecoveryManager interface {
	// LogOperation appends one mutation record to the in-memory buffer.
	// Once the buffer reaches the configured threshold it is flushed to
	// the transaction log. Callers log operations the store has already
	// accepted, after the store reported success.
	//
	// A failed flush keeps the buffered records so they are retried with
	// the next append.
	LogOperation(op OpKind, key string, value store.Value, ttl time.Duration) error

	// Flush forces all buffered records into the transaction log.
	Flush() error

	// CreateCheckpoint flushes the buffer, snapshots the full live entry
	// set of the given store into the checkpoint file and deletes the
	// transaction log. The checkpoint absorbs all prior log history.
	CreateCheckpoint(s store.IStore) error

	// Recover replays the checkpoint (if present) and then the
	// transaction log (in append order) into the given store. It runs at
	// most once per manager lifetime; later calls report false. An
	// unreadable checkpoint or log is treated as absent, recovery never
	// fails because of a corrupt artifact.
	//
	// It reports whether any state was replayed.
	Recover(s store.IStore) (bool, error)

	// LogStats returns the current state of the log and checkpoint
	// artifacts. Unreadable artifacts are reported with zero counts.
	LogStats() LogStats

	// ClearLogs removes the transaction log and checkpoint files and
	// drops all buffered records.
	ClearLogs() error

	// Close flushes any buffered records. The manager must not be used
	// afterwards.
	Close() error
}
