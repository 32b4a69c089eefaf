package store

import (
	"errors"
	"fmt"
	"time"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// IStore is the generic interface for the storage engine. It owns the
// canonical key to entry mapping and its durable representation.
// All write operations return an error (nil on success), while read
// operations additionally return the requested data and a boolean
// indicating whether a live (not expired) entry was found.
type IStore interface {
	// Put inserts or replaces the entry for a key. Replacing is a full
	// replace, not a merge: timestamps and the access counter start over.
	// A zero ttl means the entry never expires.
	Put(key string, value Value, ttl time.Duration) (err error)
	// Get returns the value for a key. An expired entry is lazily removed
	// and reported as not found. A successful Get bumps the entry's
	// access counter and last-accessed timestamp.
	Get(key string) (value Value, loaded bool, err error)
	// Delete removes the entry for a key. The boolean reports whether an
	// entry existed.
	Delete(key string) (deleted bool, err error)
	// Exists reports whether a live entry for the key exists. Unlike Get
	// it does not count as an access.
	Exists(key string) (loaded bool, err error)
	// GetEntry returns a copy of the full entry (value plus metadata) for
	// a key, without counting as an access.
	GetEntry(key string) (entry *Entry, loaded bool, err error)
	// Keys returns all live keys in lexicographic order. Expired entries
	// are cleaned up before the listing is taken.
	Keys() (keys []string, err error)
	// Entries returns deep copies of all live entries keyed by key.
	Entries() (entries map[string]*Entry, err error)
	// ClearAll removes every entry and returns the number of live entries
	// that were removed.
	ClearAll() (removed int, err error)
	// Stats returns operational statistics about the store.
	// It is not guaranteed that all fields are cheap to compute; callers
	// should not invoke this on a hot path.
	Stats() (stats StoreStats, err error)
	// Close stops background work (the TTL sweep) and persists the final
	// in-memory state. The store must not be used afterwards.
	Close() error
}

// StoreStats describes the state of a store at one point in time.
type StoreStats struct {
	TotalKeys        int     `json:"total_keys"`
	TotalAccesses    uint64  `json:"total_accesses"`
	StorageSizeBytes int64   `json:"storage_size_bytes"`
	Writes           int64   `json:"writes"`
	Deletes          int64   `json:"deletes"`
	Expired          int64   `json:"expired"`
	Errors           int64   `json:"errors"`
	SweepRuns        int64   `json:"sweep_runs"`
	ValueSizeMean    float64 `json:"value_size_mean"`
	ValueSizeStd     float64 `json:"value_size_std"`
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is a custom error type that wraps a return code (of type RetCode)
// and an error message. The code lets callers pick a retry policy: a busy
// store can be retried, a validation failure cannot.
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message.
}

// Error implements the error interface.
func (e *Error) Error() string {
	errorCode := ""
	switch e.Code {
	case RetCInternalError:
		errorCode = "InternalError"
	case RetCBusy:
		errorCode = "Busy"
	case RetCInvalidKey:
		errorCode = "InvalidKey"
	case RetCNotFound:
		errorCode = "NotFound"
	case RetCCorrupted:
		errorCode = "Corrupted"
	case RetCResource:
		errorCode = "Resource"
	default:
		errorCode = "Unknown"
	}

	return fmt.Sprintf("StoreError (code %s): %s", errorCode, e.Msg)
}

// NewError creates a new Error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// Errorf creates a new Error with the given code and a formatted message.
func Errorf(code RetCode, format string, args ...interface{}) *Error {
	return &Error{
		Code: code,
		Msg:  fmt.Sprintf(format, args...),
	}
}

// CodeOf extracts the RetCode from an error. A nil error maps to
// RetCSuccess, an error that is not a *Error maps to RetCInternalError.
func CodeOf(err error) RetCode {
	if err == nil {
		return RetCSuccess
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return RetCInternalError
}

// IsBusy reports whether the error is a transient lock-timeout condition
// that the caller may retry.
func IsBusy(err error) bool {
	return CodeOf(err) == RetCBusy
}

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess       RetCode = iota // 0: Command executed successfully.
	RetCInternalError                // 1: Command failed due to an internal error.
	RetCBusy                         // 2: Cross-process lock not acquired within the timeout (retryable).
	RetCInvalidKey                   // 3: Key rejected by validation.
	RetCNotFound                     // 4: Key absent (a normal outcome for most callers).
	RetCCorrupted                    // 5: Durable artifact unreadable or failed its integrity check.
	RetCResource                     // 6: Required artifact (model, archive) missing.
)
