package store

import (
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Entry
// --------------------------------------------------------------------------

// Entry is the unit of stored data. It is exclusively owned by the storage
// engine's index; every other component only ever sees copies.
type Entry struct {
	Key          string        `json:"key"`
	Value        Value         `json:"value"`
	TTL          time.Duration `json:"ttl"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
	LastAccessed time.Time     `json:"last_accessed"`
	AccessCount  uint64        `json:"access_count"`
	ExpiresAt    time.Time     `json:"expires_at"`
}

// NewEntry creates a fresh entry for a key. ExpiresAt is derived from the
// ttl (zero ttl = never expires), keeping the invariant that ExpiresAt is
// set if and only if a ttl is set.
func NewEntry(key string, value Value, ttl time.Duration) *Entry {
	now := time.Now()
	e := &Entry{
		Key:          key,
		Value:        value,
		TTL:          ttl,
		CreatedAt:    now,
		UpdatedAt:    now,
		LastAccessed: now,
	}
	if ttl > 0 {
		e.ExpiresAt = now.Add(ttl)
	}
	return e
}

// Expired reports whether the entry is logically absent at the given time.
// An entry without ExpiresAt never expires.
func (e *Entry) Expired(now time.Time) bool {
	if e.ExpiresAt.IsZero() {
		return false
	}
	return now.After(e.ExpiresAt)
}

// Touch records a successful read access.
func (e *Entry) Touch(now time.Time) {
	e.AccessCount++
	e.LastAccessed = now
}

// Age returns the time elapsed since the entry was created.
func (e *Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.CreatedAt)
}

// Clone returns a deep copy of the entry that is safe to hand out.
func (e *Entry) Clone() *Entry {
	clone := *e
	clone.Value = e.Value.Clone()
	return &clone
}

// --------------------------------------------------------------------------
// Key Validation
// --------------------------------------------------------------------------

// MaxKeyLength bounds the accepted key size.
const MaxKeyLength = 1024

// ValidateKey rejects keys that could not be stored safely: empty keys,
// oversized keys, keys containing path separators (the key must never be
// able to escape the data directory) and keys containing control
// characters.
func ValidateKey(key string) error {
	if key == "" {
		return NewError(RetCInvalidKey, "key must not be empty")
	}
	if len(key) > MaxKeyLength {
		return Errorf(RetCInvalidKey, "key exceeds %d bytes", MaxKeyLength)
	}
	if strings.ContainsAny(key, "/\\") {
		return Errorf(RetCInvalidKey, "key %q contains a path separator", key)
	}
	for _, r := range key {
		if r < 0x20 || r == 0x7f {
			return Errorf(RetCInvalidKey, "key %q contains a control character", key)
		}
	}
	return nil
}
