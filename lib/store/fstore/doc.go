// Package fstore implements a file-backed, single-node key-value store based on the
// store.IStore interface. The full working set lives in memory, and every mutation
// rewrites the single data file so that the durable state always matches the last
// acknowledged write.
//
// Key Features:
//   - Durable storage in a single data file with atomic replacement
//   - Pluggable on-disk format through the codec package (json, gob, binary)
//   - Per-key time-to-live with lazy expiry on read and a background sweep
//   - Cross-process coordination through an advisory sidecar file lock
//   - Per-entry access metadata (access count, last access time)
//   - Thread-safe operations for concurrent access
//
// Implementation Details:
//
//   - Atomic Persistence: Writes never touch the data file in place. The complete
//     entry set is encoded into a temporary file in the same directory, synced, and
//     then renamed over the data file. A crash at any point leaves either the old
//     or the new state on disk, never a torn mix of both.
//
//   - Expiry Model: Entries with a ttl become logically absent the moment their
//     deadline passes, on every read path, independent of the sweep schedule. The
//     background sweep additionally rewrites the data file without the expired
//     entries so that durable state and disk usage catch up.
//
//   - File Locking: All reads and rewrites of the data file are guarded by an
//     exclusive advisory lock on a sidecar file. Lock acquisition is bounded by a
//     timeout, and a held lock surfaces as a busy error (store.IsBusy) that the
//     caller can retry, rather than blocking indefinitely.
//
//   - Corruption Handling: If the data file cannot be decoded at startup, the
//     store renames it aside, logs the failure loudly and starts empty, keeping
//     the node available. Opening with Options.StrictOpen inverts this trade-off
//     and fails instead.
//
// Thread Safety:
//
//	All operations are thread-safe. A single mutex serialises index mutations
//	together with their persistence step, so concurrent writers observe a strict
//	order of durable states. The background sweep coordinates with foreground
//	operations through the same mutex and the file lock.
//
// Usage Example:
//
//	// Create a store in ./data using the default json codec
//	s, err := fstore.New(fstore.DefaultOptions("./data"))
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer s.Close()
//
//	// Store a value with 5-minute expiration
//	err = s.Put("session:123", store.NewStringValue("abc"), 5*time.Minute)
//
//	// Retrieve the value
//	value, exists, err := s.Get("session:123")
//
// Suitable Use Cases:
//
//	The file store is ideal for:
//	- Embedded configuration, session and state storage for a single node
//	- Datasets that comfortably fit in memory (up to roughly a million entries)
//	- Deployments where a human-inspectable data file (json codec) is valuable
//
// Performance Considerations:
//
//	Reads are served from memory and are cheap. Every mutation rewrites the
//	entire data file, so write cost grows with the total dataset size rather
//	than the size of the changed entry. For write-heavy workloads keep the
//	dataset small or batch mutations at the application level.
package fstore
