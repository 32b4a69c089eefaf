// Package archive moves rarely used entries out of the live store into
// a compressed on-disk archive and back.
//
// Key Features:
//
//   - Archive selected keys, optionally removing them from the store
//   - Restore archived entries individually or all at once
//   - Cold key sweep driven by the predictive cache's scores
//   - Snappy compressed archive file with a human readable json index
//   - Archive and index rewrites are atomic (write to temp, then rename)
//
// Implementation Details:
//
// The archive is a single compressed snapshot of full entries, encoded
// with the same codec family the store uses for its data file. Every
// archive operation reads the snapshot, applies the change and rewrites
// it; archives hold cold data, so rewrite cost is acceptable. Alongside
// the snapshot sits a json index with per-key metadata (archive time,
// payload size, data type) that can be listed without touching the
// compressed file.
//
// Archiving copies entries out of the store first and deletes the live
// copies only after the rewritten archive is durable, so a crash in
// between leaves at worst a key present on both sides. Restoring
// re-inserts entries with their original value and ttl but a fresh
// lifecycle (new timestamps, reset access count), then removes them
// from the archive. A missing or unreadable archive file is treated as
// empty rather than as an error.
//
// Thread Safety:
//
// All methods are safe for concurrent use. A single mutex serializes
// index access and file rewrites.
//
// Usage Example:
//
//	m, err := archive.New(archive.DefaultOptions("./data/archive"))
//	if err != nil {
//		...
//	}
//
//	// move specific keys out of the store
//	n, err := m.ArchiveKeys(s, []string{"report:2024"}, true)
//
//	// or let the cache pick cold candidates
//	n, err = m.ArchiveColdKeys(s, c, 0.3, 100)
//
//	// bring everything back
//	n, err = m.RestoreKeys(s, nil)
//
// Suitable Use Cases:
//
//   - Keeping the live store small on long running single node setups
//   - Retiring historical data that must stay restorable
//   - Automated tiering together with the cache's cold key scores
package archive
