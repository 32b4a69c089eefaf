// Package recovery implements write-ahead logging and checkpointing for a
// store.IStore, so that the store's state can be rebuilt after a crash from
// the last checkpoint plus the operations logged since.
//
// The package focuses on:
//   - Ordered logging of mutations (PUT, DELETE, CLEAR) with a buffered,
//     threshold-triggered flush to a single transaction log file
//   - Full-state checkpoints that absorb and truncate all prior log history
//   - One-shot startup recovery: checkpoint replay followed by log replay
//     in append order
//
// Key Components:
//   - IRecoveryManager: the manager interface (LogOperation, Flush,
//     CreateCheckpoint, Recover, LogStats, ClearLogs, Close)
//   - LogRecord: one immutable operation record with a unique id
//   - encodeLog/decodeLog: the checksummed binary log format
//
// File Layout:
//
//	The manager owns two files in its directory: transaction.log (the
//	ordered operation records) and checkpoint.dat (a full entry snapshot
//	encoded with the configured codec, binary by default). Both files are
//	replaced atomically on every write. The checkpoint codec is detected
//	from the file on read, so the configured codec may change between runs.
//
// Error Handling:
//
//	An unreadable transaction log or checkpoint is treated as empty or
//	absent: a crash in the middle of a log write must never block the next
//	startup. Foreground failures (a flush that cannot write, a replay Put
//	that fails) are surfaced to the caller; a failed flush keeps the
//	buffered records for the next attempt.
//
// Thread Safety:
//
//	All methods are thread-safe. A single mutex makes appends, flushes,
//	checkpoints and recovery mutually exclusive.
//
// Usage:
//
//	rm, err := recovery.New(recovery.DefaultOptions("./data/wal"))
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer rm.Close()
//
//	// Rebuild state once, before accepting traffic
//	replayed, err := rm.Recover(s)
//
//	// Log every accepted mutation
//	err = s.Put("user:1", value, 0)
//	if err == nil {
//		rm.LogOperation(recovery.OpPut, "user:1", value, 0)
//	}
//
//	// Periodically compact history
//	err = rm.CreateCheckpoint(s)
package recovery
