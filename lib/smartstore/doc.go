// Package smartstore assembles the storage engine, recovery manager,
// predictive cache, anomaly detector and archive manager into one
// embeddable database with a fixed control flow.
//
// Key Features:
//
//   - Single constructor that opens, recovers and wires all components
//   - Writes are durably stored, transaction logged and fed to the
//     anomaly detector
//   - Reads are served cache first with the store as liveness authority
//   - Maintenance entry points for training, preloading, checkpointing,
//     anomaly checks and cold key archival
//   - One snapshot codec shared by store file, checkpoint and archive
//
// Implementation Details:
//
// The write path is store first: only after the storage engine accepted
// a mutation is it appended to the transaction log and reflected in the
// cache (by invalidating the stale copy). The read path consults the
// cache first and double checks liveness against the store's index, so
// a value deleted or expired underneath the cache is never served.
// Archive moves and restores intentionally bypass the transaction log;
// a replay can only resurrect a live copy of an archived key, never
// destroy a restored one.
//
// Thread Safety:
//
// All methods are safe for concurrent use; the components synchronize
// themselves.
//
// Usage Example:
//
//	db, err := smartstore.New(smartstore.DefaultOptions("./data"))
//	if err != nil {
//		...
//	}
//	defer db.Close()
//
//	err = db.Put("user:1", store.NewStringValue("alice"), 0)
//	value, found, err := db.Get("user:1")
//
//	// periodic maintenance
//	db.TrainCache(0)
//	db.OptimizeCache()
//	db.RunAnomalyCheck()
//	db.CreateCheckpoint()
//	db.ArchiveColdKeys(0, 0)
//
// Suitable Use Cases:
//
//   - Embedding a durable, self-managing key-value store in a process
//   - Backing the bundled shell and REST server
package smartstore
