package smartstore

import (
	"path/filepath"
	"time"

	"github.com/ValentinKolb/sKV/lib/anomaly"
	"github.com/ValentinKolb/sKV/lib/archive"
	"github.com/ValentinKolb/sKV/lib/cache"
	"github.com/ValentinKolb/sKV/lib/codec"
	"github.com/ValentinKolb/sKV/lib/recovery"
	"github.com/ValentinKolb/sKV/lib/store"
	"github.com/ValentinKolb/sKV/lib/store/fstore"
	"go.uber.org/zap"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	// ArchiveDirName is the subdirectory of the data directory holding
	// the archive artifacts.
	ArchiveDirName = "archive"

	// ModelFileName is the cache model file inside the data directory.
	ModelFileName = "cache_model.json"
)

// --------------------------------------------------------------------------
// Core structure and options
// --------------------------------------------------------------------------

// SmartStore wires the five components into one database: every
// operation enters here and is fanned out to the store, the transaction
// log, the cache and the anomaly detector in a fixed order. There is no
// ambient instance; callers construct one and pass it around.
type SmartStore struct {
	opts   *Options
	logger *zap.Logger

	store    store.IStore
	recovery recovery.IRecoveryManager
	cache    cache.ICache
	detector anomaly.IDetector
	archive  archive.IArchiveManager
}

// SystemStats aggregates the statistics of all components.
type SystemStats struct {
	Store     store.StoreStats      `json:"store"`
	Cache     cache.CacheStats      `json:"cache"`
	Anomalies anomaly.DetectorStats `json:"anomalies"`
	Archive   archive.ArchiveStats  `json:"archive"`
	Recovery  recovery.LogStats     `json:"recovery"`
}

// Options configures the database during initialization
type Options struct {
	Dir           string        // Data directory for all artifacts (required)
	CacheCapacity int           // Predictive cache capacity (0 = use default: 1000)
	BufferSize    int           // Log records buffered before a flush (0 = use default: 100)
	SweepInterval time.Duration // Time between store expiry sweeps (0 = use default: 5 sec)
	LockTimeout   time.Duration // Max wait for the cross-process file lock (0 = use default: 10 sec)
	Codec         codec.ICodec  // Snapshot codec for store file, checkpoint and archive (nil = binary)
	StrictOpen    bool          // Fail on a corrupt store file instead of starting empty
	Logger        *zap.Logger   // Logger (nil = no logging)
}

// DefaultOptions returns the default database options for the given
// data directory.
func DefaultOptions(dir string) *Options {
	return &Options{
		Dir:   dir,
		Codec: codec.NewBinaryCodec(),
	}
}

// --------------------------------------------------------------------------
// Initialization and Setup
// --------------------------------------------------------------------------

// New opens a database in opts.Dir and recovers it: the store loads its
// durable file, then the checkpoint and transaction log are replayed
// into it. The returned instance is ready for traffic.
//
// The store file, checkpoint and archive share one snapshot codec, so a
// data directory written with one codec opens correctly later.
//
// Thread-safety: This function is not thread-safe and should only be
// called once per data directory during initialization.
func New(opts *Options) (*SmartStore, error) {
	if opts == nil || opts.Dir == "" {
		return nil, store.NewError(store.RetCInvalidKey, "data directory is required")
	}

	// Copy options and fill in defaults
	o := *opts
	if o.Codec == nil {
		o.Codec = codec.NewBinaryCodec()
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}

	storeOpts := fstore.DefaultOptions(o.Dir)
	storeOpts.Codec = o.Codec
	storeOpts.Logger = o.Logger
	storeOpts.StrictOpen = o.StrictOpen
	if o.SweepInterval > 0 {
		storeOpts.SweepInterval = o.SweepInterval
	}
	if o.LockTimeout > 0 {
		storeOpts.LockTimeout = o.LockTimeout
	}
	s, err := fstore.New(storeOpts)
	if err != nil {
		return nil, err
	}

	rm, err := recovery.New(&recovery.Options{
		Dir:        o.Dir,
		BufferSize: o.BufferSize,
		Codec:      o.Codec,
		Logger:     o.Logger,
	})
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	am, err := archive.New(&archive.Options{
		Dir:    filepath.Join(o.Dir, ArchiveDirName),
		Codec:  o.Codec,
		Logger: o.Logger,
	})
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	db := &SmartStore{
		opts:     &o,
		logger:   o.Logger,
		store:    s,
		recovery: rm,
		cache: cache.New(&cache.Options{
			Capacity:  o.CacheCapacity,
			ModelPath: filepath.Join(o.Dir, ModelFileName),
			Logger:    o.Logger,
		}),
		detector: anomaly.New(&anomaly.Options{Logger: o.Logger}),
		archive:  am,
	}

	replayed, err := rm.Recover(s)
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	db.logger.Info("database ready",
		zap.String("dir", o.Dir), zap.Bool("replayed", replayed))
	return db, nil
}

// --------------------------------------------------------------------------
// Key-Value Operations
// --------------------------------------------------------------------------

// Put stores a value under the given key. After the store accepted the
// write it is appended to the transaction log, the cached copy of the
// key is invalidated and the call's outcome and latency are fed to the
// anomaly detector.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (db *SmartStore) Put(key string, value store.Value, ttl time.Duration) error {
	start := time.Now()

	if err := db.store.Put(key, value, ttl); err != nil {
		db.detector.RecordAccess(false, 0)
		return err
	}
	db.cache.Invalidate(key)

	if err := db.recovery.LogOperation(recovery.OpPut, key, value, ttl); err != nil {
		db.logger.Warn("could not log put operation", zap.String("key", key), zap.Error(err))
	}
	db.detector.RecordAccess(true, time.Since(start))
	return nil
}

// Get returns the value stored under the given key. The cache is
// consulted first; a cached value is only served while the store still
// considers the key live, so deleted or expired entries never resurface
// from the cache. Every lookup is recorded in the cache's pattern
// tracker and the anomaly detector, a miss counts as a failed access.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (db *SmartStore) Get(key string) (store.Value, bool, error) {
	start := time.Now()

	if value, cached := db.cache.GetFromCache(key); cached {
		live, err := db.store.Exists(key)
		if err != nil {
			db.detector.RecordAccess(false, 0)
			return store.Value{}, false, err
		}
		if live {
			db.cache.RecordAccess(key, nil)
			db.detector.RecordAccess(true, time.Since(start))
			return value, true, nil
		}
		db.cache.Invalidate(key)
	}

	value, loaded, err := db.store.Get(key)
	if err != nil {
		db.detector.RecordAccess(false, 0)
		return store.Value{}, false, err
	}

	if loaded {
		db.cache.RecordAccess(key, &value)
	} else {
		db.cache.RecordAccess(key, nil)
	}
	db.detector.RecordAccess(loaded, time.Since(start))
	return value, loaded, nil
}

// Delete removes the entry stored under the given key and reports
// whether one was removed. A successful removal is appended to the
// transaction log and drops the cached copy.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (db *SmartStore) Delete(key string) (bool, error) {
	deleted, err := db.store.Delete(key)
	if err != nil || !deleted {
		return deleted, err
	}
	db.cache.Invalidate(key)

	if err := db.recovery.LogOperation(recovery.OpDelete, key, store.Value{}, 0); err != nil {
		db.logger.Warn("could not log delete operation", zap.String("key", key), zap.Error(err))
	}
	return true, nil
}

// Exists reports whether a live entry is stored under the given key.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (db *SmartStore) Exists(key string) (bool, error) {
	return db.store.Exists(key)
}

// GetEntry returns a copy of the full entry for the given key,
// including its metadata.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (db *SmartStore) GetEntry(key string) (*store.Entry, bool, error) {
	return db.store.GetEntry(key)
}

// Keys returns all live keys, sorted.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (db *SmartStore) Keys() ([]string, error) {
	return db.store.Keys()
}

// ClearAll removes every entry from the store and the cache and logs
// one CLEAR record, so a later replay does not resurrect cleared keys.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (db *SmartStore) ClearAll() (int, error) {
	count, err := db.store.ClearAll()
	if err != nil {
		return 0, err
	}
	db.cache.ClearCache()

	if err := db.recovery.LogOperation(recovery.OpClear, "", store.Value{}, 0); err != nil {
		db.logger.Warn("could not log clear operation", zap.Error(err))
	}
	return count, nil
}

// --------------------------------------------------------------------------
// Maintenance Operations
// --------------------------------------------------------------------------

// TrainCache fits the cache's hot/cold scorer, see ICache.TrainModel.
func (db *SmartStore) TrainCache(minSamples int) bool {
	return db.cache.TrainModel(minSamples)
}

// OptimizeCache preloads the hottest keys from the store into the
// cache, see ICache.OptimizeCache.
func (db *SmartStore) OptimizeCache() int {
	return db.cache.OptimizeCache(db.store)
}

// RunAnomalyCheck runs all anomaly checks against the current traffic
// windows and the store's entries, see IDetector.RunFullCheck.
func (db *SmartStore) RunAnomalyCheck() ([]anomaly.Anomaly, error) {
	return db.detector.RunFullCheck(db.store)
}

// CreateCheckpoint snapshots the store and truncates the transaction
// log, see IRecoveryManager.CreateCheckpoint.
func (db *SmartStore) CreateCheckpoint() error {
	return db.recovery.CreateCheckpoint(db.store)
}

// ArchiveKeys moves the given keys into the archive, see
// IArchiveManager.ArchiveKeys. Removed keys are dropped from the cache.
//
// Archive moves bypass the transaction log: a replay may at worst
// resurrect an archived key's live copy, which the next restore or
// archive run reconciles.
func (db *SmartStore) ArchiveKeys(keys []string, removeFromStore bool) (int, error) {
	n, err := db.archive.ArchiveKeys(db.store, keys, removeFromStore)
	if removeFromStore {
		for _, key := range keys {
			db.cache.Invalidate(key)
		}
	}
	return n, err
}

// ArchiveColdKeys archives up to maxKeys keys whose predicted access
// likelihood is below threshold (non-positive arguments use the archive
// defaults of 0.3 and 100). The entries are removed from the store.
func (db *SmartStore) ArchiveColdKeys(threshold float64, maxKeys int) (int, error) {
	if threshold <= 0 {
		threshold = archive.DefaultColdThreshold
	}
	if maxKeys <= 0 {
		maxKeys = archive.DefaultMaxColdKeys
	}

	cold := db.cache.GetColdKeys(threshold)
	if len(cold) > maxKeys {
		cold = cold[:maxKeys]
	}
	if len(cold) == 0 {
		return 0, nil
	}
	return db.ArchiveKeys(cold, true)
}

// RestoreKeys moves archived entries back into the store, see
// IArchiveManager.RestoreKeys. Nil keys restores everything.
func (db *SmartStore) RestoreKeys(keys []string) (int, error) {
	return db.archive.RestoreKeys(db.store, keys)
}

// --------------------------------------------------------------------------
// Stats and Components
// --------------------------------------------------------------------------

// Stats aggregates the statistics of all components.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (db *SmartStore) Stats() (SystemStats, error) {
	storeStats, err := db.store.Stats()
	if err != nil {
		return SystemStats{}, err
	}

	return SystemStats{
		Store:     storeStats,
		Cache:     db.cache.CacheStats(),
		Anomalies: db.detector.DetectorStats(),
		Archive:   db.archive.ArchiveStats(),
		Recovery:  db.recovery.LogStats(),
	}, nil
}

// Store returns the storage engine.
func (db *SmartStore) Store() store.IStore { return db.store }

// Cache returns the predictive cache.
func (db *SmartStore) Cache() cache.ICache { return db.cache }

// Detector returns the anomaly detector.
func (db *SmartStore) Detector() anomaly.IDetector { return db.detector }

// Archive returns the archive manager.
func (db *SmartStore) Archive() archive.IArchiveManager { return db.archive }

// Recovery returns the recovery manager.
func (db *SmartStore) Recovery() recovery.IRecoveryManager { return db.recovery }

// --------------------------------------------------------------------------
// Lifecycle
// --------------------------------------------------------------------------

// Close flushes buffered transaction log records and shuts the store
// down. The database must not be used afterwards.
func (db *SmartStore) Close() error {
	var firstErr error
	if err := db.recovery.Close(); err != nil {
		db.logger.Warn("flushing transaction log on close failed", zap.Error(err))
		firstErr = err
	}
	if err := db.store.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
