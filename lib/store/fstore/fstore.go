package fstore

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/sKV/lib/codec"
	"github.com/ValentinKolb/sKV/lib/lockmgr"
	"github.com/ValentinKolb/sKV/lib/store"
	"github.com/ValentinKolb/sKV/lib/util"
	"github.com/rcrowley/go-metrics"
	"go.uber.org/zap"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	// DataFileName is the name of the durable data file inside the
	// configured directory.
	DataFileName = "store.db"

	defaultSweepInterval = 5 * time.Second
	defaultLockTimeout   = 10 * time.Second
)

// --------------------------------------------------------------------------
// Core structure and options
// --------------------------------------------------------------------------

// fstoreImpl implements store.IStore backed by a single durable file
type fstoreImpl struct {
	opts   *Options
	path   string // durable data file
	locks  lockmgr.ILockManager
	codec  codec.ICodec
	logger *zap.Logger

	mu     sync.Mutex // guards index, closed and all foreground persists
	index  map[string]*store.Entry
	closed bool

	// background sweep lifecycle
	sweeping atomic.Bool
	stopCh   chan struct{}
	wg       sync.WaitGroup

	// operational counters
	registry  metrics.Registry
	writes    metrics.Counter
	deletes   metrics.Counter
	expired   metrics.Counter
	errors    metrics.Counter
	sweepRuns metrics.Counter
}

// Options configures the store behavior during initialization
type Options struct {
	Dir           string        // Data directory (required)
	SweepInterval time.Duration // Time between expiry sweeps (0 = use default: 5 sec)
	LockTimeout   time.Duration // Max wait for the cross-process file lock (0 = use default: 10 sec)
	Codec         codec.ICodec  // Encoding of the data file (nil = json)
	Logger        *zap.Logger   // Logger (nil = no logging)
	StrictOpen    bool          // Fail on a corrupt data file instead of starting empty
}

// DefaultOptions returns the default store options for the given data
// directory.
func DefaultOptions(dir string) *Options {
	return &Options{
		Dir:           dir,
		SweepInterval: defaultSweepInterval,
		LockTimeout:   defaultLockTimeout,
		Codec:         codec.NewJSONCodec(),
	}
}

// --------------------------------------------------------------------------
// Initialization and Setup
// --------------------------------------------------------------------------

// New opens (or creates) a file-backed store in opts.Dir. The durable
// file is loaded into the in-memory index, entries that expired while
// the store was offline are dropped, and the background expiry sweep is
// started.
//
// A corrupt data file is moved aside and the store starts empty unless
// opts.StrictOpen is set, in which case New fails.
//
// Thread-safety: This function is not thread-safe and should only be
// called once per data directory during initialization.
func New(opts *Options) (store.IStore, error) {
	if opts == nil || opts.Dir == "" {
		return nil, store.NewError(store.RetCInvalidKey, "data directory is required")
	}

	// Copy options and fill in defaults
	o := *opts
	if o.SweepInterval <= 0 {
		o.SweepInterval = defaultSweepInterval
	}
	if o.LockTimeout <= 0 {
		o.LockTimeout = defaultLockTimeout
	}
	if o.Codec == nil {
		o.Codec = codec.NewJSONCodec()
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}

	if err := os.MkdirAll(o.Dir, 0o755); err != nil {
		return nil, store.Errorf(store.RetCInternalError, "creating data directory: %v", err)
	}

	path := filepath.Join(o.Dir, DataFileName)
	registry := metrics.NewRegistry()

	s := &fstoreImpl{
		opts:      &o,
		path:      path,
		locks:     lockmgr.NewLockManager(lockmgr.SidecarPath(path)),
		codec:     o.Codec,
		logger:    o.Logger,
		index:     make(map[string]*store.Entry),
		stopCh:    make(chan struct{}),
		registry:  registry,
		writes:    metrics.NewRegisteredCounter("store.writes", registry),
		deletes:   metrics.NewRegisteredCounter("store.deletes", registry),
		expired:   metrics.NewRegisteredCounter("store.expired", registry),
		errors:    metrics.NewRegisteredCounter("store.errors", registry),
		sweepRuns: metrics.NewRegisteredCounter("store.sweep_runs", registry),
	}

	if err := s.load(); err != nil {
		return nil, err
	}

	s.logger.Info("store opened",
		zap.String("file", path),
		zap.String("codec", o.Codec.Name()),
		zap.Int("keys", len(s.index)))

	s.startSweep()
	return s, nil
}

// --------------------------------------------------------------------------
// Core IStore Interface Methods - Write Operations
// --------------------------------------------------------------------------

// Put stores a value under the given key, replacing any previous entry
// in full. The entire index is persisted before Put returns success; on
// a persist failure the index is rolled back so memory and disk stay
// consistent.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (s *fstoreImpl) Put(key string, value store.Value, ttl time.Duration) error {
	if err := store.ValidateKey(key); err != nil {
		return err
	}
	if ttl < 0 {
		return store.NewError(store.RetCInvalidKey, "ttl must not be negative")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpenLocked(); err != nil {
		return err
	}

	old, hadOld := s.index[key]
	s.index[key] = store.NewEntry(key, value.Clone(), ttl)

	if err := s.persistLocked(); err != nil {
		if hadOld {
			s.index[key] = old
		} else {
			delete(s.index, key)
		}
		s.errors.Inc(1)
		return err
	}

	s.writes.Inc(1)
	return nil
}

// Delete removes the entry for the given key and persists the change.
// It reports whether a live entry was removed; deleting an expired or
// absent key reports false.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (s *fstoreImpl) Delete(key string) (bool, error) {
	if err := store.ValidateKey(key); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpenLocked(); err != nil {
		return false, err
	}

	entry, ok := s.index[key]
	if !ok {
		return false, nil
	}

	wasLive := !entry.Expired(time.Now())
	delete(s.index, key)

	if err := s.persistLocked(); err != nil {
		s.index[key] = entry
		s.errors.Inc(1)
		return false, err
	}

	if wasLive {
		s.deletes.Inc(1)
	} else {
		s.expired.Inc(1)
	}
	return wasLive, nil
}

// ClearAll removes every entry and persists the empty index. It returns
// the number of live entries that were removed.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (s *fstoreImpl) ClearAll() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpenLocked(); err != nil {
		return 0, err
	}

	now := time.Now()
	count := 0
	for _, entry := range s.index {
		if !entry.Expired(now) {
			count++
		}
	}

	old := s.index
	s.index = make(map[string]*store.Entry)

	if err := s.persistLocked(); err != nil {
		s.index = old
		s.errors.Inc(1)
		return 0, err
	}

	s.deletes.Inc(int64(count))
	return count, nil
}

// --------------------------------------------------------------------------
// Core IStore Interface Methods - Read Operations
// --------------------------------------------------------------------------

// Get returns the value stored under the given key. An expired entry is
// lazily evicted (removed from the index and persisted) and reported as
// a miss; a busy data file does not stop the miss. A hit updates the
// entry's access count and last-access timestamp in memory, they become
// durable with the next persist.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (s *fstoreImpl) Get(key string) (store.Value, bool, error) {
	if err := store.ValidateKey(key); err != nil {
		return store.Value{}, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpenLocked(); err != nil {
		return store.Value{}, false, err
	}

	entry, ok := s.index[key]
	if !ok {
		return store.Value{}, false, nil
	}

	if entry.Expired(time.Now()) {
		s.evictExpiredLocked(key)
		return store.Value{}, false, nil
	}

	entry.Touch(time.Now())
	return entry.Value.Clone(), true, nil
}

// Exists reports whether a live entry is stored under the given key.
// Like Get it lazily evicts an expired entry, but it does not update
// access metadata.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (s *fstoreImpl) Exists(key string) (bool, error) {
	if err := store.ValidateKey(key); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpenLocked(); err != nil {
		return false, err
	}

	entry, ok := s.index[key]
	if !ok {
		return false, nil
	}

	if entry.Expired(time.Now()) {
		s.evictExpiredLocked(key)
		return false, nil
	}

	return true, nil
}

// GetEntry returns a copy of the full entry for the given key, including
// its metadata. It is a pure peek: no access metadata is updated and no
// lazy eviction is performed.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (s *fstoreImpl) GetEntry(key string) (*store.Entry, bool, error) {
	if err := store.ValidateKey(key); err != nil {
		return nil, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpenLocked(); err != nil {
		return nil, false, err
	}

	entry, ok := s.index[key]
	if !ok || entry.Expired(time.Now()) {
		return nil, false, nil
	}

	return entry.Clone(), true, nil
}

// Keys runs an expiry cleanup and returns the sorted list of live keys.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (s *fstoreImpl) Keys() ([]string, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if _, err := s.cleanup(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	keys := make([]string, 0, len(s.index))
	for key, entry := range s.index {
		if !entry.Expired(now) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Entries returns a deep copy of all live entries. The copy is detached
// from the index, mutating it has no effect on the store.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (s *fstoreImpl) Entries() (map[string]*store.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpenLocked(); err != nil {
		return nil, err
	}

	now := time.Now()
	entries := make(map[string]*store.Entry, len(s.index))
	for key, entry := range s.index {
		if !entry.Expired(now) {
			entries[key] = entry.Clone()
		}
	}
	return entries, nil
}

// Stats runs an expiry cleanup and returns current store statistics.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (s *fstoreImpl) Stats() (store.StoreStats, error) {
	if err := s.checkOpen(); err != nil {
		return store.StoreStats{}, err
	}
	if _, err := s.cleanup(); err != nil {
		return store.StoreStats{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var accesses uint64
	sizes := make([]float64, 0, len(s.index))
	for _, entry := range s.index {
		accesses += entry.AccessCount
		sizes = append(sizes, float64(entry.Value.Size()))
	}
	sizeStats := util.NewStats(sizes)

	var fileSize int64
	if info, err := os.Stat(s.path); err == nil {
		fileSize = info.Size()
	}

	return store.StoreStats{
		TotalKeys:        len(s.index),
		TotalAccesses:    accesses,
		StorageSizeBytes: fileSize,
		Writes:           s.writes.Count(),
		Deletes:          s.deletes.Count(),
		Expired:          s.expired.Count(),
		Errors:           s.errors.Count(),
		SweepRuns:        s.sweepRuns.Count(),
		ValueSizeMean:    sizeStats.Mean,
		ValueSizeStd:     sizeStats.StdDeviation,
	}, nil
}

// --------------------------------------------------------------------------
// Lifecycle
// --------------------------------------------------------------------------

// Close stops the background sweep, waits for it to finish and persists
// the final state (including access metadata accumulated in memory).
// Close is idempotent.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (s *fstoreImpl) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.stopSweep()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.persistLocked(); err != nil {
		s.errors.Inc(1)
		s.logger.Warn("final persist on close failed", zap.Error(err))
		return err
	}

	s.logger.Info("store closed", zap.String("file", s.path))
	return nil
}

// --------------------------------------------------------------------------
// Background Expiry Sweep
// --------------------------------------------------------------------------

// startSweep starts the background expiry sweep.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (s *fstoreImpl) startSweep() {
	if !s.sweeping.CompareAndSwap(false, true) {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.opts.SweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-s.stopCh:
				return
			case <-ticker.C:
				if _, err := s.cleanup(); err != nil {
					if store.IsBusy(err) {
						// contended data file, try again next tick
						s.logger.Debug("sweep skipped, data file is busy")
					} else {
						s.errors.Inc(1)
						s.logger.Warn("sweep failed", zap.Error(err))
					}
				}
			}
		}
	}()
}

// stopSweep stops the background sweep and waits for it to exit.
// The sweep can't be started again after it has been stopped.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (s *fstoreImpl) stopSweep() {
	if s.sweeping.CompareAndSwap(true, false) {
		close(s.stopCh)
	}
	s.wg.Wait()
}

// cleanup removes expired entries from the durable file and reconciles
// the in-memory index. The durable state is re-read under the exclusive
// file lock (not taken from the in-memory index) so that entries written
// by other processes sharing the data directory are also expired. The
// file lock is released before the index lock is taken, the two are
// never held at the same time.
func (s *fstoreImpl) cleanup() ([]string, error) {
	removed, err := s.cleanupFile()
	if err != nil {
		return nil, err
	}

	// Reconcile the index: drop the removed keys unless a fresh entry
	// was written concurrently
	if len(removed) > 0 {
		now := time.Now()
		s.mu.Lock()
		for _, key := range removed {
			if entry, ok := s.index[key]; ok && entry.Expired(now) {
				delete(s.index, key)
			}
		}
		s.mu.Unlock()
		s.expired.Inc(int64(len(removed)))

		s.logger.Debug("sweep removed expired entries", zap.Int("count", len(removed)))
	}

	s.sweepRuns.Inc(1)
	return removed, nil
}

// cleanupFile performs the durable half of the sweep: read the data
// file, strip expired entries, rewrite it if anything changed. The
// exclusive file lock is held for exactly this read-modify-write.
func (s *fstoreImpl) cleanupFile() ([]string, error) {
	lock, err := s.locks.AcquireExclusive(s.opts.LockTimeout)
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	onDisk, err := s.readFile()
	if err != nil {
		if store.CodeOf(err) == store.RetCCorrupted {
			// never rewrite a file we cannot read
			s.logger.Warn("sweep skipped, data file is unreadable", zap.Error(err))
			return nil, nil
		}
		return nil, err
	}

	now := time.Now()
	var removed []string
	for key, entry := range onDisk {
		if entry.Expired(now) {
			removed = append(removed, key)
			delete(onDisk, key)
		}
	}

	if len(removed) > 0 {
		if err := s.writeFile(onDisk); err != nil {
			return nil, err
		}
	}
	return removed, nil
}

// --------------------------------------------------------------------------
// Persistence Helpers
// --------------------------------------------------------------------------

// load reads the durable file into the index and drops entries that
// expired while the store was offline. A corrupt file is moved aside
// (or, with StrictOpen, fails the open).
func (s *fstoreImpl) load() error {
	lock, err := s.locks.AcquireExclusive(s.opts.LockTimeout)
	if err != nil {
		return err
	}
	defer lock.Release()

	entries, err := s.readFile()
	if err != nil {
		if store.CodeOf(err) != store.RetCCorrupted {
			return err
		}
		if s.opts.StrictOpen {
			return store.Errorf(store.RetCCorrupted, "data file %s is corrupt: %v", s.path, err)
		}

		// Availability over durability: keep the bad bytes for
		// inspection and start with an empty store
		backup := fmt.Sprintf("%s.corrupt-%d", s.path, time.Now().Unix())
		if renameErr := os.Rename(s.path, backup); renameErr != nil {
			s.logger.Error("data file is corrupt and could not be moved aside, starting empty",
				zap.String("file", s.path), zap.Error(err))
		} else {
			s.logger.Error("data file is corrupt, starting empty",
				zap.String("file", s.path), zap.String("backup", backup), zap.Error(err))
		}

		s.index = make(map[string]*store.Entry)
		return nil
	}

	now := time.Now()
	dropped := 0
	for key, entry := range entries {
		if entry.Expired(now) {
			delete(entries, key)
			dropped++
		}
	}
	if dropped > 0 {
		s.expired.Inc(int64(dropped))
	}

	s.index = entries
	return nil
}

// readFile decodes the data file. The codec is detected from the file
// itself so that files written with a different configured codec remain
// readable. A missing or empty file yields an empty entry set.
// The caller must hold the file lock.
func (s *fstoreImpl) readFile() (map[string]*store.Entry, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]*store.Entry), nil
		}
		return nil, store.Errorf(store.RetCInternalError, "opening data file: %v", err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	prefix, err := br.Peek(codec.DetectPrefixLen)
	if len(prefix) == 0 {
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, store.Errorf(store.RetCInternalError, "reading data file: %v", err)
		}
		return make(map[string]*store.Entry), nil
	}

	c, err := codec.Detect(prefix)
	if err != nil {
		return nil, err
	}
	return c.DecodeEntries(br)
}

// writeFile atomically replaces the data file with the given entries:
// encode to a temp file in the same directory, fsync, rename.
// The caller must hold the file lock.
func (s *fstoreImpl) writeFile(entries map[string]*store.Entry) error {
	err := util.WriteFileAtomic(s.path, func(w io.Writer) error {
		return s.codec.EncodeEntries(w, entries)
	})
	if err != nil {
		return store.Errorf(store.RetCInternalError, "writing data file: %v", err)
	}
	return nil
}

// persistLocked writes the full index to the data file under the
// exclusive file lock. The caller must hold s.mu.
func (s *fstoreImpl) persistLocked() error {
	lock, err := s.locks.AcquireExclusive(s.opts.LockTimeout)
	if err != nil {
		return err
	}
	defer lock.Release()

	return s.writeFile(s.index)
}

// evictExpiredLocked removes an expired entry from the index and
// persists the change. A failed persist (e.g. a busy file) only logs,
// the entry stays evicted from the index and the stale file copy is
// picked up by the next sweep. The caller must hold s.mu.
func (s *fstoreImpl) evictExpiredLocked(key string) {
	delete(s.index, key)
	s.expired.Inc(1)

	if err := s.persistLocked(); err != nil {
		s.errors.Inc(1)
		s.logger.Warn("persisting lazy expiry failed",
			zap.String("key", key), zap.Error(err))
	}
}

// --------------------------------------------------------------------------
// Internal Helpers
// --------------------------------------------------------------------------

func (s *fstoreImpl) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkOpenLocked()
}

func (s *fstoreImpl) checkOpenLocked() error {
	if s.closed {
		return store.NewError(store.RetCInternalError, "store is closed")
	}
	return nil
}
