package recovery

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/ValentinKolb/sKV/lib/codec"
	"github.com/ValentinKolb/sKV/lib/store"
	"github.com/ValentinKolb/sKV/lib/util"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	// LogFileName is the name of the transaction log inside the
	// configured directory.
	LogFileName = "transaction.log"

	// CheckpointFileName is the name of the checkpoint file inside the
	// configured directory.
	CheckpointFileName = "checkpoint.dat"

	defaultBufferSize = 100
)

// --------------------------------------------------------------------------
// Core structure and options
// --------------------------------------------------------------------------

// recoveryImpl implements IRecoveryManager with a buffered transaction
// log and codec-encoded checkpoints
type recoveryImpl struct {
	opts           *Options
	logPath        string
	checkpointPath string
	codec          codec.ICodec
	logger         *zap.Logger

	// mu guards the buffer, the recovered flag and all file access.
	// Appends, flushes, checkpoints and recovery are mutually exclusive.
	mu        sync.Mutex
	buffer    []LogRecord
	recovered bool
}

// Options configures the recovery manager during initialization
type Options struct {
	Dir        string       // Directory for log and checkpoint files (required)
	BufferSize int          // Records buffered before an automatic flush (0 = use default: 100)
	Codec      codec.ICodec // Encoding of the checkpoint file (nil = binary)
	Logger     *zap.Logger  // Logger (nil = no logging)
}

// DefaultOptions returns the default recovery manager options for the
// given directory.
func DefaultOptions(dir string) *Options {
	return &Options{
		Dir:        dir,
		BufferSize: defaultBufferSize,
		Codec:      codec.NewBinaryCodec(),
	}
}

// --------------------------------------------------------------------------
// Initialization and Setup
// --------------------------------------------------------------------------

// New creates a recovery manager writing its transaction log and
// checkpoint into opts.Dir. The directory is created if missing.
func New(opts *Options) (IRecoveryManager, error) {
	if opts == nil || opts.Dir == "" {
		return nil, store.NewError(store.RetCInvalidKey, "log directory is required")
	}

	// Copy options and fill in defaults
	o := *opts
	if o.BufferSize <= 0 {
		o.BufferSize = defaultBufferSize
	}
	if o.Codec == nil {
		o.Codec = codec.NewBinaryCodec()
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}

	if err := os.MkdirAll(o.Dir, 0o755); err != nil {
		return nil, store.Errorf(store.RetCInternalError, "creating log directory: %v", err)
	}

	return &recoveryImpl{
		opts:           &o,
		logPath:        filepath.Join(o.Dir, LogFileName),
		checkpointPath: filepath.Join(o.Dir, CheckpointFileName),
		codec:          o.Codec,
		logger:         o.Logger,
		buffer:         make([]LogRecord, 0, o.BufferSize),
	}, nil
}

// --------------------------------------------------------------------------
// Interface Methods - Logging
// --------------------------------------------------------------------------

// LogOperation appends one mutation record to the buffer and flushes the
// buffer to the transaction log once it reaches the configured size.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (r *recoveryImpl) LogOperation(op OpKind, key string, value store.Value, ttl time.Duration) error {
	if !op.Valid() {
		return store.Errorf(store.RetCInvalidKey, "unknown operation kind %d", op)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.buffer = append(r.buffer, LogRecord{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		Op:        op,
		Key:       key,
		Value:     value.Clone(),
		TTL:       ttl,
	})

	if len(r.buffer) >= r.opts.BufferSize {
		return r.flushLocked()
	}
	return nil
}

// Flush forces all buffered records into the transaction log.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (r *recoveryImpl) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flushLocked()
}

// flushLocked appends the buffered records to the on-disk log: the
// existing records are read, the buffer is appended and the combined
// list is rewritten atomically. On failure the buffer is kept so the
// records are retried with the next flush. The caller must hold r.mu.
func (r *recoveryImpl) flushLocked() error {
	if len(r.buffer) == 0 {
		return nil
	}

	existing, err := r.readLogLocked()
	if err != nil {
		return err
	}

	combined := append(existing, r.buffer...)
	if err := r.writeLogLocked(combined); err != nil {
		return err
	}

	r.logger.Debug("transaction log flushed",
		zap.Int("appended", len(r.buffer)),
		zap.Int("total", len(combined)))
	r.buffer = r.buffer[:0]
	return nil
}

// --------------------------------------------------------------------------
// Interface Methods - Checkpointing
// --------------------------------------------------------------------------

// CreateCheckpoint snapshots the store's live entry set into the
// checkpoint file and deletes the transaction log, which the checkpoint
// fully absorbs.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (r *recoveryImpl) CreateCheckpoint(s store.IStore) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.flushLocked(); err != nil {
		return err
	}

	entries, err := s.Entries()
	if err != nil {
		return err
	}

	if err := util.WriteFileAtomic(r.checkpointPath, func(w io.Writer) error {
		return r.codec.EncodeEntries(w, entries)
	}); err != nil {
		return store.Errorf(store.RetCInternalError, "writing checkpoint: %v", err)
	}

	// The log must not survive the checkpoint: stale records replayed on
	// top of a newer snapshot would win and roll entries back
	if err := os.Remove(r.logPath); err != nil && !os.IsNotExist(err) {
		return store.Errorf(store.RetCInternalError, "removing transaction log after checkpoint: %v", err)
	}

	r.logger.Info("checkpoint created",
		zap.Int("keys", len(entries)),
		zap.String("file", r.checkpointPath))
	return nil
}

// --------------------------------------------------------------------------
// Interface Methods - Recovery
// --------------------------------------------------------------------------

// Recover replays the checkpoint and then the transaction log into the
// given store. It runs at most once per manager lifetime.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (r *recoveryImpl) Recover(s store.IStore) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.recovered {
		return false, nil
	}

	recovered := false

	// Restore the checkpoint state first
	entries, checkpointFound, err := r.readCheckpointLocked()
	if err != nil {
		return false, err
	}
	if checkpointFound {
		keys := make([]string, 0, len(entries))
		for key := range entries {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		for _, key := range keys {
			entry := entries[key]
			if err := s.Put(key, entry.Value, entry.TTL); err != nil {
				return false, err
			}
		}

		r.logger.Info("checkpoint restored", zap.Int("keys", len(entries)))
		recovered = true
	}

	// Replay the operations logged after the checkpoint, in append order
	records, err := r.readLogLocked()
	if err != nil {
		return false, err
	}
	if len(records) > 0 {
		for _, rec := range records {
			switch rec.Op {
			case OpPut:
				err = s.Put(rec.Key, rec.Value, rec.TTL)
			case OpDelete:
				_, err = s.Delete(rec.Key)
			case OpClear:
				_, err = s.ClearAll()
			}
			if err != nil {
				return false, err
			}
		}

		r.logger.Info("transaction log replayed", zap.Int("records", len(records)))
		recovered = true
	}

	r.recovered = true
	if recovered {
		r.logger.Info("recovery completed")
	}
	return recovered, nil
}

// --------------------------------------------------------------------------
// Interface Methods - Maintenance
// --------------------------------------------------------------------------

// LogStats returns the current state of the log and checkpoint artifacts.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (r *recoveryImpl) LogStats() LogStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := LogStats{
		BufferedRecords:   len(r.buffer),
		RecoveryPerformed: r.recovered,
	}

	if info, err := os.Stat(r.logPath); err == nil {
		stats.LogExists = true
		stats.LogSizeBytes = info.Size()
		if records, err := r.readLogLocked(); err == nil {
			stats.LogRecords = len(records)
		}
	}

	if info, err := os.Stat(r.checkpointPath); err == nil {
		stats.CheckpointExists = true
		stats.CheckpointSizeBytes = info.Size()
	}

	return stats
}

// ClearLogs removes the transaction log and checkpoint files and drops
// all buffered records.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (r *recoveryImpl) ClearLogs() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.Remove(r.logPath); err != nil && !os.IsNotExist(err) {
		return store.Errorf(store.RetCInternalError, "removing transaction log: %v", err)
	}
	if err := os.Remove(r.checkpointPath); err != nil && !os.IsNotExist(err) {
		return store.Errorf(store.RetCInternalError, "removing checkpoint: %v", err)
	}

	r.buffer = r.buffer[:0]
	r.logger.Info("transaction logs cleared")
	return nil
}

// Close flushes any buffered records.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (r *recoveryImpl) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flushLocked()
}

// --------------------------------------------------------------------------
// Persistence Helpers
// --------------------------------------------------------------------------

// readLogLocked reads the on-disk transaction log. A missing or corrupt
// log yields an empty record list, a corrupt log is additionally logged.
// The caller must hold r.mu.
func (r *recoveryImpl) readLogLocked() ([]LogRecord, error) {
	f, err := os.Open(r.logPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, store.Errorf(store.RetCInternalError, "opening transaction log: %v", err)
	}
	defer f.Close()

	records, err := decodeLog(f)
	if err != nil {
		// A crash during a log write must not block startup
		r.logger.Warn("transaction log is unreadable, treating it as empty",
			zap.String("file", r.logPath), zap.Error(err))
		return nil, nil
	}
	return records, nil
}

// writeLogLocked atomically rewrites the transaction log with the given
// records. The caller must hold r.mu.
func (r *recoveryImpl) writeLogLocked(records []LogRecord) error {
	err := util.WriteFileAtomic(r.logPath, func(w io.Writer) error {
		return encodeLog(w, records)
	})
	if err != nil {
		return store.Errorf(store.RetCInternalError, "writing transaction log: %v", err)
	}
	return nil
}

// readCheckpointLocked reads the checkpoint file. The codec is detected
// from the file itself so checkpoints written with a different configured
// codec remain readable. A missing or corrupt checkpoint is reported as
// not found. The caller must hold r.mu.
func (r *recoveryImpl) readCheckpointLocked() (map[string]*store.Entry, bool, error) {
	f, err := os.Open(r.checkpointPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, store.Errorf(store.RetCInternalError, "opening checkpoint: %v", err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	prefix, _ := br.Peek(codec.DetectPrefixLen)

	c, err := codec.Detect(prefix)
	if err != nil {
		r.logger.Warn("checkpoint is unreadable, treating it as absent",
			zap.String("file", r.checkpointPath), zap.Error(err))
		return nil, false, nil
	}

	entries, err := c.DecodeEntries(br)
	if err != nil {
		r.logger.Warn("checkpoint is unreadable, treating it as absent",
			zap.String("file", r.checkpointPath), zap.Error(err))
		return nil, false, nil
	}
	return entries, true, nil
}
