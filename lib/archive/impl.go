package archive

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/ValentinKolb/sKV/lib/cache"
	"github.com/ValentinKolb/sKV/lib/codec"
	"github.com/ValentinKolb/sKV/lib/store"
	"github.com/ValentinKolb/sKV/lib/util"
	"github.com/golang/snappy"
	"go.uber.org/zap"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	// ArchiveFileName is the snappy compressed entry snapshot inside the
	// archive directory.
	ArchiveFileName = "archive.dat"

	// IndexFileName is the json index of archived keys.
	IndexFileName = "archive_index.json"

	// DefaultColdThreshold is the prediction score below which a key
	// counts as cold when no threshold is given.
	DefaultColdThreshold = 0.3

	// DefaultMaxColdKeys bounds one cold key sweep when no limit is
	// given.
	DefaultMaxColdKeys = 100
)

// --------------------------------------------------------------------------
// Core structure and options
// --------------------------------------------------------------------------

// archiveImpl implements IArchiveManager
type archiveImpl struct {
	opts   *Options
	logger *zap.Logger
	codec  codec.ICodec

	archivePath string
	indexPath   string

	// mu guards the index and serializes archive file rewrites
	mu    sync.Mutex
	index map[string]ArchivedKeyInfo
}

// Options configures the archive manager during initialization
type Options struct {
	Dir    string       // Directory for archive and index file (required)
	Codec  codec.ICodec // Codec for the archived entries (nil = json)
	Logger *zap.Logger  // Logger (nil = no logging)
}

// DefaultOptions returns the default archive options for the given
// directory.
func DefaultOptions(dir string) *Options {
	return &Options{Dir: dir}
}

// --------------------------------------------------------------------------
// Initialization and Setup
// --------------------------------------------------------------------------

// New creates an archive manager rooted at opts.Dir. An existing index
// file is loaded; an unreadable one is logged and the index starts
// empty (the archive file itself stays untouched).
func New(opts *Options) (IArchiveManager, error) {
	if opts == nil || opts.Dir == "" {
		return nil, store.NewError(store.RetCInvalidKey, "archive directory is required")
	}

	o := *opts
	if o.Codec == nil {
		o.Codec = codec.NewJSONCodec()
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}

	if err := os.MkdirAll(o.Dir, 0o755); err != nil {
		return nil, store.Errorf(store.RetCResource, "creating archive directory: %v", err)
	}

	m := &archiveImpl{
		opts:        &o,
		logger:      o.Logger,
		codec:       o.Codec,
		archivePath: filepath.Join(o.Dir, ArchiveFileName),
		indexPath:   filepath.Join(o.Dir, IndexFileName),
		index:       make(map[string]ArchivedKeyInfo),
	}
	m.loadIndex()
	return m, nil
}

// --------------------------------------------------------------------------
// Interface Methods - Archiving
// --------------------------------------------------------------------------

// ArchiveKeys copies entries into the archive, see
// IArchiveManager.ArchiveKeys.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (m *archiveImpl) ArchiveKeys(s store.IStore, keys []string, removeFromStore bool) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	archived := m.readArchiveLocked()
	if archived == nil {
		archived = make(map[string]*store.Entry)
	}

	now := time.Now()
	seen := make(map[string]bool, len(keys))
	var added []ArchivedKeyInfo
	for _, key := range keys {
		if seen[key] {
			continue
		}
		seen[key] = true

		entry, found, err := s.GetEntry(key)
		if err != nil {
			return 0, err
		}
		if !found {
			continue
		}

		archived[key] = entry
		added = append(added, ArchivedKeyInfo{
			Key:        key,
			ArchivedAt: now,
			Size:       entry.Value.Size(),
			DataType:   entry.Value.Kind,
		})
	}
	if len(added) == 0 {
		return 0, nil
	}

	if err := m.writeArchiveLocked(archived); err != nil {
		return 0, err
	}
	for _, info := range added {
		m.index[info.Key] = info
	}
	if err := m.writeIndexLocked(); err != nil {
		return len(added), err
	}

	// the archive is durable, now the live copies can go
	if removeFromStore {
		for _, info := range added {
			if _, err := s.Delete(info.Key); err != nil {
				return len(added), err
			}
		}
	}

	m.logger.Info("keys archived",
		zap.Int("archived", len(added)), zap.Bool("removed_from_store", removeFromStore))
	return len(added), nil
}

// ArchiveColdKeys archives keys the cache predicts cold, see
// IArchiveManager.ArchiveColdKeys.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (m *archiveImpl) ArchiveColdKeys(s store.IStore, c cache.ICache, threshold float64, maxKeys int) (int, error) {
	if threshold <= 0 {
		threshold = DefaultColdThreshold
	}
	if maxKeys <= 0 {
		maxKeys = DefaultMaxColdKeys
	}

	coldKeys := c.GetColdKeys(threshold)
	if len(coldKeys) > maxKeys {
		coldKeys = coldKeys[:maxKeys]
	}
	if len(coldKeys) == 0 {
		m.logger.Debug("no cold keys to archive", zap.Float64("threshold", threshold))
		return 0, nil
	}

	return m.ArchiveKeys(s, coldKeys, true)
}

// RestoreKeys moves archived entries back into the store, see
// IArchiveManager.RestoreKeys.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (m *archiveImpl) RestoreKeys(s store.IStore, keys []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	archived := m.readArchiveLocked()
	if len(archived) == 0 {
		return 0, nil
	}

	var filter map[string]bool
	if keys != nil {
		filter = make(map[string]bool, len(keys))
		for _, key := range keys {
			filter[key] = true
		}
	}

	restore := make([]string, 0, len(archived))
	for key := range archived {
		if filter == nil || filter[key] {
			restore = append(restore, key)
		}
	}
	sort.Strings(restore)
	if len(restore) == 0 {
		return 0, nil
	}

	// re-insert everything first; if a put fails the archive stays
	// untouched and the restore can simply be retried
	restored := 0
	for _, key := range restore {
		entry := archived[key]
		if err := s.Put(key, entry.Value, entry.TTL); err != nil {
			return restored, err
		}
		restored++
	}

	for _, key := range restore {
		delete(archived, key)
		delete(m.index, key)
	}
	if err := m.writeArchiveLocked(archived); err != nil {
		return restored, err
	}
	if err := m.writeIndexLocked(); err != nil {
		return restored, err
	}

	m.logger.Info("keys restored from archive", zap.Int("restored", restored))
	return restored, nil
}

// --------------------------------------------------------------------------
// Interface Methods - Inspection
// --------------------------------------------------------------------------

// ListArchivedKeys returns the index sorted by key, see
// IArchiveManager.ListArchivedKeys.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (m *archiveImpl) ListArchivedKeys() []ArchivedKeyInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]ArchivedKeyInfo, 0, len(m.index))
	for _, info := range m.index {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// IsArchived reports index membership, see IArchiveManager.IsArchived.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (m *archiveImpl) IsArchived(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.index[key]
	return ok
}

// ArchiveStats describes the archive on disk, see
// IArchiveManager.ArchiveStats.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (m *archiveImpl) ArchiveStats() ArchiveStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := ArchiveStats{ArchivedKeys: len(m.index)}

	info, err := os.Stat(m.archivePath)
	if err != nil {
		return stats
	}
	stats.ArchiveExists = true
	stats.ArchiveSizeBytes = info.Size()

	// the ratio compares the file size against the decompressed stream
	f, err := os.Open(m.archivePath)
	if err != nil {
		return stats
	}
	defer f.Close()
	if uncompressed, err := io.Copy(io.Discard, snappy.NewReader(f)); err == nil && uncompressed > 0 {
		stats.CompressionRatio = float64(info.Size()) / float64(uncompressed)
	}
	return stats
}

// DeleteArchive removes archive and index, see
// IArchiveManager.DeleteArchive.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (m *archiveImpl) DeleteArchive() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.Remove(m.archivePath); err != nil && !os.IsNotExist(err) {
		return store.Errorf(store.RetCResource, "removing archive: %v", err)
	}
	if err := os.Remove(m.indexPath); err != nil && !os.IsNotExist(err) {
		return store.Errorf(store.RetCResource, "removing archive index: %v", err)
	}
	m.index = make(map[string]ArchivedKeyInfo)

	m.logger.Info("archive deleted")
	return nil
}

// --------------------------------------------------------------------------
// File Handling
// --------------------------------------------------------------------------

// readArchiveLocked decodes the archive file. A missing or unreadable
// archive is treated as empty; archiving is additive, so the safe
// fallback is to start over rather than fail. The caller must hold m.mu.
func (m *archiveImpl) readArchiveLocked() map[string]*store.Entry {
	f, err := os.Open(m.archivePath)
	if err != nil {
		if !os.IsNotExist(err) {
			m.logger.Warn("could not open archive, treating it as empty", zap.Error(err))
		}
		return nil
	}
	defer f.Close()

	br := bufio.NewReader(snappy.NewReader(f))
	prefix, err := br.Peek(codec.DetectPrefixLen)
	if len(prefix) == 0 {
		if err != nil && !errors.Is(err, io.EOF) {
			m.logger.Warn("archive is unreadable, treating it as empty", zap.Error(err))
		}
		return nil
	}

	c, err := codec.Detect(prefix)
	if err != nil {
		m.logger.Warn("archive is unreadable, treating it as empty", zap.Error(err))
		return nil
	}
	entries, err := c.DecodeEntries(br)
	if err != nil {
		m.logger.Warn("archive is unreadable, treating it as empty", zap.Error(err))
		return nil
	}
	return entries
}

// writeArchiveLocked rewrites the archive file atomically. The caller
// must hold m.mu.
func (m *archiveImpl) writeArchiveLocked(entries map[string]*store.Entry) error {
	err := util.WriteFileAtomic(m.archivePath, func(w io.Writer) error {
		sw := snappy.NewBufferedWriter(w)
		if err := m.codec.EncodeEntries(sw, entries); err != nil {
			return err
		}
		return sw.Close()
	})
	if err != nil {
		return store.Errorf(store.RetCInternalError, "writing archive: %v", err)
	}
	return nil
}

// writeIndexLocked rewrites the index file atomically. The caller must
// hold m.mu.
func (m *archiveImpl) writeIndexLocked() error {
	err := util.WriteFileAtomic(m.indexPath, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(m.index)
	})
	if err != nil {
		return store.Errorf(store.RetCInternalError, "writing archive index: %v", err)
	}
	return nil
}

// loadIndex reads the index file at construction time.
func (m *archiveImpl) loadIndex() {
	data, err := os.ReadFile(m.indexPath)
	if err != nil {
		if !os.IsNotExist(err) {
			m.logger.Warn("could not read archive index, starting empty", zap.Error(err))
		}
		return
	}

	index := make(map[string]ArchivedKeyInfo)
	if err := json.Unmarshal(data, &index); err != nil {
		m.logger.Warn("archive index is unreadable, starting empty", zap.Error(err))
		return
	}

	m.index = index
	m.logger.Info("archive index loaded", zap.Int("entries", len(index)))
}
