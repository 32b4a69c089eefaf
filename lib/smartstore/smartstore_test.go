package smartstore

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ValentinKolb/sKV/lib/anomaly"
	"github.com/ValentinKolb/sKV/lib/codec"
	"github.com/ValentinKolb/sKV/lib/store"
	"github.com/ValentinKolb/sKV/lib/store/fstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openTestDB opens a database in dir with the sweeper effectively
// disabled and every log record flushed immediately.
func openTestDB(t *testing.T, dir string) *SmartStore {
	t.Helper()
	opts := DefaultOptions(dir)
	opts.BufferSize = 1
	opts.SweepInterval = time.Hour
	db, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestDB(t *testing.T) *SmartStore {
	t.Helper()
	return openTestDB(t, t.TempDir())
}

// --------------------------------------------------------------------------
// Construction
// --------------------------------------------------------------------------

func TestNewRequiresDirectory(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
	assert.Equal(t, store.RetCInvalidKey, store.CodeOf(err))

	_, err = New(&Options{})
	require.Error(t, err)
	assert.Equal(t, store.RetCInvalidKey, store.CodeOf(err))
}

// --------------------------------------------------------------------------
// Key-value flow
// --------------------------------------------------------------------------

func TestPutGetDeleteFlow(t *testing.T) {
	db := newTestDB(t)

	require.NoError(t, db.Put("user:1", store.NewStringValue("alice"), 0))

	// first read comes from the store and caches the value
	v, found, err := db.Get("user:1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "alice", v.Text())

	// second read is a cache hit
	v, found, err = db.Get("user:1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "alice", v.Text())
	assert.Positive(t, db.Cache().CacheStats().Hits)

	deleted, err := db.Delete("user:1")
	require.NoError(t, err)
	assert.True(t, deleted)

	// the cached copy must not outlive the entry
	_, found, err = db.Get("user:1")
	require.NoError(t, err)
	assert.False(t, found)

	exists, err := db.Exists("user:1")
	require.NoError(t, err)
	assert.False(t, exists)

	deleted, err = db.Delete("user:1")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestOverwriteReplacesCachedValue(t *testing.T) {
	db := newTestDB(t)

	require.NoError(t, db.Put("config", store.NewStringValue("v1"), 0))
	_, found, err := db.Get("config")
	require.NoError(t, err)
	require.True(t, found)

	require.NoError(t, db.Put("config", store.NewStringValue("v2"), 0))

	v, found, err := db.Get("config")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "v2", v.Text())
}

func TestExpiredEntryNeverResurfacesFromCache(t *testing.T) {
	db := newTestDB(t)

	require.NoError(t, db.Put("session:1", store.NewStringValue("token"), 300*time.Millisecond))

	v, found, err := db.Get("session:1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "token", v.Text())

	time.Sleep(400 * time.Millisecond)

	// the value is still cached, but the store says the entry is gone
	_, found, err = db.Get("session:1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestGetEntryAndKeys(t *testing.T) {
	db := newTestDB(t)

	require.NoError(t, db.Put("b", store.NewNumberValue(2), 0))
	require.NoError(t, db.Put("a", store.NewStringValue("one"), time.Hour))

	keys, err := db.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, keys)

	entry, found, err := db.GetEntry("a")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, time.Hour, entry.TTL)
	assert.Equal(t, store.TypeString, entry.Value.Kind)
}

// --------------------------------------------------------------------------
// Recovery
// --------------------------------------------------------------------------

func TestReplayRestoresStateAfterDataFileLoss(t *testing.T) {
	dir := t.TempDir()

	db := openTestDB(t, dir)
	require.NoError(t, db.Put("a", store.NewStringValue("1"), 0))
	require.NoError(t, db.Put("b", store.NewStringValue("2"), 0))
	require.NoError(t, db.CreateCheckpoint())
	require.NoError(t, db.Put("c", store.NewStringValue("3"), 0))
	require.NoError(t, db.Close())

	// lose the durable store file, checkpoint and log remain
	require.NoError(t, os.Remove(filepath.Join(dir, fstore.DataFileName)))

	reopened := openTestDB(t, dir)
	assert.True(t, reopened.Recovery().LogStats().RecoveryPerformed)

	keys, err := reopened.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, keys)

	v, found, err := reopened.Get("c")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "3", v.Text())
	require.NoError(t, reopened.Close())

	// replaying the same artifacts again yields the same state
	again := openTestDB(t, dir)
	keys, err = again.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, keys)
}

func TestClearIsReplayedInOrder(t *testing.T) {
	dir := t.TempDir()

	db := openTestDB(t, dir)
	require.NoError(t, db.Put("a", store.NewStringValue("1"), 0))
	require.NoError(t, db.Put("b", store.NewStringValue("2"), 0))
	_, _, err := db.Get("a")
	require.NoError(t, err)

	count, err := db.ClearAll()
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, 0, db.Cache().CacheStats().CacheSize)

	require.NoError(t, db.Put("c", store.NewStringValue("3"), 0))
	require.NoError(t, db.Close())

	require.NoError(t, os.Remove(filepath.Join(dir, fstore.DataFileName)))

	// replay applies put, put, clear, put in order
	reopened := openTestDB(t, dir)
	keys, err := reopened.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, keys)
}

func TestArtifactsOpenAcrossCodecs(t *testing.T) {
	dir := t.TempDir()

	opts := DefaultOptions(dir)
	opts.BufferSize = 1
	opts.SweepInterval = time.Hour
	opts.Codec = codec.NewJSONCodec()
	db, err := New(opts)
	require.NoError(t, err)
	require.NoError(t, db.Put("a", store.NewStringValue("1"), 0))
	require.NoError(t, db.CreateCheckpoint())
	require.NoError(t, db.Close())

	// artifacts self-describe, so the default binary codec reads them
	reopened := openTestDB(t, dir)
	v, found, err := reopened.Get("a")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "1", v.Text())
}

// --------------------------------------------------------------------------
// Archival
// --------------------------------------------------------------------------

func TestArchiveLifecycle(t *testing.T) {
	db := newTestDB(t)

	require.NoError(t, db.Put("old:1", store.NewStringValue("v1"), 0))
	require.NoError(t, db.Put("old:2", store.NewStringValue("v2"), 0))

	// cache one of the keys, archiving must drop the copy
	_, found, err := db.Get("old:1")
	require.NoError(t, err)
	require.True(t, found)

	n, err := db.ArchiveKeys([]string{"old:1", "old:2"}, true)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, found, err = db.Get("old:1")
	require.NoError(t, err)
	assert.False(t, found)
	assert.True(t, db.Archive().IsArchived("old:1"))

	n, err = db.RestoreKeys(nil)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	v, found, err := db.Get("old:1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "v1", v.Text())
	assert.False(t, db.Archive().IsArchived("old:1"))
}

func TestArchiveColdKeysNeedsTrainedModel(t *testing.T) {
	db := newTestDB(t)

	require.NoError(t, db.Put("idle", store.NewStringValue("x"), 0))
	_, _, err := db.Get("idle")
	require.NoError(t, err)

	// untrained cache scores everything neutral, nothing is cold
	n, err := db.ArchiveColdKeys(0, 0)
	require.NoError(t, err)
	assert.Zero(t, n)

	exists, err := db.Exists("idle")
	require.NoError(t, err)
	assert.True(t, exists)
}

// --------------------------------------------------------------------------
// Anomaly wiring
// --------------------------------------------------------------------------

func TestMissesFeedTheAnomalyDetector(t *testing.T) {
	db := newTestDB(t)

	for i := 0; i < 10; i++ {
		_, found, err := db.Get("missing")
		require.NoError(t, err)
		require.False(t, found)
	}

	a := db.Detector().CheckErrorRate()
	require.NotNil(t, a)
	assert.Equal(t, anomaly.TypeErrorRate, a.Type)
	assert.Equal(t, anomaly.SeverityHigh, a.Severity)
}

// --------------------------------------------------------------------------
// Maintenance and stats
// --------------------------------------------------------------------------

func TestMaintenanceOnFreshDatabase(t *testing.T) {
	db := newTestDB(t)

	assert.False(t, db.TrainCache(1))
	assert.Zero(t, db.OptimizeCache())

	detections, err := db.RunAnomalyCheck()
	require.NoError(t, err)
	assert.Empty(t, detections)

	require.NoError(t, db.CreateCheckpoint())
	assert.True(t, db.Recovery().LogStats().CheckpointExists)
}

func TestStatsAggregateAllComponents(t *testing.T) {
	db := newTestDB(t)

	require.NoError(t, db.Put("a", store.NewStringValue("1"), 0))
	require.NoError(t, db.Put("b", store.NewStringValue("2"), 0))
	_, _, err := db.Get("a")
	require.NoError(t, err)

	stats, err := db.Stats()
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Store.TotalKeys)
	assert.Equal(t, 1, stats.Cache.CacheSize)
	assert.True(t, stats.Recovery.LogExists)
	assert.False(t, stats.Cache.ModelTrained)
	assert.Zero(t, stats.Anomalies.TotalAnomalies)
	assert.Zero(t, stats.Archive.ArchivedKeys)
	assert.False(t, stats.Archive.ArchiveExists)
}
