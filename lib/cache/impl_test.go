package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/ValentinKolb/sKV/lib/store"
	"github.com/ValentinKolb/sKV/lib/store/fstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestCache creates a cache without model persistence.
func newTestCache(capacity int) *cacheImpl {
	return New(&Options{Capacity: capacity}).(*cacheImpl)
}

// seedPattern injects a deterministic access history: accesses spaced by
// step, so every interval is identical.
func seedPattern(c *cacheImpl, key string, accesses int, step time.Duration) {
	p, _ := c.patterns.LoadOrCompute(key, newAccessPattern)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < accesses; i++ {
		p.record(base.Add(time.Duration(i) * step))
	}
}

// seedTrainedCache prepares a cache with 30 frequently accessed keys
// ("hot:NN", 60 accesses at 100ms spacing) and 30 rarely accessed keys
// ("cold:NN", 12 accesses at 10s spacing), then trains the model.
func seedTrainedCache(t *testing.T, c *cacheImpl) (hot, cold []string) {
	t.Helper()

	for i := 0; i < 30; i++ {
		hotKey := fmt.Sprintf("hot:%02d", i)
		coldKey := fmt.Sprintf("cold:%02d", i)
		seedPattern(c, hotKey, 60, 100*time.Millisecond)
		seedPattern(c, coldKey, 12, 10*time.Second)
		hot = append(hot, hotKey)
		cold = append(cold, coldKey)
	}

	require.True(t, c.TrainModel(0))
	return hot, cold
}

// --------------------------------------------------------------------------
// Cache behaviour
// --------------------------------------------------------------------------

func TestRecordAccessInsertsOnlyWithValue(t *testing.T) {
	c := newTestCache(10)

	// a miss without a value tracks the pattern but caches nothing
	c.RecordAccess("a", nil)
	_, found := c.GetFromCache("a")
	assert.False(t, found)

	// a miss with a value inserts it
	v := store.NewStringValue("hello")
	c.RecordAccess("a", &v)
	got, found := c.GetFromCache("a")
	require.True(t, found)
	assert.Equal(t, "hello", got.Text())

	stats := c.CacheStats()
	assert.Equal(t, 1, stats.CacheSize)
	assert.Equal(t, 1, stats.PatternsTracked)
	assert.Equal(t, int64(0), stats.Hits)
	assert.Equal(t, int64(2), stats.Misses)
}

func TestRecordAccessCountsHitsAndPromotes(t *testing.T) {
	c := newTestCache(10)

	v := store.NewStringValue("x")
	c.RecordAccess("a", &v)
	c.RecordAccess("a", nil)
	c.RecordAccess("a", nil)

	stats := c.CacheStats()
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.InDelta(t, 200.0/3.0, stats.HitRate, 0.01)
}

func TestEvictionDropsLeastRecentlyUsed(t *testing.T) {
	c := newTestCache(3)

	va := store.NewStringValue("a")
	vb := store.NewStringValue("b")
	vc := store.NewStringValue("c")
	vd := store.NewStringValue("d")

	c.RecordAccess("a", &va)
	c.RecordAccess("b", &vb)
	c.RecordAccess("c", &vc)

	// touching a makes b the least recently used entry
	c.RecordAccess("a", nil)

	// inserting into the full cache evicts exactly b
	c.RecordAccess("d", &vd)

	_, found := c.GetFromCache("b")
	assert.False(t, found, "least recently used entry should be evicted")
	for _, key := range []string{"a", "c", "d"} {
		_, found := c.GetFromCache(key)
		assert.True(t, found, "key %s should survive eviction", key)
	}
	assert.Equal(t, 3, c.CacheStats().CacheSize)
}

func TestGetFromCachePromotesWithoutCountingRequests(t *testing.T) {
	c := newTestCache(2)

	va := store.NewStringValue("a")
	vb := store.NewStringValue("b")
	vc := store.NewStringValue("c")

	c.RecordAccess("a", &va)
	c.RecordAccess("b", &vb)
	before := c.CacheStats()

	// lookups promote but leave the hit/miss counters alone
	_, found := c.GetFromCache("a")
	require.True(t, found)
	_, found = c.GetFromCache("missing")
	require.False(t, found)

	after := c.CacheStats()
	assert.Equal(t, before.Hits, after.Hits)
	assert.Equal(t, before.Misses, after.Misses)

	// the promotion must still be visible in the eviction order
	c.RecordAccess("c", &vc)
	_, found = c.GetFromCache("b")
	assert.False(t, found, "b should have been evicted after a was promoted")
	_, found = c.GetFromCache("a")
	assert.True(t, found)
}

func TestCachedValuesAreDetached(t *testing.T) {
	c := newTestCache(10)

	v := store.NewStringValue("original")
	c.RecordAccess("a", &v)

	// mutating the inserted value must not reach the cache
	v.Raw[0] = 'X'
	got, found := c.GetFromCache("a")
	require.True(t, found)
	assert.Equal(t, "original", got.Text())

	// mutating a returned value must not reach the cache either
	got.Raw[0] = 'Y'
	again, found := c.GetFromCache("a")
	require.True(t, found)
	assert.Equal(t, "original", again.Text())
}

func TestClearCacheKeepsPatternsAndCounters(t *testing.T) {
	c := newTestCache(10)

	for i := 0; i < 3; i++ {
		v := store.NewNumberValue(float64(i))
		c.RecordAccess(fmt.Sprintf("key-%d", i), &v)
	}
	c.RecordAccess("key-0", nil)

	dropped := c.ClearCache()
	assert.Equal(t, 3, dropped)

	stats := c.CacheStats()
	assert.Equal(t, 0, stats.CacheSize)
	assert.Equal(t, 3, stats.PatternsTracked)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(3), stats.Misses)

	// clearing twice drops nothing more
	assert.Equal(t, 0, c.ClearCache())
}

func TestInvalidateDropsOnlyTheValue(t *testing.T) {
	c := newTestCache(10)

	v := store.NewStringValue("payload")
	c.RecordAccess("doomed", &v)
	c.RecordAccess("kept", &v)

	assert.True(t, c.Invalidate("doomed"))
	assert.False(t, c.Invalidate("doomed"))
	assert.False(t, c.Invalidate("never-seen"))

	_, cached := c.GetFromCache("doomed")
	assert.False(t, cached)
	_, cached = c.GetFromCache("kept")
	assert.True(t, cached)

	// the pattern history survives invalidation
	stats := c.CacheStats()
	assert.Equal(t, 1, stats.CacheSize)
	assert.Equal(t, 2, stats.PatternsTracked)
}

// --------------------------------------------------------------------------
// Model behaviour
// --------------------------------------------------------------------------

func TestPredictionsAreNeutralBeforeTraining(t *testing.T) {
	c := newTestCache(10)
	seedPattern(c, "tracked", 20, time.Second)

	assert.Equal(t, 0.5, c.PredictAccessLikelihood("tracked"))
	assert.Equal(t, 0.5, c.PredictAccessLikelihood("unknown"))

	// neutral scores never fall below a 0.5 threshold
	assert.Empty(t, c.GetColdKeys(0.3))
	assert.Empty(t, c.GetColdKeys(0.5))
	assert.Len(t, c.GetColdKeys(0.6), 1)

	stats := c.CacheStats()
	assert.False(t, stats.ModelTrained)
	assert.Equal(t, int64(0), stats.PredictionsMade)
}

func TestTrainModelNeedsEnoughSamples(t *testing.T) {
	c := newTestCache(10)

	// keys with a short history do not contribute training rows
	for i := 0; i < 60; i++ {
		seedPattern(c, fmt.Sprintf("brief-%d", i), 5, time.Second)
	}
	assert.False(t, c.TrainModel(1))

	// five usable rows are not enough for the default threshold
	for i := 0; i < 5; i++ {
		seedPattern(c, fmt.Sprintf("key-%d", i), 12, time.Second)
	}
	assert.False(t, c.TrainModel(0))
	assert.False(t, c.CacheStats().ModelTrained)

	// but enough for an explicitly lowered one
	assert.True(t, c.TrainModel(3))
	assert.True(t, c.CacheStats().ModelTrained)
}

func TestTrainedModelRanksHotAboveCold(t *testing.T) {
	c := newTestCache(10)
	hot, cold := seedTrainedCache(t, c)

	assert.True(t, c.CacheStats().ModelTrained)

	hotScore := c.PredictAccessLikelihood(hot[0])
	coldScore := c.PredictAccessLikelihood(cold[0])
	assert.Greater(t, hotScore, 0.8)
	assert.InDelta(t, 0.5, coldScore, 0.1)
	assert.Greater(t, hotScore, coldScore)
	assert.Greater(t, c.CacheStats().PredictionsMade, int64(0))

	// the top of the ranking is exactly the frequently accessed set
	top := c.GetHotKeys(len(hot))
	require.Len(t, top, len(hot))
	for i, ks := range top {
		assert.Contains(t, hot, ks.Key, "rank %d", i)
		if i > 0 {
			assert.GreaterOrEqual(t, top[i-1].Score, ks.Score)
		}
	}

	assert.ElementsMatch(t, cold, c.GetColdKeys(0.75))
}

func TestPredictionsAreClamped(t *testing.T) {
	c := newTestCache(10)
	hot, _ := seedTrainedCache(t, c)

	for _, key := range hot {
		score := c.PredictAccessLikelihood(key)
		assert.GreaterOrEqual(t, score, 0.0)
		assert.LessOrEqual(t, score, 1.0)
	}
}

func TestModelSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	opts := &Options{Capacity: 10, ModelPath: dir + "/model.json"}

	first := New(opts).(*cacheImpl)
	seedTrainedCache(t, first)
	require.True(t, first.CacheStats().ModelTrained)

	// a fresh instance picks the persisted model up again
	second := New(opts)
	assert.True(t, second.CacheStats().ModelTrained)

	// without tracked history every key still scores neutral
	assert.Equal(t, 0.5, second.PredictAccessLikelihood("hot:00"))
}

// --------------------------------------------------------------------------
// Store integration
// --------------------------------------------------------------------------

func TestOptimizeCachePreloadsHotKeys(t *testing.T) {
	opts := fstore.DefaultOptions(t.TempDir())
	opts.SweepInterval = time.Hour
	s, err := fstore.New(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	c := newTestCache(100)
	hot, cold := seedTrainedCache(t, c)

	// only the frequently accessed keys exist in the store
	for _, key := range hot {
		require.NoError(t, s.Put(key, store.NewStringValue("value of "+key), 0))
	}

	loaded := c.OptimizeCache(s)
	assert.Equal(t, len(hot), loaded)

	for _, key := range hot {
		got, found := c.GetFromCache(key)
		require.True(t, found, "key %s should be preloaded", key)
		assert.Equal(t, "value of "+key, got.Text())
	}
	for _, key := range cold {
		_, found := c.GetFromCache(key)
		assert.False(t, found, "key %s should not be preloaded", key)
	}

	// a second pass finds everything cached already
	assert.Equal(t, 0, c.OptimizeCache(s))
}

func TestCacheStatsMath(t *testing.T) {
	c := newTestCache(4)

	assert.Equal(t, 0.0, c.CacheStats().HitRate)

	va := store.NewStringValue("a")
	vb := store.NewStringValue("b")
	c.RecordAccess("a", &va)
	c.RecordAccess("b", &vb)
	c.RecordAccess("a", nil)

	stats := c.CacheStats()
	assert.Equal(t, 2, stats.CacheSize)
	assert.Equal(t, 4, stats.MaxCacheSize)
	assert.Equal(t, 50.0, stats.CacheUtilization)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(2), stats.Misses)
	assert.InDelta(t, 100.0/3.0, stats.HitRate, 0.01)
	assert.Equal(t, 2, stats.PatternsTracked)
	assert.False(t, stats.ModelTrained)
}
