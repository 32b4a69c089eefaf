package cache

import (
	"container/list"
	"sort"
	"sync"
	"time"

	"github.com/ValentinKolb/sKV/lib/store"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rcrowley/go-metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	defaultCapacity   = 1000
	defaultMinSamples = 50

	// trainMinHistory is the access history a key needs before it
	// contributes a training row.
	trainMinHistory = 10

	// hotLabelThreshold separates the two training labels: keys with
	// more retained accesses are labeled 1.0, the rest 0.5. A coarse
	// popularity proxy, not a future-access label.
	hotLabelThreshold = 50

	// preloadLimit bounds how many keys OptimizeCache fetches.
	preloadLimit = 50
)

// --------------------------------------------------------------------------
// Core structure and options
// --------------------------------------------------------------------------

// cacheItem is the payload stored in the LRU list.
type cacheItem struct {
	key   string
	value store.Value
}

// cacheImpl implements ICache
type cacheImpl struct {
	opts   *Options
	logger *zap.Logger

	// LRU state: values indexes the list elements, order keeps them
	// with the least recently used entry at the front. Guarded by mu.
	mu     sync.Mutex
	values map[string]*list.Element
	order  *list.List

	// patterns tracks per-key access history; each pattern carries its
	// own lock, the map itself is lock-free
	patterns *xsync.MapOf[string, *accessPattern]

	// model state, guarded by modelMu
	modelMu sync.RWMutex
	model   *scoreModel
	trained bool

	// group collapses concurrent training and preload runs into one
	group singleflight.Group

	registry    metrics.Registry
	hits        metrics.Counter
	misses      metrics.Counter
	predictions metrics.Counter
}

// Options configures the cache during initialization
type Options struct {
	Capacity  int         // Max number of cached entries (0 = use default: 1000)
	ModelPath string      // File for model persistence (empty = in-memory only)
	Logger    *zap.Logger // Logger (nil = no logging)
}

// DefaultOptions returns the default cache options.
func DefaultOptions() *Options {
	return &Options{
		Capacity: defaultCapacity,
	}
}

// --------------------------------------------------------------------------
// Initialization and Setup
// --------------------------------------------------------------------------

// New creates a predictive cache. If a model file exists at
// opts.ModelPath it is loaded, so a previously trained scorer survives
// restarts; an unreadable model file is logged and ignored.
func New(opts *Options) ICache {
	if opts == nil {
		opts = DefaultOptions()
	}

	o := *opts
	if o.Capacity <= 0 {
		o.Capacity = defaultCapacity
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}

	registry := metrics.NewRegistry()
	c := &cacheImpl{
		opts:        &o,
		logger:      o.Logger,
		values:      make(map[string]*list.Element),
		order:       list.New(),
		patterns:    xsync.NewMapOf[string, *accessPattern](),
		registry:    registry,
		hits:        metrics.NewRegisteredCounter("cache.hits", registry),
		misses:      metrics.NewRegisteredCounter("cache.misses", registry),
		predictions: metrics.NewRegisteredCounter("cache.predictions", registry),
	}

	if o.ModelPath != "" {
		model, found, err := loadModel(o.ModelPath)
		switch {
		case err != nil:
			c.logger.Warn("could not load cache model", zap.String("file", o.ModelPath), zap.Error(err))
		case found:
			c.model = model
			c.trained = true
			c.logger.Info("cache model loaded", zap.String("file", o.ModelPath))
		}
	}

	return c
}

// --------------------------------------------------------------------------
// Interface Methods - Cache Access
// --------------------------------------------------------------------------

// RecordAccess tracks one access and maintains the LRU cache, see
// ICache.RecordAccess.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (c *cacheImpl) RecordAccess(key string, value *store.Value) {
	pattern, _ := c.patterns.LoadOrCompute(key, newAccessPattern)
	pattern.record(time.Now())

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.values[key]; ok {
		c.hits.Inc(1)
		c.order.MoveToBack(elem)
		return
	}

	c.misses.Inc(1)
	if value != nil {
		c.addLocked(key, value.Clone())
	}
}

// GetFromCache returns the cached value for the key and promotes it, see
// ICache.GetFromCache.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (c *cacheImpl) GetFromCache(key string) (store.Value, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.values[key]
	if !ok {
		return store.Value{}, false
	}

	c.order.MoveToBack(elem)
	return elem.Value.(*cacheItem).value.Clone(), true
}

// Invalidate drops the cached value for the key, see ICache.Invalidate.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (c *cacheImpl) Invalidate(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.values[key]
	if !ok {
		return false
	}
	delete(c.values, key)
	c.order.Remove(elem)
	return true
}

// ClearCache drops all cached values, see ICache.ClearCache.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (c *cacheImpl) ClearCache() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := len(c.values)
	c.values = make(map[string]*list.Element)
	c.order.Init()
	return count
}

// addLocked inserts a value, evicting the least recently used entry at
// capacity. The caller must hold c.mu.
func (c *cacheImpl) addLocked(key string, value store.Value) {
	if len(c.values) >= c.opts.Capacity {
		if front := c.order.Front(); front != nil {
			evicted := front.Value.(*cacheItem)
			delete(c.values, evicted.key)
			c.order.Remove(front)
		}
	}

	c.values[key] = c.order.PushBack(&cacheItem{key: key, value: value})
}

// containsNoPromote reports presence without touching the LRU order.
func (c *cacheImpl) containsNoPromote(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.values[key]
	return ok
}

// --------------------------------------------------------------------------
// Interface Methods - Scoring Model
// --------------------------------------------------------------------------

// TrainModel fits the hot/cold scorer on the tracked access patterns,
// see ICache.TrainModel.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
// Overlapping calls share a single training run and its result.
func (c *cacheImpl) TrainModel(minSamples int) bool {
	if minSamples <= 0 {
		minSamples = defaultMinSamples
	}

	trained, _, _ := c.group.Do("train", func() (interface{}, error) {
		return c.train(minSamples), nil
	})
	return trained.(bool)
}

// train runs one training pass, see TrainModel.
func (c *cacheImpl) train(minSamples int) bool {
	var rows [][featureCount]float64
	var labels []float64
	c.patterns.Range(func(key string, pattern *accessPattern) bool {
		if size := pattern.size(); size >= trainMinHistory {
			rows = append(rows, pattern.features())
			if size > hotLabelThreshold {
				labels = append(labels, 1.0)
			} else {
				labels = append(labels, 0.5)
			}
		}
		return true
	})

	if len(rows) < minSamples {
		c.logger.Debug("not enough data to train cache model",
			zap.Int("need", minSamples), zap.Int("have", len(rows)))
		return false
	}

	model := &scoreModel{}
	if err := model.fit(rows, labels); err != nil {
		c.logger.Warn("cache model training failed", zap.Error(err))
		return false
	}

	c.modelMu.Lock()
	c.model = model
	c.trained = true
	c.modelMu.Unlock()

	if c.opts.ModelPath != "" {
		if err := saveModel(c.opts.ModelPath, model); err != nil {
			c.logger.Warn("could not save cache model",
				zap.String("file", c.opts.ModelPath), zap.Error(err))
		}
	}

	c.logger.Info("cache model trained", zap.Int("patterns", len(rows)))
	return true
}

// PredictAccessLikelihood scores one key in [0, 1], see
// ICache.PredictAccessLikelihood.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (c *cacheImpl) PredictAccessLikelihood(key string) float64 {
	c.modelMu.RLock()
	model, trained := c.model, c.trained
	c.modelMu.RUnlock()

	if !trained {
		return 0.5
	}
	pattern, ok := c.patterns.Load(key)
	if !ok {
		return 0.5
	}

	score := model.predict(pattern.features())
	c.predictions.Inc(1)

	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// GetHotKeys ranks all tracked keys by predicted likelihood, see
// ICache.GetHotKeys.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (c *cacheImpl) GetHotKeys(topN int) []KeyScore {
	if topN <= 0 {
		return nil
	}

	scored := c.scoreAllKeys()

	// Ties are broken by key so rankings are stable across calls
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Key < scored[j].Key
	})

	if len(scored) > topN {
		scored = scored[:topN]
	}
	return scored
}

// GetColdKeys returns all tracked keys predicted below the threshold,
// see ICache.GetColdKeys.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (c *cacheImpl) GetColdKeys(threshold float64) []string {
	var cold []string
	for _, ks := range c.scoreAllKeys() {
		if ks.Score < threshold {
			cold = append(cold, ks.Key)
		}
	}
	sort.Strings(cold)
	return cold
}

// scoreAllKeys predicts the likelihood of every tracked key.
func (c *cacheImpl) scoreAllKeys() []KeyScore {
	scored := make([]KeyScore, 0, c.patterns.Size())
	c.patterns.Range(func(key string, _ *accessPattern) bool {
		scored = append(scored, KeyScore{Key: key, Score: c.PredictAccessLikelihood(key)})
		return true
	})
	return scored
}

// --------------------------------------------------------------------------
// Interface Methods - Maintenance
// --------------------------------------------------------------------------

// OptimizeCache preloads the hottest keys from the store, see
// ICache.OptimizeCache.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
// Overlapping calls share a single preload run and its result.
func (c *cacheImpl) OptimizeCache(s store.IStore) int {
	loaded, _, _ := c.group.Do("optimize", func() (interface{}, error) {
		return c.preload(s), nil
	})
	return loaded.(int)
}

// preload runs one preload pass, see OptimizeCache.
func (c *cacheImpl) preload(s store.IStore) int {
	limit := min(preloadLimit, c.opts.Capacity)
	loaded := 0

	for _, ks := range c.GetHotKeys(limit) {
		if c.containsNoPromote(ks.Key) {
			continue
		}

		value, found, err := s.Get(ks.Key)
		if err != nil {
			c.logger.Debug("cache preload skipped", zap.String("key", ks.Key), zap.Error(err))
			continue
		}
		if !found {
			continue
		}

		c.mu.Lock()
		if _, ok := c.values[ks.Key]; !ok {
			c.addLocked(ks.Key, value)
			loaded++
		}
		c.mu.Unlock()
	}

	if loaded > 0 {
		c.logger.Info("cache optimized", zap.Int("preloaded", loaded))
	}
	return loaded
}

// CacheStats returns current cache and model statistics, see
// ICache.CacheStats.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (c *cacheImpl) CacheStats() CacheStats {
	c.mu.Lock()
	size := len(c.values)
	c.mu.Unlock()

	c.modelMu.RLock()
	trained := c.trained
	c.modelMu.RUnlock()

	hits := c.hits.Count()
	misses := c.misses.Count()

	stats := CacheStats{
		CacheSize:        size,
		MaxCacheSize:     c.opts.Capacity,
		CacheUtilization: float64(size) / float64(c.opts.Capacity) * 100,
		Hits:             hits,
		Misses:           misses,
		PatternsTracked:  c.patterns.Size(),
		PredictionsMade:  c.predictions.Count(),
		ModelTrained:     trained,
	}
	if total := hits + misses; total > 0 {
		stats.HitRate = float64(hits) / float64(total) * 100
	}
	return stats
}
