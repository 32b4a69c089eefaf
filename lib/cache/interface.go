package cache

import (
	"github.com/ValentinKolb/sKV/lib/store"
)

// --------------------------------------------------------------------------
// Result types
// --------------------------------------------------------------------------

// KeyScore pairs a tracked key with its predicted access likelihood.
type KeyScore struct {
	Key   string  `json:"key"`   // tracked key
	Score float64 `json:"score"` // predicted access likelihood in [0, 1]
}

// CacheStats describes the current cache and model state.
type CacheStats struct {
	CacheSize        int     `json:"cache_size"`        // entries currently cached
	MaxCacheSize     int     `json:"max_cache_size"`    // configured capacity
	CacheUtilization float64 `json:"cache_utilization"` // CacheSize relative to capacity, in percent
	Hits             int64   `json:"hits"`              // RecordAccess calls that found the key cached
	Misses           int64   `json:"misses"`            // RecordAccess calls that did not
	HitRate          float64 `json:"hit_rate"`          // hit fraction in percent, 0 if no requests yet
	PatternsTracked  int     `json:"patterns_tracked"`  // keys with recorded access history
	PredictionsMade  int64   `json:"predictions_made"`  // model predictions served so far
	ModelTrained     bool    `json:"model_trained"`     // whether a trained model is active
}

// --------------------------------------------------------------------------
// Interface
// --------------------------------------------------------------------------

// ICache is a bounded in-memory cache with least-recently-used eviction,
// decorated with a trainable hot/cold scorer over per-key access
// patterns.
//
// The cache holds derived, non-authoritative copies of store values. It
// must never be consulted for existence or ttl decisions, the store owns
// those.
type ICache interface {
	// RecordAccess tracks one access to the given key: the key's access
	// pattern history is updated, a cached key is promoted to most
	// recently used, and a missing key is inserted (evicting the least
	// recently used entry at capacity) when a value is supplied. A nil
	// value only tracks the pattern.
	RecordAccess(key string, value *store.Value)

	// GetFromCache returns the cached value and promotes the key, or
	// reports absence. It has no side effects on the backing store and
	// does not change the hit/miss counters.
	GetFromCache(key string) (store.Value, bool)

	// Invalidate drops the cached value for the key, if any, and reports
	// whether one was cached. The key's access pattern history is kept.
	// Callers invalidate after overwriting or removing the entry in the
	// backing store.
	Invalidate(key string) bool

	// TrainModel fits the hot/cold scorer on all keys with at least 10
	// recorded accesses. It reports false without training when fewer
	// than minSamples such keys exist (minSamples <= 0 uses the default
	// of 50). A fitted model is persisted to the configured model file.
	// Calls that overlap an in-flight training run share its result.
	TrainModel(minSamples int) bool

	// PredictAccessLikelihood scores one key in [0, 1]. Untrained models
	// and unknown keys score the neutral 0.5. The output is a ranking
	// signal, not a calibrated probability.
	PredictAccessLikelihood(key string) float64

	// GetHotKeys returns the topN tracked keys ranked by predicted
	// likelihood, highest first.
	GetHotKeys(topN int) []KeyScore

	// GetColdKeys returns all tracked keys whose predicted likelihood is
	// below the threshold. With an untrained model every key scores the
	// neutral 0.5 and thresholds at or below 0.5 select nothing.
	GetColdKeys(threshold float64) []string

	// OptimizeCache preloads up to min(50, capacity) of the hottest keys
	// from the given store into the cache and returns how many entries
	// were loaded. Keys that cannot be fetched are skipped. Calls that
	// overlap an in-flight preload run share its result.
	OptimizeCache(s store.IStore) int

	// CacheStats returns current cache and model statistics.
	CacheStats() CacheStats

	// ClearCache drops all cached values and returns how many were
	// dropped. Access pattern histories and counters are kept.
	ClearCache() int
}
