// Package cache provides a predictive read cache that combines a
// classic LRU with a small learned scorer over per-key access
// patterns.
//
// Key Features:
//
//   - Bounded LRU cache with clone-on-read value semantics
//   - Per-key access history (timestamps and inter-access intervals)
//     in a fixed sliding window
//   - Linear scoring model trained on the tracked patterns, used to
//     rank keys as hot or cold
//   - Optional model persistence so a trained scorer survives restarts
//   - Hit/miss/prediction counters via go-metrics
//
// Implementation Details:
//
// Caching: values live in a map indexed LRU list. A hit on
// RecordAccess or GetFromCache promotes the entry to most recently
// used; inserting into a full cache evicts the least recently used
// entry. Cached values are cloned on read and write, so callers can
// mutate what they get back without corrupting the cache. Invalidate
// drops a single value after the backing store changed it.
//
// Pattern tracking: every RecordAccess appends to the key's sliding
// window of access timestamps and intervals, whether or not the key is
// cached. Patterns are the training data and survive ClearCache.
//
// Scoring: TrainModel standardizes the pattern features and fits a
// ridge regularized linear regressor against a coarse popularity
// label. PredictAccessLikelihood clamps the regressor output to
// [0, 1]; before the first successful training, and for unknown keys,
// it returns the neutral score 0.5. The model is advisory only: a bad
// score costs a cache miss, never correctness, because reads always
// fall back to the store.
//
// Thread Safety:
//
// All methods are safe for concurrent use. The LRU state is guarded by
// a single mutex, patterns live in a concurrent map with per-pattern
// locks, and the model swaps atomically under a read/write mutex.
//
// Usage Example:
//
//	c := cache.New(&cache.Options{
//		Capacity:  1000,
//		ModelPath: "./data/cache_model.json",
//		Logger:    logger,
//	})
//
//	// on every read, after consulting the store
//	c.RecordAccess("session:1", &value)
//
//	// periodically
//	c.TrainModel(50)
//	c.OptimizeCache(s)
//
// Suitable Use Cases:
//
//   - Read-heavy workloads with skewed key popularity
//   - Warming a cache after restart from learned access behavior
//   - Feeding hot/cold rankings to archival decisions
//
// Performance Considerations:
//
// Pattern windows are bounded, so memory grows with the number of
// distinct keys, not with traffic. Training cost is linear in tracked
// keys; prediction is a handful of float operations per key.
package cache
