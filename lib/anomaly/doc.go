// Package anomaly provides statistical anomaly detection for store
// traffic and key populations.
//
// Key Features:
//
//   - Bounded sliding windows over access outcomes, error flags and
//     latencies
//   - Z-score spike detection for access behaviour and latency
//   - Error rate monitoring over the most recent operations
//   - Hot and cold key detection over the store's access counts
//   - Persistent, resolvable anomaly records as an audit trail
//
// Implementation Details:
//
// Every detection compares a recent slice of samples against the rest of
// the window. Spike checks need at least 20 samples and spread in the
// baseline; the error rate check needs 10. Key level checks require a
// population of more than 10 entries. Whenever a statistic cannot be
// computed (too few samples, zero variance, empty baseline) the check
// reports no anomaly, it never fails.
//
// Detections accumulate in an in-memory record list. Resolving an
// anomaly flips its resolved flag but keeps the record, so the history
// of what was detected stays inspectable.
//
// Thread Safety:
//
// All methods are safe for concurrent use, one mutex guards the windows
// and the record list.
//
// Usage Example:
//
//	d := anomaly.New(anomaly.DefaultOptions())
//
//	// on every operation
//	d.RecordAccess(err == nil, time.Since(start))
//
//	// periodically
//	detected, err := d.RunFullCheck(s)
//
//	// inspect and resolve
//	open := d.GetAnomalies("", true)
//	d.ResolveAnomaly(open[0].ID)
//
// Suitable Use Cases:
//
//   - Flagging error bursts and latency regressions without external
//     monitoring infrastructure
//   - Spotting keys that dominate traffic or were written and forgotten
//   - Feeding operational dashboards through the stats summary
package anomaly
