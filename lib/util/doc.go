// Package util provides small shared helpers used across the storage,
// cache, and anomaly packages.
//
// Key Components:
//
//   - Stats: descriptive statistics (mean, population standard deviation,
//     min, max) over a float64 sample, plus z-score computation. Used by
//     the anomaly detector for its sliding windows and by the storage
//     engine for value-size reporting.
//
//   - MPSC: a lock-free multi-producer single-consumer queue. Used to
//     decouple request handlers from the change-notification publisher so
//     that slow subscribers never block writes.
//
//   - WriteFileAtomic: temp-file-and-rename file replacement. Used by every
//     component that persists state (store data file, transaction log,
//     checkpoint, archive) so a crash never leaves a torn file behind.
//
// All helpers in this package are safe for concurrent use unless noted
// otherwise on the type.
package util
