// Package codec provides the durable encodings for entry sets. It
// defines a common interface and multiple implementations used by the
// storage engine for its data file and by the recovery manager for its
// checkpoints.
//
// The package focuses on:
//   - Providing a consistent interface for different snapshot formats
//   - Offering multiple implementations with different performance and
//     debuggability characteristics
//   - Detecting on load which codec wrote a file, so deployments can
//     switch codecs without migration
//   - Rejecting corrupt files reliably instead of loading bad data
//
// Key Components:
//
//   - ICodec: Core interface that all codec implementations must satisfy.
//
//   - binaryCodecImpl: Custom binary format optimized for speed and
//     compactness. Carries a magic number, a format version and a
//     trailing xxhash checksum, so truncated or bit-flipped files are
//     detected on load instead of being half-applied.
//
//   - gobCodecImpl: Implementation using Go's built-in gob encoding
//     behind the same magic-number header. Compact and simple, but not
//     readable by non-Go tooling.
//
//   - jsonCodecImpl: Human-readable format that renders each entry with
//     its metadata and its value according to the value's data type. The
//     file is a plain json object and can be inspected and edited with
//     standard tooling. Values must be text; arbitrary binary data only
//     survives the binary and gob codecs.
//
// Codec Detection:
//
//	Every load path should sniff the file with Detect before decoding,
//	rather than assuming the configured codec. Binary and gob files are
//	recognized by their magic numbers, json files by their leading
//	object brace. This keeps old files readable after the configured
//	codec changes.
//
// Error Handling:
//
//	All decode failures (bad magic, version mismatch, truncation,
//	checksum mismatch, malformed records) return errors carrying the
//	corrupted code, so callers can uniformly treat such files as absent.
//
// Thread Safety:
//
//	All codec implementations are stateless and safe for concurrent use
//	across multiple goroutines without additional synchronization.
//
// Usage:
//
//	Codecs are typically created once and reused:
//
//	  c, err := codec.ForName("binary")
//	  err = c.EncodeEntries(file, entries)
//	  // ... later ...
//	  entries, err := c.DecodeEntries(file)
package codec
