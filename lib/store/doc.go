// Package store defines the contract of the storage engine: the IStore
// interface, the Entry data model, the tagged Value union and the unified
// error type shared by every component that talks to the engine.
//
// The package focuses on:
//   - A unified interface (IStore) for durable key-value operations
//   - A typed value model (string, number, json, list) validated at the boundary
//   - Standardized error reporting with retryability information
//
// Key Components:
//
//   - IStore Interface: The core abstraction for the storage engine. The
//     engine owns the canonical key to entry mapping; collaborators such as
//     the recovery manager, the predictive cache, the anomaly detector and
//     the archive manager all operate through this interface and must never
//     treat their own derived state as the source of truth for existence or
//     expiry.
//
//   - Entry: The unit of stored data, carrying the value, the advisory data
//     type tag, creation/update/access timestamps, an access counter and the
//     optional expiry deadline derived from the TTL.
//
//   - Value: A tagged union replacing dynamically typed payloads. Values are
//     constructed through validating constructors (NewStringValue,
//     NewNumberValue, NewJSONValue, NewListValue, ParseLiteral, FromJSON),
//     so an invalid payload is rejected before it ever reaches storage.
//
//   - Error System: A structured error type carrying a RetCode. The codes
//     separate transient conditions (RetCBusy, retryable), validation
//     failures (RetCInvalidKey), integrity faults (RetCCorrupted), missing
//     artifacts (RetCResource) and plain absence (RetCNotFound) so callers
//     can apply different retry and reporting policies.
//
// Implementations:
//
//	The fstore package (github.com/ValentinKolb/sKV/lib/store/fstore)
//	provides the file-backed implementation: a mutex-guarded in-memory
//	index that is persisted in full on every mutation, guarded across
//	processes by an advisory lock file, with lazy TTL eviction on read and
//	a periodic background sweep.
//
//	The teststore package (github.com/ValentinKolb/sKV/lib/store/teststore)
//	provides a standardized test suite and benchmarks for IStore
//	implementations.
package store
