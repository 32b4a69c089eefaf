// Package teststore provides standardised tests and benchmarks for
// key-value store implementations that satisfy the store.IStore interface.
//
// The package contains:
//   - testing: A comprehensive test suite for validating conformance to the IStore interface contract,
//     including expiry, access metadata and key validation behaviour
//   - benchmark: Performance tests for measuring durable throughput of common store operations
//
// This package is particularly useful for:
//   - Store developers implementing the IStore interface
//   - Comparing persistence backends and codecs under identical workloads
//
// Example usage:
//
//	// Creating a factory function for your implementation
//	factory := func(t testing.TB) store.IStore {
//		s, err := fstore.New(fstore.DefaultOptions(t.TempDir()))
//		if err != nil {
//			t.Fatalf("failed to create store: %v", err)
//		}
//		return s
//	}
//
//	// Running the standard test suite
//	teststore.RunStoreTests(t, "FStore", factory)
//
//	// Running performance benchmarks
//	teststore.RunStoreBenchmarks(b, "FStore", factory)
package teststore
