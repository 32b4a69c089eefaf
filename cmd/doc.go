// Package cmd implements the command-line interface for the sKV
// key-value store. It provides a hierarchical command structure with
// operations for running the REST server, working on an embedded
// database directly and interacting with a running server as a client.
//
// The package is organized into several subpackages:
//
//   - serve: Commands for starting and configuring the sKV REST server
//   - shell: Interactive shell on an embedded database
//   - kv: Client commands for key-value operations against a running server
//   - bench: Benchmarks for the embedded engine and the snapshot codecs
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See skv -help for a list of all commands.
package cmd
