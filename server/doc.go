// Package server exposes a SmartStore database over a REST API.
//
// Key Features:
//
//   - Key-Value API: create, read, update, delete and list keys with typed
//     values and optional TTLs under /api/v1/keys
//   - Management API: cache training and preloading, anomaly listing and
//     checks, archival and restore, checkpointing, all under /api/v1
//   - Observability: per-route request counters and latency histograms in
//     Prometheus text format under /metrics, a liveness probe under /health
//   - Change Notifications: operation outcomes published to a NATS subject,
//     decoupled from request handling by a lock-free queue
//   - Protection: optional request rate limiting for the API routes and a
//     request body size cap
//
// Implementation Details:
//
// The server wraps exactly one SmartStore and translates its error codes
// to HTTP statuses: a held cross-process lock maps to 503 (retryable),
// validation failures map to 400, absent keys and unknown anomaly ids map
// to 404. Every error body carries the same shape: the message, a
// timestamp and the request path.
//
// Change notifications are best-effort. Handlers push events onto an
// unbounded lock-free queue and return immediately, a single goroutine
// drains the queue and publishes to the broker. A lost broker connection
// never slows down or fails a request.
//
// Graceful shutdown is driven by the context passed to Run: once it is
// canceled the listener stops accepting connections, in-flight requests
// get a bounded grace period and queued notifications are drained before
// Run returns.
//
// Usage Example:
//
//	db, err := smartstore.New(smartstore.DefaultOptions("/var/lib/skv"))
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer db.Close()
//
//	srv, err := server.NewServer(db, server.DefaultConfig(), logger)
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := srv.Run(ctx); err != nil {
//		log.Fatal(err)
//	}
package server
