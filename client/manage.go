package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/ValentinKolb/sKV/lib/anomaly"
	"github.com/ValentinKolb/sKV/lib/archive"
	"github.com/ValentinKolb/sKV/lib/cache"
	"github.com/ValentinKolb/sKV/lib/recovery"
)

// OperationResult acknowledges a management request.
type OperationResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// CountResult acknowledges a bulk operation.
type CountResult struct {
	Success bool   `json:"success"`
	Count   int    `json:"count"`
	Message string `json:"message"`
}

// --------------------------------------------------------------------------
// Cache management
// --------------------------------------------------------------------------

// CacheStats fetches the cache statistics.
func (c *Client) CacheStats(ctx context.Context) (cache.CacheStats, error) {
	var body struct {
		Stats cache.CacheStats `json:"stats"`
	}
	err := c.do(ctx, http.MethodGet, "/api/v1/cache/stats", nil, &body)
	return body.Stats, err
}

// TrainCache triggers a training run. Success is false when the access
// history is too small, minSamples 0 uses the server default.
func (c *Client) TrainCache(ctx context.Context, minSamples int) (OperationResult, error) {
	req := map[string]int{"min_samples": minSamples}
	var res OperationResult
	err := c.do(ctx, http.MethodPost, "/api/v1/cache/train", req, &res)
	return res, err
}

// OptimizeCache preloads predicted-hot entries and reports how many.
func (c *Client) OptimizeCache(ctx context.Context) (CountResult, error) {
	var res CountResult
	err := c.do(ctx, http.MethodPost, "/api/v1/cache/optimize", nil, &res)
	return res, err
}

// HotKeys fetches the topN highest scored keys.
func (c *Client) HotKeys(ctx context.Context, topN int) ([]cache.KeyScore, error) {
	path := "/api/v1/cache/hot"
	if topN > 0 {
		path += "?top=" + strconv.Itoa(topN)
	}
	var body struct {
		Keys []cache.KeyScore `json:"keys"`
	}
	err := c.do(ctx, http.MethodGet, path, nil, &body)
	return body.Keys, err
}

// ClearCache drops all cached values.
func (c *Client) ClearCache(ctx context.Context) (CountResult, error) {
	var res CountResult
	err := c.do(ctx, http.MethodPost, "/api/v1/cache/clear", nil, &res)
	return res, err
}

// --------------------------------------------------------------------------
// Anomaly management
// --------------------------------------------------------------------------

// Anomalies lists recorded anomalies, optionally filtered by severity
// and resolution state.
func (c *Client) Anomalies(ctx context.Context, severity anomaly.Severity, unresolvedOnly bool) ([]anomaly.Anomaly, error) {
	q := url.Values{}
	if severity != "" {
		q.Set("severity", string(severity))
	}
	if unresolvedOnly {
		q.Set("unresolved", "true")
	}
	path := "/api/v1/anomalies"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var body struct {
		Anomalies []anomaly.Anomaly `json:"anomalies"`
	}
	err := c.do(ctx, http.MethodGet, path, nil, &body)
	return body.Anomalies, err
}

// RunAnomalyCheck executes all detections and returns the new findings.
func (c *Client) RunAnomalyCheck(ctx context.Context) ([]anomaly.Anomaly, error) {
	var body struct {
		Anomalies []anomaly.Anomaly `json:"anomalies"`
	}
	err := c.do(ctx, http.MethodPost, "/api/v1/anomalies/check", nil, &body)
	return body.Anomalies, err
}

// ResolveAnomaly marks one anomaly as resolved. Unknown ids yield a 404
// *APIError.
func (c *Client) ResolveAnomaly(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/api/v1/anomalies/"+url.PathEscape(id)+"/resolve", nil, nil)
}

// --------------------------------------------------------------------------
// Archive management
// --------------------------------------------------------------------------

// ArchivedKeys lists the archive contents.
func (c *Client) ArchivedKeys(ctx context.Context) ([]archive.ArchivedKeyInfo, error) {
	var body struct {
		Keys []archive.ArchivedKeyInfo `json:"keys"`
	}
	err := c.do(ctx, http.MethodGet, "/api/v1/archive", nil, &body)
	return body.Keys, err
}

// ArchiveKeys moves the given keys into the archive. With remove false
// the live entries are kept.
func (c *Client) ArchiveKeys(ctx context.Context, keys []string, remove bool) (CountResult, error) {
	req := map[string]any{"keys": keys, "remove": remove}
	var res CountResult
	err := c.do(ctx, http.MethodPost, "/api/v1/archive", req, &res)
	return res, err
}

// ArchiveColdKeys archives predicted-cold keys. Zero arguments use the
// server defaults.
func (c *Client) ArchiveColdKeys(ctx context.Context, threshold float64, maxKeys int) (CountResult, error) {
	req := map[string]any{}
	if threshold > 0 {
		req["threshold"] = threshold
	}
	if maxKeys > 0 {
		req["max_keys"] = maxKeys
	}
	var res CountResult
	err := c.do(ctx, http.MethodPost, "/api/v1/archive/cold", req, &res)
	return res, err
}

// RestoreKeys moves keys back into the live store. A nil slice restores
// the whole archive.
func (c *Client) RestoreKeys(ctx context.Context, keys []string) (CountResult, error) {
	req := map[string]any{}
	if keys != nil {
		req["keys"] = keys
	}
	var res CountResult
	err := c.do(ctx, http.MethodPost, "/api/v1/archive/restore", req, &res)
	return res, err
}

// --------------------------------------------------------------------------
// Recovery management
// --------------------------------------------------------------------------

// CreateCheckpoint snapshots the store and truncates the transaction log.
func (c *Client) CreateCheckpoint(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/v1/recovery/checkpoint", nil, nil)
}

// RecoveryStats fetches the transaction log statistics.
func (c *Client) RecoveryStats(ctx context.Context) (recovery.LogStats, error) {
	var body struct {
		Stats recovery.LogStats `json:"stats"`
	}
	err := c.do(ctx, http.MethodGet, "/api/v1/recovery/stats", nil, &body)
	return body.Stats, err
}
