package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ValentinKolb/sKV/lib/store"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// maxBodySize bounds request bodies, matching the largest value the
// store is expected to hold.
const maxBodySize = 10 << 20

// keyCreateRequest is the body of POST /api/v1/keys.
type keyCreateRequest struct {
	Key      string          `json:"key"`
	Value    json.RawMessage `json:"value"`
	TTL      *int64          `json:"ttl,omitempty"`       // seconds, 0 = no expiry
	DataType string          `json:"data_type,omitempty"` // defaults to "string"
}

// keyUpdateRequest is the body of PUT /api/v1/keys/{key}.
type keyUpdateRequest struct {
	Value    json.RawMessage `json:"value"`
	TTL      *int64          `json:"ttl,omitempty"`
	DataType string          `json:"data_type,omitempty"`
}

// decodeJSON reads the request body into v. On failure it writes a 400
// and reports false.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

// decodeOptionalJSON is decodeJSON for endpoints whose body may be
// empty, v keeps its zero values then.
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, r, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

// parseTTL converts the optional ttl field to a duration.
func parseTTL(ttl *int64) (time.Duration, error) {
	if ttl == nil {
		return 0, nil
	}
	if *ttl < 0 {
		return 0, store.NewError(store.RetCInvalidKey, "ttl must not be negative")
	}
	return time.Duration(*ttl) * time.Second, nil
}

// parseValue builds a typed value from the request payload. A missing
// data type defaults to string.
func parseValue(dataType string, raw json.RawMessage) (store.Value, error) {
	if len(raw) == 0 {
		return store.Value{}, store.NewError(store.RetCInvalidKey, "value is required")
	}
	if dataType == "" {
		dataType = string(store.TypeString)
	}
	return store.FromJSON(dataType, raw)
}

// --------------------------------------------------------------------------
// Service endpoints
// --------------------------------------------------------------------------

func (s *Server) handleRoot() http.HandlerFunc {
	type rootResponse struct {
		Service   string `json:"service"`
		Version   string `json:"version"`
		Status    string `json:"status"`
		Timestamp string `json:"timestamp"`
		API       string `json:"api"`
		Metrics   string `json:"metrics"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, rootResponse{
			Service:   "sKV",
			Version:   Version,
			Status:    "operational",
			Timestamp: timestamp(),
			API:       "/api/v1",
			Metrics:   "/metrics",
		})
	}
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := s.db.Stats()
		if err != nil {
			s.logger.Error("health check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status":    "unhealthy",
				"timestamp": timestamp(),
				"error":     err.Error(),
			})
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"status":    "healthy",
			"timestamp": timestamp(),
			"database": map[string]any{
				"connected":  true,
				"total_keys": stats.Store.TotalKeys,
			},
			"cache": map[string]any{
				"size":     stats.Cache.CacheSize,
				"hit_rate": stats.Cache.HitRate,
			},
		})
	}
}

// --------------------------------------------------------------------------
// Key-value endpoints
// --------------------------------------------------------------------------

func (s *Server) handleListKeys() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		keys, err := s.db.Keys()
		if err != nil {
			writeStoreError(w, r, err)
			return
		}
		if keys == nil {
			keys = []string{}
		}
		writeJSON(w, http.StatusOK, keyListResponse{
			Keys:      keys,
			Count:     len(keys),
			Timestamp: timestamp(),
		})
	}
}

func (s *Server) handleCreateKey() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req keyCreateRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		req.Key = strings.TrimSpace(req.Key)

		exists, err := s.db.Exists(req.Key)
		if err != nil {
			writeStoreError(w, r, err)
			return
		}
		if exists {
			writeError(w, r, http.StatusConflict,
				fmt.Sprintf("Key '%s' already exists. Use PUT to update.", req.Key))
			return
		}

		value, err := parseValue(req.DataType, req.Value)
		if err != nil {
			writeStoreError(w, r, err)
			return
		}
		ttl, err := parseTTL(req.TTL)
		if err != nil {
			writeStoreError(w, r, err)
			return
		}

		start := time.Now()
		if err := s.db.Put(req.Key, value, ttl); err != nil {
			writeStoreError(w, r, err)
			return
		}
		s.notifier.Notify(EventPutSuccess, req.Key, time.Since(start))

		writeJSON(w, http.StatusCreated, operationResponse{
			Success:   true,
			Message:   fmt.Sprintf("Key '%s' stored successfully", req.Key),
			Timestamp: timestamp(),
		})
	}
}

func (s *Server) handleGetKey() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := mux.Vars(r)["key"]

		start := time.Now()
		value, found, err := s.db.Get(key)
		if err != nil {
			writeStoreError(w, r, err)
			return
		}
		if !found {
			s.notifier.Notify(EventGetMiss, key, 0)
			writeError(w, r, http.StatusNotFound, fmt.Sprintf("Key '%s' not found", key))
			return
		}
		s.notifier.Notify(EventGetSuccess, key, time.Since(start))

		writeJSON(w, http.StatusOK, keyResponse{
			Key:       key,
			Value:     value,
			DataType:  string(value.Kind),
			Timestamp: timestamp(),
		})
	}
}

func (s *Server) handleUpdateKey() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := mux.Vars(r)["key"]

		var req keyUpdateRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		exists, err := s.db.Exists(key)
		if err != nil {
			writeStoreError(w, r, err)
			return
		}
		if !exists {
			writeError(w, r, http.StatusNotFound, fmt.Sprintf("Key '%s' not found", key))
			return
		}

		value, err := parseValue(req.DataType, req.Value)
		if err != nil {
			writeStoreError(w, r, err)
			return
		}
		ttl, err := parseTTL(req.TTL)
		if err != nil {
			writeStoreError(w, r, err)
			return
		}

		start := time.Now()
		if err := s.db.Put(key, value, ttl); err != nil {
			writeStoreError(w, r, err)
			return
		}
		s.notifier.Notify(EventPutSuccess, key, time.Since(start))

		writeJSON(w, http.StatusOK, operationResponse{
			Success:   true,
			Message:   fmt.Sprintf("Key '%s' updated successfully", key),
			Timestamp: timestamp(),
		})
	}
}

func (s *Server) handleDeleteKey() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := mux.Vars(r)["key"]

		deleted, err := s.db.Delete(key)
		if err != nil {
			writeStoreError(w, r, err)
			return
		}
		if !deleted {
			writeError(w, r, http.StatusNotFound, fmt.Sprintf("Key '%s' not found", key))
			return
		}
		s.notifier.Notify(EventDeleteSuccess, key, 0)

		writeJSON(w, http.StatusOK, operationResponse{
			Success:   true,
			Message:   fmt.Sprintf("Key '%s' deleted successfully", key),
			Timestamp: timestamp(),
		})
	}
}

func (s *Server) handleStats() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := s.db.Stats()
		if err != nil {
			writeStoreError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, statsResponse{
			Stats:     stats,
			Timestamp: timestamp(),
		})
	}
}
