package server

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/ValentinKolb/sKV/lib/anomaly"
	"github.com/ValentinKolb/sKV/lib/archive"
	"github.com/ValentinKolb/sKV/lib/cache"
	"github.com/gorilla/mux"
)

// --------------------------------------------------------------------------
// Cache endpoints
// --------------------------------------------------------------------------

func (s *Server) handleCacheStats() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, statsResponse{
			Stats:     s.db.Cache().CacheStats(),
			Timestamp: timestamp(),
		})
	}
}

func (s *Server) handleCacheTrain() http.HandlerFunc {
	type trainRequest struct {
		MinSamples int `json:"min_samples,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req trainRequest
		if !decodeOptionalJSON(w, r, &req) {
			return
		}

		trained := s.db.TrainCache(req.MinSamples)
		msg := "Model trained successfully"
		if !trained {
			msg = "Not enough access data to train the model"
		}
		writeJSON(w, http.StatusOK, operationResponse{
			Success:   trained,
			Message:   msg,
			Timestamp: timestamp(),
		})
	}
}

func (s *Server) handleCacheOptimize() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n := s.db.OptimizeCache()
		writeJSON(w, http.StatusOK, countResponse{
			Success:   true,
			Count:     n,
			Message:   fmt.Sprintf("%d keys preloaded", n),
			Timestamp: timestamp(),
		})
	}
}

func (s *Server) handleCacheHotKeys() http.HandlerFunc {
	type hotKeysResponse struct {
		Keys      []cache.KeyScore `json:"keys"`
		Count     int              `json:"count"`
		Timestamp string           `json:"timestamp"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		top := 10
		if v := r.URL.Query().Get("top"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				writeError(w, r, http.StatusBadRequest, "top must be a positive integer")
				return
			}
			top = n
		}

		hot := s.db.Cache().GetHotKeys(top)
		if hot == nil {
			hot = []cache.KeyScore{}
		}
		writeJSON(w, http.StatusOK, hotKeysResponse{
			Keys:      hot,
			Count:     len(hot),
			Timestamp: timestamp(),
		})
	}
}

func (s *Server) handleCacheClear() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n := s.db.Cache().ClearCache()
		writeJSON(w, http.StatusOK, countResponse{
			Success:   true,
			Count:     n,
			Message:   fmt.Sprintf("%d cached values dropped", n),
			Timestamp: timestamp(),
		})
	}
}

// --------------------------------------------------------------------------
// Anomaly endpoints
// --------------------------------------------------------------------------

type anomaliesResponse struct {
	Anomalies []anomaly.Anomaly `json:"anomalies"`
	Count     int               `json:"count"`
	Timestamp string            `json:"timestamp"`
}

func (s *Server) handleListAnomalies() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		severity := anomaly.Severity(r.URL.Query().Get("severity"))
		if severity != "" && !severity.Valid() {
			writeError(w, r, http.StatusBadRequest,
				fmt.Sprintf("unknown severity '%s'", severity))
			return
		}

		unresolvedOnly := false
		if v := r.URL.Query().Get("unresolved"); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				writeError(w, r, http.StatusBadRequest, "unresolved must be a boolean")
				return
			}
			unresolvedOnly = b
		}

		list := s.db.Detector().GetAnomalies(severity, unresolvedOnly)
		if list == nil {
			list = []anomaly.Anomaly{}
		}
		writeJSON(w, http.StatusOK, anomaliesResponse{
			Anomalies: list,
			Count:     len(list),
			Timestamp: timestamp(),
		})
	}
}

func (s *Server) handleAnomalyCheck() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		detected, err := s.db.RunAnomalyCheck()
		if err != nil {
			writeStoreError(w, r, err)
			return
		}
		if detected == nil {
			detected = []anomaly.Anomaly{}
		}
		writeJSON(w, http.StatusOK, anomaliesResponse{
			Anomalies: detected,
			Count:     len(detected),
			Timestamp: timestamp(),
		})
	}
}

func (s *Server) handleAnomalyResolve() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		if !s.db.Detector().ResolveAnomaly(id) {
			writeError(w, r, http.StatusNotFound,
				fmt.Sprintf("Anomaly '%s' not found", id))
			return
		}
		writeJSON(w, http.StatusOK, operationResponse{
			Success:   true,
			Message:   fmt.Sprintf("Anomaly '%s' resolved", id),
			Timestamp: timestamp(),
		})
	}
}

// --------------------------------------------------------------------------
// Archive endpoints
// --------------------------------------------------------------------------

func (s *Server) handleListArchive() http.HandlerFunc {
	type archiveListResponse struct {
		Keys      []archive.ArchivedKeyInfo `json:"keys"`
		Count     int                       `json:"count"`
		Timestamp string                    `json:"timestamp"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		list := s.db.Archive().ListArchivedKeys()
		if list == nil {
			list = []archive.ArchivedKeyInfo{}
		}
		writeJSON(w, http.StatusOK, archiveListResponse{
			Keys:      list,
			Count:     len(list),
			Timestamp: timestamp(),
		})
	}
}

func (s *Server) handleArchiveKeys() http.HandlerFunc {
	type archiveRequest struct {
		Keys []string `json:"keys"`
		// Remove defaults to true: archiving moves entries out of the
		// live store unless the caller asks for a copy.
		Remove *bool `json:"remove,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req archiveRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if len(req.Keys) == 0 {
			writeError(w, r, http.StatusBadRequest, "keys must not be empty")
			return
		}

		remove := true
		if req.Remove != nil {
			remove = *req.Remove
		}

		n, err := s.db.ArchiveKeys(req.Keys, remove)
		if err != nil {
			writeStoreError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, countResponse{
			Success:   true,
			Count:     n,
			Message:   fmt.Sprintf("%d keys archived", n),
			Timestamp: timestamp(),
		})
	}
}

func (s *Server) handleArchiveCold() http.HandlerFunc {
	type coldRequest struct {
		Threshold float64 `json:"threshold,omitempty"`
		MaxKeys   int     `json:"max_keys,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req coldRequest
		if !decodeOptionalJSON(w, r, &req) {
			return
		}

		n, err := s.db.ArchiveColdKeys(req.Threshold, req.MaxKeys)
		if err != nil {
			writeStoreError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, countResponse{
			Success:   true,
			Count:     n,
			Message:   fmt.Sprintf("%d cold keys archived", n),
			Timestamp: timestamp(),
		})
	}
}

func (s *Server) handleArchiveRestore() http.HandlerFunc {
	type restoreRequest struct {
		// Keys nil restores the whole archive.
		Keys []string `json:"keys,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req restoreRequest
		if !decodeOptionalJSON(w, r, &req) {
			return
		}

		n, err := s.db.RestoreKeys(req.Keys)
		if err != nil {
			writeStoreError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, countResponse{
			Success:   true,
			Count:     n,
			Message:   fmt.Sprintf("%d keys restored", n),
			Timestamp: timestamp(),
		})
	}
}

// --------------------------------------------------------------------------
// Recovery endpoints
// --------------------------------------------------------------------------

func (s *Server) handleCheckpoint() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.db.CreateCheckpoint(); err != nil {
			writeStoreError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, operationResponse{
			Success:   true,
			Message:   "Checkpoint created successfully",
			Timestamp: timestamp(),
		})
	}
}

func (s *Server) handleRecoveryStats() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, statsResponse{
			Stats:     s.db.Recovery().LogStats(),
			Timestamp: timestamp(),
		})
	}
}
