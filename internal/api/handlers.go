package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/assetgatehq/assetgate/internal/audit"
	"github.com/assetgatehq/assetgate/internal/metrics"
	"github.com/assetgatehq/assetgate/internal/pathutil"
	"github.com/assetgatehq/assetgate/internal/storage"
	"github.com/go-chi/chi/v5"
)

const maxUploadBytes = 32 << 20 // 32 MiB

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// recordRejection feeds metrics and the audit trail. Rejections are the
// expected outcome for untrusted input, so failures to record are
// swallowed rather than surfaced to the client.
func (s *Server) recordRejection(r *http.Request, validator, input, reason string) {
	metrics.RecordValidation(validator, false)
	metrics.RecordRejection(validator, reason)
	if s.audit == nil {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	_ = s.audit.Record(ctx, audit.Entry{
		Validator:  validator,
		Input:      input,
		Reason:     reason,
		RemoteAddr: s.clientIP(r),
	})
}

func (s *Server) handleGetAsset(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() { metrics.ObserveRequest("get_asset", time.Since(start)) }()

	rel := chi.URLParam(r, "*")

	ok, err := pathutil.IsPathSafeWithBase(s.cfg.RootDir, rel)
	if err != nil {
		// Config validation guarantees a non-empty root; reaching this is
		// a server bug, not client input.
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if !ok {
		s.recordRejection(r, "path", rel, "containment")
		http.NotFound(w, r)
		return
	}
	metrics.RecordValidation("path", true)

	if !s.rules.Allowed(rel) {
		s.recordRejection(r, "rules", rel, "denied")
		http.NotFound(w, r)
		return
	}

	f, fi, err := s.store.Open(rel)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	defer f.Close()

	metrics.RecordServe()
	http.ServeContent(w, r, fi.Name(), fi.ModTime(), f)
}

type validateRequest struct {
	Validator    string `json:"validator"`
	Name         string `json:"name,omitempty"`
	BaseDir      string `json:"base_dir,omitempty"`
	RelativePath string `json:"relative_path,omitempty"`
}

type validateResponse struct {
	Validator string `json:"validator"`
	Safe      bool   `json:"safe"`
}

// handleValidate exposes both validators to build tooling so it can vet
// output names before touching the filesystem.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() { metrics.ObserveRequest("validate", time.Since(start)) }()

	var req validateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	switch req.Validator {
	case "filename":
		safe := pathutil.IsFilenameSafe(req.Name)
		if safe {
			metrics.RecordValidation("filename", true)
		} else {
			s.recordRejection(r, "filename", req.Name, "denied_token")
		}
		writeJSON(w, http.StatusOK, validateResponse{Validator: "filename", Safe: safe})

	case "path":
		baseDir := req.BaseDir
		if baseDir == "" {
			baseDir = s.cfg.RootDir
		}
		safe, err := pathutil.IsPathSafeWithBase(baseDir, req.RelativePath)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		if safe {
			metrics.RecordValidation("path", true)
		} else {
			s.recordRejection(r, "path", req.RelativePath, "containment")
		}
		writeJSON(w, http.StatusOK, validateResponse{Validator: "path", Safe: safe})

	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "validator must be \"filename\" or \"path\""})
	}
}

func (s *Server) handleUploadAsset(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() { metrics.ObserveRequest("upload_asset", time.Since(start)) }()

	name := chi.URLParam(r, "name")
	if !pathutil.IsFilenameSafe(name) {
		s.recordRejection(r, "filename", name, "denied_token")
		metrics.RecordUpload("rejected")
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsafe asset name"})
		return
	}
	metrics.RecordValidation("filename", true)

	body := http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if _, err := s.store.WriteStaged(name, body); err != nil {
		if errors.Is(err, storage.ErrUnsafeName) {
			metrics.RecordUpload("rejected")
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsafe asset name"})
			return
		}
		metrics.RecordUpload("failed")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	metrics.RecordUpload("staged")
	writeJSON(w, http.StatusCreated, map[string]string{"name": name, "status": "staged"})
}

func (s *Server) handlePromoteAsset(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() { metrics.ObserveRequest("promote_asset", time.Since(start)) }()

	name := chi.URLParam(r, "name")
	if !pathutil.IsFilenameSafe(name) {
		s.recordRejection(r, "filename", name, "denied_token")
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsafe asset name"})
		return
	}

	if err := s.store.Promote(name); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "no staged asset with that name"})
			return
		}
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	metrics.RecordUpload("promoted")
	writeJSON(w, http.StatusOK, map[string]string{"name": name, "status": "promoted"})
}

func (s *Server) handleRejections(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeJSON(w, http.StatusOK, map[string]any{"rejections": []audit.Entry{}})
		return
	}

	limit := int64(50)
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		if parsed > 500 {
			parsed = 500
		}
		limit = parsed
	}

	entries, err := s.audit.Recent(r.Context(), limit)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"rejections": entries})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.audit != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.audit.Client().Ping(ctx).Err(); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "redis": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
