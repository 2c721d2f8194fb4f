package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/custodia-labs/sercha-sync/internal/core/domain"
)

// ErrorResponse represents an API error response
// @Description API error response
type ErrorResponse struct {
	Error string `json:"error" example:"invalid request body"`
}

// StatusResponse represents a simple status response
// @Description Simple status response
type StatusResponse struct {
	Status string `json:"status" example:"ok"`
}

// VersionResponse represents the API version response
// @Description API version response
type VersionResponse struct {
	Version string `json:"version" example:"1.0.0"`
}

// ControlRequest is the body of a control request
// @Description Job control request
type ControlRequest struct {
	JobID  string               `json:"jobId" example:"4f7c1c9e-0d7a-4b7e-9a57-2f1f4f0d9b21"`
	Action domain.ControlAction `json:"action" example:"pause"`
}

// Health endpoints

// handleHealth godoc
// @Summary      Health check
// @Description  Returns the health status of the API
// @Tags         Health
// @Produce      json
// @Success      200  {object}  StatusResponse
// @Router       /health [get]
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

// handleReady godoc
// @Summary      Readiness check
// @Description  Returns 503 unless the database and the lock backend answer
// @Tags         Health
// @Produce      json
// @Success      200  {object}  StatusResponse
// @Failure      503  {object}  ErrorResponse
// @Router       /ready [get]
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		if err := s.db.Ping(r.Context()); err != nil {
			s.logger.Warn("readiness check failed", "component", "database", "error", err)
			writeError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
	}
	if s.lock != nil {
		if err := s.lock.Ping(r.Context()); err != nil {
			s.logger.Warn("readiness check failed", "component", "lock", "error", err)
			writeError(w, http.StatusServiceUnavailable, "lock backend unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, StatusResponse{Status: "ready"})
}

// handleVersion godoc
// @Summary      Get API version
// @Description  Returns the current API version
// @Tags         Health
// @Produce      json
// @Success      200  {object}  VersionResponse
// @Router       /version [get]
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, VersionResponse{Version: s.version})
}

// Job endpoints

// handleControl godoc
// @Summary      Control a job
// @Description  Pause, resume or stop a sync job
// @Tags         Jobs
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request  body      ControlRequest  true  "Control request"
// @Success      200      {object}  domain.ControlResult
// @Failure      400      {object}  ErrorResponse  "Missing jobId or invalid action"
// @Failure      404      {object}  ErrorResponse  "Unknown job"
// @Failure      405      {object}  ErrorResponse  "Method not allowed"
// @Failure      409      {object}  ErrorResponse  "Job already finished"
// @Failure      500      {object}  ErrorResponse  "Internal server error"
// @Router       /jobs/control [post]
func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST, OPTIONS")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req ControlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := s.controlService.Apply(r.Context(), req.JobID, req.Action)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleListJobs godoc
// @Summary      List jobs
// @Description  List sync jobs, newest first
// @Tags         Jobs
// @Produce      json
// @Security     BearerAuth
// @Param        tableId  query     string  false  "Filter by table"
// @Param        status   query     string  false  "Comma-separated statuses"
// @Param        limit    query     int     false  "Page size"
// @Param        offset   query     int     false  "Page offset"
// @Success      200      {array}   domain.SyncJob
// @Failure      400      {object}  ErrorResponse  "Invalid query parameter"
// @Router       /jobs [get]
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.JobFilter{TableID: q.Get("tableId")}

	if raw := q.Get("status"); raw != "" {
		for _, status := range strings.Split(raw, ",") {
			filter.Statuses = append(filter.Statuses, domain.JobStatus(strings.TrimSpace(status)))
		}
	}

	var err error
	if filter.Limit, err = queryInt(q.Get("limit")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	if filter.Offset, err = queryInt(q.Get("offset")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid offset")
		return
	}

	jobs, err := s.jobService.List(r.Context(), filter)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, jobs)
}

// handleGetJob godoc
// @Summary      Get job
// @Description  Get a sync job with its progress
// @Tags         Jobs
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Job ID"
// @Success      200  {object}  domain.SyncJob
// @Failure      404  {object}  ErrorResponse  "Job not found"
// @Router       /jobs/{id} [get]
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobService.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, job)
}

// handleTriggerSync godoc
// @Summary      Trigger sync
// @Description  Create a sync job for a table unless one is already active
// @Tags         Jobs
// @Produce      json
// @Security     BearerAuth
// @Param        tableId  path      string  true  "Table ID"
// @Success      202      {object}  domain.SyncJob
// @Failure      404      {object}  ErrorResponse  "Unknown table"
// @Failure      409      {object}  ErrorResponse  "Sync already in progress"
// @Router       /tables/{tableId}/sync [post]
func (s *Server) handleTriggerSync(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobService.Start(r.Context(), r.PathValue("tableId"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, job)
}

// Config endpoints

// handleListConfigs godoc
// @Summary      List sync configs
// @Tags         Configs
// @Produce      json
// @Security     BearerAuth
// @Success      200  {array}  domain.SyncConfig
// @Router       /configs [get]
func (s *Server) handleListConfigs(w http.ResponseWriter, r *http.Request) {
	configs, err := s.configService.List(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, configs)
}

// handleGetConfig godoc
// @Summary      Get sync config
// @Tags         Configs
// @Produce      json
// @Security     BearerAuth
// @Param        tableId  path      string  true  "Table ID"
// @Success      200      {object}  domain.SyncConfig
// @Failure      404      {object}  ErrorResponse  "Config not found"
// @Router       /configs/{tableId} [get]
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.configService.Get(r.Context(), r.PathValue("tableId"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, cfg)
}

// handleSaveConfig godoc
// @Summary      Create or replace sync config
// @Tags         Configs
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        tableId  path      string             true  "Table ID"
// @Param        request  body      domain.SyncConfig  true  "Sync config"
// @Success      200      {object}  domain.SyncConfig
// @Failure      400      {object}  ErrorResponse  "Invalid config"
// @Router       /configs/{tableId} [put]
func (s *Server) handleSaveConfig(w http.ResponseWriter, r *http.Request) {
	tableID := r.PathValue("tableId")

	var cfg domain.SyncConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if cfg.TableID != "" && cfg.TableID != tableID {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("tableId %q does not match path", cfg.TableID))
		return
	}
	cfg.TableID = tableID

	saved, err := s.configService.Save(r.Context(), &cfg)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, saved)
}

// Helper functions

// statusForError maps domain errors to HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrJobFinished), errors.Is(err, domain.ErrSyncInProgress), errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, status, "internal server error")
		return
	}
	writeError(w, status, err.Error())
}

func queryInt(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid integer %q", raw)
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}
