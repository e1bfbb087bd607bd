package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/jonathan/x-collector/internal/types"
)

// CreateJobRequest represents the request body for POST /jobs.
type CreateJobRequest struct {
	JobType        string `json:"job_type,omitempty"`
	TargetUsername string `json:"target_username,omitempty"`
	MaxPosts       int    `json:"max_posts,omitempty"`
	SinceID        string `json:"since_id,omitempty"`
}

// handleCreateJob creates a collection job and dispatches it.
func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	jobType := types.JobType(req.JobType)
	if jobType == "" {
		jobType = types.JobCollectPosts
	}
	if req.MaxPosts < 0 {
		s.errorResponse(w, http.StatusBadRequest, "max_posts must not be negative")
		return
	}

	job, err := s.jobs.CreateJob(r.Context(), jobType, types.JobParams{
		TargetUsername: req.TargetUsername,
		MaxPosts:       req.MaxPosts,
		SinceID:        req.SinceID,
	})
	if err != nil {
		s.errorResponse(w, httpStatus(err), err.Error())
		return
	}

	s.jsonResponse(w, http.StatusAccepted, job)
}

// handleListJobs lists jobs, newest first.
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	status := types.JobStatus(q.Get("status"))
	limit := parseIntParam(q.Get("limit"), 50)
	offset := parseIntParam(q.Get("offset"), 0)

	list, err := s.jobs.ListJobs(r.Context(), status, limit, offset)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Database error: "+err.Error())
		return
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"jobs":  list,
		"count": len(list),
	})
}

// handleGetJob returns a single job by id.
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid job ID format")
		return
	}

	job, err := s.jobs.GetJob(r.Context(), id)
	if err != nil {
		s.errorResponse(w, httpStatus(err), err.Error())
		return
	}

	s.jsonResponse(w, http.StatusOK, job)
}

// handleCancelJob cancels a pending or running job.
func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid job ID format")
		return
	}

	if err := s.jobs.CancelJob(r.Context(), id); err != nil {
		s.errorResponse(w, httpStatus(err), err.Error())
		return
	}

	job, err := s.jobs.GetJob(r.Context(), id)
	if err != nil {
		s.errorResponse(w, httpStatus(err), err.Error())
		return
	}

	s.jsonResponse(w, http.StatusOK, job)
}

// parseIntParam parses a query parameter, falling back on the default for
// empty or malformed values.
func parseIntParam(raw string, defaultValue int) int {
	if raw == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return defaultValue
	}
	return n
}
