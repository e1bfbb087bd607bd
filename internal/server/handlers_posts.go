package server

import (
	"net/http"
	"strconv"

	"github.com/jonathan/x-collector/internal/store"
	"github.com/jonathan/x-collector/internal/types"
)

// handleListPosts lists collected posts, newest first.
func (s *Server) handleListPosts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filters := store.PostFilters{
		Source: types.PostSource(q.Get("source")),
		Limit:  parseIntParam(q.Get("limit"), 50),
		Offset: parseIntParam(q.Get("offset"), 0),
	}
	if filters.Limit <= 0 || filters.Limit > 200 {
		filters.Limit = 50
	}
	if filters.Offset < 0 {
		filters.Offset = 0
	}
	if raw := q.Get("has_media"); raw != "" {
		hasMedia, err := strconv.ParseBool(raw)
		if err != nil {
			s.errorResponse(w, http.StatusBadRequest, "Invalid has_media value")
			return
		}
		filters.HasMedia = &hasMedia
	}

	posts, err := s.store.ListPosts(r.Context(), filters)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Database error: "+err.Error())
		return
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"posts": posts,
		"count": len(posts),
	})
}

// handleGetPost returns a single post by its source-assigned id.
func (s *Server) handleGetPost(w http.ResponseWriter, r *http.Request) {
	postID := r.PathValue("post_id")
	if postID == "" {
		s.errorResponse(w, http.StatusBadRequest, "Post ID is required")
		return
	}

	post, err := s.store.GetPostByPostID(r.Context(), postID)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Database error: "+err.Error())
		return
	}
	if post == nil {
		s.errorResponse(w, http.StatusNotFound, "Post not found")
		return
	}

	s.jsonResponse(w, http.StatusOK, post)
}

// handlePostStats returns aggregate statistics over collected posts.
func (s *Server) handlePostStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.PostStats(r.Context())
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Database error: "+err.Error())
		return
	}

	s.jsonResponse(w, http.StatusOK, stats)
}

// handleHealth reports service liveness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "healthy"})
}
