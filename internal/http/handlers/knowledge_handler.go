// Knowledge HTTP handlers.
//
// This file exposes REST endpoints for the knowledge base:
//   - POST   /knowledge/courses/{courseID}   (index raw course material)
//   - POST   /knowledge/search               (semantic search)
//   - GET    /knowledge/stats                (aggregate counts)
//   - DELETE /knowledge/courses/{courseID}   (remove a course's chunks)
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/edustack-labs/go-student-assistant/internal/knowledge"
)

// KnowledgeService defines the knowledge-base operations consumed by HTTP
// handlers.
type KnowledgeService interface {
	// Index splits, embeds, and stores course material.
	Index(ctx context.Context, courseID, content, sourceFile string) (int, error)
	// Search ranks stored chunks against a query by cosine similarity.
	// A nil minScore means "use the service default".
	Search(ctx context.Context, query, courseID string, limit int, minScore *float64) ([]knowledge.Result, error)
	// Stats reports aggregate knowledge-base counts.
	Stats(ctx context.Context) (knowledge.Stats, error)
	// DeleteCourse removes every chunk of a course.
	DeleteCourse(ctx context.Context, courseID string) (int64, error)
}

// IndexRequest is the JSON payload for indexing course material.
type IndexRequest struct {
	// Content is the raw course text to chunk and embed.
	Content string `json:"content" binding:"required"`
	// SourceFile names where the content came from (for later auditing).
	SourceFile string `json:"source_file,omitempty"`
}

// IndexResponse reports the outcome of an indexing run.
type IndexResponse struct {
	CourseID      string `json:"course_id"`
	ChunksCreated int    `json:"chunks_created"`
}

// SearchRequest is the JSON payload for semantic search.
type SearchRequest struct {
	Query string `json:"query" binding:"required"`
	// CourseID restricts the search to one course when set.
	CourseID string `json:"course_id,omitempty"`
	// Limit caps the number of results (service default when 0).
	Limit int `json:"limit,omitempty"`
	// MinScore drops weak matches. Omitted means the service default;
	// an explicit 0 keeps every non-negative score.
	MinScore *float64 `json:"min_score,omitempty"`
}

// SearchResponse wraps ranked search results.
type SearchResponse struct {
	Results []knowledge.Result `json:"results"`
}

// DeleteCourseResponse reports how many chunks a course deletion removed.
type DeleteCourseResponse struct {
	CourseID string `json:"course_id"`
	Deleted  int64  `json:"deleted"`
}

// KnowledgeHandlers groups HTTP endpoints for the knowledge base.
type KnowledgeHandlers struct {
	svc KnowledgeService
}

// NewKnowledgeHandlers constructs a KnowledgeHandlers bound to the service.
func NewKnowledgeHandlers(svc KnowledgeService) *KnowledgeHandlers {
	return &KnowledgeHandlers{svc: svc}
}

// IndexCourse chunks, embeds, and stores raw course material.
func (h *KnowledgeHandlers) IndexCourse(c *gin.Context) {
	courseID := strings.TrimSpace(c.Param("courseID"))
	if courseID == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "course id required")
		return
	}

	var req IndexRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	n, err := h.svc.Index(c.Request.Context(), courseID, req.Content, req.SourceFile)
	if err != nil {
		if errors.Is(err, knowledge.ErrEmptyContent) {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content must not be empty")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeIndexFailed, err.Error())
		return
	}
	ok(c, http.StatusCreated, IndexResponse{CourseID: courseID, ChunksCreated: n})
}

// SearchKnowledge ranks stored chunks against the query.
func (h *KnowledgeHandlers) SearchKnowledge(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	results, err := h.svc.Search(c.Request.Context(), req.Query, req.CourseID, req.Limit, req.MinScore)
	if err != nil {
		if errors.Is(err, knowledge.ErrEmptyQuery) {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "query must not be empty")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeSearchFailed, err.Error())
		return
	}
	if results == nil {
		results = []knowledge.Result{}
	}
	ok(c, http.StatusOK, SearchResponse{Results: results})
}

// KnowledgeStats reports aggregate knowledge-base counts.
func (h *KnowledgeHandlers) KnowledgeStats(c *gin.Context) {
	st, err := h.svc.Stats(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, st)
}

// DeleteCourseKnowledge removes every stored chunk of a course.
func (h *KnowledgeHandlers) DeleteCourseKnowledge(c *gin.Context) {
	courseID := strings.TrimSpace(c.Param("courseID"))
	if courseID == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "course id required")
		return
	}

	n, err := h.svc.DeleteCourse(c.Request.Context(), courseID)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeDeleteFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, DeleteCourseResponse{CourseID: courseID, Deleted: n})
}
