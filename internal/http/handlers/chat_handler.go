// Chat HTTP handlers.
//
// This file exposes REST endpoints for conversations and chat exchanges:
//   - POST   /chat/messages                     (one full exchange)
//   - POST   /chat/messages/stream              (exchange with NDJSON deltas)
//   - POST   /conversations                     (start a new conversation)
//   - GET    /conversations                     (list)
//   - GET    /conversations/{id}/messages       (paginated, from_end support)
//   - DELETE /conversations/{id}                (delete with messages)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/edustack-labs/go-student-assistant/internal/domain"
	"github.com/edustack-labs/go-student-assistant/internal/services"
	"github.com/edustack-labs/go-student-assistant/internal/utils"
)

//
// Service contracts (context-aware)
//

// ChatService defines the chat operations consumed by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type ChatService interface {
	// SendMessage runs one full exchange in the student's conversation.
	SendMessage(ctx context.Context, studentID, message, conversationID string) (*services.Exchange, error)
	// StreamMessage runs an exchange, forwarding reply deltas to onDelta.
	StreamMessage(ctx context.Context, studentID, message, conversationID string, onDelta func(string) error) (*services.Exchange, error)
	// StartConversation opens a new active conversation for the student.
	StartConversation(ctx context.Context, studentID, initialContext string) (*domain.Conversation, error)
	// ListConversations returns the student's conversations.
	ListConversations(ctx context.Context, studentID string) ([]domain.Conversation, error)
	// ListMessagesPage returns a page of messages within a conversation.
	ListMessagesPage(ctx context.Context, studentID, conversationID string, page, pageSize int, fromEnd bool) ([]domain.Message, int64, error)
	// DeleteConversation removes a conversation the student owns.
	DeleteConversation(ctx context.Context, studentID, conversationID string) error
}

// studentID extracts the authenticated student id from Gin context (set by
// upstream middleware). If absent, it falls back to "X-Student-ID" header
// (tests use it), and finally to "demo-student". It never touches c.Request
// if it's nil.
func studentID(c *gin.Context) string {
	if v, ok := c.Get("studentID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if c != nil && c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader("X-Student-ID")); h != "" {
			return h
		}
	}
	return "demo-student"
}

//
// DTOs
//

// SendMessageRequest is the JSON payload for a chat exchange.
type SendMessageRequest struct {
	// Message is the student's question or remark.
	Message string `json:"message" binding:"required"`
	// ConversationID targets an existing conversation; when empty the
	// student's active conversation is used (or a new one is created).
	ConversationID string `json:"conversation_id,omitempty"`
}

// StartConversationRequest is the JSON payload for opening a conversation.
type StartConversationRequest struct {
	// InitialContext optionally seeds the conversation with system context.
	InitialContext string `json:"initial_context,omitempty"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListConversationsResponse wraps the student's conversations.
type ListConversationsResponse struct {
	Conversations []domain.Conversation `json:"conversations"`
}

// ListMessagesResponse wraps a page of messages and pagination information.
type ListMessagesResponse struct {
	Messages   []domain.Message `json:"messages"`
	Pagination Pagination       `json:"pagination"`
}

// StreamEvent is one NDJSON line of a streamed exchange.
type StreamEvent struct {
	Type           string `json:"type"` // "delta", "done", or "error"
	Content        string `json:"content,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	Model          string `json:"model,omitempty"`
	TokensUsed     int    `json:"tokens_used,omitempty"`
	Degraded       bool   `json:"degraded,omitempty"`
	DegradedReason string `json:"degraded_reason,omitempty"`
	Code           string `json:"code,omitempty"`
	Message        string `json:"message,omitempty"`
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

// failForChatError maps service-level chat errors to HTTP responses.
func failForChatError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrEmptyMessage):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message must not be empty")
	case errors.Is(err, services.ErrTooLong):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message too long")
	case errors.Is(err, services.ErrConversationNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "conversation not found")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeAnswerFailed, err.Error())
	}
}

//
// Handler wiring
//

// ChatHandlers groups HTTP endpoints for conversations and exchanges.
// It depends on an abstract service interface to keep transport concerns
// separate from business logic.
type ChatHandlers struct {
	svc ChatService
}

// NewChatHandlers constructs a ChatHandlers bound to the given service.
func NewChatHandlers(svc ChatService) *ChatHandlers {
	return &ChatHandlers{svc: svc}
}

// SendMessage runs one exchange and returns both persisted messages with the
// reply metadata (including degradation tags).
func (h *ChatHandlers) SendMessage(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	ex, err := h.svc.SendMessage(c.Request.Context(), studentID(c), req.Message, req.ConversationID)
	if err != nil {
		failForChatError(c, err)
		return
	}
	ok(c, http.StatusOK, ex)
}

// StreamMessage runs an exchange and streams the reply as NDJSON events:
// one "delta" line per chunk, then a terminal "done" line. A failure after
// streaming has begun is reported as an "error" line; output already sent is
// not retracted.
func (h *ChatHandlers) StreamMessage(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	c.Writer.Header().Set("Content-Type", "application/x-ndjson")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.WriteHeader(http.StatusOK)

	enc := json.NewEncoder(c.Writer)
	writeEvent := func(ev StreamEvent) error {
		if err := enc.Encode(ev); err != nil {
			return err
		}
		c.Writer.Flush()
		return nil
	}

	ex, err := h.svc.StreamMessage(c.Request.Context(), studentID(c), req.Message, req.ConversationID, func(delta string) error {
		return writeEvent(StreamEvent{Type: "delta", Content: delta})
	})
	if err != nil {
		code := ErrCodeAnswerFailed
		switch {
		case errors.Is(err, services.ErrEmptyMessage), errors.Is(err, services.ErrTooLong):
			code = ErrCodeBadRequest
		case errors.Is(err, services.ErrConversationNotFound):
			code = ErrCodeNotFound
		}
		_ = writeEvent(StreamEvent{Type: "error", Code: code, Message: err.Error()})
		return
	}

	_ = writeEvent(StreamEvent{
		Type:           "done",
		ConversationID: ex.ConversationID,
		Model:          ex.Reply.Model,
		TokensUsed:     ex.Reply.TokensUsed,
		Degraded:       ex.Reply.Degraded,
		DegradedReason: ex.Reply.DegradedReason,
	})
}

// StartConversation opens a new active conversation, deactivating the
// student's previous ones.
func (h *ChatHandlers) StartConversation(c *gin.Context) {
	var req StartConversationRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
			return
		}
	}

	conv, err := h.svc.StartConversation(c.Request.Context(), studentID(c), req.InitialContext)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, err.Error())
		return
	}
	ok(c, http.StatusCreated, conv)
}

// ListConversations returns the student's conversations, most recently
// active first.
func (h *ChatHandlers) ListConversations(c *gin.Context) {
	items, err := h.svc.ListConversations(c.Request.Context(), studentID(c))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	if items == nil {
		items = []domain.Conversation{}
	}
	ok(c, http.StatusOK, ListConversationsResponse{Conversations: items})
}

// ListMessages returns a page of a conversation's messages. With
// from_end=true (the default a chat UI wants), page 1 holds the most recent
// messages; within a page, messages are always oldest-first.
func (h *ChatHandlers) ListMessages(c *gin.Context) {
	conversationID := c.Param("id")
	if _, err := uuid.Parse(conversationID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "conversation id must be a UUID")
		return
	}

	page, pageSize := clampPagination(c)
	fromEnd := utils.BoolDefault(c.Query("from_end"), true)

	items, total, err := h.svc.ListMessagesPage(c.Request.Context(), studentID(c), conversationID, page, pageSize, fromEnd)
	if err != nil {
		if errors.Is(err, services.ErrConversationNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "conversation not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	ok(c, http.StatusOK, ListMessagesResponse{
		Messages: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// DeleteConversation removes a conversation the student owns, together with
// its messages.
func (h *ChatHandlers) DeleteConversation(c *gin.Context) {
	conversationID := c.Param("id")
	if _, err := uuid.Parse(conversationID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "conversation id must be a UUID")
		return
	}

	if err := h.svc.DeleteConversation(c.Request.Context(), studentID(c), conversationID); err != nil {
		if errors.Is(err, services.ErrConversationNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "conversation not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeDeleteFailed, err.Error())
		return
	}
	noContent(c)
}
