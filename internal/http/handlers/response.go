// Package handlers provides HTTP handler implementations for the public API.
//
// This file holds the response helpers every endpoint goes through. Chat,
// conversation and knowledge handlers all answer in the same two shapes: a
// plain JSON body on success, or the error envelope below on failure. Error
// codes are the stable strings from errors.go; clients branch on the code,
// the message is for humans.
//
//	HTTP/1.1 404 Not Found
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "not_found",
//	  "message": "conversation not found"
//	}
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/edustack-labs/go-student-assistant/internal/http/middleware"
)

// ErrorResponse is the error envelope returned by every endpoint. RequestID
// echoes X-Request-ID so a student's bug report can be matched to server
// logs.
type ErrorResponse struct {
	RequestID string `json:"request_id,omitempty"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

// fail aborts the request with the error envelope at the given status.
//
// 5xx responses are additionally logged through the request-scoped logger,
// which already carries the request and student IDs; 4xx responses are
// client mistakes and only show up in the access log.
func fail(c *gin.Context, status int, code, msg string) {
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}

	c.AbortWithStatusJSON(status, ErrorResponse{
		RequestID: c.Writer.Header().Get("X-Request-ID"),
		Code:      code,
		Message:   msg,
	})
}

// Fail is fail for callers outside this package; the router uses it for its
// NoRoute and NoMethod fallbacks so even unrouted requests answer in the
// envelope shape.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// ok writes body as the JSON success response.
func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

// noContent answers 204 for operations with nothing to return (deletes).
func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
