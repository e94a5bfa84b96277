// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file covers request identity and structured access logging for the
// assistant API:
//
//   - RequestID() gives every request a correlation ID (X-Request-ID),
//     reused when the client already sent one.
//   - StudentID() resolves the calling student from the X-Student-ID header
//     into the Gin context, where the rate limiter and the handlers pick it
//     up. Anonymous requests simply leave the key unset.
//   - Logger() emits one structured access log per request, carrying the
//     student and correlation IDs, and stashes a request-scoped
//     zerolog.Logger for downstream code.
//   - Recovery() turns panics into the service's JSON 500 envelope.
//
// Order matters: RequestID, StudentID, Logger, Recovery — so panics and
// access logs always carry both IDs.
package middleware

import (
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// requestIDKey is the Gin context key under which the request ID is stored.
	requestIDKey = "requestID"
	// requestIDHeader is the HTTP header used to propagate the correlation ID.
	requestIDHeader = "X-Request-ID"

	// studentIDKey is the Gin context key the handlers and the rate limiter
	// read the caller's identity from.
	studentIDKey = "studentID"
	// studentIDHeader carries the student identity until a real auth layer
	// replaces it.
	studentIDHeader = "X-Student-ID"

	// maxQueryLogLength caps the number of bytes of the raw query string logged.
	maxQueryLogLength = 1024
)

// RequestID attaches (or propagates) a correlation identifier per request.
// An incoming X-Request-ID is reused; otherwise a UUIDv4 is generated. The
// ID is echoed on the response and stored in the Gin context.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(requestIDHeader)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Writer.Header().Set(requestIDHeader, rid)
		c.Next()
	}
}

// StudentID copies the X-Student-ID header into the Gin context so every
// consumer downstream (access log, per-student rate limiting, the chat
// handlers) agrees on who is calling. A blank header leaves the context key
// unset; the chat handlers then fall back to their demo identity.
func StudentID() gin.HandlerFunc {
	return func(c *gin.Context) {
		if sid := strings.TrimSpace(c.GetHeader(studentIDHeader)); sid != "" {
			c.Set(studentIDKey, sid)
		}
		c.Next()
	}
}

// Logger writes one structured access log per request.
//
// The log line identifies the exchange (request_id, student_id), the route
// (template when matched, raw path on 404), and the outcome (status, latency,
// bytes in/out). The same logger, pre-seeded with those identity fields, is
// stored in the Gin context; LoggerFrom retrieves it so service-level logs
// join up with the access log.
//
// Level tracks the outcome: error for 5xx or collected Gin errors, warn for
// 4xx, info otherwise.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		rid, _ := c.Get(requestIDKey)
		sid, _ := c.Get(studentIDKey)
		route := c.FullPath()
		if route == "" {
			// no route matched: log the raw path instead
			route = c.Request.URL.Path
		}

		l := log.With().
			Str("request_id", ctxString(rid)).
			Str("student_id", ctxString(sid)).
			Str("method", c.Request.Method).
			Str("route", route).
			Str("remote_ip", c.ClientIP()).
			Str("query", clip(c.Request.URL.RawQuery, maxQueryLogLength)).
			// ContentLength is -1 when unknown (chunked uploads).
			Int64("bytes_in", c.Request.ContentLength).
			Logger()

		c.Set("logger", &l)

		c.Next()

		status := c.Writer.Status()
		ev := l.With().
			Int("status", status).
			Dur("latency", time.Since(start)).
			Int("bytes_out", c.Writer.Size()).
			Logger()

		switch {
		case len(c.Errors) > 0:
			ev.Error().Str("errors", c.Errors.String()).Msg("request")
		case status >= 500:
			ev.Error().Msg("request")
		case status >= 400:
			ev.Warn().Msg("request")
		default:
			ev.Info().Msg("request")
		}
	}
}

// Recovery intercepts panics, logs the stack with both IDs, and answers with
// the service's JSON error envelope:
//
//	{ "request_id": "...", "code": "internal_error", "message": "internal server error" }
//
// When the handler already wrote part of a response (a half-finished NDJSON
// stream, for instance) only the status is set; no body is appended.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				rid, _ := c.Get(requestIDKey)
				sid, _ := c.Get(studentIDKey)
				log.Error().
					Interface("panic", rec).
					Bytes("stack", debug.Stack()).
					Str("request_id", ctxString(rid)).
					Str("student_id", ctxString(sid)).
					Msg("panic recovered")

				if !c.Writer.Written() {
					c.Header("Content-Type", "application/json")
					c.Header(requestIDHeader, ctxString(rid))
					c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
						"request_id": ctxString(rid),
						"code":       "internal_error",
						"message":    "internal server error",
					})
					return
				}
				c.AbortWithStatus(http.StatusInternalServerError)
			}
		}()
		c.Next()
	}
}

// LoggerFrom returns the request-scoped zerolog.Logger attached by Logger().
// Without one (unit tests, background work) it returns the global logger, so
// callers never need a nil check.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	if v, ok := c.Get("logger"); ok {
		if lg, ok := v.(*zerolog.Logger); ok {
			return lg
		}
	}
	l := log.With().Logger()
	return &l
}

// ctxString converts a Gin context value to a string, empty when absent or
// not a string.
func ctxString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// clip truncates s to max bytes with an ellipsis. Byte-based truncation is
// fine for log output. A max <= 0 disables clipping.
func clip(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
