package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// swapLogger redirects the global zerolog output into a buffer for the test.
func swapLogger(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Logger
	t.Cleanup(func() { log.Logger = prev })
	log.Logger = zerolog.New(&buf)
	return &buf
}

func TestRequestID_GeneratesOrReuses(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	r.GET("/rid", func(c *gin.Context) {
		if v, ok := c.Get(requestIDKey); !ok || v == "" {
			t.Fatalf("request id missing from context")
		}
		c.Status(http.StatusOK)
	})

	// no header: one is generated
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/rid", nil))
	if w.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected a generated %s header", requestIDHeader)
	}

	// client-supplied id is echoed back, header lookup case-insensitive
	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/rid", nil)
	req.Header.Set(strings.ToLower(requestIDHeader), "req-abc")
	r.ServeHTTP(w, req)
	if got := w.Header().Get(requestIDHeader); got != "req-abc" {
		t.Fatalf("request id not propagated, got %q", got)
	}
}

func TestStudentID_HeaderToContext(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(StudentID())

	var got any
	var present bool
	r.GET("/who", func(c *gin.Context) {
		got, present = c.Get(studentIDKey)
		c.Status(http.StatusOK)
	})

	// header present: trimmed value lands in the context
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/who", nil)
	req.Header.Set(studentIDHeader, "  s-42  ")
	r.ServeHTTP(w, req)
	if !present || got != "s-42" {
		t.Fatalf("studentID = %v (present=%v); want s-42", got, present)
	}

	// blank header: context key stays unset
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/who", nil)
	req.Header.Set(studentIDHeader, "   ")
	r.ServeHTTP(w, req)
	if present {
		t.Fatalf("blank header must not set studentID, got %v", got)
	}
}

func TestLogger_LevelsRouteFallbackAndStudentField(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := swapLogger(t)

	r := gin.New()
	r.Use(RequestID())
	r.Use(StudentID())
	r.Use(Logger())

	r.GET("/conversations/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/err", func(c *gin.Context) {
		_ = c.Error(errors.New("boom"))
		c.Status(http.StatusBadRequest)
	})

	// 200 with a student id: info level, route template, student_id field
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/conversations/c-1", nil)
	req.Header.Set(studentIDHeader, "s-7")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /conversations/c-1 -> %d", w.Code)
	}

	// unmatched route: warn level, raw path fallback
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("GET /missing -> %d", w.Code)
	}

	// collected gin error wins over the 4xx status: error level
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/err", nil))

	logs := buf.String()
	if !strings.Contains(logs, `"level":"info"`) || !strings.Contains(logs, `"route":"/conversations/:id"`) {
		t.Fatalf("expected info log with route template, got:\n%s", logs)
	}
	if !strings.Contains(logs, `"student_id":"s-7"`) {
		t.Fatalf("expected student_id in access log, got:\n%s", logs)
	}
	if !strings.Contains(logs, `"level":"warn"`) || !strings.Contains(logs, `"route":"/missing"`) {
		t.Fatalf("expected warn log with raw path fallback, got:\n%s", logs)
	}
	if !strings.Contains(logs, `"level":"error"`) {
		t.Fatalf("expected error log for collected gin error, got:\n%s", logs)
	}
}

func TestRecovery_JSONEnvelopeAndStack(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := swapLogger(t)

	r := gin.New()
	r.Use(RequestID())
	r.Use(StudentID())
	r.Use(Logger())
	r.Use(Recovery())
	r.GET("/panic", func(c *gin.Context) { panic("kaboom") })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/panic", nil)
	req.Header.Set(studentIDHeader, "s-9")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid json body: %v", err)
	}
	if body["code"] != "internal_error" || body["message"] != "internal server error" {
		t.Fatalf("unexpected envelope: %v", body)
	}
	if body["request_id"] == "" {
		t.Fatalf("envelope missing request_id: %v", body)
	}

	out := buf.String()
	if !strings.Contains(out, "panic recovered") || !strings.Contains(out, `"stack"`) {
		t.Fatalf("expected panic log with stack, got:\n%s", out)
	}
	if !strings.Contains(out, `"student_id":"s-9"`) {
		t.Fatalf("panic log should carry the student id, got:\n%s", out)
	}
}

func TestRecovery_PanicAfterWrite_NoEnvelope(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := swapLogger(t)

	r := gin.New()
	r.Use(RequestID())
	r.Use(Recovery())

	// Half a streamed response is already out; Recovery must not append the
	// JSON envelope after it.
	r.GET("/panic-late", func(c *gin.Context) {
		c.String(http.StatusOK, `{"type":"delta","content":"par`)
		panic("late kaboom")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic-late", nil))

	if strings.Contains(w.Body.String(), "internal server error") {
		t.Fatalf("envelope appended after partial write: %q", w.Body.String())
	}
	if !strings.Contains(buf.String(), "panic recovered") {
		t.Fatalf("expected panic log, got:\n%s", buf.String())
	}
}

func TestLoggerFrom_RequestScopedOrFallback(t *testing.T) {
	gin.SetMode(gin.TestMode)

	// without Logger(): the fallback has no request fields
	buf := swapLogger(t)
	r := gin.New()
	r.Use(RequestID())
	r.GET("/use", func(c *gin.Context) {
		LoggerFrom(c).Info().Msg("bare")
		c.Status(http.StatusOK)
	})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/use", nil))
	if !strings.Contains(buf.String(), `"message":"bare"`) {
		t.Fatalf("fallback logger did not emit, got:\n%s", buf.String())
	}
	if strings.Contains(buf.String(), `"request_id"`) {
		t.Fatalf("fallback logger unexpectedly carries request_id")
	}

	// with Logger(): the request-scoped logger carries the identity fields
	buf2 := swapLogger(t)
	r2 := gin.New()
	r2.Use(RequestID())
	r2.Use(StudentID())
	r2.Use(Logger())
	r2.GET("/use", func(c *gin.Context) {
		LoggerFrom(c).Info().Msg("scoped")
		c.Status(http.StatusOK)
	})
	w2 := httptest.NewRecorder()
	req2 := httptest.NewRequest(http.MethodGet, "/use", nil)
	req2.Header.Set(studentIDHeader, "s-3")
	r2.ServeHTTP(w2, req2)
	out := buf2.String()
	if !strings.Contains(out, `"message":"scoped"`) || !strings.Contains(out, `"request_id"`) {
		t.Fatalf("request-scoped logger missing fields, got:\n%s", out)
	}
	if !strings.Contains(out, `"student_id":"s-3"`) {
		t.Fatalf("request-scoped logger missing student_id, got:\n%s", out)
	}
}

func TestCtxStringAndClip(t *testing.T) {
	if ctxString("x") != "x" || ctxString(123) != "" || ctxString(nil) != "" {
		t.Fatalf("ctxString conversions wrong")
	}
	if clip("hello", 10) != "hello" {
		t.Fatalf("clip must not touch short strings")
	}
	if got := clip("abcdefgh", 5); got != "abcde…" {
		t.Fatalf("clip = %q; want %q", got, "abcde…")
	}
	if clip("abc", 0) != "abc" {
		t.Fatalf("clip with max<=0 must be a no-op")
	}
}
