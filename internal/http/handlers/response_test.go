package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// withEnvelopeContext seeds the pieces fail() reads: the response request-id
// header and a request-scoped logger writing into buf.
func withEnvelopeContext(rid string, buf *bytes.Buffer) gin.HandlerFunc {
	logger := zerolog.New(buf)
	return func(c *gin.Context) {
		c.Writer.Header().Set("X-Request-ID", rid)
		c.Set("logger", &logger)
		c.Next()
	}
}

func Test_fail_ServerErrorIsLogged(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var buf bytes.Buffer
	r := gin.New()
	r.Use(withEnvelopeContext("rid-500", &buf))
	r.GET("/boom", func(c *gin.Context) {
		fail(c, http.StatusInternalServerError, "answer_failed", "provider unreachable")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", w.Code)
	}
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("envelope: %v", err)
	}
	if resp.RequestID != "rid-500" || resp.Code != "answer_failed" || resp.Message != "provider unreachable" {
		t.Fatalf("unexpected envelope: %+v", resp)
	}

	out := buf.String()
	if !strings.Contains(out, `"level":"error"`) || !strings.Contains(out, `"code":"answer_failed"`) {
		t.Fatalf("expected an error log with the code, got: %s", out)
	}
}

func Test_fail_ClientErrorIsNotLogged(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var buf bytes.Buffer
	r := gin.New()
	r.Use(withEnvelopeContext("rid-404", &buf))
	r.GET("/missing", func(c *gin.Context) {
		Fail(c, http.StatusNotFound, "not_found", "conversation not found")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("envelope: %v", err)
	}
	if resp.RequestID != "rid-404" || resp.Code != "not_found" {
		t.Fatalf("unexpected envelope: %+v", resp)
	}
	// 4xx is the client's problem; only the access log sees it
	if buf.Len() != 0 {
		t.Fatalf("4xx must not produce an api error log, got: %s", buf.String())
	}
}

func Test_ok_and_noContent(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/conversations", func(c *gin.Context) {
		ok(c, http.StatusCreated, gin.H{"id": "c-1", "title": "New conversation"})
	})
	r.DELETE("/conversations/c-1", func(c *gin.Context) {
		noContent(c)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/conversations", nil))
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if body["id"] != "c-1" || body["title"] != "New conversation" {
		t.Fatalf("unexpected body: %#v", body)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/conversations/c-1", nil))
	if w.Code != http.StatusNoContent || w.Body.Len() != 0 {
		t.Fatalf("expected bare 204, got %d with %q", w.Code, w.Body.String())
	}
}
