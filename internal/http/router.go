// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging, panic recovery, metrics, CORS,
// security headers, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Production-ready CORS and security header posture
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	"github.com/edustack-labs/go-student-assistant/internal/ai"
	"github.com/edustack-labs/go-student-assistant/internal/config"
	"github.com/edustack-labs/go-student-assistant/internal/history"
	"github.com/edustack-labs/go-student-assistant/internal/http/handlers"
	"github.com/edustack-labs/go-student-assistant/internal/http/middleware"
	"github.com/edustack-labs/go-student-assistant/internal/knowledge"
	"github.com/edustack-labs/go-student-assistant/internal/repo"
	"github.com/edustack-labs/go-student-assistant/internal/services"
	"github.com/edustack-labs/go-student-assistant/internal/students"
)

// historyLoader feeds the in-memory history cache from the messages table:
// the most recent n rows of a conversation, oldest first.
func historyLoader(db *gorm.DB) history.Loader {
	return history.LoaderFunc(func(ctx context.Context, conversationID string, n int) ([]ai.Turn, error) {
		msgs, err := repo.ListRecentMessages(db.WithContext(ctx), conversationID, n)
		if err != nil {
			return nil, err
		}
		turns := make([]ai.Turn, 0, len(msgs))
		for _, m := range msgs {
			turns = append(turns, ai.Turn{Role: m.Role, Content: m.Content})
		}
		return turns, nil
	})
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), rate limiting,
// CORS and security headers, health and metrics endpoints, and then mounts
// the versioned public API under /api/v*.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Logger: structured request logs
//  4. Recovery: capture panics after logger
//  5. Body size limiter, gzip
//  6. Metrics
//  7. Rate limiter (per student/IP)
//  8. CORS and Security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, provider ai.Provider, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Resolve the calling student, then structured request logging
	r.Use(middleware.StudentID())
	r.Use(middleware.Logger())

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	apiBase := cfg.APIBasePath // e.g. "/api/v1"

	// Compress responses, except the NDJSON stream (deltas must flush
	// immediately) and the Prometheus scrape.
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{
		"/metrics",
		apiBase + "/chat/messages/stream",
	})))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Token-bucket rate limiter per student/IP; probes and scrapes are
	// exempt so orchestrator traffic never competes with students for tokens
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByStudentOrIP())
	r.Use(middleware.ExemptPaths("/health", "/metrics"))
	r.Use(rl.Handler())

	// 8) CORS posture (safe defaults: allow all if none configured)
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps tests and simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Student-ID"},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		// Echo ACAO with the request Origin when it is in the allowlist (in addition to gin-contrib/cors).
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Student-ID"},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// Dependency injection: services ← provider/repo/db
	cache := history.NewCache(cfg.Chat.HistoryLimit, historyLoader(db))

	knowSvc := knowledge.NewService(db, provider,
		cfg.Retrieval.ChunkSize, cfg.Retrieval.SearchLimit, cfg.Retrieval.SearchMinScore)

	chatSvc := services.NewChatService(db, provider, knowSvc, students.NewService(db), cache,
		cfg.Retrieval.RAGTopK, cfg.Retrieval.RAGMinScore,
		cfg.Chat.RateMax, cfg.Chat.RateWindow)
	chatSvc.MaxMessageRunes = 2000
	chatSvc.TitleLocale = language.English

	ch := handlers.NewChatHandlers(chatSvc)
	kh := handlers.NewKnowledgeHandlers(knowSvc)

	// Public API
	api := groupWithPrefix(r, apiBase)
	{
		// Chat
		api.POST("/chat/messages", ch.SendMessage)
		api.POST("/chat/messages/stream", ch.StreamMessage)

		// Conversations
		api.POST("/conversations", ch.StartConversation)
		api.GET("/conversations", ch.ListConversations)
		api.GET("/conversations/:id/messages", ch.ListMessages)
		api.DELETE("/conversations/:id", ch.DeleteConversation)

		// Knowledge base
		api.POST("/knowledge/courses/:courseID", kh.IndexCourse)
		api.DELETE("/knowledge/courses/:courseID", kh.DeleteCourseKnowledge)
		api.POST("/knowledge/search", kh.SearchKnowledge)
		api.GET("/knowledge/stats", kh.KnowledgeStats)
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
