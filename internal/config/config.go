// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, database paths, AI provider access,
// retrieval tuning, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// OpenAIConfig defines the AI provider settings. An empty APIKey is a valid
// non-error state: the chat degrades to placeholder replies and the knowledge
// store refuses to index.
type OpenAIConfig struct {
	APIKey         string  // OPENAI_API_KEY
	BaseURL        string  // OPENAI_BASE_URL (optional, OpenAI-compatible gateways)
	ChatModel      string  // OPENAI_CHAT_MODEL
	EmbeddingModel string  // OPENAI_EMBEDDING_MODEL
	Temperature    float64 // OPENAI_TEMPERATURE
	MaxTokens      int     // OPENAI_MAX_TOKENS
}

// IsConfigured reports whether an API key is present. Absence is a valid
// non-error state handled by the Placeholder provider.
func (c OpenAIConfig) IsConfigured() bool { return strings.TrimSpace(c.APIKey) != "" }

// RetrievalConfig tunes the knowledge store and the RAG step of the chat.
type RetrievalConfig struct {
	ChunkSize      int     // CHUNK_SIZE: max chunk length in runes
	SearchLimit    int     // SEARCH_LIMIT: default result cap for /knowledge/search
	SearchMinScore float64 // SEARCH_MIN_SCORE: default score floor for /knowledge/search
	RAGTopK        int     // RAG_TOP_K: chunks injected into the chat prompt
	RAGMinScore    float64 // RAG_MIN_SCORE: score floor for chat context
}

// ChatConfig tunes the orchestrator.
type ChatConfig struct {
	HistoryLimit int           // HISTORY_LIMIT: cached messages per conversation
	RateMax      int           // CHAT_RATE_MAX: accepted calls per window (0 disables)
	RateWindow   time.Duration // CHAT_RATE_WINDOW: sliding window length
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 120s; must cover a full stream
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging
	LogLevel    string // debug|info|warn|error|fatal|panic
	LogPretty   bool   // pretty console logs in dev
	APIBasePath string // base path for API routes

	// App
	DBPath    string // SQLite path
	OpenAI    OpenAIConfig
	Retrieval RetrievalConfig
	Chat      ChatConfig

	// Edge rate limiting (token bucket per user/IP)
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 120*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging
		LogLevel:    strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:   getbool("LOG_PRETTY", false),
		APIBasePath: normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// App
		DBPath: getenv("DB_PATH", "app.db"),
		OpenAI: OpenAIConfig{
			APIKey:         getenv("OPENAI_API_KEY", ""),
			BaseURL:        getenv("OPENAI_BASE_URL", ""),
			ChatModel:      getenv("OPENAI_CHAT_MODEL", "gpt-4o-mini"),
			EmbeddingModel: getenv("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
			Temperature:    getfloat("OPENAI_TEMPERATURE", 0.7),
			MaxTokens:      getint("OPENAI_MAX_TOKENS", 500),
		},
		Retrieval: RetrievalConfig{
			ChunkSize:      getint("CHUNK_SIZE", 1000),
			SearchLimit:    getint("SEARCH_LIMIT", 5),
			SearchMinScore: getfloat("SEARCH_MIN_SCORE", 0.7),
			RAGTopK:        getint("RAG_TOP_K", 3),
			RAGMinScore:    getfloat("RAG_MIN_SCORE", 0.5),
		},
		Chat: ChatConfig{
			HistoryLimit: getint("HISTORY_LIMIT", 20),
			RateMax:      getint("CHAT_RATE_MAX", 0),
			RateWindow:   getdur("CHAT_RATE_WINDOW", time.Minute),
		},

		// Edge rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-student-assistant"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if cfg.Retrieval.ChunkSize <= 0 {
		return cfg, errors.New("CHUNK_SIZE must be > 0")
	}
	if cfg.Retrieval.SearchLimit < 1 {
		return cfg, errors.New("SEARCH_LIMIT must be >= 1")
	}
	if cfg.Retrieval.SearchMinScore < 0 || cfg.Retrieval.SearchMinScore > 1 {
		return cfg, errors.New("SEARCH_MIN_SCORE must be between 0 and 1")
	}
	if cfg.Retrieval.RAGTopK < 1 {
		return cfg, errors.New("RAG_TOP_K must be >= 1")
	}
	if cfg.Retrieval.RAGMinScore < 0 || cfg.Retrieval.RAGMinScore > 1 {
		return cfg, errors.New("RAG_MIN_SCORE must be between 0 and 1")
	}
	if cfg.Chat.HistoryLimit < 1 {
		return cfg, errors.New("HISTORY_LIMIT must be >= 1")
	}
	if cfg.Chat.RateMax < 0 {
		return cfg, errors.New("CHAT_RATE_MAX must be >= 0")
	}
	if cfg.Chat.RateWindow <= 0 {
		return cfg, errors.New("CHAT_RATE_WINDOW must be > 0")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
