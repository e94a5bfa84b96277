// Package knowledge implements the course-material side of the assistant:
// indexing documents into embedded chunks and searching them by semantic
// similarity.
//
// Indexing splits a document into sentence-aligned chunks, embeds each chunk
// through the configured provider, and persists chunk + vector rows. Search
// embeds the query once and ranks every stored chunk by cosine similarity in
// a linear scan; at dashboard scale (thousands of chunks, not millions) that
// scan is cheaper and simpler than maintaining a vector index.
//
// Observability: public methods are OpenTelemetry-instrumented.
package knowledge

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/edustack-labs/go-student-assistant/internal/ai"
	"github.com/edustack-labs/go-student-assistant/internal/domain"
	"github.com/edustack-labs/go-student-assistant/internal/repo"
	"github.com/edustack-labs/go-student-assistant/internal/textchunk"
	"github.com/edustack-labs/go-student-assistant/internal/vectors"
)

// Service-level errors, mapped to HTTP results by the handler layer.
var (
	// ErrEmptyContent is returned when a document submitted for indexing is
	// blank after trimming.
	ErrEmptyContent = errors.New("content is empty")

	// ErrEmptyQuery is returned when a search query is blank after trimming.
	ErrEmptyQuery = errors.New("query is empty")
)

// Result pairs a stored chunk with its similarity to the query.
type Result struct {
	Chunk domain.KnowledgeChunk `json:"chunk"`
	Score float64               `json:"score"`
}

// Stats summarizes the current state of the knowledge base.
type Stats struct {
	TotalChunks   int64      `json:"total_chunks"`
	TotalCourses  int64      `json:"total_courses"`
	LastIndexedAt *time.Time `json:"last_indexed_at,omitempty"`
}

// Service owns indexing and retrieval of course material.
type Service struct {
	DB       *gorm.DB
	Embedder ai.Embedder

	// ChunkSize caps each indexed chunk by rune length.
	ChunkSize int
	// DefaultLimit applies when Search is called with a zero limit;
	// DefaultMinScore applies when no minimum score is given at all.
	DefaultLimit    int
	DefaultMinScore float64
}

// NewService constructs a knowledge Service with the given retrieval tuning.
func NewService(db *gorm.DB, emb ai.Embedder, chunkSize, defaultLimit int, defaultMinScore float64) *Service {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if defaultLimit <= 0 {
		defaultLimit = 5
	}
	return &Service{
		DB:              db,
		Embedder:        emb,
		ChunkSize:       chunkSize,
		DefaultLimit:    defaultLimit,
		DefaultMinScore: defaultMinScore,
	}
}

// Index splits content into chunks, embeds each one, and persists the result
// for courseID. It returns the number of chunks stored.
//
// Embedding happens chunk by chunk; if the provider fails midway, indexing
// stops and the chunks stored so far remain (re-indexing the course is the
// recovery path, after DeleteCourse).
func (s *Service) Index(ctx context.Context, courseID, content, sourceFile string) (int, error) {
	tr := otel.Tracer("knowledge/Service")
	ctx, span := tr.Start(ctx, "Index",
		trace.WithAttributes(attribute.String("course.id", courseID)),
	)
	defer span.End()

	if strings.TrimSpace(content) == "" {
		return 0, ErrEmptyContent
	}

	chunks := textchunk.Split(content, s.ChunkSize)
	span.SetAttributes(attribute.Int("chunks.total", len(chunks)))

	for i, chunk := range chunks {
		emb, err := s.Embedder.CreateEmbedding(ctx, chunk)
		if err != nil {
			return i, fmt.Errorf("embed chunk %d: %w", i, err)
		}
		if _, err := repo.CreateChunk(ctx, s.DB, courseID, chunk, domain.Vector(emb), sourceFile, i); err != nil {
			return i, fmt.Errorf("store chunk %d: %w", i, err)
		}
	}
	return len(chunks), nil
}

// Search embeds the query and ranks stored chunks by cosine similarity,
// descending. Chunks scoring below the minimum are dropped; at most limit
// results are returned. courseID restricts the scan to one course when
// non-empty.
//
// minScore nil means "not given" and falls back to DefaultMinScore. An
// explicit zero is honored: every non-negative score passes, so orthogonal
// chunks still rank. A zero limit falls back to DefaultLimit.
func (s *Service) Search(ctx context.Context, query, courseID string, limit int, minScore *float64) ([]Result, error) {
	tr := otel.Tracer("knowledge/Service")
	ctx, span := tr.Start(ctx, "Search",
		trace.WithAttributes(
			attribute.String("course.id", courseID),
			attribute.Int("limit", limit),
		),
	)
	defer span.End()

	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	if limit <= 0 {
		limit = s.DefaultLimit
	}
	threshold := s.DefaultMinScore
	if minScore != nil {
		threshold = *minScore
	}

	qEmb, err := s.Embedder.CreateEmbedding(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	chunks, err := repo.ListChunks(ctx, s.DB, courseID)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(chunks))
	for _, c := range chunks {
		score, err := vectors.Cosine(qEmb, c.Embedding)
		if err != nil {
			// dimension mismatch means the chunk was embedded with a
			// different model; it cannot be ranked against this query
			continue
		}
		if score >= threshold {
			results = append(results, Result{Chunk: c, Score: score})
		}
	}

	// stable so equal scores keep their course/chunk-index order
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > limit {
		results = results[:limit]
	}

	span.SetAttributes(attribute.Int("results.total", len(results)))
	return results, nil
}

// Stats returns aggregate counts over the knowledge base.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	tr := otel.Tracer("knowledge/Service")
	ctx, span := tr.Start(ctx, "Stats")
	defer span.End()

	chunks, courses, lastAt, err := repo.KnowledgeStats(ctx, s.DB)
	if err != nil {
		return Stats{}, err
	}
	return Stats{TotalChunks: chunks, TotalCourses: courses, LastIndexedAt: lastAt}, nil
}

// DeleteCourse removes every chunk of a course and reports how many rows
// were deleted.
func (s *Service) DeleteCourse(ctx context.Context, courseID string) (int64, error) {
	tr := otel.Tracer("knowledge/Service")
	ctx, span := tr.Start(ctx, "DeleteCourse",
		trace.WithAttributes(attribute.String("course.id", courseID)),
	)
	defer span.End()

	return repo.DeleteCourseChunks(ctx, s.DB, courseID)
}
