package knowledge

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/edustack-labs/go-student-assistant/internal/domain"
)

func newKnowledgeDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("knowledge_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := db.AutoMigrate(&domain.KnowledgeChunk{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// fakeEmbedder maps exact strings to fixed vectors; unknown inputs get a
// neutral default so tests control similarity precisely.
type fakeEmbedder struct {
	vectors map[string][]float32
	err     error
	calls   int
}

func (f *fakeEmbedder) CreateEmbedding(_ context.Context, text string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return []float32{0, 0, 1}, nil
}

func seedChunk(t *testing.T, db *gorm.DB, id, courseID, content string, emb domain.Vector, idx int) {
	t.Helper()
	c := domain.KnowledgeChunk{
		ID: id, CourseID: courseID, Content: content,
		Embedding: emb, SourceFile: "f.md", ChunkIndex: idx,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.Create(&c).Error; err != nil {
		t.Fatalf("seed %s: %v", id, err)
	}
}

func TestSearch_RanksByCosineDescendingAndFilters(t *testing.T) {
	db := newKnowledgeDB(t)
	emb := &fakeEmbedder{vectors: map[string][]float32{
		"what is photosynthesis": {1, 0, 0},
	}}
	svc := NewService(db, emb, 1000, 5, 0.5)

	seedChunk(t, db, "k-low", "bio", "unrelated chunk", domain.Vector{0, 1, 0}, 0)
	seedChunk(t, db, "k-high", "bio", "exact match chunk", domain.Vector{1, 0, 0}, 1)
	seedChunk(t, db, "k-mid", "bio", "close match chunk", domain.Vector{0.9, 0.1, 0}, 2)

	got, err := svc.Search(context.Background(), "what is photosynthesis", "", 0, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 results above threshold, got %d: %+v", len(got), got)
	}
	if got[0].Chunk.ID != "k-high" || got[1].Chunk.ID != "k-mid" {
		t.Fatalf("unexpected order: %s, %s", got[0].Chunk.ID, got[1].Chunk.ID)
	}
	if got[0].Score < got[1].Score {
		t.Fatalf("scores not descending: %v", got)
	}
	if got[0].Score < 0.999 {
		t.Fatalf("identical vectors should score ~1, got %f", got[0].Score)
	}
}

func TestSearch_ExplicitZeroMinScoreReturnsEverything(t *testing.T) {
	db := newKnowledgeDB(t)
	emb := &fakeEmbedder{vectors: map[string][]float32{"query": {1, 0, 0}}}
	svc := NewService(db, emb, 1000, 5, 0.7)

	seedChunk(t, db, "k-low", "bio", "low", domain.Vector{0, 1, 0}, 0)
	seedChunk(t, db, "k-high", "bio", "high", domain.Vector{1, 0, 0}, 1)
	seedChunk(t, db, "k-mid", "bio", "mid", domain.Vector{0.9, 0.1, 0}, 2)

	// zero is a real threshold, not "use the 0.7 default": even the
	// orthogonal chunk (score 0) must come back
	zero := 0.0
	got, err := svc.Search(context.Background(), "query", "", 5, &zero)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("minScore 0 must return all 3 chunks, got %d: %+v", len(got), got)
	}
	if got[0].Chunk.Content != "high" || got[1].Chunk.Content != "mid" || got[2].Chunk.Content != "low" {
		t.Fatalf("unexpected order: %s, %s, %s",
			got[0].Chunk.Content, got[1].Chunk.Content, got[2].Chunk.Content)
	}
	if got[0].Score < got[1].Score || got[1].Score < got[2].Score {
		t.Fatalf("scores not descending: %v", got)
	}
}

func TestSearch_LimitCapsResults(t *testing.T) {
	db := newKnowledgeDB(t)
	emb := &fakeEmbedder{vectors: map[string][]float32{"q": {1, 0, 0}}}
	svc := NewService(db, emb, 1000, 5, 0.1)

	for i := 0; i < 4; i++ {
		seedChunk(t, db, fmt.Sprintf("k%d", i), "c", fmt.Sprintf("chunk %d", i), domain.Vector{1, 0, 0}, i)
	}

	got, err := svc.Search(context.Background(), "q", "", 2, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected limit of 2, got %d", len(got))
	}
}

func TestSearch_CourseFilter(t *testing.T) {
	db := newKnowledgeDB(t)
	emb := &fakeEmbedder{vectors: map[string][]float32{"q": {1, 0, 0}}}
	svc := NewService(db, emb, 1000, 5, 0.1)

	seedChunk(t, db, "ka", "course-a", "a", domain.Vector{1, 0, 0}, 0)
	seedChunk(t, db, "kb", "course-b", "b", domain.Vector{1, 0, 0}, 0)

	got, err := svc.Search(context.Background(), "q", "course-a", 0, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 || got[0].Chunk.ID != "ka" {
		t.Fatalf("expected only course-a chunk, got %+v", got)
	}
}

func TestSearch_SkipsMismatchedDimensions(t *testing.T) {
	db := newKnowledgeDB(t)
	emb := &fakeEmbedder{vectors: map[string][]float32{"q": {1, 0, 0}}}
	svc := NewService(db, emb, 1000, 5, 0.1)

	seedChunk(t, db, "k-ok", "c", "ok", domain.Vector{1, 0, 0}, 0)
	seedChunk(t, db, "k-bad", "c", "old model", domain.Vector{1, 0}, 1)

	got, err := svc.Search(context.Background(), "q", "", 0, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 || got[0].Chunk.ID != "k-ok" {
		t.Fatalf("mismatched chunk should be skipped, got %+v", got)
	}
}

func TestSearch_EmptyQuery(t *testing.T) {
	svc := NewService(newKnowledgeDB(t), &fakeEmbedder{}, 1000, 5, 0.5)
	if _, err := svc.Search(context.Background(), "   ", "", 0, nil); !errors.Is(err, ErrEmptyQuery) {
		t.Fatalf("expected ErrEmptyQuery, got %v", err)
	}
}

func TestSearch_EmbedderFailure(t *testing.T) {
	boom := errors.New("provider down")
	svc := NewService(newKnowledgeDB(t), &fakeEmbedder{err: boom}, 1000, 5, 0.5)
	if _, err := svc.Search(context.Background(), "q", "", 0, nil); !errors.Is(err, boom) {
		t.Fatalf("expected provider error, got %v", err)
	}
}

func TestIndex_SplitsEmbedsAndStores(t *testing.T) {
	db := newKnowledgeDB(t)
	emb := &fakeEmbedder{vectors: map[string][]float32{}}
	svc := NewService(db, emb, 40, 5, 0.5)

	content := "First sentence about algebra. Second sentence about geometry. Third sentence about calculus."
	n, err := svc.Index(context.Background(), "math", content, "math.md")
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	if n < 2 {
		t.Fatalf("expected multiple chunks for %d-rune content at size 40, got %d", len([]rune(content)), n)
	}
	if emb.calls != n {
		t.Fatalf("expected one embedding call per chunk, got %d for %d chunks", emb.calls, n)
	}

	var rows []domain.KnowledgeChunk
	if err := db.Order("chunk_index ASC").Find(&rows).Error; err != nil {
		t.Fatalf("load rows: %v", err)
	}
	if len(rows) != n {
		t.Fatalf("expected %d rows, got %d", n, len(rows))
	}
	for i, r := range rows {
		if r.ChunkIndex != i || r.CourseID != "math" || r.SourceFile != "math.md" {
			t.Fatalf("unexpected row %d: %+v", i, r)
		}
		if len(r.Embedding) == 0 {
			t.Fatalf("row %d missing embedding", i)
		}
	}
	joined := strings.Join([]string{rows[0].Content, rows[1].Content}, " ")
	if !strings.Contains(joined, "algebra") {
		t.Fatalf("chunk content lost: %q", joined)
	}
}

func TestIndex_EmptyContent(t *testing.T) {
	svc := NewService(newKnowledgeDB(t), &fakeEmbedder{}, 1000, 5, 0.5)
	if _, err := svc.Index(context.Background(), "c", "  \n ", "f"); !errors.Is(err, ErrEmptyContent) {
		t.Fatalf("expected ErrEmptyContent, got %v", err)
	}
}

func TestIndex_StopsOnEmbedderFailure(t *testing.T) {
	db := newKnowledgeDB(t)
	boom := errors.New("quota exceeded")
	svc := NewService(db, &fakeEmbedder{err: boom}, 1000, 5, 0.5)

	n, err := svc.Index(context.Background(), "c", "One sentence.", "f")
	if !errors.Is(err, boom) {
		t.Fatalf("expected provider error, got %v", err)
	}
	if n != 0 {
		t.Fatalf("no chunks should be reported stored, got %d", n)
	}
}

func TestStatsAndDeleteCourse(t *testing.T) {
	db := newKnowledgeDB(t)
	svc := NewService(db, &fakeEmbedder{}, 1000, 5, 0.5)

	st, err := svc.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats(empty): %v", err)
	}
	if st.TotalChunks != 0 || st.TotalCourses != 0 || st.LastIndexedAt != nil {
		t.Fatalf("expected empty stats, got %+v", st)
	}

	seedChunk(t, db, "k1", "course-a", "1", domain.Vector{1}, 0)
	seedChunk(t, db, "k2", "course-a", "2", domain.Vector{1}, 1)
	seedChunk(t, db, "k3", "course-b", "3", domain.Vector{1}, 0)

	st, err = svc.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.TotalChunks != 3 || st.TotalCourses != 2 || st.LastIndexedAt == nil {
		t.Fatalf("unexpected stats: %+v", st)
	}

	n, err := svc.DeleteCourse(context.Background(), "course-a")
	if err != nil || n != 2 {
		t.Fatalf("DeleteCourse = %d, %v", n, err)
	}
	st, _ = svc.Stats(context.Background())
	if st.TotalChunks != 1 || st.TotalCourses != 1 {
		t.Fatalf("stats after delete: %+v", st)
	}
}
