package repo

import (
	"context"
	"testing"
	"time"

	"github.com/edustack-labs/go-student-assistant/internal/domain"
)

func TestCreateChunk_PersistsEmbedding(t *testing.T) {
	db := newMsgRepoDB(t, &domain.KnowledgeChunk{})

	emb := domain.Vector{0.1, -0.2, 0.3}
	c, err := CreateChunk(context.Background(), db, "course-1", "Photosynthesis converts light.", emb, "bio.md", 0)
	if err != nil {
		t.Fatalf("CreateChunk: %v", err)
	}
	if c.ID == "" || c.CourseID != "course-1" || c.ChunkIndex != 0 {
		t.Fatalf("unexpected chunk: %+v", c)
	}

	var got domain.KnowledgeChunk
	if err := db.First(&got, "id = ?", c.ID).Error; err != nil {
		t.Fatalf("load chunk: %v", err)
	}
	if len(got.Embedding) != 3 || got.Embedding[1] != -0.2 {
		t.Fatalf("embedding round-trip mismatch: %+v", got.Embedding)
	}
	if got.SourceFile != "bio.md" {
		t.Fatalf("source file not stored: %+v", got)
	}
}

func TestCreateChunk_Error_NoTable(t *testing.T) {
	db := newMsgRepoDB(t /* no migrations */)
	if _, err := CreateChunk(context.Background(), db, "c", "x", domain.Vector{1}, "f", 0); err == nil {
		t.Fatalf("expected error creating without table")
	}
}

func TestListChunks_FilterAndOrder(t *testing.T) {
	db := newMsgRepoDB(t, &domain.KnowledgeChunk{})

	seed := []domain.KnowledgeChunk{
		{ID: "k2", CourseID: "course-a", Content: "2", Embedding: domain.Vector{1}, SourceFile: "f", ChunkIndex: 1},
		{ID: "k1", CourseID: "course-a", Content: "1", Embedding: domain.Vector{1}, SourceFile: "f", ChunkIndex: 0},
		{ID: "k3", CourseID: "course-b", Content: "3", Embedding: domain.Vector{1}, SourceFile: "f", ChunkIndex: 0},
	}
	for i := range seed {
		if err := db.Create(&seed[i]).Error; err != nil {
			t.Fatalf("seed %s: %v", seed[i].ID, err)
		}
	}

	all, err := ListChunks(context.Background(), db, "")
	if err != nil {
		t.Fatalf("ListChunks(all): %v", err)
	}
	if len(all) != 3 || all[0].ID != "k1" || all[1].ID != "k2" || all[2].ID != "k3" {
		t.Fatalf("unexpected order/all: %+v", all)
	}

	onlyA, err := ListChunks(context.Background(), db, "course-a")
	if err != nil {
		t.Fatalf("ListChunks(course-a): %v", err)
	}
	if len(onlyA) != 2 || onlyA[0].ID != "k1" || onlyA[1].ID != "k2" {
		t.Fatalf("unexpected filtered slice: %+v", onlyA)
	}
}

func TestDeleteCourseChunks_RemovesOnlyThatCourse(t *testing.T) {
	db := newMsgRepoDB(t, &domain.KnowledgeChunk{})

	now := time.Now().UTC()
	for _, c := range []domain.KnowledgeChunk{
		{ID: "k1", CourseID: "course-a", Content: "1", Embedding: domain.Vector{1}, SourceFile: "f", CreatedAt: now},
		{ID: "k2", CourseID: "course-a", Content: "2", Embedding: domain.Vector{1}, SourceFile: "f", CreatedAt: now},
		{ID: "k3", CourseID: "course-b", Content: "3", Embedding: domain.Vector{1}, SourceFile: "f", CreatedAt: now},
	} {
		if err := db.Create(&c).Error; err != nil {
			t.Fatalf("seed %s: %v", c.ID, err)
		}
	}

	n, err := DeleteCourseChunks(context.Background(), db, "course-a")
	if err != nil {
		t.Fatalf("DeleteCourseChunks: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 deleted, got %d", n)
	}

	left, err := ListChunks(context.Background(), db, "")
	if err != nil {
		t.Fatalf("ListChunks after delete: %v", err)
	}
	if len(left) != 1 || left[0].CourseID != "course-b" {
		t.Fatalf("unexpected remainder: %+v", left)
	}

	// deleting an empty course is not an error
	n, err = DeleteCourseChunks(context.Background(), db, "course-a")
	if err != nil || n != 0 {
		t.Fatalf("second delete = %d, %v", n, err)
	}
}
