// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// KnowledgeChunk model.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/edustack-labs/go-student-assistant/internal/domain"
)

// CreateChunk inserts a single knowledge chunk with its embedding.
func CreateChunk(ctx context.Context, db *gorm.DB, courseID, content string, embedding domain.Vector, sourceFile string, chunkIndex int) (*domain.KnowledgeChunk, error) {
	c := &domain.KnowledgeChunk{
		ID:         uuid.NewString(),
		CourseID:   courseID,
		Content:    content,
		Embedding:  embedding,
		SourceFile: sourceFile,
		ChunkIndex: chunkIndex,
		CreatedAt:  time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(c).Error; err != nil {
		return nil, err
	}
	return c, nil
}

// ListChunks returns every stored chunk, optionally restricted to a course.
// An empty courseID means all courses. Rows are ordered by course and chunk
// index so a scan over them is deterministic.
func ListChunks(ctx context.Context, db *gorm.DB, courseID string) ([]domain.KnowledgeChunk, error) {
	var out []domain.KnowledgeChunk
	q := db.WithContext(ctx).Order("course_id ASC, chunk_index ASC")
	if courseID != "" {
		q = q.Where("course_id = ?", courseID)
	}
	err := q.Find(&out).Error
	return out, err
}

// DeleteCourseChunks removes every chunk belonging to courseID and returns
// how many rows were deleted. Deleting a course with no chunks is not an
// error.
func DeleteCourseChunks(ctx context.Context, db *gorm.DB, courseID string) (int64, error) {
	res := db.WithContext(ctx).
		Where("course_id = ?", courseID).
		Delete(&domain.KnowledgeChunk{})
	return res.RowsAffected, res.Error
}
