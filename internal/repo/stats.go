// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate/statistics queries over
// the knowledge base, surfaced by the HTTP layer for operational visibility.
// Each function is context-aware and safe to call from services or handlers.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/edustack-labs/go-student-assistant/internal/domain"
)

// KnowledgeStats returns aggregate metadata for the knowledge base: the total
// number of stored chunks, the number of distinct courses covered, and the
// timestamp of the most recent indexing run.
//
// When the knowledge base is empty, counts are 0 and lastIndexedAt is nil.
//
// Return values:
//   - chunks:        total knowledge chunks
//   - courses:       distinct course IDs with at least one chunk
//   - lastIndexedAt: pointer to the greatest CreatedAt, or nil if no rows
//   - err:           database error, if any
func KnowledgeStats(ctx context.Context, db *gorm.DB) (chunks, courses int64, lastIndexedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.KnowledgeChunk{})

	// Count
	if err = q.Count(&chunks).Error; err != nil {
		return 0, 0, nil, err
	}
	if chunks == 0 {
		return 0, 0, nil, nil
	}

	if err = db.WithContext(ctx).
		Model(&domain.KnowledgeChunk{}).
		Distinct("course_id").
		Count(&courses).Error; err != nil {
		return 0, 0, nil, err
	}

	// Get latest created_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		CreatedAt time.Time
	}
	if err = db.WithContext(ctx).
		Model(&domain.KnowledgeChunk{}).
		Select("created_at").
		Order("created_at DESC").
		Limit(1).
		Scan(&row).Error; err != nil {
		return 0, 0, nil, err
	}
	return chunks, courses, &row.CreatedAt, nil
}
