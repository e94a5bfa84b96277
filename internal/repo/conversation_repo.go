// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// Conversation model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a conversation is not found, functions return
//     gorm.ErrRecordNotFound (also exported here as ErrNotFound).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
//
// Functions:
//
//   - CreateConversation(ctx, db, studentID, title) -> *domain.Conversation, error
//     Inserts a new active Conversation row with UUID primary key.
//
//   - ListConversations(ctx, db, studentID) -> []domain.Conversation, error
//     Returns all conversations for a student, most recently updated first.
//
//   - GetConversation(ctx, db, id, studentID) -> *domain.Conversation, error
//     Fetches a single conversation by ID/studentID, or ErrNotFound.
//
//   - DeactivateConversations(ctx, db, studentID) -> error
//     Marks every conversation of the student inactive.
//
//   - UpdateConversationTitle(ctx, db, id, studentID, title) -> error
//     Updates the title, enforcing student ownership.
//
//   - TouchConversation(ctx, db, id, n) -> error
//     Bumps LastMessageAt and increments MessageCount by n.
//
//   - DeleteConversation(ctx, db, id, studentID) -> error
//     Soft-deletes a conversation and its messages.
//
// This repository is designed to be wrapped by a higher-level service
// (see services.ChatService) which enforces business rules, caching,
// or cross-aggregate behavior.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/edustack-labs/go-student-assistant/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// CreateConversation inserts a new active Conversation row owned by studentID
// with the given title. The ID is a randomly generated UUID (string), and
// CreatedAt is set to UTC.
//
// On success, it returns the persisted Conversation. On failure, it returns
// a DB error.
func CreateConversation(ctx context.Context, db *gorm.DB, studentID, title string) (*domain.Conversation, error) {
	c := &domain.Conversation{
		ID:        uuid.NewString(),
		StudentID: studentID,
		Title:     title,
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(c).Error; err != nil {
		return nil, err
	}
	return c, nil
}

// ListConversations returns all conversations belonging to studentID, ordered
// by last activity descending (most recent first, NULLs last). It returns an
// empty slice if the student has no conversations.
func ListConversations(ctx context.Context, db *gorm.DB, studentID string) ([]domain.Conversation, error) {
	var out []domain.Conversation
	err := db.WithContext(ctx).
		Where("student_id = ?", studentID).
		Order("last_message_at IS NULL, last_message_at desc, created_at desc").
		Find(&out).Error
	return out, err
}

// GetConversation fetches a single conversation by its ID and owner
// (studentID). If the record does not exist, it returns ErrNotFound. On other
// DB errors, the raw error is returned.
func GetConversation(ctx context.Context, db *gorm.DB, id, studentID string) (*domain.Conversation, error) {
	var c domain.Conversation
	err := db.WithContext(ctx).
		Where("id = ? AND student_id = ?", id, studentID).
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// DeactivateConversations marks every conversation of studentID inactive.
// It is called before a new conversation is created so that at most one
// conversation per student is active. Affecting zero rows is not an error.
func DeactivateConversations(ctx context.Context, db *gorm.DB, studentID string) error {
	return db.WithContext(ctx).
		Model(&domain.Conversation{}).
		Where("student_id = ? AND is_active = ?", studentID, true).
		Update("is_active", false).Error
}

// UpdateConversationTitle updates the title of a conversation identified by
// id and owned by studentID. If no rows are affected (conversation missing or
// not owned by studentID), it returns ErrNotFound.
func UpdateConversationTitle(ctx context.Context, db *gorm.DB, id, studentID, title string) error {
	res := db.WithContext(ctx).
		Model(&domain.Conversation{}).
		Where("id = ? AND student_id = ?", id, studentID).
		Update("title", title)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// TouchConversation records activity on a conversation: LastMessageAt is set
// to now (UTC) and MessageCount is incremented by n. Returns ErrNotFound when
// the conversation does not exist.
func TouchConversation(ctx context.Context, db *gorm.DB, id string, n int) error {
	now := time.Now().UTC()
	res := db.WithContext(ctx).
		Model(&domain.Conversation{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_message_at": now,
			"message_count":   gorm.Expr("message_count + ?", n),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteConversation soft-deletes a conversation owned by studentID together
// with its messages, inside a transaction. Returns ErrNotFound when the
// conversation does not exist or is owned by another student.
func DeleteConversation(ctx context.Context, db *gorm.DB, id, studentID string) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.
			Where("id = ? AND student_id = ?", id, studentID).
			Delete(&domain.Conversation{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.
			Where("conversation_id = ?", id).
			Delete(&domain.Message{}).Error
	})
}
