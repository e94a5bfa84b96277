// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides read-only repository functions for the
// Student, Course, and Progress models, which the assistant consumes when
// building per-student prompt context.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/edustack-labs/go-student-assistant/internal/domain"
)

// GetStudent fetches a student by ID, or ErrNotFound if missing.
func GetStudent(ctx context.Context, db *gorm.DB, id string) (*domain.Student, error) {
	var s domain.Student
	if err := db.WithContext(ctx).Where("id = ?", id).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// CurrentProgress returns the progress record the student touched most
// recently, together with the course it belongs to. Returns ErrNotFound when
// the student has no progress rows.
func CurrentProgress(ctx context.Context, db *gorm.DB, studentID string) (*domain.Progress, *domain.Course, error) {
	var p domain.Progress
	err := db.WithContext(ctx).
		Where("student_id = ?", studentID).
		Order("last_accessed_at IS NULL, last_accessed_at DESC").
		First(&p).Error
	if err != nil {
		return nil, nil, err
	}

	var c domain.Course
	if err := db.WithContext(ctx).Where("id = ?", p.CourseID).First(&c).Error; err != nil {
		return nil, nil, err
	}
	return &p, &c, nil
}
