// Package students builds the per-student context the assistant injects into
// prompts: who the student is and where they currently are in their studies.
package students

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/edustack-labs/go-student-assistant/internal/repo"
)

// Profile is the slice of student state the assistant cares about. Course
// fields are zero-valued when the student has not started any course yet.
type Profile struct {
	Name               string `json:"name"`
	CourseTitle        string `json:"course_title,omitempty"`
	CompletedLessons   int    `json:"completed_lessons,omitempty"`
	TotalLessons       int    `json:"total_lessons,omitempty"`
	ProgressPercentage int    `json:"progress_percentage,omitempty"`
}

// PromptContext renders the profile as a single line suitable for a system
// prompt. Returns "" for a nil profile so callers can skip it unconditionally.
func (p *Profile) PromptContext() string {
	if p == nil {
		return ""
	}
	if p.CourseTitle == "" {
		return fmt.Sprintf("The student's name is %s. They have not started a course yet.", p.Name)
	}
	return fmt.Sprintf(
		"The student's name is %s. They are currently studying %q (%d of %d lessons done, %d%% complete).",
		p.Name, p.CourseTitle, p.CompletedLessons, p.TotalLessons, p.ProgressPercentage,
	)
}

// Service reads student profiles for prompt enrichment.
type Service struct {
	DB *gorm.DB
}

// NewService constructs a students Service.
func NewService(db *gorm.DB) *Service { return &Service{DB: db} }

// Profile returns the student's profile with their most recently accessed
// course, or repo.ErrNotFound when the student does not exist. A student
// without progress rows still gets a profile, just without course fields.
func (s *Service) Profile(ctx context.Context, studentID string) (*Profile, error) {
	tr := otel.Tracer("students/Service")
	ctx, span := tr.Start(ctx, "Profile",
		trace.WithAttributes(attribute.String("student.id", studentID)),
	)
	defer span.End()

	student, err := repo.GetStudent(ctx, s.DB, studentID)
	if err != nil {
		return nil, err
	}

	p := &Profile{Name: student.Name}

	prog, course, err := repo.CurrentProgress(ctx, s.DB, studentID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return p, nil
		}
		return nil, err
	}
	p.CourseTitle = course.Title
	p.CompletedLessons = prog.CompletedLessons
	p.TotalLessons = course.TotalLessons
	p.ProgressPercentage = prog.ProgressPercentage
	return p, nil
}
