package students

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
	"github.com/edustack-labs/go-student-assistant/internal/repo"
)

func newStudentsDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("students_%d.db", time.Now().UnixNano()))
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
	if err := db.AutoMigrate(&domain.Student{}, &domain.Course{}, &domain.Progress{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func TestProfile_UnknownStudent(t *testing.T) {
	svc := NewService(newStudentsDB(t))
	if _, err := svc.Profile(context.Background(), "nope"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestProfile_NoProgressYet(t *testing.T) {
	db := newStudentsDB(t)
	if err := db.Create(&domain.Student{ID: "s1", Name: "Maria", Email: "m@example.com"}).Error; err != nil {
		t.Fatalf("seed student: %v", err)
	}

	p, err := NewService(db).Profile(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if p.Name != "Maria" || p.CourseTitle != "" {
		t.Fatalf("unexpected profile: %+v", p)
	}
	if got := p.PromptContext(); !strings.Contains(got, "Maria") || !strings.Contains(got, "not started") {
		t.Fatalf("unexpected prompt context: %q", got)
	}
}

func TestProfile_WithCurrentCourse(t *testing.T) {
	db := newStudentsDB(t)
	if err := db.Create(&domain.Student{ID: "s1", Name: "Maria", Email: "m@example.com"}).Error; err != nil {
		t.Fatalf("seed student: %v", err)
	}
	if err := db.Create(&domain.Course{ID: "course-b", Title: "Biology", TotalLessons: 8}).Error; err != nil {
		t.Fatalf("seed course: %v", err)
	}
	at := time.Now().UTC()
	if err := db.Create(&domain.Progress{
		ID: "p1", StudentID: "s1", CourseID: "course-b",
		CompletedLessons: 4, ProgressPercentage: 50, LastAccessedAt: &at,
	}).Error; err != nil {
		t.Fatalf("seed progress: %v", err)
	}

	p, err := NewService(db).Profile(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if p.CourseTitle != "Biology" || p.CompletedLessons != 4 || p.TotalLessons != 8 || p.ProgressPercentage != 50 {
		t.Fatalf("unexpected profile: %+v", p)
	}
	ctxLine := p.PromptContext()
	for _, want := range []string{"Maria", "Biology", "4 of 8", "50%"} {
		if !strings.Contains(ctxLine, want) {
			t.Fatalf("prompt context missing %q: %q", want, ctxLine)
		}
	}
}

func TestPromptContext_NilProfile(t *testing.T) {
	var p *Profile
	if got := p.PromptContext(); got != "" {
		t.Fatalf("expected empty string, got %q", got)
	}
}
