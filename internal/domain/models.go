// Package domain defines the persistence models for conversations, chat
// messages, knowledge chunks, and student records. These types are mapped
// with GORM and form the core data layer of the student assistant.
package domain

import (
	"time"

	"gorm.io/gorm"
)

// Message roles. System messages are created programmatically (e.g., injected
// conversation context); the other two come from the human and the model.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Conversation represents a chat thread owned by a student. At most one
// conversation per student is active at a time; starting a new one marks all
// others inactive.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - StudentID: identifier of the owning student; indexed for retrieval.
//   - Title: human-readable title (auto-generated from the first message).
//   - IsActive: whether this is the student's current conversation.
//   - LastMessageAt: timestamp of the most recent exchange.
//   - MessageCount: running count of persisted messages.
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
//   - DeletedAt: soft deletion marker (retains row for audit/history).
type Conversation struct {
	ID            string         `json:"id"              gorm:"type:char(36);primaryKey"`
	StudentID     string         `json:"student_id"      gorm:"type:char(36);not null;index:idx_student_convs"`
	Title         string         `json:"title"           gorm:"type:varchar(255);not null;default:'New conversation'"`
	IsActive      bool           `json:"is_active"       gorm:"not null;default:true"`
	LastMessageAt *time.Time     `json:"last_message_at,omitempty"`
	MessageCount  int            `json:"message_count"   gorm:"not null;default:0"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `json:"-"               gorm:"index"`
}

// TableName returns the database table name for Conversation.
func (Conversation) TableName() string { return "conversations" }

// Message represents a single utterance within a conversation, authored by
// the "user", the "assistant", or injected as "system" context. Assistant
// messages may carry token usage and the model that produced them.
type Message struct {
	ID             string         `json:"id"              gorm:"type:char(36);primaryKey"`
	ConversationID string         `json:"conversation_id" gorm:"type:char(36);not null;index:idx_conv_msgs,priority:1"`
	Role           string         `json:"role"            gorm:"type:varchar(16);not null;check:role IN ('user','assistant','system')"`
	Content        string         `json:"content"         gorm:"type:text;not null"`
	TokensUsed     *int           `json:"tokens_used,omitempty"`
	Model          string         `json:"model,omitempty" gorm:"type:varchar(64)"`
	CreatedAt      time.Time      `json:"created_at"      gorm:"index:idx_conv_msgs,priority:2"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `json:"-"               gorm:"index"`

	// Conversation is the parent thread. Messages are cascade-deleted
	// if their conversation is removed.
	Conversation Conversation `json:"-" gorm:"foreignKey:ConversationID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// KnowledgeChunk is the unit of indexing and retrieval: a bounded, sentence-
// aligned segment of course material together with its embedding vector.
// Chunks are immutable once created, owned by their course, and deleted in
// bulk when the course's knowledge is removed.
//
// The embedding dimension is fixed by the provider's model and therefore
// constant across all rows.
type KnowledgeChunk struct {
	ID         string    `json:"id"          gorm:"type:char(36);primaryKey"`
	CourseID   string    `json:"course_id"   gorm:"type:char(36);not null;index:idx_course_chunks"`
	Content    string    `json:"content"     gorm:"type:text;not null"`
	Embedding  Vector    `json:"-"           gorm:"type:text;not null"`
	SourceFile string    `json:"source_file" gorm:"type:varchar(255);not null"`
	ChunkIndex int       `json:"chunk_index" gorm:"not null"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName returns the database table name for KnowledgeChunk.
func (KnowledgeChunk) TableName() string { return "knowledge_chunks" }

// Student is a dashboard user. Only the fields the assistant needs for its
// profile summary are modelled here.
type Student struct {
	ID         string    `json:"id"    gorm:"type:char(36);primaryKey"`
	Name       string    `json:"name"  gorm:"type:varchar(128);not null"`
	Email      string    `json:"email" gorm:"type:varchar(255);not null;uniqueIndex"`
	LastActive time.Time `json:"last_active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TableName returns the database table name for Student.
func (Student) TableName() string { return "students" }

// Course is a unit of study whose material can be indexed for retrieval.
type Course struct {
	ID           string    `json:"id"    gorm:"type:char(36);primaryKey"`
	Title        string    `json:"title" gorm:"type:varchar(255);not null"`
	TotalLessons int       `json:"total_lessons"`
	CreatedAt    time.Time `json:"created_at"`
}

// TableName returns the database table name for Course.
func (Course) TableName() string { return "courses" }

// Progress tracks a student's advancement through a course. The record with
// the most recent LastAccessedAt determines the student's "current course"
// for prompt context.
type Progress struct {
	ID                 string     `json:"id"         gorm:"type:char(36);primaryKey"`
	StudentID          string     `json:"student_id" gorm:"type:char(36);not null;index:idx_student_progress"`
	CourseID           string     `json:"course_id"  gorm:"type:char(36);not null"`
	CompletedLessons   int        `json:"completed_lessons"`
	ProgressPercentage int        `json:"progress_percentage"`
	LastAccessedAt     *time.Time `json:"last_accessed_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// TableName returns the database table name for Progress.
func (Progress) TableName() string { return "progress" }
