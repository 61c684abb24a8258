package model

import (
	"context"
	"time"
)

// UserRole represents a user's access level.
type UserRole string

const (
	// RoleStudent is a student user role.
	RoleStudent UserRole = "STUDENT"
	// RoleTeacher is a teacher user role.
	RoleTeacher UserRole = "TEACHER"
	// RoleAdmin is an admin user role.
	RoleAdmin UserRole = "ADMIN"
)

// User represents a system user.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	Role         UserRole  `json:"role"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

// AuthSession represents an authentication session.
type AuthSession struct {
	ID        string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

type userCtxKey struct{}

// ContextWithUser stores a user in the request context.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext retrieves the authenticated user from context, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userCtxKey{}).(*User)
	return u
}

// ExamStatus represents the lifecycle status of an exam.
type ExamStatus string

const (
	ExamDraft     ExamStatus = "DRAFT"
	ExamPublished ExamStatus = "PUBLISHED"
	ExamOngoing   ExamStatus = "ONGOING"
	ExamCompleted ExamStatus = "COMPLETED"
	ExamArchived  ExamStatus = "ARCHIVED"
)

// Startable reports whether students may begin attempts in this status.
func (s ExamStatus) Startable() bool {
	return s == ExamPublished || s == ExamOngoing
}

// ExamSettings holds per-exam behavior flags.
type ExamSettings struct {
	ShuffleQuestions  bool `json:"shuffle_questions"`
	RequireProctoring bool `json:"require_proctoring"`
}

// Exam is an exam definition. Immutable once published.
type Exam struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	CreatedBy   string       `json:"created_by"`
	Duration    int          `json:"duration"` // minutes
	StartTime   *time.Time   `json:"start_time,omitempty"`
	EndTime     *time.Time   `json:"end_time,omitempty"`
	MaxAttempts int          `json:"max_attempts"`
	Status      ExamStatus   `json:"status"`
	Settings    ExamSettings `json:"settings"`
	CreatedAt   time.Time    `json:"created_at"`
}

// QuestionType tags the content and grading behavior of a question.
type QuestionType string

const (
	TypeMCQ            QuestionType = "MCQ"
	TypeTrueFalse      QuestionType = "TRUE_FALSE"
	TypeMultipleSelect QuestionType = "MULTIPLE_SELECT"
	TypeShortAnswer    QuestionType = "SHORT_ANSWER"
	TypeEssay          QuestionType = "ESSAY"
)

// FreeText reports whether the type is answered with free-form text.
func (t QuestionType) FreeText() bool {
	return t == TypeShortAnswer || t == TypeEssay
}

// Question represents an exam question.
type Question struct {
	ID            string       `json:"id"`
	Title         string       `json:"title"`
	Prompt        string       `json:"prompt"`
	Type          QuestionType `json:"type"`
	Options       []string     `json:"options,omitempty"`
	CorrectAnswer string       `json:"correct_answer,omitempty"`
	Points        float64      `json:"points"`
	CreatedBy     string       `json:"created_by"`
	CreatedAt     time.Time    `json:"created_at"`
}

// StudentView returns a copy safe to show a student mid-attempt.
func (q Question) StudentView() Question {
	q.CorrectAnswer = ""
	return q
}

// AttemptStatus represents the state of an attempt. IN_PROGRESS is the only
// non-terminal state; the other three are final.
type AttemptStatus string

const (
	AttemptInProgress AttemptStatus = "IN_PROGRESS"
	AttemptSubmitted  AttemptStatus = "SUBMITTED"
	AttemptTerminated AttemptStatus = "TERMINATED"
	AttemptAbandoned  AttemptStatus = "ABANDONED"
)

// Terminal reports whether the status permits no further transitions.
func (s AttemptStatus) Terminal() bool {
	return s != AttemptInProgress
}

// Attempt is one student's timed sitting of an exam.
type Attempt struct {
	ID        string        `json:"id"`
	ExamID    string        `json:"exam_id"`
	StudentID string        `json:"student_id"`
	StartTime time.Time     `json:"start_time"`
	EndTime   *time.Time    `json:"end_time,omitempty"`
	Status    AttemptStatus `json:"status"`
	TimeSpent int           `json:"time_spent"` // seconds
	Score     *float64      `json:"score,omitempty"`
	Metadata  string        `json:"metadata,omitempty"` // free-form JSON, e.g. question ordering
}

// Answer is one student's response to one question within one attempt.
// Identity is (attempt, question); repeated saves replace the row.
type Answer struct {
	AttemptID        string    `json:"attempt_id"`
	QuestionID       string    `json:"question_id"`
	Value            any       `json:"answer"`
	IsCorrect        *bool     `json:"is_correct"`
	PointsAwarded    *float64  `json:"points_awarded"`
	TimeSpent        int       `json:"time_spent"`
	FlaggedForReview bool      `json:"flagged_for_review"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// GradingStatus represents the grading state of a submission.
type GradingStatus string

const (
	GradingPending     GradingStatus = "PENDING"
	GradingGraded      GradingStatus = "GRADED"
	GradingNeedsReview GradingStatus = "NEEDS_REVIEW"
)

// Submission is the grading artifact produced when an attempt ends.
// Created exactly once per attempt; only grading revision mutates it afterwards.
type Submission struct {
	ID                string        `json:"id"`
	AttemptID         string        `json:"attempt_id"`
	StudentID         string        `json:"student_id"`
	Score             float64       `json:"score"`
	TotalPoints       float64       `json:"total_points"`
	Status            GradingStatus `json:"status"`
	PlagiarismPercent *float64      `json:"plagiarism_percent,omitempty"`
	PlagiarismDetails string        `json:"plagiarism_details,omitempty"` // JSON report
	Feedback          string        `json:"feedback,omitempty"`
	GradedBy          *string       `json:"graded_by,omitempty"`
	GradedAt          *time.Time    `json:"graded_at,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
}

// EventSeverity classifies a monitoring event.
type EventSeverity string

const (
	SeverityLow    EventSeverity = "LOW"
	SeverityMedium EventSeverity = "MEDIUM"
	SeverityHigh   EventSeverity = "HIGH"
)

// MonitoringEvent is a proctoring signal emitted during the attempt lifecycle.
// Emission is fire-and-forget: a failed write never fails the core operation.
type MonitoringEvent struct {
	ID          string        `json:"id"`
	ExamID      string        `json:"exam_id"`
	StudentID   string        `json:"student_id"`
	AttemptID   string        `json:"attempt_id,omitempty"`
	Type        string        `json:"type"`
	Severity    EventSeverity `json:"severity"`
	Description string        `json:"description"`
	Metadata    string        `json:"metadata,omitempty"` // free-form JSON
	CreatedAt   time.Time     `json:"created_at"`
}

// Monitoring event types emitted by the attempt lifecycle.
const (
	EventExamStarted    = "EXAM_STARTED"
	EventExamSubmitted  = "EXAM_SUBMITTED"
	EventExamTerminated = "EXAM_TERMINATED"
)

// AuditEntry records a state-changing operation for the audit trail.
type AuditEntry struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"user_id"`
	Action    string    `json:"action"`
	Entity    string    `json:"entity"`
	EntityID  string    `json:"entity_id"`
	Changes   string    `json:"changes,omitempty"` // free-form JSON
	CreatedAt time.Time `json:"created_at"`
}
