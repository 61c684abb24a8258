package model

import "time"

// ExamExport is the top-level JSON structure for exam result export.
type ExamExport struct {
	ExamID      string          `json:"exam_id"`
	Title       string          `json:"title"`
	GeneratedAt time.Time       `json:"generated_at"`
	Results     []StudentResult `json:"results"`
}

// StudentResult holds one student's graded attempt for export.
type StudentResult struct {
	StudentID         string         `json:"student_id"`
	Name              string         `json:"name"`
	Email             string         `json:"email"`
	AttemptID         string         `json:"attempt_id"`
	Status            AttemptStatus  `json:"status"`
	StartedAt         time.Time      `json:"started_at"`
	SubmittedAt       *time.Time     `json:"submitted_at,omitempty"`
	Score             float64        `json:"score"`
	TotalPoints       float64        `json:"total_points"`
	Percentage        float64        `json:"percentage"`
	GradingStatus     GradingStatus  `json:"grading_status"`
	PlagiarismPercent *float64       `json:"plagiarism_percent,omitempty"`
	Answers           []AnswerResult `json:"answers"`
}

// AnswerResult holds per-question data for export.
type AnswerResult struct {
	QuestionID    string       `json:"question_id"`
	Prompt        string       `json:"prompt"`
	Type          QuestionType `json:"type"`
	Points        float64      `json:"points"`
	Answer        any          `json:"answer"`
	IsCorrect     *bool        `json:"is_correct"`
	PointsAwarded *float64     `json:"points_awarded"`
}
