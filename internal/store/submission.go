package store

import (
	"database/sql"
	"time"

	"github.com/proctorly/proctord/internal/model"
)

// CreateSubmission inserts the submission record for a finished attempt.
// attempt_id is UNIQUE: a second create for the same attempt fails, which
// keeps "exactly one submission per attempt" true even under races.
func (s *Store) CreateSubmission(sub model.Submission) (string, error) {
	if sub.ID == "" {
		sub.ID = newID()
	}
	_, err := s.db.Exec(
		`INSERT INTO submissions (id, attempt_id, student_id, score, total_points, status, plagiarism_percent, plagiarism_details, feedback, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID, sub.AttemptID, sub.StudentID, sub.Score, sub.TotalPoints, sub.Status,
		sub.PlagiarismPercent, sub.PlagiarismDetails, sub.Feedback, time.Now(),
	)
	if err != nil {
		return "", err
	}
	return sub.ID, nil
}

// GetSubmission returns a submission by ID.
func (s *Store) GetSubmission(id string) (model.Submission, error) {
	return s.getSubmission(`WHERE id = ?`, id)
}

// GetSubmissionByAttempt returns the submission for an attempt, or nil.
func (s *Store) GetSubmissionByAttempt(attemptID string) (*model.Submission, error) {
	sub, err := s.getSubmission(`WHERE attempt_id = ?`, attemptID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (s *Store) getSubmission(where string, args ...any) (model.Submission, error) {
	var sub model.Submission
	err := s.db.QueryRow(
		`SELECT id, attempt_id, student_id, score, total_points, status, plagiarism_percent, plagiarism_details, feedback, graded_by, graded_at, created_at
		 FROM submissions `+where, args...,
	).Scan(&sub.ID, &sub.AttemptID, &sub.StudentID, &sub.Score, &sub.TotalPoints, &sub.Status,
		&sub.PlagiarismPercent, &sub.PlagiarismDetails, &sub.Feedback, &sub.GradedBy, &sub.GradedAt, &sub.CreatedAt)
	return sub, err
}

// ListSubmissionsByExam returns all submissions for an exam, newest first.
func (s *Store) ListSubmissionsByExam(examID string) ([]model.Submission, error) {
	rows, err := s.db.Query(
		`SELECT sub.id, sub.attempt_id, sub.student_id, sub.score, sub.total_points, sub.status,
		        sub.plagiarism_percent, sub.plagiarism_details, sub.feedback, sub.graded_by, sub.graded_at, sub.created_at
		 FROM submissions sub
		 JOIN attempts at ON at.id = sub.attempt_id
		 WHERE at.exam_id = ?
		 ORDER BY sub.created_at DESC`, examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var subs []model.Submission
	for rows.Next() {
		var sub model.Submission
		if err := rows.Scan(&sub.ID, &sub.AttemptID, &sub.StudentID, &sub.Score, &sub.TotalPoints, &sub.Status,
			&sub.PlagiarismPercent, &sub.PlagiarismDetails, &sub.Feedback, &sub.GradedBy, &sub.GradedAt, &sub.CreatedAt); err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// UpdateSubmissionGrade records a grading revision outcome on the submission.
func (s *Store) UpdateSubmissionGrade(id string, score float64, status model.GradingStatus, feedback string, gradedBy string, gradedAt time.Time) error {
	_, err := s.db.Exec(
		`UPDATE submissions SET score = ?, status = ?, feedback = ?, graded_by = ?, graded_at = ?
		 WHERE id = ?`,
		score, status, feedback, gradedBy, gradedAt, id,
	)
	return err
}

// UpdateSubmissionFeedback replaces only the feedback text.
func (s *Store) UpdateSubmissionFeedback(id string, feedback string, gradedBy string, gradedAt time.Time) error {
	_, err := s.db.Exec(
		`UPDATE submissions SET feedback = ?, graded_by = ?, graded_at = ? WHERE id = ?`,
		feedback, gradedBy, gradedAt, id,
	)
	return err
}

// InsertMonitoringEvent stores a proctoring signal.
func (s *Store) InsertMonitoringEvent(ev model.MonitoringEvent) (string, error) {
	if ev.ID == "" {
		ev.ID = newID()
	}
	if ev.Severity == "" {
		ev.Severity = model.SeverityLow
	}
	_, err := s.db.Exec(
		`INSERT INTO monitoring_events (id, exam_id, student_id, attempt_id, type, severity, description, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.ExamID, ev.StudentID, ev.AttemptID, ev.Type, ev.Severity, ev.Description, ev.Metadata, time.Now(),
	)
	if err != nil {
		return "", err
	}
	return ev.ID, nil
}

// ListMonitoringEvents returns an exam's monitoring events, newest first.
func (s *Store) ListMonitoringEvents(examID string) ([]model.MonitoringEvent, error) {
	rows, err := s.db.Query(
		`SELECT id, exam_id, student_id, attempt_id, type, severity, description, metadata, created_at
		 FROM monitoring_events WHERE exam_id = ? ORDER BY created_at DESC`, examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var events []model.MonitoringEvent
	for rows.Next() {
		var ev model.MonitoringEvent
		if err := rows.Scan(&ev.ID, &ev.ExamID, &ev.StudentID, &ev.AttemptID, &ev.Type,
			&ev.Severity, &ev.Description, &ev.Metadata, &ev.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// InsertAuditLog appends an audit trail row.
func (s *Store) InsertAuditLog(entry model.AuditEntry) error {
	_, err := s.db.Exec(
		`INSERT INTO audit_logs (user_id, action, entity, entity_id, changes, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entry.UserID, entry.Action, entry.Entity, entry.EntityID, entry.Changes, time.Now(),
	)
	return err
}
