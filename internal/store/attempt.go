package store

import (
	"database/sql"
	"time"

	"github.com/proctorly/proctord/internal/model"
)

// CreateAttempt inserts a new IN_PROGRESS attempt and returns its ID.
func (s *Store) CreateAttempt(a model.Attempt) (string, error) {
	if a.ID == "" {
		a.ID = newID()
	}
	_, err := s.db.Exec(
		`INSERT INTO attempts (id, exam_id, student_id, start_time, status, metadata)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.ExamID, a.StudentID, a.StartTime, model.AttemptInProgress, a.Metadata,
	)
	if err != nil {
		return "", err
	}
	return a.ID, nil
}

// GetAttempt returns an attempt by ID.
func (s *Store) GetAttempt(id string) (model.Attempt, error) {
	var a model.Attempt
	err := s.db.QueryRow(
		`SELECT id, exam_id, student_id, start_time, end_time, status, time_spent, score, metadata
		 FROM attempts WHERE id = ?`, id,
	).Scan(&a.ID, &a.ExamID, &a.StudentID, &a.StartTime, &a.EndTime, &a.Status, &a.TimeSpent, &a.Score, &a.Metadata)
	return a, err
}

// FindInProgressAttempt returns the student's IN_PROGRESS attempt for an
// exam, or nil when there is none.
func (s *Store) FindInProgressAttempt(examID, studentID string) (*model.Attempt, error) {
	var a model.Attempt
	err := s.db.QueryRow(
		`SELECT id, exam_id, student_id, start_time, end_time, status, time_spent, score, metadata
		 FROM attempts WHERE exam_id = ? AND student_id = ? AND status = ?`,
		examID, studentID, model.AttemptInProgress,
	).Scan(&a.ID, &a.ExamID, &a.StudentID, &a.StartTime, &a.EndTime, &a.Status, &a.TimeSpent, &a.Score, &a.Metadata)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// CountAttempts returns the student's non-abandoned attempt count for an exam.
func (s *Store) CountAttempts(examID, studentID string) (int, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM attempts WHERE exam_id = ? AND student_id = ? AND status != ?`,
		examID, studentID, model.AttemptAbandoned,
	).Scan(&count)
	return count, err
}

// FinishAttempt transitions an attempt out of IN_PROGRESS, recording end
// time, time spent and final score in the same write. The status precondition
// is part of the statement, so of two racing finishes exactly one succeeds;
// the loser observes ok == false and the row is left untouched.
func (s *Store) FinishAttempt(id string, to model.AttemptStatus, endTime time.Time, timeSpent int, score float64) (bool, error) {
	res, err := s.db.Exec(
		`UPDATE attempts SET status = ?, end_time = ?, time_spent = ?, score = ?
		 WHERE id = ? AND status = ?`,
		to, endTime, timeSpent, score, id, model.AttemptInProgress,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// UpdateAttemptScore sets the attempt's score mirror after a grading revision.
func (s *Store) UpdateAttemptScore(id string, score float64) error {
	_, err := s.db.Exec(`UPDATE attempts SET score = ? WHERE id = ?`, score, id)
	return err
}

// ListAttemptsByExam returns all attempts for an exam, newest first.
func (s *Store) ListAttemptsByExam(examID string) ([]model.Attempt, error) {
	rows, err := s.db.Query(
		`SELECT id, exam_id, student_id, start_time, end_time, status, time_spent, score, metadata
		 FROM attempts WHERE exam_id = ? ORDER BY start_time DESC`, examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var attempts []model.Attempt
	for rows.Next() {
		var a model.Attempt
		if err := rows.Scan(&a.ID, &a.ExamID, &a.StudentID, &a.StartTime, &a.EndTime, &a.Status,
			&a.TimeSpent, &a.Score, &a.Metadata); err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}
