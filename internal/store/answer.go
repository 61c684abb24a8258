package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/proctorly/proctord/internal/model"
	"github.com/proctorly/proctord/internal/plagiarism"
)

// UpsertAnswer inserts or replaces the answer for (attempt, question).
// The conflict target is the composite primary key, so concurrent saves of
// the same question converge on a single row, last write wins.
func (s *Store) UpsertAnswer(a model.Answer) error {
	value, err := json.Marshal(a.Value)
	if err != nil {
		return fmt.Errorf("encode answer value: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO answers (attempt_id, question_id, value, is_correct, points_awarded, time_spent, flagged_for_review, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(attempt_id, question_id) DO UPDATE SET
		   value = excluded.value,
		   is_correct = excluded.is_correct,
		   points_awarded = excluded.points_awarded,
		   time_spent = excluded.time_spent,
		   flagged_for_review = excluded.flagged_for_review,
		   updated_at = excluded.updated_at`,
		a.AttemptID, a.QuestionID, string(value), a.IsCorrect, a.PointsAwarded,
		a.TimeSpent, a.FlaggedForReview, time.Now(),
	)
	return err
}

// GetAnswer returns the answer for (attempt, question), or nil when unanswered.
func (s *Store) GetAnswer(attemptID, questionID string) (*model.Answer, error) {
	row := s.db.QueryRow(
		`SELECT attempt_id, question_id, value, is_correct, points_awarded, time_spent, flagged_for_review, updated_at
		 FROM answers WHERE attempt_id = ? AND question_id = ?`, attemptID, questionID,
	)
	a, err := scanAnswer(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ListAnswers returns all answers of an attempt ordered by question ID.
func (s *Store) ListAnswers(attemptID string) ([]model.Answer, error) {
	rows, err := s.db.Query(
		`SELECT attempt_id, question_id, value, is_correct, points_awarded, time_spent, flagged_for_review, updated_at
		 FROM answers WHERE attempt_id = ? ORDER BY question_id`, attemptID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var answers []model.Answer
	for rows.Next() {
		a, err := scanAnswer(rows.Scan)
		if err != nil {
			return nil, err
		}
		answers = append(answers, a)
	}
	return answers, rows.Err()
}

func scanAnswer(scan func(...any) error) (model.Answer, error) {
	var (
		a     model.Answer
		value string
	)
	err := scan(&a.AttemptID, &a.QuestionID, &value, &a.IsCorrect, &a.PointsAwarded,
		&a.TimeSpent, &a.FlaggedForReview, &a.UpdatedAt)
	if err != nil {
		return a, err
	}
	if err := json.Unmarshal([]byte(value), &a.Value); err != nil {
		return a, fmt.Errorf("decode answer value: %w", err)
	}
	return a, nil
}

// UpdateAnswerPoints overrides the points awarded for one answer during a
// grading revision. Correctness is derived from the award being positive.
func (s *Store) UpdateAnswerPoints(attemptID, questionID string, points float64) error {
	_, err := s.db.Exec(
		`UPDATE answers SET points_awarded = ?, is_correct = ?, updated_at = ?
		 WHERE attempt_id = ? AND question_id = ?`,
		points, points > 0, time.Now(), attemptID, questionID,
	)
	return err
}

// FreeTextsByAttempt returns, for every SUBMITTED attempt of the exam by a
// student other than excludeStudent, the concatenation of that attempt's
// answers to the given questions. Attempts are ordered by ID and answers
// within one by question ID, so repeated calls see the same blobs.
func (s *Store) FreeTextsByAttempt(examID string, questionIDs []string, excludeStudent string) ([]plagiarism.AttemptText, error) {
	if len(questionIDs) == 0 {
		return nil, nil
	}
	placeholders := strings.Repeat("?,", len(questionIDs)-1) + "?"
	args := []any{examID, excludeStudent, model.AttemptSubmitted}
	for _, id := range questionIDs {
		args = append(args, id)
	}
	rows, err := s.db.Query(
		`SELECT an.attempt_id, an.value
		 FROM answers an
		 JOIN attempts at ON at.id = an.attempt_id
		 WHERE at.exam_id = ? AND at.student_id != ? AND at.status = ?
		   AND an.question_id IN (`+placeholders+`)
		 ORDER BY an.attempt_id, an.question_id`, args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var texts []plagiarism.AttemptText
	for rows.Next() {
		var attemptID, raw string
		if err := rows.Scan(&attemptID, &raw); err != nil {
			return nil, err
		}
		var value any
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			return nil, fmt.Errorf("decode answer value: %w", err)
		}
		text := AnswerText(value)
		if len(texts) > 0 && texts[len(texts)-1].AttemptID == attemptID {
			texts[len(texts)-1].Text += " " + text
			continue
		}
		texts = append(texts, plagiarism.AttemptText{AttemptID: attemptID, Text: text})
	}
	return texts, rows.Err()
}

// AnswerText flattens a decoded answer value into comparison text. Every
// caller feeding the plagiarism engine must use it so that a submitter's
// own answers and their peers' answers are flattened identically.
func AnswerText(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case []any:
		parts := make([]string, 0, len(v))
		for _, e := range v {
			parts = append(parts, AnswerText(e))
		}
		return strings.Join(parts, " ")
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}
