// Package exam implements the attempt lifecycle: starting and resuming
// attempts, saving answers, submitting, terminating, and grading revision.
// All state checks live here; the store does plain reads and writes.
package exam

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"math/rand"
	"time"

	"github.com/proctorly/proctord/internal/apperr"
	"github.com/proctorly/proctord/internal/grading"
	"github.com/proctorly/proctord/internal/model"
	"github.com/proctorly/proctord/internal/store"
)

// GracePeriod is the slack added to the exam duration before a submission
// is rejected as over time.
const GracePeriod = 60 * time.Second

// Service carries out exam attempt operations on top of the store.
type Service struct {
	store *store.Store
	now   func() time.Time
}

// NewService creates a Service using the wall clock.
func NewService(st *store.Store) *Service {
	return &Service{store: st, now: time.Now}
}

// AnswerInput is one answer as supplied by the student.
type AnswerInput struct {
	QuestionID       string `json:"questionId" validate:"required"`
	Answer           any    `json:"answer"`
	TimeSpent        int    `json:"timeSpent" validate:"gte=0"`
	FlaggedForReview bool   `json:"flaggedForReview"`
}

// StartResult is the outcome of starting or resuming an attempt.
type StartResult struct {
	Attempt   model.Attempt    `json:"attempt"`
	Questions []model.Question `json:"questions"`
	Resumed   bool             `json:"resumed"`
}

// attemptMetadata is the per-attempt state captured at start time.
type attemptMetadata struct {
	QuestionOrder []string `json:"question_order"`
}

// Start begins a new attempt for the student, or returns the existing
// IN_PROGRESS one. Enrollment, exam status, time window and the attempt
// limit are all checked before any write.
func (s *Service) Start(examID, studentID string) (StartResult, error) {
	exam, err := s.store.GetExam(examID)
	if errors.Is(err, sql.ErrNoRows) {
		return StartResult{}, apperr.NotFound("exam %s not found", examID)
	}
	if err != nil {
		return StartResult{}, err
	}

	enrolled, err := s.store.IsEnrolled(examID, studentID)
	if err != nil {
		return StartResult{}, err
	}
	if !enrolled {
		return StartResult{}, apperr.Forbidden("not enrolled in this exam")
	}

	if !exam.Status.Startable() {
		return StartResult{}, apperr.InvalidState("exam is not open for attempts")
	}
	now := s.now()
	if exam.StartTime != nil && now.Before(*exam.StartTime) {
		return StartResult{}, apperr.InvalidState("exam has not started yet")
	}
	if exam.EndTime != nil && now.After(*exam.EndTime) {
		return StartResult{}, apperr.InvalidState("exam has ended")
	}

	// An open attempt is resumed, never duplicated.
	if existing, err := s.store.FindInProgressAttempt(examID, studentID); err != nil {
		return StartResult{}, err
	} else if existing != nil {
		questions, err := s.attemptQuestions(*existing)
		if err != nil {
			return StartResult{}, err
		}
		return StartResult{Attempt: *existing, Questions: studentViews(questions), Resumed: true}, nil
	}

	if exam.MaxAttempts > 0 {
		count, err := s.store.CountAttempts(examID, studentID)
		if err != nil {
			return StartResult{}, err
		}
		if count >= exam.MaxAttempts {
			return StartResult{}, apperr.InvalidState("attempt limit reached")
		}
	}

	questions, err := s.store.GetExamQuestions(examID)
	if err != nil {
		return StartResult{}, err
	}
	if exam.Settings.ShuffleQuestions {
		rand.Shuffle(len(questions), func(i, j int) {
			questions[i], questions[j] = questions[j], questions[i]
		})
	}

	// The ordering presented to the student is fixed in the attempt so a
	// resume shows the same sequence.
	order := make([]string, len(questions))
	for i, q := range questions {
		order[i] = q.ID
	}
	metadata, err := json.Marshal(attemptMetadata{QuestionOrder: order})
	if err != nil {
		return StartResult{}, err
	}

	attemptID, err := s.store.CreateAttempt(model.Attempt{
		ExamID:    examID,
		StudentID: studentID,
		StartTime: now,
		Status:    model.AttemptInProgress,
		Metadata:  string(metadata),
	})
	if err != nil {
		return StartResult{}, err
	}
	attempt, err := s.store.GetAttempt(attemptID)
	if err != nil {
		return StartResult{}, err
	}

	s.emitEvent(model.MonitoringEvent{
		ExamID:      examID,
		StudentID:   studentID,
		AttemptID:   attemptID,
		Type:        model.EventExamStarted,
		Severity:    model.SeverityLow,
		Description: "exam attempt started",
	})
	s.audit(studentID, "ATTEMPT_STARTED", "attempt", attemptID, "")

	return StartResult{Attempt: attempt, Questions: studentViews(questions)}, nil
}

// SaveAnswer records one answer mid-attempt. Correctness is previewed for
// auto-gradable questions; points are only awarded at submission.
func (s *Service) SaveAnswer(attemptID, studentID string, in AnswerInput) (model.Answer, error) {
	attempt, q, err := s.answerTarget(attemptID, studentID, in.QuestionID)
	if err != nil {
		return model.Answer{}, err
	}
	res := grading.Grade(q, in.Answer)
	answer := model.Answer{
		AttemptID:        attempt.ID,
		QuestionID:       q.ID,
		Value:            in.Answer,
		IsCorrect:        res.IsCorrect,
		TimeSpent:        in.TimeSpent,
		FlaggedForReview: in.FlaggedForReview,
	}
	if err := s.store.UpsertAnswer(answer); err != nil {
		return model.Answer{}, err
	}
	saved, err := s.store.GetAnswer(attempt.ID, q.ID)
	if err != nil {
		return model.Answer{}, err
	}
	return *saved, nil
}

// Answers returns the attempt's saved answers to its owner.
func (s *Service) Answers(attemptID, studentID string) ([]model.Answer, error) {
	attempt, err := s.getAttempt(attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.StudentID != studentID {
		return nil, apperr.Forbidden("attempt belongs to another student")
	}
	return s.store.ListAnswers(attemptID)
}

// Terminate forcibly ends an in-progress attempt with a score of zero.
// Only the exam's creator or an admin may do this.
func (s *Service) Terminate(attemptID string, by model.User, reason string) (model.Attempt, error) {
	attempt, err := s.getAttempt(attemptID)
	if err != nil {
		return model.Attempt{}, err
	}
	return s.terminate(attempt, by, reason)
}

// TerminateActive ends the student's in-progress attempt for an exam.
func (s *Service) TerminateActive(examID, studentID string, by model.User, reason string) (model.Attempt, error) {
	attempt, err := s.store.FindInProgressAttempt(examID, studentID)
	if err != nil {
		return model.Attempt{}, err
	}
	if attempt == nil {
		return model.Attempt{}, apperr.NotFound("no active attempt for this exam")
	}
	return s.terminate(*attempt, by, reason)
}

func (s *Service) terminate(attempt model.Attempt, by model.User, reason string) (model.Attempt, error) {
	exam, err := s.store.GetExam(attempt.ExamID)
	if err != nil {
		return model.Attempt{}, err
	}
	if by.Role != model.RoleAdmin && by.ID != exam.CreatedBy {
		return model.Attempt{}, apperr.Forbidden("only the exam creator may terminate attempts")
	}
	if attempt.Status.Terminal() {
		return model.Attempt{}, apperr.InvalidState("attempt is already %s", attempt.Status)
	}
	now := s.now()
	timeSpent := int(now.Sub(attempt.StartTime).Seconds())
	ok, err := s.store.FinishAttempt(attempt.ID, model.AttemptTerminated, now, timeSpent, 0)
	if err != nil {
		return model.Attempt{}, err
	}
	if !ok {
		return model.Attempt{}, apperr.InvalidState("attempt is no longer in progress")
	}

	metadata, _ := json.Marshal(map[string]string{"terminatedBy": by.ID, "reason": reason})
	s.emitEvent(model.MonitoringEvent{
		ExamID:      attempt.ExamID,
		StudentID:   attempt.StudentID,
		AttemptID:   attempt.ID,
		Type:        model.EventExamTerminated,
		Severity:    model.SeverityHigh,
		Description: "exam attempt terminated",
		Metadata:    string(metadata),
	})
	s.audit(by.ID, "ATTEMPT_TERMINATED", "attempt", attempt.ID, string(metadata))

	return s.store.GetAttempt(attempt.ID)
}

// getAttempt loads an attempt, mapping a missing row to NotFound.
func (s *Service) getAttempt(attemptID string) (model.Attempt, error) {
	attempt, err := s.store.GetAttempt(attemptID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Attempt{}, apperr.NotFound("attempt %s not found", attemptID)
	}
	return attempt, err
}

// answerTarget checks ownership, attempt state and question membership for
// an answer write, returning the attempt and the question.
func (s *Service) answerTarget(attemptID, studentID, questionID string) (model.Attempt, model.Question, error) {
	attempt, err := s.getAttempt(attemptID)
	if err != nil {
		return model.Attempt{}, model.Question{}, err
	}
	if attempt.StudentID != studentID {
		return model.Attempt{}, model.Question{}, apperr.Forbidden("attempt belongs to another student")
	}
	if attempt.Status != model.AttemptInProgress {
		return model.Attempt{}, model.Question{}, apperr.InvalidState("attempt is %s", attempt.Status)
	}
	questions, err := s.store.GetExamQuestions(attempt.ExamID)
	if err != nil {
		return model.Attempt{}, model.Question{}, err
	}
	for _, q := range questions {
		if q.ID == questionID {
			return attempt, q, nil
		}
	}
	return model.Attempt{}, model.Question{}, apperr.Invalid("question %s is not part of this exam", questionID)
}

// attemptQuestions returns the exam's questions in the order captured when
// the attempt started, falling back to assignment order.
func (s *Service) attemptQuestions(attempt model.Attempt) ([]model.Question, error) {
	questions, err := s.store.GetExamQuestions(attempt.ExamID)
	if err != nil {
		return nil, err
	}
	var md attemptMetadata
	if attempt.Metadata == "" || json.Unmarshal([]byte(attempt.Metadata), &md) != nil || len(md.QuestionOrder) == 0 {
		return questions, nil
	}
	byID := make(map[string]model.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}
	ordered := make([]model.Question, 0, len(questions))
	for _, id := range md.QuestionOrder {
		if q, ok := byID[id]; ok {
			ordered = append(ordered, q)
			delete(byID, id)
		}
	}
	// Questions added after the attempt started land at the end.
	for _, q := range questions {
		if _, ok := byID[q.ID]; ok {
			ordered = append(ordered, q)
		}
	}
	return ordered, nil
}

func studentViews(questions []model.Question) []model.Question {
	views := make([]model.Question, len(questions))
	for i, q := range questions {
		views[i] = q.StudentView()
	}
	return views
}

// emitEvent writes a monitoring event. Failures are logged, never surfaced:
// monitoring must not break the attempt lifecycle.
func (s *Service) emitEvent(ev model.MonitoringEvent) {
	if _, err := s.store.InsertMonitoringEvent(ev); err != nil {
		slog.Error("failed to record monitoring event", "type", ev.Type, "attempt_id", ev.AttemptID, "error", err)
	}
}

// audit appends an audit trail row, logging on failure.
func (s *Service) audit(userID, action, entity, entityID, changes string) {
	err := s.store.InsertAuditLog(model.AuditEntry{
		UserID:   userID,
		Action:   action,
		Entity:   entity,
		EntityID: entityID,
		Changes:  changes,
	})
	if err != nil {
		slog.Error("failed to write audit log", "action", action, "entity_id", entityID, "error", err)
	}
}
