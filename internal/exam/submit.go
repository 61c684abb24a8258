package exam

import (
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/proctorly/proctord/internal/apperr"
	"github.com/proctorly/proctord/internal/grading"
	"github.com/proctorly/proctord/internal/model"
	"github.com/proctorly/proctord/internal/plagiarism"
	"github.com/proctorly/proctord/internal/store"
)

// SubmitRequest carries the final answer set for an attempt.
type SubmitRequest struct {
	Answers   []AnswerInput `json:"answers" validate:"dive"`
	TimeSpent int           `json:"timeSpent" validate:"gte=0"`
}

// GradedAnswer is the per-question grading outcome returned on submission.
type GradedAnswer struct {
	QuestionID   string  `json:"questionId"`
	Answer       any     `json:"answer"`
	IsCorrect    *bool   `json:"isCorrect"`
	EarnedPoints float64 `json:"earnedPoints"`
}

// SubmitResult is the full outcome of a submission.
type SubmitResult struct {
	Score         float64          `json:"score"`
	TotalPoints   float64          `json:"totalPoints"`
	Percentage    float64          `json:"percentage"`
	GradedAnswers []GradedAnswer   `json:"gradedAnswers"`
	Submission    model.Submission `json:"submission"`
	Attempt       model.Attempt    `json:"attempt"`
}

// Submit finalizes an attempt by ID: persists the final answers, grades the
// auto-gradable ones, transitions the attempt, computes plagiarism for
// free-text answers and records the submission. Of two concurrent submits
// exactly one wins; the other gets an invalid-state error.
func (s *Service) Submit(attemptID, studentID string, req SubmitRequest) (SubmitResult, error) {
	attempt, err := s.getAttempt(attemptID)
	if err != nil {
		return SubmitResult{}, err
	}
	return s.submit(attempt, studentID, req)
}

// SubmitForExam finalizes the student's in-progress attempt for an exam.
func (s *Service) SubmitForExam(examID, studentID string, req SubmitRequest) (SubmitResult, error) {
	attempt, err := s.store.FindInProgressAttempt(examID, studentID)
	if err != nil {
		return SubmitResult{}, err
	}
	if attempt == nil {
		return SubmitResult{}, apperr.NotFound("no active attempt for this exam")
	}
	return s.submit(*attempt, studentID, req)
}

func (s *Service) submit(attempt model.Attempt, studentID string, req SubmitRequest) (SubmitResult, error) {
	if attempt.StudentID != studentID {
		return SubmitResult{}, apperr.Forbidden("attempt belongs to another student")
	}
	if attempt.Status != model.AttemptInProgress {
		return SubmitResult{}, apperr.InvalidState("attempt is already %s", attempt.Status)
	}

	exam, err := s.store.GetExam(attempt.ExamID)
	if err != nil {
		return SubmitResult{}, err
	}
	now := s.now()
	elapsed := now.Sub(attempt.StartTime)
	if limit := time.Duration(exam.Duration)*time.Minute + GracePeriod; elapsed > limit {
		return SubmitResult{}, apperr.InvalidState("time limit exceeded")
	}

	questions, err := s.store.GetExamQuestions(attempt.ExamID)
	if err != nil {
		return SubmitResult{}, err
	}
	questionByID := make(map[string]model.Question, len(questions))
	for _, q := range questions {
		questionByID[q.ID] = q
	}

	// Persist the final answer set with grading applied. Answers saved
	// earlier in the attempt and not re-sent here keep their stored value
	// but are re-graded below. Answers for questions outside the exam are
	// ignored rather than failing the whole submission.
	for _, in := range req.Answers {
		q, ok := questionByID[in.QuestionID]
		if !ok {
			continue
		}
		res := grading.Grade(q, in.Answer)
		err := s.store.UpsertAnswer(model.Answer{
			AttemptID:        attempt.ID,
			QuestionID:       q.ID,
			Value:            in.Answer,
			IsCorrect:        res.IsCorrect,
			PointsAwarded:    res.PointsAwarded,
			TimeSpent:        in.TimeSpent,
			FlaggedForReview: in.FlaggedForReview,
		})
		if err != nil {
			return SubmitResult{}, err
		}
	}

	saved, err := s.store.ListAnswers(attempt.ID)
	if err != nil {
		return SubmitResult{}, err
	}
	answerByQuestion := make(map[string]model.Answer, len(saved))
	for _, a := range saved {
		answerByQuestion[a.QuestionID] = a
	}

	// Grade every question of the exam, treating unanswered ones as empty.
	// This keeps the outcome independent of which save path each answer
	// arrived through.
	var score float64
	graded := make([]GradedAnswer, 0, len(questions))
	allAutoGradable := true
	for _, q := range questions {
		if !grading.AutoGradable(q.Type) {
			allAutoGradable = false
		}
		var value any
		if a, ok := answerByQuestion[q.ID]; ok {
			value = a.Value
		}
		res := grading.Grade(q, value)
		earned := 0.0
		if res.PointsAwarded != nil {
			earned = *res.PointsAwarded
		}
		score += earned
		graded = append(graded, GradedAnswer{
			QuestionID:   q.ID,
			Answer:       value,
			IsCorrect:    res.IsCorrect,
			EarnedPoints: earned,
		})
		if a, ok := answerByQuestion[q.ID]; ok {
			if !resultsEqual(res, a) {
				a.IsCorrect = res.IsCorrect
				a.PointsAwarded = res.PointsAwarded
				if err := s.store.UpsertAnswer(a); err != nil {
					return SubmitResult{}, err
				}
			}
		}
	}
	totalPoints := grading.TotalPoints(questions)

	timeSpent := req.TimeSpent
	if timeSpent <= 0 {
		timeSpent = int(elapsed.Seconds())
	}

	// The attempt transition and the score land in one conditional write:
	// if another submit or a termination got there first, back off.
	ok, err := s.store.FinishAttempt(attempt.ID, model.AttemptSubmitted, now, timeSpent, score)
	if err != nil {
		return SubmitResult{}, err
	}
	if !ok {
		return SubmitResult{}, apperr.InvalidState("attempt was already finalized")
	}

	plagPercent, plagDetails := s.plagiarismReport(attempt, questions, answerByQuestion)

	status := model.GradingGraded
	if !allAutoGradable {
		status = model.GradingPending
	}
	submission := model.Submission{
		AttemptID:         attempt.ID,
		StudentID:         attempt.StudentID,
		Score:             score,
		TotalPoints:       totalPoints,
		Status:            status,
		PlagiarismPercent: plagPercent,
		PlagiarismDetails: plagDetails,
	}
	subID, err := s.store.CreateSubmission(submission)
	if err != nil {
		return SubmitResult{}, err
	}
	created, err := s.store.GetSubmission(subID)
	if err != nil {
		return SubmitResult{}, err
	}
	finished, err := s.store.GetAttempt(attempt.ID)
	if err != nil {
		return SubmitResult{}, err
	}

	s.emitEvent(model.MonitoringEvent{
		ExamID:      attempt.ExamID,
		StudentID:   attempt.StudentID,
		AttemptID:   attempt.ID,
		Type:        model.EventExamSubmitted,
		Severity:    model.SeverityLow,
		Description: "exam attempt submitted",
	})
	s.audit(studentID, "ATTEMPT_SUBMITTED", "submission", subID, "")

	percentage := 0.0
	if totalPoints > 0 {
		percentage = score / totalPoints * 100
	}
	return SubmitResult{
		Score:         score,
		TotalPoints:   totalPoints,
		Percentage:    percentage,
		GradedAnswers: graded,
		Submission:    created,
		Attempt:       finished,
	}, nil
}

// plagiarismReport compares the attempt's free-text answers against every
// other submitted attempt of the exam. It returns a nil percent when the
// exam has no free-text questions, and on storage failure it logs and
// degrades to nil rather than failing the submission.
func (s *Service) plagiarismReport(attempt model.Attempt, questions []model.Question, answers map[string]model.Answer) (*float64, string) {
	var freeTextIDs []string
	var own []string
	for _, q := range questions {
		if !q.Type.FreeText() {
			continue
		}
		freeTextIDs = append(freeTextIDs, q.ID)
		if a, ok := answers[q.ID]; ok {
			own = append(own, store.AnswerText(a.Value))
		}
	}
	if len(freeTextIDs) == 0 {
		return nil, ""
	}

	others, err := s.store.FreeTextsByAttempt(attempt.ExamID, freeTextIDs, attempt.StudentID)
	if err != nil {
		slog.Error("plagiarism check failed", "attempt_id", attempt.ID, "error", err)
		return nil, ""
	}
	report := plagiarism.Compare(strings.Join(own, " "), others)
	details, err := json.Marshal(report)
	if err != nil {
		slog.Error("failed to encode plagiarism report", "attempt_id", attempt.ID, "error", err)
		details = nil
	}
	percent := report.Percent
	return &percent, string(details)
}

// resultsEqual reports whether a stored answer already carries the grading
// outcome, so the submit path can skip a redundant write.
func resultsEqual(res grading.Result, a model.Answer) bool {
	return ptrEq(res.IsCorrect, a.IsCorrect) && ptrEq(res.PointsAwarded, a.PointsAwarded)
}

func ptrEq[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
