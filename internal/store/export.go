package store

import (
	"fmt"
	"time"

	"github.com/proctorly/proctord/internal/model"
)

// ExportExamResults builds the export-ready results for one exam: every
// finished attempt with its grading state and per-question answers.
func (s *Store) ExportExamResults(examID string) (model.ExamExport, error) {
	exam, err := s.GetExam(examID)
	if err != nil {
		return model.ExamExport{}, fmt.Errorf("get exam %s: %w", examID, err)
	}

	questions, err := s.GetExamQuestions(examID)
	if err != nil {
		return model.ExamExport{}, fmt.Errorf("get exam questions: %w", err)
	}
	questionByID := make(map[string]model.Question, len(questions))
	for _, q := range questions {
		questionByID[q.ID] = q
	}

	attempts, err := s.ListAttemptsByExam(examID)
	if err != nil {
		return model.ExamExport{}, fmt.Errorf("list attempts: %w", err)
	}

	var results []model.StudentResult
	for _, at := range attempts {
		if !at.Status.Terminal() {
			continue
		}

		user, err := s.GetUserByID(at.StudentID)
		if err != nil {
			return model.ExamExport{}, fmt.Errorf("get user %s: %w", at.StudentID, err)
		}

		answers, err := s.ListAnswers(at.ID)
		if err != nil {
			return model.ExamExport{}, fmt.Errorf("list answers for attempt %s: %w", at.ID, err)
		}

		var answerResults []model.AnswerResult
		for _, a := range answers {
			q := questionByID[a.QuestionID]
			answerResults = append(answerResults, model.AnswerResult{
				QuestionID:    a.QuestionID,
				Prompt:        q.Prompt,
				Type:          q.Type,
				Points:        q.Points,
				Answer:        a.Value,
				IsCorrect:     a.IsCorrect,
				PointsAwarded: a.PointsAwarded,
			})
		}

		result := model.StudentResult{
			StudentID:   at.StudentID,
			AttemptID:   at.ID,
			Status:      at.Status,
			StartedAt:   at.StartTime,
			SubmittedAt: at.EndTime,
			Answers:     answerResults,
		}
		if user != nil {
			result.Name = user.Name
			result.Email = user.Email
		}
		if at.Score != nil {
			result.Score = *at.Score
		}

		sub, err := s.GetSubmissionByAttempt(at.ID)
		if err != nil {
			return model.ExamExport{}, fmt.Errorf("get submission for attempt %s: %w", at.ID, err)
		}
		if sub != nil {
			result.Score = sub.Score
			result.TotalPoints = sub.TotalPoints
			result.GradingStatus = sub.Status
			result.PlagiarismPercent = sub.PlagiarismPercent
			if sub.TotalPoints > 0 {
				result.Percentage = sub.Score / sub.TotalPoints * 100
			}
		}

		results = append(results, result)
	}

	return model.ExamExport{
		ExamID:      exam.ID,
		Title:       exam.Title,
		GeneratedAt: time.Now(),
		Results:     results,
	}, nil
}
