package exam

import (
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/proctorly/proctord/internal/apperr"
	"github.com/proctorly/proctord/internal/grading"
	"github.com/proctorly/proctord/internal/model"
)

// GradeOverride awards points for one answer during a grading revision.
type GradeOverride struct {
	QuestionID    string  `json:"questionId" validate:"required"`
	PointsAwarded float64 `json:"pointsAwarded" validate:"gte=0"`
}

// RevisionInput is a grading revision request. Exactly one of the three
// forms applies, in priority order: per-question grades, a direct total
// score override, or feedback alone.
type RevisionInput struct {
	Grades     []GradeOverride `json:"grades" validate:"dive"`
	TotalScore *float64        `json:"totalScore"`
	Feedback   *string         `json:"feedback"`
}

// Revise applies a grading revision to a submission. Only the exam's
// creator or an admin may revise; the permission check runs before any
// write. Per-question grades recompute the total from the stored answers;
// the recomputed total can never exceed the exam's total points because
// each override is capped at its question's value.
func (s *Service) Revise(submissionID string, reviewer model.User, in RevisionInput) (model.Submission, error) {
	sub, err := s.store.GetSubmission(submissionID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Submission{}, apperr.NotFound("submission %s not found", submissionID)
	}
	if err != nil {
		return model.Submission{}, err
	}
	attempt, err := s.store.GetAttempt(sub.AttemptID)
	if err != nil {
		return model.Submission{}, err
	}
	exam, err := s.store.GetExam(attempt.ExamID)
	if err != nil {
		return model.Submission{}, err
	}
	if reviewer.Role != model.RoleAdmin && reviewer.ID != exam.CreatedBy {
		return model.Submission{}, apperr.Forbidden("only the exam creator may revise grades")
	}

	feedback := sub.Feedback
	if in.Feedback != nil {
		feedback = *in.Feedback
	}
	now := s.now()

	switch {
	case len(in.Grades) > 0:
		questions, err := s.store.GetExamQuestions(attempt.ExamID)
		if err != nil {
			return model.Submission{}, err
		}
		questionByID := make(map[string]model.Question, len(questions))
		for _, q := range questions {
			questionByID[q.ID] = q
		}
		for _, g := range in.Grades {
			q, ok := questionByID[g.QuestionID]
			if !ok {
				return model.Submission{}, apperr.Invalid("question %s is not part of this exam", g.QuestionID)
			}
			if g.PointsAwarded > q.Points {
				return model.Submission{}, apperr.Invalid("cannot award %.1f points for a %.1f-point question", g.PointsAwarded, q.Points)
			}
			if err := s.store.UpdateAnswerPoints(attempt.ID, q.ID, g.PointsAwarded); err != nil {
				return model.Submission{}, err
			}
		}
		answers, err := s.store.ListAnswers(attempt.ID)
		if err != nil {
			return model.Submission{}, err
		}
		total := grading.SumAwarded(answers)
		if err := s.store.UpdateSubmissionGrade(sub.ID, total, model.GradingGraded, feedback, reviewer.ID, now); err != nil {
			return model.Submission{}, err
		}
		if err := s.store.UpdateAttemptScore(attempt.ID, total); err != nil {
			return model.Submission{}, err
		}

	case in.TotalScore != nil:
		if *in.TotalScore < 0 || *in.TotalScore > sub.TotalPoints {
			return model.Submission{}, apperr.Invalid("total score must be between 0 and %.1f", sub.TotalPoints)
		}
		if err := s.store.UpdateSubmissionGrade(sub.ID, *in.TotalScore, model.GradingGraded, feedback, reviewer.ID, now); err != nil {
			return model.Submission{}, err
		}
		if err := s.store.UpdateAttemptScore(attempt.ID, *in.TotalScore); err != nil {
			return model.Submission{}, err
		}

	case in.Feedback != nil:
		if err := s.store.UpdateSubmissionFeedback(sub.ID, feedback, reviewer.ID, now); err != nil {
			return model.Submission{}, err
		}

	default:
		return model.Submission{}, apperr.Invalid("revision must carry grades, a total score or feedback")
	}

	changes, _ := json.Marshal(in)
	s.audit(reviewer.ID, "SUBMISSION_REVISED", "submission", sub.ID, string(changes))

	return s.store.GetSubmission(sub.ID)
}

// ViewSubmission returns a submission to its student owner, the exam
// creator, or an admin.
func (s *Service) ViewSubmission(submissionID string, viewer model.User) (model.Submission, error) {
	sub, err := s.store.GetSubmission(submissionID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Submission{}, apperr.NotFound("submission %s not found", submissionID)
	}
	if err != nil {
		return model.Submission{}, err
	}
	if viewer.Role == model.RoleAdmin || viewer.ID == sub.StudentID {
		return sub, nil
	}
	attempt, err := s.store.GetAttempt(sub.AttemptID)
	if err != nil {
		return model.Submission{}, err
	}
	exam, err := s.store.GetExam(attempt.ExamID)
	if err != nil {
		return model.Submission{}, err
	}
	if viewer.ID != exam.CreatedBy {
		return model.Submission{}, apperr.Forbidden("no access to this submission")
	}
	return sub, nil
}
