// Package grading implements the auto-grading rules as pure functions over
// plain data, independent of any storage.
//
// MCQ and TRUE_FALSE answers are compared after reducing both sides to the
// same canonical string form, so a submitted index 2, "2" or " 2 " all grade
// identically on every submission path. MULTIPLE_SELECT is not auto-graded:
// it flows through ungraded for manual review. SHORT_ANSWER and ESSAY are
// never auto-graded; they carry zero points until a reviewer awards some.
package grading

import (
	"strconv"
	"strings"

	"github.com/proctorly/proctord/internal/model"
)

// Result is the grading verdict for one answer. Nil IsCorrect means the
// answer is not auto-gradable; nil PointsAwarded means no points decision
// was made (pending manual grading).
type Result struct {
	IsCorrect     *bool
	PointsAwarded *float64
}

// Grade evaluates a submitted answer value against a question.
func Grade(q model.Question, value any) Result {
	switch q.Type {
	case model.TypeMCQ, model.TypeTrueFalse:
		correct := strings.EqualFold(Canonical(value), Canonical(q.CorrectAnswer))
		points := 0.0
		if correct {
			points = q.Points
		}
		return Result{IsCorrect: &correct, PointsAwarded: &points}
	case model.TypeShortAnswer, model.TypeEssay:
		// Always routed to manual grading; zero points until a reviewer
		// awards some.
		zero := 0.0
		return Result{PointsAwarded: &zero}
	default:
		// MULTIPLE_SELECT (and anything unknown) is not auto-graded.
		return Result{}
	}
}

// AutoGradable reports whether answers of this type receive an automatic
// correctness verdict.
func AutoGradable(t model.QuestionType) bool {
	return t == model.TypeMCQ || t == model.TypeTrueFalse
}

// Canonical reduces an answer value to its canonical string form: trimmed
// strings, numbers without trailing zeros, booleans as "true"/"false", and
// list values joined by a single space.
func Canonical(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case []string:
		parts := make([]string, 0, len(v))
		for _, s := range v {
			parts = append(parts, strings.TrimSpace(s))
		}
		return strings.Join(parts, " ")
	case []any:
		parts := make([]string, 0, len(v))
		for _, e := range v {
			parts = append(parts, Canonical(e))
		}
		return strings.Join(parts, " ")
	default:
		return ""
	}
}

// TotalPoints sums the point value of every question, regardless of type.
func TotalPoints(questions []model.Question) float64 {
	var total float64
	for _, q := range questions {
		total += q.Points
	}
	return total
}

// SumAwarded sums pointsAwarded across answers, treating nil as zero.
func SumAwarded(answers []model.Answer) float64 {
	var total float64
	for _, a := range answers {
		if a.PointsAwarded != nil {
			total += *a.PointsAwarded
		}
	}
	return total
}
