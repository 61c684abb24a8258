package grading

import (
	"testing"

	"github.com/proctorly/proctord/internal/model"
)

func TestGradeChoice(t *testing.T) {
	mcq := model.Question{Type: model.TypeMCQ, CorrectAnswer: "2", Points: 5}
	tf := model.Question{Type: model.TypeTrueFalse, CorrectAnswer: "true", Points: 2}

	tests := []struct {
		name        string
		question    model.Question
		value       any
		wantCorrect bool
		wantPoints  float64
	}{
		{"exact string", mcq, "2", true, 5},
		{"numeric value", mcq, 2, true, 5},
		{"float value", mcq, 2.0, true, 5},
		{"whitespace", mcq, "  2  ", true, 5},
		{"wrong option", mcq, "3", false, 0},
		{"empty", mcq, "", false, 0},
		{"nil", mcq, nil, false, 0},
		{"boolean true", tf, true, true, 2},
		{"string true", tf, "true", true, 2},
		{"case insensitive", tf, "TRUE", true, 2},
		{"boolean false", tf, false, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Grade(tt.question, tt.value)
			if res.IsCorrect == nil {
				t.Fatal("choice questions must get a correctness verdict")
			}
			if *res.IsCorrect != tt.wantCorrect {
				t.Errorf("IsCorrect = %v, want %v", *res.IsCorrect, tt.wantCorrect)
			}
			if res.PointsAwarded == nil || *res.PointsAwarded != tt.wantPoints {
				t.Errorf("PointsAwarded = %v, want %v", res.PointsAwarded, tt.wantPoints)
			}
		})
	}
}

func TestGradeFreeText(t *testing.T) {
	for _, qt := range []model.QuestionType{model.TypeShortAnswer, model.TypeEssay} {
		q := model.Question{Type: qt, Points: 10}
		res := Grade(q, "an answer")
		if res.IsCorrect != nil {
			t.Errorf("%s: free text must not get a verdict, got %v", qt, *res.IsCorrect)
		}
		if res.PointsAwarded == nil || *res.PointsAwarded != 0 {
			t.Errorf("%s: free text carries zero points until reviewed, got %v", qt, res.PointsAwarded)
		}
	}
}

func TestGradeMultipleSelect(t *testing.T) {
	q := model.Question{Type: model.TypeMultipleSelect, CorrectAnswer: "a b", Points: 4}
	res := Grade(q, []string{"a", "b"})
	if res.IsCorrect != nil || res.PointsAwarded != nil {
		t.Errorf("multiple select is not auto-graded, got %+v", res)
	}
}

func TestCanonical(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  string
	}{
		{"string", " hello ", "hello"},
		{"int", 42, "42"},
		{"int64", int64(7), "7"},
		{"float no trailing zeros", 2.0, "2"},
		{"float fraction", 2.5, "2.5"},
		{"bool", true, "true"},
		{"nil", nil, ""},
		{"string slice", []string{" a", "b "}, "a b"},
		{"any slice", []any{1, "x", true}, "1 x true"},
		{"unknown type", struct{}{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Canonical(tt.value); got != tt.want {
				t.Errorf("Canonical(%v) = %q, want %q", tt.value, got, tt.want)
			}
		})
	}
}

func TestTotals(t *testing.T) {
	questions := []model.Question{
		{Points: 5}, {Points: 2.5}, {Points: 0},
	}
	if got := TotalPoints(questions); got != 7.5 {
		t.Errorf("TotalPoints = %v, want 7.5", got)
	}

	p1, p2 := 3.0, 1.5
	answers := []model.Answer{
		{PointsAwarded: &p1},
		{PointsAwarded: nil},
		{PointsAwarded: &p2},
	}
	if got := SumAwarded(answers); got != 4.5 {
		t.Errorf("SumAwarded = %v, want 4.5", got)
	}
}
