package assist

import (
	"strings"
	"testing"

	"github.com/proctorly/proctord/internal/model"
)

func TestBuildReviewPrompt(t *testing.T) {
	q := model.Question{
		Prompt: "Explain how a goroutine differs from an OS thread.",
		Type:   model.TypeEssay,
		Points: 10,
	}

	prompt := buildReviewPrompt(q)
	if !strings.Contains(prompt, q.Prompt) {
		t.Error("prompt should contain the question text")
	}
	if !strings.Contains(prompt, "MAX POINTS: 10.0") {
		t.Error("prompt should state the maximum points")
	}
	if !strings.Contains(prompt, "suggestion only") {
		t.Error("prompt should mark the score as advisory")
	}
	if !strings.Contains(prompt, `"score"`) {
		t.Error("prompt should request a JSON score field")
	}
}
