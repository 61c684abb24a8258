// Package assist suggests scores and feedback for free-text answers using an
// OpenAI-compatible API. Suggestions are advisory input for manual grading;
// nothing here writes to the store or changes a submission.
package assist

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/proctorly/proctord/internal/model"

	openai "github.com/sashabaranov/go-openai"
)

// Suggestion holds the model's assessment of a single free-text answer.
type Suggestion struct {
	Score     float64 `json:"score"`
	MaxPoints float64 `json:"max_points"`
	Feedback  string  `json:"feedback"`
}

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api   *openai.Client
	model string
}

// New creates a new assist client. An empty baseURL uses the OpenAI default.
func New(baseURL, apiKey, modelName string) *Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:   openai.NewClientWithConfig(config),
		model: modelName,
	}
}

// SuggestScore asks the model to assess a student's free-text answer against
// the question and propose a score with feedback.
func (c *Client) SuggestScore(ctx context.Context, question model.Question, answerText string) (*Suggestion, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: buildReviewPrompt(question)},
			{Role: openai.ChatMessageRoleUser, Content: answerText},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.1,
	})
	if err != nil {
		return nil, fmt.Errorf("assist API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("assist returned no choices")
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("assist response", "raw", raw)

	var suggestion Suggestion
	if err := json.Unmarshal([]byte(raw), &suggestion); err != nil {
		return nil, fmt.Errorf("parse assist response: %w (raw: %s)", err, raw)
	}
	if suggestion.Score < 0 {
		suggestion.Score = 0
	}
	if suggestion.Score > question.Points {
		suggestion.Score = question.Points
	}
	suggestion.MaxPoints = question.Points
	return &suggestion, nil
}

// Ping makes a minimal request to verify the API is reachable.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: "ping"},
		},
		MaxTokens: 1,
	})
	return err
}

func buildReviewPrompt(q model.Question) string {
	var sb strings.Builder
	sb.WriteString("You are assisting a human grader reviewing an exam answer. ")
	sb.WriteString("The student answered the following question:\n\n")
	sb.WriteString("QUESTION: " + q.Prompt + "\n\n")
	sb.WriteString(fmt.Sprintf("MAX POINTS: %.1f\n\n", q.Points))
	sb.WriteString("INSTRUCTIONS:\n")
	sb.WriteString("- Assess the answer for correctness, completeness, and clarity.\n")
	sb.WriteString("- Propose a score between 0 and the maximum points.\n")
	sb.WriteString("- Your proposal is a suggestion only; a human grader makes the final call.\n")
	sb.WriteString("\nRespond ONLY with a JSON object with these fields:\n")
	sb.WriteString(`{"score": <number 0 to max_points>, "max_points": <max_points>, "feedback": "<brief feedback for the grader>"}`)
	sb.WriteString("\n")
	return sb.String()
}
