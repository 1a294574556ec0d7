package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/pavelanni/reflector/internal/llm/prompts"
	"github.com/pavelanni/reflector/internal/model"
)

// DefaultModel is used when no model name is configured.
const DefaultModel = "gpt-4o-mini"

// ErrEmptyResponse is returned when the API answers without usable content.
var ErrEmptyResponse = errors.New("LLM returned an empty response")

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api   *openai.Client
	model string
	lang  string
}

// New creates a new LLM client. lang selects the reply language.
func New(baseURL, apiKey, modelName, lang string) *Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	if modelName == "" {
		modelName = DefaultModel
	}
	return &Client{
		api:   openai.NewClientWithConfig(config),
		model: modelName,
		lang:  lang,
	}
}

// Feedback asks the coach to respond to a learner's answer to p. Earlier
// turns of the conversation are sent as context.
func (c *Client) Feedback(ctx context.Context, p model.Prompt, answer string, history []model.Turn) (string, error) {
	msgs, err := prompts.Feedback(p, answer, c.lang)
	if err != nil {
		return "", err
	}
	chat := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: msgs.System},
	}
	chat = append(chat, historyMessages(history)...)
	chat = append(chat, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: msgs.User})
	return c.complete(ctx, chat, 0.7, 200)
}

// FollowUp generates a follow-up question for a component.
func (c *Client) FollowUp(ctx context.Context, component model.Component, week int, previous string) (string, error) {
	msgs, err := prompts.FollowUp(component, week, previous, c.lang)
	if err != nil {
		return "", err
	}
	return c.complete(ctx, pair(msgs), 0.8, 100)
}

// Completion generates closing tips for a finished session.
func (c *Client) Completion(ctx context.Context, history []model.Turn) (string, error) {
	msgs, err := prompts.Completion(history, c.lang)
	if err != nil {
		return "", err
	}
	return c.complete(ctx, pair(msgs), 0.7, 150)
}

func (c *Client) complete(ctx context.Context, msgs []openai.ChatCompletionMessage, temperature float32, maxTokens int) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    msgs,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("LLM API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	slog.Debug("LLM response", "model", c.model, "raw", text)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

func pair(m prompts.Messages) []openai.ChatCompletionMessage {
	return []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: m.System},
		{Role: openai.ChatMessageRoleUser, Content: m.User},
	}
}

// historyMessages maps transcript turns to chat roles, skipping empty turns.
func historyMessages(history []model.Turn) []openai.ChatCompletionMessage {
	var out []openai.ChatCompletionMessage
	for _, t := range history {
		if strings.TrimSpace(t.Content) == "" {
			continue
		}
		role := openai.ChatMessageRoleUser
		if t.Sender == model.SenderBot {
			role = openai.ChatMessageRoleAssistant
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: t.Content})
	}
	return out
}
