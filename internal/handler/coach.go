package handler

import (
	"context"
	"log/slog"

	"github.com/pavelanni/reflector/internal/i18n"
	"github.com/pavelanni/reflector/internal/model"
	"github.com/pavelanni/reflector/internal/retry"
)

// Generator produces coach messages. Implemented by *llm.Client.
type Generator interface {
	Feedback(ctx context.Context, p model.Prompt, answer string, history []model.Turn) (string, error)
	FollowUp(ctx context.Context, component model.Component, week int, previous string) (string, error)
	Completion(ctx context.Context, history []model.Turn) (string, error)
}

// generate calls fn under the configured timeout and retry policy. On failure
// it returns fallback and reports true.
func (h *Handler) generate(ctx context.Context, kind string, fn func(ctx context.Context) (string, error), fallback string) (string, bool) {
	if h.coach == nil {
		return fallback, true
	}
	if h.config.LLMTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.config.LLMTimeout)
		defer cancel()
	}
	text, err := retry.Do(ctx, h.retry, func() (string, error) {
		return fn(ctx)
	})
	if err != nil {
		slog.Warn("coach generation failed, using fallback", "kind", kind, "error", err)
		return fallback, true
	}
	return text, false
}

func (h *Handler) feedback(ctx context.Context, p model.Prompt, answer string, history []model.Turn) (string, bool) {
	return h.generate(ctx, "feedback", func(ctx context.Context) (string, error) {
		return h.coach.Feedback(ctx, p, answer, history)
	}, i18n.FallbackFeedback(ctx, p.Component))
}

func (h *Handler) followUp(ctx context.Context, c model.Component, week int, previous string) (string, bool) {
	return h.generate(ctx, "followup", func(ctx context.Context) (string, error) {
		return h.coach.FollowUp(ctx, c, week, previous)
	}, i18n.FallbackFollowUp(ctx, c))
}

func (h *Handler) completion(ctx context.Context, history []model.Turn) (string, bool) {
	return h.generate(ctx, "completion", func(ctx context.Context) (string, error) {
		return h.coach.Completion(ctx, history)
	}, i18n.FallbackCompletion(ctx))
}
