package i18n

import (
	"context"
	"strings"

	"github.com/pavelanni/reflector/internal/model"
)

// componentKey turns "metacognition" into "Metacognition".
func componentKey(prefix string, c model.Component) string {
	if !c.Valid() {
		return prefix
	}
	s := string(c)
	return prefix + strings.ToUpper(s[:1]) + s[1:]
}

// FallbackFeedback is the canned coach reply used when the generator fails.
func FallbackFeedback(ctx context.Context, c model.Component) string {
	return T(ctx, componentKey("FallbackFeedback", c))
}

// FallbackFollowUp is the canned follow-up question for a component.
func FallbackFollowUp(ctx context.Context, c model.Component) string {
	return T(ctx, componentKey("FallbackFollowUp", c))
}

// FallbackCompletion is the canned end-of-session message.
func FallbackCompletion(ctx context.Context) string {
	return T(ctx, "FallbackCompletion")
}
