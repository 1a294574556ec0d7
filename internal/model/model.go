package model

import (
	"time"
)

// Component is one of the five self-regulated learning components a prompt targets.
type Component string

const (
	ComponentMetacognition Component = "metacognition"
	ComponentStrategy      Component = "strategy"
	ComponentMotivation    Component = "motivation"
	ComponentContent       Component = "content"
	ComponentManagement    Component = "management"
)

// Components lists every SRL component in canonical output order.
var Components = [...]Component{
	ComponentMetacognition,
	ComponentStrategy,
	ComponentMotivation,
	ComponentContent,
	ComponentManagement,
}

// Valid reports whether c is a member of the component enumeration.
func (c Component) Valid() bool {
	for _, k := range Components {
		if k == c {
			return true
		}
	}
	return false
}

// ResponseType is the kind of answer a prompt expects.
type ResponseType string

const (
	TypeMultipleChoice  ResponseType = "multiple-choice"
	TypeOpenEnded       ResponseType = "open-ended"
	TypeSlider          ResponseType = "slider"
	TypeYesNo           ResponseType = "yes-no"
	TypeAcknowledgement ResponseType = "acknowledgement"
)

// Valid reports whether t is a known response type.
func (t ResponseType) Valid() bool {
	switch t {
	case TypeMultipleChoice, TypeOpenEnded, TypeSlider, TypeYesNo, TypeAcknowledgement:
		return true
	}
	return false
}

// Prompt is a reflection prompt from the catalog.
type Prompt struct {
	ID          string       `json:"id" validate:"required"`
	Week        int          `json:"week" validate:"gte=1"`
	Component   Component    `json:"component" validate:"srl_component"`
	Title       string       `json:"title" validate:"required"`
	Question    string       `json:"question" validate:"required"`
	Type        ResponseType `json:"type" validate:"response_type"`
	Options     []string     `json:"options,omitempty"`
	MinValue    *float64     `json:"minValue,omitempty"`
	MaxValue    *float64     `json:"maxValue,omitempty"`
	Description string       `json:"description,omitempty"`
}

// WeekData groups the prompts of one course week under its theme.
type WeekData struct {
	Week        int      `json:"week"`
	Theme       string   `json:"theme"`
	Description string   `json:"description"`
	Prompts     []Prompt `json:"prompts"`
}

// LearnerID identifies the learner a session belongs to. It is resolved
// before a session is exported and is the only key aggregation uses.
type LearnerID string

// Sender tells who produced a transcript turn.
type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// Turn is one entry of a session transcript. PromptID, Response and Feedback
// are empty when absent.
type Turn struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Sender    Sender    `json:"sender"`
	Content   string    `json:"content"`
	PromptID  string    `json:"promptId,omitempty"`
	Response  string    `json:"response,omitempty"`
	Feedback  string    `json:"feedback,omitempty"`
}

// IsPromptResponse reports whether the turn is a learner answer to a prompt.
func (t Turn) IsPromptResponse() bool {
	return t.Sender == SenderUser && t.PromptID != "" && t.Response != ""
}

// IsPromptFeedback reports whether the turn is bot feedback on a prompt answer.
func (t Turn) IsPromptFeedback() bool {
	return t.Sender == SenderBot && t.PromptID != "" && t.Feedback != ""
}

// Session is a single learner conversation.
type Session struct {
	ID          string    `json:"id"`
	UserID      LearnerID `json:"userId"`
	CurrentWeek int       `json:"currentWeek"`
	ChatHistory []Turn    `json:"chatHistory"`
	CreatedAt   time.Time `json:"createdAt"`
	LastActive  time.Time `json:"lastActive"`
	Archived    bool      `json:"isArchived"`
}

// SessionSummary is the list view of a session.
type SessionSummary struct {
	ID          string    `json:"id"`
	UserID      LearnerID `json:"userId"`
	CurrentWeek int       `json:"currentWeek"`
	CreatedAt   time.Time `json:"createdAt"`
	LastActive  time.Time `json:"lastActive"`
	Archived    bool      `json:"isArchived"`
	Messages    int       `json:"messages"`
}

// ServeConfig holds runtime parameters set via CLI flags.
type ServeConfig struct {
	Lang          string
	LLMTimeout    time.Duration
	RetryAttempts uint
	RetryDelay    time.Duration
}
