package model

import "time"

// ExportRecord is the derived, read-only summary of one session transcript.
type ExportRecord struct {
	UserID         LearnerID        `json:"userId" validate:"required"`
	SessionID      string           `json:"sessionId" validate:"required"`
	StartDate      time.Time        `json:"startDate" validate:"required"`
	EndDate        time.Time        `json:"endDate" validate:"required,gtefield=StartDate"`
	TotalMessages  int              `json:"totalMessages" validate:"gte=0"`
	Responses      []ResponseRow    `json:"responses" validate:"required,dive"`
	ComponentStats ComponentCounts  `json:"srlComponentStats"`
	WeeklyProgress []WeeklyProgress `json:"weeklyProgress" validate:"required,dive"`
}

// ResponseRow is one answered prompt.
type ResponseRow struct {
	PromptID  string    `json:"promptId" validate:"required"`
	Week      int       `json:"week" validate:"gte=1"`
	Component Component `json:"component" validate:"srl_component"`
	Question  string    `json:"question" validate:"required"`
	Response  string    `json:"response" validate:"required"`
	Feedback  string    `json:"feedback"`
	Timestamp time.Time `json:"timestamp" validate:"required"`
}

// ComponentCounts holds one counter per SRL component. The fixed field set
// keeps every component present in every output.
type ComponentCounts struct {
	Metacognition int `json:"metacognition" validate:"gte=0"`
	Strategy      int `json:"strategy" validate:"gte=0"`
	Motivation    int `json:"motivation" validate:"gte=0"`
	Content       int `json:"content" validate:"gte=0"`
	Management    int `json:"management" validate:"gte=0"`
}

func (c *ComponentCounts) slot(comp Component) *int {
	switch comp {
	case ComponentMetacognition:
		return &c.Metacognition
	case ComponentStrategy:
		return &c.Strategy
	case ComponentMotivation:
		return &c.Motivation
	case ComponentContent:
		return &c.Content
	case ComponentManagement:
		return &c.Management
	}
	return nil
}

// Inc increments the counter for comp. Unknown components are ignored.
func (c *ComponentCounts) Inc(comp Component) {
	if p := c.slot(comp); p != nil {
		*p++
	}
}

// Get returns the counter for comp.
func (c ComponentCounts) Get(comp Component) int {
	if p := c.slot(comp); p != nil {
		return *p
	}
	return 0
}

// ComponentCount pairs a component with its counter.
type ComponentCount struct {
	Component Component
	Count     int
}

// Ordered returns all counters in canonical component order.
func (c ComponentCounts) Ordered() []ComponentCount {
	out := make([]ComponentCount, 0, len(Components))
	for _, comp := range Components {
		out = append(out, ComponentCount{Component: comp, Count: c.Get(comp)})
	}
	return out
}

// Total returns the sum of all counters.
func (c ComponentCounts) Total() int {
	return c.Metacognition + c.Strategy + c.Motivation + c.Content + c.Management
}

// WeeklyProgress summarizes the responses of a single week.
type WeeklyProgress struct {
	Week                  int         `json:"week" validate:"gte=1"`
	PromptsCompleted      int         `json:"promptsCompleted" validate:"gte=1"`
	AverageResponseLength float64     `json:"averageResponseLength" validate:"gte=0"`
	ComponentsCovered     []Component `json:"componentsCovered" validate:"required,min=1,dive,srl_component"`
}

// Archive is a persisted export record.
type Archive struct {
	ID         string       `json:"id"`
	SessionID  string       `json:"sessionId"`
	UserID     LearnerID    `json:"userId"`
	ArchivedAt time.Time    `json:"archivedAt"`
	Record     ExportRecord `json:"exportData"`
}

// ArchiveSummary is the list view of an archive.
type ArchiveSummary struct {
	ID             string           `json:"id"`
	SessionID      string           `json:"sessionId"`
	UserID         LearnerID        `json:"userId"`
	Timestamp      time.Time        `json:"timestamp"`
	Date           string           `json:"date"`
	TotalMessages  int              `json:"totalMessages"`
	Responses      int              `json:"responses"`
	ComponentStats ComponentCounts  `json:"srlComponentStats"`
	WeeklyProgress []WeeklyProgress `json:"weeklyProgress"`
}

// Summary builds the list view of a.
func (a Archive) Summary() ArchiveSummary {
	return ArchiveSummary{
		ID:             a.ID,
		SessionID:      a.SessionID,
		UserID:         a.UserID,
		Timestamp:      a.ArchivedAt,
		Date:           a.ArchivedAt.UTC().Format(time.DateOnly),
		TotalMessages:  a.Record.TotalMessages,
		Responses:      len(a.Record.Responses),
		ComponentStats: a.Record.ComponentStats,
		WeeklyProgress: a.Record.WeeklyProgress,
	}
}

// WeekCount is the number of prompt responses recorded for a week.
type WeekCount struct {
	Week  int `json:"week"`
	Count int `json:"count"`
}

// Analytics aggregates activity across all sessions.
type Analytics struct {
	TotalSessions  int         `json:"totalSessions"`
	TotalArchives  int         `json:"totalArchives"`
	TotalResponses int         `json:"totalResponses"`
	ActiveUsers    int         `json:"activeUsers"`
	WeeklyStats    []WeekCount `json:"weeklyStats"`
}
