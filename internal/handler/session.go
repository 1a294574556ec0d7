package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/reflector/internal/catalog"
	"github.com/pavelanni/reflector/internal/i18n"
	"github.com/pavelanni/reflector/internal/model"
)

func (h *Handler) handleWeeks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.catalog.Weeks())
}

func (h *Handler) handlePrompts(w http.ResponseWriter, r *http.Request) {
	week, err := strconv.Atoi(r.URL.Query().Get("week"))
	if err != nil || week < 1 {
		writeError(w, r, http.StatusBadRequest, "ErrInvalidRequest", errors.New("week must be a positive integer"))
		return
	}
	prompts := h.catalog.ByWeek(week)
	if prompts == nil {
		prompts = []model.Prompt{}
	}
	writeJSON(w, http.StatusOK, prompts)
}

type createSessionRequest struct {
	UserID      string `json:"userId" validate:"required,max=128"`
	CurrentWeek int    `json:"currentWeek" validate:"omitempty,gte=1"`
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "ErrInvalidRequest", err)
		return
	}
	week := max(req.CurrentWeek, 1)

	sess, err := h.store.CreateSession(model.LearnerID(req.UserID), week)
	if err != nil {
		h.fail(w, r, err, "ErrSessionNotFound")
		return
	}
	if welcome := h.welcome(r, week); welcome != "" {
		turn, err := h.store.AppendTurn(sess.ID, model.Turn{Sender: model.SenderBot, Content: welcome})
		if err != nil {
			h.fail(w, r, err, "ErrSessionNotFound")
			return
		}
		sess.ChatHistory = append(sess.ChatHistory, turn)
		sess.LastActive = turn.Timestamp
	}
	writeJSON(w, http.StatusCreated, sess)
}

// welcome returns the greeting for a week, or "" when the week has no theme.
func (h *Handler) welcome(r *http.Request, week int) string {
	for _, wd := range h.catalog.Weeks() {
		if wd.Week == week && wd.Theme != "" {
			return i18n.Td(r.Context(), "WeekWelcome", map[string]any{
				"Week":        wd.Week,
				"Theme":       wd.Theme,
				"Description": wd.Description,
			})
		}
	}
	return ""
}

func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.store.ListSessions()
	if err != nil {
		h.fail(w, r, err, "ErrSessionNotFound")
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

// session loads the session named in the URL, writing the error response
// itself when it cannot.
func (h *Handler) session(w http.ResponseWriter, r *http.Request) (model.Session, bool) {
	sess, err := h.store.GetSession(chi.URLParam(r, "sessionID"))
	if err != nil {
		h.fail(w, r, err, "ErrSessionNotFound")
		return model.Session{}, false
	}
	return sess, true
}

// openSession is like session but rejects archived sessions.
func (h *Handler) openSession(w http.ResponseWriter, r *http.Request) (model.Session, bool) {
	sess, ok := h.session(w, r)
	if !ok {
		return sess, false
	}
	if sess.Archived {
		writeError(w, r, http.StatusConflict, "ErrSessionArchived", nil)
		return model.Session{}, false
	}
	return sess, true
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

type setWeekRequest struct {
	Week int `json:"week" validate:"gte=1"`
}

func (h *Handler) handleSetWeek(w http.ResponseWriter, r *http.Request) {
	var req setWeekRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "ErrInvalidRequest", err)
		return
	}
	if len(h.catalog.ByWeek(req.Week)) == 0 {
		writeError(w, r, http.StatusBadRequest, "ErrInvalidRequest", errors.New("week has no prompts"))
		return
	}
	sess, ok := h.openSession(w, r)
	if !ok {
		return
	}
	if err := h.store.SetCurrentWeek(sess.ID, req.Week); err != nil {
		h.fail(w, r, err, "ErrSessionNotFound")
		return
	}
	sess.CurrentWeek = req.Week
	writeJSON(w, http.StatusOK, sess)
}

type answerRequest struct {
	PromptID string `json:"promptId" validate:"required"`
	Response string `json:"response" validate:"required"`
}

// resolveAnswer looks up the prompt and checks the answer fits it.
func (h *Handler) resolveAnswer(w http.ResponseWriter, r *http.Request, req answerRequest) (model.Prompt, bool) {
	p, ok, err := h.catalog.Lookup(req.PromptID)
	if err != nil {
		h.fail(w, r, err, "ErrUnknownPrompt")
		return model.Prompt{}, false
	}
	if !ok {
		writeError(w, r, http.StatusBadRequest, "ErrUnknownPrompt", errors.New("unknown prompt id "+req.PromptID))
		return model.Prompt{}, false
	}
	if err := catalog.ValidateAnswer(p, req.Response); err != nil {
		writeError(w, r, http.StatusBadRequest, "ErrInvalidAnswer", err)
		return model.Prompt{}, false
	}
	return p, true
}

type respondResponse struct {
	UserTurn model.Turn `json:"userTurn"`
	BotTurn  model.Turn `json:"botTurn"`
	Fallback bool       `json:"fallback"`
}

func (h *Handler) handleRespond(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "ErrInvalidRequest", err)
		return
	}
	p, ok := h.resolveAnswer(w, r, req)
	if !ok {
		return
	}
	sess, ok := h.openSession(w, r)
	if !ok {
		return
	}

	answeredAt := h.now()
	text, fallback := h.feedback(r.Context(), p, req.Response, sess.ChatHistory)

	// The answer and its feedback are stored together so the transcript
	// never holds an answer without the reply it got.
	turns, err := h.store.AppendTurns(sess.ID,
		model.Turn{
			Timestamp: answeredAt,
			Sender:    model.SenderUser,
			Content:   req.Response,
			PromptID:  p.ID,
			Response:  req.Response,
		},
		model.Turn{
			Timestamp: h.now(),
			Sender:    model.SenderBot,
			Content:   text,
			PromptID:  p.ID,
			Feedback:  text,
		},
	)
	if err != nil {
		h.fail(w, r, err, "ErrSessionNotFound")
		return
	}
	userTurn, botTurn := turns[0], turns[1]
	writeJSON(w, http.StatusCreated, respondResponse{UserTurn: userTurn, BotTurn: botTurn, Fallback: fallback})
}

type followUpRequest struct {
	Component        model.Component `json:"component" validate:"omitempty,srl_component"`
	PreviousResponse string          `json:"previousResponse"`
}

type messageResponse struct {
	Message  string     `json:"message"`
	Turn     model.Turn `json:"turn"`
	Fallback bool       `json:"fallback"`
}

func (h *Handler) handleFollowUp(w http.ResponseWriter, r *http.Request) {
	var req followUpRequest
	if r.ContentLength != 0 {
		if err := decode(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, "ErrInvalidRequest", err)
			return
		}
	}
	sess, ok := h.openSession(w, r)
	if !ok {
		return
	}

	// Default to the most recent prompt answer.
	component, previous := req.Component, req.PreviousResponse
	for i := len(sess.ChatHistory) - 1; i >= 0; i-- {
		t := sess.ChatHistory[i]
		if !t.IsPromptResponse() {
			continue
		}
		if p, ok, err := h.catalog.Lookup(t.PromptID); err == nil && ok && component == "" {
			component = p.Component
		}
		if previous == "" {
			previous = t.Response
		}
		break
	}
	if component == "" {
		component = model.ComponentMetacognition
	}

	text, fallback := h.followUp(r.Context(), component, sess.CurrentWeek, previous)
	turn, err := h.store.AppendTurn(sess.ID, model.Turn{Sender: model.SenderBot, Content: text})
	if err != nil {
		h.fail(w, r, err, "ErrSessionNotFound")
		return
	}
	writeJSON(w, http.StatusCreated, messageResponse{Message: text, Turn: turn, Fallback: fallback})
}

func (h *Handler) handleComplete(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.openSession(w, r)
	if !ok {
		return
	}
	text, fallback := h.completion(r.Context(), sess.ChatHistory)
	turn, err := h.store.AppendTurn(sess.ID, model.Turn{Sender: model.SenderBot, Content: text})
	if err != nil {
		h.fail(w, r, err, "ErrSessionNotFound")
		return
	}
	writeJSON(w, http.StatusCreated, messageResponse{Message: text, Turn: turn, Fallback: fallback})
}

type feedbackResponse struct {
	PromptID string `json:"promptId"`
	Response string `json:"response"`
	Feedback string `json:"feedback"`
	Fallback bool   `json:"fallback"`
}

func (h *Handler) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "ErrInvalidRequest", err)
		return
	}
	p, ok := h.resolveAnswer(w, r, req)
	if !ok {
		return
	}
	text, fallback := h.feedback(r.Context(), p, req.Response, nil)
	writeJSON(w, http.StatusOK, feedbackResponse{
		PromptID: p.ID,
		Response: req.Response,
		Feedback: text,
		Fallback: fallback,
	})
}
