package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/reflector/internal/archive"
	"github.com/pavelanni/reflector/internal/catalog"
	"github.com/pavelanni/reflector/internal/export"
	"github.com/pavelanni/reflector/internal/i18n"
	"github.com/pavelanni/reflector/internal/model"
	"github.com/pavelanni/reflector/internal/retry"
	"github.com/pavelanni/reflector/internal/store"
)

type stubCoach struct {
	reply         string
	err           error
	calls         int
	lastComponent model.Component
	lastPrevious  string
	lastHistory   []model.Turn
}

func (s *stubCoach) Feedback(_ context.Context, p model.Prompt, _ string, history []model.Turn) (string, error) {
	s.calls++
	s.lastComponent = p.Component
	s.lastHistory = history
	return s.reply, s.err
}

func (s *stubCoach) FollowUp(_ context.Context, c model.Component, _ int, previous string) (string, error) {
	s.calls++
	s.lastComponent = c
	s.lastPrevious = previous
	return s.reply, s.err
}

func (s *stubCoach) Completion(_ context.Context, history []model.Turn) (string, error) {
	s.calls++
	s.lastHistory = history
	return s.reply, s.err
}

// archivingCoach archives the session while feedback is being generated.
type archivingCoach struct {
	stubCoach
	st        *store.Store
	sessionID string
}

func (c *archivingCoach) Feedback(ctx context.Context, p model.Prompt, answer string, history []model.Turn) (string, error) {
	if err := c.st.MarkArchived(c.sessionID); err != nil {
		return "", err
	}
	return c.stubCoach.Feedback(ctx, p, answer, history)
}

func newTestRouter(t *testing.T, coach Generator) (http.Handler, *store.Store) {
	t.Helper()
	if err := i18n.Init("en"); err != nil {
		t.Fatalf("i18n.Init: %v", err)
	}
	st, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	cat, err := catalog.Default()
	if err != nil {
		t.Fatalf("catalog.Default: %v", err)
	}
	svc := archive.New(st, cat, retry.Config{Attempts: 1}, time.Minute)
	h := New(st, cat, svc, coach, model.ServeConfig{
		Lang:          "en",
		LLMTimeout:    time.Second,
		RetryAttempts: 2,
		RetryDelay:    time.Millisecond,
	})

	r := chi.NewRouter()
	r.Use(i18n.Middleware("en"))
	h.Routes(r)
	return r, st
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func createSession(t *testing.T, h http.Handler, user string) model.Session {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/api/sessions", fmt.Sprintf(`{"userId":%q}`, user))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create session: status %d: %s", rec.Code, rec.Body)
	}
	return decodeBody[model.Session](t, rec)
}

func TestHealthAndCatalog(t *testing.T) {
	h, _ := newTestRouter(t, nil)

	rec := do(t, h, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Errorf("healthz: %d %q", rec.Code, rec.Body)
	}

	rec = do(t, h, http.MethodGet, "/api/weeks", "")
	weeks := decodeBody[[]model.WeekData](t, rec)
	if len(weeks) != 12 {
		t.Errorf("expected 12 weeks, got %d", len(weeks))
	}

	tests := []struct {
		query      string
		wantStatus int
		wantCount  int
	}{
		{"week=3", http.StatusOK, 2},
		{"week=99", http.StatusOK, 0},
		{"week=abc", http.StatusBadRequest, 0},
		{"", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := do(t, h, http.MethodGet, "/api/prompts?"+tt.query, "")
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusOK {
				if got := decodeBody[[]model.Prompt](t, rec); len(got) != tt.wantCount {
					t.Errorf("got %d prompts, want %d", len(got), tt.wantCount)
				}
			}
		})
	}
}

func TestChatArchiveDownload(t *testing.T) {
	coach := &stubCoach{reply: "Great reflection"}
	h, _ := newTestRouter(t, coach)

	sess := createSession(t, h, "learner-1")
	if len(sess.ChatHistory) != 1 || !strings.Contains(sess.ChatHistory[0].Content, "Introduction to SRL") {
		t.Fatalf("expected a welcome turn, got %+v", sess.ChatHistory)
	}

	path := "/api/sessions/" + sess.ID
	rec := do(t, h, http.MethodPost, path+"/responses", `{"promptId":"w1-meta-1","response":"I want to improve"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("respond: status %d: %s", rec.Code, rec.Body)
	}
	resp := decodeBody[respondResponse](t, rec)
	if resp.Fallback {
		t.Error("expected generated feedback")
	}
	if resp.BotTurn.Feedback != "Great reflection" || resp.BotTurn.PromptID != "w1-meta-1" {
		t.Errorf("unexpected bot turn: %+v", resp.BotTurn)
	}
	if resp.UserTurn.Response != "I want to improve" {
		t.Errorf("unexpected user turn: %+v", resp.UserTurn)
	}
	if len(coach.lastHistory) != 1 {
		t.Errorf("coach should see the prior transcript, got %d turns", len(coach.lastHistory))
	}

	rec = do(t, h, http.MethodGet, path, "")
	got := decodeBody[model.Session](t, rec)
	if len(got.ChatHistory) != 3 {
		t.Fatalf("expected 3 turns, got %d", len(got.ChatHistory))
	}

	rec = do(t, h, http.MethodPost, path+"/archive", "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("archive: status %d: %s", rec.Code, rec.Body)
	}
	summary := decodeBody[model.ArchiveSummary](t, rec)
	if summary.Responses != 1 || summary.ComponentStats.Metacognition != 1 || summary.TotalMessages != 3 {
		t.Errorf("unexpected summary: %+v", summary)
	}

	// The session is closed for new answers once archived.
	rec = do(t, h, http.MethodPost, path+"/responses", `{"promptId":"w1-meta-1","response":"again"}`)
	if rec.Code != http.StatusConflict {
		t.Errorf("respond after archive: status %d, want 409", rec.Code)
	}

	rec = do(t, h, http.MethodGet, "/api/archive", "")
	list := decodeBody[[]model.ArchiveSummary](t, rec)
	if len(list) != 1 || list[0].ID != summary.ID {
		t.Errorf("unexpected archive list: %+v", list)
	}

	rec = do(t, h, http.MethodGet, "/api/archive/download?type=report&id="+summary.ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("download: status %d: %s", rec.Code, rec.Body)
	}
	if !strings.Contains(rec.Body.String(), "metacognition: 1 responses") {
		t.Errorf("report missing component count:\n%s", rec.Body)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/plain; charset=utf-8" {
		t.Errorf("content type = %q", ct)
	}
	cd := rec.Header().Get("Content-Disposition")
	if !strings.HasPrefix(cd, `attachment; filename="learner-1_`) || !strings.HasSuffix(cd, `_report.txt"`) {
		t.Errorf("content disposition = %q", cd)
	}

	rec = do(t, h, http.MethodGet, "/api/archive/download?id="+summary.ID, "")
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "application/json" {
		t.Errorf("default download should be JSON, got %d %q", rec.Code, rec.Header().Get("Content-Type"))
	}

	rec = do(t, h, http.MethodGet, "/api/archive/download?type=docx&id="+summary.ID, "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown type: status %d, want 400", rec.Code)
	}
	rec = do(t, h, http.MethodGet, "/api/archive/download?type=csv&id=missing", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing archive: status %d, want 404", rec.Code)
	}
}

func TestRespondValidation(t *testing.T) {
	h, _ := newTestRouter(t, &stubCoach{reply: "ok"})
	sess := createSession(t, h, "learner-1")
	path := "/api/sessions/" + sess.ID + "/responses"

	tests := []struct {
		name       string
		path       string
		body       string
		wantStatus int
	}{
		{"malformed json", path, `{"promptId":`, http.StatusBadRequest},
		{"missing response", path, `{"promptId":"w1-meta-1"}`, http.StatusBadRequest},
		{"unknown prompt", path, `{"promptId":"w99-x","response":"hi"}`, http.StatusBadRequest},
		{"option not offered", path, `{"promptId":"w1-strategy-1","response":"Sleeping"}`, http.StatusBadRequest},
		{"slider out of range", path, `{"promptId":"w2-meta-1","response":"11"}`, http.StatusBadRequest},
		{"unknown session", "/api/sessions/missing/responses", `{"promptId":"w1-meta-1","response":"hi"}`, http.StatusNotFound},
		{"valid slider", path, `{"promptId":"w2-meta-1","response":"7"}`, http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, tt.path, tt.body)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body)
			}
			if rec.Code >= 400 {
				if e := decodeBody[errorResponse](t, rec); e.Error == "" {
					t.Error("expected a localized error message")
				}
			}
		})
	}
}

func TestFeedbackFallback(t *testing.T) {
	coach := &stubCoach{err: errors.New("model overloaded")}
	h, _ := newTestRouter(t, coach)

	rec := do(t, h, http.MethodPost, "/api/feedback", `{"promptId":"w1-strategy-1","response":"Practice problems"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body)
	}
	resp := decodeBody[feedbackResponse](t, rec)
	if !resp.Fallback {
		t.Error("expected fallback feedback")
	}
	if !strings.HasPrefix(resp.Feedback, "Great job thinking about your study methods!") {
		t.Errorf("unexpected fallback text %q", resp.Feedback)
	}
	if coach.calls != 2 {
		t.Errorf("expected 2 attempts, got %d", coach.calls)
	}
}

func TestNoCoachConfigured(t *testing.T) {
	h, _ := newTestRouter(t, nil)
	sess := createSession(t, h, "learner-1")

	rec := do(t, h, http.MethodPost, "/api/sessions/"+sess.ID+"/complete", "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("status %d: %s", rec.Code, rec.Body)
	}
	resp := decodeBody[messageResponse](t, rec)
	if !resp.Fallback || !strings.Contains(resp.Message, "Great work completing your session") {
		t.Errorf("unexpected completion: %+v", resp)
	}
}

func TestFollowUpDefaultsToLastAnswer(t *testing.T) {
	coach := &stubCoach{reply: "Tell me more!"}
	h, _ := newTestRouter(t, coach)
	sess := createSession(t, h, "learner-1")
	path := "/api/sessions/" + sess.ID

	rec := do(t, h, http.MethodPost, path+"/responses", `{"promptId":"w1-strategy-1","response":"Practice problems"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("respond: %d %s", rec.Code, rec.Body)
	}

	rec = do(t, h, http.MethodPost, path+"/followup", "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("followup: %d %s", rec.Code, rec.Body)
	}
	resp := decodeBody[messageResponse](t, rec)
	if resp.Message != "Tell me more!" || resp.Turn.Sender != model.SenderBot {
		t.Errorf("unexpected follow-up: %+v", resp)
	}
	if coach.lastComponent != model.ComponentStrategy || coach.lastPrevious != "Practice problems" {
		t.Errorf("follow-up context: component %q, previous %q", coach.lastComponent, coach.lastPrevious)
	}

	rec = do(t, h, http.MethodPost, path+"/followup", `{"component":"motivation","previousResponse":"meh"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("followup: %d %s", rec.Code, rec.Body)
	}
	if coach.lastComponent != model.ComponentMotivation || coach.lastPrevious != "meh" {
		t.Errorf("explicit follow-up context ignored: %q %q", coach.lastComponent, coach.lastPrevious)
	}

	rec = do(t, h, http.MethodPost, path+"/followup", `{"component":"feelings"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid component: status %d, want 400", rec.Code)
	}
}

func TestSetWeek(t *testing.T) {
	h, _ := newTestRouter(t, nil)
	sess := createSession(t, h, "learner-1")
	path := "/api/sessions/" + sess.ID + "/week"

	rec := do(t, h, http.MethodPut, path, `{"week":5}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body)
	}
	if got := decodeBody[model.Session](t, rec); got.CurrentWeek != 5 {
		t.Errorf("currentWeek = %d, want 5", got.CurrentWeek)
	}

	if rec := do(t, h, http.MethodPut, path, `{"week":40}`); rec.Code != http.StatusBadRequest {
		t.Errorf("week without prompts: status %d, want 400", rec.Code)
	}
	if rec := do(t, h, http.MethodPut, "/api/sessions/missing/week", `{"week":2}`); rec.Code != http.StatusNotFound {
		t.Errorf("missing session: status %d, want 404", rec.Code)
	}
}

func TestArchivePostedSession(t *testing.T) {
	h, _ := newTestRouter(t, nil)

	body := `{"session":{
		"id":"external-1","userId":"learner-9",
		"createdAt":"2024-03-04T10:00:00Z","lastActive":"2024-03-04T10:30:00Z",
		"chatHistory":[
			{"id":"a","timestamp":"2024-03-04T10:01:00Z","sender":"user","content":"He said, \"ok\"","promptId":"w4-content-1","response":"He said, \"ok\""},
			{"id":"b","timestamp":"2024-03-04T10:02:00Z","sender":"user","content":"x","promptId":"nope","response":"x"}
		]}}`
	rec := do(t, h, http.MethodPost, "/api/archive", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status %d: %s", rec.Code, rec.Body)
	}
	summary := decodeBody[model.ArchiveSummary](t, rec)
	if summary.Responses != 1 || summary.ComponentStats.Content != 1 || summary.TotalMessages != 2 {
		t.Errorf("unexpected summary: %+v", summary)
	}

	rec = do(t, h, http.MethodGet, "/api/archive/download?type=csv&id="+summary.ID, "")
	if !strings.Contains(rec.Body.String(), `"He said, ""ok"""`) {
		t.Errorf("CSV not escaped:\n%s", rec.Body)
	}

	rec = do(t, h, http.MethodPost, "/api/archive", `{"session":{"id":"x"}}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("session without user: status %d, want 400", rec.Code)
	}
}

func TestAnalytics(t *testing.T) {
	h, _ := newTestRouter(t, &stubCoach{reply: "ok"})
	s1 := createSession(t, h, "learner-1")
	createSession(t, h, "learner-2")
	do(t, h, http.MethodPost, "/api/sessions/"+s1.ID+"/responses", `{"promptId":"w3-strategy-1","response":"yes"}`)
	do(t, h, http.MethodPost, "/api/sessions/"+s1.ID+"/archive", "")

	rec := do(t, h, http.MethodGet, "/api/analytics", "")
	a := decodeBody[model.Analytics](t, rec)
	if a.TotalSessions != 2 || a.ActiveUsers != 2 || a.TotalArchives != 1 || a.TotalResponses != 1 {
		t.Errorf("unexpected analytics: %+v", a)
	}
	if len(a.WeeklyStats) != 1 || a.WeeklyStats[0] != (model.WeekCount{Week: 3, Count: 1}) {
		t.Errorf("unexpected weekly stats: %+v", a.WeeklyStats)
	}
}

func TestErrorMapping(t *testing.T) {
	if err := i18n.Init("en"); err != nil {
		t.Fatalf("i18n.Init: %v", err)
	}
	handler := &Handler{}

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantDetail bool
	}{
		{"not found", fmt.Errorf("session x: %w", store.ErrNotFound), http.StatusNotFound, true},
		{"archived", store.ErrSessionArchived, http.StatusConflict, true},
		{"invalid record", fmt.Errorf("%w: userId is required", export.ErrInvalidRecord), http.StatusBadRequest, true},
		{"unknown format", export.ErrUnknownFormat, http.StatusBadRequest, true},
		{"catalog unavailable", fmt.Errorf("%w: lookup", export.ErrCatalogUnavailable), http.StatusInternalServerError, false},
		{"persistence", fmt.Errorf("%w: disk full", archive.ErrPersistence), http.StatusServiceUnavailable, false},
		{"other", errors.New("boom"), http.StatusInternalServerError, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			handler.fail(rec, req, tt.err, "ErrSessionNotFound")
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			e := decodeBody[errorResponse](t, rec)
			if (e.Detail != "") != tt.wantDetail {
				t.Errorf("detail = %q, wantDetail %v", e.Detail, tt.wantDetail)
			}
		})
	}

	rec := httptest.NewRecorder()
	handler.fail(rec, httptest.NewRequest(http.MethodGet, "/", nil), archive.ErrPersistence, "ErrSessionNotFound")
	if e := decodeBody[errorResponse](t, rec); !strings.Contains(e.Error, "computed but could not be saved") {
		t.Errorf("persistence message = %q", e.Error)
	}
}

func TestArchiveStoredSessionTwice(t *testing.T) {
	h, _ := newTestRouter(t, &stubCoach{reply: "Nice"})
	sess := createSession(t, h, "learner-1")
	path := "/api/sessions/" + sess.ID

	rec := do(t, h, http.MethodPost, path+"/responses", `{"promptId":"w1-meta-1","response":"I want to improve"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("respond: status %d: %s", rec.Code, rec.Body)
	}

	first := do(t, h, http.MethodPost, path+"/archive", "")
	second := do(t, h, http.MethodPost, path+"/archive", "")
	if first.Code != http.StatusCreated || second.Code != http.StatusCreated {
		t.Fatalf("archive twice: statuses %d, %d", first.Code, second.Code)
	}
	a := decodeBody[model.ArchiveSummary](t, first)
	b := decodeBody[model.ArchiveSummary](t, second)
	if a.ID == b.ID {
		t.Error("expected a new archive entry on re-export")
	}
	if a.Responses != b.Responses || a.ComponentStats != b.ComponentStats {
		t.Errorf("re-export differs: %+v vs %+v", a, b)
	}

	rec = do(t, h, http.MethodGet, "/api/archive", "")
	if list := decodeBody[[]model.ArchiveSummary](t, rec); len(list) != 2 {
		t.Errorf("expected 2 archives, got %d", len(list))
	}
}

func TestRespondStoresNothingWhenFeedbackCannotBeSaved(t *testing.T) {
	coach := &archivingCoach{stubCoach: stubCoach{reply: "Nice"}}
	h, st := newTestRouter(t, coach)
	sess := createSession(t, h, "learner-1")
	coach.st, coach.sessionID = st, sess.ID

	rec := do(t, h, http.MethodPost, "/api/sessions/"+sess.ID+"/responses", `{"promptId":"w1-meta-1","response":"I want to improve"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status %d, want 409: %s", rec.Code, rec.Body)
	}

	got, err := st.GetSession(sess.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if len(got.ChatHistory) != 1 {
		t.Errorf("expected only the welcome turn, got %+v", got.ChatHistory)
	}
}
