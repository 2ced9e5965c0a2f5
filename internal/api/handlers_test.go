// Vigil - Faculty Presence Monitoring and Alert Lifecycle Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package api

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/vigil/internal/alerting"
	"github.com/tomtom215/vigil/internal/intake"
	"github.com/tomtom215/vigil/internal/presence"
	"github.com/tomtom215/vigil/internal/roster"
	"github.com/tomtom215/vigil/internal/websocket"
)

// envelope mirrors APIResponse with a raw payload for per-test decoding.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
	Meta    *APIMeta        `json:"meta"`
}

type testAPI struct {
	router  http.Handler
	store   *alerting.Store
	engine  *alerting.Engine
	tracker *presence.Tracker
}

func newTestAPI(t *testing.T, cfg RouterConfig) *testAPI {
	t.Helper()

	ros := roster.New(
		[]roster.Subject{
			{ID: "fac-001", Name: "Dr. Ada Chen", Department: "Computer Science"},
			{ID: "fac-002", Name: "Dr. Raj Patel", Department: "Mathematics"},
		},
		[]roster.Camera{
			{ID: "cam-lobby", Location: "Lobby"},
			{ID: "cam-lab", Location: "Research Lab"},
		},
	)

	svc := intake.New(ros, intake.DefaultConfig())
	store := alerting.NewStore(nil)
	engine := alerting.NewEngine(store, alerting.DefaultConfig())
	tracker := presence.NewTracker(10*time.Minute, ros)
	hub := websocket.NewHub()

	process := func(ev *intake.Event) {
		if ch := tracker.Observe(ev); ch != nil {
			engine.HandlePresenceChange(ch)
		}
		engine.HandleEvent(ev)
	}

	h := NewHandler(svc, store, engine, tracker, ros, hub, process, 20, 100)
	return &testAPI{
		router:  NewRouter(h, cfg),
		store:   store,
		engine:  engine,
		tracker: tracker,
	}
}

func (a *testAPI) do(t *testing.T, method, target string, body interface{}) (*httptest.ResponseRecorder, *envelope) {
	t.Helper()

	var rd *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		rd = bytes.NewReader(data)
	} else {
		rd = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, target, rd)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("unmarshal response %q: %v", rec.Body.String(), err)
		}
	}
	return rec, &env
}

func recognizedBody(cameraID, subjectID string) map[string]interface{} {
	return map[string]interface{}{
		"camera_id":   cameraID,
		"kind":        "recognized",
		"subject_id":  subjectID,
		"confidence":  0.95,
		"captured_at": time.Now().UTC().Format(time.RFC3339Nano),
	}
}

func TestSubmitEventAccepted(t *testing.T) {
	api := newTestAPI(t, RouterConfig{})

	rec, env := api.do(t, http.MethodPost, "/api/v1/events", recognizedBody("cam-lobby", "fac-001"))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if !env.Success {
		t.Fatal("expected success envelope")
	}

	var ev intake.Event
	if err := json.Unmarshal(env.Data, &ev); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if ev.SubjectName != "Dr. Ada Chen" || ev.Location != "Lobby" {
		t.Errorf("event not enriched: %+v", ev)
	}

	// The pipeline marked the subject present.
	if st, ok := api.tracker.State("fac-001"); !ok || st.Status != presence.StatusPresent {
		t.Errorf("presence state = %+v", st)
	}
}

func TestSubmitEventDuplicate(t *testing.T) {
	api := newTestAPI(t, RouterConfig{})

	body := recognizedBody("cam-lobby", "fac-001")
	if rec, _ := api.do(t, http.MethodPost, "/api/v1/events", body); rec.Code != http.StatusAccepted {
		t.Fatalf("first submission status = %d", rec.Code)
	}

	rec, env := api.do(t, http.MethodPost, "/api/v1/events", body)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("duplicate status = %d", rec.Code)
	}
	var dup struct {
		Duplicate bool `json:"duplicate"`
	}
	if err := json.Unmarshal(env.Data, &dup); err != nil || !dup.Duplicate {
		t.Errorf("expected duplicate marker, data = %s", env.Data)
	}
}

func TestSubmitEventInvalid(t *testing.T) {
	api := newTestAPI(t, RouterConfig{})

	rec, env := api.do(t, http.MethodPost, "/api/v1/events", recognizedBody("cam-ghost", "fac-001"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if env.Error == nil || env.Error.Code != ErrCodeInvalidEvent {
		t.Fatalf("error = %+v", env.Error)
	}
	details, ok := env.Error.Details.(map[string]interface{})
	if !ok || details["reason"] != intake.ReasonUnknownCamera {
		t.Errorf("details = %#v", env.Error.Details)
	}
}

func TestSubmitEventMalformedJSON(t *testing.T) {
	api := newTestAPI(t, RouterConfig{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/events", strings.NewReader("{nope"))
	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rec.Code)
	}
}

func seedAlerts(t *testing.T, api *testAPI) (active, resolved *alerting.Alert) {
	t.Helper()

	a1, created := api.store.CreateOrGet(&alerting.Alert{
		Type:        alerting.TypeAbsence,
		Priority:    alerting.PriorityMedium,
		SubjectID:   "fac-001",
		SubjectName: "Dr. Ada Chen",
		Description: "Dr. Ada Chen not seen for over 2 hours",
	})
	if !created {
		t.Fatal("seed alert not created")
	}

	a2, created := api.store.CreateOrGet(&alerting.Alert{
		Type:        alerting.TypeUnknownPerson,
		Priority:    alerting.PriorityMedium,
		CameraID:    "cam-lab",
		Location:    "Research Lab",
		Description: "Unknown person detected at Research Lab",
	})
	if !created {
		t.Fatal("seed alert not created")
	}
	if _, err := api.store.Transition(a2.ID, alerting.StatusResolved, alerting.ModeOperator); err != nil {
		t.Fatalf("resolve seed: %v", err)
	}
	return a1, a2
}

func TestListAlerts(t *testing.T) {
	api := newTestAPI(t, RouterConfig{})
	active, _ := seedAlerts(t, api)

	rec, env := api.do(t, http.MethodGet, "/api/v1/alerts?status=active", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var alerts []*alerting.Alert
	if err := json.Unmarshal(env.Data, &alerts); err != nil {
		t.Fatalf("decode alerts: %v", err)
	}
	if len(alerts) != 1 || alerts[0].ID != active.ID {
		t.Errorf("alerts = %+v", alerts)
	}

	if env.Meta == nil || env.Meta.Pagination == nil {
		t.Fatal("missing pagination meta")
	}
	p := env.Meta.Pagination
	if p.Total != 1 || p.Count != 1 || p.HasMore {
		t.Errorf("pagination = %+v", p)
	}
}

func TestListAlertsRejectsBadFilter(t *testing.T) {
	api := newTestAPI(t, RouterConfig{})

	rec, env := api.do(t, http.MethodGet, "/api/v1/alerts?status=open", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if env.Error == nil || env.Error.Code != ErrCodeValidationFailed {
		t.Errorf("error = %+v", env.Error)
	}

	rec, _ = api.do(t, http.MethodGet, "/api/v1/alerts?limit=abc", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("non-integer limit status = %d", rec.Code)
	}
}

func TestGetAlert(t *testing.T) {
	api := newTestAPI(t, RouterConfig{})
	active, _ := seedAlerts(t, api)

	rec, env := api.do(t, http.MethodGet, fmt.Sprintf("/api/v1/alerts/%d", active.ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got alerting.Alert
	if err := json.Unmarshal(env.Data, &got); err != nil {
		t.Fatalf("decode alert: %v", err)
	}
	if got.ID != active.ID || got.Type != alerting.TypeAbsence {
		t.Errorf("alert = %+v", got)
	}

	rec, env = api.do(t, http.MethodGet, "/api/v1/alerts/999999", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing alert status = %d", rec.Code)
	}
	if env.Error == nil || env.Error.Code != ErrCodeNotFound {
		t.Errorf("error = %+v", env.Error)
	}

	if rec, _ := api.do(t, http.MethodGet, "/api/v1/alerts/not-a-number", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("bad id status = %d", rec.Code)
	}
}

func TestResolveAndDismissAlert(t *testing.T) {
	api := newTestAPI(t, RouterConfig{})
	active, _ := seedAlerts(t, api)

	rec, env := api.do(t, http.MethodPost, fmt.Sprintf("/api/v1/alerts/%d/resolve", active.ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("resolve status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var got alerting.Alert
	if err := json.Unmarshal(env.Data, &got); err != nil {
		t.Fatalf("decode alert: %v", err)
	}
	if got.Status != alerting.StatusResolved || got.ClosedBy != alerting.ModeOperator {
		t.Errorf("alert = %+v", got)
	}

	// A closed alert cannot be dismissed.
	rec, env = api.do(t, http.MethodPost, fmt.Sprintf("/api/v1/alerts/%d/dismiss", active.ID), nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("dismiss-after-resolve status = %d", rec.Code)
	}
	if env.Error == nil || env.Error.Code != ErrCodeConflict {
		t.Errorf("error = %+v", env.Error)
	}
}

func TestAlertStats(t *testing.T) {
	api := newTestAPI(t, RouterConfig{})
	seedAlerts(t, api)

	rec, env := api.do(t, http.MethodGet, "/api/v1/alerts/stats", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var stats alerting.Stats
	if err := json.Unmarshal(env.Data, &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.Total != 2 || stats.ByStatus["active"] != 1 || stats.ByStatus["resolved"] != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestPresenceEndpoint(t *testing.T) {
	api := newTestAPI(t, RouterConfig{})

	rec, env := api.do(t, http.MethodGet, "/api/v1/presence", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var states []presence.State
	if err := json.Unmarshal(env.Data, &states); err != nil {
		t.Fatalf("decode states: %v", err)
	}
	// Both roster subjects appear, unknown until first sighting.
	if len(states) != 2 || states[0].Status != presence.StatusUnknown {
		t.Errorf("states = %+v", states)
	}
}

func TestRosterEndpoint(t *testing.T) {
	api := newTestAPI(t, RouterConfig{})

	rec, env := api.do(t, http.MethodGet, "/api/v1/roster?q=math", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Faculty []roster.Subject `json:"faculty"`
		Cameras []roster.Camera  `json:"cameras"`
	}
	if err := json.Unmarshal(env.Data, &resp); err != nil {
		t.Fatalf("decode roster: %v", err)
	}
	if len(resp.Faculty) != 1 || resp.Faculty[0].ID != "fac-002" {
		t.Errorf("faculty = %+v", resp.Faculty)
	}
	if len(resp.Cameras) != 2 {
		t.Errorf("cameras = %+v", resp.Cameras)
	}
}

func TestHealthEndpoint(t *testing.T) {
	api := newTestAPI(t, RouterConfig{})

	rec, env := api.do(t, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var health struct {
		Status   string `json:"status"`
		Subjects int    `json:"subjects"`
		Cameras  int    `json:"cameras"`
	}
	if err := json.Unmarshal(env.Data, &health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if health.Status != "ok" || health.Subjects != 2 || health.Cameras != 2 {
		t.Errorf("health = %+v", health)
	}
}

func TestRequestIDHeader(t *testing.T) {
	api := newTestAPI(t, RouterConfig{})

	rec, _ := api.do(t, http.MethodGet, "/health", nil)
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-abc")
	rec2 := httptest.NewRecorder()
	api.router.ServeHTTP(rec2, req)
	if got := rec2.Header().Get("X-Request-ID"); got != "req-abc" {
		t.Errorf("X-Request-ID = %q, want caller's ID echoed", got)
	}
}

func TestRateLimit(t *testing.T) {
	api := newTestAPI(t, RouterConfig{RateLimit: 2, RateWindow: time.Minute})

	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		last, _ = api.do(t, http.MethodGet, "/api/v1/presence", nil)
	}
	if last.Code != http.StatusTooManyRequests {
		t.Errorf("third request status = %d, want 429", last.Code)
	}

	// /health sits outside the rate-limited group.
	if rec, _ := api.do(t, http.MethodGet, "/health", nil); rec.Code != http.StatusOK {
		t.Errorf("health status = %d", rec.Code)
	}
}
