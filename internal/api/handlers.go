// Vigil - Faculty Presence Monitoring and Alert Lifecycle Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	gorillaws "github.com/gorilla/websocket"

	"github.com/tomtom215/vigil/internal/alerting"
	"github.com/tomtom215/vigil/internal/intake"
	"github.com/tomtom215/vigil/internal/logging"
	"github.com/tomtom215/vigil/internal/presence"
	"github.com/tomtom215/vigil/internal/roster"
	"github.com/tomtom215/vigil/internal/validation"
	"github.com/tomtom215/vigil/internal/websocket"
)

// maxEventBody bounds POST /events payloads.
const maxEventBody = 64 * 1024

// ProcessFunc pushes an accepted event through the presence and alerting
// pipeline. It is injected so HTTP and NATS submissions share one path.
type ProcessFunc func(ev *intake.Event)

// Handler holds the HTTP handlers and their dependencies.
type Handler struct {
	intake  *intake.Service
	store   *alerting.Store
	engine  *alerting.Engine
	tracker *presence.Tracker
	roster  *roster.Roster
	hub     *websocket.Hub
	process ProcessFunc

	defaultPageSize int
	maxPageSize     int
	startTime       time.Time

	upgrader gorillaws.Upgrader
}

// NewHandler creates the API handler set.
func NewHandler(
	intakeSvc *intake.Service,
	store *alerting.Store,
	engine *alerting.Engine,
	tracker *presence.Tracker,
	ros *roster.Roster,
	hub *websocket.Hub,
	process ProcessFunc,
	defaultPageSize, maxPageSize int,
) *Handler {
	if defaultPageSize <= 0 {
		defaultPageSize = 20
	}
	if maxPageSize <= 0 {
		maxPageSize = 100
	}
	return &Handler{
		intake:          intakeSvc,
		store:           store,
		engine:          engine,
		tracker:         tracker,
		roster:          ros,
		hub:             hub,
		process:         process,
		defaultPageSize: defaultPageSize,
		maxPageSize:     maxPageSize,
		startTime:       time.Now(),
		upgrader: gorillaws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origin enforcement is handled by the CORS layer.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// SubmitEvent handles POST /api/v1/events.
//
// Accepted events return 202 with the normalized event; duplicate
// deliveries return 202 with duplicate=true and no side effects.
func (h *Handler) SubmitEvent(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var raw intake.RawEvent
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEventBody))
	if err := dec.Decode(&raw); err != nil {
		rw.BadRequest("invalid JSON body: " + err.Error())
		return
	}

	ev, err := h.intake.Ingest(&raw)
	if err != nil {
		var ierr *intake.InvalidEventError
		if errors.As(err, &ierr) {
			rw.ErrorWithDetails(http.StatusBadRequest, ErrCodeInvalidEvent, ierr.Message, map[string]interface{}{
				"field":  ierr.Field,
				"reason": ierr.Reason,
			})
			return
		}
		logging.Ctx(r.Context()).Error().Err(err).Msg("event ingestion failed")
		rw.InternalError("failed to ingest event")
		return
	}

	if ev == nil {
		rw.Accepted(map[string]interface{}{"duplicate": true})
		return
	}

	if h.process != nil {
		h.process(ev)
	}
	rw.Accepted(ev)
}

// listAlertsRequest holds validated query parameters for ListAlerts.
type listAlertsRequest struct {
	Status   string `validate:"omitempty,oneof=active resolved dismissed"`
	Priority string `validate:"omitempty,oneof=low medium high"`
	Type     string `validate:"omitempty,oneof=absence unknown_person system_error"`
	Limit    int    `validate:"min=1"`
	Offset   int    `validate:"min=0"`
}

// ListAlerts handles GET /api/v1/alerts.
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	q := r.URL.Query()

	req := listAlertsRequest{
		Status:   q.Get("status"),
		Priority: q.Get("priority"),
		Type:     q.Get("type"),
		Limit:    h.defaultPageSize,
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			rw.BadRequest("limit must be an integer")
			return
		}
		req.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			rw.BadRequest("offset must be an integer")
			return
		}
		req.Offset = n
	}

	if verr := validation.ValidateStruct(&req); verr != nil {
		apiErr := verr.ToAPIError()
		rw.ValidationError(apiErr.Message, apiErr.Details)
		return
	}
	if req.Limit > h.maxPageSize {
		req.Limit = h.maxPageSize
	}

	alerts, total := h.store.List(alerting.Filter{
		Status:   alerting.Status(req.Status),
		Priority: alerting.Priority(req.Priority),
		Type:     alerting.Type(req.Type),
		Query:    q.Get("q"),
		Limit:    req.Limit,
		Offset:   req.Offset,
	})
	if alerts == nil {
		alerts = []*alerting.Alert{}
	}

	rw.SuccessWithPagination(alerts, &PaginationMeta{
		Total:   total,
		Count:   len(alerts),
		Offset:  req.Offset,
		Limit:   req.Limit,
		HasMore: req.Offset+len(alerts) < total,
	})
}

// AlertStats handles GET /api/v1/alerts/stats.
func (h *Handler) AlertStats(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(h.store.Stats())
}

// GetAlert handles GET /api/v1/alerts/{id}.
func (h *Handler) GetAlert(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	id, ok := h.alertID(rw, r)
	if !ok {
		return
	}

	alert, err := h.store.Get(id)
	if err != nil {
		h.writeAlertError(rw, err)
		return
	}
	rw.Success(alert)
}

// ResolveAlert handles POST /api/v1/alerts/{id}/resolve.
func (h *Handler) ResolveAlert(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	id, ok := h.alertID(rw, r)
	if !ok {
		return
	}

	alert, err := h.engine.Resolve(id)
	if err != nil {
		h.writeAlertError(rw, err)
		return
	}
	rw.Success(alert)
}

// DismissAlert handles POST /api/v1/alerts/{id}/dismiss.
func (h *Handler) DismissAlert(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	id, ok := h.alertID(rw, r)
	if !ok {
		return
	}

	alert, err := h.engine.Dismiss(id)
	if err != nil {
		h.writeAlertError(rw, err)
		return
	}
	rw.Success(alert)
}

func (h *Handler) alertID(rw *ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		rw.BadRequest("alert id must be a positive integer")
		return 0, false
	}
	return id, true
}

func (h *Handler) writeAlertError(rw *ResponseWriter, err error) {
	var nf *alerting.NotFoundError
	if errors.As(err, &nf) {
		rw.NotFound(err.Error())
		return
	}
	var it *alerting.InvalidTransitionError
	if errors.As(err, &it) {
		rw.Conflict(err.Error())
		return
	}
	rw.InternalError(err.Error())
}

// Presence handles GET /api/v1/presence.
func (h *Handler) Presence(w http.ResponseWriter, r *http.Request) {
	states := h.tracker.Snapshot()
	if states == nil {
		states = []presence.State{}
	}
	NewResponseWriter(w, r).Success(states)
}

// rosterResponse is the GET /api/v1/roster payload.
type rosterResponse struct {
	Faculty []roster.Subject `json:"faculty"`
	Cameras []roster.Camera  `json:"cameras"`
}

// Roster handles GET /api/v1/roster. The optional q parameter filters
// faculty by name or department.
func (h *Handler) Roster(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")

	resp := rosterResponse{
		Faculty: h.roster.SearchSubjects(query),
		Cameras: h.roster.Cameras(),
	}
	if resp.Faculty == nil {
		resp.Faculty = []roster.Subject{}
	}
	NewResponseWriter(w, r).Success(resp)
}

// healthResponse is the GET /health payload.
type healthResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Subjects      int    `json:"subjects"`
	Cameras       int    `json:"cameras"`
	ActiveAlerts  int    `json:"active_alerts"`
	WSClients     int    `json:"ws_clients"`
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	subjects, cameras := h.roster.Counts()
	stats := h.store.Stats()

	NewResponseWriter(w, r).Success(healthResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Subjects:      subjects,
		Cameras:       cameras,
		ActiveAlerts:  stats.ByStatus[string(alerting.StatusActive)],
		WSClients:     h.hub.GetClientCount(),
	})
}

// WebSocket handles GET /ws, upgrading the connection and registering the
// client with the hub.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := websocket.NewClient(h.hub, conn)
	h.hub.Register <- client
	client.Start()
}
