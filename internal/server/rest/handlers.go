package rest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/openclaw/notifyd/internal/engine"
	"github.com/openclaw/notifyd/internal/notify"
	"github.com/openclaw/notifyd/internal/prefs"
)

// maxBody bounds request bodies.
const maxBody = 1 << 20

// writeError writes an HTTP error response with a JSON body containing an
// "error" field.
func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSONError(w, code, msg)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// Server holds the dependencies needed by the REST handlers.
type Server struct {
	engine    Engine
	publisher EventPublisher
	stream    http.Handler
	logger    *slog.Logger
	now       func() time.Time
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithPublisher routes POST /api/v1/notifications through p instead of
// ingesting directly into the engine.
func WithPublisher(p EventPublisher) ServerOption {
	return func(s *Server) { s.publisher = p }
}

// WithStream mounts h at /ws/notifications.
func WithStream(h http.Handler) ServerOption {
	return func(s *Server) { s.stream = h }
}

// WithLogger sets the logger used for engine failures.
func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = l }
}

// NewServer creates a Server over eng.
func NewServer(eng Engine, opts ...ServerOption) *Server {
	s := &Server{engine: eng, logger: slog.Default(), now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// engineError maps an engine failure to a response.
func (s *Server) engineError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, engine.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, "engine is shutting down")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, "request cancelled")
	default:
		s.logger.Error("rest: engine call failed",
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "request body must be valid JSON")
		return false
	}
	return true
}

// handleHealthz responds to GET /healthz. It does not require
// authentication.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ---- view -------------------------------------------------------------------

func (s *Server) handleGetView(w http.ResponseWriter, r *http.Request) {
	v, err := s.engine.View(r.Context())
	if err != nil {
		s.engineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toViewDTO(v))
}

// handlePutFilters responds to PUT /api/v1/view/filters with the view under
// the new filters.
func (s *Server) handlePutFilters(w http.ResponseWriter, r *http.Request) {
	var f filtersDTO
	if !decodeBody(w, r, &f) {
		return
	}
	c, err := f.criteria()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.engine.SetFilters(r.Context(), c); err != nil {
		s.engineError(w, r, err)
		return
	}
	s.handleGetView(w, r)
}

func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	n, err := s.engine.Open(r.Context())
	if err != nil {
		s.engineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"marked_read": n})
}

// ---- notifications ----------------------------------------------------------

// handlePostNotification responds to POST /api/v1/notifications.
//
// With a publisher configured the event is pushed into the ingestion
// channel and the response is 202 with the assigned id; otherwise it is
// stored directly and the response is 201, or 409 for a duplicate id.
func (s *Server) handlePostNotification(w http.ResponseWriter, r *http.Request) {
	var ev notify.Event
	if !decodeBody(w, r, &ev) {
		return
	}
	if err := validateEvent(ev); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ev.Read, ev.Pinned = false, false
	if ev.ID == "" {
		ev.ID = notify.NewID()
	}

	if s.publisher != nil {
		s.publisher.Publish(ev)
		writeJSON(w, http.StatusAccepted, map[string]string{"id": ev.ID})
		return
	}

	id, err := s.engine.Ingest(r.Context(), ev)
	switch {
	case errors.Is(err, notify.ErrDuplicateID):
		writeError(w, http.StatusConflict, "a notification with this id already exists")
	case err != nil:
		s.engineError(w, r, err)
	default:
		writeJSON(w, http.StatusCreated, map[string]string{"id": id})
	}
}

func (s *Server) handleGetNotification(w http.ResponseWriter, r *http.Request) {
	ev, ok, err := s.engine.VisibleEvent(r.Context(), chi.URLParam(r, "id"))
	switch {
	case err != nil:
		s.engineError(w, r, err)
	case !ok:
		writeError(w, http.StatusNotFound, "notification not found")
	default:
		writeJSON(w, http.StatusOK, ev)
	}
}

// byID adapts a per-id engine operation. A false result with no error is a
// 404 unless the id exists (MarkRead of a read event is not an error).
func (s *Server) byID(op func(context.Context, string) (bool, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		changed, err := op(r.Context(), id)
		if err != nil {
			s.engineError(w, r, err)
			return
		}
		if !changed {
			_, ok, err := s.engine.Event(r.Context(), id)
			if err != nil {
				s.engineError(w, r, err)
				return
			}
			if !ok {
				writeError(w, http.StatusNotFound, "notification not found")
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": id, "changed": changed})
	}
}

func (s *Server) bulk(op func(context.Context) (int, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := op(r.Context())
		if err != nil {
			s.engineError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"count": n})
	}
}

func (s *Server) handleToggleGroup(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	expanded, err := s.engine.ToggleGroup(r.Context(), key)
	if err != nil {
		s.engineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"source_key": key, "expanded": expanded})
}

// handleCursor responds to POST /api/v1/cursor/{op}.
func (s *Server) handleCursor(w http.ResponseWriter, r *http.Request) {
	ops := map[string]func(context.Context) (engine.View, error){
		"up":       s.engine.MoveUp,
		"down":     s.engine.MoveDown,
		"activate": s.engine.Activate,
		"read":     s.engine.MarkFocusedRead,
		"dismiss":  s.engine.DismissFocused,
		"close":    s.engine.ClearSelection,
	}
	op, ok := ops[chi.URLParam(r, "op")]
	if !ok {
		writeError(w, http.StatusNotFound, "cursor operation must be one of up, down, activate, read, dismiss, close")
		return
	}
	v, err := op(r.Context())
	if err != nil {
		s.engineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toViewDTO(v))
}

// ---- preferences ------------------------------------------------------------

func (s *Server) handleGetPreferences(w http.ResponseWriter, r *http.Request) {
	p, err := s.engine.Preferences(r.Context())
	if err != nil {
		s.engineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p.Flat())
}

// handlePatchPreferences merges a flat key-value document into the current
// preferences. Unknown keys and non-boolean values are ignored; a body with
// no recognised key is rejected.
func (s *Server) handlePatchPreferences(w http.ResponseWriter, r *http.Request) {
	var raw map[string]json.RawMessage
	if !decodeBody(w, r, &raw) {
		return
	}
	scratch := prefs.Defaults()
	if len(prefs.Merge(&scratch, raw)) == 0 {
		writeError(w, http.StatusBadRequest, "no recognised preference keys in body")
		return
	}
	p, err := s.engine.UpdatePreferences(r.Context(), func(p *prefs.Preferences) {
		prefs.Merge(p, raw)
	})
	if err != nil {
		s.engineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p.Flat())
}

// ---- mutes ------------------------------------------------------------------

func (s *Server) handleGetMutes(w http.ResponseWriter, r *http.Request) {
	rules, err := s.engine.Mutes(r.Context())
	if err != nil {
		s.engineError(w, r, err)
		return
	}
	if rules == nil {
		writeJSON(w, http.StatusOK, []struct{}{})
		return
	}
	writeJSON(w, http.StatusOK, rules)
}

func (s *Server) handlePostMute(w http.ResponseWriter, r *http.Request) {
	var m muteDTO
	if !decodeBody(w, r, &m) {
		return
	}
	rule, err := m.rule(s.now())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	stored, err := s.engine.AddMute(r.Context(), rule)
	if err != nil {
		s.engineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, stored)
}

func (s *Server) handleDeleteMute(w http.ResponseWriter, r *http.Request) {
	removed, err := s.engine.RemoveMute(r.Context(), chi.URLParam(r, "id"))
	switch {
	case err != nil:
		s.engineError(w, r, err)
	case !removed:
		writeError(w, http.StatusNotFound, "mute rule not found")
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

// ---- connection -------------------------------------------------------------

func (s *Server) handleGetConnection(w http.ResponseWriter, r *http.Request) {
	st, err := s.engine.Connection(r.Context())
	if err != nil {
		s.engineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(st)})
}

// handleRetry responds to POST /api/v1/connection/retry. The status change,
// if any, arrives on the change stream.
func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Retry(); err != nil {
		if errors.Is(err, engine.ErrRetryUnsupported) {
			writeError(w, http.StatusNotImplemented, "the ingestion channel does not support retry")
			return
		}
		s.engineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "retrying"})
}
