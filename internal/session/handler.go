package session

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/httpx"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/session/entity"
)

// Handler serves the session lifecycle endpoints.
type Handler struct {
	mgr    *Manager
	logger *zap.SugaredLogger
}

func NewHandler(mgr *Manager, logger *zap.SugaredLogger) *Handler {
	return &Handler{mgr: mgr, logger: logger}
}

type StartRequest struct {
	CourseID int64 `json:"course_id" validate:"required,gt=0"`
}

// SessionResponse adds the derived state to a session.
type SessionResponse struct {
	*entity.Session
	State entity.State `json:"state"`
}

func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.FromContext(r.Context())
	if !ok {
		httpx.WriteError(w, h.logger, apperr.ErrUnauthenticated)
		return
	}
	var req StartRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	s, err := h.mgr.Start(r.Context(), req.CourseID, actor)
	if err != nil {
		h.logger.Debugw("start session rejected", "course_id", req.CourseID, "err", err)
		httpx.WriteError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, SessionResponse{Session: s, State: s.State()})
}

func (h *Handler) End(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.FromContext(r.Context())
	if !ok {
		httpx.WriteError(w, h.logger, apperr.ErrUnauthenticated)
		return
	}
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	out, err := h.mgr.End(r.Context(), id, actor)
	if err != nil {
		h.logger.Debugw("end session rejected", "session_id", id, "err", err)
		httpx.WriteError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"session":        SessionResponse{Session: out.Session, State: out.Session.State()},
		"attendee_count": out.AttendeeCount,
	})
}

func (h *Handler) Active(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.FromContext(r.Context())
	if !ok {
		httpx.WriteError(w, h.logger, apperr.ErrUnauthenticated)
		return
	}
	out, err := h.mgr.ListActive(r.Context(), actor)
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) Details(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.FromContext(r.Context())
	if !ok {
		httpx.WriteError(w, h.logger, apperr.ErrUnauthenticated)
		return
	}
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	out, err := h.mgr.Details(r.Context(), id, actor)
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}
