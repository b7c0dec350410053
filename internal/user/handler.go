package user

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/httpx"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/user/entity"
)

// Handler exposes HTTP endpoints for account signup and administration.
type Handler struct {
	svc    *UserService
	logger *zap.SugaredLogger
}

func NewHandler(svc *UserService, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// SignupRequest request body for signup endpoint.
type SignupRequest struct {
	Email    string      `json:"email" validate:"required,email"`
	Password string      `json:"password" validate:"required,min=6"`
	FullName string      `json:"full_name" validate:"required"`
	Role     entity.Role `json:"role" validate:"omitempty,oneof=student teacher"`
}

// SignupResponse tells the client whether the account can log in yet.
type SignupResponse struct {
	ID       int64 `json:"id"`
	Approved bool  `json:"approved"`
}

func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.logger.Debugw("invalid signup payload", "err", err)
		httpx.WriteError(w, h.logger, err)
		return
	}
	u, err := h.svc.Signup(r.Context(), req.Email, req.Password, req.FullName, req.Role)
	if err != nil {
		h.logger.Debugw("signup failed", "email", req.Email, "err", err)
		httpx.WriteError(w, h.logger, err)
		return
	}
	h.logger.Infow("account created", "user_id", u.ID, "role", u.Role)
	httpx.WriteJSON(w, http.StatusCreated, SignupResponse{ID: u.ID, Approved: u.Approved})
}

// List returns accounts; ?role= narrows the result.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.svc.List(r.Context(), entity.Role(r.URL.Query().Get("role")))
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, users)
}

func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	if err := h.svc.Approve(r.Context(), id); err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	h.logger.Infow("account approved", "user_id", id)
	w.WriteHeader(http.StatusNoContent)
}
