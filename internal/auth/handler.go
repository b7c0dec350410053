package auth

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/httpx"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/user"
)

// Handler serves login, token refresh and the caller's own profile.
type Handler struct {
	tokens  *TokenService
	userSvc *user.UserService
	logger  *zap.SugaredLogger
}

func NewHandler(tokens *TokenService, userSvc *user.UserService, logger *zap.SugaredLogger) *Handler {
	return &Handler{tokens: tokens, userSvc: userSvc, logger: logger}
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type LoginResponse struct {
	*Tokens
	User any `json:"user"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.logger.Debugw("invalid login payload", "err", err)
		httpx.WriteError(w, h.logger, err)
		return
	}
	view, err := h.userSvc.AuthenticatePassword(r.Context(), req.Email, req.Password)
	if err != nil {
		h.logger.Debugw("login failed", "email", req.Email, "err", err)
		httpx.WriteError(w, h.logger, err)
		return
	}
	toks, err := h.tokens.IssueTokens(r.Context(), view)
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, LoginResponse{Tokens: toks, User: view})
}

// Token exchanges a refresh token for a new token pair. The presented
// refresh token is consumed.
func (h *Handler) Token(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	userID, err := h.tokens.Rotate(r.Context(), req.RefreshToken)
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	view, err := h.userSvc.GetMinimalAuthView(r.Context(), userID)
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			err = ErrInvalidRefresh
		}
		httpx.WriteError(w, h.logger, err)
		return
	}
	toks, err := h.tokens.IssueTokens(r.Context(), view)
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, LoginResponse{Tokens: toks, User: view})
}

// Logout revokes a refresh token. Unknown tokens still succeed.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	if err := h.tokens.Revoke(r.Context(), req.RefreshToken); err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Me returns the authenticated caller's profile.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	id, ok := FromContext(r.Context())
	if !ok {
		httpx.WriteError(w, h.logger, apperr.ErrUnauthenticated)
		return
	}
	view, err := h.userSvc.GetMinimalAuthView(r.Context(), id.UserID)
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, view)
}
