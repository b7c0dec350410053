package attendance

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/httpx"
)

// Handler serves a student's own attendance history.
type Handler struct {
	ledger *Ledger
	logger *zap.SugaredLogger
}

func NewHandler(ledger *Ledger, logger *zap.SugaredLogger) *Handler {
	return &Handler{ledger: ledger, logger: logger}
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.FromContext(r.Context())
	if !ok {
		httpx.WriteError(w, h.logger, apperr.ErrUnauthenticated)
		return
	}
	recs, err := h.ledger.ListForStudent(r.Context(), actor.UserID)
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, recs)
}
