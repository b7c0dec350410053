package join

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/biometric"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/httpx"
)

// maxImageBytes bounds uploaded probe images.
const maxImageBytes = 10 << 20

// Handler serves the face endpoints: join, enroll, verify and identify.
type Handler struct {
	orch   *Orchestrator
	logger *zap.SugaredLogger
}

func NewHandler(orch *Orchestrator, logger *zap.SugaredLogger) *Handler {
	return &Handler{orch: orch, logger: logger}
}

// EmbeddingRequest carries an already-extracted probe.
type EmbeddingRequest struct {
	Embedding biometric.Embedding `json:"embedding" validate:"required,min=1"`
}

func (h *Handler) Join(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.FromContext(r.Context())
	if !ok {
		httpx.WriteError(w, h.logger, apperr.ErrUnauthenticated)
		return
	}
	sessionID, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	probe := deferredProbe(w, r)
	res, err := h.orch.AttemptJoin(r.Context(), sessionID, actor.UserID, probe)
	if err != nil {
		h.logger.Debugw("join rejected", "session_id", sessionID, "student_id", actor.UserID, "kind", apperr.KindOf(err).String())
		httpx.WriteError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, res)
}

func (h *Handler) Enroll(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.FromContext(r.Context())
	if !ok {
		httpx.WriteError(w, h.logger, apperr.ErrUnauthenticated)
		return
	}
	probe, err := readProbe(w, r)
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	if err := h.orch.EnrollFace(r.Context(), actor.UserID, probe); err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"message": "face enrolled"})
}

func (h *Handler) Forget(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.FromContext(r.Context())
	if !ok {
		httpx.WriteError(w, h.logger, apperr.ErrUnauthenticated)
		return
	}
	if err := h.orch.ForgetFace(r.Context(), actor.UserID); err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.FromContext(r.Context())
	if !ok {
		httpx.WriteError(w, h.logger, apperr.ErrUnauthenticated)
		return
	}
	probe := deferredProbe(w, r)
	res, err := h.orch.VerifyFace(r.Context(), actor.UserID, probe)
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) Identify(w http.ResponseWriter, r *http.Request) {
	probe, err := readProbe(w, r)
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	res, err := h.orch.Identify(r.Context(), probe)
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}

// deferredProbe reads the probe but keeps a body error inside it, so the
// orchestrator reports it only after the checks that precede extraction.
func deferredProbe(w http.ResponseWriter, r *http.Request) Probe {
	p, err := readProbe(w, r)
	if err != nil {
		return Probe{err: err}
	}
	return p
}

// readProbe accepts a multipart upload in field "image", a raw image/*
// body, or a JSON {"embedding": [...]} body.
func readProbe(w http.ResponseWriter, r *http.Request) (Probe, error) {
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch {
	case mt == "multipart/form-data":
		r.Body = http.MaxBytesReader(w, r.Body, maxImageBytes+1<<10)
		if err := r.ParseMultipartForm(maxImageBytes); err != nil {
			return Probe{}, apperr.Errorf(apperr.KindInvalidRequest, "invalid upload: %v", err)
		}
		f, _, err := r.FormFile("image")
		if err != nil {
			if errors.Is(err, http.ErrMissingFile) {
				return Probe{}, ErrImageRequired
			}
			return Probe{}, apperr.Errorf(apperr.KindInvalidRequest, "invalid upload: %v", err)
		}
		defer f.Close()
		img, err := io.ReadAll(f)
		if err != nil {
			return Probe{}, apperr.Errorf(apperr.KindInvalidRequest, "invalid upload: %v", err)
		}
		return Probe{Image: img}, nil
	case strings.HasPrefix(mt, "image/"):
		img, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxImageBytes))
		if err != nil {
			return Probe{}, apperr.Errorf(apperr.KindInvalidRequest, "invalid image body: %v", err)
		}
		return Probe{Image: img}, nil
	case mt == "application/json":
		var req EmbeddingRequest
		if err := httpx.DecodeJSON(r, &req); err != nil {
			return Probe{}, err
		}
		return Probe{Embedding: req.Embedding}, nil
	}
	return Probe{}, ErrImageRequired
}
