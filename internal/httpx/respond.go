// Package httpx holds the JSON response helpers shared by the handlers.
package httpx

import (
	"bytes"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/apperr"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// WriteJSON encodes v before touching the response, so a value that cannot
// be encoded becomes a 500 instead of an empty body behind a success status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		buf.Reset()
		status = http.StatusInternalServerError
		_ = json.NewEncoder(&buf).Encode(ErrorBody{Error: "internal server error", Kind: apperr.KindInternal.String()})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindInvalidRequest, apperr.KindUnreadableImage, apperr.KindNoFaceDetected,
		apperr.KindMultipleFacesDetected, apperr.KindInvalidEmbedding, apperr.KindFaceMismatch:
		return http.StatusBadRequest
	case apperr.KindSessionAlreadyActive, apperr.KindSessionNotActive, apperr.KindAlreadyJoined, apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindNotEnrolled, apperr.KindUnauthorized:
		return http.StatusForbidden
	case apperr.KindUnauthenticated:
		return http.StatusUnauthorized
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindExtractionFailed:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// WriteError renders err. Domain errors keep their message; anything else
// is logged and reported as a generic failure the caller may retry.
func WriteError(w http.ResponseWriter, logger *zap.SugaredLogger, err error) {
	kind := apperr.KindOf(err)
	status := StatusFor(kind)
	msg := err.Error()
	switch kind {
	case apperr.KindInternal:
		if logger != nil {
			logger.Errorw("request failed", "err", err)
		}
		msg = "internal server error"
	case apperr.KindExtractionFailed:
		if logger != nil {
			logger.Warnw("face extraction failed", "err", err)
		}
		msg = "face extraction failed, please retry"
	}
	WriteJSON(w, status, ErrorBody{Error: msg, Kind: kind.String()})
}
