package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/apperr"
)

func TestStatusFor(t *testing.T) {
	cases := map[apperr.Kind]int{
		apperr.KindNoFaceDetected:       http.StatusBadRequest,
		apperr.KindFaceMismatch:         http.StatusBadRequest,
		apperr.KindSessionAlreadyActive: http.StatusConflict,
		apperr.KindAlreadyJoined:        http.StatusConflict,
		apperr.KindNotEnrolled:          http.StatusForbidden,
		apperr.KindUnauthorized:         http.StatusForbidden,
		apperr.KindUnauthenticated:      http.StatusUnauthorized,
		apperr.KindNotFound:             http.StatusNotFound,
		apperr.KindExtractionFailed:     http.StatusServiceUnavailable,
		apperr.KindInternal:             http.StatusInternalServerError,
	}
	for kind, want := range cases {
		assert.Equal(t, want, StatusFor(kind), kind.String())
	}
}

func TestWriteErrorHidesInternalDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, zap.NewNop().Sugar(), fmt.Errorf("query: %w", errors.New("connection reset by peer")))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "internal server error", body.Error)
	assert.Equal(t, "internal", body.Kind)
}

func TestWriteErrorKeepsDomainMessage(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, nil, fmt.Errorf("join: %w", apperr.New(apperr.KindAlreadyJoined, "already joined this session")))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), `"kind":"already_joined"`)
	assert.Contains(t, rec.Body.String(), "already joined this session")
}

func TestWriteJSONUnencodableValue(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusOK, map[string]float64{"distance": math.Inf(1)})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "internal", body.Kind)
}

type payload struct {
	Email string `json:"email" validate:"required,email"`
}

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"valid", `{"email":"a@b.co"}`, false},
		{"malformed", `{"email":`, true},
		{"unknown field", `{"email":"a@b.co","x":1}`, true},
		{"fails validation", `{"email":"nope"}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var p payload
			err := DecodeJSON(req, &p)
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			assert.Equal(t, apperr.KindInvalidRequest, apperr.KindOf(err))
		})
	}
}

func TestPathID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/sessions/12", nil)
	req.SetPathValue("id", "12")
	got, err := PathID(req, "id")
	require.NoError(t, err)
	assert.EqualValues(t, 12, got)

	req.SetPathValue("id", "-3")
	_, err = PathID(req, "id")
	assert.Equal(t, apperr.KindInvalidRequest, apperr.KindOf(err))
}
