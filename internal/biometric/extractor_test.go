package biometric

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/apperr"
)

func extractorServer(t *testing.T, status int, body any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/extract", r.URL.Path)
		_, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPExtractorOutcomes(t *testing.T) {
	one := [][]float64{make([]float64, 4)}
	two := [][]float64{make([]float64, 4), make([]float64, 4)}

	tests := []struct {
		name     string
		status   int
		body     any
		wantKind apperr.Kind
		wantErr  bool
	}{
		{name: "single face", status: http.StatusOK, body: map[string]any{"embeddings": one}},
		{name: "no face", status: http.StatusOK, body: map[string]any{"embeddings": [][]float64{}}, wantErr: true, wantKind: apperr.KindNoFaceDetected},
		{name: "multiple faces", status: http.StatusOK, body: map[string]any{"embeddings": two}, wantErr: true, wantKind: apperr.KindMultipleFacesDetected},
		{name: "unreadable", status: http.StatusUnprocessableEntity, body: map[string]any{"error": "unreadable_image"}, wantErr: true, wantKind: apperr.KindUnreadableImage},
		{name: "wrong dimension", status: http.StatusOK, body: map[string]any{"embeddings": [][]float64{{1, 2}}}, wantErr: true, wantKind: apperr.KindInvalidEmbedding},
		{name: "server error", status: http.StatusInternalServerError, body: map[string]any{"error": "boom"}, wantErr: true, wantKind: apperr.KindExtractionFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := extractorServer(t, tt.status, tt.body)
			x := NewHTTPExtractor(ExtractorConfig{URL: srv.URL, Timeout: time.Second, Dimension: 4}, srv.Client())
			e, err := x.Extract(context.Background(), []byte("jpeg"))
			if !tt.wantErr {
				require.NoError(t, err)
				assert.Len(t, e, 4)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, apperr.KindOf(err))
		})
	}
}

func TestHTTPExtractorTimeoutIsExtractionFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	x := NewHTTPExtractor(ExtractorConfig{URL: srv.URL, Timeout: 50 * time.Millisecond, Dimension: 4}, srv.Client())
	_, err := x.Extract(context.Background(), []byte("jpeg"))
	require.Error(t, err)
	assert.True(t, IsExtractionFailure(err))
	assert.NotEqual(t, apperr.KindFaceMismatch, apperr.KindOf(err))
}

func TestHTTPExtractorEmptyImage(t *testing.T) {
	x := NewHTTPExtractor(ExtractorConfig{URL: "http://127.0.0.1:1"}, nil)
	_, err := x.Extract(context.Background(), nil)
	assert.ErrorIs(t, err, ErrUnreadableImage)
}
