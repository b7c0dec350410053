package biometric

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/apperr"
)

// Extractor turns an image into exactly one face embedding.
type Extractor interface {
	Extract(ctx context.Context, image []byte) (Embedding, error)
}

var (
	ErrNoFaceDetected        = apperr.New(apperr.KindNoFaceDetected, "no face detected")
	ErrMultipleFacesDetected = apperr.New(apperr.KindMultipleFacesDetected, "multiple faces detected")
	ErrUnreadableImage       = apperr.New(apperr.KindUnreadableImage, "image could not be read")
	// ErrExtractionFailed means the extractor could not reach a decision
	// (timeout, transport failure). It is never a mismatch.
	ErrExtractionFailed = apperr.New(apperr.KindExtractionFailed, "face extraction failed")
)

// ExtractorConfig configures the HTTP extractor client.
type ExtractorConfig struct {
	URL       string        `env:"EXTRACTOR_URL"`
	Timeout   time.Duration `env:"EXTRACTOR_TIMEOUT" envDefault:"10s"`
	Dimension int           `env:"EMBEDDING_DIM" envDefault:"128"`
}

// ExtractorConfigFromEnv reads extractor settings from the environment.
func ExtractorConfigFromEnv() ExtractorConfig {
	var cfg ExtractorConfig
	if err := env.Parse(&cfg); err != nil {
		cfg = ExtractorConfig{Timeout: 10 * time.Second, Dimension: DefaultDimension}
	}
	return cfg
}

// HTTPExtractor calls an embedding sidecar over HTTP:
// POST {URL}/extract with the raw image, reply {"embeddings": [[...], ...]}.
type HTTPExtractor struct {
	cfg    ExtractorConfig
	client *http.Client
}

func NewHTTPExtractor(cfg ExtractorConfig, client *http.Client) *HTTPExtractor {
	if client == nil {
		client = &http.Client{}
	}
	if cfg.Dimension == 0 {
		cfg.Dimension = DefaultDimension
	}
	cfg.URL = strings.TrimRight(cfg.URL, "/")
	return &HTTPExtractor{cfg: cfg, client: client}
}

type extractResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
	Error      string      `json:"error,omitempty"`
}

// Extract posts the image and maps the reply onto the extractor error kinds.
func (x *HTTPExtractor) Extract(ctx context.Context, image []byte) (Embedding, error) {
	if len(image) == 0 {
		return nil, ErrUnreadableImage
	}
	if x.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, x.cfg.Timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, x.cfg.URL+"/extract", bytes.NewReader(image))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrExtractionFailed, err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	resp, err := x.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrExtractionFailed, err)
	}
	var out extractResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("%w: decode response (status %d): %v", ErrExtractionFailed, resp.StatusCode, err)
	}
	switch {
	case resp.StatusCode == http.StatusUnprocessableEntity || out.Error == "unreadable_image":
		return nil, ErrUnreadableImage
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: extractor returned status %d", ErrExtractionFailed, resp.StatusCode)
	}
	switch len(out.Embeddings) {
	case 0:
		return nil, ErrNoFaceDetected
	case 1:
	default:
		return nil, ErrMultipleFacesDetected
	}
	e := Embedding(out.Embeddings[0])
	if err := e.Validate(x.cfg.Dimension); err != nil {
		return nil, err
	}
	return e, nil
}

// IsExtractionFailure reports whether err means "could not determine",
// including a deadline hit while extracting.
func IsExtractionFailure(err error) bool {
	return errors.Is(err, ErrExtractionFailed) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled)
}
