// Package biometric holds the face-embedding vocabulary: the vector type,
// the stateless verification engine, the persisted blob codec and the
// extractor contract.
package biometric

import (
	"math"

	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/apperr"
)

// DefaultDimension is the embedding length produced by the observed model.
const DefaultDimension = 128

// DefaultTolerance is the maximum accepted distance for a match.
const DefaultTolerance = 0.5

// Embedding is a fixed-length face descriptor.
type Embedding []float64

// Candidate pairs a student with their stored reference embedding.
type Candidate struct {
	StudentID int64
	Embedding Embedding
}

// maxComponent bounds every component so that distances between any two
// valid embeddings stay finite.
const maxComponent = 1e6

// Validate checks the embedding has exactly dim finite components within
// ±maxComponent.
func (e Embedding) Validate(dim int) error {
	if len(e) != dim {
		return apperr.Errorf(apperr.KindInvalidEmbedding, "invalid embedding: expected %d components, got %d", dim, len(e))
	}
	for i, v := range e {
		if math.IsNaN(v) || math.IsInf(v, 0) || math.Abs(v) > maxComponent {
			return apperr.Errorf(apperr.KindInvalidEmbedding, "invalid embedding: component %d out of range", i)
		}
	}
	return nil
}

// Equal reports whether both embeddings hold identical components.
func (e Embedding) Equal(o Embedding) bool {
	if len(e) != len(o) {
		return false
	}
	for i := range e {
		if e[i] != o[i] {
			return false
		}
	}
	return true
}
