package biometric

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/apperr"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		emb  Embedding
		ok   bool
	}{
		{"unit components", Embedding{1, -1, 0.5}, true},
		{"at the bound", Embedding{maxComponent, -maxComponent, 0}, true},
		{"wrong length", Embedding{1, 2}, false},
		{"nan", Embedding{0, math.NaN(), 0}, false},
		{"positive infinity", Embedding{math.Inf(1), 0, 0}, false},
		{"negative infinity", Embedding{0, 0, math.Inf(-1)}, false},
		{"square overflows", Embedding{1e200, 1e200, 1e200}, false},
		{"above the bound", Embedding{0, 2e6, 0}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.emb.Validate(3)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, apperr.KindInvalidEmbedding, apperr.KindOf(err))
		})
	}
}

func TestDistanceOfValidEmbeddingsIsFinite(t *testing.T) {
	a := Embedding{maxComponent, maxComponent, maxComponent}
	b := Embedding{-maxComponent, -maxComponent, -maxComponent}
	assert.False(t, math.IsInf(Distance(a, b), 0))
}
