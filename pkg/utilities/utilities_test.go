package utilities

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestNewIDUnique(t *testing.T) {
	const workers, per = 8, 500
	seen := make(map[int64]struct{}, workers*per)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range per {
				id := NewID()
				mu.Lock()
				seen[id] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, workers*per)
}

func TestNewKSUID(t *testing.T) {
	a, b := NewKSUID(), NewKSUID()
	assert.Len(t, a, 27)
	assert.NotEqual(t, a, b)
}

func TestLevelFromString(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, levelFromString("debug"))
	assert.Equal(t, zapcore.WarnLevel, levelFromString("warning"))
	assert.Equal(t, zapcore.ErrorLevel, levelFromString("error"))
	assert.Equal(t, zapcore.InfoLevel, levelFromString("bogus"))
}
