package anthropic

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMeter_ConcurrentAdd(t *testing.T) {
	var m Meter
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Add(Usage{Calls: 1, InputTokens: 10, OutputTokens: 2, CacheRead: 5})
		}()
	}
	wg.Wait()

	got := m.Snapshot()
	assert.Equal(t, Usage{Calls: 20, InputTokens: 200, OutputTokens: 40, CacheRead: 100}, got)
	assert.InDelta(t, 100.0/300.0, got.CacheHitRatio(), 1e-9)
}

func TestMeter_NilSafe(t *testing.T) {
	var m *Meter
	assert.NotPanics(t, func() {
		m.Add(Usage{Calls: 1})
		m.Log("usage")
	})
	assert.Equal(t, Usage{}, m.Snapshot())
}

func TestUsage_CacheHitRatioEmpty(t *testing.T) {
	assert.Zero(t, Usage{}.CacheHitRatio())
}
