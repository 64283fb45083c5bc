package anthropic

import (
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Usage counts calls and tokens, either for one reply or summed over many.
type Usage struct {
	Calls        int64 `json:"calls"`
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
	CacheWrite   int64 `json:"cache_write_tokens"`
	CacheRead    int64 `json:"cache_read_tokens"`
}

// CacheHitRatio is the share of prompt tokens served from the prompt cache.
func (u Usage) CacheHitRatio() float64 {
	total := u.InputTokens + u.CacheWrite + u.CacheRead
	if total == 0 {
		return 0
	}
	return float64(u.CacheRead) / float64(total)
}

// MarshalLogObject lets Usage be logged with zap.Object.
func (u Usage) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddInt64("calls", u.Calls)
	enc.AddInt64("input_tokens", u.InputTokens)
	enc.AddInt64("output_tokens", u.OutputTokens)
	enc.AddInt64("cache_write_tokens", u.CacheWrite)
	enc.AddInt64("cache_read_tokens", u.CacheRead)
	return nil
}

// Meter accumulates Usage across concurrent callers. A nil *Meter discards.
type Meter struct {
	calls, in, out, cw, cr atomic.Int64
}

// Add records one reply's usage.
func (m *Meter) Add(u Usage) {
	if m == nil {
		return
	}
	m.calls.Add(u.Calls)
	m.in.Add(u.InputTokens)
	m.out.Add(u.OutputTokens)
	m.cw.Add(u.CacheWrite)
	m.cr.Add(u.CacheRead)
}

// Snapshot returns the totals recorded so far.
func (m *Meter) Snapshot() Usage {
	if m == nil {
		return Usage{}
	}
	return Usage{
		Calls:        m.calls.Load(),
		InputTokens:  m.in.Load(),
		OutputTokens: m.out.Load(),
		CacheWrite:   m.cw.Load(),
		CacheRead:    m.cr.Load(),
	}
}

// Log writes the current totals at info level.
func (m *Meter) Log(msg string) {
	u := m.Snapshot()
	zap.L().Info(msg, zap.Object("usage", u), zap.Float64("cache_hit_ratio", u.CacheHitRatio()))
}
