package enrich

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/relgraph/internal/model"
)

const statusWriteTimeout = 10 * time.Second

// StatusWriter persists enrichment status rows.
type StatusWriter interface {
	UpsertStatus(ctx context.Context, st model.EnrichmentStatus) error
}

// StatusEmitter writes status rows from a background goroutine. Emit never
// blocks: when the buffer is full the row is dropped with a warning.
type StatusEmitter struct {
	writer  StatusWriter
	ch      chan model.EnrichmentStatus
	done    chan struct{}
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
	written atomic.Int64
}

// NewStatusEmitter starts the background writer.
func NewStatusEmitter(w StatusWriter, buffer int) *StatusEmitter {
	if buffer <= 0 {
		buffer = 256
	}
	s := &StatusEmitter{
		writer: w,
		ch:     make(chan model.EnrichmentStatus, buffer),
		done:   make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *StatusEmitter) run() {
	defer close(s.done)
	for st := range s.ch {
		ctx, cancel := context.WithTimeout(context.Background(), statusWriteTimeout)
		err := s.writer.UpsertStatus(ctx, st)
		cancel()
		if err != nil {
			zap.L().Warn("enrich: status write failed",
				zap.String("entity", st.EntityID),
				zap.String("status", string(st.Status)),
				zap.Error(err),
			)
			continue
		}
		s.written.Add(1)
	}
}

// Emit queues st for writing.
func (s *StatusEmitter) Emit(st model.EnrichmentStatus) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- st:
	default:
		s.dropped.Add(1)
		zap.L().Warn("enrich: status buffer full, dropping update",
			zap.String("entity", st.EntityID),
			zap.String("status", string(st.Status)),
		)
	}
}

// Close flushes queued rows and stops the writer.
func (s *StatusEmitter) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
	s.mu.Unlock()
	<-s.done
}

// Dropped returns how many rows were discarded because the buffer was full.
func (s *StatusEmitter) Dropped() int64 { return s.dropped.Load() }

// Written returns how many rows were persisted.
func (s *StatusEmitter) Written() int64 { return s.written.Load() }
