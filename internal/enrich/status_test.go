package enrich

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/relgraph/internal/model"
)

// blockingWriter holds every write until release is closed.
type blockingWriter struct {
	release chan struct{}
	statusRecorder
}

func (w *blockingWriter) UpsertStatus(ctx context.Context, st model.EnrichmentStatus) error {
	<-w.release
	return w.statusRecorder.UpsertStatus(ctx, st)
}

func TestStatusEmitter_WritesAndFlushes(t *testing.T) {
	rec := &statusRecorder{}
	s := NewStatusEmitter(rec, 4)
	s.Emit(model.EnrichmentStatus{EntityID: "a", Status: model.StatusCompleted})
	s.Emit(model.EnrichmentStatus{EntityID: "b", Status: model.StatusFailed, ErrorMessage: "boom"})
	s.Close()

	rows := rec.byEntity()
	require.Len(t, rows, 2)
	assert.Equal(t, "boom", rows["b"].ErrorMessage)
	assert.EqualValues(t, 2, s.Written())
	assert.Zero(t, s.Dropped())
}

func TestStatusEmitter_DropsWhenFull(t *testing.T) {
	w := &blockingWriter{release: make(chan struct{})}
	s := NewStatusEmitter(w, 1)

	for i := 0; i < 10; i++ {
		s.Emit(model.EnrichmentStatus{EntityID: "x", Status: model.StatusCompleted})
	}
	assert.Positive(t, s.Dropped())

	close(w.release)
	s.Close()
	assert.EqualValues(t, 10, s.Dropped()+s.Written())
}

func TestStatusEmitter_EmitAfterCloseIsNoop(t *testing.T) {
	rec := &statusRecorder{}
	s := NewStatusEmitter(rec, 1)
	s.Close()
	s.Close()
	s.Emit(model.EnrichmentStatus{EntityID: "late"})
	assert.Empty(t, rec.byEntity())
}
