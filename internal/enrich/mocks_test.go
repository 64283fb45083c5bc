package enrich

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/relgraph/internal/graph"
	"github.com/sells-group/relgraph/internal/model"
	"github.com/sells-group/relgraph/internal/scrape"
	"github.com/sells-group/relgraph/internal/store"
	"github.com/sells-group/relgraph/pkg/anthropic"
	"github.com/sells-group/relgraph/pkg/perplexity"
)

type mockAnthropic struct{ mock.Mock }

func (m *mockAnthropic) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*anthropic.MessageResponse)
	return resp, args.Error(1)
}

func textResponse(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{Content: []anthropic.ContentBlock{{Type: "text", Text: text}}}
}

type mockPerplexity struct{ mock.Mock }

func (m *mockPerplexity) ChatCompletion(ctx context.Context, req perplexity.ChatCompletionRequest) (*perplexity.ChatCompletionResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*perplexity.ChatCompletionResponse)
	return resp, args.Error(1)
}

func chatResponse(content string) *perplexity.ChatCompletionResponse {
	return &perplexity.ChatCompletionResponse{
		Choices: []perplexity.Choice{{Message: perplexity.Message{Role: "assistant", Content: content}}},
	}
}

type mockScraper struct{ mock.Mock }

func (m *mockScraper) Scrape(ctx context.Context, url string) (*scrape.Result, error) {
	args := m.Called(ctx, url)
	res, _ := args.Get(0).(*scrape.Result)
	return res, args.Error(1)
}

// mockStore implements the store methods enrichment touches; anything else
// panics through the nil embedded interface.
type mockStore struct {
	store.Store
	mock.Mock
}

func (m *mockStore) ListEntities(ctx context.Context, f store.EntityFilter, afterID string, pageSize int) ([]model.Entity, error) {
	args := m.Called(ctx, f, afterID, pageSize)
	es, _ := args.Get(0).([]model.Entity)
	return es, args.Error(1)
}

func (m *mockStore) GetEntity(ctx context.Context, id string) (*model.Entity, error) {
	args := m.Called(ctx, id)
	e, _ := args.Get(0).(*model.Entity)
	return e, args.Error(1)
}

func (m *mockStore) SetWebpageCache(ctx context.Context, id string, wc model.WebpageCache) error {
	return m.Called(ctx, id, wc).Error(0)
}

func (m *mockStore) UpdateEnrichment(ctx context.Context, u model.EnrichmentUpdate) error {
	return m.Called(ctx, u).Error(0)
}

func (m *mockStore) UpsertStatus(ctx context.Context, st model.EnrichmentStatus) error {
	return m.Called(ctx, st).Error(0)
}

// fakeEmbedder returns a constant vector of dims length.
type fakeEmbedder struct {
	dims    int
	outLen  int
	mu      sync.Mutex
	inputs  []string
	failFor string
	err     error
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	f.inputs = append(f.inputs, text)
	f.mu.Unlock()
	if f.err != nil && (f.failFor == "" || f.failFor == text) {
		return nil, f.err
	}
	n := f.outLen
	if n == 0 {
		n = f.dims
	}
	return make([]float32, n), nil
}

func (f *fakeEmbedder) Dimensions() int { return f.dims }

// staticIndex serves fixed outgoing neighbors.
type staticIndex struct {
	outgoing []graph.Neighbor
	err      error
	calls    int
}

func (s *staticIndex) Neighbors(context.Context, string, int) ([]graph.Neighbor, error) {
	return s.outgoing, s.err
}

func (s *staticIndex) Outgoing(context.Context, string, []string, int) ([]graph.Neighbor, error) {
	s.calls++
	return s.outgoing, s.err
}

// statusRecorder is an in-memory StatusWriter.
type statusRecorder struct {
	mu   sync.Mutex
	rows []model.EnrichmentStatus
}

func (r *statusRecorder) UpsertStatus(_ context.Context, st model.EnrichmentStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = append(r.rows, st)
	return nil
}

func (r *statusRecorder) byEntity() map[string]model.EnrichmentStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]model.EnrichmentStatus, len(r.rows))
	for _, st := range r.rows {
		out[st.EntityID] = st
	}
	return out
}
