package search

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/relgraph/internal/model"
	"github.com/sells-group/relgraph/internal/store"
)

type mockStore struct {
	store.Store
	mock.Mock
}

func (m *mockStore) SearchLexical(ctx context.Context, terms []string, f store.SearchFilter, limit int) ([]model.Entity, error) {
	args := m.Called(ctx, terms, f, limit)
	es, _ := args.Get(0).([]model.Entity)
	return es, args.Error(1)
}

func (m *mockStore) MatchEntities(ctx context.Context, vec []float32, threshold float64, count int) ([]store.Match, error) {
	args := m.Called(ctx, vec, threshold, count)
	ms, _ := args.Get(0).([]store.Match)
	return ms, args.Error(1)
}

func (m *mockStore) FindByName(ctx context.Context, name string, limit int) ([]model.Entity, error) {
	args := m.Called(ctx, name, limit)
	es, _ := args.Get(0).([]model.Entity)
	return es, args.Error(1)
}

type mockEmbedder struct{ mock.Mock }

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	v, _ := args.Get(0).([]float32)
	return v, args.Error(1)
}

func (m *mockEmbedder) Dimensions() int { return 3 }

type mockPaths struct{ mock.Mock }

func (m *mockPaths) Find(ctx context.Context, anchorID, targetID string, limit int) ([]model.Path, error) {
	args := m.Called(ctx, anchorID, targetID, limit)
	ps, _ := args.Get(0).([]model.Path)
	return ps, args.Error(1)
}

type rankerFunc func(ctx context.Context, query string, limit int, f store.SearchFilter) ([]model.SearchResult, error)

func (f rankerFunc) Rank(ctx context.Context, query string, limit int, filter store.SearchFilter) ([]model.SearchResult, error) {
	return f(ctx, query, limit, filter)
}
