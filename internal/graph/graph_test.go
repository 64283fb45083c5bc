package graph

import (
	"container/heap"
	"context"
	"errors"
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/relgraph/internal/model"
	"github.com/sells-group/relgraph/internal/store"
)

// memIndex is an undirected adjacency list for tests.
type memIndex struct {
	adj   map[string][]Neighbor
	calls map[string]int
	err   error
}

func newMemIndex() *memIndex {
	return &memIndex{adj: map[string][]Neighbor{}, calls: map[string]int{}}
}

func (m *memIndex) link(src, dst, kind string, strength float64) {
	m.adj[src] = append(m.adj[src], Neighbor{ID: dst, Name: dst, Kind: kind, Strength: strength, Outgoing: true})
	m.adj[dst] = append(m.adj[dst], Neighbor{ID: src, Name: src, Kind: kind, Strength: strength})
}

func (m *memIndex) Neighbors(_ context.Context, id string, limit int) ([]Neighbor, error) {
	m.calls[id]++
	if m.err != nil {
		return nil, m.err
	}
	ns := m.adj[id]
	if len(ns) > limit {
		ns = ns[:limit]
	}
	return ns, nil
}

func (m *memIndex) Outgoing(ctx context.Context, id string, kinds []string, limit int) ([]Neighbor, error) {
	ns, _ := m.Neighbors(ctx, id, limit)
	var out []Neighbor
	for _, n := range ns {
		if n.Outgoing {
			out = append(out, n)
		}
	}
	return out, nil
}

func TestFind_OneDegreeViaFounder(t *testing.T) {
	t.Parallel()
	idx := newMemIndex()
	idx.link("S", "A", "founder", 0.95)
	idx.link("A", "T", "employee", 0.70)

	paths, err := NewPathFinder(idx, PathConfig{}).Find(context.Background(), "S", "T", 5)
	require.NoError(t, err)
	require.Len(t, paths, 1)

	p := paths[0]
	assert.Equal(t, []string{"S", "A", "T"}, p.IDs())
	assert.Equal(t, 2, p.Depth)
	assert.Equal(t, "One degree of separation", p.Description)
	assert.InDelta(t, 0.6, p.Score, 1e-9)
	assert.Equal(t, "founder", p.Nodes[1].Relationship)
	assert.Equal(t, "employee", p.Nodes[2].Relationship)
}

func TestFind_DirectConnection(t *testing.T) {
	t.Parallel()
	idx := newMemIndex()
	idx.link("S", "T", "colleague", 0.9)

	paths, err := NewPathFinder(idx, PathConfig{}).Find(context.Background(), "S", "T", 3)
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Equal(t, "Direct connection", paths[0].Description)
	assert.InDelta(t, 0.8, paths[0].Score, 1e-9)
}

func TestFind_MultiplePathsSortedAndAcyclic(t *testing.T) {
	t.Parallel()
	idx := newMemIndex()
	idx.link("S", "A", "founder", 0.9)
	idx.link("S", "B", "colleague", 0.4)
	idx.link("A", "B", "partner", 0.8)
	idx.link("A", "T", "works_at", 0.7)
	idx.link("B", "T", "advisor", 0.6)
	idx.link("S", "T", "colleague", 0.2)
	idx.link("B", "C", "advisor", 0.6)
	idx.link("C", "T", "advisor", 0.6)

	cfg := PathConfig{MaxDepth: 3}
	paths, err := NewPathFinder(idx, cfg).Find(context.Background(), "S", "T", 10)
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for i, p := range paths {
		seen := map[string]bool{}
		for _, id := range p.IDs() {
			assert.False(t, seen[id], "path %v revisits %s", p.IDs(), id)
			seen[id] = true
		}
		assert.LessOrEqual(t, len(p.Nodes), cfg.MaxDepth+1)
		assert.Equal(t, "S", p.Nodes[0].ID)
		assert.Equal(t, "T", p.Nodes[len(p.Nodes)-1].ID)
		if i > 0 {
			assert.LessOrEqual(t, p.Score, paths[i-1].Score)
		}
	}
	assert.Equal(t, "Direct connection", paths[0].Description)
}

func TestFind_RespectsLimitAndDepth(t *testing.T) {
	t.Parallel()
	idx := newMemIndex()
	// Chain S-1-2-3-T is four hops, beyond max depth 3.
	idx.link("S", "1", "colleague", 0.5)
	idx.link("1", "2", "colleague", 0.5)
	idx.link("2", "3", "colleague", 0.5)
	idx.link("3", "T", "colleague", 0.5)

	paths, err := NewPathFinder(idx, PathConfig{MaxDepth: 3}).Find(context.Background(), "S", "T", 5)
	require.NoError(t, err)
	assert.Empty(t, paths)
	assert.Zero(t, idx.calls["3"], "nodes at max depth are not expanded")

	idx.link("S", "T", "colleague", 0.5)
	idx.link("1", "T", "colleague", 0.5)
	paths, err = NewPathFinder(idx, PathConfig{MaxDepth: 3}).Find(context.Background(), "S", "T", 1)
	require.NoError(t, err)
	assert.Len(t, paths, 1)
}

func TestFind_MaxNodesBoundsExpansion(t *testing.T) {
	t.Parallel()
	idx := newMemIndex()
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		idx.link("S", id, "colleague", 0.5)
	}

	_, err := NewPathFinder(idx, PathConfig{MaxNodes: 2}).Find(context.Background(), "S", "T", 3)
	require.NoError(t, err)

	total := 0
	for _, n := range idx.calls {
		total += n
	}
	assert.Equal(t, 2, total)
}

func TestFrontier_TieBreakByInsertionOrder(t *testing.T) {
	t.Parallel()
	pq := &frontier{}
	for i, id := range []string{"first", "second", "third"} {
		heap.Push(pq, &frontierItem{id: id, score: 1, seq: i})
	}
	heap.Push(pq, &frontierItem{id: "best", score: 2, seq: 3})

	var order []string
	for pq.Len() > 0 {
		order = append(order, heap.Pop(pq).(*frontierItem).id)
	}
	assert.Equal(t, []string{"best", "first", "second", "third"}, order)
}

func TestFind_EdgeCases(t *testing.T) {
	t.Parallel()
	idx := newMemIndex()
	pf := NewPathFinder(idx, PathConfig{})

	paths, err := pf.Find(context.Background(), "S", "S", 3)
	require.NoError(t, err)
	assert.Empty(t, paths)

	_, err = pf.Find(context.Background(), "", "T", 3)
	require.Error(t, err)

	idx.err = errors.New("db down")
	_, err = pf.Find(context.Background(), "S", "T", 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewPathFinder(newMemIndex(), PathConfig{}).Find(ctx, "S", "T", 3)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDescribeDepth(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "Direct connection", DescribeDepth(1))
	assert.Equal(t, "One degree of separation", DescribeDepth(2))
	assert.Equal(t, "Two degrees of separation", DescribeDepth(3))
	assert.Equal(t, "4 degrees of separation", DescribeDepth(5))
}

func TestKindWeight(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 0.95, KindWeight("founder"))
	assert.Equal(t, 0.95, KindWeight(" Co_Founder "))
	assert.Equal(t, 0.65, KindWeight("colleague"))
	assert.Equal(t, 0.5, KindWeight("met_at_conference"))
	assert.InDelta(t, 0.825, EdgeWeight(0.7, "founder"), 1e-9)
}

// incidentStore serves IncidentEdges from a fixed slice.
type incidentStore struct {
	store.Store
	incidents []store.Incident
	limit     int
}

func (s *incidentStore) IncidentEdges(_ context.Context, _ string, limit int) ([]store.Incident, error) {
	s.limit = limit
	return s.incidents, nil
}

func TestStoreIndex(t *testing.T) {
	t.Parallel()
	strong := 0.9
	st := &incidentStore{incidents: []store.Incident{
		{Edge: model.Edge{SourceID: "p1", TargetID: "o1", Kind: "founder", Strength: &strong},
			Neighbor: store.Neighbor{ID: "o1", Name: "Acme", Kind: model.KindOrganization, Domain: "acme.com"}},
		{Edge: model.Edge{SourceID: "p2", TargetID: "p1", Kind: "colleague"},
			Neighbor: store.Neighbor{ID: "p2", Name: "Bob", Kind: model.KindPerson}},
		{Edge: model.Edge{SourceID: "p1", TargetID: "o2", Kind: "advisor"},
			Neighbor: store.Neighbor{ID: "o2", Name: "Globex", Kind: model.KindOrganization}},
	}}
	idx := NewStoreIndex(st)

	ns, err := idx.Neighbors(context.Background(), "p1", 10)
	require.NoError(t, err)
	require.Len(t, ns, 3)
	assert.Equal(t, Neighbor{ID: "o1", Name: "Acme", EntityKind: model.KindOrganization, Domain: "acme.com", Kind: "founder", Strength: 0.9, Outgoing: true}, ns[0])
	assert.False(t, ns[1].Outgoing)
	assert.Equal(t, model.DefaultEdgeStrength, ns[1].Strength)

	out, err := idx.Outgoing(context.Background(), "p1", []string{"founder", "works_at"}, 5)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "o1", out[0].ID)
	assert.Equal(t, 10, st.limit)
}

func TestNeighborFromRecord(t *testing.T) {
	t.Parallel()
	rec := &neo4j.Record{
		Keys:   []string{"id", "name", "entity_kind", "domain", "kind", "strength", "outgoing"},
		Values: []any{"o1", "Acme", "organization", nil, "founder", 0.8, true},
	}
	n := neighborFromRecord(rec)
	assert.Equal(t, Neighbor{ID: "o1", Name: "Acme", EntityKind: model.KindOrganization, Kind: "founder", Strength: 0.8, Outgoing: true}, n)

	rec = &neo4j.Record{Keys: []string{"id", "strength"}, Values: []any{"x", int64(1)}}
	n = neighborFromRecord(rec)
	assert.Equal(t, 1.0, n.Strength)
	assert.False(t, n.Outgoing)
}
