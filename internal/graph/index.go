// Package graph answers adjacency queries over the relationship graph and
// finds introduction paths between entities.
package graph

import (
	"context"
	"slices"

	"github.com/rotisserie/eris"

	"github.com/sells-group/relgraph/internal/model"
	"github.com/sells-group/relgraph/internal/store"
)

// Neighbor is the far end of an incident edge. Kind is the edge's
// relationship label; Outgoing is true when the queried node is the edge's
// source.
type Neighbor struct {
	ID         string           `json:"id"`
	Name       string           `json:"name"`
	EntityKind model.EntityKind `json:"entity_kind"`
	Domain     string           `json:"domain,omitempty"`
	Kind       string           `json:"kind"`
	Strength   float64          `json:"strength"`
	Outgoing   bool             `json:"outgoing"`
}

// Index is an on-demand adjacency lookup. Nothing is held in memory between
// calls.
type Index interface {
	// Neighbors returns up to limit incident edges in either direction,
	// strongest first.
	Neighbors(ctx context.Context, id string, limit int) ([]Neighbor, error)
	// Outgoing returns neighbors reached by edges leaving id whose kind is in
	// kinds.
	Outgoing(ctx context.Context, id string, kinds []string, limit int) ([]Neighbor, error)
}

// StoreIndex answers adjacency queries from the entity store.
type StoreIndex struct {
	store store.Store
}

// NewStoreIndex creates a StoreIndex.
func NewStoreIndex(st store.Store) *StoreIndex {
	return &StoreIndex{store: st}
}

// Neighbors implements Index.
func (s *StoreIndex) Neighbors(ctx context.Context, id string, limit int) ([]Neighbor, error) {
	incidents, err := s.store.IncidentEdges(ctx, id, limit)
	if err != nil {
		return nil, eris.Wrapf(err, "graph: neighbors of %s", id)
	}
	out := make([]Neighbor, 0, len(incidents))
	for _, inc := range incidents {
		out = append(out, fromIncident(id, inc))
	}
	return out, nil
}

// Outgoing implements Index. Incoming edges are skipped, so the underlying
// query over-fetches by a factor of two before filtering.
func (s *StoreIndex) Outgoing(ctx context.Context, id string, kinds []string, limit int) ([]Neighbor, error) {
	all, err := s.Neighbors(ctx, id, limit*2)
	if err != nil {
		return nil, err
	}
	var out []Neighbor
	for _, n := range all {
		if !n.Outgoing || (len(kinds) > 0 && !slices.Contains(kinds, n.Kind)) {
			continue
		}
		out = append(out, n)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func fromIncident(id string, inc store.Incident) Neighbor {
	return Neighbor{
		ID:         inc.Neighbor.ID,
		Name:       inc.Neighbor.Name,
		EntityKind: inc.Neighbor.Kind,
		Domain:     inc.Neighbor.Domain,
		Kind:       inc.Edge.Kind,
		Strength:   inc.Edge.StrengthScore(),
		Outgoing:   inc.Edge.SourceID == id,
	}
}
