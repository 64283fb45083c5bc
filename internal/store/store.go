// Package store persists entities, relationship edges, enrichment status and
// vectors. PostgresStore is the production backend (pgx + pgvector);
// SQLiteStore serves local runs and tests.
package store

import (
	"context"

	"github.com/sells-group/relgraph/internal/model"
)

// EntityFilter narrows ListEntities.
type EntityFilter struct {
	Kinds          []model.EntityKind `json:"kinds,omitempty"`
	OnlyUnenriched bool               `json:"only_unenriched,omitempty"`
	OnlyFailed     bool               `json:"only_failed,omitempty"` // last status is failed
	NameLike       string             `json:"name_like,omitempty"`
}

// SearchFilter narrows lexical search.
type SearchFilter struct {
	Kind           model.EntityKind `json:"kind,omitempty"`
	TaxonomyPrefix string           `json:"taxonomy_prefix,omitempty"`
	EnrichedOnly   bool             `json:"enriched_only,omitempty"`
}

// Neighbor is the far endpoint of an incident edge.
type Neighbor struct {
	ID     string           `json:"id"`
	Name   string           `json:"name"`
	Kind   model.EntityKind `json:"kind"`
	Domain string           `json:"domain,omitempty"`
}

// Incident pairs an edge with the entity on its other end.
type Incident struct {
	Edge     model.Edge `json:"edge"`
	Neighbor Neighbor   `json:"neighbor"`
}

// Match is a vector-similarity hit.
type Match struct {
	Entity     model.Entity `json:"entity"`
	Similarity float64      `json:"similarity"`
}

// Store defines the persistence interface for enrichment and search.
type Store interface {
	// Entities
	ListEntities(ctx context.Context, filter EntityFilter, afterID string, pageSize int) ([]model.Entity, error)
	GetEntity(ctx context.Context, id string) (*model.Entity, error)
	FindByName(ctx context.Context, name string, limit int) ([]model.Entity, error)
	SetWebpageCache(ctx context.Context, entityID string, cache model.WebpageCache) error
	UpdateEnrichment(ctx context.Context, u model.EnrichmentUpdate) error

	// Enrichment status
	UpsertStatus(ctx context.Context, st model.EnrichmentStatus) error
	GetStatus(ctx context.Context, entityID string) (*model.EnrichmentStatus, error)

	// Graph
	IncidentEdges(ctx context.Context, entityID string, limit int) ([]Incident, error)

	// Search
	SearchLexical(ctx context.Context, terms []string, filter SearchFilter, limit int) ([]model.Entity, error)
	MatchEntities(ctx context.Context, embedding []float32, threshold float64, count int) ([]Match, error)

	// Import
	ImportEntities(ctx context.Context, entities []model.Entity) (int64, error)
	ImportEdges(ctx context.Context, edges []model.Edge) (int64, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}
