package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/rotisserie/eris"

	"github.com/sells-group/relgraph/internal/db"
	"github.com/sells-group/relgraph/internal/model"
)

// PostgresStore implements Store using pgxpool and the pgvector extension.
type PostgresStore struct {
	pool    db.Pool
	schema  string
	dims    int
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32  `yaml:"min_conns" mapstructure:"min_conns"`
	Schema   string `yaml:"schema" mapstructure:"schema"`
}

// NewPostgres creates a PostgresStore with a connection pool. dims is the
// embedding dimensionality used for the vector columns.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig, dims int) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	schema := "public"
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
		if poolCfg.Schema != "" {
			schema = poolCfg.Schema
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute
	pgxCfg.ConnConfig.RuntimeParams["search_path"] = schema

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, schema: schema, dims: dims, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS entities (
	id                 TEXT PRIMARY KEY,
	kind               TEXT NOT NULL,
	name               TEXT NOT NULL,
	domain             TEXT,
	description        TEXT,
	industry           TEXT,
	importance         DOUBLE PRECISION NOT NULL DEFAULT 0,
	title              TEXT,
	bio                TEXT,
	employer           TEXT,
	skills             JSONB,
	employment         JSONB,
	web_snippets       JSONB,
	taxonomy           JSONB,
	business_analysis  JSONB,
	ai_summary         TEXT,
	embedding          vector(%[1]d),
	taxonomy_embedding vector(%[1]d),
	enrichment_source  TEXT,
	enriched           BOOLEAN NOT NULL DEFAULT false,
	last_enriched_at   TIMESTAMPTZ,
	webpage_cache      JSONB,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_entities_kind ON entities(kind);
CREATE INDEX IF NOT EXISTS idx_entities_enriched ON entities(enriched);
CREATE INDEX IF NOT EXISTS idx_entities_importance ON entities(importance DESC);
CREATE INDEX IF NOT EXISTS idx_entities_lower_name ON entities(lower(name));

CREATE TABLE IF NOT EXISTS edges (
	id             TEXT PRIMARY KEY,
	source_id      TEXT NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
	target_id      TEXT NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
	kind           TEXT NOT NULL,
	strength_score DOUBLE PRECISION
);

CREATE INDEX IF NOT EXISTS idx_edges_source ON edges(source_id);
CREATE INDEX IF NOT EXISTS idx_edges_target ON edges(target_id);

CREATE TABLE IF NOT EXISTS enrichment_status (
	entity_id     TEXT PRIMARY KEY,
	status        TEXT NOT NULL,
	attempts      INTEGER NOT NULL DEFAULT 1,
	last_attempt  TIMESTAMPTZ NOT NULL DEFAULT now(),
	error_message TEXT
);

CREATE OR REPLACE FUNCTION match_entities(query_embedding vector(%[1]d), match_threshold DOUBLE PRECISION, match_count INTEGER)
RETURNS TABLE (id TEXT, similarity DOUBLE PRECISION)
LANGUAGE sql STABLE AS $$
	SELECT e.id, 1 - (e.embedding <=> query_embedding) AS similarity
	FROM entities e
	WHERE e.embedding IS NOT NULL
	  AND 1 - (e.embedding <=> query_embedding) > match_threshold
	ORDER BY e.embedding <=> query_embedding
	LIMIT match_count
$$;
`

// entityColumns is the select list scanned by scanEntity.
const entityColumns = `e.id, e.kind, e.name, COALESCE(e.domain, ''), COALESCE(e.description, ''),
	COALESCE(e.industry, ''), e.importance, COALESCE(e.title, ''), COALESCE(e.bio, ''),
	COALESCE(e.employer, ''), e.skills, e.employment, e.web_snippets, e.taxonomy,
	e.business_analysis, COALESCE(e.ai_summary, ''), COALESCE(e.enrichment_source, ''),
	e.enriched, e.last_enriched_at, e.webpage_cache`

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

// Migrate creates tables, indexes and the match_entities function.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, fmt.Sprintf(postgresMigration, s.dimensions()))
	return eris.Wrap(err, "postgres: migrate")
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) dimensions() int {
	if s.dims <= 0 {
		return 1536
	}
	return s.dims
}

func scanEntity(row pgx.Row) (*model.Entity, error) {
	var e model.Entity
	var j entityJSON
	var kind, source string
	err := row.Scan(&e.ID, &kind, &e.Name, &e.Domain, &e.Description,
		&e.Industry, &e.Importance, &e.Title, &e.Bio,
		&e.Employer, &j.skills, &j.employment, &j.snippets, &j.taxonomy,
		&j.analysis, &e.AISummary, &source,
		&e.Enriched, &e.LastEnrichedAt, &j.webpage)
	if err != nil {
		return nil, err
	}
	e.Kind = model.EntityKind(kind)
	e.EnrichmentSource = model.EnrichmentSource(source)
	if err := j.decodeInto(&e); err != nil {
		return nil, err
	}
	return &e, nil
}

func collectEntities(rows pgx.Rows, op string) ([]model.Entity, error) {
	defer rows.Close()
	var out []model.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, eris.Wrapf(err, "postgres: scan %s", op)
		}
		out = append(out, *e)
	}
	return out, eris.Wrapf(rows.Err(), "postgres: %s iterate", op)
}

// ListEntities returns up to pageSize entities with id > afterID, ordered by id.
func (s *PostgresStore) ListEntities(ctx context.Context, filter EntityFilter, afterID string, pageSize int) ([]model.Entity, error) {
	query := `SELECT ` + entityColumns + ` FROM entities e WHERE e.id > $1`
	args := []any{afterID}
	argIdx := 2

	if len(filter.Kinds) > 0 {
		kinds := make([]string, len(filter.Kinds))
		for i, k := range filter.Kinds {
			kinds[i] = string(k)
		}
		query += fmt.Sprintf(` AND e.kind = ANY($%d)`, argIdx)
		args = append(args, kinds)
		argIdx++
	}
	if filter.OnlyUnenriched {
		query += ` AND e.enriched = false`
	}
	if filter.OnlyFailed {
		query += ` AND EXISTS (SELECT 1 FROM enrichment_status st WHERE st.entity_id = e.id AND st.status = 'failed')`
	}
	if filter.NameLike != "" {
		query += fmt.Sprintf(` AND e.name ILIKE $%d`, argIdx)
		args = append(args, "%"+filter.NameLike+"%")
		argIdx++
	}

	if pageSize <= 0 {
		pageSize = 500
	}
	query += fmt.Sprintf(` ORDER BY e.id LIMIT $%d`, argIdx)
	args = append(args, pageSize)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list entities")
	}
	return collectEntities(rows, "list entities")
}

// GetEntity returns the entity with id, or nil when none exists.
func (s *PostgresStore) GetEntity(ctx context.Context, id string) (*model.Entity, error) {
	e, err := scanEntity(s.pool.QueryRow(ctx,
		`SELECT `+entityColumns+` FROM entities e WHERE e.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get entity %s", id)
	}
	return e, nil
}

// FindByName does a case-insensitive substring match, exact matches first.
func (s *PostgresStore) FindByName(ctx context.Context, name string, limit int) ([]model.Entity, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+entityColumns+` FROM entities e
		 WHERE e.name ILIKE $1
		 ORDER BY (lower(e.name) = lower($2)) DESC, e.importance DESC, e.id
		 LIMIT $3`,
		"%"+name+"%", name, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: find by name")
	}
	return collectEntities(rows, "find by name")
}

// SetWebpageCache stores scraped homepage content on an entity.
func (s *PostgresStore) SetWebpageCache(ctx context.Context, entityID string, cache model.WebpageCache) error {
	data, err := marshalNullable(&cache)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE entities SET webpage_cache = $1, updated_at = $2 WHERE id = $3`,
		data, time.Now().UTC(), entityID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set webpage cache %s", entityID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("entity not found: %s", entityID)
	}
	return nil
}

// UpdateEnrichment writes every derived field of an entity in one statement.
func (s *PostgresStore) UpdateEnrichment(ctx context.Context, u model.EnrichmentUpdate) error {
	taxJSON, err := marshalNullable(&u.Taxonomy)
	if err != nil {
		return err
	}
	analysisJSON, err := marshalNullable(&u.Analysis)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE entities SET
			taxonomy = $1, business_analysis = $2, ai_summary = $3,
			embedding = $4::vector, taxonomy_embedding = $5::vector,
			enrichment_source = $6, enriched = true, last_enriched_at = $7, updated_at = $7
		 WHERE id = $8`,
		taxJSON, analysisJSON, u.AISummary,
		vectorArg(u.Embedding), vectorArg(u.TaxonomyEmbedding),
		string(u.Source), u.EnrichedAt, u.EntityID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update enrichment %s", u.EntityID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("entity not found: %s", u.EntityID)
	}
	return nil
}

// vectorArg returns a pgvector value, or nil so the column is set to NULL.
func vectorArg(v []float32) any {
	if len(v) == 0 {
		return nil
	}
	return pgvector.NewVector(v)
}

// UpsertStatus records an attempt, incrementing attempts on conflict.
func (s *PostgresStore) UpsertStatus(ctx context.Context, st model.EnrichmentStatus) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO enrichment_status (entity_id, status, attempts, last_attempt, error_message)
		 VALUES ($1, $2, 1, $3, $4)
		 ON CONFLICT (entity_id) DO UPDATE SET
			status = EXCLUDED.status,
			attempts = enrichment_status.attempts + 1,
			last_attempt = EXCLUDED.last_attempt,
			error_message = EXCLUDED.error_message`,
		st.EntityID, string(st.Status), st.LastAttempt, nullIfEmpty(st.ErrorMessage),
	)
	return eris.Wrapf(err, "postgres: upsert status %s", st.EntityID)
}

// GetStatus returns the status row for an entity, or nil when none exists.
func (s *PostgresStore) GetStatus(ctx context.Context, entityID string) (*model.EnrichmentStatus, error) {
	var st model.EnrichmentStatus
	var status string
	err := s.pool.QueryRow(ctx,
		`SELECT entity_id, status, attempts, last_attempt, COALESCE(error_message, '')
		 FROM enrichment_status WHERE entity_id = $1`,
		entityID,
	).Scan(&st.EntityID, &status, &st.Attempts, &st.LastAttempt, &st.ErrorMessage)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get status %s", entityID)
	}
	st.Status = model.StatusValue(status)
	return &st, nil
}

// IncidentEdges returns edges touching entityID in either direction, strongest first.
func (s *PostgresStore) IncidentEdges(ctx context.Context, entityID string, limit int) ([]Incident, error) {
	if limit <= 0 {
		limit = 25
	}
	rows, err := s.pool.Query(ctx,
		`SELECT ed.id, ed.source_id, ed.target_id, ed.kind, ed.strength_score,
			n.id, n.name, n.kind, COALESCE(n.domain, '')
		 FROM edges ed
		 JOIN entities n ON n.id = CASE WHEN ed.source_id = $1 THEN ed.target_id ELSE ed.source_id END
		 WHERE ed.source_id = $1 OR ed.target_id = $1
		 ORDER BY COALESCE(ed.strength_score, 0.5) DESC, ed.id
		 LIMIT $2`,
		entityID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: incident edges")
	}
	defer rows.Close()

	var out []Incident
	for rows.Next() {
		var in Incident
		var kind string
		if err := rows.Scan(&in.Edge.ID, &in.Edge.SourceID, &in.Edge.TargetID, &in.Edge.Kind, &in.Edge.Strength,
			&in.Neighbor.ID, &in.Neighbor.Name, &kind, &in.Neighbor.Domain); err != nil {
			return nil, eris.Wrap(err, "postgres: scan edge")
		}
		in.Neighbor.Kind = model.EntityKind(kind)
		out = append(out, in)
	}
	return out, eris.Wrap(rows.Err(), "postgres: incident edges iterate")
}

// SearchLexical returns entities whose name, industry, domain, description,
// summary or taxonomy contains any of terms, ordered by importance.
func (s *PostgresStore) SearchLexical(ctx context.Context, terms []string, filter SearchFilter, limit int) ([]model.Entity, error) {
	if len(terms) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}

	var ors []string
	var args []any
	argIdx := 1
	for _, t := range terms {
		ors = append(ors, fmt.Sprintf(
			`e.name ILIKE $%[1]d OR e.industry ILIKE $%[1]d OR e.domain ILIKE $%[1]d OR e.description ILIKE $%[1]d OR e.ai_summary ILIKE $%[1]d OR e.taxonomy::text ILIKE $%[1]d`,
			argIdx))
		args = append(args, "%"+t+"%")
		argIdx++
	}
	query := `SELECT ` + entityColumns + ` FROM entities e WHERE (` + strings.Join(ors, " OR ") + `)`

	if filter.Kind != "" {
		query += fmt.Sprintf(` AND e.kind = $%d`, argIdx)
		args = append(args, string(filter.Kind))
		argIdx++
	}
	if filter.TaxonomyPrefix != "" {
		query += fmt.Sprintf(` AND e.taxonomy->>'primary' LIKE $%d`, argIdx)
		args = append(args, filter.TaxonomyPrefix+"%")
		argIdx++
	}
	if filter.EnrichedOnly {
		query += ` AND e.enriched = true`
	}
	query += fmt.Sprintf(` ORDER BY e.importance DESC, e.id LIMIT $%d`, argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: search lexical")
	}
	return collectEntities(rows, "search lexical")
}

// MatchEntities runs the match_entities similarity function.
func (s *PostgresStore) MatchEntities(ctx context.Context, embedding []float32, threshold float64, count int) ([]Match, error) {
	if len(embedding) == 0 {
		return nil, eris.New("postgres: match entities: empty embedding")
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+entityColumns+`, m.similarity
		 FROM match_entities($1::vector, $2, $3) m
		 JOIN entities e ON e.id = m.id
		 ORDER BY m.similarity DESC`,
		pgvector.NewVector(embedding), threshold, count,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: match entities")
	}
	defer rows.Close()

	var out []Match
	for rows.Next() {
		var m Match
		var j entityJSON
		var kind, source string
		e := &m.Entity
		if err := rows.Scan(&e.ID, &kind, &e.Name, &e.Domain, &e.Description,
			&e.Industry, &e.Importance, &e.Title, &e.Bio,
			&e.Employer, &j.skills, &j.employment, &j.snippets, &j.taxonomy,
			&j.analysis, &e.AISummary, &source,
			&e.Enriched, &e.LastEnrichedAt, &j.webpage, &m.Similarity); err != nil {
			return nil, eris.Wrap(err, "postgres: scan match")
		}
		e.Kind = model.EntityKind(kind)
		e.EnrichmentSource = model.EnrichmentSource(source)
		if err := j.decodeInto(e); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "postgres: match entities iterate")
}

var importEntityColumns = []string{
	"id", "kind", "name", "domain", "description", "industry", "importance",
	"title", "bio", "employer", "skills", "employment", "web_snippets",
}

// ImportEntities bulk-upserts source entity fields. Enrichment columns are
// left untouched.
func (s *PostgresStore) ImportEntities(ctx context.Context, entities []model.Entity) (int64, error) {
	rows := make([][]any, 0, len(entities))
	for i := range entities {
		e := &entities[i]
		j, err := encodeEntity(e)
		if err != nil {
			return 0, err
		}
		rows = append(rows, []any{
			e.ID, string(e.Kind), e.Name, nullIfEmpty(e.Domain), nullIfEmpty(e.Description),
			nullIfEmpty(e.Industry), e.Importance, nullIfEmpty(e.Title), nullIfEmpty(e.Bio),
			nullIfEmpty(e.Employer), j.skills, j.employment, j.snippets,
		})
	}
	n, err := db.MergeRows(ctx, s.pool, db.MergeSpec{
		Table:   s.schema + ".entities",
		Columns: importEntityColumns,
		Key:     "id",
	}, rows)
	return n, eris.Wrap(err, "postgres: import entities")
}

// ImportEdges bulk-upserts relationship edges.
func (s *PostgresStore) ImportEdges(ctx context.Context, edges []model.Edge) (int64, error) {
	rows := make([][]any, 0, len(edges))
	for _, e := range edges {
		rows = append(rows, []any{e.ID, e.SourceID, e.TargetID, e.Kind, e.Strength})
	}
	n, err := db.MergeRows(ctx, s.pool, db.MergeSpec{
		Table:   s.schema + ".edges",
		Columns: []string{"id", "source_id", "target_id", "kind", "strength_score"},
		Key:     "id",
	}, rows)
	return n, eris.Wrap(err, "postgres: import edges")
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
