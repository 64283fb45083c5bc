package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/relgraph/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Vectors are stored
// as JSON arrays and similarity is computed in Go.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	if dsn == ":memory:" {
		// Each pooled connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS entities (
	id                 TEXT PRIMARY KEY,
	kind               TEXT NOT NULL,
	name               TEXT NOT NULL,
	domain             TEXT,
	description        TEXT,
	industry           TEXT,
	importance         REAL NOT NULL DEFAULT 0,
	title              TEXT,
	bio                TEXT,
	employer           TEXT,
	skills             TEXT,
	employment         TEXT,
	web_snippets       TEXT,
	taxonomy           TEXT,
	business_analysis  TEXT,
	ai_summary         TEXT,
	embedding          TEXT,
	taxonomy_embedding TEXT,
	enrichment_source  TEXT,
	enriched           INTEGER NOT NULL DEFAULT 0,
	last_enriched_at   DATETIME,
	webpage_cache      TEXT,
	created_at         DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at         DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_entities_kind ON entities(kind);
CREATE INDEX IF NOT EXISTS idx_entities_enriched ON entities(enriched);
CREATE INDEX IF NOT EXISTS idx_entities_importance ON entities(importance);

CREATE TABLE IF NOT EXISTS edges (
	id             TEXT PRIMARY KEY,
	source_id      TEXT NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
	target_id      TEXT NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
	kind           TEXT NOT NULL,
	strength_score REAL
);

CREATE INDEX IF NOT EXISTS idx_edges_source ON edges(source_id);
CREATE INDEX IF NOT EXISTS idx_edges_target ON edges(target_id);

CREATE TABLE IF NOT EXISTS enrichment_status (
	entity_id     TEXT PRIMARY KEY,
	status        TEXT NOT NULL,
	attempts      INTEGER NOT NULL DEFAULT 1,
	last_attempt  DATETIME NOT NULL,
	error_message TEXT
);
`

const sqliteEntityColumns = `id, kind, name, COALESCE(domain, ''), COALESCE(description, ''),
	COALESCE(industry, ''), importance, COALESCE(title, ''), COALESCE(bio, ''),
	COALESCE(employer, ''), skills, employment, web_snippets, taxonomy,
	business_analysis, COALESCE(ai_summary, ''), COALESCE(enrichment_source, ''),
	enriched, last_enriched_at, webpage_cache`

// Ping checks database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

// Migrate creates the schema.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteEntity(row rowScanner, extra ...any) (*model.Entity, error) {
	var e model.Entity
	var kind, source string
	var skills, employment, snippets, taxonomy, analysis, webpage sql.NullString
	var lastEnriched sql.NullTime

	dest := []any{&e.ID, &kind, &e.Name, &e.Domain, &e.Description,
		&e.Industry, &e.Importance, &e.Title, &e.Bio,
		&e.Employer, &skills, &employment, &snippets, &taxonomy,
		&analysis, &e.AISummary, &source,
		&e.Enriched, &lastEnriched, &webpage}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	e.Kind = model.EntityKind(kind)
	e.EnrichmentSource = model.EnrichmentSource(source)
	if lastEnriched.Valid {
		t := lastEnriched.Time
		e.LastEnrichedAt = &t
	}
	j := entityJSON{
		skills:     []byte(skills.String),
		employment: []byte(employment.String),
		snippets:   []byte(snippets.String),
		taxonomy:   []byte(taxonomy.String),
		analysis:   []byte(analysis.String),
		webpage:    []byte(webpage.String),
	}
	if err := j.decodeInto(&e); err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *SQLiteStore) queryEntities(ctx context.Context, op, query string, args ...any) ([]model.Entity, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: %s", op)
	}
	defer rows.Close()

	var out []model.Entity
	for rows.Next() {
		e, err := scanSQLiteEntity(rows)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: scan %s", op)
		}
		out = append(out, *e)
	}
	return out, eris.Wrapf(rows.Err(), "sqlite: %s iterate", op)
}

// ListEntities returns up to pageSize entities with id > afterID, ordered by id.
func (s *SQLiteStore) ListEntities(ctx context.Context, filter EntityFilter, afterID string, pageSize int) ([]model.Entity, error) {
	query := `SELECT ` + sqliteEntityColumns + ` FROM entities WHERE id > ?`
	args := []any{afterID}

	if len(filter.Kinds) > 0 {
		query += ` AND kind IN (` + placeholders(len(filter.Kinds)) + `)`
		for _, k := range filter.Kinds {
			args = append(args, string(k))
		}
	}
	if filter.OnlyUnenriched {
		query += ` AND enriched = 0`
	}
	if filter.OnlyFailed {
		query += ` AND EXISTS (SELECT 1 FROM enrichment_status st WHERE st.entity_id = entities.id AND st.status = 'failed')`
	}
	if filter.NameLike != "" {
		query += ` AND name LIKE ?`
		args = append(args, "%"+filter.NameLike+"%")
	}
	if pageSize <= 0 {
		pageSize = 500
	}
	query += ` ORDER BY id LIMIT ?`
	args = append(args, pageSize)

	return s.queryEntities(ctx, "list entities", query, args...)
}

// GetEntity returns the entity with id, or nil when none exists.
func (s *SQLiteStore) GetEntity(ctx context.Context, id string) (*model.Entity, error) {
	e, err := scanSQLiteEntity(s.db.QueryRowContext(ctx,
		`SELECT `+sqliteEntityColumns+` FROM entities WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: get entity %s", id)
	}
	return e, nil
}

// FindByName does a case-insensitive substring match, exact matches first.
func (s *SQLiteStore) FindByName(ctx context.Context, name string, limit int) ([]model.Entity, error) {
	if limit <= 0 {
		limit = 5
	}
	return s.queryEntities(ctx, "find by name",
		`SELECT `+sqliteEntityColumns+` FROM entities
		 WHERE name LIKE ?
		 ORDER BY (lower(name) = lower(?)) DESC, importance DESC, id
		 LIMIT ?`,
		"%"+name+"%", name, limit,
	)
}

// SetWebpageCache stores scraped homepage content on an entity.
func (s *SQLiteStore) SetWebpageCache(ctx context.Context, entityID string, cache model.WebpageCache) error {
	data, err := marshalNullable(&cache)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE entities SET webpage_cache = ?, updated_at = ? WHERE id = ?`,
		string(data), time.Now().UTC(), entityID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set webpage cache %s", entityID)
	}
	return checkRowsAffected(res, "entity", entityID)
}

// UpdateEnrichment writes every derived field of an entity in one statement.
func (s *SQLiteStore) UpdateEnrichment(ctx context.Context, u model.EnrichmentUpdate) error {
	taxJSON, err := marshalNullable(&u.Taxonomy)
	if err != nil {
		return err
	}
	analysisJSON, err := marshalNullable(&u.Analysis)
	if err != nil {
		return err
	}
	emb, err := vectorText(u.Embedding)
	if err != nil {
		return err
	}
	taxEmb, err := vectorText(u.TaxonomyEmbedding)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE entities SET
			taxonomy = ?, business_analysis = ?, ai_summary = ?,
			embedding = ?, taxonomy_embedding = ?,
			enrichment_source = ?, enriched = 1, last_enriched_at = ?, updated_at = ?
		 WHERE id = ?`,
		string(taxJSON), string(analysisJSON), u.AISummary,
		emb, taxEmb,
		string(u.Source), u.EnrichedAt.UTC(), u.EnrichedAt.UTC(), u.EntityID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update enrichment %s", u.EntityID)
	}
	return checkRowsAffected(res, "entity", u.EntityID)
}

func vectorText(v []float32) (any, error) {
	if len(v) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal vector")
	}
	return string(b), nil
}

// UpsertStatus records an attempt, incrementing attempts on conflict.
func (s *SQLiteStore) UpsertStatus(ctx context.Context, st model.EnrichmentStatus) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO enrichment_status (entity_id, status, attempts, last_attempt, error_message)
		 VALUES (?, ?, 1, ?, ?)
		 ON CONFLICT (entity_id) DO UPDATE SET
			status = excluded.status,
			attempts = enrichment_status.attempts + 1,
			last_attempt = excluded.last_attempt,
			error_message = excluded.error_message`,
		st.EntityID, string(st.Status), st.LastAttempt.UTC(), nullIfEmpty(st.ErrorMessage),
	)
	return eris.Wrapf(err, "sqlite: upsert status %s", st.EntityID)
}

// GetStatus returns the status row for an entity, or nil when none exists.
func (s *SQLiteStore) GetStatus(ctx context.Context, entityID string) (*model.EnrichmentStatus, error) {
	var st model.EnrichmentStatus
	var status string
	err := s.db.QueryRowContext(ctx,
		`SELECT entity_id, status, attempts, last_attempt, COALESCE(error_message, '')
		 FROM enrichment_status WHERE entity_id = ?`,
		entityID,
	).Scan(&st.EntityID, &status, &st.Attempts, &st.LastAttempt, &st.ErrorMessage)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: get status %s", entityID)
	}
	st.Status = model.StatusValue(status)
	return &st, nil
}

// IncidentEdges returns edges touching entityID in either direction, strongest first.
func (s *SQLiteStore) IncidentEdges(ctx context.Context, entityID string, limit int) ([]Incident, error) {
	if limit <= 0 {
		limit = 25
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT ed.id, ed.source_id, ed.target_id, ed.kind, ed.strength_score,
			n.id, n.name, n.kind, COALESCE(n.domain, '')
		 FROM edges ed
		 JOIN entities n ON n.id = CASE WHEN ed.source_id = ?1 THEN ed.target_id ELSE ed.source_id END
		 WHERE ed.source_id = ?1 OR ed.target_id = ?1
		 ORDER BY COALESCE(ed.strength_score, 0.5) DESC, ed.id
		 LIMIT ?2`,
		entityID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: incident edges")
	}
	defer rows.Close()

	var out []Incident
	for rows.Next() {
		var in Incident
		var kind string
		var strength sql.NullFloat64
		if err := rows.Scan(&in.Edge.ID, &in.Edge.SourceID, &in.Edge.TargetID, &in.Edge.Kind, &strength,
			&in.Neighbor.ID, &in.Neighbor.Name, &kind, &in.Neighbor.Domain); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan edge")
		}
		if strength.Valid {
			v := strength.Float64
			in.Edge.Strength = &v
		}
		in.Neighbor.Kind = model.EntityKind(kind)
		out = append(out, in)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: incident edges iterate")
}

// SearchLexical returns entities whose name, industry, domain, description,
// summary or taxonomy contains any of terms, ordered by importance.
func (s *SQLiteStore) SearchLexical(ctx context.Context, terms []string, filter SearchFilter, limit int) ([]model.Entity, error) {
	if len(terms) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}

	var ors []string
	var args []any
	for _, t := range terms {
		ors = append(ors, `name LIKE ? OR industry LIKE ? OR domain LIKE ? OR description LIKE ? OR ai_summary LIKE ? OR taxonomy LIKE ?`)
		p := "%" + t + "%"
		args = append(args, p, p, p, p, p, p)
	}
	query := `SELECT ` + sqliteEntityColumns + ` FROM entities WHERE (` + strings.Join(ors, " OR ") + `)`

	if filter.Kind != "" {
		query += ` AND kind = ?`
		args = append(args, string(filter.Kind))
	}
	if filter.TaxonomyPrefix != "" {
		query += ` AND json_extract(taxonomy, '$.primary') LIKE ?`
		args = append(args, filter.TaxonomyPrefix+"%")
	}
	if filter.EnrichedOnly {
		query += ` AND enriched = 1`
	}
	query += ` ORDER BY importance DESC, id LIMIT ?`
	args = append(args, limit)

	return s.queryEntities(ctx, "search lexical", query, args...)
}

// MatchEntities scans stored embeddings and ranks them by cosine similarity.
func (s *SQLiteStore) MatchEntities(ctx context.Context, embedding []float32, threshold float64, count int) ([]Match, error) {
	if len(embedding) == 0 {
		return nil, eris.New("sqlite: match entities: empty embedding")
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteEntityColumns+`, embedding FROM entities WHERE embedding IS NOT NULL`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: match entities")
	}
	defer rows.Close()

	var out []Match
	for rows.Next() {
		var raw string
		e, err := scanSQLiteEntity(rows, &raw)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan match")
		}
		var vec []float32
		if err := json.Unmarshal([]byte(raw), &vec); err != nil {
			return nil, eris.Wrapf(err, "sqlite: unmarshal embedding %s", e.ID)
		}
		e.Embedding = vec
		sim := cosine(embedding, vec)
		if sim > threshold {
			out = append(out, Match{Entity: *e, Similarity: sim})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: match entities iterate")
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })
	if count > 0 && len(out) > count {
		out = out[:count]
	}
	return out, nil
}

// ImportEntities upserts source entity fields in one transaction.
func (s *SQLiteStore) ImportEntities(ctx context.Context, entities []model.Entity) (int64, error) {
	if len(entities) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: import entities: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO entities (id, kind, name, domain, description, industry, importance,
			title, bio, employer, skills, employment, web_snippets)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
			kind = excluded.kind, name = excluded.name, domain = excluded.domain,
			description = excluded.description, industry = excluded.industry,
			importance = excluded.importance, title = excluded.title, bio = excluded.bio,
			employer = excluded.employer, skills = excluded.skills,
			employment = excluded.employment, web_snippets = excluded.web_snippets,
			updated_at = datetime('now')`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: import entities: prepare")
	}
	defer stmt.Close()

	var n int64
	for i := range entities {
		e := &entities[i]
		j, err := encodeEntity(e)
		if err != nil {
			return 0, err
		}
		if _, err := stmt.ExecContext(ctx,
			e.ID, string(e.Kind), e.Name, nullIfEmpty(e.Domain), nullIfEmpty(e.Description),
			nullIfEmpty(e.Industry), e.Importance, nullIfEmpty(e.Title), nullIfEmpty(e.Bio),
			nullIfEmpty(e.Employer), nullBytes(j.skills), nullBytes(j.employment), nullBytes(j.snippets),
		); err != nil {
			return 0, eris.Wrapf(err, "sqlite: import entity %s", e.ID)
		}
		n++
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: import entities: commit")
	}
	return n, nil
}

// ImportEdges upserts relationship edges in one transaction.
func (s *SQLiteStore) ImportEdges(ctx context.Context, edges []model.Edge) (int64, error) {
	if len(edges) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: import edges: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	var n int64
	for _, e := range edges {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO edges (id, source_id, target_id, kind, strength_score) VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT (id) DO UPDATE SET source_id = excluded.source_id, target_id = excluded.target_id,
				kind = excluded.kind, strength_score = excluded.strength_score`,
			e.ID, e.SourceID, e.TargetID, e.Kind, e.Strength,
		); err != nil {
			return 0, eris.Wrapf(err, "sqlite: import edge %s", e.ID)
		}
		n++
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: import edges: commit")
	}
	return n, nil
}

func nullBytes(b []byte) any {
	if b == nil {
		return nil
	}
	return string(b)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func checkRowsAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", kind, id)
	}
	return nil
}
