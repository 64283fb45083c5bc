package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// defaultChunk bounds the rows sent per COPY round trip.
const defaultChunk = 5000

// MergeSpec describes how imported rows are merged into a keyed table.
type MergeSpec struct {
	Table   string   // schema-qualified target, e.g. "relgraph.entities"
	Columns []string // column order of every row
	Key     string   // primary key column; must appear in Columns
	// Mutable lists the columns overwritten when the key already exists.
	// Nil means every non-key column.
	Mutable   []string
	ChunkSize int
}

func (m MergeSpec) validate() error {
	if len(m.Columns) == 0 {
		return eris.New("db: merge: no columns")
	}
	if m.Key == "" {
		return eris.New("db: merge: no key column")
	}
	for _, c := range m.Columns {
		if c == m.Key {
			return nil
		}
	}
	return eris.Errorf("db: merge: key %q not in columns", m.Key)
}

func (m MergeSpec) mutable() []string {
	if m.Mutable != nil {
		return m.Mutable
	}
	out := make([]string, 0, len(m.Columns))
	for _, c := range m.Columns {
		if c != m.Key {
			out = append(out, c)
		}
	}
	return out
}

// stagingName derives the temp table name from the unqualified target.
func (m MergeSpec) stagingName() string {
	name := m.Table
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	return "_stage_" + name
}

// MergeRows stages rows in a temp table via COPY and merges them into the
// target in one transaction. Existing rows are only rewritten when a mutable
// column actually changed, so the returned count is inserts plus real updates.
func MergeRows(ctx context.Context, pool Pool, spec MergeSpec, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if err := spec.validate(); err != nil {
		return 0, err
	}
	chunk := spec.ChunkSize
	if chunk <= 0 {
		chunk = defaultChunk
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: merge: begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	stage := pgx.Identifier{spec.stagingName()}
	if _, err := tx.Exec(ctx, fmt.Sprintf(
		"CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP",
		stage.Sanitize(), qualified(spec.Table),
	)); err != nil {
		return 0, eris.Wrapf(err, "db: merge: stage %s", spec.Table)
	}

	for start := 0; start < len(rows); start += chunk {
		end := min(start+chunk, len(rows))
		if _, err := tx.CopyFrom(ctx, stage, spec.Columns, pgx.CopyFromRows(rows[start:end])); err != nil {
			return 0, eris.Wrapf(err, "db: merge: copy rows %d-%d into %s", start, end, spec.Table)
		}
	}

	tag, err := tx.Exec(ctx, mergeSQL(spec, stage))
	if err != nil {
		return 0, eris.Wrapf(err, "db: merge: insert into %s", spec.Table)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: merge: commit")
	}
	return tag.RowsAffected(), nil
}

func mergeSQL(spec MergeSpec, stage pgx.Identifier) string {
	cols := joinIdents(spec.Columns)
	key := pgx.Identifier{spec.Key}.Sanitize()
	target := qualified(spec.Table)

	mutable := spec.mutable()
	if len(mutable) == 0 {
		return fmt.Sprintf("INSERT INTO %s AS t (%s) SELECT %s FROM %s ON CONFLICT (%s) DO NOTHING",
			target, cols, cols, stage.Sanitize(), key)
	}

	sets := make([]string, len(mutable))
	current := make([]string, len(mutable))
	incoming := make([]string, len(mutable))
	for i, c := range mutable {
		id := pgx.Identifier{c}.Sanitize()
		sets[i] = id + " = EXCLUDED." + id
		current[i] = "t." + id
		incoming[i] = "EXCLUDED." + id
	}
	return fmt.Sprintf(
		"INSERT INTO %s AS t (%s) SELECT %s FROM %s ON CONFLICT (%s) DO UPDATE SET %s WHERE (%s) IS DISTINCT FROM (%s)",
		target, cols, cols, stage.Sanitize(), key,
		strings.Join(sets, ", "), strings.Join(current, ", "), strings.Join(incoming, ", "),
	)
}

// qualified quotes a possibly schema-qualified table name.
func qualified(table string) string {
	return pgx.Identifier(strings.SplitN(table, ".", 2)).Sanitize()
}

func joinIdents(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
