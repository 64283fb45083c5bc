package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func TestMergeRows_Empty(t *testing.T) {
	n, err := MergeRows(context.Background(), nil, MergeSpec{Table: "relgraph.entities"}, nil)
	assert.NoError(t, err)
	assert.Zero(t, n)
}

func TestMergeRows_InvalidSpec(t *testing.T) {
	rows := [][]any{{"e1"}}
	tests := []struct {
		name string
		spec MergeSpec
		want string
	}{
		{"no columns", MergeSpec{Table: "t", Key: "id"}, "no columns"},
		{"no key", MergeSpec{Table: "t", Columns: []string{"id"}}, "no key column"},
		{"key missing", MergeSpec{Table: "t", Columns: []string{"name"}, Key: "id"}, `key "id" not in columns`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := MergeRows(context.Background(), nil, tt.spec, rows)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestMergeRows_SkipsUnchangedRows(t *testing.T) {
	mock := newMock(t)
	cols := []string{"id", "name", "kind"}

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_stage_entities" \(LIKE "relgraph"."entities"`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_stage_entities"}, cols).WillReturnResult(2)
	mock.ExpectExec(`ON CONFLICT \("id"\) DO UPDATE SET "name" = EXCLUDED."name", "kind" = EXCLUDED."kind" ` +
		`WHERE \(t."name", t."kind"\) IS DISTINCT FROM \(EXCLUDED."name", EXCLUDED."kind"\)`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	n, err := MergeRows(context.Background(), mock, MergeSpec{
		Table:   "relgraph.entities",
		Columns: cols,
		Key:     "id",
	}, [][]any{{"o1", "Acme", "organization"}, {"p1", "Jane", "person"}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMergeRows_ChunksCopy(t *testing.T) {
	mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_stage_edges"}, []string{"id", "kind"}).WillReturnResult(2)
	mock.ExpectCopyFrom(pgx.Identifier{"_stage_edges"}, []string{"id", "kind"}).WillReturnResult(1)
	mock.ExpectExec(`INSERT INTO "relgraph"."edges" AS t`).WillReturnResult(pgxmock.NewResult("INSERT", 3))
	mock.ExpectCommit()

	n, err := MergeRows(context.Background(), mock, MergeSpec{
		Table:     "relgraph.edges",
		Columns:   []string{"id", "kind"},
		Key:       "id",
		ChunkSize: 2,
	}, [][]any{{"a", "founder"}, {"b", "investor"}, {"c", "advisor"}})
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMergeRows_KeyOnlyDoesNothing(t *testing.T) {
	mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_stage_edges"}, []string{"id"}).WillReturnResult(1)
	mock.ExpectExec(`ON CONFLICT \("id"\) DO NOTHING`).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	_, err := MergeRows(context.Background(), mock, MergeSpec{
		Table:   "relgraph.edges",
		Columns: []string{"id"},
		Key:     "id",
	}, [][]any{{"x"}})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMergeRows_CopyError(t *testing.T) {
	mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_stage_entities"}, []string{"id", "name"}).
		WillReturnError(errors.New("copy failed"))
	mock.ExpectRollback()

	_, err := MergeRows(context.Background(), mock, MergeSpec{
		Table:   "relgraph.entities",
		Columns: []string{"id", "name"},
		Key:     "id",
	}, [][]any{{"e1", "Acme"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "copy rows 0-1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQualified(t *testing.T) {
	assert.Equal(t, `"simple"`, qualified("simple"))
	assert.Equal(t, `"relgraph"."entities"`, qualified("relgraph.entities"))
}
