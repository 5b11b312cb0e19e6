package sqldb

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rowmap/internal/dbal"
)

func newMock(t *testing.T, opts ...Option) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return New(sqlDB, opts...), mock
}

func TestDB_FetchAll(t *testing.T) {
	db, mock := newMock(t, WithDialect(Postgres))
	mock.ExpectQuery(`SELECT "id", "name" FROM "users" WHERE "id" IN ($1, $2)`).
		WithArgs(int64(1), int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).
			AddRow(int64(1), "Alice").
			AddRow(int64(2), "Bob"))

	rows, err := db.FetchAll(context.Background(), dbal.Select{
		Fields: []dbal.SelectField{{Column: "id"}, {Column: "name"}},
		Table:  "users",
		Where:  []dbal.Condition{{Column: "id", Values: []any{int64(1), int64(2)}, In: true}},
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, &dbal.Row{Columns: []string{"id", "name"}, Values: []any{int64(2), "Bob"}}, rows[1])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDB_FetchOne(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(`SELECT COUNT(*) AS n FROM t`).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(int64(3)))
	mock.ExpectQuery(`SELECT id FROM t WHERE 1 = 0`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	row, err := db.FetchOne(context.Background(), dbal.Raw{SQL: "SELECT COUNT(*) AS n FROM t"})
	require.NoError(t, err)
	v, ok := row.Get("n")
	require.True(t, ok)
	assert.Equal(t, int64(3), v)

	row, err = db.FetchOne(context.Background(), dbal.Raw{SQL: "SELECT id FROM t WHERE 1 = 0"})
	require.NoError(t, err)
	assert.Nil(t, row)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDB_Handles(t *testing.T) {
	ctx := context.Background()
	db, mock := newMock(t)
	mock.ExpectQuery(`SELECT id FROM t`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)).AddRow(int64(2))).
		RowsWillBeClosed()

	h, err := db.Select(ctx, dbal.Raw{SQL: "SELECT id FROM t"})
	require.NoError(t, err)
	assert.Len(t, h.ID(), 36)

	var ids []any
	for {
		row, err := db.Fetch(ctx, h)
		require.NoError(t, err)
		if row == nil {
			break
		}
		ids = append(ids, row.Values[0])
	}
	assert.Equal(t, []any{int64(1), int64(2)}, ids)

	require.NoError(t, db.Clear(h))
	require.NoError(t, db.Clear(h))
	_, err = db.Fetch(ctx, h)
	assert.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDB_Insert(t *testing.T) {
	ctx := context.Background()
	ins := dbal.Insert{Table: "users", Columns: []string{"first_name"}, Values: []any{"Anna"}}

	t.Run("last insert id", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectExec(`INSERT INTO "users" ("first_name") VALUES (?)`).
			WithArgs("Anna").
			WillReturnResult(sqlmock.NewResult(77, 1))

		id, err := db.Insert(ctx, ins, "user_id")
		require.NoError(t, err)
		assert.Equal(t, "77", id)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returning", func(t *testing.T) {
		db, mock := newMock(t, WithDialect(Postgres))
		mock.ExpectQuery(`INSERT INTO "users" ("first_name") VALUES ($1) RETURNING "user_id"`).
			WithArgs("Anna").
			WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow(int64(77)))

		id, err := db.Insert(ctx, ins, "user_id")
		require.NoError(t, err)
		assert.Equal(t, "77", id)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no id", func(t *testing.T) {
		db, mock := newMock(t, WithDialect(Postgres))
		mock.ExpectExec(`INSERT INTO "users" ("first_name") VALUES ($1)`).
			WithArgs("Anna").
			WillReturnResult(sqlmock.NewResult(0, 1))

		id, err := db.Insert(ctx, ins, "")
		require.NoError(t, err)
		assert.Empty(t, id)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate", func(t *testing.T) {
		db, mock := newMock(t, WithDialect(Postgres))
		cause := &pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"}
		mock.ExpectExec(`INSERT INTO "users" ("first_name") VALUES ($1)`).WillReturnError(cause)

		_, err := db.Insert(ctx, ins, "")
		require.ErrorIs(t, err, ErrDuplicate)
		var pe *pq.Error
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, cause, pe)
	})
}

func TestDB_Mutations(t *testing.T) {
	ctx := context.Background()
	db, mock := newMock(t, WithDialect(MySQL))
	mock.ExpectExec("UPDATE `users` SET `active` = ? WHERE `user_id` = ?").
		WithArgs(int64(0), int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("DELETE FROM `users`").
		WillReturnResult(sqlmock.NewResult(0, 9))
	mock.ExpectExec("UPDATE `a` JOIN `b` SET `a`.`x` = ?").
		WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("INSERT INTO `counters` (`name`, `count`) VALUES (?, ?) ON DUPLICATE KEY UPDATE `count` = VALUES(`count`)").
		WithArgs("hits", int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := db.Update(ctx, dbal.Update{
		Table:   "users",
		Changes: []dbal.Assignment{{Column: "active", Value: int64(0)}},
		Where:   []dbal.Condition{{Column: "user_id", Values: []any{int64(4)}}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	n, err = db.Delete(ctx, dbal.Delete{Table: "users"})
	require.NoError(t, err)
	assert.Equal(t, int64(9), n)

	n, err = db.Change(ctx, "UPDATE `a` JOIN `b` SET `a`.`x` = ?", []any{int64(1)})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	err = db.Upsert(ctx, dbal.Upsert{
		Table:     "counters",
		Columns:   []string{"name", "count"},
		Values:    []any{"hits", int64(1)},
		Index:     []string{"name"},
		UpdateAll: true,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDB_Transaction(t *testing.T) {
	ctx := context.Background()

	t.Run("commit", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectExec(`DELETE FROM "t"`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`DELETE FROM "u"`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := db.Transaction(ctx, func(ctx context.Context) error {
			if _, err := db.Delete(ctx, dbal.Delete{Table: "t"}); err != nil {
				return err
			}
			return db.Transaction(ctx, func(ctx context.Context) error {
				_, err := db.Delete(ctx, dbal.Delete{Table: "u"})
				return err
			})
		})
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rollback", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectRollback()

		boom := errors.New("boom")
		err := db.Transaction(ctx, func(ctx context.Context) error { return boom })
		require.ErrorIs(t, err, boom)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestDB_StatsAndSlowLog(t *testing.T) {
	var logs bytes.Buffer
	stats := &Stats{}
	db, mock := newMock(t,
		WithStats(stats),
		WithSlowQueryLog(time.Millisecond),
		WithLogger(slog.New(slog.NewTextHandler(&logs, nil))),
	)
	mock.ExpectQuery(`SELECT 1`).
		WillDelayFor(5 * time.Millisecond).
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(int64(1)))
	mock.ExpectExec(`DELETE FROM "t"`).WillReturnError(errors.New("locked"))

	_, err := db.FetchAll(context.Background(), dbal.Raw{SQL: "SELECT 1"})
	require.NoError(t, err)
	_, err = db.Delete(context.Background(), dbal.Delete{Table: "t"})
	require.Error(t, err)

	snap := stats.Snapshot()
	assert.Equal(t, int64(1), snap.Queries)
	assert.Equal(t, int64(1), snap.Execs)
	assert.Equal(t, int64(1), snap.Errors)
	assert.Equal(t, int64(1), snap.Slow)
	assert.GreaterOrEqual(t, snap.Duration, 5*time.Millisecond)
	assert.Contains(t, snap.String(), "queries=1 execs=1 errors=1 slow=1")
	assert.Contains(t, logs.String(), "slow query detected")

	stats.Reset()
	assert.Equal(t, StatsSnapshot{}, stats.Snapshot())
}

func TestIsUniqueViolation(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"postgres unique", &pq.Error{Code: "23505"}, true},
		{"postgres fk", &pq.Error{Code: "23503"}, false},
		{"mysql duplicate", &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}, true},
		{"mysql other", &mysql.MySQLError{Number: 1213}, false},
		{"message", errors.New("UNIQUE constraint failed: users.email"), true},
		{"other", errors.New("disk full"), false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsUniqueViolation(tc.err))
		})
	}
}
