package sqldb

import (
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rowmap/internal/dbal"
	"github.com/roach88/rowmap/internal/query"
	"github.com/roach88/rowmap/internal/testutil"
)

var dialects = []Dialect{SQLite, Postgres, MySQL}

// renderAll renders one statement per dialect:
//
//	sqlite: ...
//	postgres: ...
//	mysql: ...
//	args: [...]
func renderAll(t *testing.T, render func(d Dialect) (string, []any, error)) []byte {
	t.Helper()
	var b strings.Builder
	var args []any
	for i, d := range dialects {
		sql, a, err := render(d)
		require.NoError(t, err, d.Name)
		if i == 0 {
			args = a
		} else {
			require.Equal(t, args, a, "args differ for %s", d.Name)
		}
		fmt.Fprintf(&b, "%s: %s\n", d.Name, sql)
	}
	fmt.Fprintf(&b, "args: %v\n", args)
	return []byte(b.String())
}

func TestRender_Golden(t *testing.T) {
	user := testutil.UserEntity()
	counter := testutil.CounterEntity()

	testCases := []struct {
		name   string
		render func(d Dialect) (string, []any, error)
	}{
		{
			name: "select_single",
			render: func(d Dialect) (string, []any, error) {
				c, err := query.CompileSelect(user, d, query.Options{
					query.KeyFields: []string{"userId", "lastName"},
					query.KeyWhere: query.Pairs{
						query.P("active", true),
						query.P("email", nil),
						query.P(":balance: > ?", 10),
					},
					query.KeyOrder:  query.Pairs{query.P("lastName", "DESC")},
					query.KeyLimit:  10,
					query.KeyOffset: 20,
					query.KeyLock:   true,
				})
				if err != nil {
					return "", nil, err
				}
				return d.RenderQuery(c.Query)
			},
		},
		{
			name: "select_multi",
			render: func(d Dialect) (string, []any, error) {
				c, err := query.CompileMultiSelect([]query.Source{
					{Alias: "a", Entity: user},
					{Alias: "t", Entity: testutil.TicketEntity()},
				}, d, query.Options{
					query.KeyFields: query.Pairs{query.B("a.lastName"), query.P("tickets", "COUNT(*)")},
					query.KeyWhere: query.Pairs{
						query.B(":t.userId: = :a.userId:"),
						query.P("t.open", true),
					},
					query.KeyGroup: []string{"a.lastName"},
					query.KeyOrder: query.Pairs{query.P("a.lastName", nil)},
				})
				if err != nil {
					return "", nil, err
				}
				return d.RenderQuery(c.Query)
			},
		},
		{
			name: "update",
			render: func(d Dialect) (string, []any, error) {
				u, err := query.CompileUpdate(user, d, query.Options{
					query.KeyWhere: query.Pairs{query.P("userId", []any{1, 2})},
					query.KeyChanges: query.Pairs{
						query.P("active", false),
						query.P(":balance: = :balance: + ?", 2),
					},
					query.KeyOrder: []string{"userId"},
					query.KeyLimit: 5,
				})
				if err != nil {
					return "", nil, err
				}
				sql, args := d.RenderUpdate(u)
				return sql, args, nil
			},
		},
		{
			name: "delete_empty_in",
			render: func(d Dialect) (string, []any, error) {
				del, err := query.CompileDelete(user, d, query.Options{
					query.KeyWhere: query.Pairs{query.P("userId", []any{})},
				})
				if err != nil {
					return "", nil, err
				}
				sql, args := d.RenderDelete(del)
				return sql, args, nil
			},
		},
		{
			name: "insert_returning",
			render: func(d Dialect) (string, []any, error) {
				ins, err := query.CompileInsert(user, query.Pairs{
					query.P("firstName", "Anna"),
					query.P("balance", 2),
				}, true)
				if err != nil {
					return "", nil, err
				}
				sql, args := d.RenderInsert(ins, user.Autoincrement())
				return sql, args, nil
			},
		},
		{
			name: "upsert",
			render: func(d Dialect) (string, []any, error) {
				up, err := query.CompileUpsert(counter, d,
					query.Pairs{query.P("name", "hits"), query.P("count", 1)},
					[]string{"name"},
					query.Pairs{query.B(":count: = :count: + 1")},
				)
				if err != nil {
					return "", nil, err
				}
				sql, args := d.RenderUpsert(up)
				return sql, args, nil
			},
		},
		{
			name: "upsert_all",
			render: func(d Dialect) (string, []any, error) {
				up, err := query.CompileUpsert(counter, d,
					query.Pairs{query.P("name", "hits"), query.P("count", 1)},
					[]string{"name"},
					nil,
				)
				if err != nil {
					return "", nil, err
				}
				sql, args := d.RenderUpsert(up)
				return sql, args, nil
			},
		},
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			g.Assert(t, tc.name, renderAll(t, tc.render))
		})
	}
}

func TestRender_LimitOffset(t *testing.T) {
	sel := dbal.Select{Fields: []dbal.SelectField{{Column: "id"}}, Table: "t", Offset: 5}

	testCases := []struct {
		dialect Dialect
		want    string
	}{
		{SQLite, `SELECT "id" FROM "t" LIMIT -1 OFFSET 5`},
		{Postgres, `SELECT "id" FROM "t" OFFSET 5`},
		{MySQL, "SELECT `id` FROM `t` LIMIT 18446744073709551615 OFFSET 5"},
	}
	for _, tc := range testCases {
		t.Run(tc.dialect.Name, func(t *testing.T) {
			sql, args := tc.dialect.RenderSelect(sel)
			assert.Equal(t, tc.want, sql)
			assert.Empty(t, args)
		})
	}
}

func TestRender_Conditions(t *testing.T) {
	sel := dbal.Select{
		Table: "t",
		Where: []dbal.Condition{
			{Column: "a", Values: []any{nil}},
			{Column: "b", Values: []any{int64(1), int64(2)}, In: true},
			{Expr: `"c" > ? OR "c" < ?`, Values: []any{int64(9), int64(0)}},
		},
	}
	sql, args := SQLite.RenderSelect(sel)
	assert.Equal(t, `SELECT * FROM "t" WHERE "a" IS NULL AND "b" IN (?, ?) AND ("c" > ? OR "c" < ?)`, sql)
	assert.Equal(t, []any{int64(1), int64(2), int64(9), int64(0)}, args)

	sel.Where = sel.Where[2:]
	sql, _ = SQLite.RenderSelect(sel)
	assert.Equal(t, `SELECT * FROM "t" WHERE "c" > ? OR "c" < ?`, sql)
}

func TestRender_Joins(t *testing.T) {
	sel := dbal.Select{
		Fields: []dbal.SelectField{{Column: "a.id", Alias: "a.id"}},
		Tables: []dbal.TableRef{
			{SQL: `"users" "a"`},
			{SQL: `LEFT JOIN "tickets" "t" ON "t"."user_id" = "a"."id" AND "t"."open" = ?`, Args: []any{int64(1)}},
			{SQL: `"extra" "x"`},
		},
		Where: []dbal.Condition{{Column: "a.id", Values: []any{int64(4)}}},
	}
	sql, args := Postgres.RenderSelect(sel)
	assert.Equal(t,
		`SELECT "a"."id" AS "a.id" FROM "users" "a" LEFT JOIN "tickets" "t" ON "t"."user_id" = "a"."id" AND "t"."open" = $1, "extra" "x" WHERE "a"."id" = $2`,
		sql)
	assert.Equal(t, []any{int64(1), int64(4)}, args)
}

func TestDialect_Rebind(t *testing.T) {
	in := `SELECT '?', "a?", 'it''s ?' FROM t WHERE x = ? AND y = ?`
	assert.Equal(t, `SELECT '?', "a?", 'it''s ?' FROM t WHERE x = $1 AND y = $2`, Postgres.Rebind(in))
	assert.Equal(t, in, SQLite.Rebind(in))
	assert.Equal(t, in, MySQL.Rebind(in))
}

func TestDialect_Quote(t *testing.T) {
	assert.Equal(t, `"app"."users"`, SQLite.QuoteIdentifier("app.users"))
	assert.Equal(t, "`app`.`users`", MySQL.QuoteIdentifier("app.users"))
	assert.Equal(t, "`a.b`", MySQL.QuoteAlias("a.b"))
	assert.Equal(t, "`we``ird`", MySQL.QuoteAlias("we`ird"))
}

func TestDialectFor(t *testing.T) {
	for driver, want := range map[string]string{
		"sqlite3":  "sqlite",
		"sqlite":   "sqlite",
		"postgres": "postgres",
		"mysql":    "mysql",
	} {
		d, err := DialectFor(driver)
		require.NoError(t, err)
		assert.Equal(t, want, d.Name)
	}
	_, err := DialectFor("oracle")
	assert.Error(t, err)
}

func TestRender_UnsupportedQuery(t *testing.T) {
	_, _, err := SQLite.RenderQuery(nil)
	assert.Error(t, err)
}

func TestRender_UpdateOrderWithoutLimit(t *testing.T) {
	u := dbal.Update{
		Table:   "users",
		Changes: []dbal.Assignment{{Column: "active", Value: int64(1)}},
		Where:   []dbal.Condition{{Column: "user_id", Values: []any{int64(3)}}},
		Order:   []dbal.Ordering{{Column: "user_id"}},
	}

	testCases := []struct {
		dialect Dialect
		want    string
	}{
		{SQLite, `UPDATE "users" SET "active" = ? WHERE "user_id" = ?`},
		{Postgres, `UPDATE "users" SET "active" = $1 WHERE "user_id" = $2`},
		{MySQL, "UPDATE `users` SET `active` = ? WHERE `user_id` = ? ORDER BY `user_id` ASC"},
	}
	for _, tc := range testCases {
		t.Run(tc.dialect.Name, func(t *testing.T) {
			sql, args := tc.dialect.RenderUpdate(u)
			assert.Equal(t, tc.want, sql)
			assert.Equal(t, []any{int64(1), int64(3)}, args)
		})
	}
}
