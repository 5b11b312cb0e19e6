package decode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rowmap/internal/dbal"
	"github.com/roach88/rowmap/internal/errs"
	"github.com/roach88/rowmap/internal/meta"
	"github.com/roach88/rowmap/internal/query"
	"github.com/roach88/rowmap/internal/testutil"
)

func TestRow_SingleScenario(t *testing.T) {
	rec, err := Row(testutil.NewRow("last_name", "Baumann"), testutil.UserEntity())
	require.NoError(t, err)
	assert.Equal(t, Record{"lastName": "Baumann"}, rec)
}

func TestRow_CastsByFieldType(t *testing.T) {
	row := testutil.NewRow(
		"user_id", "63",
		"last_name", []byte("Baumann"),
		"email", nil,
		"active", int64(1),
		"balance", "10.5",
		"joined_at", "2026-01-01",
	)
	rec, err := Row(row, testutil.UserEntity())
	require.NoError(t, err)
	assert.Equal(t, Record{
		"userId":   int64(63),
		"lastName": "Baumann",
		"email":    nil,
		"active":   true,
		"balance":  10.5,
	}, rec)
}

func TestRow_NullOnNonNullable(t *testing.T) {
	_, err := Row(testutil.NewRow("last_name", nil), testutil.UserEntity())
	require.Error(t, err)
	assert.True(t, errs.HasCode(err, errs.CodeNullNotAllowed))

	var e *errs.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "User", e.Entity)
	assert.Contains(t, e.Message, "lastName")
}

func TestRow_InvalidValue(t *testing.T) {
	_, err := Row(testutil.NewRow("user_id", "sixty-three"), testutil.UserEntity())
	assert.True(t, errs.HasCode(err, errs.CodeInvalidValue))
}

func TestRows(t *testing.T) {
	recs, err := Rows([]*dbal.Row{
		testutil.NewRow("user_id", int64(1)),
		testutil.NewRow("user_id", int64(2)),
	}, testutil.UserEntity())
	require.NoError(t, err)
	assert.Equal(t, []Record{{"userId": int64(1)}, {"userId": int64(2)}}, recs)
}

func TestFlattenAs_ImplicitIntCast(t *testing.T) {
	rows := []*dbal.Row{
		testutil.NewRow("id", "63"),
		testutil.NewRow("id", "87"),
	}
	out, err := FlattenAs(rows, meta.Int)
	require.NoError(t, err)
	assert.Equal(t, []any{int64(63), int64(87)}, out)
}

func TestFlatten(t *testing.T) {
	plan := query.NewCastPlan()
	plan.Add("user_id", meta.Int, false)
	plan.Add("email", meta.String, true)

	rows := []*dbal.Row{
		testutil.NewRow("user_id", "1", "email", nil, "extra", "raw"),
		testutil.NewRow("user_id", "2", "email", []byte("b@x")),
	}
	out, err := Flatten(rows, plan)
	require.NoError(t, err)
	assert.Equal(t, []any{int64(1), nil, "raw", int64(2), "b@x"}, out)

	out, err = Flatten(nil, plan)
	require.NoError(t, err)
	assert.Equal(t, []any{}, out)

	_, err = Flatten([]*dbal.Row{testutil.NewRow("user_id", nil)}, plan)
	assert.True(t, errs.HasCode(err, errs.CodeNullNotAllowed))
}

func TestMultiRecord(t *testing.T) {
	plan := query.NewCastPlan()
	plan.Add("a.userId", meta.Int, false)
	plan.Add("flag", meta.Bool, true)

	rec, err := MultiRecord(testutil.NewRow("a.userId", "5", "flag", int64(0), "other", 1), plan)
	require.NoError(t, err)
	assert.Equal(t, Record{"a.userId": int64(5), "flag": false}, rec)

	rec, err = MultiRecord(testutil.NewRow("flag", nil), plan)
	require.NoError(t, err)
	assert.Equal(t, Record{"flag": nil}, rec)
}

func TestCount(t *testing.T) {
	n, err := Count(testutil.NewRow("num", "12"))
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)

	n, err = Count(testutil.NewRow("COUNT(*)", int64(4)))
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	n, err = Count(nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = Count(testutil.NewRow("a", 1, "b", 2))
	assert.True(t, errs.HasCode(err, errs.CodeInvalidValue))
}
