package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rowmap/internal/decode"
	"github.com/roach88/rowmap/internal/errs"
	"github.com/roach88/rowmap/internal/query"
	"github.com/roach88/rowmap/internal/testutil"
)

func threeUsers() *testutil.FakeDB {
	return testutil.NewFakeDB(userRow("1", "Ahn"), userRow("2", "Baumann"), userRow("3", "Keller"))
}

func TestIterator_StateMachine(t *testing.T) {
	ctx := context.Background()
	db := threeUsers()
	it := New[user](db, testutil.UserEntity(), nil).Iterate(nil)

	assert.False(t, it.Open())
	assert.False(t, it.Valid())
	assert.Equal(t, -1, it.Key())
	requireCode(t, it.Next(ctx), errs.CodeInvalidShape)

	require.NoError(t, it.Rewind(ctx))
	assert.True(t, it.Open())

	var keys []int
	var names []string
	for it.Valid() {
		keys = append(keys, it.Key())
		names = append(names, it.Current().LastName)
		require.NoError(t, it.Next(ctx))
	}
	assert.Equal(t, []int{0, 1, 2}, keys)
	assert.Equal(t, []string{"Ahn", "Baumann", "Keller"}, names)
	assert.Equal(t, -1, it.Key())
	assert.True(t, it.Open(), "exhausted iterator stays open until cleared")

	require.NoError(t, it.Clear())
	require.NoError(t, it.Clear())
	assert.False(t, it.Open())
	assert.Zero(t, db.OpenHandles())
	requireCode(t, it.Next(ctx), errs.CodeInvalidShape)
}

func TestIterator_RewindRestarts(t *testing.T) {
	ctx := context.Background()
	db := threeUsers()
	it := NewRecords(db, testutil.UserEntity()).Iterate(nil)

	require.NoError(t, it.Rewind(ctx))
	require.NoError(t, it.Next(ctx))
	assert.Equal(t, 1, it.Key())

	require.NoError(t, it.Rewind(ctx))
	assert.Equal(t, 0, it.Key())
	assert.Equal(t, int64(1), it.Current()["userId"])
	assert.Equal(t, 2, db.Selects())
	assert.Equal(t, 1, db.OpenHandles())
}

func TestIterator_AllBreakClears(t *testing.T) {
	db := threeUsers()
	it := New[user](db, testutil.UserEntity(), nil).Iterate(nil)

	var seen []int64
	for k, u := range it.All(context.Background()) {
		seen = append(seen, u.ID)
		if k == 1 {
			break
		}
	}
	require.NoError(t, it.Err())
	assert.Equal(t, []int64{1, 2}, seen)
	assert.Zero(t, db.OpenHandles())
	assert.False(t, it.Open())

	seen = nil
	for _, u := range it.All(context.Background()) {
		seen = append(seen, u.ID)
	}
	assert.Equal(t, []int64{1, 2, 3}, seen)
	assert.Equal(t, 2, db.Selects())
}

func TestIterator_CompileError(t *testing.T) {
	db := threeUsers()
	it := NewRecords(db, testutil.UserEntity()).Iterate(query.Options{query.KeyLimit: -1})

	requireCode(t, it.Rewind(context.Background()), errs.CodeInvalidValue)
	assert.Zero(t, db.Selects())

	for range it.All(context.Background()) {
		t.Fatal("no rows expected")
	}
	requireCode(t, it.Err(), errs.CodeInvalidValue)
}

func TestIterator_DecodeError(t *testing.T) {
	db := testutil.NewFakeDB(userRow("1", "Ahn"), userRow("x", "Broken"))
	it := NewRecords(db, testutil.UserEntity()).Iterate(nil)

	var got []decode.Record
	for _, rec := range it.All(context.Background()) {
		got = append(got, rec)
	}
	assert.Len(t, got, 1)
	requireCode(t, it.Err(), errs.CodeInvalidValue)
	assert.Zero(t, db.OpenHandles())
}

func TestMulti_Iterate(t *testing.T) {
	db := testutil.NewFakeDB(
		testutil.NewRow("a.userId", "1", "t.ticketId", "10"),
		testutil.NewRow("a.userId", "1", "t.ticketId", "11"),
	)
	it := NewMulti().Iterate(userTicket(db), query.Options{
		query.KeyFields: []string{"a.userId", "t.ticketId"},
		query.KeyWhere:  joinWhere[query.KeyWhere],
	})

	var tickets []any
	for _, rec := range it.All(context.Background()) {
		tickets = append(tickets, rec["t.ticketId"])
	}
	require.NoError(t, it.Err())
	assert.Equal(t, []any{int64(10), int64(11)}, tickets)

	first, second := testutil.NewFakeDB(), testutil.NewFakeDB()
	mismatch := NewMulti().Iterate([]Source{
		{Alias: "a", Handle: NewBase(first, testutil.UserEntity())},
		{Alias: "t", Handle: NewBase(second, testutil.TicketEntity())},
	}, joinWhere)
	requireCode(t, mismatch.Rewind(context.Background()), errs.CodeConnectionMismatch)
}
