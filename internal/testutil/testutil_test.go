package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rowmap/internal/dbal"
)

func TestSequence(t *testing.T) {
	s := NewSequence("q")
	assert.Equal(t, "q-1", s.Next())
	assert.Equal(t, "q-2", s.Next())
	assert.Equal(t, int64(2), s.Current())

	s.Reset()
	assert.Equal(t, "q-1", s.Next())
	assert.Equal(t, "h-1", NewSequence("").Next())
}

func TestQuoter(t *testing.T) {
	var q Quoter
	assert.Equal(t, `"support"."tickets"`, q.QuoteIdentifier("support.tickets"))
	assert.Equal(t, `"a.userId"`, q.QuoteAlias("a.userId"))
	assert.Equal(t, `"we""ird"`, q.QuoteIdentifier(`we"ird`))
}

func TestFakeDB_Handles(t *testing.T) {
	ctx := context.Background()
	db := NewFakeDB(NewRow("id", 1), NewRow("id", 2))

	h, err := db.Select(ctx, dbal.Raw{SQL: "SELECT id FROM t"})
	require.NoError(t, err)
	assert.Equal(t, "h-1", h.ID())
	assert.Equal(t, 1, db.OpenHandles())

	var got []any
	for {
		row, err := db.Fetch(ctx, h)
		require.NoError(t, err)
		if row == nil {
			break
		}
		v, _ := row.Get("id")
		got = append(got, v)
	}
	assert.Equal(t, []any{1, 2}, got)

	require.NoError(t, db.Clear(h))
	assert.Zero(t, db.OpenHandles())
	_, err = db.Fetch(ctx, h)
	assert.Error(t, err)
}

func TestFixtures(t *testing.T) {
	assert.Equal(t, "user_id", UserEntity().Autoincrement())
	assert.Empty(t, TicketEntity().Autoincrement())
	assert.Equal(t, "support.tickets", TicketEntity().Table())
	assert.Len(t, CounterEntity().Fields(), 2)
}
