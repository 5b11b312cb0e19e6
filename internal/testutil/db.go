package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/rowmap/internal/dbal"
)

// FakeDB is an in-memory dbal.Database that returns scripted results and
// records every call.
//
// Rows is served by Select, FetchAll and FetchOne; Affected by Change,
// Update and Delete; InsertID by Insert. Err, when set, fails every call.
type FakeDB struct {
	Quoter

	mu sync.Mutex

	Rows     []*dbal.Row
	Affected int64
	InsertID string
	Err      error

	Queries []dbal.Query
	Changes []dbal.Raw
	Updates []dbal.Update
	Inserts []dbal.Insert
	Upserts []dbal.Upsert
	Deletes []dbal.Delete
	// Autoincrements records the autoincrement argument of each Insert.
	Autoincrements []string
	Transactions   int

	ids     *Sequence
	handles map[string]*fakeHandle
}

type fakeHandle struct {
	id   string
	rows []*dbal.Row
	pos  int
}

func (h *fakeHandle) ID() string { return h.id }

// NewFakeDB creates a fake serving rows.
func NewFakeDB(rows ...*dbal.Row) *FakeDB {
	return &FakeDB{
		Rows:    rows,
		ids:     NewSequence("h"),
		handles: make(map[string]*fakeHandle),
	}
}

// NewRow builds a row from alternating column names and values.
func NewRow(kv ...any) *dbal.Row {
	if len(kv)%2 != 0 {
		panic("NewRow: odd number of arguments")
	}
	r := &dbal.Row{}
	for i := 0; i < len(kv); i += 2 {
		r.Columns = append(r.Columns, kv[i].(string))
		r.Values = append(r.Values, kv[i+1])
	}
	return r
}

// OpenHandles returns the number of handles not yet cleared.
func (db *FakeDB) OpenHandles() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.handles)
}

// Selects returns how many queries were issued.
func (db *FakeDB) Selects() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.Queries)
}

func (db *FakeDB) Select(_ context.Context, q dbal.Query) (dbal.Handle, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.Queries = append(db.Queries, q)
	if db.Err != nil {
		return nil, db.Err
	}
	h := &fakeHandle{id: db.ids.Next(), rows: db.Rows}
	db.handles[h.id] = h
	return h, nil
}

func (db *FakeDB) Fetch(_ context.Context, h dbal.Handle) (*dbal.Row, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	fh, ok := db.handles[h.ID()]
	if !ok {
		return nil, fmt.Errorf("fake: handle %s is not open", h.ID())
	}
	if fh.pos >= len(fh.rows) {
		return nil, nil
	}
	row := fh.rows[fh.pos]
	fh.pos++
	return row, nil
}

func (db *FakeDB) Clear(h dbal.Handle) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	delete(db.handles, h.ID())
	return nil
}

func (db *FakeDB) FetchAll(_ context.Context, q dbal.Query) ([]*dbal.Row, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.Queries = append(db.Queries, q)
	if db.Err != nil {
		return nil, db.Err
	}
	return db.Rows, nil
}

func (db *FakeDB) FetchOne(_ context.Context, q dbal.Query) (*dbal.Row, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.Queries = append(db.Queries, q)
	if db.Err != nil {
		return nil, db.Err
	}
	if len(db.Rows) == 0 {
		return nil, nil
	}
	return db.Rows[0], nil
}

func (db *FakeDB) Change(_ context.Context, sql string, args []any) (int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.Changes = append(db.Changes, dbal.Raw{SQL: sql, Args: args})
	if db.Err != nil {
		return 0, db.Err
	}
	return db.Affected, nil
}

func (db *FakeDB) Update(_ context.Context, u dbal.Update) (int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.Updates = append(db.Updates, u)
	if db.Err != nil {
		return 0, db.Err
	}
	return db.Affected, nil
}

func (db *FakeDB) Insert(_ context.Context, ins dbal.Insert, autoincrement string) (string, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.Inserts = append(db.Inserts, ins)
	db.Autoincrements = append(db.Autoincrements, autoincrement)
	if db.Err != nil {
		return "", db.Err
	}
	if autoincrement == "" {
		return "", nil
	}
	return db.InsertID, nil
}

func (db *FakeDB) Upsert(_ context.Context, u dbal.Upsert) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.Upserts = append(db.Upserts, u)
	return db.Err
}

func (db *FakeDB) Delete(_ context.Context, d dbal.Delete) (int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.Deletes = append(db.Deletes, d)
	if db.Err != nil {
		return 0, db.Err
	}
	return db.Affected, nil
}

func (db *FakeDB) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	db.mu.Lock()
	db.Transactions++
	db.mu.Unlock()
	return fn(ctx)
}

var _ dbal.Database = (*FakeDB)(nil)
