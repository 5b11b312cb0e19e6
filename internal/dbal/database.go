package dbal

import "context"

// Quoter quotes identifiers for one SQL dialect.
type Quoter interface {
	// QuoteIdentifier quotes name. Dot-separated parts are quoted
	// separately, so "app.users" becomes "app"."users".
	QuoteIdentifier(name string) string

	// QuoteAlias quotes name as one identifier, dots included. Used for
	// select-list aliases such as "a.lastName".
	QuoteAlias(name string) string
}

// Handle is an open result stream returned by Database.Select.
//
// A handle is owned by exactly one call chain (Select, Fetch..., Clear)
// and is not safe for concurrent use.
type Handle interface {
	ID() string
}

// Row is one raw result row in select-list order.
type Row struct {
	Columns []string
	Values  []any
}

// Get returns the value of a column.
func (r *Row) Get(column string) (any, bool) {
	for i, c := range r.Columns {
		if c == column {
			return r.Values[i], true
		}
	}
	return nil, false
}

// Database is the backend contract consumed by the repositories.
//
// Implementations add no retries; an error aborts the current call.
type Database interface {
	Quoter

	// Select opens a handle over the rows of q.
	Select(ctx context.Context, q Query) (Handle, error)

	// Fetch returns the next row of h, or nil once the rows are exhausted.
	Fetch(ctx context.Context, h Handle) (*Row, error)

	// Clear releases h. Clearing a released handle is a no-op.
	Clear(h Handle) error

	FetchAll(ctx context.Context, q Query) ([]*Row, error)

	// FetchOne returns the first row of q, or nil when there is none.
	FetchOne(ctx context.Context, q Query) (*Row, error)

	// Change runs a freeform statement and returns the affected row count.
	Change(ctx context.Context, sql string, args []any) (int64, error)

	Update(ctx context.Context, u Update) (int64, error)

	// Insert adds a row. When autoincrement names a column, the generated
	// id is returned as reported by the driver; otherwise "" is returned.
	Insert(ctx context.Context, ins Insert, autoincrement string) (string, error)

	Upsert(ctx context.Context, u Upsert) error

	Delete(ctx context.Context, d Delete) (int64, error)

	// Transaction runs fn inside one transaction. Calls made through the
	// Database with the ctx passed to fn take part in it. The transaction
	// commits when fn returns nil and rolls back otherwise.
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error
}
