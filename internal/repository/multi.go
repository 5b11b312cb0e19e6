package repository

import (
	"context"
	"log/slog"
	"reflect"
	"strings"

	"github.com/roach88/rowmap/internal/dbal"
	"github.com/roach88/rowmap/internal/decode"
	"github.com/roach88/rowmap/internal/errs"
	"github.com/roach88/rowmap/internal/query"
)

// Source names one repository taking part in a multi-entity query.
type Source struct {
	Alias  string
	Handle Handle
}

// Multi runs queries across several repositories sharing one database.
type Multi struct {
	logger *slog.Logger
}

// NewMulti creates a Multi. Only WithLogger applies.
func NewMulti(opts ...Option) *Multi {
	c := newConfig(opts)
	return &Multi{logger: c.logger}
}

// resolve returns the shared database of the sources and their metadata.
// Every handle must resolve to the same database.
func resolve(sources []Source) (dbal.Database, []query.Source, error) {
	if len(sources) == 0 {
		return nil, nil, errs.New(errs.CodeInvalidShape, "at least one source is required")
	}
	var db dbal.Database
	out := make([]query.Source, len(sources))
	for i, src := range sources {
		if src.Handle == nil {
			return nil, nil, errs.New(errs.CodeInvalidShape, "source %q has no repository", src.Alias)
		}
		b := src.Handle.handle()
		if i == 0 {
			db = b.db
		} else if !sameDatabase(db, b.db) {
			return nil, nil, errs.New(errs.CodeConnectionMismatch,
				"source %q uses a different database than %q", src.Alias, sources[0].Alias).WithEntity(src.Alias)
		}
		out[i] = query.Source{Alias: src.Alias, Entity: b.entity}
	}
	return db, out, nil
}

// sameDatabase compares database identities. Values of a non-comparable
// dynamic type are never considered the same.
func sameDatabase(a, b dbal.Database) bool {
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}

func aliases(sources []Source) string {
	names := make([]string, len(sources))
	for i, s := range sources {
		names[i] = s.Alias
	}
	return strings.Join(names, ",")
}

func (m *Multi) backend(op string, sources []Source, err error) error {
	m.logger.Warn("backend call failed", "op", op, "sources", aliases(sources), "error", err)
	return errs.Backend(err)
}

// Select returns every matching record, keyed by output name.
func (m *Multi) Select(ctx context.Context, sources []Source, opts query.Options) ([]decode.Record, error) {
	db, qs, err := resolve(sources)
	if err != nil {
		return nil, err
	}
	c, err := query.CompileMultiSelect(qs, db, opts)
	if err != nil {
		return nil, err
	}
	m.logger.Debug("compiled multi select", "op", "select", "sources", aliases(sources))

	rows, err := db.FetchAll(ctx, c.Query)
	if err != nil {
		return nil, m.backend("select", sources, err)
	}
	out := make([]decode.Record, 0, len(rows))
	for _, row := range rows {
		rec, err := decode.MultiRecord(row, c.Plan)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// SelectOne returns the first matching record. A limit other than 1 is
// rejected.
func (m *Multi) SelectOne(ctx context.Context, sources []Source, opts query.Options) (decode.Record, bool, error) {
	db, qs, err := resolve(sources)
	if err != nil {
		return nil, false, err
	}
	c, err := query.CompileMultiSelectOne(qs, db, opts)
	if err != nil {
		return nil, false, err
	}
	row, err := db.FetchOne(ctx, c.Query)
	if err != nil {
		return nil, false, m.backend("selectOne", sources, err)
	}
	if row == nil {
		return nil, false, nil
	}
	rec, err := decode.MultiRecord(row, c.Plan)
	if err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

// SelectFlattenedFields returns every selected value of every row in one
// sequence.
func (m *Multi) SelectFlattenedFields(ctx context.Context, sources []Source, opts query.Options) ([]any, error) {
	db, qs, err := resolve(sources)
	if err != nil {
		return nil, err
	}
	c, err := query.CompileMultiSelect(qs, db, opts)
	if err != nil {
		return nil, err
	}
	rows, err := db.FetchAll(ctx, c.Query)
	if err != nil {
		return nil, m.backend("selectFlattened", sources, err)
	}
	return decode.Flatten(rows, c.Plan)
}

// Count returns the number of matching joined rows.
func (m *Multi) Count(ctx context.Context, sources []Source, opts query.Options) (int64, error) {
	db, qs, err := resolve(sources)
	if err != nil {
		return 0, err
	}
	c, err := query.CompileMultiCount(qs, db, opts)
	if err != nil {
		return 0, err
	}
	row, err := db.FetchOne(ctx, c.Query)
	if err != nil {
		return 0, m.backend("count", sources, err)
	}
	return decode.Count(row)
}

// Update runs a freeform update and returns the affected row count. Every
// source must be writable.
func (m *Multi) Update(ctx context.Context, sources []Source, opts query.Options) (int64, error) {
	db, qs, err := resolve(sources)
	if err != nil {
		return 0, err
	}
	for _, src := range sources {
		if err := src.Handle.handle().checkWritable("update"); err != nil {
			return 0, errs.Annotate(err, "", src.Alias)
		}
	}
	raw, err := query.CompileMultiUpdate(qs, db, opts)
	if err != nil {
		return 0, err
	}
	m.logger.Debug("compiled multi update", "op", "update", "sources", aliases(sources))

	n, err := db.Change(ctx, raw.SQL, raw.Args)
	if err != nil {
		return 0, m.backend("update", sources, err)
	}
	return n, nil
}

// Iterate returns an unopened iterator over matching records. Resolve and
// compile errors are reported by the first Rewind.
func (m *Multi) Iterate(sources []Source, opts query.Options) *MultiIterator {
	it := &MultiIterator{logger: m.logger}
	db, qs, err := resolve(sources)
	if err != nil {
		it.compileEr = err
		return it
	}
	c, err := query.CompileMultiSelect(qs, db, opts)
	it.db, it.query, it.compileEr = db, c.Query, err
	it.decode = func(row *dbal.Row) (decode.Record, error) {
		return decode.MultiRecord(row, c.Plan)
	}
	return it
}
