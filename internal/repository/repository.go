package repository

import (
	"context"

	"github.com/roach88/rowmap/internal/dbal"
	"github.com/roach88/rowmap/internal/decode"
	"github.com/roach88/rowmap/internal/meta"
	"github.com/roach88/rowmap/internal/query"
)

// Repository serves one entity and hydrates its rows into T.
type Repository[T any] struct {
	base    *Base
	hydrate decode.Hydrator[T]
}

// New creates a repository. A nil hydrator falls back to
// decode.StructHydrator[T].
func New[T any](db dbal.Database, e *meta.Entity, h decode.Hydrator[T], opts ...Option) *Repository[T] {
	if h == nil {
		h = decode.StructHydrator[T]()
	}
	return &Repository[T]{base: NewBase(db, e, opts...), hydrate: h}
}

// NewRecords creates a repository returning plain records.
func NewRecords(db dbal.Database, e *meta.Entity, opts ...Option) *Repository[decode.Record] {
	return New(db, e, decode.AsRecord, opts...)
}

func (r *Repository[T]) handle() *Base { return r.base }

// Base returns the underlying Base.
func (r *Repository[T]) Base() *Base { return r.base }

func (r *Repository[T]) row(row *dbal.Row) (T, error) {
	rec, err := decode.Row(row, r.base.entity)
	if err != nil {
		var zero T
		return zero, err
	}
	return r.hydrate(rec)
}

// Select returns every matching object.
func (r *Repository[T]) Select(ctx context.Context, opts query.Options) ([]T, error) {
	c, err := query.CompileSelect(r.base.entity, r.base.db, opts)
	if err != nil {
		return nil, err
	}
	r.base.logger.Debug("compiled select", "op", "select")

	rows, err := r.base.db.FetchAll(ctx, c.Query)
	if err != nil {
		return nil, r.base.backend("select", err)
	}
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		v, err := r.row(row)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// SelectOne returns the first matching object. ok is false when no row
// matches. A limit other than 1 is rejected.
func (r *Repository[T]) SelectOne(ctx context.Context, opts query.Options) (v T, ok bool, err error) {
	c, err := query.CompileSelectOne(r.base.entity, r.base.db, opts)
	if err != nil {
		return v, false, err
	}
	r.base.logger.Debug("compiled select", "op", "selectOne")

	row, err := r.base.db.FetchOne(ctx, c.Query)
	if err != nil {
		return v, false, r.base.backend("selectOne", err)
	}
	if row == nil {
		return v, false, nil
	}
	v, err = r.row(row)
	if err != nil {
		return v, false, err
	}
	return v, true, nil
}

// SelectFlattenedFields returns every selected value of every row in one
// sequence, each cast by its field type.
func (r *Repository[T]) SelectFlattenedFields(ctx context.Context, opts query.Options) ([]any, error) {
	c, err := query.CompileSelect(r.base.entity, r.base.db, opts)
	if err != nil {
		return nil, err
	}
	r.base.logger.Debug("compiled select", "op", "selectFlattened")

	rows, err := r.base.db.FetchAll(ctx, c.Query)
	if err != nil {
		return nil, r.base.backend("selectFlattened", err)
	}
	return decode.Flatten(rows, c.Plan)
}

// SelectFlattenedAs is SelectFlattenedFields with every value cast to t.
func (r *Repository[T]) SelectFlattenedAs(ctx context.Context, opts query.Options, t meta.Type) ([]any, error) {
	c, err := query.CompileSelect(r.base.entity, r.base.db, opts)
	if err != nil {
		return nil, err
	}
	rows, err := r.base.db.FetchAll(ctx, c.Query)
	if err != nil {
		return nil, r.base.backend("selectFlattened", err)
	}
	return decode.FlattenAs(rows, t)
}

// Count returns the number of matching rows.
func (r *Repository[T]) Count(ctx context.Context, opts query.Options) (int64, error) {
	c, err := query.CompileCount(r.base.entity, r.base.db, opts)
	if err != nil {
		return 0, err
	}
	row, err := r.base.db.FetchOne(ctx, c.Query)
	if err != nil {
		return 0, r.base.backend("count", err)
	}
	return decode.Count(row)
}

// Insert adds a row built from field values. With returnID the generated
// id is returned as the backend reported it.
func (r *Repository[T]) Insert(ctx context.Context, values any, returnID bool) (string, error) {
	if err := r.base.checkWritable("insert"); err != nil {
		return "", err
	}
	ins, err := query.CompileInsert(r.base.entity, values, returnID)
	if err != nil {
		return "", err
	}
	r.base.logger.Debug("compiled insert", "op", "insert", "columns", ins.Columns)

	auto := ""
	if returnID {
		auto = r.base.entity.Autoincrement()
	}
	id, err := r.base.db.Insert(ctx, ins, auto)
	if err != nil {
		return "", r.base.backend("insert", err)
	}
	return id, nil
}

// InsertOrUpdate inserts a row or updates the row with the same index
// fields. See query.CompileUpsert for the update rules.
func (r *Repository[T]) InsertOrUpdate(ctx context.Context, values any, index []string, update any) error {
	if err := r.base.checkWritable("insertOrUpdate"); err != nil {
		return err
	}
	up, err := query.CompileUpsert(r.base.entity, r.base.db, values, index, update)
	if err != nil {
		return err
	}
	r.base.logger.Debug("compiled upsert", "op", "insertOrUpdate", "index", up.Index)
	return r.base.backend("insertOrUpdate", r.base.db.Upsert(ctx, up))
}

// Update changes matching rows and returns the affected row count.
func (r *Repository[T]) Update(ctx context.Context, opts query.Options) (int64, error) {
	if err := r.base.checkWritable("update"); err != nil {
		return 0, err
	}
	u, err := query.CompileUpdate(r.base.entity, r.base.db, opts)
	if err != nil {
		return 0, err
	}
	r.base.logger.Debug("compiled update", "op", "update")

	n, err := r.base.db.Update(ctx, u)
	if err != nil {
		return 0, r.base.backend("update", err)
	}
	return n, nil
}

// Delete removes matching rows and returns the affected row count.
func (r *Repository[T]) Delete(ctx context.Context, opts query.Options) (int64, error) {
	if err := r.base.checkWritable("delete"); err != nil {
		return 0, err
	}
	d, err := query.CompileDelete(r.base.entity, r.base.db, opts)
	if err != nil {
		return 0, err
	}
	r.base.logger.Debug("compiled delete", "op", "delete", "restricted", len(d.Where) > 0)

	n, err := r.base.db.Delete(ctx, d)
	if err != nil {
		return 0, r.base.backend("delete", err)
	}
	return n, nil
}

// Iterate returns an unopened iterator over matching objects. Compile
// errors are reported by the first Rewind.
func (r *Repository[T]) Iterate(opts query.Options) *Iterator[T] {
	c, err := query.CompileSelect(r.base.entity, r.base.db, opts)
	return &Iterator[T]{
		db:        r.base.db,
		logger:    r.base.logger,
		query:     c.Query,
		compileEr: err,
		decode:    r.row,
	}
}
