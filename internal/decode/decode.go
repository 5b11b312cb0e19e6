// Package decode converts raw backend rows into typed records and scalars.
//
// Object decoding goes through entity metadata: every column the entity
// maps is cast by its field type, and columns it does not map are ignored so
// partial or join-adjacent projections decode cleanly. Flattened and
// multi-entity decoding go through a query.CastPlan instead.
package decode

import (
	"github.com/roach88/rowmap/internal/cast"
	"github.com/roach88/rowmap/internal/dbal"
	"github.com/roach88/rowmap/internal/errs"
	"github.com/roach88/rowmap/internal/meta"
	"github.com/roach88/rowmap/internal/query"
)

// Record is a decoded row keyed by field name (single entity) or output
// key (multi entity).
type Record map[string]any

// Row decodes one row of a single-entity select into a record keyed by
// field name. nil is preserved for nullable fields and rejected for the
// others, since a NULL from a NOT NULL field means the metadata is wrong.
func Row(row *dbal.Row, e *meta.Entity) (Record, error) {
	rec := make(Record, len(row.Columns))
	for i, col := range row.Columns {
		field, ok := e.FieldFor(col)
		if !ok {
			continue
		}
		typ, _ := e.TypeOf(field)
		v, err := value(row.Values[i], typ, e.Nullable(field))
		if err != nil {
			return nil, decodeError(err, e.Name(), field)
		}
		rec[field] = v
	}
	return rec, nil
}

// Rows decodes every row with Row.
func Rows(rows []*dbal.Row, e *meta.Entity) ([]Record, error) {
	out := make([]Record, 0, len(rows))
	for _, r := range rows {
		rec, err := Row(r, e)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// MultiRecord decodes one row of a multi-entity select by output key.
// Columns outside the plan are ignored.
func MultiRecord(row *dbal.Row, plan *query.CastPlan) (Record, error) {
	rec := make(Record, len(row.Columns))
	for i, col := range row.Columns {
		typ, ok := plan.Type(col)
		if !ok {
			continue
		}
		v, err := value(row.Values[i], typ, plan.Nullable(col))
		if err != nil {
			return nil, decodeError(err, "", col)
		}
		rec[col] = v
	}
	return rec, nil
}

// Flatten walks every row then every column in order and returns one
// linear sequence of values cast by plan. Columns missing from the plan
// are passed through uncast.
func Flatten(rows []*dbal.Row, plan *query.CastPlan) ([]any, error) {
	var out []any
	for _, r := range rows {
		for i, col := range r.Columns {
			typ, ok := plan.Type(col)
			if !ok {
				out = append(out, r.Values[i])
				continue
			}
			v, err := value(r.Values[i], typ, plan.Nullable(col))
			if err != nil {
				return nil, decodeError(err, "", col)
			}
			out = append(out, v)
		}
	}
	if out == nil {
		out = []any{}
	}
	return out, nil
}

// FlattenAs is Flatten with every value cast to t. nil is preserved.
func FlattenAs(rows []*dbal.Row, t meta.Type) ([]any, error) {
	var out []any
	for _, r := range rows {
		for i, col := range r.Columns {
			v, err := cast.Decode(r.Values[i], t)
			if err != nil {
				return nil, decodeError(err, "", col)
			}
			out = append(out, v)
		}
	}
	if out == nil {
		out = []any{}
	}
	return out, nil
}

// Count decodes the num column of a count query. A missing row or a NULL
// count decodes to 0.
func Count(row *dbal.Row) (int64, error) {
	if row == nil {
		return 0, nil
	}
	v, ok := row.Get(query.CountAlias)
	if !ok && len(row.Values) == 1 {
		v, ok = row.Values[0], true
	}
	if !ok {
		return 0, errs.New(errs.CodeInvalidValue, "count row has no %s column", query.CountAlias)
	}
	if v == nil {
		return 0, nil
	}
	return cast.ToInt(v)
}

func value(raw any, t meta.Type, nullable bool) (any, error) {
	if raw == nil {
		if !nullable {
			return nil, errs.New(errs.CodeNullNotAllowed, "null returned for non-nullable value")
		}
		return nil, nil
	}
	return cast.Decode(raw, t)
}

// decodeError names the key and entity in a cast error.
func decodeError(err error, entity, key string) error {
	e, ok := err.(*errs.Error)
	if !ok {
		return err
	}
	c := *e
	c.Message = key + ": " + c.Message
	if c.Option == "" {
		c.Option = "decode"
	}
	if c.Entity == "" {
		c.Entity = entity
	}
	return &c
}
