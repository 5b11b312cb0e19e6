package query

import (
	"github.com/roach88/rowmap/internal/cast"
	"github.com/roach88/rowmap/internal/dbal"
	"github.com/roach88/rowmap/internal/errs"
	"github.com/roach88/rowmap/internal/meta"
)

// CompileUpdate compiles a single-entity update.
//
// Recognized options: where, changes, order, limit. Both where and changes
// must be non-empty.
func CompileUpdate(e *meta.Entity, q dbal.Quoter, opts Options) (dbal.Update, error) {
	u, err := compileUpdate(e, q, opts)
	if err != nil {
		return dbal.Update{}, errs.Annotate(err, "", e.Name())
	}
	return u, nil
}

func compileUpdate(e *meta.Entity, q dbal.Quoter, opts Options) (dbal.Update, error) {
	if err := checkKeys(opts, KeyWhere, KeyChanges, KeyOrder, KeyLimit); err != nil {
		return dbal.Update{}, err
	}
	s := newSingleScope(e, q)
	u := dbal.Update{Table: e.Table()}

	where, err := collection(opts, KeyWhere)
	if err != nil {
		return dbal.Update{}, err
	}
	if len(where) == 0 {
		return dbal.Update{}, errs.New(errs.CodeMissingWhere, "update requires where").WithOption(KeyWhere)
	}
	if u.Where, err = compileWhere(s, where); err != nil {
		return dbal.Update{}, errs.Annotate(err, KeyWhere, "")
	}

	changes, err := collection(opts, KeyChanges)
	if err != nil {
		return dbal.Update{}, err
	}
	if len(changes) == 0 {
		return dbal.Update{}, errs.New(errs.CodeMissingChanges, "update requires changes").WithOption(KeyChanges)
	}
	if u.Changes, err = compileChanges(s, changes); err != nil {
		return dbal.Update{}, errs.Annotate(err, KeyChanges, "")
	}

	order, err := collection(opts, KeyOrder)
	if err != nil {
		return dbal.Update{}, err
	}
	if u.Order, err = compileOrder(s, order); err != nil {
		return dbal.Update{}, errs.Annotate(err, KeyOrder, "")
	}
	if u.Limit, _, err = nonNegative(opts, KeyLimit); err != nil {
		return dbal.Update{}, err
	}
	return u, nil
}

// CompileDelete compiles a single-entity delete. where must be non-empty
// unless unrestricted is true.
func CompileDelete(e *meta.Entity, q dbal.Quoter, opts Options) (dbal.Delete, error) {
	if err := checkKeys(opts, KeyWhere, KeyUnrestricted); err != nil {
		return dbal.Delete{}, errs.Annotate(err, "", e.Name())
	}
	unrestricted, err := flag(opts, KeyUnrestricted)
	if err != nil {
		return dbal.Delete{}, errs.Annotate(err, "", e.Name())
	}
	where, err := collection(opts, KeyWhere)
	if err != nil {
		return dbal.Delete{}, errs.Annotate(err, "", e.Name())
	}
	if len(where) == 0 && !unrestricted {
		return dbal.Delete{}, errs.New(errs.CodeMissingWhere, "delete requires where or unrestricted").
			WithOption(KeyWhere).WithEntity(e.Name())
	}
	conds, err := compileWhere(newSingleScope(e, q), where)
	if err != nil {
		return dbal.Delete{}, errs.Annotate(err, KeyWhere, e.Name())
	}
	return dbal.Delete{Table: e.Table(), Where: conds}, nil
}

// CompileInsert maps field values to columns. values is a collection of
// field name to value. When returnID is set the entity must have an
// autoincrement column.
func CompileInsert(e *meta.Entity, values any, returnID bool) (dbal.Insert, error) {
	ins, err := compileInsert(e, values, returnID)
	if err != nil {
		return dbal.Insert{}, errs.Annotate(err, "values", e.Name())
	}
	return ins, nil
}

func compileInsert(e *meta.Entity, values any, returnID bool) (dbal.Insert, error) {
	if returnID && e.Autoincrement() == "" {
		return dbal.Insert{}, errs.New(errs.CodeNoAutoincrement, "insert id requested but %s has no autoincrement column", e.Name())
	}
	pairs, perr := toPairs(values)
	if perr != nil {
		return dbal.Insert{}, perr
	}
	if len(pairs) == 0 {
		return dbal.Insert{}, errs.New(errs.CodeInvalidShape, "insert requires at least one value")
	}

	ins := dbal.Insert{Table: e.Table()}
	seen := make(map[string]bool, len(pairs))
	for _, p := range pairs {
		if p.Key == "" || IsExpression(p.Key) {
			return dbal.Insert{}, errs.New(errs.CodeInvalidShape, "insert values must be keyed by field name")
		}
		if seen[p.Key] {
			return dbal.Insert{}, errs.New(errs.CodeInvalidShape, "field %q given twice", p.Key)
		}
		seen[p.Key] = true

		col, ok := e.ColumnFor(p.Key)
		if !ok {
			return dbal.Insert{}, errs.New(errs.CodeUnknownField, "unknown field %q", p.Key)
		}
		typ, _ := e.TypeOf(p.Key)
		v, err := cast.BindField(p.Value, typ, e.Nullable(p.Key))
		if err != nil {
			return dbal.Insert{}, fieldError(err, p.Key)
		}
		ins.Columns = append(ins.Columns, col)
		ins.Values = append(ins.Values, v)
	}
	return ins, nil
}

// CompileUpsert compiles an insert that updates the existing row on a
// conflict over the index fields.
//
// Every index field must have a value. update is a changes collection: named
// entries are cast per field, expression and positional entries are
// substituted. An empty update refreshes every non-index column.
func CompileUpsert(e *meta.Entity, q dbal.Quoter, values any, index []string, update any) (dbal.Upsert, error) {
	up, err := compileUpsert(e, q, values, index, update)
	if err != nil {
		return dbal.Upsert{}, errs.Annotate(err, "", e.Name())
	}
	return up, nil
}

func compileUpsert(e *meta.Entity, q dbal.Quoter, values any, index []string, update any) (dbal.Upsert, error) {
	ins, err := compileInsert(e, values, false)
	if err != nil {
		return dbal.Upsert{}, errs.Annotate(err, "values", "")
	}
	if len(index) == 0 {
		return dbal.Upsert{}, errs.New(errs.CodeInvalidShape, "upsert requires index fields").WithOption("index")
	}

	up := dbal.Upsert{Table: ins.Table, Columns: ins.Columns, Values: ins.Values}
	present := make(map[string]bool, len(ins.Columns))
	for _, c := range ins.Columns {
		present[c] = true
	}
	for _, f := range index {
		col, ok := e.ColumnFor(f)
		if !ok {
			return dbal.Upsert{}, errs.New(errs.CodeUnknownField, "unknown index field %q", f).WithOption("index")
		}
		if !present[col] {
			return dbal.Upsert{}, errs.New(errs.CodeMissingIndexField, "index field %q has no value", f).WithOption("index")
		}
		up.Index = append(up.Index, col)
	}

	var pairs Pairs
	if update != nil {
		var perr *errs.Error
		if pairs, perr = toPairs(update); perr != nil {
			return dbal.Upsert{}, perr.WithOption("update")
		}
	}
	if len(pairs) == 0 {
		up.UpdateAll = true
		return up, nil
	}
	if up.Update, err = compileChanges(newSingleScope(e, q), pairs); err != nil {
		return dbal.Upsert{}, errs.Annotate(err, "update", "")
	}
	return up, nil
}
