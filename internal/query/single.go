package query

import (
	"strings"

	"github.com/roach88/rowmap/internal/dbal"
	"github.com/roach88/rowmap/internal/errs"
	"github.com/roach88/rowmap/internal/meta"
)

// CountAlias is the output key of count queries.
const CountAlias = "num"

// CompileSelect compiles a single-entity select.
//
// Recognized options: where, order, group, fields, limit, offset, lock.
// Without fields every field is selected in declaration order. The plan is
// keyed by column name.
func CompileSelect(e *meta.Entity, q dbal.Quoter, opts Options) (Compiled, error) {
	c, err := compileSelect(e, q, opts)
	if err != nil {
		return Compiled{}, errs.Annotate(err, "", e.Name())
	}
	return c, nil
}

func compileSelect(e *meta.Entity, q dbal.Quoter, opts Options) (Compiled, error) {
	if err := checkKeys(opts, KeyWhere, KeyOrder, KeyGroup, KeyFields, KeyLimit, KeyOffset, KeyLock); err != nil {
		return Compiled{}, err
	}
	s := newSingleScope(e, q)
	sel := dbal.Select{Table: e.Table()}
	plan := NewCastPlan()

	fieldPairs, err := collection(opts, KeyFields)
	if err != nil {
		return Compiled{}, err
	}
	if fieldPairs == nil {
		for _, f := range e.Fields() {
			fieldPairs = append(fieldPairs, Pair{Value: f})
		}
	}
	for _, p := range fieldPairs {
		name, ok := p.Value.(string)
		if p.Key != "" || !ok {
			return Compiled{}, errs.New(errs.CodeInvalidShape, "fields entries must be field names").WithOption(KeyFields)
		}
		r, err := s.lookup(strings.TrimSpace(name))
		if err != nil {
			return Compiled{}, errs.Annotate(err, KeyFields, "")
		}
		sel.Fields = append(sel.Fields, dbal.SelectField{Column: r.column})
		plan.Add(r.key, r.typ, r.nullable)
	}

	if err := compileRestrictions(s, opts, &sel, true); err != nil {
		return Compiled{}, err
	}
	return Compiled{Query: sel, Plan: plan}, nil
}

// compileRestrictions fills where, group, order, limit, offset and lock.
func compileRestrictions(s scope, opts Options, sel *dbal.Select, freeformGroup bool) error {
	where, err := collection(opts, KeyWhere)
	if err != nil {
		return err
	}
	if sel.Where, err = compileWhere(s, where); err != nil {
		return errs.Annotate(err, KeyWhere, "")
	}

	group, err := collection(opts, KeyGroup)
	if err != nil {
		return err
	}
	if sel.Group, err = compileGroup(s, group, freeformGroup); err != nil {
		return errs.Annotate(err, KeyGroup, "")
	}

	order, err := collection(opts, KeyOrder)
	if err != nil {
		return err
	}
	if sel.Order, err = compileOrder(s, order); err != nil {
		return errs.Annotate(err, KeyOrder, "")
	}

	if sel.Limit, _, err = nonNegative(opts, KeyLimit); err != nil {
		return err
	}
	if sel.Offset, _, err = nonNegative(opts, KeyOffset); err != nil {
		return err
	}
	sel.Lock, err = flag(opts, KeyLock)
	return err
}

// CompileSelectOne compiles a select limited to one row. A caller limit
// other than 1 fails with CodeAmbiguousLimit.
func CompileSelectOne(e *meta.Entity, q dbal.Quoter, opts Options) (Compiled, error) {
	one, err := limitOne(opts)
	if err != nil {
		return Compiled{}, errs.Annotate(err, KeyLimit, e.Name())
	}
	return CompileSelect(e, q, one)
}

func limitOne(opts Options) (Options, error) {
	n, set, err := nonNegative(opts, KeyLimit)
	if err != nil {
		return nil, err
	}
	if set && n != 1 {
		return nil, errs.New(errs.CodeAmbiguousLimit, "single-row select with limit %d", n)
	}
	out := make(Options, len(opts)+1)
	for k, v := range opts {
		out[k] = v
	}
	out[KeyLimit] = 1
	return out, nil
}

// CompileCount compiles COUNT(*) AS num over the where restrictions.
// Only where and lock are accepted.
func CompileCount(e *meta.Entity, q dbal.Quoter, opts Options) (Compiled, error) {
	if err := checkKeys(opts, KeyWhere, KeyLock); err != nil {
		return Compiled{}, errs.Annotate(err, "", e.Name())
	}
	sel := dbal.Select{
		Table:  e.Table(),
		Fields: []dbal.SelectField{countField()},
	}
	if err := compileRestrictions(newSingleScope(e, q), opts, &sel, true); err != nil {
		return Compiled{}, errs.Annotate(err, "", e.Name())
	}
	return Compiled{Query: sel, Plan: countPlan()}, nil
}

func countField() dbal.SelectField {
	return dbal.SelectField{Expr: "COUNT(*)", Alias: CountAlias}
}

func countPlan() *CastPlan {
	p := NewCastPlan()
	p.Add(CountAlias, meta.Int, false)
	return p
}
