package sqldb

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/rowmap/internal/dbal"
)

// builder accumulates one statement with ? placeholders.
type builder struct {
	d    Dialect
	sql  strings.Builder
	args []any
}

func (b *builder) write(parts ...string) {
	for _, p := range parts {
		b.sql.WriteString(p)
	}
}

func (b *builder) bind(args ...any) {
	b.args = append(b.args, args...)
}

func (b *builder) ident(name string) string {
	return b.d.QuoteIdentifier(name)
}

// statement returns the final SQL, rebound for the dialect.
func (b *builder) statement() (string, []any) {
	return b.d.Rebind(b.sql.String()), b.args
}

// RenderQuery renders a read query.
func (d Dialect) RenderQuery(q dbal.Query) (string, []any, error) {
	switch q := q.(type) {
	case dbal.Select:
		sql, args := d.RenderSelect(q)
		return sql, args, nil
	case dbal.Raw:
		return d.Rebind(q.SQL), q.Args, nil
	}
	return "", nil, fmt.Errorf("unsupported query %T", q)
}

// RenderSelect renders a structured select.
func (d Dialect) RenderSelect(s dbal.Select) (string, []any) {
	b := &builder{d: d}
	fields, args := dbal.RenderFields(d, s.Fields)
	if fields == "" {
		fields = "*"
	}
	b.write("SELECT ", fields, " FROM ")
	b.bind(args...)

	if s.Table != "" {
		b.write(b.ident(s.Table))
	} else {
		tables, args := dbal.RenderTables(s.Tables)
		b.write(tables)
		b.bind(args...)
	}

	b.where(s.Where)
	if len(s.Group) > 0 {
		terms := make([]string, len(s.Group))
		for i, g := range s.Group {
			if g.Expr != "" {
				terms[i] = g.Expr
			} else {
				terms[i] = b.ident(g.Column)
			}
		}
		b.write(" GROUP BY ", strings.Join(terms, ", "))
	}
	b.order(s.Order)
	b.limit(s.Limit, s.Offset)
	if s.Lock && d.lock {
		b.write(" FOR UPDATE")
	}
	return b.statement()
}

// RenderUpdate renders an update. Dialects without UPDATE ... LIMIT
// restrict a limited update to the row ids of a limited subselect; an
// order without a limit selects nothing there and is dropped.
func (d Dialect) RenderUpdate(u dbal.Update) (string, []any) {
	b := &builder{d: d}
	table := b.ident(u.Table)
	b.write("UPDATE ", table, " SET ")
	b.assignments(u.Changes)
	switch {
	case d.rowID == "":
		b.where(u.Where)
		b.order(u.Order)
		b.limit(u.Limit, 0)
	case u.Limit > 0:
		b.write(" WHERE ", d.rowID, " IN (SELECT ", d.rowID, " FROM ", table)
		b.where(u.Where)
		b.order(u.Order)
		b.limit(u.Limit, 0)
		b.write(")")
	default:
		b.where(u.Where)
	}
	return b.statement()
}

// RenderDelete renders a delete.
func (d Dialect) RenderDelete(del dbal.Delete) (string, []any) {
	b := &builder{d: d}
	b.write("DELETE FROM ", b.ident(del.Table))
	b.where(del.Where)
	return b.statement()
}

// RenderInsert renders an insert. returning names a column to read back
// on dialects that support RETURNING.
func (d Dialect) RenderInsert(ins dbal.Insert, returning string) (string, []any) {
	b := &builder{d: d}
	b.values(ins.Table, ins.Columns, ins.Values)
	if returning != "" && d.returning {
		b.write(" RETURNING ", b.ident(returning))
	}
	return b.statement()
}

// RenderUpsert renders an insert that updates the existing row on a
// conflict over the index columns.
func (d Dialect) RenderUpsert(u dbal.Upsert) (string, []any) {
	b := &builder{d: d}
	b.values(u.Table, u.Columns, u.Values)

	changes := u.Update
	if u.UpdateAll {
		changes = nil
		index := make(map[string]bool, len(u.Index))
		for _, c := range u.Index {
			index[c] = true
		}
		for _, c := range u.Columns {
			if !index[c] {
				changes = append(changes, dbal.Assignment{Expr: d.excluded(c)})
			}
		}
	}

	switch d.upsert {
	case onDuplicateKey:
		if len(changes) == 0 {
			// MySQL has no DO NOTHING; a self-assignment keeps the row.
			c := b.ident(u.Index[0])
			changes = []dbal.Assignment{{Expr: c + " = " + c}}
		}
		b.write(" ON DUPLICATE KEY UPDATE ")
		b.assignments(changes)
	default:
		index := make([]string, len(u.Index))
		for i, c := range u.Index {
			index[i] = b.ident(c)
		}
		b.write(" ON CONFLICT (", strings.Join(index, ", "), ")")
		if len(changes) == 0 {
			b.write(" DO NOTHING")
			break
		}
		b.write(" DO UPDATE SET ")
		b.assignments(changes)
	}
	return b.statement()
}

// excluded renders col = <inserted value of col>.
func (d Dialect) excluded(col string) string {
	c := d.QuoteIdentifier(col)
	if d.upsert == onDuplicateKey {
		return c + " = VALUES(" + c + ")"
	}
	return c + " = excluded." + c
}

func (b *builder) values(table string, columns []string, values []any) {
	cols := make([]string, len(columns))
	marks := make([]string, len(columns))
	for i, c := range columns {
		cols[i] = b.ident(c)
		marks[i] = "?"
	}
	b.write("INSERT INTO ", b.ident(table), " (", strings.Join(cols, ", "), ") VALUES (", strings.Join(marks, ", "), ")")
	b.bind(values...)
}

func (b *builder) assignments(changes []dbal.Assignment) {
	for i, a := range changes {
		if i > 0 {
			b.write(", ")
		}
		if a.Expr != "" {
			b.write(a.Expr)
			b.bind(a.Args...)
			continue
		}
		b.write(b.ident(a.Column), " = ?")
		b.bind(a.Value)
	}
}

// where renders conditions joined by AND. Expression conditions are
// parenthesized when there is more than one condition.
func (b *builder) where(conds []dbal.Condition) {
	if len(conds) == 0 {
		return
	}
	b.write(" WHERE ")
	for i, c := range conds {
		if i > 0 {
			b.write(" AND ")
		}
		b.condition(c, len(conds) > 1)
	}
}

func (b *builder) condition(c dbal.Condition, group bool) {
	if c.Expr != "" {
		if group {
			b.write("(", c.Expr, ")")
		} else {
			b.write(c.Expr)
		}
		b.bind(c.Values...)
		return
	}

	col := b.ident(c.Column)
	switch {
	case c.In && len(c.Values) == 0:
		b.write("1 = 0")
	case c.In:
		b.write(col, " IN (", strings.TrimSuffix(strings.Repeat("?, ", len(c.Values)), ", "), ")")
		b.bind(c.Values...)
	case len(c.Values) == 1 && c.Values[0] == nil:
		b.write(col, " IS NULL")
	default:
		b.write(col, " = ?")
		b.bind(c.Values...)
	}
}

func (b *builder) order(order []dbal.Ordering) {
	if len(order) == 0 {
		return
	}
	terms := make([]string, len(order))
	for i, o := range order {
		term := o.Expr
		if term == "" {
			term = b.ident(o.Column)
		}
		switch {
		case o.Bare:
		case o.Desc:
			term += " DESC"
		default:
			term += " ASC"
		}
		terms[i] = term
	}
	b.write(" ORDER BY ", strings.Join(terms, ", "))
}

func (b *builder) limit(limit, offset int) {
	switch {
	case limit > 0:
		b.write(" LIMIT ", strconv.Itoa(limit))
	case offset > 0 && b.d.noLimit != "":
		b.write(" LIMIT ", b.d.noLimit)
	}
	if offset > 0 {
		b.write(" OFFSET ", strconv.Itoa(offset))
	}
}
