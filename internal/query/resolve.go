package query

import (
	"strings"

	"github.com/roach88/rowmap/internal/cast"
	"github.com/roach88/rowmap/internal/dbal"
	"github.com/roach88/rowmap/internal/errs"
	"github.com/roach88/rowmap/internal/meta"
)

// ref is a resolved direct field reference.
type ref struct {
	column   string // descriptor column, alias-qualified in multi-entity scopes
	key      string // output key of the select list
	typ      meta.Type
	nullable bool
}

// scope resolves names for one compilation.
type scope interface {
	// lookup resolves a direct reference ("field" or "alias.field").
	lookup(name string) (ref, error)

	// fields maps token names to quoted identifiers.
	fields() map[string]string

	// refOf returns the reference behind a token name.
	refOf(token string) (ref, bool)

	// entity names the scope in errors.
	entity() string
}

// singleScope resolves field names of one entity.
type singleScope struct {
	e      *meta.Entity
	tokens map[string]string
}

func newSingleScope(e *meta.Entity, q dbal.Quoter) *singleScope {
	tokens := make(map[string]string)
	for _, f := range e.Fields() {
		col, _ := e.ColumnFor(f)
		tokens[f] = q.QuoteIdentifier(col)
	}
	return &singleScope{e: e, tokens: tokens}
}

func (s *singleScope) lookup(name string) (ref, error) {
	r, ok := s.refOf(name)
	if !ok {
		return ref{}, errs.New(errs.CodeUnknownField, "unknown field %q", name)
	}
	return r, nil
}

func (s *singleScope) refOf(name string) (ref, bool) {
	col, ok := s.e.ColumnFor(name)
	if !ok {
		return ref{}, false
	}
	typ, _ := s.e.TypeOf(name)
	return ref{column: col, key: col, typ: typ, nullable: s.e.Nullable(name)}, true
}

func (s *singleScope) fields() map[string]string { return s.tokens }
func (s *singleScope) entity() string            { return s.e.Name() }

// compileWhere resolves a where collection into conditions.
func compileWhere(s scope, pairs Pairs) ([]dbal.Condition, error) {
	clauses, err := ParseClauses(pairs)
	if err != nil {
		return nil, err
	}
	out := make([]dbal.Condition, 0, len(clauses))
	for _, c := range clauses {
		cond, err := compileCondition(s, c)
		if err != nil {
			return nil, err
		}
		out = append(out, cond)
	}
	return out, nil
}

func compileCondition(s scope, c Clause) (dbal.Condition, error) {
	switch c := c.(type) {
	case Named:
		r, err := s.lookup(c.Key)
		if err != nil {
			return dbal.Condition{}, err
		}
		if items, ok := spread(c.Value); ok {
			vals := make([]any, len(items))
			for i, item := range items {
				v, err := cast.BindField(item, r.typ, r.nullable)
				if err != nil {
					return dbal.Condition{}, fieldError(err, c.Key)
				}
				vals[i] = v
			}
			return dbal.Condition{Column: r.column, Values: vals, In: true}, nil
		}
		v, err := cast.BindField(c.Value, r.typ, r.nullable)
		if err != nil {
			return dbal.Condition{}, fieldError(err, c.Key)
		}
		return dbal.Condition{Column: r.column, Values: []any{v}}, nil

	case Expression:
		text, args, err := expression(s.fields(), c.Text, c.Values)
		if err != nil {
			return dbal.Condition{}, err
		}
		return dbal.Condition{Expr: text, Values: args}, nil

	case Bare:
		text, _, err := expression(s.fields(), c.Text, nil)
		if err != nil {
			return dbal.Condition{}, err
		}
		return dbal.Condition{Expr: text}, nil
	}
	return dbal.Condition{}, errs.New(errs.CodeInvalidShape, "unsupported clause %T", c)
}

// expression substitutes tokens in text and binds values generically.
func expression(tokens map[string]string, text string, values []any) (string, []any, error) {
	out, err := Substitute(text, tokens)
	if err != nil {
		return "", nil, err
	}
	var args []any
	for _, v := range values {
		b, err := cast.Bind(v)
		if err != nil {
			return "", nil, err
		}
		args = append(args, b)
	}
	if err := checkPlaceholders(out, args); err != nil {
		return "", nil, err
	}
	return out, args, nil
}

// fieldError names the field in a cast error.
func fieldError(err error, field string) error {
	e, ok := err.(*errs.Error)
	if !ok {
		return err
	}
	c := *e
	c.Message = "field " + field + ": " + c.Message
	return &c
}

// compileOrder resolves an order collection.
func compileOrder(s scope, pairs Pairs) ([]dbal.Ordering, error) {
	clauses, err := ParseClauses(pairs)
	if err != nil {
		return nil, err
	}
	out := make([]dbal.Ordering, 0, len(clauses))
	for _, c := range clauses {
		switch c := c.(type) {
		case Named:
			r, err := s.lookup(c.Key)
			if err != nil {
				return nil, err
			}
			desc, err := direction(c.Value)
			if err != nil {
				return nil, err
			}
			out = append(out, dbal.Ordering{Column: r.column, Desc: desc})

		case Expression:
			if len(dbal.Placeholders(c.Text)) > 0 {
				return nil, errs.New(errs.CodeInvalidValue, "order expression %q must not bind values", c.Text)
			}
			text, err := Substitute(c.Text, s.fields())
			if err != nil {
				return nil, err
			}
			if len(c.Values) == 0 {
				out = append(out, dbal.Ordering{Expr: text, Bare: true})
				continue
			}
			if len(c.Values) != 1 {
				return nil, errs.New(errs.CodeInvalidValue, "order expression %q takes one direction", c.Text)
			}
			desc, err := direction(c.Values[0])
			if err != nil {
				return nil, err
			}
			out = append(out, dbal.Ordering{Expr: text, Desc: desc})

		case Bare:
			if !strings.Contains(c.Text, ":") {
				r, err := s.lookup(strings.TrimSpace(c.Text))
				if err != nil {
					return nil, err
				}
				out = append(out, dbal.Ordering{Column: r.column})
				continue
			}
			text, err := Substitute(c.Text, s.fields())
			if err != nil {
				return nil, err
			}
			out = append(out, dbal.Ordering{Expr: text, Bare: true})
		}
	}
	return out, nil
}

// direction parses ASC or DESC. nil means ASC.
func direction(v any) (bool, error) {
	if v == nil {
		return false, nil
	}
	s, ok := v.(string)
	if !ok {
		return false, errs.New(errs.CodeInvalidValue, "order direction must be a string, got %T", v)
	}
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ASC":
		return false, nil
	case "DESC":
		return true, nil
	}
	return false, errs.New(errs.CodeInvalidValue, "order direction must be ASC or DESC, got %q", s)
}

// compileGroup resolves a group collection. Entries are positional. When
// freeform is false every entry must resolve to a direct reference.
func compileGroup(s scope, pairs Pairs, freeform bool) ([]dbal.Term, error) {
	clauses, err := ParseClauses(pairs)
	if err != nil {
		return nil, err
	}
	out := make([]dbal.Term, 0, len(clauses))
	for _, c := range clauses {
		b, ok := c.(Bare)
		if !ok {
			return nil, errs.New(errs.CodeInvalidShape, "group entries must be positional")
		}
		text := strings.TrimSpace(b.Text)
		if !strings.Contains(text, ":") {
			r, err := s.lookup(text)
			if err != nil {
				return nil, err
			}
			out = append(out, dbal.Term{Column: r.column})
			continue
		}
		if !freeform {
			name, ok := singleToken(text)
			if !ok {
				return nil, errs.New(errs.CodeInvalidShape, "group entry %q must be a field reference", text)
			}
			r, err := s.lookup(name)
			if err != nil {
				return nil, err
			}
			out = append(out, dbal.Term{Column: r.column})
			continue
		}
		expr, err := Substitute(text, s.fields())
		if err != nil {
			return nil, err
		}
		out = append(out, dbal.Term{Expr: expr})
	}
	return out, nil
}

// singleToken reports whether text is exactly one :name: token.
func singleToken(text string) (string, bool) {
	if len(text) < 3 || text[0] != ':' || text[len(text)-1] != ':' {
		return "", false
	}
	name := text[1 : len(text)-1]
	if strings.Contains(name, ":") {
		return "", false
	}
	return name, true
}

// compileChanges resolves a changes collection into assignments.
func compileChanges(s scope, pairs Pairs) ([]dbal.Assignment, error) {
	clauses, err := ParseClauses(pairs)
	if err != nil {
		return nil, err
	}
	out := make([]dbal.Assignment, 0, len(clauses))
	for _, c := range clauses {
		switch c := c.(type) {
		case Named:
			r, err := s.lookup(c.Key)
			if err != nil {
				return nil, err
			}
			if _, isList := spread(c.Value); isList {
				return nil, errs.New(errs.CodeInvalidValue, "field %s: a change takes one value", c.Key)
			}
			v, err := cast.BindField(c.Value, r.typ, r.nullable)
			if err != nil {
				return nil, fieldError(err, c.Key)
			}
			out = append(out, dbal.Assignment{Column: r.column, Value: v})

		case Expression:
			text, args, err := expression(s.fields(), c.Text, c.Values)
			if err != nil {
				return nil, err
			}
			out = append(out, dbal.Assignment{Expr: text, Args: args})

		case Bare:
			text, _, err := expression(s.fields(), c.Text, nil)
			if err != nil {
				return nil, err
			}
			out = append(out, dbal.Assignment{Expr: text})
		}
	}
	return out, nil
}

// tokensIn returns the :name: tokens of text in order. Colons are paired
// left to right, which matches Substitute on text that fully resolved.
func tokensIn(text string) []string {
	var out []string
	for {
		start := strings.IndexByte(text, ':')
		if start < 0 {
			return out
		}
		end := strings.IndexByte(text[start+1:], ':')
		if end < 0 {
			return out
		}
		out = append(out, text[start+1:start+1+end])
		text = text[start+end+2:]
	}
}
