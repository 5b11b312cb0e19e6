package query

import (
	"strings"
	"unicode"

	"github.com/roach88/rowmap/internal/dbal"
	"github.com/roach88/rowmap/internal/errs"
	"github.com/roach88/rowmap/internal/meta"
)

// Source is one entity taking part in a multi-entity query.
type Source struct {
	Alias  string
	Entity *meta.Entity
}

// multiScope resolves "alias.field" names across several entities.
//
// Field tokens (:alias.field:) are valid everywhere; table tokens
// (:alias:) only in tables and freeform bodies.
type multiScope struct {
	sources []Source
	byAlias map[string]*meta.Entity
	refs    map[string]ref
	fieldTk map[string]string
	tableTk map[string]string
}

func newMultiScope(sources []Source, q dbal.Quoter) (*multiScope, error) {
	if len(sources) == 0 {
		return nil, errs.New(errs.CodeInvalidShape, "at least one source is required")
	}
	s := &multiScope{
		sources: sources,
		byAlias: make(map[string]*meta.Entity, len(sources)),
		refs:    make(map[string]ref),
		fieldTk: make(map[string]string),
		tableTk: make(map[string]string),
	}
	for _, src := range sources {
		switch {
		case src.Alias == "":
			return nil, errs.New(errs.CodeInvalidShape, "source alias must not be empty")
		case strings.ContainsAny(src.Alias, ".:"):
			return nil, errs.New(errs.CodeInvalidShape, "source alias %q must not contain '.' or ':'", src.Alias)
		case src.Entity == nil:
			return nil, errs.New(errs.CodeInvalidShape, "source %q has no entity", src.Alias)
		}
		if _, dup := s.byAlias[src.Alias]; dup {
			return nil, errs.New(errs.CodeInvalidShape, "duplicate source alias %q", src.Alias)
		}
		s.byAlias[src.Alias] = src.Entity

		s.tableTk[src.Alias] = tableRef(q, src)
		for _, f := range src.Entity.Fields() {
			col, _ := src.Entity.ColumnFor(f)
			typ, _ := src.Entity.TypeOf(f)
			name := src.Alias + "." + f
			qualified := src.Alias + "." + col
			s.refs[name] = ref{column: qualified, key: name, typ: typ, nullable: src.Entity.Nullable(f)}
			s.fieldTk[name] = q.QuoteIdentifier(qualified)
			s.tableTk[name] = s.fieldTk[name]
		}
	}
	return s, nil
}

// tableRef renders `"table" "alias"`.
func tableRef(q dbal.Quoter, src Source) string {
	return q.QuoteIdentifier(src.Entity.Table()) + " " + q.QuoteIdentifier(src.Alias)
}

func (s *multiScope) lookup(name string) (ref, error) {
	if r, ok := s.refs[name]; ok {
		return r, nil
	}
	alias, _, found := strings.Cut(name, ".")
	if !found {
		return ref{}, errs.New(errs.CodeUnknownField, "reference %q must be alias.field", name)
	}
	if _, ok := s.byAlias[alias]; !ok {
		return ref{}, errs.New(errs.CodeUnknownField, "unknown alias %q", alias).WithEntity(alias)
	}
	return ref{}, errs.New(errs.CodeUnknownField, "unknown field %q", name).WithEntity(alias)
}

func (s *multiScope) refOf(token string) (ref, bool) {
	r, ok := s.refs[token]
	return r, ok
}

func (s *multiScope) fields() map[string]string { return s.fieldTk }

func (s *multiScope) entity() string {
	aliases := make([]string, len(s.sources))
	for i, src := range s.sources {
		aliases[i] = src.Alias
	}
	return strings.Join(aliases, ",")
}

// CompileMultiSelect compiles a select across several entities.
//
// Structured form options: fields, tables, where, group, order, limit,
// offset, lock. Freeform form options: fields, query, parameters; the
// generated statement is SELECT <fields> FROM <query>. The plan is keyed by
// output key, "alias.field" for direct references.
func CompileMultiSelect(sources []Source, q dbal.Quoter, opts Options) (Compiled, error) {
	s, err := newMultiScope(sources, q)
	if err != nil {
		return Compiled{}, err
	}
	c, err := compileMultiSelect(s, q, opts)
	if err != nil {
		return Compiled{}, errs.Annotate(err, "", s.entity())
	}
	return c, nil
}

func compileMultiSelect(s *multiScope, q dbal.Quoter, opts Options) (Compiled, error) {
	fields, plan, err := compileMultiFields(s, opts)
	if err != nil {
		return Compiled{}, errs.Annotate(err, KeyFields, "")
	}

	if isFreeform(opts) {
		if err := checkKeys(opts, KeyFields, KeyQuery, KeyParameters); err != nil {
			return Compiled{}, freeformMix(err)
		}
		body, args, err := freeform(s, opts)
		if err != nil {
			return Compiled{}, err
		}
		list, fieldArgs := dbal.RenderFields(q, fields)
		raw := dbal.Raw{
			SQL:  "SELECT " + list + " FROM " + body,
			Args: append(fieldArgs, args...),
		}
		return Compiled{Query: raw, Plan: plan}, nil
	}

	if err := checkKeys(opts, KeyFields, KeyTables, KeyWhere, KeyGroup, KeyOrder, KeyLimit, KeyOffset, KeyLock); err != nil {
		return Compiled{}, err
	}
	sel := dbal.Select{Fields: fields}
	if err := compileMultiFrom(s, opts, &sel); err != nil {
		return Compiled{}, err
	}
	if err := compileRestrictions(s, opts, &sel, false); err != nil {
		return Compiled{}, err
	}
	return Compiled{Query: sel, Plan: plan}, nil
}

// compileMultiFrom fills tables and checks the where guard.
func compileMultiFrom(s *multiScope, opts Options, sel *dbal.Select) error {
	tables, err := compileTables(s, opts)
	if err != nil {
		return errs.Annotate(err, KeyTables, "")
	}
	sel.Tables = tables

	if len(s.sources) > 1 {
		where, err := collection(opts, KeyWhere)
		if err != nil {
			return err
		}
		if len(where) == 0 {
			return errs.New(errs.CodeMissingWhere, "a query over %d sources requires where", len(s.sources)).WithOption(KeyWhere)
		}
	}
	return nil
}

// CompileMultiSelectOne is CompileMultiSelect limited to one row. In the
// structured form a caller limit other than 1 fails with CodeAmbiguousLimit.
func CompileMultiSelectOne(sources []Source, q dbal.Quoter, opts Options) (Compiled, error) {
	if isFreeform(opts) {
		return CompileMultiSelect(sources, q, opts)
	}
	one, err := limitOne(opts)
	if err != nil {
		return Compiled{}, errs.Annotate(err, KeyLimit, "")
	}
	return CompileMultiSelect(sources, q, one)
}

// CompileMultiCount compiles COUNT(*) AS num across several entities.
// Only the structured form with tables, where and lock is accepted.
func CompileMultiCount(sources []Source, q dbal.Quoter, opts Options) (Compiled, error) {
	s, err := newMultiScope(sources, q)
	if err != nil {
		return Compiled{}, err
	}
	if err := checkKeys(opts, KeyTables, KeyWhere, KeyLock); err != nil {
		return Compiled{}, errs.Annotate(err, "", s.entity())
	}
	sel := dbal.Select{Fields: []dbal.SelectField{countField()}}
	if err := compileMultiFrom(s, opts, &sel); err != nil {
		return Compiled{}, errs.Annotate(err, "", s.entity())
	}
	if err := compileRestrictions(s, opts, &sel, false); err != nil {
		return Compiled{}, errs.Annotate(err, "", s.entity())
	}
	return Compiled{Query: sel, Plan: countPlan()}, nil
}

// CompileMultiUpdate compiles a freeform update: UPDATE <query> bound to
// parameters. Only query and parameters are accepted.
func CompileMultiUpdate(sources []Source, q dbal.Quoter, opts Options) (dbal.Raw, error) {
	s, err := newMultiScope(sources, q)
	if err != nil {
		return dbal.Raw{}, err
	}
	if err := checkKeys(opts, KeyQuery, KeyParameters); err != nil {
		return dbal.Raw{}, errs.Annotate(err, "", s.entity())
	}
	body, args, err := freeform(s, opts)
	if err != nil {
		return dbal.Raw{}, errs.Annotate(err, "", s.entity())
	}
	return dbal.Raw{SQL: "UPDATE " + body, Args: args}, nil
}

func isFreeform(opts Options) bool {
	_, hasQuery := opts[KeyQuery]
	_, hasParams := opts[KeyParameters]
	return hasQuery || hasParams
}

func freeformMix(err error) error {
	if errs.HasCode(err, errs.CodeUnknownOption) {
		e := err.(*errs.Error)
		return errs.New(errs.CodeInvalidShape, "option %q cannot be combined with a freeform query", e.Option).WithOption(e.Option)
	}
	return err
}

// freeform substitutes the query body and binds its parameters.
func freeform(s *multiScope, opts Options) (string, []any, error) {
	text, ok := opts[KeyQuery].(string)
	if !ok || strings.TrimSpace(text) == "" {
		return "", nil, errs.New(errs.CodeInvalidShape, "query must be a non-empty string").WithOption(KeyQuery)
	}
	params, err := collection(opts, KeyParameters)
	if err != nil {
		return "", nil, err
	}
	raw := make([]any, 0, len(params))
	for _, p := range params {
		if p.Key != "" {
			return "", nil, errs.New(errs.CodeInvalidShape, "parameters are positional").WithOption(KeyParameters)
		}
		raw = append(raw, p.Value)
	}
	body, args, err := expression(s.tableTk, text, raw)
	if err != nil {
		return "", nil, errs.Annotate(err, KeyQuery, "")
	}
	return body, args, nil
}

// compileTables resolves the tables option; aliases in order by default.
func compileTables(s *multiScope, opts Options) ([]dbal.TableRef, error) {
	pairs, err := collection(opts, KeyTables)
	if err != nil {
		return nil, err
	}
	if pairs == nil {
		out := make([]dbal.TableRef, len(s.sources))
		for i, src := range s.sources {
			out[i] = dbal.TableRef{SQL: s.tableTk[src.Alias]}
		}
		return out, nil
	}

	out := make([]dbal.TableRef, 0, len(pairs))
	for _, p := range pairs {
		if p.Key == "" {
			text, ok := p.Value.(string)
			if !ok {
				return nil, errs.New(errs.CodeInvalidShape, "tables entries must be strings, got %T", p.Value)
			}
			text = strings.TrimSpace(text)
			if !strings.Contains(text, ":") {
				tbl, ok := s.tableTk[text]
				if !ok || strings.Contains(text, ".") {
					return nil, errs.New(errs.CodeUnknownField, "unknown alias %q", text)
				}
				out = append(out, dbal.TableRef{SQL: tbl})
				continue
			}
			sql, _, err := expression(s.tableTk, text, nil)
			if err != nil {
				return nil, err
			}
			out = append(out, dbal.TableRef{SQL: sql})
			continue
		}
		if !strings.ContainsAny(p.Key, ":?") {
			return nil, errs.New(errs.CodeInvalidShape, "tables key %q must be a join expression", p.Key)
		}
		sql, args, err := expression(s.tableTk, p.Key, values(p.Value))
		if err != nil {
			return nil, err
		}
		out = append(out, dbal.TableRef{SQL: sql, Args: args})
	}
	return out, nil
}

// compileMultiFields resolves the select list and infers its cast plan.
func compileMultiFields(s *multiScope, opts Options) ([]dbal.SelectField, *CastPlan, error) {
	pairs, err := collection(opts, KeyFields)
	if err != nil {
		return nil, nil, err
	}
	plan := NewCastPlan()
	if pairs == nil {
		var out []dbal.SelectField
		for _, src := range s.sources {
			for _, f := range src.Entity.Fields() {
				r := s.refs[src.Alias+"."+f]
				out = append(out, dbal.SelectField{Column: r.column, Alias: r.key})
				plan.Add(r.key, r.typ, r.nullable)
			}
		}
		return out, plan, nil
	}

	out := make([]dbal.SelectField, 0, len(pairs))
	for _, p := range pairs {
		text, ok := p.Value.(string)
		if !ok {
			return nil, nil, errs.New(errs.CodeInvalidShape, "fields entries must be strings, got %T", p.Value)
		}
		text = strings.TrimSpace(text)

		if p.Key == "" {
			if strings.Contains(text, ":") || isCount(text) {
				return nil, nil, errs.New(errs.CodeInvalidShape, "expression %q needs an output name", text)
			}
			r, err := s.lookup(text)
			if err != nil {
				return nil, nil, err
			}
			out = append(out, dbal.SelectField{Column: r.column, Alias: r.key})
			plan.Add(r.key, r.typ, r.nullable)
			continue
		}

		if strings.ContainsAny(p.Key, ":?") {
			return nil, nil, errs.New(errs.CodeInvalidShape, "output name %q must not contain ':' or '?'", p.Key)
		}
		f, typ, nullable, err := computedField(s, p.Key, text)
		if err != nil {
			return nil, nil, err
		}
		out = append(out, f)
		plan.Add(p.Key, typ, nullable)
	}
	return out, plan, nil
}

// computedField resolves a named select entry and infers its type.
func computedField(s *multiScope, alias, text string) (dbal.SelectField, meta.Type, bool, error) {
	if isCount(text) {
		return dbal.SelectField{Expr: "COUNT(*)", Alias: alias}, meta.Int, false, nil
	}
	if isDottedName(text) {
		r, err := s.lookup(text)
		if err != nil {
			return dbal.SelectField{}, 0, false, err
		}
		return dbal.SelectField{Column: r.column, Alias: alias}, r.typ, r.nullable, nil
	}
	if !strings.Contains(text, ":") {
		prefix, _, dotted := strings.Cut(text, ".")
		if _, known := s.byAlias[prefix]; dotted && known {
			r, err := s.lookup(text)
			if err != nil {
				return dbal.SelectField{}, 0, false, err
			}
			return dbal.SelectField{Column: r.column, Alias: alias}, r.typ, r.nullable, nil
		}
	}

	expr, err := Substitute(text, s.fieldTk)
	if err != nil {
		return dbal.SelectField{}, 0, false, err
	}
	if err := checkPlaceholders(expr, nil); err != nil {
		return dbal.SelectField{}, 0, false, err
	}
	var refs []ref
	for _, tk := range tokensIn(text) {
		if r, ok := s.refOf(tk); ok {
			refs = append(refs, r)
		}
	}
	typ, nullable := inferType(text, refs)
	return dbal.SelectField{Expr: expr, Alias: alias}, typ, nullable, nil
}

// isDottedName reports whether text is exactly one alias.field reference.
func isDottedName(text string) bool {
	prefix, name, ok := strings.Cut(text, ".")
	return ok && isIdent(prefix) && isIdent(name)
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || unicode.IsLetter(r):
		case i > 0 && unicode.IsDigit(r):
		default:
			return false
		}
	}
	return true
}

func isCount(text string) bool {
	return strings.EqualFold(strings.Join(strings.Fields(text), ""), "COUNT(*)")
}

// inferType applies the widening rule to the fields an expression
// references: unset < Bool < Int < Float, and String dominates. Any
// nullable reference makes the result nullable. CONCAT and REPLACE force
// String. This is a textual heuristic, not a guarantee; do not extend it to
// more SQL functions without a decision. An expression without references
// is a nullable String.
func inferType(text string, refs []ref) (meta.Type, bool) {
	if len(refs) == 0 {
		return meta.String, true
	}
	var t meta.Type
	nullable := false
	for _, r := range refs {
		t = widen(t, r.typ)
		nullable = nullable || r.nullable
	}
	upper := strings.ToUpper(text)
	if strings.Contains(upper, "CONCAT") || strings.Contains(upper, "REPLACE") {
		t = meta.String
	}
	return t, nullable
}

func widen(acc, next meta.Type) meta.Type {
	switch {
	case acc == meta.String || next == meta.String || next == meta.Blob:
		return meta.String
	case acc == meta.Float || next == meta.Float:
		return meta.Float
	case acc == meta.Int || next == meta.Int:
		return meta.Int
	default:
		return meta.Bool
	}
}
