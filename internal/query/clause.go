package query

import (
	"reflect"
	"strings"

	"github.com/roach88/rowmap/internal/dbal"
	"github.com/roach88/rowmap/internal/errs"
)

// Clause is one parsed entry of a where, order, group or changes collection.
//
// This is a sealed interface; only Named, Expression and Bare implement it.
// Entries are classified once, when caller input is parsed:
//   - Named: key without ':', a direct field reference
//   - Expression: key containing ':', bound to Values
//   - Bare: positional entry, the text is the expression
type Clause interface {
	clauseNode()
}

// Named is a direct field reference with its value.
type Named struct {
	Key   string
	Value any
}

// Expression is freeform text with symbolic tokens and bound values.
type Expression struct {
	Text   string
	Values []any
}

// Bare is positional text without values.
type Bare struct {
	Text string
}

func (Named) clauseNode()      {}
func (Expression) clauseNode() {}
func (Bare) clauseNode()       {}

// IsExpression reports whether key is freeform text rather than a name.
func IsExpression(key string) bool {
	return strings.Contains(key, ":")
}

// ParseClauses classifies every pair of a collection.
func ParseClauses(pairs Pairs) ([]Clause, error) {
	out := make([]Clause, 0, len(pairs))
	for _, p := range pairs {
		c, err := parseClause(p)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func parseClause(p Pair) (Clause, error) {
	if p.Key == "" {
		text, ok := p.Value.(string)
		if !ok {
			return nil, errs.New(errs.CodeInvalidShape, "positional entry must be a string, got %T", p.Value)
		}
		if strings.TrimSpace(text) == "" {
			return nil, errs.New(errs.CodeInvalidShape, "positional entry must not be empty")
		}
		return Bare{Text: text}, nil
	}
	if IsExpression(p.Key) {
		if p.Value == nil && len(dbal.Placeholders(p.Key)) == 0 {
			return Expression{Text: p.Key}, nil
		}
		return Expression{Text: p.Key, Values: values(p.Value)}, nil
	}
	return Named{Key: p.Key, Value: p.Value}, nil
}

// values spreads a list value into bound values. []byte stays scalar.
func values(v any) []any {
	if items, ok := spread(v); ok {
		return items
	}
	return []any{v}
}

// spread reports whether v is a slice or array other than []byte and
// returns its elements.
func spread(v any) ([]any, bool) {
	switch x := v.(type) {
	case nil, []byte, string:
		return nil, false
	case []any:
		return x, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// checkPlaceholders rejects an expression whose ? count differs from the
// number of bound values. Question marks in quoted text do not count.
func checkPlaceholders(text string, args []any) error {
	if n := len(dbal.Placeholders(text)); n != len(args) {
		return errs.New(errs.CodeInvalidValue, "expression %q has %d placeholders but %d values", text, n, len(args))
	}
	return nil
}
