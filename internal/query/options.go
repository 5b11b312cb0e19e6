package query

import (
	"sort"

	"github.com/roach88/rowmap/internal/errs"
)

// Option keys.
const (
	KeyWhere        = "where"
	KeyOrder        = "order"
	KeyGroup        = "group"
	KeyFields       = "fields"
	KeyLimit        = "limit"
	KeyOffset       = "offset"
	KeyLock         = "lock"
	KeyTables       = "tables"
	KeyQuery        = "query"
	KeyParameters   = "parameters"
	KeyChanges      = "changes"
	KeyUnrestricted = "unrestricted"
)

// Options is a query description in object-field vocabulary.
//
// Collection values (where, order, group, fields, tables, changes,
// parameters) accept Pairs, []string, []any or map[string]any. Map keys are
// visited in sorted order; use Pairs when the order matters.
type Options map[string]any

// Pair is one collection entry. An empty Key marks a positional entry
// whose Value is itself the expression.
type Pair struct {
	Key   string
	Value any
}

// Pairs is an ordered collection.
type Pairs []Pair

// P builds a named pair.
func P(key string, value any) Pair {
	return Pair{Key: key, Value: value}
}

// B builds a positional pair.
func B(text string) Pair {
	return Pair{Value: text}
}

// checkKeys rejects option keys outside allowed.
func checkKeys(opts Options, allowed ...string) error {
	set := make(map[string]bool, len(allowed))
	for _, k := range allowed {
		set[k] = true
	}
	var unknown []string
	for k := range opts {
		if !set[k] {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	sort.Strings(unknown)
	return errs.New(errs.CodeUnknownOption, "unknown option %q", unknown[0]).WithOption(unknown[0])
}

// collection normalizes a collection option into ordered pairs.
// A missing option yields nil.
func collection(opts Options, key string) (Pairs, error) {
	v, ok := opts[key]
	if !ok || v == nil {
		return nil, nil
	}
	pairs, err := toPairs(v)
	if err != nil {
		return nil, err.WithOption(key)
	}
	return pairs, nil
}

func toPairs(v any) (Pairs, *errs.Error) {
	switch x := v.(type) {
	case Pairs:
		return x, nil
	case []Pair:
		return Pairs(x), nil
	case []string:
		out := make(Pairs, len(x))
		for i, s := range x {
			out[i] = Pair{Value: s}
		}
		return out, nil
	case []any:
		out := make(Pairs, len(x))
		for i, s := range x {
			out[i] = Pair{Value: s}
		}
		return out, nil
	case map[string]any:
		out := make(Pairs, 0, len(x))
		for _, k := range sortedKeys(x) {
			out = append(out, Pair{Key: k, Value: x[k]})
		}
		return out, nil
	case map[string]string:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(Pairs, 0, len(x))
		for _, k := range keys {
			out = append(out, Pair{Key: k, Value: x[k]})
		}
		return out, nil
	default:
		return nil, errs.New(errs.CodeInvalidShape, "expected a collection, got %T", v)
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// nonNegative reads an integer option. A missing option yields 0.
func nonNegative(opts Options, key string) (int, bool, error) {
	v, ok := opts[key]
	if !ok || v == nil {
		return 0, false, nil
	}
	var n int64
	switch x := v.(type) {
	case int:
		n = int64(x)
	case int8:
		n = int64(x)
	case int16:
		n = int64(x)
	case int32:
		n = int64(x)
	case int64:
		n = x
	case uint:
		n = int64(x)
	case uint8:
		n = int64(x)
	case uint16:
		n = int64(x)
	case uint32:
		n = int64(x)
	case uint64:
		n = int64(x)
	default:
		return 0, false, errs.New(errs.CodeInvalidShape, "%s must be an integer, got %T", key, v).WithOption(key)
	}
	if n < 0 {
		return 0, false, errs.New(errs.CodeInvalidValue, "%s must not be negative, got %d", key, n).WithOption(key)
	}
	return int(n), true, nil
}

// flag reads a bool option. A missing option yields false.
func flag(opts Options, key string) (bool, error) {
	v, ok := opts[key]
	if !ok || v == nil {
		return false, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, errs.New(errs.CodeInvalidShape, "%s must be a bool, got %T", key, v).WithOption(key)
	}
	return b, nil
}
