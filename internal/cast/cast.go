// Package cast converts scalars between caller values, bind parameters and
// decoded field values.
//
// Bind-side conversions produce values accepted by every database/sql
// driver: nil, int64, float64, string and, for blob fields, []byte.
// Booleans are bound as 0/1 integers.
//
// Decode-side conversions turn whatever the driver returned into the Go
// representation of a semantic type:
//
//	meta.Int    -> int64
//	meta.Float  -> float64
//	meta.Bool   -> bool
//	meta.String -> string
//	meta.Blob   -> []byte
//
// Every conversion is idempotent: casting an already cast value is a no-op.
package cast

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/rowmap/internal/errs"
	"github.com/roach88/rowmap/internal/meta"
)

// Bind normalizes a value for binding when no field type is known, e.g.
// inside a symbolic expression that may reference several fields.
// Accepts nil, any integer or float kind, bool and string.
func Bind(v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case bool:
		return boolInt(x), nil
	case string:
		return x, nil
	case float32:
		return float64(x), nil
	case float64:
		return x, nil
	}
	if i, ok, err := integer(v); ok {
		return i, err
	}
	return nil, errs.New(errs.CodeInvalidValue, "cannot bind value of type %T", v)
}

// BindField normalizes a value for binding against one field.
//
// nil is accepted only for nullable fields. The value is coerced to the
// field type first, so "5" bound to an int field becomes int64(5).
func BindField(v any, t meta.Type, nullable bool) (any, error) {
	if v == nil {
		if !nullable {
			return nil, errs.New(errs.CodeNullNotAllowed, "null is not allowed")
		}
		return nil, nil
	}

	if b, ok := v.([]byte); ok {
		if t != meta.Blob {
			return nil, errs.New(errs.CodeInvalidValue, "cannot bind []byte to %s field", t)
		}
		return b, nil
	}
	if _, err := Bind(v); err != nil {
		return nil, err
	}

	out, err := Decode(v, t)
	if err != nil {
		return nil, err
	}
	if b, ok := out.(bool); ok {
		return boolInt(b), nil
	}
	return out, nil
}

// Decode converts a raw driver value to the Go representation of t.
// nil is returned unchanged; nullability is checked by the caller.
func Decode(v any, t meta.Type) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch t {
	case meta.Int:
		return ToInt(v)
	case meta.Float:
		return ToFloat(v)
	case meta.Bool:
		return ToBool(v)
	case meta.String:
		return ToString(v)
	case meta.Blob:
		return ToBlob(v)
	default:
		return nil, errs.New(errs.CodeUnknownType, "unknown semantic type %s", t)
	}
}

// ToInt converts v to int64. Numeric strings are parsed; floats are truncated.
func ToInt(v any) (int64, error) {
	switch x := v.(type) {
	case bool:
		return boolInt(x), nil
	case float32:
		return truncate(float64(x))
	case float64:
		return truncate(x)
	case string:
		return parseInt(x)
	case []byte:
		return parseInt(string(x))
	}
	if i, ok, err := integer(v); ok {
		return i, err
	}
	return 0, errs.New(errs.CodeInvalidValue, "cannot cast %T to int", v)
}

// ToFloat converts v to float64.
func ToFloat(v any) (float64, error) {
	switch x := v.(type) {
	case bool:
		return float64(boolInt(x)), nil
	case float32:
		return float64(x), nil
	case float64:
		return x, nil
	case string:
		return parseFloat(x)
	case []byte:
		return parseFloat(string(x))
	}
	if i, ok, err := integer(v); ok {
		return float64(i), err
	}
	return 0, errs.New(errs.CodeInvalidValue, "cannot cast %T to float", v)
}

// ToBool converts v to bool. Zero numbers, "" and "0" are false.
func ToBool(v any) (bool, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case float32:
		return x != 0, nil
	case float64:
		return x != 0, nil
	case string:
		return x != "" && x != "0", nil
	case []byte:
		return len(x) != 0 && string(x) != "0", nil
	}
	if i, ok, err := integer(v); ok {
		return i != 0, err
	}
	return false, errs.New(errs.CodeInvalidValue, "cannot cast %T to bool", v)
}

// ToString converts v to string. Booleans render as "1" and "0".
func ToString(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	case bool:
		if x {
			return "1", nil
		}
		return "0", nil
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case time.Time:
		return x.Format(time.RFC3339Nano), nil
	}
	if i, ok, err := integer(v); ok {
		return strconv.FormatInt(i, 10), err
	}
	return "", errs.New(errs.CodeInvalidValue, "cannot cast %T to string", v)
}

// ToBlob converts v to []byte. The result never aliases driver memory.
func ToBlob(v any) ([]byte, error) {
	switch x := v.(type) {
	case []byte:
		out := make([]byte, len(x))
		copy(out, x)
		return out, nil
	case string:
		return []byte(x), nil
	}
	return nil, errs.New(errs.CodeInvalidValue, "cannot cast %T to blob", v)
}

// integer reports whether v is an integer kind and returns it as int64.
func integer(v any) (int64, bool, error) {
	switch x := v.(type) {
	case int:
		return int64(x), true, nil
	case int8:
		return int64(x), true, nil
	case int16:
		return int64(x), true, nil
	case int32:
		return int64(x), true, nil
	case int64:
		return x, true, nil
	case uint:
		return unsigned(uint64(x))
	case uint8:
		return int64(x), true, nil
	case uint16:
		return int64(x), true, nil
	case uint32:
		return int64(x), true, nil
	case uint64:
		return unsigned(x)
	}
	return 0, false, nil
}

func unsigned(u uint64) (int64, bool, error) {
	if u > math.MaxInt64 {
		return 0, true, errs.New(errs.CodeInvalidValue, "integer %d overflows int64", u)
	}
	return int64(u), true, nil
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func truncate(f float64) (int64, error) {
	if math.IsNaN(f) || f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, errs.New(errs.CodeInvalidValue, "float %v out of int range", f)
	}
	return int64(f), nil
}

func parseInt(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, errs.New(errs.CodeInvalidValue, "%q is not an integer", s)
	}
	return truncate(f)
}

func parseFloat(s string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, &errs.Error{
			Code:    errs.CodeInvalidValue,
			Message: fmt.Sprintf("%q is not a number", s),
			Err:     err,
		}
	}
	return f, nil
}
