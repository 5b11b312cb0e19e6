package decode

import (
	"fmt"
	"reflect"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/roach88/rowmap/internal/errs"
)

// Hydrator builds a typed value from a decoded record.
//
// Hydrators are the only path from records to user types; they populate
// fields directly and never run user constructors.
type Hydrator[T any] func(Record) (T, error)

// AsRecord is the identity hydrator.
func AsRecord(r Record) (Record, error) {
	return r, nil
}

// StructHydrator returns a hydrator that sets the exported fields of T by
// reflection. T is a struct or a pointer to a struct.
//
// A record key matches the field tagged `rowmap:"key"`, otherwise the
// field whose name equals the key with its first letter upper-cased.
// Fields tagged `rowmap:"-"` are skipped. Record keys without a matching
// field are ignored. A nil value sets the zero value; pointer fields
// receive a pointer to the converted value.
func StructHydrator[T any]() Hydrator[T] {
	typ := reflect.TypeFor[T]()
	isPtr := typ.Kind() == reflect.Pointer
	structType := typ
	if isPtr {
		structType = typ.Elem()
	}
	if structType.Kind() != reflect.Struct {
		return func(Record) (T, error) {
			var zero T
			return zero, fmt.Errorf("struct hydrator: %s is not a struct", typ)
		}
	}
	index := fieldIndex(structType)

	return func(r Record) (T, error) {
		var zero T
		target := reflect.New(structType).Elem()
		for key, v := range r {
			i, ok := index[key]
			if !ok {
				continue
			}
			if err := assign(target.Field(i), v); err != nil {
				return zero, errs.New(errs.CodeInvalidValue, "field %s: %v", key, err).WithOption("hydrate")
			}
		}
		if isPtr {
			return target.Addr().Interface().(T), nil
		}
		return target.Interface().(T), nil
	}
}

// fieldIndex maps record keys to struct field positions.
func fieldIndex(t reflect.Type) map[string]int {
	index := make(map[string]int, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		tag := f.Tag.Get("rowmap")
		if tag == "-" {
			continue
		}
		if tag != "" {
			index[tag] = i
			continue
		}
		key := lowerFirst(f.Name)
		if _, taken := index[key]; !taken {
			index[key] = i
		}
	}
	return index
}

func lowerFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToLower(r)) + s[size:]
}

// assign sets dst from a decoded value, converting between compatible kinds.
func assign(dst reflect.Value, v any) error {
	if v == nil {
		dst.Set(reflect.Zero(dst.Type()))
		return nil
	}
	if dst.Kind() == reflect.Pointer {
		elem := reflect.New(dst.Type().Elem())
		if err := assign(elem.Elem(), v); err != nil {
			return err
		}
		dst.Set(elem)
		return nil
	}

	src := reflect.ValueOf(v)
	switch {
	case src.Type().AssignableTo(dst.Type()):
		dst.Set(src)
	case dst.Kind() == reflect.Interface && src.Type().Implements(dst.Type()):
		dst.Set(src)
	case convertible(src, dst.Type()):
		dst.Set(src.Convert(dst.Type()))
	default:
		return fmt.Errorf("cannot assign %s to %s", src.Type(), dst.Type())
	}
	return nil
}

// convertible allows numeric conversions within the same family, string
// to string kinds and []byte to byte slices. It refuses int to string.
func convertible(src reflect.Value, dst reflect.Type) bool {
	if !src.Type().ConvertibleTo(dst) {
		return false
	}
	sk, dk := family(src.Kind()), family(dst.Kind())
	return sk != "" && sk == dk
}

func family(k reflect.Kind) string {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "int"
	case reflect.Float32, reflect.Float64:
		return "float"
	case reflect.Bool:
		return "bool"
	case reflect.String:
		return "string"
	case reflect.Slice:
		return "slice"
	}
	return strings.ToLower(k.String())
}
