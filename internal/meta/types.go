package meta

import (
	"fmt"
	"strings"
)

// Type is the semantic type of an entity field.
// The zero value is not a valid type; it marks "not yet inferred".
type Type int

const (
	Int Type = iota + 1
	Float
	Bool
	String
	Blob
)

var typeNames = map[Type]string{
	Int:    "int",
	Float:  "float",
	Bool:   "bool",
	String: "string",
	Blob:   "blob",
}

// String returns the lower-case type name used in catalog files.
func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// Valid reports whether t is one of the declared semantic types.
func (t Type) Valid() bool {
	_, ok := typeNames[t]
	return ok
}

// MarshalText implements encoding.TextMarshaler so cast plans render
// readably in JSON output.
func (t Type) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid semantic type %d", int(t))
	}
	return []byte(t.String()), nil
}

// ParseType parses a catalog type name. Aliases "integer", "boolean",
// "text" and "double" are accepted.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "int", "integer":
		return Int, nil
	case "float", "double":
		return Float, nil
	case "bool", "boolean":
		return Bool, nil
	case "string", "text":
		return String, nil
	case "blob":
		return Blob, nil
	default:
		return 0, fmt.Errorf("unknown semantic type %q", s)
	}
}
