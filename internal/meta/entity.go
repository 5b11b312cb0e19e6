package meta

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// FieldDef declares one field of an entity.
type FieldDef struct {
	Name          string // object field name
	Column        string // table column name
	Type          Type
	Nullable      bool
	Autoincrement bool
}

// Definition is the input to New.
type Definition struct {
	Name       string // entity name, used in errors and logs
	Connection string // empty means the default connection
	Table      string // may be "schema.table"
	Fields     []FieldDef
}

// Entity is the immutable metadata of one table-backed object type.
type Entity struct {
	name          string
	connection    string
	table         string
	fields        []string // declaration order
	columnToField map[string]string
	fieldToColumn map[string]string
	types         map[string]Type
	nullable      map[string]bool
	autoincrement string // column name
}

// New validates a definition and returns the entity.
func New(def Definition) (*Entity, error) {
	if def.Table == "" {
		return nil, fmt.Errorf("entity %q: table name is required", def.Name)
	}
	if len(def.Fields) == 0 {
		return nil, fmt.Errorf("entity %q: at least one field is required", def.Name)
	}
	name := def.Name
	if name == "" {
		name = def.Table
	}

	e := &Entity{
		name:          name,
		connection:    def.Connection,
		table:         def.Table,
		fields:        make([]string, 0, len(def.Fields)),
		columnToField: make(map[string]string, len(def.Fields)),
		fieldToColumn: make(map[string]string, len(def.Fields)),
		types:         make(map[string]Type, len(def.Fields)),
		nullable:      make(map[string]bool, len(def.Fields)),
	}

	for _, f := range def.Fields {
		if err := checkName(f.Name); err != nil {
			return nil, fmt.Errorf("entity %q: field: %w", name, err)
		}
		if err := checkName(f.Column); err != nil {
			return nil, fmt.Errorf("entity %q: field %q: column: %w", name, f.Name, err)
		}
		if !f.Type.Valid() {
			return nil, fmt.Errorf("entity %q: field %q: invalid type %d", name, f.Name, int(f.Type))
		}
		if _, dup := e.fieldToColumn[f.Name]; dup {
			return nil, fmt.Errorf("entity %q: duplicate field %q", name, f.Name)
		}
		if other, dup := e.columnToField[f.Column]; dup {
			return nil, fmt.Errorf("entity %q: column %q mapped by both %q and %q", name, f.Column, other, f.Name)
		}
		if f.Autoincrement {
			if e.autoincrement != "" {
				return nil, fmt.Errorf("entity %q: more than one autoincrement column (%q, %q)", name, e.autoincrement, f.Column)
			}
			e.autoincrement = f.Column
		}

		e.fields = append(e.fields, f.Name)
		e.fieldToColumn[f.Name] = f.Column
		e.columnToField[f.Column] = f.Name
		e.types[f.Name] = f.Type
		e.nullable[f.Name] = f.Nullable
	}

	return e, nil
}

// MustNew is like New but panics on error. Intended for tests and
// package-level fixtures.
func MustNew(def Definition) *Entity {
	e, err := New(def)
	if err != nil {
		panic(err)
	}
	return e
}

// checkName rejects names that cannot take part in symbolic substitution.
func checkName(s string) error {
	switch {
	case s == "":
		return fmt.Errorf("empty name")
	case strings.Contains(s, ":"):
		return fmt.Errorf("name %q must not contain ':'", s)
	case !norm.NFC.IsNormalString(s):
		return fmt.Errorf("name %q is not NFC normalized", s)
	}
	return nil
}

// Name returns the entity name.
func (e *Entity) Name() string { return e.name }

// Connection returns the connection name; empty means default.
func (e *Entity) Connection() string { return e.connection }

// Table returns the table name, possibly schema-qualified.
func (e *Entity) Table() string { return e.table }

// Autoincrement returns the autoincrement column, or "".
func (e *Entity) Autoincrement() string { return e.autoincrement }

// Fields returns the field names in declaration order.
// The returned slice is a copy.
func (e *Entity) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// ColumnFor returns the column mapped to a field.
func (e *Entity) ColumnFor(field string) (string, bool) {
	c, ok := e.fieldToColumn[field]
	return c, ok
}

// FieldFor returns the field mapped to a column.
func (e *Entity) FieldFor(column string) (string, bool) {
	f, ok := e.columnToField[column]
	return f, ok
}

// TypeOf returns the semantic type of a field.
func (e *Entity) TypeOf(field string) (Type, bool) {
	t, ok := e.types[field]
	return t, ok
}

// Nullable reports whether a field accepts null. Unknown fields are not nullable.
func (e *Entity) Nullable(field string) bool {
	return e.nullable[field]
}

// Field returns the full definition of a field.
func (e *Entity) Field(field string) (FieldDef, bool) {
	col, ok := e.fieldToColumn[field]
	if !ok {
		return FieldDef{}, false
	}
	return FieldDef{
		Name:          field,
		Column:        col,
		Type:          e.types[field],
		Nullable:      e.nullable[field],
		Autoincrement: col == e.autoincrement && col != "",
	}, true
}
