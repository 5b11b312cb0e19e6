// Package catalog loads entity metadata from CUE files.
//
// A catalog directory holds one CUE package declaring entities under the
// top-level entity struct:
//
//	entity: User: {
//		connection: "main"          // optional
//		table:      "users"
//		fields: {
//			userId: {column: "user_id", type: "int", autoincrement: true}
//			email:  {type: "string", nullable: true} // column defaults to the field name
//		}
//	}
//
// Every entity is unified with the embedded #Entity schema, so unknown keys
// and missing tables are reported with their source position.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/rowmap/internal/meta"
)

//go:embed schema.cue
var schemaSrc string

// Error codes reported by LoadError.
const (
	ErrCodeGeneric       = "E001"
	ErrCodeScanError     = "E002"
	ErrCodeNoFiles       = "E003"
	ErrCodeLoadFailed    = "E004"
	ErrCodeNotFound      = "E005"
	ErrCodeBuildFailed   = "E006"
	ErrCodeNoEntities    = "E201"
	ErrCodeSchema        = "E202"
	ErrCodeInvalidType   = "E203"
	ErrCodeInvalidEntity = "E204"
	ErrCodeDuplicate     = "E205"
)

// LoadError is a catalog error, positioned in the CUE source when known.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Mode controls how errors are handled during loading.
type Mode int

const (
	// FailFast stops on the first invalid entity.
	FailFast Mode = iota
	// CollectAll loads every valid entity and reports all errors.
	CollectAll
)

// Catalog is an ordered, name-indexed set of entities.
type Catalog struct {
	entities []*meta.Entity
	byName   map[string]*meta.Entity
	files    int
}

// New builds a catalog from entities. Names must be unique.
func New(entities ...*meta.Entity) (*Catalog, error) {
	c := &Catalog{byName: make(map[string]*meta.Entity, len(entities))}
	for _, e := range entities {
		if err := c.add(e); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Catalog) add(e *meta.Entity) error {
	if _, dup := c.byName[e.Name()]; dup {
		return &LoadError{Code: ErrCodeDuplicate, Message: fmt.Sprintf("entity %q declared twice", e.Name())}
	}
	c.entities = append(c.entities, e)
	c.byName[e.Name()] = e
	return nil
}

// Entity returns an entity by name.
func (c *Catalog) Entity(name string) (*meta.Entity, bool) {
	e, ok := c.byName[name]
	return e, ok
}

// Entities returns the entities in declaration order.
func (c *Catalog) Entities() []*meta.Entity {
	out := make([]*meta.Entity, len(c.entities))
	copy(out, c.entities)
	return out
}

// Len returns the number of entities.
func (c *Catalog) Len() int { return len(c.entities) }

// Files returns the number of CUE files loaded, 0 for compiled sources.
func (c *Catalog) Files() int { return c.files }

// Connections returns the distinct connection names, sorted. The default
// connection is reported as "".
func (c *Catalog) Connections() []string {
	seen := make(map[string]bool)
	var out []string
	for _, e := range c.entities {
		if !seen[e.Connection()] {
			seen[e.Connection()] = true
			out = append(out, e.Connection())
		}
	}
	sort.Strings(out)
	return out
}

// LoadDir loads the CUE package in dir.
func LoadDir(dir string, mode Mode) (*Catalog, []error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("catalog directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing catalog directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	files, err := filepath.Glob(filepath.Join(dir, "*.cue"))
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(files) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}}
	}
	if err := instances[0].Err; err != nil {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", err)}}
	}

	value := ctx.BuildInstance(instances[0])
	if err := value.Err(); err != nil {
		return nil, []error{positioned(ErrCodeBuildFailed, err)}
	}
	c, errs := fromValue(ctx, value, mode)
	if c != nil {
		c.files = len(files)
	}
	return c, errs
}

// Compile loads a catalog from CUE source text. filename is used in
// error positions.
func Compile(filename, src string, mode Mode) (*Catalog, []error) {
	ctx := cuecontext.New()
	value := ctx.CompileString(src, cue.Filename(filename))
	if err := value.Err(); err != nil {
		return nil, []error{positioned(ErrCodeBuildFailed, err)}
	}
	return fromValue(ctx, value, mode)
}

func fromValue(ctx *cue.Context, value cue.Value, mode Mode) (*Catalog, []error) {
	schema := ctx.CompileString(schemaSrc, cue.Filename("schema.cue")).LookupPath(cue.ParsePath("#Entity"))
	if err := schema.Err(); err != nil {
		return nil, []error{&LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("entity schema: %v", err)}}
	}

	entitiesVal := value.LookupPath(cue.ParsePath("entity"))
	if !entitiesVal.Exists() {
		return nil, []error{&LoadError{Code: ErrCodeNoEntities, Message: "no entities declared"}}
	}
	iter, err := entitiesVal.Fields()
	if err != nil {
		return nil, []error{positioned(ErrCodeSchema, err)}
	}

	c := &Catalog{byName: make(map[string]*meta.Entity)}
	var errs []error
	for iter.Next() {
		e, err := compileEntity(iter.Label(), iter.Value().Unify(schema), iter.Value())
		if err == nil {
			if err = c.add(e); err != nil {
				var le *LoadError
				if errors.As(err, &le) {
					le.Pos = iter.Value().Pos()
				}
			}
		}
		if err != nil {
			errs = append(errs, err)
			if mode == FailFast {
				return c, errs
			}
		}
	}
	if c.Len() == 0 && len(errs) == 0 {
		errs = append(errs, &LoadError{Code: ErrCodeNoEntities, Message: "no entities declared"})
	}
	return c, errs
}

// compileEntity converts one entity struct, already unified with the
// schema, into metadata. raw is the declaration as written; positions are
// taken from it.
func compileEntity(name string, v, raw cue.Value) (*meta.Entity, error) {
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, positioned(ErrCodeSchema, err)
	}

	def := meta.Definition{Name: name}
	var err error
	if def.Table, err = lookup(v, "table").String(); err != nil {
		return nil, positioned(ErrCodeSchema, err)
	}
	if def.Connection, err = lookup(v, "connection").String(); err != nil {
		return nil, positioned(ErrCodeSchema, err)
	}

	fields, err := lookup(v, "fields").Fields()
	if err != nil {
		return nil, positioned(ErrCodeSchema, err)
	}
	for fields.Next() {
		label := fields.Label()
		f, err := compileField(label, fields.Value(), raw.LookupPath(cue.MakePath(cue.Str("fields"), cue.Str(label))))
		if err != nil {
			return nil, err
		}
		def.Fields = append(def.Fields, f)
	}

	e, err := meta.New(def)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeInvalidEntity, Message: err.Error(), Pos: raw.Pos()}
	}
	return e, nil
}

func compileField(name string, v, raw cue.Value) (meta.FieldDef, error) {
	f := meta.FieldDef{Name: name, Column: name}

	if col := lookup(v, "column"); col.Exists() {
		s, err := col.String()
		if err != nil {
			return f, positioned(ErrCodeSchema, err)
		}
		f.Column = s
	}

	typVal := lookup(v, "type")
	s, err := typVal.String()
	if err != nil {
		return f, positioned(ErrCodeSchema, err)
	}
	if f.Type, err = meta.ParseType(s); err != nil {
		pos := raw.LookupPath(cue.MakePath(cue.Str("type"))).Pos()
		if !pos.IsValid() {
			pos = typVal.Pos()
		}
		return f, &LoadError{Code: ErrCodeInvalidType, Message: fmt.Sprintf("field %s: %v", name, err), Pos: pos}
	}

	if f.Nullable, err = lookup(v, "nullable").Bool(); err != nil {
		return f, positioned(ErrCodeSchema, err)
	}
	if f.Autoincrement, err = lookup(v, "autoincrement").Bool(); err != nil {
		return f, positioned(ErrCodeSchema, err)
	}
	return f, nil
}

// lookup returns the field at path, resolved to its default if it has one.
func lookup(v cue.Value, path string) cue.Value {
	f := v.LookupPath(cue.ParsePath(path))
	if d, ok := f.Default(); ok {
		return d
	}
	return f
}

// positioned converts a CUE error to a LoadError carrying the first
// reported position.
func positioned(code string, err error) *LoadError {
	list := cueerrors.Errors(err)
	if len(list) == 0 {
		return &LoadError{Code: code, Message: err.Error()}
	}
	first := list[0]
	le := &LoadError{Code: code, Message: first.Error()}
	if pos := cueerrors.Positions(first); len(pos) > 0 {
		le.Pos = pos[0]
	}
	return le
}
