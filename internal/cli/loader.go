package cli

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/rowmap/internal/catalog"
	"github.com/roach88/rowmap/internal/meta"
	"github.com/roach88/rowmap/internal/query"
)

// Operations accepted in an options file.
const (
	OpSelect    = "select"
	OpSelectOne = "select_one"
	OpFlattened = "flattened"
	OpCount     = "count"
	OpUpdate    = "update"
	OpDelete    = "delete"
)

var validOps = map[string]bool{
	OpSelect: true, OpSelectOne: true, OpFlattened: true,
	OpCount: true, OpUpdate: true, OpDelete: true,
}

// SourceRef binds an alias to a catalog entity.
type SourceRef struct {
	Alias  string
	Entity string
}

// Request is a parsed options file.
//
//	entity: User
//	op: select
//	where:
//	  lastName: Baumann
//	  ":balance: > ?": 10
//	order:
//	  lastName: DESC
//	limit: 10
//
// Multi-entity requests name their sources instead of one entity:
//
//	sources:
//	  a: User
//	  t: Ticket
//
// Mapping order is preserved, so where and order entries keep the order
// they are written in. Every key besides entity, sources and op is passed
// to the compiler unchanged.
type Request struct {
	Entity  string
	Sources []SourceRef
	Op      string
	Options query.Options
}

// Multi reports whether the request spans several sources.
func (r *Request) Multi() bool { return len(r.Sources) > 0 }

// LoadRequest reads and parses an options file.
func LoadRequest(path string) (*Request, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read options file: %w", err)
	}
	return ParseRequest(data)
}

// ParseRequest parses options file content.
func ParseRequest(data []byte) (*Request, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, errors.New("options file is empty")
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: options file must be a mapping", root.Line)
	}

	req := &Request{Op: OpSelect, Options: query.Options{}}
	for i := 0; i+1 < len(root.Content); i += 2 {
		key, val := root.Content[i], root.Content[i+1]
		switch key.Value {
		case "entity":
			if val.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("line %d: entity must be a name", val.Line)
			}
			req.Entity = val.Value
		case "sources":
			if val.Kind != yaml.MappingNode {
				return nil, fmt.Errorf("line %d: sources must map aliases to entities", val.Line)
			}
			for j := 0; j+1 < len(val.Content); j += 2 {
				req.Sources = append(req.Sources, SourceRef{Alias: val.Content[j].Value, Entity: val.Content[j+1].Value})
			}
		case "op":
			req.Op = val.Value
		default:
			v, err := nodeValue(val)
			if err != nil {
				return nil, err
			}
			req.Options[key.Value] = v
		}
	}

	switch {
	case req.Entity == "" && !req.Multi():
		return nil, errors.New("options file needs entity or sources")
	case req.Entity != "" && req.Multi():
		return nil, errors.New("entity and sources are mutually exclusive")
	case !validOps[req.Op]:
		return nil, fmt.Errorf("unknown op %q", req.Op)
	case req.Multi() && req.Op == OpDelete:
		return nil, errors.New("delete does not support sources")
	}
	return req, nil
}

// nodeValue converts a YAML node into an option value. Mappings become
// query.Pairs so their order survives.
func nodeValue(n *yaml.Node) (any, error) {
	switch n.Kind {
	case yaml.MappingNode:
		pairs := make(query.Pairs, 0, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			v, err := nodeValue(n.Content[i+1])
			if err != nil {
				return nil, err
			}
			pairs = append(pairs, query.P(n.Content[i].Value, v))
		}
		return pairs, nil
	case yaml.SequenceNode:
		out := make([]any, 0, len(n.Content))
		for _, c := range n.Content {
			v, err := nodeValue(c)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case yaml.AliasNode:
		return nodeValue(n.Alias)
	case yaml.ScalarNode:
		var v any
		if err := n.Decode(&v); err != nil {
			return nil, fmt.Errorf("line %d: %w", n.Line, err)
		}
		return v, nil
	default:
		return nil, fmt.Errorf("line %d: unsupported YAML node", n.Line)
	}
}

// resolveEntity looks up the single entity of r.
func (r *Request) resolveEntity(c *catalog.Catalog) (*meta.Entity, error) {
	e, ok := c.Entity(r.Entity)
	if !ok {
		return nil, fmt.Errorf("unknown entity %q", r.Entity)
	}
	return e, nil
}

// resolveSources looks up every source entity of r.
func (r *Request) resolveSources(c *catalog.Catalog) ([]query.Source, error) {
	out := make([]query.Source, len(r.Sources))
	for i, s := range r.Sources {
		e, ok := c.Entity(s.Entity)
		if !ok {
			return nil, fmt.Errorf("source %q: unknown entity %q", s.Alias, s.Entity)
		}
		out[i] = query.Source{Alias: s.Alias, Entity: e}
	}
	return out, nil
}

// loadCatalog loads dir in fail-fast mode and reports the first error
// through f.
func loadCatalog(f *OutputFormatter, dir string) (*catalog.Catalog, error) {
	c, errs := catalog.LoadDir(dir, catalog.FailFast)
	if len(errs) > 0 {
		code, message := errorCode(errs[0])
		return nil, f.fail(catalogExit(code), code, message, nil)
	}
	f.VerboseLog("Loaded %d entity(ies) from %d CUE file(s) in %s", c.Len(), c.Files(), dir)
	return c, nil
}

// loadRequest reads an options file and reports failures through f.
func loadRequest(f *OutputFormatter, path string) (*Request, error) {
	req, err := LoadRequest(path)
	if err != nil {
		return nil, f.fail(ExitFailure, ErrCodeOptionsFile, err.Error(), nil)
	}
	return req, nil
}

// catalogExit maps a catalog error code to an exit code: a missing or
// empty directory is a command error, anything else an invalid catalog.
func catalogExit(code string) int {
	switch code {
	case catalog.ErrCodeNotFound, catalog.ErrCodeNoFiles, catalog.ErrCodeScanError:
		return ExitCommandError
	}
	return ExitFailure
}

// errorCode extracts the code and message of a catalog error. The message
// is prefixed with the source position when there is one.
func errorCode(err error) (string, string) {
	var le *catalog.LoadError
	if errors.As(err, &le) {
		if le.Pos.IsValid() {
			return le.Code, fmt.Sprintf("%s:%d:%d: %s", le.Pos.Filename(), le.Pos.Line(), le.Pos.Column(), le.Message)
		}
		return le.Code, le.Message
	}
	return catalog.ErrCodeGeneric, err.Error()
}
