package query

import (
	"encoding/json"

	"github.com/roach88/rowmap/internal/dbal"
	"github.com/roach88/rowmap/internal/meta"
)

// CastPlan records the semantic type and nullability of every output key
// of a select, in select-list order. It is only used for decoding.
type CastPlan struct {
	keys     []string
	types    map[string]meta.Type
	nullable map[string]bool
}

// PlanEntry is one output key of a CastPlan.
type PlanEntry struct {
	Key      string    `json:"key"`
	Type     meta.Type `json:"type"`
	Nullable bool      `json:"nullable"`
}

// NewCastPlan returns an empty plan.
func NewCastPlan() *CastPlan {
	return &CastPlan{
		types:    make(map[string]meta.Type),
		nullable: make(map[string]bool),
	}
}

// Add records key. Adding a key again replaces its type but keeps its position.
func (p *CastPlan) Add(key string, t meta.Type, nullable bool) {
	if _, ok := p.types[key]; !ok {
		p.keys = append(p.keys, key)
	}
	p.types[key] = t
	p.nullable[key] = nullable
}

// Type returns the type of key.
func (p *CastPlan) Type(key string) (meta.Type, bool) {
	t, ok := p.types[key]
	return t, ok
}

// Nullable reports whether key may decode to nil.
func (p *CastPlan) Nullable(key string) bool {
	return p.nullable[key]
}

// Keys returns the output keys in order.
func (p *CastPlan) Keys() []string {
	out := make([]string, len(p.keys))
	copy(out, p.keys)
	return out
}

// Len returns the number of keys.
func (p *CastPlan) Len() int { return len(p.keys) }

// Entries returns the plan as a list.
func (p *CastPlan) Entries() []PlanEntry {
	out := make([]PlanEntry, len(p.keys))
	for i, k := range p.keys {
		out[i] = PlanEntry{Key: k, Type: p.types[k], Nullable: p.nullable[k]}
	}
	return out
}

// MarshalJSON encodes the plan as its ordered entry list.
func (p *CastPlan) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Entries())
}

// Compiled is the result of a select compiler: the backend query and the
// decoding plan of its rows.
type Compiled struct {
	Query dbal.Query
	Plan  *CastPlan
}

// Select returns the structured descriptor, if the query is one.
func (c Compiled) Select() (dbal.Select, bool) {
	s, ok := c.Query.(dbal.Select)
	return s, ok
}
