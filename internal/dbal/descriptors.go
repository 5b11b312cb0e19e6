package dbal

// Query is a read statement accepted by Database.Select, FetchAll and FetchOne.
//
// This is a sealed interface; only Select and Raw implement it.
type Query interface {
	queryNode()
}

// Select is a structured read.
//
// Semantics:
//
//	SELECT <fields> FROM <table | tables> WHERE <where...> GROUP BY <group>
//	ORDER BY <order> LIMIT <limit> OFFSET <offset> [FOR UPDATE]
//
// Table is used for single-entity reads; Tables for multi-entity reads, in
// which case entries are joined with ", " unless an entry starts with a
// JOIN keyword. Where conditions are combined with AND.
type Select struct {
	Fields []SelectField
	Table  string
	Tables []TableRef
	Where  []Condition
	Group  []Term
	Order  []Ordering
	Limit  int // 0 = no limit
	Offset int
	Lock   bool
}

func (Select) queryNode() {}

// Raw is a complete SQL statement with "?" placeholders.
type Raw struct {
	SQL  string
	Args []any
}

func (Raw) queryNode() {}

// SelectField is one entry of the select list. Exactly one of Column or
// Expr is set. Alias is required for Expr.
type SelectField struct {
	Column string
	Expr   string
	Args   []any
	Alias  string
}

// TableRef is one FROM entry: a rendered table reference or join clause.
type TableRef struct {
	SQL  string
	Args []any
}

// Condition is one WHERE predicate.
//
// Column conditions compare one column: a single nil value renders
// IS NULL, In renders IN (...) over Values, anything else renders = ?.
// Expr conditions are rendered verbatim and bound to Values.
type Condition struct {
	Column string
	Expr   string
	Values []any
	In     bool
}

// Term is a GROUP BY entry: a column or a rendered expression.
type Term struct {
	Column string
	Expr   string
}

// Ordering is one ORDER BY entry.
type Ordering struct {
	Column string
	Expr   string
	Desc   bool
	// Bare is set for expressions given without direction; no ASC/DESC is
	// rendered for them.
	Bare bool
}

// Assignment is one SET entry of an update or upsert.
//
// Column assignments render col = ?. Expr assignments are rendered
// verbatim, e.g. `"count" = "count" + ?`, and bound to Args.
type Assignment struct {
	Column string
	Value  any
	Expr   string
	Args   []any
}

// Update changes rows of one table.
type Update struct {
	Table   string
	Changes []Assignment
	Where   []Condition
	Order   []Ordering
	Limit   int
}

// Delete removes rows of one table.
type Delete struct {
	Table string
	Where []Condition
}

// Insert adds one row.
type Insert struct {
	Table   string
	Columns []string
	Values  []any
}

// Upsert inserts one row or updates it when a row with the same Index
// columns already exists. When UpdateAll is set, every non-index column is
// taken from the inserted values and Update is ignored.
type Upsert struct {
	Table     string
	Columns   []string
	Values    []any
	Index     []string
	Update    []Assignment
	UpdateAll bool
}
