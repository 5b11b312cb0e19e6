package sqldb

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/rowmap/internal/dbal"
)

// Dialect describes the SQL flavor of a backend.
type Dialect struct {
	// Name is one of "sqlite", "postgres" or "mysql".
	Name string

	quote    byte
	numbered bool // $1, $2, ... instead of ?
	lock     bool // supports FOR UPDATE
	upsert   upsertStyle
	// returning reports whether generated ids are read with RETURNING
	// instead of LastInsertId.
	returning bool
	// noLimit is the LIMIT rendered before a bare OFFSET; "" renders
	// OFFSET alone.
	noLimit string
	// rowID is the implicit row identifier used to limit an update; ""
	// means UPDATE accepts ORDER BY and LIMIT directly.
	rowID string
}

type upsertStyle int

const (
	onConflict upsertStyle = iota
	onDuplicateKey
)

var (
	SQLite   = Dialect{Name: "sqlite", quote: '"', upsert: onConflict, noLimit: "-1", rowID: "rowid"}
	Postgres = Dialect{Name: "postgres", quote: '"', numbered: true, lock: true, upsert: onConflict, returning: true, rowID: "ctid"}
	MySQL    = Dialect{Name: "mysql", quote: '`', lock: true, upsert: onDuplicateKey, noLimit: "18446744073709551615"}
)

// DialectFor maps a database/sql driver name to its dialect.
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case "sqlite", "sqlite3":
		return SQLite, nil
	case "postgres", "pgx":
		return Postgres, nil
	case "mysql":
		return MySQL, nil
	}
	return Dialect{}, fmt.Errorf("unsupported driver %q", driver)
}

// QuoteIdentifier quotes each dot-separated part of name.
func (d Dialect) QuoteIdentifier(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = d.QuoteAlias(p)
	}
	return strings.Join(parts, ".")
}

// QuoteAlias quotes name as a single identifier.
func (d Dialect) QuoteAlias(name string) string {
	q := string(d.quote)
	return q + strings.ReplaceAll(name, q, q+q) + q
}

// Rebind rewrites ? placeholders for numbered dialects. Placeholders inside
// string literals and quoted identifiers are left alone.
func (d Dialect) Rebind(sql string) string {
	if !d.numbered {
		return sql
	}
	offsets := dbal.Placeholders(sql)
	if len(offsets) == 0 {
		return sql
	}
	var b strings.Builder
	b.Grow(len(sql) + 2*len(offsets))
	last := 0
	for n, at := range offsets {
		b.WriteString(sql[last:at])
		b.WriteByte('$')
		b.WriteString(strconv.Itoa(n + 1))
		last = at + 1
	}
	b.WriteString(sql[last:])
	return b.String()
}
