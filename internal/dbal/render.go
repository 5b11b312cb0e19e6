package dbal

import "strings"

var joinKeywords = []string{"JOIN", "LEFT", "RIGHT", "INNER", "OUTER", "CROSS", "FULL", "NATURAL", "STRAIGHT_JOIN"}

// IsJoin reports whether the reference starts with a JOIN clause and is
// therefore appended with a space instead of a comma.
func (t TableRef) IsJoin() bool {
	word, _, _ := strings.Cut(strings.TrimSpace(t.SQL), " ")
	word = strings.ToUpper(word)
	for _, kw := range joinKeywords {
		if word == kw {
			return true
		}
	}
	return false
}

// RenderField renders one select-list entry.
func RenderField(q Quoter, f SelectField) string {
	var expr string
	if f.Expr != "" {
		expr = f.Expr
	} else {
		expr = q.QuoteIdentifier(f.Column)
	}
	if f.Alias == "" {
		return expr
	}
	return expr + " AS " + q.QuoteAlias(f.Alias)
}

// RenderFields renders a select list and collects its bound values.
func RenderFields(q Quoter, fields []SelectField) (string, []any) {
	parts := make([]string, len(fields))
	var args []any
	for i, f := range fields {
		parts[i] = RenderField(q, f)
		args = append(args, f.Args...)
	}
	return strings.Join(parts, ", "), args
}

// RenderTables renders a FROM list and collects its bound values.
func RenderTables(refs []TableRef) (string, []any) {
	var b strings.Builder
	var args []any
	for i, t := range refs {
		if i > 0 {
			if t.IsJoin() {
				b.WriteString(" ")
			} else {
				b.WriteString(", ")
			}
		}
		b.WriteString(t.SQL)
		args = append(args, t.Args...)
	}
	return b.String(), args
}

// Placeholders returns the byte offsets of the ? placeholders in sql.
// Question marks inside string literals and quoted identifiers are text.
func Placeholders(sql string) []int {
	var (
		out []int
		in  byte
	)
	for i := 0; i < len(sql); i++ {
		c := sql[i]
		switch {
		case in != 0:
			if c == in {
				in = 0
			}
		case c == '\'' || c == '"' || c == '`':
			in = c
		case c == '?':
			out = append(out, i)
		}
	}
	return out
}
