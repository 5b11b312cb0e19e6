package testutil

import "strings"

// Quoter quotes identifiers the ANSI way: "part"."part".
type Quoter struct{}

// QuoteIdentifier implements dbal.Quoter.
func (Quoter) QuoteIdentifier(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = quote(p)
	}
	return strings.Join(parts, ".")
}

// QuoteAlias implements dbal.Quoter.
func (Quoter) QuoteAlias(name string) string {
	return quote(name)
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
