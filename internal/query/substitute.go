package query

import (
	"strings"

	"github.com/roach88/rowmap/internal/errs"
)

// Substitute replaces every :name: token of text with tokens[name].
//
// Unknown tokens are left in place. Afterwards no ':' may remain in the
// result; if one does, Substitute fails with CodeUnresolvedToken and the
// names of the tokens it could not resolve.
func Substitute(text string, tokens map[string]string) (string, error) {
	var b strings.Builder
	b.Grow(len(text))

	var unresolved []string
	for i := 0; i < len(text); {
		if text[i] != ':' {
			b.WriteByte(text[i])
			i++
			continue
		}
		end := strings.IndexByte(text[i+1:], ':')
		if end > 0 {
			name := text[i+1 : i+1+end]
			if repl, ok := tokens[name]; ok {
				b.WriteString(repl)
				i += end + 2
				continue
			}
			if !strings.ContainsAny(name, " \t\n") {
				unresolved = append(unresolved, name)
			}
		}
		b.WriteByte(':')
		i++
	}

	out := b.String()
	if strings.Contains(out, ":") {
		if len(unresolved) > 0 {
			return "", errs.New(errs.CodeUnresolvedToken, "unresolved token :%s: in %q", unresolved[0], text)
		}
		return "", errs.New(errs.CodeUnresolvedToken, "stray ':' in %q", text)
	}
	return out, nil
}
