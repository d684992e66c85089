package ooo

import (
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// punctuation and Nordic letters kept besides ASCII letters, digits and whitespace
const extraAllowed = `.,!?@#&'"()*+-/:åÅøØæÆ`

// pool of sanitize chains, a chain is stateful and not safe to share
var chainPool = sync.Pool{
	New: func() any {
		return transform.Chain(
			norm.NFC, // compose so å typed as a+ring survives the filter
			runes.Remove(runes.Predicate(func(r rune) bool { return !allowed(r) })),
		)
	},
}

func allowed(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case unicode.IsSpace(r):
		return true
	default:
		return strings.ContainsRune(extraAllowed, r)
	}
}

// Sanitize keeps the allow-listed characters of s and truncates the result to
// limit runes. The bool reports whether anything was cut.
func Sanitize(s string, limit int) (string, bool) {
	if s == "" {
		return s, false
	}
	s = strings.ToValidUTF8(s, "")

	tr := chainPool.Get().(transform.Transformer)
	out, _, err := transform.String(tr, s)
	tr.Reset()
	chainPool.Put(tr)
	if err != nil {
		return "", false
	}

	if limit < 0 {
		limit = 0
	}
	rs := []rune(out)
	if len(rs) <= limit {
		return out, false
	}
	return string(rs[:limit]), true
}
