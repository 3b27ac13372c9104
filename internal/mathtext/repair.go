package mathtext

import (
	"regexp"
	"strings"
)

var (
	// `$27x$^{6}` and `$27x$^6`: a coefficient split off from its exponent.
	splitExponentRe = regexp.MustCompile(`\$(\d+)([a-zA-Z]+)\$\^\{?(\d+)\}?`)
	// `$27x$`: a bare term delimited on its own.
	splitTermRe     = regexp.MustCompile(`\$(\d+)([a-zA-Z]+)\$`)

	dollarRunRe  = regexp.MustCompile(`\${3,}`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// RepairSpecialCases fixes delimiter mistakes commonly produced by question
// authoring tools. Runs of three or more `$` collapse to `$$` so display
// delimiters survive repeated normalization.
func RepairSpecialCases(s string) string {
	s = splitExponentRe.ReplaceAllString(s, `${1}${2}^{${3}}`)
	s = splitTermRe.ReplaceAllString(s, `${1}${2}`)
	s = dollarRunRe.ReplaceAllString(s, `$$$$`)
	return stripEmptyPairs(s)
}

// Clean collapses whitespace, repairs dollar runs and drops empty math pairs.
// It does not rewrite any math.
func Clean(s string) string {
	s = stripEmptyPairs(dollarRunRe.ReplaceAllString(s, `$$$$`))
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// stripEmptyPairs removes `$ $` and `$$ $$` pairs whose content is only
// whitespace. Pairs are matched left to right so the gap between two
// adjacent spans (`$a$ $b$`) is never mistaken for an empty pair.
func stripEmptyPairs(s string) string {
	if !strings.Contains(s, "$") {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	i := 0
	for i < len(s) {
		if s[i] != '$' || escaped(s, i) {
			b.WriteByte(s[i])
			i++
			continue
		}

		delim := "$"
		if strings.HasPrefix(s[i:], "$$") {
			delim = "$$"
		}
		end := indexUnescaped(s, i+len(delim), delim)
		if end < 0 {
			b.WriteString(s[i:])
			break
		}
		if strings.TrimSpace(s[i+len(delim):end]) != "" {
			b.WriteString(s[i : end+len(delim)])
		}
		i = end + len(delim)
	}
	return b.String()
}

// escaped reports whether s[i] is preceded by an odd run of backslashes.
func escaped(s string, i int) bool {
	n := 0
	for j := i - 1; j >= 0 && s[j] == '\\'; j-- {
		n++
	}
	return n%2 == 1
}

func indexUnescaped(s string, from int, delim string) int {
	for from <= len(s) {
		k := strings.Index(s[from:], delim)
		if k < 0 {
			return -1
		}
		pos := from + k
		if !escaped(s, pos) {
			return pos
		}
		from = pos + 1
	}
	return -1
}
