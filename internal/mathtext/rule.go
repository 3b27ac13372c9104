package mathtext

import (
	"regexp"
	"strings"
)

// Rule is a single pattern → replacement rewrite. Replacement uses the
// regexp template syntax (${1}, ${name}).
type Rule struct {
	Name        string
	Pattern     *regexp.Regexp
	Replacement string
	// SkipEscaped leaves matches that sit directly after a backslash alone,
	// so `\pi` is not rewritten to `\\pi`.
	SkipEscaped bool
}

// NewRule compiles pattern into a Rule. It panics on an invalid pattern and
// is meant for the built-in tables only; use LoadRules for user input.
func NewRule(name, pattern, replacement string, skipEscaped bool) Rule {
	return Rule{
		Name:        name,
		Pattern:     regexp.MustCompile(pattern),
		Replacement: replacement,
		SkipEscaped: skipEscaped,
	}
}

// Apply rewrites every match of the rule in s.
func (r Rule) Apply(s string) string {
	if !r.SkipEscaped {
		return r.Pattern.ReplaceAllString(s, r.Replacement)
	}

	matches := r.Pattern.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s
	}

	var b strings.Builder
	b.Grow(len(s) + 8*len(matches))
	last := 0
	for _, m := range matches {
		if m[0] > 0 && s[m[0]-1] == '\\' {
			continue
		}
		b.WriteString(s[last:m[0]])
		b.Write(r.Pattern.ExpandString(nil, r.Replacement, s, m))
		last = m[1]
	}
	b.WriteString(s[last:])
	return b.String()
}

// Apply folds text through rules in order.
func Apply(rules []Rule, text string) string {
	for _, r := range rules {
		text = r.Apply(text)
	}
	return text
}
