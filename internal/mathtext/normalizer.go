// Package mathtext rewrites calculator-style math embedded in free text
// (x^2, sqrt(9), a/b, pi) into LaTeX and decides how it should be delimited.
package mathtext

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"golang.org/x/text/width"
)

// dollarPlaceholder stands in for `$` while the rule table runs. It is a
// private-use rune so no rule pattern can match or split it.
const dollarPlaceholder = "\uE000"

// blockWrapLength is the rune length above which wrapped text becomes
// display math.
const blockWrapLength = 20

var blockMarkers = []string{`\frac`, `\sqrt`, `\sum`}

// Normalizer converts loosely formatted math into delimited LaTeX.
// It is safe for concurrent use once constructed.
type Normalizer struct {
	rules      []Rule
	indicators []*regexp.Regexp
	log        zerolog.Logger
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithRules replaces the substitution table.
func WithRules(rules []Rule) Option {
	return func(n *Normalizer) { n.rules = rules }
}

// WithLogger sets the logger used to report recovered failures.
func WithLogger(log zerolog.Logger) Option {
	return func(n *Normalizer) {
		n.log = log.With().Str("component", "math_normalizer").Logger()
	}
}

// New creates a Normalizer with the default rule table.
func New(opts ...Option) *Normalizer {
	n := &Normalizer{
		rules:      DefaultRules(),
		indicators: DefaultIndicators(),
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Rules returns the active substitution table.
func (n *Normalizer) Rules() []Rule {
	out := make([]Rule, len(n.rules))
	copy(out, n.rules)
	return out
}

var defaultNormalizer = New()

// Normalize runs text through the default Normalizer.
func Normalize(text string) string {
	return defaultNormalizer.Normalize(text)
}

// Normalize never fails: if any step panics the original text is returned.
func (n *Normalizer) Normalize(text string) (out string) {
	if text == "" {
		return text
	}

	defer func() {
		if r := recover(); r != nil {
			n.log.Warn().Interface("panic", r).Str("text", text).Msg("Math normalization failed, returning input")
			out = text
		}
	}()

	s := width.Fold.String(text)
	s = RepairSpecialCases(s)

	s = strings.ReplaceAll(s, "$", dollarPlaceholder)
	s = Apply(n.rules, s)
	s = strings.ReplaceAll(s, dollarPlaceholder, "$")

	return n.wrap(s)
}

// IsMath reports whether any wrap indicator matches text.
func (n *Normalizer) IsMath(text string) bool {
	for _, re := range n.indicators {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// wrap delimits the whole string when it holds no `$` yet but looks like math.
func (n *Normalizer) wrap(s string) string {
	if strings.Contains(s, "$") || !n.IsMath(s) {
		return s
	}

	if utf8.RuneCountInString(s) > blockWrapLength || containsAny(s, blockMarkers) {
		return "$$" + s + "$$"
	}
	return "$" + s + "$"
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
