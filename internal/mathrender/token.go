// Package mathrender splits normalized text into text and math tokens and
// renders the math through a typesetting Engine, falling back to the literal
// source per token when rendering fails.
package mathrender

import "strings"

// Kind tags a Token.
type Kind string

const (
	KindText   Kind = "text"
	KindInline Kind = "inline"
	KindBlock  Kind = "block"
)

// Token is one span of the input. Math values are trimmed of surrounding
// whitespace and carry no delimiters.
type Token struct {
	Kind  Kind   `json:"kind"`
	Value string `json:"value"`
}

type delimiter struct {
	open, close string
	kind        Kind
}

// Checked in priority order at every position.
var delimiters = []delimiter{
	{open: "$$", close: "$$", kind: KindBlock},
	{open: `\[`, close: `\]`, kind: KindBlock},
	{open: `\(`, close: `\)`, kind: KindInline},
	{open: "$", close: "$", kind: KindInline},
}

// Delimited renders the token back into its delimited source form.
func (t Token) Delimited() string {
	switch t.Kind {
	case KindInline:
		return "$" + t.Value + "$"
	case KindBlock:
		return "$$" + t.Value + "$$"
	default:
		return t.Value
	}
}

// Tokenize scans text once, left to right. Escaped delimiters (`\$`) are
// literal, and an opener with no closer is kept as literal text.
func Tokenize(text string) []Token {
	var (
		tokens    []Token
		textStart int
	)

	// exhausted[k] is the smallest offset from which a search for
	// delimiters[k].close is already known to fail.
	exhausted := make([]int, len(delimiters))
	for k := range exhausted {
		exhausted[k] = len(text) + 1
	}

	i := 0
	for i < len(text) {
		k := openerAt(text, i)
		if k < 0 {
			i++
			continue
		}

		d := delimiters[k]
		from := i + len(d.open)
		end := -1
		if from < exhausted[k] {
			end = findCloser(text, from, d.close)
			if end < 0 {
				exhausted[k] = from
			}
		}
		if end < 0 {
			i += len(d.open)
			continue
		}

		if i > textStart {
			tokens = append(tokens, Token{Kind: KindText, Value: text[textStart:i]})
		}
		tokens = append(tokens, Token{Kind: d.kind, Value: strings.TrimSpace(text[from:end])})
		i = end + len(d.close)
		textStart = i
	}

	if textStart < len(text) {
		tokens = append(tokens, Token{Kind: KindText, Value: text[textStart:]})
	}
	return tokens
}

// openerAt returns the index into delimiters of the opener at text[i], or -1.
func openerAt(text string, i int) int {
	switch text[i] {
	case '$', '\\':
	default:
		return -1
	}
	if escaped(text, i) {
		return -1
	}
	for k, d := range delimiters {
		if strings.HasPrefix(text[i:], d.open) {
			return k
		}
	}
	return -1
}

// findCloser returns the offset of the first unescaped close at or after from.
func findCloser(text string, from int, close string) int {
	for from <= len(text) {
		n := strings.Index(text[from:], close)
		if n < 0 {
			return -1
		}
		pos := from + n
		if !escaped(text, pos) {
			return pos
		}
		from = pos + 1
	}
	return -1
}

// escaped reports whether text[i] is preceded by an odd run of backslashes.
func escaped(text string, i int) bool {
	n := 0
	for j := i - 1; j >= 0 && text[j] == '\\'; j-- {
		n++
	}
	return n%2 == 1
}
