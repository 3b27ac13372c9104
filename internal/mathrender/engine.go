package mathrender

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"io"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"star-tex.org/x/tex"
)

// DefaultErrorColor is used for inline TeX error spans.
const DefaultErrorColor = "#cc0000"

var (
	// ErrUnbalancedBraces is fatal regardless of Options.ThrowOnError.
	ErrUnbalancedBraces = errors.New("unbalanced braces")
	// ErrTeX wraps a typesetting error when Options.ThrowOnError is set.
	ErrTeX = errors.New("tex error")
	// ErrForbiddenCommand and ErrSourceTooLong are fatal like
	// ErrUnbalancedBraces. They keep formulas that could loop or touch
	// files away from the TeX interpreter.
	ErrForbiddenCommand = errors.New("forbidden TeX command")
	ErrSourceTooLong    = errors.New("formula too long")
)

// Options mirrors the switches of a browser math typesetter.
type Options struct {
	DisplayMode  bool
	ThrowOnError bool
	ErrorColor   string
}

// Engine renders one math source string to trusted HTML.
type Engine interface {
	Render(src string, opts Options) (template.HTML, error)
}

// ─── Markup engine ──────────────────────────────────────────────────────────

// MarkupEngine only checks brace balance and emits delimited markup for a
// client-side typesetter. It never typesets.
type MarkupEngine struct{}

// Render implements Engine.
func (MarkupEngine) Render(src string, opts Options) (template.HTML, error) {
	if err := CheckBraces(src); err != nil {
		return "", err
	}
	return markup(src, opts.DisplayMode), nil
}

// ─── TeX engine ─────────────────────────────────────────────────────────────

// texPreamble defines the LaTeX-style macros plain TeX lacks.
const texPreamble = `\scrollmode
\nopagenumbers
\def\frac#1#2{{{#1}\over{#2}}}
\def\dfrac#1#2{{{#1}\over{#2}}}
\def\tfrac#1#2{{{#1}\over{#2}}}
\def\binom#1#2{{#1\choose#2}}
\def\text#1{\hbox{#1}}
\def\mathrm#1{{\rm #1}}
\def\mathbf#1{{\bf #1}}
\def\mathit#1{{\it #1}}
\def\mathbb#1{{\bf #1}}
\def\operatorname#1{\mathop{\rm #1}\nolimits}
`

var nthRootRe = regexp.MustCompile(`\\sqrt\[([^\]]*)\]`)

const (
	verdictCacheSize = 4096

	// MaxTeXSource caps the formula length handed to the interpreter.
	MaxTeXSource = 2000

	typesetTimeout = 2 * time.Second
)

// forbiddenRe matches primitives and plain macros that define macros,
// loop, do IO or change catcodes. A control word ends at the first
// non-letter.
var forbiddenRe = regexp.MustCompile(`\\(def|gdef|edef|xdef|let|futurelet|loop|csname|expandafter|` +
	`input|endinput|read|openin|openout|write|immediate|catcode|afterassignment|` +
	`every[a-z]*|errorstopmode|batchmode|nonstopmode|scrollmode)([^a-zA-Z]|$)`)

type verdictKey struct {
	display bool
	src     string
}

// TeXEngine validates formulas by typesetting them with a plain TeX engine
// before emitting markup. Each Render runs a fresh TeX engine; verdicts are
// cached per source.
type TeXEngine struct {
	log     zerolog.Logger
	timeout time.Duration
	process func(stdout io.Writer, doc string) error

	mu       sync.Mutex
	verdicts map[verdictKey]string
}

// NewTeXEngine creates a TeXEngine.
func NewTeXEngine(log zerolog.Logger) *TeXEngine {
	return &TeXEngine{
		log:      log.With().Str("component", "tex_engine").Logger(),
		timeout:  typesetTimeout,
		process:  runTeX,
		verdicts: make(map[verdictKey]string),
	}
}

// Render implements Engine. Brace imbalance, forbidden commands and
// oversized sources are always returned as errors. A TeX error becomes an
// error span unless opts.ThrowOnError is set.
func (e *TeXEngine) Render(src string, opts Options) (template.HTML, error) {
	if err := CheckSource(src); err != nil {
		return "", err
	}

	if msg := e.verdict(src, opts.DisplayMode); msg != "" {
		if opts.ThrowOnError {
			return "", fmt.Errorf("%w: %s", ErrTeX, msg)
		}
		return errorSpan(src, msg, opts.ErrorColor), nil
	}
	return markup(src, opts.DisplayMode), nil
}

func (e *TeXEngine) verdict(src string, display bool) string {
	key := verdictKey{display: display, src: src}

	e.mu.Lock()
	msg, ok := e.verdicts[key]
	e.mu.Unlock()
	if ok {
		return msg
	}

	msg = e.typeset(src, display)

	e.mu.Lock()
	if len(e.verdicts) >= verdictCacheSize {
		e.verdicts = make(map[verdictKey]string)
	}
	e.verdicts[key] = msg
	e.mu.Unlock()
	return msg
}

// typeset returns the first TeX error message, or "" when src typesets.
// A run that outlives the timeout is reported as an error; its goroutine is
// abandoned.
func (e *TeXEngine) typeset(src string, display bool) string {
	formula := nthRootRe.ReplaceAllString(src, `\root ${1} \of `)
	delim := "$"
	if display {
		delim = "$$"
	}
	doc := texPreamble + delim + formula + delim + "\n\\bye\n"

	type outcome struct {
		log string
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		stdout := &bytes.Buffer{}
		err := e.process(stdout, doc)
		done <- outcome{log: stdout.String(), err: err}
	}()

	var out outcome
	select {
	case out = <-done:
	case <-time.After(e.timeout):
		e.log.Warn().Str("src", src).Dur("timeout", e.timeout).Msg("TeX engine timed out")
		return "TeX timed out"
	}

	if msg := firstTeXError(out.log); msg != "" {
		return msg
	}
	if out.err != nil {
		e.log.Debug().Err(out.err).Str("src", src).Msg("TeX engine failed")
		return out.err.Error()
	}
	return ""
}

func runTeX(stdout io.Writer, doc string) error {
	engine := tex.New()
	engine.Stdout = stdout
	engine.Stdin = bytes.NewReader(nil)
	return engine.Process(io.Discard, strings.NewReader(doc))
}

func firstTeXError(log string) string {
	for _, line := range strings.Split(log, "\n") {
		if strings.HasPrefix(line, "! ") {
			return strings.TrimSpace(line[2:])
		}
	}
	return ""
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// CheckSource runs the structural checks that precede typesetting.
func CheckSource(src string) error {
	if len(src) > MaxTeXSource {
		return fmt.Errorf("%w: %d bytes", ErrSourceTooLong, len(src))
	}
	if m := forbiddenRe.FindStringSubmatch(src); m != nil {
		return fmt.Errorf("%w: \\%s", ErrForbiddenCommand, m[1])
	}
	return CheckBraces(src)
}

// CheckBraces reports ErrUnbalancedBraces when unescaped `{` and `}` in src
// do not pair up.
func CheckBraces(src string) error {
	depth := 0
	for i := 0; i < len(src); i++ {
		switch src[i] {
		case '{':
			if !escaped(src, i) {
				depth++
			}
		case '}':
			if !escaped(src, i) {
				depth--
			}
		}
		if depth < 0 {
			return fmt.Errorf("%w: unexpected '}' at %d", ErrUnbalancedBraces, i)
		}
	}
	if depth != 0 {
		return fmt.Errorf("%w: %d unclosed '{'", ErrUnbalancedBraces, depth)
	}
	return nil
}

func markup(src string, display bool) template.HTML {
	esc := template.HTMLEscapeString(src)
	if display {
		return template.HTML(`<span class="math display">\[` + esc + `\]</span>`)
	}
	return template.HTML(`<span class="math inline">\(` + esc + `\)</span>`)
}

var colorRe = regexp.MustCompile(`^(#[0-9a-fA-F]{3,8}|[a-zA-Z]+)$`)

func errorSpan(src, msg, color string) template.HTML {
	if !colorRe.MatchString(color) {
		color = DefaultErrorColor
	}
	return template.HTML(`<span class="math-error" style="color:` + color + `" title="` +
		template.HTMLEscapeString(msg) + `">` + template.HTMLEscapeString(src) + `</span>`)
}
