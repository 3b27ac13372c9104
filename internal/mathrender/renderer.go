package mathrender

import (
	"bytes"
	"html/template"

	"github.com/rs/zerolog"
)

// Node is a rendered token. HTML is always safe to insert: text is escaped
// and math HTML comes from the Engine. Error marks a math token that fell
// back to its literal delimited source.
type Node struct {
	Kind   Kind          `json:"kind"`
	Source string        `json:"source"`
	HTML   template.HTML `json:"html"`
	Error  bool          `json:"error,omitempty"`
}

// Renderer turns tokens into nodes, isolating failures per token.
type Renderer struct {
	engine     Engine
	errorColor string
	log        zerolog.Logger
}

// NewRenderer creates a Renderer backed by engine.
func NewRenderer(engine Engine, log zerolog.Logger) *Renderer {
	return &Renderer{
		engine:     engine,
		errorColor: DefaultErrorColor,
		log:        log.With().Str("component", "math_renderer").Logger(),
	}
}

// Render renders every token in order.
func (r *Renderer) Render(tokens []Token) []Node {
	nodes := make([]Node, 0, len(tokens))
	for _, tok := range tokens {
		if tok.Kind == KindText {
			nodes = append(nodes, Node{
				Kind:   KindText,
				Source: tok.Value,
				HTML:   template.HTML(template.HTMLEscapeString(tok.Value)),
			})
			continue
		}
		nodes = append(nodes, r.renderMath(tok))
	}
	return nodes
}

func (r *Renderer) renderMath(tok Token) (node Node) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Warn().Interface("panic", rec).Str("src", tok.Value).Msg("Math engine panicked")
			node = fallback(tok)
		}
	}()

	html, err := r.engine.Render(tok.Value, Options{
		DisplayMode:  tok.Kind == KindBlock,
		ThrowOnError: false,
		ErrorColor:   r.errorColor,
	})
	if err != nil {
		r.log.Debug().Err(err).Str("src", tok.Value).Msg("Math render failed, using literal source")
		return fallback(tok)
	}
	return Node{Kind: tok.Kind, Source: tok.Value, HTML: html}
}

func fallback(tok Token) Node {
	return Node{
		Kind:   tok.Kind,
		Source: tok.Value,
		HTML:   template.HTML(template.HTMLEscapeString(tok.Delimited())),
		Error:  true,
	}
}

var fragmentTmpl = template.Must(template.New("fragment").Parse(
	`<div class="math-content">{{range .}}` +
		`{{if .Error}}<span class="math-literal">{{.HTML}}</span>` +
		`{{else if eq .Kind "text"}}<span>{{.HTML}}</span>` +
		`{{else}}{{.HTML}}{{end}}` +
		`{{end}}</div>`,
))

// RenderHTML composes nodes into one fragment.
func RenderHTML(nodes []Node) template.HTML {
	var buf bytes.Buffer
	if err := fragmentTmpl.Execute(&buf, nodes); err != nil {
		return ""
	}
	return template.HTML(buf.String())
}
