package mathrender

import (
	"html/template"

	"github.com/stemsi/exstem-quiz/internal/mathtext"
)

// Result is everything produced for one input string.
type Result struct {
	Normalized string        `json:"normalized"`
	Tokens     []Token       `json:"tokens"`
	Nodes      []Node        `json:"nodes"`
	HTML       template.HTML `json:"html"`
}

// Pipeline runs normalize → tokenize → render.
type Pipeline struct {
	normalizer *mathtext.Normalizer
	renderer   *Renderer
}

// NewPipeline creates a Pipeline.
func NewPipeline(normalizer *mathtext.Normalizer, renderer *Renderer) *Pipeline {
	return &Pipeline{normalizer: normalizer, renderer: renderer}
}

// Process renders raw text. Tokens are built fresh on every call.
func (p *Pipeline) Process(raw string) Result {
	normalized := p.normalizer.Normalize(raw)
	tokens := Tokenize(normalized)
	nodes := p.renderer.Render(tokens)
	return Result{
		Normalized: normalized,
		Tokens:     tokens,
		Nodes:      nodes,
		HTML:       RenderHTML(nodes),
	}
}

// Prose renders free text that already carries its own delimiters, such as
// an assistant reply. It only cleans delimiter artifacts and never runs the
// rewrite rules or auto-wrapping.
func (p *Pipeline) Prose(raw string) Result {
	cleaned := mathtext.Clean(raw)
	tokens := Tokenize(cleaned)
	nodes := p.renderer.Render(tokens)
	return Result{
		Normalized: cleaned,
		Tokens:     tokens,
		Nodes:      nodes,
		HTML:       RenderHTML(nodes),
	}
}

// Normalize runs only the normalizer stage.
func (p *Pipeline) Normalize(raw string) string {
	return p.normalizer.Normalize(raw)
}
