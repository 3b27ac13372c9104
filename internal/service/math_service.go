package service

import (
	"html/template"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-quiz/internal/mathrender"
	"github.com/stemsi/exstem-quiz/internal/mathtext"
)

// Supported values of MATH_ENGINE.
const (
	MathEngineTeX    = "tex"
	MathEngineMarkup = "markup"
)

// MathService renders quiz text through the normalize → tokenize → render
// pipeline.
type MathService struct {
	pipeline *mathrender.Pipeline
}

// NewMathService builds the pipeline. rulesFile, when set, is merged over the
// default rule table; engine picks the typesetting backend.
func NewMathService(rulesFile, engine string, log zerolog.Logger) (*MathService, error) {
	rules := mathtext.DefaultRules()
	if rulesFile != "" {
		loaded, err := mathtext.LoadRules(rulesFile)
		if err != nil {
			return nil, err
		}
		rules = loaded
		log.Info().Str("file", rulesFile).Int("rules", len(rules)).Msg("Math rules loaded")
	}

	var eng mathrender.Engine
	switch engine {
	case MathEngineMarkup:
		eng = mathrender.MarkupEngine{}
	default:
		eng = mathrender.NewTeXEngine(log)
	}

	normalizer := mathtext.New(mathtext.WithRules(rules), mathtext.WithLogger(log))
	return NewMathServiceWith(mathrender.NewPipeline(normalizer, mathrender.NewRenderer(eng, log))), nil
}

// NewMathServiceWith wraps an existing pipeline.
func NewMathServiceWith(pipeline *mathrender.Pipeline) *MathService {
	return &MathService{pipeline: pipeline}
}

// Preview returns every stage of the pipeline for raw.
func (s *MathService) Preview(raw string) mathrender.Result {
	return s.pipeline.Process(raw)
}

// Render normalizes raw and returns both the normalized text and its HTML.
func (s *MathService) Render(raw string) (string, template.HTML) {
	res := s.pipeline.Process(raw)
	return res.Normalized, res.HTML
}

// RenderProse renders free text without rewrite rules.
func (s *MathService) RenderProse(raw string) (string, template.HTML) {
	res := s.pipeline.Prose(raw)
	return res.Normalized, res.HTML
}

// Normalize returns raw with rewrite rules applied and math delimited,
// without rendering it.
func (s *MathService) Normalize(raw string) string {
	return s.pipeline.Normalize(raw)
}

// PreviewProse returns every stage of the prose pipeline for raw.
func (s *MathService) PreviewProse(raw string) mathrender.Result {
	return s.pipeline.Prose(raw)
}
