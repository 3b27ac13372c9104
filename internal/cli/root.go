// Package cli holds the quizmath command, an offline front end to the math
// pipeline for checking how question text will be rendered.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/stemsi/exstem-quiz/internal/logger"
	"github.com/stemsi/exstem-quiz/internal/service"
)

type options struct {
	rulesFile string
	engine    string
	verbose   bool
}

// Execute runs the quizmath CLI.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// NewRootCmd builds the quizmath command tree.
func NewRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "quizmath",
		Short: "Normalize, tokenize and render quiz math text",
		Long: "quizmath runs quiz text through the same pipeline the gateway uses. " +
			"Text is taken from the arguments, or from stdin when none are given.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	root.PersistentFlags().StringVar(&opts.rulesFile, "rules", os.Getenv("MATH_RULES_FILE"), "YAML file merged over the default rule table")
	root.PersistentFlags().StringVar(&opts.engine, "engine", envOr("MATH_ENGINE", service.MathEngineTeX), "typesetting engine: tex or markup")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log rule and engine diagnostics to stderr")

	root.AddCommand(
		newNormalizeCmd(opts),
		newTokenizeCmd(opts),
		newRenderCmd(opts),
	)
	return root
}

func newNormalizeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "normalize [text...]",
		Short: "Print text after the rewrite rules and delimiter repair",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, text, err := prepare(cmd, opts, args)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), svc.Normalize(text))
			return nil
		},
	}
}

func newTokenizeCmd(opts *options) *cobra.Command {
	var prose bool
	cmd := &cobra.Command{
		Use:   "tokenize [text...]",
		Short: "Print the text, inline and block tokens as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, text, err := prepare(cmd, opts, args)
			if err != nil {
				return err
			}
			res := svc.Preview(text)
			if prose {
				res = svc.PreviewProse(text)
			}
			return writeJSON(cmd.OutOrStdout(), res.Tokens)
		},
	}
	cmd.Flags().BoolVar(&prose, "prose", false, "skip the rewrite rules, as for assistant replies")
	return cmd
}

func newRenderCmd(opts *options) *cobra.Command {
	var (
		prose  bool
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "render [text...]",
		Short: "Print the rendered HTML fragment",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, text, err := prepare(cmd, opts, args)
			if err != nil {
				return err
			}
			res := svc.Preview(text)
			if prose {
				res = svc.PreviewProse(text)
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), res)
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.HTML)
			return nil
		},
	}
	cmd.Flags().BoolVar(&prose, "prose", false, "skip the rewrite rules, as for assistant replies")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print every pipeline stage as JSON")
	return cmd
}

func prepare(cmd *cobra.Command, opts *options, args []string) (*service.MathService, string, error) {
	switch opts.engine {
	case service.MathEngineTeX, service.MathEngineMarkup:
	default:
		return nil, "", fmt.Errorf("unknown engine %q (want tex or markup)", opts.engine)
	}

	level := "warn"
	if opts.verbose {
		level = "debug"
	}
	log := logger.New(cmd.ErrOrStderr(), level, "pretty")

	svc, err := service.NewMathService(opts.rulesFile, opts.engine, log)
	if err != nil {
		return nil, "", err
	}

	text, err := input(cmd.InOrStdin(), args)
	if err != nil {
		return nil, "", err
	}
	return svc, text, nil
}

// input joins args with spaces, or reads all of r when there are none.
func input(r io.Reader, args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
