package mathtext

import "regexp"

// greekLetters are rewritten to their LaTeX command when they appear as
// standalone words.
var greekLetters = []string{
	"alpha", "beta", "gamma", "delta", "epsilon", "zeta", "theta", "kappa",
	"lambda", "mu", "rho", "sigma", "tau", "phi", "psi", "omega",
	"Gamma", "Delta", "Theta", "Lambda", "Sigma", "Phi", "Psi", "Omega",
}

// DefaultRules returns a fresh copy of the built-in substitution table.
// Order matters: exponent and subscript rules run before the function and
// operator rules, and `<=>` runs before `<=`.
func DefaultRules() []Rule {
	rules := []Rule{
		// ─── Exponents ──────────────────────────────────────────────────
		NewRule("exponent-braced", `(\w+)\^\{(\d+)\}`, `${1}^{${2}}`, false),
		NewRule("exponent-digits", `(\w+)\^(\d+)`, `${1}^{${2}}`, false),
		NewRule("exponent-negative", `(\w+)\^(-\d+)`, `${1}^{${2}}`, false),
		NewRule("exponent-letter", `(\w+)\^([a-zA-Z])\b`, `${1}^{${2}}`, false),

		// ─── Subscripts ─────────────────────────────────────────────────
		NewRule("subscript-braced", `(\w+)_\{(\w+)\}`, `${1}_{${2}}`, false),
		NewRule("subscript-digits", `(\w+)_(\d+)`, `${1}_{${2}}`, false),

		// ─── Roots ──────────────────────────────────────────────────────
		NewRule("root-nth-latex", `\\sqrt\[(\d+)\]\{([^}]+)\}`, `\sqrt[${1}]{${2}}`, false),
		NewRule("root-nth", `\bsqrt\[(\d+)\]\(([^)]+)\)`, `\sqrt[${1}]{${2}}`, true),
		NewRule("root-square", `\bsqrt\(([^)]+)\)`, `\sqrt{${1}}`, true),
		NewRule("root-cube", `\bcbrt\(([^)]+)\)`, `\sqrt[3]{${1}}`, true),

		// ─── Fractions ──────────────────────────────────────────────────
		NewRule("fraction-latex", `\\frac\{([^}]+)\}\{([^}]+)\}`, `\frac{${1}}{${2}}`, false),
		NewRule("fraction-digits", `(\d+)/(\d+)`, `\frac{${1}}{${2}}`, false),
		NewRule("fraction-groups", `\(([^)]+)\)/\(([^)]+)\)`, `\frac{${1}}{${2}}`, false),

		// ─── Functions ──────────────────────────────────────────────────
		NewRule("function-sin", `\bsin\(([^)]+)\)`, `\sin(${1})`, true),
		NewRule("function-cos", `\bcos\(([^)]+)\)`, `\cos(${1})`, true),
		NewRule("function-tan", `\btan\(([^)]+)\)`, `\tan(${1})`, true),
		NewRule("function-log", `\blog\(([^)]+)\)`, `\log(${1})`, true),
		NewRule("function-ln", `\bln\(([^)]+)\)`, `\ln(${1})`, true),

		// ─── Calculus ───────────────────────────────────────────────────
		NewRule("integral", `\bint\(([^)]+)\)`, `\int ${1} \, dx`, true),
		NewRule("derivative", `\bd/dx\(([^)]+)\)`, `\frac{d}{dx}(${1})`, false),
		NewRule("limit", `\blim\(([^)]+)\)`, `\lim_{${1}}`, true),
		NewRule("sum", `\bsum\(([^)]+)\)`, `\sum_{${1}}`, true),
		NewRule("product", `\bprod\(([^)]+)\)`, `\prod_{${1}}`, true),

		// ─── Constants ──────────────────────────────────────────────────
		NewRule("constant-infinity", `\binfinity\b`, `\infty`, true),
		NewRule("constant-inf", `\binf\b`, `\infty`, true),
		NewRule("constant-pi", `\bpi\b`, `\pi`, true),
	}

	for _, name := range greekLetters {
		rules = append(rules, NewRule("greek-"+name, `\b`+name+`\b`, `\`+name, true))
	}

	rules = append(rules,
		// ─── Comparison & arithmetic ────────────────────────────────────
		NewRule("arrow-both", `<=> ?`, `\leftrightarrow `, false),
		NewRule("compare-leq", `<= ?`, `\leq `, false),
		NewRule("compare-geq", `>= ?`, `\geq `, false),
		NewRule("compare-neq", `!= ?`, `\neq `, false),
		NewRule("compare-leq-symbol", `≤ ?`, `\leq `, false),
		NewRule("compare-geq-symbol", `≥ ?`, `\geq `, false),
		NewRule("compare-neq-symbol", `≠ ?`, `\neq `, false),
		NewRule("plus-minus", `± ?`, `\pm `, false),
		NewRule("minus-plus", `∓ ?`, `\mp `, false),
		NewRule("times", `× ?`, `\times `, false),
		NewRule("divide", `÷ ?`, `\div `, false),
		NewRule("infinity-symbol", `∞ ?`, `\infty `, false),

		// ─── Arrows ─────────────────────────────────────────────────────
		NewRule("arrow-right", `-> ?`, `\rightarrow `, false),
		NewRule("arrow-left", `<- ?`, `\leftarrow `, false),

		// ─── Sets ───────────────────────────────────────────────────────
		NewRule("set-in", `\bin\b`, `\in`, true),
		NewRule("set-notin", `\bnotin\b`, `\notin`, true),
		NewRule("set-subset", `\bsubset\b`, `\subset`, true),
		NewRule("set-supset", `\bsupset\b`, `\supset`, true),
		NewRule("set-union", `\bunion\b`, `\cup`, true),
		NewRule("set-intersection", `\bintersection\b`, `\cap`, true),
	)

	return rules
}

// DefaultIndicators returns the heuristics that decide whether undelimited
// text is math and should be wrapped.
func DefaultIndicators() []*regexp.Regexp {
	return []*regexp.Regexp{
		regexp.MustCompile(`\^\{?-?\w+\}?`),
		regexp.MustCompile(`_\{?\w+\}?`),
		regexp.MustCompile(`\\[a-zA-Z]+`),
		regexp.MustCompile(`\\frac`),
		regexp.MustCompile(`\\sqrt`),
		regexp.MustCompile(`\\sum|\\prod|\\int`),
		regexp.MustCompile(`\\alpha|\\beta|\\gamma|\\delta`),
		regexp.MustCompile(`\\leq|\\geq|\\neq`),
		regexp.MustCompile(`\\infty|\\pi`),
		regexp.MustCompile(`\d+/\d+`),
		regexp.MustCompile(`[a-zA-Z]\d+`),
		regexp.MustCompile(`\d+[a-zA-Z]`),
	}
}
