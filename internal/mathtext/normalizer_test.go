package mathtext

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"plain text untouched", "Hello world", "Hello world"},
		{"exponent and root become display math", "x^2 + sqrt(9) = 5", `$$x^{2} + \sqrt{9} = 5$$`},
		{"short exponent is inline", "x^2", "$x^{2}$"},
		{"negative exponent", "10^-3", "$10^{-3}$"},
		{"subscript", "a_1 + a_2", "$a_{1} + a_{2}$"},
		{"fraction forces display", "1/2", `$$\frac{1}{2}$$`},
		{"cube root", "cbrt(8)", `$$\sqrt[3]{8}$$`},
		{"integral", "int(x^2)", `$\int x^{2} \, dx$`},
		{"comparison keeps spacing", "x<=y", `$x\leq y$`},
		{"biconditional before leq", "a <=> b", `$a \leftrightarrow b$`},
		{"existing delimiters kept", "$x^2$", "$x^{2}$"},
		{"escaped command not doubled", `$\pi r^2$`, `$\pi r^{2}$`},
		{"split coefficient repaired", "$27x$^{6}", "$27x^{6}$"},
		{"dollar runs collapse to display", "$$$x$$$", "$$x$$"},
		{"full width folded", "ｘ＾２", "$x^{2}$"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestNormalizeIdempotentWhenDelimited(t *testing.T) {
	inputs := []string{
		"$x^2$",
		"Find $2a$ and more",
		"$$x^{2} + \\sqrt{9} = 5$$",
		"Solve $x^2=4$ now",
		"$\\frac{1}{2}$ of $a_1$",
		"cost is \\$5 and $y<=3$",
		"$27x$^{6}",
		"$a$ $ $ $b$",
	}

	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "input %q", in)
	}
}

func TestNormalizeRecoversFromPanic(t *testing.T) {
	n := New(WithRules([]Rule{{Name: "broken"}}))
	assert.Equal(t, "x^2", n.Normalize("x^2"))
}

func TestRepairSpecialCases(t *testing.T) {
	assert.Equal(t, "27x^{6}", RepairSpecialCases("$27x$^6"))
	assert.Equal(t, "27x", RepairSpecialCases("$27x$"))
	assert.Equal(t, "a  b", RepairSpecialCases("a $ $ b"))
	assert.Equal(t, "a  b", RepairSpecialCases("a $$  $$ b"))
	assert.Equal(t, "$a$ $b$", RepairSpecialCases("$a$ $b$"))
	assert.Equal(t, "open $ only", RepairSpecialCases("open $ only"))
}

func TestClean(t *testing.T) {
	assert.Equal(t, "a b", Clean("  a   $ $  b  "))
	assert.Equal(t, "$$x$$ y", Clean("$$$$x$$$\n\ty"))
}

func TestRuleSkipEscaped(t *testing.T) {
	r := NewRule("pi", `\bpi\b`, `\pi`, true)
	assert.Equal(t, `\pi and \pi`, r.Apply(`pi and \pi`))

	plain := NewRule("pi", `\bpi\b`, `\pi`, false)
	assert.Equal(t, `\pi and \\pi`, plain.Apply(`pi and \pi`))
}

func TestDefaultRulesAreOrdered(t *testing.T) {
	index := make(map[string]int)
	for i, r := range DefaultRules() {
		_, dup := index[r.Name]
		require.False(t, dup, "duplicate rule name %s", r.Name)
		index[r.Name] = i
	}

	assert.Less(t, index["arrow-both"], index["compare-leq"])
	assert.Less(t, index["exponent-digits"], index["integral"])
	assert.Less(t, index["subscript-digits"], index["set-in"])
}

func TestIsMath(t *testing.T) {
	n := New()
	assert.True(t, n.IsMath("3x"))
	assert.True(t, n.IsMath(`\alpha`))
	assert.True(t, n.IsMath("3/4"))
	assert.False(t, n.IsMath("What is the capital?"))
}
