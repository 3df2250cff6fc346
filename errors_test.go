package stepper

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFrames(t *testing.T) {
	stack := "ReferenceError: x is not defined\n" +
		"\tat inner (instrumented.js:3:10(4))\n" +
		"\tat native\n" +
		"\tat instrumented.js:7:1(12)\n"
	assert.Equal(t, []stackFrame{
		{fn: "inner", line: 3, col: 10},
		{fn: "", line: 7, col: 1},
	}, frames(stack))
	assert.Empty(t, frames("Error: boom"))
}

func TestCodeFrame(t *testing.T) {
	src := "a\nb\nc\nd\ne\nf\ng\nh\ni\nj"
	got := codeFrame(src, 10, 1)
	assert.Equal(t, "   7 │ g\n   8 │ h\n   9 │ i\n→ 10 │ j\n     │ ^", got)

	got = codeFrame("let x = y;", 1, 9)
	assert.Equal(t, "→ 1 │ let x = y;\n    │         ^", got)

	assert.Empty(t, codeFrame("x", 5, 1))
	assert.Empty(t, codeFrame("x", 0, 0))
}

func TestSuggestions(t *testing.T) {
	assert.Equal(t, []string{
		"Did you mean 'console'?",
		"Check if 'cosole' is spelled correctly",
		"Make sure 'cosole' is declared before it is used",
	}, suggestions("ReferenceError", "cosole is not defined"))

	s := suggestions("ReferenceError", "Foo is not defined")
	assert.Contains(t, s, "JavaScript is case-sensitive. Did you mean 'foo'?")

	assert.NotEmpty(t, suggestions("TypeError", "x.y is not a function"))
	assert.NotEmpty(t, suggestions("RangeError", "Maximum call stack size exceeded"))
	assert.Empty(t, suggestions("Error", "boom"))
}

func TestRuntimeErrorMessage(t *testing.T) {
	e := &RuntimeError{Name: "TypeError", Message: "bad", Line: 2, Column: 5}
	assert.Equal(t, "TypeError: bad (line 2, column 5)", e.Error())
	e.Line = 0
	assert.Equal(t, "TypeError: bad", e.Error())
}
