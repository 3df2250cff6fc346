package stepper

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/dlclark/regexp2"
	"github.com/dop251/goja"

	"github.com/dop251/goja_stepper/instrument"
)

var (
	// ErrBusy is returned when a run is requested while another is active.
	ErrBusy = errors.New("engine is busy")
	// ErrStopped is the abort cause of a run ended by Stop or by its context.
	ErrStopped = errors.New("execution stopped")
	// ErrStepLimit is the abort cause of a run that reached Options.MaxSteps.
	ErrStepLimit = errors.New("step limit exceeded")
	// ErrTimeout is the abort cause of a run that exceeded Options.Timeout.
	ErrTimeout = errors.New("execution timed out")
)

// RuntimeError is an exception that escaped the program, located in the
// original source.
type RuntimeError struct {
	Name    string
	Message string
	// Line and Column are 1-based positions in the original source, zero
	// when the throw site could not be mapped.
	Line   int
	Column int
	// Stack lists the JavaScript frames, outermost last, with positions
	// mapped to the original source.
	Stack       string
	Suggestions []string

	codeFrame string
}

func (e *RuntimeError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s: %s (line %d, column %d)", e.Name, e.Message, e.Line, e.Column)
	}
	return e.Name + ": " + e.Message
}

// CodeFrame shows the source lines around the throw site.
func (e *RuntimeError) CodeFrame() string {
	return e.codeFrame
}

// Detail is the long form used by the CLI: message, code frame, suggestions
// and stack.
func (e *RuntimeError) Detail() string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s: %s\n", e.Name, e.Message)
	if e.codeFrame != "" {
		buf.WriteString("\n")
		buf.WriteString(e.codeFrame)
		buf.WriteString("\n")
	}
	if len(e.Suggestions) > 0 {
		buf.WriteString("\nSuggestions:\n")
		for i, s := range e.Suggestions {
			fmt.Fprintf(&buf, "   %d. %s\n", i+1, s)
		}
	}
	if e.Stack != "" {
		buf.WriteString("\nStack trace:\n")
		buf.WriteString(e.Stack)
	}
	return buf.String()
}

var stackFrameRe = regexp2.MustCompile(`at (?:(\S+) \()?`+regexp2.Escape(instrument.GeneratedName)+`:(\d+):(\d+)`, regexp2.None)

type stackFrame struct {
	fn        string
	line, col int
}

// frames extracts the generated-code positions from an exception's stack.
func frames(stack string) []stackFrame {
	var out []stackFrame
	m, _ := stackFrameRe.FindStringMatch(stack)
	for m != nil {
		g := m.Groups()
		line, _ := strconv.Atoi(g[2].String())
		col, _ := strconv.Atoi(g[3].String())
		out = append(out, stackFrame{fn: g[1].String(), line: line, col: col})
		m, _ = stackFrameRe.FindNextMatch(m)
	}
	return out
}

func newRuntimeError(ex *goja.Exception, prog *instrument.Result) *RuntimeError {
	e := &RuntimeError{Name: "Error", Message: ex.Error()}
	switch v := ex.Value().(type) {
	case *goja.Object:
		if n := v.Get("name"); n != nil && !goja.IsUndefined(n) {
			e.Name = n.String()
		}
		if m := v.Get("message"); m != nil && !goja.IsUndefined(m) {
			e.Message = m.String()
		} else {
			e.Message = v.String()
		}
	case nil:
	default:
		// throw of a primitive
		e.Name = "Uncaught"
		e.Message = v.String()
	}

	var stack strings.Builder
	for _, f := range frames(ex.String()) {
		line, col, ok := prog.OriginalPosition(f.line, f.col)
		if !ok {
			continue
		}
		if e.Line == 0 {
			e.Line, e.Column = line, col
		}
		fn := f.fn
		if fn == "" {
			fn = "<anonymous>"
		}
		fmt.Fprintf(&stack, "  at %s (%s:%d:%d)\n", fn, prog.Tree.Name, line, col)
	}
	e.Stack = stack.String()
	e.codeFrame = codeFrame(prog.Tree.Source, e.Line, e.Column)
	e.Suggestions = suggestions(e.Name, e.Message)
	return e
}

// codeFrame renders three lines of context on each side of line with a
// marker and a caret under col.
func codeFrame(src string, line, col int) string {
	lines := strings.Split(src, "\n")
	if line <= 0 || line > len(lines) {
		return ""
	}
	start := max(line-3, 1)
	end := min(line+3, len(lines))
	width := len(strconv.Itoa(end))

	var buf bytes.Buffer
	for n := start; n <= end; n++ {
		text := lines[n-1]
		if n != line {
			fmt.Fprintf(&buf, "  %*d │ %s\n", width, n, text)
			continue
		}
		fmt.Fprintf(&buf, "→ %*d │ %s\n", width, n, text)
		if col > 0 && col <= len(text)+1 {
			fmt.Fprintf(&buf, "  %s │ %s^\n", strings.Repeat(" ", width), strings.Repeat(" ", col-1))
		}
	}
	return strings.TrimRight(buf.String(), "\n")
}

func suggestions(name, msg string) []string {
	lower := strings.ToLower(msg)
	switch strings.ToLower(name) {
	case "referenceerror":
		if strings.Contains(lower, "is not defined") {
			return variableSuggestions(strings.Fields(msg)[0])
		}
	case "typeerror":
		switch {
		case strings.Contains(lower, "is not a function"):
			return []string{
				"Check if the variable is defined before calling it",
				"Verify that you're calling the correct method name",
			}
		case strings.Contains(lower, "cannot read property"):
			return []string{
				"Check if the object exists before accessing its properties",
				"Use optional chaining (?.) to safely access nested properties",
			}
		case strings.Contains(lower, "assignment to constant"):
			return []string{"Declare the variable with let if it needs to change"}
		}
	case "rangeerror":
		if strings.Contains(lower, "maximum call stack") {
			return []string{
				"Check for infinite recursion in your functions",
				"Add a base case to recursive functions",
			}
		}
	}
	return nil
}

func variableSuggestions(name string) []string {
	var out []string
	switch name {
	case "cosole", "consol", "conosle":
		out = append(out, "Did you mean 'console'?")
	}
	if name != "" && unicode.IsUpper(rune(name[0])) {
		out = append(out, fmt.Sprintf("JavaScript is case-sensitive. Did you mean '%s'?",
			strings.ToLower(name[:1])+name[1:]))
	}
	return append(out,
		fmt.Sprintf("Check if '%s' is spelled correctly", name),
		fmt.Sprintf("Make sure '%s' is declared before it is used", name))
}
