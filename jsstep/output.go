package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"

	stepper "github.com/dop251/goja_stepper"
	"github.com/dop251/goja_stepper/analyzer"
)

const (
	GrayColor  = "\u001b[38;5;245m"
	GreenColor = "\u001b[32m"
	ResetColor = "\u001b[0m"
)

var numbers = message.NewPrinter(language.English)

// printer writes step and console records as they arrive. Records come from
// the goroutine running the program, but the mutex keeps output whole when
// several runs share a writer.
type printer struct {
	mu      sync.Mutex
	w       io.Writer
	lines   []string
	context int
}

func newPrinter(w io.Writer, src string, context int) *printer {
	return &printer{
		w:       w,
		lines:   strings.Split(strings.TrimSuffix(src, "\n"), "\n"),
		context: context,
	}
}

func (p *printer) step(r stepper.StepRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "%s#%d%s line %d", GrayColor, r.Index, ResetColor, r.Line)
	if len(r.CallStack) > 0 {
		names := make([]string, len(r.CallStack))
		for i, f := range r.CallStack {
			names[i] = f.Name
		}
		fmt.Fprintf(p.w, " in %s", strings.Join(names, " > "))
	}
	if vars := formatVariables(r.Variables); vars != "" {
		fmt.Fprintf(p.w, "  %s", vars)
	}
	fmt.Fprintln(p.w)
	if p.context > 0 {
		io.WriteString(p.w, listing(p.lines, r.Line, p.context))
	}
}

func (p *printer) console(r stepper.ConsoleRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if r.Kind == stepper.ConsoleLog {
		fmt.Fprintln(p.w, r.Message)
		return
	}
	fmt.Fprintf(p.w, "[%s] %s\n", r.Kind, r.Message)
}

// formatVariables renders the variables sorted by name.
func formatVariables(vars map[string]stepper.Variable) string {
	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = name + "=" + formatValue(vars[name])
	}
	return strings.Join(parts, " ")
}

func formatValue(v stepper.Variable) string {
	switch v.Type {
	case stepper.TypeString:
		b, _ := json.Marshal(v.Value)
		return string(b)
	case stepper.TypeUndefined:
		return "undefined"
	case stepper.TypeNull:
		return "null"
	}
	return fmt.Sprint(v.Value)
}

// listing shows the lines within context of the current line, marking it
// with '>'.
func listing(lines []string, current, context int) string {
	var builder strings.Builder
	for idx, contents := range lines {
		lineNumber := idx + 1
		if lineNumber < current-context || lineNumber > current+context {
			continue
		}
		totalPadding := 6
		digitCount := len(fmt.Sprint(lineNumber))
		if digitCount >= totalPadding {
			totalPadding = digitCount + 1
		}
		padding := strings.Repeat(" ", totalPadding-digitCount)
		if lineNumber == current {
			fmt.Fprintf(&builder, "%s>%s %d%s%s\n", GreenColor, ResetColor, lineNumber, padding, contents)
		} else {
			fmt.Fprintf(&builder, "%s  %d%s%s%s\n", GrayColor, lineNumber, padding, contents, ResetColor)
		}
	}
	return builder.String()
}

func writeSummary(w io.Writer, res *stepper.Result) {
	numbers.Fprintf(w, "%s after %d steps in %v\n", res.State, res.Steps, res.Duration.Round(time.Microsecond))
}

func writeReport(w io.Writer, r *analyzer.Report) {
	m := r.Metrics
	numbers.Fprintf(w, "%d lines, %d statements, %d expressions, complexity %d\n",
		m.Lines, m.Statements, m.Expressions, r.Complexity)

	if len(r.Functions) > 0 {
		fmt.Fprintln(w, "\nFunctions:")
		for _, f := range r.Functions {
			name := f.Name
			if name == "" {
				name = "(anonymous)"
			}
			rec := ""
			if f.Recursive {
				rec = ", recursive"
			}
			fmt.Fprintf(w, "  %-20s %s(%s) line %d, complexity %d%s\n",
				name, f.Kind, strings.Join(f.Params, ", "), f.Line, f.Complexity, rec)
		}
	}
	if len(r.Variables) > 0 {
		fmt.Fprintln(w, "\nVariables:")
		for _, v := range r.Variables {
			fmt.Fprintf(w, "  %-20s %s %s, line %d\n", v.Name, v.Scope, v.Kind, v.Line)
		}
	}
	if len(r.Loops) > 0 {
		fmt.Fprintln(w, "\nLoops:")
		for _, l := range r.Loops {
			inf := ""
			if l.Infinite {
				inf = " (infinite)"
			}
			fmt.Fprintf(w, "  %s at line %d%s\n", l.Kind, l.Line, inf)
		}
	}
	if d := r.Dependencies; len(d.Builtins)+len(d.Globals) > 0 {
		fmt.Fprintln(w, "\nDependencies:")
		if len(d.Builtins) > 0 {
			fmt.Fprintf(w, "  builtins: %s\n", strings.Join(d.Builtins, ", "))
		}
		if len(d.Globals) > 0 {
			fmt.Fprintf(w, "  globals:  %s\n", strings.Join(d.Globals, ", "))
		}
	}
	if len(r.Suggestions) > 0 {
		fmt.Fprintln(w, "\nSuggestions:")
		for _, s := range r.Suggestions {
			fmt.Fprintf(w, "  line %d [%s] %s\n", s.Line, s.Severity, s.Message)
		}
	}
}

// encode writes v in one of the structured output formats.
func encode(w io.Writer, v any, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	case "cbor":
		return cbor.NewEncoder(w).Encode(v)
	}
	return fmt.Errorf("unknown output format %q", format)
}
