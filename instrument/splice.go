package instrument

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dop251/goja/ast"

	"github.com/dop251/goja_stepper/syntax"
)

// Splicer produces the instrumented program by inserting hook calls into the
// original text at node offsets. Everything that is not an insertion is
// copied byte for byte, so the output keeps the author's formatting.
type Splicer struct{}

func (Splicer) Strategy() Strategy {
	return StrategySplice
}

// Insertion ranks for text inserted at the same offset. Ranks below
// rankOpen close constructs and are applied innermost first.
const (
	rankCapture = iota
	rankWrapClose
	rankFrameClose
	rankOpen
	rankWrapOpen
	rankStep
)

type insertion struct {
	off  int
	rank int
	seq  int
	text string
}

// Generate splices the plan's hook calls into the original text and checks
// that the result parses.
func (Splicer) Generate(p *Plan) (*Output, error) {
	sp := &splicer{p: p, t: p.Tree}
	syntax.Inspect(p.Tree.Program, sp.visit)
	sort.SliceStable(sp.ins, func(i, j int) bool {
		a, b := sp.ins[i], sp.ins[j]
		if a.off != b.off {
			return a.off < b.off
		}
		if a.rank != b.rank {
			return a.rank < b.rank
		}
		if a.rank < rankOpen {
			return a.seq > b.seq
		}
		return a.seq < b.seq
	})
	out := sp.emit()
	if _, err := syntax.ParseFile(GeneratedName, out.Source); err != nil {
		return nil, &InstrumentationError{Strategy: StrategySplice, Err: err}
	}
	return out, nil
}

type splicer struct {
	p   *Plan
	t   *syntax.Tree
	ins []insertion
}

func (sp *splicer) insert(off, rank int, text string) {
	sp.ins = append(sp.ins, insertion{off: off, rank: rank, seq: len(sp.ins), text: text})
}

func (sp *splicer) visit(n ast.Node) bool {
	if n == nil {
		return false
	}
	switch n := n.(type) {
	case *ast.FunctionLiteral:
		sp.frame(n, n.Body)
	case *ast.ArrowFunctionLiteral:
		if body, ok := n.Body.(*ast.BlockStatement); ok {
			sp.frame(n, body)
		}
	}
	if s, ok := n.(ast.Statement); ok {
		sp.statement(s)
	}
	return true
}

func (sp *splicer) statement(s ast.Statement) {
	p := sp.p
	site, stepped := p.Step(s)
	caps := p.CapturesAfter(s)
	bodyCaps := p.BodyCaptures(s)

	if p.Wrapped(s) {
		open := "{" + captureCalls(bodyCaps)
		if stepped {
			open += stepCall(site)
		}
		sp.insert(sp.t.Start(s), rankWrapOpen, open)
		closing := "}"
		if len(caps) > 0 {
			closing = ";" + captureCalls(caps) + "}"
		}
		sp.insert(sp.end(s), rankWrapClose, closing)
		return
	}
	if block, ok := s.(*ast.BlockStatement); ok && len(bodyCaps) > 0 {
		sp.insert(sp.t.Offset(block.LeftBrace)+1, rankOpen, captureCalls(bodyCaps))
	}
	if stepped {
		sp.insert(sp.t.Start(s), rankStep, stepCall(site))
	}
	if len(caps) > 0 {
		sp.insert(sp.end(s), rankCapture, ";"+captureCalls(caps))
	}
}

func (sp *splicer) frame(fn ast.Node, body *ast.BlockStatement) {
	f, ok := sp.p.Frame(fn)
	if !ok || body == nil {
		return
	}
	open := sp.t.Offset(body.LeftBrace) + 1
	if n := syntax.Directives(body.List); n > 0 {
		open = sp.end(body.List[n-1])
	}
	sp.insert(open, rankOpen, enterCall(f)+captureCalls(f.Params)+"try {")
	sp.insert(sp.t.Offset(body.RightBrace), rankFrameClose, "} finally { "+ExitHook+"(); }")
}

// end is the offset just past s, including a terminating semicolon that the
// node's own range leaves out.
func (sp *splicer) end(s ast.Statement) int {
	src := sp.t.Source
	end := sp.t.Offset(s.Idx1())
	if dw, ok := s.(*ast.DoWhileStatement); ok {
		// the test's own parentheses are not part of the tree
		end = sp.t.Offset(dw.Test.Idx1())
		for i := skipSpace(src, end); i < len(src) && src[i] == ')'; i = skipSpace(src, i) {
			i++
			end = i
		}
	}
	i := skipSpace(src, end)
	if i < len(src) && src[i] == ';' {
		return i + 1
	}
	return end
}

func skipSpace(src string, i int) int {
	for i < len(src) {
		switch src[i] {
		case ' ', '\t', '\r', '\n':
			i++
		default:
			return i
		}
	}
	return i
}

func (sp *splicer) emit() *Output {
	src := sp.t.Source
	lines := newLineIndex(src)
	sm := &sourceMap{file: GeneratedName, source: sp.t.Name, content: src}
	var w genWriter
	prev := 0
	copyTo := func(to int) {
		for prev < to {
			l, c := lines.position(prev)
			sm.add(w.line, w.col, l, c)
			next := to
			if nl := strings.IndexByte(src[prev:to], '\n'); nl >= 0 {
				next = prev + nl + 1
			}
			w.WriteString(src[prev:next])
			prev = next
		}
	}
	for _, in := range sp.ins {
		copyTo(in.off)
		l, c := lines.position(in.off)
		sm.add(w.line, w.col, l, c)
		w.WriteString(in.text)
	}
	copyTo(len(src))
	l, c := lines.position(len(src))
	sm.add(w.line, w.col, l, c)
	return &Output{Source: w.String(), sourceMap: sm}
}

func stepCall(s Site) string {
	return fmt.Sprintf("%s(%d, %d);", StepHook, s.ID, s.Line)
}

func captureCalls(names []string) string {
	var b strings.Builder
	for _, name := range names {
		fmt.Fprintf(&b, "%s(%q, %s);", CaptureHook, name, name)
	}
	return b.String()
}

func enterCall(f *Frame) string {
	return fmt.Sprintf("%s(%q, %s);", EnterHook, f.Name, f.Args)
}
