// Package syntax adapts the goja parser for the analysis and instrumentation
// passes: parsing with line/column errors, node positions and a generic
// depth-first traversal over goja syntax trees.
package syntax

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/file"
	"github.com/dop251/goja/parser"
)

// DefaultName is the file name used by Parse.
const DefaultName = "input.js"

// SyntaxError is returned when the source can not be parsed.
type SyntaxError struct {
	Line    int
	Column  int
	Message string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("SyntaxError: %s (line %d, column %d)", e.Message, e.Line, e.Column)
}

// Position is a 1-based line/column pair plus the 0-based byte offset.
type Position struct {
	Line   int `json:"line" yaml:"line"`
	Column int `json:"column" yaml:"column"`
	Offset int `json:"-" yaml:"-"`
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Span is the source range covered by a node. End is exclusive.
type Span struct {
	Start Position `json:"start" yaml:"start"`
	End   Position `json:"end" yaml:"end"`
}

// Tree is a parsed program. It is never modified after Parse returns.
type Tree struct {
	Name    string
	Source  string
	Program *ast.Program
	File    *file.File
}

// Parse parses src as a script named DefaultName.
func Parse(src string) (*Tree, error) {
	return ParseFile(DefaultName, src)
}

// ParseFile parses src as a script. On failure the returned error is a
// *SyntaxError describing the first problem found.
func ParseFile(name, src string) (*Tree, error) {
	prg, err := parser.ParseFile(nil, name, src, 0, parser.WithDisableSourceMaps)
	if err != nil {
		return nil, newSyntaxError(err)
	}
	return &Tree{
		Name:    name,
		Source:  src,
		Program: prg,
		File:    prg.File,
	}, nil
}

func newSyntaxError(err error) *SyntaxError {
	var list parser.ErrorList
	if errors.As(err, &list) && len(list) > 0 {
		e := list[0]
		return &SyntaxError{
			Line:    e.Position.Line,
			Column:  e.Position.Column,
			Message: e.Message,
		}
	}
	var single *parser.Error
	if errors.As(err, &single) {
		return &SyntaxError{
			Line:    single.Position.Line,
			Column:  single.Position.Column,
			Message: single.Message,
		}
	}
	return &SyntaxError{Message: err.Error()}
}

// Offset converts a node index into a byte offset within Source.
func (t *Tree) Offset(idx file.Idx) int {
	off := int(idx) - t.File.Base()
	if off < 0 {
		return 0
	}
	if off > len(t.Source) {
		return len(t.Source)
	}
	return off
}

// Position resolves a node index.
func (t *Tree) Position(idx file.Idx) Position {
	off := t.Offset(idx)
	p := t.File.Position(off)
	return Position{Line: p.Line, Column: p.Column, Offset: off}
}

// Start is the byte offset n starts at. Use it instead of n.Idx0(): the
// parser leaves IfStatement.If unset, so its Idx0 is always 0.
func (t *Tree) Start(n ast.Node) int {
	if s, ok := n.(*ast.IfStatement); ok && int(s.If) < t.File.Base() {
		return t.ifKeyword(s)
	}
	return t.Offset(n.Idx0())
}

// ifKeyword finds the "if" keyword before the statement's test by scanning
// back over parentheses, white space and comments.
func (t *Tree) ifKeyword(s *ast.IfStatement) int {
	src := t.Source
	test := t.Start(s.Test)
	i := test
	for i > 0 {
		switch c := src[i-1]; {
		case c == '(' || c == ' ' || c == '\t' || c == '\r' || c == '\n':
			i--
			continue
		case c == '/' && i >= 2 && src[i-2] == '*':
			if open := strings.LastIndex(src[:i-2], "/*"); open >= 0 {
				i = open
				continue
			}
		}
		break
	}
	if isKeywordAt(src, i-2, "if") {
		return i - 2
	}
	// a line comment sits between the keyword and the test
	for j := strings.LastIndex(src[:test], "if"); j >= 0; j = strings.LastIndex(src[:j], "if") {
		if isKeywordAt(src, j, "if") {
			return j
		}
	}
	return test
}

func isKeywordAt(src string, i int, kw string) bool {
	if i < 0 || !strings.HasPrefix(src[i:], kw) {
		return false
	}
	ident := func(c byte) bool {
		return c == '_' || c == '$' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
	}
	if i > 0 && ident(src[i-1]) {
		return false
	}
	end := i + len(kw)
	return end >= len(src) || !ident(src[end])
}

// StartPosition resolves the start of n.
func (t *Tree) StartPosition(n ast.Node) Position {
	off := t.Start(n)
	p := t.File.Position(off)
	return Position{Line: p.Line, Column: p.Column, Offset: off}
}

// Span returns the source range of n.
func (t *Tree) Span(n ast.Node) Span {
	return Span{Start: t.StartPosition(n), End: t.Position(n.Idx1())}
}

// Line is the 1-based line n starts on.
func (t *Tree) Line(n ast.Node) int {
	return t.StartPosition(n).Line
}

// Text returns the source text of n.
func (t *Tree) Text(n ast.Node) string {
	return t.Source[t.Start(n):t.Offset(n.Idx1())]
}

// LastLine is the line the last statement of the program ends on, 0 for an
// empty program.
func (t *Tree) LastLine() int {
	if len(t.Program.Body) == 0 {
		return 0
	}
	end := t.Offset(t.Program.Body[len(t.Program.Body)-1].Idx1())
	// Idx1 is exclusive; step back so a trailing newline does not count.
	if end > 0 {
		end--
	}
	return t.File.Position(end).Line
}

// Kind returns the goja type name of a node, e.g. "IfStatement".
func Kind(n ast.Node) string {
	if n == nil {
		return "nil"
	}
	s := fmt.Sprintf("%T", n)
	if i := strings.LastIndexByte(s, '.'); i >= 0 {
		s = s[i+1:]
	}
	return s
}

// BoundNames returns the identifiers bound by a declaration target, walking
// array and object patterns.
func BoundNames(target ast.Expression) []string {
	var names []string
	var collect func(e ast.Expression)
	collect = func(e ast.Expression) {
		switch e := e.(type) {
		case *ast.Identifier:
			names = append(names, e.Name.String())
		case *ast.ArrayPattern:
			for _, el := range e.Elements {
				if el != nil {
					collect(el)
				}
			}
			if e.Rest != nil {
				collect(e.Rest)
			}
		case *ast.ObjectPattern:
			for _, prop := range e.Properties {
				switch prop := prop.(type) {
				case *ast.PropertyShort:
					names = append(names, prop.Name.Name.String())
				case *ast.PropertyKeyed:
					collect(prop.Value)
				case *ast.SpreadElement:
					collect(prop.Expression)
				}
			}
			if e.Rest != nil {
				collect(e.Rest)
			}
		case *ast.AssignExpression:
			collect(e.Left)
		case *ast.SpreadElement:
			collect(e.Expression)
		}
	}
	if target != nil {
		collect(target)
	}
	return names
}

// IsDirective reports whether s is a string literal expression statement,
// the building block of a directive prologue such as "use strict".
func IsDirective(s ast.Statement) bool {
	es, ok := s.(*ast.ExpressionStatement)
	if !ok {
		return false
	}
	_, ok = es.Expression.(*ast.StringLiteral)
	return ok
}

// Directives returns the number of leading directive statements in list.
func Directives(list []ast.Statement) int {
	n := 0
	for _, s := range list {
		if !IsDirective(s) {
			break
		}
		n++
	}
	return n
}
