// Package analyzer extracts functions, variables, loops, conditionals,
// dependencies, complexity figures and lint-style suggestions from a parsed
// program. The checks are syntactic: recursion and infinite loops are
// detected with simple name and literal matching, not data flow.
package analyzer

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/token"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/dop251/goja_stepper/syntax"
)

// ComplexityThreshold is the function complexity above which a high
// severity suggestion is emitted.
const ComplexityThreshold = 10

var tracer = otel.Tracer("github.com/dop251/goja_stepper/analyzer")

// AnalyzeSource parses src and analyzes it. Parse failures are returned as
// *syntax.SyntaxError.
func AnalyzeSource(ctx context.Context, src string) (*Report, error) {
	_, span := tracer.Start(ctx, "analyzer.AnalyzeSource")
	defer span.End()

	tree, err := syntax.Parse(src)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	r := Analyze(tree)
	span.SetAttributes(
		attribute.Int("complexity", r.Complexity),
		attribute.Int("suggestions", len(r.Suggestions)),
	)
	return r, nil
}

// Analyze walks tree once and builds a Report. The tree is not modified.
func Analyze(tree *syntax.Tree) *Report {
	v := &visitor{
		tree: tree,
		r: &Report{
			Complexity: 1,
			Dependencies: Dependencies{
				Builtins: []string{},
				Globals:  []string{},
				Imports:  []Import{},
			},
		},
		declared: make(map[string]bool),
	}
	syntax.Inspect(tree.Program, v.visit)
	v.finish()
	return v.r
}

type funcFrame struct {
	node  ast.Node
	body  *ast.BlockStatement
	index int
	name  string
}

type call struct {
	name string
	line int
}

type visitor struct {
	tree     *syntax.Tree
	r        *Report
	stack    []ast.Node
	funcs    []*funcFrame
	declared map[string]bool
	calls    []call
}

func (v *visitor) pos(n ast.Node) syntax.Position {
	return v.tree.StartPosition(n)
}

func (v *visitor) parent() ast.Node {
	if len(v.stack) < 2 {
		return nil
	}
	return v.stack[len(v.stack)-2]
}

func (v *visitor) visit(n ast.Node) bool {
	if n == nil {
		v.leave(v.stack[len(v.stack)-1])
		v.stack = v.stack[:len(v.stack)-1]
		return false
	}
	v.stack = append(v.stack, n)
	v.r.Metrics.count(n)

	switch n := n.(type) {
	case *ast.FunctionLiteral:
		v.enterFunction(n, v.functionKind(), v.functionName(n), n.ParameterList, n.Body)
	case *ast.ArrowFunctionLiteral:
		body, _ := n.Body.(*ast.BlockStatement)
		v.enterFunction(n, "arrow", "arrow function", n.ParameterList, body)

	case *ast.IfStatement:
		v.branch()
		pos := v.pos(n)
		_, elseIf := n.Alternate.(*ast.IfStatement)
		v.r.Conditionals = append(v.r.Conditionals, Conditional{
			Kind:       "if",
			Line:       pos.Line,
			Column:     pos.Column,
			HasElse:    n.Alternate != nil,
			ElseIf:     elseIf,
			Complexity: conditionComplexity(n.Test),
		})
	case *ast.ConditionalExpression:
		v.branch()
		pos := v.pos(n)
		v.r.Conditionals = append(v.r.Conditionals, Conditional{
			Kind:       "ternary",
			Line:       pos.Line,
			Column:     pos.Column,
			Complexity: conditionComplexity(n.Test),
		})
	case *ast.SwitchStatement:
		pos := v.pos(n)
		c := Conditional{Kind: "switch", Line: pos.Line, Column: pos.Column, Cases: len(n.Body)}
		for _, cs := range n.Body {
			if cs.Test == nil {
				c.HasDefault = true
			}
		}
		v.r.Conditionals = append(v.r.Conditionals, c)
	case *ast.CaseStatement:
		if n.Test != nil {
			v.branch()
		}
	case *ast.CatchStatement:
		v.branch()
		if n.Parameter != nil {
			v.declare(syntax.BoundNames(n.Parameter)...)
		}
	case *ast.BinaryExpression:
		if n.Operator == token.LOGICAL_AND || n.Operator == token.LOGICAL_OR {
			v.branch()
		}

	case *ast.WhileStatement:
		v.branch()
		v.loop(n, Loop{Kind: "while", Infinite: isTrue(n.Test)})
	case *ast.DoWhileStatement:
		v.branch()
		v.loop(n, Loop{Kind: "do-while"})
	case *ast.ForStatement:
		v.branch()
		v.loop(n, Loop{
			Kind:      "for",
			HasInit:   n.Initializer != nil,
			HasTest:   n.Test != nil,
			HasUpdate: n.Update != nil,
			Infinite:  n.Test == nil || isTrue(n.Test),
		})
		if init, ok := n.Initializer.(*ast.ForLoopInitializerVarDeclList); ok {
			v.varDeclaration(n, init.List)
		}
	case *ast.ForInStatement:
		v.branch()
		v.loop(n, Loop{Kind: "for-in"})
		v.forInto(n, n.Into)
	case *ast.ForOfStatement:
		v.branch()
		v.loop(n, Loop{Kind: "for-of"})
		v.forInto(n, n.Into)

	case *ast.VariableStatement:
		v.varDeclaration(n, n.List)
	case *ast.LexicalDeclaration:
		kind := n.Token.String()
		scope := v.lexicalScope()
		for _, b := range n.List {
			v.variable(b.Target, kind, scope, b.Initializer != nil)
		}
	case *ast.ClassLiteral:
		if n.Name != nil {
			v.declare(n.Name.Name.String())
			v.checkName(n.Name.Name.String(), v.pos(n.Name).Line)
		}

	case *ast.AssignExpression:
		if id, ok := n.Left.(*ast.Identifier); ok {
			v.reassign(id.Name.String())
		}
	case *ast.UnaryExpression:
		if n.Operator == token.INCREMENT || n.Operator == token.DECREMENT {
			if id, ok := n.Operand.(*ast.Identifier); ok {
				v.reassign(id.Name.String())
			}
		}

	case *ast.CallExpression:
		v.callee(n.Callee, v.pos(n).Line)
	case *ast.NewExpression:
		if id, ok := n.Callee.(*ast.Identifier); ok && isGlobalObject(id.Name.String()) {
			v.r.Dependencies.Globals = appendUnique(v.r.Dependencies.Globals, id.Name.String())
		}
	}
	return true
}

func (v *visitor) leave(n ast.Node) {
	if len(v.funcs) == 0 || v.funcs[len(v.funcs)-1].node != n {
		return
	}
	fr := v.funcs[len(v.funcs)-1]
	v.funcs = v.funcs[:len(v.funcs)-1]
	fn := v.r.Functions[fr.index]
	if fn.Complexity > ComplexityThreshold {
		v.suggest(Suggestion{
			Kind:     "warning",
			Severity: SeverityHigh,
			Message:  fmt.Sprintf("Function '%s' has high complexity. Consider breaking it down.", fn.Name),
			Line:     fn.Line,
		})
	}
}

// branch adds one decision point to the program and to every enclosing
// function.
func (v *visitor) branch() {
	v.r.Complexity++
	for _, fr := range v.funcs {
		v.r.Functions[fr.index].Complexity++
	}
}

func (v *visitor) functionKind() string {
	switch p := v.parent().(type) {
	case *ast.FunctionDeclaration:
		return "declaration"
	case *ast.MethodDefinition:
		return "method"
	case *ast.PropertyKeyed:
		if p.Kind != ast.PropertyKindValue {
			return "method"
		}
	}
	return "expression"
}

func (v *visitor) functionName(n *ast.FunctionLiteral) string {
	if n.Name != nil {
		return n.Name.Name.String()
	}
	switch p := v.parent().(type) {
	case *ast.MethodDefinition:
		if name := keyName(p.Key); name != "" {
			return name
		}
	case *ast.PropertyKeyed:
		if p.Kind != ast.PropertyKindValue {
			if name := keyName(p.Key); name != "" {
				return name
			}
		}
	}
	return "anonymous"
}

func keyName(key ast.Expression) string {
	switch k := key.(type) {
	case *ast.StringLiteral:
		return k.Value.String()
	case *ast.Identifier:
		return k.Name.String()
	}
	return ""
}

func (v *visitor) enterFunction(n ast.Node, kind, name string, params *ast.ParameterList, body *ast.BlockStatement) {
	pos := v.pos(n)
	fn := Function{
		Kind:       kind,
		Name:       name,
		Params:     paramNames(params),
		Line:       pos.Line,
		Column:     pos.Column,
		Complexity: 1,
	}
	v.declare(fn.Params...)
	for _, p := range fn.Params {
		v.checkName(p, pos.Line)
	}
	if lit, ok := n.(*ast.FunctionLiteral); ok && lit.Name != nil {
		v.declare(name)
		v.checkName(name, pos.Line)
	} else {
		name = ""
	}
	v.r.Functions = append(v.r.Functions, fn)
	v.funcs = append(v.funcs, &funcFrame{
		node:  n,
		body:  body,
		index: len(v.r.Functions) - 1,
		name:  name,
	})
}

func paramNames(p *ast.ParameterList) []string {
	names := []string{}
	if p == nil {
		return names
	}
	for _, b := range p.List {
		names = append(names, syntax.BoundNames(b.Target)...)
	}
	if p.Rest != nil {
		names = append(names, syntax.BoundNames(p.Rest)...)
	}
	return names
}

func (v *visitor) loop(n ast.Node, l Loop) {
	pos := v.pos(n)
	l.Line, l.Column = pos.Line, pos.Column
	v.r.Loops = append(v.r.Loops, l)
	if l.Infinite {
		v.suggest(Suggestion{
			Kind:     "error",
			Severity: SeverityCritical,
			Message:  "Potential infinite loop detected",
			Line:     pos.Line,
		})
	}
}

func (v *visitor) forInto(n ast.Node, into ast.ForInto) {
	switch into := into.(type) {
	case *ast.ForIntoVar:
		v.varDeclaration(n, []*ast.Binding{into.Binding})
	case *ast.ForDeclaration:
		kind := "let"
		if into.IsConst {
			kind = "const"
		}
		v.variable(into.Target, kind, "block", false)
	}
}

func (v *visitor) varDeclaration(n ast.Node, list []*ast.Binding) {
	scope := "global"
	if len(v.funcs) > 0 {
		scope = "function"
	}
	for _, b := range list {
		v.variable(b.Target, "var", scope, b.Initializer != nil)
	}
	v.suggest(Suggestion{
		Kind:     "warning",
		Severity: SeverityMedium,
		Message:  "Consider using let or const instead of var",
		Line:     v.pos(n).Line,
	})
}

// lexicalScope classifies a let/const declaration by the block it appears
// in.
func (v *visitor) lexicalScope() string {
	parent := v.parent()
	if len(v.funcs) == 0 {
		if _, ok := parent.(*ast.Program); ok {
			return "global"
		}
		return "block"
	}
	if b, ok := parent.(*ast.BlockStatement); ok && b == v.funcs[len(v.funcs)-1].body {
		return "function"
	}
	return "block"
}

func (v *visitor) variable(target ast.Expression, kind, scope string, init bool) {
	for _, name := range syntax.BoundNames(target) {
		v.declare(name)
	}
	id, ok := target.(*ast.Identifier)
	if !ok {
		return
	}
	pos := v.pos(id)
	name := id.Name.String()
	v.r.Variables = append(v.r.Variables, Variable{
		Name:           name,
		Kind:           kind,
		Line:           pos.Line,
		Column:         pos.Column,
		HasInitializer: init,
		Scope:          scope,
	})
	v.checkName(name, pos.Line)
}

func (v *visitor) reassign(name string) {
	for i := range v.r.Variables {
		if v.r.Variables[i].Name == name {
			v.r.Variables[i].Reassigned = true
			return
		}
	}
}

func (v *visitor) declare(names ...string) {
	for _, n := range names {
		v.declared[n] = true
	}
}

func (v *visitor) callee(callee ast.Expression, line int) {
	switch c := callee.(type) {
	case *ast.Identifier:
		name := c.Name.String()
		if isBuiltinFunction(name) {
			v.r.Dependencies.Builtins = appendUnique(v.r.Dependencies.Builtins, name)
		}
		for _, fr := range v.funcs {
			if fr.name != "" && fr.name == name {
				v.r.Functions[fr.index].Recursive = true
			}
		}
		v.calls = append(v.calls, call{name: name, line: line})
	case *ast.DotExpression:
		if obj, ok := c.Left.(*ast.Identifier); ok && isGlobalObject(obj.Name.String()) {
			v.r.Dependencies.Globals = appendUnique(v.r.Dependencies.Globals, obj.Name.String())
		}
	}
}

func (v *visitor) suggest(s Suggestion) {
	v.r.Suggestions = append(v.r.Suggestions, s)
}

func (v *visitor) checkName(name string, line int) {
	if ok, _ := namingRule.MatchString(name); !ok {
		v.suggest(Suggestion{
			Kind:     "info",
			Severity: SeverityLow,
			Message:  fmt.Sprintf("Identifier '%s' is neither camelCase nor CONSTANT_CASE", name),
			Line:     line,
		})
	}
}

func (v *visitor) finish() {
	for _, c := range v.calls {
		if v.declared[c.name] || isBuiltinFunction(c.name) || isGlobalObject(c.name) {
			continue
		}
		if alt := closestBuiltin(c.name); alt != "" {
			v.suggest(Suggestion{
				Kind:     "info",
				Severity: SeverityLow,
				Message:  fmt.Sprintf("'%s' is not defined. Did you mean '%s'?", c.name, alt),
				Line:     c.line,
			})
		}
	}
	sort.SliceStable(v.r.Suggestions, func(i, j int) bool {
		return v.r.Suggestions[i].Line < v.r.Suggestions[j].Line
	})

	m := &v.r.Metrics
	m.Lines = v.tree.LastLine()
	m.Functions = len(v.r.Functions)
	m.Variables = len(v.r.Variables)
	m.Complexity = v.r.Complexity
}

func (m *Metrics) count(n ast.Node) {
	if _, ok := n.(ast.Statement); ok {
		m.Statements++
	}
	if strings.HasSuffix(syntax.Kind(n), "Expression") {
		m.Expressions++
	}
}

// conditionComplexity is 1 plus the number of binary and logical operators
// in a test expression.
func conditionComplexity(test ast.Expression) int {
	c := 1
	syntax.Inspect(test, func(n ast.Node) bool {
		if _, ok := n.(*ast.BinaryExpression); ok {
			c++
		}
		return true
	})
	return c
}

func isTrue(e ast.Expression) bool {
	b, ok := e.(*ast.BooleanLiteral)
	return ok && b.Value
}

func appendUnique(list []string, s string) []string {
	for _, e := range list {
		if e == s {
			return list
		}
	}
	return append(list, s)
}
