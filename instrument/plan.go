package instrument

import (
	"strings"

	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/token"

	"github.com/dop251/goja_stepper/syntax"
)

// Names of the functions the instrumented program calls. The engine
// defines them as globals before running it.
const (
	StepHook    = "__step"
	CaptureHook = "__capture"
	EnterHook   = "__enter"
	ExitHook    = "__exit"
)

// Site is a step-emission point: one per steppable statement.
type Site struct {
	ID   int    `json:"id" yaml:"id"`
	Line int    `json:"line" yaml:"line"`
	Kind string `json:"kind" yaml:"kind"`
}

// Frame describes the call-stack bookkeeping added to a function body.
type Frame struct {
	Name string
	// Args is the JavaScript expression passed as the argument list.
	Args   string
	Params []string
}

// Plan is the instrumentation metadata for a tree. The tree itself is not
// modified; generators read the plan alongside it.
type Plan struct {
	Tree  *syntax.Tree
	Sites []Site

	steps      map[ast.Statement]int
	after      map[ast.Statement][]string
	body       map[ast.Statement][]string
	wrapped    map[ast.Statement]bool
	frames     map[ast.Node]*Frame
	directives map[ast.Statement]bool
}

// Step returns the site emitted before s.
func (p *Plan) Step(s ast.Statement) (Site, bool) {
	i, ok := p.steps[s]
	if !ok {
		return Site{}, false
	}
	return p.Sites[i], true
}

// CapturesAfter returns the variable names captured right after s.
func (p *Plan) CapturesAfter(s ast.Statement) []string {
	return p.after[s]
}

// BodyCaptures returns the names captured at the start of a loop body.
func (p *Plan) BodyCaptures(body ast.Statement) []string {
	return p.body[body]
}

// Wrapped reports whether s sits in a single-statement position and must be
// enclosed in a block to hold its insertions.
func (p *Plan) Wrapped(s ast.Statement) bool {
	return p.wrapped[s]
}

// Frame returns the call-stack bookkeeping for a function literal.
func (p *Plan) Frame(fn ast.Node) (*Frame, bool) {
	f, ok := p.frames[fn]
	return f, ok
}

// Annotate assigns step sites in source order and records captures and
// frames for tree.
func Annotate(tree *syntax.Tree) *Plan {
	p := &Plan{
		Tree:       tree,
		steps:      make(map[ast.Statement]int),
		after:      make(map[ast.Statement][]string),
		body:       make(map[ast.Statement][]string),
		wrapped:    make(map[ast.Statement]bool),
		frames:     make(map[ast.Node]*Frame),
		directives: make(map[ast.Statement]bool),
	}
	a := &annotator{p: p}
	syntax.Inspect(tree.Program, a.visit)
	return p
}

type annotator struct {
	p     *Plan
	stack []ast.Node
}

func (a *annotator) parent() ast.Node {
	if len(a.stack) < 2 {
		return nil
	}
	return a.stack[len(a.stack)-2]
}

func (a *annotator) visit(n ast.Node) bool {
	if n == nil {
		a.stack = a.stack[:len(a.stack)-1]
		return false
	}
	a.stack = append(a.stack, n)
	p := a.p

	switch n := n.(type) {
	case *ast.Program:
		a.markDirectives(n.Body)
	case *ast.FunctionLiteral:
		a.markDirectives(n.Body.List)
		p.frames[n] = &Frame{
			Name:   a.functionName(n.Name),
			Args:   "arguments",
			Params: simpleParams(n.ParameterList),
		}
	case *ast.ArrowFunctionLiteral:
		if body, ok := n.Body.(*ast.BlockStatement); ok {
			a.markDirectives(body.List)
			params := simpleParams(n.ParameterList)
			args := append([]string(nil), params...)
			if rest, ok := n.ParameterList.Rest.(*ast.Identifier); ok && len(args) > 0 && args[len(args)-1] == rest.Name.String() {
				args[len(args)-1] = "..." + rest.Name.String()
			}
			p.frames[n] = &Frame{
				Name:   a.functionName(nil),
				Args:   "[" + strings.Join(args, ", ") + "]",
				Params: params,
			}
		}
	case *ast.ForStatement:
		var names []string
		switch init := n.Initializer.(type) {
		case *ast.ForLoopInitializerVarDeclList:
			names = bindingNames(init.List)
		case *ast.ForLoopInitializerLexicalDecl:
			names = bindingNames(init.LexicalDeclaration.List)
		case *ast.ForLoopInitializerExpression:
			names = assignedNames(init.Expression)
		}
		a.loopBody(n.Body, names)
	case *ast.ForInStatement:
		a.loopBody(n.Body, intoNames(n.Into))
	case *ast.ForOfStatement:
		a.loopBody(n.Body, intoNames(n.Into))
	}

	if s, ok := n.(ast.Statement); ok {
		a.statement(s)
	}
	return true
}

func (a *annotator) statement(s ast.Statement) {
	p := a.p
	if p.directives[s] {
		return
	}
	switch parent := a.parent().(type) {
	case *ast.LabelledStatement:
		return
	case *ast.ForStatement:
		// let/const in the loop head
		if parent.Body != s {
			return
		}
	}
	if !steppable(s) {
		if _, block := s.(*ast.BlockStatement); !block && len(p.body[s]) > 0 && a.nestedPosition(s) {
			p.wrapped[s] = true
		}
		return
	}
	p.Sites = append(p.Sites, Site{
		ID:   len(p.Sites) + 1,
		Line: p.Tree.Line(s),
		Kind: syntax.Kind(s),
	})
	p.steps[s] = len(p.Sites) - 1

	switch s := s.(type) {
	case *ast.VariableStatement:
		p.after[s] = bindingNames(s.List)
	case *ast.LexicalDeclaration:
		p.after[s] = bindingNames(s.List)
	case *ast.ExpressionStatement:
		if names := assignedNames(s.Expression); len(names) > 0 {
			p.after[s] = names
		}
	}
	if a.nestedPosition(s) {
		p.wrapped[s] = true
	}
}

// nestedPosition reports whether s is the direct body or branch of a
// compound statement rather than an element of a statement list.
func (a *annotator) nestedPosition(s ast.Statement) bool {
	switch parent := a.parent().(type) {
	case *ast.IfStatement:
		return parent.Consequent == s || parent.Alternate == s
	case *ast.WhileStatement:
		return parent.Body == s
	case *ast.DoWhileStatement:
		return parent.Body == s
	case *ast.ForStatement:
		return parent.Body == s
	case *ast.ForInStatement:
		return parent.Body == s
	case *ast.ForOfStatement:
		return parent.Body == s
	case *ast.WithStatement:
		return parent.Body == s
	}
	return false
}

func (a *annotator) loopBody(body ast.Statement, names []string) {
	if len(names) > 0 {
		a.p.body[body] = names
	}
}

func (a *annotator) markDirectives(list []ast.Statement) {
	for i := 0; i < syntax.Directives(list); i++ {
		a.p.directives[list[i]] = true
	}
}

// functionName picks the name shown on the call stack: the function's own
// name, else the binding, assignment target or property it is assigned to.
func (a *annotator) functionName(own *ast.Identifier) string {
	if own != nil {
		return own.Name.String()
	}
	switch p := a.parent().(type) {
	case *ast.Binding:
		if id, ok := p.Target.(*ast.Identifier); ok {
			return id.Name.String()
		}
	case *ast.AssignExpression:
		switch left := p.Left.(type) {
		case *ast.Identifier:
			return left.Name.String()
		case *ast.DotExpression:
			return left.Identifier.Name.String()
		}
	case *ast.PropertyKeyed:
		if name := propertyName(p.Key); name != "" {
			return name
		}
	case *ast.MethodDefinition:
		if name := propertyName(p.Key); name != "" {
			return name
		}
	case *ast.FieldDefinition:
		if name := propertyName(p.Key); name != "" {
			return name
		}
	}
	return "anonymous"
}

func propertyName(key ast.Expression) string {
	switch k := key.(type) {
	case *ast.StringLiteral:
		return k.Value.String()
	case *ast.Identifier:
		return k.Name.String()
	case *ast.PrivateIdentifier:
		return "#" + k.Name.String()
	}
	return ""
}

// steppable lists the statement kinds that receive a step before them.
func steppable(s ast.Statement) bool {
	switch s.(type) {
	case *ast.ExpressionStatement, *ast.VariableStatement, *ast.LexicalDeclaration,
		*ast.IfStatement, *ast.WhileStatement, *ast.DoWhileStatement,
		*ast.ForStatement, *ast.ForInStatement, *ast.ForOfStatement,
		*ast.ReturnStatement, *ast.BranchStatement, *ast.ThrowStatement,
		*ast.TryStatement, *ast.SwitchStatement, *ast.LabelledStatement,
		*ast.FunctionDeclaration, *ast.ClassDeclaration, *ast.WithStatement:
		return true
	}
	return false
}

func bindingNames(list []*ast.Binding) []string {
	var names []string
	for _, b := range list {
		names = append(names, syntax.BoundNames(b.Target)...)
	}
	return names
}

func intoNames(into ast.ForInto) []string {
	switch into := into.(type) {
	case *ast.ForIntoVar:
		return syntax.BoundNames(into.Binding.Target)
	case *ast.ForDeclaration:
		return syntax.BoundNames(into.Target)
	case *ast.ForIntoExpression:
		if id, ok := into.Expression.(*ast.Identifier); ok {
			return []string{id.Name.String()}
		}
	}
	return nil
}

// assignedNames returns the identifiers written by an assignment or an
// increment/decrement expression.
func assignedNames(e ast.Expression) []string {
	switch e := e.(type) {
	case *ast.AssignExpression:
		return syntax.BoundNames(e.Left)
	case *ast.UnaryExpression:
		if e.Operator == token.INCREMENT || e.Operator == token.DECREMENT {
			if id, ok := e.Operand.(*ast.Identifier); ok {
				return []string{id.Name.String()}
			}
		}
	}
	return nil
}

func simpleParams(p *ast.ParameterList) []string {
	var names []string
	if p == nil {
		return names
	}
	for _, b := range p.List {
		if id, ok := b.Target.(*ast.Identifier); ok {
			names = append(names, id.Name.String())
		}
	}
	if rest, ok := p.Rest.(*ast.Identifier); ok {
		names = append(names, rest.Name.String())
	}
	return names
}
