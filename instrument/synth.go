package instrument

import (
	"strconv"
	"strings"

	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/token"

	"github.com/dop251/goja_stepper/syntax"
)

// Synthesizer regenerates the whole program from the syntax tree, one
// statement per line, with hook calls emitted as ordinary statements.
// Compound expressions are always parenthesized, so the output does not
// depend on operator precedence. Node kinds it does not know are replaced by
// a comment and reported in Output.Placeholders.
type Synthesizer struct {
	// Indent is the indentation unit, two spaces when empty.
	Indent string
}

func (Synthesizer) Strategy() Strategy {
	return StrategySynthesize
}

// Generate prints the program again from its syntax tree with the plan's
// hook calls in place.
func (s Synthesizer) Generate(p *Plan) (*Output, error) {
	g := &synth{
		p:     p,
		t:     p.Tree,
		unit:  s.Indent,
		lines: newLineIndex(p.Tree.Source),
		sm:    &sourceMap{file: GeneratedName, source: p.Tree.Name, content: p.Tree.Source},
	}
	if g.unit == "" {
		g.unit = "  "
	}
	g.statements(p.Tree.Program.Body)
	g.w.WriteString("\n")
	l, c := g.lines.position(len(p.Tree.Source))
	g.sm.add(g.w.line, g.w.col, l, c)

	out := &Output{Source: g.w.String(), Placeholders: g.placeholders, sourceMap: g.sm}
	if _, err := syntax.ParseFile(GeneratedName, out.Source); err != nil {
		return nil, &InstrumentationError{Strategy: StrategySynthesize, Err: err}
	}
	return out, nil
}

type synth struct {
	p     *Plan
	t     *syntax.Tree
	w     genWriter
	sm    *sourceMap
	lines *lineIndex

	unit         string
	depth        int
	started      bool
	placeholders []string
}

func (g *synth) write(s string) {
	g.started = true
	g.w.WriteString(s)
}

func (g *synth) nl() {
	if !g.started {
		return
	}
	g.w.WriteString("\n" + strings.Repeat(g.unit, g.depth))
}

func (g *synth) mark(n ast.Node) {
	l, c := g.lines.position(g.t.Start(n))
	g.sm.add(g.w.line, g.w.col, l, c)
}

func (g *synth) placeholder(n ast.Node) {
	kind := syntax.Kind(n)
	g.placeholders = append(g.placeholders, kind)
	g.write("/* unsupported: " + kind + " */")
}

func (g *synth) statements(list []ast.Statement) {
	for _, s := range list {
		g.listStatement(s)
	}
}

func (g *synth) listStatement(s ast.Statement) {
	if site, ok := g.p.Step(s); ok {
		g.nl()
		g.mark(s)
		g.write(stepCall(site))
	}
	g.nl()
	g.mark(s)
	g.statement(s)
	if caps := g.p.CapturesAfter(s); len(caps) > 0 {
		g.nl()
		g.write(captureCalls(caps))
	}
}

// nested emits s in a single-statement position such as an if branch or a
// loop body.
func (g *synth) nested(s ast.Statement) {
	if g.p.Wrapped(s) {
		g.write("{")
		g.depth++
		if caps := g.p.BodyCaptures(s); len(caps) > 0 {
			g.nl()
			g.write(captureCalls(caps))
		}
		g.listStatement(s)
		g.depth--
		g.nl()
		g.write("}")
		return
	}
	if b, ok := s.(*ast.BlockStatement); ok {
		g.mark(b)
		g.block(b, g.p.BodyCaptures(b))
		return
	}
	g.depth++
	g.nl()
	g.mark(s)
	g.statement(s)
	g.depth--
}

func (g *synth) block(b *ast.BlockStatement, caps []string) {
	g.write("{")
	g.depth++
	if len(caps) > 0 {
		g.nl()
		g.write(captureCalls(caps))
	}
	g.statements(b.List)
	g.depth--
	g.nl()
	g.write("}")
}

func (g *synth) statement(s ast.Statement) {
	switch s := s.(type) {
	case *ast.ExpressionStatement:
		g.expr(s.Expression)
		g.write(";")
	case *ast.VariableStatement:
		g.write("var ")
		g.bindings(s.List)
		g.write(";")
	case *ast.LexicalDeclaration:
		g.write(s.Token.String() + " ")
		g.bindings(s.List)
		g.write(";")
	case *ast.FunctionDeclaration:
		g.function(s.Function)
	case *ast.ClassDeclaration:
		g.class(s.Class)
	case *ast.BlockStatement:
		g.block(s, g.p.BodyCaptures(s))
	case *ast.EmptyStatement:
		g.write(";")
	case *ast.DebuggerStatement:
		g.write("debugger;")
	case *ast.IfStatement:
		g.write("if (")
		g.expr(s.Test)
		g.write(") ")
		g.nested(s.Consequent)
		if s.Alternate != nil {
			g.write(" else ")
			g.nested(s.Alternate)
		}
	case *ast.WhileStatement:
		g.write("while (")
		g.expr(s.Test)
		g.write(") ")
		g.nested(s.Body)
	case *ast.DoWhileStatement:
		g.write("do ")
		g.nested(s.Body)
		g.write(" while (")
		g.expr(s.Test)
		g.write(");")
	case *ast.ForStatement:
		g.write("for (")
		switch init := s.Initializer.(type) {
		case *ast.ForLoopInitializerExpression:
			g.expr(init.Expression)
		case *ast.ForLoopInitializerVarDeclList:
			g.write("var ")
			g.bindings(init.List)
		case *ast.ForLoopInitializerLexicalDecl:
			g.write(init.LexicalDeclaration.Token.String() + " ")
			g.bindings(init.LexicalDeclaration.List)
		}
		g.write("; ")
		if s.Test != nil {
			g.expr(s.Test)
		}
		g.write("; ")
		if s.Update != nil {
			g.expr(s.Update)
		}
		g.write(") ")
		g.nested(s.Body)
	case *ast.ForInStatement:
		g.write("for (")
		g.forInto(s.Into)
		g.write(" in ")
		g.expr(s.Source)
		g.write(") ")
		g.nested(s.Body)
	case *ast.ForOfStatement:
		g.write("for (")
		g.forInto(s.Into)
		g.write(" of ")
		g.expr(s.Source)
		g.write(") ")
		g.nested(s.Body)
	case *ast.ReturnStatement:
		g.write("return")
		if s.Argument != nil {
			g.write(" ")
			g.expr(s.Argument)
		}
		g.write(";")
	case *ast.ThrowStatement:
		g.write("throw ")
		g.expr(s.Argument)
		g.write(";")
	case *ast.BranchStatement:
		g.write(s.Token.String())
		if s.Label != nil {
			g.write(" " + s.Label.Name.String())
		}
		g.write(";")
	case *ast.LabelledStatement:
		g.write(s.Label.Name.String() + ": ")
		g.statement(s.Statement)
	case *ast.TryStatement:
		g.write("try ")
		g.block(s.Body, nil)
		if s.Catch != nil {
			g.write(" catch ")
			if s.Catch.Parameter != nil {
				g.write("(")
				g.expr(s.Catch.Parameter)
				g.write(") ")
			}
			g.block(s.Catch.Body, nil)
		}
		if s.Finally != nil {
			g.write(" finally ")
			g.block(s.Finally, nil)
		}
	case *ast.SwitchStatement:
		g.write("switch (")
		g.expr(s.Discriminant)
		g.write(") {")
		for _, c := range s.Body {
			g.nl()
			if c.Test == nil {
				g.write("default:")
			} else {
				g.write("case ")
				g.expr(c.Test)
				g.write(":")
			}
			g.depth++
			g.statements(c.Consequent)
			g.depth--
		}
		g.nl()
		g.write("}")
	case *ast.WithStatement:
		g.write("with (")
		g.expr(s.Object)
		g.write(") ")
		g.nested(s.Body)
	default:
		g.placeholder(s)
	}
}

func (g *synth) bindings(list []*ast.Binding) {
	for i, b := range list {
		if i > 0 {
			g.write(", ")
		}
		g.binding(b)
	}
}

func (g *synth) binding(b *ast.Binding) {
	g.expr(b.Target)
	if b.Initializer != nil {
		g.write(" = ")
		g.expr(b.Initializer)
	}
}

func (g *synth) forInto(into ast.ForInto) {
	switch into := into.(type) {
	case *ast.ForIntoVar:
		g.write("var ")
		g.binding(into.Binding)
	case *ast.ForDeclaration:
		if into.IsConst {
			g.write("const ")
		} else {
			g.write("let ")
		}
		g.expr(into.Target)
	case *ast.ForIntoExpression:
		g.expr(into.Expression)
	}
}

func (g *synth) params(p *ast.ParameterList) {
	g.write("(")
	if p != nil {
		g.bindings(p.List)
		if p.Rest != nil {
			if len(p.List) > 0 {
				g.write(", ")
			}
			g.write("...")
			g.expr(p.Rest)
		}
	}
	g.write(")")
}

func (g *synth) function(fn *ast.FunctionLiteral) {
	if fn.Async {
		g.write("async ")
	}
	g.write("function")
	if fn.Generator {
		g.write("*")
	}
	if fn.Name != nil {
		g.write(" " + fn.Name.Name.String())
	}
	g.params(fn.ParameterList)
	g.write(" ")
	g.functionBody(fn, fn.Body)
}

func (g *synth) arrow(fn *ast.ArrowFunctionLiteral) {
	if fn.Async {
		g.write("async ")
	}
	g.params(fn.ParameterList)
	g.write(" => ")
	switch body := fn.Body.(type) {
	case *ast.BlockStatement:
		g.functionBody(fn, body)
	case *ast.ExpressionBody:
		g.write("(")
		g.expr(body.Expression)
		g.write(")")
	default:
		g.placeholder(fn.Body)
	}
}

func (g *synth) functionBody(fn ast.Node, body *ast.BlockStatement) {
	f, ok := g.p.Frame(fn)
	if !ok {
		g.block(body, nil)
		return
	}
	g.write("{")
	g.depth++
	n := syntax.Directives(body.List)
	for _, d := range body.List[:n] {
		g.nl()
		g.statement(d)
	}
	g.nl()
	g.write(enterCall(f) + captureCalls(f.Params))
	g.nl()
	g.write("try {")
	g.depth++
	g.statements(body.List[n:])
	g.depth--
	g.nl()
	g.write("} finally {")
	g.depth++
	g.nl()
	g.write(ExitHook + "();")
	g.depth--
	g.nl()
	g.write("}")
	g.depth--
	g.nl()
	g.write("}")
}

func (g *synth) method(kind ast.PropertyKind, key ast.Expression, computed bool, fn *ast.FunctionLiteral) {
	switch kind {
	case ast.PropertyKindGet:
		g.write("get ")
	case ast.PropertyKindSet:
		g.write("set ")
	}
	if fn.Async {
		g.write("async ")
	}
	if fn.Generator {
		g.write("*")
	}
	g.key(key, computed)
	g.params(fn.ParameterList)
	g.write(" ")
	g.functionBody(fn, fn.Body)
}

func (g *synth) key(k ast.Expression, computed bool) {
	if computed {
		g.write("[")
		g.expr(k)
		g.write("]")
		return
	}
	switch k := k.(type) {
	case *ast.StringLiteral:
		if k.Literal != "" {
			g.write(k.Literal)
		} else {
			g.write(strconv.Quote(k.Value.String()))
		}
	case *ast.NumberLiteral:
		g.write(k.Literal)
	case *ast.Identifier:
		g.write(k.Name.String())
	case *ast.PrivateIdentifier:
		g.write("#" + k.Name.String())
	default:
		g.expr(k)
	}
}

func (g *synth) class(c *ast.ClassLiteral) {
	g.write("class")
	if c.Name != nil {
		g.write(" " + c.Name.Name.String())
	}
	if c.SuperClass != nil {
		g.write(" extends ")
		g.expr(c.SuperClass)
	}
	g.write(" {")
	g.depth++
	for _, el := range c.Body {
		g.nl()
		switch el := el.(type) {
		case *ast.FieldDefinition:
			if el.Static {
				g.write("static ")
			}
			g.key(el.Key, el.Computed)
			if el.Initializer != nil {
				g.write(" = ")
				g.expr(el.Initializer)
			}
			g.write(";")
		case *ast.MethodDefinition:
			if el.Static {
				g.write("static ")
			}
			g.method(el.Kind, el.Key, el.Computed, el.Body)
		case *ast.ClassStaticBlock:
			g.write("static ")
			g.block(el.Block, nil)
		default:
			g.placeholder(el)
		}
	}
	g.depth--
	g.nl()
	g.write("}")
}

func (g *synth) args(list []ast.Expression) {
	g.write("(")
	g.list(list)
	g.write(")")
}

func (g *synth) list(list []ast.Expression) {
	for i, e := range list {
		if i > 0 {
			g.write(", ")
		}
		if e != nil {
			g.expr(e)
		}
	}
	// a trailing hole needs its own comma
	if n := len(list); n > 0 && list[n-1] == nil {
		g.write(",")
	}
}

// target writes an element of a destructuring pattern, where a default
// value must not be parenthesized.
func (g *synth) target(e ast.Expression) {
	if a, ok := e.(*ast.AssignExpression); ok && a.Operator == token.ASSIGN {
		g.expr(a.Left)
		g.write(" = ")
		g.expr(a.Right)
		return
	}
	g.expr(e)
}

func (g *synth) properties(list []ast.Property, pattern bool) {
	for i, prop := range list {
		if i > 0 {
			g.write(", ")
		}
		switch prop := prop.(type) {
		case *ast.PropertyShort:
			g.write(prop.Name.Name.String())
			if prop.Initializer != nil {
				g.write(" = ")
				g.expr(prop.Initializer)
			}
		case *ast.PropertyKeyed:
			if fn, ok := prop.Value.(*ast.FunctionLiteral); ok && prop.Kind != ast.PropertyKindValue {
				g.method(prop.Kind, prop.Key, prop.Computed, fn)
				continue
			}
			g.key(prop.Key, prop.Computed)
			g.write(": ")
			if pattern {
				g.target(prop.Value)
			} else {
				g.expr(prop.Value)
			}
		case *ast.SpreadElement:
			g.write("...")
			g.expr(prop.Expression)
		default:
			g.placeholder(prop)
		}
	}
}

func (g *synth) expr(e ast.Expression) {
	switch e := e.(type) {
	case *ast.Identifier:
		g.write(e.Name.String())
	case *ast.PrivateIdentifier:
		g.write("#" + e.Name.String())
	case *ast.NullLiteral:
		g.write("null")
	case *ast.BooleanLiteral:
		g.write(strconv.FormatBool(e.Value))
	case *ast.NumberLiteral:
		g.write(e.Literal)
	case *ast.StringLiteral:
		g.write(e.Literal)
	case *ast.RegExpLiteral:
		g.write(e.Literal)
	case *ast.TemplateLiteral:
		if e.Tag != nil {
			g.expr(e.Tag)
		}
		g.write("`")
		for i, el := range e.Elements {
			g.write(el.Literal)
			if i < len(e.Expressions) {
				g.write("${")
				g.expr(e.Expressions[i])
				g.write("}")
			}
		}
		g.write("`")
	case *ast.ThisExpression:
		g.write("this")
	case *ast.SuperExpression:
		g.write("super")
	case *ast.MetaProperty:
		g.write(e.Meta.Name.String() + "." + e.Property.Name.String())

	case *ast.ArrayLiteral:
		g.write("[")
		g.list(e.Value)
		g.write("]")
	case *ast.ArrayPattern:
		g.write("[")
		for i, el := range e.Elements {
			if i > 0 {
				g.write(", ")
			}
			if el != nil {
				g.target(el)
			}
		}
		if n := len(e.Elements); n > 0 && e.Elements[n-1] == nil {
			g.write(",")
		}
		if e.Rest != nil {
			if len(e.Elements) > 0 {
				g.write(", ")
			}
			g.write("...")
			g.expr(e.Rest)
		}
		g.write("]")
	case *ast.ObjectLiteral:
		g.write("({")
		g.properties(e.Value, false)
		g.write("})")
	case *ast.ObjectPattern:
		g.write("{")
		g.properties(e.Properties, true)
		if e.Rest != nil {
			if len(e.Properties) > 0 {
				g.write(", ")
			}
			g.write("...")
			g.expr(e.Rest)
		}
		g.write("}")
	case *ast.SpreadElement:
		g.write("...")
		g.expr(e.Expression)

	case *ast.FunctionLiteral:
		g.write("(")
		g.function(e)
		g.write(")")
	case *ast.ArrowFunctionLiteral:
		g.write("(")
		g.arrow(e)
		g.write(")")
	case *ast.ClassLiteral:
		g.write("(")
		g.class(e)
		g.write(")")

	case *ast.AssignExpression:
		op := "="
		if e.Operator != token.ASSIGN {
			op = e.Operator.String() + "="
		}
		g.write("(")
		g.expr(e.Left)
		g.write(" " + op + " ")
		g.expr(e.Right)
		g.write(")")
	case *ast.BinaryExpression:
		g.write("(")
		g.expr(e.Left)
		g.write(" " + e.Operator.String() + " ")
		g.expr(e.Right)
		g.write(")")
	case *ast.UnaryExpression:
		g.write("(")
		if e.Postfix {
			g.expr(e.Operand)
			g.write(e.Operator.String())
		} else {
			op := e.Operator.String()
			g.write(op)
			switch e.Operator {
			case token.TYPEOF, token.VOID, token.DELETE:
				g.write(" ")
			}
			g.expr(e.Operand)
		}
		g.write(")")
	case *ast.ConditionalExpression:
		g.write("(")
		g.expr(e.Test)
		g.write(" ? ")
		g.expr(e.Consequent)
		g.write(" : ")
		g.expr(e.Alternate)
		g.write(")")
	case *ast.SequenceExpression:
		g.write("(")
		g.list(e.Sequence)
		g.write(")")
	case *ast.YieldExpression:
		g.write("(yield")
		if e.Delegate {
			g.write("*")
		}
		if e.Argument != nil {
			g.write(" ")
			g.expr(e.Argument)
		}
		g.write(")")
	case *ast.AwaitExpression:
		g.write("(await ")
		g.expr(e.Argument)
		g.write(")")

	case *ast.CallExpression:
		if opt, ok := e.Callee.(*ast.Optional); ok {
			g.expr(opt.Expression)
			g.write("?.")
		} else {
			g.expr(e.Callee)
		}
		g.args(e.ArgumentList)
	case *ast.NewExpression:
		g.write("(new ")
		if id, ok := e.Callee.(*ast.Identifier); ok {
			g.write(id.Name.String())
		} else {
			g.write("(")
			g.expr(e.Callee)
			g.write(")")
		}
		g.args(e.ArgumentList)
		g.write(")")
	case *ast.DotExpression:
		g.member(e.Left)
		g.write(e.Identifier.Name.String())
	case *ast.PrivateDotExpression:
		g.member(e.Left)
		g.write("#" + e.Identifier.Name.String())
	case *ast.BracketExpression:
		if opt, ok := e.Left.(*ast.Optional); ok {
			g.expr(opt.Expression)
			g.write("?.[")
		} else {
			g.expr(e.Left)
			g.write("[")
		}
		g.expr(e.Member)
		g.write("]")
	case *ast.OptionalChain:
		g.write("(")
		g.expr(e.Expression)
		g.write(")")
	case *ast.Optional:
		g.expr(e.Expression)

	default:
		kind := syntax.Kind(e)
		g.placeholders = append(g.placeholders, kind)
		g.write("undefined /* unsupported: " + kind + " */")
	}
}

// member writes the object part of a property access including the dot.
func (g *synth) member(left ast.Expression) {
	switch left := left.(type) {
	case *ast.Optional:
		g.expr(left.Expression)
		g.write("?.")
	case *ast.NumberLiteral:
		g.write("(" + left.Literal + ").")
	default:
		g.expr(left)
		g.write(".")
	}
}
