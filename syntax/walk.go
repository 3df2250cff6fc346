package syntax

import (
	"github.com/dop251/goja/ast"
)

// Inspect traverses the tree rooted at n in depth-first order. It calls f(n)
// for every node; if f returns true, Inspect visits the children of n and
// then calls f(nil). Nil children are skipped.
func Inspect(n ast.Node, f func(ast.Node) bool) {
	w := inspector(f)
	w.walk(n)
}

type inspector func(ast.Node) bool

func (f inspector) walk(n ast.Node) {
	if isNil(n) {
		return
	}
	if !f(n) {
		return
	}
	f.children(n)
	f(nil)
}

func (f inspector) exprs(list []ast.Expression) {
	for _, e := range list {
		if e != nil {
			f.walk(e)
		}
	}
}

func (f inspector) stmts(list []ast.Statement) {
	for _, s := range list {
		f.walk(s)
	}
}

func (f inspector) bindings(list []*ast.Binding) {
	for _, b := range list {
		f.walk(b)
	}
}

func (f inspector) children(n ast.Node) {
	switch n := n.(type) {
	case *ast.Program:
		f.stmts(n.Body)

	// Statements
	case *ast.BlockStatement:
		f.stmts(n.List)
	case *ast.ExpressionStatement:
		f.walk(n.Expression)
	case *ast.VariableStatement:
		f.bindings(n.List)
	case *ast.LexicalDeclaration:
		f.bindings(n.List)
	case *ast.Binding:
		f.walk(n.Target)
		f.walk(n.Initializer)
	case *ast.FunctionDeclaration:
		f.walk(n.Function)
	case *ast.ClassDeclaration:
		f.walk(n.Class)
	case *ast.IfStatement:
		f.walk(n.Test)
		f.walk(n.Consequent)
		f.walk(n.Alternate)
	case *ast.WhileStatement:
		f.walk(n.Test)
		f.walk(n.Body)
	case *ast.DoWhileStatement:
		f.walk(n.Body)
		f.walk(n.Test)
	case *ast.ForStatement:
		switch init := n.Initializer.(type) {
		case *ast.ForLoopInitializerExpression:
			f.walk(init.Expression)
		case *ast.ForLoopInitializerVarDeclList:
			f.bindings(init.List)
		case *ast.ForLoopInitializerLexicalDecl:
			f.walk(&init.LexicalDeclaration)
		}
		f.walk(n.Test)
		f.walk(n.Update)
		f.walk(n.Body)
	case *ast.ForInStatement:
		f.forInto(n.Into)
		f.walk(n.Source)
		f.walk(n.Body)
	case *ast.ForOfStatement:
		f.forInto(n.Into)
		f.walk(n.Source)
		f.walk(n.Body)
	case *ast.ReturnStatement:
		f.walk(n.Argument)
	case *ast.ThrowStatement:
		f.walk(n.Argument)
	case *ast.TryStatement:
		f.walk(n.Body)
		if n.Catch != nil {
			f.walk(n.Catch)
		}
		if n.Finally != nil {
			f.walk(n.Finally)
		}
	case *ast.CatchStatement:
		f.walk(n.Parameter)
		f.walk(n.Body)
	case *ast.SwitchStatement:
		f.walk(n.Discriminant)
		for _, c := range n.Body {
			f.walk(c)
		}
	case *ast.CaseStatement:
		f.walk(n.Test)
		f.stmts(n.Consequent)
	case *ast.LabelledStatement:
		f.walk(n.Label)
		f.walk(n.Statement)
	case *ast.WithStatement:
		f.walk(n.Object)
		f.walk(n.Body)
	case *ast.BranchStatement:
		if n.Label != nil {
			f.walk(n.Label)
		}

	// Functions and classes
	case *ast.FunctionLiteral:
		if n.Name != nil {
			f.walk(n.Name)
		}
		f.params(n.ParameterList)
		f.walk(n.Body)
	case *ast.ArrowFunctionLiteral:
		f.params(n.ParameterList)
		switch body := n.Body.(type) {
		case *ast.BlockStatement:
			f.walk(body)
		case *ast.ExpressionBody:
			f.walk(body.Expression)
		}
	case *ast.ClassLiteral:
		if n.Name != nil {
			f.walk(n.Name)
		}
		f.walk(n.SuperClass)
		for _, el := range n.Body {
			f.walk(el)
		}
	case *ast.FieldDefinition:
		f.walk(n.Key)
		f.walk(n.Initializer)
	case *ast.MethodDefinition:
		f.walk(n.Key)
		f.walk(n.Body)
	case *ast.ClassStaticBlock:
		f.walk(n.Block)

	// Expressions
	case *ast.AssignExpression:
		f.walk(n.Left)
		f.walk(n.Right)
	case *ast.BinaryExpression:
		f.walk(n.Left)
		f.walk(n.Right)
	case *ast.UnaryExpression:
		f.walk(n.Operand)
	case *ast.ConditionalExpression:
		f.walk(n.Test)
		f.walk(n.Consequent)
		f.walk(n.Alternate)
	case *ast.CallExpression:
		f.walk(n.Callee)
		f.exprs(n.ArgumentList)
	case *ast.NewExpression:
		f.walk(n.Callee)
		f.exprs(n.ArgumentList)
	case *ast.DotExpression:
		f.walk(n.Left)
		f.walk(&n.Identifier)
	case *ast.PrivateDotExpression:
		f.walk(n.Left)
	case *ast.BracketExpression:
		f.walk(n.Left)
		f.walk(n.Member)
	case *ast.SequenceExpression:
		f.exprs(n.Sequence)
	case *ast.ArrayLiteral:
		f.exprs(n.Value)
	case *ast.ArrayPattern:
		f.exprs(n.Elements)
		f.walk(n.Rest)
	case *ast.ObjectLiteral:
		for _, p := range n.Value {
			f.walk(p)
		}
	case *ast.ObjectPattern:
		for _, p := range n.Properties {
			f.walk(p)
		}
		f.walk(n.Rest)
	case *ast.PropertyKeyed:
		f.walk(n.Key)
		f.walk(n.Value)
	case *ast.PropertyShort:
		f.walk(&n.Name)
		f.walk(n.Initializer)
	case *ast.SpreadElement:
		f.walk(n.Expression)
	case *ast.TemplateLiteral:
		f.walk(n.Tag)
		f.exprs(n.Expressions)
	case *ast.OptionalChain:
		f.walk(n.Expression)
	case *ast.Optional:
		f.walk(n.Expression)
	case *ast.YieldExpression:
		f.walk(n.Argument)
	case *ast.AwaitExpression:
		f.walk(n.Argument)
	}
}

func (f inspector) params(p *ast.ParameterList) {
	if p == nil {
		return
	}
	f.bindings(p.List)
	f.walk(p.Rest)
}

func (f inspector) forInto(into ast.ForInto) {
	switch into := into.(type) {
	case *ast.ForIntoVar:
		f.walk(into.Binding)
	case *ast.ForDeclaration:
		f.walk(into.Target)
	case *ast.ForIntoExpression:
		f.walk(into.Expression)
	}
}

// isNil catches typed nil pointers stored in interface values, which the
// goja tree uses for absent optional children.
func isNil(n ast.Node) bool {
	if n == nil {
		return true
	}
	switch n := n.(type) {
	case *ast.BlockStatement:
		return n == nil
	case *ast.Identifier:
		return n == nil
	case *ast.FunctionLiteral:
		return n == nil
	case *ast.ClassLiteral:
		return n == nil
	case *ast.Binding:
		return n == nil
	case *ast.CatchStatement:
		return n == nil
	case *ast.CaseStatement:
		return n == nil
	}
	return false
}
