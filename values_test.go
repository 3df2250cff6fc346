package stepper

import (
	"testing"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func eval(t *testing.T, rt *goja.Runtime, src string) goja.Value {
	t.Helper()
	v, err := rt.RunString(src)
	require.NoError(t, err)
	return v
}

func TestClassify(t *testing.T) {
	rt := goja.New()
	for src, want := range map[string]ValueType{
		"1":                TypeNumber,
		"1.5":              TypeNumber,
		"NaN":              TypeNumber,
		"'s'":              TypeString,
		"true":             TypeBoolean,
		"undefined":        TypeUndefined,
		"null":             TypeNull,
		"({})":             TypeObject,
		"[1]":              TypeObject,
		"new Date(0)":      TypeObject,
		"Symbol('x')":      TypeObject,
		"(function () {})": TypeFunction,
		"(() => 1)":        TypeFunction,
		"Math.max":         TypeFunction,
	} {
		assert.Equal(t, want, Classify(eval(t, rt, src)), src)
	}
	assert.Equal(t, TypeUndefined, Classify(nil))
}

func TestRender(t *testing.T) {
	rt := goja.New()
	for _, tc := range []struct {
		src, want string
	}{
		{`({a: 1, b: "x", c: [1, 2]})`, `{"a":1,"b":"x","c":[1,2]}`},
		{`({b: 1, a: 2})`, `{"b":1,"a":2}`},
		{`({f() {}, u: undefined, n: null})`, `{"n":null}`},
		{`[undefined, function () {}, NaN, Infinity]`, `[null,null,null,null]`},
		{`({s: "<tag> & \"q\""})`, `{"s":"<tag> & \"q\""}`},
		{`(() => { const o = {a: 1}; o.self = o; return o; })()`, `{"a":1,"self":"[Circular]"}`},
		{`(() => { const a = [1]; a.push(a); return a; })()`, `[1,"[Circular]"]`},
		{`(() => { const x = {v: 1}; return [x, x]; })()`, `[{"v":1},{"v":1}]`},
		{`({a: {b: {c: {d: {e: 1}}}}})`, `{"a":{"b":{"c":{"d":"[Object]"}}}}`},
		{`[[[[[1]]]]]`, `[[[["[Array]"]]]]`},
		{`({when: new Date(0)})`, `{"when":"1970-01-01T00:00:00.000Z"}`},
		{`({toJSON() { return 42; }})`, `{}`},
		{`({a: 1, get b() { throw new Error("no"); }, set c(v) {}})`, `{"a":1,"b":"[Getter]"}`},
		{`Object.defineProperty([1, 2], "1", {get() { return 3; }})`, `[1,"[Getter]"]`},
		{`({when: new Date(NaN)})`, `{"when":null}`},
		{`({x: 0.1, y: -0, z: 1e21})`, `{"x":0.1,"y":0,"z":1e+21}`},
		{`new Map([[1, 2]])`, `{}`},
	} {
		assert.Equal(t, tc.want, Render(rt, eval(t, rt, tc.src)), tc.src)
	}
}

func TestRenderMatchesJSON(t *testing.T) {
	rt := goja.New()
	for _, src := range []string{
		`({a: [1, {b: "c"}], d: true, e: null})`,
		`[1.5, "two", false, {}]`,
		`({nested: {list: [undefined, 3]}, f: function () {}})`,
	} {
		v := eval(t, rt, src)
		want := eval(t, rt, "JSON.stringify("+src+")").String()
		assert.Equal(t, want, Render(rt, v), src)
	}
}

func TestCapture(t *testing.T) {
	rt := goja.New()
	for _, tc := range []struct {
		src  string
		want any
		typ  ValueType
	}{
		{"42", float64(42), TypeNumber},
		{"0.5", 0.5, TypeNumber},
		{"NaN", "NaN", TypeNumber},
		{"-Infinity", "-Infinity", TypeNumber},
		{"'hi'", "hi", TypeString},
		{"false", false, TypeBoolean},
		{"null", nil, TypeNull},
		{"undefined", nil, TypeUndefined},
		{"[1, 'a']", `[1,"a"]`, TypeObject},
		{"Symbol('k')", "Symbol(k)", TypeObject},
		{"(function named() {})", "[Function: named]", TypeFunction},
		{"(() => {})", "[Function (anonymous)]", TypeFunction},
	} {
		v, typ := capture(rt, eval(t, rt, tc.src))
		assert.Equal(t, tc.want, v, tc.src)
		assert.Equal(t, tc.typ, typ, tc.src)
	}
}

func TestRenderRunsNoProgramCode(t *testing.T) {
	rt := goja.New()
	v := eval(t, rt, `var calls = 0;
({
  get counted() { calls++; return calls; },
  toJSON() { calls++; return "x"; },
  nested: { get deep() { calls++; return 1; } },
})`)
	assert.Equal(t, `{"counted":"[Getter]","nested":{"deep":"[Getter]"}}`, Render(rt, v))
	assert.Equal(t, int64(0), eval(t, rt, "calls").ToInteger())
}

func TestDisplay(t *testing.T) {
	rt := goja.New()
	for src, want := range map[string]string{
		"Symbol('k')":           "Symbol(k)",
		"'plain'":               "plain",
		"({a: [1]})":            `{"a":[1]}`,
		"(function named() {})": "[Function: named]",
		"12.5":                  "12.5",
		"undefined":             "undefined",
	} {
		assert.Equal(t, want, display(rt, eval(t, rt, src)), src)
	}
}
