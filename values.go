package stepper

import (
	"bytes"
	"encoding/json"
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/dop251/goja"
)

// MaxRenderDepth is the object nesting rendered before a value is shown as
// "[Object]" or "[Array]".
const MaxRenderDepth = 4

// Classify maps a runtime value onto the ValueType set. BigInts are numbers
// and symbols are objects.
func Classify(v goja.Value) ValueType {
	if v == nil || goja.IsUndefined(v) {
		return TypeUndefined
	}
	if goja.IsNull(v) {
		return TypeNull
	}
	if _, ok := goja.AssertFunction(v); ok {
		return TypeFunction
	}
	switch v.(type) {
	case *goja.Object, *goja.Symbol:
		return TypeObject
	}
	switch v.Export().(type) {
	case string:
		return TypeString
	case bool:
		return TypeBoolean
	case int64, float64, *big.Int:
		return TypeNumber
	}
	return TypeObject
}

// capture converts v into a value that stays valid after the program goes on
// mutating it.
func capture(rt *goja.Runtime, v goja.Value) (any, ValueType) {
	t := Classify(v)
	switch t {
	case TypeUndefined, TypeNull:
		return nil, t
	case TypeString:
		return v.String(), t
	case TypeBoolean:
		return v.ToBoolean(), t
	case TypeNumber:
		if b, ok := v.Export().(*big.Int); ok {
			f, _ := new(big.Float).SetInt(b).Float64()
			return f, t
		}
		f := v.ToFloat()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return v.String(), t
		}
		return f, t
	case TypeFunction:
		return functionLabel(v.(*goja.Object)), t
	}
	if sym, ok := v.(*goja.Symbol); ok {
		return symbolLabel(sym), t
	}
	return Render(rt, v), t
}

// display is the console form of a single argument.
func display(rt *goja.Runtime, v goja.Value) string {
	switch Classify(v) {
	case TypeObject:
		if sym, ok := v.(*goja.Symbol); ok {
			return symbolLabel(sym)
		}
		return Render(rt, v)
	case TypeFunction:
		return functionLabel(v.(*goja.Object))
	}
	return v.String()
}

// symbolLabel is String(sym) in JavaScript. goja's Symbol.String returns
// the bare description.
func symbolLabel(sym *goja.Symbol) string {
	return "Symbol(" + sym.String() + ")"
}

func functionLabel(fn *goja.Object) string {
	name := ""
	if n := get(fn, "name"); n != nil && !goja.IsUndefined(n) {
		name = n.String()
	}
	if name == "" {
		return "[Function (anonymous)]"
	}
	return "[Function: " + name + "]"
}

// get reads obj[key], returning nil when a getter throws.
func get(obj *goja.Object, key string) (v goja.Value) {
	defer func() {
		if x := recover(); x != nil {
			if _, ok := x.(*goja.Exception); !ok {
				panic(x)
			}
			v = nil
		}
	}()
	return obj.Get(key)
}

// Render serializes v the way JSON.stringify does for plain data: own
// enumerable keys in order, undefined and functions dropped from objects and
// nulled in arrays, dates as ISO strings. Cycles render as "[Circular]" and
// nesting deeper than MaxRenderDepth as "[Object]" or "[Array]".
//
// Render never runs program code: getters show as "[Getter]" and
// user-defined toJSON methods are ignored.
func Render(rt *goja.Runtime, v goja.Value) string {
	r := renderer{rt: rt, seen: make(map[*goja.Object]bool)}
	if obj, ok := get(rt.GlobalObject(), "Object").(*goja.Object); ok {
		r.describe, _ = goja.AssertFunction(get(obj, "getOwnPropertyDescriptor"))
	}
	if !r.value(v, 0) {
		return "undefined"
	}
	return r.b.String()
}

type renderer struct {
	rt       *goja.Runtime
	b        strings.Builder
	seen     map[*goja.Object]bool
	describe goja.Callable
}

// own reads an own property of obj without running accessors. getter is true
// for properties with a get function.
func (r *renderer) own(obj *goja.Object, key string) (v goja.Value, getter bool) {
	if r.describe == nil {
		return get(obj, key), false
	}
	d, err := r.describe(goja.Undefined(), obj, r.rt.ToValue(key))
	if err != nil {
		return nil, false
	}
	desc, ok := d.(*goja.Object)
	if !ok {
		return nil, false
	}
	if _, ok := goja.AssertFunction(desc.Get("get")); ok {
		return nil, true
	}
	return desc.Get("value"), false
}

func (r *renderer) str(s string) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)
	r.b.Write(bytes.TrimRight(buf.Bytes(), "\n"))
}

// omitted reports values that JSON drops from objects.
func omitted(v goja.Value) bool {
	if v == nil || goja.IsUndefined(v) {
		return true
	}
	if _, ok := v.(*goja.Symbol); ok {
		return true
	}
	_, fn := goja.AssertFunction(v)
	return fn
}

// value writes v and reports false when v has no JSON form.
func (r *renderer) value(v goja.Value, depth int) bool {
	if omitted(v) {
		return false
	}
	if goja.IsNull(v) {
		r.b.WriteString("null")
		return true
	}
	obj, ok := v.(*goja.Object)
	if !ok {
		r.primitive(v)
		return true
	}
	if obj.ClassName() == "Date" {
		if t, ok := obj.Export().(time.Time); ok {
			r.str(t.UTC().Format("2006-01-02T15:04:05.000Z"))
		} else {
			r.b.WriteString("null")
		}
		return true
	}
	isArray := obj.ClassName() == "Array"
	if r.seen[obj] {
		r.str("[Circular]")
		return true
	}
	if depth >= MaxRenderDepth {
		if isArray {
			r.str("[Array]")
		} else {
			r.str("[Object]")
		}
		return true
	}
	r.seen[obj] = true
	defer delete(r.seen, obj)
	if isArray {
		r.array(obj, depth)
	} else {
		r.object(obj, depth)
	}
	return true
}

func (r *renderer) primitive(v goja.Value) {
	switch x := v.Export().(type) {
	case string:
		r.str(x)
	case bool:
		r.b.WriteString(strconv.FormatBool(x))
	case *big.Int:
		r.b.WriteString(x.String())
	case int64:
		r.b.WriteString(strconv.FormatInt(x, 10))
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			r.b.WriteString("null")
			return
		}
		// JS number formatting
		r.b.WriteString(v.String())
	default:
		r.str(v.String())
	}
}

func (r *renderer) array(obj *goja.Object, depth int) {
	n := obj.Get("length").ToInteger()
	r.b.WriteByte('[')
	for i := int64(0); i < n; i++ {
		if i > 0 {
			r.b.WriteByte(',')
		}
		v, getter := r.own(obj, strconv.FormatInt(i, 10))
		if getter {
			r.str("[Getter]")
			continue
		}
		if !r.value(v, depth+1) {
			r.b.WriteString("null")
		}
	}
	r.b.WriteByte(']')
}

func (r *renderer) object(obj *goja.Object, depth int) {
	r.b.WriteByte('{')
	first := true
	for _, k := range obj.Keys() {
		v, getter := r.own(obj, k)
		if !getter && omitted(v) {
			continue
		}
		if !first {
			r.b.WriteByte(',')
		}
		first = false
		r.str(k)
		r.b.WriteByte(':')
		if getter {
			r.str("[Getter]")
			continue
		}
		r.value(v, depth+1)
	}
	r.b.WriteByte('}')
}
