package stepper

import (
	"strconv"
	"strings"
	"time"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/require"
	_ "github.com/dop251/goja_nodejs/util"

	"github.com/dop251/goja_stepper/instrument"
)

// MemoryHook recomputes and returns the memory estimate of the current run.
const MemoryHook = "__memory"

// run holds the per-run state the hooks read and write. It is only touched
// by the goroutine executing the program.
type run struct {
	e     *Engine
	rt    *goja.Runtime
	sinks sinks
	delay time.Duration
	limit int

	vars   map[string]Variable
	stack  []CallFrame
	memory int
	line   int

	util   *goja.Object
	format goja.Callable
}

func newRun(e *Engine, rt *goja.Runtime, ss sinks, o *Options) *run {
	return &run{
		e:     e,
		rt:    rt,
		sinks: ss,
		delay: o.delay(),
		limit: o.MaxSteps,
		vars:  make(map[string]Variable),
	}
}

// install defines the hook globals and the console object.
func (r *run) install() error {
	rt := r.rt
	new(require.Registry).Enable(rt)
	if u, ok := require.Require(rt, "util").(*goja.Object); ok {
		r.util = u
		r.format, _ = goja.AssertFunction(u.Get("format"))
	}

	for name, fn := range map[string]func(goja.FunctionCall) goja.Value{
		instrument.StepHook:    r.stepHook,
		instrument.CaptureHook: r.captureHook,
		instrument.EnterHook:   r.enterHook,
		instrument.ExitHook:    r.exitHook,
		MemoryHook:             r.memoryHook,
	} {
		if err := rt.Set(name, fn); err != nil {
			return err
		}
	}

	console := rt.NewObject()
	for _, kind := range []ConsoleKind{ConsoleLog, ConsoleWarn, ConsoleError, ConsoleInfo, ConsoleDebug} {
		if err := console.Set(string(kind), r.consoleMethod(kind)); err != nil {
			return err
		}
	}
	return rt.Set("console", console)
}

func (r *run) updateMemory() int {
	r.memory = 8*len(r.vars) + 16*len(r.stack)
	return r.memory
}

func (r *run) stepHook(call goja.FunctionCall) goja.Value {
	ctl := &r.e.ctl
	if cause := ctl.await(r.e.opts.pollInterval); cause != nil {
		r.rt.Interrupt(cause)
		return goja.Undefined()
	}
	index, ok := ctl.advance(r.limit)
	if !ok {
		if ctl.abort(ErrStepLimit) {
			r.rt.Interrupt(ErrStepLimit)
		}
		return goja.Undefined()
	}
	r.line = int(call.Argument(1).ToInteger())
	rec := StepRecord{
		Index:     index,
		NodeID:    int(call.Argument(0).ToInteger()),
		Line:      r.line,
		Variables: r.vars,
		CallStack: r.stack,
		Memory:    r.updateMemory(),
		Time:      time.Now(),
	}
	r.sinks.Step(rec)

	ctl.sleep(r.delay)
	if cause := ctl.abortCause(); cause != nil {
		r.rt.Interrupt(cause)
	}
	return goja.Undefined()
}

func (r *run) captureHook(call goja.FunctionCall) goja.Value {
	v, t := capture(r.rt, call.Argument(1))
	r.vars[call.Argument(0).String()] = Variable{Value: v, Type: t, Time: time.Now()}
	return goja.Undefined()
}

func (r *run) enterHook(call goja.FunctionCall) goja.Value {
	var args []any
	if obj, ok := call.Argument(1).(*goja.Object); ok {
		n := obj.Get("length").ToInteger()
		args = make([]any, 0, n)
		for i := int64(0); i < n; i++ {
			v, _ := capture(r.rt, obj.Get(strconv.FormatInt(i, 10)))
			args = append(args, v)
		}
	}
	r.stack = append(r.stack, CallFrame{
		Name:    call.Argument(0).String(),
		Args:    args,
		Entered: time.Now(),
	})
	return goja.Undefined()
}

func (r *run) exitHook(goja.FunctionCall) goja.Value {
	if len(r.stack) > 0 {
		r.stack = r.stack[:len(r.stack)-1]
	}
	return goja.Undefined()
}

func (r *run) memoryHook(goja.FunctionCall) goja.Value {
	return r.rt.ToValue(r.updateMemory())
}

func (r *run) consoleMethod(kind ConsoleKind) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		r.sinks.Console(ConsoleRecord{
			Kind:    kind,
			Message: r.message(call.Arguments),
			Time:    time.Now(),
		})
		return goja.Undefined()
	}
}

// message joins the console arguments. A first argument holding a format
// directive is expanded with util.format.
func (r *run) message(args []goja.Value) string {
	if len(args) > 0 && r.format != nil && Classify(args[0]) == TypeString && strings.Contains(args[0].String(), "%") {
		if res, err := r.format(r.util, args...); err == nil {
			return res.String()
		}
	}
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = display(r.rt, a)
	}
	return strings.Join(parts, " ")
}
