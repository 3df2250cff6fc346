package stepper

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dop251/goja"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dop251/goja_stepper/instrument"
	"github.com/dop251/goja_stepper/syntax"
)

// collector keeps every record of a run.
type collector struct {
	mu      sync.Mutex
	steps   []StepRecord
	console []ConsoleRecord
	errs    []ErrorRecord
}

func (c *collector) Step(r StepRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.steps = append(c.steps, r)
}

func (c *collector) Console(r ConsoleRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.console = append(c.console, r)
}

func (c *collector) Error(r ErrorRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs = append(c.errs, r)
}

var ignoreTimes = cmp.Options{
	cmpopts.IgnoreFields(StepRecord{}, "Time"),
	cmpopts.IgnoreFields(Variable{}, "Time"),
	cmpopts.IgnoreFields(CallFrame{}, "Entered"),
}

func fast() Options {
	return Options{Speed: Unthrottled}
}

func TestFibConsole(t *testing.T) {
	c := &collector{}
	e := New(WithSink(c))
	res, err := e.Execute(context.Background(),
		`function fib(n){ if(n<=1) return n; return fib(n-1)+fib(n-2);} console.log(fib(5));`, fast())
	require.NoError(t, err)
	assert.Equal(t, Completed, res.State)
	assert.Equal(t, Completed, e.State())
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, len(c.steps), res.Steps)

	require.NotEmpty(t, c.console)
	last := c.console[len(c.console)-1]
	assert.Equal(t, ConsoleLog, last.Kind)
	assert.Equal(t, "5", last.Message)
	assert.Empty(t, c.errs)

	for i, s := range c.steps {
		assert.Equal(t, i+1, s.Index)
		assert.Equal(t, 8*len(s.Variables)+16*len(s.CallStack), s.Memory)
	}
}

func TestStopDeliversNoFurtherSteps(t *testing.T) {
	e := New()
	var got []int
	res, err := e.Execute(context.Background(), "let n = 0;\nfor (let i = 0; i < 100; i++) {\n  n += i;\n}\n", Options{
		Speed: Unthrottled,
		OnStep: func(r StepRecord) {
			got = append(got, r.Index)
			if r.Index == 3 {
				e.Stop()
				e.Stop()
			}
		},
	})
	require.NoError(t, err)
	assert.Equal(t, Stopped, res.State)
	assert.Equal(t, []int{1, 2, 3}, got)
	assert.Equal(t, ControlState{Step: 3}, e.Control())
}

func TestPauseResumeMatchesUnpausedRun(t *testing.T) {
	const src = `
let total = 0;
const items = [3, 1, 2];
function add(a, b) {
  return a + b;
}
for (const v of items) {
  total = add(total, v);
}
const summary = { total, count: items.length };
`
	plain := &collector{}
	_, err := New(WithSink(plain)).Execute(context.Background(), src, fast())
	require.NoError(t, err)

	paused := &collector{}
	e := New(WithSink(paused), WithPollInterval(5*time.Millisecond))
	var resumed sync.WaitGroup
	var sawPaused bool
	res, err := e.Execute(context.Background(), src, Options{
		Speed: Unthrottled,
		OnStep: func(r StepRecord) {
			if r.Index != 4 {
				return
			}
			e.Pause()
			sawPaused = e.Control().Paused
			resumed.Add(1)
			go func() {
				defer resumed.Done()
				time.Sleep(30 * time.Millisecond)
				e.Resume()
			}()
		},
	})
	require.NoError(t, err)
	resumed.Wait()
	assert.True(t, sawPaused)
	assert.Equal(t, Completed, res.State)

	if diff := cmp.Diff(plain.steps, paused.steps, ignoreTimes); diff != "" {
		t.Fatalf("paused trace differs (-plain +paused):\n%s", diff)
	}
}

func TestVariablesMatchDirectExecution(t *testing.T) {
	const src = `
var count = 3;
let name = "a" + "b";
const list = [1, "two", null, undefined, () => 1];
let nested = { x: 1, y: [true, { z: "<q>" }], skip: undefined };
let when = new Date(0);
let nothing = null;
let missing;
count = count * 2;
`
	c := &collector{}
	_, err := New(WithSink(c)).Execute(context.Background(), src+`"end";`, fast())
	require.NoError(t, err)
	require.NotEmpty(t, c.steps)
	vars := c.steps[len(c.steps)-1].Variables

	rt := goja.New()
	_, err = rt.RunString(src)
	require.NoError(t, err)
	stringify := func(name string) string {
		v, err := rt.RunString("JSON.stringify(" + name + ")")
		require.NoError(t, err)
		return v.String()
	}

	assert.Equal(t, Variable{Value: float64(6), Type: TypeNumber, Time: vars["count"].Time}, vars["count"])
	assert.Equal(t, "ab", vars["name"].Value)
	assert.Equal(t, TypeString, vars["name"].Type)
	for _, name := range []string{"list", "nested", "when"} {
		assert.Equal(t, TypeObject, vars[name].Type, name)
		assert.Equal(t, stringify(name), vars[name].Value, name)
	}
	assert.Equal(t, TypeNull, vars["nothing"].Type)
	assert.Nil(t, vars["nothing"].Value)
	assert.Equal(t, TypeUndefined, vars["missing"].Type)
}

func TestSyntaxErrorNeverRuns(t *testing.T) {
	c := &collector{}
	e := New(WithSink(c))
	res, err := e.Execute(context.Background(), "function( { ", fast())
	var se *syntax.SyntaxError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, Failed, res.State)
	assert.Zero(t, res.Steps)
	assert.Empty(t, c.steps)
	require.Len(t, c.errs, 1)
	assert.Equal(t, ErrorSyntax, c.errs[0].Kind)
	assert.Equal(t, se.Line, c.errs[0].Line)
	assert.Positive(t, c.errs[0].Line)
}

func TestRuntimeErrorLocation(t *testing.T) {
	const src = "let a = 1;\nfunction f() {\n  return missing + 1;\n}\nf();\n"
	for _, s := range []instrument.Strategy{instrument.StrategySplice, instrument.StrategySynthesize} {
		t.Run(string(s), func(t *testing.T) {
			c := &collector{}
			res, err := New(WithSink(c)).Execute(context.Background(), src, Options{Speed: Unthrottled, Strategy: s})
			var re *RuntimeError
			require.True(t, errors.As(err, &re), "%v", err)
			assert.Equal(t, Failed, res.State)
			assert.Equal(t, s, res.Strategy)
			assert.Equal(t, "ReferenceError", re.Name)
			assert.Equal(t, "missing is not defined", re.Message)
			assert.Equal(t, 3, re.Line)
			assert.Contains(t, re.Stack, "at f (input.js:3:")
			assert.Contains(t, re.CodeFrame(), "→ 3 │   return missing + 1;")
			assert.Contains(t, re.Suggestions, "Make sure 'missing' is declared before it is used")
			assert.Contains(t, re.Detail(), "Stack trace:")

			require.Len(t, c.errs, 1)
			assert.Equal(t, ErrorRuntime, c.errs[0].Kind)
			assert.Equal(t, "ReferenceError: missing is not defined", c.errs[0].Message)
			assert.Equal(t, 3, c.errs[0].Line)
		})
	}
}

func TestThrownErrorKeepsEarlierRecords(t *testing.T) {
	c := &collector{}
	_, err := New(WithSink(c)).Execute(context.Background(), "let a = 1;\nconsole.log(a);\nthrow new TypeError('bad');\n", fast())
	var re *RuntimeError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "TypeError", re.Name)
	assert.Equal(t, 3, re.Line)
	assert.Len(t, c.steps, 3)
	assert.Equal(t, "1", c.console[0].Message)
	assert.Equal(t, float64(1), c.steps[2].Variables["a"].Value)
}

func TestBusy(t *testing.T) {
	e := New()
	paused := make(chan struct{})
	done := make(chan *Result, 1)
	go func() {
		res, _ := e.Execute(context.Background(), "let i = 0;\nwhile (true) {\n  i++;\n}\n", Options{
			Speed: Unthrottled,
			OnStep: func(r StepRecord) {
				if r.Index == 1 {
					e.Pause()
					close(paused)
				}
			},
		})
		done <- res
	}()
	<-paused

	_, err := e.Execute(context.Background(), "1;", fast())
	assert.ErrorIs(t, err, ErrBusy)
	_, err = e.Run(context.Background(), &instrument.Result{}, fast())
	assert.ErrorIs(t, err, ErrBusy)
	assert.Equal(t, ControlState{Running: true, Paused: true, Step: 1}, e.Control())
	assert.Equal(t, Paused, e.State())

	e.Stop()
	assert.False(t, e.Control().Running)
	res := <-done
	assert.Equal(t, Stopped, res.State)
	assert.Equal(t, 1, res.Steps)

	res, err = e.Execute(context.Background(), "1;", fast())
	require.NoError(t, err)
	assert.Equal(t, Completed, res.State)
}

func TestStepLimit(t *testing.T) {
	c := &collector{}
	res, err := New(WithSink(c)).Execute(context.Background(), "let x = 0;\nwhile (true) {\n  x++;\n}\n", Options{
		Speed:    Unthrottled,
		MaxSteps: 10,
	})
	assert.ErrorIs(t, err, ErrStepLimit)
	assert.Equal(t, Failed, res.State)
	assert.Equal(t, 10, res.Steps)
	assert.Len(t, c.steps, 10)
	require.Len(t, c.errs, 1)
	assert.Equal(t, ErrorStepLimit, c.errs[0].Kind)
	assert.Equal(t, 3, c.errs[0].Line)
}

func TestTimeout(t *testing.T) {
	c := &collector{}
	res, err := New(WithSink(c)).Execute(context.Background(), "while (true) {}", Options{
		Speed:   Unthrottled,
		Timeout: 50 * time.Millisecond,
	})
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, Failed, res.State)
	require.Len(t, c.errs, 1)
	assert.Equal(t, ErrorTimeout, c.errs[0].Kind)
}

func TestContextCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	c := &collector{}
	res, err := New(WithSink(c)).Execute(ctx, "while (true) {}", fast())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, Stopped, res.State)
	assert.Empty(t, c.errs)
}

func TestStopCancelsDelay(t *testing.T) {
	e := New()
	start := time.Now()
	res, err := e.Execute(context.Background(), "let a = 1;\na = 2;\n", Options{
		Speed: 0.1,
		OnStep: func(StepRecord) {
			go func() {
				time.Sleep(10 * time.Millisecond)
				e.Stop()
			}()
		},
	})
	require.NoError(t, err)
	assert.Equal(t, Stopped, res.State)
	assert.Equal(t, 1, res.Steps)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestConsole(t *testing.T) {
	c := &collector{}
	_, err := New(WithSink(c)).Execute(context.Background(), `
console.log("%s has %d items", "list", 3);
console.warn({ a: [1, 2] }, "x", 1);
console.info(function foo() {});
console.error(undefined, null);
console.debug("n=%d", 7);
`, fast())
	require.NoError(t, err)

	type entry struct {
		Kind    ConsoleKind
		Message string
	}
	var got []entry
	for _, r := range c.console {
		got = append(got, entry{r.Kind, r.Message})
	}
	assert.Equal(t, []entry{
		{ConsoleLog, "list has 3 items"},
		{ConsoleWarn, `{"a":[1,2]} x 1`},
		{ConsoleInfo, "[Function: foo]"},
		{ConsoleError, "undefined null"},
		{ConsoleDebug, "n=7"},
	}, got)
}

func TestCallStack(t *testing.T) {
	c := &collector{}
	_, err := New(WithSink(c)).Execute(context.Background(), "function add(a, b) {\n  return a + b;\n}\nadd(1, 2);\n", fast())
	require.NoError(t, err)

	var inside, call *StepRecord
	for i := range c.steps {
		switch c.steps[i].Line {
		case 2:
			inside = &c.steps[i]
		case 4:
			call = &c.steps[i]
		}
	}
	require.NotNil(t, inside)
	require.Len(t, inside.CallStack, 1)
	assert.Equal(t, "add", inside.CallStack[0].Name)
	assert.Equal(t, []any{float64(1), float64(2)}, inside.CallStack[0].Args)
	assert.Equal(t, float64(2), inside.Variables["b"].Value)
	require.NotNil(t, call)
	assert.Empty(t, call.CallStack)
}

func TestRecordsAreCopies(t *testing.T) {
	var steps []StepRecord
	_, err := New().Execute(context.Background(), "let a = 1;\na = 2;\na = 3;\n", Options{
		Speed:  Unthrottled,
		OnStep: func(r StepRecord) { steps = append(steps, r) },
	})
	require.NoError(t, err)
	require.Len(t, steps, 3)
	assert.NotContains(t, steps[0].Variables, "a")
	assert.Equal(t, float64(1), steps[1].Variables["a"].Value)
	assert.Equal(t, float64(2), steps[2].Variables["a"].Value)
}

func TestRunInstrumented(t *testing.T) {
	prog, err := instrument.InstrumentSource("let a = 1;", instrument.WithStrategy(instrument.StrategySynthesize))
	require.NoError(t, err)
	res, err := New().Run(context.Background(), prog, fast())
	require.NoError(t, err)
	assert.Equal(t, Completed, res.State)
	assert.Equal(t, instrument.StrategySynthesize, res.Strategy)
	assert.Equal(t, 1, res.Steps)
}

func TestControlOutsideRun(t *testing.T) {
	e := New()
	e.Pause()
	e.Resume()
	e.Stop()
	assert.Equal(t, Idle, e.State())
	assert.Equal(t, ControlState{}, e.Control())
}

func TestDelay(t *testing.T) {
	assert.Equal(t, time.Millisecond, (&Options{}).delay())
	assert.Equal(t, 100*time.Millisecond, (&Options{Speed: 10}).delay())
	assert.Zero(t, (&Options{Speed: Unthrottled}).delay())
}
