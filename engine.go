// Package stepper runs JavaScript programs one statement at a time and
// reports a trace of their execution: the current line, the live variables,
// the call stack and a memory estimate at every step, plus console output
// and errors.
//
// Programs are parsed and instrumented (see the instrument package), then run
// on a fresh goja runtime. Each step can be delayed to control playback
// speed, and a run can be paused, resumed and stopped from other goroutines.
package stepper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dop251/goja"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/dop251/goja_stepper/instrument"
	"github.com/dop251/goja_stepper/syntax"
)

// MaxCallStackSize bounds JavaScript recursion; deeper calls throw a
// RangeError.
const MaxCallStackSize = 10000

var tracer = otel.Tracer("github.com/dop251/goja_stepper")

// Result summarizes a finished run.
type Result struct {
	RunID    string              `json:"runId"`
	State    State               `json:"state"`
	Steps    int                 `json:"steps"`
	Strategy instrument.Strategy `json:"strategy,omitempty"`
	Duration time.Duration       `json:"duration"`
}

// Engine executes one program at a time. The zero value is not usable; call
// New.
type Engine struct {
	opts engineOptions
	log  *slog.Logger
	sem  *semaphore.Weighted
	ctl  control

	sinks sinks
}

// New returns an idle engine configured by opts.
func New(opts ...EngineOption) *Engine {
	o := defaultEngineOptions
	for _, opt := range opts {
		opt.apply(&o)
	}
	if o.logger == nil {
		o.logger = discardLogger()
	}
	return &Engine{
		opts:  o,
		log:   o.logger,
		sem:   semaphore.NewWeighted(1),
		sinks: append(sinks(nil), o.sinks...),
	}
}

// AddSink registers a sink for all later runs. It must not be called while a
// run is active.
func (e *Engine) AddSink(s Sink) {
	e.sinks = append(e.sinks, s)
}

// State returns the life-cycle state of the current or last run.
func (e *Engine) State() State {
	return e.ctl.current()
}

// Control returns a snapshot of the control block.
func (e *Engine) Control() ControlState {
	return e.ctl.snapshot()
}

// Pause suspends the run at the next step boundary. It has no effect unless
// a run is executing.
func (e *Engine) Pause() {
	if e.ctl.pause() {
		e.log.Debug("paused", "step", e.ctl.snapshot().Step)
	}
}

// Resume continues a paused run.
func (e *Engine) Resume() {
	if e.ctl.resume() {
		e.log.Debug("resumed")
	}
}

// Stop ends the active run at the next step boundary. A statement that is
// executing is not interrupted.
func (e *Engine) Stop() {
	if e.ctl.abort(ErrStopped) {
		e.log.Debug("stop requested")
	}
}

func (e *Engine) sinksFor(o *Options) sinks {
	ss := append(sinks(nil), e.sinks...)
	if o.OnStep != nil || o.OnConsole != nil || o.OnError != nil {
		ss = append(ss, SinkFuncs{OnStep: o.OnStep, OnConsole: o.OnConsole, OnError: o.OnError})
	}
	return ss
}

// Execute parses, instruments and runs src. Syntax and instrumentation
// failures are reported to the sinks as ErrorRecords and returned; the run
// then ends in Failed without ever entering Running.
func (e *Engine) Execute(ctx context.Context, src string, o Options) (*Result, error) {
	if !e.sem.TryAcquire(1) {
		return nil, ErrBusy
	}
	defer e.sem.Release(1)

	ctx, span := tracer.Start(ctx, "stepper.Execute")
	defer span.End()

	ss := e.sinksFor(&o)
	res := &Result{RunID: uuid.NewString(), Strategy: o.Strategy}

	tree, err := syntax.Parse(src)
	if err != nil {
		span.RecordError(err)
		rec := ErrorRecord{Kind: ErrorSyntax, Message: err.Error(), Time: time.Now()}
		var se *syntax.SyntaxError
		if errors.As(err, &se) {
			rec.Message, rec.Line, rec.Column = se.Message, se.Line, se.Column
		}
		return e.reject(res, ss, rec), err
	}

	strategy := o.Strategy
	if strategy == "" {
		strategy = instrument.StrategyAuto
	}
	_, ispan := tracer.Start(ctx, "instrument.Instrument")
	prog, err := instrument.Instrument(tree,
		instrument.WithStrategy(strategy),
		instrument.WithLogger(e.log.With("run", res.RunID)))
	ispan.End()
	if err != nil {
		span.RecordError(err)
		return e.reject(res, ss, ErrorRecord{
			Kind:    ErrorInstrumentation,
			Message: err.Error(),
			Time:    time.Now(),
		}), err
	}
	return e.run(ctx, res, prog, ss, &o)
}

// Run executes an already instrumented program.
func (e *Engine) Run(ctx context.Context, prog *instrument.Result, o Options) (*Result, error) {
	if !e.sem.TryAcquire(1) {
		return nil, ErrBusy
	}
	defer e.sem.Release(1)

	ctx, span := tracer.Start(ctx, "stepper.Run")
	defer span.End()
	return e.run(ctx, &Result{RunID: uuid.NewString()}, prog, e.sinksFor(&o), &o)
}

func (e *Engine) reject(res *Result, ss sinks, rec ErrorRecord) *Result {
	e.ctl.finish(Failed)
	e.log.Info("run rejected", "run", res.RunID, "kind", rec.Kind, "err", rec.Message)
	ss.Error(rec)
	res.State = Failed
	return res
}

func (e *Engine) run(ctx context.Context, res *Result, prog *instrument.Result, ss sinks, o *Options) (*Result, error) {
	res.Strategy = prog.Strategy
	log := e.log.With("run", res.RunID)
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(
		attribute.String("run", res.RunID),
		attribute.String("strategy", string(prog.Strategy)),
	)

	compiled, err := goja.Compile(instrument.GeneratedName, prog.Source, false)
	if err != nil {
		err = &instrument.InstrumentationError{Strategy: prog.Strategy, Err: err}
		return e.reject(res, ss, ErrorRecord{Kind: ErrorInstrumentation, Message: err.Error(), Time: time.Now()}), err
	}

	rt := goja.New()
	rt.SetMaxCallStackSize(MaxCallStackSize)
	r := newRun(e, rt, ss, o)
	if err := r.install(); err != nil {
		return e.reject(res, ss, ErrorRecord{Kind: ErrorRuntime, Message: err.Error(), Time: time.Now()}), err
	}

	e.ctl.start()
	start := time.Now()
	log.Info("run started", "strategy", prog.Strategy, "sites", len(prog.Sites))

	stopCtx := context.AfterFunc(ctx, func() {
		if e.ctl.abort(ctx.Err()) {
			rt.Interrupt(ctx.Err())
		}
	})
	defer stopCtx()
	if o.Timeout > 0 {
		timer := time.AfterFunc(o.Timeout, func() {
			if e.ctl.abort(ErrTimeout) {
				rt.Interrupt(ErrTimeout)
			}
		})
		defer timer.Stop()
	}

	_, err = rt.RunProgram(compiled)
	stopCtx()

	res.Duration = time.Since(start)
	res.Steps = e.ctl.snapshot().Step
	res.State, err = e.outcome(r, prog, ss, err)
	e.ctl.finish(res.State)

	span.SetAttributes(
		attribute.Int("steps", res.Steps),
		attribute.String("state", res.State.String()),
	)
	if err != nil {
		span.RecordError(err)
		if res.State == Failed {
			span.SetStatus(codes.Error, err.Error())
		}
	}
	log.Info("run finished", "state", res.State, "steps", res.Steps, "duration", res.Duration)
	return res, err
}

// outcome decides the final state from the abort cause and the error
// returned by the runtime, and reports failures to the sinks.
func (e *Engine) outcome(r *run, prog *instrument.Result, ss sinks, err error) (State, error) {
	cause := e.ctl.abortCause()
	switch {
	case cause == nil && err == nil:
		return Completed, nil
	case errors.Is(cause, ErrStopped):
		return Stopped, nil
	case errors.Is(cause, context.Canceled), errors.Is(cause, context.DeadlineExceeded):
		return Stopped, cause
	case errors.Is(cause, ErrTimeout), errors.Is(cause, ErrStepLimit):
		kind := ErrorTimeout
		if errors.Is(cause, ErrStepLimit) {
			kind = ErrorStepLimit
		}
		ss.Error(ErrorRecord{Kind: kind, Message: cause.Error(), Line: r.line, Time: time.Now()})
		return Failed, cause
	}

	rec := ErrorRecord{Kind: ErrorRuntime, Message: err.Error(), Time: time.Now()}
	var ex *goja.Exception
	if errors.As(err, &ex) {
		rerr := newRuntimeError(ex, prog)
		rec.Message = rerr.Name + ": " + rerr.Message
		rec.Line, rec.Column, rec.Stack = rerr.Line, rerr.Column, rerr.Stack
		err = rerr
	} else {
		err = fmt.Errorf("run: %w", err)
	}
	ss.Error(rec)
	return Failed, err
}
