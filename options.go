package stepper

import (
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/dop251/goja_stepper/instrument"
)

const (
	// DefaultSpeed is the playback speed used when Options.Speed is zero.
	DefaultSpeed = 1000
	// DefaultPollInterval bounds how long a paused run waits before it
	// re-checks the control block.
	DefaultPollInterval = 50 * time.Millisecond
)

// Unthrottled disables the delay between steps.
var Unthrottled = math.Inf(1)

// Options configure a single run.
type Options struct {
	// Speed is the number of steps per second; the delay after each step is
	// one second divided by Speed. Zero means DefaultSpeed, Unthrottled
	// means no delay.
	Speed float64
	// MaxSteps fails the run with ErrStepLimit once that many steps have
	// been recorded. Zero means no limit.
	MaxSteps int
	// Timeout interrupts the run, even mid-statement, and fails it with
	// ErrTimeout. Zero means no timeout.
	Timeout time.Duration
	// Strategy selects the instrumentation generator for Execute.
	Strategy instrument.Strategy

	// OnStep, OnConsole and OnError receive this run's records in addition
	// to the engine's sinks. Nil callbacks are skipped.
	OnStep    func(StepRecord)
	OnConsole func(ConsoleRecord)
	OnError   func(ErrorRecord)
}

func (o *Options) delay() time.Duration {
	speed := o.Speed
	if speed == 0 {
		speed = DefaultSpeed
	}
	if speed < 0 || math.IsInf(speed, 1) {
		return 0
	}
	return time.Duration(float64(time.Second) / speed)
}

// EngineOption configures an Engine. See WithLogger, WithPollInterval and
// WithSink.
type EngineOption interface {
	apply(*engineOptions)
}

type engineOptions struct {
	logger       *slog.Logger
	pollInterval time.Duration
	sinks        []Sink
}

var defaultEngineOptions = engineOptions{
	pollInterval: DefaultPollInterval,
}

type funcOption struct {
	f func(*engineOptions)
}

func (fdo *funcOption) apply(do *engineOptions) {
	fdo.f(do)
}

func newFuncOption(f func(*engineOptions)) *funcOption {
	return &funcOption{
		f: f,
	}
}

// WithLogger sets the logger for run life-cycle events. The default discards.
func WithLogger(l *slog.Logger) EngineOption {
	return newFuncOption(func(o *engineOptions) {
		o.logger = l
	})
}

// WithPollInterval changes how often a paused run re-checks its state.
func WithPollInterval(d time.Duration) EngineOption {
	return newFuncOption(func(o *engineOptions) {
		if d > 0 {
			o.pollInterval = d
		}
	})
}

// WithSink registers a sink that receives the records of every run.
func WithSink(s Sink) EngineOption {
	return newFuncOption(func(o *engineOptions) {
		o.sinks = append(o.sinks, s)
	})
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
