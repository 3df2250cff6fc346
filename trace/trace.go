// Package trace records the output of a stepper run so it can be replayed,
// stored and profiled.
package trace

import (
	"sync"
	"time"

	stepper "github.com/dop251/goja_stepper"
	"github.com/dop251/goja_stepper/instrument"
)

// FormatVersion is written into every encoded trace. Decode accepts any
// 1.x version.
const FormatVersion = "1.0.0"

// Trace is the complete record of one run.
type Trace struct {
	Version  string              `json:"version" yaml:"version"`
	RunID    string              `json:"runId,omitempty" yaml:"runId,omitempty"`
	State    stepper.State       `json:"state" yaml:"state"`
	Strategy instrument.Strategy `json:"strategy,omitempty" yaml:"strategy,omitempty"`
	Name     string              `json:"name,omitempty" yaml:"name,omitempty"`
	Source   string              `json:"source,omitempty" yaml:"source,omitempty"`
	Sites    []instrument.Site   `json:"sites,omitempty" yaml:"sites,omitempty"`
	Started  time.Time           `json:"started" yaml:"started"`
	Duration time.Duration       `json:"duration" yaml:"duration"`

	Steps   []stepper.StepRecord    `json:"steps" yaml:"steps"`
	Console []stepper.ConsoleRecord `json:"console,omitempty" yaml:"console,omitempty"`
	Errors  []stepper.ErrorRecord   `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// Recorder is a stepper.Sink that accumulates a Trace. It is safe to read
// from another goroutine while a run is in progress.
type Recorder struct {
	mu sync.Mutex
	t  Trace
}

// NewRecorder returns an empty recorder. Register it with
// stepper.WithSink or Engine.AddSink.
func NewRecorder() *Recorder {
	return &Recorder{t: Trace{Version: FormatVersion, Started: time.Now()}}
}

func (r *Recorder) Step(rec stepper.StepRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.t.Steps = append(r.t.Steps, rec)
}

func (r *Recorder) Console(rec stepper.ConsoleRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.t.Console = append(r.t.Console, rec)
}

func (r *Recorder) Error(rec stepper.ErrorRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.t.Errors = append(r.t.Errors, rec)
}

// SetProgram attaches the instrumented program's file name, source and
// sites.
func (r *Recorder) SetProgram(prog *instrument.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.t.Name = prog.Tree.Name
	r.t.Source = prog.Tree.Source
	r.t.Sites = prog.Sites
	r.t.Strategy = prog.Strategy
}

// Finish copies the run summary into the trace.
func (r *Recorder) Finish(res *stepper.Result) {
	if res == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.t.RunID = res.RunID
	r.t.State = res.State
	r.t.Duration = res.Duration
	if res.Strategy != "" {
		r.t.Strategy = res.Strategy
	}
}

// Len returns the number of steps recorded so far.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.t.Steps)
}

// Trace returns a copy of what has been recorded.
func (r *Recorder) Trace() *Trace {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := r.t
	t.Steps = append([]stepper.StepRecord(nil), r.t.Steps...)
	t.Console = append([]stepper.ConsoleRecord(nil), r.t.Console...)
	t.Errors = append([]stepper.ErrorRecord(nil), r.t.Errors...)
	return &t
}

// Normalize clears wall-clock fields so traces of different runs of the
// same program compare equal.
func (t *Trace) Normalize() {
	t.RunID = ""
	t.Started = time.Time{}
	t.Duration = 0
	for i := range t.Steps {
		s := &t.Steps[i]
		s.Time = time.Time{}
		for k, v := range s.Variables {
			v.Time = time.Time{}
			s.Variables[k] = v
		}
		for j := range s.CallStack {
			s.CallStack[j].Entered = time.Time{}
		}
	}
	for i := range t.Console {
		t.Console[i].Time = time.Time{}
	}
	for i := range t.Errors {
		t.Errors[i].Time = time.Time{}
	}
}
