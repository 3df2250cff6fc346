package stepper

import (
	"fmt"
	"time"
)

// ValueType is the closed set of type tags attached to captured values.
type ValueType string

const (
	TypeNumber    ValueType = "number"
	TypeString    ValueType = "string"
	TypeBoolean   ValueType = "boolean"
	TypeObject    ValueType = "object"
	TypeFunction  ValueType = "function"
	TypeUndefined ValueType = "undefined"
	TypeNull      ValueType = "null"
)

// Variable is the last captured value of a program variable.
//
// Value holds a float64, string or bool for primitives, nil for undefined and
// null, and the structural text rendering for objects and functions.
type Variable struct {
	Value any       `json:"value" yaml:"value"`
	Type  ValueType `json:"type" yaml:"type"`
	Time  time.Time `json:"time" yaml:"time"`
}

// CallFrame is one active function invocation.
type CallFrame struct {
	Name    string    `json:"name" yaml:"name"`
	Args    []any     `json:"args" yaml:"args"`
	Entered time.Time `json:"entered" yaml:"entered"`
}

// StepRecord is emitted once per executed step site.
type StepRecord struct {
	// Index counts steps from 1 within a run.
	Index     int                 `json:"index" yaml:"index"`
	NodeID    int                 `json:"nodeId" yaml:"nodeId"`
	Line      int                 `json:"line" yaml:"line"`
	Variables map[string]Variable `json:"variables" yaml:"variables"`
	CallStack []CallFrame         `json:"callStack" yaml:"callStack"`
	Memory    int                 `json:"memory" yaml:"memory"`
	Time      time.Time           `json:"time" yaml:"time"`
}

// ConsoleKind is the console method that produced a ConsoleRecord.
type ConsoleKind string

const (
	ConsoleLog   ConsoleKind = "log"
	ConsoleWarn  ConsoleKind = "warn"
	ConsoleError ConsoleKind = "error"
	ConsoleInfo  ConsoleKind = "info"
	ConsoleDebug ConsoleKind = "debug"
)

// ConsoleRecord is one console call made by the program.
type ConsoleRecord struct {
	Kind    ConsoleKind `json:"kind" yaml:"kind"`
	Message string      `json:"message" yaml:"message"`
	Time    time.Time   `json:"time" yaml:"time"`
}

// ErrorKind tells which stage of a run failed.
type ErrorKind string

const (
	ErrorSyntax          ErrorKind = "syntax"
	ErrorInstrumentation ErrorKind = "instrumentation"
	ErrorRuntime         ErrorKind = "runtime"
	ErrorTimeout         ErrorKind = "timeout"
	ErrorStepLimit       ErrorKind = "step-limit"
)

// ErrorRecord describes why a run failed. Line and Column refer to the
// original program and are zero when unknown.
type ErrorRecord struct {
	Kind    ErrorKind `json:"kind" yaml:"kind"`
	Message string    `json:"message" yaml:"message"`
	Line    int       `json:"line,omitempty" yaml:"line,omitempty"`
	Column  int       `json:"column,omitempty" yaml:"column,omitempty"`
	Stack   string    `json:"stack,omitempty" yaml:"stack,omitempty"`
	Time    time.Time `json:"time" yaml:"time"`
}

// State is the engine's position in its run life cycle.
type State int

const (
	Idle State = iota
	Running
	Paused
	Completed
	Failed
	Stopped
)

var stateNames = [...]string{
	Idle:      "idle",
	Running:   "running",
	Paused:    "paused",
	Completed: "completed",
	Failed:    "failed",
	Stopped:   "stopped",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	for i, name := range stateNames {
		if name == string(b) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", b)
}

// Active reports whether a run is in progress.
func (s State) Active() bool {
	return s == Running || s == Paused
}

// ControlState is a snapshot of the control block.
type ControlState struct {
	Running bool `json:"running"`
	Paused  bool `json:"paused"`
	Step    int  `json:"step"`
}

func (r *StepRecord) clone() StepRecord {
	c := *r
	c.Variables = make(map[string]Variable, len(r.Variables))
	for k, v := range r.Variables {
		c.Variables[k] = v
	}
	c.CallStack = make([]CallFrame, len(r.CallStack))
	for i, f := range r.CallStack {
		f.Args = append([]any(nil), f.Args...)
		c.CallStack[i] = f
	}
	return c
}
