package stepper

import (
	"testing"
)

func TestStateString(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{Idle, "idle"},
		{Running, "running"},
		{Paused, "paused"},
		{Completed, "completed"},
		{Failed, "failed"},
		{Stopped, "stopped"},
		{State(99), "State(99)"},
	}

	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", int(tt.s), got, tt.want)
		}
	}
}

func TestStateText(t *testing.T) {
	for s := Idle; s <= Stopped; s++ {
		b, err := s.MarshalText()
		if err != nil {
			t.Fatal(err)
		}
		var got State
		if err := got.UnmarshalText(b); err != nil {
			t.Fatal(err)
		}
		if got != s {
			t.Errorf("%s round-tripped to %s", s, got)
		}
	}
	var s State
	if err := s.UnmarshalText([]byte("sleeping")); err == nil {
		t.Error("expected an error for an unknown state")
	}
}

func TestStateActive(t *testing.T) {
	for s := Idle; s <= Stopped; s++ {
		want := s == Running || s == Paused
		if s.Active() != want {
			t.Errorf("%s.Active() = %v", s, !want)
		}
	}
}

type countingSink struct {
	BaseSink
	steps []StepRecord
}

func (c *countingSink) Step(r StepRecord) {
	c.steps = append(c.steps, r)
}

func TestSinksCopyRecords(t *testing.T) {
	a, b := &countingSink{}, &countingSink{}
	var errs []ErrorRecord
	ss := sinks{a, b, SinkFuncs{OnError: func(r ErrorRecord) { errs = append(errs, r) }}}

	r := StepRecord{
		Index:     1,
		Variables: map[string]Variable{"x": {Value: float64(1), Type: TypeNumber}},
		CallStack: []CallFrame{{Name: "f", Args: []any{float64(2)}}},
	}
	ss.Step(r)
	ss.Console(ConsoleRecord{Kind: ConsoleLog, Message: "ignored"})
	ss.Error(ErrorRecord{Kind: ErrorRuntime, Message: "boom"})

	if len(a.steps) != 1 || len(b.steps) != 1 {
		t.Fatalf("steps: %d, %d", len(a.steps), len(b.steps))
	}
	a.steps[0].Variables["x"] = Variable{Value: "changed", Type: TypeString}
	a.steps[0].CallStack[0].Args[0] = "changed"
	if b.steps[0].Variables["x"].Value != float64(1) || r.Variables["x"].Value != float64(1) {
		t.Error("variables are shared between sinks")
	}
	if b.steps[0].CallStack[0].Args[0] != float64(2) || r.CallStack[0].Args[0] != float64(2) {
		t.Error("call frames are shared between sinks")
	}
	if len(errs) != 1 || errs[0].Message != "boom" {
		t.Errorf("errors: %v", errs)
	}
}
