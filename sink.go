package stepper

// Sink receives the records of a run. Methods are called on the goroutine
// executing the program, in the order the events happen, and must not call
// back into the engine's Run or Execute.
//
// For convenience, embed BaseSink to get no-op implementations of all
// methods, then override only the ones you need.
type Sink interface {
	// Step is called once per executed step site.
	Step(StepRecord)

	// Console is called for every console call made by the program.
	Console(ConsoleRecord)

	// Error is called when a run fails, at most once per run.
	Error(ErrorRecord)
}

// BaseSink provides no-op implementations of all Sink methods.
//
// Example:
//
//	type counter struct {
//	    stepper.BaseSink
//	    n int
//	}
//
//	func (c *counter) Step(stepper.StepRecord) { c.n++ }
type BaseSink struct{}

func (BaseSink) Step(StepRecord) {}

func (BaseSink) Console(ConsoleRecord) {}

func (BaseSink) Error(ErrorRecord) {}

// SinkFuncs adapts plain functions to Sink. Nil fields are skipped.
type SinkFuncs struct {
	OnStep    func(StepRecord)
	OnConsole func(ConsoleRecord)
	OnError   func(ErrorRecord)
}

func (s SinkFuncs) Step(r StepRecord) {
	if s.OnStep != nil {
		s.OnStep(r)
	}
}

func (s SinkFuncs) Console(r ConsoleRecord) {
	if s.OnConsole != nil {
		s.OnConsole(r)
	}
}

func (s SinkFuncs) Error(r ErrorRecord) {
	if s.OnError != nil {
		s.OnError(r)
	}
}

type sinks []Sink

func (ss sinks) Step(r StepRecord) {
	for _, s := range ss {
		// every sink gets its own copy
		s.Step(r.clone())
	}
}

func (ss sinks) Console(r ConsoleRecord) {
	for _, s := range ss {
		s.Console(r)
	}
}

func (ss sinks) Error(r ErrorRecord) {
	for _, s := range ss {
		s.Error(r)
	}
}
