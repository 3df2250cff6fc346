package trace

import (
	"io"
	"strconv"
	"strings"

	"github.com/google/pprof/profile"

	"github.com/dop251/goja_stepper/syntax"
)

// programFunction names the top level of the program in profiles.
const programFunction = "(program)"

// Profile converts the trace into a pprof profile with one "steps" sample
// value per distinct call stack and line, so `go tool pprof` can show where
// a program spends its steps.
func (t *Trace) Profile() *profile.Profile {
	p := &profile.Profile{
		SampleType: []*profile.ValueType{{Type: "steps", Unit: "count"}},
		PeriodType: &profile.ValueType{Type: "steps", Unit: "count"},
		Period:     1,
	}
	if !t.Started.IsZero() {
		p.TimeNanos = t.Started.UnixNano()
	}
	p.DurationNanos = t.Duration.Nanoseconds()

	file := t.Name
	if file == "" {
		file = syntax.DefaultName
	}
	funcs := make(map[string]*profile.Function)
	function := func(name string) *profile.Function {
		if f, ok := funcs[name]; ok {
			return f
		}
		f := &profile.Function{
			ID:         uint64(len(p.Function) + 1),
			Name:       name,
			SystemName: name,
			Filename:   file,
		}
		funcs[name] = f
		p.Function = append(p.Function, f)
		return f
	}

	type locKey struct {
		fn   string
		line int
	}
	locs := make(map[locKey]*profile.Location)
	location := func(fn string, line int) *profile.Location {
		k := locKey{fn, line}
		if l, ok := locs[k]; ok {
			return l
		}
		l := &profile.Location{
			ID:   uint64(len(p.Location) + 1),
			Line: []profile.Line{{Function: function(fn), Line: int64(line)}},
		}
		locs[k] = l
		p.Location = append(p.Location, l)
		return l
	}

	samples := make(map[string]*profile.Sample)
	for _, s := range t.Steps {
		// innermost first
		var stack []*profile.Location
		leaf := programFunction
		if n := len(s.CallStack); n > 0 {
			leaf = s.CallStack[n-1].Name
		}
		stack = append(stack, location(leaf, s.Line))
		for i := len(s.CallStack) - 2; i >= 0; i-- {
			stack = append(stack, location(s.CallStack[i].Name, 0))
		}
		if len(s.CallStack) > 0 {
			stack = append(stack, location(programFunction, 0))
		}

		var key strings.Builder
		for _, l := range stack {
			key.WriteString(strconv.FormatUint(l.ID, 10))
			key.WriteByte(',')
		}
		if sm, ok := samples[key.String()]; ok {
			sm.Value[0]++
			continue
		}
		sm := &profile.Sample{Location: stack, Value: []int64{1}}
		samples[key.String()] = sm
		p.Sample = append(p.Sample, sm)
	}
	return p
}

// WriteProfile writes the gzipped pprof encoding of the trace's profile.
func (t *Trace) WriteProfile(w io.Writer) error {
	p := t.Profile()
	if err := p.CheckValid(); err != nil {
		return err
	}
	return p.Write(w)
}
