package trace

import (
	"sort"

	stepper "github.com/dop251/goja_stepper"
)

// Replay applies the variable snapshots of steps in order and returns the
// values visible after the last one.
func Replay(steps []stepper.StepRecord) map[string]any {
	vals := make(map[string]any)
	for _, s := range steps {
		for name, v := range s.Variables {
			vals[name] = v.Value
		}
	}
	return vals
}

// At returns the step with the given 1-based index.
func (t *Trace) At(index int) (stepper.StepRecord, bool) {
	if index < 1 || index > len(t.Steps) {
		return stepper.StepRecord{}, false
	}
	return t.Steps[index-1], true
}

// Change is a variable whose value differs between two consecutive steps.
type Change struct {
	Name string
	From any
	To   any
	// Added is set when the variable did not exist before.
	Added bool
}

// Changes lists the variables that changed between step index-1 and step
// index, sorted by name.
func (t *Trace) Changes(index int) []Change {
	cur, ok := t.At(index)
	if !ok {
		return nil
	}
	prev, _ := t.At(index - 1)
	var out []Change
	for name, v := range cur.Variables {
		old, existed := prev.Variables[name]
		switch {
		case !existed:
			out = append(out, Change{Name: name, To: v.Value, Added: true})
		case old.Value != v.Value || old.Type != v.Type:
			out = append(out, Change{Name: name, From: old.Value, To: v.Value})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out
}

// Lines returns how many steps were taken on each source line.
func (t *Trace) Lines() map[int]int {
	hits := make(map[int]int)
	for _, s := range t.Steps {
		hits[s.Line]++
	}
	return hits
}
