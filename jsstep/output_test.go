package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	stepper "github.com/dop251/goja_stepper"
	"github.com/dop251/goja_stepper/analyzer"
	"github.com/dop251/goja_stepper/config"
	"github.com/dop251/goja_stepper/trace"
)

const sample = `function add(a, b) {
  return a + b;
}
let sum = add(2, 3);
console.log("sum", sum);
`

func writeSample(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sample.js")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))
	return path
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestListing(t *testing.T) {
	lines := strings.Split(strings.TrimSuffix(sample, "\n"), "\n")
	out := listing(lines, 2, 1)
	rows := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	require.Len(t, rows, 3)
	assert.Contains(t, rows[0], "1     function add(a, b) {")
	assert.True(t, strings.HasPrefix(rows[1], GreenColor+">"+ResetColor+" 2"))
	assert.Contains(t, rows[1], "  return a + b;")
	assert.Contains(t, rows[2], "3     }")

	assert.Empty(t, listing(lines, 40, 2))
}

func TestFormatVariables(t *testing.T) {
	got := formatVariables(map[string]stepper.Variable{
		"s": {Value: "hi", Type: stepper.TypeString},
		"n": {Value: float64(3), Type: stepper.TypeNumber},
		"u": {Type: stepper.TypeUndefined},
		"o": {Value: `{"a":1}`, Type: stepper.TypeObject},
		"z": {Type: stepper.TypeNull},
	})
	assert.Equal(t, `n=3 o={"a":1} s="hi" u=undefined z=null`, got)
	assert.Empty(t, formatVariables(nil))
}

func TestPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := newPrinter(&buf, sample, 0)
	p.step(stepper.StepRecord{
		Index:     3,
		Line:      2,
		CallStack: []stepper.CallFrame{{Name: "add"}},
		Variables: map[string]stepper.Variable{"a": {Value: float64(2), Type: stepper.TypeNumber}},
	})
	p.console(stepper.ConsoleRecord{Kind: stepper.ConsoleLog, Message: "sum 5"})
	p.console(stepper.ConsoleRecord{Kind: stepper.ConsoleWarn, Message: "careful"})
	assert.Equal(t, GrayColor+"#3"+ResetColor+" line 2 in add  a=2\nsum 5\n[warn] careful\n", buf.String())
}

func TestWriteSummary(t *testing.T) {
	var buf bytes.Buffer
	writeSummary(&buf, &stepper.Result{State: stepper.Completed, Steps: 12345})
	assert.Equal(t, "completed after 12,345 steps in 0s\n", buf.String())
}

func TestWriteReport(t *testing.T) {
	r, err := analyzer.AnalyzeSource(context.Background(), sample)
	require.NoError(t, err)
	var buf bytes.Buffer
	writeReport(&buf, r)
	out := buf.String()
	assert.Contains(t, out, "Functions:\n  add")
	assert.Contains(t, out, "declaration(a, b) line 1")
	assert.Contains(t, out, "Variables:")
	assert.Contains(t, out, "globals:  console")
}

func TestEncode(t *testing.T) {
	r := &analyzer.Report{Complexity: 3}
	var buf bytes.Buffer
	require.NoError(t, encode(&buf, r, "json"))
	var m map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &m))
	assert.Equal(t, float64(3), m["complexity"])

	buf.Reset()
	require.NoError(t, encode(&buf, r, "yaml"))
	assert.Contains(t, buf.String(), "complexity: 3")

	buf.Reset()
	require.NoError(t, encode(&buf, r, "cbor"))
	assert.NotZero(t, buf.Len())

	assert.Error(t, encode(&buf, r, "xml"))
}

func TestErrorText(t *testing.T) {
	re := &stepper.RuntimeError{Name: "TypeError", Message: "boom"}
	assert.Equal(t, re.Detail(), errorText(re))
	assert.Equal(t, assert.AnError.Error(), errorText(assert.AnError))
	assert.Equal(t, re.Detail(), errorText(fmt.Errorf("run: %w", re)))
}

func TestControl(t *testing.T) {
	eng := stepper.New()
	// stop outside a run is a no-op, the reader must still be drained
	control(strings.NewReader("p\nc\nbogus\ns\nignored\n"), eng)
	assert.Equal(t, stepper.Idle, eng.State())
}

func TestExecute(t *testing.T) {
	path := writeSample(t)
	cfg := config.Default()
	cfg.Speed = 0
	tracePath := filepath.Join(t.TempDir(), "out.yaml")
	f := &runFlags{tracePath: tracePath}

	var buf bytes.Buffer
	err := execute(context.Background(), &buf, path, cfg, f, stepper.New(), discard())
	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, "sum 5\n")
	assert.Contains(t, out, "line 4")
	assert.Contains(t, out, "completed after")

	data, err := os.Open(tracePath)
	require.NoError(t, err)
	defer data.Close()
	tr, err := trace.Decode(data, trace.YAML)
	require.NoError(t, err)
	assert.Equal(t, stepper.Completed, tr.State)
	require.Len(t, tr.Console, 1)
	assert.Equal(t, "sum 5", tr.Console[0].Message)
}

func TestExecuteJSON(t *testing.T) {
	path := writeSample(t)
	cfg := config.Default()
	cfg.Speed = 0
	cfg.Format = "json"

	var buf bytes.Buffer
	require.NoError(t, execute(context.Background(), &buf, path, cfg, &runFlags{}, stepper.New(), discard()))
	tr, err := trace.Decode(&buf, trace.JSON)
	require.NoError(t, err)
	assert.Equal(t, sample, tr.Source)
	assert.NotEmpty(t, tr.Steps)
}

func TestExecuteRuntimeError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.js")
	require.NoError(t, os.WriteFile(path, []byte("let a = 1;\nmissing();\n"), 0o644))
	cfg := config.Default()
	cfg.Speed = 0

	var buf bytes.Buffer
	err := execute(context.Background(), &buf, path, cfg, &runFlags{quiet: true}, stepper.New(), discard())
	var re *stepper.RuntimeError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, 2, re.Line)
	assert.Contains(t, errorText(err), "→ 2")
	assert.Contains(t, buf.String(), "failed after")
	assert.NotContains(t, buf.String(), "#1")
}

func TestExecuteBusyEngine(t *testing.T) {
	eng := stepper.New()
	done := make(chan error, 1)
	go func() {
		_, err := eng.Execute(context.Background(), "while (true) {}", stepper.Options{Speed: stepper.Unthrottled})
		done <- err
	}()
	require.Eventually(t, func() bool { return eng.State() == stepper.Running }, 5*time.Second, time.Millisecond)

	cfg := config.Default()
	cfg.Speed = 0
	var buf bytes.Buffer
	err := execute(context.Background(), &buf, writeSample(t), cfg, &runFlags{}, eng, discard())
	assert.ErrorIs(t, err, stepper.ErrBusy)
	assert.NotContains(t, buf.String(), "after")

	eng.Stop()
	assert.NoError(t, <-done)
}

func TestRootCommand(t *testing.T) {
	path := writeSample(t)
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--env", filepath.Join(t.TempDir(), "none.env"), "instrument", "--strategy", "synthesize", path})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "__step(")

	out.Reset()
	cmd = newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"analyze", "-o", "json", path})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), `"name": "add"`)
}
