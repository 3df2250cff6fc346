package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	stepper "github.com/dop251/goja_stepper"
	"github.com/dop251/goja_stepper/analyzer"
	"github.com/dop251/goja_stepper/config"
	"github.com/dop251/goja_stepper/instrument"
	"github.com/dop251/goja_stepper/syntax"
	"github.com/dop251/goja_stepper/trace"
)

func newAnalyzeCommand(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze [file]",
		Short: "Report functions, loops, complexity and suggestions",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := g.settings(cmd)
			if err != nil {
				return err
			}
			src, name, err := readSource(argOrStdin(args))
			if err != nil {
				return err
			}
			tree, err := syntax.ParseFile(name, src)
			if err != nil {
				return err
			}
			r := analyzer.Analyze(tree)
			if cfg.Format == "text" {
				writeReport(cmd.OutOrStdout(), r)
				return nil
			}
			return encode(cmd.OutOrStdout(), r, cfg.Format)
		},
	}
}

func newInstrumentCommand(g *globalFlags) *cobra.Command {
	var strategy, sourceMap string
	cmd := &cobra.Command{
		Use:   "instrument [file]",
		Short: "Print the instrumented program",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := g.settings(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("strategy") {
				cfg.Strategy = strategy
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			prog, err := prepare(argOrStdin(args), cfg, logger)
			if err != nil {
				return err
			}
			if sourceMap != "" {
				if err := os.WriteFile(sourceMap, prog.SourceMap, 0o644); err != nil {
					return err
				}
			}
			_, err = io.WriteString(cmd.OutOrStdout(), prog.Source)
			return err
		},
	}
	cmd.Flags().StringVar(&strategy, "strategy", "auto", "instrumentation strategy: auto, splice or synthesize")
	cmd.Flags().StringVar(&sourceMap, "source-map", "", "write the source map to this file")
	return cmd
}

type runFlags struct {
	speed       float64
	maxSteps    int
	timeout     time.Duration
	strategy    string
	interactive bool
	listing     int
	quiet       bool
	tracePath   string
	pprofPath   string
}

func (f *runFlags) register(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&f.speed, "speed", stepper.DefaultSpeed, "steps per second; 0 runs without delay")
	cmd.Flags().IntVar(&f.maxSteps, "max-steps", 0, "fail after this many steps")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 0, "interrupt the program after this long")
	cmd.Flags().StringVar(&f.strategy, "strategy", "auto", "instrumentation strategy: auto, splice or synthesize")
	cmd.Flags().BoolVarP(&f.interactive, "interactive", "i", false, "read p (pause), c (continue) and s (stop) from stdin")
	cmd.Flags().IntVar(&f.listing, "listing", 0, "show this many source lines around each step")
	cmd.Flags().BoolVarP(&f.quiet, "quiet", "q", false, "print console output and the summary only")
	cmd.Flags().StringVar(&f.tracePath, "trace", "", "write the trace to this file (.json, .yaml or .cbor)")
	cmd.Flags().StringVar(&f.pprofPath, "pprof", "", "write a pprof step profile to this file")
}

// apply overrides the configuration with the flags set on the command line.
func (f *runFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	fl := cmd.Flags()
	if fl.Changed("speed") {
		cfg.Speed = f.speed
	}
	if fl.Changed("max-steps") {
		cfg.MaxSteps = f.maxSteps
	}
	if fl.Changed("timeout") {
		cfg.Timeout = f.timeout
	}
	if fl.Changed("strategy") {
		cfg.Strategy = f.strategy
	}
}

func newRunCommand(g *globalFlags) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run [file]",
		Short: "Execute a program step by step",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := g.settings(cmd)
			if err != nil {
				return err
			}
			f.apply(cmd, &cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			eng := stepper.New(stepper.WithLogger(logger))

			sig := make(chan os.Signal, 2)
			signal.Notify(sig, os.Interrupt)
			defer signal.Stop(sig)
			go func() {
				// the first interrupt stops at the next step, the second one
				// aborts the statement in progress
				if _, ok := <-sig; ok {
					eng.Stop()
				}
				if _, ok := <-sig; ok {
					cancel()
				}
			}()
			if f.interactive {
				go control(cmd.InOrStdin(), eng)
			}
			return execute(ctx, cmd.OutOrStdout(), argOrStdin(args), cfg, f, eng, logger)
		},
	}
	f.register(cmd)
	return cmd
}

// control maps interactive commands read from r onto the engine.
func control(r io.Reader, eng *stepper.Engine) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		switch strings.TrimSpace(sc.Text()) {
		case "p", "pause":
			eng.Pause()
		case "c", "continue", "r", "resume":
			eng.Resume()
		case "s", "stop", "q":
			eng.Stop()
			return
		}
	}
}

func prepare(path string, cfg config.Config, logger *slog.Logger) (*instrument.Result, error) {
	src, name, err := readSource(path)
	if err != nil {
		return nil, err
	}
	tree, err := syntax.ParseFile(name, src)
	if err != nil {
		return nil, err
	}
	return instrument.Instrument(tree,
		instrument.WithStrategy(cfg.Options().Strategy),
		instrument.WithLogger(logger))
}

// execute analyzes and runs the program at path concurrently and reports
// the outcome.
func execute(ctx context.Context, w io.Writer, path string, cfg config.Config, f *runFlags, eng *stepper.Engine, logger *slog.Logger) error {
	prog, err := prepare(path, cfg, logger)
	if err != nil {
		return err
	}

	rec := trace.NewRecorder()
	rec.SetProgram(prog)
	opts := cfg.Options()
	if opts.Speed == 0 {
		opts.Speed = stepper.Unthrottled
	}
	text := cfg.Format == "text"
	if text {
		out := newPrinter(w, prog.Tree.Source, f.listing)
		if !f.quiet {
			opts.OnStep = out.step
		}
		opts.OnConsole = out.console
	}

	var (
		report *analyzer.Report
		res    *stepper.Result
		runErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		report, err = analyzer.AnalyzeSource(gctx, prog.Tree.Source)
		return err
	})
	g.Go(func() error {
		eng.AddSink(rec)
		res, runErr = eng.Run(gctx, prog, opts)
		// failures of the program itself still produce a trace
		if errors.Is(runErr, stepper.ErrBusy) {
			return runErr
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}
	rec.Finish(res)
	tr := rec.Trace()

	if f.tracePath != "" {
		if err := writeTrace(f.tracePath, tr); err != nil {
			return err
		}
	}
	if f.pprofPath != "" {
		if err := writeFile(f.pprofPath, tr.WriteProfile); err != nil {
			return err
		}
	}

	if text {
		for _, s := range report.BySeverity(analyzer.SeverityCritical) {
			logger.Warn(s.Message, "line", s.Line)
		}
		if res != nil {
			writeSummary(w, res)
		}
	} else if err := trace.Encode(w, tr, trace.Format(cfg.Format)); err != nil {
		return err
	}
	return runErr
}

func writeFile(path string, write func(io.Writer) error) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(out); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func writeTrace(path string, tr *trace.Trace) error {
	format := trace.JSON
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		format = trace.YAML
	case ".cbor":
		format = trace.CBOR
	}
	return writeFile(path, func(w io.Writer) error {
		return trace.Encode(w, tr, format)
	})
}

func newWatchCommand(g *globalFlags) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "watch file",
		Short: "Run a program again every time it changes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := g.settings(cmd)
			if err != nil {
				return err
			}
			f.apply(cmd, &cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return watch(ctx, cmd.OutOrStdout(), args[0], cfg, f, logger)
		},
	}
	f.register(cmd)
	return cmd
}

// watch runs path once and then after each write to it, until ctx is done.
func watch(ctx context.Context, w io.Writer, path string, cfg config.Config, f *runFlags, logger *slog.Logger) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	// editors often replace the file, so watch its directory
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return err
	}

	rerun := func() {
		eng := stepper.New(stepper.WithLogger(logger))
		if err := execute(ctx, w, path, cfg, f, eng, logger); err != nil {
			fmt.Fprintln(w, errorText(err))
		}
	}
	rerun()

	const settle = 100 * time.Millisecond
	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs || !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			pending = time.After(settle)
		case <-pending:
			pending = nil
			logger.Info("file changed", "file", path)
			rerun()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watch", "err", err)
		}
	}
}

func argOrStdin(args []string) string {
	if len(args) == 0 {
		return "-"
	}
	return args[0]
}

// errorText renders err for the terminal, with the code frame for runtime
// errors.
func errorText(err error) string {
	var re *stepper.RuntimeError
	if errors.As(err, &re) {
		return re.Detail()
	}
	return err.Error()
}
