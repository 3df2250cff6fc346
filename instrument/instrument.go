// Package instrument rewrites a parsed program so that running it reports
// every executed statement, variable writes and function entry/exit through
// a small set of global hook functions.
//
// Two generators are available. The Splicer inserts hook calls into the
// original text and keeps its layout; the Synthesizer prints the program
// again from the syntax tree. Instrument tries the Splicer first and falls
// back to the Synthesizer when the spliced text does not parse. The output of
// the two is never mixed.
package instrument

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/go-sourcemap/sourcemap"

	"github.com/dop251/goja_stepper/syntax"
)

// GeneratedName is the file name given to instrumented programs. Runtime
// errors refer to it.
const GeneratedName = "instrumented.js"

// Strategy names a generator.
type Strategy string

const (
	StrategyAuto       Strategy = "auto"
	StrategySplice     Strategy = "splice"
	StrategySynthesize Strategy = "synthesize"
)

// ParseStrategy accepts the names used in configuration files and flags.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case "", StrategyAuto:
		return StrategyAuto, nil
	case StrategySplice, StrategySynthesize:
		return Strategy(s), nil
	}
	return "", fmt.Errorf("unknown instrumentation strategy %q", s)
}

// Generator turns an annotated tree into executable source.
type Generator interface {
	Strategy() Strategy
	Generate(p *Plan) (*Output, error)
}

// Output is what a Generator produces.
type Output struct {
	Source       string
	Placeholders []string

	sourceMap *sourceMap
}

// InstrumentationError is returned when a generator produced text that does
// not parse.
type InstrumentationError struct {
	Strategy Strategy
	Err      error
}

func (e *InstrumentationError) Error() string {
	return fmt.Sprintf("instrumentation (%s) produced invalid code: %v", e.Strategy, e.Err)
}

func (e *InstrumentationError) Unwrap() error {
	return e.Err
}

// Result is an instrumented program ready to run.
type Result struct {
	Tree   *syntax.Tree
	Source string
	// SourceMap is a version 3 source map from Source to Tree.Source.
	SourceMap    []byte
	Strategy     Strategy
	Sites        []Site
	Placeholders []string

	consumerOnce sync.Once
	consumer     *sourcemap.Consumer
}

// Site returns the step site with the given id.
func (r *Result) Site(id int) (Site, bool) {
	if id < 1 || id > len(r.Sites) {
		return Site{}, false
	}
	return r.Sites[id-1], true
}

// OriginalPosition maps a 1-based line and column in Source back to the
// original program.
func (r *Result) OriginalPosition(line, col int) (int, int, bool) {
	r.consumerOnce.Do(func() {
		r.consumer, _ = sourcemap.Parse(GeneratedName, r.SourceMap)
	})
	if r.consumer == nil {
		return 0, 0, false
	}
	if col > 0 {
		col--
	}
	_, _, l, c, ok := r.consumer.Source(line, col)
	if !ok {
		// past the last mapping of the line
		if _, _, l, c, ok = r.consumer.Source(line, 0); !ok {
			return 0, 0, false
		}
	}
	return l, c + 1, true
}

// Option configures Instrument.
type Option interface {
	apply(*options)
}

type options struct {
	strategy   Strategy
	generators []Generator
	logger     *slog.Logger
}

type funcOption struct {
	f func(*options)
}

func (fdo *funcOption) apply(do *options) {
	fdo.f(do)
}

func newFuncOption(f func(*options)) *funcOption {
	return &funcOption{
		f: f,
	}
}

// WithStrategy selects the generator. The default, StrategyAuto, splices and
// falls back to synthesis.
func WithStrategy(s Strategy) Option {
	return newFuncOption(func(o *options) {
		o.strategy = s
	})
}

// WithGenerators replaces the strategy with an explicit list of generators,
// tried in order.
func WithGenerators(gens ...Generator) Option {
	return newFuncOption(func(o *options) {
		o.generators = gens
	})
}

// WithLogger sets the logger that records fallbacks.
func WithLogger(l *slog.Logger) Option {
	return newFuncOption(func(o *options) {
		o.logger = l
	})
}

// Instrument annotates tree and generates its instrumented form.
func Instrument(tree *syntax.Tree, opts ...Option) (*Result, error) {
	o := options{
		strategy: StrategyAuto,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt.apply(&o)
	}

	gens := o.generators
	switch o.strategy {
	case StrategyAuto:
		if len(gens) == 0 {
			gens = []Generator{Splicer{}, Synthesizer{}}
		}
	case StrategySplice:
		gens = []Generator{Splicer{}}
	case StrategySynthesize:
		gens = []Generator{Synthesizer{}}
	default:
		return nil, fmt.Errorf("unknown instrumentation strategy %q", o.strategy)
	}

	plan := Annotate(tree)
	var errs []error
	for _, g := range gens {
		out, err := g.Generate(plan)
		if err != nil {
			o.logger.Warn("instrumentation failed", "strategy", g.Strategy(), "err", err)
			errs = append(errs, err)
			continue
		}
		sm, err := json.Marshal(out.sourceMap)
		if err != nil {
			return nil, err
		}
		if len(out.Placeholders) > 0 {
			o.logger.Warn("unsupported syntax replaced", "strategy", g.Strategy(), "kinds", out.Placeholders)
		}
		o.logger.Debug("instrumented", "strategy", g.Strategy(), "sites", len(plan.Sites))
		return &Result{
			Tree:         tree,
			Source:       out.Source,
			SourceMap:    sm,
			Strategy:     g.Strategy(),
			Sites:        plan.Sites,
			Placeholders: out.Placeholders,
		}, nil
	}
	return nil, errors.Join(errs...)
}

// InstrumentSource parses and instruments src.
func InstrumentSource(src string, opts ...Option) (*Result, error) {
	tree, err := syntax.Parse(src)
	if err != nil {
		return nil, err
	}
	return Instrument(tree, opts...)
}
