// Package config loads jsstep settings from a YAML file, a .env file and
// STEPPER_* environment variables, in increasing order of precedence.
package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/joho/godotenv"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	stepper "github.com/dop251/goja_stepper"
	"github.com/dop251/goja_stepper/instrument"
)

// Version is the configuration file version this package writes.
const Version = "1.0"

// Environment variables that override file settings.
const (
	EnvSpeed    = "STEPPER_SPEED"
	EnvMaxSteps = "STEPPER_MAX_STEPS"
	EnvTimeout  = "STEPPER_TIMEOUT"
	EnvStrategy = "STEPPER_STRATEGY"
	EnvFormat   = "STEPPER_FORMAT"
	EnvLogLevel = "STEPPER_LOG_LEVEL"
)

//go:embed schema.json
var schemaJSON string

var schema = func() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	const url = "schema://config.json"
	if err := compiler.AddResource(url, strings.NewReader(schemaJSON)); err != nil {
		panic(err)
	}
	return compiler.MustCompile(url)
}()

var versionConstraint = func() *semver.Constraints {
	c, err := semver.NewConstraint(">= 1.0, < 2.0")
	if err != nil {
		panic(err)
	}
	return c
}()

// Config holds the settings of a jsstep run.
type Config struct {
	Version  string        `yaml:"version"`
	Speed    float64       `yaml:"speed"`
	MaxSteps int           `yaml:"maxSteps"`
	Timeout  time.Duration `yaml:"timeout"`
	Strategy string        `yaml:"strategy"`
	Format   string        `yaml:"format"`
	LogLevel string        `yaml:"logLevel"`
}

// Default returns the settings used when nothing else is configured.
func Default() Config {
	return Config{
		Version:  Version,
		Speed:    stepper.DefaultSpeed,
		Strategy: string(instrument.StrategyAuto),
		Format:   "text",
		LogLevel: "info",
	}
}

// LoadDotEnv loads variables from the given .env files (".env" when none is
// given) without overriding the environment. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Load reads the file at path, when path is not empty, applies environment
// overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if cfg, err = Parse(data); err != nil {
			return Config{}, fmt.Errorf("%s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse decodes a YAML document, checks it against the configuration schema
// and fills unset fields with defaults.
func Parse(data []byte) (Config, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if doc == nil {
		doc = map[string]any{}
	}
	// the validator works on JSON values
	js, err := json.Marshal(doc)
	if err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	var inst any
	dec := json.NewDecoder(bytes.NewReader(js))
	dec.UseNumber()
	if err := dec.Decode(&inst); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := schema.Validate(inst); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvSpeed); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvSpeed, err)
		}
		c.Speed = f
	}
	if v := os.Getenv(EnvMaxSteps); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvMaxSteps, err)
		}
		c.MaxSteps = n
	}
	if v := os.Getenv(EnvTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvTimeout, err)
		}
		c.Timeout = d
	}
	if v := os.Getenv(EnvStrategy); v != "" {
		c.Strategy = v
	}
	if v := os.Getenv(EnvFormat); v != "" {
		c.Format = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	return nil
}

// Validate checks the settings that the schema cannot express and those set
// from the environment.
func (c Config) Validate() error {
	v, err := semver.NewVersion(c.Version)
	if err != nil {
		return fmt.Errorf("config version %q: %w", c.Version, err)
	}
	if !versionConstraint.Check(v) {
		return fmt.Errorf("unsupported config version %s", c.Version)
	}
	if c.Speed < 0 {
		return fmt.Errorf("speed must not be negative, got %v", c.Speed)
	}
	if c.MaxSteps < 0 {
		return fmt.Errorf("maxSteps must not be negative, got %d", c.MaxSteps)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative, got %s", c.Timeout)
	}
	if _, err := instrument.ParseStrategy(c.Strategy); err != nil {
		return err
	}
	switch c.Format {
	case "text", "json", "yaml", "cbor":
	default:
		return fmt.Errorf("unknown output format %q", c.Format)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level returns the slog level named by LogLevel.
func (c Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log level %q: %w", c.LogLevel, err)
	}
	return l, nil
}

// Options converts the settings into run options.
func (c Config) Options() stepper.Options {
	strategy, _ := instrument.ParseStrategy(c.Strategy)
	return stepper.Options{
		Speed:    c.Speed,
		MaxSteps: c.MaxSteps,
		Timeout:  c.Timeout,
		Strategy: strategy,
	}
}
