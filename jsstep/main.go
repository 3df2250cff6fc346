// Command jsstep analyzes, instruments and steps through JavaScript programs.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime/debug"

	"github.com/spf13/cobra"

	"github.com/dop251/goja_stepper/config"
)

const version = "1.0.0"

type globalFlags struct {
	config   string
	envFiles []string
	logLevel string
	format   string
}

func readSource(filename string) (string, string, error) {
	if filename == "" || filename == "-" {
		b, err := io.ReadAll(os.Stdin)
		return string(b), "<stdin>", err
	}
	b, err := os.ReadFile(filename)
	return string(b), filename, err
}

// settings loads the configuration and applies the global flags on top.
func (g *globalFlags) settings(cmd *cobra.Command) (config.Config, *slog.Logger, error) {
	if err := config.LoadDotEnv(g.envFiles...); err != nil {
		return config.Config{}, nil, err
	}
	cfg, err := config.Load(g.config)
	if err != nil {
		return config.Config{}, nil, err
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = g.logLevel
	}
	if cmd.Flags().Changed("format") {
		cfg.Format = g.format
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, nil, err
	}
	level, _ := cfg.Level()
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	return cfg, logger, nil
}

func newRootCommand() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "jsstep",
		Short:         "Step through JavaScript programs one statement at a time",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&g.config, "config", "c", "", "YAML configuration file")
	root.PersistentFlags().StringSliceVar(&g.envFiles, "env", nil, ".env files to load (default .env)")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "info", "log level: debug, info, warn or error")
	root.PersistentFlags().StringVarP(&g.format, "format", "o", "text", "output format: text, json, yaml or cbor")

	root.AddCommand(
		newAnalyzeCommand(g),
		newInstrumentCommand(g),
		newRunCommand(g),
		newWatchCommand(g),
	)
	return root
}

func main() {
	defer func() {
		if x := recover(); x != nil {
			debug.PrintStack()
			panic(x)
		}
	}()
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorText(err))
		os.Exit(64)
	}
}
