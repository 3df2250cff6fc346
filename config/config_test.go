package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	stepper "github.com/dop251/goja_stepper"
	"github.com/dop251/goja_stepper/instrument"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, stepper.Options{Speed: stepper.DefaultSpeed, Strategy: instrument.StrategyAuto}, cfg.Options())
}

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(`
version: "1.2"
speed: 20
maxSteps: 500
timeout: 1m30s
strategy: synthesize
format: yaml
logLevel: debug
`))
	require.NoError(t, err)
	assert.Equal(t, Config{
		Version:  "1.2",
		Speed:    20,
		MaxSteps: 500,
		Timeout:  90 * time.Second,
		Strategy: "synthesize",
		Format:   "yaml",
		LogLevel: "debug",
	}, cfg)

	l, err := cfg.Level()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, l)
	assert.Equal(t, instrument.StrategySynthesize, cfg.Options().Strategy)
}

func TestParseUnquotedVersion(t *testing.T) {
	cfg, err := Parse([]byte("version: 1.0\n"))
	require.NoError(t, err)
	assert.Equal(t, "1.0", cfg.Version)
	assert.Equal(t, "text", cfg.Format)
}

func TestParseRejects(t *testing.T) {
	for name, doc := range map[string]string{
		"unknown strategy": "version: \"1.0\"\nstrategy: fastest\n",
		"unknown field":    "version: \"1.0\"\ncolor: red\n",
		"missing version":  "speed: 2\n",
		"future version":   "version: \"2.0\"\n",
		"old version":      "version: \"0.9\"\n",
		"zero speed":       "version: \"1.0\"\nspeed: 0\n",
		"bad timeout":      "version: \"1.0\"\ntimeout: soon\n",
		"negative steps":   "version: \"1.0\"\nmaxSteps: -1\n",
		"not yaml":         "version: [\n",
	} {
		_, err := Parse([]byte(doc))
		assert.Error(t, err, name)
	}
}

func TestParseSchemaSeesNumbers(t *testing.T) {
	cfg, err := Parse([]byte("version: 1.0\nspeed: 0.5\nmaxSteps: 0\n"))
	require.NoError(t, err)
	assert.Equal(t, 0.5, cfg.Speed)

	for _, doc := range []string{
		"version: \"1.0\"\nspeed: -3\n",
		"version: \"1.0\"\nmaxSteps: -1\n",
		"version: \"1.0\"\nspeed: fast\n",
	} {
		_, err := Parse([]byte(doc))
		assert.ErrorContains(t, err, "invalid config", doc)
	}
}

func TestEnvOverrides(t *testing.T) {
	path := writeFile(t, "jsstep.yaml", "version: \"1.0\"\nspeed: 5\nformat: json\n")
	t.Setenv(EnvSpeed, "250")
	t.Setenv(EnvMaxSteps, "40")
	t.Setenv(EnvTimeout, "3s")
	t.Setenv(EnvStrategy, "splice")
	t.Setenv(EnvLogLevel, "warn")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 250.0, cfg.Speed)
	assert.Equal(t, 40, cfg.MaxSteps)
	assert.Equal(t, 3*time.Second, cfg.Timeout)
	assert.Equal(t, "splice", cfg.Strategy)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestEnvValidation(t *testing.T) {
	t.Setenv(EnvStrategy, "bogus")
	_, err := Load("")
	assert.Error(t, err)

	t.Setenv(EnvStrategy, "")
	t.Setenv(EnvMaxSteps, "many")
	_, err = Load("")
	assert.ErrorContains(t, err, EnvMaxSteps)
}

func TestLoadDotEnv(t *testing.T) {
	path := writeFile(t, ".env", EnvFormat+"=cbor\n")
	t.Setenv(EnvFormat, "")
	os.Unsetenv(EnvFormat)

	require.NoError(t, LoadDotEnv(path, filepath.Join(t.TempDir(), "missing.env")))
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "cbor", cfg.Format)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
