package trace

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/Masterminds/semver/v3"
	"github.com/fxamacker/cbor/v2"
	"gopkg.in/yaml.v3"
)

// Format is a trace serialization.
type Format string

const (
	JSON Format = "json"
	YAML Format = "yaml"
	CBOR Format = "cbor"
)

// ParseFormat accepts the names used in configuration files and flags.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case JSON, YAML, CBOR:
		return f, nil
	}
	return "", fmt.Errorf("unknown trace format %q", s)
}

var versionConstraint = mustConstraint(">= 1.0, < 2.0")

func mustConstraint(c string) *semver.Constraints {
	cs, err := semver.NewConstraint(c)
	if err != nil {
		panic(err)
	}
	return cs
}

var cborEnc = func() cbor.EncMode {
	em, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// Encode writes t to w.
func Encode(w io.Writer, t *Trace, f Format) error {
	if t.Version == "" {
		c := *t
		c.Version = FormatVersion
		t = &c
	}
	switch f {
	case JSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(t)
	case YAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(t); err != nil {
			return err
		}
		return enc.Close()
	case CBOR:
		return cborEnc.NewEncoder(w).Encode(t)
	}
	return fmt.Errorf("unknown trace format %q", f)
}

// Decode reads a trace written by Encode. Traces of an incompatible format
// version are rejected.
func Decode(r io.Reader, f Format) (*Trace, error) {
	var t Trace
	var err error
	switch f {
	case JSON:
		err = json.NewDecoder(r).Decode(&t)
	case YAML:
		err = yaml.NewDecoder(r).Decode(&t)
	case CBOR:
		err = cbor.NewDecoder(r).Decode(&t)
	default:
		return nil, fmt.Errorf("unknown trace format %q", f)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s trace: %w", f, err)
	}
	v, err := semver.NewVersion(t.Version)
	if err != nil {
		return nil, fmt.Errorf("trace version %q: %w", t.Version, err)
	}
	if !versionConstraint.Check(v) {
		return nil, fmt.Errorf("unsupported trace version %s", v)
	}
	t.normalizeValues()
	return &t, nil
}

// normalizeValues turns the integers some decoders produce back into the
// float64 the engine captures.
func (t *Trace) normalizeValues() {
	for i := range t.Steps {
		s := &t.Steps[i]
		for k, v := range s.Variables {
			v.Value = number(v.Value)
			s.Variables[k] = v
		}
		for j := range s.CallStack {
			for n, a := range s.CallStack[j].Args {
				s.CallStack[j].Args[n] = number(a)
			}
		}
	}
}

func number(v any) any {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case uint64:
		return float64(n)
	case float32:
		return float64(n)
	}
	return v
}
