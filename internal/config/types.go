package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Paintersrp/forkrun/internal/runtime"
)

// DefaultPath is the configuration file looked up when none is given.
const DefaultPath = "forkrun.yaml"

// DefaultStopTimeout applies when workers.stopTimeout is not set.
const DefaultStopTimeout = 10 * time.Second

// Duration wraps time.Duration for YAML unmarshalling.
type Duration struct {
	time.Duration
	explicit bool
}

// UnmarshalText parses a textual duration, accepting empty strings.
func (d *Duration) UnmarshalText(text []byte) error {
	d.explicit = true
	if len(text) == 0 {
		d.Duration = 0
		return nil
	}
	dur, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = dur
	return nil
}

// MarshalText renders the duration using time.Duration formatting.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// IsSet reports whether the duration was explicitly provided or non-zero.
func (d Duration) IsSet() bool {
	return d.explicit || d.Duration != 0
}

// File mirrors the forkrun.yaml document structure.
type File struct {
	Version string         `yaml:"version"`
	Runtime runtime.Config `yaml:"runtime"`
	Workers Workers        `yaml:"workers"`
	Listen  ListenSpec     `yaml:"listen"`
	Metrics MetricsSpec    `yaml:"metrics"`

	// Source is the absolute path the file was loaded from, if any.
	Source string `yaml:"-"`
}

// Workers describes the prefork workers started by `forkrun run`.
type Workers struct {
	Count       int               `yaml:"count"`
	Command     []string          `yaml:"command"`
	Workdir     string            `yaml:"workdir"`
	Env         map[string]string `yaml:"env"`
	EnvFromFile string            `yaml:"envFromFile"`
	// Priority is the starting nice value of workers whose ordinal has no
	// entry in runtime.priority.
	Priority int `yaml:"priority"`
	// StopTimeout is how long workers get between SIGTERM and SIGKILL once
	// the run is interrupted.
	StopTimeout Duration `yaml:"stopTimeout"`

	ResolvedWorkdir string `yaml:"-"`
}

// ListenSpec selects between blocking and polling reaps.
type ListenSpec struct {
	// Interval between Listen passes. Zero means a single blocking Wait.
	Interval Duration `yaml:"interval"`
}

// MetricsSpec configures the Prometheus endpoint.
type MetricsSpec struct {
	// Listen is a host:port address. Empty disables the endpoint.
	Listen string `yaml:"listen"`
}

// Default returns the configuration used when no file is present.
func Default() *File {
	f := &File{}
	_ = f.ApplyDefaults()
	return f
}

// ApplyDefaults fills in unset values.
func (f *File) ApplyDefaults() error {
	if f.Version == "" {
		f.Version = "1"
	}
	if f.Workers.Count == 0 {
		f.Workers.Count = 1
	}
	if !f.Workers.StopTimeout.IsSet() {
		f.Workers.StopTimeout = Duration{Duration: DefaultStopTimeout}
	}
	return nil
}

func fieldPath(parts ...string) string {
	return strings.Join(parts, ".")
}
