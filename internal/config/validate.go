package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/docker/go-connections/nat"
)

const (
	// MinPriority and MaxPriority bound nice values accepted in configuration.
	MinPriority = -20
	MaxPriority = 20
)

// Validate reports the first invalid field.
func (f *File) Validate() error {
	if f.Version != "1" {
		return fmt.Errorf("%s: unsupported version %q", fieldPath("version"), f.Version)
	}
	if err := validateRuntime(f); err != nil {
		return err
	}
	if f.Workers.Count < 1 {
		return fmt.Errorf("%s: must be at least 1, got %d", fieldPath("workers", "count"), f.Workers.Count)
	}
	if err := validatePriority(fieldPath("workers", "priority"), f.Workers.Priority); err != nil {
		return err
	}
	for i, arg := range f.Workers.Command {
		if i == 0 && arg == "" {
			return fmt.Errorf("%s: executable must not be empty", fieldPath("workers", "command[0]"))
		}
	}
	if f.Workers.StopTimeout.Duration < 0 {
		return fmt.Errorf("%s: must not be negative", fieldPath("workers", "stopTimeout"))
	}
	if f.Listen.Interval.Duration < 0 {
		return fmt.Errorf("%s: must not be negative", fieldPath("listen", "interval"))
	}
	if f.Metrics.Listen != "" {
		if err := ValidateListenAddress(f.Metrics.Listen); err != nil {
			return fmt.Errorf("%s: %w", fieldPath("metrics", "listen"), err)
		}
	}
	return nil
}

func validateRuntime(f *File) error {
	for ordinal, prio := range f.Runtime.Priority {
		if ordinal < 0 {
			return fmt.Errorf("%s: ordinal %d must not be negative", fieldPath("runtime", "priority"), ordinal)
		}
		field := fieldPath("runtime", "priority", strconv.Itoa(ordinal))
		if err := validatePriority(field, prio); err != nil {
			return err
		}
	}
	return nil
}

func validatePriority(field string, prio int) error {
	if prio < MinPriority || prio > MaxPriority {
		return fmt.Errorf("%s: priority %d outside %d..%d", field, prio, MinPriority, MaxPriority)
	}
	return nil
}

// ValidateListenAddress checks a host:port listen address.
func ValidateListenAddress(addr string) error {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid listen address %q: %w", addr, err)
	}
	if port == "" {
		return errors.New("listen address requires a port")
	}
	if _, err := nat.ParsePort(port); err != nil {
		return fmt.Errorf("invalid port %q: %w", port, err)
	}
	return nil
}
