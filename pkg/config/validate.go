package config

import (
	"fmt"
	"strings"
)

var logLevels = []string{"debug", "info", "warn", "error"}

// Validate checks the config for unknown enum values.
func Validate(c *Config) []error {
	var errs []error

	switch c.Backend {
	case BackendKubernetes, BackendKubectl, BackendSystemd, BackendFile, BackendDocker:
	case "":
		errs = append(errs, fmt.Errorf("backend is required"))
	default:
		errs = append(errs, fmt.Errorf("unknown backend %q: want kubernetes, kubectl, systemd, docker or file", c.Backend))
	}

	switch strings.ToLower(c.Color) {
	case "", "auto", "always", "never":
	default:
		errs = append(errs, fmt.Errorf("color must be auto, always or never; got %q", c.Color))
	}

	if !isLogLevel(c.LogLevel) {
		errs = append(errs, fmt.Errorf("log_level must be one of %s; got %q", strings.Join(logLevels, ", "), c.LogLevel))
	}

	if c.Namespace == "" && (c.Backend == BackendKubernetes || c.Backend == BackendKubectl) {
		errs = append(errs, fmt.Errorf("namespace is required for the %s backend", c.Backend))
	}

	return errs
}

func isLogLevel(s string) bool {
	for _, l := range logLevels {
		if strings.EqualFold(s, l) {
			return true
		}
	}
	return false
}
