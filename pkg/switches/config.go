package switches

import (
	"context"
	"fmt"
	"strings"
)

// ConfigKind names one of the configurations a switch keeps.
type ConfigKind string

const (
	ConfigRunning ConfigKind = "running"
	ConfigStartup ConfigKind = "startup"
)

// ParseConfigKind accepts "running" or "startup".
func ParseConfigKind(s string) (ConfigKind, error) {
	switch k := ConfigKind(s); k {
	case ConfigRunning, ConfigStartup:
		return k, nil
	}
	return "", fmt.Errorf("unknown config %q, want running or startup", s)
}

// ConfigReader is implemented by sessions that can dump a switch configuration.
type ConfigReader interface {
	Config(ctx context.Context, kind ConfigKind) (string, error)
}

// TrimConfigHeader drops the lines ahead of the first user account line.
// Switches print the build version and change timestamps there, so two
// dumps of the same configuration only compare equal without them. A
// configuration with no user account line is returned unchanged.
func TrimConfigHeader(cfg string) string {
	lines := strings.Split(cfg, "\n")
	for i, line := range lines {
		if strings.Contains(line, "username") {
			return strings.Join(lines[i:], "\n")
		}
	}
	return cfg
}
