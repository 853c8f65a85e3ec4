// Package systemd discovers systemd units over D-Bus so their journals can
// be streamed like pods.
package systemd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/coreos/go-systemd/v22/dbus"

	"github.com/modoterra/klogs/pkg/core"
)

// Discoverer lists units matching a name or glob.
type Discoverer struct {
	logger *slog.Logger
}

// New creates a systemd discoverer.
func New(logger *slog.Logger) *Discoverer {
	return &Discoverer{logger: logger}
}

// Discover returns the units matching name. A name without a unit suffix is
// treated as a service, so "web-*" matches "web-*.service". The namespace is
// recorded on each source but does not affect the lookup.
func (d *Discoverer) Discover(ctx context.Context, namespace, name string) ([]core.Source, error) {
	conn, err := dbus.NewWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("dbus connect: %w", err)
	}
	defer conn.Close()

	pattern := UnitPattern(name)
	units, err := conn.ListUnitsByPatternsContext(ctx, nil, []string{pattern})
	if err != nil {
		return nil, fmt.Errorf("list units %q: %w", pattern, err)
	}

	sources := make([]core.Source, 0, len(units))
	for _, u := range units {
		src := core.Source{
			ID:        u.Name,
			Namespace: namespace,
			Status:    mapStatus(u.ActiveState, u.SubState),
		}
		d.logger.Debug("discovered unit", "unit", u.Name, "active", u.ActiveState, "sub", u.SubState)
		sources = append(sources, src)
	}
	return sources, nil
}

// UnitPattern appends ".service" to names that carry no unit type suffix.
func UnitPattern(name string) string {
	if strings.Contains(name, ".") {
		return name
	}
	return name + ".service"
}

func mapStatus(active, sub string) core.SourceStatus {
	switch {
	case sub == "auto-restart":
		return core.StatusCrashLoopBackOff
	case active == "active":
		return core.StatusRunning
	case active == "activating", active == "reloading":
		return core.StatusPending
	case active == "inactive", active == "failed", active == "deactivating":
		return core.StatusTerminated
	default:
		return core.StatusUnknown
	}
}
