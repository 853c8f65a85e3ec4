// Package docker treats the containers of a Compose service as the replicas
// of a deployment, using the docker CLI for discovery and log streaming.
package docker

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"slices"
	"strconv"
	"strings"

	"github.com/moby/moby/api/types/container"

	"github.com/modoterra/klogs/pkg/core"
	"github.com/modoterra/klogs/pkg/proc"
)

// Compose labels set on every container of a project.
const (
	LabelProject = "com.docker.compose.project"
	LabelService = "com.docker.compose.service"
)

// Provider discovers Compose service containers and streams their logs.
type Provider struct {
	sup    *proc.Supervisor
	binary string
	logger *slog.Logger
}

// New creates a docker provider using the docker binary on PATH.
func New(logger *slog.Logger) *Provider {
	return &Provider{sup: proc.NewSupervisor(logger), binary: "docker", logger: logger}
}

// psEntry is one line of `docker ps --format '{{json .}}'`.
type psEntry struct {
	ID    string `json:"ID"`
	Names string `json:"Names"`
	State string `json:"State"`
}

// Discover lists the containers of Compose service name. The namespace
// selects the Compose project; "" and "default" match any project.
func (p *Provider) Discover(ctx context.Context, namespace, name string) ([]core.Source, error) {
	args := PsArgs(namespace, name)
	p.logger.Debug("listing containers", "args", args)
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, p.binary, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("docker ps: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return parsePs(out, namespace)
}

// PsArgs builds the `docker ps` argument list for a service lookup.
func PsArgs(namespace, service string) []string {
	args := []string{"ps", "-a", "--no-trunc", "--format", "{{json .}}", "--filter", "label=" + LabelService + "=" + service}
	if namespace != "" && namespace != "default" {
		args = append(args, "--filter", "label="+LabelProject+"="+namespace)
	}
	return args
}

func parsePs(out []byte, namespace string) ([]core.Source, error) {
	var sources []core.Source
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var e psEntry
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("decode docker ps output: %w", err)
		}
		name, _, _ := strings.Cut(e.Names, ",")
		if name == "" {
			name = e.ID
		}
		sources = append(sources, core.Source{
			ID:        name,
			Namespace: namespace,
			Status:    mapContainerState(container.ContainerState(e.State)),
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read docker ps output: %w", err)
	}
	slices.SortFunc(sources, func(a, b core.Source) int { return strings.Compare(a.ID, b.ID) })
	return sources, nil
}

func mapContainerState(s container.ContainerState) core.SourceStatus {
	switch s {
	case container.StateRunning:
		return core.StatusRunning
	case container.StateRestarting:
		return core.StatusCrashLoopBackOff
	case container.StateCreated, container.StatePaused:
		return core.StatusPending
	case container.StateExited, container.StateDead, container.StateRemoving:
		return core.StatusTerminated
	default:
		return core.StatusUnknown
	}
}

// Stream runs `docker logs` for the container. Container stdout and stderr
// are both delivered.
func (p *Provider) Stream(ctx context.Context, src core.Source, opts core.StreamOptions) (core.LineStream, error) {
	return p.sup.Spawn(ctx, proc.Spec{
		Label:       src.ID,
		Name:        p.binary,
		Args:        LogsArgs(src, opts),
		MergeStderr: true,
	})
}

// Wait blocks until every docker process has been reaped.
func (p *Provider) Wait() { p.sup.Wait() }

// LogsArgs builds the `docker logs` argument list.
func LogsArgs(src core.Source, opts core.StreamOptions) []string {
	args := []string{"logs", "--timestamps"}
	if opts.Follow {
		args = append(args, "--follow")
	}
	if opts.Tail >= 0 {
		args = append(args, "--tail", strconv.Itoa(opts.Tail))
	}
	return append(args, src.ID)
}
