// Package proc runs log-reading child processes such as kubectl or
// journalctl and turns their stdout into a core.LineStream.
package proc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/modoterra/klogs/pkg/core"
)

// StopGrace is how long a cancelled process group gets between SIGTERM and
// SIGKILL.
const StopGrace = 10 * time.Second

// Supervisor spawns child processes and reaps them on background goroutines.
type Supervisor struct {
	logger *slog.Logger
	grace  time.Duration
	wg     sync.WaitGroup
}

// NewSupervisor creates a supervisor.
func NewSupervisor(logger *slog.Logger) *Supervisor {
	return &Supervisor{logger: logger, grace: StopGrace}
}

// Spec describes one child process.
type Spec struct {
	Label string // used in diagnostics, usually the source ID
	Name  string
	Args  []string
	Env   []string // appended to the current environment
	// MergeStderr sends stderr into the line stream as well, for tools
	// like `docker logs` that replay a container's stderr there.
	MergeStderr bool
}

// Spawn starts the process and returns a stream of its stdout lines. The
// stream closes at EOF. Cancelling ctx terminates the process group. Exit
// status and the first line of stderr are reported through the logger by a
// reaper goroutine that Wait joins.
func (s *Supervisor) Spawn(ctx context.Context, spec Spec) (core.LineStream, error) {
	cmd := exec.Command(spec.Name, spec.Args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr := &headBuffer{limit: 4096}
	cmd.Stderr = stderr
	if spec.MergeStderr {
		cmd.Stderr = cmd.Stdout
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", spec.Name, err)
	}
	s.logger.Debug("process started", "source", spec.Label, "pid", cmd.Process.Pid, "command", spec.Name)

	out := make(chan core.RawLine, 100)
	readDone := make(chan struct{})
	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		defer close(readDone)
		defer close(out)
		core.ReadLines(ctx, stdout, out)
	}()
	go func() {
		defer s.wg.Done()
		s.reap(ctx, spec.Label, cmd, stderr, readDone)
	}()
	return out, nil
}

// Wait blocks until every spawned process has been reaped.
func (s *Supervisor) Wait() {
	s.wg.Wait()
}

func (s *Supervisor) reap(ctx context.Context, label string, cmd *exec.Cmd, stderr *headBuffer, readDone <-chan struct{}) {
	exited := make(chan error, 1)
	go func() {
		// Wait closes the stdout pipe, so reading must finish first.
		<-readDone
		exited <- cmd.Wait()
	}()

	select {
	case err := <-exited:
		s.report(label, cmd, stderr, err)
	case <-ctx.Done():
		s.stop(label, cmd, exited)
	}
}

func (s *Supervisor) report(label string, cmd *exec.Cmd, stderr *headBuffer, err error) {
	if err == nil {
		s.logger.Debug("process exited", "source", label, "pid", cmd.Process.Pid)
		return
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		s.logger.Error("log reader failed", "source", label, "exit_code", exitErr.ExitCode(), "stderr", stderr.FirstLine())
		return
	}
	s.logger.Error("wait for log reader", "source", label, "err", err)
}

func (s *Supervisor) stop(label string, cmd *exec.Cmd, exited <-chan error) {
	pid := cmd.Process.Pid
	syscall.Kill(-pid, syscall.SIGTERM)
	select {
	case <-exited:
	case <-time.After(s.grace):
		s.logger.Warn("process ignored SIGTERM, killing", "source", label, "pid", pid)
		syscall.Kill(-pid, syscall.SIGKILL)
		<-exited
	}
	s.logger.Debug("process stopped", "source", label, "pid", pid)
}
