package proc

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestSpawnStreamsStdout(t *testing.T) {
	s := NewSupervisor(slog.New(slog.NewTextHandler(io.Discard, nil)))
	stream, err := s.Spawn(context.Background(), Spec{
		Label: "test",
		Name:  "sh",
		Args:  []string{"-c", "printf 'one\\ntwo\\nthree'"},
	})
	if err != nil {
		t.Fatal(err)
	}

	var got []string
	for l := range stream {
		if l.Err != nil {
			t.Fatalf("unexpected error: %v", l.Err)
		}
		got = append(got, string(l.Line))
	}
	s.Wait()

	if strings.Join(got, ",") != "one,two,three" {
		t.Errorf("got %q", got)
	}
}

func TestSpawnReportsFailure(t *testing.T) {
	var logs bytes.Buffer
	s := NewSupervisor(slog.New(slog.NewTextHandler(&logs, nil)))
	stream, err := s.Spawn(context.Background(), Spec{
		Label: "broken",
		Name:  "sh",
		Args:  []string{"-c", "echo 'pods \"x\" not found' >&2; exit 3"},
	})
	if err != nil {
		t.Fatal(err)
	}
	for range stream {
	}
	s.Wait()

	out := logs.String()
	if !strings.Contains(out, "exit_code=3") {
		t.Errorf("log missing exit code: %s", out)
	}
	if !strings.Contains(out, `not found`) {
		t.Errorf("log missing stderr line: %s", out)
	}
}

func TestSpawnMergeStderr(t *testing.T) {
	s := NewSupervisor(slog.New(slog.NewTextHandler(io.Discard, nil)))
	stream, err := s.Spawn(context.Background(), Spec{
		Name:        "sh",
		Args:        []string{"-c", "echo out; echo err >&2"},
		MergeStderr: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for l := range stream {
		got = append(got, string(l.Line))
	}
	s.Wait()
	if strings.Join(got, ",") != "out,err" {
		t.Errorf("got %q", got)
	}
}

func TestSpawnPassesEnv(t *testing.T) {
	s := NewSupervisor(slog.New(slog.NewTextHandler(io.Discard, nil)))
	stream, err := s.Spawn(context.Background(), Spec{
		Name: "sh",
		Args: []string{"-c", "echo $KLOGS_TEST_VALUE"},
		Env:  []string{"KLOGS_TEST_VALUE=hello"},
	})
	if err != nil {
		t.Fatal(err)
	}
	l := <-stream
	if string(l.Line) != "hello" {
		t.Errorf("got %q, want %q", l.Line, "hello")
	}
	for range stream {
	}
	s.Wait()
}

func TestCancelStopsProcessGroup(t *testing.T) {
	s := NewSupervisor(slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	stream, err := s.Spawn(ctx, Spec{Name: "sh", Args: []string{"-c", "echo ready; sleep 60"}})
	if err != nil {
		t.Fatal(err)
	}
	<-stream
	cancel()

	done := make(chan struct{})
	go func() {
		for range stream {
		}
		s.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("process was not stopped")
	}
}

func TestSpawnMissingBinary(t *testing.T) {
	s := NewSupervisor(slog.New(slog.NewTextHandler(io.Discard, nil)))
	if _, err := s.Spawn(context.Background(), Spec{Name: "klogs-no-such-binary"}); err == nil {
		t.Error("expected error")
	}
}

func TestHeadBuffer(t *testing.T) {
	b := &headBuffer{limit: 8}
	b.Write([]byte("\n  first\nsecond"))
	if got := b.FirstLine(); got != "first" {
		t.Errorf("got %q, want %q", got, "first")
	}
	if b.buf.Len() != 8 {
		t.Errorf("buffer kept %d bytes, want 8", b.buf.Len())
	}
}
