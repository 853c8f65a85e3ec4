package filetail

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/modoterra/klogs/pkg/core"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func readAll(t *testing.T, stream core.LineStream) []string {
	t.Helper()
	var got []string
	for l := range stream {
		if l.Err != nil {
			t.Fatalf("unexpected error: %v", l.Err)
		}
		got = append(got, string(l.Line))
	}
	return got
}

func TestStreamWholeFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "a.log", "one\ntwo\nthree")
	p := New(discard())
	stream, err := p.Stream(context.Background(), core.Source{ID: path}, core.StreamOptions{Tail: core.NoTail})
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(readAll(t, stream), ","); got != "one,two,three" {
		t.Errorf("got %q", got)
	}
}

func TestStreamTail(t *testing.T) {
	path := writeFile(t, t.TempDir(), "a.log", "1\n2\n3\n4\n5\n")
	tests := []struct {
		tail int
		want string
	}{
		{2, "4,5"},
		{10, "1,2,3,4,5"},
		{0, ""},
	}
	for _, tt := range tests {
		p := New(discard())
		stream, err := p.Stream(context.Background(), core.Source{ID: path}, core.StreamOptions{Tail: tt.tail})
		if err != nil {
			t.Fatal(err)
		}
		if got := strings.Join(readAll(t, stream), ","); got != tt.want {
			t.Errorf("tail %d: got %q, want %q", tt.tail, got, tt.want)
		}
	}
}

func TestStreamFollow(t *testing.T) {
	path := writeFile(t, t.TempDir(), "a.log", "old-1\nold-2\n")
	p := New(discard())
	p.poll = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stream, err := p.Stream(ctx, core.Source{ID: path}, core.StreamOptions{Follow: true, Tail: 1})
	if err != nil {
		t.Fatal(err)
	}

	next := func() string {
		select {
		case l := <-stream:
			return string(l.Line)
		case <-time.After(5 * time.Second):
			t.Fatal("timed out")
			return ""
		}
	}
	if got := next(); got != "old-2" {
		t.Errorf("got %q, want old-2", got)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		t.Fatal(err)
	}
	f.WriteString("new-")
	f.Sync()
	time.Sleep(30 * time.Millisecond)
	f.WriteString("1\n")
	f.Close()

	if got := next(); got != "new-1" {
		t.Errorf("got %q, want new-1", got)
	}
	cancel()
	for range stream {
	}
}

func TestStreamSplitsLongLines(t *testing.T) {
	path := writeFile(t, t.TempDir(), "a.log", strings.Repeat("x", core.MaxLineSize+5)+"\nend\n")
	p := New(discard())
	stream, err := p.Stream(context.Background(), core.Source{ID: path}, core.StreamOptions{Tail: core.NoTail})
	if err != nil {
		t.Fatal(err)
	}
	got := readAll(t, stream)
	if len(got) != 3 || len(got[0]) != core.MaxLineSize || got[1] != "xxxxx" || got[2] != "end" {
		t.Errorf("got %d lines", len(got))
	}
}

func TestStreamMissingFile(t *testing.T) {
	p := New(discard())
	if _, err := p.Stream(context.Background(), core.Source{ID: "/nonexistent/klogs.log"}, core.StreamOptions{}); err == nil {
		t.Error("expected error")
	}
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.log", "")
	writeFile(t, dir, "a.log", "")
	writeFile(t, dir, "c.txt", "")
	os.Mkdir(filepath.Join(dir, "d.log"), 0o755)

	sources, err := New(discard()).Discover(context.Background(), "", filepath.Join(dir, "*.log"))
	if err != nil {
		t.Fatal(err)
	}
	if len(sources) != 2 {
		t.Fatalf("got %d sources, want 2", len(sources))
	}
	if filepath.Base(sources[0].ID) != "a.log" || filepath.Base(sources[1].ID) != "b.log" {
		t.Errorf("got %s, %s", sources[0].ID, sources[1].ID)
	}
	if !sources[0].CanReceiveLogs() {
		t.Error("file sources should be streamable")
	}
}
