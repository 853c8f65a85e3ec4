package docker

import (
	"strings"
	"testing"

	"github.com/moby/moby/api/types/container"

	"github.com/modoterra/klogs/pkg/core"
)

func TestMapContainerState(t *testing.T) {
	tests := []struct {
		state container.ContainerState
		want  core.SourceStatus
	}{
		{container.StateRunning, core.StatusRunning},
		{container.StateRestarting, core.StatusCrashLoopBackOff},
		{container.StateCreated, core.StatusPending},
		{container.StatePaused, core.StatusPending},
		{container.StateExited, core.StatusTerminated},
		{container.StateDead, core.StatusTerminated},
		{container.ContainerState("bogus"), core.StatusUnknown},
	}
	for _, tt := range tests {
		if got := mapContainerState(tt.state); got != tt.want {
			t.Errorf("mapContainerState(%q) = %s, want %s", tt.state, got, tt.want)
		}
	}
}

func TestParsePs(t *testing.T) {
	out := []byte(`{"ID":"b1","Names":"shop-web-2","State":"restarting"}
{"ID":"a1","Names":"shop-web-1,alias","State":"running"}

{"ID":"c1","Names":"","State":"exited"}
`)
	sources, err := parsePs(out, "shop")
	if err != nil {
		t.Fatal(err)
	}
	if len(sources) != 3 {
		t.Fatalf("got %d sources, want 3", len(sources))
	}
	want := []core.Source{
		{ID: "c1", Namespace: "shop", Status: core.StatusTerminated},
		{ID: "shop-web-1", Namespace: "shop", Status: core.StatusRunning},
		{ID: "shop-web-2", Namespace: "shop", Status: core.StatusCrashLoopBackOff},
	}
	for i := range want {
		if sources[i] != want[i] {
			t.Errorf("source %d: got %+v, want %+v", i, sources[i], want[i])
		}
	}
}

func TestParsePsInvalid(t *testing.T) {
	if _, err := parsePs([]byte("not json\n"), ""); err == nil {
		t.Error("expected error")
	}
}

func TestPsArgs(t *testing.T) {
	got := strings.Join(PsArgs("default", "web"), " ")
	if strings.Contains(got, LabelProject) {
		t.Errorf("default namespace should not filter by project: %s", got)
	}
	got = strings.Join(PsArgs("shop", "web"), " ")
	if !strings.Contains(got, "label="+LabelProject+"=shop") || !strings.Contains(got, "label="+LabelService+"=web") {
		t.Errorf("got %s", got)
	}
}

func TestLogsArgs(t *testing.T) {
	src := core.Source{ID: "shop-web-1"}
	tests := []struct {
		opts core.StreamOptions
		want string
	}{
		{core.StreamOptions{Tail: core.NoTail}, "logs --timestamps shop-web-1"},
		{core.StreamOptions{Follow: true, Tail: 5}, "logs --timestamps --follow --tail 5 shop-web-1"},
	}
	for _, tt := range tests {
		if got := strings.Join(LogsArgs(src, tt.opts), " "); got != tt.want {
			t.Errorf("got %q, want %q", got, tt.want)
		}
	}
}
