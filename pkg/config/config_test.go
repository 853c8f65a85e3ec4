package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParse(t *testing.T) {
	t.Setenv("HOME", "/home/tester")
	t.Setenv("KLOGS_CTX", "staging")
	yaml := `
namespace: payments
backend: kubernetes
kubeconfig: ~/.kube/${KLOGS_CTX}.yaml
prefix: "%s>"
color: never
highlight: false
pipe: "jq -r .msg"
log_level: debug
`
	c, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if c.Namespace != "payments" {
		t.Errorf("namespace: got %q", c.Namespace)
	}
	if c.Backend != BackendKubernetes {
		t.Errorf("backend: got %q", c.Backend)
	}
	if c.Kubeconfig != "/home/tester/.kube/staging.yaml" {
		t.Errorf("kubeconfig expansion: got %q", c.Kubeconfig)
	}
	if c.HighlightEnabled() {
		t.Error("highlight should be disabled")
	}
	if c.Pipe != "jq -r .msg" {
		t.Errorf("pipe: got %q", c.Pipe)
	}
	if errs := Validate(c); len(errs) != 0 {
		t.Errorf("unexpected validation errors: %v", errs)
	}
}

func TestParseKeepsDefaults(t *testing.T) {
	c, err := Parse([]byte("namespace: web\n"))
	if err != nil {
		t.Fatal(err)
	}
	if c.Backend != BackendKubectl || c.Color != "auto" || c.LogLevel != "warn" {
		t.Errorf("defaults lost: %+v", c)
	}
	if !c.HighlightEnabled() {
		t.Error("highlight should default to on")
	}
}

func TestParseInvalidYAML(t *testing.T) {
	if _, err := Parse([]byte("namespace: [unclosed")); err == nil {
		t.Error("expected error")
	}
}

func TestLoadMissingFile(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if c.Namespace != "default" {
		t.Errorf("got %+v, want defaults", c)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("backend: file\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if c.Backend != BackendFile {
		t.Errorf("backend: got %q", c.Backend)
	}
}

func TestDefaultPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	if got := DefaultPath(); got != "/xdg/klogs/config.yaml" {
		t.Errorf("got %q", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown backend", func(c *Config) { c.Backend = "nomad" }, "unknown backend"},
		{"empty backend", func(c *Config) { c.Backend = "" }, "backend is required"},
		{"bad color", func(c *Config) { c.Color = "rainbow" }, "color must be"},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "log_level must be"},
		{"namespace", func(c *Config) { c.Namespace = "" }, "namespace is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			assertHasError(t, Validate(c), tt.want)
		})
	}
}

func TestValidateFileBackendWithoutNamespace(t *testing.T) {
	c := Default()
	c.Backend = BackendFile
	c.Namespace = ""
	if errs := Validate(c); len(errs) != 0 {
		t.Errorf("unexpected errors: %v", errs)
	}
}

func assertHasError(t *testing.T, errs []error, substr string) {
	t.Helper()
	for _, e := range errs {
		if strings.Contains(e.Error(), substr) {
			return
		}
	}
	t.Errorf("expected error containing %q, got %v", substr, errs)
}
