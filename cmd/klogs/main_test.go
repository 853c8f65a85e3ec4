package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// execute runs a fresh root command with an isolated config path.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("KLOGS_LOG", "")
	cmd := newRootCmd()
	hasConfig := false
	for _, a := range args {
		if a == "--config" {
			hasConfig = true
		}
	}
	if !hasConfig && (len(args) == 0 || args[0] != "config") {
		args = append(args, "--config", filepath.Join(t.TempDir(), "absent.yaml"))
	}
	cmd.SetArgs(args)
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	err := cmd.Execute()
	return out.String(), err
}

func writeLogs(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestVersionCommand(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"version"})
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	if err := cmd.Execute(); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out.String(), "klogs dev") {
		t.Errorf("got %q", out.String())
	}
}

func TestDeploymentRequired(t *testing.T) {
	if _, err := execute(t, "--backend", "file"); err == nil {
		t.Error("expected error without --deployment")
	}
}

func TestInvalidLevelFailsBeforeDiscovery(t *testing.T) {
	_, err := execute(t, "-d", "/nonexistent/*.log", "--backend", "file", "-l", "BOGUS")
	if err == nil || !strings.Contains(err.Error(), "invalid log level") {
		t.Errorf("got %v, want invalid log level", err)
	}
}

func TestNoActiveSources(t *testing.T) {
	dir := t.TempDir()
	_, err := execute(t, "-d", filepath.Join(dir, "*.log"), "--backend", "file")
	if err == nil || !strings.Contains(err.Error(), "no active sources for deployment") {
		t.Errorf("got %v, want no active sources for deployment", err)
	}
}

func TestRejectsNegativeTail(t *testing.T) {
	_, err := execute(t, "-d", "/nonexistent/*.log", "--backend", "file", "--tail=-5")
	if err == nil || !strings.Contains(err.Error(), "invalid --tail") {
		t.Errorf("got %v, want invalid --tail", err)
	}
}

func TestTUIRequiresFollow(t *testing.T) {
	_, err := execute(t, "-d", "/nonexistent/*.log", "--backend", "file", "--tui", "-t", "5")
	if err == nil || !strings.Contains(err.Error(), "--tui requires --follow") {
		t.Errorf("got %v, want --tui requires --follow", err)
	}
}

func TestFileBackendTail(t *testing.T) {
	dir := writeLogs(t, map[string]string{
		"a.log": "2024-01-01T00:00:01Z a-1\n2024-01-01T00:00:02Z a-2\n2024-01-01T00:00:03Z a-3\n",
		"b.log": "2024-01-01T00:00:01Z b-1\n",
	})
	out, err := execute(t, "-d", filepath.Join(dir, "*.log"), "--backend", "file", "-t", "2", "--color", "never", "--prefix", "%n")
	if err != nil {
		t.Fatal(err)
	}
	a, b := filepath.Join(dir, "a.log"), filepath.Join(dir, "b.log")
	want := "==> " + a + " <==\n" + a + " a-2\n" + a + " a-3\n" + "==> " + b + " <==\n" + b + " b-1\n"
	if out != want {
		t.Errorf("got:\n%s\nwant:\n%s", out, want)
	}
}

func TestFileBackendGrepAndLevel(t *testing.T) {
	dir := writeLogs(t, map[string]string{
		"app.log": "ts [ERROR] db timeout\nts [INFO] db ok\nts [ERROR] cache miss\n",
	})
	out, err := execute(t, "-d", filepath.Join(dir, "*.log"), "--backend", "file",
		"-g", "db", "-l", "error", "--no-prefix", "--color", "never")
	if err != nil {
		t.Fatal(err)
	}
	if out != "[ERROR] db timeout\n" {
		t.Errorf("got %q", out)
	}
}

func TestFileBackendPipe(t *testing.T) {
	dir := writeLogs(t, map[string]string{"app.log": "ts hello\n"})
	out, err := execute(t, "-d", filepath.Join(dir, "*.log"), "--backend", "file",
		"--pipe", "tr a-z A-Z", "--no-prefix", "--color", "never")
	if err != nil {
		t.Fatal(err)
	}
	if out != "TS HELLO\n" {
		t.Errorf("got %q", out)
	}
}

func TestConfigFileDefaults(t *testing.T) {
	dir := writeLogs(t, map[string]string{"app.log": "ts hello\n"})
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	cfg := "backend: file\ncolor: never\nprefix: \"<%s>\"\n"
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}
	out, err := execute(t, "-d", filepath.Join(dir, "app.log"), "--config", cfgPath)
	if err != nil {
		t.Fatal(err)
	}
	short := filepath.Join(dir, "app.log")[:8]
	if out != "<"+short+"> hello\n" {
		t.Errorf("got %q", out)
	}
}

func TestInvalidConfig(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("backend: nomad\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := execute(t, "-d", "x", "--config", cfgPath)
	if err == nil || !strings.Contains(err.Error(), "unknown backend") {
		t.Errorf("got %v, want unknown backend", err)
	}
}

func TestConfigInitAndValidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "klogs", "config.yaml")
	if _, err := execute(t, "config", "init", "-o", path); err != nil {
		t.Fatal(err)
	}
	if _, err := execute(t, "config", "init", "-o", path); err == nil {
		t.Error("expected error when file exists")
	}
	out, err := execute(t, "config", "validate", path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "is valid") {
		t.Errorf("got %q", out)
	}
}

func TestConfigValidateInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("color: rainbow\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := execute(t, "config", "validate", path); err == nil {
		t.Error("expected validation error")
	}
}
