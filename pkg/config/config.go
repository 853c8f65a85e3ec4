// Package config loads defaults for the klogs command line from a YAML
// file, normally ~/.config/klogs/config.yaml. Flags always win over the
// file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Backend names.
const (
	BackendKubernetes = "kubernetes"
	BackendKubectl    = "kubectl"
	BackendSystemd    = "systemd"
	BackendFile       = "file"
	BackendDocker     = "docker"
)

// Config holds user defaults.
type Config struct {
	Namespace  string `yaml:"namespace"`
	Backend    string `yaml:"backend"`
	Kubeconfig string `yaml:"kubeconfig,omitempty"`
	Kubectl    string `yaml:"kubectl,omitempty"` // kubectl binary for the kubectl backend
	Prefix     string `yaml:"prefix,omitempty"`
	Color      string `yaml:"color"`
	Highlight  *bool  `yaml:"highlight,omitempty"`
	Pipe       string `yaml:"pipe,omitempty"`
	LogLevel   string `yaml:"log_level"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Namespace: "default",
		Backend:   BackendKubectl,
		Kubectl:   "kubectl",
		Color:     "auto",
		LogLevel:  "warn",
	}
}

// HighlightEnabled reports whether grep matches should be highlighted.
func (c *Config) HighlightEnabled() bool {
	return c.Highlight == nil || *c.Highlight
}

// DefaultPath returns $XDG_CONFIG_HOME/klogs/config.yaml, falling back to
// ~/.config.
func DefaultPath() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "klogs", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".config", "klogs", "config.yaml")
	}
	return filepath.Join(home, ".config", "klogs", "config.yaml")
}

// Load reads path. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Parse decodes YAML over the defaults and expands ~ and environment
// variables in path-like fields.
func Parse(data []byte) (*Config, error) {
	c := Default()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	c.Kubeconfig = expandPath(c.Kubeconfig)
	c.Kubectl = expandPath(c.Kubectl)
	return c, nil
}

func expandPath(p string) string {
	if p == "" {
		return p
	}
	p = os.ExpandEnv(p)
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			p = filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}
