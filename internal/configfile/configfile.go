// Package configfile loads the project configuration. A project keeps
// either udl.config.yaml (hand-written) or udl.config.json (generated);
// when both exist the JSON form wins because generated config reflects
// the toolchain's last word.
package configfile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/udl-dev/udl/internal/codegen"
	"github.com/udl-dev/udl/internal/source"
)

// Config file names probed in Load. JSON takes precedence.
const (
	JSONName = "udl.config.json"
	YAMLName = "udl.config.yaml"
)

// Config is the project-level configuration.
type Config struct {
	// Host and Port bind the HTTP server. Defaults: 127.0.0.1:4000.
	Host string `json:"host,omitempty" yaml:"host,omitempty"`
	Port int    `json:"port,omitempty" yaml:"port,omitempty"`

	// Plugins are the top-level sources to load.
	Plugins []source.Ref `json:"plugins,omitempty" yaml:"plugins,omitempty"`

	// Codegen, when set, configures the project-level codegen run.
	Codegen *codegen.Config `json:"codegen,omitempty" yaml:"codegen,omitempty"`

	// DeletionLog, when set, mirrors tombstones to this JSONL file.
	DeletionLog string `json:"deletionLog,omitempty" yaml:"deletionLog,omitempty"`

	// Path records where the config was loaded from.
	Path string `json:"-" yaml:"-"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *Config {
	return &Config{Host: "127.0.0.1", Port: 4000}
}

// Addr renders the listen address.
func (c *Config) Addr() string {
	host := c.Host
	if host == "" {
		host = "127.0.0.1"
	}
	port := c.Port
	if port == 0 {
		port = 4000
	}
	return fmt.Sprintf("%s:%d", host, port)
}

// Load probes dir for a config file. A missing file returns the
// defaults with no error; a malformed file is an error.
func Load(dir string) (*Config, error) {
	jsonPath := filepath.Join(dir, JSONName)
	if data, err := os.ReadFile(jsonPath); err == nil { // #nosec G304 - controlled path
		cfg := DefaultConfig()
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", jsonPath, err)
		}
		cfg.Path = jsonPath
		return cfg, nil
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading %s: %w", jsonPath, err)
	}

	yamlPath := filepath.Join(dir, YAMLName)
	if data, err := os.ReadFile(yamlPath); err == nil { // #nosec G304 - controlled path
		cfg := DefaultConfig()
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", yamlPath, err)
		}
		cfg.Path = yamlPath
		return cfg, nil
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading %s: %w", yamlPath, err)
	}

	return DefaultConfig(), nil
}
