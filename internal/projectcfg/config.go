// Package projectcfg reads marginc.yaml, the per-project file describing
// what to run and how the VM should be tuned. Every field is optional;
// command-line flags override whatever the file says.
package projectcfg

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the top-level marginc.yaml shape.
type Config struct {
	// Image is the path of the bytecode image to load.
	Image string `yaml:"image"`

	// Function is the entry function name. Defaults to "main".
	Function string `yaml:"function,omitempty"`

	VM VMConfig `yaml:"vm,omitempty"`

	Host HostConfig `yaml:"host,omitempty"`
}

// VMConfig carries the VM tuning knobs.
type VMConfig struct {
	// MaxFrames bounds call depth; 0 keeps the VM default.
	MaxFrames int `yaml:"max_frames,omitempty"`

	// DisableCache turns the per-function result cache off globally.
	DisableCache bool `yaml:"disable_cache,omitempty"`
}

// HostConfig configures the built-in host modules.
type HostConfig struct {
	// StorePath is the persistent key/value database file backing the
	// store module; empty disables it.
	StorePath string `yaml:"store_path,omitempty"`

	// RPCTarget is the default address the rpc module dials when a call
	// gives no explicit address.
	RPCTarget string `yaml:"rpc_target,omitempty"`
}

// Default is the configuration used when no marginc.yaml exists.
func Default() *Config {
	return &Config{Function: "main"}
}

// Load reads and validates path. A missing file is not an error: the
// default configuration is returned so callers can fall back to flags.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if cfg.Function == "" {
		cfg.Function = "main"
	}
	if cfg.VM.MaxFrames < 0 {
		return nil, fmt.Errorf("%s: vm.max_frames must not be negative", path)
	}
	return cfg, nil
}
