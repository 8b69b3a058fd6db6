// Package config loads node configuration from a YAML file into a
// consensus.Config, applying the same validation the engine enforces
// at construction so bad configuration fails fast at startup.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/empower1/proof-of-emotion/internal/consensus"
)

// File is the on-disk shape of a node's configuration file: the
// consensus tunables plus node-level settings the engine itself
// doesn't need.
type File struct {
	NodeID      string           `yaml:"node_id"`
	ListenAddr  string           `yaml:"listen_addr"`
	DataDir     string           `yaml:"data_dir"`
	LogLevel    string           `yaml:"log_level"`
	Consensus   consensus.Config `yaml:"consensus"`
	MetricsAddr string           `yaml:"metrics_addr,omitempty"`
}

// Default returns a File populated with the engine's default
// consensus tunables and reasonable node-level defaults.
func Default() File {
	return File{
		NodeID:     "validator-1",
		ListenAddr: "0.0.0.0:26656",
		DataDir:    "./data",
		LogLevel:   "info",
		Consensus:  consensus.DefaultConfig(),
	}
}

// Load reads and parses path into a File, starting from Default so any
// field the file leaves out keeps its default (a field the file sets,
// even to zero, overrides it), then validates the result.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	file := Default()
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := file.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}

	return &file, nil
}

// Validate checks the fields the engine's own constructor would
// otherwise reject, so misconfiguration surfaces at load time with the
// offending file path in context.
func (f *File) Validate() error {
	if f.NodeID == "" {
		return fmt.Errorf("node_id is required")
	}
	if f.Consensus.EmotionalThreshold > 100 {
		return fmt.Errorf("consensus.emotional_threshold must be <= 100")
	}
	if f.Consensus.ByzantineThreshold < 51 || f.Consensus.ByzantineThreshold > 100 {
		return fmt.Errorf("consensus.byzantine_threshold must be 51-100")
	}
	if f.Consensus.CommitteeSize <= 0 {
		return fmt.Errorf("consensus.committee_size must be > 0")
	}
	if f.Consensus.CommitteeSize > consensus.MaxCommitteeSize {
		return fmt.Errorf("consensus.committee_size must be <= %d", consensus.MaxCommitteeSize)
	}
	if f.Consensus.EpochDurationMs == 0 {
		return fmt.Errorf("consensus.epoch_duration_ms must be > 0")
	}
	return nil
}
