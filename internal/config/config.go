// Copyright 2018 Google Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads the YAML configuration of the track store.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/googlegenomics/trackstore/genomics"
	"github.com/googlegenomics/trackstore/internal/columns"
	"github.com/googlegenomics/trackstore/internal/logger"
)

// ErrUnknownGenome is returned by Genome for names that are not configured.
var ErrUnknownGenome = errors.New("unknown genome")

// Config is the configuration of the track store.
type Config struct {
	Store   StoreConfig   `yaml:"store"`
	Locks   LockConfig    `yaml:"locks"`
	Logging logger.Config `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Server  ServerConfig  `yaml:"server"`

	Genomes []genomics.Genome `yaml:"genomes"`
	// GenomeFiles lists YAML files holding one genome each.  Relative paths
	// are resolved against the directory of the configuration file.
	GenomeFiles []string `yaml:"genomeFiles"`
}

// StoreConfig locates and shapes the stored tracks.
type StoreConfig struct {
	Root    string `yaml:"root"`
	Backend string `yaml:"backend"`
	BinSize int64  `yaml:"binSize"`
	// PipelineVersion overrides the version recorded with processed data.
	// Changing it marks every track as stale.
	PipelineVersion string `yaml:"pipelineVersion"`
}

// LockConfig bounds the polling interval of blocked lock acquisitions.
type LockConfig struct {
	MinPoll time.Duration `yaml:"minPoll"`
	MaxPoll time.Duration `yaml:"maxPoll"`
}

// MetricsConfig controls the metrics endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Listen string `yaml:"listen"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Root:    "trackstore",
			Backend: "arrow",
			BinSize: 100000,
		},
		Locks: LockConfig{
			MinPoll: 5 * time.Millisecond,
			MaxPoll: 2 * time.Second,
		},
		Logging: logger.Config{Level: "info", Encoding: "json"},
		Metrics: MetricsConfig{Enabled: true, Path: "/metrics"},
		Server:  ServerConfig{Listen: ":8080"},
	}
}

// Load reads the configuration at path over the defaults.  ${VAR}
// references are replaced by environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()
	if err := loadYAML(path, cfg); err != nil {
		return nil, err
	}
	for _, file := range cfg.GenomeFiles {
		if !filepath.IsAbs(file) {
			file = filepath.Join(filepath.Dir(path), file)
		}
		var genome genomics.Genome
		if err := loadYAML(file, &genome); err != nil {
			return nil, err
		}
		cfg.Genomes = append(cfg.Genomes, genome)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration %s: %w", path, err)
	}
	return cfg, nil
}

func loadYAML(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), v); err != nil {
		return fmt.Errorf("failed to parse YAML %s: %w", path, err)
	}
	return nil
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.Store.Root == "" {
		return fmt.Errorf("store root is required")
	}
	if _, err := columns.NewBackend(c.Store.Backend); err != nil {
		return err
	}
	if c.Store.BinSize <= 0 {
		return fmt.Errorf("bin size must be positive")
	}
	if c.Locks.MinPoll <= 0 || c.Locks.MaxPoll < c.Locks.MinPoll {
		return fmt.Errorf("lock poll bounds %v..%v are invalid", c.Locks.MinPoll, c.Locks.MaxPoll)
	}
	seen := make(map[string]bool)
	for i := range c.Genomes {
		if err := c.Genomes[i].Validate(); err != nil {
			return err
		}
		if seen[c.Genomes[i].Name] {
			return fmt.Errorf("genome %s is defined twice", c.Genomes[i].Name)
		}
		seen[c.Genomes[i].Name] = true
	}
	return nil
}

// Genome returns the genome with the given name.
func (c *Config) Genome(name string) (*genomics.Genome, error) {
	for i := range c.Genomes {
		if c.Genomes[i].Name == name {
			return &c.Genomes[i], nil
		}
	}
	return nil, fmt.Errorf("%w %q", ErrUnknownGenome, name)
}
