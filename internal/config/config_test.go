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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/googlegenomics/trackstore/genomics"
)

func write(t *testing.T, dir, name, content string) string {
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TRACKSTORE_TEST_ROOT", "/data/tracks")
	write(t, dir, "hg38.yaml", `
name: hg38
chromosomes:
  - {name: chr1, length: 248956422}
  - {name: chr2, length: 242193529}
`)
	path := write(t, dir, "trackstore.yaml", `
store:
  root: ${TRACKSTORE_TEST_ROOT}
  backend: flat
locks:
  maxPoll: 500ms
logging:
  level: debug
genomes:
  - name: test
    chromosomes:
      - {name: chrA, length: 1000}
genomeFiles: [hg38.yaml]
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/data/tracks", cfg.Store.Root)
	assert.Equal(t, "flat", cfg.Store.Backend)
	assert.Equal(t, int64(100000), cfg.Store.BinSize)
	assert.Equal(t, 5*time.Millisecond, cfg.Locks.MinPoll)
	assert.Equal(t, 500*time.Millisecond, cfg.Locks.MaxPoll)
	assert.Equal(t, "debug", cfg.Logging.Level)

	genome, err := cfg.Genome("hg38")
	require.NoError(t, err)
	length, ok := genome.Length("chr2")
	assert.True(t, ok)
	assert.Equal(t, int64(242193529), length)
	_, err = cfg.Genome("mm10")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name   string
		modify func(*Config)
	}{
		{"no root", func(c *Config) { c.Store.Root = "" }},
		{"bad backend", func(c *Config) { c.Store.Backend = "parquet" }},
		{"zero bin size", func(c *Config) { c.Store.BinSize = 0 }},
		{"poll bounds", func(c *Config) { c.Locks.MaxPoll = time.Microsecond }},
		{"bad genome", func(c *Config) { c.Genomes = append(c.Genomes, c.Genomes[0]) }},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			cfg.Genomes = nil
			require.NoError(t, cfg.Validate())
			cfg.Genomes = append(cfg.Genomes, genomeFixture())
			tc.modify(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func genomeFixture() genomics.Genome {
	return genomics.Genome{Name: "test", Chromosomes: []genomics.Chromosome{{Name: "chr1", Length: 100}}}
}
