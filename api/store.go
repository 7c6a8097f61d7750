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

// Package api exposes a track store to programs and over HTTP.
//
// A Store ties together the catalog holding the stored tracks, the
// preprocessing pipeline writing them and the query engine reading them, all
// configured from one config.Config.  Server serves the read side of a Store
// as JSON.
package api

import (
	"context"
	"strings"

	"github.com/googlegenomics/trackstore/format"
	"github.com/googlegenomics/trackstore/genomics"
	"github.com/googlegenomics/trackstore/internal/catalog"
	"github.com/googlegenomics/trackstore/internal/columns"
	"github.com/googlegenomics/trackstore/internal/config"
	"github.com/googlegenomics/trackstore/internal/jsonl"
	"github.com/googlegenomics/trackstore/internal/pipeline"
	"github.com/googlegenomics/trackstore/internal/query"
	"github.com/googlegenomics/trackstore/internal/source"
)

// Store is an opened track store.  It is safe for concurrent use; concurrent
// writers and readers of the same track are serialized by the catalog locks,
// also across processes.
type Store struct {
	cfg      *config.Config
	catalog  *catalog.Catalog
	pipeline *pipeline.Pipeline
	engine   *query.Engine
	gcs      source.Client
}

// Option configures a Store.
type Option func(*Store)

// WithGCSClient sets the client used to read gs:// sources.  Without it a
// client with the default credentials is created on first use.
func WithGCSClient(client source.Client) Option {
	return func(s *Store) { s.gcs = client }
}

// Open opens the store described by cfg.
func Open(cfg *config.Config, opts ...Option) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	backend, err := columns.NewBackend(cfg.Store.Backend)
	if err != nil {
		return nil, err
	}
	cat, err := catalog.Open(cfg.Store.Root, catalog.WithPoll(catalog.PollConfig{
		Min: cfg.Locks.MinPoll,
		Max: cfg.Locks.MaxPoll,
	}))
	if err != nil {
		return nil, err
	}
	s := &Store{
		cfg:     cfg,
		catalog: cat,
		pipeline: pipeline.New(cat, cfg, pipeline.Options{
			Backend: backend,
			BinSize: cfg.Store.BinSize,
			Version: cfg.Store.PipelineVersion,
		}),
		engine: query.New(cat, cfg),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Config returns the configuration the store was opened with.
func (s *Store) Config() *config.Config { return s.cfg }

// Catalog returns the catalog of the store.
func (s *Store) Catalog() *catalog.Catalog { return s.catalog }

// Genome returns the configured genome with the given name.
func (s *Store) Genome(name string) (*genomics.Genome, error) {
	return s.cfg.Genome(name)
}

// FileJob returns the job preprocessing track from JSON lines files.  Paths
// are local files or gs://bucket/object URLs.
func (s *Store) FileJob(genome, track string, paths []string) pipeline.Job {
	return pipeline.Job{
		Genome: genome,
		Track:  track,
		Source: &source.Files{Paths: paths, Parser: jsonl.Parser{}, Client: s.gcs},
	}
}

// ParseTrackRef splits "genome/track" into its parts.
func ParseTrackRef(ref string) (genome, track string, ok bool) {
	parts := strings.SplitN(ref, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// Preprocess runs the pipeline over jobs.
func (s *Store) Preprocess(ctx context.Context, jobs []pipeline.Job, opts pipeline.BatchOptions) ([]*pipeline.Result, error) {
	return s.pipeline.RunBatch(ctx, jobs, opts)
}

// Check returns what preprocessing job would do without doing it.
func (s *Store) Check(ctx context.Context, job pipeline.Job) (*pipeline.Plan, error) {
	return s.pipeline.Check(ctx, job)
}

// IsStale reports whether the stored data of a track is out of date with
// respect to its source.
func (s *Store) IsStale(ctx context.Context, job pipeline.Job) (bool, error) {
	return s.pipeline.IsStale(ctx, job)
}

// Query returns the rows of a track overlapping region.  The slice must be
// closed.
func (s *Store) Query(ctx context.Context, genome, track string, allowOverlaps bool, region genomics.Region) (*query.Slice, error) {
	return s.engine.Query(ctx, genome, track, allowOverlaps, region)
}

// QueryFormat is like Query but fails with a FormatConflict error unless the
// track meets req.
func (s *Store) QueryFormat(ctx context.Context, genome, track string, allowOverlaps bool, region genomics.Region, req format.Req) (*query.Slice, error) {
	return s.engine.QueryFormat(ctx, genome, track, allowOverlaps, region, req)
}

// Record returns the record of a track.
func (s *Store) Record(ctx context.Context, genome, track string) (*catalog.Record, error) {
	return s.catalog.ReadRecord(ctx, genome, track)
}

// Tracks lists the processed tracks of a genome.
func (s *Store) Tracks(genome string) ([]string, error) {
	return s.catalog.Tracks(genome)
}

// RemoveTrack deletes the stored data of a track.
func (s *Store) RemoveTrack(ctx context.Context, genome, track string) error {
	return s.catalog.RemoveTrack(ctx, genome, track)
}
