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

// Package pipeline turns the sources of a track into its stored form.
//
// Preprocess runs a small state machine per track:
//
//	NeedsCheck -> SkipUnchanged
//	NeedsCheck -> Stale -> RemovingOutdated -> Ingesting ->
//	    SortAndMergeChromosomeFragments -> BuildIndex -> SanityCheck ->
//	    Finalize -> Done
//
// and any state may end in Failed.  A track is stored twice, once with
// overlapping elements as given and once with overlapping elements merged;
// each form is an overlap rule and is checked and rewritten on its own.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os/user"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/googlegenomics/trackstore/format"
	"github.com/googlegenomics/trackstore/genomics"
	"github.com/googlegenomics/trackstore/internal/catalog"
	"github.com/googlegenomics/trackstore/internal/collector"
	"github.com/googlegenomics/trackstore/internal/columns"
	"github.com/googlegenomics/trackstore/internal/logger"
	"github.com/googlegenomics/trackstore/internal/metrics"
	"github.com/googlegenomics/trackstore/internal/source"
	"github.com/googlegenomics/trackstore/trackerr"
)

// Version is the default pipeline version.  Stored data processed by another
// version is stale.
const Version = "1"

// Rules lists the overlap rules in processing order.
var Rules = []bool{true, false}

// Mode selects what a run is allowed to write.
type Mode uint8

const (
	// Commit rewrites stale rules and the track record.
	Commit Mode = iota
	// DryRun reports what Commit would do without writing anything.
	DryRun
	// MetadataOnly refreshes the track record without touching stored rows.
	MetadataOnly
)

var modeNames = []string{"commit", "dry-run", "metadata-only"}

func (m Mode) String() string {
	if int(m) < len(modeNames) {
		return modeNames[m]
	}
	return fmt.Sprintf("Mode(%d)", uint8(m))
}

// ParseMode returns the mode with the given name.
func ParseMode(name string) (Mode, error) {
	for i, n := range modeNames {
		if n == name {
			return Mode(i), nil
		}
	}
	return 0, fmt.Errorf("unknown mode %q", name)
}

// Genomes resolves genome names.
type Genomes interface {
	Genome(name string) (*genomics.Genome, error)
}

// Options configure a Pipeline.
type Options struct {
	// Backend stores the columns of new partitions.  Nil selects Arrow.
	Backend columns.Backend
	// BinSize is the bin width of new indexes.
	BinSize int64
	// Version overrides the pipeline version.
	Version string
	// Username is recorded with processed tracks.  Empty selects the
	// current user.
	Username string
	// Now returns the current time.
	Now func() time.Time
}

// Pipeline preprocesses tracks into a catalog.
type Pipeline struct {
	catalog  *catalog.Catalog
	genomes  Genomes
	backend  columns.Backend
	binSize  int64
	version  string
	username string
	now      func() time.Time
}

// New returns a pipeline writing to cat.
func New(cat *catalog.Catalog, genomes Genomes, opts Options) *Pipeline {
	p := &Pipeline{
		catalog:  cat,
		genomes:  genomes,
		backend:  opts.Backend,
		binSize:  opts.BinSize,
		version:  opts.Version,
		username: opts.Username,
		now:      opts.Now,
	}
	if p.backend == nil {
		p.backend = columns.ArrowBackend{}
	}
	if p.version == "" {
		p.version = Version
	}
	if p.username == "" {
		if u, err := user.Current(); err == nil {
			p.username = u.Username
		}
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

// Version returns the pipeline version recorded with processed data.
func (p *Pipeline) Version() string { return p.version }

// Job names a track and its source.
type Job struct {
	Genome string
	Track  string
	Source source.Source
	// Format, if set, is the format the track must have.
	Format format.Req
}

// RulePlan describes what a run does to one overlap rule.
type RulePlan struct {
	AllowOverlaps bool
	// Rewrite is set when the rule is stale.
	Rewrite bool
	// Reason explains why the rule is stale.
	Reason string
	// Rows and Elements are the counts the rewritten rule holds.  They are
	// only known once the sources have been read.
	Rows     int64
	Elements int64
}

// Plan lists the rules of a track and what a run does to them.
type Plan struct {
	Genome, Track string
	ProvenanceID  string
	Rules         []RulePlan
}

func (plan *Plan) rule(allowOverlaps bool) *RulePlan {
	for i := range plan.Rules {
		if plan.Rules[i].AllowOverlaps == allowOverlaps {
			return &plan.Rules[i]
		}
	}
	return nil
}

// Stale reports whether any rule is rewritten.
func (plan *Plan) Stale() bool {
	for _, r := range plan.Rules {
		if r.Rewrite {
			return true
		}
	}
	return false
}

// Result is the outcome of preprocessing one track.
type Result struct {
	Genome, Track string
	Mode          Mode
	// State is the last state reached: Done, SkipUnchanged or Failed.
	State  State
	Plan   *Plan
	Record *catalog.Record
	Err    error
}

// Check computes the plan of a track without reading its sources.
func (p *Pipeline) Check(ctx context.Context, job Job) (*Plan, error) {
	plan, _, _, err := p.check(ctx, job)
	return plan, err
}

func (p *Pipeline) check(ctx context.Context, job Job) (*Plan, []source.FileInfo, *catalog.Record, error) {
	files, err := job.Source.Stat(ctx)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("listing sources of %s: %w", job.Track, err)
	}
	prev, err := p.catalog.ReadRecord(ctx, job.Genome, job.Track)
	if errors.Is(err, catalog.ErrNoRecord) {
		prev = nil
	} else if err != nil {
		return nil, nil, nil, err
	}
	plan := &Plan{
		Genome:       job.Genome,
		Track:        job.Track,
		ProvenanceID: Provenance(files, job.Source.Version(), p.version),
	}
	for _, allowOverlaps := range Rules {
		reason, err := p.staleReason(job, prev, allowOverlaps, plan.ProvenanceID)
		if err != nil {
			return nil, nil, nil, err
		}
		plan.Rules = append(plan.Rules, RulePlan{AllowOverlaps: allowOverlaps, Rewrite: reason != "", Reason: reason})
	}
	return plan, files, prev, nil
}

// IsStale reports whether a track needs to be preprocessed.
func (p *Pipeline) IsStale(ctx context.Context, job Job) (bool, error) {
	plan, err := p.Check(ctx, job)
	if err != nil {
		return false, err
	}
	return plan.Stale(), nil
}

func (p *Pipeline) staleReason(job Job, prev *catalog.Record, allowOverlaps bool, provenance string) (string, error) {
	rule := prev.Rule(allowOverlaps)
	switch {
	case rule == nil:
		return "not processed", nil
	case rule.PipelineVersion != p.version:
		return fmt.Sprintf("processed by pipeline version %s", rule.PipelineVersion), nil
	case rule.ProvenanceID != provenance:
		return "sources changed", nil
	case rule.Empty:
		return "", nil
	}
	dir, err := p.catalog.RuleDir(job.Genome, job.Track, allowOverlaps)
	if err != nil {
		return "", err
	}
	backend, err := columns.NewBackend(rule.Backend)
	if err != nil {
		return "unknown backend " + rule.Backend, nil
	}
	if !backend.Exists(dir) || !catalog.IndexExists(dir) {
		return "stored data missing", nil
	}
	return "", nil
}

// run holds the state of one Preprocess call.
type run struct {
	p       *Pipeline
	job     Job
	mode    Mode
	log     *zap.Logger
	state   State
	entered time.Time

	plan   *Plan
	genome *genomics.Genome
	prev   *catalog.Record
	col    *collector.Collector
	data   *trackData
	record *catalog.Record
	locks  []*catalog.Lock
}

func (r *run) transition(s State) {
	if !r.state.canMoveTo(s) {
		panic(fmt.Sprintf("pipeline: invalid transition %v -> %v", r.state, s))
	}
	metrics.ObserveStage(r.state.String(), r.entered)
	r.log.Debug("state transition", zap.Stringer("from", r.state), zap.Stringer("to", s))
	r.state, r.entered = s, time.Now()
}

func (r *run) unlock() {
	for _, l := range r.locks {
		if err := l.Unlock(); err != nil {
			r.log.Warn("unlocking rule", zap.Error(err))
		}
	}
	r.locks = nil
}

// Preprocess brings the stored form of a track up to date with its source.
// The context may carry a run id set with logger.WithRun; one is generated
// otherwise.
func (p *Pipeline) Preprocess(ctx context.Context, job Job, mode Mode) (*Result, error) {
	if _, ok := ctx.Value(logger.RunIDKey).(string); !ok {
		ctx = logger.WithRun(ctx, uuid.New().String())
	}
	ctx = logger.WithTrack(ctx, job.Genome, job.Track)
	r := &run{
		p:       p,
		job:     job,
		mode:    mode,
		log:     logger.WithContext(ctx).With(zap.Stringer("mode", mode)),
		state:   NeedsCheck,
		entered: time.Now(),
	}
	defer r.unlock()

	result := &Result{Genome: job.Genome, Track: job.Track, Mode: mode}
	err := r.execute(ctx)
	result.State, result.Plan = r.state, r.plan
	if err != nil {
		failed := r.state
		r.transition(Failed)
		result.State, result.Err = Failed, err
		r.logFailure(failed, err)
		metrics.TracksProcessed.WithLabelValues(outcome(err)).Inc()
		return result, err
	}
	result.Record = r.record
	metrics.TracksProcessed.WithLabelValues(r.outcome()).Inc()
	return result, nil
}

func (r *run) logFailure(state State, err error) {
	fields := []zap.Field{zap.Stringer("state", state), zap.Error(err)}
	kind, _ := trackerr.KindOf(err)
	switch kind {
	case trackerr.NotSupported:
		r.log.Warn("track not supported", fields...)
	case trackerr.ShouldNotOccur:
		r.log.Error("internal inconsistency", append(fields, zap.Stack("stack"))...)
	default:
		r.log.Error("preprocessing failed", fields...)
	}
}

func outcome(err error) string {
	if errors.Is(err, trackerr.ErrNotSupported) {
		return "not_supported"
	}
	return "failed"
}

func (r *run) outcome() string {
	switch {
	case r.state == SkipUnchanged:
		return "unchanged"
	case r.mode == DryRun:
		return "dry_run"
	case r.mode == MetadataOnly:
		return "metadata_only"
	}
	return "committed"
}
