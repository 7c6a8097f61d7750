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

package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/googlegenomics/trackstore/internal/catalog"
	"github.com/googlegenomics/trackstore/internal/collector"
	"github.com/googlegenomics/trackstore/internal/index"
	"github.com/googlegenomics/trackstore/internal/metrics"
)

// ruleWork is the pending output of one stale rule.
type ruleWork struct {
	allowOverlaps bool
	rows          *ruleRows
	index         *index.Index
}

func (r *run) execute(ctx context.Context) error {
	p, job := r.p, r.job
	genome, err := p.genomes.Genome(job.Genome)
	if err != nil {
		return err
	}
	r.genome = genome
	plan, files, prev, err := p.check(ctx, job)
	if err != nil {
		return err
	}
	r.plan, r.prev = plan, prev

	if !plan.Stale() && r.mode != MetadataOnly {
		for _, allowOverlaps := range Rules {
			metrics.RulesSkipped.WithLabelValues(catalog.RuleName(allowOverlaps)).Inc()
		}
		r.transition(SkipUnchanged)
		r.log.Info("track unchanged", zap.String("provenance", plan.ProvenanceID))
		return nil
	}
	r.transition(Stale)
	r.col = collector.New(job.Genome, job.Track)
	if err := r.col.Require(job.Format); err != nil {
		return err
	}

	var stale []bool
	for _, rule := range plan.Rules {
		if rule.Rewrite && r.mode != MetadataOnly {
			r.log.Debug("rule is stale", zap.String("rule", catalog.RuleName(rule.AllowOverlaps)), zap.String("reason", rule.Reason))
			stale = append(stale, rule.AllowOverlaps)
		} else {
			metrics.RulesSkipped.WithLabelValues(catalog.RuleName(rule.AllowOverlaps)).Inc()
		}
	}

	if r.mode == Commit {
		r.transition(RemovingOutdated)
		if err := r.removeOutdated(ctx, stale); err != nil {
			return err
		}
	}

	r.transition(Ingesting)
	if r.data, err = ingest(ctx, job.Source, files, plan.ProvenanceID, genome, r.col); err != nil {
		return err
	}

	r.transition(SortAndMergeChromosomeFragments)
	if err := r.data.sortAndMerge(); err != nil {
		return err
	}
	work := make([]*ruleWork, 0, len(stale))
	for _, allowOverlaps := range stale {
		blocks := r.data.blocks
		if !allowOverlaps && !r.data.format.IsDense() {
			blocks = cluster(blocks)
		}
		work = append(work, &ruleWork{allowOverlaps: allowOverlaps, rows: flatten(blocks)})
	}

	if len(work) > 0 {
		r.transition(BuildIndex)
		for _, w := range work {
			if w.index, err = r.buildIndex(w); err != nil {
				return fmt.Errorf("building %s index: %w", catalog.RuleName(w.allowOverlaps), err)
			}
		}
	}

	r.transition(SanityCheck)
	if err := r.sanityCheck(work); err != nil {
		return err
	}

	r.transition(Finalize)
	if err := r.finalize(ctx, work); err != nil {
		return err
	}
	r.transition(Done)
	r.log.Info("track processed",
		zap.String("format", r.data.format.Name().String()),
		zap.Int64("elements", r.col.ElementCount()),
		zap.Int("rules_written", len(work)))
	return nil
}

// removeOutdated locks the stale rules for the rest of the run and deletes
// their stored data.
func (r *run) removeOutdated(ctx context.Context, stale []bool) error {
	for _, allowOverlaps := range stale {
		lock, err := r.p.catalog.LockRule(ctx, r.job.Genome, r.job.Track, allowOverlaps, true)
		if err != nil {
			return err
		}
		r.locks = append(r.locks, lock)
		dir, err := r.p.catalog.RuleDir(r.job.Genome, r.job.Track, allowOverlaps)
		if err != nil {
			return err
		}
		if err := catalog.ClearRule(dir); err != nil {
			return err
		}
		r.col.Rule(allowOverlaps).Exists = false
	}
	return nil
}

func (r *run) buildIndex(w *ruleWork) (*index.Index, error) {
	f := r.data.format
	var coords index.Coordinates
	if !f.ReprIsDense() && !f.IsPartition() {
		coords = rowCoordinates(w.rows.elements)
	}
	return index.Build(w.rows.regions, coords, index.Options{
		Dense:       f.ReprIsDense(),
		WholeGenome: r.data.wholeGenome,
		BinSize:     r.p.binSize,
	})
}

func (r *run) sanityCheck(work []*ruleWork) error {
	for _, w := range work {
		counts := w.rows.counts
		if w.allowOverlaps {
			counts = r.col.ChromosomeCounts()
		}
		if err := w.index.CheckCounts(counts); err != nil {
			return err
		}
	}
	// Without an id column no edge target can exist.
	if r.data.format.IsLinked() {
		if err := checkIfEdgeIdsExist(r.data.blocks); err != nil {
			return err
		}
		if r.col.Info().UndirectedEdges {
			if err := checkUndirectedEdges(r.data.blocks); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *run) finalize(ctx context.Context, work []*ruleWork) error {
	f := r.data.format
	for _, w := range work {
		rows := int64(len(w.rows.elements))
		plan := r.plan.rule(w.allowOverlaps)
		plan.Rows, plan.Elements = rows, rows
		if f.IsPartition() {
			for _, br := range w.rows.regions {
				if br.ElementCount > 0 {
					plan.Elements--
				}
			}
		}
		backend := r.p.backend.Name()
		if r.mode == Commit && rows > 0 {
			if err := r.writeRule(w); err != nil {
				return fmt.Errorf("writing %s rule: %w", catalog.RuleName(w.allowOverlaps), err)
			}
		}
		if rows == 0 {
			backend = ""
		}
		r.col.Rule(w.allowOverlaps).Result = &collector.RuleResult{
			Rows:             rows,
			ChromosomeCounts: w.rows.counts,
			BoundingRegions:  w.rows.regions,
			ProvenanceID:     r.plan.ProvenanceID,
			Backend:          backend,
		}
	}

	record, err := r.col.Finalize(r.prev, r.p.username, r.p.version, r.p.now())
	if err != nil {
		return err
	}
	r.record = record
	if r.mode == DryRun {
		return nil
	}
	if err := r.p.catalog.WriteRecord(ctx, record); err != nil {
		return err
	}
	return r.p.catalog.UpdateSubtreeCounts(ctx, r.job.Genome, r.job.Track)
}

func (r *run) writeRule(w *ruleWork) error {
	dir, err := r.p.catalog.RuleDir(r.job.Genome, r.job.Track, w.allowOverlaps)
	if err != nil {
		return err
	}
	specs := r.col.ColumnSpecs(r.data.format)
	writer, err := r.p.backend.Create(dir, specs)
	if err != nil {
		return err
	}
	if err := writeColumns(writer, specs, w.rows.elements); err != nil {
		writer.Abort()
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}
	if err := catalog.WriteIndex(dir, w.index); err != nil {
		return err
	}
	state := r.col.Rule(w.allowOverlaps)
	state.Exists, state.Dirty = true, true
	r.log.Debug("rule written",
		zap.String("rule", catalog.RuleName(w.allowOverlaps)),
		zap.String("backend", r.p.backend.Name()),
		zap.Int("rows", len(w.rows.elements)),
		zap.Int("bounding_regions", len(w.rows.regions)))
	return nil
}
