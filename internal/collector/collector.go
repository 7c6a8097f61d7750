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

// Package collector accumulates the statistics of a track while its sources
// are read.  The statistics size the column store before rows are written
// and end up in the track record.
//
// A Collector belongs to one pipeline run and one track; it is passed
// explicitly to whatever needs it and dropped when the run ends.
package collector

import (
	"fmt"
	"sort"
	"time"

	"github.com/googlegenomics/trackstore/format"
	"github.com/googlegenomics/trackstore/genomics"
	"github.com/googlegenomics/trackstore/internal/catalog"
	"github.com/googlegenomics/trackstore/internal/columns"
	"github.com/googlegenomics/trackstore/trackerr"
)

// Source summarizes one source of a track once it has been read.
type Source struct {
	// FileSuffix names the source, typically the extension of its file.
	FileSuffix      string
	Columns         format.ColumnSet
	ExtraColumns    []string
	Value           format.TypeInfo
	Weight          format.TypeInfo
	UndirectedEdges bool
	Version         int
	ProvenanceID    string
	ElementCount    int64
	BoundingRegions []genomics.BoundingRegion
	AllowOverlaps   bool
}

// RuleState tracks the progress of one overlap rule during a run.
type RuleState struct {
	// Finalized is set once the rule's storage and record entry are final.
	Finalized bool
	// Exists reports whether storage for the rule is present on disk.
	Exists bool
	// Dirty is set when the rule's storage was rewritten during the run.
	Dirty bool
	// Result holds the counts of the stored rows once they are known.
	Result *RuleResult
}

// RuleResult describes the rows stored for a rule.
type RuleResult struct {
	Rows             int64
	ChromosomeCounts map[string]int64
	BoundingRegions  []genomics.BoundingRegion
	ProvenanceID     string
	Backend          string
}

// Collector accumulates the statistics of one track.
type Collector struct {
	Genome, Track string

	sources         []string
	first           *Source
	columns         format.ColumnSet
	extraColumns    []string
	provenance      string
	elementCount    int64
	boundingRegions []genomics.BoundingRegion

	chromosomeCounts map[string]int64
	valueCategories  map[string]int64
	weightCategories map[string]int64

	idWidth, edgeWidth, valueWidth, weightWidth int
	maxEdges                                    int
	extraWidths                                 map[string]int

	// req is the requirement the track format must meet.
	req format.Req

	rules map[bool]*RuleState
}

// New returns an empty collector for a track.
func New(genome, track string) *Collector {
	return &Collector{
		Genome:           genome,
		Track:            track,
		chromosomeCounts: make(map[string]int64),
		valueCategories:  make(map[string]int64),
		weightCategories: make(map[string]int64),
		extraWidths:      make(map[string]int),
		rules:            map[bool]*RuleState{true: {}, false: {}},
	}
}

// Observe records the statistics of one element.
func (c *Collector) Observe(e *genomics.Element, info genomics.StreamInfo) {
	c.chromosomeCounts[e.Chromosome]++
	if len(e.ID) > c.idWidth {
		c.idWidth = len(e.ID)
	}
	if len(e.Edges) > c.maxEdges {
		c.maxEdges = len(e.Edges)
	}
	for _, edge := range e.Edges {
		if len(edge) > c.edgeWidth {
			c.edgeWidth = len(edge)
		}
	}
	if s, ok := e.Value.(string); ok {
		if len(s) > c.valueWidth {
			c.valueWidth = len(s)
		}
		if info.Value.Type == format.Category {
			c.valueCategories[s]++
		}
	}
	for _, w := range e.Weights {
		if s, ok := w.(string); ok {
			if len(s) > c.weightWidth {
				c.weightWidth = len(s)
			}
			if info.Weight.Type == format.Category {
				c.weightCategories[s]++
			}
		}
	}
	for k, v := range e.Extra {
		if len(v) > c.extraWidths[k] {
			c.extraWidths[k] = len(v)
		}
	}
}

func inconsistent(attribute string, got, want interface{}) error {
	return trackerr.New(trackerr.InconsistentSource, "got %v, want %v", got, want).WithAttribute(attribute)
}

// UpdateForOneSource accumulates the summary of a source that has been read
// completely.  Every source of a track must agree on columns, value and
// weight types and dimensions, edge direction and source version.
func (c *Collector) UpdateForOneSource(src Source) error {
	if c.first != nil {
		first := c.first
		switch {
		case src.Columns != first.Columns:
			return inconsistent("columns", src.Columns, first.Columns)
		case src.Value.Type != first.Value.Type:
			return inconsistent("value type", src.Value.Type, first.Value.Type)
		case src.Value.Dimension() != first.Value.Dimension():
			return inconsistent("value dimension", src.Value.Dimension(), first.Value.Dimension())
		case src.Weight.Type != first.Weight.Type:
			return inconsistent("weight type", src.Weight.Type, first.Weight.Type)
		case src.Weight.Dimension() != first.Weight.Dimension():
			return inconsistent("weight dimension", src.Weight.Dimension(), first.Weight.Dimension())
		case src.UndirectedEdges != first.UndirectedEdges:
			return inconsistent("undirected edges", src.UndirectedEdges, first.UndirectedEdges)
		case src.Version != first.Version:
			return inconsistent("version", src.Version, first.Version)
		case fmt.Sprint(src.ExtraColumns) != fmt.Sprint(first.ExtraColumns):
			return inconsistent("extra columns", src.ExtraColumns, first.ExtraColumns)
		}
	} else {
		s := src
		c.first = &s
		c.columns = src.Columns
		c.extraColumns = src.ExtraColumns
	}
	c.sources = append(c.sources, src.FileSuffix)
	c.elementCount += src.ElementCount
	c.boundingRegions = append(c.boundingRegions, src.BoundingRegions...)
	if src.ProvenanceID != "" {
		c.provenance = src.ProvenanceID
	}
	return nil
}

// Format classifies the track from the accumulated sources.
func (c *Collector) Format() (format.TrackFormat, error) {
	if c.first == nil {
		return format.TrackFormat{}, trackerr.New(trackerr.NotSupported, "track %s has no sources", c.Track)
	}
	f, err := format.Classify(c.columns, c.first.Value, c.first.Weight)
	if err != nil {
		return f, err
	}
	if err := f.Check(c.req); err != nil {
		return format.TrackFormat{}, fmt.Errorf("track %s: %w", c.Track, err)
	}
	return f, nil
}

// Require adds req to the requirements checked by Format.  It fails if req
// conflicts with an earlier requirement.
func (c *Collector) Require(req format.Req) error {
	merged, err := format.Merge(c.req, req)
	if err != nil {
		return fmt.Errorf("track %s: %w", c.Track, err)
	}
	c.req = merged
	return nil
}

// Info returns the stream description shared by all sources.
func (c *Collector) Info() genomics.StreamInfo {
	if c.first == nil {
		return genomics.StreamInfo{}
	}
	return genomics.StreamInfo{
		Columns:         c.first.Columns,
		ExtraColumns:    c.first.ExtraColumns,
		Value:           c.first.Value,
		Weight:          c.first.Weight,
		UndirectedEdges: c.first.UndirectedEdges,
		BoundingRegions: c.boundingRegions,
		Version:         c.first.Version,
		ProvenanceID:    c.provenance,
	}
}

// ElementCount returns the number of elements of all sources.
func (c *Collector) ElementCount() int64 { return c.elementCount }

// ChromosomeCounts returns the number of observed elements per chromosome.
func (c *Collector) ChromosomeCounts() map[string]int64 {
	counts := make(map[string]int64, len(c.chromosomeCounts))
	for k, v := range c.chromosomeCounts {
		counts[k] = v
	}
	return counts
}

// BoundingRegions returns the bounding regions declared by the sources.  Nil
// means the sources declared none.
func (c *Collector) BoundingRegions() []genomics.BoundingRegion { return c.boundingRegions }

// ValueCategories returns the number of elements per categorical value.
func (c *Collector) ValueCategories() map[string]int64 { return c.valueCategories }

// Rule returns the state of an overlap rule.
func (c *Collector) Rule(allowOverlaps bool) *RuleState { return c.rules[allowOverlaps] }

// MaxEdges returns the largest number of edges of one element.
func (c *Collector) MaxEdges() int { return c.maxEdges }

// ExtraColumnName returns the name of the stored column of an extra column.
func ExtraColumnName(name string) string { return "extra:" + name }

func valueSpec(name string, info format.TypeInfo, perRow, width int) columns.Spec {
	spec := columns.Spec{Name: name, Dim: perRow * info.Dimension()}
	switch info.Type {
	case format.Number, format.MeanSD:
		spec.Kind = columns.Float64
	case format.Integer, format.Population:
		spec.Kind = columns.Int64
	case format.Boolean:
		spec.Kind = columns.Bool
	case format.Category, format.Character:
		spec.Kind = columns.String
		spec.Width = max(width, 1)
	}
	if spec.Dim == 1 {
		spec.Dim = 0
	}
	return spec
}

// ColumnSpecs returns the column declarations needed to store the track.
func (c *Collector) ColumnSpecs(f format.TrackFormat) []columns.Spec {
	var specs []columns.Spec
	cols := f.Columns()
	if cols.Has(format.Start) {
		specs = append(specs, columns.Spec{Name: format.Start.String(), Kind: columns.Int64})
	}
	if cols.Has(format.End) {
		specs = append(specs, columns.Spec{Name: format.End.String(), Kind: columns.Int64})
	}
	if cols.Has(format.Value) {
		specs = append(specs, valueSpec(format.Value.String(), f.Value(), 1, c.valueWidth))
	}
	if cols.Has(format.Strand) {
		specs = append(specs, columns.Spec{Name: format.Strand.String(), Kind: columns.Uint8})
	}
	if cols.Has(format.ID) {
		specs = append(specs, columns.Spec{Name: format.ID.String(), Kind: columns.String, Width: max(c.idWidth, 1)})
	}
	edges := max(c.maxEdges, 1)
	if cols.Has(format.Edges) {
		spec := columns.Spec{Name: format.Edges.String(), Kind: columns.String, Dim: edges, Width: max(c.edgeWidth, 1)}
		if edges == 1 {
			spec.Dim = 0
		}
		specs = append(specs, spec)
	}
	if cols.Has(format.Weights) {
		specs = append(specs, valueSpec(format.Weights.String(), f.Weight(), edges, c.weightWidth))
	}
	if cols.Has(format.Extra) {
		for _, name := range c.extraColumns {
			specs = append(specs, columns.Spec{Name: ExtraColumnName(name), Kind: columns.String, Width: max(c.extraWidths[name], 1)})
		}
	}
	return specs
}

// Finalize builds the track record from the accumulated statistics and the
// results of both rules.  Rules without a result keep the entry of prev, if
// any.  For partition formats one boundary row per bounding region carries
// no element and is not counted.
func (c *Collector) Finalize(prev *catalog.Record, username, pipelineVersion string, now time.Time) (*catalog.Record, error) {
	f, err := c.Format()
	if err != nil {
		return nil, err
	}
	info := c.Info()
	r := &catalog.Record{
		Genome:           c.Genome,
		Track:            c.Track,
		Format:           f.Name().String(),
		Columns:          catalog.ColumnNames(f.Columns()),
		ExtraColumns:     info.ExtraColumns,
		Value:            f.Value(),
		Weight:           f.Weight(),
		UndirectedEdges:  info.UndirectedEdges,
		ColumnSpecs:      c.ColumnSpecs(f),
		ProvenanceID:     c.provenance,
		PipelineVersion:  pipelineVersion,
		SourceVersion:    info.Version,
		Sources:          append([]string(nil), c.sources...),
		ElementCount:     c.elementCount,
		ChromosomeCounts: c.ChromosomeCounts(),
		ValueCategories:  c.valueCategories,
		WeightCategories: c.weightCategories,
		Username:         username,
		LastProcessed:    now.UTC(),
	}
	for _, allowOverlaps := range []bool{true, false} {
		state := c.rules[allowOverlaps]
		if state.Result == nil {
			if old := prev.Rule(allowOverlaps); old != nil {
				r.SetRule(allowOverlaps, old)
			}
			continue
		}
		res := state.Result
		rule := &catalog.RuleRecord{
			ProvenanceID:     res.ProvenanceID,
			PipelineVersion:  pipelineVersion,
			Backend:          res.Backend,
			Empty:            res.Rows == 0,
			Rows:             res.Rows,
			ElementCount:     res.Rows,
			ChromosomeCounts: make(map[string]int64),
			BoundingRegions:  len(res.BoundingRegions),
		}
		for chr, n := range res.ChromosomeCounts {
			rule.ChromosomeCounts[chr] = n
		}
		if f.IsPartition() {
			for _, br := range res.BoundingRegions {
				if br.ElementCount > 0 {
					rule.ElementCount--
					rule.ChromosomeCounts[br.Chromosome]--
				}
			}
		}
		r.SetRule(allowOverlaps, rule)
		state.Finalized = true
	}
	return r, nil
}

// Sources returns the names of the accumulated sources, sorted.
func (c *Collector) Sources() []string {
	names := append([]string(nil), c.sources...)
	sort.Strings(names)
	return names
}
