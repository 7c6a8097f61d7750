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

package catalog

import (
	"fmt"
	"time"

	"github.com/googlegenomics/trackstore/format"
	"github.com/googlegenomics/trackstore/internal/columns"
)

// Record is the persisted metadata of a track.
type Record struct {
	Genome string `json:"genome"`
	Track  string `json:"track"`

	Format          string          `json:"format"`
	Columns         []string        `json:"columns"`
	ExtraColumns    []string        `json:"extraColumns,omitempty"`
	Value           format.TypeInfo `json:"value"`
	Weight          format.TypeInfo `json:"weight"`
	UndirectedEdges bool            `json:"undirectedEdges,omitempty"`
	// ColumnSpecs declares the stored columns, including those of rules
	// without storage.
	ColumnSpecs []columns.Spec `json:"columnSpecs,omitempty"`

	// ProvenanceID fingerprints the sources and pipeline version the record
	// was computed from.
	ProvenanceID    string   `json:"provenanceId"`
	PipelineVersion string   `json:"pipelineVersion"`
	SourceVersion   int      `json:"sourceVersion"`
	Sources         []string `json:"sources"`

	// ElementCount is the number of elements read from the sources.
	ElementCount     int64            `json:"elementCount"`
	ChromosomeCounts map[string]int64 `json:"chromosomeCounts,omitempty"`
	ValueCategories  map[string]int64 `json:"valueCategories,omitempty"`
	WeightCategories map[string]int64 `json:"weightCategories,omitempty"`

	// Rules holds the stored forms of the track keyed by RuleName.
	Rules map[string]*RuleRecord `json:"rules"`

	Username      string    `json:"username,omitempty"`
	LastProcessed time.Time `json:"lastProcessed"`
}

// RuleRecord describes the stored form of a track under one overlap rule.
type RuleRecord struct {
	// ProvenanceID is the provenance of the stored rows.  It differs from the
	// record's when only the metadata was refreshed.
	ProvenanceID    string `json:"provenanceId"`
	PipelineVersion string `json:"pipelineVersion"`
	Backend         string `json:"backend,omitempty"`
	// Empty means the rule has no elements and no storage.
	Empty bool `json:"empty,omitempty"`
	// Rows is the number of stored rows, ElementCount the number of elements
	// they represent.
	Rows             int64            `json:"rows"`
	ElementCount     int64            `json:"elementCount"`
	ChromosomeCounts map[string]int64 `json:"chromosomeCounts,omitempty"`
	BoundingRegions  int              `json:"boundingRegions"`
}

// RuleName returns the directory and record key of an overlap rule.
func RuleName(allowOverlaps bool) string {
	if allowOverlaps {
		return "overlaps"
	}
	return "nooverlaps"
}

// Rule returns the rule record, or nil.
func (r *Record) Rule(allowOverlaps bool) *RuleRecord {
	if r == nil || r.Rules == nil {
		return nil
	}
	return r.Rules[RuleName(allowOverlaps)]
}

// SetRule stores rule under its key.
func (r *Record) SetRule(allowOverlaps bool, rule *RuleRecord) {
	if r.Rules == nil {
		r.Rules = make(map[string]*RuleRecord)
	}
	r.Rules[RuleName(allowOverlaps)] = rule
}

// TrackFormat classifies the track described by the record.
func (r *Record) TrackFormat() (format.TrackFormat, error) {
	var set format.ColumnSet
	for _, name := range r.Columns {
		c, err := format.ParseColumn(name)
		if err != nil {
			return format.TrackFormat{}, fmt.Errorf("record of %s: %v", r.Track, err)
		}
		set = set.With(c)
	}
	return format.Classify(set, r.Value, r.Weight)
}

// ColumnNames returns the names of the columns in set.
func ColumnNames(set format.ColumnSet) []string {
	var names []string
	for _, c := range set.Columns() {
		names = append(names, c.String())
	}
	return names
}
