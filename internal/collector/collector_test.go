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

package collector

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/googlegenomics/trackstore/format"
	"github.com/googlegenomics/trackstore/genomics"
	"github.com/googlegenomics/trackstore/internal/catalog"
	"github.com/googlegenomics/trackstore/internal/columns"
	"github.com/googlegenomics/trackstore/trackerr"
)

var segmentColumns = format.NewColumnSet(format.Start, format.End, format.Value)

func TestUpdateForOneSourceConflicts(t *testing.T) {
	base := Source{FileSuffix: "bed", Columns: segmentColumns, Value: format.TypeInfo{Type: format.Number}, Version: 1}
	testCases := []struct {
		attribute string
		mutate    func(*Source)
	}{
		{"columns", func(s *Source) { s.Columns = s.Columns.With(format.Strand) }},
		{"value type", func(s *Source) { s.Value.Type = format.Integer }},
		{"value dimension", func(s *Source) { s.Value.Dim = 3 }},
		{"undirected edges", func(s *Source) { s.UndirectedEdges = true }},
		{"version", func(s *Source) { s.Version = 2 }},
		{"extra columns", func(s *Source) { s.ExtraColumns = []string{"name"} }},
	}
	for _, tc := range testCases {
		t.Run(tc.attribute, func(t *testing.T) {
			c := New("hg38", "t")
			require.NoError(t, c.UpdateForOneSource(base))
			other := base
			tc.mutate(&other)
			err := c.UpdateForOneSource(other)
			var e *trackerr.Error
			require.True(t, errors.As(err, &e), "UpdateForOneSource() = %v", err)
			assert.Equal(t, trackerr.InconsistentSource, e.Kind)
			assert.Equal(t, tc.attribute, e.Attribute)
		})
	}

	c := New("hg38", "t")
	require.NoError(t, c.UpdateForOneSource(base))
	same := base
	same.Value.Dim = 1
	same.ElementCount = 3
	assert.NoError(t, c.UpdateForOneSource(same), "scalar dimensions 0 and 1 are the same")
	assert.Equal(t, int64(3), c.ElementCount())
}

func TestColumnSpecs(t *testing.T) {
	info := genomics.StreamInfo{
		Columns:      format.NewColumnSet(format.Start, format.End, format.Value, format.ID, format.Edges, format.Weights, format.Extra),
		ExtraColumns: []string{"name"},
		Value:        format.TypeInfo{Type: format.Category},
		Weight:       format.TypeInfo{Type: format.Number},
	}
	c := New("hg38", "t")
	for _, e := range []genomics.Element{
		{Chromosome: "chr1", Start: 1, End: 2, Value: "exon", ID: "a", Edges: []string{"bb", "c"}, Weights: []interface{}{1.0, 2.0}, Extra: map[string]string{"name": "x"}},
		{Chromosome: "chr1", Start: 3, End: 4, Value: "intron", ID: "bb", Edges: []string{"a"}, Weights: []interface{}{1.0}, Extra: map[string]string{"name": "long name"}},
		{Chromosome: "chr2", Start: 1, End: 2, Value: "exon", ID: "c"},
	} {
		e := e
		c.Observe(&e, info)
	}
	require.NoError(t, c.UpdateForOneSource(Source{Columns: info.Columns, ExtraColumns: info.ExtraColumns, Value: info.Value, Weight: info.Weight, ElementCount: 3}))

	f, err := c.Format()
	require.NoError(t, err)
	assert.Equal(t, format.LinkedValuedSegments, f.Name())

	want := []columns.Spec{
		{Name: "start", Kind: columns.Int64},
		{Name: "end", Kind: columns.Int64},
		{Name: "val", Kind: columns.String, Width: 6},
		{Name: "id", Kind: columns.String, Width: 2},
		{Name: "edges", Kind: columns.String, Dim: 2, Width: 2},
		{Name: "weights", Kind: columns.Float64, Dim: 2},
		{Name: "extra:name", Kind: columns.String, Width: 9},
	}
	assert.Equal(t, want, c.ColumnSpecs(f))
	assert.Equal(t, map[string]int64{"exon": 2, "intron": 1}, c.ValueCategories())
	assert.Equal(t, map[string]int64{"chr1": 2, "chr2": 1}, c.ChromosomeCounts())
}

func TestFinalizePartition(t *testing.T) {
	c := New("hg38", "partition")
	br := genomics.BoundingRegion{Region: genomics.Region{Chromosome: "chr1", Start: 0, End: 3000}, ElementCount: 3}
	require.NoError(t, c.UpdateForOneSource(Source{
		Columns:         format.NewColumnSet(format.End),
		ElementCount:    3,
		BoundingRegions: []genomics.BoundingRegion{br},
		ProvenanceID:    "p1",
	}))
	c.Rule(true).Result = &RuleResult{
		Rows:             3,
		ChromosomeCounts: map[string]int64{"chr1": 3},
		BoundingRegions:  []genomics.BoundingRegion{br},
		ProvenanceID:     "p1",
	}

	prev := &catalog.Record{}
	prev.SetRule(false, &catalog.RuleRecord{ProvenanceID: "p0"})
	now := time.Date(2018, 1, 2, 3, 4, 5, 0, time.UTC)
	r, err := c.Finalize(prev, "alice", "v1", now)
	require.NoError(t, err)

	assert.Equal(t, format.GenomePartition.String(), r.Format)
	assert.Equal(t, "p1", r.ProvenanceID)
	assert.Equal(t, now, r.LastProcessed)
	assert.Equal(t, []columns.Spec{{Name: "end", Kind: columns.Int64}}, r.ColumnSpecs)
	rule := r.Rule(true)
	require.NotNil(t, rule)
	assert.Equal(t, int64(3), rule.Rows)
	assert.Equal(t, int64(2), rule.ElementCount)
	assert.Equal(t, map[string]int64{"chr1": 2}, rule.ChromosomeCounts)
	assert.True(t, c.Rule(true).Finalized)
	assert.Equal(t, "p0", r.Rule(false).ProvenanceID, "rule without a result keeps its previous entry")
}

func TestFormatWithoutSources(t *testing.T) {
	_, err := New("hg38", "t").Format()
	assert.True(t, errors.Is(err, trackerr.ErrNotSupported))
}

func TestRequire(t *testing.T) {
	c := New("hg38", "t")
	require.NoError(t, c.Require(format.Req{Interval: format.True}))
	require.NoError(t, c.Require(format.Req{Name: format.Segments}))
	err := c.Require(format.Req{Interval: format.False})
	assert.True(t, errors.Is(err, trackerr.ErrFormatConflict), "Require() = %v", err)

	require.NoError(t, c.UpdateForOneSource(Source{Columns: format.NewColumnSet(format.Start, format.End), ElementCount: 1}))
	f, err := c.Format()
	require.NoError(t, err)
	assert.Equal(t, format.Segments, f.Name())

	points := New("hg38", "t")
	require.NoError(t, points.Require(format.Req{Name: format.Segments}))
	require.NoError(t, points.UpdateForOneSource(Source{Columns: format.NewColumnSet(format.Start), ElementCount: 1}))
	_, err = points.Format()
	assert.True(t, errors.Is(err, trackerr.ErrFormatConflict), "Format() = %v", err)
	var terr *trackerr.Error
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, format.FieldName, terr.Attribute)
}
