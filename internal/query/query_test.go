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

package query

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/googlegenomics/trackstore/format"
	"github.com/googlegenomics/trackstore/genomics"
	"github.com/googlegenomics/trackstore/internal/catalog"
	"github.com/googlegenomics/trackstore/internal/columns"
	"github.com/googlegenomics/trackstore/internal/pipeline"
	"github.com/googlegenomics/trackstore/internal/source"
	"github.com/googlegenomics/trackstore/trackerr"
)

var testGenome = &genomics.Genome{Name: "test", Chromosomes: []genomics.Chromosome{
	{Name: "chr1", Length: 10000},
	{Name: "chr2", Length: 5000},
}}

type genomes map[string]*genomics.Genome

func (g genomes) Genome(name string) (*genomics.Genome, error) {
	if genome, ok := g[name]; ok {
		return genome, nil
	}
	return nil, errors.New("unknown genome " + name)
}

// store preprocesses src as track "t" and returns an engine reading it.
func store(t *testing.T, backend columns.Backend, src source.Source) *Engine {
	cat, err := catalog.Open(t.TempDir())
	require.NoError(t, err)
	g := genomes{"test": testGenome}
	p := pipeline.New(cat, g, pipeline.Options{Backend: backend, BinSize: 100})
	_, err = p.Preprocess(context.Background(), pipeline.Job{Genome: "test", Track: "t", Source: src}, pipeline.Commit)
	require.NoError(t, err)
	return New(cat, g)
}

func static(info genomics.StreamInfo, elements ...genomics.Element) *source.Static {
	return &source.Static{Name: "t.jsonl", ModTime: time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC), Info: info, Elements: elements}
}

func coordinates(s *Slice) [][2]int64 {
	var got [][2]int64
	for i := 0; i < s.Len(); i++ {
		got = append(got, [2]int64{s.Start().Int64(i, 0), s.End().Int64(i, 0)})
	}
	return got
}

var backends = []columns.Backend{columns.ArrowBackend{}, columns.FlatBackend{}}

func TestOverlappingSegments(t *testing.T) {
	info := genomics.StreamInfo{Columns: format.NewColumnSet(format.Start, format.End, format.Value)}
	src := static(info,
		genomics.Element{Chromosome: "chr1", Start: 100, End: 200, Value: 1.0},
		genomics.Element{Chromosome: "chr1", Start: 150, End: 250, Value: 2.0},
		genomics.Element{Chromosome: "chr1", Start: 10, End: 20, Value: 3.0},
		genomics.Element{Chromosome: "chr1", Start: 1000, End: 1200, Value: 4.0},
	)
	q := genomics.Region{Chromosome: "chr1", Start: 120, End: 160}
	for _, backend := range backends {
		t.Run(backend.Name(), func(t *testing.T) {
			ctx := context.Background()
			e := store(t, backend, src)

			s, err := e.Query(ctx, "test", "t", true, q)
			require.NoError(t, err)
			defer s.Close()
			assert.Equal(t, [][2]int64{{120, 160}, {150, 160}}, coordinates(s))
			assert.Equal(t, []string{"start", "end", "val"}, s.Names())
			val, ok := s.Column("val")
			require.True(t, ok)
			assert.Equal(t, 2.0, columns.Value(val, 1))

			merged, err := e.Query(ctx, "test", "t", false, q)
			require.NoError(t, err)
			defer merged.Close()
			assert.Equal(t, [][2]int64{{120, 160}}, coordinates(merged))
			assert.Equal(t, map[string]interface{}{"start": int64(120), "end": int64(160), "val": 1.0}, merged.Row(0))
		})
	}
}

func TestBlindPassengers(t *testing.T) {
	info := genomics.StreamInfo{Columns: format.NewColumnSet(format.Start, format.End)}
	src := static(info,
		genomics.Element{Chromosome: "chr1", Start: 100, End: 900},
		genomics.Element{Chromosome: "chr1", Start: 200, End: 300},
		genomics.Element{Chromosome: "chr1", Start: 400, End: 600},
		genomics.Element{Chromosome: "chr1", Start: 450, End: 460},
	)
	e := store(t, nil, src)
	s, err := e.Query(context.Background(), "test", "t", true, genomics.Region{Chromosome: "chr1", Start: 500, End: 700})
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, [][2]int64{{500, 700}, {500, 600}}, coordinates(s))
}

func TestPoints(t *testing.T) {
	info := genomics.StreamInfo{Columns: format.NewColumnSet(format.Start, format.Strand)}
	src := static(info,
		genomics.Element{Chromosome: "chr2", Start: 5, Strand: genomics.Plus},
		genomics.Element{Chromosome: "chr2", Start: 9, Strand: genomics.Minus},
		genomics.Element{Chromosome: "chr2", Start: 12},
	)
	e := store(t, nil, src)
	s, err := e.Query(context.Background(), "test", "t", true, genomics.Region{Chromosome: "chr2", Start: 5, End: 12})
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, [][2]int64{{5, 6}, {9, 10}}, coordinates(s))
	strand, ok := s.Column("strand")
	require.True(t, ok)
	assert.Equal(t, uint8(genomics.Minus), strand.Uint8(1, 0))
}

func TestDensePartition(t *testing.T) {
	info := genomics.StreamInfo{
		Columns:         format.NewColumnSet(format.End, format.Value),
		Value:           format.TypeInfo{Type: format.Integer},
		BoundingRegions: []genomics.BoundingRegion{{Region: genomics.Region{Chromosome: "chr1", Start: 0, End: 3000}, ElementCount: 3}},
	}
	src := static(info,
		genomics.Element{Chromosome: "chr1", End: 1000, Value: int64(0)},
		genomics.Element{Chromosome: "chr1", End: 2000, Value: int64(7)},
		genomics.Element{Chromosome: "chr1", End: 3000, Value: int64(9)},
	)
	e := store(t, nil, src)
	ctx := context.Background()

	testCases := []struct {
		name   string
		q      genomics.Region
		coords [][2]int64
		values []interface{}
	}{
		{"whole region", genomics.Region{Chromosome: "chr1", Start: 0, End: 3000}, [][2]int64{{1000, 2000}, {2000, 3000}}, []interface{}{int64(7), int64(9)}},
		{"cropped", genomics.Region{Chromosome: "chr1", Start: 1500, End: 2500}, [][2]int64{{1500, 2000}, {2000, 2500}}, []interface{}{int64(7), int64(9)}},
		{"inside one", genomics.Region{Chromosome: "chr1", Start: 2100, End: 2200}, [][2]int64{{2100, 2200}}, []interface{}{int64(9)}},
		{"before first", genomics.Region{Chromosome: "chr1", Start: 0, End: 1000}, nil, nil},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s, err := e.Query(ctx, "test", "t", false, tc.q)
			require.NoError(t, err)
			defer s.Close()
			assert.Equal(t, tc.coords, coordinates(s))
			val, _ := s.Column("val")
			var values []interface{}
			for i := 0; i < s.Len(); i++ {
				values = append(values, columns.Value(val, i))
			}
			assert.Equal(t, tc.values, values)
		})
	}
}

func TestDenseFunction(t *testing.T) {
	info := genomics.StreamInfo{
		Columns:         format.NewColumnSet(format.Value),
		BoundingRegions: []genomics.BoundingRegion{{Region: genomics.Region{Chromosome: "chr1", Start: 100, End: 105}, ElementCount: 5}},
	}
	var elements []genomics.Element
	for i := 0; i < 5; i++ {
		elements = append(elements, genomics.Element{Chromosome: "chr1", Value: float64(i) / 2})
	}
	e := store(t, columns.FlatBackend{}, static(info, elements...))
	s, err := e.Query(context.Background(), "test", "t", true, genomics.Region{Chromosome: "chr1", Start: 102, End: 104})
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, [][2]int64{{102, 103}, {103, 104}}, coordinates(s))
	val, _ := s.Column("val")
	assert.Equal(t, 1.0, val.Float64(0, 0))
	assert.Equal(t, 1.5, val.Float64(1, 0))
}

func TestQueryErrors(t *testing.T) {
	info := genomics.StreamInfo{
		Columns:         format.NewColumnSet(format.Start, format.End),
		BoundingRegions: []genomics.BoundingRegion{{Region: genomics.Region{Chromosome: "chr1", Start: 0, End: 500}}},
	}
	e := store(t, nil, static(info, genomics.Element{Chromosome: "chr1", Start: 10, End: 20}))
	ctx := context.Background()

	_, err := e.Query(ctx, "test", "t", true, genomics.Region{Chromosome: "chr1", Start: 400, End: 600})
	assert.True(t, errors.Is(err, trackerr.ErrOutsideBoundingRegion), "Query() = %v", err)
	_, err = e.Query(ctx, "test", "t", true, genomics.Region{Chromosome: "chr2", Start: 0, End: 10})
	assert.True(t, errors.Is(err, trackerr.ErrOutsideBoundingRegion), "Query() = %v", err)
	_, err = e.Query(ctx, "test", "missing", true, genomics.Region{Chromosome: "chr1", Start: 0, End: 10})
	assert.True(t, errors.Is(err, ErrNotFound), "Query() = %v", err)
	_, err = e.Query(ctx, "test", "t", true, genomics.WholeGenome)
	assert.Error(t, err)
}

func TestPartitionFromRegionStart(t *testing.T) {
	info := genomics.StreamInfo{
		Columns:         format.NewColumnSet(format.End),
		BoundingRegions: []genomics.BoundingRegion{{Region: genomics.Region{Chromosome: "chr1", Start: 500, End: 3000}, ElementCount: 4}},
	}
	e := store(t, nil, static(info,
		genomics.Element{Chromosome: "chr1", End: 500},
		genomics.Element{Chromosome: "chr1", End: 1000},
		genomics.Element{Chromosome: "chr1", End: 2000},
		genomics.Element{Chromosome: "chr1", End: 3000},
	))
	s, err := e.Query(context.Background(), "test", "t", true, genomics.Region{Chromosome: "chr1", Start: 500, End: 3000})
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, [][2]int64{{500, 1000}, {1000, 2000}, {2000, 3000}}, coordinates(s))
}

func TestWholeGenomeEmptyChromosome(t *testing.T) {
	info := genomics.StreamInfo{Columns: format.NewColumnSet(format.Start, format.End)}
	e := store(t, nil, static(info, genomics.Element{Chromosome: "chr1", Start: 10, End: 20}))
	s, err := e.Query(context.Background(), "test", "t", true, genomics.Region{Chromosome: "chr2"})
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, genomics.Region{Chromosome: "chr2", Start: 0, End: 5000}, s.Region)
}

func TestMarshalJSON(t *testing.T) {
	info := genomics.StreamInfo{Columns: format.NewColumnSet(format.Start, format.ID)}
	e := store(t, nil, static(info, genomics.Element{Chromosome: "chr1", Start: 10, ID: "rs1"}))
	s, err := e.Query(context.Background(), "test", "t", true, genomics.Region{Chromosome: "chr1", Start: 0, End: 100})
	require.NoError(t, err)
	defer s.Close()
	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `{"region":"chr1:0-100","format":"Points","rows":1,"columns":{"start":[10],"end":[11],"id":["rs1"]}}`, string(data))
}

func TestEmptyResultColumns(t *testing.T) {
	info := genomics.StreamInfo{Columns: format.NewColumnSet(format.Start, format.End, format.Value)}
	e := store(t, nil, static(info, genomics.Element{Chromosome: "chr1", Start: 10, End: 20, Value: 1.0}))
	ctx := context.Background()

	full, err := e.Query(ctx, "test", "t", true, genomics.Region{Chromosome: "chr1"})
	require.NoError(t, err)
	defer full.Close()
	empty, err := e.Query(ctx, "test", "t", true, genomics.Region{Chromosome: "chr2"})
	require.NoError(t, err)
	defer empty.Close()

	assert.Equal(t, 1, full.Len())
	assert.Equal(t, 0, empty.Len())
	assert.Equal(t, full.Names(), empty.Names())
	val, ok := empty.Column("val")
	require.True(t, ok)
	assert.Equal(t, 0, val.Len())
	assert.Equal(t, columns.Float64, val.Spec().Kind)
}

func TestQueryFormat(t *testing.T) {
	info := genomics.StreamInfo{Columns: format.NewColumnSet(format.Start, format.End)}
	e := store(t, nil, static(info, genomics.Element{Chromosome: "chr1", Start: 10, End: 20}))
	q := genomics.Region{Chromosome: "chr1", Start: 0, End: 100}
	tests := []struct {
		name     string
		req      format.Req
		conflict bool
	}{
		{"none", format.Req{}, false},
		{"same name", format.Req{Name: format.Segments}, false},
		{"interval", format.Req{Interval: format.True, Valued: format.False}, false},
		{"other name", format.Req{Name: format.Points}, true},
		{"valued", format.Req{Valued: format.True}, true},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			s, err := e.QueryFormat(context.Background(), "test", "t", true, q, test.req)
			if test.conflict {
				assert.True(t, errors.Is(err, trackerr.ErrFormatConflict), "QueryFormat() = %v", err)
				return
			}
			require.NoError(t, err)
			defer s.Close()
			assert.Equal(t, 1, s.Len())
		})
	}
}

func TestQueryMissingTrackCreatesNothing(t *testing.T) {
	e := store(t, nil, static(genomics.StreamInfo{Columns: format.NewColumnSet(format.Start)}, genomics.Element{Chromosome: "chr1", Start: 1}))
	_, err := e.Query(context.Background(), "test", "other", true, genomics.Region{Chromosome: "chr1", Start: 0, End: 10})
	assert.True(t, errors.Is(err, ErrNotFound), "Query() = %v", err)
	dir, err := e.catalog.TrackDir("test", "other")
	require.NoError(t, err)
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err), "Stat(%s) = %v", dir, err)
}

func TestQueryAfterRewrite(t *testing.T) {
	ctx := context.Background()
	cat, err := catalog.Open(t.TempDir())
	require.NoError(t, err)
	g := genomes{"test": testGenome}
	p := pipeline.New(cat, g, pipeline.Options{BinSize: 100})
	e := New(cat, g)
	q := genomics.Region{Chromosome: "chr1", Start: 0, End: 1000}

	src := static(genomics.StreamInfo{Columns: format.NewColumnSet(format.Start, format.End)},
		genomics.Element{Chromosome: "chr1", Start: 10, End: 20})
	_, err = p.Preprocess(ctx, pipeline.Job{Genome: "test", Track: "t", Source: src}, pipeline.Commit)
	require.NoError(t, err)
	s, err := e.Query(ctx, "test", "t", true, q)
	require.NoError(t, err)
	assert.Equal(t, [][2]int64{{10, 20}}, coordinates(s))
	require.NoError(t, s.Close())

	src = static(genomics.StreamInfo{Columns: format.NewColumnSet(format.Start, format.End, format.Value)},
		genomics.Element{Chromosome: "chr1", Start: 30, End: 40, Value: 2.0},
		genomics.Element{Chromosome: "chr1", Start: 50, End: 60, Value: 3.0})
	src.Revision = 2
	_, err = p.Preprocess(ctx, pipeline.Job{Genome: "test", Track: "t", Source: src}, pipeline.Commit)
	require.NoError(t, err)
	s, err = e.Query(ctx, "test", "t", true, q)
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, [][2]int64{{30, 40}, {50, 60}}, coordinates(s))
	assert.Equal(t, format.ValuedSegments, s.Format.Name())
	assert.Equal(t, []string{"start", "end", "val"}, s.Names())
}
