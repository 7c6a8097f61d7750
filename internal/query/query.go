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

// Package query reads stored tracks.
//
// A query names a track, an overlap rule and a region contained in one
// bounding region of the track.  The result is a Slice: one lazy column view
// per stored column, all of the same length, with coordinates cropped to the
// region.  Coordinates the track does not store are synthesized: points end
// one base pair after their start, partitions start where the previous row
// ends and dense tracks hold one row per base pair.
package query

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/goccy/go-json"

	"github.com/googlegenomics/trackstore/format"
	"github.com/googlegenomics/trackstore/genomics"
	"github.com/googlegenomics/trackstore/internal/catalog"
	"github.com/googlegenomics/trackstore/internal/columns"
	"github.com/googlegenomics/trackstore/internal/index"
	"github.com/googlegenomics/trackstore/internal/metrics"
)

// ErrNotFound is returned when a track has no stored form for the requested
// overlap rule.
var ErrNotFound = errors.New("track not found")

// Genomes resolves genome names.
type Genomes interface {
	Genome(name string) (*genomics.Genome, error)
}

// Engine answers range queries on the tracks of a catalog.
type Engine struct {
	catalog *catalog.Catalog
	genomes Genomes
}

// New returns an engine reading from cat.  If genomes is non-nil, bare
// chromosome regions are expanded to the whole chromosome.
func New(cat *catalog.Catalog, genomes Genomes) *Engine {
	return &Engine{catalog: cat, genomes: genomes}
}

// Slice is the result of a query.  It must be closed once its columns are no
// longer used.
type Slice struct {
	Region genomics.Region
	Format format.TrackFormat

	n       int
	names   []string
	columns map[string]columns.Array
	closer  func() error
}

// Len returns the number of rows.
func (s *Slice) Len() int { return s.n }

// Names returns the names of the columns in storage order.
func (s *Slice) Names() []string { return s.names }

// Column returns the named column.
func (s *Slice) Column(name string) (columns.Array, bool) {
	a, ok := s.columns[name]
	return a, ok
}

// Start returns the cropped start coordinates.
func (s *Slice) Start() columns.Array { return s.columns[format.Start.String()] }

// End returns the cropped end coordinates.
func (s *Slice) End() columns.Array { return s.columns[format.End.String()] }

// Row returns the values of row i keyed by column name.
func (s *Slice) Row(i int) map[string]interface{} {
	row := make(map[string]interface{}, len(s.names))
	for _, name := range s.names {
		row[name] = columns.Value(s.columns[name], i)
	}
	return row
}

// Close releases the stored data backing the slice.
func (s *Slice) Close() error {
	if s.closer == nil {
		return nil
	}
	err := s.closer()
	s.closer = nil
	return err
}

// MarshalJSON encodes the slice column by column.
func (s *Slice) MarshalJSON() ([]byte, error) {
	cols := make(map[string][]interface{}, len(s.names))
	for _, name := range s.names {
		a := s.columns[name]
		values := make([]interface{}, a.Len())
		for i := range values {
			values[i] = columns.Value(a, i)
		}
		cols[name] = values
	}
	return json.Marshal(struct {
		Region  string                   `json:"region"`
		Format  string                   `json:"format"`
		Rows    int                      `json:"rows"`
		Columns map[string][]interface{} `json:"columns"`
	}{s.Region.String(), s.Format.Name().String(), s.n, cols})
}

func (e *Engine) resolve(genome string, q genomics.Region) (genomics.Region, error) {
	if q.IsWholeGenome() {
		return q, fmt.Errorf("queries must name a chromosome")
	}
	if e.genomes != nil {
		g, err := e.genomes.Genome(genome)
		if err != nil {
			return q, err
		}
		return g.Resolve(q)
	}
	return q, nil
}

// Query returns the rows of a track overlapping region q under an overlap
// rule.  q must lie within one bounding region of the track.
func (e *Engine) Query(ctx context.Context, genome, track string, allowOverlaps bool, q genomics.Region) (*Slice, error) {
	return e.QueryFormat(ctx, genome, track, allowOverlaps, q, format.Req{})
}

// QueryFormat is like Query but first checks the track format against req.
// A mismatch fails with a FormatConflict error.
func (e *Engine) QueryFormat(ctx context.Context, genome, track string, allowOverlaps bool, q genomics.Region, req format.Req) (*Slice, error) {
	start := time.Now()
	q, err := e.resolve(genome, q)
	if err != nil {
		return nil, err
	}
	// Locking creates the rule directory, so look for the track first.
	if _, err := e.readRecord(ctx, genome, track); err != nil {
		return nil, err
	}
	lock, err := e.catalog.LockRule(ctx, genome, track, allowOverlaps, false)
	if err != nil {
		return nil, err
	}
	defer lock.Unlock()

	// Writers replace the record while holding the rule lock exclusively.
	rec, err := e.readRecord(ctx, genome, track)
	if err != nil {
		return nil, err
	}
	f, err := rec.TrackFormat()
	if err != nil {
		return nil, err
	}
	if err := f.Check(req); err != nil {
		return nil, fmt.Errorf("%s:%s: %w", genome, track, err)
	}
	rule := rec.Rule(allowOverlaps)
	if rule == nil {
		return nil, fmt.Errorf("%s:%s has no %s data: %w", genome, track, catalog.RuleName(allowOverlaps), ErrNotFound)
	}
	if rule.Empty {
		return emptySlice(q, f, rec.ColumnSpecs), nil
	}
	dir, err := e.catalog.RuleDir(genome, track, allowOverlaps)
	if err != nil {
		return nil, err
	}
	idx, err := catalog.ReadIndex(dir)
	if err != nil {
		return nil, err
	}
	entry, err := idx.Lookup(q)
	if err != nil {
		return nil, err
	}
	if entry.Rows() == 0 {
		return emptySlice(q, f, rec.ColumnSpecs), nil
	}
	backend, err := columns.NewBackend(rule.Backend)
	if err != nil {
		return nil, err
	}
	part, err := backend.Open(dir)
	if err != nil {
		return nil, err
	}
	s, err := newSlice(part, idx, entry, q, f)
	if err != nil {
		part.Close()
		return nil, err
	}
	metrics.QueryLatency.Observe(time.Since(start).Seconds())
	metrics.RowsReturned.Observe(float64(s.n))
	return s, nil
}

func (e *Engine) readRecord(ctx context.Context, genome, track string) (*catalog.Record, error) {
	rec, err := e.catalog.ReadRecord(ctx, genome, track)
	if errors.Is(err, catalog.ErrNoRecord) {
		return nil, fmt.Errorf("%s:%s: %w", genome, track, ErrNotFound)
	}
	return rec, err
}

// emptySlice returns a slice without rows holding the columns declared by
// specs.  Records without specs only get coordinates.
func emptySlice(q genomics.Region, f format.TrackFormat, specs []columns.Spec) *Slice {
	startName, endName := format.Start.String(), format.End.String()
	s := &Slice{
		Region: q,
		Format: f,
		names:  []string{startName, endName},
		columns: map[string]columns.Array{
			startName: emptyArray{columns.Spec{Name: startName, Kind: columns.Int64}},
			endName:   emptyArray{columns.Spec{Name: endName, Kind: columns.Int64}},
		},
	}
	for _, spec := range specs {
		if spec.Name == startName || spec.Name == endName {
			continue
		}
		s.columns[spec.Name] = emptyArray{spec}
		s.names = append(s.names, spec.Name)
	}
	return s
}

func newSlice(part columns.Partition, idx *index.Index, entry index.Entry, q genomics.Region, f format.TrackFormat) (*Slice, error) {
	column := func(c format.Column) (columns.Array, error) {
		a, ok := part.Column(c.String())
		if !ok {
			return nil, fmt.Errorf("stored data has no %s column", c)
		}
		return a, nil
	}
	startName, endName := format.Start.String(), format.End.String()
	s := &Slice{Region: q, Format: f, columns: make(map[string]columns.Array), closer: part.Close}

	var rows rowSet
	switch {
	case f.ReprIsDense():
		lo, hi := entry.DenseRows(q)
		rows = rowSet{lo: int(lo), hi: int(hi)}
		s.columns[startName] = &int64Func{name: startName, n: rows.len(), f: func(row int) int64 { return q.Start + int64(row) }}
		s.columns[endName] = &int64Func{name: endName, n: rows.len(), f: func(row int) int64 { return q.Start + int64(row) + 1 }}

	case f.IsPartition():
		ends, err := column(format.End)
		if err != nil {
			return nil, err
		}
		rows = partitionRows(ends, entry, q)
		s.columns[startName] = cropped(columns.Slice(ends, rows.lo-1, rows.hi-1), q.Start, q.End)
		s.columns[endName] = cropped(columns.Slice(ends, rows.lo, rows.hi), q.Start, q.End)

	default:
		starts, err := column(format.Start)
		if err != nil {
			return nil, err
		}
		var ends columns.Array
		if f.Columns().Has(format.End) {
			if ends, err = column(format.End); err != nil {
				return nil, err
			}
		}
		lo, hi := idx.Candidates(q, entry)
		rows = sparseRows(starts, ends, int(lo), int(hi), q)
		s.columns[startName] = cropped(rows.view(starts), q.Start, q.End)
		if ends != nil {
			s.columns[endName] = cropped(rows.view(ends), q.Start, q.End)
		} else {
			view := rows.view(starts)
			s.columns[endName] = &int64Func{name: endName, n: rows.len(), f: func(row int) int64 { return view.Int64(row, 0) + 1 }}
		}
	}

	s.n = rows.len()
	s.names = []string{startName, endName}
	for _, spec := range part.Specs() {
		if spec.Name == startName || spec.Name == endName {
			continue
		}
		a, _ := part.Column(spec.Name)
		s.columns[spec.Name] = rows.view(a)
		s.names = append(s.names, spec.Name)
	}
	return s, nil
}

// partitionRows returns the element rows of a partition overlapping q.  The
// first row of a bounding region only supplies the start of the second.
func partitionRows(ends columns.Array, e index.Entry, q genomics.Region) rowSet {
	first, last := int(e.StartRow)+1, int(e.EndRow)
	lo := first + sort.Search(last-first, func(i int) bool { return ends.Int64(first+i, 0) > q.Start })
	hi := lo + sort.Search(last-lo, func(i int) bool { return ends.Int64(lo+i-1, 0) >= q.End })
	return rowSet{lo: lo, hi: hi}
}

// sparseRows returns the rows of [lo, hi) overlapping q.  Rows are sorted by
// start.  Rows ending at or before q.Start are dropped; they are contiguous
// only if ends are sorted too, otherwise a selection is returned.
func sparseRows(starts, ends columns.Array, lo, hi int, q genomics.Region) rowSet {
	hi = lo + sort.Search(hi-lo, func(i int) bool { return starts.Int64(lo+i, 0) >= q.End })
	if ends == nil {
		lo += sort.Search(hi-lo, func(i int) bool { return starts.Int64(lo+i, 0) >= q.Start })
		return rowSet{lo: lo, hi: hi}
	}
	var sel []int
	sorted := true
	for row := lo; row < hi; row++ {
		if row > lo && ends.Int64(row, 0) < ends.Int64(row-1, 0) {
			sorted = false
		}
		if ends.Int64(row, 0) > q.Start {
			sel = append(sel, row)
		}
	}
	if sorted {
		lo += sort.Search(hi-lo, func(i int) bool { return ends.Int64(lo+i, 0) > q.Start })
		return rowSet{lo: lo, hi: hi}
	}
	if sel == nil {
		sel = []int{}
	}
	return rowSet{sel: sel}
}
