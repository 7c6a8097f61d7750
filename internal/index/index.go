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

// Package index maps genomic regions to ranges of stored rows.
//
// An Index holds, per chromosome, the sorted list of bounding regions of a
// track together with the range of rows each region occupies in the track's
// partition.  Rows of all chromosomes are numbered consecutively in the order
// the bounding regions were given.  Sparse tracks additionally carry a bin
// index: for every fixed size bin of a chromosome it records the first row
// that may overlap the bin and the first row that starts after it, which
// bounds the rows a query has to search.
package index

import (
	"fmt"
	"sort"

	"github.com/googlegenomics/trackstore/genomics"
	"github.com/googlegenomics/trackstore/trackerr"
)

// DefaultBinSize is the width in base pairs of a bin.
const DefaultBinSize = 100000

// Entry maps a bounding region to the rows [StartRow, EndRow) that hold its
// elements.  Bins [StartBin, EndBin) cover the region.
type Entry struct {
	Start, End       int64
	StartRow, EndRow int64
	StartBin, EndBin int64
}

// Rows returns the number of rows of the entry.
func (e Entry) Rows() int64 {
	return e.EndRow - e.StartRow
}

// DenseRows returns the rows holding region q of a track stored with one row
// per base pair.
func (e Entry) DenseRows(q genomics.Region) (int64, int64) {
	return e.StartRow + q.Start - e.Start, e.StartRow + q.End - e.Start
}

// Options control how an Index is built.
type Options struct {
	// Dense means the track stores one row per base pair, so every bounding
	// region must hold exactly as many elements as it is long.
	Dense bool
	// WholeGenome means the bounding regions were derived from whole
	// chromosomes rather than given by the source.  Lookups on chromosomes
	// without regions then return an empty entry instead of failing.
	WholeGenome bool
	// BinSize is the width of a bin.  Zero selects DefaultBinSize.
	BinSize int64
}

// Coordinates gives the start and end of every row of a sparse track.  Rows
// are numbered like the index numbers them.
type Coordinates interface {
	Start(row int64) int64
	End(row int64) int64
}

type bin struct {
	// Left is the first row whose end lies past the start of the bin.
	Left int64
	// Right is the first row that starts at or after the end of the bin.
	Right int64
}

type chromosome struct {
	name     string
	entries  []Entry
	firstBin int64
	bins     []bin
}

// Index is a bounding region index.  It is immutable once built.
type Index struct {
	dense       bool
	wholeGenome bool
	binSize     int64
	chromosomes []*chromosome
	byName      map[string]*chromosome
	rows        int64
}

func invalid(format string, args ...interface{}) error {
	return trackerr.New(trackerr.InvalidLayout, format, args...)
}

// Build returns the index of the given bounding regions.  Regions of a
// chromosome must be consecutive, sorted, non-overlapping and separated by at
// least one base pair.  If coords is non-nil a bin index is computed from it.
func Build(regions []genomics.BoundingRegion, coords Coordinates, opts Options) (*Index, error) {
	if opts.BinSize < 0 {
		return nil, fmt.Errorf("negative bin size %d", opts.BinSize)
	}
	if opts.BinSize == 0 {
		opts.BinSize = DefaultBinSize
	}
	idx := &Index{
		dense:       opts.Dense,
		wholeGenome: opts.WholeGenome,
		binSize:     opts.BinSize,
		byName:      make(map[string]*chromosome),
	}

	var current *chromosome
	for _, br := range regions {
		if br.Chromosome == "" {
			return nil, invalid("bounding region %v has no chromosome", br.Region)
		}
		if br.Start < 0 || br.End <= br.Start {
			return nil, invalid("bounding region %v is empty or negative", br.Region)
		}
		if br.ElementCount < 0 {
			return nil, invalid("bounding region %v has %d elements", br.Region, br.ElementCount)
		}
		if opts.Dense && br.ElementCount != br.Len() {
			return nil, invalid("dense bounding region %v has %d elements, want %d", br.Region, br.ElementCount, br.Len())
		}

		if current == nil || current.name != br.Chromosome {
			if _, ok := idx.byName[br.Chromosome]; ok {
				return nil, invalid("bounding regions of %s are not consecutive", br.Chromosome)
			}
			current = &chromosome{name: br.Chromosome}
			idx.chromosomes = append(idx.chromosomes, current)
			idx.byName[br.Chromosome] = current
		} else {
			prev := current.entries[len(current.entries)-1]
			switch {
			case br.Start < prev.End:
				return nil, invalid("bounding region %v overlaps or precedes %s:%d-%d", br.Region, br.Chromosome, prev.Start, prev.End)
			case br.Start == prev.End:
				return nil, invalid("bounding region %v adjoins %s:%d-%d", br.Region, br.Chromosome, prev.Start, prev.End)
			}
		}

		current.entries = append(current.entries, Entry{
			Start:    br.Start,
			End:      br.End,
			StartRow: idx.rows,
			EndRow:   idx.rows + br.ElementCount,
			StartBin: br.Start / idx.binSize,
			EndBin:   (br.End-1)/idx.binSize + 1,
		})
		idx.rows += br.ElementCount
	}

	if coords != nil && !opts.Dense {
		for _, chr := range idx.chromosomes {
			chr.buildBins(coords, idx.binSize)
		}
	}
	return idx, nil
}

func (chr *chromosome) buildBins(coords Coordinates, binSize int64) {
	first, last := chr.entries[0], chr.entries[len(chr.entries)-1]
	chr.firstBin = first.StartBin
	chr.bins = make([]bin, last.EndBin-first.StartBin)

	startRow, endRow := first.StartRow, last.EndRow
	left, right := startRow, startRow
	for i := range chr.bins {
		binStart := (chr.firstBin + int64(i)) * binSize
		binEnd := binStart + binSize
		for left < endRow && coords.End(left) <= binStart {
			left++
		}
		if right < left {
			right = left
		}
		for right < endRow && coords.Start(right) < binEnd {
			right++
		}
		chr.bins[i] = bin{Left: left, Right: right}
	}
}

// Lookup returns the entry of the bounding region containing q.  It fails with
// an OutsideBoundingRegion error if no single region contains q.
func (idx *Index) Lookup(q genomics.Region) (Entry, error) {
	if q.Start < 0 || q.End < q.Start {
		return Entry{}, trackerr.New(trackerr.OutsideBoundingRegion, "invalid region %v", q)
	}
	chr, ok := idx.byName[q.Chromosome]
	if !ok {
		if idx.wholeGenome {
			return Entry{Start: q.Start, End: q.End}, nil
		}
		return Entry{}, trackerr.New(trackerr.OutsideBoundingRegion, "no bounding regions on %s", q.Chromosome)
	}
	i := sort.Search(len(chr.entries), func(i int) bool { return chr.entries[i].Start > q.Start }) - 1
	if i < 0 || q.End > chr.entries[i].End {
		return Entry{}, trackerr.New(trackerr.OutsideBoundingRegion, "region %v is not contained in a bounding region", q)
	}
	return chr.entries[i], nil
}

// Candidates narrows the rows of entry e, returned by Lookup(q), to those
// that may overlap q according to the bin index.  Without a bin index it
// returns the rows of e.
func (idx *Index) Candidates(q genomics.Region, e Entry) (int64, int64) {
	lo, hi := e.StartRow, e.EndRow
	chr, ok := idx.byName[q.Chromosome]
	if !ok || len(chr.bins) == 0 || q.End <= q.Start {
		return lo, hi
	}
	first := q.Start/idx.binSize - chr.firstBin
	last := (q.End-1)/idx.binSize - chr.firstBin
	if first >= 0 && first < int64(len(chr.bins)) && chr.bins[first].Left > lo {
		lo = chr.bins[first].Left
	}
	if last >= 0 && last < int64(len(chr.bins)) && chr.bins[last].Right < hi {
		hi = chr.bins[last].Right
	}
	if hi < lo {
		hi = lo
	}
	return lo, hi
}

// CheckCounts verifies the index against the number of elements collected per
// chromosome.  A chromosome with elements but no bounding region is an
// InvalidLayout error; a differing row count is a ShouldNotOccur error.
func (idx *Index) CheckCounts(counts map[string]int64) error {
	var names []string
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if counts[name] > 0 {
			if _, ok := idx.byName[name]; !ok {
				return invalid("chromosome %s has %d elements but no bounding region", name, counts[name])
			}
		}
	}
	for _, chr := range idx.chromosomes {
		var rows int64
		for _, e := range chr.entries {
			rows += e.Rows()
		}
		if rows != counts[chr.name] {
			return trackerr.New(trackerr.ShouldNotOccur, "%s has %d indexed rows but %d collected elements", chr.name, rows, counts[chr.name])
		}
	}
	return nil
}

// Dense reports whether the index was built for a track stored with one row
// per base pair.
func (idx *Index) Dense() bool { return idx.dense }

// WholeGenome reports whether the bounding regions cover whole chromosomes.
func (idx *Index) WholeGenome() bool { return idx.wholeGenome }

// BinSize returns the width of a bin.
func (idx *Index) BinSize() int64 { return idx.binSize }

// NumRows returns the number of rows of all bounding regions.
func (idx *Index) NumRows() int64 { return idx.rows }

// Chromosomes returns the chromosomes with bounding regions in row order.
func (idx *Index) Chromosomes() []string {
	names := make([]string, len(idx.chromosomes))
	for i, chr := range idx.chromosomes {
		names[i] = chr.name
	}
	return names
}

// Entries returns the entries of the named chromosome.
func (idx *Index) Entries(name string) []Entry {
	if chr, ok := idx.byName[name]; ok {
		return append([]Entry(nil), chr.entries...)
	}
	return nil
}

// BoundingRegions returns the indexed bounding regions in row order.
func (idx *Index) BoundingRegions() []genomics.BoundingRegion {
	var regions []genomics.BoundingRegion
	for _, chr := range idx.chromosomes {
		for _, e := range chr.entries {
			regions = append(regions, genomics.BoundingRegion{
				Region:       genomics.Region{Chromosome: chr.name, Start: e.Start, End: e.End},
				ElementCount: e.Rows(),
			})
		}
	}
	return regions
}
