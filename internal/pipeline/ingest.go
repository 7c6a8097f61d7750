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
	"io"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/googlegenomics/trackstore/format"
	"github.com/googlegenomics/trackstore/genomics"
	"github.com/googlegenomics/trackstore/internal/collector"
	"github.com/googlegenomics/trackstore/internal/logger"
	"github.com/googlegenomics/trackstore/internal/metrics"
	"github.com/googlegenomics/trackstore/internal/source"
	"github.com/googlegenomics/trackstore/trackerr"
)

// block holds the elements of one bounding region in row order.
type block struct {
	region   genomics.Region
	elements []genomics.Element
}

// trackData is the content of a track read from its sources.
type trackData struct {
	format      format.TrackFormat
	wholeGenome bool
	fragments   map[string][]genomics.Element
	regions     []genomics.Region
	blocks      []block
}

func invalidLayout(format string, args ...interface{}) error {
	return trackerr.New(trackerr.InvalidLayout, format, args...)
}

// normalize fills in the coordinates implied by the columns of a stream and
// checks them against the genome.  Partition elements are zero width at
// their end so that they sort and place by end; the boundary row of a
// bounding region may then end at the region start.
func normalize(e *genomics.Element, cols format.ColumnSet, genome *genomics.Genome) error {
	length, ok := genome.Length(e.Chromosome)
	if !ok {
		return invalidLayout("chromosome %q is not part of genome %s", e.Chromosome, genome.Name)
	}
	hasStart, hasEnd := cols.Has(format.Start), cols.Has(format.End)
	switch {
	case !hasStart && !hasEnd:
		return nil
	case hasStart && !hasEnd:
		e.End = e.Start + 1
	case !hasStart && hasEnd:
		e.Start = e.End
	}
	if e.Start < 0 || e.End < e.Start {
		return invalidLayout("element %v has invalid coordinates", e.Region())
	}
	if e.End > length {
		return invalidLayout("element %v extends past the end of %s (%d)", e.Region(), e.Chromosome, length)
	}
	return nil
}

func fileSuffix(f source.FileInfo) string {
	if suffix := f.Suffix(); suffix != "" {
		return suffix
	}
	return filepath.Base(f.Path)
}

// ingest reads every file of src into per chromosome fragments while col
// records the statistics of each element.
func ingest(ctx context.Context, src source.Source, files []source.FileInfo, provenance string, genome *genomics.Genome, col *collector.Collector) (*trackData, error) {
	data := &trackData{fragments: make(map[string][]genomics.Element)}
	counter := metrics.ElementsIngested.WithLabelValues(genome.Name)
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		stream, err := src.Open(ctx, file)
		if err != nil {
			return nil, err
		}
		info := stream.Info()
		var n int64
		for {
			e, err := stream.Next()
			if err == io.EOF {
				break
			}
			if err == nil {
				err = normalize(&e, info.Columns, genome)
			}
			if err != nil {
				stream.Close()
				return nil, fmt.Errorf("reading %s: %w", file.Path, err)
			}
			col.Observe(&e, info)
			data.fragments[e.Chromosome] = append(data.fragments[e.Chromosome], e)
			n++
		}
		info = stream.Info()
		if err := stream.Close(); err != nil {
			return nil, fmt.Errorf("closing %s: %v", file.Path, err)
		}
		counter.Add(float64(n))
		logger.WithContext(ctx).Debug("read source",
			zap.String("path", file.Path),
			zap.Int64("elements", n),
			zap.Int("bounding_regions", len(info.BoundingRegions)))

		// The provenance hashes the source version, so a stream may not
		// declare another one.
		version := src.Version()
		if info.Version != 0 && info.Version != version {
			return nil, fmt.Errorf("source %s: %w", file.Path,
				trackerr.New(trackerr.InconsistentSource, "stream declares version %d, source has %d", info.Version, version).WithAttribute("version"))
		}
		err = col.UpdateForOneSource(collector.Source{
			FileSuffix:      fileSuffix(file),
			Columns:         info.Columns,
			ExtraColumns:    info.ExtraColumns,
			Value:           info.Value,
			Weight:          info.Weight,
			UndirectedEdges: info.UndirectedEdges,
			Version:         version,
			ProvenanceID:    provenance,
			ElementCount:    n,
			BoundingRegions: info.BoundingRegions,
			AllowOverlaps:   true,
		})
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", file.Path, err)
		}
	}

	f, err := col.Format()
	if err != nil {
		return nil, err
	}
	data.format = f
	if err := data.setRegions(col.BoundingRegions(), genome); err != nil {
		return nil, err
	}
	return data, nil
}

// setRegions orders the declared bounding regions by genome and position.
// Without declared regions every chromosome with elements is covered whole.
func (data *trackData) setRegions(declared []genomics.BoundingRegion, genome *genomics.Genome) error {
	if len(declared) == 0 {
		data.wholeGenome = true
		for _, chr := range genome.Chromosomes {
			if len(data.fragments[chr.Name]) > 0 {
				data.regions = append(data.regions, genomics.Region{Chromosome: chr.Name, Start: 0, End: chr.Length})
			}
		}
		return nil
	}
	for _, br := range declared {
		region, err := genome.Resolve(br.Region)
		if err != nil || region.IsWholeGenome() {
			return invalidLayout("bounding region %v does not lie in genome %s", br.Region, genome.Name)
		}
		data.regions = append(data.regions, region)
	}
	sort.SliceStable(data.regions, func(i, j int) bool {
		a, b := data.regions[i], data.regions[j]
		if a.Chromosome != b.Chromosome {
			return genome.Order(a.Chromosome) < genome.Order(b.Chromosome)
		}
		return a.Start < b.Start
	})
	return nil
}

// sortAndMerge sorts the fragments by (start, end) and distributes their
// elements over the bounding regions.  Dense tracks keep source order.
func (data *trackData) sortAndMerge() error {
	byChromosome := make(map[string][]genomics.Region)
	for _, r := range data.regions {
		byChromosome[r.Chromosome] = append(byChromosome[r.Chromosome], r)
	}
	var names []string
	for name := range data.fragments {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, ok := byChromosome[name]; !ok {
			return invalidLayout("chromosome %s has %d elements but no bounding region", name, len(data.fragments[name]))
		}
	}

	data.blocks = make([]block, 0, len(data.regions))
	for _, r := range data.regions {
		data.blocks = append(data.blocks, block{region: r})
	}
	first := 0
	for first < len(data.blocks) {
		name := data.blocks[first].region.Chromosome
		last := first
		for last < len(data.blocks) && data.blocks[last].region.Chromosome == name {
			last++
		}
		elements := data.fragments[name]
		var err error
		if data.format.ReprIsDense() {
			err = placeDense(data.blocks[first:last], elements)
		} else {
			sort.SliceStable(elements, func(i, j int) bool {
				if elements[i].Start != elements[j].Start {
					return elements[i].Start < elements[j].Start
				}
				return elements[i].End < elements[j].End
			})
			err = place(data.blocks[first:last], elements, data.format.IsPartition())
		}
		if err != nil {
			return err
		}
		first = last
	}
	data.fragments = nil
	return nil
}

// place assigns sorted elements to the blocks containing them.  Partition
// rows are placed by end, which may equal the region start for the boundary
// row of a block.
func place(blocks []block, elements []genomics.Element, partition bool) error {
	j, from := 0, 0
	flush := func(to int) {
		blocks[j].elements = elements[from:to:to]
		from = to
	}
	past := func(e *genomics.Element, r genomics.Region) bool {
		if partition {
			return e.End > r.End
		}
		return e.Start >= r.End
	}
	for i := range elements {
		e := &elements[i]
		for j < len(blocks) && past(e, blocks[j].region) {
			flush(i)
			j++
		}
		if j == len(blocks) || e.Start < blocks[j].region.Start || e.End > blocks[j].region.End {
			return invalidLayout("element %v is not contained in a bounding region", e.Region())
		}
		if partition && i > from && e.End == elements[i-1].End {
			return invalidLayout("partition %v repeats end %d", blocks[j].region, e.End)
		}
	}
	if j < len(blocks) {
		flush(len(elements))
	}
	return nil
}

// placeDense assigns one element per base pair in source order.
func placeDense(blocks []block, elements []genomics.Element) error {
	for j := range blocks {
		n := blocks[j].region.Len()
		if int64(len(elements)) < n {
			return invalidLayout("dense bounding region %v has %d elements, want %d", blocks[j].region, len(elements), n)
		}
		blocks[j].elements, elements = elements[:n:n], elements[n:]
	}
	if len(elements) > 0 {
		return invalidLayout("%d elements of %s lie outside the dense bounding regions", len(elements), blocks[0].region.Chromosome)
	}
	return nil
}

// cluster merges overlapping elements of each block into one element
// spanning their union.  The merged element keeps every other attribute of
// the first element of its cluster.
func cluster(blocks []block) []block {
	out := make([]block, len(blocks))
	for i, b := range blocks {
		out[i].region = b.region
		var merged []genomics.Element
		for _, e := range b.elements {
			if n := len(merged); n > 0 && e.Start < merged[n-1].End {
				if e.End > merged[n-1].End {
					merged[n-1].End = e.End
				}
				continue
			}
			merged = append(merged, e)
		}
		out[i].elements = merged
	}
	return out
}
