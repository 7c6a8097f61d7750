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

package index

import (
	"bufio"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/googlegenomics/trackstore/internal/binary"
)

const (
	indexMagic = "BRI\x01"

	flagDense       = 1 << 0
	flagWholeGenome = 1 << 1

	maxChromosomes = 1 << 20
	maxEntries     = 1 << 28
)

type header struct {
	Flags       uint8
	BinSize     int64
	Chromosomes uint32
}

type chromosomeHeader struct {
	Entries  uint32
	FirstBin int64
	Bins     uint32
}

// Encode writes a zstd compressed binary representation of idx to w.
func (idx *Index) Encode(w io.Writer) error {
	zw, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("initializing zstd writer: %v", err)
	}
	bw := bufio.NewWriter(zw)
	if err := idx.write(bw); err != nil {
		zw.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		zw.Close()
		return fmt.Errorf("flushing index: %v", err)
	}
	return zw.Close()
}

func (idx *Index) write(w io.Writer) error {
	if _, err := io.WriteString(w, indexMagic); err != nil {
		return fmt.Errorf("writing magic: %v", err)
	}
	h := header{BinSize: idx.binSize, Chromosomes: uint32(len(idx.chromosomes))}
	if idx.dense {
		h.Flags |= flagDense
	}
	if idx.wholeGenome {
		h.Flags |= flagWholeGenome
	}
	if err := binary.Write(w, &h); err != nil {
		return fmt.Errorf("writing header: %v", err)
	}
	for _, chr := range idx.chromosomes {
		if err := binary.WriteString(w, chr.name); err != nil {
			return fmt.Errorf("writing chromosome name: %v", err)
		}
		ch := chromosomeHeader{Entries: uint32(len(chr.entries)), FirstBin: chr.firstBin, Bins: uint32(len(chr.bins))}
		if err := binary.Write(w, &ch); err != nil {
			return fmt.Errorf("writing chromosome header: %v", err)
		}
		if err := binary.Write(w, chr.entries); err != nil {
			return fmt.Errorf("writing entries of %s: %v", chr.name, err)
		}
		if err := binary.Write(w, chr.bins); err != nil {
			return fmt.Errorf("writing bins of %s: %v", chr.name, err)
		}
	}
	return nil
}

// Decode reads an index written by Encode from r.
func Decode(r io.Reader) (*Index, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("initializing zstd reader: %v", err)
	}
	defer zr.Close()
	br := bufio.NewReader(zr)

	if err := binary.ExpectBytes(br, []byte(indexMagic)); err != nil {
		return nil, fmt.Errorf("reading magic: %v", err)
	}
	var h header
	if err := binary.Read(br, &h); err != nil {
		return nil, fmt.Errorf("reading header: %v", err)
	}
	if h.Chromosomes > maxChromosomes {
		return nil, fmt.Errorf("index lists %d chromosomes", h.Chromosomes)
	}
	if h.BinSize <= 0 {
		return nil, fmt.Errorf("invalid bin size %d", h.BinSize)
	}

	idx := &Index{
		dense:       h.Flags&flagDense != 0,
		wholeGenome: h.Flags&flagWholeGenome != 0,
		binSize:     h.BinSize,
		byName:      make(map[string]*chromosome),
	}
	for i := uint32(0); i < h.Chromosomes; i++ {
		name, err := binary.ReadString(br)
		if err != nil {
			return nil, fmt.Errorf("reading chromosome name: %v", err)
		}
		var ch chromosomeHeader
		if err := binary.Read(br, &ch); err != nil {
			return nil, fmt.Errorf("reading chromosome header: %v", err)
		}
		if ch.Entries == 0 || ch.Entries > maxEntries || ch.Bins > maxEntries {
			return nil, fmt.Errorf("chromosome %s has %d entries and %d bins", name, ch.Entries, ch.Bins)
		}
		chr := &chromosome{
			name:     name,
			entries:  make([]Entry, ch.Entries),
			firstBin: ch.FirstBin,
		}
		if err := binary.Read(br, chr.entries); err != nil {
			return nil, fmt.Errorf("reading entries of %s: %v", name, err)
		}
		if ch.Bins > 0 {
			chr.bins = make([]bin, ch.Bins)
			if err := binary.Read(br, chr.bins); err != nil {
				return nil, fmt.Errorf("reading bins of %s: %v", name, err)
			}
		}
		if _, ok := idx.byName[name]; ok {
			return nil, fmt.Errorf("chromosome %s listed twice", name)
		}
		idx.chromosomes = append(idx.chromosomes, chr)
		idx.byName[name] = chr
		idx.rows += totalRows(chr.entries)
	}
	return idx, nil
}

func totalRows(entries []Entry) int64 {
	var rows int64
	for _, e := range entries {
		rows += e.Rows()
	}
	return rows
}
