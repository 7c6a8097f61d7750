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

// Package jsonl encodes element streams as JSON lines.
//
// The first line holds a header describing the columns and types of the
// stream, every following line one element, and an optional last line a
// trailer with the bounding regions and provenance of the stream:
//
//	{"header":{"columns":["start","end","val"],"value":{"type":"number"}}}
//	{"chr":"chr1","start":100,"end":200,"val":0.5}
//	{"trailer":{"boundingRegions":[{"chr":"chr1","start":0,"end":1000,"count":1}]}}
package jsonl

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	"github.com/goccy/go-json"

	"github.com/googlegenomics/trackstore/format"
	"github.com/googlegenomics/trackstore/genomics"
)

// Version is the version of the encoding.
const Version = 1

const maxLineSize = 16 << 20

// Header describes the elements of a stream.
type Header struct {
	Columns         []string        `json:"columns"`
	ExtraColumns    []string        `json:"extra,omitempty"`
	Value           format.TypeInfo `json:"value"`
	Weight          format.TypeInfo `json:"weight"`
	UndirectedEdges bool            `json:"undirected,omitempty"`
	Version         int             `json:"version,omitempty"`
}

// BoundingRegion is the encoding of a genomics.BoundingRegion.
type BoundingRegion struct {
	Chromosome string `json:"chr"`
	Start      int64  `json:"start"`
	End        int64  `json:"end"`
	Count      int64  `json:"count"`
}

// Trailer holds the stream information only known after the last element.
type Trailer struct {
	BoundingRegions []BoundingRegion `json:"boundingRegions,omitempty"`
	ProvenanceID    string           `json:"provenance,omitempty"`
}

type line struct {
	Header  *Header           `json:"header,omitempty"`
	Trailer *Trailer          `json:"trailer,omitempty"`
	Chr     string            `json:"chr,omitempty"`
	Start   *int64            `json:"start,omitempty"`
	End     *int64            `json:"end,omitempty"`
	Value   json.RawMessage   `json:"val,omitempty"`
	Strand  string            `json:"strand,omitempty"`
	ID      string            `json:"id,omitempty"`
	Edges   []string          `json:"edges,omitempty"`
	Weights []json.RawMessage `json:"weights,omitempty"`
	Extra   map[string]string `json:"extra,omitempty"`
}

// Parser parses JSON lines streams.
type Parser struct{}

// Version returns the version of the encoding.
func (Parser) Version() int { return Version }

// Parse reads the header of r and returns a stream over its elements.
func (Parser) Parse(r io.ReadCloser) (genomics.ElementStream, error) {
	return NewReader(r)
}

// Reader is an ElementStream reading JSON lines.
type Reader struct {
	r       io.ReadCloser
	scanner *bufio.Scanner
	info    genomics.StreamInfo
	line    int
	done    bool
}

// NewReader reads the header line of r.
func NewReader(r io.ReadCloser) (*Reader, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	rd := &Reader{r: r, scanner: scanner}
	l, err := rd.next()
	if err == io.EOF {
		return nil, fmt.Errorf("missing header")
	}
	if err != nil {
		return nil, err
	}
	if l.Header == nil {
		return nil, fmt.Errorf("line 1: missing header")
	}
	if rd.info, err = streamInfo(l.Header); err != nil {
		return nil, fmt.Errorf("line 1: %v", err)
	}
	return rd, nil
}

func streamInfo(h *Header) (genomics.StreamInfo, error) {
	info := genomics.StreamInfo{
		ExtraColumns:    h.ExtraColumns,
		Value:           h.Value,
		Weight:          h.Weight,
		UndirectedEdges: h.UndirectedEdges,
		Version:         h.Version,
	}
	if info.Version == 0 {
		info.Version = Version
	}
	for _, name := range h.Columns {
		c, err := format.ParseColumn(name)
		if err != nil {
			return info, err
		}
		info.Columns = info.Columns.With(c)
	}
	if len(h.ExtraColumns) > 0 {
		info.Columns = info.Columns.With(format.Extra)
	}
	return info, nil
}

func (rd *Reader) next() (*line, error) {
	for rd.scanner.Scan() {
		rd.line++
		data := bytes.TrimSpace(rd.scanner.Bytes())
		if len(data) == 0 {
			continue
		}
		var l line
		if err := json.Unmarshal(data, &l); err != nil {
			return nil, fmt.Errorf("line %d: %v", rd.line, err)
		}
		return &l, nil
	}
	if err := rd.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

// Next implements genomics.ElementStream.
func (rd *Reader) Next() (genomics.Element, error) {
	if rd.done {
		return genomics.Element{}, io.EOF
	}
	l, err := rd.next()
	if err == io.EOF {
		rd.done = true
		return genomics.Element{}, io.EOF
	}
	if err != nil {
		return genomics.Element{}, err
	}
	switch {
	case l.Header != nil:
		return genomics.Element{}, fmt.Errorf("line %d: unexpected header", rd.line)
	case l.Trailer != nil:
		rd.applyTrailer(l.Trailer)
		if _, err := rd.next(); err != io.EOF {
			return genomics.Element{}, fmt.Errorf("line %d: data after trailer", rd.line)
		}
		rd.done = true
		return genomics.Element{}, io.EOF
	}
	e, err := rd.element(l)
	if err != nil {
		return genomics.Element{}, fmt.Errorf("line %d: %v", rd.line, err)
	}
	return e, nil
}

func (rd *Reader) applyTrailer(t *Trailer) {
	regions := make([]genomics.BoundingRegion, 0, len(t.BoundingRegions))
	for _, br := range t.BoundingRegions {
		regions = append(regions, genomics.BoundingRegion{
			Region:       genomics.Region{Chromosome: br.Chromosome, Start: br.Start, End: br.End},
			ElementCount: br.Count,
		})
	}
	if len(regions) > 0 {
		rd.info.BoundingRegions = regions
	}
	rd.info.ProvenanceID = t.ProvenanceID
}

func (rd *Reader) element(l *line) (genomics.Element, error) {
	cols := rd.info.Columns
	e := genomics.Element{Chromosome: l.Chr, ID: l.ID, Edges: l.Edges, Extra: l.Extra}
	if e.Chromosome == "" {
		return e, fmt.Errorf("element has no chromosome")
	}
	if cols.Has(format.Start) {
		if l.Start == nil {
			return e, fmt.Errorf("element has no start")
		}
		e.Start = *l.Start
	}
	if cols.Has(format.End) {
		if l.End == nil {
			return e, fmt.Errorf("element has no end")
		}
		e.End = *l.End
	}
	switch {
	case !cols.Has(format.Start) && cols.Has(format.End):
		// Partitions carry ends only.
	case !cols.Has(format.End):
		e.End = e.Start + 1
	}
	if cols.Has(format.Value) {
		v, err := DecodeValue(l.Value, rd.info.Value)
		if err != nil {
			return e, fmt.Errorf("value: %v", err)
		}
		e.Value = v
	}
	if cols.Has(format.Strand) {
		s, err := genomics.ParseStrand(l.Strand)
		if err != nil {
			return e, err
		}
		e.Strand = s
	}
	if cols.Has(format.Weights) {
		if len(l.Weights) != len(l.Edges) {
			return e, fmt.Errorf("got %d weights for %d edges", len(l.Weights), len(l.Edges))
		}
		for _, raw := range l.Weights {
			w, err := DecodeValue(raw, rd.info.Weight)
			if err != nil {
				return e, fmt.Errorf("weight: %v", err)
			}
			e.Weights = append(e.Weights, w)
		}
	}
	return e, nil
}

// DecodeValue decodes a value of the given type.
func DecodeValue(raw json.RawMessage, info format.TypeInfo) (interface{}, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("missing")
	}
	vector := info.Type == format.MeanSD || info.Type == format.Population || info.IsVector()
	var v interface{}
	switch {
	case vector && (info.Type == format.Integer || info.Type == format.Population):
		var xs []int64
		if err := json.Unmarshal(raw, &xs); err != nil {
			return nil, err
		}
		v = xs
	case vector && (info.Type == format.Number || info.Type == format.MeanSD):
		var xs []float64
		if err := json.Unmarshal(raw, &xs); err != nil {
			return nil, err
		}
		v = xs
	case vector && (info.Type == format.Category || info.Type == format.Character):
		var xs []string
		if err := json.Unmarshal(raw, &xs); err != nil {
			return nil, err
		}
		v = xs
	case info.Type == format.Number:
		var x float64
		if err := json.Unmarshal(raw, &x); err != nil {
			return nil, err
		}
		v = x
	case info.Type == format.Integer:
		var x int64
		if err := json.Unmarshal(raw, &x); err != nil {
			return nil, err
		}
		v = x
	case info.Type == format.Category || info.Type == format.Character:
		var x string
		if err := json.Unmarshal(raw, &x); err != nil {
			return nil, err
		}
		v = x
	case info.Type == format.Boolean:
		var x bool
		if err := json.Unmarshal(raw, &x); err != nil {
			return nil, err
		}
		v = x
	default:
		return nil, fmt.Errorf("unsupported type %v", info)
	}
	if n := dimension(v); n >= 0 && info.Type != format.Population && n != info.Dimension() {
		return nil, fmt.Errorf("got %d values, want %d", n, info.Dimension())
	}
	return v, nil
}

func dimension(v interface{}) int {
	switch v := v.(type) {
	case []int64:
		return len(v)
	case []float64:
		return len(v)
	case []string:
		return len(v)
	}
	return -1
}

// Info implements genomics.ElementStream.
func (rd *Reader) Info() genomics.StreamInfo {
	return rd.info
}

// Close implements genomics.ElementStream.
func (rd *Reader) Close() error {
	return rd.r.Close()
}

// Writer writes an element stream as JSON lines.
type Writer struct {
	w    *bufio.Writer
	info genomics.StreamInfo
}

// NewWriter writes the header line describing info.
func NewWriter(w io.Writer, info genomics.StreamInfo) (*Writer, error) {
	wr := &Writer{w: bufio.NewWriter(w), info: info}
	h := &Header{
		Columns:         columnNames(info.Columns.Without(format.Extra)),
		ExtraColumns:    info.ExtraColumns,
		Value:           info.Value,
		Weight:          info.Weight,
		UndirectedEdges: info.UndirectedEdges,
		Version:         info.Version,
	}
	if err := wr.write(&line{Header: h}); err != nil {
		return nil, err
	}
	return wr, nil
}

func columnNames(set format.ColumnSet) []string {
	names := []string{}
	for _, c := range set.Columns() {
		names = append(names, c.String())
	}
	return names
}

func (wr *Writer) write(l *line) error {
	data, err := json.Marshal(l)
	if err != nil {
		return err
	}
	if _, err := wr.w.Write(data); err != nil {
		return err
	}
	return wr.w.WriteByte('\n')
}

// Write writes one element.
func (wr *Writer) Write(e *genomics.Element) error {
	cols := wr.info.Columns
	l := &line{Chr: e.Chromosome, Extra: e.Extra}
	if cols.Has(format.Start) {
		start := e.Start
		l.Start = &start
	}
	if cols.Has(format.End) {
		end := e.End
		l.End = &end
	}
	if cols.Has(format.Value) {
		raw, err := json.Marshal(e.Value)
		if err != nil {
			return fmt.Errorf("encoding value: %v", err)
		}
		l.Value = raw
	}
	if cols.Has(format.Strand) {
		l.Strand = e.Strand.String()
	}
	if cols.Has(format.ID) {
		l.ID = e.ID
	}
	if cols.Has(format.Edges) {
		l.Edges = e.Edges
	}
	if cols.Has(format.Weights) {
		for _, w := range e.Weights {
			raw, err := json.Marshal(w)
			if err != nil {
				return fmt.Errorf("encoding weight: %v", err)
			}
			l.Weights = append(l.Weights, raw)
		}
	}
	return wr.write(l)
}

// Close writes the trailer, if regions or provenanceID are set, and flushes
// the output.
func (wr *Writer) Close(regions []genomics.BoundingRegion, provenanceID string) error {
	if len(regions) > 0 || provenanceID != "" {
		t := &Trailer{ProvenanceID: provenanceID}
		for _, br := range regions {
			t.BoundingRegions = append(t.BoundingRegions, BoundingRegion{br.Chromosome, br.Start, br.End, br.ElementCount})
		}
		if err := wr.write(&line{Trailer: t}); err != nil {
			return err
		}
	}
	return wr.w.Flush()
}
