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

package columns

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/ipc"
	"github.com/apache/arrow/go/v17/arrow/memory"
	mmap "github.com/edsrzf/mmap-go"
)

const (
	arrowFileName = "columns.arrow"
	widthKey      = "trackstore.width"
)

// ArrowBackend stores a partition as a single Arrow IPC file.  Vector columns
// are stored as fixed size lists.
type ArrowBackend struct{}

// Name implements Backend.
func (ArrowBackend) Name() string { return "arrow" }

// Exists implements Backend.
func (ArrowBackend) Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, arrowFileName))
	return err == nil
}

func arrowScalarType(kind Kind) (arrow.DataType, error) {
	switch kind {
	case Int64:
		return arrow.PrimitiveTypes.Int64, nil
	case Float64:
		return arrow.PrimitiveTypes.Float64, nil
	case Bool:
		return arrow.FixedWidthTypes.Boolean, nil
	case Uint8:
		return arrow.PrimitiveTypes.Uint8, nil
	case String:
		return arrow.BinaryTypes.String, nil
	}
	return nil, fmt.Errorf("unsupported kind %v", kind)
}

func arrowSchema(specs []Spec) (*arrow.Schema, error) {
	fields := make([]arrow.Field, len(specs))
	for i, spec := range specs {
		dt, err := arrowScalarType(spec.Kind)
		if err != nil {
			return nil, fmt.Errorf("column %s: %v", spec.Name, err)
		}
		if spec.Dimension() > 1 {
			dt = arrow.FixedSizeListOf(int32(spec.Dimension()), dt)
		}
		fields[i] = arrow.Field{
			Name:     spec.Name,
			Type:     dt,
			Metadata: arrow.NewMetadata([]string{widthKey}, []string{strconv.Itoa(spec.Width)}),
		}
	}
	return arrow.NewSchema(fields, nil), nil
}

func specsFromSchema(schema *arrow.Schema) ([]Spec, error) {
	specs := make([]Spec, schema.NumFields())
	for i, field := range schema.Fields() {
		spec := Spec{Name: field.Name}
		dt := field.Type
		if list, ok := dt.(*arrow.FixedSizeListType); ok {
			spec.Dim = int(list.Len())
			dt = list.Elem()
		}
		switch dt.ID() {
		case arrow.INT64:
			spec.Kind = Int64
		case arrow.FLOAT64:
			spec.Kind = Float64
		case arrow.BOOL:
			spec.Kind = Bool
		case arrow.UINT8:
			spec.Kind = Uint8
		case arrow.STRING:
			spec.Kind = String
		default:
			return nil, fmt.Errorf("column %s has unsupported type %v", field.Name, dt)
		}
		if idx := field.Metadata.FindKey(widthKey); idx >= 0 {
			width, err := strconv.Atoi(field.Metadata.Values()[idx])
			if err != nil {
				return nil, fmt.Errorf("column %s: parsing width: %v", field.Name, err)
			}
			spec.Width = width
		}
		specs[i] = spec
	}
	return specs, nil
}

// Create implements Backend.
func (ArrowBackend) Create(dir string, specs []Spec) (Writer, error) {
	if err := checkSpecs(specs); err != nil {
		return nil, err
	}
	schema, err := arrowSchema(specs)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating partition directory: %v", err)
	}
	f, err := os.CreateTemp(dir, ".columns-*.arrow")
	if err != nil {
		return nil, fmt.Errorf("creating temporary file: %v", err)
	}

	pool := memory.NewGoAllocator()
	fw, err := ipc.NewFileWriter(f, ipc.WithSchema(schema), ipc.WithAllocator(pool))
	if err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("creating arrow writer: %v", err)
	}
	return &arrowWriter{
		specs:   specs,
		schema:  schema,
		pool:    pool,
		file:    f,
		writer:  fw,
		path:    filepath.Join(dir, arrowFileName),
		builder: array.NewRecordBuilder(pool, schema),
	}, nil
}

type arrowWriter struct {
	specs   []Spec
	schema  *arrow.Schema
	pool    memory.Allocator
	file    *os.File
	writer  *ipc.FileWriter
	path    string
	builder *array.RecordBuilder
}

func (w *arrowWriter) Write(buffers []*Buffer) error {
	rows, err := checkBuffers(w.specs, buffers)
	if err != nil {
		return err
	}
	if rows == 0 {
		return nil
	}
	for i, b := range buffers {
		fb := w.builder.Field(i)
		if b.Spec.Dimension() > 1 {
			list := fb.(*array.FixedSizeListBuilder)
			for r := 0; r < rows; r++ {
				list.Append(true)
			}
			fb = list.ValueBuilder()
		}
		if err := appendValues(fb, b); err != nil {
			return fmt.Errorf("column %s: %v", b.Spec.Name, err)
		}
	}
	record := w.builder.NewRecord()
	defer record.Release()
	if err := w.writer.Write(record); err != nil {
		return fmt.Errorf("writing record batch: %v", err)
	}
	return nil
}

func appendValues(builder array.Builder, b *Buffer) error {
	switch fb := builder.(type) {
	case *array.Int64Builder:
		fb.AppendValues(b.Int64, nil)
	case *array.Float64Builder:
		fb.AppendValues(b.Float64, nil)
	case *array.BooleanBuilder:
		fb.AppendValues(b.Bool, nil)
	case *array.Uint8Builder:
		fb.AppendValues(b.Uint8, nil)
	case *array.StringBuilder:
		fb.AppendValues(b.String, nil)
	default:
		return fmt.Errorf("unsupported builder type: %T", builder)
	}
	return nil
}

func (w *arrowWriter) Close() error {
	defer w.builder.Release()
	if err := w.writer.Close(); err != nil {
		w.abort()
		return fmt.Errorf("closing arrow writer: %v", err)
	}
	if err := w.file.Sync(); err != nil {
		w.abort()
		return fmt.Errorf("syncing %s: %v", w.file.Name(), err)
	}
	if err := w.file.Close(); err != nil {
		os.Remove(w.file.Name())
		return fmt.Errorf("closing %s: %v", w.file.Name(), err)
	}
	if err := os.Rename(w.file.Name(), w.path); err != nil {
		os.Remove(w.file.Name())
		return fmt.Errorf("publishing partition: %v", err)
	}
	return syncDir(filepath.Dir(w.path))
}

func (w *arrowWriter) Abort() error {
	w.builder.Release()
	return w.abort()
}

func (w *arrowWriter) abort() error {
	w.file.Close()
	if err := os.Remove(w.file.Name()); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Open implements Backend.
func (ArrowBackend) Open(dir string) (Partition, error) {
	f, err := os.Open(filepath.Join(dir, arrowFileName))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("mapping %s: %v", f.Name(), err)
	}

	p, err := readArrow(data)
	if err != nil {
		data.Unmap()
		return nil, fmt.Errorf("reading %s: %v", f.Name(), err)
	}
	p.data = data
	return p, nil
}

func readArrow(data []byte) (*arrowPartition, error) {
	fr, err := ipc.NewFileReader(bytes.NewReader(data), ipc.WithAllocator(memory.NewGoAllocator()))
	if err != nil {
		return nil, fmt.Errorf("creating arrow reader: %v", err)
	}
	defer fr.Close()

	specs, err := specsFromSchema(fr.Schema())
	if err != nil {
		return nil, err
	}
	p := &arrowPartition{specs: specs, starts: []int{0}}
	for i := 0; i < fr.NumRecords(); i++ {
		record, err := fr.Record(i)
		if err != nil {
			p.release()
			return nil, fmt.Errorf("reading record batch %d: %v", i, err)
		}
		record.Retain()
		p.records = append(p.records, record)
		p.starts = append(p.starts, p.starts[len(p.starts)-1]+int(record.NumRows()))
	}
	return p, nil
}

type arrowPartition struct {
	data    mmap.MMap
	specs   []Spec
	records []arrow.Record
	// starts[i] is the first row of records[i]; the last entry is the row
	// count.
	starts []int
}

func (p *arrowPartition) NumRows() int  { return p.starts[len(p.starts)-1] }
func (p *arrowPartition) Specs() []Spec { return p.specs }

func (p *arrowPartition) Column(name string) (Array, bool) {
	for i, spec := range p.specs {
		if spec.Name == name {
			chunks := make([]arrow.Array, len(p.records))
			for j, record := range p.records {
				chunks[j] = record.Column(i)
			}
			return &arrowArray{spec: spec, chunks: chunks, starts: p.starts}, true
		}
	}
	return nil, false
}

func (p *arrowPartition) release() {
	for _, record := range p.records {
		record.Release()
	}
	p.records = nil
}

func (p *arrowPartition) Close() error {
	p.release()
	if p.data != nil {
		return p.data.Unmap()
	}
	return nil
}

type arrowArray struct {
	spec   Spec
	chunks []arrow.Array
	starts []int
}

func (a *arrowArray) Spec() Spec { return a.spec }
func (a *arrowArray) Len() int   { return a.starts[len(a.starts)-1] }

// locate returns the array holding the k-th value of row and its index there.
func (a *arrowArray) locate(row, k int) (arrow.Array, int) {
	i := sort.Search(len(a.chunks), func(i int) bool { return a.starts[i+1] > row })
	if i == len(a.chunks) {
		panic(fmt.Sprintf("columns: row %d out of range with length %d", row, a.Len()))
	}
	chunk, r := a.chunks[i], row-a.starts[i]
	if a.spec.Dimension() == 1 {
		return chunk, r
	}
	list := chunk.(*array.FixedSizeList)
	return list.ListValues(), (list.Data().Offset()+r)*a.spec.Dimension() + k
}

func (a *arrowArray) Int64(row, k int) int64 {
	arr, i := a.locate(row, k)
	return arr.(*array.Int64).Value(i)
}

func (a *arrowArray) Float64(row, k int) float64 {
	arr, i := a.locate(row, k)
	return arr.(*array.Float64).Value(i)
}

func (a *arrowArray) Bool(row, k int) bool {
	arr, i := a.locate(row, k)
	return arr.(*array.Boolean).Value(i)
}

func (a *arrowArray) Uint8(row, k int) uint8 {
	arr, i := a.locate(row, k)
	return arr.(*array.Uint8).Value(i)
}

func (a *arrowArray) String(row, k int) string {
	arr, i := a.locate(row, k)
	return arr.(*array.String).Value(i)
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("opening %s: %v", dir, err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("syncing %s: %v", dir, err)
	}
	return nil
}
