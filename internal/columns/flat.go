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
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"

	mmap "github.com/edsrzf/mmap-go"
	"github.com/goccy/go-json"
)

const (
	flatDirName    = "columns.flat"
	flatSchemaName = "schema.json"
)

// FlatBackend stores every column of a partition as a raw little endian
// array in its own file, memory mapped on read.  Strings are stored zero
// padded to the declared width.
type FlatBackend struct{}

type flatSchema struct {
	Rows    int    `json:"rows"`
	Columns []Spec `json:"columns"`
}

// Name implements Backend.
func (FlatBackend) Name() string { return "flat" }

// Exists implements Backend.
func (FlatBackend) Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, flatDirName, flatSchemaName))
	return err == nil
}

func flatColumnFile(i int) string {
	return fmt.Sprintf("col%03d.bin", i)
}

func flatValueSize(spec Spec) int {
	switch spec.Kind {
	case Int64, Float64:
		return 8
	case String:
		return spec.Width
	}
	return 1
}

// Create implements Backend.
func (FlatBackend) Create(dir string, specs []Spec) (Writer, error) {
	if err := checkSpecs(specs); err != nil {
		return nil, err
	}
	for _, spec := range specs {
		if spec.Kind == String && spec.Width == 0 {
			return nil, fmt.Errorf("string column %s needs a width", spec.Name)
		}
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating partition directory: %v", err)
	}
	tmp, err := os.MkdirTemp(dir, ".columns-*")
	if err != nil {
		return nil, fmt.Errorf("creating temporary directory: %v", err)
	}
	w := &flatWriter{specs: specs, tmp: tmp, path: filepath.Join(dir, flatDirName)}
	for i := range specs {
		f, err := os.Create(filepath.Join(tmp, flatColumnFile(i)))
		if err != nil {
			w.Abort()
			return nil, fmt.Errorf("creating column file: %v", err)
		}
		w.files = append(w.files, f)
		w.writers = append(w.writers, bufio.NewWriter(f))
	}
	return w, nil
}

type flatWriter struct {
	specs   []Spec
	tmp     string
	path    string
	files   []*os.File
	writers []*bufio.Writer
	rows    int
}

func (w *flatWriter) Write(buffers []*Buffer) error {
	rows, err := checkBuffers(w.specs, buffers)
	if err != nil {
		return err
	}
	var scratch [8]byte
	for i, b := range buffers {
		bw := w.writers[i]
		switch b.Spec.Kind {
		case Int64:
			for _, v := range b.Int64 {
				binary.LittleEndian.PutUint64(scratch[:], uint64(v))
				bw.Write(scratch[:])
			}
		case Float64:
			for _, v := range b.Float64 {
				binary.LittleEndian.PutUint64(scratch[:], math.Float64bits(v))
				bw.Write(scratch[:])
			}
		case Bool:
			for _, v := range b.Bool {
				if v {
					bw.WriteByte(1)
				} else {
					bw.WriteByte(0)
				}
			}
		case Uint8:
			bw.Write(b.Uint8)
		case String:
			pad := make([]byte, w.specs[i].Width)
			for _, v := range b.String {
				bw.WriteString(v)
				bw.Write(pad[len(v):])
			}
		}
	}
	w.rows += rows
	return nil
}

func (w *flatWriter) Close() error {
	for i, f := range w.files {
		if err := w.writers[i].Flush(); err != nil {
			w.Abort()
			return fmt.Errorf("writing column %s: %v", w.specs[i].Name, err)
		}
		if err := f.Sync(); err != nil {
			w.Abort()
			return fmt.Errorf("syncing column %s: %v", w.specs[i].Name, err)
		}
	}
	data, err := json.Marshal(flatSchema{Rows: w.rows, Columns: w.specs})
	if err != nil {
		w.Abort()
		return fmt.Errorf("encoding schema: %v", err)
	}
	if err := writeFileSync(filepath.Join(w.tmp, flatSchemaName), data); err != nil {
		w.Abort()
		return err
	}
	for _, f := range w.files {
		f.Close()
	}
	w.files = nil
	// A directory cannot be renamed over a non-empty one.
	if err := os.RemoveAll(w.path); err != nil {
		os.RemoveAll(w.tmp)
		return fmt.Errorf("removing previous partition: %v", err)
	}
	if err := os.Rename(w.tmp, w.path); err != nil {
		os.RemoveAll(w.tmp)
		return fmt.Errorf("publishing partition: %v", err)
	}
	return syncDir(filepath.Dir(w.path))
}

func (w *flatWriter) Abort() error {
	for _, f := range w.files {
		f.Close()
	}
	w.files = nil
	return os.RemoveAll(w.tmp)
}

func writeFileSync(path string, data []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %v", path, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %v", path, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("syncing %s: %v", path, err)
	}
	return f.Close()
}

// Open implements Backend.
func (FlatBackend) Open(dir string) (Partition, error) {
	root := filepath.Join(dir, flatDirName)
	data, err := os.ReadFile(filepath.Join(root, flatSchemaName))
	if err != nil {
		return nil, err
	}
	var schema flatSchema
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("decoding schema: %v", err)
	}

	p := &flatPartition{schema: schema}
	for i, spec := range schema.Columns {
		m, err := mapColumn(filepath.Join(root, flatColumnFile(i)), int64(schema.Rows*spec.Dimension()*flatValueSize(spec)))
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("column %s: %v", spec.Name, err)
		}
		p.maps = append(p.maps, m)
	}
	return p, nil
}

func mapColumn(path string, size int64) (mmap.MMap, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if fi.Size() != size {
		return nil, fmt.Errorf("%s has %d bytes, want %d", path, fi.Size(), size)
	}
	if size == 0 {
		return nil, nil
	}
	return mmap.Map(f, mmap.RDONLY, 0)
}

type flatPartition struct {
	schema flatSchema
	maps   []mmap.MMap
}

func (p *flatPartition) NumRows() int  { return p.schema.Rows }
func (p *flatPartition) Specs() []Spec { return p.schema.Columns }

func (p *flatPartition) Column(name string) (Array, bool) {
	for i, spec := range p.schema.Columns {
		if spec.Name == name {
			return &flatArray{spec: spec, rows: p.schema.Rows, data: p.maps[i], size: flatValueSize(spec)}, true
		}
	}
	return nil, false
}

func (p *flatPartition) Close() error {
	var first error
	for _, m := range p.maps {
		if m == nil {
			continue
		}
		if err := m.Unmap(); err != nil && first == nil {
			first = err
		}
	}
	p.maps = nil
	return first
}

type flatArray struct {
	spec Spec
	rows int
	data []byte
	size int
}

func (a *flatArray) Spec() Spec { return a.spec }
func (a *flatArray) Len() int   { return a.rows }

func (a *flatArray) value(row, k int) []byte {
	if row < 0 || row >= a.rows {
		panic(fmt.Sprintf("columns: row %d out of range with length %d", row, a.rows))
	}
	offset := (row*a.spec.Dimension() + k) * a.size
	return a.data[offset : offset+a.size]
}

func (a *flatArray) Int64(row, k int) int64 {
	return int64(binary.LittleEndian.Uint64(a.value(row, k)))
}

func (a *flatArray) Float64(row, k int) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(a.value(row, k)))
}

func (a *flatArray) Bool(row, k int) bool {
	return a.value(row, k)[0] != 0
}

func (a *flatArray) Uint8(row, k int) uint8 {
	return a.value(row, k)[0]
}

func (a *flatArray) String(row, k int) string {
	return string(bytes.TrimRight(a.value(row, k), "\x00"))
}
