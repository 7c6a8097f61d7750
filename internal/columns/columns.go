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

// Package columns implements write-once columnar partitions.
//
// A partition holds a fixed set of columns, each declared up front with a
// scalar kind and a per-row dimension.  Partitions are written through a
// Writer which publishes them atomically on Close, and read back through
// Array views that decode values only when they are accessed.
package columns

import (
	"fmt"
	"strings"
)

// Kind is the scalar kind of a column.
type Kind uint8

const (
	Int64 Kind = iota + 1
	Float64
	Bool
	Uint8
	String
)

var kindNames = []string{"", "int64", "float64", "bool", "uint8", "string"}

func (k Kind) String() string {
	if int(k) < len(kindNames) && k != 0 {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	for i, name := range kindNames {
		if i > 0 && name == string(text) {
			*k = Kind(i)
			return nil
		}
	}
	return fmt.Errorf("unknown column kind %q", text)
}

// Spec declares a column.
type Spec struct {
	Name string `json:"name"`
	Kind Kind   `json:"kind"`
	// Dim is the number of values per row.  Zero means one.
	Dim int `json:"dim,omitempty"`
	// Width is the maximum length in bytes of a String value.  It is only
	// used by backends that store fixed width strings.
	Width int `json:"width,omitempty"`
}

// Dimension returns the number of values per row.
func (s Spec) Dimension() int {
	if s.Dim < 1 {
		return 1
	}
	return s.Dim
}

// Validate checks that the spec can be stored.
func (s Spec) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("column has no name")
	}
	if s.Kind < Int64 || s.Kind > String {
		return fmt.Errorf("column %s has invalid kind %v", s.Name, s.Kind)
	}
	if s.Dim < 0 || s.Width < 0 {
		return fmt.Errorf("column %s has negative dimension or width", s.Name)
	}
	return nil
}

// Buffer accumulates the values of one column before it is written.  Values
// are flattened, Dimension() of them per row.  Only the slice matching the
// spec's kind is used.
type Buffer struct {
	Spec    Spec
	Int64   []int64
	Float64 []float64
	Bool    []bool
	Uint8   []uint8
	String  []string
}

// NewBuffer returns an empty buffer with room for rows rows.
func NewBuffer(spec Spec, rows int) *Buffer {
	b := &Buffer{Spec: spec}
	n := rows * spec.Dimension()
	switch spec.Kind {
	case Int64:
		b.Int64 = make([]int64, 0, n)
	case Float64:
		b.Float64 = make([]float64, 0, n)
	case Bool:
		b.Bool = make([]bool, 0, n)
	case Uint8:
		b.Uint8 = make([]uint8, 0, n)
	case String:
		b.String = make([]string, 0, n)
	}
	return b
}

func (b *Buffer) values() int {
	switch b.Spec.Kind {
	case Int64:
		return len(b.Int64)
	case Float64:
		return len(b.Float64)
	case Bool:
		return len(b.Bool)
	case Uint8:
		return len(b.Uint8)
	case String:
		return len(b.String)
	}
	return 0
}

// Len returns the number of complete rows in the buffer.
func (b *Buffer) Len() int {
	return b.values() / b.Spec.Dimension()
}

func checkBuffers(specs []Spec, buffers []*Buffer) (int, error) {
	if len(buffers) != len(specs) {
		return 0, fmt.Errorf("got %d columns, want %d", len(buffers), len(specs))
	}
	rows := -1
	for i, b := range buffers {
		if b.Spec.Name != specs[i].Name || b.Spec.Kind != specs[i].Kind || b.Spec.Dimension() != specs[i].Dimension() {
			return 0, fmt.Errorf("column %d is %+v, want %+v", i, b.Spec, specs[i])
		}
		if b.values()%specs[i].Dimension() != 0 {
			return 0, fmt.Errorf("column %s has a partial row", b.Spec.Name)
		}
		if rows >= 0 && b.Len() != rows {
			return 0, fmt.Errorf("column %s has %d rows, want %d", b.Spec.Name, b.Len(), rows)
		}
		rows = b.Len()
		if specs[i].Kind == String && specs[i].Width > 0 {
			for _, s := range b.String {
				if len(s) > specs[i].Width {
					return 0, fmt.Errorf("column %s: value %q is wider than %d bytes", b.Spec.Name, s, specs[i].Width)
				}
			}
		}
	}
	return rows, nil
}

// Array is a read-only view of a column.  The accessor matching the column's
// kind returns the k-th value of a row; the others panic.
type Array interface {
	Spec() Spec
	Len() int
	Int64(row, k int) int64
	Float64(row, k int) float64
	Bool(row, k int) bool
	Uint8(row, k int) uint8
	String(row, k int) string
}

// Value returns the value of row as a Go value: a scalar for one dimensional
// columns and a slice otherwise.
func Value(a Array, row int) interface{} {
	spec := a.Spec()
	dim := spec.Dimension()
	if dim == 1 {
		return scalar(a, spec.Kind, row, 0)
	}
	switch spec.Kind {
	case Int64:
		v := make([]int64, dim)
		for k := range v {
			v[k] = a.Int64(row, k)
		}
		return v
	case Float64:
		v := make([]float64, dim)
		for k := range v {
			v[k] = a.Float64(row, k)
		}
		return v
	case String:
		v := make([]string, dim)
		for k := range v {
			v[k] = a.String(row, k)
		}
		return v
	}
	v := make([]interface{}, dim)
	for k := range v {
		v[k] = scalar(a, spec.Kind, row, k)
	}
	return v
}

func scalar(a Array, kind Kind, row, k int) interface{} {
	switch kind {
	case Int64:
		return a.Int64(row, k)
	case Float64:
		return a.Float64(row, k)
	case Bool:
		return a.Bool(row, k)
	case Uint8:
		return a.Uint8(row, k)
	case String:
		return a.String(row, k)
	}
	return nil
}

type window struct {
	Array
	offset, n int
}

// Slice returns a view of rows [i, j) of a.
func Slice(a Array, i, j int) Array {
	if i < 0 || j < i || j > a.Len() {
		panic(fmt.Sprintf("columns: slice [%d:%d] out of range with length %d", i, j, a.Len()))
	}
	if w, ok := a.(*window); ok {
		return &window{w.Array, w.offset + i, j - i}
	}
	return &window{a, i, j - i}
}

func (w *window) Len() int                   { return w.n }
func (w *window) Int64(row, k int) int64     { return w.Array.Int64(w.offset+row, k) }
func (w *window) Float64(row, k int) float64 { return w.Array.Float64(w.offset+row, k) }
func (w *window) Bool(row, k int) bool       { return w.Array.Bool(w.offset+row, k) }
func (w *window) Uint8(row, k int) uint8     { return w.Array.Uint8(w.offset+row, k) }
func (w *window) String(row, k int) string   { return w.Array.String(w.offset+row, k) }

// Writer writes one partition.
type Writer interface {
	// Write appends the rows held in buffers, one buffer per declared column
	// in declaration order.
	Write(buffers []*Buffer) error
	// Close flushes the partition to stable storage and publishes it.
	Close() error
	// Abort discards everything written so far.
	Abort() error
}

// Partition is a published partition opened for reading.
type Partition interface {
	NumRows() int
	Specs() []Spec
	// Column returns the named column, or false if it is not stored.
	Column(name string) (Array, bool)
	Close() error
}

// Backend creates and opens partitions stored under a directory.
type Backend interface {
	Name() string
	Create(dir string, specs []Spec) (Writer, error)
	Open(dir string) (Partition, error)
	// Exists reports whether a published partition is stored under dir.
	Exists(dir string) bool
}

// NewBackend returns the backend with the given name.
func NewBackend(name string) (Backend, error) {
	switch strings.ToLower(name) {
	case "", "arrow":
		return ArrowBackend{}, nil
	case "flat":
		return FlatBackend{}, nil
	}
	return nil, fmt.Errorf("unknown column backend %q", name)
}

func checkSpecs(specs []Spec) error {
	seen := make(map[string]bool)
	for _, spec := range specs {
		if err := spec.Validate(); err != nil {
			return err
		}
		if seen[spec.Name] {
			return fmt.Errorf("column %s declared twice", spec.Name)
		}
		seen[spec.Name] = true
	}
	return nil
}
