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

package format

import (
	"fmt"
	"strings"
)

// Column identifies one of the standard track columns.
type Column uint8

const (
	Start Column = iota
	End
	Value
	Strand
	ID
	Edges
	Weights
	Extra
	numColumns
)

var columnNames = [numColumns]string{"start", "end", "val", "strand", "id", "edges", "weights", "extra"}

func (c Column) String() string {
	if c < numColumns {
		return columnNames[c]
	}
	return fmt.Sprintf("Column(%d)", uint8(c))
}

// ParseColumn returns the column named name.
func ParseColumn(name string) (Column, error) {
	for i, n := range columnNames {
		if n == name {
			return Column(i), nil
		}
	}
	return 0, fmt.Errorf("unknown column %q", name)
}

// ColumnSet is a set of columns.
type ColumnSet uint16

// NewColumnSet returns the set containing columns.
func NewColumnSet(columns ...Column) ColumnSet {
	var set ColumnSet
	for _, c := range columns {
		set = set.With(c)
	}
	return set
}

// Has reports whether c is in the set.
func (set ColumnSet) Has(c Column) bool {
	return set&(1<<c) != 0
}

// With returns the set with c added.
func (set ColumnSet) With(c Column) ColumnSet {
	return set | 1<<c
}

// Without returns the set with c removed.
func (set ColumnSet) Without(c Column) ColumnSet {
	return set &^ (1 << c)
}

// Columns returns the members of the set in column order.
func (set ColumnSet) Columns() []Column {
	var columns []Column
	for c := Column(0); c < numColumns; c++ {
		if set.Has(c) {
			columns = append(columns, c)
		}
	}
	return columns
}

func (set ColumnSet) String() string {
	var names []string
	for _, c := range set.Columns() {
		names = append(names, c.String())
	}
	return strings.Join(names, ",")
}

// ValueType is the scalar type of a value or edge weight column.
type ValueType uint8

const (
	NoType ValueType = iota
	Number
	Integer
	Category
	Character
	Boolean
	// MeanSD is a pair of numbers holding a mean and a standard deviation.
	MeanSD
	// Population is a vector of integer counts.
	Population
)

var valueTypeNames = []string{"", "number", "integer", "category", "character", "boolean", "mean_sd", "population"}

func (t ValueType) String() string {
	if int(t) < len(valueTypeNames) {
		return valueTypeNames[t]
	}
	return fmt.Sprintf("ValueType(%d)", uint8(t))
}

// ParseValueType returns the value type named name.
func ParseValueType(name string) (ValueType, error) {
	for i, n := range valueTypeNames {
		if n == name {
			return ValueType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown value type %q", name)
}

// MarshalText implements encoding.TextMarshaler.
func (t ValueType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *ValueType) UnmarshalText(text []byte) error {
	v, err := ParseValueType(string(text))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// TypeInfo describes the scalar type and per-row dimension of a value or
// weight column.  A dimension of 0 or 1 denotes a scalar.
type TypeInfo struct {
	Type ValueType `json:"type,omitempty"`
	Dim  int       `json:"dim,omitempty"`
}

// Dimension returns the number of scalars per row.
func (info TypeInfo) Dimension() int {
	switch {
	case info.Type == MeanSD:
		return 2
	case info.Dim < 1:
		return 1
	}
	return info.Dim
}

// IsVector reports whether more than one scalar is stored per row.
func (info TypeInfo) IsVector() bool {
	return info.Type != MeanSD && info.Dim > 1
}

func (info TypeInfo) String() string {
	if info.Type == NoType {
		return "none"
	}
	if info.IsVector() {
		return fmt.Sprintf("%s vector (%d)", info.Type, info.Dim)
	}
	return info.Type.String()
}
