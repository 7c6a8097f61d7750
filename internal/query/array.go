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
	"fmt"

	"github.com/googlegenomics/trackstore/internal/columns"
)

// int64Func is an Int64 column computed from the row number.
type int64Func struct {
	name string
	n    int
	f    func(row int) int64
}

func (a *int64Func) Spec() columns.Spec { return columns.Spec{Name: a.name, Kind: columns.Int64} }
func (a *int64Func) Len() int           { return a.n }

func (a *int64Func) Int64(row, k int) int64 {
	if k != 0 {
		panic(fmt.Sprintf("query: column %s has one value per row", a.name))
	}
	return a.f(row)
}

func (a *int64Func) Float64(row, k int) float64 { panic(a.wrongKind()) }
func (a *int64Func) Bool(row, k int) bool       { panic(a.wrongKind()) }
func (a *int64Func) Uint8(row, k int) uint8     { panic(a.wrongKind()) }
func (a *int64Func) String(row, k int) string   { panic(a.wrongKind()) }

func (a *int64Func) wrongKind() string {
	return fmt.Sprintf("query: column %s holds int64 values", a.name)
}

// emptyArray is a column without rows.
type emptyArray struct {
	spec columns.Spec
}

func (a emptyArray) Spec() columns.Spec { return a.spec }
func (a emptyArray) Len() int           { return 0 }

func (a emptyArray) Int64(row, k int) int64     { panic(a.outOfRange(row)) }
func (a emptyArray) Float64(row, k int) float64 { panic(a.outOfRange(row)) }
func (a emptyArray) Bool(row, k int) bool       { panic(a.outOfRange(row)) }
func (a emptyArray) Uint8(row, k int) uint8     { panic(a.outOfRange(row)) }
func (a emptyArray) String(row, k int) string   { panic(a.outOfRange(row)) }

func (a emptyArray) outOfRange(row int) string {
	return fmt.Sprintf("query: row %d of empty column %s", row, a.spec.Name)
}

// cropped clamps the values of an Int64 column to [lo, hi].
func cropped(a columns.Array, lo, hi int64) columns.Array {
	return &int64Func{name: a.Spec().Name, n: a.Len(), f: func(row int) int64 {
		v := a.Int64(row, 0)
		if v < lo {
			return lo
		}
		if v > hi {
			return hi
		}
		return v
	}}
}

// selection is a view of the listed rows of an array.
type selection struct {
	columns.Array
	rows []int
}

func (s *selection) Len() int                   { return len(s.rows) }
func (s *selection) Int64(row, k int) int64     { return s.Array.Int64(s.rows[row], k) }
func (s *selection) Float64(row, k int) float64 { return s.Array.Float64(s.rows[row], k) }
func (s *selection) Bool(row, k int) bool       { return s.Array.Bool(s.rows[row], k) }
func (s *selection) Uint8(row, k int) uint8     { return s.Array.Uint8(s.rows[row], k) }
func (s *selection) String(row, k int) string   { return s.Array.String(s.rows[row], k) }

// rowSet is the set of stored rows answering a query: the rows [lo, hi), or
// the listed rows if sel is non-nil.
type rowSet struct {
	lo, hi int
	sel    []int
}

func (rs rowSet) len() int {
	if rs.sel != nil {
		return len(rs.sel)
	}
	return rs.hi - rs.lo
}

func (rs rowSet) view(a columns.Array) columns.Array {
	if rs.sel != nil {
		return &selection{a, rs.sel}
	}
	return columns.Slice(a, rs.lo, rs.hi)
}
