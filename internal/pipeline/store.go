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
	"fmt"
	"math"
	"strings"

	"github.com/googlegenomics/trackstore/format"
	"github.com/googlegenomics/trackstore/genomics"
	"github.com/googlegenomics/trackstore/internal/collector"
	"github.com/googlegenomics/trackstore/internal/columns"
)

// writeBatchRows is the number of rows handed to a column writer at once.
const writeBatchRows = 1 << 16

// rowCoordinates gives the coordinates of rows for the bin index.
type rowCoordinates []genomics.Element

func (r rowCoordinates) Start(row int64) int64 { return r[row].Start }
func (r rowCoordinates) End(row int64) int64   { return r[row].End }

// ruleRows is the content of a track under one overlap rule in row order.
type ruleRows struct {
	elements []genomics.Element
	regions  []genomics.BoundingRegion
	counts   map[string]int64
}

func flatten(blocks []block) *ruleRows {
	r := &ruleRows{counts: make(map[string]int64)}
	for _, b := range blocks {
		r.elements = append(r.elements, b.elements...)
		r.regions = append(r.regions, genomics.BoundingRegion{Region: b.region, ElementCount: int64(len(b.elements))})
		if len(b.elements) > 0 {
			r.counts[b.region.Chromosome] += int64(len(b.elements))
		}
	}
	return r
}

// writeColumns writes rows to w in batches.
func writeColumns(w columns.Writer, specs []columns.Spec, elements []genomics.Element) error {
	for from := 0; from < len(elements); from += writeBatchRows {
		to := min(from+writeBatchRows, len(elements))
		buffers := make([]*columns.Buffer, len(specs))
		for i, spec := range specs {
			buffers[i] = columns.NewBuffer(spec, to-from)
		}
		for row := from; row < to; row++ {
			for _, b := range buffers {
				if err := appendColumn(b, &elements[row]); err != nil {
					return fmt.Errorf("row %d (%v): %v", row, elements[row].Region(), err)
				}
			}
		}
		if err := w.Write(buffers); err != nil {
			return err
		}
	}
	return nil
}

func appendColumn(b *columns.Buffer, e *genomics.Element) error {
	n := b.Spec.Dimension()
	switch b.Spec.Name {
	case format.Start.String():
		b.Int64 = append(b.Int64, e.Start)
	case format.End.String():
		b.Int64 = append(b.Int64, e.End)
	case format.Value.String():
		return appendValues(b, []interface{}{e.Value}, n)
	case format.Strand.String():
		b.Uint8 = append(b.Uint8, uint8(e.Strand))
	case format.ID.String():
		b.String = append(b.String, e.ID)
	case format.Edges.String():
		if len(e.Edges) > n {
			return fmt.Errorf("%d edges exceed %d", len(e.Edges), n)
		}
		b.String = append(b.String, e.Edges...)
		for i := len(e.Edges); i < n; i++ {
			b.String = append(b.String, "")
		}
	case format.Weights.String():
		return appendValues(b, e.Weights, n)
	default:
		name := strings.TrimPrefix(b.Spec.Name, collector.ExtraColumnName(""))
		if name == b.Spec.Name {
			return fmt.Errorf("unknown column %s", b.Spec.Name)
		}
		b.String = append(b.String, e.Extra[name])
	}
	return nil
}

// appendValues appends the scalars of values followed by zeros up to n.
func appendValues(b *columns.Buffer, values []interface{}, n int) error {
	var scalars []interface{}
	for _, v := range values {
		scalars = appendScalars(scalars, v)
	}
	if len(scalars) > n {
		return fmt.Errorf("%d values exceed dimension %d of column %s", len(scalars), n, b.Spec.Name)
	}
	for len(scalars) < n {
		scalars = append(scalars, nil)
	}
	for _, v := range scalars {
		if err := appendScalar(b, v); err != nil {
			return err
		}
	}
	return nil
}

func appendScalars(scalars []interface{}, v interface{}) []interface{} {
	switch v := v.(type) {
	case []float64:
		for _, x := range v {
			scalars = append(scalars, x)
		}
	case []int64:
		for _, x := range v {
			scalars = append(scalars, x)
		}
	case []string:
		for _, x := range v {
			scalars = append(scalars, x)
		}
	case []interface{}:
		for _, x := range v {
			scalars = appendScalars(scalars, x)
		}
	case nil:
	default:
		scalars = append(scalars, v)
	}
	return scalars
}

func appendScalar(b *columns.Buffer, v interface{}) error {
	switch b.Spec.Kind {
	case columns.Float64:
		switch v := v.(type) {
		case nil:
			b.Float64 = append(b.Float64, 0)
		case float64:
			b.Float64 = append(b.Float64, v)
		case int64:
			b.Float64 = append(b.Float64, float64(v))
		case int:
			b.Float64 = append(b.Float64, float64(v))
		default:
			return fmt.Errorf("cannot store %T in number column %s", v, b.Spec.Name)
		}
	case columns.Int64:
		switch v := v.(type) {
		case nil:
			b.Int64 = append(b.Int64, 0)
		case int64:
			b.Int64 = append(b.Int64, v)
		case int:
			b.Int64 = append(b.Int64, int64(v))
		case float64:
			if v != math.Trunc(v) {
				return fmt.Errorf("%v is not an integer", v)
			}
			b.Int64 = append(b.Int64, int64(v))
		default:
			return fmt.Errorf("cannot store %T in integer column %s", v, b.Spec.Name)
		}
	case columns.Bool:
		switch v := v.(type) {
		case nil:
			b.Bool = append(b.Bool, false)
		case bool:
			b.Bool = append(b.Bool, v)
		default:
			return fmt.Errorf("cannot store %T in boolean column %s", v, b.Spec.Name)
		}
	case columns.String:
		switch v := v.(type) {
		case nil:
			b.String = append(b.String, "")
		case string:
			b.String = append(b.String, v)
		default:
			return fmt.Errorf("cannot store %T in string column %s", v, b.Spec.Name)
		}
	default:
		return fmt.Errorf("unsupported column kind %v", b.Spec.Kind)
	}
	return nil
}
