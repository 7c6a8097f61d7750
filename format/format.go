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

// Package format classifies tracks into a closed taxonomy of shapes based on
// the columns they carry.
//
// A track is dense if it has no start column, an interval if it has an end
// column, linked if it has an edges column and valued if it has a value
// column.  The four axes select exactly one Name.
package format

import (
	"fmt"

	"github.com/googlegenomics/trackstore/trackerr"
)

// TrackFormat describes the shape of a track.  The zero value is not valid;
// use Classify.
type TrackFormat struct {
	name        Name
	columns     ColumnSet
	reprIsDense bool
	value       TypeInfo
	weight      TypeInfo
}

// Classify returns the format of a track with the given columns and value and
// weight types.  A value or weight column without a declared type is taken to
// hold numbers.
func Classify(columns ColumnSet, value, weight TypeInfo) (TrackFormat, error) {
	if value.Type != NoType && !columns.Has(Value) {
		return TrackFormat{}, trackerr.New(trackerr.FormatConflict, "value type %v declared without a value column", value).WithAttribute("value")
	}
	if weight.Type != NoType && !columns.Has(Weights) {
		return TrackFormat{}, trackerr.New(trackerr.FormatConflict, "weight type %v declared without a weights column", weight).WithAttribute("weight")
	}
	if columns.Has(Weights) && !columns.Has(Edges) {
		return TrackFormat{}, trackerr.New(trackerr.NotSupported, "weights without edges")
	}
	if columns.Has(Value) && value.Type == NoType {
		value.Type = Number
	}
	if columns.Has(Weights) && weight.Type == NoType {
		weight.Type = Number
	}
	if err := checkDimension(value); err != nil {
		return TrackFormat{}, err.WithAttribute("value")
	}
	if err := checkDimension(weight); err != nil {
		return TrackFormat{}, err.WithAttribute("weight")
	}

	shape := Shape{
		Dense:    !columns.Has(Start),
		Interval: columns.Has(End),
		Linked:   columns.Has(Edges),
		Valued:   columns.Has(Value),
	}
	name := NameOf(shape)
	if name == Unknown {
		return TrackFormat{}, trackerr.New(trackerr.NotSupported, "no track format has columns %q", columns.String())
	}
	return TrackFormat{
		name:        name,
		columns:     columns,
		reprIsDense: !columns.Has(Start) && !columns.Has(End) && (columns.Has(Value) || columns.Has(Edges)),
		value:       value,
		weight:      weight,
	}, nil
}

func checkDimension(info TypeInfo) *trackerr.Error {
	if info.Dim < 0 {
		return trackerr.New(trackerr.FormatConflict, "negative dimension %d", info.Dim)
	}
	if info.Type == MeanSD && info.Dim > 2 {
		return trackerr.New(trackerr.FormatConflict, "mean and standard deviation have dimension 2, got %d", info.Dim)
	}
	return nil
}

// Name returns the canonical name of the format.
func (f TrackFormat) Name() Name { return f.name }

// Columns returns the columns of the format.
func (f TrackFormat) Columns() ColumnSet { return f.columns }

// IsDense reports whether the track covers every base pair of its bounding
// regions, i.e. it has no start column.
func (f TrackFormat) IsDense() bool { return !f.columns.Has(Start) }

// IsInterval reports whether elements have an end coordinate.
func (f TrackFormat) IsInterval() bool { return f.columns.Has(End) }

// IsLinked reports whether elements have edges.
func (f TrackFormat) IsLinked() bool { return f.columns.Has(Edges) }

// IsValued reports whether elements have a value.
func (f TrackFormat) IsValued() bool { return f.columns.Has(Value) }

// ReprIsDense reports whether the track is stored as one row per base pair.
func (f TrackFormat) ReprIsDense() bool { return f.reprIsDense }

// IsPartition reports whether the track is stored as a list of partition
// boundaries, where each row's start is the previous row's end.
func (f TrackFormat) IsPartition() bool { return f.IsDense() && f.IsInterval() }

// IsPoints reports whether elements have a start but no end.
func (f TrackFormat) IsPoints() bool { return !f.IsDense() && !f.IsInterval() }

// HasStrand reports whether elements have a strand.
func (f TrackFormat) HasStrand() bool { return f.columns.Has(Strand) }

// HasID reports whether elements have an id.
func (f TrackFormat) HasID() bool { return f.columns.Has(ID) }

// HasWeights reports whether edges carry weights.
func (f TrackFormat) HasWeights() bool { return f.columns.Has(Weights) }

// Value returns the type of the value column.
func (f TrackFormat) Value() TypeInfo { return f.value }

// Weight returns the type of the weights column.
func (f TrackFormat) Weight() TypeInfo { return f.weight }

func (f TrackFormat) String() string {
	s := f.name.String()
	if f.IsValued() {
		s += fmt.Sprintf(" (%v)", f.value)
	}
	if f.HasWeights() {
		s += fmt.Sprintf(" (weights: %v)", f.weight)
	}
	return s
}
