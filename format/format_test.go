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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/googlegenomics/trackstore/trackerr"
)

func TestClassify(t *testing.T) {
	testCases := []struct {
		columns     ColumnSet
		want        Name
		reprIsDense bool
	}{
		{NewColumnSet(Start), Points, false},
		{NewColumnSet(Start, Value), ValuedPoints, false},
		{NewColumnSet(Start, End), Segments, false},
		{NewColumnSet(Start, End, Value, Strand, ID), ValuedSegments, false},
		{NewColumnSet(End), GenomePartition, false},
		{NewColumnSet(End, Value), StepFunction, false},
		{NewColumnSet(Value), Function, true},
		{NewColumnSet(Start, Edges), LinkedPoints, false},
		{NewColumnSet(Start, Value, Edges), LinkedValuedPoints, false},
		{NewColumnSet(Start, End, Edges, Weights), LinkedSegments, false},
		{NewColumnSet(Start, End, Value, Edges), LinkedValuedSegments, false},
		{NewColumnSet(End, Edges), LinkedGenomePartition, false},
		{NewColumnSet(End, Value, Edges), LinkedStepFunction, false},
		{NewColumnSet(Value, Edges), LinkedFunction, true},
		{NewColumnSet(Edges, ID), LinkedBasePairs, true},
	}
	for _, tc := range testCases {
		t.Run(tc.want.String(), func(t *testing.T) {
			got, err := Classify(tc.columns, TypeInfo{}, TypeInfo{})
			require.NoError(t, err)
			assert.Equal(t, tc.want, got.Name())
			assert.Equal(t, tc.reprIsDense, got.ReprIsDense())
		})
	}
}

// Every non-empty combination of the four axis columns maps to its own name.
func TestClassifyTotal(t *testing.T) {
	seen := make(map[Name]ColumnSet)
	axes := []Column{Start, End, Value, Edges}
	for mask := 1; mask < 1<<len(axes); mask++ {
		var columns ColumnSet
		for i, c := range axes {
			if mask&(1<<i) != 0 {
				columns = columns.With(c)
			}
		}
		f, err := Classify(columns, TypeInfo{}, TypeInfo{})
		require.NoError(t, err, "columns %v", columns)
		if prev, ok := seen[f.Name()]; ok {
			t.Errorf("%v and %v both classify as %v", prev, columns, f.Name())
		}
		seen[f.Name()] = columns
		assert.True(t, f.IsCompatibleWith(ReqOf(f)), "%v is not compatible with its own requirement", f)
	}
	assert.Len(t, seen, 15)

	_, err := Classify(0, TypeInfo{}, TypeInfo{})
	assert.True(t, errors.Is(err, trackerr.ErrNotSupported))
}

func TestClassifyErrors(t *testing.T) {
	testCases := []struct {
		name    string
		columns ColumnSet
		value   TypeInfo
		weight  TypeInfo
		want    error
	}{
		{"value type without column", NewColumnSet(Start), TypeInfo{Type: Number}, TypeInfo{}, trackerr.ErrFormatConflict},
		{"weight type without column", NewColumnSet(Start, Edges), TypeInfo{}, TypeInfo{Type: Number}, trackerr.ErrFormatConflict},
		{"weights without edges", NewColumnSet(Start, Weights), TypeInfo{}, TypeInfo{}, trackerr.ErrNotSupported},
		{"wide mean", NewColumnSet(Start, Value), TypeInfo{Type: MeanSD, Dim: 3}, TypeInfo{}, trackerr.ErrFormatConflict},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Classify(tc.columns, tc.value, tc.weight)
			assert.True(t, errors.Is(err, tc.want), "Classify() = %v, want %v", err, tc.want)
		})
	}
}

func TestMerge(t *testing.T) {
	a := Req{Dense: False, Value: TypeInfo{Type: Number}}
	b := Req{Interval: True, Value: TypeInfo{Type: Number, Dim: 1}}
	got, err := Merge(a, b)
	require.NoError(t, err)
	assert.Equal(t, Req{Dense: False, Interval: True, Value: TypeInfo{Type: Number}}, got)

	_, err = Merge(got, Req{Dense: True})
	var conflict *trackerr.Error
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, trackerr.FormatConflict, conflict.Kind)
	assert.Equal(t, FieldDense, conflict.Attribute)
}

func TestIsCompatibleWith(t *testing.T) {
	f, err := Classify(NewColumnSet(Start, End, Value), TypeInfo{Type: Integer}, TypeInfo{})
	require.NoError(t, err)

	testCases := []struct {
		name       string
		req        Req
		exceptions []string
		want       bool
	}{
		{"empty", Req{}, nil, true},
		{"name", Req{Name: ValuedSegments}, nil, true},
		{"wrong name", Req{Name: Segments}, nil, false},
		{"wrong value type", Req{Value: TypeInfo{Type: Number}}, nil, false},
		{"excepted value type", Req{Value: TypeInfo{Type: Number}}, []string{FieldValue}, true},
		{"dense", Req{Dense: True}, nil, false},
		{"excepted dense", Req{Dense: True}, []string{FieldDense}, true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := f.IsCompatibleWith(tc.req, tc.exceptions...); got != tc.want {
				t.Errorf("IsCompatibleWith(%v, %v) = %v, want %v", tc.req, tc.exceptions, got, tc.want)
			}
		})
	}
}

func TestParseName(t *testing.T) {
	for _, s := range shapes {
		got, err := ParseName(s.name.String())
		require.NoError(t, err)
		assert.Equal(t, s.name, got)
		assert.Equal(t, s.shape, s.name.Shape())
	}
	_, err := ParseName("Bogus")
	assert.Error(t, err)
}
