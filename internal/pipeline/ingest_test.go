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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/googlegenomics/trackstore/genomics"
	"github.com/googlegenomics/trackstore/internal/source"
)

func TestCluster(t *testing.T) {
	region := genomics.Region{Chromosome: "chr1", Start: 0, End: 1000}
	testCases := []struct {
		name     string
		elements []genomics.Element
		want     []genomics.Element
	}{
		{"disjoint",
			[]genomics.Element{segment("chr1", 10, 20), segment("chr1", 20, 30)},
			[]genomics.Element{segment("chr1", 10, 20), segment("chr1", 20, 30)}},
		{"chain",
			[]genomics.Element{
				{Chromosome: "chr1", Start: 10, End: 50, ID: "first"},
				{Chromosome: "chr1", Start: 20, End: 30, ID: "second"},
				{Chromosome: "chr1", Start: 40, End: 60, ID: "third"},
				{Chromosome: "chr1", Start: 70, End: 80, ID: "fourth"},
			},
			[]genomics.Element{
				{Chromosome: "chr1", Start: 10, End: 60, ID: "first"},
				{Chromosome: "chr1", Start: 70, End: 80, ID: "fourth"},
			}},
		{"equal points",
			[]genomics.Element{segment("chr1", 5, 6), segment("chr1", 5, 6), segment("chr1", 6, 7)},
			[]genomics.Element{segment("chr1", 5, 6), segment("chr1", 6, 7)}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := cluster([]block{{region: region, elements: tc.elements}})
			assert.Equal(t, tc.want, got[0].elements)
		})
	}
}

func TestPlace(t *testing.T) {
	blocks := []block{
		{region: genomics.Region{Chromosome: "chr1", Start: 0, End: 100}},
		{region: genomics.Region{Chromosome: "chr1", Start: 200, End: 300}},
		{region: genomics.Region{Chromosome: "chr1", Start: 400, End: 500}},
	}
	elements := []genomics.Element{segment("chr1", 10, 20), segment("chr1", 50, 100), segment("chr1", 450, 460)}
	if err := place(blocks, elements, false); err != nil {
		t.Fatalf("place() = %v", err)
	}
	assert.Len(t, blocks[0].elements, 2)
	assert.Len(t, blocks[1].elements, 0)
	assert.Len(t, blocks[2].elements, 1)
}

func TestProvenance(t *testing.T) {
	a := source.FileInfo{Path: "a.jsonl", ModTime: testTime}
	b := source.FileInfo{Path: "b.jsonl", ModTime: testTime}
	base := Provenance([]source.FileInfo{a, b}, 1, "1")
	assert.Equal(t, base, Provenance([]source.FileInfo{b, a}, 1, "1"))

	touched := b
	touched.ModTime = touched.ModTime.Add(time.Second)
	for name, other := range map[string]string{
		"modification time": Provenance([]source.FileInfo{a, touched}, 1, "1"),
		"source version":    Provenance([]source.FileInfo{a, b}, 2, "1"),
		"pipeline version":  Provenance([]source.FileInfo{a, b}, 1, "2"),
		"file list":         Provenance([]source.FileInfo{a}, 1, "1"),
	} {
		assert.NotEqual(t, base, other, name)
	}
}

func TestStateTransitions(t *testing.T) {
	testCases := []struct {
		from, to State
		want     bool
	}{
		{NeedsCheck, SkipUnchanged, true},
		{NeedsCheck, Ingesting, false},
		{Stale, RemovingOutdated, true},
		{SortAndMergeChromosomeFragments, SanityCheck, true},
		{Finalize, Done, true},
		{Ingesting, Failed, true},
		{Done, Failed, false},
	}
	for _, tc := range testCases {
		if got := tc.from.canMoveTo(tc.to); got != tc.want {
			t.Errorf("%v.canMoveTo(%v) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}
