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

package genomics

import (
	"io"
	"testing"
)

func TestParseRegion(t *testing.T) {
	testCases := []struct {
		input string
		want  Region
		ok    bool
	}{
		{"chr1:120-160", Region{"chr1", 120, 160}, true},
		{"chr1:1,000-2,000", Region{"chr1", 1000, 2000}, true},
		{"chrX", Region{Chromosome: "chrX"}, true},
		{"", WholeGenome, true},
		{"*", WholeGenome, true},
		{"HLA-A*01:01:0-10", Region{"HLA-A*01:01", 0, 10}, true},
		{"chr1:160-120", Region{}, false},
		{"chr1:a-10", Region{}, false},
		{"chr1:10", Region{}, false},
		{":1-2", Region{}, false},
	}
	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			got, err := ParseRegion(tc.input)
			if (err == nil) != tc.ok {
				t.Fatalf("ParseRegion(%q) returned error %v, want ok %v", tc.input, err, tc.ok)
			}
			if got != tc.want {
				t.Errorf("ParseRegion(%q) = %v, want %v", tc.input, got, tc.want)
			}
		})
	}
}

func TestRegionRelations(t *testing.T) {
	outer := Region{"chr1", 100, 200}
	testCases := []struct {
		name               string
		other              Region
		contains, overlaps bool
	}{
		{"inside", Region{"chr1", 120, 160}, true, true},
		{"same", outer, true, true},
		{"straddles start", Region{"chr1", 50, 150}, false, true},
		{"touches end", Region{"chr1", 200, 250}, false, false},
		{"other chromosome", Region{"chr2", 120, 160}, false, false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := outer.Contains(tc.other); got != tc.contains {
				t.Errorf("Contains(%v) = %v, want %v", tc.other, got, tc.contains)
			}
			if got := outer.Overlaps(tc.other); got != tc.overlaps {
				t.Errorf("Overlaps(%v) = %v, want %v", tc.other, got, tc.overlaps)
			}
		})
	}
}

func TestGenome(t *testing.T) {
	genome := Genome{Name: "test", Chromosomes: []Chromosome{{"chr1", 3000}, {"chr2", 500}}}
	if err := genome.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}

	got, err := genome.Resolve(Region{Chromosome: "chr2"})
	if err != nil {
		t.Fatalf("Resolve() = %v", err)
	}
	if want := (Region{"chr2", 0, 500}); got != want {
		t.Errorf("Resolve() = %v, want %v", got, want)
	}
	if _, err := genome.Resolve(Region{"chr2", 0, 501}); err == nil {
		t.Errorf("Resolve() accepted a region past the chromosome end")
	}
	if _, err := genome.Resolve(Region{"chr3", 0, 1}); err == nil {
		t.Errorf("Resolve() accepted an unknown chromosome")
	}

	bad := Genome{Name: "bad", Chromosomes: []Chromosome{{"chr1", 10}, {"chr1", 20}}}
	if err := bad.Validate(); err == nil {
		t.Errorf("Validate() accepted a duplicate chromosome")
	}
}

func TestSliceStream(t *testing.T) {
	s := NewSliceStream(StreamInfo{Version: 2}, []Element{{Chromosome: "chr1", Start: 1, End: 2}})
	if _, err := s.Next(); err != nil {
		t.Fatalf("Next() = %v", err)
	}
	if _, err := s.Next(); err != io.EOF {
		t.Fatalf("Next() = %v, want io.EOF", err)
	}
	if got, want := s.Info().Version, 2; got != want {
		t.Errorf("Info().Version = %d, want %d", got, want)
	}
}
