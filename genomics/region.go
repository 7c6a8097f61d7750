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

// Package genomics contains definitions related to Genomic data.
package genomics

import (
	"fmt"
	"strconv"
	"strings"
)

// WholeGenome defines a Region that matches every chromosome.
var WholeGenome = Region{}

// Region defines a region of genomic interest.
type Region struct {
	// Chromosome specifies the chromosome to match.  If it is empty, any
	// chromosome matches the region.
	Chromosome string
	// Start and End specify the half open range [Start, End) in base pairs
	// relative to the chromosome.
	Start, End int64
}

// IsWholeGenome reports whether region is the whole genome placeholder.
func (region Region) IsWholeGenome() bool {
	return region.Chromosome == ""
}

// Len returns the number of base pairs covered by region.
func (region Region) Len() int64 {
	if region.End < region.Start {
		return 0
	}
	return region.End - region.Start
}

// Contains reports whether other lies entirely within region.
func (region Region) Contains(other Region) bool {
	return region.Chromosome == other.Chromosome && region.Start <= other.Start && other.End <= region.End
}

// Overlaps reports whether region and other share at least one base pair.
func (region Region) Overlaps(other Region) bool {
	return region.Chromosome == other.Chromosome && region.Start < other.End && other.Start < region.End
}

func (region Region) String() string {
	if region.IsWholeGenome() {
		return "*"
	}
	return fmt.Sprintf("%s:%d-%d", region.Chromosome, region.Start, region.End)
}

// ParseRegion parses a region of the form "chr1:100-200".  A bare chromosome
// name has Start and End set to zero; callers resolve it against a Genome.
func ParseRegion(s string) (Region, error) {
	if s == "" || s == "*" {
		return WholeGenome, nil
	}
	colon := strings.LastIndexByte(s, ':')
	if colon < 0 {
		return Region{Chromosome: s}, nil
	}
	region := Region{Chromosome: s[:colon]}
	if region.Chromosome == "" {
		return Region{}, fmt.Errorf("missing chromosome in %q", s)
	}
	bounds := strings.SplitN(strings.ReplaceAll(s[colon+1:], ",", ""), "-", 2)
	if len(bounds) != 2 {
		return Region{}, fmt.Errorf("missing end coordinate in %q", s)
	}
	var err error
	if region.Start, err = strconv.ParseInt(bounds[0], 10, 64); err != nil {
		return Region{}, fmt.Errorf("parsing start: %v", err)
	}
	if region.End, err = strconv.ParseInt(bounds[1], 10, 64); err != nil {
		return Region{}, fmt.Errorf("parsing end: %v", err)
	}
	if region.Start < 0 || region.End < region.Start {
		return Region{}, fmt.Errorf("invalid range %d-%d", region.Start, region.End)
	}
	return region, nil
}

// BoundingRegion is a contiguous region known to have been fully ingested
// together with the number of elements that fall within it.
type BoundingRegion struct {
	Region
	ElementCount int64
}

func (br BoundingRegion) String() string {
	return fmt.Sprintf("%v (%d elements)", br.Region, br.ElementCount)
}
