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

import "fmt"

// Strand is the orientation of an element.
type Strand uint8

const (
	NoStrand Strand = iota
	Plus
	Minus
)

func (s Strand) String() string {
	switch s {
	case Plus:
		return "+"
	case Minus:
		return "-"
	}
	return "."
}

// ParseStrand parses "+", "-" or ".".
func ParseStrand(s string) (Strand, error) {
	switch s {
	case "+":
		return Plus, nil
	case "-":
		return Minus, nil
	case ".", "":
		return NoStrand, nil
	}
	return NoStrand, fmt.Errorf("invalid strand %q", s)
}

// Element is a single genomic record.  Which fields are meaningful depends on
// the columns declared by the stream that produced it.
//
// Value holds a float64, int64, string, bool or, for vector types, a slice of
// float64 or int64.  Weights holds one such value per edge.
type Element struct {
	Chromosome string
	Start, End int64
	Value      interface{}
	Strand     Strand
	ID         string
	Edges      []string
	Weights    []interface{}
	Extra      map[string]string
}

// Region returns the region covered by the element.
func (e *Element) Region() Region {
	return Region{Chromosome: e.Chromosome, Start: e.Start, End: e.End}
}
