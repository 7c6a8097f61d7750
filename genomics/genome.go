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
	"errors"
	"fmt"
)

// Chromosome is a named sequence of a genome.
type Chromosome struct {
	Name   string `yaml:"name" json:"name"`
	Length int64  `yaml:"length" json:"length"`
}

// Genome is a named, ordered list of chromosomes.
type Genome struct {
	Name        string       `yaml:"name" json:"name"`
	Chromosomes []Chromosome `yaml:"chromosomes" json:"chromosomes"`
}

// Validate checks that genome has a name and uniquely named chromosomes of
// positive length.
func (genome *Genome) Validate() error {
	if genome.Name == "" {
		return errors.New("genome has no name")
	}
	if len(genome.Chromosomes) == 0 {
		return fmt.Errorf("genome %s has no chromosomes", genome.Name)
	}
	seen := make(map[string]bool)
	for _, chr := range genome.Chromosomes {
		if chr.Name == "" {
			return fmt.Errorf("genome %s has an unnamed chromosome", genome.Name)
		}
		if seen[chr.Name] {
			return fmt.Errorf("genome %s lists chromosome %s twice", genome.Name, chr.Name)
		}
		if chr.Length <= 0 {
			return fmt.Errorf("chromosome %s has length %d", chr.Name, chr.Length)
		}
		seen[chr.Name] = true
	}
	return nil
}

// Length returns the length of the named chromosome.
func (genome *Genome) Length(name string) (int64, bool) {
	for _, chr := range genome.Chromosomes {
		if chr.Name == name {
			return chr.Length, true
		}
	}
	return 0, false
}

// Region returns the region covering the whole named chromosome.
func (genome *Genome) Region(name string) (Region, error) {
	length, ok := genome.Length(name)
	if !ok {
		return Region{}, fmt.Errorf("chromosome %s is not part of genome %s", name, genome.Name)
	}
	return Region{Chromosome: name, Start: 0, End: length}, nil
}

// Resolve fills in the end of a bare chromosome region and checks that region
// lies inside the genome.
func (genome *Genome) Resolve(region Region) (Region, error) {
	if region.IsWholeGenome() {
		return region, nil
	}
	length, ok := genome.Length(region.Chromosome)
	if !ok {
		return Region{}, fmt.Errorf("chromosome %s is not part of genome %s", region.Chromosome, genome.Name)
	}
	if region.Start == 0 && region.End == 0 {
		region.End = length
	}
	if region.End > length {
		return Region{}, fmt.Errorf("region %v extends past the end of %s (%d)", region, region.Chromosome, length)
	}
	return region, nil
}

// Order returns the position of the named chromosome in the genome, or -1.
func (genome *Genome) Order(name string) int {
	for i, chr := range genome.Chromosomes {
		if chr.Name == name {
			return i
		}
	}
	return -1
}
