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

import "fmt"

// Name is the canonical name of a track shape.
type Name uint8

const (
	Unknown Name = iota
	Points
	ValuedPoints
	Segments
	ValuedSegments
	GenomePartition
	StepFunction
	Function
	LinkedPoints
	LinkedValuedPoints
	LinkedSegments
	LinkedValuedSegments
	LinkedGenomePartition
	LinkedStepFunction
	LinkedFunction
	LinkedBasePairs
)

// Shape holds the boolean axes that determine a Name.
type Shape struct {
	Dense, Interval, Linked, Valued bool
}

var shapes = []struct {
	shape Shape
	name  Name
	label string
}{
	{Shape{false, false, false, false}, Points, "Points"},
	{Shape{false, false, false, true}, ValuedPoints, "Valued points"},
	{Shape{false, true, false, false}, Segments, "Segments"},
	{Shape{false, true, false, true}, ValuedSegments, "Valued segments"},
	{Shape{true, true, false, false}, GenomePartition, "Genome partition"},
	{Shape{true, true, false, true}, StepFunction, "Step function"},
	{Shape{true, false, false, true}, Function, "Function"},
	{Shape{false, false, true, false}, LinkedPoints, "Linked points"},
	{Shape{false, false, true, true}, LinkedValuedPoints, "Linked valued points"},
	{Shape{false, true, true, false}, LinkedSegments, "Linked segments"},
	{Shape{false, true, true, true}, LinkedValuedSegments, "Linked valued segments"},
	{Shape{true, true, true, false}, LinkedGenomePartition, "Linked genome partition"},
	{Shape{true, true, true, true}, LinkedStepFunction, "Linked step function"},
	{Shape{true, false, true, true}, LinkedFunction, "Linked function"},
	{Shape{true, false, true, false}, LinkedBasePairs, "Linked base pairs"},
}

// NameOf returns the name matching shape, or Unknown.
func NameOf(shape Shape) Name {
	for _, s := range shapes {
		if s.shape == shape {
			return s.name
		}
	}
	return Unknown
}

// Shape returns the axes of n.  It panics for Unknown.
func (n Name) Shape() Shape {
	for _, s := range shapes {
		if s.name == n {
			return s.shape
		}
	}
	panic(fmt.Sprintf("no shape for %v", n))
}

func (n Name) String() string {
	for _, s := range shapes {
		if s.name == n {
			return s.label
		}
	}
	return "Unknown"
}

// ParseName returns the Name with the given label.
func ParseName(label string) (Name, error) {
	for _, s := range shapes {
		if s.label == label {
			return s.name, nil
		}
	}
	return Unknown, fmt.Errorf("unknown track format %q", label)
}
