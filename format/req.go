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
	"fmt"

	"github.com/googlegenomics/trackstore/trackerr"
)

// Tristate is an optionally set boolean.
type Tristate uint8

const (
	Unset Tristate = iota
	False
	True
)

// Bool returns the Tristate for b.
func Bool(b bool) Tristate {
	if b {
		return True
	}
	return False
}

func (t Tristate) String() string {
	switch t {
	case False:
		return "false"
	case True:
		return "true"
	}
	return "unset"
}

// Field names accepted as exceptions by IsCompatibleWith and reported by
// FormatConflict errors.
const (
	FieldDense       = "dense"
	FieldInterval    = "interval"
	FieldLinked      = "linked"
	FieldValued      = "valued"
	FieldReprIsDense = "reprIsDense"
	FieldStrand      = "strand"
	FieldID          = "id"
	FieldWeights     = "weights"
	FieldName        = "name"
	FieldValue       = "value"
	FieldWeight      = "weight"
)

// Req is a requirement on a track format.  Unset fields match anything.
type Req struct {
	Dense, Interval, Linked, Valued, ReprIsDense Tristate
	Strand, ID, Weights                          Tristate
	// Name is Unknown when unset.
	Name Name
	// Value and Weight are unset when their Type is NoType.
	Value, Weight TypeInfo
}

// ReqOf returns the requirement with every field set from f.
func ReqOf(f TrackFormat) Req {
	return Req{
		Dense:       Bool(f.IsDense()),
		Interval:    Bool(f.IsInterval()),
		Linked:      Bool(f.IsLinked()),
		Valued:      Bool(f.IsValued()),
		ReprIsDense: Bool(f.ReprIsDense()),
		Strand:      Bool(f.HasStrand()),
		ID:          Bool(f.HasID()),
		Weights:     Bool(f.HasWeights()),
		Name:        f.Name(),
		Value:       f.Value(),
		Weight:      f.Weight(),
	}
}

type field struct {
	name string
	// req returns a printable value and whether the field is set.
	req func(Req) (interface{}, bool)
	// actual returns the value of the field for a format.
	actual func(TrackFormat) interface{}
}

func tristate(name string, get func(Req) Tristate, actual func(TrackFormat) bool) field {
	return field{
		name:   name,
		req:    func(r Req) (interface{}, bool) { t := get(r); return t, t != Unset },
		actual: func(f TrackFormat) interface{} { return Bool(actual(f)) },
	}
}

var fields = []field{
	tristate(FieldDense, func(r Req) Tristate { return r.Dense }, TrackFormat.IsDense),
	tristate(FieldInterval, func(r Req) Tristate { return r.Interval }, TrackFormat.IsInterval),
	tristate(FieldLinked, func(r Req) Tristate { return r.Linked }, TrackFormat.IsLinked),
	tristate(FieldValued, func(r Req) Tristate { return r.Valued }, TrackFormat.IsValued),
	tristate(FieldReprIsDense, func(r Req) Tristate { return r.ReprIsDense }, TrackFormat.ReprIsDense),
	tristate(FieldStrand, func(r Req) Tristate { return r.Strand }, TrackFormat.HasStrand),
	tristate(FieldID, func(r Req) Tristate { return r.ID }, TrackFormat.HasID),
	tristate(FieldWeights, func(r Req) Tristate { return r.Weights }, TrackFormat.HasWeights),
	{
		name:   FieldName,
		req:    func(r Req) (interface{}, bool) { return r.Name, r.Name != Unknown },
		actual: func(f TrackFormat) interface{} { return f.Name() },
	},
	{
		name:   FieldValue,
		req:    func(r Req) (interface{}, bool) { return normalize(r.Value), r.Value.Type != NoType },
		actual: func(f TrackFormat) interface{} { return normalize(f.Value()) },
	},
	{
		name:   FieldWeight,
		req:    func(r Req) (interface{}, bool) { return normalize(r.Weight), r.Weight.Type != NoType },
		actual: func(f TrackFormat) interface{} { return normalize(f.Weight()) },
	},
}

// normalize makes scalar dimensions 0 and 1 compare equal.
func normalize(info TypeInfo) TypeInfo {
	if !info.IsVector() {
		info.Dim = 0
	}
	return info
}

// Merge combines two requirements.  It fails with a FormatConflict error
// naming the first field that both set to different values.
func Merge(a, b Req) (Req, error) {
	for _, f := range fields {
		av, aok := f.req(a)
		bv, bok := f.req(b)
		if aok && bok && av != bv {
			return Req{}, trackerr.New(trackerr.FormatConflict, "%v != %v", av, bv).WithAttribute(f.name)
		}
	}
	merged := a
	pick := func(dst *Tristate, src Tristate) {
		if *dst == Unset {
			*dst = src
		}
	}
	pick(&merged.Dense, b.Dense)
	pick(&merged.Interval, b.Interval)
	pick(&merged.Linked, b.Linked)
	pick(&merged.Valued, b.Valued)
	pick(&merged.ReprIsDense, b.ReprIsDense)
	pick(&merged.Strand, b.Strand)
	pick(&merged.ID, b.ID)
	pick(&merged.Weights, b.Weights)
	if merged.Name == Unknown {
		merged.Name = b.Name
	}
	if merged.Value.Type == NoType {
		merged.Value = b.Value
	}
	if merged.Weight.Type == NoType {
		merged.Weight = b.Weight
	}
	return merged, nil
}

// IsCompatibleWith reports whether f satisfies req, ignoring the fields named
// in exceptions.
func (f TrackFormat) IsCompatibleWith(req Req, exceptions ...string) bool {
	return f.Check(req, exceptions...) == nil
}

// Check is like IsCompatibleWith but returns a FormatConflict error naming
// the first mismatching field.
func (f TrackFormat) Check(req Req, exceptions ...string) error {
	skip := make(map[string]bool, len(exceptions))
	for _, e := range exceptions {
		skip[e] = true
	}
	for _, field := range fields {
		if skip[field.name] {
			continue
		}
		want, ok := field.req(req)
		if !ok {
			continue
		}
		if got := field.actual(f); got != want {
			return trackerr.New(trackerr.FormatConflict, "track is %v, required %v", got, want).WithAttribute(field.name)
		}
	}
	return nil
}

func (r Req) String() string {
	s := "{"
	for _, f := range fields {
		if v, ok := f.req(r); ok {
			if len(s) > 1 {
				s += " "
			}
			s += fmt.Sprintf("%s:%v", f.name, v)
		}
	}
	return s + "}"
}
