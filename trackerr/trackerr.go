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

// Package trackerr defines the errors reported while preprocessing and
// querying tracks.
//
// Every error carries a Kind.  Callers test for a kind with errors.Is and the
// package level sentinels, for example:
//
//	if errors.Is(err, trackerr.ErrNotSupported) {
//		// skip the track
//	}
package trackerr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an Error.
type Kind uint8

const (
	// FormatConflict is returned when two format requirements, or a requirement
	// and an actual track format, disagree.
	FormatConflict Kind = iota + 1
	// InconsistentSource is returned when sources of one track disagree about
	// the shape or types of the track.
	InconsistentSource
	// InvalidLayout is returned when bounding regions violate the index
	// invariants.
	InvalidLayout
	// OutsideBoundingRegion is returned when a query region is not contained in
	// a single bounding region.
	OutsideBoundingRegion
	// ShouldNotOccur signals an internal consistency bug.
	ShouldNotOccur
	// DanglingEdge is returned when an edge references an unknown element id.
	DanglingEdge
	// AsymmetricEdge is returned when an undirected track lacks the reverse of
	// an edge.
	AsymmetricEdge
	// NotSupported marks a track or source that is intentionally not processed.
	NotSupported
)

var kindNames = map[Kind]string{
	FormatConflict:        "FormatConflict",
	InconsistentSource:    "InconsistentSource",
	InvalidLayout:         "InvalidLayout",
	OutsideBoundingRegion: "OutsideBoundingRegion",
	ShouldNotOccur:        "ShouldNotOccur",
	DanglingEdge:          "DanglingEdge",
	AsymmetricEdge:        "AsymmetricEdge",
	NotSupported:          "NotSupported",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Sentinels for use with errors.Is.
var (
	ErrFormatConflict        = &Error{Kind: FormatConflict}
	ErrInconsistentSource    = &Error{Kind: InconsistentSource}
	ErrInvalidLayout         = &Error{Kind: InvalidLayout}
	ErrOutsideBoundingRegion = &Error{Kind: OutsideBoundingRegion}
	ErrShouldNotOccur        = &Error{Kind: ShouldNotOccur}
	ErrDanglingEdge          = &Error{Kind: DanglingEdge}
	ErrAsymmetricEdge        = &Error{Kind: AsymmetricEdge}
	ErrNotSupported          = &Error{Kind: NotSupported}
)

// Error is the error type used throughout the track store.
type Error struct {
	Kind Kind
	// Message describes the failure.
	Message string
	// Attribute names the conflicting attribute, if any.
	Attribute string
	// Items lists the offending ids, edge pairs or tracks.
	Items []string
	// Cause is the underlying error, if any.
	Cause error
}

// New returns an Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap returns an Error of the given kind that wraps cause.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// WithAttribute sets the conflicting attribute and returns the receiver.
func (err *Error) WithAttribute(attribute string) *Error {
	err.Attribute = attribute
	return err
}

// WithItems sets the offending items and returns the receiver.
func (err *Error) WithItems(items []string) *Error {
	err.Items = items
	return err
}

func (err *Error) Error() string {
	var b strings.Builder
	b.WriteString(err.Kind.String())
	if err.Attribute != "" {
		fmt.Fprintf(&b, " [%s]", err.Attribute)
	}
	if err.Message != "" {
		b.WriteString(": ")
		b.WriteString(err.Message)
	}
	if len(err.Items) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(err.Items, ", "))
	}
	if err.Cause != nil {
		fmt.Fprintf(&b, ": %v", err.Cause)
	}
	return b.String()
}

// Unwrap returns the cause of the receiver.
func (err *Error) Unwrap() error {
	return err.Cause
}

// Is reports whether target is an Error of the same kind.
func (err *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == err.Kind
}

// KindOf returns the kind of the first Error in the chain of err.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
