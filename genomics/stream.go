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
	"io"

	"github.com/googlegenomics/trackstore/format"
)

// StreamInfo describes an element stream.  Everything except Columns, Value
// and Weight is only final once the stream has been fully read.
type StreamInfo struct {
	Columns      format.ColumnSet
	ExtraColumns []string
	Value        format.TypeInfo
	Weight       format.TypeInfo
	// UndirectedEdges declares that every edge must have a reverse edge of
	// equal weight.
	UndirectedEdges bool
	// BoundingRegions lists the regions covered by the stream, sorted per
	// chromosome.  Nil means every chromosome with elements is covered whole.
	BoundingRegions []BoundingRegion
	// Version is the version of the parser that produced the stream.
	Version int
	// ProvenanceID fingerprints the content of the stream, if known.
	ProvenanceID string
}

// ElementStream is a sequence of elements produced by a parser.
type ElementStream interface {
	// Next returns the next element, or io.EOF after the last one.
	Next() (Element, error)
	// Info returns the stream description.  It is complete once Next has
	// returned io.EOF.
	Info() StreamInfo
	Close() error
}

// SliceStream is an ElementStream over elements held in memory.
type SliceStream struct {
	info     StreamInfo
	elements []Element
	next     int
	closed   bool
}

// NewSliceStream returns a stream yielding elements in order.
func NewSliceStream(info StreamInfo, elements []Element) *SliceStream {
	return &SliceStream{info: info, elements: elements}
}

// Next implements ElementStream.
func (s *SliceStream) Next() (Element, error) {
	if s.closed {
		return Element{}, errors.New("stream is closed")
	}
	if s.next >= len(s.elements) {
		return Element{}, io.EOF
	}
	s.next++
	return s.elements[s.next-1], nil
}

// Info implements ElementStream.
func (s *SliceStream) Info() StreamInfo {
	return s.info
}

// Close implements ElementStream.
func (s *SliceStream) Close() error {
	s.closed = true
	return nil
}
