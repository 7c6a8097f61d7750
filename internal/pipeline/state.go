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

import "fmt"

// State is a step of the preprocessing of a track.
type State uint8

const (
	NeedsCheck State = iota
	SkipUnchanged
	Stale
	RemovingOutdated
	Ingesting
	SortAndMergeChromosomeFragments
	BuildIndex
	SanityCheck
	Finalize
	Done
	Failed
)

var stateNames = []string{
	"NeedsCheck",
	"SkipUnchanged",
	"Stale",
	"RemovingOutdated",
	"Ingesting",
	"SortAndMergeChromosomeFragments",
	"BuildIndex",
	"SanityCheck",
	"Finalize",
	"Done",
	"Failed",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// next lists the states reachable from each state, Failed aside.
var next = map[State][]State{
	NeedsCheck:                      {SkipUnchanged, Stale},
	Stale:                           {RemovingOutdated, Ingesting},
	RemovingOutdated:                {Ingesting},
	Ingesting:                       {SortAndMergeChromosomeFragments},
	SortAndMergeChromosomeFragments: {BuildIndex, SanityCheck},
	BuildIndex:                      {SanityCheck},
	SanityCheck:                     {Finalize},
	Finalize:                        {Done},
}

func (s State) canMoveTo(t State) bool {
	if t == Failed {
		return s != Done && s != SkipUnchanged
	}
	for _, n := range next[s] {
		if n == t {
			return true
		}
	}
	return false
}
