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
	"fmt"
	"sort"

	"github.com/googlegenomics/trackstore/genomics"
	"github.com/googlegenomics/trackstore/trackerr"
)

// checkIfEdgeIdsExist verifies that every edge of blocks references the id
// of an element.
func checkIfEdgeIdsExist(blocks []block) error {
	ids := make(map[string]bool)
	for _, b := range blocks {
		for _, e := range b.elements {
			if e.ID != "" {
				ids[e.ID] = true
			}
		}
	}
	missing := make(map[string]bool)
	for _, b := range blocks {
		for _, e := range b.elements {
			for _, target := range e.Edges {
				if !ids[target] {
					missing[target] = true
				}
			}
		}
	}
	if len(missing) > 0 {
		items := sortedKeys(missing)
		return trackerr.New(trackerr.DanglingEdge, "%d edge targets are not element ids", len(items)).WithItems(items)
	}
	return nil
}

type edge struct {
	from, to, weight string
}

func edges(e *genomics.Element) []edge {
	out := make([]edge, len(e.Edges))
	for i, target := range e.Edges {
		out[i] = edge{from: e.ID, to: target}
		if i < len(e.Weights) {
			out[i].weight = fmt.Sprint(e.Weights[i])
		}
	}
	return out
}

// checkUndirectedEdges verifies that every edge A->B is matched by an edge
// B->A of equal weight.
func checkUndirectedEdges(blocks []block) error {
	present := make(map[edge]bool)
	for _, b := range blocks {
		for i := range b.elements {
			for _, e := range edges(&b.elements[i]) {
				present[e] = true
			}
		}
	}
	unmatched := make(map[string]bool)
	for e := range present {
		if !present[edge{from: e.to, to: e.from, weight: e.weight}] {
			unmatched[e.from+"->"+e.to] = true
		}
	}
	if len(unmatched) > 0 {
		items := sortedKeys(unmatched)
		return trackerr.New(trackerr.AsymmetricEdge, "%d edges have no reverse edge of equal weight", len(items)).WithItems(items)
	}
	return nil
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
