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
	"encoding/hex"
	"hash"
	"sort"
	"strconv"

	"golang.org/x/crypto/blake2b"

	"github.com/googlegenomics/trackstore/internal/source"
)

// Provenance fingerprints the inputs of a run: the source files with their
// modification times, the source version and the pipeline version.  The
// order of files does not matter.
func Provenance(files []source.FileInfo, sourceVersion int, pipelineVersion string) string {
	sorted := append([]source.FileInfo(nil), files...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	h, err := blake2b.New256(nil)
	if err != nil {
		panic(err)
	}
	for _, f := range sorted {
		writeField(h, f.Path)
		writeField(h, strconv.FormatInt(f.ModTime.UnixNano(), 10))
	}
	writeField(h, strconv.Itoa(sourceVersion))
	writeField(h, pipelineVersion)
	return hex.EncodeToString(h.Sum(nil))
}

func writeField(h hash.Hash, s string) {
	h.Write([]byte(strconv.Itoa(len(s))))
	h.Write([]byte{':'})
	h.Write([]byte(s))
}
