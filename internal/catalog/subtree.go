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

package catalog

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
)

// SubtreeCount sums the records of all tracks at or below a node of the track
// name hierarchy.
type SubtreeCount struct {
	Tracks       int   `json:"tracks"`
	ElementCount int64 `json:"elementCount"`
}

// UpdateSubtreeCounts recomputes the subtree counts of a track and every
// ancestor up to the genome.
func (c *Catalog) UpdateSubtreeCounts(ctx context.Context, genome, track string) error {
	parts, err := SplitTrackName(track)
	if err != nil {
		return err
	}
	if err := checkComponent("genome", genome); err != nil {
		return err
	}
	for i := len(parts); i >= 0; i-- {
		dir := filepath.Join(append([]string{c.root, genome}, parts[:i]...)...)
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			continue
		}
		if err := c.updateSubtree(ctx, dir); err != nil {
			return err
		}
	}
	return nil
}

func (c *Catalog) updateSubtree(ctx context.Context, dir string) error {
	lock, err := lockFile(ctx, filepath.Join(dir, subtreeLockName), true, c.poll)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	count, err := sumRecords(dir)
	if err != nil {
		return err
	}
	return writeAtomic(filepath.Join(dir, subtreeFileName), func(w io.Writer) error {
		return errors.Wrap(json.NewEncoder(w).Encode(count), "encoding subtree count")
	})
}

func sumRecords(dir string) (SubtreeCount, error) {
	var count SubtreeCount
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && d.Name() == rulesDirName {
			return filepath.SkipDir
		}
		if d.IsDir() || d.Name() != recordFileName {
			return nil
		}
		r, err := readRecordFile(path)
		if err == ErrNoRecord {
			return nil
		} else if err != nil {
			return err
		}
		count.Tracks++
		count.ElementCount += r.ElementCount
		return nil
	})
	return count, errors.Wrapf(err, "summing records below %s", dir)
}

// ReadSubtreeCount returns the subtree count of a genome, when prefix is
// empty, or of the node named by a track name prefix.
func (c *Catalog) ReadSubtreeCount(genome, prefix string) (SubtreeCount, error) {
	dir := filepath.Join(c.root, genome)
	if prefix != "" {
		var err error
		if dir, err = c.TrackDir(genome, prefix); err != nil {
			return SubtreeCount{}, err
		}
	} else if err := checkComponent("genome", genome); err != nil {
		return SubtreeCount{}, err
	}
	data, err := os.ReadFile(filepath.Join(dir, subtreeFileName))
	if os.IsNotExist(err) {
		return SubtreeCount{}, nil
	} else if err != nil {
		return SubtreeCount{}, errors.Wrap(err, "reading subtree count")
	}
	var count SubtreeCount
	if err := json.Unmarshal(data, &count); err != nil {
		return SubtreeCount{}, errors.Wrap(err, "decoding subtree count")
	}
	return count, nil
}
