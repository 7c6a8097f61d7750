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

// Package catalog manages the persisted state of a track store.
//
// The store is a directory tree.  Every genome has a directory holding one
// directory per component of a track name (track names are separated by
// colons), so "genes:refseq" of genome "hg38" lives in root/hg38/genes/refseq.
// A track directory holds the track record and one directory per overlap
// rule with the bounding region index and the column partition of that rule:
//
//	root/hg38/genes/refseq/record.json
//	root/hg38/genes/refseq/record.lock
//	root/hg38/genes/refseq/_rules/overlaps/LOCK
//	root/hg38/genes/refseq/_rules/overlaps/index.bri
//	root/hg38/genes/refseq/_rules/overlaps/columns.arrow
//
// Readers take shared locks and writers exclusive ones; there is one lock per
// record and one per rule directory.  Files are published by renaming fully
// written and synced temporary files.
package catalog

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"

	"github.com/googlegenomics/trackstore/internal/index"
)

const (
	recordFileName  = "record.json"
	recordLockName  = "record.lock"
	rulesDirName    = "_rules"
	ruleLockName    = "LOCK"
	indexFileName   = "index.bri"
	subtreeFileName = "subtree.json"
	subtreeLockName = "subtree.lock"
)

// ErrNoRecord is returned when a track has no record.
var ErrNoRecord = errors.New("no record")

// Catalog provides access to the store rooted at a directory.
type Catalog struct {
	root string
	poll PollConfig
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithPoll sets the lock polling bounds.
func WithPoll(poll PollConfig) Option {
	return func(c *Catalog) { c.poll = poll }
}

// Open returns the catalog rooted at root, creating the directory if needed.
func Open(root string, opts ...Option) (*Catalog, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, errors.Wrapf(err, "creating store root %s", root)
	}
	c := &Catalog{root: root, poll: DefaultPoll}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Root returns the root directory of the catalog.
func (c *Catalog) Root() string {
	return c.root
}

func checkComponent(kind, name string) error {
	switch {
	case name == "":
		return fmt.Errorf("empty %s name", kind)
	case name == "." || name == "..":
		return fmt.Errorf("invalid %s name %q", kind, name)
	case strings.HasPrefix(name, "_") || strings.HasPrefix(name, "."):
		return fmt.Errorf("%s name %q may not start with %q", kind, name, name[:1])
	case strings.ContainsAny(name, `/\`):
		return fmt.Errorf("%s name %q contains a path separator", kind, name)
	}
	return nil
}

// SplitTrackName splits a track name into its colon separated components.
func SplitTrackName(track string) ([]string, error) {
	parts := strings.Split(track, ":")
	for _, part := range parts {
		if err := checkComponent("track", part); err != nil {
			return nil, fmt.Errorf("track %q: %v", track, err)
		}
	}
	return parts, nil
}

// TrackDir returns the directory of a track.
func (c *Catalog) TrackDir(genome, track string) (string, error) {
	if err := checkComponent("genome", genome); err != nil {
		return "", err
	}
	parts, err := SplitTrackName(track)
	if err != nil {
		return "", err
	}
	return filepath.Join(append([]string{c.root, genome}, parts...)...), nil
}

// RuleDir returns the directory holding the stored form of a track under an
// overlap rule.
func (c *Catalog) RuleDir(genome, track string, allowOverlaps bool) (string, error) {
	dir, err := c.TrackDir(genome, track)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, rulesDirName, RuleName(allowOverlaps)), nil
}

// LockRule locks the rule directory of a track.
func (c *Catalog) LockRule(ctx context.Context, genome, track string, allowOverlaps, exclusive bool) (*Lock, error) {
	dir, err := c.RuleDir(genome, track, allowOverlaps)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrapf(err, "creating %s", dir)
	}
	return lockFile(ctx, filepath.Join(dir, ruleLockName), exclusive, c.poll)
}

// ReadRecord returns the record of a track, or ErrNoRecord.
func (c *Catalog) ReadRecord(ctx context.Context, genome, track string) (*Record, error) {
	dir, err := c.TrackDir(genome, track)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(filepath.Join(dir, recordFileName)); os.IsNotExist(err) {
		return nil, ErrNoRecord
	}
	lock, err := lockFile(ctx, filepath.Join(dir, recordLockName), false, c.poll)
	if err != nil {
		return nil, err
	}
	defer lock.Unlock()
	return readRecordFile(filepath.Join(dir, recordFileName))
}

func readRecordFile(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, ErrNoRecord
	} else if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, errors.Wrapf(err, "decoding %s", path)
	}
	return &r, nil
}

// WriteRecord publishes r as the record of its track.
func (c *Catalog) WriteRecord(ctx context.Context, r *Record) error {
	dir, err := c.TrackDir(r.Genome, r.Track)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrapf(err, "creating %s", dir)
	}
	lock, err := lockFile(ctx, filepath.Join(dir, recordLockName), true, c.poll)
	if err != nil {
		return err
	}
	defer lock.Unlock()
	return writeAtomic(filepath.Join(dir, recordFileName), func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return errors.Wrap(enc.Encode(r), "encoding record")
	})
}

// WriteIndex publishes the bounding region index of a rule directory.  The
// caller holds the exclusive rule lock.
func WriteIndex(dir string, idx *index.Index) error {
	return writeAtomic(filepath.Join(dir, indexFileName), idx.Encode)
}

// ReadIndex reads the bounding region index of a rule directory.  The caller
// holds a rule lock.
func ReadIndex(dir string) (*index.Index, error) {
	f, err := os.Open(filepath.Join(dir, indexFileName))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	idx, err := index.Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", f.Name())
	}
	return idx, nil
}

// IndexExists reports whether a rule directory holds an index.
func IndexExists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, indexFileName))
	return err == nil
}

// ClearRule removes everything stored for a rule except its lock file.  The
// caller holds the exclusive rule lock.
func ClearRule(dir string) error {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	} else if err != nil {
		return errors.Wrapf(err, "listing %s", dir)
	}
	for _, e := range entries {
		if e.Name() == ruleLockName {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return errors.Wrapf(err, "removing %s", e.Name())
		}
	}
	return nil
}

// RemoveTrack deletes the record and stored rules of a track and refreshes
// the subtree counts of its ancestors.  Tracks nested below it are kept.
func (c *Catalog) RemoveTrack(ctx context.Context, genome, track string) error {
	dir, err := c.TrackDir(genome, track)
	if err != nil {
		return err
	}
	if _, err := os.Stat(filepath.Join(dir, recordFileName)); os.IsNotExist(err) {
		return ErrNoRecord
	}

	for _, allowOverlaps := range []bool{true, false} {
		if err := c.removeRule(ctx, genome, track, allowOverlaps); err != nil {
			return err
		}
	}
	if err := os.RemoveAll(filepath.Join(dir, rulesDirName)); err != nil {
		return errors.Wrap(err, "removing rule directories")
	}

	lock, err := lockFile(ctx, filepath.Join(dir, recordLockName), true, c.poll)
	if err != nil {
		return err
	}
	err = os.Remove(filepath.Join(dir, recordFileName))
	lock.Unlock()
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "removing record")
	}
	os.Remove(filepath.Join(dir, recordLockName))
	pruneEmpty(dir, filepath.Join(c.root, genome))
	return c.UpdateSubtreeCounts(ctx, genome, track)
}

func (c *Catalog) removeRule(ctx context.Context, genome, track string, allowOverlaps bool) error {
	dir, err := c.RuleDir(genome, track, allowOverlaps)
	if err != nil {
		return err
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil
	}
	lock, err := c.LockRule(ctx, genome, track, allowOverlaps, true)
	if err != nil {
		return err
	}
	defer lock.Unlock()
	return ClearRule(dir)
}

// pruneEmpty removes dir and its ancestors below stop as long as they only
// hold subtree count files.
func pruneEmpty(dir, stop string) {
	for dir != stop && strings.HasPrefix(dir, stop) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return
		}
		for _, e := range entries {
			if e.Name() != subtreeFileName && e.Name() != subtreeLockName {
				return
			}
		}
		if os.RemoveAll(dir) != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}

// Tracks returns the names of all tracks of a genome with a record, sorted.
func (c *Catalog) Tracks(genome string) ([]string, error) {
	if err := checkComponent("genome", genome); err != nil {
		return nil, err
	}
	base := filepath.Join(c.root, genome)
	var tracks []string
	err := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() && d.Name() == rulesDirName {
			return filepath.SkipDir
		}
		if !d.IsDir() && d.Name() == recordFileName {
			rel, err := filepath.Rel(base, filepath.Dir(path))
			if err != nil {
				return err
			}
			tracks = append(tracks, strings.Join(strings.Split(rel, string(filepath.Separator)), ":"))
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "listing tracks of %s", genome)
	}
	sort.Strings(tracks)
	return tracks, nil
}
