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

// Package source describes where the elements of a track come from.
//
// A Source lists the files of a track with their modification times, which
// decide whether stored data is stale, and opens each file as an element
// stream through a Parser.  Files are local paths or gs://bucket/object URLs.
package source

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/googlegenomics/trackstore/genomics"
)

// FileInfo identifies one file of a source.
type FileInfo struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// Suffix returns the extension of the file without the leading dot.
func (fi FileInfo) Suffix() string {
	return strings.TrimPrefix(filepath.Ext(fi.Path), ".")
}

// Source provides the element streams of a track.
type Source interface {
	// Version is the version of the parser producing the streams.  A
	// change invalidates stored data.
	Version() int
	// Stat lists the files of the source.
	Stat(ctx context.Context) ([]FileInfo, error)
	// Open returns the element stream of one of the files.
	Open(ctx context.Context, file FileInfo) (genomics.ElementStream, error)
}

// Parser reads the elements of one file.
type Parser interface {
	Version() int
	// Parse returns a stream over the elements held in r.  Closing the
	// stream closes r.
	Parse(r io.ReadCloser) (genomics.ElementStream, error)
}

// ParseGCSPath splits a gs://bucket/object path.
func ParseGCSPath(path string) (bucket, object string, ok bool) {
	rest := strings.TrimPrefix(path, "gs://")
	if rest == path {
		return "", "", false
	}
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// Files is a Source reading local or GCS files with a Parser.
type Files struct {
	Paths  []string
	Parser Parser
	// Client is used for gs:// paths.  If nil, a client using the
	// application default credentials is created on first use.
	Client Client
}

// Version implements Source.
func (s *Files) Version() int {
	return s.Parser.Version()
}

func (s *Files) client(ctx context.Context) (Client, error) {
	if s.Client == nil {
		client, err := NewDefaultClient(ctx)
		if err != nil {
			return nil, err
		}
		s.Client = client
	}
	return s.Client, nil
}

// Stat implements Source.
func (s *Files) Stat(ctx context.Context) ([]FileInfo, error) {
	if len(s.Paths) == 0 {
		return nil, fmt.Errorf("source has no files")
	}
	var files []FileInfo
	for _, path := range s.Paths {
		if bucket, object, ok := ParseGCSPath(path); ok {
			client, err := s.client(ctx)
			if err != nil {
				return nil, err
			}
			attrs, err := client.NewObjectHandle(bucket, object).Attrs(ctx)
			if err != nil {
				return nil, newStorageError(fmt.Sprintf("reading attributes of %s", path), err)
			}
			files = append(files, FileInfo{Path: path, Size: attrs.Size, ModTime: attrs.Updated})
			continue
		}
		fi, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		if fi.IsDir() {
			return nil, fmt.Errorf("%s is a directory", path)
		}
		files = append(files, FileInfo{Path: path, Size: fi.Size(), ModTime: fi.ModTime()})
	}
	return files, nil
}

// Open implements Source.
func (s *Files) Open(ctx context.Context, file FileInfo) (genomics.ElementStream, error) {
	var r io.ReadCloser
	if bucket, object, ok := ParseGCSPath(file.Path); ok {
		client, err := s.client(ctx)
		if err != nil {
			return nil, err
		}
		r, err = client.NewObjectHandle(bucket, object).NewRangeReader(ctx, 0, -1)
		if err != nil {
			return nil, newStorageError(fmt.Sprintf("opening %s", file.Path), err)
		}
	} else {
		f, err := os.Open(file.Path)
		if err != nil {
			return nil, err
		}
		r = f
	}
	stream, err := s.Parser.Parse(r)
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("parsing %s: %v", file.Path, err)
	}
	return stream, nil
}

// Static is a Source holding a single in-memory stream.
type Static struct {
	Name     string
	ModTime  time.Time
	Revision int
	Info     genomics.StreamInfo
	Elements []genomics.Element
}

// Version implements Source.
func (s *Static) Version() int { return s.Revision }

// Stat implements Source.
func (s *Static) Stat(context.Context) ([]FileInfo, error) {
	return []FileInfo{{Path: s.Name, Size: int64(len(s.Elements)), ModTime: s.ModTime}}, nil
}

// Open implements Source.
func (s *Static) Open(context.Context, FileInfo) (genomics.ElementStream, error) {
	info := s.Info
	info.Version = s.Revision
	return genomics.NewSliceStream(info, s.Elements), nil
}
