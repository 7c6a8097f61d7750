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
	"bufio"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// writeAtomic writes a file through write and publishes it at path with an
// fsync followed by a rename, so readers see either the old or the new file.
func writeAtomic(path string, write func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrapf(err, "creating %s", dir)
	}
	temp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*")
	if err != nil {
		return errors.Wrap(err, "creating temporary file")
	}
	// If we rename below, this is a no-op.
	defer os.Remove(temp.Name())

	bw := bufio.NewWriter(temp)
	if err := write(bw); err != nil {
		temp.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		temp.Close()
		return errors.Wrapf(err, "writing %s", temp.Name())
	}
	if err := temp.Sync(); err != nil {
		temp.Close()
		return errors.Wrapf(err, "syncing %s", temp.Name())
	}
	if err := temp.Close(); err != nil {
		return errors.Wrapf(err, "closing %s", temp.Name())
	}
	if err := os.Rename(temp.Name(), path); err != nil {
		return errors.Wrapf(err, "publishing %s", path)
	}
	d, err := os.Open(dir)
	if err != nil {
		return errors.Wrapf(err, "opening %s", dir)
	}
	defer d.Close()
	return errors.Wrapf(d.Sync(), "syncing %s", dir)
}
