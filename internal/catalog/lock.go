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
	"os"
	"time"

	"github.com/jpillora/backoff"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Lock is an advisory lock on a file, held until Unlock.  Locks taken through
// different Lock values exclude each other even within one process.
type Lock struct {
	f         *os.File
	exclusive bool
}

// PollConfig bounds the delay between attempts to take a contended lock.
type PollConfig struct {
	Min, Max time.Duration
}

// DefaultPoll is used when a Catalog is opened without a PollConfig.
var DefaultPoll = PollConfig{Min: 5 * time.Millisecond, Max: 2 * time.Second}

// lockFile takes a shared or exclusive lock on path, creating it if needed.
// It polls until the lock is free or ctx is done.
func lockFile(ctx context.Context, path string, exclusive bool, poll PollConfig) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "opening lock file %s", path)
	}
	how := unix.LOCK_SH
	if exclusive {
		how = unix.LOCK_EX
	}

	b := &backoff.Backoff{
		Min:    poll.Min,
		Max:    poll.Max,
		Factor: 2,
		Jitter: true,
	}
	for {
		err := unix.Flock(int(f.Fd()), how|unix.LOCK_NB)
		if err == nil {
			return &Lock{f: f, exclusive: exclusive}, nil
		}
		if err != unix.EWOULDBLOCK && err != unix.EINTR {
			f.Close()
			return nil, errors.Wrapf(err, "locking %s", path)
		}
		select {
		case <-ctx.Done():
			f.Close()
			return nil, errors.Wrapf(ctx.Err(), "waiting for lock %s", path)
		case <-time.After(b.Duration()):
		}
	}
}

// Exclusive reports whether the lock is held exclusively.
func (l *Lock) Exclusive() bool {
	return l.exclusive
}

// Unlock releases the lock.
func (l *Lock) Unlock() error {
	defer l.f.Close()
	if err := unix.Flock(int(l.f.Fd()), unix.LOCK_UN); err != nil {
		return errors.Wrapf(err, "unlocking %s", l.f.Name())
	}
	return nil
}
