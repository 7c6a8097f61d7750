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
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/googlegenomics/trackstore/internal/logger"
	"github.com/googlegenomics/trackstore/trackerr"
)

// BatchOptions control RunBatch.
type BatchOptions struct {
	Mode Mode
	// Escalate turns warnings and failures of individual tracks into an
	// error returned at the end of the batch.
	Escalate bool
}

// RunBatch preprocesses jobs one after the other.  A failing track is logged
// and the batch continues with the next one; its Result carries the error.
// Tracks that are not supported are warnings.  With Escalate set, the
// returned error names every track that had a warning or failed.
func (p *Pipeline) RunBatch(ctx context.Context, jobs []Job, opts BatchOptions) ([]*Result, error) {
	runID := uuid.New().String()
	ctx = logger.WithRun(ctx, runID)
	log := logger.WithContext(ctx)
	log.Info("starting batch", zap.Int("tracks", len(jobs)), zap.Stringer("mode", opts.Mode))

	var (
		results  []*Result
		affected []string
		errs     error
	)
	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		result, err := p.Preprocess(ctx, job, opts.Mode)
		results = append(results, result)
		if err == nil {
			continue
		}
		affected = append(affected, job.Genome+":"+job.Track)
		if !errors.Is(err, trackerr.ErrNotSupported) {
			errs = multierr.Append(errs, fmt.Errorf("%s:%s: %w", job.Genome, job.Track, err))
		}
	}

	log.Info("finished batch", zap.Int("tracks", len(jobs)), zap.Int("affected", len(affected)))
	if !opts.Escalate || len(affected) == 0 {
		return results, nil
	}
	return results, multierr.Combine(
		fmt.Errorf("run %s had warnings for %d tracks: %s", runID, len(affected), strings.Join(affected, ", ")),
		errs,
	)
}
