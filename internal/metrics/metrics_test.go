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

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestTracksProcessed(t *testing.T) {
	before := testutil.ToFloat64(TracksProcessed.WithLabelValues("committed"))
	TracksProcessed.WithLabelValues("committed").Inc()
	if got, want := testutil.ToFloat64(TracksProcessed.WithLabelValues("committed")), before+1; got != want {
		t.Errorf("tracks_processed_total = %v, want %v", got, want)
	}
}

func TestObserveStage(t *testing.T) {
	ObserveStage("Ingesting", time.Now())
	if got := testutil.CollectAndCount(StageDuration); got < 1 {
		t.Errorf("CollectAndCount(StageDuration) = %d, want at least 1", got)
	}
}
