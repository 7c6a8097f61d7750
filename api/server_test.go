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

package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/googlegenomics/trackstore/genomics"
	"github.com/googlegenomics/trackstore/internal/config"
	"github.com/googlegenomics/trackstore/internal/pipeline"
)

const segments = `{"header":{"columns":["start","end","val"],"value":{"type":"number"}}}
{"chr":"chr1","start":100,"end":200,"val":1.5}
{"chr":"chr1","start":300,"end":400,"val":2.5}
{"trailer":{"boundingRegions":[{"chr":"chr1","start":0,"end":1000,"count":2}]}}
`

func init() {
	gin.SetMode(gin.TestMode)
}

func openStore(t *testing.T) *Store {
	cfg := config.Default()
	cfg.Store.Root = filepath.Join(t.TempDir(), "store")
	cfg.Store.BinSize = 100
	cfg.Genomes = []genomics.Genome{{Name: "test", Chromosomes: []genomics.Chromosome{
		{Name: "chr1", Length: 10000},
		{Name: "chr2", Length: 5000},
	}}}
	store, err := Open(cfg)
	require.NoError(t, err)
	return store
}

func addTrack(t *testing.T, store *Store, track, data string) string {
	path := filepath.Join(t.TempDir(), "track.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))
	job := store.FileJob("test", track, []string{path})
	results, err := store.Preprocess(context.Background(), []pipeline.Job{job}, pipeline.BatchOptions{Mode: pipeline.Commit, Escalate: true})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, pipeline.Done, results[0].State)

	stale, err := store.IsStale(context.Background(), job)
	require.NoError(t, err)
	require.False(t, stale)
	return path
}

func get(t *testing.T, handler http.Handler, url string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, err := http.NewRequest("GET", url, nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://example.com")
	handler.ServeHTTP(w, req)
	return w
}

func TestServeRows(t *testing.T) {
	store := openStore(t)
	addTrack(t, store, "genes:segments", segments)
	server := NewServer(store)

	w := get(t, server, "/tracks/test/genes:segments?chr=chr1&start=0&end=250")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "http://example.com", w.Header().Get("Access-Control-Allow-Origin"))

	var got struct {
		Region  string                   `json:"region"`
		Rows    int                      `json:"rows"`
		Columns map[string][]interface{} `json:"columns"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "chr1:0-250", got.Region)
	assert.Equal(t, 1, got.Rows)
	assert.Equal(t, []interface{}{float64(100)}, got.Columns["start"])
	assert.Equal(t, []interface{}{float64(200)}, got.Columns["end"])
	assert.Equal(t, []interface{}{1.5}, got.Columns["val"])

	w = get(t, server, "/tracks/test/genes:segments?chr=chr1&start=0&end=1000&overlaps=false")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, 2, got.Rows)

	w = get(t, server, "/tracks/test/genes:segments?chr=chr1&start=0&end=1000&format=Valued+segments")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestServeErrors(t *testing.T) {
	store := openStore(t)
	addTrack(t, store, "segments", segments)
	server := NewServer(store)

	tests := []struct {
		url  string
		code int
		name string
	}{
		{"/tracks/test/segments", http.StatusBadRequest, "InvalidInput"},
		{"/tracks/test/segments?chr=chr1&start=10", http.StatusBadRequest, "InvalidInput"},
		{"/tracks/test/segments?chr=chr1&start=x&end=10", http.StatusBadRequest, "InvalidInput"},
		{"/tracks/test/segments?chr=chr1&start=20&end=10", http.StatusBadRequest, "InvalidInput"},
		{"/tracks/test/segments?chr=chr1&start=0&end=100&overlaps=maybe", http.StatusBadRequest, "InvalidInput"},
		{"/tracks/test/segments?chr=chr3&start=0&end=100", http.StatusBadRequest, "InvalidInput"},
		{"/tracks/test/segments?chr=chr1&start=0&end=20000", http.StatusBadRequest, "InvalidInput"},
		{"/tracks/test/segments?chr=chr1&start=2000&end=3000", http.StatusBadRequest, "OutsideBoundingRegion"},
		{"/tracks/test/segments?chr=chr1", http.StatusBadRequest, "OutsideBoundingRegion"},
		{"/tracks/test/segments?chr=chr2&start=0&end=100", http.StatusBadRequest, "OutsideBoundingRegion"},
		{"/tracks/test/segments?chr=chr1&start=0&end=100&format=Points", http.StatusConflict, "FormatConflict"},
		{"/tracks/test/segments?chr=chr1&start=0&end=100&format=Blobs", http.StatusBadRequest, "InvalidInput"},
		{"/tracks/test/missing?chr=chr1&start=0&end=100", http.StatusNotFound, "NotFound"},
		{"/tracks/other/segments?chr=chr1&start=0&end=100", http.StatusNotFound, "NotFound"},
		{"/records/test/missing", http.StatusNotFound, "NotFound"},
		{"/genomes/other", http.StatusNotFound, "NotFound"},
		{"/stale/test/segments", http.StatusBadRequest, "InvalidInput"},
	}
	for _, test := range tests {
		w := get(t, server, test.url)
		assert.Equal(t, test.code, w.Code, "%s: %s", test.url, w.Body.String())

		var body map[string]string
		if assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), test.url) {
			assert.Equal(t, test.name, body["error"], test.url)
			assert.NotEmpty(t, body["message"], test.url)
		}
	}
}

func TestServeTracks(t *testing.T) {
	store := openStore(t)
	addTrack(t, store, "genes:a", segments)
	addTrack(t, store, "genes:b", segments)
	addTrack(t, store, "other", segments)
	server := NewServer(store)

	w := get(t, server, "/genomes/test?prefix=genes")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var got struct {
		Tracks []string `json:"tracks"`
		Count  struct {
			Tracks       int   `json:"tracks"`
			ElementCount int64 `json:"elementCount"`
		} `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, []string{"genes:a", "genes:b", "other"}, got.Tracks)
	assert.Equal(t, 2, got.Count.Tracks)
	assert.Equal(t, int64(4), got.Count.ElementCount)

	w = get(t, server, "/records/test/genes:a")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var record struct {
		Format       string `json:"format"`
		ElementCount int64  `json:"elementCount"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &record))
	assert.Equal(t, int64(2), record.ElementCount)

	require.NoError(t, store.RemoveTrack(context.Background(), "test", "genes:a"))
	w = get(t, server, "/records/test/genes:a")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServeStale(t *testing.T) {
	store := openStore(t)
	path := addTrack(t, store, "segments", segments)
	server := NewServer(store)

	type rule struct {
		Rule   string `json:"rule"`
		Stale  bool   `json:"stale"`
		Reason string `json:"reason"`
	}
	var got struct {
		Stale bool   `json:"stale"`
		Rules []rule `json:"rules"`
	}
	w := get(t, server, "/stale/test/segments?file="+path)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.False(t, got.Stale)
	assert.Equal(t, []rule{{Rule: "overlaps"}, {Rule: "nooverlaps"}}, got.Rules)

	later := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(path, later, later))
	w = get(t, server, "/stale/test/segments?file="+path)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.True(t, got.Stale)
	for _, r := range got.Rules {
		assert.True(t, r.Stale, r.Rule)
		assert.Equal(t, "sources changed", r.Reason, r.Rule)
	}

	w = get(t, server, "/stale/test/other?file="+path)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.True(t, got.Stale)
	assert.Equal(t, "not processed", got.Rules[0].Reason)
}

func TestServeGenomesAndMetrics(t *testing.T) {
	server := NewServer(openStore(t))

	w := get(t, server, "/genomes")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"genomes":[{"name":"test","chromosomes":[{"name":"chr1","length":10000},{"name":"chr2","length":5000}]}]}`, w.Body.String())

	w = get(t, server, "/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestParseTrackRef(t *testing.T) {
	genome, track, ok := ParseTrackRef("hg38/genes:refseq")
	assert.True(t, ok)
	assert.Equal(t, "hg38", genome)
	assert.Equal(t, "genes:refseq", track)

	for _, ref := range []string{"", "hg38", "hg38/", "/genes"} {
		_, _, ok := ParseTrackRef(ref)
		assert.False(t, ok, ref)
	}
}
