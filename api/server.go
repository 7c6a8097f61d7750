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
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/googlegenomics/trackstore/format"
	"github.com/googlegenomics/trackstore/genomics"
	"github.com/googlegenomics/trackstore/internal/catalog"
	"github.com/googlegenomics/trackstore/internal/config"
	"github.com/googlegenomics/trackstore/internal/logger"
	"github.com/googlegenomics/trackstore/internal/query"
	"github.com/googlegenomics/trackstore/trackerr"
)

var (
	errMissingChromosome = errors.New("no chromosome specified")
	errMissingBound      = errors.New("start and end must be given together")
	errMissingFiles      = errors.New("no source files specified")
)

// Server serves the tracks of a Store over HTTP.  Must be created with
// NewServer.
type Server struct {
	store  *Store
	router *gin.Engine
}

// NewServer returns a server reading from store.  The metrics endpoint is
// registered when enabled in the store's configuration.
func NewServer(store *Store) *Server {
	router := gin.New()
	router.Use(gin.Recovery(), logRequests, forwardOrigin)

	server := &Server{store: store, router: router}
	router.GET("/tracks/:genome/*track", server.serveRows)
	router.GET("/stale/:genome/*track", server.serveStale)
	router.GET("/records/:genome/*track", server.serveRecord)
	router.GET("/genomes", server.serveGenomes)
	router.GET("/genomes/:genome", server.serveTracks)

	if metrics := store.Config().Metrics; metrics.Enabled {
		router.GET(metrics.Path, gin.WrapH(promhttp.Handler()))
	}
	return server
}

// ServeHTTP implements http.Handler.
func (server *Server) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	server.router.ServeHTTP(w, req)
}

// Run listens on addr and serves requests until it fails.
func (server *Server) Run(addr string) error {
	return server.router.Run(addr)
}

func (server *Server) serveGenomes(c *gin.Context) {
	type genome struct {
		Name        string                `json:"name"`
		Chromosomes []genomics.Chromosome `json:"chromosomes"`
	}
	genomes := []genome{}
	for _, g := range server.store.Config().Genomes {
		genomes = append(genomes, genome{g.Name, g.Chromosomes})
	}
	c.JSON(http.StatusOK, gin.H{"genomes": genomes})
}

func (server *Server) serveTracks(c *gin.Context) {
	genome := c.Param("genome")
	if _, err := server.store.Genome(genome); err != nil {
		writeError(c, err)
		return
	}
	tracks, err := server.store.Tracks(genome)
	if err != nil {
		writeError(c, err)
		return
	}
	count, err := server.store.Catalog().ReadSubtreeCount(genome, c.Query("prefix"))
	if err != nil {
		writeError(c, err)
		return
	}
	if tracks == nil {
		tracks = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"tracks": tracks, "count": count})
}

// trackParams returns the genome and track named by the path.  Track names
// hold no slashes, so the wildcard only carries its leading one.
func trackParams(c *gin.Context) (string, string) {
	return c.Param("genome"), strings.TrimPrefix(c.Param("track"), "/")
}

func (server *Server) serveRecord(c *gin.Context) {
	genome, track := trackParams(c)
	record, err := server.store.Record(c.Request.Context(), genome, track)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (server *Server) serveRows(c *gin.Context) {
	genome, track := trackParams(c)
	ctx := logger.WithTrack(c.Request.Context(), genome, track)

	g, err := server.store.Genome(genome)
	if err != nil {
		writeError(c, err)
		return
	}
	region, err := parseRegion(c, g)
	if err != nil {
		writeError(c, newInvalidInputError("parsing region", err))
		return
	}
	allowOverlaps := true
	if v := c.Query("overlaps"); v != "" {
		if allowOverlaps, err = strconv.ParseBool(v); err != nil {
			writeError(c, newInvalidInputError("parsing overlaps", err))
			return
		}
	}

	var req format.Req
	if v := c.Query("format"); v != "" {
		if req.Name, err = format.ParseName(v); err != nil {
			writeError(c, newInvalidInputError("parsing format", err))
			return
		}
	}

	slice, err := server.store.QueryFormat(ctx, genome, track, allowOverlaps, region, req)
	if err != nil {
		writeError(c, err)
		return
	}
	defer slice.Close()
	c.JSON(http.StatusOK, slice)
}

func (server *Server) serveStale(c *gin.Context) {
	genome, track := trackParams(c)
	files := c.QueryArray("file")
	if len(files) == 0 {
		writeError(c, newInvalidInputError("parsing source", errMissingFiles))
		return
	}
	if _, err := server.store.Genome(genome); err != nil {
		writeError(c, err)
		return
	}

	plan, err := server.store.Check(c.Request.Context(), server.store.FileJob(genome, track, files))
	if err != nil {
		writeError(c, err)
		return
	}
	type rule struct {
		Rule   string `json:"rule"`
		Stale  bool   `json:"stale"`
		Reason string `json:"reason,omitempty"`
	}
	rules := []rule{}
	for _, r := range plan.Rules {
		rules = append(rules, rule{catalog.RuleName(r.AllowOverlaps), r.Rewrite, r.Reason})
	}
	c.JSON(http.StatusOK, gin.H{
		"stale":      plan.Stale(),
		"provenance": plan.ProvenanceID,
		"rules":      rules,
	})
}

// parseRegion reads the chr, start and end query parameters.  Without start
// and end the region is the whole chromosome.
func parseRegion(c *gin.Context, genome *genomics.Genome) (genomics.Region, error) {
	region := genomics.Region{Chromosome: c.Query("chr")}
	if region.Chromosome == "" {
		return genomics.Region{}, errMissingChromosome
	}
	start, end := c.Query("start"), c.Query("end")
	if (start == "") != (end == "") {
		return genomics.Region{}, errMissingBound
	}
	if start != "" {
		var err error
		if region.Start, err = strconv.ParseInt(start, 10, 64); err != nil {
			return genomics.Region{}, fmt.Errorf("parsing start: %v", err)
		}
		if region.End, err = strconv.ParseInt(end, 10, 64); err != nil {
			return genomics.Region{}, fmt.Errorf("parsing end: %v", err)
		}
		if region.Start < 0 || region.End < region.Start {
			return genomics.Region{}, fmt.Errorf("invalid range %d-%d", region.Start, region.End)
		}
	}
	return genome.Resolve(region)
}

// apiError is used to capture errors that are reported to clients as JSON.
type apiError struct {
	name  string
	code  int
	cause error
}

func (err *apiError) Error() string {
	return fmt.Sprintf("%s (%d): %v", err.name, err.code, err.cause)
}

func (err *apiError) Unwrap() error {
	return err.cause
}

func newInvalidInputError(context string, err error) error {
	return &apiError{"InvalidInput", http.StatusBadRequest, fmt.Errorf("%s: %v", context, err)}
}

// classify maps err to the apiError reported to clients.
func classify(err error) *apiError {
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	switch {
	case errors.Is(err, query.ErrNotFound), errors.Is(err, catalog.ErrNoRecord), errors.Is(err, config.ErrUnknownGenome):
		return &apiError{"NotFound", http.StatusNotFound, err}
	}
	if kind, ok := trackerr.KindOf(err); ok {
		code := http.StatusInternalServerError
		switch kind {
		case trackerr.OutsideBoundingRegion:
			code = http.StatusBadRequest
		case trackerr.NotSupported:
			code = http.StatusNotImplemented
		case trackerr.FormatConflict:
			code = http.StatusConflict
		}
		return &apiError{kind.String(), code, err}
	}
	return &apiError{"InternalError", http.StatusInternalServerError, err}
}

// writeError writes a JSON object describing err.
func writeError(c *gin.Context, err error) {
	apiErr := classify(err)
	if apiErr.code >= http.StatusInternalServerError {
		logger.WithContext(c.Request.Context()).Error("request failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
	}
	c.AbortWithStatusJSON(apiErr.code, gin.H{
		"error":   apiErr.name,
		"message": fmt.Sprintf("%s: %v", http.StatusText(apiErr.code), apiErr.cause),
	})
}

func logRequests(c *gin.Context) {
	start := time.Now()
	c.Next()
	logger.Get().Debug("served request",
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Int("status", c.Writer.Status()),
		zap.Duration("elapsed", time.Since(start)))
}

func forwardOrigin(c *gin.Context) {
	if origin := c.GetHeader("Origin"); origin != "" {
		c.Header("Access-Control-Allow-Origin", origin)
	}
	c.Next()
}
