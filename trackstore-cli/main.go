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

// This binary preprocesses, inspects and serves the tracks of a track store.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"
	"github.com/pkg/profile"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/googlegenomics/trackstore/api"
	"github.com/googlegenomics/trackstore/format"
	"github.com/googlegenomics/trackstore/genomics"
	"github.com/googlegenomics/trackstore/internal/catalog"
	"github.com/googlegenomics/trackstore/internal/config"
	"github.com/googlegenomics/trackstore/internal/logger"
	"github.com/googlegenomics/trackstore/internal/pipeline"
	"github.com/googlegenomics/trackstore/internal/source"
)

var (
	configFile string
	profileDir string
	profileCPU bool
	profileMem bool

	stopper interface{ Stop() }
)

// manifest lists the tracks preprocessed by one batch.
type manifest struct {
	Tracks []struct {
		Genome string   `yaml:"genome"`
		Track  string   `yaml:"track"`
		Files  []string `yaml:"files"`
		// Format is the label of the format the track must have.
		Format string `yaml:"format,omitempty"`
	} `yaml:"tracks"`
}

func main() {
	root := &cobra.Command{
		Use:           "trackstore",
		Short:         "Preprocess and query genomic tracks",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if profileCPU {
				stopper = profile.Start(profile.CPUProfile, profile.ProfilePath(profileDir), profile.Quiet)
			} else if profileMem {
				stopper = profile.Start(profile.MemProfile, profile.ProfilePath(profileDir), profile.Quiet)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if stopper != nil {
				stopper.Stop()
			}
			logger.Sync()
		},
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "YAML configuration file")
	root.PersistentFlags().StringVar(&profileDir, "profile-dir", ".", "directory receiving profiles")
	root.PersistentFlags().BoolVar(&profileCPU, "cpuprofile", false, "write a CPU profile")
	root.PersistentFlags().BoolVar(&profileMem, "memprofile", false, "write a memory profile")

	root.AddCommand(preprocessCommand(), staleCommand(), queryCommand(), tracksCommand(), removeCommand(), serveCommand())

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	err := root.ExecuteContext(ctx)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func openStore() (*api.Store, error) {
	cfg := config.Default()
	if configFile != "" {
		var err error
		if cfg, err = config.Load(configFile); err != nil {
			return nil, err
		}
	}
	if err := logger.Init(cfg.Logging); err != nil {
		return nil, fmt.Errorf("initializing logger: %v", err)
	}
	return api.Open(cfg)
}

func trackRef(ref string) (string, string, error) {
	genome, track, ok := api.ParseTrackRef(ref)
	if !ok {
		return "", "", fmt.Errorf("invalid track %q, want GENOME/TRACK", ref)
	}
	return genome, track, nil
}

func formatReq(label string) (format.Req, error) {
	var req format.Req
	if label == "" {
		return req, nil
	}
	name, err := format.ParseName(label)
	if err != nil {
		return req, err
	}
	req.Name = name
	return req, nil
}

func readManifest(store *api.Store, path string) ([]pipeline.Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest %s: %v", path, err)
	}
	var jobs []pipeline.Job
	for _, t := range m.Tracks {
		files := make([]string, len(t.Files))
		for i, file := range t.Files {
			if _, _, gcs := source.ParseGCSPath(file); !gcs && !filepath.IsAbs(file) {
				file = filepath.Join(filepath.Dir(path), file)
			}
			files[i] = file
		}
		job := store.FileJob(t.Genome, t.Track, files)
		if job.Format, err = formatReq(t.Format); err != nil {
			return nil, fmt.Errorf("track %s/%s: %v", t.Genome, t.Track, err)
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func jobsFromArgs(store *api.Store, manifestFile string, args []string) ([]pipeline.Job, error) {
	if manifestFile != "" {
		if len(args) > 0 {
			return nil, fmt.Errorf("tracks are given by both --manifest and arguments")
		}
		return readManifest(store, manifestFile)
	}
	if len(args) < 2 {
		return nil, fmt.Errorf("want GENOME/TRACK FILE... or --manifest")
	}
	genome, track, err := trackRef(args[0])
	if err != nil {
		return nil, err
	}
	return []pipeline.Job{store.FileJob(genome, track, args[1:])}, nil
}

func preprocessCommand() *cobra.Command {
	var (
		mode         string
		escalate     bool
		manifestFile string
	)
	cmd := &cobra.Command{
		Use:   "preprocess [GENOME/TRACK FILE...]",
		Short: "Preprocess tracks from JSON lines files",
		Long: `Preprocess reads the elements of tracks from JSON lines files, local or
on GCS (gs://bucket/object), and stores them.  Tracks whose sources did not
change since they were last processed are skipped.

Modes:
  commit         store the track and its metadata
  dry-run        run every check without writing anything
  metadata-only  refresh the track record without rewriting stored rows`,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := pipeline.ParseMode(mode)
			if err != nil {
				return err
			}
			store, err := openStore()
			if err != nil {
				return err
			}
			jobs, err := jobsFromArgs(store, manifestFile, args)
			if err != nil {
				return err
			}
			start := time.Now()
			results, err := store.Preprocess(cmd.Context(), jobs, pipeline.BatchOptions{Mode: m, Escalate: escalate})
			printResults(cmd, results)
			logger.Get().Info("preprocessing finished",
				zap.Int("tracks", len(results)),
				zap.String("elapsed", time.Since(start).Round(time.Millisecond).String()))
			return err
		},
	}
	cmd.Flags().StringVarP(&mode, "mode", "m", pipeline.Commit.String(), "commit, dry-run or metadata-only")
	cmd.Flags().BoolVar(&escalate, "escalate", false, "fail when any track had a warning or failed")
	cmd.Flags().StringVar(&manifestFile, "manifest", "", "YAML file listing the tracks to preprocess")
	return cmd
}

func printResults(cmd *cobra.Command, results []*pipeline.Result) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "GENOME\tTRACK\tSTATE\tELEMENTS\tPROCESSED\tERROR")
	for _, r := range results {
		if r == nil {
			continue
		}
		elements, processed, msg := "-", "-", ""
		if r.Record != nil {
			elements = humanize.Comma(r.Record.ElementCount)
			processed = humanize.Time(r.Record.LastProcessed)
		}
		if r.Err != nil {
			msg = r.Err.Error()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", r.Genome, r.Track, r.State, elements, processed, msg)
	}
	w.Flush()
}

func staleCommand() *cobra.Command {
	var manifestFile string
	cmd := &cobra.Command{
		Use:   "stale [GENOME/TRACK FILE...]",
		Short: "Report which stored rules of tracks are stale and why",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			jobs, err := jobsFromArgs(store, manifestFile, args)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			defer w.Flush()
			fmt.Fprintln(w, "GENOME\tTRACK\tRULE\tSTALE\tREASON")
			for _, job := range jobs {
				plan, err := store.Check(cmd.Context(), job)
				if err != nil {
					return fmt.Errorf("%s:%s: %v", job.Genome, job.Track, err)
				}
				for _, rule := range plan.Rules {
					fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\n", plan.Genome, plan.Track, catalog.RuleName(rule.AllowOverlaps), rule.Rewrite, rule.Reason)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&manifestFile, "manifest", "", "YAML file listing the tracks to check")
	return cmd
}

func queryCommand() *cobra.Command {
	var (
		noOverlaps bool
		formatName string
	)
	cmd := &cobra.Command{
		Use:   "query GENOME/TRACK REGION",
		Short: "Print the rows of a track overlapping a region as JSON",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			genome, track, err := trackRef(args[0])
			if err != nil {
				return err
			}
			region, err := genomics.ParseRegion(args[1])
			if err != nil {
				return err
			}
			req, err := formatReq(formatName)
			if err != nil {
				return err
			}
			store, err := openStore()
			if err != nil {
				return err
			}
			slice, err := store.QueryFormat(cmd.Context(), genome, track, !noOverlaps, region, req)
			if err != nil {
				return err
			}
			defer slice.Close()
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(slice)
		},
	}
	cmd.Flags().BoolVar(&noOverlaps, "no-overlaps", false, "query the copy of the track with overlapping elements merged")
	cmd.Flags().StringVar(&formatName, "format", "", "fail unless the track has this format, e.g. \"Valued segments\"")
	return cmd
}

func tracksCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tracks GENOME",
		Short: "List the stored tracks of a genome",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			tracks, err := store.Tracks(args[0])
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			defer w.Flush()
			fmt.Fprintln(w, "TRACK\tFORMAT\tELEMENTS\tPROCESSED")
			for _, track := range tracks {
				r, err := store.Record(cmd.Context(), args[0], track)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", track, r.Format, humanize.Comma(r.ElementCount), humanize.Time(r.LastProcessed))
			}
			return nil
		},
	}
}

func removeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "remove GENOME/TRACK",
		Short: "Delete the stored data of a track",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			genome, track, err := trackRef(args[0])
			if err != nil {
				return err
			}
			store, err := openStore()
			if err != nil {
				return err
			}
			return store.RemoveTrack(cmd.Context(), genome, track)
		},
	}
}

func serveCommand() *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve stored tracks over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			if listen == "" {
				listen = store.Config().Server.Listen
			}
			logger.Get().Info("serving tracks", zap.String("listen", listen), zap.String("root", store.Config().Store.Root))
			return api.NewServer(store).Run(listen)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "address to listen on, overriding the configuration")
	return cmd
}
