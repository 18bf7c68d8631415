// Command dedup-index runs IndexDeduper over a directory of
// gzip-compressed index shards, making every URL appear at most once
// across the whole set.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/DavidNemeskey/cc-corpus-go/internal/dedupindex"
	"github.com/DavidNemeskey/cc-corpus-go/internal/logging"
	"github.com/DavidNemeskey/cc-corpus-go/internal/metrics"
)

func main() {
	var (
		inputDir   = flag.String("input-dir", "", "Directory of gzip-compressed index shards (*.gz)")
		outputDir  = flag.String("output-dir", "", "Directory to write filtered shards into")
		keep       = flag.String("keep", "biggest", "Which duplicate survives: biggest|latest")
		hashURLs   = flag.Bool("hash-urls", false, "Store fnv(url) instead of the url string to bound memory")
		skipURLs   = flag.String("skip-urls", "", "Optional file of URLs to always drop, one per line")
		processes  = flag.Int("processes", 4, "Number of concurrent shard-scanning workers")
		progress   = flag.Duration("progress-interval", 0, "Periodic progress logging interval (0=disabled)")
		logFormat  = flag.String("log-format", "text", "Logging format: text|json")
		logLevel   = flag.String("log-level", "info", "Logging level: debug|info|warning|error|critical")
		listenAddr = flag.String("listen", "", "Serve Prometheus metrics and pprof at this address (e.g., :9090)")
	)
	flag.Parse()
	logging.Setup(*logFormat, *logLevel)
	metrics.StartServer(*listenAddr)

	if *inputDir == "" || *outputDir == "" {
		slog.Error("missing required flag: need -input-dir and -output-dir")
		fmt.Fprintln(os.Stderr, "Usage: dedup-index -input-dir <dir> -output-dir <dir> [options]")
		flag.PrintDefaults()
		os.Exit(1)
	}

	var keepPolicy dedupindex.Keep
	switch strings.ToLower(*keep) {
	case "biggest", "":
		keepPolicy = dedupindex.KeepBiggest
	case "latest":
		keepPolicy = dedupindex.KeepLatest
	default:
		slog.Error("invalid -keep, want biggest or latest", "keep", *keep)
		os.Exit(1)
	}

	shards, err := filepath.Glob(filepath.Join(*inputDir, "*.gz"))
	if err != nil {
		slog.Error("globbing input dir failed", "err", err)
		os.Exit(2)
	}
	if len(shards) == 0 {
		slog.Error("no *.gz shards found", "dir", *inputDir)
		os.Exit(1)
	}

	skip, err := readSkipSet(*skipURLs)
	if err != nil {
		slog.Error("reading skip-urls failed", "err", err)
		os.Exit(2)
	}

	cfg := dedupindex.Config{
		Keep:             keepPolicy,
		HashURLs:         *hashURLs,
		SkipURLs:         skip,
		Concurrency:      *processes,
		ProgressInterval: *progress,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stats, err := dedupindex.Run(ctx, shards, *outputDir, cfg)
	if err != nil {
		slog.Error("dedup run failed", "err", err)
		os.Exit(2)
	}
	slog.Info("dedup complete", "shards", stats.ShardsScanned, "lines", stats.LinesScanned,
		"kept", stats.Kept, "dropped", stats.Dropped, "skipped", stats.Skipped)
}

func readSkipSet(path string) (map[string]struct{}, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	out := make(map[string]struct{})
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		out[line] = struct{}{}
	}
	return out, sc.Err()
}
