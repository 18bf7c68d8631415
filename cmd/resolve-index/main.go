// Command resolve-index turns a set of hostname patterns and a
// decompressed top-level cluster index into the byte ranges of the
// per-dump index files that must be fetched to see every URL under
// those patterns.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/DavidNemeskey/cc-corpus-go/internal/index"
	"github.com/DavidNemeskey/cc-corpus-go/internal/logging"
	"github.com/DavidNemeskey/cc-corpus-go/internal/metrics"
)

func main() {
	var (
		clusterIndex = flag.String("cluster-index", "", "Path to the decompressed top-level cluster.idx")
		patternsPath = flag.String("patterns", "", "Path to a file of hostname patterns, one per line (e.g. elte.hu)")
		outputDir    = flag.String("output-dir", "", "Directory to write ranges.tsv into")
		maxCluster   = flag.Int("max-cluster", 0, "Maximum clusters coalesced into one FileRange (0 = unlimited)")
		logFormat    = flag.String("log-format", "text", "Logging format: text|json")
		logLevel     = flag.String("log-level", "info", "Logging level: debug|info|warning|error|critical")
		listenAddr   = flag.String("listen", "", "Serve Prometheus metrics and pprof at this address (e.g., :9090)")
	)
	flag.Parse()
	logging.Setup(*logFormat, *logLevel)
	metrics.StartServer(*listenAddr)

	if *clusterIndex == "" || *patternsPath == "" || *outputDir == "" {
		slog.Error("missing required flag: need -cluster-index, -patterns and -output-dir")
		fmt.Fprintln(os.Stderr, "Usage: resolve-index -cluster-index <path> -patterns <path> -output-dir <dir> [options]")
		flag.PrintDefaults()
		os.Exit(1)
	}

	patterns, err := readPatterns(*patternsPath)
	if err != nil {
		slog.Error("reading patterns failed", "err", err)
		os.Exit(2)
	}
	if len(patterns) == 0 {
		slog.Error("patterns file is empty", "path", *patternsPath)
		os.Exit(1)
	}

	f, err := os.Open(*clusterIndex)
	if err != nil {
		slog.Error("opening cluster index failed", "err", err)
		os.Exit(2)
	}
	defer f.Close()

	var clusters []index.Cluster
	if err := index.ReadClusterIndex(f, func(c index.Cluster) error {
		clusters = append(clusters, c)
		return nil
	}); err != nil {
		slog.Error("reading cluster index failed", "err", err)
		os.Exit(2)
	}
	slog.Info("loaded cluster index", "clusters", len(clusters))

	collected := index.CollectClusters(patterns, clusters)
	ranges, err := index.RangesFromClusters(collected, *maxCluster)
	if err != nil {
		slog.Error("coalescing ranges failed", "err", err)
		os.Exit(2)
	}
	slog.Info("resolved ranges", "patterns", len(patterns), "clusters", len(collected), "ranges", len(ranges))

	if err := os.MkdirAll(*outputDir, 0o755); err != nil {
		slog.Error("creating output dir failed", "err", err)
		os.Exit(2)
	}
	outPath := filepath.Join(*outputDir, "ranges.tsv")
	out, err := os.Create(outPath)
	if err != nil {
		slog.Error("creating ranges.tsv failed", "err", err)
		os.Exit(2)
	}
	defer out.Close()
	bw := bufio.NewWriter(out)
	for _, r := range ranges {
		fmt.Fprintf(bw, "%s\t%d\t%d\n", r.File, r.Offset, r.Length)
	}
	if err := bw.Flush(); err != nil {
		slog.Error("writing ranges.tsv failed", "err", err)
		os.Exit(2)
	}
}

func readPatterns(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var out [][]string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, index.SplitPattern(line))
	}
	return out, sc.Err()
}
