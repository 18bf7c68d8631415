// Command lsh-dedup runs LSHDeduper over a directory of MinHash
// batches: an intra-batch pass removes near-duplicates within each
// batch, then a cross-batch pass (streaming or in-memory) removes
// near-duplicates across batches.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/DavidNemeskey/cc-corpus-go/internal/logging"
	"github.com/DavidNemeskey/cc-corpus-go/internal/lsh"
	"github.com/DavidNemeskey/cc-corpus-go/internal/metrics"
	"github.com/DavidNemeskey/cc-corpus-go/internal/minhash"
)

var batchNumPattern = regexp.MustCompile(`^(\d+)\.minhashes$`)

func main() {
	var (
		inputDir   = flag.String("input-dir", "", "Directory of MinHash batch triples")
		outputDir  = flag.String("output-dir", "", "Directory to write deduplicated batches into")
		strategy   = flag.String("strategy", "streaming", "Cross-batch strategy: streaming|in-memory")
		bands      = flag.Int("bands", 0, "LSH band count (0 = derive from -threshold)")
		threshold  = flag.Float64("threshold", 0.8, "Target Jaccard similarity threshold")
		digits     = flag.Int("digits", 0, "Zero-padded width of batch numbers (0 = no padding)")
		logFormat  = flag.String("log-format", "text", "Logging format: text|json")
		logLevel   = flag.String("log-level", "info", "Logging level: debug|info|warning|error|critical")
		listenAddr = flag.String("listen", "", "Serve Prometheus metrics and pprof at this address (e.g., :9090)")
	)
	flag.Parse()
	logging.Setup(*logFormat, *logLevel)
	metrics.StartServer(*listenAddr)

	if *inputDir == "" || *outputDir == "" {
		slog.Error("missing required flag: need -input-dir and -output-dir")
		fmt.Fprintln(os.Stderr, "Usage: lsh-dedup -input-dir <dir> -output-dir <dir> [options]")
		flag.PrintDefaults()
		os.Exit(1)
	}
	if *strategy != "streaming" && *strategy != "in-memory" {
		slog.Error("invalid -strategy, want streaming or in-memory", "strategy", *strategy)
		os.Exit(1)
	}

	bandCount := *bands
	if bandCount <= 0 {
		bandCount = lsh.BandsForThreshold(minhash.NumPermutations, *threshold)
	}

	nums, err := discoverBatchNumbers(*inputDir)
	if err != nil {
		slog.Error("scanning input dir failed", "err", err)
		os.Exit(2)
	}
	if len(nums) == 0 {
		slog.Error("no N.minhashes batches found", "dir", *inputDir)
		os.Exit(1)
	}
	slog.Info("discovered batches", "count", len(nums), "bands", bandCount)

	selfDir := filepath.Join(*outputDir, "self")
	for _, n := range nums {
		b, err := lsh.ReadBatch(*inputDir, n, *digits)
		if err != nil {
			slog.Error("reading batch failed", "batch", n, "err", err)
			os.Exit(2)
		}
		w, err := minhash.NewBatchWriter(minhash.BatchConfig{OutDir: selfDir, FirstIndex: n, Digits: *digits})
		if err != nil {
			slog.Error("opening self-dedup writer failed", "batch", n, "err", err)
			os.Exit(2)
		}
		kept, err := lsh.SelfDedup(b, w, bandCount)
		if err != nil {
			w.Close()
			slog.Error("self-dedup failed", "batch", n, "err", err)
			os.Exit(2)
		}
		if err := w.Close(); err != nil {
			slog.Error("closing self-dedup writer failed", "batch", n, "err", err)
			os.Exit(2)
		}
		slog.Info("self-dedup done", "batch", n, "kept", kept, "of", len(b.Signatures))
	}

	var selfBatches []*lsh.Batch
	for _, n := range nums {
		b, err := lsh.ReadBatch(selfDir, n, *digits)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				slog.Info("batch fully self-deduped away, skipping", "batch", n)
				continue
			}
			slog.Error("reading self-deduped batch failed", "batch", n, "err", err)
			os.Exit(2)
		}
		selfBatches = append(selfBatches, b)
	}

	finalDir := filepath.Join(*outputDir, "final")
	newWriter := func(n int) (*minhash.BatchWriter, error) {
		return minhash.NewBatchWriter(minhash.BatchConfig{OutDir: finalDir, FirstIndex: n, Digits: *digits})
	}

	if *strategy == "streaming" {
		if err := lsh.CrossBatchStreaming(selfBatches, bandCount, newWriter); err != nil {
			slog.Error("cross-batch streaming dedup failed", "err", err)
			os.Exit(2)
		}
	} else {
		doneDir := filepath.Join(*outputDir, "done")
		isDone := func(n int) bool { return lsh.IsDone(filepath.Join(doneDir, strconv.Itoa(n))) }
		markDone := func(n int) error {
			dir := filepath.Join(doneDir, strconv.Itoa(n))
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
			return lsh.MarkDone(dir)
		}
		if err := lsh.CrossBatchInMemory(selfBatches, bandCount, newWriter, isDone, markDone); err != nil {
			slog.Error("cross-batch in-memory dedup failed", "err", err)
			os.Exit(2)
		}
	}

	slog.Info("lsh dedup complete", "batches", len(selfBatches), "strategy", *strategy)
}

func discoverBatchNumbers(dir string) ([]int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var nums []int
	for _, e := range entries {
		m := batchNumPattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		nums = append(nums, n)
	}
	sort.Ints(nums)
	return nums, nil
}
