// Command minhash-corpus computes MinHash signatures for every
// paragraph of every document in a corpus batch directory and writes
// them out as MinHashBatch triples.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/DavidNemeskey/cc-corpus-go/internal/corpus"
	"github.com/DavidNemeskey/cc-corpus-go/internal/logging"
	"github.com/DavidNemeskey/cc-corpus-go/internal/metrics"
	"github.com/DavidNemeskey/cc-corpus-go/internal/minhash"
	"github.com/DavidNemeskey/cc-corpus-go/internal/workerpool"
)

type paragraphJob struct {
	sourceFile string
	url        string
	index      int
	text       string
}

type signatureResult struct {
	job paragraphJob
	sig minhash.Signature
}

func main() {
	var (
		inputDir   = flag.String("input-dir", "", "Directory of corpus batch files (*.txt)")
		outputDir  = flag.String("output-dir", "", "Directory to write minhash batch files into")
		processes  = flag.Int("processes", 8, "Number of concurrent signature-computing workers")
		batchSize  = flag.Int("batch-size", 100000, "Signatures per output minhash batch")
		digits     = flag.Int("digits", 0, "Zero-padded width of output batch numbers (0 = no padding)")
		logFormat  = flag.String("log-format", "text", "Logging format: text|json")
		logLevel   = flag.String("log-level", "info", "Logging level: debug|info|warning|error|critical")
		listenAddr = flag.String("listen", "", "Serve Prometheus metrics and pprof at this address (e.g., :9090)")
	)
	flag.Parse()
	logging.Setup(*logFormat, *logLevel)
	metrics.StartServer(*listenAddr)

	if *inputDir == "" || *outputDir == "" {
		slog.Error("missing required flag: need -input-dir and -output-dir")
		fmt.Fprintln(os.Stderr, "Usage: minhash-corpus -input-dir <dir> -output-dir <dir> [options]")
		flag.PrintDefaults()
		os.Exit(1)
	}

	files, err := filepath.Glob(filepath.Join(*inputDir, "*.txt"))
	if err != nil {
		slog.Error("globbing input dir failed", "err", err)
		os.Exit(2)
	}
	if len(files) == 0 {
		slog.Error("no *.txt corpus files found", "dir", *inputDir)
		os.Exit(1)
	}

	var jobs []paragraphJob
	for _, file := range files {
		docs, err := readDocuments(file)
		if err != nil {
			slog.Error("reading corpus file failed", "file", file, "err", err)
			os.Exit(2)
		}
		base := filepath.Base(file)
		for _, doc := range docs {
			url, ok := corpus.Get(doc.Attrs, "url")
			if !ok {
				url = doc.Repr()
			}
			for i, p := range doc.Paragraphs {
				jobs = append(jobs, paragraphJob{sourceFile: base, url: url, index: i, text: p})
			}
		}
	}
	slog.Info("loaded paragraphs", "files", len(files), "paragraphs", len(jobs))

	w, err := minhash.NewBatchWriter(minhash.BatchConfig{OutDir: *outputDir, Digits: *digits, BatchSize: *batchSize})
	if err != nil {
		slog.Error("opening minhash batch writer failed", "err", err)
		os.Exit(2)
	}
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var writeErr error
	workerpool.Run(ctx, jobs, *processes,
		func(_ context.Context, j paragraphJob) signatureResult {
			return signatureResult{job: j, sig: minhash.Compute(j.text)}
		},
		func(r signatureResult) {
			if writeErr != nil {
				return
			}
			if err := w.AddSignature(r.job.sourceFile, r.job.url, r.job.index, r.sig); err != nil {
				writeErr = err
			}
		},
	)
	if writeErr != nil {
		slog.Error("writing minhash batch failed", "err", writeErr)
		os.Exit(2)
	}
	slog.Info("minhashing complete", "paragraphs", len(jobs))
}

func readDocuments(path string) ([]*corpus.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return corpus.ParseAll(f, path)
}
