// Command extract-corpus joins the deduplicated index against the
// archive's actual content: for every surviving IndexEntry it fetches
// the underlying WARC-style byte range, decompresses and splits it
// back into individual records, pairs them against the entries that
// requested them, strips boilerplate, and writes the resulting
// documents into numbered corpus batch files.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/DavidNemeskey/cc-corpus-go/internal/batch"
	"github.com/DavidNemeskey/cc-corpus-go/internal/extract"
	"github.com/DavidNemeskey/cc-corpus-go/internal/fetch"
	"github.com/DavidNemeskey/cc-corpus-go/internal/index"
	"github.com/DavidNemeskey/cc-corpus-go/internal/logging"
	"github.com/DavidNemeskey/cc-corpus-go/internal/metrics"
	"github.com/DavidNemeskey/cc-corpus-go/internal/objectstore"
	"github.com/DavidNemeskey/cc-corpus-go/internal/pairer"
	"github.com/DavidNemeskey/cc-corpus-go/internal/records"
)

func main() {
	var (
		inputDir   = flag.String("input-dir", "", "Directory of deduplicated index shards (*.gz)")
		outputDir  = flag.String("output-dir", "", "Directory to write corpus batch files into")
		baseURL    = flag.String("base-url", "", "HTTP base URL to fetch archive content from (mutually exclusive with -s3-bucket)")
		s3Bucket   = flag.String("s3-bucket", "", "S3 bucket to fetch archive content from (mutually exclusive with -base-url)")
		s3Region   = flag.String("s3-region", "us-east-1", "S3 region")
		s3Anon     = flag.Bool("s3-anonymous", true, "Use anonymous (unsigned) S3 requests")
		processes  = flag.Int("processes", 8, "Number of concurrent content fetch workers")
		retries    = flag.Int("retries", 6, "Max fetcher attempts per range (with -base-url the HTTP client also retries each attempt up to this many times)")
		retryBase  = flag.Duration("retry-base", 500*time.Millisecond, "Initial backoff between retries")
		retryMax   = flag.Duration("retry-max", 30*time.Second, "Backoff ceiling")
		maxCluster = flag.Int("max-cluster", 50, "Maximum entries coalesced into one content FileRange")
		remover    = flag.String("remover", "justext", "Boilerplate remover: justext|density")
		minBytes   = flag.Int("min-bytes", 0, "Minimum surviving text length in bytes (0 = default 13)")
		batchSize  = flag.Int("batch-size", 5000, "Documents per output corpus file")
		digits     = flag.Int("digits", 0, "Zero-padded width of output file numbers (0 = no padding)")
		logFormat  = flag.String("log-format", "text", "Logging format: text|json")
		logLevel   = flag.String("log-level", "info", "Logging level: debug|info|warning|error|critical")
		listenAddr = flag.String("listen", "", "Serve Prometheus metrics and pprof at this address (e.g., :9090)")
	)
	flag.Parse()
	logging.Setup(*logFormat, *logLevel)
	metrics.StartServer(*listenAddr)

	if *inputDir == "" || *outputDir == "" {
		slog.Error("missing required flag: need -input-dir and -output-dir")
		fmt.Fprintln(os.Stderr, "Usage: extract-corpus -input-dir <dir> -output-dir <dir> [-base-url url | -s3-bucket name] [options]")
		flag.PrintDefaults()
		os.Exit(1)
	}
	if (*baseURL == "") == (*s3Bucket == "") {
		slog.Error("exactly one of -base-url or -s3-bucket must be set")
		os.Exit(1)
	}

	var remErr error
	var boilerplateRemover extract.BoilerplateRemover
	switch *remover {
	case "justext", "":
		boilerplateRemover = extract.NewJustextRemover(nil)
	case "density":
		boilerplateRemover = extract.NewDensityRemover()
	default:
		remErr = fmt.Errorf("invalid -remover %q, want justext or density", *remover)
	}
	if remErr != nil {
		slog.Error("bad flag", "err", remErr)
		os.Exit(1)
	}

	ex, err := extract.NewExtractor(extract.Config{Remover: boilerplateRemover, MinTotalBytes: *minBytes})
	if err != nil {
		slog.Error("building extractor failed", "err", err)
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

	var entries []index.IndexEntry
	for _, shard := range shards {
		es, err := readShard(shard)
		if err != nil {
			slog.Error("reading shard failed", "shard", shard, "err", err)
			os.Exit(2)
		}
		entries = append(entries, es...)
	}
	slog.Info("loaded index entries", "entries", len(entries), "shards", len(shards))

	var reader objectstore.RangeReader
	if *baseURL != "" {
		reader = objectstore.NewHTTPRangeReader(*baseURL, objectstore.HTTPRangeReaderConfig{MaxRetries: *retries})
	} else {
		ctx := context.Background()
		s3r, err := objectstore.NewS3RangeReader(ctx, *s3Bucket, *s3Region, *s3Anon)
		if err != nil {
			slog.Error("initializing S3 reader failed", "err", err)
			os.Exit(2)
		}
		reader = s3r
	}
	fetcher := fetch.NewFetcher(reader, fetch.Config{
		Workers:   *processes,
		Retries:   *retries,
		RetryBase: *retryBase,
		RetryMax:  *retryMax,
	})

	groups := groupByWARCFile(entries)

	w, err := batch.NewWriter(batch.Config{OutDir: *outputDir, Suffix: ".txt", Digits: *digits, BatchSize: *batchSize})
	if err != nil {
		slog.Error("opening corpus batch writer failed", "err", err)
		os.Exit(2)
	}
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var extracted, dropped, fetchFailed, pairFailed int
	seq := 0
	for _, g := range groups {
		ranges, err := rangesForGroup(g, *maxCluster)
		if err != nil {
			slog.Error("coalescing content ranges failed", "warc-file", g[0].WARCFile, "err", err)
			os.Exit(2)
		}

		fetcher.FetchAll(ctx, ranges, func(res fetch.Result) {
			if res.Err != nil {
				slog.Warn("content range fetch failed", "file", res.Range.File, "offset", res.Range.Offset, "err", res.Err)
				fetchFailed++
				return
			}

			var decompressed []byte
			derr := index.DecompressConcatenated(res.Data, func(stream []byte) error {
				decompressed = append(decompressed, stream...)
				return nil
			})
			if derr != nil {
				slog.Warn("content range decompress failed", "file", res.Range.File, "offset", res.Range.Offset, "err", derr)
				dropped++
				return
			}

			recs, serr := records.Split(decompressed)
			if serr != nil {
				slog.Warn("record split failed", "file", res.Range.File, "offset", res.Range.Offset, "err", serr)
				dropped++
				return
			}

			rangeEntries := entriesInRange(g, res.Range)
			ri := 0
			perr := pairer.Pair(res.Range.File, rangeEntries,
				func(e index.IndexEntry) string { return e.URL },
				func() (pairer.Record, bool) {
					if ri >= len(recs) {
						return pairer.Record{}, false
					}
					r := recs[ri]
					ri++
					return r, true
				},
				func(p pairer.Pair[index.IndexEntry]) {
					doc, reason := ex.Extract(p.Record.Bytes, p.Entry, seq)
					seq++
					if doc == nil {
						slog.Debug("record dropped", "url", p.Entry.URL, "reason", reason)
						dropped++
						return
					}
					if _, werr := w.WriteItem([]byte(doc.String())); werr != nil {
						slog.Error("writing document failed", "url", p.Entry.URL, "err", werr)
						return
					}
					extracted++
				})
			if perr != nil {
				slog.Warn("pairing failed for range", "file", res.Range.File, "offset", res.Range.Offset, "err", perr)
				pairFailed++
			}
		})
	}

	slog.Info("extraction complete", "extracted", extracted, "dropped", dropped,
		"fetch_failed", fetchFailed, "pair_failed", pairFailed)
	if fetchFailed > 0 && extracted == 0 {
		os.Exit(2)
	}
}

func readShard(path string) ([]index.IndexEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer gz.Close()

	var out []index.IndexEntry
	sc := bufio.NewScanner(gz)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		e, err := index.ParseIndexLine(line)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, sc.Err()
}

// groupByWARCFile buckets entries by their source WARC file and sorts
// each bucket by offset, so the bucket can be coalesced into FileRanges
// and paired against its own downloaded content in order.
func groupByWARCFile(entries []index.IndexEntry) [][]index.IndexEntry {
	byFile := make(map[string][]index.IndexEntry)
	var order []string
	for _, e := range entries {
		if _, ok := byFile[e.WARCFile]; !ok {
			order = append(order, e.WARCFile)
		}
		byFile[e.WARCFile] = append(byFile[e.WARCFile], e)
	}
	sort.Strings(order)
	groups := make([][]index.IndexEntry, 0, len(order))
	for _, f := range order {
		g := byFile[f]
		sort.Slice(g, func(i, j int) bool { return g[i].Offset < g[j].Offset })
		groups = append(groups, g)
	}
	return groups
}

// rangesForGroup splits a WARC-file group (already offset-sorted) into
// runs of byte-adjacent entries and reuses index.RangesFromClusters to
// coalesce each run into FileRanges, the same coalescing IndexResolver
// applies to top-level clusters. A gap between entries starts a new run.
func rangesForGroup(g []index.IndexEntry, maxCluster int) ([]index.FileRange, error) {
	var ranges []index.FileRange
	start := 0
	for i := 1; i <= len(g); i++ {
		if i < len(g) && g[i].Offset == g[i-1].Offset+g[i-1].Length {
			continue
		}
		clusters := make([]index.Cluster, 0, i-start)
		for _, e := range g[start:i] {
			clusters = append(clusters, index.Cluster{SURT: e.URL, File: e.WARCFile, Offset: e.Offset, Length: e.Length})
		}
		rs, err := index.RangesFromClusters(clusters, maxCluster)
		if err != nil {
			return nil, err
		}
		ranges = append(ranges, rs...)
		start = i
	}
	return ranges, nil
}

// entriesInRange returns the entries of g (already offset-sorted) that
// fall inside r, in order, for pairing against the records decoded out
// of r's fetched bytes.
func entriesInRange(g []index.IndexEntry, r index.FileRange) []index.IndexEntry {
	var out []index.IndexEntry
	for _, e := range g {
		if e.Offset >= r.Offset && e.Offset < r.Offset+r.Length {
			out = append(out, e)
		}
	}
	return out
}
