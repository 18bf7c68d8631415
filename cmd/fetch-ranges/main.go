// Command fetch-ranges downloads the byte ranges produced by
// resolve-index (or any other ranges.tsv producer) through a
// RangeFetcher and either writes the raw bytes straight through
// ("content" mode, for extract-corpus to decompress and split itself)
// or decodes them as per-dump index pages and re-emits them as
// gzip-compressed index shards ("index" mode, for dedup-index).
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/DavidNemeskey/cc-corpus-go/internal/fetch"
	"github.com/DavidNemeskey/cc-corpus-go/internal/index"
	"github.com/DavidNemeskey/cc-corpus-go/internal/logging"
	"github.com/DavidNemeskey/cc-corpus-go/internal/metrics"
	"github.com/DavidNemeskey/cc-corpus-go/internal/objectstore"
)

func main() {
	var (
		rangesFile = flag.String("ranges-file", "", "Path to a ranges.tsv (file, offset, length per line)")
		outputDir  = flag.String("output-dir", "", "Directory to write fetched output into")
		mode       = flag.String("mode", "content", "What the ranges decompress to: content|index")
		baseURL    = flag.String("base-url", "", "HTTP base URL to fetch ranges from (mutually exclusive with -s3-bucket)")
		s3Bucket   = flag.String("s3-bucket", "", "S3 bucket to fetch ranges from (mutually exclusive with -base-url)")
		s3Region   = flag.String("s3-region", "us-east-1", "S3 region")
		s3Anon     = flag.Bool("s3-anonymous", true, "Use anonymous (unsigned) S3 requests")
		processes  = flag.Int("processes", 8, "Number of concurrent range fetch workers")
		retries    = flag.Int("retries", 6, "Max fetcher attempts per range (with -base-url the HTTP client also retries each attempt up to this many times)")
		retryBase  = flag.Duration("retry-base", 500*time.Millisecond, "Initial backoff between retries")
		retryMax   = flag.Duration("retry-max", 30*time.Second, "Backoff ceiling")
		digits     = flag.Int("digits", 0, "Zero-padded width of output file numbers (0 = no padding)")
		logFormat  = flag.String("log-format", "text", "Logging format: text|json")
		logLevel   = flag.String("log-level", "info", "Logging level: debug|info|warning|error|critical")
		listenAddr = flag.String("listen", "", "Serve Prometheus metrics and pprof at this address (e.g., :9090)")
	)
	flag.Parse()
	logging.Setup(*logFormat, *logLevel)
	metrics.StartServer(*listenAddr)

	if *rangesFile == "" || *outputDir == "" {
		slog.Error("missing required flag: need -ranges-file and -output-dir")
		fmt.Fprintln(os.Stderr, "Usage: fetch-ranges -ranges-file <path> -output-dir <dir> [-base-url url | -s3-bucket name] [options]")
		flag.PrintDefaults()
		os.Exit(1)
	}
	if (*baseURL == "") == (*s3Bucket == "") {
		slog.Error("exactly one of -base-url or -s3-bucket must be set")
		os.Exit(1)
	}
	if *mode != "content" && *mode != "index" {
		slog.Error("invalid -mode, want content or index", "mode", *mode)
		os.Exit(1)
	}

	ranges, err := readRanges(*rangesFile)
	if err != nil {
		slog.Error("reading ranges file failed", "err", err)
		os.Exit(2)
	}
	if len(ranges) == 0 {
		slog.Info("no ranges to fetch")
		return
	}

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

	if err := os.MkdirAll(*outputDir, 0o755); err != nil {
		slog.Error("creating output dir failed", "err", err)
		os.Exit(2)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var fetched, fetchFailed, writeFailed int
	n := *digits
	i := 0
	fetcher.FetchAll(ctx, ranges, func(res fetch.Result) {
		if res.Err != nil {
			// An unavailable range is not fatal to the run: log and move
			// on, the same way a dropped record downstream would be.
			slog.Warn("range fetch failed", "file", res.Range.File, "offset", res.Range.Offset, "err", res.Err)
			fetchFailed++
			i++
			return
		}
		var writeErr error
		if *mode == "content" {
			writeErr = writeRawShard(*outputDir, i, n, res.Data)
		} else {
			writeErr = writeIndexShard(*outputDir, i, n, res.Data)
		}
		if writeErr != nil {
			// A local write failure points at disk/permission trouble,
			// not a missing archive range, so it is treated as fatal.
			slog.Error("writing fetched range failed", "index", i, "err", writeErr)
			writeFailed++
		} else {
			fetched++
		}
		i++
	})

	slog.Info("fetch complete", "ranges", len(ranges), "fetched", fetched,
		"fetch_failed", fetchFailed, "write_failed", writeFailed)
	if writeFailed > 0 {
		os.Exit(2)
	}
	if fetchFailed > 0 && fetched == 0 {
		os.Exit(2)
	}
}

func readRanges(path string) ([]index.FileRange, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var out []index.FileRange
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		parts := strings.Split(line, "\t")
		if len(parts) != 3 {
			return nil, fmt.Errorf("fetch-ranges: malformed line %q", line)
		}
		offset, err1 := strconv.ParseInt(parts[1], 10, 64)
		length, err2 := strconv.ParseInt(parts[2], 10, 64)
		if err1 != nil || err2 != nil {
			return nil, fmt.Errorf("fetch-ranges: malformed line %q", line)
		}
		out = append(out, index.FileRange{File: parts[0], Offset: offset, Length: length})
	}
	return out, sc.Err()
}

func numberedPath(dir string, i, digits int, suffix string) string {
	num := strconv.Itoa(i)
	if digits > 0 {
		num = fmt.Sprintf("%0*d", digits, i)
	}
	return filepath.Join(dir, num+suffix)
}

func writeRawShard(dir string, i, digits int, data []byte) error {
	return os.WriteFile(numberedPath(dir, i, digits, ".raw"), data, 0o644)
}

// writeIndexShard decodes a fetched index-file range and re-emits it
// as a gzip-compressed shard of "surt timestamp json" lines, the
// format internal/dedupindex.Run consumes.
func writeIndexShard(dir string, i, digits int, data []byte) error {
	f, err := os.Create(numberedPath(dir, i, digits, ".gz"))
	if err != nil {
		return err
	}
	gz := gzip.NewWriter(f)
	bw := bufio.NewWriter(gz)
	decodeErr := index.DecodeRange(data, func(e index.IndexEntry) error {
		_, werr := bw.WriteString(index.FormatIndexLine(e) + "\n")
		return werr
	})
	flushErr := bw.Flush()
	gzErr := gz.Close()
	closeErr := f.Close()
	if decodeErr != nil {
		return decodeErr
	}
	if flushErr != nil {
		return flushErr
	}
	if gzErr != nil {
		return gzErr
	}
	return closeErr
}
