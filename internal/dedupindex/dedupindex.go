// Package dedupindex implements IndexDeduper (§4.C): a two-phase
// filter that makes every URL appear at most once across a set of
// gzip-compressed index shards, under a configurable keep policy. The
// per-shard scanning, progress counters, and worker-pool shape are
// adapted from the index sidecar generator's Config/Stats/counters
// pattern; the dedup rule itself follows deduplicate_index_urls.py's
// uniq_record/file_to_dict/filter_file split.
package dedupindex

import (
	"bufio"
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/DavidNemeskey/cc-corpus-go/internal/index"
)

// Keep selects which duplicate survives when the same URL appears more
// than once.
type Keep string

const (
	// KeepBiggest retains the entry with the larger byte length. Default.
	KeepBiggest Keep = "biggest"
	// KeepLatest retains the entry with the lexicographically larger
	// WARC file name, which approximates recency since WARC names embed
	// a dump date.
	KeepLatest Keep = "latest"
)

// Config controls a dedup run.
type Config struct {
	Keep             Keep
	HashURLs         bool // store fnv(url) instead of the url string, to bound memory
	SkipURLs         map[string]struct{}
	Concurrency      int
	ProgressInterval time.Duration // periodic progress logging; 0 disables it
}

// Record is the subset of an IndexEntry's fields the dedup decision and
// the filter pass need.
type Record struct {
	URL    string
	WARC   string
	Offset int64
	Length int64
	Line   string // the full raw shard line, re-emitted verbatim on a win
}

// Stats summarizes one Run.
type Stats struct {
	ShardsScanned int64
	LinesScanned  int64
	Kept          int64
	Dropped       int64
	Skipped       int64 // dropped by the pre-seeded skip set
}

type counters struct {
	mu                                         sync.Mutex
	shards, lines, kept, dropped, skippedCount int64
}

func (c *counters) addShard()             { c.mu.Lock(); c.shards++; c.mu.Unlock() }
func (c *counters) addLines(n int64)      { c.mu.Lock(); c.lines += n; c.mu.Unlock() }
func (c *counters) addKept(n int64)       { c.mu.Lock(); c.kept += n; c.mu.Unlock() }
func (c *counters) addDropped(n int64)    { c.mu.Lock(); c.dropped += n; c.mu.Unlock() }
func (c *counters) addSkipped(n int64)    { c.mu.Lock(); c.skippedCount += n; c.mu.Unlock() }
func (c *counters) snapshot() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{ShardsScanned: c.shards, LinesScanned: c.lines, Kept: c.kept, Dropped: c.dropped, Skipped: c.skippedCount}
}

// urlKey is what the global map actually indexes by: either the raw
// URL or its fnv hash, per Config.HashURLs. The operator accepts the
// theoretical collision risk of the hashed mode in exchange for bounded
// memory.
func urlKey(url string, hashURLs bool) string {
	if !hashURLs {
		return url
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(url))
	return fmt.Sprintf("%x", h.Sum64())
}

// winner beats challenger under policy, returning whichever should be
// kept.
func winner(policy Keep, a, b Record) Record {
	switch policy {
	case KeepLatest:
		if b.WARC > a.WARC {
			return b
		}
		return a
	default: // KeepBiggest
		if b.Length > a.Length {
			return b
		}
		return a
	}
}

// Run executes the full two-phase dedup over shards (paths to
// gzip-compressed index files), writing one filtered, still
// gzip-compressed shard per input into outDir with the same base name.
func Run(ctx context.Context, shards []string, outDir string, cfg Config) (Stats, error) {
	if cfg.Keep == "" {
		cfg.Keep = KeepBiggest
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return Stats{}, fmt.Errorf("dedupindex: creating output dir: %w", err)
	}

	ctrs := &counters{}
	if cfg.ProgressInterval > 0 {
		pctx, cancel := context.WithCancel(ctx)
		defer cancel()
		LogProgress(pctx, ctrs.snapshot, cfg.ProgressInterval)
	}

	// Phase 1: in-file maps, one per shard, built concurrently.
	type shardMap struct {
		shard string
		local map[string]Record
	}
	localMaps := make([]shardMap, len(shards))

	jobs := make(chan int)
	var wg sync.WaitGroup
	var firstErr error
	var errMu sync.Mutex
	for i := 0; i < cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				local, err := fileToMap(shards[idx], cfg, ctrs)
				if err != nil {
					errMu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					errMu.Unlock()
					continue
				}
				localMaps[idx] = shardMap{shard: shards[idx], local: local}
			}
		}()
	}
	for i := range shards {
		select {
		case jobs <- i:
		case <-ctx.Done():
		}
	}
	close(jobs)
	wg.Wait()
	if firstErr != nil {
		return ctrs.snapshot(), firstErr
	}

	// Phase 2: merge into the global map applying the same policy.
	global := make(map[string]Record)
	for _, sm := range localMaps {
		for key, rec := range sm.local {
			if existing, ok := global[key]; ok {
				global[key] = winner(cfg.Keep, existing, rec)
			} else {
				global[key] = rec
			}
		}
	}

	// Phase 2 continued: re-stream each shard, keep only lines whose
	// (warc, offset, length) matches the global winner for their URL.
	for _, shard := range shards {
		if err := filterShard(shard, outDir, global, cfg, ctrs); err != nil {
			return ctrs.snapshot(), err
		}
	}

	return ctrs.snapshot(), nil
}

// fileToMap builds the local per-shard map for phase 1, applying the
// skip set before either phase sees the URL.
func fileToMap(shard string, cfg Config, ctrs *counters) (map[string]Record, error) {
	f, err := os.Open(shard)
	if err != nil {
		return nil, fmt.Errorf("dedupindex: opening %s: %w", shard, err)
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("dedupindex: gzip %s: %w", shard, err)
	}
	defer gz.Close()

	local := make(map[string]Record)
	var lines int64
	s := bufio.NewScanner(gz)
	s.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for s.Scan() {
		line := s.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines++
		rec, url, err := parseShardLine(line)
		if err != nil {
			return nil, fmt.Errorf("dedupindex: %s: %w", shard, err)
		}
		if _, skip := cfg.SkipURLs[url]; skip {
			ctrs.addSkipped(1)
			continue
		}
		key := urlKey(url, cfg.HashURLs)
		if existing, ok := local[key]; ok {
			local[key] = winner(cfg.Keep, existing, rec)
		} else {
			local[key] = rec
		}
	}
	ctrs.addShard()
	ctrs.addLines(lines)
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("dedupindex: scanning %s: %w", shard, err)
	}
	return local, nil
}

// filterShard re-reads shard and writes only the lines whose
// (warc, offset, length) is the global winner for its URL.
func filterShard(shard, outDir string, global map[string]Record, cfg Config, ctrs *counters) error {
	f, err := os.Open(shard)
	if err != nil {
		return fmt.Errorf("dedupindex: opening %s: %w", shard, err)
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("dedupindex: gzip %s: %w", shard, err)
	}
	defer gz.Close()

	outPath := filepath.Join(outDir, filepath.Base(shard))
	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("dedupindex: creating %s: %w", outPath, err)
	}
	defer out.Close()
	gw := gzip.NewWriter(out)
	defer gw.Close()

	var kept, dropped int64
	s := bufio.NewScanner(gz)
	s.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for s.Scan() {
		line := s.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		rec, url, err := parseShardLine(line)
		if err != nil {
			return fmt.Errorf("dedupindex: %s: %w", shard, err)
		}
		if _, skip := cfg.SkipURLs[url]; skip {
			continue
		}
		key := urlKey(url, cfg.HashURLs)
		win, ok := global[key]
		if !ok {
			dropped++
			continue
		}
		if win.WARC == rec.WARC && win.Offset == rec.Offset && win.Length == rec.Length {
			fmt.Fprintln(gw, line)
			kept++
		} else {
			dropped++
		}
	}
	if err := s.Err(); err != nil {
		return fmt.Errorf("dedupindex: scanning %s: %w", shard, err)
	}
	ctrs.addKept(kept)
	ctrs.addDropped(dropped)
	return nil
}

// parseShardLine extracts the fields needed for dedup from a raw index
// line ("surt timestamp json").
func parseShardLine(line string) (Record, string, error) {
	e, err := index.ParseIndexLine(line)
	if err != nil {
		return Record{}, "", err
	}
	return Record{URL: e.URL, WARC: e.WARCFile, Offset: e.Offset, Length: e.Length, Line: line}, e.URL, nil
}

// LogProgress starts a goroutine that logs Stats every interval until
// ctx is cancelled, in the style of the index sidecar's progress
// ticker.
func LogProgress(ctx context.Context, get func() Stats, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s := get()
				slog.Info("dedupindex_progress", "shards", s.ShardsScanned, "lines", s.LinesScanned,
					"kept", s.Kept, "dropped", s.Dropped, "skipped", s.Skipped)
			}
		}
	}()
}
