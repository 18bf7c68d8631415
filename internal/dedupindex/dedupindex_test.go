package dedupindex

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
)

func writeShard(t *testing.T, dir, name string, lines []string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()
	gw := gzip.NewWriter(f)
	defer gw.Close()
	for _, l := range lines {
		fmt.Fprintln(gw, l)
	}
	return path
}

func indexLine(surt, url, warc string, offset, length int) string {
	return fmt.Sprintf(`%s 20200101000000 {"url":%q,"filename":%q,"offset":"%d","length":"%d","status":"200","mime":"text/html"}`,
		surt, url, warc, offset, length)
}

func TestRunKeepBiggest(t *testing.T) {
	dir := t.TempDir()
	outDir := filepath.Join(dir, "out")

	shard1 := writeShard(t, dir, "1.gz", []string{
		indexLine("com,example)/", "http://example.com/", "warc-a.warc.gz", 0, 100),
	})
	shard2 := writeShard(t, dir, "2.gz", []string{
		indexLine("com,example)/", "http://example.com/", "warc-b.warc.gz", 0, 500),
	})

	stats, err := Run(context.Background(), []string{shard1, shard2}, outDir, Config{Keep: KeepBiggest, Concurrency: 2})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Kept != 1 || stats.Dropped != 1 {
		t.Fatalf("stats = %+v, want Kept=1 Dropped=1", stats)
	}

	lines1 := readGzLines(t, filepath.Join(outDir, "1.gz"))
	lines2 := readGzLines(t, filepath.Join(outDir, "2.gz"))
	if len(lines1) != 0 {
		t.Fatalf("shard 1 should have been fully dropped (smaller length), got %v", lines1)
	}
	if len(lines2) != 1 {
		t.Fatalf("shard 2 should have kept its one (bigger) line, got %v", lines2)
	}
}

func TestRunKeepLatest(t *testing.T) {
	dir := t.TempDir()
	outDir := filepath.Join(dir, "out")

	shard1 := writeShard(t, dir, "1.gz", []string{
		indexLine("com,example)/", "http://example.com/", "CC-MAIN-2019-01.warc.gz", 0, 999),
	})
	shard2 := writeShard(t, dir, "2.gz", []string{
		indexLine("com,example)/", "http://example.com/", "CC-MAIN-2020-05.warc.gz", 0, 10),
	})

	stats, err := Run(context.Background(), []string{shard1, shard2}, outDir, Config{Keep: KeepLatest, Concurrency: 2})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Kept != 1 {
		t.Fatalf("stats = %+v, want Kept=1", stats)
	}
	lines2 := readGzLines(t, filepath.Join(outDir, "2.gz"))
	if len(lines2) != 1 {
		t.Fatalf("shard 2 (lexicographically later warc name) should have won, got %v", lines2)
	}
	lines1 := readGzLines(t, filepath.Join(outDir, "1.gz"))
	if len(lines1) != 0 {
		t.Fatalf("shard 1 should have lost, got %v", lines1)
	}
}

func TestRunSkipSet(t *testing.T) {
	dir := t.TempDir()
	outDir := filepath.Join(dir, "out")

	shard := writeShard(t, dir, "1.gz", []string{
		indexLine("com,example)/", "http://example.com/", "warc-a.warc.gz", 0, 100),
		indexLine("com,other)/", "http://other.com/", "warc-a.warc.gz", 100, 50),
	})

	stats, err := Run(context.Background(), []string{shard}, outDir, Config{
		Keep:     KeepBiggest,
		SkipURLs: map[string]struct{}{"http://example.com/": {}},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Skipped != 1 {
		t.Fatalf("stats.Skipped = %d, want 1", stats.Skipped)
	}
	lines := readGzLines(t, filepath.Join(outDir, "1.gz"))
	if len(lines) != 1 {
		t.Fatalf("expected exactly 1 surviving line, got %v", lines)
	}
}

func readGzLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	gr, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("gzip reader %s: %v", path, err)
	}
	defer gr.Close()
	var lines []string
	s := bufio.NewScanner(gr)
	for s.Scan() {
		lines = append(lines, s.Text())
	}
	return lines
}
