package lsh

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/DavidNemeskey/cc-corpus-go/internal/minhash"
)

const textA = "Hungary is a landlocked country in Central Europe with a rich cultural history."
const textADup = "Hungary is a landlocked country in Central Europe with a rich cultural heritage."
const textB = "Quantum mechanics describes the behavior of matter at subatomic scales precisely."

func writeBatch(t *testing.T, dir string, n int, entries []struct {
	source string
	url    string
	text   string
}) {
	t.Helper()
	w, err := minhash.NewBatchWriter(minhash.BatchConfig{OutDir: dir, FirstIndex: n})
	if err != nil {
		t.Fatalf("NewBatchWriter: %v", err)
	}
	for i, e := range entries {
		sig := minhash.Compute(e.text)
		if err := w.AddSignature(e.source, e.url, i, sig); err != nil {
			t.Fatalf("AddSignature: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestSelfDedupDropsNearDuplicateWithinBatch(t *testing.T) {
	dir := t.TempDir()
	writeBatch(t, dir, 0, []struct {
		source string
		url    string
		text   string
	}{
		{"c0.txt", "http://a/", textA},
		{"c0.txt", "http://a2/", textADup},
		{"c0.txt", "http://b/", textB},
	})

	batch, err := ReadBatch(dir, 0, 0)
	if err != nil {
		t.Fatalf("ReadBatch: %v", err)
	}

	outDir := filepath.Join(dir, "out")
	w, err := minhash.NewBatchWriter(minhash.BatchConfig{OutDir: outDir})
	if err != nil {
		t.Fatalf("NewBatchWriter: %v", err)
	}
	kept, err := SelfDedup(batch, w, 32)
	if err != nil {
		t.Fatalf("SelfDedup: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if kept != 2 {
		t.Fatalf("kept = %d, want 2 (one of the near-duplicate pair dropped)", kept)
	}

	out, err := ReadBatch(outDir, 0, 0)
	if err != nil {
		t.Fatalf("ReadBatch(out): %v", err)
	}
	if len(out.Signatures) != 2 {
		t.Fatalf("output batch has %d signatures, want 2", len(out.Signatures))
	}
}

func TestCrossBatchStreamingDropsDuplicateAcrossBatches(t *testing.T) {
	dir := t.TempDir()
	writeBatch(t, dir, 0, []struct {
		source string
		url    string
		text   string
	}{
		{"c0.txt", "http://a/", textA},
	})
	writeBatch(t, dir, 1, []struct {
		source string
		url    string
		text   string
	}{
		{"c1.txt", "http://a2/", textADup},
		{"c1.txt", "http://b/", textB},
	})

	b0, err := ReadBatch(dir, 0, 0)
	if err != nil {
		t.Fatalf("ReadBatch 0: %v", err)
	}
	b1, err := ReadBatch(dir, 1, 0)
	if err != nil {
		t.Fatalf("ReadBatch 1: %v", err)
	}

	outDir := filepath.Join(dir, "out")
	newWriter := func(n int) (*minhash.BatchWriter, error) {
		return minhash.NewBatchWriter(minhash.BatchConfig{OutDir: outDir, FirstIndex: n})
	}
	if err := CrossBatchStreaming([]*Batch{b0, b1}, 32, newWriter); err != nil {
		t.Fatalf("CrossBatchStreaming: %v", err)
	}

	out0, err := ReadBatch(outDir, 0, 0)
	if err != nil {
		t.Fatalf("ReadBatch(out 0): %v", err)
	}
	if len(out0.Signatures) != 1 {
		t.Fatalf("batch 0 output has %d signatures, want 1", len(out0.Signatures))
	}

	out1, err := ReadBatch(outDir, 1, 0)
	if err != nil {
		t.Fatalf("ReadBatch(out 1): %v", err)
	}
	if len(out1.Signatures) != 1 {
		t.Fatalf("batch 1 output has %d signatures, want 1 (the duplicate of batch 0 dropped)", len(out1.Signatures))
	}
	if out1.DocIDs[0].URL != "http://b/" {
		t.Fatalf("batch 1 survivor = %v, want the non-duplicate entry", out1.DocIDs[0])
	}
}

func TestCrossBatchInMemoryResumesFromDoneMarker(t *testing.T) {
	dir := t.TempDir()
	writeBatch(t, dir, 0, []struct {
		source string
		url    string
		text   string
	}{
		{"c0.txt", "http://a/", textA},
	})
	writeBatch(t, dir, 1, []struct {
		source string
		url    string
		text   string
	}{
		{"c1.txt", "http://a2/", textADup},
	})

	b0, err := ReadBatch(dir, 0, 0)
	if err != nil {
		t.Fatalf("ReadBatch 0: %v", err)
	}
	b1, err := ReadBatch(dir, 1, 0)
	if err != nil {
		t.Fatalf("ReadBatch 1: %v", err)
	}

	outDir := filepath.Join(dir, "out")
	newWriter := func(n int) (*minhash.BatchWriter, error) {
		return minhash.NewBatchWriter(minhash.BatchConfig{OutDir: outDir, FirstIndex: n})
	}

	done := map[int]bool{0: true}
	isDone := func(n int) bool { return done[n] }
	markDone := func(n int) error { done[n] = true; return nil }

	// Pre-seed batch 0's already-completed output, matching what a real
	// run would have on disk already. CrossBatchInMemory does not read it
	// back: batch 0's history comes from b0, passed in below.
	writeBatch(t, outDir, 0, []struct {
		source string
		url    string
		text   string
	}{
		{"c0.txt", "http://a/", textA},
	})

	if err := CrossBatchInMemory([]*Batch{b0, b1}, 32, newWriter, isDone, markDone); err != nil {
		t.Fatalf("CrossBatchInMemory: %v", err)
	}

	if _, err := os.Stat(filepath.Join(outDir, "1.minhashes")); err == nil {
		out1, err := ReadBatch(outDir, 1, 0)
		if err != nil {
			t.Fatalf("ReadBatch(out 1): %v", err)
		}
		if len(out1.Signatures) != 0 {
			t.Fatalf("batch 1 output has %d signatures, want 0 (duplicate of already-done batch 0)", len(out1.Signatures))
		}
	}
	if !done[1] {
		t.Fatal("expected batch 1 to be marked done")
	}
}
