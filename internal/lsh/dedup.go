package lsh

import (
	"fmt"

	"github.com/DavidNemeskey/cc-corpus-go/internal/minhash"
)

// SelfDedup runs the intra-batch phase (§4.H) over one already-loaded
// batch: a fresh index is built up signature by signature, and a
// signature is kept only if nothing already in the index matches it.
// Survivors are written to out, crediting each to its original source
// file.
func SelfDedup(b *Batch, out *minhash.BatchWriter, bands int) (kept int, err error) {
	idx, err := NewIndex[DocID](minhash.NumPermutations, bands)
	if err != nil {
		return 0, err
	}
	for i, sig := range b.Signatures {
		key := b.DocIDs[i]
		if len(idx.Query(sig)) > 0 {
			continue
		}
		idx.Insert(key, sig)
		if err := out.AddSignature(b.sourceFileFor(i), key.URL, key.ParagraphIndex, sig); err != nil {
			return kept, fmt.Errorf("lsh: writing survivor: %w", err)
		}
		kept++
	}
	return kept, nil
}

// WriterFactory opens the output BatchWriter for target batch number
// n; callers typically close over a minhash.BatchConfig with a
// different OutDir than the input.
type WriterFactory func(n int) (*minhash.BatchWriter, error)

// CrossBatchStreaming runs the streaming cross-batch strategy: for
// each target batch (already self-deduped) in order, every earlier
// batch's signatures evict matching candidates from a fresh index
// seeded with the target's own signatures; whatever remains is
// written out. Every batch is passed in already loaded, so all of
// them stay in memory for the whole run.
func CrossBatchStreaming(batches []*Batch, bands int, newWriter WriterFactory) error {
	for ti, target := range batches {
		idx, err := NewIndex[DocID](minhash.NumPermutations, bands)
		if err != nil {
			return err
		}
		for i, sig := range target.Signatures {
			idx.Insert(target.DocIDs[i], sig)
		}
		for ei := 0; ei < ti; ei++ {
			for _, sig := range batches[ei].Signatures {
				for _, k := range idx.Query(sig) {
					idx.Delete(k)
				}
			}
		}

		w, err := newWriter(target.N)
		if err != nil {
			return err
		}
		for i, sig := range target.Signatures {
			key := target.DocIDs[i]
			if !idx.Has(key) {
				continue
			}
			if err := w.AddSignature(target.sourceFileFor(i), key.URL, key.ParagraphIndex, sig); err != nil {
				w.Close()
				return fmt.Errorf("lsh: writing survivor: %w", err)
			}
		}
		if err := w.Close(); err != nil {
			return err
		}
	}
	return nil
}

// DoneChecker and DoneMarkerFunc report and record whether a batch
// directory has already been through the cross-batch phase, letting a
// rerun resume instead of redoing completed work.
type DoneChecker func(n int) bool
type DoneMarkerFunc func(n int) error

// CrossBatchInMemory runs the in-memory cross-batch strategy: one
// global index is seeded with every already-completed batch's
// signatures, then each remaining batch is processed in order against
// that shared index, with survivors inserted as they're found so
// later batches see them too. Each finished batch is marked done
// before moving on.
func CrossBatchInMemory(batches []*Batch, bands int, newWriter WriterFactory, isDone DoneChecker, markDone DoneMarkerFunc) error {
	idx, err := NewIndex[DocID](minhash.NumPermutations, bands)
	if err != nil {
		return err
	}
	for _, b := range batches {
		if !isDone(b.N) {
			continue
		}
		for i, sig := range b.Signatures {
			idx.Insert(b.DocIDs[i], sig)
		}
	}

	for _, b := range batches {
		if isDone(b.N) {
			continue
		}
		w, err := newWriter(b.N)
		if err != nil {
			return err
		}
		for i, sig := range b.Signatures {
			key := b.DocIDs[i]
			if len(idx.Query(sig)) > 0 {
				continue
			}
			idx.Insert(key, sig)
			if err := w.AddSignature(b.sourceFileFor(i), key.URL, key.ParagraphIndex, sig); err != nil {
				w.Close()
				return fmt.Errorf("lsh: writing survivor: %w", err)
			}
		}
		if err := w.Close(); err != nil {
			return err
		}
		if err := markDone(b.N); err != nil {
			return fmt.Errorf("lsh: marking batch %d done: %w", b.N, err)
		}
	}
	return nil
}
