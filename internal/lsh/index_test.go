package lsh

import (
	"testing"

	"github.com/DavidNemeskey/cc-corpus-go/internal/minhash"
)

func TestIndexFindsNearDuplicate(t *testing.T) {
	idx, err := NewIndex[DocID](minhash.NumPermutations, 32)
	if err != nil {
		t.Fatalf("NewIndex: %v", err)
	}
	a := minhash.Compute("Hungary is a landlocked country in Central Europe with a rich cultural history.")
	b := minhash.Compute("Hungary is a landlocked country in Central Europe with a rich cultural heritage.")

	keyA := DocID{URL: "http://a/", ParagraphIndex: 0}
	idx.Insert(keyA, a)

	got := idx.Query(b)
	found := false
	for _, k := range got {
		if k == keyA {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected near-duplicate %v to be found, got %v", keyA, got)
	}
}

func TestIndexDoesNotFindDissimilar(t *testing.T) {
	idx, err := NewIndex[DocID](minhash.NumPermutations, 32)
	if err != nil {
		t.Fatalf("NewIndex: %v", err)
	}
	a := minhash.Compute("the quick brown fox jumps over the lazy dog repeatedly every single morning")
	b := minhash.Compute("quantum mechanics describes the behavior of matter at subatomic scales precisely")

	keyA := DocID{URL: "http://a/", ParagraphIndex: 0}
	idx.Insert(keyA, a)

	if got := idx.Query(b); len(got) != 0 {
		t.Fatalf("expected no candidates for dissimilar text, got %v", got)
	}
}

func TestIndexDelete(t *testing.T) {
	idx, err := NewIndex[DocID](minhash.NumPermutations, 16)
	if err != nil {
		t.Fatalf("NewIndex: %v", err)
	}
	sig := minhash.Compute("some arbitrary paragraph of text for indexing")
	key := DocID{URL: "http://x/", ParagraphIndex: 2}
	idx.Insert(key, sig)
	if !idx.Has(key) {
		t.Fatal("expected key to be present after insert")
	}
	idx.Delete(key)
	if idx.Has(key) {
		t.Fatal("expected key to be gone after delete")
	}
	if got := idx.Query(sig); len(got) != 0 {
		t.Fatalf("expected no candidates after delete, got %v", got)
	}
}

func TestNewIndexRejectsUnevenBands(t *testing.T) {
	if _, err := NewIndex[DocID](256, 300); err == nil {
		t.Fatal("expected an error for a band count that doesn't divide numPerm")
	}
}

func TestBandsForThresholdIsADivisor(t *testing.T) {
	bands := BandsForThreshold(minhash.NumPermutations, 0.8)
	if minhash.NumPermutations%bands != 0 {
		t.Fatalf("bands %d does not divide %d", bands, minhash.NumPermutations)
	}
}
