package minhash

import "testing"

func TestComputeIsDeterministic(t *testing.T) {
	a := Compute("the quick brown fox jumps over the lazy dog")
	b := Compute("the quick brown fox jumps over the lazy dog")
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("signature differs at position %d: %d vs %d", i, a[i], b[i])
		}
	}
}

func TestJaccardEstimateIdenticalTextsIsOne(t *testing.T) {
	sig := Compute("common crawl index resolver fetches byte ranges")
	if got := JaccardEstimate(sig, sig); got != 1.0 {
		t.Fatalf("self-similarity = %f, want 1.0", got)
	}
}

func TestJaccardEstimateDissimilarTextsIsLow(t *testing.T) {
	a := Compute("the quick brown fox jumps over the lazy dog repeatedly every single morning")
	b := Compute("quantum mechanics describes the behavior of matter at subatomic scales precisely")
	if got := JaccardEstimate(a, b); got > 0.2 {
		t.Fatalf("dissimilar texts scored %f, expected a low estimate", got)
	}
}

func TestJaccardEstimateNearDuplicatesIsHigh(t *testing.T) {
	a := Compute("Hungary is a landlocked country in Central Europe with a rich cultural history.")
	b := Compute("Hungary is a landlocked country in Central Europe with a rich cultural heritage.")
	if got := JaccardEstimate(a, b); got < 0.7 {
		t.Fatalf("near-duplicate texts scored %f, expected a high estimate", got)
	}
}

func TestShinglesShortTextIsOneShingle(t *testing.T) {
	s := shingles("hi")
	if len(s) != 1 || string(s[0]) != "hi" {
		t.Fatalf("shingles(%q) = %v", "hi", s)
	}
}

func TestShinglesOverlap(t *testing.T) {
	s := shingles("abcdef")
	if len(s) != 2 {
		t.Fatalf("got %d shingles, want 2", len(s))
	}
	if string(s[0]) != "abcde" || string(s[1]) != "bcdef" {
		t.Fatalf("shingles = %q, %q", s[0], s[1])
	}
}
