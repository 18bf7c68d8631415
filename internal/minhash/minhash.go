// Package minhash implements MinHasher (§4.G): turning a paragraph's
// byte shingles into a fixed-width LeanMinHash-equivalent signature,
// and MinHasher's companion batch writer (§3, §4.F) for persisting
// those signatures alongside the document identity that produced them.
// Grounded in Archive-Hasher.go's use of github.com/spaolacci/murmur3
// for non-cryptographic hashing, generalized from a single whole-file
// digest to the per-shingle, per-permutation scheme MinHash needs.
package minhash

import (
	"math"
	"math/rand"

	"github.com/spaolacci/murmur3"
)

// NumPermutations is the number of independent hash permutations that
// make up a signature (§4.G default: 256).
const NumPermutations = 256

// ShingleSize is the character n-gram width applied to a paragraph's
// raw bytes before hashing (§4.G default: n=5).
const ShingleSize = 5

// mersennePrime is the modulus datasketch-style MinHash permutations
// are reduced into; it keeps the (a*h+b) product from colliding with
// the all-ones sentinel used to mark "no shingle seen yet".
const mersennePrime = (1 << 61) - 1

// permA and permB are a fixed, deterministically seeded set of
// universal-hash coefficients. Generating them once at init time (from
// a constant seed, not a random one) is what makes two signatures
// computed in two different processes comparable.
var permA, permB [NumPermutations]uint64

func init() {
	r := rand.New(rand.NewSource(0xC0FFEE))
	for i := range permA {
		permA[i] = uint64(r.Int63())%(mersennePrime-1) + 1
		permB[i] = uint64(r.Int63()) % mersennePrime
	}
}

// Signature is a LeanMinHash-equivalent fixed-width signature: one
// value per permutation, comparable only to other signatures produced
// with the same NumPermutations.
type Signature []uint64

// shingles splits text's raw bytes into overlapping windows of
// ShingleSize bytes. A paragraph shorter than one shingle is hashed as
// a single whole-text shingle so it still contributes a data point.
func shingles(text string) [][]byte {
	b := []byte(text)
	if len(b) <= ShingleSize {
		return [][]byte{b}
	}
	out := make([][]byte, 0, len(b)-ShingleSize+1)
	for i := 0; i+ShingleSize <= len(b); i++ {
		out = append(out, b[i:i+ShingleSize])
	}
	return out
}

// Compute builds the MinHash signature for a paragraph of text.
func Compute(text string) Signature {
	sig := make(Signature, NumPermutations)
	for i := range sig {
		sig[i] = math.MaxUint64
	}
	for _, s := range shingles(text) {
		h := murmur3.Sum64(s)
		for i := 0; i < NumPermutations; i++ {
			v := (permA[i]*h + permB[i]) % mersennePrime
			if v < sig[i] {
				sig[i] = v
			}
		}
	}
	return sig
}

// JaccardEstimate returns the fraction of permutation positions at
// which a and b agree, the standard MinHash estimator of the Jaccard
// similarity between the two shingle sets the signatures were built
// from. a and b must have the same length.
func JaccardEstimate(a, b Signature) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var equal int
	for i := range a {
		if a[i] == b[i] {
			equal++
		}
	}
	return float64(equal) / float64(len(a))
}
