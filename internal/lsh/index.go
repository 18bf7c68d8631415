// Package lsh implements LSHDeduper (§4.H): banding-based approximate
// near-duplicate detection over MinHash signatures, and the
// intra-batch and cross-batch passes built on top of it. The banding
// index itself mirrors datasketch.MinHashLSH's bucketing scheme: a
// signature is sliced into equal-width bands, each band is hashed
// independently, and any two signatures sharing a band's hash in any
// position are returned as LSH candidates, carrying the same two-sided
// error that approach accepts in exchange for sublinear lookups.
package lsh

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"math"
	"sync"

	"github.com/DavidNemeskey/cc-corpus-go/internal/minhash"
)

// Index is an in-memory LSH index over MinHash signatures, keyed by an
// arbitrary comparable identity K (typically a DocID).
type Index[K comparable] struct {
	bands int
	rows  int

	mu      sync.Mutex
	buckets []map[uint64][]K
	sigs    map[K]minhash.Signature
}

// NewIndex builds an Index for signatures of length numPerm, split
// into bands equal-width bands. numPerm must be evenly divisible by
// bands.
func NewIndex[K comparable](numPerm, bands int) (*Index[K], error) {
	if bands <= 0 || numPerm%bands != 0 {
		return nil, fmt.Errorf("lsh: numPerm %d is not evenly divisible by bands %d", numPerm, bands)
	}
	buckets := make([]map[uint64][]K, bands)
	for i := range buckets {
		buckets[i] = make(map[uint64][]K)
	}
	return &Index[K]{
		bands:   bands,
		rows:    numPerm / bands,
		buckets: buckets,
		sigs:    make(map[K]minhash.Signature),
	}, nil
}

// BandsForThreshold picks, among the divisors of numPerm, the band
// count whose implied threshold (1/bands)^(1/rows) is closest to t.
// This is the standard way of turning a target Jaccard threshold into
// an LSH banding configuration.
func BandsForThreshold(numPerm int, t float64) int {
	best := numPerm
	bestDiff := math.MaxFloat64
	for bands := 1; bands <= numPerm; bands++ {
		if numPerm%bands != 0 {
			continue
		}
		rows := numPerm / bands
		approx := math.Pow(1.0/float64(bands), 1.0/float64(rows))
		if diff := math.Abs(approx - t); diff < bestDiff {
			bestDiff = diff
			best = bands
		}
	}
	return best
}

func (idx *Index[K]) bandHash(sig minhash.Signature, band int) uint64 {
	h := fnv.New64a()
	var buf [8]byte
	start := band * idx.rows
	for i := 0; i < idx.rows; i++ {
		binary.LittleEndian.PutUint64(buf[:], sig[start+i])
		h.Write(buf[:])
	}
	return h.Sum64()
}

// Query returns every previously inserted key sharing at least one
// band's bucket with sig, the raw set of LSH candidates (no Jaccard
// recheck, matching the documented two-sided error budget).
func (idx *Index[K]) Query(sig minhash.Signature) []K {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	seen := make(map[K]bool)
	var out []K
	for band := 0; band < idx.bands; band++ {
		h := idx.bandHash(sig, band)
		for _, k := range idx.buckets[band][h] {
			if !seen[k] {
				seen[k] = true
				out = append(out, k)
			}
		}
	}
	return out
}

// Insert adds key/sig to every band bucket it hashes into.
func (idx *Index[K]) Insert(key K, sig minhash.Signature) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.sigs[key] = sig
	for band := 0; band < idx.bands; band++ {
		h := idx.bandHash(sig, band)
		idx.buckets[band][h] = append(idx.buckets[band][h], key)
	}
}

// Delete removes key from the index, if present.
func (idx *Index[K]) Delete(key K) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	sig, ok := idx.sigs[key]
	if !ok {
		return
	}
	delete(idx.sigs, key)
	for band := 0; band < idx.bands; band++ {
		h := idx.bandHash(sig, band)
		bucket := idx.buckets[band][h]
		for i, k := range bucket {
			if k == key {
				idx.buckets[band][h] = append(bucket[:i], bucket[i+1:]...)
				break
			}
		}
	}
}

// Has reports whether key is currently present in the index.
func (idx *Index[K]) Has(key K) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	_, ok := idx.sigs[key]
	return ok
}
