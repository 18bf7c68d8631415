// Package index implements the IndexResolver (§4.A): turning URL
// patterns into the set of FileRanges that must be downloaded from the
// archive, and decoding the multi-stream zlib payload a FileRange
// fetch returns into a line stream of IndexEntry records.
package index

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// ClusterSize is the number of lines per compressed cluster in a
// per-dump index file (§6).
const ClusterSize = 3000

// Cluster is one entry in the top-level cluster.idx file.
type Cluster struct {
	SURT   string
	File   string
	Offset int64
	Length int64
}

// ParseClusterLine parses one tab-separated top-level index line:
// "surt timestamp index-file offset length [...]". Extra trailing
// fields are ignored.
func ParseClusterLine(line string) (Cluster, error) {
	fields := strings.Split(line, "\t")
	if len(fields) < 5 {
		return Cluster{}, fmt.Errorf("index: malformed cluster line (want >=5 fields, got %d): %q", len(fields), line)
	}
	offset, err := strconv.ParseInt(fields[3], 10, 64)
	if err != nil {
		return Cluster{}, fmt.Errorf("index: bad offset in cluster line: %w", err)
	}
	length, err := strconv.ParseInt(fields[4], 10, 64)
	if err != nil {
		return Cluster{}, fmt.Errorf("index: bad length in cluster line: %w", err)
	}
	return Cluster{SURT: fields[0], File: fields[2], Offset: offset, Length: length}, nil
}

// ReadClusterIndex streams the clusters in a top-level cluster.idx
// file (assumed already decompressed) and calls fn for each one. It
// stops and returns fn's error if fn returns a non-nil error.
func ReadClusterIndex(r io.Reader, fn func(Cluster) error) error {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" {
			continue
		}
		c, err := ParseClusterLine(line)
		if err != nil {
			return err
		}
		if err := fn(c); err != nil {
			return err
		}
	}
	return s.Err()
}

// surtPrefix returns the reversed-domain component list that precedes
// the first ')' in a cluster's SURT field, e.g. "hu,elte)/some/path"
// yields ["hu", "elte"].
func surtPrefix(surt string) []string {
	if i := strings.IndexByte(surt, ')'); i >= 0 {
		surt = surt[:i]
	}
	if surt == "" {
		return nil
	}
	return strings.Split(surt, ",")
}

// ComparePatterns is the three-way comparator from §4.A: component-wise
// lexicographic order over reversed-SURT token lists, where a prefix of
// b sorts before (compares equal-or-less to, specifically returns 0
// when) b is a proper extension of a. It returns -1, 0 or 1.
func ComparePatterns(query, other []string) int {
	n := len(query)
	if len(other) < n {
		n = len(other)
	}
	for i := 0; i < n; i++ {
		if query[i] > other[i] {
			return 1
		}
		if query[i] < other[i] {
			return -1
		}
	}
	// Common prefix exhausted: one is a (sub)domain of the other, or
	// they are identical. Only the query being longer counts as "greater"
	// — this mirrors compare_inverse_surt_lists exactly, including its
	// asymmetry (a query longer than other is "greater"; an other longer
	// than query compares equal, meaning "other is a subdomain of query").
	if len(query) > len(other) {
		return 1
	}
	return 0
}

// FindPattern returns, in file order, the clusters that can contain a
// URL matching pattern: the last cluster whose prefix sorted strictly
// before the pattern (it may still hold matching URLs, since the index
// line is only the first of its cluster), plus every cluster whose
// prefix equals or extends the pattern.
func FindPattern(pattern []string, clusters []Cluster) []Cluster {
	var (
		lastBefore *Cluster
		out        []Cluster
	)
	for i := range clusters {
		c := &clusters[i]
		cmp := ComparePatterns(pattern, surtPrefix(c.SURT))
		switch {
		case cmp > 0:
			lastBefore = c
		case cmp == 0:
			if lastBefore != nil {
				out = append(out, *lastBefore)
				lastBefore = nil
			}
			out = append(out, *c)
		default: // cmp < 0: we have passed the pattern's range
			if lastBefore != nil {
				out = append(out, *lastBefore)
			}
			return out
		}
	}
	if lastBefore != nil {
		out = append(out, *lastBefore)
	}
	return out
}

// CollectClusters unions FindPattern's results over every pattern and
// returns them deduplicated and sorted by (file, offset), ready for
// RangesFromClusters.
func CollectClusters(patterns [][]string, clusters []Cluster) []Cluster {
	type key struct {
		file   string
		offset int64
	}
	seen := make(map[key]Cluster)
	for _, p := range patterns {
		for _, c := range FindPattern(p, clusters) {
			seen[key{c.File, c.Offset}] = c
		}
	}
	out := make([]Cluster, 0, len(seen))
	for _, c := range seen {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].File != out[j].File {
			return out[i].File < out[j].File
		}
		return out[i].Offset < out[j].Offset
	})
	return out
}

// FileRange is a contiguous byte span inside one archive file.
type FileRange struct {
	File   string
	Offset int64
	Length int64
}

// ErrRangeDiscontinuity is returned by RangesFromClusters when two
// consecutive same-file clusters do not form a contiguous span. This
// indicates a corrupt or mismatched top-level index and is fatal for
// the run (§7).
var ErrRangeDiscontinuity = errors.New("index: range discontinuity")

// RangesFromClusters coalesces adjacent same-file clusters (clusters
// must already be sorted by (file, offset), as CollectClusters returns
// them) into FileRanges. If maxClusters > 0, at most that many clusters
// are coalesced into a single range before a new one is started; 0
// means no limit.
func RangesFromClusters(clusters []Cluster, maxClusters int) ([]FileRange, error) {
	var ranges []FileRange
	i := 0
	for i < len(clusters) {
		file := clusters[i].File
		j := i
		for j < len(clusters) && clusters[j].File == file {
			j++
		}
		group := clusters[i:j]
		batchLimit := maxClusters
		if batchLimit <= 0 {
			batchLimit = len(group)
		}
		for k := 0; k < len(group); k += batchLimit {
			end := k + batchLimit
			if end > len(group) {
				end = len(group)
			}
			r, err := rangeFromClusters(file, group[k:end])
			if err != nil {
				return nil, err
			}
			ranges = append(ranges, r)
		}
		i = j
	}
	return ranges, nil
}

func rangeFromClusters(file string, clusters []Cluster) (FileRange, error) {
	if len(clusters) == 0 {
		return FileRange{}, fmt.Errorf("index: empty cluster group for %s", file)
	}
	start := clusters[0].Offset
	end := start + clusters[0].Length
	for _, c := range clusters[1:] {
		if c.Offset != end {
			return FileRange{}, fmt.Errorf("%w: %s at offset %d, expected %d (surt %s)",
				ErrRangeDiscontinuity, file, c.Offset, end, c.SURT)
		}
		end += c.Length
	}
	return FileRange{File: file, Offset: start, Length: end - start}, nil
}

// SplitPattern turns a dotted hostname ("elte.hu") or a reversed form
// already given as tokens into the token list used throughout this
// package, e.g. "elte.hu" -> ["hu", "elte"].
func SplitPattern(hostname string) []string {
	parts := strings.Split(strings.Trim(hostname, "."), ".")
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return parts
}
