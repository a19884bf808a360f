// Package partition implements the Workload Partitioner (C4): splitting
// URLs, element ids, and discovered pages into N balanced, disjoint chunks
// so no two grid instances audit the same element (spec.md §4.4).
package partition

import (
	"sort"

	"github.com/gridscan/hpg/internal/elements"
	"github.com/gridscan/hpg/internal/sitemap"
)

// Result holds the N-way partition of one distribution round. Chunks[i]
// is, by convention, assigned to the master when i is the last index
// (spec.md §4.7 step f).
type Result struct {
	URLChunks     [][]string
	ElementChunks [][]elements.ID
	PageChunks    [][]sitemap.Page
}

// URLs splits the (deduplicated, sorted for determinism) URL list into n
// disjoint lists by round-robin, so sizes differ by at most 1 (spec.md §8
// invariant 4). Order within a chunk is not specified by spec.md; any
// deterministic order is acceptable and aids testability.
func URLs(urls []string, n int) [][]string {
	chunks := make([][]string, n)
	sorted := append([]string(nil), urls...)
	sort.Strings(sorted)
	i := 0
	for j, u := range sorted {
		if j > 0 && u == sorted[j-1] {
			continue
		}
		idx := i % n
		chunks[idx] = append(chunks[idx], u)
		i++
	}
	return chunks
}

// Elements assigns every distinct id in the union of elementsByURL's value
// sets to exactly one of n chunks, using a greedy least-loaded assignment:
// each id goes to the chunk with the currently smallest total element
// count, ties broken by lowest chunk index (spec.md §4.4). Deterministic
// iteration order (sorted ids) makes the assignment reproducible.
func Elements(elementsByURL map[string][]elements.ID, n int) [][]elements.ID {
	seen := make(map[elements.ID]struct{})
	var ids []elements.ID
	for _, set := range elementsByURL {
		for _, id := range set {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				ids = append(ids, id)
			}
		}
	}
	sort.Strings(ids)

	chunks := make([][]elements.ID, n)
	load := make([]int, n)
	for _, id := range ids {
		best := 0
		for i := 1; i < n; i++ {
			if load[i] < load[best] {
				best = i
			}
		}
		chunks[best] = append(chunks[best], id)
		load[best]++
	}
	return chunks
}

// Pages splits a drained PageQueue into n lists by round-robin over
// insertion order (spec.md §4.4, "Page chunks").
func Pages(pages []sitemap.Page, n int) [][]sitemap.Page {
	chunks := make([][]sitemap.Page, n)
	for i, p := range pages {
		idx := i % n
		chunks[idx] = append(chunks[idx], p)
	}
	return chunks
}

// Partition runs URLs, Elements, and Pages together for one distribution
// round, with chunk count n (= slaves + 1, spec.md §4.7 step f).
func Partition(urls []string, elementsByURL map[string][]elements.ID, pages []sitemap.Page, n int) Result {
	return Result{
		URLChunks:     URLs(urls, n),
		ElementChunks: Elements(elementsByURL, n),
		PageChunks:    Pages(pages, n),
	}
}
