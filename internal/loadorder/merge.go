// Package loadorder implements "last definition wins" merging of per-map
// statistics across multiple embedded WADs inside one zip-family container.
package loadorder

import (
	"strings"

	"github.com/beebs-dev/dorch/internal/domain"
)

// Merge combines map summaries from WADs in archive order. When a map
// marker is redefined by a later WAD, the earlier occurrence is dropped and
// the later one takes its position at the end of the ordering. A defensive
// second pass re-dedupes by case-folded, trimmed map name, again keeping the
// last occurrence, guarding against inconsistent casing across WADs.
func Merge(perWAD [][]domain.MapSummary) []domain.MapSummary {
	var merged []domain.MapSummary
	index := map[string]int{} // map name -> position in merged

	for _, wadMaps := range perWAD {
		for _, m := range wadMaps {
			if pos, ok := index[m.Map]; ok {
				merged = append(merged[:pos], merged[pos+1:]...)
				for k, v := range index {
					if v > pos {
						index[k] = v - 1
					}
				}
			}
			merged = append(merged, m)
			index[m.Map] = len(merged) - 1
		}
	}

	return dedupeKeepLast(merged)
}

// dedupeKeepLast re-scans for maps whose names only differ by case or
// surrounding whitespace, keeping the last occurrence of each. It is
// idempotent: running it twice yields the same result.
func dedupeKeepLast(in []domain.MapSummary) []domain.MapSummary {
	lastIndex := map[string]int{}
	for i, m := range in {
		lastIndex[foldName(m.Map)] = i
	}

	out := make([]domain.MapSummary, 0, len(lastIndex))
	emitted := map[string]bool{}
	for i, m := range in {
		key := foldName(m.Map)
		if lastIndex[key] != i {
			continue
		}
		if emitted[key] {
			continue
		}
		emitted[key] = true
		out = append(out, m)
	}
	return out
}

func foldName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
