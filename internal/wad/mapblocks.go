package wad

import (
	"regexp"

	"github.com/beebs-dev/dorch/internal/domain"
)

// mapMarkerPattern matches MAPnn or ExMy map markers.
var mapMarkerPattern = regexp.MustCompile(`^(MAP\d\d|E\dM\d)$`)

// BuildMapBlocks scans a directory for map markers and slices out the lumps
// belonging to each confirmed map. A candidate marker is confirmed when both
// THINGS and LINEDEFS appear within the next domain.MapMarkerFuzziness
// entries; otherwise it is an ordinary lump and ignored.
func BuildMapBlocks(lumps []domain.Lump) []domain.MapBlock {
	var blocks []domain.MapBlock

	for i, l := range lumps {
		if !mapMarkerPattern.MatchString(l.Name) {
			continue
		}
		if !confirmsMap(lumps, i) {
			continue
		}

		end := len(lumps)
		for j := i + 1; j < len(lumps); j++ {
			if mapMarkerPattern.MatchString(lumps[j].Name) {
				end = j
				break
			}
		}

		blocks = append(blocks, domain.MapBlock{
			Marker: l.Name,
			Lumps:  lumps[i:end],
		})
	}

	return blocks
}

// confirmsMap reports whether the marker at index i in lumps is followed
// (within the fuzziness window) by both THINGS and LINEDEFS.
func confirmsMap(lumps []domain.Lump, i int) bool {
	var hasThings, hasLinedefs bool
	limit := i + 1 + domain.MapMarkerFuzziness
	if limit > len(lumps) {
		limit = len(lumps)
	}
	for j := i + 1; j < limit; j++ {
		switch lumps[j].Name {
		case "THINGS":
			hasThings = true
		case "LINEDEFS":
			hasLinedefs = true
		}
		if hasThings && hasLinedefs {
			return true
		}
	}
	return hasThings && hasLinedefs
}
