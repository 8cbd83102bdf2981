// Package mapstats decodes THINGS/LINEDEFS/SIDEDEFS/SECTORS lumps for a
// single map block into a structured MapSummary.
package mapstats

import (
	"encoding/binary"
	"sort"
	"strings"

	"github.com/beebs-dev/dorch/internal/domain"
	"github.com/beebs-dev/dorch/internal/wad"
)

// Extract builds a MapSummary for one confirmed MapBlock.
func Extract(buf []byte, container wad.Container, block domain.MapBlock) domain.MapSummary {
	format := detectFormat(block)

	summary := domain.MapSummary{
		Map:    block.Marker,
		Format: format,
	}

	things, _ := block.Find("THINGS")
	linedefs, _ := block.Find("LINEDEFS")
	sidedefs, _ := block.Find("SIDEDEFS")
	vertexes, _ := block.Find("VERTEXES")
	sectors, _ := block.Find("SECTORS")
	segs, _ := block.Find("SEGS")
	ssectors, _ := block.Find("SSECTORS")
	nodes, _ := block.Find("NODES")

	thingsRec := domain.DoomThingsRecSize
	linedefsRec := domain.DoomLinedefsRecSize
	if format == domain.MapFormatHexen {
		thingsRec = domain.HexenThingsRecSize
		linedefsRec = domain.HexenLinedefsRecSize
	}

	stats := domain.MapStats{
		Things:   divCount(things.Size, thingsRec),
		Linedefs: divCount(linedefs.Size, linedefsRec),
		Sidedefs: divCount(sidedefs.Size, domain.SidedefsRecSize),
		Vertices: divCount(vertexes.Size, domain.VertexesRecSize),
		Sectors:  divCount(sectors.Size, domain.SectorsRecSize),
		Segs:     divCount(segs.Size, domain.SegsRecSize),
		SSectors: divCount(ssectors.Size, domain.SSectorsRecSize),
		Nodes:    divCount(nodes.Size, domain.NodesRecSize),
	}

	textures := map[string]int{}
	addSidedefTextures(container.LumpBytes(buf, sidedefs), stats.Sidedefs, textures)
	addSectorTextures(container.LumpBytes(buf, sectors), stats.Sectors, textures)
	if len(textures) > 0 {
		stats.Textures = textures
	}
	summary.Stats = stats

	var mechanics domain.Mechanics
	if format == domain.MapFormatDoom {
		monsters, items, diff, keys := scanDoomThings(container.LumpBytes(buf, things), stats.Things)
		summary.Monsters = monsters
		summary.Items = items
		summary.Difficulty = diff
		mechanics.Keys = keys
	}
	teleports, secretExit := scanLinedefSpecials(container.LumpBytes(buf, linedefs), stats.Linedefs, format)
	mechanics.Teleports = teleports
	mechanics.SecretExit = secretExit
	summary.Mechanics = mechanics

	summary.Compatibility = domain.DeriveCompatibility(format)
	return summary
}

func detectFormat(block domain.MapBlock) domain.MapFormat {
	linedefs, hasLinedefs := block.Find("LINEDEFS")
	things, hasThings := block.Find("THINGS")
	if !hasLinedefs || !hasThings {
		return domain.MapFormatUnknown
	}

	isDoom := linedefs.Size%domain.DoomLinedefsRecSize == 0 && things.Size%domain.DoomThingsRecSize == 0
	isHexen := linedefs.Size%domain.HexenLinedefsRecSize == 0 && things.Size%domain.HexenThingsRecSize == 0

	switch {
	case isDoom && isHexen:
		if _, hasBehavior := block.Find("BEHAVIOR"); hasBehavior {
			return domain.MapFormatHexen
		}
		return domain.MapFormatDoom
	case isDoom:
		return domain.MapFormatDoom
	case isHexen:
		return domain.MapFormatHexen
	default:
		return domain.MapFormatUnknown
	}
}

func divCount(size uint32, recSize int) int {
	if recSize <= 0 {
		return 0
	}
	return int(size) / recSize
}

func decodeName8(raw []byte) string {
	n := len(raw)
	for i, b := range raw {
		if b == 0 {
			n = i
			break
		}
	}
	name := strings.TrimSpace(string(raw[:n]))
	if name == "-" || name == "" {
		return ""
	}
	return name
}

func addSidedefTextures(buf []byte, count int, out map[string]int) {
	for i := 0; i < count; i++ {
		off := i * domain.SidedefsRecSize
		if off+domain.SidedefsRecSize > len(buf) {
			break
		}
		rec := buf[off : off+domain.SidedefsRecSize]
		for _, name := range []string{decodeName8(rec[4:12]), decodeName8(rec[12:20]), decodeName8(rec[20:28])} {
			if name != "" {
				out[name]++
			}
		}
	}
}

func addSectorTextures(buf []byte, count int, out map[string]int) {
	for i := 0; i < count; i++ {
		off := i * domain.SectorsRecSize
		if off+domain.SectorsRecSize > len(buf) {
			break
		}
		rec := buf[off : off+domain.SectorsRecSize]
		for _, name := range []string{decodeName8(rec[4:12]), decodeName8(rec[12:20])} {
			if name != "" {
				out[name]++
			}
		}
	}
}

func scanDoomThings(buf []byte, count int) (monsters, items domain.TypeTally, diff domain.Difficulty, keys []string) {
	monsterCounts := map[string]int{}
	itemCounts := map[string]int{}
	keySet := map[string]bool{}

	for i := 0; i < count; i++ {
		off := i * domain.DoomThingsRecSize
		if off+domain.DoomThingsRecSize > len(buf) {
			break
		}
		rec := buf[off : off+domain.DoomThingsRecSize]
		thingType := int(int16(binary.LittleEndian.Uint16(rec[6:8])))
		flags := int(int16(binary.LittleEndian.Uint16(rec[8:10])))

		easy := flags&0x1 != 0
		medium := flags&0x2 != 0
		hard := flags&0x4 != 0

		if name, ok := domain.MonsterThingIDs[thingType]; ok {
			monsters.Total++
			monsterCounts[name]++
			if easy {
				diff.MonstersEasy++
			}
			if medium {
				diff.MonstersMedium++
			}
			if hard {
				diff.MonstersHard++
			}
		}
		if name, ok := domain.ItemThingIDs[thingType]; ok {
			items.Total++
			itemCounts[name]++
			if easy {
				diff.ItemsEasy++
			}
			if medium {
				diff.ItemsMedium++
			}
			if hard {
				diff.ItemsHard++
			}
		}
		if name, ok := domain.KeyThingIDs[thingType]; ok {
			keySet[name] = true
		}
	}

	monsters.ByType = sortedTally(monsterCounts)
	items.ByType = sortedTally(itemCounts)

	for k := range keySet {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return
}

// sortedTally converts a name->count map into the deterministic
// descending-count-then-ascending-name ordering the by_type breakdowns
// require, returning nil when empty so it prunes cleanly.
func sortedTally(counts map[string]int) []domain.TypeCount {
	if len(counts) == 0 {
		return nil
	}
	out := make([]domain.TypeCount, 0, len(counts))
	for name, count := range counts {
		out = append(out, domain.TypeCount{Name: name, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func scanLinedefSpecials(buf []byte, count int, format domain.MapFormat) (teleports, secretExit bool) {
	recSize := domain.DoomLinedefsRecSize
	specialOffset := 6
	if format == domain.MapFormatHexen {
		recSize = domain.HexenLinedefsRecSize
		specialOffset = 6
	}

	for i := 0; i < count; i++ {
		off := i * recSize
		if off+specialOffset+2 > len(buf) {
			break
		}
		rec := buf[off : off+recSize]
		special := int(int16(binary.LittleEndian.Uint16(rec[specialOffset : specialOffset+2])))

		if domain.TeleportSpecials[special] {
			teleports = true
		}
		if domain.SecretExitSpecials[special] {
			secretExit = true
		}
	}
	return
}
