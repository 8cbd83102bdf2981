package mapstats

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beebs-dev/dorch/internal/domain"
	"github.com/beebs-dev/dorch/internal/wad"
)

// name8 pads/truncates a texture or lump name to 8 bytes, as classic WAD
// directories store it.
func name8(s string) []byte {
	out := make([]byte, 8)
	copy(out, s)
	return out
}

// thingRecord builds one Doom-format THINGS record.
func thingRecord(thingType, flags int16) []byte {
	rec := make([]byte, domain.DoomThingsRecSize)
	binary.LittleEndian.PutUint16(rec[6:8], uint16(thingType))
	binary.LittleEndian.PutUint16(rec[8:10], uint16(flags))
	return rec
}

// linedefRecord builds one Doom-format LINEDEFS record with the given
// special number at its fixed offset.
func linedefRecord(special int16) []byte {
	rec := make([]byte, domain.DoomLinedefsRecSize)
	binary.LittleEndian.PutUint16(rec[6:8], uint16(special))
	return rec
}

func sidedefRecord(upper, lower, middle string) []byte {
	rec := make([]byte, domain.SidedefsRecSize)
	copy(rec[4:12], name8(upper))
	copy(rec[12:20], name8(lower))
	copy(rec[20:28], name8(middle))
	return rec
}

func sectorRecord(floorTex, ceilTex string) []byte {
	rec := make([]byte, domain.SectorsRecSize)
	copy(rec[4:12], name8(floorTex))
	copy(rec[12:20], name8(ceilTex))
	return rec
}

// buildMapBuf concatenates one record of each relevant lump type into a
// single buffer and returns the buffer alongside a MapBlock whose lump
// offsets point into it.
func buildMapBuf(t *testing.T, things, linedefs, sidedefs, sectors []byte) ([]byte, domain.MapBlock) {
	t.Helper()

	var buf []byte
	lumps := []domain.Lump{}

	add := func(name string, data []byte) {
		lumps = append(lumps, domain.Lump{
			Name:   name,
			Offset: uint32(len(buf)),
			Size:   uint32(len(data)),
		})
		buf = append(buf, data...)
	}

	add("THINGS", things)
	add("LINEDEFS", linedefs)
	add("SIDEDEFS", sidedefs)
	add("SECTORS", sectors)
	add("VERTEXES", nil)
	add("SEGS", nil)
	add("SSECTORS", nil)
	add("NODES", nil)

	return buf, domain.MapBlock{Marker: "MAP01", Lumps: lumps}
}

func TestExtract_CountsMonstersItemsAndDifficulty(t *testing.T) {
	things := append(thingRecord(3004, 0x1), thingRecord(2001, 0x7)...) // zombieman (easy only), shotgun (all skills)
	linedefs := linedefRecord(0)
	sidedefs := sidedefRecord("", "", "")
	sectors := sectorRecord("", "")

	buf, block := buildMapBuf(t, things, linedefs, sidedefs, sectors)

	summary := Extract(buf, wad.Container{}, block)

	require.Equal(t, domain.MapFormatDoom, summary.Format)
	assert.Equal(t, 2, summary.Stats.Things)
	assert.Equal(t, 1, summary.Stats.Linedefs)

	assert.Equal(t, 1, summary.Monsters.Total)
	assert.Equal(t, []domain.TypeCount{{Name: "zombieman", Count: 1}}, summary.Monsters.ByType)
	assert.Equal(t, 1, summary.Items.Total)
	assert.Equal(t, []domain.TypeCount{{Name: "shotgun", Count: 1}}, summary.Items.ByType)

	assert.Equal(t, 1, summary.Difficulty.MonstersEasy)
	assert.Equal(t, 0, summary.Difficulty.MonstersMedium)
	assert.Equal(t, 1, summary.Difficulty.ItemsEasy)
	assert.Equal(t, 1, summary.Difficulty.ItemsMedium)
	assert.Equal(t, 1, summary.Difficulty.ItemsHard)
}

func TestExtract_DifficultyNeverExceedsTotals(t *testing.T) {
	things := thingRecord(3005, 0x7) // cacodemon, all three skills flagged
	linedefs := linedefRecord(0)
	buf, block := buildMapBuf(t, things, linedefs, nil, nil)

	summary := Extract(buf, wad.Container{}, block)

	assert.LessOrEqual(t, summary.Difficulty.MonstersEasy, summary.Monsters.Total)
	assert.LessOrEqual(t, summary.Difficulty.MonstersMedium, summary.Monsters.Total)
	assert.LessOrEqual(t, summary.Difficulty.MonstersHard, summary.Monsters.Total)
}

func TestExtract_MonstersByTypeSortedByCountThenName(t *testing.T) {
	things := thingRecord(3004, 0) // zombieman
	things = append(things, thingRecord(3004, 0)...)
	things = append(things, thingRecord(3002, 0)...) // demon
	things = append(things, thingRecord(64, 0)...)   // archvile
	buf, block := buildMapBuf(t, things, linedefRecord(0), nil, nil)

	summary := Extract(buf, wad.Container{}, block)

	assert.Equal(t, []domain.TypeCount{
		{Name: "zombieman", Count: 2},
		{Name: "archvile", Count: 1},
		{Name: "demon", Count: 1},
	}, summary.Monsters.ByType)
}

func TestExtract_KeysDeduplicatedAndSorted(t *testing.T) {
	things := append(thingRecord(5, 0), thingRecord(5, 0)...) // two blue keys
	things = append(things, thingRecord(13, 0)...)            // one red key
	buf, block := buildMapBuf(t, things, linedefRecord(0), nil, nil)

	summary := Extract(buf, wad.Container{}, block)

	assert.Equal(t, []string{"blue", "red"}, summary.Mechanics.Keys)
}

func TestExtract_TeleportAndSecretExitSpecials(t *testing.T) {
	linedefs := append(linedefRecord(97), linedefRecord(51)...) // teleport, secret exit
	buf, block := buildMapBuf(t, thingRecord(0, 0), linedefs, nil, nil)

	summary := Extract(buf, wad.Container{}, block)

	assert.True(t, summary.Mechanics.Teleports)
	assert.True(t, summary.Mechanics.SecretExit)
}

func TestExtract_OrdinarySpecialTriggersNeitherFlag(t *testing.T) {
	buf, block := buildMapBuf(t, thingRecord(0, 0), linedefRecord(1), nil, nil)

	summary := Extract(buf, wad.Container{}, block)

	assert.False(t, summary.Mechanics.Teleports)
	assert.False(t, summary.Mechanics.SecretExit)
}

func TestExtract_TexturesCountedAcrossSidedefsAndSectors(t *testing.T) {
	sidedefs := sidedefRecord("STARTAN1", "", "")
	sectors := sectorRecord("FLOOR0_1", "FLOOR0_1")
	buf, block := buildMapBuf(t, nil, nil, sidedefs, sectors)

	summary := Extract(buf, wad.Container{}, block)

	require.NotNil(t, summary.Stats.Textures)
	assert.Equal(t, 1, summary.Stats.Textures["STARTAN1"])
	assert.Equal(t, 2, summary.Stats.Textures["FLOOR0_1"])
}

func TestExtract_HexenFormatSkipsDoomThingScan(t *testing.T) {
	things := make([]byte, domain.HexenThingsRecSize)
	linedefs := make([]byte, domain.HexenLinedefsRecSize)

	var buf []byte
	lumps := []domain.Lump{
		{Name: "THINGS", Offset: 0, Size: uint32(len(things))},
		{Name: "LINEDEFS", Offset: uint32(len(things)), Size: uint32(len(linedefs))},
		{Name: "BEHAVIOR", Offset: uint32(len(things) + len(linedefs)), Size: 0},
	}
	buf = append(buf, things...)
	buf = append(buf, linedefs...)
	block := domain.MapBlock{Marker: "MAP01", Lumps: lumps}

	summary := Extract(buf, wad.Container{}, block)

	require.Equal(t, domain.MapFormatHexen, summary.Format)
	assert.Equal(t, 1, summary.Stats.Things)
	assert.Equal(t, 0, summary.Monsters.Total, "hexen things are not scanned against the doom thing tables")
	assert.True(t, summary.Compatibility.Hexen)
}

func TestDivCount(t *testing.T) {
	assert.Equal(t, 3, divCount(30, 10))
	assert.Equal(t, 0, divCount(5, 10))
	assert.Equal(t, 0, divCount(30, 0))
}

func TestDecodeName8_StripsNULAndDash(t *testing.T) {
	assert.Equal(t, "", decodeName8([]byte("-\x00\x00\x00\x00\x00\x00\x00")))
	assert.Equal(t, "", decodeName8([]byte("\x00\x00\x00\x00\x00\x00\x00\x00")))
	assert.Equal(t, "WALL1", decodeName8([]byte("WALL1\x00\x00\x00")))
}
