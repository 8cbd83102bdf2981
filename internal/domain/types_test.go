package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidFileHash(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"", false},
		{"not-a-hash", false},
		{"aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", true},
		{"AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA", false}, // uppercase rejected
		{"aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", false},  // 39 chars
		{"aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", false}, // 41 chars
	}
	for _, c := range cases {
		assert.Equal(t, c.want, IsValidFileHash(c.in), "input %q", c.in)
	}
}

func TestDeriveContainerKind(t *testing.T) {
	assert.Equal(t, ContainerClassicWAD, DeriveContainerKind("wad"))
	assert.Equal(t, ContainerClassicWAD, DeriveContainerKind(""))
	assert.Equal(t, ContainerZipFamily, DeriveContainerKind("pk3"))
	assert.Equal(t, ContainerZipFamily, DeriveContainerKind("pk7"))
	assert.Equal(t, ContainerClassicWAD, DeriveContainerKind("zip"), "plain zip is not in the zip-family extension set")
}

func TestDeriveCompatibility(t *testing.T) {
	assert.Equal(t, Compatibility{VanillaOrBoom: true}, DeriveCompatibility(MapFormatDoom))
	assert.Equal(t, Compatibility{Hexen: true}, DeriveCompatibility(MapFormatHexen))
	assert.Equal(t, Compatibility{Unknown: true}, DeriveCompatibility(MapFormatUnknown))
}

func TestMapBlock_Find(t *testing.T) {
	block := MapBlock{
		Marker: "MAP01",
		Lumps: []Lump{
			{Name: "THINGS", Offset: 0, Size: 10},
			{Name: "LINEDEFS", Offset: 10, Size: 14},
		},
	}

	l, ok := block.Find("LINEDEFS")
	assert.True(t, ok)
	assert.Equal(t, uint32(10), l.Offset)

	_, ok = block.Find("SECTORS")
	assert.False(t, ok)
}
