package wad

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beebs-dev/dorch/internal/domain"
)

// buildWAD assembles a minimal classic container with the given lump names
// (each backed by zero-filled bytes of the given size) for test fixtures.
func buildWAD(t *testing.T, sig string, names []string, sizes []int) []byte {
	t.Helper()
	require.Equal(t, len(names), len(sizes))

	var data []byte
	offsets := make([]int, len(names))
	for i, sz := range sizes {
		offsets[i] = headerSize + len(data)
		data = append(data, make([]byte, sz)...)
	}

	buf := make([]byte, headerSize)
	copy(buf[0:4], sig)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(names)))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(headerSize+len(data)))
	buf = append(buf, data...)

	for i, name := range names {
		entry := make([]byte, dirEntrySize)
		binary.LittleEndian.PutUint32(entry[0:4], uint32(offsets[i]))
		binary.LittleEndian.PutUint32(entry[4:8], uint32(sizes[i]))
		copy(entry[8:16], name)
		buf = append(buf, entry...)
	}

	return buf
}

func TestDecode_RecoversDeclaredLumpCount(t *testing.T) {
	buf := buildWAD(t, "PWAD", []string{"MAP01", "THINGS", "LINEDEFS"}, []int{0, 10, 14})

	c, ok, msg := Decode(buf)
	require.True(t, ok, msg)
	assert.Equal(t, 3, len(c.Lumps))
	assert.Equal(t, "PWAD", c.Type)
}

func TestDecode_BadSignature(t *testing.T) {
	buf := buildWAD(t, "ZZZZ", []string{"X"}, []int{0})
	_, ok, msg := Decode(buf)
	assert.False(t, ok)
	assert.Contains(t, msg, "bad signature")
}

func TestDecode_TooSmallForHeader(t *testing.T) {
	_, ok, msg := Decode([]byte{1, 2, 3})
	assert.False(t, ok)
	assert.Contains(t, msg, "too small")
}

func TestDecode_UnreasonableLumpCount(t *testing.T) {
	buf := make([]byte, headerSize)
	copy(buf[0:4], "PWAD")
	binary.LittleEndian.PutUint32(buf[4:8], domain.MaxReasonableLumpCount+1)
	binary.LittleEndian.PutUint32(buf[8:12], headerSize)

	_, ok, msg := Decode(buf)
	assert.False(t, ok)
	assert.Contains(t, msg, "unreasonable")
}

func TestDecode_ClampsOversizedLump(t *testing.T) {
	buf := buildWAD(t, "PWAD", []string{"DATA"}, []int{4})
	// Corrupt the directory entry to claim a size far past EOF.
	dirOff := len(buf) - dirEntrySize
	binary.LittleEndian.PutUint32(buf[dirOff+4:dirOff+8], 9999)

	c, ok, msg := Decode(buf)
	require.True(t, ok, msg)
	require.Len(t, c.Lumps, 1)
	assert.LessOrEqual(t, int(c.Lumps[0].Offset+c.Lumps[0].Size), len(buf))
}

func TestBuildMapBlocks_RequiresThingsAndLinedefs(t *testing.T) {
	buf := buildWAD(t, "PWAD", []string{"MAP01", "THINGS", "LINEDEFS", "SIDEDEFS", "MAP02", "SOMELUMP"}, []int{0, 10, 14, 30, 0, 4})
	c, ok, msg := Decode(buf)
	require.True(t, ok, msg)

	blocks := BuildMapBlocks(c.Lumps)
	require.Len(t, blocks, 1, "MAP02 lacks THINGS/LINEDEFS so is not a confirmed map")
	assert.Equal(t, "MAP01", blocks[0].Marker)
	assert.Len(t, blocks[0].Lumps, 4)
}

func TestBuildMapBlocks_StopsAtNextMarker(t *testing.T) {
	buf := buildWAD(t, "PWAD",
		[]string{"MAP01", "THINGS", "LINEDEFS", "MAP02", "THINGS", "LINEDEFS"},
		[]int{0, 10, 14, 0, 10, 14})
	c, ok, msg := Decode(buf)
	require.True(t, ok, msg)

	blocks := BuildMapBlocks(c.Lumps)
	require.Len(t, blocks, 2)
	assert.Equal(t, "MAP01", blocks[0].Marker)
	assert.Equal(t, "MAP02", blocks[1].Marker)
	assert.Len(t, blocks[0].Lumps, 3)
}
