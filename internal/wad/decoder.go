// Package wad decodes the classic IWAD/PWAD lump-directory container format
// and recognizes map blocks inside it. It is a bit-exact, read-only decoder:
// it never mutates its input buffer and never treats a malformed container
// as fatal to the caller.
package wad

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/beebs-dev/dorch/internal/domain"
)

// Container is the decoded form of a classic WAD file.
type Container struct {
	Type     string // "IWAD" or "PWAD"
	FileSize int
	Lumps    []domain.Lump
}

const (
	headerSize    = 12
	dirEntrySize  = 16
	lumpNameBytes = 8
)

// Decode parses buf as a classic container. A malformed buffer is never an
// error in the Go sense: it returns ok=false and the caller falls back to an
// "unknown"-format ExtractedMeta carrying the message.
func Decode(buf []byte) (Container, bool, string) {
	if len(buf) < headerSize {
		return Container{}, false, "buffer too small for header"
	}

	sig := string(buf[0:4])
	if sig != "IWAD" && sig != "PWAD" {
		return Container{}, false, fmt.Sprintf("bad signature %q", sig)
	}

	lumpCount := binary.LittleEndian.Uint32(buf[4:8])
	dirOffset := binary.LittleEndian.Uint32(buf[8:12])

	if lumpCount > domain.MaxReasonableLumpCount {
		return Container{}, false, fmt.Sprintf("unreasonable lump count %d", lumpCount)
	}

	dirBytes := uint64(lumpCount) * dirEntrySize
	dirEnd := uint64(dirOffset) + dirBytes
	if dirEnd > uint64(len(buf)) {
		return Container{}, false, "directory out of range"
	}

	lumps := make([]domain.Lump, 0, lumpCount)
	for i := uint32(0); i < lumpCount; i++ {
		entryOff := uint64(dirOffset) + uint64(i)*dirEntrySize
		entry := buf[entryOff : entryOff+dirEntrySize]

		offset := binary.LittleEndian.Uint32(entry[0:4])
		size := binary.LittleEndian.Uint32(entry[4:8])
		name := decodeLumpName(entry[8:16])

		// Best-effort read: clamp size down rather than dropping the lump
		// when offset+size runs past the buffer.
		if uint64(offset) > uint64(len(buf)) {
			size = 0
		} else if uint64(offset)+uint64(size) > uint64(len(buf)) {
			size = uint32(uint64(len(buf)) - uint64(offset))
		}

		lumps = append(lumps, domain.Lump{
			Index:  int(i),
			Name:   name,
			Offset: offset,
			Size:   size,
		})
	}

	return Container{Type: sig, FileSize: len(buf), Lumps: lumps}, true, ""
}

// decodeLumpName trims at the first NUL and uppercases, replacing any
// non-ASCII byte so the result is always a clean 8-or-fewer char name.
func decodeLumpName(raw []byte) string {
	n := bytes.IndexByte(raw, 0)
	if n < 0 {
		n = len(raw)
	}
	trimmed := raw[:n]

	var b strings.Builder
	b.Grow(len(trimmed))
	for _, c := range trimmed {
		if c < 0x20 || c > 0x7e {
			b.WriteByte('?')
		} else {
			b.WriteByte(c)
		}
	}
	return strings.ToUpper(b.String())
}

// LumpBytes returns the raw bytes for a lump, bounded to the decoded buffer.
func (c Container) LumpBytes(buf []byte, l domain.Lump) []byte {
	end := l.Offset + l.Size
	if int(end) > len(buf) {
		end = uint32(len(buf))
	}
	if int(l.Offset) > len(buf) {
		return nil
	}
	return buf[l.Offset:end]
}
