package wad

import (
	"archive/zip"
	"bytes"
	"io"
	"strings"
)

// EmbeddedWAD is one successfully-decoded WAD found inside a zip-family
// container, in archive entry order.
type EmbeddedWAD struct {
	Path      string
	Container Container
	Buf       []byte
}

// wadExtensions are the entry suffixes scanned for embedded WADs.
var wadExtensions = []string{".wad", ".iwad", ".pwad"}

// ScanZip opens buf as a zip archive and decodes every entry that looks
// like a WAD. Entries that fail to decode as a classic container are
// skipped; archive order is preserved.
func ScanZip(buf []byte) ([]EmbeddedWAD, *zip.Reader, error) {
	zr, err := zip.NewReader(bytes.NewReader(buf), int64(len(buf)))
	if err != nil {
		return nil, nil, err
	}

	var out []EmbeddedWAD
	for _, f := range zr.File {
		if !isWADEntry(f.Name) {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			continue
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			continue
		}

		container, ok, _ := Decode(data)
		if !ok {
			continue
		}
		out = append(out, EmbeddedWAD{Path: f.Name, Container: container, Buf: data})
	}

	return out, zr, nil
}

func isWADEntry(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range wadExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}
