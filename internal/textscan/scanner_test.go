package textscan

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beebs-dev/dorch/internal/domain"
	"github.com/beebs-dev/dorch/internal/wad"
)

func containerWithLump(name string, data []byte) (wad.Container, []byte) {
	lump := domain.Lump{Name: name, Offset: 0, Size: uint32(len(data))}
	return wad.Container{Type: "PWAD", Lumps: []domain.Lump{lump}}, data
}

func TestScanWAD_HarvestsLevelNameTitleAndAuthor(t *testing.T) {
	text := []byte(`levelname = "Entryway"
title = "My Great WAD"
author = "Someone"
`)
	container, buf := containerWithLump("MAPINFO", text)

	h := ScanWAD(buf, container)

	require.Contains(t, h.Names, "Entryway")
	require.Contains(t, h.Names, "My Great WAD")
	assert.Contains(t, h.Authors, "Someone")
	assert.Contains(t, h.TextLumps, "MAPINFO")
}

func TestScanWAD_SkipsLumpsNotInTheClosedSet(t *testing.T) {
	container, buf := containerWithLump("THINGS", []byte("title = \"nope\""))

	h := ScanWAD(buf, container)

	assert.Empty(t, h.Names)
	assert.Empty(t, h.TextLumps)
}

func TestScanWAD_SkipsBinaryLumpsWithEarlyNUL(t *testing.T) {
	binary := append([]byte("title = \"x\""), 0x00, 0x01, 0x02)
	container, buf := containerWithLump("MAPINFO", binary)

	h := ScanWAD(buf, container)

	assert.Empty(t, h.Names)
}

func TestScanWAD_AllowsNULInDehacked(t *testing.T) {
	data := append([]byte("Some dehacked patch\r\n\r\n\r\n\r\ntrailer"), 0x00)
	container, buf := containerWithLump("DEHACKED", data)

	h := ScanWAD(buf, container)

	require.Contains(t, h.TextLumps, "DEHACKED")
	require.Len(t, h.Descriptions, 1)
}

func TestScanWAD_OversizedLumpSkipped(t *testing.T) {
	data := make([]byte, maxTextLumpBytes+1)
	container, buf := containerWithLump("MAPINFO", data)

	h := ScanWAD(buf, container)

	assert.Empty(t, h.TextLumps)
}

func buildZip(t *testing.T, files map[string]string) *zip.Reader {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	return zr
}

func TestScanZip_HarvestsReadmeAsDescription(t *testing.T) {
	zr := buildZip(t, map[string]string{
		"readme.txt": "This is a cool level.\r\n\r\n\r\n\r\nThe end.",
		"map01.wad":  "not text",
	})

	h := ScanZip(zr, nil)

	require.Len(t, h.Descriptions, 1)
	assert.Contains(t, h.Descriptions[0], "This is a cool level.")
	assert.NotContains(t, h.Descriptions[0], "\n\n\n\n", "runs of blank lines collapse to a single blank line")
}

func TestScanZip_IgnoresNonTextExtensions(t *testing.T) {
	zr := buildZip(t, map[string]string{
		"notes.pdf": "binary-ish content",
	})

	h := ScanZip(zr, nil)

	assert.Empty(t, h.TextFiles)
}

func TestScanZip_MergesEmbeddedHarvests(t *testing.T) {
	embedded := Harvest{Names: []string{"Embedded Map"}, Authors: []string{"Embedded Author"}}
	zr := buildZip(t, map[string]string{})

	h := ScanZip(zr, []Harvest{embedded})

	assert.Contains(t, h.Names, "Embedded Map")
	assert.Contains(t, h.Authors, "Embedded Author")
}

func TestNormalizeWhitespace_CollapsesBlankRunsAndTrimsTrailingSpace(t *testing.T) {
	in := "line one   \r\nline two\n\n\n\nline three"
	out := normalizeWhitespace(in)

	assert.Equal(t, "line one\nline two\n\nline three", out)
}

func TestAppendUnique_SkipsEmptyAndDuplicates(t *testing.T) {
	list := appendUnique(nil, "a")
	list = appendUnique(list, "")
	list = appendUnique(list, "a")
	list = appendUnique(list, "b")

	assert.Equal(t, []string{"a", "b"}, list)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "hello", truncate("hello", 10))
	assert.Equal(t, "he", truncate("hello", 2))
}
