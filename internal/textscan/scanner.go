// Package textscan harvests candidate titles, authors, and descriptions
// from engine text lumps (classic containers) and readme-like files
// (zip-family containers). It never fails: on any decode trouble it simply
// contributes nothing for that entry.
package textscan

import (
	"archive/zip"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/beebs-dev/dorch/internal/domain"
	"github.com/beebs-dev/dorch/internal/wad"
)

const (
	maxTextLumpBytes  = 256 * 1024
	maxZipTextBytes   = 200 * 1024
	maxZipTextFiles   = 20
	maxDehackedBytes  = 4 * 1024
	maxReadmeBytes    = 8 * 1024
	nulProbeWindow    = 256
)

// textLumpNames is the closed set of engine text lumps worth scraping.
var textLumpNames = map[string]bool{
	"MAPINFO": true, "ZMAPINFO": true, "UMAPINFO": true, "EMAPINFO": true,
	"DEHACKED": true, "BEX": true, "SNDINFO": true, "DECORATE": true,
	"LANGUAGE": true, "GAMEINFO": true, "CVARINFO": true, "MUSINFO": true,
}

var binaryAllowedNames = map[string]bool{"DEHACKED": true, "BEX": true}

var zipTextExtensions = []string{".txt", ".md", ".mapinfo", ".umapinfo", ".deh", ".bex", ".decorate"}

var levelNamePattern = regexp.MustCompile(`(?i)levelname\s*=\s*"([^"]+)"`)
var titlePattern = regexp.MustCompile(`(?i)\btitle\s*=\s*"([^"]+)"`)
var authorPattern = regexp.MustCompile(`(?i)\bauthor\s*=\s*"([^"]+)"`)

// Harvest is the best-effort scrape result.
type Harvest struct {
	Names        []string
	Authors      []string
	Descriptions []string
	TextFiles    []domain.TextFile
	TextLumps    []string
}

// ScanWAD inspects the text lumps of a classic container's directory.
func ScanWAD(buf []byte, container wad.Container) Harvest {
	var h Harvest
	for _, l := range container.Lumps {
		if !textLumpNames[l.Name] {
			continue
		}
		if l.Size > maxTextLumpBytes {
			continue
		}
		data := container.LumpBytes(buf, l)
		if hasNULInWindow(data) && !binaryAllowedNames[l.Name] {
			continue
		}

		h.TextLumps = append(h.TextLumps, l.Name)
		text := decodeText(data)
		harvestFromText(&h, l.Name, text)
	}
	return h
}

// ScanZip inspects a zip-family archive's entries for readme-like files and
// embedded-WAD text harvests, which bubble up via embeddedHarvest.
func ScanZip(zr *zip.Reader, embeddedHarvests []Harvest) Harvest {
	var h Harvest
	for _, e := range embeddedHarvests {
		mergeHarvest(&h, e)
	}

	filesSeen := 0
	for _, f := range zr.File {
		if filesSeen >= maxZipTextFiles {
			break
		}
		lower := strings.ToLower(f.Name)
		if !isZipTextEntry(lower) {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			continue
		}
		data, err := io.ReadAll(io.LimitReader(rc, maxZipTextBytes+1))
		rc.Close()
		if err != nil || len(data) > maxZipTextBytes {
			continue
		}
		if hasNULInWindow(data) {
			continue
		}
		filesSeen++

		text := decodeText(data)
		h.TextFiles = append(h.TextFiles, domain.TextFile{
			Path:     f.Name,
			Size:     len(data),
			Contents: text,
			Source:   "pk3",
		})

		if isReadmeBasename(lower) {
			h.Descriptions = appendUnique(h.Descriptions, truncate(normalizeWhitespace(text), maxReadmeBytes))
		}
	}

	return h
}

func isZipTextEntry(lowerName string) bool {
	for _, ext := range zipTextExtensions {
		if strings.HasSuffix(lowerName, ext) {
			return true
		}
	}
	return false
}

func isReadmeBasename(lowerName string) bool {
	base := lowerName
	if i := strings.LastIndexByte(base, '/'); i >= 0 {
		base = base[i+1:]
	}
	return strings.HasPrefix(base, "readme.") || base == "info.txt" || base == "description.txt"
}

func harvestFromText(h *Harvest, lumpName, text string) {
	if m := levelNamePattern.FindStringSubmatch(text); m != nil {
		h.Names = appendUnique(h.Names, m[1])
	}
	if m := titlePattern.FindStringSubmatch(text); m != nil {
		h.Names = appendUnique(h.Names, m[1])
	}
	if m := authorPattern.FindStringSubmatch(text); m != nil {
		h.Authors = appendUnique(h.Authors, m[1])
	}
	if lumpName == "DEHACKED" || lumpName == "BEX" {
		h.Descriptions = appendUnique(h.Descriptions, truncate(normalizeWhitespace(text), maxDehackedBytes))
	}
}

func mergeHarvest(dst *Harvest, src Harvest) {
	for _, n := range src.Names {
		dst.Names = appendUnique(dst.Names, n)
	}
	for _, a := range src.Authors {
		dst.Authors = appendUnique(dst.Authors, a)
	}
	for _, d := range src.Descriptions {
		dst.Descriptions = appendUnique(dst.Descriptions, d)
	}
	dst.TextFiles = append(dst.TextFiles, src.TextFiles...)
}

func appendUnique(list []string, v string) []string {
	if v == "" {
		return list
	}
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}

func hasNULInWindow(data []byte) bool {
	window := data
	if len(window) > nulProbeWindow {
		window = window[:nulProbeWindow]
	}
	for _, b := range window {
		if b == 0 {
			return true
		}
	}
	return false
}

// decodeText decodes UTF-8, falling through to latin-1 (byte-as-rune) when
// the bytes are not valid UTF-8.
func decodeText(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	runes := make([]rune, len(data))
	for i, b := range data {
		runes[i] = rune(b)
	}
	return string(runes)
}

var blankRunPattern = regexp.MustCompile(`\n{3,}`)

// normalizeWhitespace converts CRLF to LF, trims trailing space on each
// line, and collapses runs of three or more newlines (two or more blank
// lines) to a single blank line.
func normalizeWhitespace(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t")
	}
	s = strings.Join(lines, "\n")
	return blankRunPattern.ReplaceAllString(s, "\n\n")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
