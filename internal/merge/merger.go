// Package merge reconciles on-disk extraction, primary-index, and
// cross-reference metadata into one MergedRecord, with fixed precedence and
// integrity validation against expected hashes.
package merge

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/beebs-dev/dorch/internal/domain"
)

// Hashes holds the digests computed over the decompressed artifact.
type Hashes struct {
	MD5    string
	SHA1   string
	SHA256 string
}

// ComputeHashes streams r through md5/sha1/sha256 simultaneously.
func ComputeHashes(r io.Reader) (Hashes, error) {
	md5h, sha1h, sha256h := md5.New(), sha1.New(), sha256.New()
	w := io.MultiWriter(md5h, sha1h, sha256h)
	if _, err := io.Copy(w, r); err != nil {
		return Hashes{}, fmt.Errorf("hashing artifact: %w", err)
	}
	return Hashes{
		MD5:    hex.EncodeToString(md5h.Sum(nil)),
		SHA1:   hex.EncodeToString(sha1h.Sum(nil)),
		SHA256: hex.EncodeToString(sha256h.Sum(nil)),
	}, nil
}

// CheckIntegrity compares computed against expected hashes (keyed by
// algorithm name, case-insensitive on both sides). Expected hashes absent
// from the map are ignored; any mismatch fails the whole check.
func CheckIntegrity(computed Hashes, expected map[string]string) domain.IntegrityResult {
	var mismatches []string

	compare := func(alg, have string) {
		want, ok := lookupCI(expected, alg)
		if !ok || want == "" {
			return
		}
		if !strings.EqualFold(want, have) {
			mismatches = append(mismatches, alg)
		}
	}
	compare("md5", computed.MD5)
	compare("sha1", computed.SHA1)
	compare("sha256", computed.SHA256)

	if len(mismatches) == 0 {
		return domain.IntegrityResult{OK: true}
	}
	sort.Strings(mismatches)
	return domain.IntegrityResult{
		OK:      false,
		Message: fmt.Sprintf("Integrity check failed: mismatched %s", strings.Join(mismatches, ", ")),
	}
}

func lookupCI(m map[string]string, key string) (string, bool) {
	if v, ok := m[key]; ok {
		return v, true
	}
	for k, v := range m {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return "", false
}

// Input bundles everything the merger needs for one file hash.
type Input struct {
	SHA1      string
	Computed  Hashes
	HaveHash  bool // whether Computed was actually calculated this run
	URL       string
	FileType  string
	FileSize  int64
	Extracted domain.ExtractedMeta
	Primary   map[string]any
	CrossRef  map[string]any // nil when absent
	Readme    map[string]any // nil when absent
	Integrity *domain.IntegrityResult
}

// Merge applies the fixed precedence (extracted > primary > cross-reference)
// to build a MergedRecord, then null-prunes it for a deterministic compact
// JSON shape.
func Merge(in Input) domain.MergedRecord {
	rec := domain.MergedRecord{
		SHA1: in.SHA1,
	}

	if in.HaveHash {
		rec.SHA256 = in.Computed.SHA256
	} else if expected, ok := lookupCI(stringMap(in.Primary, "expected_hashes"), "sha256"); ok {
		rec.SHA256 = expected
	}

	rec.Title = firstNonEmpty(
		firstOf(in.Extracted.Names),
		firstOf(stringSlice(in.Primary, "names")),
		stringField(in.CrossRef, "title"),
	)

	rec.Authors = unionNonEmpty(
		in.Extracted.Authors,
		stringSlice(in.Primary, "authors"),
		[]string{stringField(in.CrossRef, "author")},
	)

	crossDesc := latin1ReEncode(stringField(in.CrossRef, "description"))
	rec.Descriptions = unionNonEmpty(
		in.Extracted.Descriptions,
		stringSlice(in.Primary, "descriptions"),
		[]string{crossDesc},
	)

	rec.TextFiles = append(rec.TextFiles, taggedTextFiles(in.Extracted.TextFiles, "pk3")...)
	if tf := stringField(in.CrossRef, "textfile"); tf != "" {
		rec.TextFiles = append(rec.TextFiles, domain.TextFile{Contents: tf, Source: "idgames"})
	}
	if rm := stringField(in.Readme, "text"); rm != "" {
		rec.TextFiles = append(rec.TextFiles, domain.TextFile{Contents: rm, Source: "readme"})
	}

	mapSummaries := in.Extracted.Maps
	if len(mapSummaries) == 0 {
		mapSummaries = summariesFromNames(stringSlice(in.Primary, "maps"))
	}
	content := domain.Content{
		Maps:   mapSummaries,
		Counts: len(mapSummaries),
	}
	rec.Content = &content

	file := domain.FileInfo{
		Type: in.FileType,
		Size: in.FileSize,
		URL:  in.URL,
	}
	if in.Integrity != nil && !in.Integrity.OK {
		file.Corrupt = true
		file.CorruptMessage = in.Integrity.Message
	}
	rec.File = &file

	sources := domain.Sources{
		PrimaryIndex:   in.Primary,
		CrossReference: in.CrossRef,
		Extracted:      compactExtracted(in.Extracted),
	}
	rec.Sources = &sources

	return pruneRecord(rec)
}

// summariesFromNames builds placeholder MapSummary entries carrying only the
// marker name, used when falling back to the primary index's bare map name
// list because no on-disk extraction produced full per-map statistics.
func summariesFromNames(names []string) []domain.MapSummary {
	if len(names) == 0 {
		return nil
	}
	out := make([]domain.MapSummary, len(names))
	for i, n := range names {
		out[i] = domain.MapSummary{Map: n}
	}
	return out
}

func firstOf(ss []string) string {
	if len(ss) == 0 {
		return ""
	}
	return ss[0]
}

func firstNonEmpty(candidates ...string) string {
	for _, c := range candidates {
		if c != "" {
			return c
		}
	}
	return ""
}

// unionNonEmpty concatenates the input lists in order, dropping empties and
// exact duplicates while preserving first-seen order.
func unionNonEmpty(lists ...[]string) []string {
	var out []string
	seen := map[string]bool{}
	for _, list := range lists {
		for _, v := range list {
			if v == "" || seen[v] {
				continue
			}
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

func taggedTextFiles(files []domain.TextFile, source string) []domain.TextFile {
	out := make([]domain.TextFile, len(files))
	for i, f := range files {
		f.Source = source
		out[i] = f
	}
	return out
}

// latin1ReEncode re-interprets a UTF-8 string's bytes as latin-1 code
// points, exposing bytes 128-255 visibly the way the cross-reference
// description's original encoding intended.
func latin1ReEncode(s string) string {
	if s == "" {
		return ""
	}
	runes := make([]rune, len(s))
	for i := 0; i < len(s); i++ {
		runes[i] = rune(s[i])
	}
	return string(runes)
}

// compactExtracted replaces zip text-file contents with {path, size} so the
// full payload is carried exactly once (at the top level), never twice.
func compactExtracted(m domain.ExtractedMeta) map[string]any {
	compact := map[string]any{
		"format": m.Format,
	}
	if m.Error != "" {
		compact["error"] = m.Error
	}
	if m.LumpCount > 0 {
		compact["lump_count"] = m.LumpCount
	}
	if len(m.TextLumps) > 0 {
		compact["text_lumps"] = m.TextLumps
	}
	if len(m.TextFiles) > 0 {
		var slim []map[string]any
		for _, f := range m.TextFiles {
			slim = append(slim, map[string]any{"path": f.Path, "size": f.Size})
		}
		compact["text_files"] = slim
	}
	return compact
}

func stringMap(m map[string]any, key string) map[string]string {
	out := map[string]string{}
	v, ok := m[key]
	if !ok {
		return out
	}
	asMap, ok := v.(map[string]any)
	if !ok {
		return out
	}
	for k, vv := range asMap {
		if s, ok := vv.(string); ok {
			out[k] = s
		}
	}
	return out
}

func stringSlice(m map[string]any, key string) []string {
	if m == nil {
		return nil
	}
	v, ok := m[key]
	if !ok {
		return nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func stringField(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
