// Package domain holds the data model shared across the ingest pipeline:
// container records, map summaries, merged catalog records, and the job
// envelope that travels on the queue.
package domain

import "regexp"

// FileHashPattern matches a 40-character lowercase hex content digest.
var FileHashPattern = regexp.MustCompile(`^[0-9a-f]{40}$`)

// IsValidFileHash reports whether s is a well-formed FileHash.
func IsValidFileHash(s string) bool {
	return FileHashPattern.MatchString(s)
}

// ContainerKind classifies the top-level archive type of an ingested file.
type ContainerKind string

const (
	ContainerClassicWAD ContainerKind = "classic-wad"
	ContainerZipFamily  ContainerKind = "zip-family"
	ContainerUnknown    ContainerKind = "unknown"
)

// ZipFamilyExtensions are the extensions treated as zip-family containers.
var ZipFamilyExtensions = map[string]bool{
	"pk3": true, "pk7": true, "pkz": true, "epk": true, "pke": true,
}

// DeriveContainerKind inspects a declared extension, falling back to "wad".
func DeriveContainerKind(ext string) ContainerKind {
	switch ext {
	case "wad", "iwad", "pwad", "":
		return ContainerClassicWAD
	default:
		if ZipFamilyExtensions[ext] {
			return ContainerZipFamily
		}
		return ContainerClassicWAD
	}
}

// Lump is a single directory entry inside a classic container.
type Lump struct {
	Index  int
	Name   string
	Offset uint32
	Size   uint32
}

// MapFormat is the record layout a map block was parsed as.
type MapFormat string

const (
	MapFormatDoom    MapFormat = "doom"
	MapFormatHexen   MapFormat = "hexen"
	MapFormatUnknown MapFormat = "unknown"
)

// MapBlock is a contiguous run of lumps belonging to one map marker.
type MapBlock struct {
	Marker string
	Lumps  []Lump
}

// Find returns the lump with the given name within the block, if present.
// Classic WAD directories may repeat a name only within a map block in
// practice, so the first match is authoritative.
func (b MapBlock) Find(name string) (Lump, bool) {
	for _, l := range b.Lumps {
		if l.Name == name {
			return l, true
		}
	}
	return Lump{}, false
}

// MapStats holds the raw structural counts for a map block.
type MapStats struct {
	Things   int            `json:"things"`
	Linedefs int            `json:"linedefs"`
	Sidedefs int            `json:"sidedefs"`
	Vertices int            `json:"vertices"`
	Sectors  int            `json:"sectors"`
	Segs     int            `json:"segs"`
	SSectors int            `json:"ssectors"`
	Nodes    int            `json:"nodes"`
	Textures map[string]int `json:"textures,omitempty"`
}

// TypeCount is one named bucket in a TypeTally's breakdown.
type TypeCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// TypeTally pairs a total count with a per-type breakdown, ordered by
// descending count then ascending name for a deterministic serialization
// (a Go map would otherwise marshal its keys in lexicographic order,
// regardless of count).
type TypeTally struct {
	Total  int         `json:"total"`
	ByType []TypeCount `json:"by_type,omitempty"`
}

// Mechanics captures boolean/level-wide gameplay features of a map.
type Mechanics struct {
	Teleports  bool     `json:"teleports,omitempty"`
	Keys       []string `json:"keys,omitempty"`
	SecretExit bool     `json:"secret_exit,omitempty"`
}

// Difficulty splits monster/item counts across the three skill buckets.
type Difficulty struct {
	MonstersEasy   int `json:"monsters_easy,omitempty"`
	MonstersMedium int `json:"monsters_medium,omitempty"`
	MonstersHard   int `json:"monsters_hard,omitempty"`
	ItemsEasy      int `json:"items_easy,omitempty"`
	ItemsMedium    int `json:"items_medium,omitempty"`
	ItemsHard      int `json:"items_hard,omitempty"`
}

// Compatibility reports the inferred source port family for a map.
type Compatibility struct {
	VanillaOrBoom bool `json:"vanilla_or_boom,omitempty"`
	Hexen         bool `json:"hexen,omitempty"`
	Unknown       bool `json:"unknown,omitempty"`
}

// DeriveCompatibility fills Compatibility from the detected MapFormat.
func DeriveCompatibility(format MapFormat) Compatibility {
	switch format {
	case MapFormatDoom:
		return Compatibility{VanillaOrBoom: true}
	case MapFormatHexen:
		return Compatibility{Hexen: true}
	default:
		return Compatibility{Unknown: true}
	}
}

// MapSummary is one fully-extracted map's structured metadata.
type MapSummary struct {
	Map           string        `json:"map"`
	Format        MapFormat     `json:"format"`
	Stats         MapStats      `json:"stats"`
	Monsters      TypeTally     `json:"monsters"`
	Items         TypeTally     `json:"items"`
	Mechanics     Mechanics     `json:"mechanics"`
	Difficulty    Difficulty    `json:"difficulty"`
	Compatibility Compatibility `json:"compatibility"`
}

// TextFile is a readme-like or text-lump payload captured during scanning.
type TextFile struct {
	Path     string `json:"path"`
	Size     int    `json:"size"`
	Contents string `json:"contents,omitempty"`
	Source   string `json:"source,omitempty"`
}

// ExtractedMeta is the harvest from the container decoder/text scanner,
// before merging against the index entries.
type ExtractedMeta struct {
	Format        string          `json:"format"` // "wad", "zip", or "unknown"
	Error         string          `json:"error,omitempty"`
	LumpCount     int             `json:"lump_count,omitempty"`
	Maps          []MapSummary    `json:"-"`
	MapNames      []string        `json:"maps,omitempty"`
	TextLumps     []string        `json:"text_lumps,omitempty"`
	EmbeddedWADs  []ExtractedMeta `json:"embedded_wads,omitempty"`
	TextFiles     []TextFile      `json:"text_files,omitempty"`
	Names         []string        `json:"names,omitempty"`
	Authors       []string        `json:"authors,omitempty"`
	Descriptions  []string        `json:"descriptions,omitempty"`
	TriedPrefixes []string        `json:"tried_prefixes,omitempty"`
}

// IntegrityResult reports whether computed hashes matched expected ones.
type IntegrityResult struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

// FileInfo describes the physical artifact backing a MergedRecord.
type FileInfo struct {
	Type           string `json:"type,omitempty"`
	Size           int64  `json:"size,omitempty"`
	URL            string `json:"url,omitempty"`
	Corrupt        bool   `json:"corrupt,omitempty"`
	CorruptMessage string `json:"corrupt_message,omitempty"`
}

// IsZero reports whether every field is at its zero value, i.e. there is
// nothing worth emitting.
func (f FileInfo) IsZero() bool {
	return f.Type == "" && f.Size == 0 && f.URL == "" && !f.Corrupt && f.CorruptMessage == ""
}

// Content is the catalog-facing view of the extracted map data.
type Content struct {
	Maps         []MapSummary `json:"maps,omitempty"`
	Counts       int          `json:"counts,omitempty"`
	EnginesGuess string       `json:"engines_guess,omitempty"`
	IwadsGuess   string       `json:"iwads_guess,omitempty"`
}

// IsZero reports whether every field is at its zero value.
func (c Content) IsZero() bool {
	return len(c.Maps) == 0 && c.Counts == 0 && c.EnginesGuess == "" && c.IwadsGuess == ""
}

// Sources records the provenance of each field by origin.
type Sources struct {
	PrimaryIndex   map[string]any `json:"primary_index,omitempty"`
	CrossReference map[string]any `json:"cross_reference,omitempty"`
	Extracted      map[string]any `json:"extracted,omitempty"`
}

// IsZero reports whether every field is at its zero value.
func (s Sources) IsZero() bool {
	return len(s.PrimaryIndex) == 0 && len(s.CrossReference) == 0 && len(s.Extracted) == 0
}

// MergedRecord is the final, catalog-bound reconciliation of the three
// information sources for one file hash. File/Content/Sources are pointers
// so the null-pruning pass can drop them entirely when empty — a non-pointer
// struct field is never "empty" to encoding/json, so omitempty alone can't
// do it.
type MergedRecord struct {
	SHA1         string     `json:"sha1,omitempty"`
	SHA256       string     `json:"sha256,omitempty"`
	Title        string     `json:"title,omitempty"`
	Authors      []string   `json:"authors,omitempty"`
	Descriptions []string   `json:"descriptions,omitempty"`
	TextFiles    []TextFile `json:"text_files,omitempty"`
	File         *FileInfo  `json:"file,omitempty"`
	Content      *Content   `json:"content,omitempty"`
	Sources      *Sources   `json:"sources,omitempty"`
}

// JobEnvelope is the typed payload published to the queue for one file hash.
// Metadata jobs key on SHA1 alone; image jobs additionally carry WadID, the
// catalog's UUID for the record, since the image subject and the catalog's
// image-upload endpoint both address by that identifier rather than by hash.
type JobEnvelope struct {
	Version             int            `json:"version"`
	SHA1                string         `json:"sha1"`
	WadID               string         `json:"wad_id,omitempty"`
	PrimaryEntry        map[string]any `json:"wad_entry"`
	CrossReferenceEntry map[string]any `json:"idgames_entry,omitempty"`
	ReadmeEntry         map[string]any `json:"readmes_entry,omitempty"`
	DispatchedAt        float64        `json:"dispatched_at"`
}
