package domain

// Record sizes (bytes) for the classic and Hexen map lump layouts.
const (
	DoomThingsRecSize    = 10
	DoomLinedefsRecSize  = 14
	SidedefsRecSize      = 30
	VertexesRecSize      = 4
	SectorsRecSize       = 26
	SegsRecSize          = 12
	SSectorsRecSize      = 4
	NodesRecSize         = 28
	HexenThingsRecSize   = 20
	HexenLinedefsRecSize = 16
)

// KeyThingIDs maps THINGS type identifiers to friendly key names.
var KeyThingIDs = map[int]string{
	5:  "blue",
	6:  "yellow",
	13: "red",
	38: "red_skull",
	39: "yellow_skull",
	40: "blue_skull",
}

// MonsterThingIDs maps THINGS type identifiers to friendly monster names.
var MonsterThingIDs = map[int]string{
	3004: "zombieman",
	9:    "shotgun_guy",
	65:   "chaingun_guy",
	3001: "imp",
	3002: "demon",
	58:   "spectre",
	3005: "cacodemon",
	3006: "lost_soul",
	16:   "cyberdemon",
	7:    "spider_mastermind",
	64:   "archvile",
	66:   "revenant",
	67:   "mancubus",
	68:   "arachnotron",
	69:   "hell_knight",
	71:   "pain_elemental",
	3003: "baron",
}

// ItemThingIDs maps pickup THINGS type identifiers to friendly item names.
// Grouped by rough category; the merge into one table mirrors the closed
// set used by the original extractor.
var ItemThingIDs = map[int]string{
	2001: "shotgun",
	2002: "chaingun",
	2003: "rocket_launcher",
	2004: "plasma_gun",
	2005: "chainsaw",
	2006: "bfg9000",
	82:   "super_shotgun",
	2007: "clip",
	2008: "shells",
	2010: "rocket",
	2047: "cell_pack",
	2048: "cell",
	2049: "rocket_box",
	2046: "shell_box",
	17:   "backpack",
	8:    "soulsphere",
	2013: "megasphere",
	2011: "stimpack",
	2012: "medikit",
	2014: "health_bonus",
	2015: "armor_bonus",
	2018: "green_armor",
	2019: "blue_armor",
	2022: "invulnerability",
	2023: "berserk",
	2024: "invisibility",
	2025: "radsuit",
	2026: "computer_map",
	2045: "light_amp_goggles",
}

// SecretExitSpecials are linedef special numbers that mark a secret exit.
var SecretExitSpecials = map[int]bool{51: true, 124: true, 198: true}

// TeleportSpecials are linedef special numbers that mark a teleporter.
var TeleportSpecials = map[int]bool{
	39: true, 97: true, 125: true, 126: true, 174: true, 195: true,
}

// MapMarkerFuzziness is how many directory entries following a candidate
// marker are inspected for THINGS and LINEDEFS before it is confirmed.
const MapMarkerFuzziness = 15

// MaxReasonableLumpCount rejects directories claiming an absurd entry count.
const MaxReasonableLumpCount = 200000
