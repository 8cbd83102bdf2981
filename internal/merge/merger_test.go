package merge

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beebs-dev/dorch/internal/domain"
)

func TestComputeHashes_SHA256RoundTrip(t *testing.T) {
	h, err := ComputeHashes(strings.NewReader("hello"))
	require.NoError(t, err)
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", h.SHA256)
}

func TestCheckIntegrity_MismatchReported(t *testing.T) {
	computed := Hashes{SHA256: "aaaa"}
	result := CheckIntegrity(computed, map[string]string{"sha256": "bbbb"})

	assert.False(t, result.OK)
	assert.True(t, strings.HasPrefix(result.Message, "Integrity check failed:"))
}

func TestCheckIntegrity_MissingExpectedIsOK(t *testing.T) {
	computed := Hashes{SHA256: "aaaa"}
	result := CheckIntegrity(computed, map[string]string{})
	assert.True(t, result.OK)
}

func TestMerge_TitlePrecedence(t *testing.T) {
	in := Input{
		SHA1:      strings.Repeat("a", 40),
		Extracted: domain.ExtractedMeta{Names: []string{"Extracted Title"}},
		Primary:   map[string]any{"names": []any{"Primary Title"}},
		CrossRef:  map[string]any{"title": "CrossRef Title"},
	}
	rec := Merge(in)
	assert.Equal(t, "Extracted Title", rec.Title)
}

func TestMerge_AuthorsUnionPreservesOrder(t *testing.T) {
	in := Input{
		Extracted: domain.ExtractedMeta{Authors: []string{"Alice"}},
		Primary:   map[string]any{"authors": []any{"Bob", "Alice"}},
		CrossRef:  map[string]any{"author": "Carol"},
	}
	rec := Merge(in)
	assert.Equal(t, []string{"Alice", "Bob", "Carol"}, rec.Authors)
}

func TestMerge_ContentMapsFallsBackToPrimary(t *testing.T) {
	in := Input{
		Primary: map[string]any{"maps": []any{"MAP01", "MAP02"}},
	}
	rec := Merge(in)
	require.NotNil(t, rec.Content)
	assert.Equal(t, []domain.MapSummary{{Map: "MAP01"}, {Map: "MAP02"}}, rec.Content.Maps)
	assert.Equal(t, 2, rec.Content.Counts)
}

func TestMerge_ContentNilWhenNoMaps(t *testing.T) {
	rec := Merge(Input{})
	assert.Nil(t, rec.Content)
}

func TestMerge_CorruptWhenIntegrityFails(t *testing.T) {
	integrity := domain.IntegrityResult{OK: false, Message: "Integrity check failed: mismatched sha256"}
	rec := Merge(Input{Integrity: &integrity})
	assert.True(t, rec.File.Corrupt)
	assert.Equal(t, integrity.Message, rec.File.CorruptMessage)
}

func TestPruneMap_RemovesNullsAndEmpties(t *testing.T) {
	in := map[string]any{
		"keep":     "value",
		"drop_nil": nil,
		"drop_str": "",
		"drop_arr": []any{},
		"drop_obj": map[string]any{},
		"nested":   map[string]any{"inner": "x", "inner_empty": ""},
	}
	out := pruneMap(in)
	assert.Equal(t, "value", out["keep"])
	assert.NotContains(t, out, "drop_nil")
	assert.NotContains(t, out, "drop_str")
	assert.NotContains(t, out, "drop_arr")
	assert.NotContains(t, out, "drop_obj")
	assert.Equal(t, map[string]any{"inner": "x"}, out["nested"])
}
