package loadorder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beebs-dev/dorch/internal/domain"
)

func TestMerge_LastDefinitionWins(t *testing.T) {
	wadA := []domain.MapSummary{{Map: "MAP01", Stats: domain.MapStats{Things: 10}}}
	wadB := []domain.MapSummary{{Map: "MAP01", Stats: domain.MapStats{Things: 99}}}

	out := Merge([][]domain.MapSummary{wadA, wadB})

	require.Len(t, out, 1)
	assert.Equal(t, 99, out[0].Stats.Things, "later WAD's definition must win")
}

func TestMerge_PreservesOtherMapsAndOrder(t *testing.T) {
	wadA := []domain.MapSummary{{Map: "MAP01"}, {Map: "MAP02"}}
	wadB := []domain.MapSummary{{Map: "MAP01", Stats: domain.MapStats{Things: 5}}}

	out := Merge([][]domain.MapSummary{wadA, wadB})

	require.Len(t, out, 2)
	assert.Equal(t, "MAP02", out[0].Map)
	assert.Equal(t, "MAP01", out[1].Map)
	assert.Equal(t, 5, out[1].Stats.Things)
}

func TestDedupeKeepLast_Idempotent(t *testing.T) {
	in := []domain.MapSummary{{Map: "map01"}, {Map: "MAP01"}, {Map: "MAP02"}}

	once := dedupeKeepLast(in)
	twice := dedupeKeepLast(once)

	assert.Equal(t, once, twice)
	assert.Len(t, once, 2)
}
