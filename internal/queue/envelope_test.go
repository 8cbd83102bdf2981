package queue

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beebs-dev/dorch/internal/domain"
)

const testHash = "abcdefabcdefabcdefabcdefabcdefabcdefabcd"

func TestSubjectRoundTrip(t *testing.T) {
	subject := SubjectForMeta(testHash)
	id, kind, ok := ParseSubject(subject)
	require.True(t, ok)
	assert.Equal(t, testHash, id)
	assert.Equal(t, "meta", kind)
}

func TestEncodeDecodeEnvelope_RoundTrip(t *testing.T) {
	e := NewEnvelope(testHash, map[string]any{"a": 1}, nil, nil)
	data, err := EncodeEnvelope(e)
	require.NoError(t, err)

	decoded, err := DecodeEnvelope(data)
	require.NoError(t, err)
	assert.Equal(t, e.SHA1, decoded.SHA1)
	assert.Equal(t, e.Version, decoded.Version)
}

func TestDecodeEnvelope_RejectsInvalidSHA1(t *testing.T) {
	_, err := DecodeEnvelope([]byte(`{"version":1,"sha1":"not-a-hash"}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrPoison)
}

func TestDecodeEnvelope_RejectsNonObject(t *testing.T) {
	_, err := DecodeEnvelope([]byte(`[1,2,3]`))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrPoison)
}

func TestDecodeEnvelope_FillsMissingDispatchedAt(t *testing.T) {
	payload := `{"version":1,"sha1":"` + testHash + `","wad_entry":{}}`
	decoded, err := DecodeEnvelope([]byte(payload))
	require.NoError(t, err)
	assert.Greater(t, decoded.DispatchedAt, float64(0))
}

func TestParseSubject_Image(t *testing.T) {
	const wadID = "3f2b8c1e-9d4a-4e6b-8a7c-1f0e2d3c4b5a"
	subject := SubjectForImage(wadID)
	id, kind, ok := ParseSubject(subject)
	require.True(t, ok)
	assert.Equal(t, wadID, id)
	assert.Equal(t, "img", kind)
}

func TestParseSubject_Malformed(t *testing.T) {
	_, _, ok := ParseSubject("onlyonepart")
	assert.False(t, ok)
	assert.NotEmpty(t, strings.TrimSpace("guard"))
}
