package scratch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestDispatcherCursor_DefaultsToZero(t *testing.T) {
	l := openTestLedger(t)

	cursor, err := l.DispatcherCursor()
	require.NoError(t, err)
	assert.Equal(t, 0, cursor)
}

func TestSetDispatcherCursor_RoundTrips(t *testing.T) {
	l := openTestLedger(t)

	require.NoError(t, l.SetDispatcherCursor(4200))

	cursor, err := l.DispatcherCursor()
	require.NoError(t, err)
	assert.Equal(t, 4200, cursor)
}

func TestRecordDelivery_RoundTrips(t *testing.T) {
	l := openTestLedger(t)
	sha1 := "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	ts := time.Unix(1700000000, 0)

	require.NoError(t, l.RecordDelivery(DeliveryOutcome{SHA1: sha1, Outcome: "completed", Message: "ok", Timestamp: ts}))

	out, found, err := l.LastDelivery(sha1)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "completed", out.Outcome)
	assert.Equal(t, "ok", out.Message)
	assert.True(t, out.Timestamp.Equal(ts))
}

func TestLastDelivery_UnknownHashNotFound(t *testing.T) {
	l := openTestLedger(t)

	_, found, err := l.LastDelivery("bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRecordDelivery_OverwritesPreviousOutcome(t *testing.T) {
	l := openTestLedger(t)
	sha1 := "cccccccccccccccccccccccccccccccccccccccc"

	require.NoError(t, l.RecordDelivery(DeliveryOutcome{SHA1: sha1, Outcome: "failed", Message: "retryable"}))
	require.NoError(t, l.RecordDelivery(DeliveryOutcome{SHA1: sha1, Outcome: "completed", Message: "ok"}))

	out, found, err := l.LastDelivery(sha1)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "completed", out.Outcome)
}
