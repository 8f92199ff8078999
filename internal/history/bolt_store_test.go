package history

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plgd-dev/cinfo/internal/mote"
)

func TestBoltStoreRecordsLastReading(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "readings.db")
	store, err := NewStore("bbolt", path)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, store.Close())
	}()

	_, found, err := store.Last("bbbb::1")
	require.NoError(t, err)
	assert.False(t, found)

	now := time.Now().UTC().Truncate(time.Millisecond)
	first := mote.Reading{
		RunID:      "run-1",
		Mote:       "bbbb::1",
		URI:        mote.BuildURI("bbbb::1", "w"),
		Payload:    []byte{72, 105},
		Text:       "Hi",
		ReceivedAt: now,
	}
	second := first
	second.RunID = "run-2"
	second.Payload = []byte{0xff, 0x41}
	second.Text = mote.DecodePayload(second.Payload)
	second.ReceivedAt = now.Add(time.Second)
	other := first
	other.Mote = "bbbb::2"
	other.ReceivedAt = now.Add(time.Hour)

	require.NoError(t, store.Record(second))
	require.NoError(t, store.Record(first))
	require.NoError(t, store.Record(other))

	got, found, err := store.Last("bbbb::1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "run-2", got.RunID)
	assert.Equal(t, second.Payload, got.Payload)
	assert.Equal(t, second.Text, got.Text)
	assert.True(t, second.ReceivedAt.Equal(got.ReceivedAt))
}

func TestBoltStoreReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "readings.db")
	store, err := NewStore("bbolt", path)
	require.NoError(t, err)
	require.NoError(t, store.Record(mote.Reading{Mote: "bbbb::1", Text: "x", ReceivedAt: time.Now()}))
	require.NoError(t, store.Close())

	store, err = NewStore("bbolt", path)
	require.NoError(t, err)
	defer store.Close()
	got, found, err := store.Last("bbbb::1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "x", got.Text)
}

func TestNewStore(t *testing.T) {
	store, err := NewStore("none", "")
	require.NoError(t, err)
	require.NoError(t, store.Record(mote.Reading{Mote: "x"}))
	_, found, err := store.Last("x")
	require.NoError(t, err)
	assert.False(t, found)
	require.NoError(t, store.Close())

	_, err = NewStore("bbolt", " ")
	require.Error(t, err)
	_, err = NewStore("sqlite", "x.db")
	require.Error(t, err)
}
