package store

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"radiorec-tui/model"
)

func testKV(t *testing.T) *FileKV {
	t.Helper()
	return NewFileKV(filepath.Join(t.TempDir(), "storage.json"))
}

func testCatalog(t *testing.T, kv KV, deviceID string, now time.Time) *Catalog {
	t.Helper()
	c := NewCatalog(kv, deviceID, zap.NewNop())
	c.now = func() time.Time { return now }
	return c
}

func TestCatalogRoundTrip(t *testing.T) {
	kv := testKV(t)
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	c := testCatalog(t, kv, "dev_abc", now)

	entries := []model.RecordingEntry{
		{
			ID:         "sess-1",
			StartTime:  now.Add(-10 * time.Minute),
			Duration:   600,
			Expiry:     now.Add(24 * time.Hour),
			ChunkCount: 3,
			Uploaded:   true,
			DownloadURLs: []string{
				"https://cdn.test/1", "https://cdn.test/2", "https://cdn.test/3",
			},
		},
		{
			ID:         "sess-2",
			StartTime:  now.Add(-time.Minute),
			Duration:   42,
			Expiry:     now.Add(24 * time.Hour),
			ChunkCount: 1,
		},
	}
	require.NoError(t, c.Save(entries))

	got, err := c.Load()
	require.NoError(t, err)
	require.Len(t, got, 2)
	for i := range entries {
		assert.Equal(t, entries[i].ID, got[i].ID)
		assert.True(t, entries[i].StartTime.Equal(got[i].StartTime), "start time must survive serialization")
		assert.True(t, entries[i].Expiry.Equal(got[i].Expiry), "expiry must survive serialization")
		assert.Equal(t, entries[i].Duration, got[i].Duration)
		assert.Equal(t, entries[i].ChunkCount, got[i].ChunkCount)
		assert.Equal(t, entries[i].Uploaded, got[i].Uploaded)
		assert.Equal(t, entries[i].DownloadURLs, got[i].DownloadURLs)
	}
}

func TestCatalogExpirySweep(t *testing.T) {
	kv := testKV(t)
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	c := testCatalog(t, kv, "dev_abc", now)

	require.NoError(t, c.Save([]model.RecordingEntry{
		{ID: "expired", StartTime: now.Add(-25 * time.Hour), Expiry: now.Add(-time.Second), ChunkCount: 1},
		{ID: "fresh", StartTime: now.Add(-time.Hour), Expiry: now.Add(24 * time.Hour), ChunkCount: 1},
	}))

	got, err := c.Load()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "fresh", got[0].ID)

	// The sweep persisted; loading again yields the same result
	got, err = c.Load()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "fresh", got[0].ID)

	// An entry expiring exactly now is gone too
	require.NoError(t, c.Save([]model.RecordingEntry{
		{ID: "boundary", StartTime: now.Add(-time.Hour), Expiry: now, ChunkCount: 1},
	}))
	got, err = c.Load()
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCatalogSavePreservesOtherDevices(t *testing.T) {
	kv := testKV(t)
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

	other := testCatalog(t, kv, "dev_other", now)
	require.NoError(t, other.Save([]model.RecordingEntry{
		{ID: "theirs", StartTime: now, Expiry: now.Add(24 * time.Hour), ChunkCount: 1},
	}))

	mine := testCatalog(t, kv, "dev_abc", now)
	require.NoError(t, mine.Save([]model.RecordingEntry{
		{ID: "ours", StartTime: now, Expiry: now.Add(24 * time.Hour), ChunkCount: 1},
	}))

	raw, ok, err := kv.Get(catalogKey)
	require.NoError(t, err)
	require.True(t, ok)

	all := map[string][]model.RecordingEntry{}
	require.NoError(t, json.Unmarshal([]byte(raw), &all))
	require.Len(t, all["dev_other"], 1)
	assert.Equal(t, "theirs", all["dev_other"][0].ID)
	require.Len(t, all["dev_abc"], 1)
	assert.Equal(t, "ours", all["dev_abc"][0].ID)
}

func TestCatalogUpsertAndRemove(t *testing.T) {
	kv := testKV(t)
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	c := testCatalog(t, kv, "dev_abc", now)

	entry := model.RecordingEntry{
		ID: "sess-1", StartTime: now, Expiry: now.Add(24 * time.Hour), ChunkCount: 1,
	}
	require.NoError(t, c.Upsert(entry))

	entry.Duration = 120
	entry.ChunkCount = 1
	require.NoError(t, c.Upsert(entry))

	got, err := c.Load()
	require.NoError(t, err)
	require.Len(t, got, 1, "upsert must replace, not append")
	assert.Equal(t, 120, got[0].Duration)

	require.NoError(t, c.Remove("sess-1"))
	got, err = c.Load()
	require.NoError(t, err)
	assert.Empty(t, got)

	// Removing an unknown id is not an error
	require.NoError(t, c.Remove("nope"))
}

func TestDeviceIDStable(t *testing.T) {
	kv := testKV(t)

	id1, err := DeviceID(kv)
	require.NoError(t, err)
	assert.Contains(t, id1, "dev_")
	assert.Greater(t, len(id1), 10)

	id2, err := DeviceID(kv)
	require.NoError(t, err)
	assert.Equal(t, id1, id2, "device id must never rotate")
}

func TestDeviceIDsDiffer(t *testing.T) {
	id1, err := DeviceID(testKV(t))
	require.NoError(t, err)
	id2, err := DeviceID(testKV(t))
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)
}

func TestFileKVRoundTrip(t *testing.T) {
	kv := testKV(t)

	_, ok, err := kv.Get("missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, kv.Set("a", "1"))
	require.NoError(t, kv.Set("b", "2"))

	v, ok, err := kv.Get("a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "1", v)

	require.NoError(t, kv.Delete("a"))
	_, ok, err = kv.Get("a")
	require.NoError(t, err)
	assert.False(t, ok)

	v, ok, err = kv.Get("b")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "2", v)
}
