package model

import (
	"fmt"
	"sort"
	"time"
)

// RecordingEntry is one recording owned by a device, completed or in progress.
// Dates serialize as RFC3339 so the catalog round-trips through JSON exactly.
type RecordingEntry struct {
	ID           string    `json:"id"`
	StartTime    time.Time `json:"start_time"`
	Duration     int       `json:"duration"` // elapsed seconds, frozen on stop
	Expiry       time.Time `json:"expiry"`
	ChunkCount   int       `json:"chunk_count"` // fixed-length segments, minimum 1
	Uploaded     bool      `json:"uploaded"`
	DownloadURLs []string  `json:"download_urls,omitempty"` // one per chunk, chunk order
}

// Expired reports whether the entry is past its retention window.
func (e RecordingEntry) Expired(now time.Time) bool {
	return !e.Expiry.After(now)
}

// ChunkCountFor derives the segment count for an elapsed duration.
// A recording always occupies at least one chunk.
func ChunkCountFor(durationSeconds, chunkSeconds int) int {
	if chunkSeconds <= 0 {
		return 1
	}
	return durationSeconds/chunkSeconds + 1
}

// SortedByRecency returns a display view sorted newest-first.
// Storage order is never meaningful; consumers re-sort on every render.
func SortedByRecency(entries []RecordingEntry) []RecordingEntry {
	out := make([]RecordingEntry, len(entries))
	copy(out, entries)
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartTime.After(out[j].StartTime)
	})
	return out
}

// FormatTime renders a second count as mm:ss for display.
func FormatTime(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
