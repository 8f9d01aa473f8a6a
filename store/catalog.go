package store

import (
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"radiorec-tui/model"
)

const catalogKey = "radioRecordings"

// Catalog is the durable, expiry-filtered collection of recording
// metadata for one device. The backing KV holds a single JSON object
// mapping every device that ever recorded on this install to its
// entries; only the current device's slice is materialized, and saves
// read-merge-write so other devices' data survives.
type Catalog struct {
	kv       KV
	deviceID string
	logger   *zap.Logger

	now func() time.Time
}

// NewCatalog creates a catalog bound to one device.
func NewCatalog(kv KV, deviceID string, logger *zap.Logger) *Catalog {
	return &Catalog{
		kv:       kv,
		deviceID: deviceID,
		logger:   logger,
		now:      time.Now,
	}
}

func (c *Catalog) readAll() (map[string][]model.RecordingEntry, error) {
	raw, ok, err := c.kv.Get(catalogKey)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	all := map[string][]model.RecordingEntry{}
	if !ok || raw == "" {
		return all, nil
	}
	if err := json.Unmarshal([]byte(raw), &all); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	return all, nil
}

func (c *Catalog) writeAll(all map[string][]model.RecordingEntry) error {
	data, err := json.Marshal(all)
	if err != nil {
		return err
	}
	return c.kv.Set(catalogKey, string(data))
}

// Load returns this device's entries after sweeping out anything past
// its expiry. The sweep result is persisted so expiry is deterministic
// regardless of how often Load runs.
func (c *Catalog) Load() ([]model.RecordingEntry, error) {
	all, err := c.readAll()
	if err != nil {
		return nil, err
	}

	entries := all[c.deviceID]
	now := c.now()

	kept := entries[:0:0]
	swept := 0
	for _, e := range entries {
		if e.Expired(now) {
			swept++
			continue
		}
		kept = append(kept, e)
	}

	if swept > 0 {
		c.logger.Info("swept expired recordings",
			zap.String("device_id", c.deviceID),
			zap.Int("removed", swept))
		all[c.deviceID] = kept
		if err := c.writeAll(all); err != nil {
			return nil, err
		}
	}
	return kept, nil
}

// Save replaces this device's slice, re-reading the full mapping first
// so concurrent writers for other devices are not clobbered. Writes for
// this device's own slice are last-writer-wins.
func (c *Catalog) Save(entries []model.RecordingEntry) error {
	all, err := c.readAll()
	if err != nil {
		return err
	}
	all[c.deviceID] = entries
	return c.writeAll(all)
}

// Upsert inserts the entry or replaces the one with the same ID.
func (c *Catalog) Upsert(entry model.RecordingEntry) error {
	entries, err := c.Load()
	if err != nil {
		return err
	}

	replaced := false
	for i := range entries {
		if entries[i].ID == entry.ID {
			entries[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		entries = append(entries, entry)
	}
	return c.Save(entries)
}

// Remove drops the entry with the given ID. Removing an absent ID is
// not an error.
func (c *Catalog) Remove(id string) error {
	entries, err := c.Load()
	if err != nil {
		return err
	}

	kept := entries[:0:0]
	for _, e := range entries {
		if e.ID != id {
			kept = append(kept, e)
		}
	}
	return c.Save(kept)
}
