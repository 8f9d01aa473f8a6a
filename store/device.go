package store

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const deviceIDKey = "device_id"

// DeviceID returns the stable per-install identifier, generating and
// persisting one on first access. The value is never rotated or deleted.
func DeviceID(kv KV) (string, error) {
	id, ok, err := kv.Get(deviceIDKey)
	if err != nil {
		return "", fmt.Errorf("load device id: %w", err)
	}
	if ok && id != "" {
		return id, nil
	}

	id = "dev_" + strings.ReplaceAll(uuid.New().String(), "-", "")
	if err := kv.Set(deviceIDKey, id); err != nil {
		return "", fmt.Errorf("persist device id: %w", err)
	}
	return id, nil
}
