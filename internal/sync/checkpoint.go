package sync

import (
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"chatsync/internal/store"
)

// Checkpoint keys in the sync_state table. Per-chat message watermarks are
// stored under watermarkKey(chatID).
const lastSyncKey = "last_sync_at"

func watermarkKey(chatID string) string {
	return "watermark:" + chatID
}

// setCheckpoint writes a sync checkpoint value.
func setCheckpoint(db *store.DB, key string, value int64) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO sync_state (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, strconv.FormatInt(value, 10), now)
	if err != nil {
		return fmt.Errorf("set checkpoint %s: %w", key, err)
	}
	return nil
}

// getCheckpoint reads a sync checkpoint value. A missing key reads as 0,
// the "never synced" sentinel.
func getCheckpoint(db *store.DB, key string) (int64, error) {
	var raw string
	err := db.QueryRow(`SELECT value FROM sync_state WHERE key = ?`, key).Scan(&raw)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get checkpoint %s: %w", key, err)
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse checkpoint %s: %w", key, err)
	}
	return v, nil
}
