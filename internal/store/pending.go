package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EnqueuePending appends a pending operation to the durable queue and
// returns its id. The payload is an immutable snapshot of the resource at
// enqueue time.
func (db *DB) EnqueuePending(op, resource string, payload []byte) (string, error) {
	id := uuid.New().String()
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO pending_operations (id, op, resource, payload, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		id, op, resource, payload, now)
	if err != nil {
		return "", fmt.Errorf("enqueue pending: %w", err)
	}
	return id, nil
}

// ListPending returns all queued operations in enqueue order.
func (db *DB) ListPending() ([]PendingOperation, error) {
	rows, err := db.Query(`
		SELECT id, op, resource, payload, created_at
		FROM pending_operations
		ORDER BY created_at, rowid`)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ops []PendingOperation
	for rows.Next() {
		var p PendingOperation
		if err := rows.Scan(&p.ID, &p.Op, &p.Resource, &p.Payload, &p.CreatedAt); err != nil {
			return nil, err
		}
		ops = append(ops, p)
	}
	return ops, rows.Err()
}

// PendingCount returns the number of outstanding pending operations.
func (db *DB) PendingCount() (int64, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM pending_operations`).Scan(&count)
	return count, err
}

// DrainPending applies queued operations strictly in enqueue order. Entries
// for which apply returns nil are removed; entries that fail stay queued
// untouched, in their original position, for the next drain. A failed entry
// does not stop later entries from being attempted. Returns the number of
// entries that failed; the error return is reserved for storage failures.
func (db *DB) DrainPending(apply func(PendingOperation) error) (int, error) {
	ops, err := db.ListPending()
	if err != nil {
		return 0, err
	}

	failed := 0
	for _, op := range ops {
		if err := apply(op); err != nil {
			failed++
			continue
		}
		if _, err := db.Exec(`DELETE FROM pending_operations WHERE id = ?`, op.ID); err != nil {
			return failed, fmt.Errorf("remove pending %s: %w", op.ID, err)
		}
	}
	return failed, nil
}
