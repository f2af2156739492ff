package store

import (
	"database/sql"
	"fmt"
	"time"
)

// UpsertUser inserts or updates a user from a local write.
func (db *DB) UpsertUser(u *User) error {
	now := time.Now().UnixMilli()
	u.UpdatedAt = now
	_, err := db.Exec(`
		INSERT INTO users (id, name, avatar_ref, presence, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			avatar_ref = excluded.avatar_ref,
			presence = excluded.presence,
			updated_at = excluded.updated_at`,
		u.ID, u.Name, u.AvatarRef, u.Presence, now)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// MergeUser upserts a remote-origin user row. Last writer wins: the remote
// row only replaces the local one when its update stamp is not older.
func (db *DB) MergeUser(u User) error {
	_, err := db.Exec(`
		INSERT INTO users (id, name, avatar_ref, presence, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			avatar_ref = excluded.avatar_ref,
			presence = excluded.presence,
			updated_at = excluded.updated_at
		WHERE excluded.updated_at >= users.updated_at`,
		u.ID, u.Name, u.AvatarRef, u.Presence, u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("merge user: %w", err)
	}
	return nil
}

// GetUser returns a user by id, or ErrNotFound.
func (db *DB) GetUser(id string) (*User, error) {
	var u User
	err := db.QueryRow(`SELECT id, name, avatar_ref, presence, updated_at FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.Name, &u.AvatarRef, &u.Presence, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// ListUsers returns all known users ordered by name.
func (db *DB) ListUsers() ([]User, error) {
	rows, err := db.Query(`SELECT id, name, avatar_ref, presence, updated_at FROM users ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Name, &u.AvatarRef, &u.Presence, &u.UpdatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// SetPresence updates a user's presence status.
func (db *DB) SetPresence(userID, presence string) error {
	switch presence {
	case PresenceOnline, PresenceOffline, PresenceAway:
	default:
		return fmt.Errorf("presence %q: %w", presence, ErrInvalid)
	}
	now := time.Now().UnixMilli()
	res, err := db.Exec(`UPDATE users SET presence = ?, updated_at = ? WHERE id = ?`, presence, now, userID)
	if err != nil {
		return fmt.Errorf("set presence: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("user %q: %w", userID, ErrNotFound)
	}
	return nil
}
