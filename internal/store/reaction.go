package store

import (
	"database/sql"
	"fmt"
	"time"
)

// AddReaction records a (user, emoji) reaction on a message. Adding an
// already-present reaction is a no-op.
func (db *DB) AddReaction(messageID, userID, emoji string) error {
	if userID == "" || emoji == "" {
		return fmt.Errorf("reaction needs user and emoji: %w", ErrInvalid)
	}
	if err := db.requireMessage(messageID); err != nil {
		return err
	}
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT OR IGNORE INTO message_reactions (message_id, user_id, emoji, created_at)
		VALUES (?, ?, ?, ?)`,
		messageID, userID, emoji, now)
	if err != nil {
		return fmt.Errorf("add reaction: %w", err)
	}
	return nil
}

// RemoveReaction removes a (user, emoji) reaction. Removing a reaction that
// does not exist is a no-op.
func (db *DB) RemoveReaction(messageID, userID, emoji string) error {
	if err := db.requireMessage(messageID); err != nil {
		return err
	}
	_, err := db.Exec(`
		DELETE FROM message_reactions
		WHERE message_id = ? AND user_id = ? AND emoji = ?`,
		messageID, userID, emoji)
	if err != nil {
		return fmt.Errorf("remove reaction: %w", err)
	}
	return nil
}

// MarkRead records a read receipt for the user, at most one per user, and
// advances the message's delivery status to "read" when a non-sender
// participant of the chat has read it. A receipt from a non-participant is
// recorded but does not move the status. Calling it twice for the same user
// is a no-op.
func (db *DB) MarkRead(messageID, userID string) error {
	now := time.Now().UnixMilli()

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var chatID, senderID string
	err = tx.QueryRow(`SELECT chat_id, sender_id FROM messages WHERE id = ?`, messageID).Scan(&chatID, &senderID)
	if err == sql.ErrNoRows {
		return fmt.Errorf("message %q: %w", messageID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("read message: %w", err)
	}

	if _, err := tx.Exec(`
		INSERT OR IGNORE INTO message_read_receipts (message_id, user_id, read_at)
		VALUES (?, ?, ?)`,
		messageID, userID, now); err != nil {
		return fmt.Errorf("add receipt: %w", err)
	}

	var isParticipant bool
	err = tx.QueryRow(`SELECT 1 FROM chat_participants WHERE chat_id = ? AND user_id = ?`, chatID, userID).Scan(&isParticipant)
	if err == sql.ErrNoRows {
		isParticipant = false
	} else if err != nil {
		return fmt.Errorf("read participant: %w", err)
	}

	if isParticipant && userID != senderID {
		if _, err := tx.Exec(`
			UPDATE messages SET status = ?, updated_at = ?
			WHERE id = ?
			  AND CASE status
				WHEN 'sending' THEN 0
				WHEN 'sent' THEN 1
				WHEN 'delivered' THEN 2
				WHEN 'read' THEN 3
			  END < ?`, StatusRead, now, messageID, statusRank[StatusRead]); err != nil {
			return fmt.Errorf("advance status: %w", err)
		}
	}
	return tx.Commit()
}

func (db *DB) requireMessage(id string) error {
	var one int
	err := db.QueryRow(`SELECT 1 FROM messages WHERE id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return fmt.Errorf("message %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("read message: %w", err)
	}
	return nil
}
