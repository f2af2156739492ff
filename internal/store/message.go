package store

import (
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CreateMessage inserts a locally authored message with status "sent" and
// bumps the owning chat's last-message stamp. Fails with ErrInvalid when the
// message has neither text nor media, ErrNotFound when the chat is missing.
// Timestamps are kept strictly increasing per chat so keyset pagination has
// a stable anchor.
func (db *DB) CreateMessage(m *Message) error {
	if !m.HasContent() {
		return fmt.Errorf("message needs text or media: %w", ErrInvalid)
	}
	if m.SenderID == "" {
		return fmt.Errorf("message needs a sender: %w", ErrInvalid)
	}
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.Status == "" {
		m.Status = StatusSent
	}
	now := time.Now().UnixMilli()

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var lastAt int64
	err = tx.QueryRow(`SELECT last_message_at FROM chats WHERE id = ?`, m.ChatID).Scan(&lastAt)
	if err == sql.ErrNoRows {
		return fmt.Errorf("chat %q: %w", m.ChatID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("read chat: %w", err)
	}

	if m.Timestamp == 0 {
		m.Timestamp = now
	}
	if m.Timestamp <= lastAt {
		m.Timestamp = lastAt + 1
	}
	m.UpdatedAt = now

	if _, err := tx.Exec(`
		INSERT INTO messages (id, chat_id, sender_id, body, media_type, media_ref, media_duration_sec,
			status, timestamp, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.ChatID, m.SenderID, m.Body, m.MediaType, m.MediaRef, m.MediaDurationSec,
		m.Status, m.Timestamp, now, now); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	if _, err := tx.Exec(`
		UPDATE chats SET last_message_at = ?, updated_at = ? WHERE id = ?`,
		m.Timestamp, now, m.ChatID); err != nil {
		return fmt.Errorf("bump chat: %w", err)
	}
	return tx.Commit()
}

// MergeMessage upserts a remote-origin message. The chat row is created if
// the pull delivered a message for a chat not seen yet. Last writer wins: a
// remote row never replaces a newer local row, and the delivery status
// keeps the furthest point reached on either side.
func (db *DB) MergeMessage(m Message) error {
	now := time.Now().UnixMilli()
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`
		INSERT INTO chats (id, last_message_at, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			last_message_at = MAX(chats.last_message_at, excluded.last_message_at),
			updated_at = excluded.updated_at`,
		m.ChatID, m.Timestamp, now); err != nil {
		return fmt.Errorf("upsert chat: %w", err)
	}

	if _, err := tx.Exec(`
		INSERT INTO messages (id, chat_id, sender_id, body, media_type, media_ref, media_duration_sec,
			status, is_edited, edited_at, original_body, is_deleted, deleted_at, timestamp, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			body = excluded.body,
			media_type = excluded.media_type,
			media_ref = excluded.media_ref,
			media_duration_sec = excluded.media_duration_sec,
			status = CASE WHEN
				(CASE excluded.status WHEN 'sending' THEN 0 WHEN 'sent' THEN 1 WHEN 'delivered' THEN 2 WHEN 'read' THEN 3 ELSE 0 END) >
				(CASE messages.status WHEN 'sending' THEN 0 WHEN 'sent' THEN 1 WHEN 'delivered' THEN 2 WHEN 'read' THEN 3 ELSE 0 END)
				THEN excluded.status ELSE messages.status END,
			is_edited = excluded.is_edited,
			edited_at = excluded.edited_at,
			original_body = excluded.original_body,
			is_deleted = excluded.is_deleted,
			deleted_at = excluded.deleted_at,
			updated_at = excluded.updated_at
		WHERE excluded.updated_at >= messages.updated_at`,
		m.ID, m.ChatID, m.SenderID, m.Body, m.MediaType, m.MediaRef, m.MediaDurationSec,
		m.Status, m.IsEdited, m.EditedAt, m.OriginalBody, m.IsDeleted, m.DeletedAt,
		m.Timestamp, now, m.UpdatedAt); err != nil {
		return fmt.Errorf("merge message: %w", err)
	}
	return tx.Commit()
}

// GetMessage returns a message with its reactions and read receipts, or
// ErrNotFound. Deleted messages surface only the deletion marker.
func (db *DB) GetMessage(id string) (*Message, error) {
	var m Message
	err := db.QueryRow(`
		SELECT id, chat_id, sender_id, body, media_type, media_ref, media_duration_sec,
			status, is_edited, edited_at, is_deleted, deleted_at, timestamp, updated_at
		FROM messages WHERE id = ?`, id).
		Scan(&m.ID, &m.ChatID, &m.SenderID, &m.Body, &m.MediaType, &m.MediaRef, &m.MediaDurationSec,
			&m.Status, &m.IsEdited, &m.EditedAt, &m.IsDeleted, &m.DeletedAt, &m.Timestamp, &m.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("message %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	msgs := []Message{m}
	if err := db.attachChildren(msgs); err != nil {
		return nil, err
	}
	msgs[0].scrubDeleted()
	return &msgs[0], nil
}

// EditMessage replaces a message's text. The original text is captured on
// the first edit. Editing a deleted message fails with ErrInvalid; editing
// to the current text is a no-op.
func (db *DB) EditMessage(id, newText string) error {
	now := time.Now().UnixMilli()

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var body, mediaRef string
	var isEdited, isDeleted bool
	err = tx.QueryRow(`SELECT body, media_ref, is_edited, is_deleted FROM messages WHERE id = ?`, id).
		Scan(&body, &mediaRef, &isEdited, &isDeleted)
	if err == sql.ErrNoRows {
		return fmt.Errorf("message %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("read message: %w", err)
	}
	if isDeleted {
		return fmt.Errorf("message %q is deleted: %w", id, ErrInvalid)
	}
	if newText == body {
		return nil
	}
	if newText == "" && mediaRef == "" {
		return fmt.Errorf("edit would leave message empty: %w", ErrInvalid)
	}

	original := body
	if isEdited {
		// Keep the first original, not the previous revision.
		if err := tx.QueryRow(`SELECT original_body FROM messages WHERE id = ?`, id).Scan(&original); err != nil {
			return fmt.Errorf("read original: %w", err)
		}
	}
	if _, err := tx.Exec(`
		UPDATE messages
		SET body = ?, is_edited = 1, edited_at = ?, original_body = ?, updated_at = ?
		WHERE id = ?`,
		newText, now, original, now, id); err != nil {
		return fmt.Errorf("edit message: %w", err)
	}
	return tx.Commit()
}

// DeleteMessage soft-deletes a message. The row is kept for audit; read
// paths expose only the deletion marker. Deleting twice is a no-op.
func (db *DB) DeleteMessage(id string) error {
	now := time.Now().UnixMilli()
	res, err := db.Exec(`
		UPDATE messages SET is_deleted = 1, deleted_at = ?, updated_at = ?
		WHERE id = ? AND is_deleted = 0`, now, now, id)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var exists bool
		if err := db.QueryRow(`SELECT 1 FROM messages WHERE id = ?`, id).Scan(&exists); err == sql.ErrNoRows {
			return fmt.Errorf("message %q: %w", id, ErrNotFound)
		} else if err != nil {
			return fmt.Errorf("read message: %w", err)
		}
		// Already deleted: idempotent.
	}
	return nil
}

// AdvanceMessageStatus moves a message's delivery status forward. The status
// never regresses: read dominates delivered dominates sent.
func (db *DB) AdvanceMessageStatus(id, status string) error {
	rank, ok := statusRank[status]
	if !ok {
		return fmt.Errorf("status %q: %w", status, ErrInvalid)
	}
	now := time.Now().UnixMilli()
	res, err := db.Exec(`
		UPDATE messages SET status = ?, updated_at = ?
		WHERE id = ?
		  AND CASE status
			WHEN 'sending' THEN 0
			WHEN 'sent' THEN 1
			WHEN 'delivered' THEN 2
			WHEN 'read' THEN 3
		  END < ?`, status, now, id, rank)
	if err != nil {
		return fmt.Errorf("advance status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var exists bool
		if err := db.QueryRow(`SELECT 1 FROM messages WHERE id = ?`, id).Scan(&exists); err == sql.ErrNoRows {
			return fmt.Errorf("message %q: %w", id, ErrNotFound)
		} else if err != nil {
			return fmt.Errorf("read message: %w", err)
		}
		// Status already at or past the target: monotonic no-op.
	}
	return nil
}

// ListMessages returns up to limit messages strictly older than before (all
// timestamps unix ms; before <= 0 means "newest page", no upper bound),
// ordered oldest to newest, plus whether older messages remain. Anchoring on
// the timestamp rather than an offset keeps pagination stable under
// concurrent inserts.
func (db *DB) ListMessages(chatID string, before int64, limit int) ([]Message, bool, error) {
	if limit <= 0 {
		limit = 50
	}
	if before <= 0 {
		// The newest page has no anchor. Burst inserts get timestamps
		// bumped past the wall clock to stay strictly increasing, so a
		// clock-based anchor would miss just-created messages.
		before = math.MaxInt64
	}
	if _, err := db.GetChat(chatID); err != nil {
		return nil, false, err
	}

	rows, err := db.Query(`
		SELECT id, chat_id, sender_id, body, media_type, media_ref, media_duration_sec,
			status, is_edited, edited_at, is_deleted, deleted_at, timestamp, updated_at
		FROM messages
		WHERE chat_id = ? AND timestamp < ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?`, chatID, before, limit+1)
	if err != nil {
		return nil, false, fmt.Errorf("list messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ChatID, &m.SenderID, &m.Body, &m.MediaType, &m.MediaRef,
			&m.MediaDurationSec, &m.Status, &m.IsEdited, &m.EditedAt, &m.IsDeleted, &m.DeletedAt,
			&m.Timestamp, &m.UpdatedAt); err != nil {
			return nil, false, err
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}

	hasMore := len(msgs) > limit
	if hasMore {
		msgs = msgs[:limit]
	}
	// Flip newest-first query order to oldest-first display order.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}

	if err := db.attachChildren(msgs); err != nil {
		return nil, false, err
	}
	for i := range msgs {
		msgs[i].scrubDeleted()
	}
	return msgs, hasMore, nil
}

// scrubDeleted hides the content of a soft-deleted message, leaving only
// the deletion marker. Reactions go with the content they reacted to; read
// receipts are delivery metadata, not content, and are kept.
func (m *Message) scrubDeleted() {
	if !m.IsDeleted {
		return
	}
	m.Body = ""
	m.OriginalBody = ""
	m.MediaType = ""
	m.MediaRef = ""
	m.MediaDurationSec = 0
	m.Reactions = nil
}

// attachChildren loads reactions and read receipts for the given messages.
func (db *DB) attachChildren(msgs []Message) error {
	if len(msgs) == 0 {
		return nil
	}
	idx := make(map[string]*Message, len(msgs))
	placeholders := make([]string, len(msgs))
	args := make([]any, len(msgs))
	for i := range msgs {
		idx[msgs[i].ID] = &msgs[i]
		placeholders[i] = "?"
		args[i] = msgs[i].ID
	}
	in := strings.Join(placeholders, ", ")

	rows, err := db.Query(`
		SELECT message_id, user_id, emoji, created_at
		FROM message_reactions
		WHERE message_id IN (`+in+`)
		ORDER BY created_at, user_id, emoji`, args...)
	if err != nil {
		return fmt.Errorf("load reactions: %w", err)
	}
	for rows.Next() {
		var msgID string
		var r Reaction
		if err := rows.Scan(&msgID, &r.UserID, &r.Emoji, &r.CreatedAt); err != nil {
			_ = rows.Close()
			return err
		}
		if m := idx[msgID]; m != nil {
			m.Reactions = append(m.Reactions, r)
		}
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	_ = rows.Close()

	rows, err = db.Query(`
		SELECT message_id, user_id, read_at
		FROM message_read_receipts
		WHERE message_id IN (`+in+`)
		ORDER BY read_at, user_id`, args...)
	if err != nil {
		return fmt.Errorf("load receipts: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var msgID string
		var r ReadReceipt
		if err := rows.Scan(&msgID, &r.UserID, &r.ReadAt); err != nil {
			return err
		}
		if m := idx[msgID]; m != nil {
			m.ReadBy = append(m.ReadBy, r)
		}
	}
	return rows.Err()
}
