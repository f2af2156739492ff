package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateChat inserts a new chat with its participant set. A chat needs at
// least two participants; a non-group chat exactly two.
func (db *DB) CreateChat(c *Chat) error {
	if len(c.Participants) < 2 {
		return fmt.Errorf("chat needs at least 2 participants: %w", ErrInvalid)
	}
	if !c.IsGroup && len(c.Participants) != 2 {
		return fmt.Errorf("direct chat needs exactly 2 participants: %w", ErrInvalid)
	}
	seen := make(map[string]bool, len(c.Participants))
	for _, id := range c.Participants {
		if id == "" || seen[id] {
			return fmt.Errorf("duplicate or empty participant: %w", ErrInvalid)
		}
		seen[id] = true
	}

	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	now := time.Now().UnixMilli()
	c.UpdatedAt = now

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`
		INSERT INTO chats (id, is_group, name, last_message_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.IsGroup, c.Name, c.LastMessageAt, now); err != nil {
		return fmt.Errorf("insert chat: %w", err)
	}
	for i, userID := range c.Participants {
		if _, err := tx.Exec(`
			INSERT INTO chat_participants (chat_id, user_id, position)
			VALUES (?, ?, ?)`,
			c.ID, userID, i); err != nil {
			return fmt.Errorf("insert participant %q: %w", userID, err)
		}
	}
	return tx.Commit()
}

// MergeChat upserts a remote-origin chat. Last writer wins on the chat row;
// the participant set is replaced only when the remote row wins.
func (db *DB) MergeChat(c Chat) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.Exec(`
		INSERT INTO chats (id, is_group, name, last_message_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			is_group = excluded.is_group,
			name = excluded.name,
			last_message_at = MAX(chats.last_message_at, excluded.last_message_at),
			updated_at = excluded.updated_at
		WHERE excluded.updated_at >= chats.updated_at`,
		c.ID, c.IsGroup, c.Name, c.LastMessageAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("merge chat: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 && len(c.Participants) > 0 {
		if _, err := tx.Exec(`DELETE FROM chat_participants WHERE chat_id = ?`, c.ID); err != nil {
			return fmt.Errorf("clear participants: %w", err)
		}
		for i, userID := range c.Participants {
			if _, err := tx.Exec(`
				INSERT INTO chat_participants (chat_id, user_id, position)
				VALUES (?, ?, ?)`,
				c.ID, userID, i); err != nil {
				return fmt.Errorf("insert participant %q: %w", userID, err)
			}
		}
	}
	return tx.Commit()
}

// GetChat returns a chat with its participants, or ErrNotFound.
func (db *DB) GetChat(id string) (*Chat, error) {
	var c Chat
	err := db.QueryRow(`
		SELECT id, is_group, name, last_message_at, updated_at
		FROM chats WHERE id = ?`, id).
		Scan(&c.ID, &c.IsGroup, &c.Name, &c.LastMessageAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("chat %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get chat: %w", err)
	}
	participants, err := db.chatParticipants(c.ID)
	if err != nil {
		return nil, err
	}
	c.Participants = participants
	return &c, nil
}

// ChatIDs returns the ids of all known chats.
func (db *DB) ChatIDs() ([]string, error) {
	rows, err := db.Query(`SELECT id FROM chats ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("chat ids: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListChatsForUser returns the chats the user participates in, each
// annotated with its most recent non-deleted message, ordered by that
// message's timestamp descending. Chats with no messages sort last, stable
// by chat id.
func (db *DB) ListChatsForUser(userID string) ([]ChatSummary, error) {
	rows, err := db.Query(`
		SELECT c.id, c.is_group, c.name, c.last_message_at, c.updated_at,
			m.id, m.sender_id, m.body, m.media_type, m.media_ref, m.media_duration_sec,
			m.status, m.is_edited, m.edited_at, m.is_deleted, m.deleted_at, m.timestamp, m.updated_at
		FROM chats c
		JOIN chat_participants p ON p.chat_id = c.id AND p.user_id = ?
		LEFT JOIN messages m ON m.id = (
			SELECT id FROM messages
			WHERE chat_id = c.id AND is_deleted = 0
			ORDER BY timestamp DESC, id DESC
			LIMIT 1)
		ORDER BY (m.id IS NULL), m.timestamp DESC, c.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var summaries []ChatSummary
	for rows.Next() {
		var s ChatSummary
		var (
			msgID, senderID, body, mediaType, mediaRef, status sql.NullString
			mediaDur                                           sql.NullInt64
			isEdited, isDeleted                                sql.NullBool
			editedAt, deletedAt, ts, updatedAt                 sql.NullInt64
		)
		if err := rows.Scan(
			&s.Chat.ID, &s.Chat.IsGroup, &s.Chat.Name, &s.Chat.LastMessageAt, &s.Chat.UpdatedAt,
			&msgID, &senderID, &body, &mediaType, &mediaRef, &mediaDur,
			&status, &isEdited, &editedAt, &isDeleted, &deletedAt, &ts, &updatedAt,
		); err != nil {
			return nil, err
		}
		if msgID.Valid {
			s.LastMessage = &Message{
				ID:               msgID.String,
				ChatID:           s.Chat.ID,
				SenderID:         senderID.String,
				Body:             body.String,
				MediaType:        mediaType.String,
				MediaRef:         mediaRef.String,
				MediaDurationSec: int(mediaDur.Int64),
				Status:           status.String,
				IsEdited:         isEdited.Bool,
				EditedAt:         editedAt.Int64,
				IsDeleted:        isDeleted.Bool,
				DeletedAt:        deletedAt.Int64,
				Timestamp:        ts.Int64,
				UpdatedAt:        updatedAt.Int64,
			}
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range summaries {
		participants, err := db.chatParticipants(summaries[i].Chat.ID)
		if err != nil {
			return nil, err
		}
		summaries[i].Chat.Participants = participants
	}
	return summaries, nil
}

func (db *DB) chatParticipants(chatID string) ([]string, error) {
	rows, err := db.Query(`
		SELECT user_id FROM chat_participants
		WHERE chat_id = ? ORDER BY position`, chatID)
	if err != nil {
		return nil, fmt.Errorf("chat participants: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
