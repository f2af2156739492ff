package service

import (
	"go.uber.org/zap"

	"chatsync/internal/bus"
	"chatsync/internal/store"
)

// OutgoingMessage is the caller's view of a message about to be sent. ID,
// status and timestamps are assigned by the store.
type OutgoingMessage struct {
	ChatID           string
	SenderID         string
	Body             string
	MediaType        string
	MediaRef         string
	MediaDurationSec int
}

// MessageService handles the message write paths. Every mutation is applied
// to the local store first and snapshot-queued for the next sync.
type MessageService struct {
	db     *store.DB
	bus    *bus.Bus
	logger *zap.Logger
}

func NewMessageService(db *store.DB, b *bus.Bus, logger *zap.Logger) *MessageService {
	return &MessageService{db: db, bus: b, logger: logger}
}

// Send stores an outgoing message and queues it for delivery. The message
// is visible locally right away with status "sent"; the remote ack during
// sync advances it to "delivered".
func (s *MessageService) Send(out OutgoingMessage) (*store.Message, error) {
	msg := &store.Message{
		ChatID:           out.ChatID,
		SenderID:         out.SenderID,
		Body:             out.Body,
		MediaType:        out.MediaType,
		MediaRef:         out.MediaRef,
		MediaDurationSec: out.MediaDurationSec,
	}
	if err := s.db.CreateMessage(msg); err != nil {
		return nil, err
	}
	enqueue(s.db, s.bus, s.logger, store.OpCreate, store.ResourceMessage, msg)
	s.bus.Emit(bus.KindMessageCreated, *msg)
	return msg, nil
}

// Edit replaces a message's text and queues the revision.
func (s *MessageService) Edit(id, newText string) (*store.Message, error) {
	if err := s.db.EditMessage(id, newText); err != nil {
		return nil, err
	}
	return s.snapshotUpdate(id)
}

// Delete soft-deletes a message and queues the deletion.
func (s *MessageService) Delete(id string) error {
	if err := s.db.DeleteMessage(id); err != nil {
		return err
	}
	msg, err := s.db.GetMessage(id)
	if err != nil {
		return err
	}
	enqueue(s.db, s.bus, s.logger, store.OpDelete, store.ResourceMessage, msg)
	s.bus.Emit(bus.KindMessageDeleted, *msg)
	return nil
}

// React adds a (user, emoji) reaction. Adding the same reaction twice is a
// no-op.
func (s *MessageService) React(messageID, userID, emoji string) (*store.Message, error) {
	if err := s.db.AddReaction(messageID, userID, emoji); err != nil {
		return nil, err
	}
	return s.snapshotUpdate(messageID)
}

// Unreact removes a reaction if present.
func (s *MessageService) Unreact(messageID, userID, emoji string) (*store.Message, error) {
	if err := s.db.RemoveReaction(messageID, userID, emoji); err != nil {
		return nil, err
	}
	return s.snapshotUpdate(messageID)
}

// MarkRead records a read receipt for userID and, for readers other than
// the sender, advances the delivery status to "read".
func (s *MessageService) MarkRead(messageID, userID string) (*store.Message, error) {
	if err := s.db.MarkRead(messageID, userID); err != nil {
		return nil, err
	}
	return s.snapshotUpdate(messageID)
}

// snapshotUpdate reads the post-mutation row, queues it as an update and
// publishes the updated event.
func (s *MessageService) snapshotUpdate(id string) (*store.Message, error) {
	msg, err := s.db.GetMessage(id)
	if err != nil {
		return nil, err
	}
	enqueue(s.db, s.bus, s.logger, store.OpUpdate, store.ResourceMessage, msg)
	s.bus.Emit(bus.KindMessageUpdated, *msg)
	return msg, nil
}
