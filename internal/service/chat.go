package service

import (
	"go.uber.org/zap"

	"chatsync/internal/bus"
	"chatsync/internal/store"
)

// ChatService creates chats and serves the chat-list and message-history
// read models. Reads always come from the local store, online or not.
type ChatService struct {
	db     *store.DB
	bus    *bus.Bus
	logger *zap.Logger
}

func NewChatService(db *store.DB, b *bus.Bus, logger *zap.Logger) *ChatService {
	return &ChatService{db: db, bus: b, logger: logger}
}

// Create stores a new chat and queues it for the remote authority.
func (s *ChatService) Create(isGroup bool, name string, participants []string) (*store.Chat, error) {
	chat := &store.Chat{
		IsGroup:      isGroup,
		Name:         name,
		Participants: participants,
	}
	if err := s.db.CreateChat(chat); err != nil {
		return nil, err
	}
	enqueue(s.db, s.bus, s.logger, store.OpCreate, store.ResourceChat, chat)
	s.bus.Emit(bus.KindChatCreated, *chat)
	s.logger.Info("chat created", zap.String("chat_id", chat.ID), zap.Bool("group", isGroup))
	return chat, nil
}

// Get returns one chat with its participants.
func (s *ChatService) Get(id string) (*store.Chat, error) {
	return s.db.GetChat(id)
}

// ListForUser returns the user's chats, most recently active first, each
// with its latest visible message.
func (s *ChatService) ListForUser(userID string) ([]store.ChatSummary, error) {
	return s.db.ListChatsForUser(userID)
}

// Messages returns one history page: up to limit messages strictly older
// than before, oldest first, plus whether older pages remain.
func (s *ChatService) Messages(chatID string, before int64, limit int) ([]store.Message, bool, error) {
	return s.db.ListMessages(chatID, before, limit)
}
