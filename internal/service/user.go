package service

import (
	"go.uber.org/zap"

	"chatsync/internal/bus"
	"chatsync/internal/store"
)

// UserService handles the user write paths and user reads.
type UserService struct {
	db     *store.DB
	bus    *bus.Bus
	logger *zap.Logger
}

func NewUserService(db *store.DB, b *bus.Bus, logger *zap.Logger) *UserService {
	return &UserService{db: db, bus: b, logger: logger}
}

// Get returns one user.
func (s *UserService) Get(id string) (*store.User, error) {
	return s.db.GetUser(id)
}

// List returns all known users.
func (s *UserService) List() ([]store.User, error) {
	return s.db.ListUsers()
}

// SetPresence updates a user's presence locally and queues the change for
// the remote authority.
func (s *UserService) SetPresence(userID, presence string) (*store.User, error) {
	if err := s.db.SetPresence(userID, presence); err != nil {
		return nil, err
	}
	u, err := s.db.GetUser(userID)
	if err != nil {
		return nil, err
	}
	enqueue(s.db, s.bus, s.logger, store.OpUpdate, store.ResourceUser, u)
	s.bus.Emit(bus.KindUserPresenceChanged, *u)
	return u, nil
}
