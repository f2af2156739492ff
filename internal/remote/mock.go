package remote

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"chatsync/internal/store"
)

// Mock is an in-memory Authority with configurable latency and per-call
// failure injection. Safe for concurrent use.
type Mock struct {
	latency time.Duration

	mu       sync.Mutex
	users    map[string]store.User
	chats    map[string]store.Chat
	messages map[string][]store.Message
	failures map[string]error
	calls    []string
}

// NewMock creates a mock remote with the given simulated per-call latency.
// Pass 0 for instant calls in tests.
func NewMock(latency time.Duration) *Mock {
	return &Mock{
		latency:  latency,
		users:    make(map[string]store.User),
		chats:    make(map[string]store.Chat),
		messages: make(map[string][]store.Message),
		failures: make(map[string]error),
	}
}

// SeedUser installs a remote-origin user fixture.
func (m *Mock) SeedUser(u store.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
}

// SeedChat installs a remote-origin chat fixture.
func (m *Mock) SeedChat(c store.Chat) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chats[c.ID] = c
}

// SeedMessage installs a remote-origin message fixture.
func (m *Mock) SeedMessage(msg store.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[msg.ChatID] = append(m.messages[msg.ChatID], msg)
}

// FailWith makes the named call ("SendMessage", "SyncUsers", ...) return
// the given error until cleared with a nil err.
func (m *Mock) FailWith(call string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, call)
		return
	}
	m.failures[call] = err
}

// Calls returns the names of the calls made so far, in order.
func (m *Mock) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}

// begin simulates network latency and applies failure injection.
func (m *Mock) begin(ctx context.Context, call string) error {
	m.mu.Lock()
	m.calls = append(m.calls, call)
	injected := m.failures[call]
	latency := m.latency
	m.mu.Unlock()

	if latency > 0 {
		t := time.NewTimer(latency)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return fmt.Errorf("%s: %w: %w", call, ErrUnavailable, ctx.Err())
		}
	}
	if injected != nil {
		return fmt.Errorf("%s: %w: %w", call, ErrUnavailable, injected)
	}
	return nil
}

func (m *Mock) SyncUsers(ctx context.Context) ([]store.User, error) {
	if err := m.begin(ctx, "SyncUsers"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	users := make([]store.User, 0, len(m.users))
	for _, u := range m.users {
		users = append(users, u)
	}
	return users, nil
}

func (m *Mock) SyncChats(ctx context.Context) ([]store.Chat, error) {
	if err := m.begin(ctx, "SyncChats"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	chats := make([]store.Chat, 0, len(m.chats))
	for _, c := range m.chats {
		chats = append(chats, c)
	}
	return chats, nil
}

func (m *Mock) CreateChat(ctx context.Context, chat store.Chat) (string, error) {
	if err := m.begin(ctx, "CreateChat"); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if chat.ID == "" {
		chat.ID = uuid.New().String()
	}
	chat.UpdatedAt = time.Now().UnixMilli()
	m.chats[chat.ID] = chat
	return chat.ID, nil
}

func (m *Mock) SyncMessages(ctx context.Context, chatID string, since int64) ([]store.Message, int64, error) {
	if err := m.begin(ctx, "SyncMessages"); err != nil {
		return nil, 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.Message
	for _, msg := range m.messages[chatID] {
		if msg.Timestamp > since {
			out = append(out, msg)
		}
	}
	return out, time.Now().UnixMilli(), nil
}

func (m *Mock) SendMessage(ctx context.Context, msg store.Message) (string, error) {
	if err := m.begin(ctx, "SendMessage"); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	msg.UpdatedAt = time.Now().UnixMilli()
	m.messages[msg.ChatID] = append(m.messages[msg.ChatID], msg)
	return msg.ID, nil
}

func (m *Mock) UpdateUser(ctx context.Context, u store.User) (store.User, error) {
	if err := m.begin(ctx, "UpdateUser"); err != nil {
		return store.User{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u.UpdatedAt = time.Now().UnixMilli()
	m.users[u.ID] = u
	return u, nil
}
