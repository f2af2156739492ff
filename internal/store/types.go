package store

import "errors"

// Sentinel errors for the store's failure taxonomy. Driver and I/O failures
// are wrapped with %w and carry no sentinel.
var (
	// ErrNotFound is returned when a referenced entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalid is returned for malformed or incomplete input.
	ErrInvalid = errors.New("invalid input")
)

// User presence values.
const (
	PresenceOnline  = "online"
	PresenceOffline = "offline"
	PresenceAway    = "away"
)

// Message delivery statuses, in ascending order. A message's status never
// regresses; see AdvanceMessageStatus.
const (
	StatusSending   = "sending"
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusRead      = "read"
)

// statusRank orders delivery statuses for the monotonic-advance rule.
var statusRank = map[string]int{
	StatusSending:   0,
	StatusSent:      1,
	StatusDelivered: 2,
	StatusRead:      3,
}

// Pending operation kinds and resources.
const (
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"

	ResourceUser    = "user"
	ResourceChat    = "chat"
	ResourceMessage = "message"
)

// Media types attachable to a message.
const (
	MediaImage = "image"
	MediaVoice = "voice"
)

// User is a chat participant. Users are never hard-deleted.
type User struct {
	ID        string `msgpack:"id"`
	Name      string `msgpack:"name"`
	AvatarRef string `msgpack:"avatarRef"`
	Presence  string `msgpack:"presence"`
	UpdatedAt int64  `msgpack:"updatedAt"`
}

// Chat is a conversation between two or more users. A non-group chat has
// exactly two participants.
type Chat struct {
	ID            string   `msgpack:"id"`
	IsGroup       bool     `msgpack:"isGroup"`
	Name          string   `msgpack:"name"`
	Participants  []string `msgpack:"participants"`
	LastMessageAt int64    `msgpack:"lastMessageAt"`
	UpdatedAt     int64    `msgpack:"updatedAt"`
}

// Message is a single chat message. Deletion is soft: the row stays for
// audit, read paths surface only the deletion marker.
type Message struct {
	ID               string `msgpack:"id"`
	ChatID           string `msgpack:"chatId"`
	SenderID         string `msgpack:"senderId"`
	Body             string `msgpack:"body"`
	MediaType        string `msgpack:"mediaType"`
	MediaRef         string `msgpack:"mediaRef"`
	MediaDurationSec int    `msgpack:"mediaDurationSec"`
	Status           string `msgpack:"status"`
	IsEdited         bool   `msgpack:"isEdited"`
	EditedAt         int64  `msgpack:"editedAt"`
	OriginalBody     string `msgpack:"originalBody"`
	IsDeleted        bool   `msgpack:"isDeleted"`
	DeletedAt        int64  `msgpack:"deletedAt"`
	Timestamp        int64  `msgpack:"timestamp"`
	UpdatedAt        int64  `msgpack:"updatedAt"`

	Reactions []Reaction    `msgpack:"reactions,omitempty"`
	ReadBy    []ReadReceipt `msgpack:"readBy,omitempty"`
}

// HasContent reports whether the message carries text or media.
func (m *Message) HasContent() bool {
	return m.Body != "" || m.MediaRef != ""
}

// Reaction is a (user, emoji) pair on a message, unique per message.
type Reaction struct {
	UserID    string `msgpack:"userId"`
	Emoji     string `msgpack:"emoji"`
	CreatedAt int64  `msgpack:"createdAt"`
}

// ReadReceipt records that a user read a message, at most one per user.
type ReadReceipt struct {
	UserID string `msgpack:"userId"`
	ReadAt int64  `msgpack:"readAt"`
}

// PendingOperation is a queued local write not yet acknowledged by the
// remote authority. The payload is a msgpack snapshot of the resource as it
// was when the operation was enqueued; it is never mutated in place.
type PendingOperation struct {
	ID        string
	Op        string
	Resource  string
	Payload   []byte
	CreatedAt int64
}

// ChatSummary is a chat annotated with its most recent non-deleted message,
// as needed by the chat list read model.
type ChatSummary struct {
	Chat        Chat
	LastMessage *Message
}
