package bus

import "time"

// Event kinds published by the core. Subscribers filter by prefix, so
// related kinds share a namespace ("sync.", "message.", ...).
const (
	KindConnectivityChanged = "connectivity.changed"

	KindSyncStarted      = "sync.started"
	KindSyncCompleted    = "sync.completed"
	KindSyncFailed       = "sync.failed"
	KindSyncStateChanged = "sync.state_changed"

	KindChatCreated = "chat.created"

	KindMessageCreated = "message.created"
	KindMessageUpdated = "message.updated"
	KindMessageDeleted = "message.deleted"

	KindUserPresenceChanged = "user.presence_changed"

	KindPendingEnqueued = "pending.enqueued"
)

// Event is a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
