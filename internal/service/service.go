// Package service implements the local-first write path. Every mutation
// lands in the local store first and appears to succeed immediately; a
// snapshot of the write is then queued as a pending operation for the next
// sync, and a domain event is published for interested subscribers.
package service

import (
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"chatsync/internal/bus"
	"chatsync/internal/store"
)

// enqueue snapshots payload and appends it to the pending queue. An enqueue
// failure does not roll back the local write the caller already made; the
// operation is simply not durably queued, so it will not reach the remote
// authority unless the user repeats it.
func enqueue(db *store.DB, b *bus.Bus, logger *zap.Logger, op, resource string, payload any) {
	raw, err := msgpack.Marshal(payload)
	if err != nil {
		logger.Error("encode pending payload",
			zap.String("op", op),
			zap.String("resource", resource),
			zap.Error(err))
		return
	}
	id, err := db.EnqueuePending(op, resource, raw)
	if err != nil {
		logger.Error("enqueue pending operation",
			zap.String("op", op),
			zap.String("resource", resource),
			zap.Error(err))
		return
	}
	b.Emit(bus.KindPendingEnqueued, id)
}
