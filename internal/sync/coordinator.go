package sync

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"chatsync/internal/bus"
	"chatsync/internal/connectivity"
	"chatsync/internal/remote"
	"chatsync/internal/store"
)

// Guard errors returned by SyncWithServer without touching any state.
var (
	// ErrOffline is returned when a sync is requested while unreachable.
	ErrOffline = errors.New("not online")
	// ErrSyncInProgress is returned when a sync is already in flight. Sync
	// requests are not queued; callers may retry later.
	ErrSyncInProgress = errors.New("sync already in progress")
)

// Status is the derived, non-persisted sync status read model.
type Status struct {
	Online       bool
	InProgress   bool
	PendingCount int64
	// LastSyncAt is the wall-clock unix ms of the last fully successful
	// sync; 0 means never synced.
	LastSyncAt int64
}

// Options tune the coordinator.
type Options struct {
	// CallTimeout bounds each remote authority call. Zero disables the
	// per-call deadline.
	CallTimeout time.Duration
	// PullWorkers bounds concurrent per-chat message pulls.
	PullWorkers int
}

// Coordinator is the single authority moving data between the local store
// and the remote authority. It drains the pending queue first, then pulls
// remote deltas, so a pull cannot overwrite a local edit that was about to
// be pushed.
type Coordinator struct {
	db      *store.DB
	remote  remote.Authority
	monitor *connectivity.Monitor
	bus     *bus.Bus
	logger  *zap.Logger
	machine *Machine
	opts    Options

	mu         gosync.Mutex
	lastSyncAt int64
}

// NewCoordinator creates a coordinator. The last-sync stamp is recovered
// from the store so restarts do not forget sync history.
func NewCoordinator(db *store.DB, auth remote.Authority, monitor *connectivity.Monitor, b *bus.Bus, logger *zap.Logger, opts Options) (*Coordinator, error) {
	if opts.PullWorkers <= 0 {
		opts.PullWorkers = 4
	}
	lastSync, err := getCheckpoint(db, lastSyncKey)
	if err != nil {
		return nil, err
	}
	return &Coordinator{
		db:         db,
		remote:     auth,
		monitor:    monitor,
		bus:        b,
		logger:     logger,
		machine:    NewMachine(b),
		opts:       opts,
		lastSyncAt: lastSync,
	}, nil
}

// Status returns the current sync status snapshot.
func (c *Coordinator) Status() (Status, error) {
	count, err := c.db.PendingCount()
	if err != nil {
		return Status{}, err
	}
	c.mu.Lock()
	lastSync := c.lastSyncAt
	c.mu.Unlock()
	return Status{
		Online:       c.monitor.Online(),
		InProgress:   c.machine.Current() == Syncing,
		PendingCount: count,
		LastSyncAt:   lastSync,
	}, nil
}

// SyncWithServer runs one drain-and-pull pass against the remote authority.
// At most one sync runs at a time; a concurrent request fails immediately
// with ErrSyncInProgress. The last-sync stamp advances only when both
// phases complete.
func (c *Coordinator) SyncWithServer(ctx context.Context) error {
	if !c.monitor.Online() {
		return ErrOffline
	}
	if err := c.machine.Transition(Syncing); err != nil {
		return ErrSyncInProgress
	}
	defer func() {
		if err := c.machine.Transition(Idle); err != nil {
			c.logger.Error("failed to release sync gate", zap.Error(err))
		}
	}()

	c.bus.Emit(bus.KindSyncStarted, nil)
	c.logger.Info("sync started")

	failed, err := c.drain(ctx)
	if err != nil {
		c.bus.Emit(bus.KindSyncFailed, err.Error())
		return fmt.Errorf("drain pending: %w", err)
	}
	if failed > 0 {
		c.logger.Warn("some pending operations failed, left queued for retry", zap.Int("failed", failed))
	}

	if err := c.pull(ctx); err != nil {
		// Drain progress is kept: acknowledged entries stay removed.
		c.bus.Emit(bus.KindSyncFailed, err.Error())
		return fmt.Errorf("pull remote deltas: %w", err)
	}

	now := time.Now().UnixMilli()
	if err := setCheckpoint(c.db, lastSyncKey, now); err != nil {
		c.bus.Emit(bus.KindSyncFailed, err.Error())
		return err
	}
	c.mu.Lock()
	c.lastSyncAt = now
	c.mu.Unlock()

	c.bus.Emit(bus.KindSyncCompleted, nil)
	c.logger.Info("sync completed", zap.Int64("last_sync_at", now))
	return nil
}

// drain replays the pending queue against the remote authority in enqueue
// order. Entries whose remote call fails stay queued; unrecognized
// (op, resource) pairs are dropped after a warning.
func (c *Coordinator) drain(ctx context.Context) (int, error) {
	return c.db.DrainPending(func(op store.PendingOperation) error {
		err := c.apply(ctx, op)
		if err != nil {
			c.logger.Warn("pending operation failed, will retry",
				zap.String("id", op.ID),
				zap.String("op", op.Op),
				zap.String("resource", op.Resource),
				zap.Error(err))
		}
		return err
	})
}

func (c *Coordinator) apply(ctx context.Context, op store.PendingOperation) error {
	switch {
	case op.Op == store.OpCreate && op.Resource == store.ResourceChat:
		var chat store.Chat
		if err := msgpack.Unmarshal(op.Payload, &chat); err != nil {
			return fmt.Errorf("decode chat payload: %w", err)
		}
		return c.remoteCall(ctx, func(callCtx context.Context) error {
			_, err := c.remote.CreateChat(callCtx, chat)
			return err
		})

	case op.Op == store.OpCreate && op.Resource == store.ResourceMessage:
		var msg store.Message
		if err := msgpack.Unmarshal(op.Payload, &msg); err != nil {
			return fmt.Errorf("decode message payload: %w", err)
		}
		if err := c.remoteCall(ctx, func(callCtx context.Context) error {
			_, err := c.remote.SendMessage(callCtx, msg)
			return err
		}); err != nil {
			return err
		}
		// The remote ack means the server holds the message now.
		if err := c.db.AdvanceMessageStatus(msg.ID, store.StatusDelivered); err != nil && !errors.Is(err, store.ErrNotFound) {
			c.logger.Warn("failed to advance acked message", zap.String("id", msg.ID), zap.Error(err))
		}
		return nil

	case op.Op == store.OpUpdate && op.Resource == store.ResourceUser:
		var u store.User
		if err := msgpack.Unmarshal(op.Payload, &u); err != nil {
			return fmt.Errorf("decode user payload: %w", err)
		}
		var updated store.User
		if err := c.remoteCall(ctx, func(callCtx context.Context) error {
			var err error
			updated, err = c.remote.UpdateUser(callCtx, u)
			return err
		}); err != nil {
			return err
		}
		return c.db.MergeUser(updated)

	default:
		// Deliberate: unknown combinations are dropped, not retried
		// forever. They are logged so a misrouted write is visible.
		c.logger.Warn("dropping unrecognized pending operation",
			zap.String("id", op.ID),
			zap.String("op", op.Op),
			zap.String("resource", op.Resource))
		return nil
	}
}

// pull merges remote deltas into the local store: users and chats first,
// then per-chat message deltas bounded by each chat's watermark. Remote
// rows are upserted; a pull never deletes a local row.
func (c *Coordinator) pull(ctx context.Context) error {
	var users []store.User
	if err := c.remoteCall(ctx, func(callCtx context.Context) error {
		var err error
		users, err = c.remote.SyncUsers(callCtx)
		return err
	}); err != nil {
		return err
	}
	for _, u := range users {
		if err := c.db.MergeUser(u); err != nil {
			return err
		}
	}

	var chats []store.Chat
	if err := c.remoteCall(ctx, func(callCtx context.Context) error {
		var err error
		chats, err = c.remote.SyncChats(callCtx)
		return err
	}); err != nil {
		return err
	}
	for _, chat := range chats {
		if err := c.db.MergeChat(chat); err != nil {
			return err
		}
	}

	chatIDs, err := c.db.ChatIDs()
	if err != nil {
		return err
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.PullWorkers)
	for _, chatID := range chatIDs {
		g.Go(func() error {
			return c.pullChat(gctx, chatID)
		})
	}
	return g.Wait()
}

func (c *Coordinator) pullChat(ctx context.Context, chatID string) error {
	since, err := getCheckpoint(c.db, watermarkKey(chatID))
	if err != nil {
		return err
	}

	var msgs []store.Message
	var syncTS int64
	if err := c.remoteCall(ctx, func(callCtx context.Context) error {
		var err error
		msgs, syncTS, err = c.remote.SyncMessages(callCtx, chatID, since)
		return err
	}); err != nil {
		return err
	}

	for _, msg := range msgs {
		if err := c.db.MergeMessage(msg); err != nil {
			return err
		}
	}
	if len(msgs) > 0 {
		c.logger.Info("merged remote messages",
			zap.String("chat_id", chatID),
			zap.Int("count", len(msgs)))
	}
	return setCheckpoint(c.db, watermarkKey(chatID), syncTS)
}

// remoteCall runs one remote authority call under the per-call timeout.
func (c *Coordinator) remoteCall(ctx context.Context, call func(context.Context) error) error {
	if c.opts.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.CallTimeout)
		defer cancel()
	}
	return call(ctx)
}
