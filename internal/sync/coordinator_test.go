package sync

import (
	"context"
	"errors"
	"path/filepath"
	gosync "sync"
	"testing"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"chatsync/internal/bus"
	"chatsync/internal/connectivity"
	"chatsync/internal/remote"
	"chatsync/internal/store"
)

func testDB(t *testing.T) *store.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := store.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testCoordinator(t *testing.T, db *store.DB, mock *remote.Mock, opts Options) (*Coordinator, *connectivity.Monitor) {
	t.Helper()
	b := bus.New()
	monitor := connectivity.NewMonitor(b)
	logger, _ := zap.NewDevelopment()
	c, err := NewCoordinator(db, mock, monitor, b, logger, opts)
	if err != nil {
		t.Fatal(err)
	}
	return c, monitor
}

func enqueue(t *testing.T, db *store.DB, op, resource string, payload any) {
	t.Helper()
	data, err := msgpack.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.EnqueuePending(op, resource, data); err != nil {
		t.Fatal(err)
	}
}

func TestSyncRequiresOnline(t *testing.T) {
	db := testDB(t)
	c, _ := testCoordinator(t, db, remote.NewMock(0), Options{})

	err := c.SyncWithServer(context.Background())
	if !errors.Is(err, ErrOffline) {
		t.Errorf("error = %v, want ErrOffline", err)
	}
}

// TestSyncMutualExclusion runs two concurrent syncs against a slow remote:
// exactly one must do work, the other must fail fast with ErrSyncInProgress.
func TestSyncMutualExclusion(t *testing.T) {
	db := testDB(t)
	mock := remote.NewMock(200 * time.Millisecond)
	c, monitor := testCoordinator(t, db, mock, Options{})
	monitor.SetOnline(true)

	errs := make([]error, 2)
	var wg gosync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i == 1 {
				// Let the first call take the gate.
				time.Sleep(50 * time.Millisecond)
			}
			errs[i] = c.SyncWithServer(context.Background())
		}(i)
	}
	wg.Wait()

	if errs[0] != nil {
		t.Errorf("first sync error = %v, want nil", errs[0])
	}
	if !errors.Is(errs[1], ErrSyncInProgress) {
		t.Errorf("second sync error = %v, want ErrSyncInProgress", errs[1])
	}

	// The gate is released; a later sync succeeds.
	if err := c.SyncWithServer(context.Background()); err != nil {
		t.Errorf("sync after release error = %v", err)
	}
}

// TestOfflineSendThenSync is the end-to-end offline-first scenario: a
// message written while offline is pending, then a successful sync drains
// it and advances the last-sync stamp.
func TestOfflineSendThenSync(t *testing.T) {
	db := testDB(t)
	mock := remote.NewMock(0)
	c, monitor := testCoordinator(t, db, mock, Options{})

	if err := db.CreateChat(&store.Chat{ID: "chat1", Participants: []string{"u1", "u2"}}); err != nil {
		t.Fatal(err)
	}
	msg := &store.Message{ID: "m1", ChatID: "chat1", SenderID: "u1", Body: "hi"}
	if err := db.CreateMessage(msg); err != nil {
		t.Fatal(err)
	}
	enqueue(t, db, store.OpCreate, store.ResourceMessage, msg)
	enqueue(t, db, store.OpCreate, store.ResourceChat, store.Chat{ID: "chat1", Participants: []string{"u1", "u2"}})

	status, err := c.Status()
	if err != nil {
		t.Fatal(err)
	}
	if status.PendingCount != 2 || status.LastSyncAt != 0 || status.Online {
		t.Errorf("pre-sync status = %+v, want 2 pending, never synced, offline", status)
	}

	got, _ := db.GetMessage("m1")
	if got.Status != store.StatusSent {
		t.Errorf("offline message status = %q, want sent", got.Status)
	}

	monitor.SetOnline(true)
	if err := c.SyncWithServer(context.Background()); err != nil {
		t.Fatal(err)
	}

	status, err = c.Status()
	if err != nil {
		t.Fatal(err)
	}
	if status.PendingCount != 0 {
		t.Errorf("pending count = %d, want 0", status.PendingCount)
	}
	if status.LastSyncAt == 0 {
		t.Error("last sync stamp should advance after a successful sync")
	}

	// The server ack advanced the message past "sent".
	got, _ = db.GetMessage("m1")
	if got.Status != store.StatusDelivered {
		t.Errorf("acked message status = %q, want delivered", got.Status)
	}
}

// TestDrainRunsBeforePull pins the ordering that keeps a pull from
// overwriting a local edit that was about to be pushed.
func TestDrainRunsBeforePull(t *testing.T) {
	db := testDB(t)
	mock := remote.NewMock(0)
	c, monitor := testCoordinator(t, db, mock, Options{})
	monitor.SetOnline(true)

	enqueue(t, db, store.OpCreate, store.ResourceMessage,
		store.Message{ID: "m1", ChatID: "c1", SenderID: "u1", Body: "hi", Timestamp: 1000})

	if err := c.SyncWithServer(context.Background()); err != nil {
		t.Fatal(err)
	}

	calls := mock.Calls()
	if len(calls) < 3 {
		t.Fatalf("calls = %v, want drain then pull", calls)
	}
	if calls[0] != "SendMessage" {
		t.Errorf("calls[0] = %s, want SendMessage (drain first)", calls[0])
	}
	if calls[1] != "SyncUsers" || calls[2] != "SyncChats" {
		t.Errorf("pull order = %v, want SyncUsers then SyncChats", calls[1:3])
	}
}

func TestFailedPushStaysQueued(t *testing.T) {
	db := testDB(t)
	mock := remote.NewMock(0)
	mock.FailWith("SendMessage", errors.New("boom"))
	c, monitor := testCoordinator(t, db, mock, Options{})
	monitor.SetOnline(true)

	enqueue(t, db, store.OpCreate, store.ResourceMessage,
		store.Message{ID: "m1", ChatID: "c1", SenderID: "u1", Body: "hi", Timestamp: 1000})

	// Per-entry failures do not abort the sync; the entry just stays queued.
	if err := c.SyncWithServer(context.Background()); err != nil {
		t.Fatal(err)
	}
	count, _ := db.PendingCount()
	if count != 1 {
		t.Errorf("pending count = %d, want 1 (failed entry retained)", count)
	}

	// Next sync retries and succeeds.
	mock.FailWith("SendMessage", nil)
	if err := c.SyncWithServer(context.Background()); err != nil {
		t.Fatal(err)
	}
	count, _ = db.PendingCount()
	if count != 0 {
		t.Errorf("pending count = %d, want 0 after retry", count)
	}
}

func TestPullFailureAbortsAndKeepsDrainProgress(t *testing.T) {
	db := testDB(t)
	mock := remote.NewMock(0)
	mock.FailWith("SyncChats", errors.New("boom"))
	c, monitor := testCoordinator(t, db, mock, Options{})
	monitor.SetOnline(true)

	enqueue(t, db, store.OpCreate, store.ResourceMessage,
		store.Message{ID: "m1", ChatID: "c1", SenderID: "u1", Body: "hi", Timestamp: 1000})

	err := c.SyncWithServer(context.Background())
	if !errors.Is(err, remote.ErrUnavailable) {
		t.Fatalf("error = %v, want wrapped ErrUnavailable", err)
	}

	// Drained entries stay removed even though the pull failed.
	count, _ := db.PendingCount()
	if count != 0 {
		t.Errorf("pending count = %d, want 0 (drain progress kept)", count)
	}
	// The last-sync stamp must not advance on a failed sync.
	status, _ := c.Status()
	if status.LastSyncAt != 0 {
		t.Errorf("last sync = %d, want 0", status.LastSyncAt)
	}
	// The gate is released for the next attempt.
	mock.FailWith("SyncChats", nil)
	if err := c.SyncWithServer(context.Background()); err != nil {
		t.Errorf("sync after failure error = %v", err)
	}
}

func TestPullMergesRemoteDeltas(t *testing.T) {
	db := testDB(t)
	mock := remote.NewMock(0)
	mock.SeedUser(store.User{ID: "u9", Name: "Remote Rita", Presence: store.PresenceOnline, UpdatedAt: 1000})
	mock.SeedChat(store.Chat{ID: "rc1", Participants: []string{"u1", "u9"}, UpdatedAt: 1000})
	mock.SeedMessage(store.Message{ID: "rm1", ChatID: "rc1", SenderID: "u9", Body: "from remote", Status: store.StatusSent, Timestamp: 1500, UpdatedAt: 1500})

	c, monitor := testCoordinator(t, db, mock, Options{})
	monitor.SetOnline(true)

	if err := c.SyncWithServer(context.Background()); err != nil {
		t.Fatal(err)
	}

	if _, err := db.GetUser("u9"); err != nil {
		t.Errorf("remote user not merged: %v", err)
	}
	if _, err := db.GetChat("rc1"); err != nil {
		t.Fatalf("remote chat not merged: %v", err)
	}
	msgs, _, err := db.ListMessages("rc1", 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].Body != "from remote" {
		t.Errorf("messages = %v, want the remote message", msgs)
	}

	// Second sync pulls nothing new past the watermark, and merges stay
	// idempotent.
	if err := c.SyncWithServer(context.Background()); err != nil {
		t.Fatal(err)
	}
	msgs, _, _ = db.ListMessages("rc1", 0, 10)
	if len(msgs) != 1 {
		t.Errorf("got %d messages after re-sync, want 1", len(msgs))
	}
}

func TestUnknownPendingOperationDropped(t *testing.T) {
	db := testDB(t)
	mock := remote.NewMock(0)
	c, monitor := testCoordinator(t, db, mock, Options{})
	monitor.SetOnline(true)

	enqueue(t, db, store.OpDelete, store.ResourceMessage,
		store.Message{ID: "m1", ChatID: "c1"})

	if err := c.SyncWithServer(context.Background()); err != nil {
		t.Fatal(err)
	}
	count, _ := db.PendingCount()
	if count != 0 {
		t.Errorf("pending count = %d, want 0 (unknown op dropped, not retried forever)", count)
	}
}

// TestCallTimeoutReleasesGate pins the timeout contract: a hung remote call
// fails the sync, leaves the pending entry queued, and releases the gate so
// a later attempt can run.
func TestCallTimeoutReleasesGate(t *testing.T) {
	db := testDB(t)
	mock := remote.NewMock(5 * time.Second)
	c, monitor := testCoordinator(t, db, mock, Options{CallTimeout: 50 * time.Millisecond})
	monitor.SetOnline(true)

	enqueue(t, db, store.OpCreate, store.ResourceMessage,
		store.Message{ID: "m1", ChatID: "c1", SenderID: "u1", Body: "hi", Timestamp: 1000})

	err := c.SyncWithServer(context.Background())
	if !errors.Is(err, remote.ErrUnavailable) {
		t.Fatalf("error = %v, want wrapped ErrUnavailable (pull phase timed out)", err)
	}

	count, _ := db.PendingCount()
	if count != 1 {
		t.Errorf("pending count = %d, want 1 (timed-out push stays queued)", count)
	}
	if c.machine.Current() != Idle {
		t.Errorf("state = %s, want IDLE (gate released after timeout)", c.machine.Current())
	}
}

func TestLastSyncSurvivesRestart(t *testing.T) {
	db := testDB(t)
	mock := remote.NewMock(0)
	c, monitor := testCoordinator(t, db, mock, Options{})
	monitor.SetOnline(true)

	if err := c.SyncWithServer(context.Background()); err != nil {
		t.Fatal(err)
	}
	status, _ := c.Status()
	if status.LastSyncAt == 0 {
		t.Fatal("sync did not record a stamp")
	}

	// A new coordinator over the same store recovers the stamp.
	c2, _ := testCoordinator(t, db, mock, Options{})
	status2, _ := c2.Status()
	if status2.LastSyncAt != status.LastSyncAt {
		t.Errorf("recovered last sync = %d, want %d", status2.LastSyncAt, status.LastSyncAt)
	}
}
