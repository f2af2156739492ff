package store

import (
	"errors"
	"testing"
)

func TestPendingFIFO(t *testing.T) {
	db := testDB(t)

	for _, body := range []string{"A", "B", "C"} {
		if _, err := db.EnqueuePending(OpCreate, ResourceMessage, []byte(body)); err != nil {
			t.Fatal(err)
		}
	}

	var applied []string
	failed, err := db.DrainPending(func(op PendingOperation) error {
		applied = append(applied, string(op.Payload))
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if failed != 0 {
		t.Errorf("failed = %d, want 0", failed)
	}
	if len(applied) != 3 || applied[0] != "A" || applied[1] != "B" || applied[2] != "C" {
		t.Errorf("apply order = %v, want [A B C]", applied)
	}

	count, err := db.PendingCount()
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("pending count = %d, want 0 after full drain", count)
	}
}

// TestPendingPartialDrainRetry pins the retry contract: a failed entry stays
// queued in its original position and is re-attempted exactly once by the
// next drain, while later entries are still attempted in the same pass.
func TestPendingPartialDrainRetry(t *testing.T) {
	db := testDB(t)

	if _, err := db.EnqueuePending(OpCreate, ResourceMessage, []byte("A")); err != nil {
		t.Fatal(err)
	}
	if _, err := db.EnqueuePending(OpCreate, ResourceMessage, []byte("B")); err != nil {
		t.Fatal(err)
	}

	failed, err := db.DrainPending(func(op PendingOperation) error {
		if string(op.Payload) == "A" {
			return errors.New("remote rejected")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if failed != 1 {
		t.Errorf("failed = %d, want 1", failed)
	}

	remaining, err := db.ListPending()
	if err != nil {
		t.Fatal(err)
	}
	if len(remaining) != 1 || string(remaining[0].Payload) != "A" {
		t.Fatalf("remaining = %v, want only A", remaining)
	}

	var applied []string
	failed, err = db.DrainPending(func(op PendingOperation) error {
		applied = append(applied, string(op.Payload))
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if failed != 0 {
		t.Errorf("failed = %d, want 0", failed)
	}
	if len(applied) != 1 || applied[0] != "A" {
		t.Errorf("second drain applied %v, want [A]", applied)
	}

	count, _ := db.PendingCount()
	if count != 0 {
		t.Errorf("pending count = %d, want 0", count)
	}
}

func TestPendingSnapshotImmutable(t *testing.T) {
	db := testDB(t)

	payload := []byte("snapshot")
	id, err := db.EnqueuePending(OpUpdate, ResourceUser, payload)
	if err != nil {
		t.Fatal(err)
	}
	if id == "" {
		t.Error("EnqueuePending should return an id")
	}

	// Mutating the caller's slice must not affect the stored snapshot.
	payload[0] = 'X'

	ops, err := db.ListPending()
	if err != nil {
		t.Fatal(err)
	}
	if len(ops) != 1 {
		t.Fatalf("got %d ops, want 1", len(ops))
	}
	if string(ops[0].Payload) != "snapshot" {
		t.Errorf("payload = %q, want snapshot", ops[0].Payload)
	}
	if ops[0].Op != OpUpdate || ops[0].Resource != ResourceUser {
		t.Errorf("op/resource = %s/%s, want update/user", ops[0].Op, ops[0].Resource)
	}
}
