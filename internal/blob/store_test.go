package blob

import (
	"bytes"
	"context"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore("sqlite://file:" + t.Name() + "?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

func TestPutGetRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	payload := []byte("hello attachment")
	handle, err := store.Put(ctx, "ABC234", "notes.txt", "text/plain", payload)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if handle == "" {
		t.Fatal("empty handle")
	}

	got, err := store.Get(ctx, handle)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil {
		t.Fatal("blob not found")
	}
	if got.RoomID != "ABC234" || got.Name != "notes.txt" || got.Mime != "text/plain" {
		t.Fatalf("unexpected metadata: %+v", got)
	}
	if got.Size != int64(len(payload)) || !bytes.Equal(got.Data, payload) {
		t.Fatalf("payload mismatch: %d bytes", got.Size)
	}
}

func TestGetUnknownHandle(t *testing.T) {
	store := newTestStore(t)
	got, err := store.Get(context.Background(), "no-such-handle")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for unknown handle, got %+v", got)
	}
}

func TestDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	handle, err := store.Put(ctx, "ABC234", "a", "text/plain", []byte("x"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := store.Delete(ctx, handle); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if got, _ := store.Get(ctx, handle); got != nil {
		t.Fatal("blob survived delete")
	}
	// deleting again is fine
	if err := store.Delete(ctx, handle); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
}

func TestDeleteRoomPurgesOnlyThatRoom(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	h1, _ := store.Put(ctx, "ROOM22", "a", "text/plain", []byte("1"))
	h2, _ := store.Put(ctx, "ROOM22", "b", "text/plain", []byte("2"))
	keep, _ := store.Put(ctx, "OTHER2", "c", "text/plain", []byte("3"))

	if err := store.DeleteRoom(ctx, "ROOM22"); err != nil {
		t.Fatalf("DeleteRoom: %v", err)
	}
	for _, h := range []string{h1, h2} {
		if got, _ := store.Get(ctx, h); got != nil {
			t.Fatalf("blob %s survived room purge", h)
		}
	}
	if got, _ := store.Get(ctx, keep); got == nil {
		t.Fatal("unrelated room's blob was purged")
	}

	n, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 blob left, got %d", n)
	}
}
