package chat

import (
	"context"
	"fmt"
	"strings"
	"testing"
)

type fakeSink struct {
	events []Event
}

func (s *fakeSink) Send(event Event) {
	s.events = append(s.events, event)
}

func (s *fakeSink) named(name string) []Event {
	var out []Event
	for _, ev := range s.events {
		if ev.Name == name {
			out = append(out, ev)
		}
	}
	return out
}

type fakeBlobs struct {
	data    map[string][]byte
	byRoom  map[string][]string
	deleted []string
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{data: make(map[string][]byte), byRoom: make(map[string][]string)}
}

func (f *fakeBlobs) Put(_ context.Context, roomID, _, _ string, data []byte) (string, error) {
	handle := fmt.Sprintf("blob-%d", len(f.data)+1)
	f.data[handle] = data
	f.byRoom[roomID] = append(f.byRoom[roomID], handle)
	return handle, nil
}

func (f *fakeBlobs) Delete(_ context.Context, handle string) error {
	delete(f.data, handle)
	return nil
}

func (f *fakeBlobs) DeleteRoom(_ context.Context, roomID string) error {
	for _, handle := range f.byRoom[roomID] {
		delete(f.data, handle)
	}
	delete(f.byRoom, roomID)
	f.deleted = append(f.deleted, roomID)
	return nil
}

func newTestEngine() (*Engine, *fakeBlobs) {
	blobs := newFakeBlobs()
	return NewEngine(NewStore(), blobs), blobs
}

func connect(e *Engine, connID string) *fakeSink {
	sink := &fakeSink{}
	e.Connect(connID, sink)
	return sink
}

func mustCreate(t *testing.T, e *Engine, connID, username string) *Snapshot {
	t.Helper()
	snap, err := e.CreateRoom(connID, username, "test room")
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	return snap
}

func mustJoin(t *testing.T, e *Engine, connID, username, roomID string) *Snapshot {
	t.Helper()
	snap, err := e.Join(connID, username, roomID)
	if err != nil {
		t.Fatalf("Join(%s): %v", username, err)
	}
	return snap
}

func wantCode(t *testing.T, err error, code Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s, got nil", code)
	}
	if got := AsError(err).Code; got != code {
		t.Fatalf("expected %s, got %s", code, got)
	}
}

func TestCreateRoomJoinsCreator(t *testing.T) {
	e, _ := newTestEngine()
	sink := connect(e, "conn1")

	snap := mustCreate(t, e, "conn1", "Alice")
	if !ValidRoomID(snap.RoomID) {
		t.Fatalf("bad room id %q", snap.RoomID)
	}
	if len(snap.Users) != 1 || snap.Users[0].Username != "Alice" {
		t.Fatalf("unexpected users: %+v", snap.Users)
	}
	if len(snap.Messages) != 1 {
		t.Fatalf("expected exactly the join notice, got %d messages", len(snap.Messages))
	}
	joined := snap.Messages[0]
	if joined.Kind != KindSystem || joined.Author != SystemAuthor || joined.Text != "Alice joined the chat" {
		t.Fatalf("unexpected join notice: %+v", joined)
	}
	// the creator also receives the system message as a broadcast
	if got := sink.named("new-message"); len(got) != 1 {
		t.Fatalf("expected 1 new-message broadcast, got %d", len(got))
	}
}

func TestCreateRoomRejectsBadUsername(t *testing.T) {
	e, _ := newTestEngine()
	connect(e, "conn1")
	_, err := e.CreateRoom("conn1", "x", "room")
	wantCode(t, err, CodeInvalidUsername)
	if e.Stats().TotalRooms != 0 {
		t.Fatal("rejected create must not leave a room behind")
	}
}

func TestJoinSnapshotRoundTrip(t *testing.T) {
	e, _ := newTestEngine()
	aliceSink := connect(e, "alice")
	connect(e, "bob")

	created := mustCreate(t, e, "alice", "Alice")
	snap := mustJoin(t, e, "bob", "Bob", created.RoomID)

	last := snap.Messages[len(snap.Messages)-1]
	if last.Text != "Bob joined the chat" || last.Kind != KindSystem {
		t.Fatalf("snapshot should end with the join notice, got %+v", last)
	}
	if len(snap.Users) != 2 || snap.Users[0].Username != "Alice" || snap.Users[1].Username != "Bob" {
		t.Fatalf("users should equal membership in join order: %+v", snap.Users)
	}
	if got := aliceSink.named("user-joined"); len(got) != 1 {
		t.Fatalf("expected Alice to see user-joined, got %d", len(got))
	}
}

func TestJoinValidation(t *testing.T) {
	e, _ := newTestEngine()
	connect(e, "conn1")

	_, err := e.Join("conn1", "!", "ABC234")
	wantCode(t, err, CodeInvalidUsername)

	_, err = e.Join("conn1", "Bob", "nope")
	wantCode(t, err, CodeInvalidRoomID)

	_, err = e.Join("conn1", "Bob", "ABC234")
	wantCode(t, err, CodeRoomNotFound)
}

func TestJoinRoomFull(t *testing.T) {
	e, _ := newTestEngine()
	connect(e, "alice")
	snap := mustCreate(t, e, "alice", "Alice")

	two := 2
	if err := e.ChangeSettings("alice", SettingsPatch{MaxUsers: &two}); err != nil {
		t.Fatalf("ChangeSettings: %v", err)
	}
	connect(e, "bob")
	mustJoin(t, e, "bob", "Bob", snap.RoomID)

	connect(e, "carol")
	_, err := e.Join("carol", "Carol", snap.RoomID)
	wantCode(t, err, CodeRoomFull)

	info, _ := e.RoomInfo(snap.RoomID)
	if info.UserCount != 2 {
		t.Fatalf("membership changed on rejected join: %d", info.UserCount)
	}
}

func TestJoinDuplicateName(t *testing.T) {
	e, _ := newTestEngine()
	connect(e, "alice")
	snap := mustCreate(t, e, "alice", "Alice")

	connect(e, "imposter")
	_, err := e.Join("imposter", "ALICE", snap.RoomID)
	wantCode(t, err, CodeUsernameExists)
}

func TestSendMessageValidation(t *testing.T) {
	e, _ := newTestEngine()
	connect(e, "ghost")
	wantCode(t, e.SendMessage("ghost", "hello"), CodeUserNotFound)

	aliceSink := connect(e, "alice")
	mustCreate(t, e, "alice", "Alice")

	wantCode(t, e.SendMessage("alice", "   "), CodeEmptyMessage)
	wantCode(t, e.SendMessage("alice", strings.Repeat("a", maxMessageRunes+1)), CodeMessageTooLong)

	// neither rejected message was broadcast
	if got := aliceSink.named("new-message"); len(got) != 1 {
		t.Fatalf("rejected messages were broadcast: %d", len(got))
	}

	if err := e.SendMessage("alice", "hello room"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	got := aliceSink.named("new-message")
	if len(got) != 2 {
		t.Fatalf("expected join notice plus one message, got %d", len(got))
	}
	msg, ok := got[1].Data.(Message)
	if !ok || msg.Text != "hello room" || msg.Author != "Alice" || msg.Kind != KindText {
		t.Fatalf("unexpected message payload: %+v", got[1].Data)
	}
}

func TestMessageFanOutOrder(t *testing.T) {
	e, _ := newTestEngine()
	connect(e, "alice")
	snap := mustCreate(t, e, "alice", "Alice")
	bobSink := connect(e, "bob")
	mustJoin(t, e, "bob", "Bob", snap.RoomID)

	for i := 0; i < 5; i++ {
		if err := e.SendMessage("alice", fmt.Sprintf("msg %d", i)); err != nil {
			t.Fatalf("SendMessage %d: %v", i, err)
		}
	}
	var texts []string
	for _, ev := range bobSink.named("new-message") {
		if msg, ok := ev.Data.(Message); ok && msg.Kind == KindText {
			texts = append(texts, msg.Text)
		}
	}
	for i, text := range texts {
		if text != fmt.Sprintf("msg %d", i) {
			t.Fatalf("out of order at %d: %q", i, text)
		}
	}
}

func TestSendFile(t *testing.T) {
	e, blobs := newTestEngine()
	ctx := context.Background()

	// no session: silent no-op, nothing stored
	connect(e, "ghost")
	if err := e.SendFile(ctx, "ghost", FileUpload{Name: "a.txt", DeclaredSize: 10, Data: []byte("x")}); err != nil {
		t.Fatalf("SendFile without session: %v", err)
	}
	if len(blobs.data) != 0 {
		t.Fatal("blob stored without a session")
	}

	sink := connect(e, "alice")
	mustCreate(t, e, "alice", "Alice")

	err := e.SendFile(ctx, "alice", FileUpload{Name: "big.bin", DeclaredSize: MaxDeclaredFileSize + 1})
	wantCode(t, err, CodeFileTooLarge)

	payload := []byte("file contents")
	if err := e.SendFile(ctx, "alice", FileUpload{Name: "notes.txt", Type: "text/plain", DeclaredSize: int64(len(payload)), Data: payload}); err != nil {
		t.Fatalf("SendFile: %v", err)
	}
	events := sink.named("new-file")
	if len(events) != 1 {
		t.Fatalf("expected one new-file event, got %d", len(events))
	}
	msg := events[0].Data.(Message)
	if msg.Kind != KindFile || msg.File == nil {
		t.Fatalf("unexpected file message: %+v", msg)
	}
	if msg.File.Name != "notes.txt" || msg.File.Size != int64(len(payload)) || msg.File.Handle == "" {
		t.Fatalf("unexpected file meta: %+v", msg.File)
	}
	if string(blobs.data[msg.File.Handle]) != string(payload) {
		t.Fatal("payload not stored under the advertised handle")
	}
}

func TestSendFileTruncatesRetainedPayload(t *testing.T) {
	e, blobs := newTestEngine()
	connect(e, "alice")
	mustCreate(t, e, "alice", "Alice")

	oversized := make([]byte, MaxRetainedFileBytes+100)
	if err := e.SendFile(context.Background(), "alice", FileUpload{Name: "huge", DeclaredSize: 1024, Data: oversized}); err != nil {
		t.Fatalf("SendFile: %v", err)
	}
	for _, data := range blobs.data {
		if int64(len(data)) != MaxRetainedFileBytes {
			t.Fatalf("retained %d bytes, want cap %d", len(data), MaxRetainedFileBytes)
		}
	}
}

func TestChangeSettings(t *testing.T) {
	e, _ := newTestEngine()

	// without a session: silent no-op
	connect(e, "ghost")
	if err := e.ChangeSettings("ghost", SettingsPatch{}); err != nil {
		t.Fatalf("ChangeSettings without session: %v", err)
	}

	sink := connect(e, "alice")
	snap := mustCreate(t, e, "alice", "Alice")
	five := 5
	if err := e.ChangeSettings("alice", SettingsPatch{MaxUsers: &five}); err != nil {
		t.Fatalf("ChangeSettings: %v", err)
	}
	events := sink.named("settings-updated")
	if len(events) != 1 {
		t.Fatalf("expected one settings-updated, got %d", len(events))
	}
	settings := events[0].Data.(Settings)
	if settings.MaxUsers != 5 {
		t.Fatalf("unexpected settings broadcast: %+v", settings)
	}
	info, _ := e.RoomInfo(snap.RoomID)
	if info.MaxUsers != 5 {
		t.Fatalf("settings not applied: %+v", info)
	}
}

func TestDisconnectIdempotent(t *testing.T) {
	e, _ := newTestEngine()
	aliceSink := connect(e, "alice")
	snap := mustCreate(t, e, "alice", "Alice")
	connect(e, "bob")
	mustJoin(t, e, "bob", "Bob", snap.RoomID)

	e.Disconnect("bob")
	e.Disconnect("bob")

	info, _ := e.RoomInfo(snap.RoomID)
	if info.UserCount != 1 {
		t.Fatalf("expected 1 member after disconnects, got %d", info.UserCount)
	}
	if got := aliceSink.named("user-left"); len(got) != 1 {
		t.Fatalf("expected one user-left notice, got %d", len(got))
	}
	if _, ok := e.CurrentRoom("bob"); ok {
		t.Fatal("session survived disconnect")
	}
}

func TestRoomInfo(t *testing.T) {
	e, _ := newTestEngine()
	connect(e, "alice")
	snap := mustCreate(t, e, "alice", "Alice")

	_, err := e.RoomInfo("bad")
	wantCode(t, err, CodeInvalidRoomID)

	_, err = e.RoomInfo("QQQQQQ")
	wantCode(t, err, CodeRoomNotFound)

	info, err := e.RoomInfo(snap.RoomID)
	if err != nil {
		t.Fatalf("RoomInfo: %v", err)
	}
	if info.ID != snap.RoomID || info.UserCount != 1 || info.MaxUsers != 10 || info.IsPublic {
		t.Fatalf("unexpected info: %+v", info)
	}
}

func TestHandlerPanicBecomesServerError(t *testing.T) {
	// nil blob store makes SendFile panic past the size checks; the guard
	// must turn that into SERVER_ERROR instead of crashing.
	e := NewEngine(NewStore(), nil)
	connect(e, "alice")
	mustCreate(t, e, "alice", "Alice")

	err := e.SendFile(context.Background(), "alice", FileUpload{Name: "x", DeclaredSize: 1, Data: []byte("x")})
	wantCode(t, err, CodeServerError)
}

func TestStats(t *testing.T) {
	e, _ := newTestEngine()
	connect(e, "alice")
	snap := mustCreate(t, e, "alice", "Alice")
	connect(e, "bob")
	mustJoin(t, e, "bob", "Bob", snap.RoomID)

	stats := e.Stats()
	if stats.TotalRooms != 1 || stats.TotalUsers != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if len(stats.ActiveRooms) != 1 || stats.ActiveRooms[0].UserCount != 2 {
		t.Fatalf("unexpected room stats: %+v", stats.ActiveRooms)
	}
}
