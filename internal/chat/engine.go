package chat

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/samber/lo"
)

const (
	maxMessageRunes = 1000
	maxFileNameLen  = 100

	// MaxDeclaredFileSize is the largest attachment a client may announce.
	MaxDeclaredFileSize = 5 << 20
	// MaxRetainedFileBytes hard-caps how much of a payload is ever kept,
	// whatever the client declared.
	MaxRetainedFileBytes = 10 << 20

	snapshotMessages = 50
	systemColor      = "#666"
)

// BlobStore is the attachment storage collaborator. The engine only hands
// payloads over and keeps the returned handle; size ceilings are enforced
// here, storage is not.
type BlobStore interface {
	Put(ctx context.Context, roomID, name, mime string, data []byte) (string, error)
	Delete(ctx context.Context, handle string) error
	DeleteRoom(ctx context.Context, roomID string) error
}

// FileUpload is a decoded send-file payload.
type FileUpload struct {
	Name         string
	Type         string
	DeclaredSize int64
	Data         []byte
}

// UserView is the member shape exposed to clients.
type UserView struct {
	Username string    `json:"username"`
	Color    string    `json:"color"`
	JoinedAt time.Time `json:"joinedAt"`
}

// Snapshot is the reply to a successful create or join.
type Snapshot struct {
	RoomID   string     `json:"roomId"`
	RoomName string     `json:"roomName"`
	Messages []Message  `json:"messages"`
	Users    []UserView `json:"users"`
	Settings Settings   `json:"settings"`
}

// RoomInfo is the safe, read-only projection served to anyone who asks.
type RoomInfo struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	UserCount int       `json:"userCount"`
	MaxUsers  int       `json:"maxUsers"`
	CreatedAt time.Time `json:"createdAt"`
	IsPublic  bool      `json:"isPublic"`
}

// RoomStat is one row of the stats projection.
type RoomStat struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	UserCount int       `json:"userCount"`
	CreatedAt time.Time `json:"createdAt"`
}

// Stats aggregates the whole server for the HTTP stats endpoint.
type Stats struct {
	TotalUsers  int        `json:"totalUsers"`
	TotalRooms  int        `json:"totalRooms"`
	ActiveRooms []RoomStat `json:"activeRooms"`
}

type presenceNotice struct {
	Username  string     `json:"username"`
	Users     []UserView `json:"users"`
	Timestamp time.Time  `json:"timestamp"`
}

// Engine ties the store, the session registry and the dispatcher together.
// One mutex serializes every inbound event, so each operation runs to
// completion (mutation plus broadcast) before the next one starts. That is
// the whole concurrency story: per-room event order equals commit order,
// and no handler ever observes a half-applied mutation.
type Engine struct {
	mu       sync.Mutex
	store    *Store
	sessions *Registry
	dispatch *Dispatcher
	blobs    BlobStore
}

func NewEngine(store *Store, blobs BlobStore) *Engine {
	return &Engine{
		store:    store,
		sessions: NewRegistry(),
		dispatch: NewDispatcher(),
		blobs:    blobs,
	}
}

// guard converts a handler panic into SERVER_ERROR. A bad event must never
// take the process down.
func guard(err *error) {
	if r := recover(); r != nil {
		log.Printf("chat: recovered handler panic: %v", r)
		*err = NewError(CodeServerError, "internal server error")
	}
}

// Connect registers the transport handle for a new connection. No session
// exists until the client creates or joins a room.
func (e *Engine) Connect(connID string, sink Sink) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dispatch.Attach(connID, sink)
}

// Disconnect tears the connection down: the session and member views go
// together, the room gets a system notice, and an empty room starts its
// idle clock. Safe to call more than once.
func (e *Engine) Disconnect(connID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.leaveLocked(connID)
	e.dispatch.Detach(connID)
}

func (e *Engine) leaveLocked(connID string) {
	session, ok := e.sessions.Remove(connID)
	if !ok {
		return
	}
	room, removed := e.store.RemoveMember(session.RoomID, connID)
	if !removed || room == nil {
		return
	}
	sys, _ := e.store.Append(room.ID, Message{
		Author: SystemAuthor,
		Kind:   KindSystem,
		Text:   session.Name + " left the chat",
		Color:  systemColor,
	})
	e.dispatch.Broadcast(room, Event{Name: "user-left", Data: presenceNotice{
		Username:  session.Name,
		Users:     memberViews(room),
		Timestamp: sys.Timestamp,
	}})
	e.dispatch.Broadcast(room, Event{Name: "new-message", Data: sys})
}

// CreateRoom allocates a room and joins the creator to it in one step.
func (e *Engine) CreateRoom(connID, username, roomName string) (snap *Snapshot, err error) {
	defer guard(&err)
	if !ValidUsername(username) {
		return nil, NewError(CodeInvalidUsername, "name must be 2-20 characters: letters, digits, spaces, _ or -")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	room, err := e.store.CreateRoom(roomName)
	if err != nil {
		return nil, err
	}
	snap, err = e.joinLocked(connID, username, room)
	if err != nil {
		e.store.Delete(room.ID)
		return nil, err
	}
	return snap, nil
}

// Join validates the request, adds the member and returns the snapshot the
// new client renders from: room metadata, the last 50 messages (ending
// with its own join notice), the member list and the settings.
func (e *Engine) Join(connID, username, roomID string) (snap *Snapshot, err error) {
	defer guard(&err)
	if !ValidUsername(username) {
		return nil, NewError(CodeInvalidUsername, "name must be 2-20 characters: letters, digits, spaces, _ or -")
	}
	if !ValidRoomID(roomID) {
		return nil, NewError(CodeInvalidRoomID, "room codes are 6 characters, letters and digits")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	room, ok := e.store.Get(roomID)
	if !ok {
		return nil, NewError(CodeRoomNotFound, "room not found, check the code")
	}
	return e.joinLocked(connID, username, room)
}

func (e *Engine) joinLocked(connID, username string, room *Room) (*Snapshot, error) {
	member := Member{
		ConnID:   connID,
		Name:     strings.TrimSpace(username),
		Color:    randomAvatarColor(),
		JoinedAt: e.store.now(),
	}
	if _, err := e.store.AddMember(room.ID, member); err != nil {
		return nil, err
	}
	e.sessions.Add(&Session{
		ConnID:   connID,
		Name:     member.Name,
		RoomID:   room.ID,
		JoinedAt: member.JoinedAt,
	})
	sys, _ := e.store.Append(room.ID, Message{
		Author: SystemAuthor,
		Kind:   KindSystem,
		Text:   member.Name + " joined the chat",
		Color:  systemColor,
	})

	users := memberViews(room)
	e.dispatch.BroadcastExcept(room, connID, Event{Name: "user-joined", Data: presenceNotice{
		Username:  member.Name,
		Users:     users,
		Timestamp: sys.Timestamp,
	}})
	e.dispatch.Broadcast(room, Event{Name: "new-message", Data: sys})

	return &Snapshot{
		RoomID:   room.ID,
		RoomName: room.Name,
		Messages: room.Tail(snapshotMessages),
		Users:    users,
		Settings: room.Settings,
	}, nil
}

// SendMessage appends a text message and fans it out to the room.
func (e *Engine) SendMessage(connID, text string) (err error) {
	defer guard(&err)
	e.mu.Lock()
	defer e.mu.Unlock()
	session, ok := e.sessions.Get(connID)
	if !ok {
		return NewError(CodeUserNotFound, "no active session for this connection")
	}
	room, ok := e.store.Get(session.RoomID)
	if !ok {
		return NewError(CodeRoomNotFound, "room not found")
	}
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return NewError(CodeEmptyMessage, "message cannot be empty")
	}
	if utf8.RuneCountInString(trimmed) > maxMessageRunes {
		return NewError(CodeMessageTooLong, fmt.Sprintf("message too long (max %d characters)", maxMessageRunes))
	}
	msg, _ := e.store.Append(room.ID, Message{
		Author: session.Name,
		Kind:   KindText,
		Text:   trimmed,
		Color:  e.memberColor(room, connID),
	})
	e.dispatch.Broadcast(room, Event{Name: "new-message", Data: msg})
	return nil
}

// SendFile stores the payload through the blob collaborator and appends a
// file message carrying only metadata plus the handle, so the bounded log
// stays independent of attachment size. The blob write happens outside the
// lock; the session is re-checked afterwards in case the sender vanished
// mid-upload.
func (e *Engine) SendFile(ctx context.Context, connID string, upload FileUpload) (err error) {
	defer guard(&err)
	if upload.DeclaredSize > MaxDeclaredFileSize {
		return NewError(CodeFileTooLarge, "file too large (max 5 MB)")
	}
	if int64(len(upload.Data)) > MaxRetainedFileBytes {
		upload.Data = upload.Data[:MaxRetainedFileBytes]
	}
	name := truncateRunes(upload.Name, maxFileNameLen)

	e.mu.Lock()
	session, ok := e.sessions.Get(connID)
	if !ok {
		e.mu.Unlock()
		return nil
	}
	roomID := session.RoomID
	e.mu.Unlock()

	handle, perr := e.blobs.Put(ctx, roomID, name, upload.Type, upload.Data)
	if perr != nil {
		return NewError(CodeServerError, "could not store file")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	session, ok = e.sessions.Get(connID)
	if !ok || session.RoomID != roomID {
		_ = e.blobs.Delete(ctx, handle)
		return nil
	}
	room, ok := e.store.Get(roomID)
	if !ok {
		_ = e.blobs.Delete(ctx, handle)
		return nil
	}
	msg, _ := e.store.Append(room.ID, Message{
		Author: session.Name,
		Kind:   KindFile,
		Text:   "File: " + name,
		Color:  e.memberColor(room, connID),
		File: &FileMeta{
			Name:   name,
			Type:   upload.Type,
			Size:   int64(len(upload.Data)),
			Handle: handle,
		},
	})
	e.dispatch.Broadcast(room, Event{Name: "new-file", Data: msg})
	return nil
}

// ChangeSettings merges the patch into the sender's room and notifies the
// room. Any member may change settings; without a session this is a
// silent no-op.
func (e *Engine) ChangeSettings(connID string, patch SettingsPatch) (err error) {
	defer guard(&err)
	e.mu.Lock()
	defer e.mu.Unlock()
	session, ok := e.sessions.Get(connID)
	if !ok {
		return nil
	}
	room, ok := e.store.UpdateSettings(session.RoomID, patch)
	if !ok {
		return nil
	}
	e.dispatch.Broadcast(room, Event{Name: "settings-updated", Data: room.Settings})
	return nil
}

// RoomInfo answers the read-only room query.
func (e *Engine) RoomInfo(roomID string) (info *RoomInfo, err error) {
	defer guard(&err)
	if !ValidRoomID(roomID) {
		return nil, NewError(CodeInvalidRoomID, "room codes are 6 characters, letters and digits")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	room, ok := e.store.Get(roomID)
	if !ok {
		return nil, NewError(CodeRoomNotFound, "room not found")
	}
	return &RoomInfo{
		ID:        room.ID,
		Name:      room.Name,
		UserCount: len(room.Members),
		MaxUsers:  room.Settings.MaxUsers,
		CreatedAt: room.CreatedAt,
		IsPublic:  room.IsPublic,
	}, nil
}

// CurrentRoom reports which room the connection is in, if any.
func (e *Engine) CurrentRoom(connID string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	session, ok := e.sessions.Get(connID)
	if !ok {
		return "", false
	}
	return session.RoomID, true
}

// Stats builds the aggregate projection for the HTTP endpoints.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	rooms := lo.MapToSlice(e.store.rooms, func(_ string, room *Room) RoomStat {
		return RoomStat{
			ID:        room.ID,
			Name:      room.Name,
			UserCount: len(room.Members),
			CreatedAt: room.CreatedAt,
		}
	})
	return Stats{
		TotalUsers:  e.sessions.Len(),
		TotalRooms:  e.store.Len(),
		ActiveRooms: rooms,
	}
}

// ReapIdle deletes rooms that have been empty past the TTL and purges
// their blobs. Emptiness is re-confirmed per room right before deletion,
// so a member who rejoined after the enumeration keeps the room alive.
// Rooms that vanish in between are treated as already reaped.
func (e *Engine) ReapIdle(ctx context.Context, ttl time.Duration) []string {
	e.mu.Lock()
	cutoff := e.store.now().Add(-ttl)
	candidates := e.store.IdleRoomIDs(cutoff)
	e.mu.Unlock()

	var reaped []string
	for _, id := range candidates {
		e.mu.Lock()
		room, ok := e.store.Get(id)
		deleted := ok && len(room.Members) == 0 && !room.IdleSince.IsZero() &&
			!room.IdleSince.After(cutoff) && e.store.Delete(id)
		e.mu.Unlock()
		if !deleted {
			continue
		}
		if err := e.blobs.DeleteRoom(ctx, id); err != nil {
			log.Printf("chat: purge blobs for room %s: %v", id, err)
		}
		reaped = append(reaped, id)
	}
	return reaped
}

func (e *Engine) memberColor(room *Room, connID string) string {
	if idx := room.memberIndex(connID); idx >= 0 {
		return room.Members[idx].Color
	}
	return ""
}

func memberViews(room *Room) []UserView {
	return lo.Map(room.Members, func(m Member, _ int) UserView {
		return UserView{Username: m.Name, Color: m.Color, JoinedAt: m.JoinedAt}
	})
}
