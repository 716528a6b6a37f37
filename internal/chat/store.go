package chat

import (
	"fmt"
	"strings"
	"time"
)

const (
	// maxLogEntries caps each room's message log. Oldest entries are
	// dropped first once the cap is exceeded.
	maxLogEntries = 200

	// createAttempts bounds how many candidate ids CreateRoom draws
	// before giving up.
	createAttempts = 10
)

// Store owns every active room. It is pure state with no locking of its
// own; the engine serializes all access (see engine.go), and the tests
// drive it directly.
type Store struct {
	rooms map[string]*Room

	// test seams
	now   func() time.Time
	genID func() string
}

func NewStore() *Store {
	return &Store{
		rooms: make(map[string]*Room),
		now:   time.Now,
		genID: randomRoomID,
	}
}

// CreateRoom inserts an empty room under a freshly generated id. It
// retries on id collision up to createAttempts times and reports
// ROOM_GENERATION_FAILED once the bound is exhausted, leaving no partial
// room behind.
func (s *Store) CreateRoom(name string) (*Room, error) {
	id := ""
	for i := 0; i < createAttempts; i++ {
		candidate := s.genID()
		if _, taken := s.rooms[candidate]; !taken {
			id = candidate
			break
		}
	}
	if id == "" {
		return nil, NewError(CodeRoomGenerationFailed, "could not allocate a room code, try again")
	}

	name = strings.TrimSpace(name)
	if name == "" {
		name = "New Room"
	}
	now := s.now()
	room := &Room{
		ID:           id,
		Name:         truncateRunes(name, maxRoomNameLen),
		Settings:     defaultSettings(),
		CreatedAt:    now,
		LastActivity: now,
		IdleSince:    now,
	}
	s.rooms[id] = room
	return room, nil
}

// Get looks up a room by id.
func (s *Store) Get(id string) (*Room, bool) {
	room, ok := s.rooms[id]
	return room, ok
}

// AddMember appends a member to the room, enforcing the capacity and
// unique-name invariants. On success the room leaves the idle state.
func (s *Store) AddMember(roomID string, member Member) (*Room, error) {
	room, ok := s.rooms[roomID]
	if !ok {
		return nil, NewError(CodeRoomNotFound, "room not found")
	}
	if len(room.Members) >= room.Settings.MaxUsers {
		return nil, NewError(CodeRoomFull, fmt.Sprintf("room is full (max %d users)", room.Settings.MaxUsers))
	}
	if room.hasName(member.Name) {
		return nil, NewError(CodeUsernameExists, "that name is already taken in this room")
	}
	room.Members = append(room.Members, member)
	room.IdleSince = time.Time{}
	room.LastActivity = s.now()
	return room, nil
}

// RemoveMember drops the member with the given connection id. Removing an
// absent member is a no-op, so duplicate disconnects are harmless. When
// the last member leaves the room is marked idle for the reaper.
func (s *Store) RemoveMember(roomID, connID string) (*Room, bool) {
	room, ok := s.rooms[roomID]
	if !ok {
		return nil, false
	}
	idx := room.memberIndex(connID)
	if idx < 0 {
		return room, false
	}
	room.Members = append(room.Members[:idx], room.Members[idx+1:]...)
	room.LastActivity = s.now()
	if len(room.Members) == 0 {
		room.IdleSince = s.now()
	}
	return room, true
}

// Append adds a message to the room's log, assigning its id, and trims
// the front of the log back to maxLogEntries. The returned message has
// id and timestamp filled in.
func (s *Store) Append(roomID string, msg Message) (Message, bool) {
	room, ok := s.rooms[roomID]
	if !ok {
		return Message{}, false
	}
	now := s.now()
	room.seq++
	msg.ID = fmt.Sprintf("%d_%d", now.UnixMilli(), room.seq)
	msg.Timestamp = now
	room.Log = append(room.Log, msg)
	if overflow := len(room.Log) - maxLogEntries; overflow > 0 {
		room.Log = room.Log[overflow:]
	}
	room.LastActivity = now
	return msg, true
}

// UpdateSettings merges the non-nil fields of patch into the room's
// settings.
func (s *Store) UpdateSettings(roomID string, patch SettingsPatch) (*Room, bool) {
	room, ok := s.rooms[roomID]
	if !ok {
		return nil, false
	}
	if patch.MaxUsers != nil && *patch.MaxUsers > 0 {
		room.Settings.MaxUsers = *patch.MaxUsers
	}
	if patch.AllowFiles != nil {
		room.Settings.AllowFiles = *patch.AllowFiles
	}
	if patch.AllowVoice != nil {
		room.Settings.AllowVoice = *patch.AllowVoice
	}
	room.LastActivity = s.now()
	return room, true
}

// Delete removes a room outright. Rooms that still have members are left
// alone; callers re-check emptiness right before deleting (the reaper
// depends on this).
func (s *Store) Delete(id string) bool {
	room, ok := s.rooms[id]
	if !ok || len(room.Members) > 0 {
		return false
	}
	delete(s.rooms, id)
	return true
}

// Len reports how many rooms are currently active.
func (s *Store) Len() int {
	return len(s.rooms)
}

// IdleRoomIDs returns the ids of rooms that have been empty since before
// the cutoff. The reaper re-validates each room before deletion.
func (s *Store) IdleRoomIDs(cutoff time.Time) []string {
	var ids []string
	for id, room := range s.rooms {
		if len(room.Members) == 0 && !room.IdleSince.IsZero() && !room.IdleSince.After(cutoff) {
			ids = append(ids, id)
		}
	}
	return ids
}
