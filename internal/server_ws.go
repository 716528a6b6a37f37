package internal

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"huddle/internal/chat"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	// base64-encoded attachments ride inside the frame, so the limit sits
	// well above the retained payload cap.
	maxFrameBytes = 16 << 20
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// conn wraps a single websocket connection with a buffered send queue.
// It is the per-connection sink the engine broadcasts into.
type conn struct {
	id     string
	ws     *websocket.Conn
	send   chan []byte
	server *Server
}

// Send queues one event for delivery. It never blocks: the engine calls
// it while holding its own lock, so a stalled peer just loses the event.
func (c *conn) Send(event chat.Event) {
	payload, err := json.Marshal(outEnvelope{Event: event.Name, Data: event.Data})
	if err != nil {
		log.Printf("conn %s: marshal %s: %v", c.id, event.Name, err)
		return
	}
	select {
	case c.send <- payload:
	default:
		log.Printf("conn %s: send buffer full, dropping %s", c.id, event.Name)
	}
}

func (c *conn) sendError(err error) {
	c.Send(chat.Event{Name: "error", Data: chat.AsError(err)})
}

// ServeWS upgrades the request and registers the connection with the
// engine. Rooms are created and joined later via events, so no query
// parameters are required here.
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("upgrade error: %v", err)
		return
	}

	c := &conn{
		id:     uuid.NewString(),
		ws:     wsConn,
		send:   make(chan []byte, 256),
		server: s,
	}
	s.engine.Connect(c.id, c)
	s.metrics.IncConn()

	go c.writePump()
	go c.readPump()
}

func (c *conn) readPump() {
	defer func() {
		c.server.engine.Disconnect(c.id)
		c.server.metrics.DecConn()
		c.ws.Close()
	}()
	c.ws.SetReadLimit(maxFrameBytes)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, payload, err := c.ws.ReadMessage()
		if err != nil {
			// normal close or read error, deferred cleanup runs next.
			break
		}
		var env Envelope
		if err := json.Unmarshal(payload, &env); err != nil {
			log.Printf("conn %s: unreadable frame: %v", c.id, err)
			continue
		}
		c.dispatch(env)
	}
}

// dispatch routes one inbound envelope to the engine. A payload that
// fails shape validation maps to the primary validation error of that
// event, mirroring what the engine would reject it with anyway.
func (c *conn) dispatch(env Envelope) {
	switch env.Event {
	case "create-room":
		var p createRoomPayload
		if err := decodePayload(env.Data, &p); err != nil {
			c.sendError(chat.NewError(chat.CodeInvalidUsername, "username is required"))
			return
		}
		snap, err := c.server.engine.CreateRoom(c.id, p.Username, p.RoomName)
		if err != nil {
			c.sendError(err)
			return
		}
		c.server.metrics.IncRoomCreated()
		c.Send(chat.Event{Name: "room-created", Data: roomCreatedReply{RoomID: snap.RoomID}})
		c.Send(chat.Event{Name: "room-joined", Data: snap})
	case "join-room":
		var p joinRoomPayload
		if err := decodePayload(env.Data, &p); err != nil {
			c.sendError(chat.NewError(chat.CodeInvalidUsername, "username and room id are required"))
			return
		}
		snap, err := c.server.engine.Join(c.id, p.Username, p.RoomID)
		if err != nil {
			c.sendError(err)
			return
		}
		c.Send(chat.Event{Name: "room-joined", Data: snap})
	case "send-message":
		var p sendMessagePayload
		if err := decodePayload(env.Data, &p); err != nil {
			c.sendError(chat.NewError(chat.CodeEmptyMessage, "message cannot be empty"))
			return
		}
		if err := c.server.engine.SendMessage(c.id, p.Text); err != nil {
			c.sendError(err)
			return
		}
		c.server.metrics.IncMessage()
	case "send-file":
		var p sendFilePayload
		if err := decodePayload(env.Data, &p); err != nil {
			c.sendError(chat.NewError(chat.CodeFileTooLarge, "invalid file payload"))
			return
		}
		upload := chat.FileUpload{
			Name:         p.FileName,
			Type:         p.FileType,
			DeclaredSize: p.FileSize,
			Data:         []byte(p.FileData),
		}
		if err := c.server.engine.SendFile(context.Background(), c.id, upload); err != nil {
			c.sendError(err)
			return
		}
		c.server.metrics.IncFile()
	case "change-settings":
		var p changeSettingsPayload
		if err := decodePayload(env.Data, &p); err != nil {
			// settings changes fail silently, malformed ones included.
			return
		}
		c.server.engine.ChangeSettings(c.id, p.Settings)
	case "get-room-info":
		var p roomInfoPayload
		if err := decodePayload(env.Data, &p); err != nil {
			c.sendError(chat.NewError(chat.CodeInvalidRoomID, "room id is required"))
			return
		}
		info, err := c.server.engine.RoomInfo(p.RoomID)
		if err != nil {
			c.sendError(err)
			return
		}
		c.Send(chat.Event{Name: "room-info", Data: info})
	case "ping":
		c.Send(chat.Event{Name: "pong", Data: map[string]int64{"ts": time.Now().UnixMilli()}})
	default:
		log.Printf("conn %s: unknown event %q", c.id, env.Event)
	}
}

func (c *conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
