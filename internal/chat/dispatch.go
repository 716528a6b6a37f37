package chat

// Event is one outbound notification. The transport decides how to frame
// it on the wire; the core only names it and carries the payload.
type Event struct {
	Name string
	Data any
}

// Sink is a transport-facing connection handle. Send must never block:
// delivery is fire and forget, a slow consumer loses events rather than
// stalling the room.
type Sink interface {
	Send(Event)
}

// Dispatcher fans events out to room members. It is only touched under
// the engine's lock, so the maps need no locking of their own, and the
// broadcast order always matches the order mutations were committed.
type Dispatcher struct {
	sinks map[string]Sink
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{sinks: make(map[string]Sink)}
}

func (d *Dispatcher) Attach(connID string, sink Sink) {
	d.sinks[connID] = sink
}

func (d *Dispatcher) Detach(connID string) {
	delete(d.sinks, connID)
}

// SendTo unicasts to one connection. Unknown connections are ignored;
// the peer already disconnected.
func (d *Dispatcher) SendTo(connID string, event Event) {
	if sink, ok := d.sinks[connID]; ok {
		sink.Send(event)
	}
}

// Broadcast delivers the event to every member of the room in join order.
func (d *Dispatcher) Broadcast(room *Room, event Event) {
	for i := range room.Members {
		d.SendTo(room.Members[i].ConnID, event)
	}
}

// BroadcastExcept is Broadcast minus one connection, used for the
// "someone else joined/left" notices.
func (d *Dispatcher) BroadcastExcept(room *Room, skipConnID string, event Event) {
	for i := range room.Members {
		if room.Members[i].ConnID != skipConnID {
			d.SendTo(room.Members[i].ConnID, event)
		}
	}
}
