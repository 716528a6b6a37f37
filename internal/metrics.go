package internal

import "sync/atomic"

// Metrics counts transport-level activity. Everything is atomic because
// the websocket pumps and the reaper goroutine touch it concurrently.
type Metrics struct {
	activeConns  atomic.Int64
	roomsCreated atomic.Uint64
	roomsReaped  atomic.Uint64
	messages     atomic.Uint64
	files        atomic.Uint64
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) IncConn() {
	m.activeConns.Add(1)
}

func (m *Metrics) DecConn() {
	m.activeConns.Add(-1)
}

func (m *Metrics) IncRoomCreated() {
	m.roomsCreated.Add(1)
}

func (m *Metrics) AddReaped(n int) {
	m.roomsReaped.Add(uint64(n))
}

func (m *Metrics) IncMessage() {
	m.messages.Add(1)
}

func (m *Metrics) IncFile() {
	m.files.Add(1)
}

func (m *Metrics) snapshot() map[string]any {
	return map[string]any{
		"active_connections":  m.activeConns.Load(),
		"rooms_created_total": m.roomsCreated.Load(),
		"rooms_reaped_total":  m.roomsReaped.Load(),
		"messages_total":      m.messages.Load(),
		"files_total":         m.files.Load(),
	}
}
