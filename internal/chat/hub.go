package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const roomNamespace = "event_chat"

// RoomKey names the broadcast group of an event.
func RoomKey(eventID uint) string {
	return fmt.Sprintf("%s_%d", roomNamespace, eventID)
}

// Channel is a set of named broadcast groups.
type Channel interface {
	Join(ctx context.Context, room string, m *Member) error
	Leave(ctx context.Context, room string, m *Member) error
	Broadcast(ctx context.Context, room string, event Event) error
}

// Member is one connection's seat in a room. Frames for the connection are
// queued on a bounded buffer that the connection drains.
type Member struct {
	ID uuid.UUID

	mu      sync.Mutex
	send    chan []byte
	held    [][]byte
	holding bool
	closed  bool
}

func NewMember(buffer int) *Member {
	if buffer < 1 {
		buffer = 1
	}

	return &Member{
		ID:   uuid.New(),
		send: make(chan []byte, buffer),
	}
}

// Send is closed once the member has left its room or been evicted.
func (m *Member) Send() <-chan []byte {
	return m.send
}

// Deliver queues data without blocking. It reports false when the buffer is
// full or the member is gone.
func (m *Member) Deliver(data []byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false
	}

	if m.holding {
		// One slot stays free for the frame release puts first.
		if len(m.held) >= cap(m.send)-1 {
			return false
		}
		m.held = append(m.held, data)
		return true
	}

	select {
	case m.send <- data:
		return true
	default:
		return false
	}
}

// hold parks delivered frames until release. It must be called before the
// member joins a room.
func (m *Member) hold() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.holding = true
}

// release queues first, when not nil, ahead of every held frame, then the
// held frames keep accepts. Later frames are queued directly.
func (m *Member) release(first []byte, keep func([]byte) bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	held := m.held
	m.held = nil
	m.holding = false
	if m.closed {
		return
	}

	if first != nil {
		m.send <- first
	}
	for _, data := range held {
		if keep != nil && !keep(data) {
			continue
		}
		m.send <- data
	}
}

func (m *Member) close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.closed {
		m.closed = true
		m.held = nil
		close(m.send)
	}
}

// Hub is the in-process Channel.
type Hub struct {
	mu    sync.Mutex
	rooms map[string]map[uuid.UUID]*Member
}

func NewHub() *Hub {
	return &Hub{
		rooms: make(map[string]map[uuid.UUID]*Member),
	}
}

func (h *Hub) Join(_ context.Context, room string, m *Member) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[room]
	if !ok {
		members = make(map[uuid.UUID]*Member)
		h.rooms[room] = members
	}
	members[m.ID] = m

	zap.L().Debug("member joined room", zap.String("room", room), zap.Stringer("member_id", m.ID))
	return nil
}

// Leave removes the member and closes its Send channel. Leaving twice is a
// no-op.
func (h *Hub) Leave(_ context.Context, room string, m *Member) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.remove(room, m)
	return nil
}

// Broadcast hands the event to every member of the room, the sender
// included. Members whose buffer is full are evicted. The lock is held for the
// whole fan-out so every member sees broadcasts in the same order.
func (h *Hub) Broadcast(_ context.Context, room string, event Event) error {
	data, err := json.Marshal(NewMessageFrame(event))
	if err != nil {
		return fmt.Errorf("json.Marshal -> %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, m := range h.rooms[room] {
		if !m.Deliver(data) {
			zap.L().Warn("evicting slow chat member", zap.String("room", room), zap.Stringer("member_id", m.ID))
			h.remove(room, m)
		}
	}

	return nil
}

func (h *Hub) MemberCount(room string) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.rooms[room])
}

func (h *Hub) RoomCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.rooms)
}

// remove must be called with h.mu held.
func (h *Hub) remove(room string, m *Member) {
	members, ok := h.rooms[room]
	if !ok {
		return
	}
	if _, ok = members[m.ID]; !ok {
		return
	}

	delete(members, m.ID)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
	m.close()

	zap.L().Debug("member left room", zap.String("room", room), zap.Stringer("member_id", m.ID))
}
