package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/vietanh2810/eventfinder-api/internal/domain"
)

const DefaultHistoryLimit = 50

// Reasons a connection is refused, plus the one inbound frame failure.
var (
	ErrMissingRoom        = errors.New("missing or malformed event id")
	ErrAccessDenied       = errors.New("not allowed to join this event chat")
	ErrAuthorizationFault = errors.New("chat authorization failed")
	ErrRoomUnavailable    = errors.New("chat room unavailable")
	ErrMalformedFrame     = errors.New("malformed chat frame")
)

type AccessPolicy interface {
	Authorize(ctx context.Context, identity domain.Identity, eventID uint) (bool, error)
}

type MessageStore interface {
	Append(ctx context.Context, eventID uint, senderID *uint, username, text string) (domain.ChatMessage, error)
	RecentHistory(ctx context.Context, eventID uint, limit int) ([]domain.ChatMessage, error)
}

type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

type Options struct {
	HistoryLimit int
	SendBuffer   int
}

// Handler admits connections into event rooms and relays what they say.
type Handler struct {
	policy  AccessPolicy
	store   MessageStore
	channel Channel
	opts    Options
	now     func() time.Time

	mu       sync.Mutex
	stopped  bool
	stopping chan struct{}
	sessions sync.WaitGroup
}

func NewHandler(policy AccessPolicy, store MessageStore, channel Channel, opts Options) *Handler {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = DefaultHistoryLimit
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 256
	}

	return &Handler{
		policy:   policy,
		store:    store,
		channel:  channel,
		opts:     opts,
		now:      time.Now,
		stopping: make(chan struct{}),
	}
}

// Connect authorizes identity for the event named by rawEventID, joins its
// room and queues the history frame. The history frame is always the first
// frame queued; broadcasts arriving meanwhile follow it, minus the ones the
// history already holds. On error no membership exists and nothing has been
// queued.
func (h *Handler) Connect(ctx context.Context, identity domain.Identity, rawEventID string) (*Session, error) {
	eventID, err := parseEventID(rawEventID)
	if err != nil {
		return nil, err
	}

	allowed, err := h.policy.Authorize(ctx, identity, eventID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAuthorizationFault, err)
	}
	if !allowed {
		return nil, ErrAccessDenied
	}

	s := &Session{
		handler:  h,
		identity: identity,
		eventID:  eventID,
		room:     RoomKey(eventID),
		member:   NewMember(h.opts.SendBuffer),
	}
	s.state.Store(int32(StateConnecting))

	if err = h.track(); err != nil {
		return nil, err
	}

	s.member.hold()
	if err = h.channel.Join(ctx, s.room, s.member); err != nil {
		h.sessions.Done()
		return nil, fmt.Errorf("%w: h.channel.Join -> %w", ErrRoomUnavailable, err)
	}
	s.state.Store(int32(StateOpen))

	s.sendHistory(ctx)

	return s, nil
}

func (h *Handler) track() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopped {
		return fmt.Errorf("%w: shutting down", ErrRoomUnavailable)
	}
	h.sessions.Add(1)

	return nil
}

// Shutdown refuses new connections, tells open sessions to go away and waits
// until every one of them has left its room or ctx is done.
func (h *Handler) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	if !h.stopped {
		h.stopped = true
		close(h.stopping)
	}
	h.mu.Unlock()

	done := make(chan struct{})
	go func() {
		h.sessions.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("chat sessions still open -> %w", ctx.Err())
	}
}

func parseEventID(raw string) (uint, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, ErrMissingRoom
	}

	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, ErrMissingRoom
	}

	return uint(id), nil
}

// Session is one admitted connection.
type Session struct {
	handler  *Handler
	identity domain.Identity
	eventID  uint
	room     string
	member   *Member

	state     atomic.Int32
	closeOnce sync.Once
}

func (s *Session) EventID() uint {
	return s.eventID
}

func (s *Session) Room() string {
	return s.room
}

func (s *Session) Member() *Member {
	return s.member
}

func (s *Session) State() State {
	return State(s.state.Load())
}

// Stopping is closed when the server is shutting down.
func (s *Session) Stopping() <-chan struct{} {
	return s.handler.stopping
}

// sendHistory releases the member held during Connect. A failed lookup
// leaves the connection open without scrollback.
func (s *Session) sendHistory(ctx context.Context) {
	messages, err := s.handler.store.RecentHistory(ctx, s.eventID, s.handler.opts.HistoryLimit)
	if err != nil {
		zap.L().Warn("chat history unavailable", zap.Uint("event_id", s.eventID), zap.Error(err))
		s.member.release(nil, nil)
		return
	}

	data, err := json.Marshal(NewHistoryFrame(messages))
	if err != nil {
		zap.L().Error("chat history encoding failed", zap.Uint("event_id", s.eventID), zap.Error(err))
		s.member.release(nil, nil)
		return
	}

	s.member.release(data, notInHistory(messages))
}

// notInHistory drops live frames of messages the history frame already holds.
func notInHistory(messages []domain.ChatMessage) func([]byte) bool {
	seen := make(map[uint]struct{}, len(messages))
	for _, m := range messages {
		seen[m.ID] = struct{}{}
	}

	return func(data []byte) bool {
		var frame struct {
			ID *uint `json:"id"`
		}
		if err := json.Unmarshal(data, &frame); err != nil || frame.ID == nil {
			return true
		}
		_, ok := seen[*frame.ID]
		return !ok
	}
}

// Receive handles one inbound text frame. Blank messages are ignored. A
// message that cannot be stored is still broadcast, without an id.
func (s *Session) Receive(ctx context.Context, data []byte) error {
	if s.State() != StateOpen {
		return nil
	}

	var in inboundFrame
	if err := json.Unmarshal(data, &in); err != nil || in.Message == nil {
		return ErrMalformedFrame
	}

	text := strings.TrimSpace(*in.Message)
	if text == "" {
		return nil
	}

	event := Event{
		Type:     EventChatMessage,
		Message:  text,
		Username: s.identity.DisplayName(),
	}

	var senderID *uint
	if s.identity.IsAuthenticated() {
		id := s.identity.UserID
		senderID = &id
	}

	saved, err := s.handler.store.Append(ctx, s.eventID, senderID, event.Username, text)
	if err != nil {
		zap.L().Warn("chat message not persisted", zap.Uint("event_id", s.eventID), zap.Error(err))
		event.Timestamp = s.handler.now().UTC()
	} else {
		id := saved.ID
		event.ID = &id
		event.Timestamp = saved.SentAt
	}

	if err = s.handler.channel.Broadcast(ctx, s.room, event); err != nil {
		return fmt.Errorf("s.handler.channel.Broadcast -> %w", err)
	}

	return nil
}

// Close leaves the room. It is safe to call more than once and never fails.
func (s *Session) Close(ctx context.Context) {
	s.closeOnce.Do(func() {
		defer s.handler.sessions.Done()
		s.state.Store(int32(StateClosed))

		if err := s.handler.channel.Leave(ctx, s.room, s.member); err != nil {
			zap.L().Debug("chat leave failed", zap.String("room", s.room), zap.Error(err))
		}
	})
}
