package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietanh2810/eventfinder-api/internal/domain"
)

var errBoom = errors.New("boom")

type policyFunc func(identity domain.Identity, eventID uint) (bool, error)

func (f policyFunc) Authorize(_ context.Context, identity domain.Identity, eventID uint) (bool, error) {
	return f(identity, eventID)
}

func allowAll() policyFunc {
	return func(domain.Identity, uint) (bool, error) { return true, nil }
}

type memoryStore struct {
	mu         sync.Mutex
	messages   []domain.ChatMessage
	appendErr  error
	historyErr error
	appends    int
	lastLimit  int
}

func (s *memoryStore) Append(_ context.Context, eventID uint, senderID *uint, username, text string) (domain.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.appends++
	if s.appendErr != nil {
		return domain.ChatMessage{}, s.appendErr
	}

	m := domain.ChatMessage{
		ID:       uint(len(s.messages) + 1),
		EventID:  eventID,
		SenderID: senderID,
		Username: username,
		Content:  text,
		SentAt:   time.Date(2030, 5, 1, 10, 0, len(s.messages), 0, time.UTC),
	}
	s.messages = append(s.messages, m)

	return m, nil
}

func (s *memoryStore) RecentHistory(_ context.Context, eventID uint, limit int) ([]domain.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastLimit = limit
	if s.historyErr != nil {
		return nil, s.historyErr
	}

	var out []domain.ChatMessage
	for _, m := range s.messages {
		if m.EventID == eventID {
			out = append(out, m)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}

	return out, nil
}

func (s *memoryStore) appendCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.appends
}

var (
	host     = domain.Identity{UserID: 1, Username: "host"}
	attendee = domain.Identity{UserID: 2, Username: "jane"}
)

func newTestHandler(policy AccessPolicy, store MessageStore) (*Handler, *Hub) {
	hub := NewHub()
	h := NewHandler(policy, store, hub, Options{SendBuffer: 16})
	h.now = func() time.Time { return time.Date(2031, 1, 1, 0, 0, 0, 0, time.UTC) }

	return h, hub
}

func connect(t *testing.T, h *Handler, identity domain.Identity, rawEventID string) *Session {
	t.Helper()

	s, err := h.Connect(context.Background(), identity, rawEventID)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close(context.Background()) })

	return s
}

func TestConnect_HostGetsEmptyHistory(t *testing.T) {
	store := &memoryStore{}
	h, hub := newTestHandler(allowAll(), store)

	s := connect(t, h, host, "7")

	assert.Equal(t, StateOpen, s.State())
	assert.Equal(t, "event_chat_7", s.Room())
	assert.Equal(t, 1, hub.MemberCount(RoomKey(7)))
	assert.Equal(t, DefaultHistoryLimit, store.lastLimit)

	frame := nextFrame(t, s.Member())
	assert.Equal(t, "history", frame["type"])
	assert.Equal(t, []interface{}{}, frame["messages"])
}

func TestConnect_HistoryIsReplayedOldestFirst(t *testing.T) {
	store := &memoryStore{}
	h, _ := newTestHandler(allowAll(), store)
	for _, text := range []string{"one", "two", "three"} {
		_, err := store.Append(context.Background(), 7, nil, domain.AnonymousUsername, text)
		require.NoError(t, err)
	}

	s := connect(t, h, host, "7")

	frame := nextFrame(t, s.Member())
	messages := frame["messages"].([]interface{})
	require.Len(t, messages, 3)
	first := messages[0].(map[string]interface{})
	assert.Equal(t, "one", first["message"])
	assert.Equal(t, "anon", first["username"])
	assert.Equal(t, float64(1), first["id"])
	assert.Equal(t, "three", messages[2].(map[string]interface{})["message"])
}

func TestConnect_Refusals(t *testing.T) {
	tests := []struct {
		name    string
		policy  policyFunc
		rawID   string
		wantErr error
	}{
		{"missing id", allowAll(), "", ErrMissingRoom},
		{"blank id", allowAll(), "  ", ErrMissingRoom},
		{"non numeric id", allowAll(), "abc", ErrMissingRoom},
		{"zero id", allowAll(), "0", ErrMissingRoom},
		{"not going", func(domain.Identity, uint) (bool, error) { return false, nil }, "7", ErrAccessDenied},
		{"lookup fault", func(domain.Identity, uint) (bool, error) { return false, errBoom }, "7", ErrAuthorizationFault},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &memoryStore{}
			h, hub := newTestHandler(tt.policy, store)

			s, err := h.Connect(context.Background(), attendee, tt.rawID)

			assert.Nil(t, s)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, 0, hub.RoomCount())
			assert.Zero(t, store.lastLimit, "history must not be fetched")
		})
	}
}

func TestConnect_FaultKeepsCause(t *testing.T) {
	h, _ := newTestHandler(policyFunc(func(domain.Identity, uint) (bool, error) { return false, errBoom }), &memoryStore{})

	_, err := h.Connect(context.Background(), attendee, "7")

	assert.ErrorIs(t, err, ErrAuthorizationFault)
	assert.ErrorIs(t, err, errBoom)
	assert.NotErrorIs(t, err, ErrAccessDenied)
}

func TestConnect_HistoryFailureKeepsConnectionOpen(t *testing.T) {
	h, hub := newTestHandler(allowAll(), &memoryStore{historyErr: errBoom})

	s := connect(t, h, host, "7")

	assert.Equal(t, StateOpen, s.State())
	assert.Equal(t, 1, hub.MemberCount(RoomKey(7)))
	assertNoFrame(t, s.Member())
}

func TestReceive_BroadcastsToEveryone(t *testing.T) {
	store := &memoryStore{}
	h, _ := newTestHandler(allowAll(), store)
	hostSession := connect(t, h, host, "7")
	sender := connect(t, h, attendee, "7")
	nextFrame(t, hostSession.Member())
	nextFrame(t, sender.Member())

	require.NoError(t, sender.Receive(context.Background(), []byte(`{"message":"  hi  "}`)))

	for _, s := range []*Session{hostSession, sender} {
		frame := nextFrame(t, s.Member())
		assert.Equal(t, "message", frame["type"])
		assert.Equal(t, "hi", frame["message"])
		assert.Equal(t, "jane", frame["username"])
		assert.Equal(t, float64(1), frame["id"])
		assert.Equal(t, "2030-05-01T10:00:00Z", frame["timestamp"])
	}

	require.Len(t, store.messages, 1)
	require.NotNil(t, store.messages[0].SenderID)
	assert.Equal(t, uint(2), *store.messages[0].SenderID)
}

func TestReceive_AnonymousSender(t *testing.T) {
	store := &memoryStore{}
	h, _ := newTestHandler(allowAll(), store)
	s := connect(t, h, domain.Identity{}, "7")
	nextFrame(t, s.Member())

	require.NoError(t, s.Receive(context.Background(), []byte(`{"message":"hello"}`)))

	assert.Equal(t, "anon", nextFrame(t, s.Member())["username"])
	require.Len(t, store.messages, 1)
	assert.Nil(t, store.messages[0].SenderID)
}

func TestReceive_BlankMessagesAreIgnored(t *testing.T) {
	store := &memoryStore{}
	h, _ := newTestHandler(allowAll(), store)
	s := connect(t, h, host, "7")
	nextFrame(t, s.Member())

	for _, raw := range []string{`{"message":""}`, `{"message":"   "}`, `{"message":"\n\t"}`} {
		require.NoError(t, s.Receive(context.Background(), []byte(raw)))
	}

	assert.Zero(t, store.appendCount())
	assertNoFrame(t, s.Member())
}

func TestReceive_MalformedFramesAreDropped(t *testing.T) {
	store := &memoryStore{}
	h, _ := newTestHandler(allowAll(), store)
	s := connect(t, h, host, "7")
	nextFrame(t, s.Member())

	for _, raw := range []string{`not json`, `{}`, `{"text":"hi"}`, `{"message":42}`, `[]`} {
		assert.ErrorIs(t, s.Receive(context.Background(), []byte(raw)), ErrMalformedFrame, raw)
	}

	assert.Equal(t, StateOpen, s.State())
	assert.Zero(t, store.appendCount())
	assertNoFrame(t, s.Member())
}

func TestReceive_PersistenceFailureStillDelivers(t *testing.T) {
	store := &memoryStore{appendErr: errBoom}
	h, _ := newTestHandler(allowAll(), store)
	other := connect(t, h, host, "7")
	sender := connect(t, h, attendee, "7")
	nextFrame(t, other.Member())
	nextFrame(t, sender.Member())

	require.NoError(t, sender.Receive(context.Background(), []byte(`{"message":"still here"}`)))

	for _, s := range []*Session{other, sender} {
		frame := nextFrame(t, s.Member())
		assert.Equal(t, "still here", frame["message"])
		assert.Equal(t, "2031-01-01T00:00:00Z", frame["timestamp"])
		id, present := frame["id"]
		assert.True(t, present)
		assert.Nil(t, id)
	}
	assert.Equal(t, 1, store.appendCount())
}

func TestReceive_RoomsAreIsolated(t *testing.T) {
	h, _ := newTestHandler(allowAll(), &memoryStore{})
	inSeven := connect(t, h, host, "7")
	inEight := connect(t, h, attendee, "8")
	nextFrame(t, inSeven.Member())
	nextFrame(t, inEight.Member())

	require.NoError(t, inSeven.Receive(context.Background(), []byte(`{"message":"seven"}`)))

	assert.Equal(t, "seven", nextFrame(t, inSeven.Member())["message"])
	assertNoFrame(t, inEight.Member())
}

func TestClose_LeavesRoomOnce(t *testing.T) {
	h, hub := newTestHandler(allowAll(), &memoryStore{})
	s, err := h.Connect(context.Background(), host, "7")
	require.NoError(t, err)

	s.Close(context.Background())
	s.Close(context.Background())

	assert.Equal(t, StateClosed, s.State())
	assert.Equal(t, 0, hub.MemberCount(RoomKey(7)))
	assert.NoError(t, s.Receive(context.Background(), []byte(`{"message":"late"}`)))
}

type failingLeave struct {
	*Hub
}

func (f failingLeave) Leave(context.Context, string, *Member) error {
	return errBoom
}

func TestClose_SuppressesLeaveErrors(t *testing.T) {
	h := NewHandler(allowAll(), &memoryStore{}, failingLeave{NewHub()}, Options{})
	s, err := h.Connect(context.Background(), host, "7")
	require.NoError(t, err)

	assert.NotPanics(t, func() { s.Close(context.Background()) })
	assert.Equal(t, StateClosed, s.State())
}

// gatedStore blocks history lookups until release is closed.
type gatedStore struct {
	*memoryStore
	started chan struct{}
	release chan struct{}
}

func (s *gatedStore) RecentHistory(ctx context.Context, eventID uint, limit int) ([]domain.ChatMessage, error) {
	close(s.started)
	<-s.release

	return s.memoryStore.RecentHistory(ctx, eventID, limit)
}

func TestConnect_HistoryPrecedesLiveMessages(t *testing.T) {
	ctx := context.Background()
	store := &memoryStore{}
	gated := &gatedStore{memoryStore: store, started: make(chan struct{}), release: make(chan struct{})}
	hub := NewHub()
	hostHandler := NewHandler(allowAll(), store, hub, Options{SendBuffer: 16})
	joinHandler := NewHandler(allowAll(), gated, hub, Options{SendBuffer: 16})

	hostSession, err := hostHandler.Connect(ctx, host, "7")
	require.NoError(t, err)
	defer hostSession.Close(ctx)

	joined := make(chan *Session, 1)
	go func() {
		s, err := joinHandler.Connect(ctx, attendee, "7")
		assert.NoError(t, err)
		joined <- s
	}()
	<-gated.started

	// Stored before the lookup runs, so the history will hold it.
	require.NoError(t, hostSession.Receive(ctx, []byte(`{"message":"hi"}`)))

	// Not stored, so only the live frame carries it.
	store.mu.Lock()
	store.appendErr = errBoom
	store.mu.Unlock()
	require.NoError(t, hostSession.Receive(ctx, []byte(`{"message":"unsaved"}`)))

	close(gated.release)
	s := <-joined
	require.NotNil(t, s)
	defer s.Close(ctx)

	history := nextFrame(t, s.Member())
	assert.Equal(t, "history", history["type"])
	messages := history["messages"].([]interface{})
	require.Len(t, messages, 1)
	assert.Equal(t, "hi", messages[0].(map[string]interface{})["message"])

	live := nextFrame(t, s.Member())
	assert.Equal(t, "message", live["type"])
	assert.Equal(t, "unsaved", live["message"])
	assert.Nil(t, live["id"])

	assertNoFrame(t, s.Member())
}

func TestConnect_HistoryFailureStillReleasesLiveMessages(t *testing.T) {
	ctx := context.Background()
	h, hub := newTestHandler(allowAll(), &memoryStore{historyErr: errBoom})
	s := connect(t, h, host, "7")
	require.NoError(t, hub.Broadcast(ctx, RoomKey(7), Event{Type: EventChatMessage, Message: "after"}))

	assert.Equal(t, "after", nextFrame(t, s.Member())["message"])
}

type failingJoin struct {
	*Hub
}

func (f failingJoin) Join(context.Context, string, *Member) error {
	return errBoom
}

func TestConnect_JoinFailureIsNotAnAuthorizationFault(t *testing.T) {
	store := &memoryStore{}
	h := NewHandler(allowAll(), store, failingJoin{NewHub()}, Options{})

	s, err := h.Connect(context.Background(), host, "7")

	assert.Nil(t, s)
	assert.ErrorIs(t, err, ErrRoomUnavailable)
	assert.ErrorIs(t, err, errBoom)
	assert.NotErrorIs(t, err, ErrAuthorizationFault)
	assert.Zero(t, store.lastLimit)
	require.NoError(t, h.Shutdown(context.Background()))
}

func TestShutdown_WaitsForSessionsAndRefusesNewOnes(t *testing.T) {
	ctx := context.Background()
	h, hub := newTestHandler(allowAll(), &memoryStore{})
	s, err := h.Connect(ctx, host, "7")
	require.NoError(t, err)

	shutdownDone := make(chan error, 1)
	go func() { shutdownDone <- h.Shutdown(ctx) }()

	select {
	case <-s.Stopping():
	case <-time.After(time.Second):
		t.Fatal("session not told to stop")
	}
	select {
	case <-shutdownDone:
		t.Fatal("shutdown returned with a session still open")
	case <-time.After(50 * time.Millisecond):
	}

	s.Close(ctx)
	require.NoError(t, <-shutdownDone)
	assert.Equal(t, 0, hub.RoomCount())

	_, err = h.Connect(ctx, attendee, "7")
	assert.ErrorIs(t, err, ErrRoomUnavailable)
}

func TestShutdown_GivesUpWhenContextEnds(t *testing.T) {
	h, _ := newTestHandler(allowAll(), &memoryStore{})
	connect(t, h, host, "7")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, h.Shutdown(ctx), context.DeadlineExceeded)
}
