package broker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eldtechnologies/parlor/internal/models"
	"github.com/eldtechnologies/parlor/internal/session"
)

// memStore is an in-memory ConversationStore for broker tests.
type memStore struct {
	mu            sync.Mutex
	conversations []models.Conversation
	failAdd       bool
}

func (s *memStore) Close()                         {}
func (s *memStore) Ping(ctx context.Context) error { return nil }

func (s *memStore) ListRooms(ctx context.Context) ([]models.Room, error) { return nil, nil }
func (s *memStore) GetRoom(ctx context.Context, id string) (*models.Room, error) {
	return nil, nil
}
func (s *memStore) AddRoom(ctx context.Context, room models.Room) (*models.Room, error) {
	return &room, nil
}
func (s *memStore) GetUser(ctx context.Context, username string) (*models.User, error) {
	return nil, nil
}
func (s *memStore) AddUser(ctx context.Context, user models.User) error { return nil }

func (s *memStore) AddConversation(ctx context.Context, conv models.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAdd {
		return context.DeadlineExceeded
	}
	s.conversations = append(s.conversations, conv)
	return nil
}

func (s *memStore) GetLastConversation(ctx context.Context, roomID string, before int64) (*models.Conversation, error) {
	return nil, nil
}

func (s *memStore) flushed() []models.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Conversation, len(s.conversations))
	copy(out, s.conversations)
	return out
}

type brokerHarness struct {
	sessions *session.Store
	store    *memStore
	broker   *Broker
	server   *httptest.Server
}

func newHarness(t *testing.T, blockSize int) *brokerHarness {
	t.Helper()

	sessions := session.NewStore()
	t.Cleanup(sessions.Close)

	ms := &memStore{}
	buffers := NewBufferSet()
	buffers.Register("room1")

	b := New(sessions, ms, buffers, blockSize, zerolog.Nop())
	srv := httptest.NewServer(http.HandlerFunc(b.HandleWS))
	t.Cleanup(func() {
		b.Close()
		srv.Close()
	})

	return &brokerHarness{sessions: sessions, store: ms, broker: b, server: srv}
}

func (h *brokerHarness) wsURL() string {
	return "ws" + strings.TrimPrefix(h.server.URL, "http")
}

// dial connects an authenticated websocket for username.
func (h *brokerHarness) dial(t *testing.T, username string) *websocket.Conn {
	t.Helper()

	token := h.sessions.Create(username, time.Minute)
	header := http.Header{}
	header.Set("Cookie", session.CookieName+"="+token)

	conn, _, err := websocket.DefaultDialer.Dial(h.wsURL(), header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) OutboundFrame {
	t.Helper()
	var frame OutboundFrame
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func assertNoFrame(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	var frame OutboundFrame
	conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	err := conn.ReadJSON(&frame)
	require.Error(t, err, "unexpected frame delivered: %+v", frame)
}

func TestUpgradeRefusedWithoutSession(t *testing.T) {
	h := newHarness(t, DefaultBlockSize)

	_, resp, err := websocket.DefaultDialer.Dial(h.wsURL(), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestUpgradeRefusedWithExpiredSession(t *testing.T) {
	h := newHarness(t, DefaultBlockSize)

	token := h.sessions.Create("alice", 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)

	header := http.Header{}
	header.Set("Cookie", session.CookieName+"="+token)
	_, resp, err := websocket.DefaultDialer.Dial(h.wsURL(), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestFanOutSkipsSenderAndEscapesHTML(t *testing.T) {
	h := newHarness(t, DefaultBlockSize)

	alice := h.dial(t, "alice")
	bob := h.dial(t, "bob")
	carol := h.dial(t, "carol")

	require.NoError(t, alice.WriteJSON(InboundFrame{RoomID: "room1", Text: "<script>hi"}))

	for _, conn := range []*websocket.Conn{bob, carol} {
		frame := readFrame(t, conn)
		assert.Equal(t, "room1", frame.RoomID)
		assert.Equal(t, "alice", frame.Username)
		assert.Equal(t, "&lt;script&gt;hi", frame.Text)
	}

	assertNoFrame(t, alice)
}

func TestUsernameComesFromSessionNotPayload(t *testing.T) {
	h := newHarness(t, DefaultBlockSize)

	alice := h.dial(t, "alice")
	bob := h.dial(t, "bob")

	// A spoofed username field on the wire must be ignored.
	payload := map[string]string{"roomId": "room1", "text": "hello", "username": "mallory"}
	require.NoError(t, alice.WriteJSON(payload))

	frame := readFrame(t, bob)
	assert.Equal(t, "alice", frame.Username)
}

func TestUnknownRoomRejected(t *testing.T) {
	h := newHarness(t, DefaultBlockSize)

	alice := h.dial(t, "alice")
	bob := h.dial(t, "bob")

	require.NoError(t, alice.WriteJSON(InboundFrame{RoomID: "ghost", Text: "hello"}))
	assertNoFrame(t, bob)
	assert.Empty(t, h.store.flushed())
	assert.False(t, h.broker.Buffers().Has("ghost"), "no buffer implicitly created")

	// The connection survives a rejected message.
	require.NoError(t, alice.WriteJSON(InboundFrame{RoomID: "room1", Text: "still here"}))
	frame := readFrame(t, bob)
	assert.Equal(t, "still here", frame.Text)
}

func TestMalformedFrameClosesConnection(t *testing.T) {
	h := newHarness(t, DefaultBlockSize)

	alice := h.dial(t, "alice")
	bob := h.dial(t, "bob")

	require.NoError(t, alice.WriteMessage(websocket.TextMessage, []byte("not json")))

	alice.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := alice.ReadMessage()
	require.Error(t, err, "server should drop the offending connection")

	// Other peers keep working.
	require.NoError(t, bob.WriteJSON(InboundFrame{RoomID: "room1", Text: "fine"}))
	assertNoFrame(t, bob)
}

func TestFlushAtBlockSize(t *testing.T) {
	const blockSize = 3
	h := newHarness(t, blockSize)

	alice := h.dial(t, "alice")
	bob := h.dial(t, "bob")

	before := time.Now().UnixMilli()
	for _, text := range []string{"one", "two", "three"} {
		require.NoError(t, alice.WriteJSON(InboundFrame{RoomID: "room1", Text: text}))
		readFrame(t, bob)
	}

	require.Eventually(t, func() bool {
		return len(h.store.flushed()) == 1
	}, 2*time.Second, 10*time.Millisecond, "exactly one conversation flushed")

	conv := h.store.flushed()[0]
	assert.Equal(t, "room1", conv.RoomID)
	assert.GreaterOrEqual(t, conv.Timestamp, before)
	require.Len(t, conv.Messages, blockSize)
	assert.Equal(t, "one", conv.Messages[0].Text)
	assert.Equal(t, "two", conv.Messages[1].Text)
	assert.Equal(t, "three", conv.Messages[2].Text)

	assert.Empty(t, h.broker.Buffers().Snapshot("room1"), "buffer reset after flush")

	// The next message starts a fresh block.
	require.NoError(t, alice.WriteJSON(InboundFrame{RoomID: "room1", Text: "four"}))
	readFrame(t, bob)
	require.Eventually(t, func() bool {
		return len(h.broker.Buffers().Snapshot("room1")) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Len(t, h.store.flushed(), 1, "no second flush below the threshold")
}

func TestPersistenceFailureDropsBlockAndKeepsRunning(t *testing.T) {
	const blockSize = 2
	h := newHarness(t, blockSize)
	h.store.failAdd = true

	alice := h.dial(t, "alice")
	bob := h.dial(t, "bob")

	require.NoError(t, alice.WriteJSON(InboundFrame{RoomID: "room1", Text: "one"}))
	readFrame(t, bob)
	require.NoError(t, alice.WriteJSON(InboundFrame{RoomID: "room1", Text: "two"}))
	readFrame(t, bob)

	// The block is gone but the buffer was still reset and the broker
	// keeps relaying.
	require.Eventually(t, func() bool {
		return len(h.broker.Buffers().Snapshot("room1")) == 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, h.store.flushed())

	require.NoError(t, alice.WriteJSON(InboundFrame{RoomID: "room1", Text: "three"}))
	frame := readFrame(t, bob)
	assert.Equal(t, "three", frame.Text)
}

func TestDisconnectedPeerIsSkipped(t *testing.T) {
	h := newHarness(t, DefaultBlockSize)

	alice := h.dial(t, "alice")
	bob := h.dial(t, "bob")
	carol := h.dial(t, "carol")

	bob.Close()
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, alice.WriteJSON(InboundFrame{RoomID: "room1", Text: "hello"}))
	frame := readFrame(t, carol)
	assert.Equal(t, "hello", frame.Text)
}
