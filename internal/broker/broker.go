// Package broker relays chat messages between websocket peers and chunks
// them into durable conversation blocks.
package broker

import (
	"context"
	"html"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/parlor/internal/metrics"
	"github.com/eldtechnologies/parlor/internal/models"
	"github.com/eldtechnologies/parlor/internal/session"
	"github.com/eldtechnologies/parlor/internal/store"
)

const (
	writeTimeout = 10 * time.Second
	flushTimeout = 5 * time.Second
	maxFrameSize = 8 * 1024
)

// InboundFrame is a message received from a client. The username is never
// read from the wire; it comes from the connection's session.
type InboundFrame struct {
	RoomID string `json:"roomId"`
	Text   string `json:"text"`
}

// OutboundFrame is a message fanned out to every other connected peer.
type OutboundFrame struct {
	RoomID   string `json:"roomId"`
	Username string `json:"username"`
	Text     string `json:"text"`
}

// Broker authenticates websocket upgrades, fans messages out to connected
// peers and flushes full room buffers to the conversation store.
type Broker struct {
	sessions  *session.Store
	store     store.ConversationStore
	buffers   *BufferSet
	blockSize int
	logger    zerolog.Logger
	upgrader  websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
}

// client is one open websocket connection bound to an authenticated user.
type client struct {
	conn     *websocket.Conn
	username string

	// sendMu serializes writes; gorilla connections do not support
	// concurrent writers.
	sendMu sync.Mutex
	closed bool
}

// New creates a broker. buffers must already hold a buffer per known room.
func New(sessions *session.Store, cs store.ConversationStore, buffers *BufferSet, blockSize int, logger zerolog.Logger) *Broker {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	return &Broker{
		sessions:  sessions,
		store:     cs,
		buffers:   buffers,
		blockSize: blockSize,
		logger:    logger.With().Str("component", "broker").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Session cookies gate the upgrade; cross-origin pages
			// cannot read them, so origin checks add nothing here.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

// Buffers exposes the buffer set so handlers can annotate rooms and
// register buffers for newly created rooms.
func (b *Broker) Buffers() *BufferSet {
	return b.buffers
}

// HandleWS upgrades an authenticated request into a broker connection and
// serves it until the peer disconnects. Requests without a valid session
// are refused before the upgrade.
func (b *Broker) HandleWS(w http.ResponseWriter, r *http.Request) {
	claims, ok := b.sessions.Validate(r.Header.Get("Cookie"))
	if !ok {
		http.Error(w, "invalid session", http.StatusUnauthorized)
		return
	}

	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	conn.SetReadLimit(maxFrameSize)

	c := &client{conn: conn, username: claims.Username}
	b.add(c)
	metrics.WSConnections.Inc()
	b.logger.Info().Str("username", c.username).Msg("peer connected")

	defer func() {
		b.remove(c)
		metrics.WSConnections.Dec()
		b.logger.Info().Str("username", c.username).Msg("peer disconnected")
	}()

	b.readLoop(c)
}

// readLoop handles inbound frames until the connection fails or the peer
// sends a malformed frame.
func (b *Broker) readLoop(c *client) {
	for {
		var frame InboundFrame
		if err := c.conn.ReadJSON(&frame); err != nil {
			// Both transport errors and unparseable frames end the
			// connection; a peer that cannot speak the protocol is
			// not retried.
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				b.logger.Warn().Err(err).Str("username", c.username).Msg("dropping connection")
			}
			return
		}
		b.handleMessage(c, frame)
	}
}

// handleMessage sanitizes, fans out and buffers one inbound frame, flushing
// the room's buffer when it reaches the block size.
func (b *Broker) handleMessage(sender *client, frame InboundFrame) {
	if !b.buffers.Has(frame.RoomID) {
		b.logger.Warn().Str("room", frame.RoomID).Str("username", sender.username).
			Msg("message for unknown room rejected")
		return
	}

	msg := models.Message{
		Username: sender.username,
		Text:     html.EscapeString(frame.Text),
	}
	out := OutboundFrame{RoomID: frame.RoomID, Username: msg.Username, Text: msg.Text}

	b.fanOut(sender, out)
	metrics.MessagesRelayed.Inc()

	block, ts, flushed, ok := b.buffers.Append(frame.RoomID, msg, b.blockSize)
	if !ok {
		// Room was known a moment ago; buffers are never unregistered,
		// so this cannot happen in practice.
		return
	}
	if flushed {
		b.flush(frame.RoomID, block, ts)
	}
}

// fanOut delivers out to every other open connection. A failed send drops
// that peer only.
func (b *Broker) fanOut(sender *client, out OutboundFrame) {
	b.mu.Lock()
	peers := make([]*client, 0, len(b.clients))
	for c := range b.clients {
		if c != sender {
			peers = append(peers, c)
		}
	}
	b.mu.Unlock()

	for _, c := range peers {
		if err := c.send(out); err != nil {
			b.logger.Debug().Err(err).Str("username", c.username).Msg("send failed, dropping peer")
			b.remove(c)
		}
	}
}

// flush hands a full block to the store, stamped with ts from the drain
// that produced it. Persistence failure is logged and the block dropped;
// the buffer was already reset so the broker keeps running.
func (b *Broker) flush(roomID string, block []models.Message, ts int64) {
	conv := models.Conversation{
		RoomID:    roomID,
		Timestamp: ts,
		Messages:  block,
	}

	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	if err := b.store.AddConversation(ctx, conv); err != nil {
		metrics.FlushFailures.Inc()
		b.logger.Error().Err(err).Str("room", roomID).Int("messages", len(block)).
			Msg("conversation flush failed, block dropped")
		return
	}

	metrics.ConversationsFlushed.Inc()
	b.logger.Info().Str("room", roomID).Int64("timestamp", conv.Timestamp).
		Int("messages", len(block)).Msg("conversation flushed")
}

// Close disconnects every peer. New upgrades are expected to be stopped by
// the HTTP server shutting down first.
func (b *Broker) Close() {
	b.mu.Lock()
	peers := make([]*client, 0, len(b.clients))
	for c := range b.clients {
		peers = append(peers, c)
	}
	b.clients = make(map[*client]struct{})
	b.mu.Unlock()

	for _, c := range peers {
		c.close()
	}
}

func (b *Broker) add(c *client) {
	b.mu.Lock()
	b.clients[c] = struct{}{}
	b.mu.Unlock()
}

// remove takes c out of the fan-out set and closes it. Safe to call more
// than once.
func (b *Broker) remove(c *client) {
	b.mu.Lock()
	delete(b.clients, c)
	b.mu.Unlock()
	c.close()
}

func (c *client) send(out OutboundFrame) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.closed {
		return websocket.ErrCloseSent
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(out)
}

func (c *client) close() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if !c.closed {
		c.closed = true
		c.conn.Close()
	}
}
