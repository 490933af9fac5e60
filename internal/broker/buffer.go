package broker

import (
	"sync"
	"time"

	"github.com/eldtechnologies/parlor/internal/models"
)

// DefaultBlockSize is how many messages a room accumulates before its
// buffer is flushed into a durable conversation block.
const DefaultBlockSize = 10

// roomBuffer accumulates a room's messages since the last flush. Append,
// length check and reset happen under one lock so no message can be lost or
// double-counted across concurrent senders.
type roomBuffer struct {
	mu       sync.Mutex
	messages []models.Message
}

// append adds msg and, when the buffer reaches blockSize, drains it in the
// same critical section. The returned slice is owned by the caller. The
// timestamp is taken while the lock is held, so a block drained later never
// carries an earlier timestamp than one drained before it.
func (b *roomBuffer) append(msg models.Message, blockSize int) ([]models.Message, int64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.messages = append(b.messages, msg)
	if len(b.messages) < blockSize {
		return nil, 0, false
	}

	block := b.messages
	b.messages = nil
	return block, time.Now().UnixMilli(), true
}

// snapshot copies the pending messages without disturbing the buffer.
func (b *roomBuffer) snapshot() []models.Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]models.Message, len(b.messages))
	copy(out, b.messages)
	return out
}

// BufferSet owns the per-room buffers. Rooms must be registered explicitly;
// messages for unknown rooms are rejected rather than growing state.
type BufferSet struct {
	mu      sync.RWMutex
	buffers map[string]*roomBuffer
}

// NewBufferSet creates an empty buffer set.
func NewBufferSet() *BufferSet {
	return &BufferSet{buffers: make(map[string]*roomBuffer)}
}

// Register creates an empty buffer for roomID. Registering an existing room
// is a no-op and preserves any pending messages.
func (s *BufferSet) Register(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.buffers[roomID]; !ok {
		s.buffers[roomID] = &roomBuffer{}
	}
}

// Has reports whether roomID has a registered buffer.
func (s *BufferSet) Has(roomID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.buffers[roomID]
	return ok
}

// Append adds msg to roomID's buffer. It returns the drained block and its
// flush timestamp when the append hit blockSize, and ok=false when the room
// has no buffer.
func (s *BufferSet) Append(roomID string, msg models.Message, blockSize int) (block []models.Message, ts int64, flushed, ok bool) {
	s.mu.RLock()
	b := s.buffers[roomID]
	s.mu.RUnlock()

	if b == nil {
		return nil, 0, false, false
	}

	block, ts, flushed = b.append(msg, blockSize)
	return block, ts, flushed, true
}

// Snapshot returns a copy of roomID's pending messages. Unknown rooms yield
// an empty slice.
func (s *BufferSet) Snapshot(roomID string) []models.Message {
	s.mu.RLock()
	b := s.buffers[roomID]
	s.mu.RUnlock()

	if b == nil {
		return []models.Message{}
	}
	return b.snapshot()
}
