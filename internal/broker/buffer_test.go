package broker

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eldtechnologies/parlor/internal/models"
)

func TestAppendBelowThreshold(t *testing.T) {
	s := NewBufferSet()
	s.Register("r1")

	for i := 0; i < DefaultBlockSize-1; i++ {
		block, ts, flushed, ok := s.Append("r1", models.Message{Username: "alice", Text: fmt.Sprintf("m%d", i)}, DefaultBlockSize)
		require.True(t, ok)
		assert.False(t, flushed)
		assert.Nil(t, block)
		assert.Zero(t, ts)
	}

	assert.Len(t, s.Snapshot("r1"), DefaultBlockSize-1)
}

func TestFlushAtThreshold(t *testing.T) {
	s := NewBufferSet()
	s.Register("r1")

	var block []models.Message
	var blockTS int64
	flushCount := 0
	for i := 0; i < DefaultBlockSize; i++ {
		b, ts, flushed, ok := s.Append("r1", models.Message{Username: "alice", Text: fmt.Sprintf("m%d", i)}, DefaultBlockSize)
		require.True(t, ok)
		if flushed {
			flushCount++
			block = b
			blockTS = ts
		}
	}

	require.Equal(t, 1, flushCount, "exactly one flush for exactly blockSize appends")
	assert.Positive(t, blockTS)
	require.Len(t, block, DefaultBlockSize)
	for i, msg := range block {
		assert.Equal(t, fmt.Sprintf("m%d", i), msg.Text, "append order preserved")
	}
	assert.Empty(t, s.Snapshot("r1"), "buffer empty after flush")
}

func TestAppendUnknownRoom(t *testing.T) {
	s := NewBufferSet()

	_, _, _, ok := s.Append("ghost", models.Message{Username: "alice", Text: "hi"}, DefaultBlockSize)
	assert.False(t, ok, "unknown room must be rejected, not created")
	assert.Empty(t, s.Snapshot("ghost"))
}

func TestRegisterIsIdempotent(t *testing.T) {
	s := NewBufferSet()
	s.Register("r1")
	s.Append("r1", models.Message{Username: "alice", Text: "pending"}, DefaultBlockSize)

	s.Register("r1")
	assert.Len(t, s.Snapshot("r1"), 1, "re-registering must not drop pending messages")
}

func TestSnapshotIsACopy(t *testing.T) {
	s := NewBufferSet()
	s.Register("r1")
	s.Append("r1", models.Message{Username: "alice", Text: "one"}, DefaultBlockSize)

	snap := s.Snapshot("r1")
	snap[0].Text = "mutated"

	assert.Equal(t, "one", s.Snapshot("r1")[0].Text)
}

func TestConcurrentAppendsNeverLoseMessages(t *testing.T) {
	const (
		senders   = 8
		perSender = 250
		blockSize = 10
	)

	s := NewBufferSet()
	s.Register("r1")

	var mu sync.Mutex
	var flushedTotal int

	var wg sync.WaitGroup
	for g := 0; g < senders; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < perSender; i++ {
				block, _, flushed, ok := s.Append("r1", models.Message{Username: "u", Text: "x"}, blockSize)
				assert.True(t, ok)
				if flushed {
					assert.Len(t, block, blockSize, "every flushed block is exactly blockSize")
					mu.Lock()
					flushedTotal += len(block)
					mu.Unlock()
				}
			}
		}(g)
	}
	wg.Wait()

	total := senders * perSender
	remaining := len(s.Snapshot("r1"))
	assert.Equal(t, total, flushedTotal+remaining, "no message lost or double-counted")
	assert.Equal(t, total/blockSize*blockSize, flushedTotal)
}

func TestFlushTimestampsFollowDrainOrder(t *testing.T) {
	const (
		senders   = 8
		perSender = 200
		blockSize = 5
	)

	s := NewBufferSet()
	s.Register("r1")

	// Block timestamp per message text, recorded as blocks drain.
	var mu sync.Mutex
	blockTS := make(map[string]int64)

	var wg sync.WaitGroup
	for g := 0; g < senders; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < perSender; i++ {
				text := fmt.Sprintf("s%d-%d", g, i)
				block, ts, flushed, ok := s.Append("r1", models.Message{Username: "u", Text: text}, blockSize)
				assert.True(t, ok)
				if flushed {
					mu.Lock()
					for _, m := range block {
						blockTS[m.Text] = ts
					}
					mu.Unlock()
				}
			}
		}(g)
	}
	wg.Wait()

	// A sender's messages enter the buffer in send order, so the blocks
	// holding them drain in that order and must carry non-decreasing
	// timestamps. A later block stamped earlier would replay history out
	// of order.
	for g := 0; g < senders; g++ {
		var last int64
		for i := 0; i < perSender; i++ {
			ts, ok := blockTS[fmt.Sprintf("s%d-%d", g, i)]
			if !ok {
				continue // still buffered
			}
			assert.GreaterOrEqual(t, ts, last, "sender %d message %d stamped before an older block", g, i)
			last = ts
		}
	}
}
