package parlor

import "time"

// HistoryLoader walks a room's conversation blocks backward, one block per
// Pull. It mirrors the UI's scroll-to-top backfill: each Pull is triggered
// externally and prepends one block of older messages, until the room's
// history is exhausted.
type HistoryLoader struct {
	client *Client
	roomID string
	cursor int64
	more   bool
}

// NewHistoryLoader starts a loader at the current time, so the first Pull
// returns the most recent block.
func (c *Client) NewHistoryLoader(roomID string) *HistoryLoader {
	return &HistoryLoader{
		client: c,
		roomID: roomID,
		cursor: time.Now().UnixMilli(),
		more:   true,
	}
}

// HasMore reports whether another Pull may return history. It starts true
// and latches false once a Pull comes back empty.
func (l *HistoryLoader) HasMore() bool {
	return l.more
}

// Pull fetches the next older conversation block and advances the cursor
// to its timestamp. It returns nil once history is exhausted; transport
// errors leave the cursor unchanged so the same Pull can be retried.
func (l *HistoryLoader) Pull() (*Conversation, error) {
	if !l.more {
		return nil, nil
	}

	conv, err := l.client.ConversationBefore(l.roomID, l.cursor)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		l.more = false
		return nil, nil
	}

	l.cursor = conv.Timestamp
	return conv, nil
}
