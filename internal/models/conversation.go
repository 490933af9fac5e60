package models

// Message is a single chat message. Text is stored and broadcast in its
// HTML-escaped form.
type Message struct {
	Username string `json:"username"`
	Text     string `json:"text"`
}

// Conversation is an immutable, fixed-size block of messages flushed from a
// room's buffer. Timestamp is the flush time in Unix milliseconds and orders
// blocks within a room.
type Conversation struct {
	RoomID    string    `json:"roomId"`
	Timestamp int64     `json:"timestamp"`
	Messages  []Message `json:"messages"`
}
