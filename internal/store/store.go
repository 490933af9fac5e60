package store

import (
	"context"
	"errors"

	"github.com/eldtechnologies/parlor/internal/models"
)

// Validation failures reported to callers as client errors. The store is
// left unchanged when these are returned.
var (
	ErrMissingName   = errors.New("room name not provided")
	ErrMissingFields = errors.New("conversation is missing required fields")
)

// ConversationStore is the durable home of rooms, users and flushed
// conversation blocks. SQLiteStore and PostgresStore implement it.
// Lookups return (nil, nil) when nothing matches.
type ConversationStore interface {
	Close()
	Ping(ctx context.Context) error

	// Room operations
	ListRooms(ctx context.Context) ([]models.Room, error)
	GetRoom(ctx context.Context, id string) (*models.Room, error)
	AddRoom(ctx context.Context, room models.Room) (*models.Room, error)

	// User operations
	GetUser(ctx context.Context, username string) (*models.User, error)
	AddUser(ctx context.Context, user models.User) error

	// Conversation operations
	AddConversation(ctx context.Context, conv models.Conversation) error
	GetLastConversation(ctx context.Context, roomID string, before int64) (*models.Conversation, error)
}
