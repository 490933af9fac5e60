package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eldtechnologies/parlor/internal/models"
)

// PostgresStore is the ConversationStore backend used when DATABASE_URL is
// configured.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to the database and ensures the schema exists.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	s := &PostgresStore{pool: pool}
	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return s, nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS rooms (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		image TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS users (
		username TEXT PRIMARY KEY,
		password_hash TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS conversations (
		id BIGSERIAL PRIMARY KEY,
		room_id TEXT NOT NULL,
		timestamp BIGINT NOT NULL,
		messages JSONB NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_conversations_room_ts
		ON conversations(room_id, timestamp);
	`

	_, err := s.pool.Exec(ctx, schema)
	return err
}

// Close closes the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// ListRooms returns every room.
func (s *PostgresStore) ListRooms(ctx context.Context) ([]models.Room, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, image FROM rooms ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []models.Room
	for rows.Next() {
		var room models.Room
		if err := rows.Scan(&room.ID, &room.Name, &room.Image); err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}

// GetRoom retrieves a room by ID.
func (s *PostgresStore) GetRoom(ctx context.Context, id string) (*models.Room, error) {
	room := &models.Room{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, image FROM rooms WHERE id = $1
	`, id).Scan(&room.ID, &room.Name, &room.Image)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return room, nil
}

// AddRoom creates a new room, assigning it a fresh ID.
func (s *PostgresStore) AddRoom(ctx context.Context, room models.Room) (*models.Room, error) {
	if room.Name == "" {
		return nil, ErrMissingName
	}

	room.ID = uuid.New().String()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO rooms (id, name, image) VALUES ($1, $2, $3)
	`, room.ID, room.Name, room.Image)
	if err != nil {
		return nil, err
	}
	return &room, nil
}

// GetUser retrieves a user by username.
func (s *PostgresStore) GetUser(ctx context.Context, username string) (*models.User, error) {
	user := &models.User{}
	err := s.pool.QueryRow(ctx, `
		SELECT username, password_hash FROM users WHERE username = $1
	`, username).Scan(&user.Username, &user.PasswordHash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return user, nil
}

// AddUser inserts or updates a user record.
func (s *PostgresStore) AddUser(ctx context.Context, user models.User) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (username, password_hash) VALUES ($1, $2)
		ON CONFLICT (username) DO UPDATE SET password_hash = EXCLUDED.password_hash
	`, user.Username, user.PasswordHash)
	return err
}

// AddConversation durably appends a flushed conversation block.
func (s *PostgresStore) AddConversation(ctx context.Context, conv models.Conversation) error {
	if conv.RoomID == "" || conv.Timestamp == 0 || conv.Messages == nil {
		return ErrMissingFields
	}

	data, err := json.Marshal(conv.Messages)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO conversations (room_id, timestamp, messages) VALUES ($1, $2, $3)
	`, conv.RoomID, conv.Timestamp, data)
	return err
}

// GetLastConversation returns the conversation for roomID with the largest
// timestamp strictly below before, or nil when none exists.
func (s *PostgresStore) GetLastConversation(ctx context.Context, roomID string, before int64) (*models.Conversation, error) {
	conv := &models.Conversation{}
	var raw []byte
	err := s.pool.QueryRow(ctx, `
		SELECT room_id, timestamp, messages FROM conversations
		WHERE room_id = $1 AND timestamp < $2
		ORDER BY timestamp DESC LIMIT 1
	`, roomID, before).Scan(&conv.RoomID, &conv.Timestamp, &raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(raw, &conv.Messages); err != nil {
		return nil, err
	}
	return conv, nil
}
