package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/eldtechnologies/parlor/internal/models"
)

// SQLiteStore is the default ConversationStore backend.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and if needed creates) the database at dbPath.
// If dbPath is empty, defaults to "./data/parlor.db".
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/parlor.db"
	}

	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(ctx); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS rooms (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		image TEXT DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS users (
		username TEXT PRIMARY KEY,
		password_hash TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS conversations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		room_id TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		messages TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_conversations_room_ts
		ON conversations(room_id, timestamp);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ListRooms returns every room.
func (s *SQLiteStore) ListRooms(ctx context.Context) ([]models.Room, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, image FROM rooms ORDER BY name`)
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
func (s *SQLiteStore) GetRoom(ctx context.Context, id string) (*models.Room, error) {
	room := &models.Room{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, image FROM rooms WHERE id = ?
	`, id).Scan(&room.ID, &room.Name, &room.Image)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return room, nil
}

// AddRoom creates a new room, assigning it a fresh ID. Fails with
// ErrMissingName when the name is absent.
func (s *SQLiteStore) AddRoom(ctx context.Context, room models.Room) (*models.Room, error) {
	if room.Name == "" {
		return nil, ErrMissingName
	}

	room.ID = uuid.New().String()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rooms (id, name, image) VALUES (?, ?, ?)
	`, room.ID, room.Name, room.Image)
	if err != nil {
		return nil, err
	}
	return &room, nil
}

// GetUser retrieves a user by username.
func (s *SQLiteStore) GetUser(ctx context.Context, username string) (*models.User, error) {
	user := &models.User{}
	err := s.db.QueryRowContext(ctx, `
		SELECT username, password_hash FROM users WHERE username = ?
	`, username).Scan(&user.Username, &user.PasswordHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return user, nil
}

// AddUser inserts or replaces a user record.
func (s *SQLiteStore) AddUser(ctx context.Context, user models.User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO users (username, password_hash) VALUES (?, ?)
	`, user.Username, user.PasswordHash)
	return err
}

// AddConversation durably appends a flushed conversation block. Fails with
// ErrMissingFields when roomId, timestamp or messages is absent.
func (s *SQLiteStore) AddConversation(ctx context.Context, conv models.Conversation) error {
	if conv.RoomID == "" || conv.Timestamp == 0 || conv.Messages == nil {
		return ErrMissingFields
	}

	data, err := json.Marshal(conv.Messages)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversations (room_id, timestamp, messages) VALUES (?, ?, ?)
	`, conv.RoomID, conv.Timestamp, string(data))
	return err
}

// GetLastConversation returns the conversation for roomID with the largest
// timestamp strictly below before, or nil when none exists.
func (s *SQLiteStore) GetLastConversation(ctx context.Context, roomID string, before int64) (*models.Conversation, error) {
	conv := &models.Conversation{}
	var raw string
	err := s.db.QueryRowContext(ctx, `
		SELECT room_id, timestamp, messages FROM conversations
		WHERE room_id = ? AND timestamp < ?
		ORDER BY timestamp DESC LIMIT 1
	`, roomID, before).Scan(&conv.RoomID, &conv.Timestamp, &raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	if err := json.Unmarshal([]byte(raw), &conv.Messages); err != nil {
		return nil, err
	}
	return conv, nil
}
