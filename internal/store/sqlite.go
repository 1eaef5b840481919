package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ashureev/docchat/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS rooms (
		room_id TEXT PRIMARY KEY,
		creator_id TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_rooms_created ON rooms(created_at);

	CREATE TABLE IF NOT EXISTS messages (
		message_id TEXT PRIMARY KEY,
		room_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		attachment_json TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_messages_room ON messages(room_id);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateRoom inserts a new chat room.
func (s *SQLiteStore) CreateRoom(ctx context.Context, room *domain.ChatRoom) error {
	query := `INSERT INTO rooms (room_id, creator_id, title, created_at) VALUES (?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		room.ID, room.CreatorID, room.Title, room.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert room: %w", err)
	}
	return nil
}

// GetRoom retrieves a room by id. Returns (nil, nil) when absent.
func (s *SQLiteStore) GetRoom(ctx context.Context, roomID string) (*domain.ChatRoom, error) {
	query := `SELECT room_id, creator_id, title, created_at FROM rooms WHERE room_id = ?`
	row := s.db.QueryRowContext(ctx, query, roomID)

	var room domain.ChatRoom
	var createdAt int64
	err := row.Scan(&room.ID, &room.CreatorID, &room.Title, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan room row: %w", err)
	}

	room.CreatedAt = time.UnixMilli(createdAt)
	return &room, nil
}

// ListRooms retrieves rooms for a creator, most recently created first.
func (s *SQLiteStore) ListRooms(ctx context.Context, creatorID string) ([]*domain.ChatRoom, error) {
	query := `SELECT room_id, creator_id, title, created_at FROM rooms`
	args := []interface{}{}
	if creatorID != "" {
		query += ` WHERE creator_id = ?`
		args = append(args, creatorID)
	}
	query += ` ORDER BY created_at DESC, rowid DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query rooms: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close rooms rows", "error", closeErr)
		}
	}()

	rooms := []*domain.ChatRoom{}
	for rows.Next() {
		var room domain.ChatRoom
		var createdAt int64
		if err := rows.Scan(&room.ID, &room.CreatorID, &room.Title, &createdAt); err != nil {
			return nil, fmt.Errorf("scan room row: %w", err)
		}
		room.CreatedAt = time.UnixMilli(createdAt)
		rooms = append(rooms, &room)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rooms: %w", err)
	}
	return rooms, nil
}

// UpdateRoomTitle sets a room's title while the optimistic guard holds.
func (s *SQLiteStore) UpdateRoomTitle(ctx context.Context, roomID, title, expectedTitle string) error {
	query := `UPDATE rooms SET title = ? WHERE room_id = ? AND title = ?`
	result, err := s.db.ExecContext(ctx, query, title, roomID, expectedTitle)
	if err != nil {
		return fmt.Errorf("update room title: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrStaleTitle
	}
	return nil
}

// AppendMessage appends a message to its room's history.
func (s *SQLiteStore) AppendMessage(ctx context.Context, msg *domain.Message) error {
	var attachmentJSON interface{}
	if msg.Attachment != nil {
		data, err := json.Marshal(msg.Attachment)
		if err != nil {
			return fmt.Errorf("marshal attachment: %w", err)
		}
		attachmentJSON = string(data)
	}

	query := `
		INSERT INTO messages (message_id, room_id, role, content, created_at, attachment_json)
		VALUES (?, ?, ?, ?, ?, ?)`
	err := s.execWithRetry(ctx, query,
		msg.ID, msg.RoomID, string(msg.Role), msg.Content,
		msg.CreatedAt.UnixMilli(), attachmentJSON,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// ListMessages retrieves a room's messages in append order. Unknown rooms
// read as an empty list.
func (s *SQLiteStore) ListMessages(ctx context.Context, roomID string) ([]*domain.Message, error) {
	query := `
		SELECT message_id, room_id, role, content, created_at, attachment_json
		FROM messages WHERE room_id = ? ORDER BY rowid`

	rows, err := s.db.QueryContext(ctx, query, roomID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close messages rows", "error", closeErr)
		}
	}()

	messages := []*domain.Message{}
	for rows.Next() {
		var msg domain.Message
		var role string
		var createdAt int64
		var attachmentJSON sql.NullString

		if err := rows.Scan(&msg.ID, &msg.RoomID, &role, &msg.Content, &createdAt, &attachmentJSON); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		msg.Role = domain.Role(role)
		msg.CreatedAt = time.UnixMilli(createdAt)

		if attachmentJSON.Valid && attachmentJSON.String != "" {
			var attachment domain.FileAttachment
			if err := json.Unmarshal([]byte(attachmentJSON.String), &attachment); err != nil {
				return nil, fmt.Errorf("unmarshal attachment: %w", err)
			}
			msg.Attachment = &attachment
		}
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}

// AppendMessageContent grows a message's content by one streamed fragment.
// Fragments arrive in a tight loop during streaming, so SQLITE_BUSY gets a
// bounded retry rather than failing the turn.
func (s *SQLiteStore) AppendMessageContent(ctx context.Context, roomID, messageID, fragment string) error {
	query := `UPDATE messages SET content = content || ? WHERE message_id = ? AND room_id = ?`
	if err := s.execWithRetry(ctx, query, fragment, messageID, roomID); err != nil {
		return fmt.Errorf("append message content: %w", err)
	}
	return nil
}

// SetMessageContent replaces a message's content wholesale.
func (s *SQLiteStore) SetMessageContent(ctx context.Context, roomID, messageID, content string) error {
	query := `UPDATE messages SET content = ? WHERE message_id = ? AND room_id = ?`
	if err := s.execWithRetry(ctx, query, content, messageID, roomID); err != nil {
		return fmt.Errorf("set message content: %w", err)
	}
	return nil
}

// execWithRetry executes a write with exponential backoff on SQLite
// concurrency errors (SQLITE_BUSY / "database is locked").
func (s *SQLiteStore) execWithRetry(ctx context.Context, query string, args ...interface{}) error {
	maxRetries := 3
	baseDelay := 100 * time.Millisecond

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		_, err := s.db.ExecContext(ctx, query, args...)
		if err == nil {
			return nil
		}
		lastErr = err

		if !isSQLiteConflict(err) || i == maxRetries-1 {
			return err
		}
		delay := baseDelay * time.Duration(1<<i)
		slog.Debug("sqlite write conflict, retrying", "attempt", i+1, "delay", delay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return lastErr
}

func isSQLiteConflict(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

var _ Repository = (*SQLiteStore)(nil)
