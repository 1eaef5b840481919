// Package store provides conversation persistence interfaces and implementations.
package store

import (
	"context"
	"errors"

	"github.com/ashureev/docchat/internal/domain"
)

// ErrStaleTitle is returned by UpdateRoomTitle when the room's current title
// no longer matches the expected one. Title assignment is one-shot; callers
// treat this as "already titled", not as a failure.
var ErrStaleTitle = errors.New("room title does not match expected title")

// Repository defines the interface for persisting chat rooms and messages.
// Within a room, message order is strictly append order; readers must treat
// "no messages yet" and "unknown room" identically.
type Repository interface {
	// CreateRoom inserts a new chat room.
	CreateRoom(ctx context.Context, room *domain.ChatRoom) error

	// GetRoom retrieves a room by id. Returns (nil, nil) when absent.
	GetRoom(ctx context.Context, roomID string) (*domain.ChatRoom, error)

	// ListRooms retrieves rooms for a creator, most recently created first.
	ListRooms(ctx context.Context, creatorID string) ([]*domain.ChatRoom, error)

	// UpdateRoomTitle sets a room's title only while the current title still
	// matches expectedTitle (optimistic one-shot assignment). Returns
	// ErrStaleTitle when the guard fails.
	UpdateRoomTitle(ctx context.Context, roomID, title, expectedTitle string) error

	// AppendMessage appends a message to its room's history.
	AppendMessage(ctx context.Context, msg *domain.Message) error

	// ListMessages retrieves a room's messages in append order. Unknown
	// rooms read as an empty list.
	ListMessages(ctx context.Context, roomID string) ([]*domain.Message, error)

	// AppendMessageContent grows a message's content in place by appending
	// one streamed fragment.
	AppendMessageContent(ctx context.Context, roomID, messageID, fragment string) error

	// SetMessageContent replaces a message's content wholesale.
	SetMessageContent(ctx context.Context, roomID, messageID, content string) error

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error

	// Close releases store resources.
	Close() error
}
