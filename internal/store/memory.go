package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/ashureev/docchat/internal/domain"
)

// MemoryStore implements Repository entirely in memory. It backs tests and
// ephemeral runs; reads return snapshots so callers never alias internal
// state.
type MemoryStore struct {
	mu       sync.RWMutex
	rooms    []*domain.ChatRoom // most recently created first
	roomByID map[string]*domain.ChatRoom
	messages map[string][]*domain.Message
}

// NewMemory creates an empty in-memory repository.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		roomByID: make(map[string]*domain.ChatRoom),
		messages: make(map[string][]*domain.Message),
	}
}

// CreateRoom inserts a new chat room at the front of the room list.
func (s *MemoryStore) CreateRoom(_ context.Context, room *domain.ChatRoom) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.roomByID[room.ID]; exists {
		return fmt.Errorf("room %s already exists", room.ID)
	}
	stored := *room
	s.rooms = append([]*domain.ChatRoom{&stored}, s.rooms...)
	s.roomByID[room.ID] = &stored
	s.messages[room.ID] = nil
	return nil
}

// GetRoom retrieves a room by id.
func (s *MemoryStore) GetRoom(_ context.Context, roomID string) (*domain.ChatRoom, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	room, ok := s.roomByID[roomID]
	if !ok {
		return nil, nil
	}
	snapshot := *room
	return &snapshot, nil
}

// ListRooms retrieves rooms for a creator, most recently created first.
func (s *MemoryStore) ListRooms(_ context.Context, creatorID string) ([]*domain.ChatRoom, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rooms := make([]*domain.ChatRoom, 0, len(s.rooms))
	for _, room := range s.rooms {
		if creatorID != "" && room.CreatorID != creatorID {
			continue
		}
		snapshot := *room
		rooms = append(rooms, &snapshot)
	}
	return rooms, nil
}

// UpdateRoomTitle sets a room's title while the optimistic guard holds.
func (s *MemoryStore) UpdateRoomTitle(_ context.Context, roomID, title, expectedTitle string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.roomByID[roomID]
	if !ok {
		return fmt.Errorf("room %s not found", roomID)
	}
	if room.Title != expectedTitle {
		return ErrStaleTitle
	}
	room.Title = title
	return nil
}

// AppendMessage appends a message to its room's history.
func (s *MemoryStore) AppendMessage(_ context.Context, msg *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *msg
	if msg.Attachment != nil {
		attachment := *msg.Attachment
		stored.Attachment = &attachment
	}
	s.messages[msg.RoomID] = append(s.messages[msg.RoomID], &stored)
	return nil
}

// ListMessages retrieves a room's messages in append order. Unknown rooms
// read as an empty list.
func (s *MemoryStore) ListMessages(_ context.Context, roomID string) ([]*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.messages[roomID]
	messages := make([]*domain.Message, 0, len(stored))
	for _, msg := range stored {
		snapshot := *msg
		if msg.Attachment != nil {
			attachment := *msg.Attachment
			snapshot.Attachment = &attachment
		}
		messages = append(messages, &snapshot)
	}
	return messages, nil
}

// AppendMessageContent grows a message's content by one streamed fragment.
func (s *MemoryStore) AppendMessageContent(_ context.Context, roomID, messageID, fragment string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, err := s.findMessage(roomID, messageID)
	if err != nil {
		return err
	}
	msg.Content += fragment
	return nil
}

// SetMessageContent replaces a message's content wholesale.
func (s *MemoryStore) SetMessageContent(_ context.Context, roomID, messageID, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, err := s.findMessage(roomID, messageID)
	if err != nil {
		return err
	}
	msg.Content = content
	return nil
}

// findMessage locates a message within a room. Callers hold s.mu.
func (s *MemoryStore) findMessage(roomID, messageID string) (*domain.Message, error) {
	for _, msg := range s.messages[roomID] {
		if msg.ID == messageID {
			return msg, nil
		}
	}
	return nil, fmt.Errorf("message %s not found in room %s", messageID, roomID)
}

// Ping always succeeds for the in-memory store.
func (s *MemoryStore) Ping(_ context.Context) error {
	return nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}

var _ Repository = (*MemoryStore)(nil)
