// Package domain contains core domain types for the docchat application.
package domain

import (
	"time"
)

const (
	// PlaceholderTitle is the title a room carries until its first user
	// message arrives. Title assignment happens at most once per room.
	PlaceholderTitle = "새 채팅"

	// titleRuneLimit caps derived room titles before the ellipsis marker.
	titleRuneLimit = 30
)

// ChatRoom is a conversation thread with its own message history and title.
type ChatRoom struct {
	ID        string    `json:"id"`
	CreatorID string    `json:"-"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// HasPlaceholderTitle reports whether the room still awaits its one-shot
// title assignment.
func (r *ChatRoom) HasPlaceholderTitle() bool {
	return r.Title == PlaceholderTitle
}

// TitleFromContent derives a room title from the first user input,
// truncating to 30 characters with an ellipsis marker when longer.
// Truncation counts runes, not bytes; titles are frequently Korean.
func TitleFromContent(content string) string {
	runes := []rune(content)
	if len(runes) > titleRuneLimit {
		return string(runes[:titleRuneLimit]) + "..."
	}
	return content
}

// AttachmentTitle synthesizes a title source for a file-only first message.
func AttachmentTitle(filename string) string {
	return "📎 " + filename
}
