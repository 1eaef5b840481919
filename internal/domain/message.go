package domain

import (
	"strings"
	"time"

	"github.com/ashureev/docchat/internal/extraction"
)

// Role identifies the author of a chat message.
type Role string

const (
	// RoleUser marks a message authored by the user.
	RoleUser Role = "user"
	// RoleAssistant marks a model-generated reply.
	RoleAssistant Role = "assistant"
	// RoleSystem marks an instruction message in an outbound payload.
	RoleSystem Role = "system"
)

// Message is a single entry in a chat room's history. Messages are
// append-only; only the most recent assistant message grows in place while
// its reply streams in.
type Message struct {
	ID         string          `json:"id"`
	RoomID     string          `json:"room_id"`
	Role       Role            `json:"role"`
	Content    string          `json:"content"`
	CreatedAt  time.Time       `json:"created_at"`
	Attachment *FileAttachment `json:"attachment,omitempty"`
}

// FileAttachment carries file metadata plus optionally parsed text and
// optionally extracted structured fields. Immutable once its message is
// recorded; parse and extraction results are filled in beforehand.
type FileAttachment struct {
	Name          string            `json:"name"`
	MIMEType      string            `json:"type"`
	Size          int64             `json:"size"`
	ParsedContent string            `json:"parsed_content,omitempty"`
	ExtractedData extraction.Fields `json:"extracted_data,omitempty"`
}

// IsImage reports whether the attachment is image-typed. Image attachments
// with accompanying text are eligible for schema-guided extraction.
func (a *FileAttachment) IsImage() bool {
	return strings.HasPrefix(a.MIMEType, "image/")
}

// documentMIMETypes lists the non-image MIME types accepted for parsing.
var documentMIMETypes = map[string]struct{}{
	"application/pdf":    {},
	"application/msword": {},
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": {},
	"application/vnd.ms-excel": {},
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": {},
	"application/vnd.ms-powerpoint":                                     {},
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": {},
}

// IsDocument reports whether the attachment is a parseable document or image.
func (a *FileAttachment) IsDocument() bool {
	if a.IsImage() {
		return true
	}
	_, ok := documentMIMETypes[a.MIMEType]
	return ok
}
