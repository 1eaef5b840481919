// Package chat implements the conversation engine: room lifecycle, message
// history, attachment parse/extract phases, and incremental streaming of
// assistant replies.
package chat

import (
	"github.com/ashureev/docchat/internal/domain"
)

// Fixed user-facing strings. These are observable behavior; keep them exact.
const (
	// parseFailedFallback replaces parsed text when document parsing fails.
	// Parsing failure degrades into "no usable text", it never blocks a send.
	parseFailedFallback = "[문서 파싱 실패]"

	// apologyMessage replaces an assistant reply that failed before any
	// fragment arrived. Partial replies are left as-is.
	apologyMessage = "죄송합니다. 응답을 생성하는 중 오류가 발생했습니다. 다시 시도해 주세요."

	// analyzeFileSuffix synthesizes display content for a file-only message.
	analyzeFileSuffix = " 파일을 분석해주세요."
)

// TurnState tracks which phase of a turn a room is in. Exactly one phase is
// active at a time; the zero value is Idle.
type TurnState int

const (
	// StateIdle means no turn phase is running for the room.
	StateIdle TurnState = iota
	// StateParsingFile means the document parse collaborator is running.
	StateParsingFile
	// StateExtracting means the schema-guided extraction is running.
	StateExtracting
	// StateStreaming means the assistant reply is streaming in.
	StateStreaming
)

// String implements fmt.Stringer for logging and status events.
func (s TurnState) String() string {
	switch s {
	case StateParsingFile:
		return "parsing_file"
	case StateExtracting:
		return "extracting"
	case StateStreaming:
		return "streaming"
	default:
		return "idle"
	}
}

// FileUpload is a file attached to an outgoing message.
type FileUpload struct {
	Name     string
	MIMEType string
	Size     int64
	Data     []byte
}

// SendRequest carries one turn's input.
type SendRequest struct {
	// RoomID selects the target room when set. When empty the currently
	// selected room is used, and a room is created implicitly if none is
	// selected.
	RoomID string
	// Content is the user's text. May be empty when File is set.
	Content string
	// File is an optional attachment.
	File *FileUpload
	// CreatorID attributes an implicitly created room.
	CreatorID string
}

// EventType identifies a TurnEvent variant.
type EventType string

const (
	// EventRoom announces the room the turn runs in (including implicit
	// creation). Always the first event of a turn.
	EventRoom EventType = "room"
	// EventStatus announces a phase change (parsing_file, extracting).
	EventStatus EventType = "status"
	// EventUserMessage carries the recorded user message.
	EventUserMessage EventType = "user_message"
	// EventToken carries one streamed reply fragment, in arrival order.
	EventToken EventType = "token"
	// EventDone carries the finalized assistant message. Always the last
	// event of a turn that got as far as opening the stream.
	EventDone EventType = "done"
)

// TurnEvent is one observable step of a SendMessage turn.
type TurnEvent struct {
	Type    EventType       `json:"type"`
	RoomID  string          `json:"room_id,omitempty"`
	Status  string          `json:"status,omitempty"`
	Content string          `json:"content,omitempty"`
	Message *domain.Message `json:"message,omitempty"`
}
