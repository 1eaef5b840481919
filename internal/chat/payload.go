package chat

import (
	"fmt"
	"strings"

	"github.com/ashureev/docchat/internal/domain"
	"github.com/ashureev/docchat/internal/extraction"
	"github.com/ashureev/docchat/internal/upstage"
)

// displayContent is what gets recorded and shown for the user message. A
// file-only send synthesizes a request to analyze the file.
func displayContent(content string, file *FileUpload) string {
	if content == "" && file != nil {
		return file.Name + analyzeFileSuffix
	}
	return content
}

// buildTurnPayload composes the model-facing content for the current turn.
// Attachment context (file marker, parsed text, extracted fields) is inlined
// ahead of the user's question so the model sees the document it is asked
// about. An attachment that produced neither parsed text nor extracted
// fields adds nothing; the display content goes out verbatim.
func buildTurnPayload(display string, file *FileUpload, parsed string, fields extraction.Fields) string {
	if file == nil || (parsed == "" && len(fields) == 0) {
		return display
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[첨부 파일: %s]\n\n", file.Name)
	if parsed != "" {
		fmt.Fprintf(&b, "파일 내용:\n%s\n\n", parsed)
	}
	if len(fields) > 0 {
		fmt.Fprintf(&b, "추출된 정보:\n%s\n\n", extraction.FormatExtractedData(fields))
	}
	fmt.Fprintf(&b, "사용자 질문: %s", display)
	return b.String()
}

// historyPayload renders a stored message for replay in a chat request. User
// messages that carried a parsed attachment are re-expanded so earlier
// documents stay visible to the model across turns.
func historyPayload(msg *domain.Message) string {
	if msg.Role == domain.RoleUser && msg.Attachment != nil && msg.Attachment.ParsedContent != "" {
		return fmt.Sprintf("[첨부 파일: %s]\n\n파일 내용:\n%s\n\n사용자 질문: %s",
			msg.Attachment.Name, msg.Attachment.ParsedContent, msg.Content)
	}
	return msg.Content
}

// buildChatMessages assembles the full request history: prior messages first,
// then the current turn's composed payload.
func buildChatMessages(history []*domain.Message, turnPayload string) []upstage.ChatMessage {
	messages := make([]upstage.ChatMessage, 0, len(history)+1)
	for _, msg := range history {
		messages = append(messages, upstage.ChatMessage{
			Role:    string(msg.Role),
			Content: historyPayload(msg),
		})
	}
	messages = append(messages, upstage.ChatMessage{
		Role:    string(domain.RoleUser),
		Content: turnPayload,
	})
	return messages
}
