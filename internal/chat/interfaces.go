package chat

import (
	"context"
	"iter"

	"github.com/ashureev/docchat/internal/extraction"
	"github.com/ashureev/docchat/internal/upstage"
)

// DocumentParser extracts plain text from an uploaded file.
type DocumentParser interface {
	ParseDocument(ctx context.Context, doc upstage.Document) (*upstage.DocumentParseResult, error)
}

// Extractor runs schema-guided field extraction on an uploaded file.
type Extractor interface {
	Extract(ctx context.Context, doc upstage.Document, schema extraction.Schema) (*extraction.ExtractionResult, error)
}

// ChatStreamer opens a streaming chat completion and yields reply fragments.
type ChatStreamer interface {
	StreamChat(ctx context.Context, messages []upstage.ChatMessage) iter.Seq2[string, error]
}

// Ensure the Upstage client satisfies all three collaborator roles.
var (
	_ DocumentParser = (*upstage.Client)(nil)
	_ Extractor      = (*upstage.Client)(nil)
	_ ChatStreamer   = (*upstage.Client)(nil)
)
