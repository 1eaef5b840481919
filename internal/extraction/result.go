package extraction

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractionResult is the chat-completion-shaped envelope returned by the
// information extraction service. The first choice's message content is a
// JSON-encoded object conforming to the submitted schema.
type ExtractionResult struct {
	ID      string             `json:"id"`
	Choices []ExtractionChoice `json:"choices"`
	Model   string             `json:"model"`
	Usage   ExtractionUsage    `json:"usage"`
}

// ExtractionChoice is one completion choice in an extraction response.
type ExtractionChoice struct {
	FinishReason string            `json:"finish_reason"`
	Message      ExtractionMessage `json:"message"`
}

// ExtractionMessage carries the JSON-encoded extraction payload.
type ExtractionMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ExtractionUsage reports token accounting for an extraction call.
type ExtractionUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Field is one extracted key/value pair.
type Field struct {
	Key   string
	Value any
}

// Fields is an ordered field mapping. Order matches the key order of the
// JSON object it was parsed from, so rendering preserves the extraction
// service's field ordering.
type Fields []Field

// MarshalJSON renders the fields as a JSON object in order.
func (f Fields) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, field := range f {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(field.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		value, err := json.Marshal(field.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON parses a JSON object into ordered fields.
func (f *Fields) UnmarshalJSON(data []byte) error {
	fields, err := decodeOrderedObject(json.NewDecoder(bytes.NewReader(data)))
	if err != nil {
		return err
	}
	*f = fields
	return nil
}

// ParseExtractionResult extracts the field mapping embedded in an extraction
// response. Malformed or absent content is treated as "no data": the result
// is nil, never an error.
func ParseExtractionResult(result *ExtractionResult) Fields {
	if result == nil || len(result.Choices) == 0 {
		return nil
	}
	content := result.Choices[0].Message.Content
	if content == "" {
		return nil
	}

	dec := json.NewDecoder(strings.NewReader(content))
	fields, err := decodeOrderedObject(dec)
	if err != nil {
		return nil
	}
	return fields
}

// decodeOrderedObject reads one JSON object from dec, preserving key order.
func decodeOrderedObject(dec *json.Decoder) (Fields, error) {
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected JSON object, got %v", tok)
	}

	fields := Fields{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("expected object key, got %v", keyTok)
		}
		var value any
		if err := dec.Decode(&value); err != nil {
			return nil, err
		}
		fields = append(fields, Field{Key: key, Value: value})
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return fields, nil
}
