// Package upstage provides HTTP clients for the Upstage document AI APIs:
// streaming chat completions, document parse, OCR, and schema-guided
// information extraction.
package upstage

// ChatMessage is one role/content entry in an outbound chat payload.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Document is a file submitted to the parse, OCR, or extraction endpoints.
type Document struct {
	Name     string
	MIMEType string
	Data     []byte
}

// DocumentParseResult is the structured output of the document parse
// endpoint: whole-document text/HTML plus per-element metadata.
type DocumentParseResult struct {
	Content  DocumentContent   `json:"content"`
	Elements []DocumentElement `json:"elements"`
	Model    string            `json:"model"`
	Usage    PageUsage         `json:"usage"`
}

// DocumentContent holds the parsed document body in two renderings.
type DocumentContent struct {
	HTML string `json:"html"`
	Text string `json:"text"`
}

// DocumentElement is one layout element detected in a parsed document.
type DocumentElement struct {
	Category    string           `json:"category"`
	Content     DocumentContent  `json:"content"`
	Coordinates *ElementGeometry `json:"coordinates,omitempty"`
	Base64      string           `json:"base64,omitempty"`
}

// ElementGeometry locates an element on its page.
type ElementGeometry struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// PageUsage reports how many pages a digitization call consumed.
type PageUsage struct {
	Pages int `json:"pages"`
}

// OCRResult is the output of the OCR endpoint.
type OCRResult struct {
	Text  string    `json:"text"`
	Pages []OCRPage `json:"pages"`
	Model string    `json:"model"`
	Usage PageUsage `json:"usage"`
}

// OCRPage is the recognized text of one page with word-level geometry.
type OCRPage struct {
	Text  string    `json:"text"`
	Words []OCRWord `json:"words"`
}

// OCRWord is a single recognized word and its bounding box.
type OCRWord struct {
	Text        string    `json:"text"`
	BoundingBox []float64 `json:"boundingBox"`
}
