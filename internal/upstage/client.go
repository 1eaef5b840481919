package upstage

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/ashureev/docchat/internal/extraction"
)

const (
	// DefaultBaseURL is the Upstage API root.
	DefaultBaseURL = "https://api.upstage.ai/v1"
	// DefaultChatModel is the chat completion model.
	DefaultChatModel = "solar-pro2"

	documentParseModel = "document-parse"
	ocrModel           = "ocr"
	extractionModel    = "information-extract"

	// maxErrorBodyBytes caps how much of an error payload gets wrapped
	// into the returned error.
	maxErrorBodyBytes = 2048
)

var errUnexpectedStatus = errors.New("unexpected status")

// Config holds Upstage client configuration.
type Config struct {
	APIKey    string
	BaseURL   string
	ChatModel string
	// HTTPClient overrides the transport. The default client carries no
	// overall timeout: chat streams are unbounded and cancellation is the
	// caller's responsibility via ctx.
	HTTPClient *http.Client
}

// Client calls the Upstage HTTP APIs.
type Client struct {
	apiKey     string
	baseURL    string
	chatModel  string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new Upstage API client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	chatModel := cfg.ChatModel
	if chatModel == "" {
		chatModel = DefaultChatModel
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		chatModel:  chatModel,
		httpClient: httpClient,
		logger:     logger,
	}
}

// ParseDocument submits a file to the document parse endpoint and returns
// its structured text content.
func (c *Client) ParseDocument(ctx context.Context, doc Document) (*DocumentParseResult, error) {
	var result DocumentParseResult
	if err := c.digitize(ctx, doc, documentParseModel, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// OCR submits a file to the OCR endpoint.
func (c *Client) OCR(ctx context.Context, doc Document) (*OCRResult, error) {
	var result OCRResult
	if err := c.digitize(ctx, doc, ocrModel, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// digitize posts a multipart document to the shared digitization endpoint
// with the given model and decodes the response into out.
func (c *Client) digitize(ctx context.Context, doc Document, model string, out any) error {
	body, contentType, err := documentForm(doc, model)
	if err != nil {
		return fmt.Errorf("build %s form: %w", model, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/document-digitization", body)
	if err != nil {
		return fmt.Errorf("build %s request: %w", model, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", model, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Warn("failed to close response body", "endpoint", model, "error", closeErr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return c.statusError(model, resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", model, err)
	}
	return nil
}

// extractionRequest is the chat-completion-shaped extraction call body.
type extractionRequest struct {
	Model          string             `json:"model"`
	Messages       []extractionTurn   `json:"messages"`
	ResponseFormat jsonSchemaEnvelope `json:"response_format"`
}

type extractionTurn struct {
	Role    string            `json:"role"`
	Content []extractionImage `json:"content"`
}

type extractionImage struct {
	Type     string       `json:"type"`
	ImageURL extractedURL `json:"image_url"`
}

type extractedURL struct {
	URL string `json:"url"`
}

type jsonSchemaEnvelope struct {
	Type       string         `json:"type"`
	JSONSchema jsonSchemaBody `json:"json_schema"`
}

type jsonSchemaBody struct {
	Name   string            `json:"name"`
	Schema extraction.Schema `json:"schema"`
}

// Extract submits a file and a schema to the information extraction endpoint.
// The file travels as a base64 data URL inside a single user message; the
// schema rides in response_format so the service returns a conforming JSON
// object as the first choice's message content.
func (c *Client) Extract(ctx context.Context, doc Document, schema extraction.Schema) (*extraction.ExtractionResult, error) {
	mimeType := doc.MIMEType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	reqBody := extractionRequest{
		Model: extractionModel,
		Messages: []extractionTurn{
			{
				Role: "user",
				Content: []extractionImage{
					{
						Type: "image_url",
						ImageURL: extractedURL{
							URL: "data:" + mimeType + ";base64," +
								base64.StdEncoding.EncodeToString(doc.Data),
						},
					},
				},
			},
		},
		ResponseFormat: jsonSchemaEnvelope{
			Type: "json_schema",
			JSONSchema: jsonSchemaBody{
				Name:   "document_schema",
				Schema: schema,
			},
		},
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal extraction request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/information-extraction/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build extraction request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("extraction request failed: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Warn("failed to close response body", "endpoint", "extraction", "error", closeErr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError("extraction", resp)
	}

	var result extraction.ExtractionResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode extraction response: %w", err)
	}
	return &result, nil
}

// documentForm builds a multipart body with the document bytes under the
// "document" field and the model name alongside, preserving the file's
// declared MIME type on its part header.
func documentForm(doc Document, model string) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="document"; filename="%s"`, escapeQuotes(doc.Name)))
	contentType := doc.MIMEType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(doc.Data); err != nil {
		return nil, "", err
	}
	if err := writer.WriteField("model", model); err != nil {
		return nil, "", err
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return body, writer.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

// statusError wraps a non-success response, carrying a bounded slice of the
// error payload for diagnostics.
func (c *Client) statusError(endpoint string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	detail := strings.TrimSpace(string(body))
	if detail == "" {
		return fmt.Errorf("%s: %w %s", endpoint, errUnexpectedStatus, resp.Status)
	}
	return fmt.Errorf("%s: %w %s: %s", endpoint, errUnexpectedStatus, resp.Status, detail)
}
