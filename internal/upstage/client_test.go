package upstage

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ashureev/docchat/internal/extraction"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{
		APIKey:  "test-key",
		BaseURL: srv.URL,
	}, nil)
}

func TestStreamChatYieldsFragmentsInOrder(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", got)
		}

		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		if req["model"] != DefaultChatModel {
			t.Errorf("unexpected model %v", req["model"])
		}
		if req["reasoning_effort"] != "high" {
			t.Errorf("unexpected reasoning effort %v", req["reasoning_effort"])
		}
		if req["stream"] != true {
			t.Errorf("expected stream flag")
		}

		w.Header().Set("Content-Type", "text/event-stream")
		for _, content := range []string{"안녕", "하세요", "!"} {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", content)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	var got []string
	for fragment, err := range client.StreamChat(context.Background(), []ChatMessage{{Role: "user", Content: "hi"}}) {
		if err != nil {
			t.Fatalf("unexpected stream error: %v", err)
		}
		got = append(got, fragment)
	}
	if strings.Join(got, "") != "안녕하세요!" {
		t.Fatalf("unexpected fragments: %v", got)
	}
}

func TestStreamChatSkipsMalformedFramesAndEmptyDeltas(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "data: {not json}\n\n")
		fmt.Fprint(w, ": keepalive comment\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"ok\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	var got []string
	for fragment, err := range client.StreamChat(context.Background(), nil) {
		if err != nil {
			t.Fatalf("unexpected stream error: %v", err)
		}
		got = append(got, fragment)
	}
	if len(got) != 1 || got[0] != "ok" {
		t.Fatalf("unexpected fragments: %v", got)
	}
}

func TestStreamChatErrorStatus(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
	})

	var gotErr error
	for _, err := range client.StreamChat(context.Background(), nil) {
		if err != nil {
			gotErr = err
			break
		}
	}
	if gotErr == nil || !strings.Contains(gotErr.Error(), "rate limited") {
		t.Fatalf("expected status error with body detail, got %v", gotErr)
	}
}

func TestParseDocumentSubmitsMultipart(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/document-digitization" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("failed to parse multipart: %v", err)
		}
		if got := r.FormValue("model"); got != "document-parse" {
			t.Errorf("unexpected model field %q", got)
		}
		file, header, err := r.FormFile("document")
		if err != nil {
			t.Errorf("missing document part: %v", err)
		} else {
			defer func() { _ = file.Close() }()
			if header.Filename != "report.pdf" {
				t.Errorf("unexpected filename %q", header.Filename)
			}
			if got := header.Header.Get("Content-Type"); got != "application/pdf" {
				t.Errorf("unexpected part content type %q", got)
			}
		}

		_ = json.NewEncoder(w).Encode(DocumentParseResult{
			Content: DocumentContent{Text: "파싱된 텍스트"},
			Usage:   PageUsage{Pages: 1},
		})
	})

	result, err := client.ParseDocument(context.Background(), Document{
		Name:     "report.pdf",
		MIMEType: "application/pdf",
		Data:     []byte("%PDF-1.4"),
	})
	if err != nil {
		t.Fatalf("ParseDocument failed: %v", err)
	}
	if result.Content.Text != "파싱된 텍스트" {
		t.Fatalf("unexpected parse result: %+v", result)
	}
}

func TestOCRUsesOCRModel(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("failed to parse multipart: %v", err)
		}
		if got := r.FormValue("model"); got != "ocr" {
			t.Errorf("unexpected model field %q", got)
		}
		_ = json.NewEncoder(w).Encode(OCRResult{Text: "인식된 텍스트"})
	})

	result, err := client.OCR(context.Background(), Document{Name: "scan.png", MIMEType: "image/png", Data: []byte("x")})
	if err != nil {
		t.Fatalf("OCR failed: %v", err)
	}
	if result.Text != "인식된 텍스트" {
		t.Fatalf("unexpected OCR result: %+v", result)
	}
}

func TestExtractSendsSchemaAndDataURL(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/information-extraction/chat/completions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content []struct {
					Type     string `json:"type"`
					ImageURL struct {
						URL string `json:"url"`
					} `json:"image_url"`
				} `json:"content"`
			} `json:"messages"`
			ResponseFormat struct {
				Type       string `json:"type"`
				JSONSchema struct {
					Name   string            `json:"name"`
					Schema extraction.Schema `json:"schema"`
				} `json:"json_schema"`
			} `json:"response_format"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		if req.Model != "information-extract" {
			t.Errorf("unexpected model %q", req.Model)
		}
		if req.ResponseFormat.Type != "json_schema" || req.ResponseFormat.JSONSchema.Name != "document_schema" {
			t.Errorf("unexpected response format: %+v", req.ResponseFormat)
		}
		if _, ok := req.ResponseFormat.JSONSchema.Schema.Properties["balance"]; !ok {
			t.Errorf("expected schema to carry balance property: %+v", req.ResponseFormat.JSONSchema.Schema)
		}
		url := req.Messages[0].Content[0].ImageURL.URL
		if !strings.HasPrefix(url, "data:image/png;base64,") {
			t.Errorf("expected base64 data URL with mime type, got %q", url)
		}

		_ = json.NewEncoder(w).Encode(extraction.ExtractionResult{
			Choices: []extraction.ExtractionChoice{
				{Message: extraction.ExtractionMessage{Content: `{"balance":"1,000원"}`}},
			},
		})
	})

	schema := extraction.SchemaFromQuery("잔액 알려줘")
	result, err := client.Extract(context.Background(), Document{Name: "scan.png", MIMEType: "image/png", Data: []byte("img")}, schema)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	fields := extraction.ParseExtractionResult(result)
	if len(fields) != 1 || fields[0].Key != "balance" {
		t.Fatalf("unexpected extraction fields: %+v", fields)
	}
}

func TestClientDefaults(t *testing.T) {
	t.Parallel()

	client := NewClient(Config{APIKey: "k"}, nil)
	if client.baseURL != DefaultBaseURL {
		t.Fatalf("unexpected default base URL %q", client.baseURL)
	}
	if client.chatModel != DefaultChatModel {
		t.Fatalf("unexpected default chat model %q", client.chatModel)
	}

	trimmed := NewClient(Config{APIKey: "k", BaseURL: "https://example.com/v1/"}, nil)
	if trimmed.baseURL != "https://example.com/v1" {
		t.Fatalf("expected trailing slash trimmed, got %q", trimmed.baseURL)
	}
}
