package chat

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
)

// ConversationLogger records chat traffic for offline inspection.
type ConversationLogger interface {
	Log(event ConversationLogEvent)
	Close() error
}

// ConversationLogEvent is one NDJSON record of conversation traffic.
type ConversationLogEvent struct {
	Timestamp    string `json:"timestamp"`
	UserID       string `json:"user_id"`
	RoomID       string `json:"room_id"`
	Channel      string `json:"channel"`
	Direction    string `json:"direction"`
	EventType    string `json:"event_type"`
	Attachment   string `json:"attachment,omitempty"`
	ContentRaw   string `json:"content_raw"`
	Content      string `json:"content"`
	StreamChunks int    `json:"stream_chunks,omitempty"`
	Partial      bool   `json:"partial,omitempty"`
	Error        string `json:"error,omitempty"`
}

// ConversationLogConfig controls where conversation records are written.
type ConversationLogConfig struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
}

type noopConversationLogger struct{}

func (noopConversationLogger) Log(ConversationLogEvent) {}
func (noopConversationLogger) Close() error             { return nil }

// NewNoopConversationLogger returns a logger that discards every event.
func NewNoopConversationLogger() ConversationLogger {
	return noopConversationLogger{}
}

// fileConversationLogger writes events asynchronously: one NDJSON file per
// user/room pair under Dir, plus an optional global file. Events are dropped
// (with a warning) when the queue is full so logging never stalls a turn.
type fileConversationLogger struct {
	cfg    ConversationLogConfig
	logger *slog.Logger
	queue  chan ConversationLogEvent
	done   chan struct{}
	once   sync.Once
}

// NewConversationLogger creates the async NDJSON logger. Returns the noop
// logger when neither per-room nor global logging is enabled.
func NewConversationLogger(cfg ConversationLogConfig, logger *slog.Logger) (ConversationLogger, error) {
	if !cfg.Enabled && !cfg.GlobalEnabled {
		return noopConversationLogger{}, nil
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.Enabled {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("create conversation log dir: %w", err)
		}
	}
	if cfg.GlobalEnabled {
		if err := os.MkdirAll(filepath.Dir(cfg.GlobalPath), 0o755); err != nil {
			return nil, fmt.Errorf("create global conversation log dir: %w", err)
		}
	}

	l := &fileConversationLogger{
		cfg:    cfg,
		logger: logger,
		queue:  make(chan ConversationLogEvent, cfg.QueueSize),
		done:   make(chan struct{}),
	}
	go l.run()
	return l, nil
}

// Log enqueues an event without blocking the caller.
func (l *fileConversationLogger) Log(event ConversationLogEvent) {
	if event.Content == "" {
		event.Content = cleanForReadability(event.ContentRaw)
	}
	select {
	case l.queue <- event:
	default:
		l.logger.Warn("conversation log queue full, dropping event",
			"user_id", event.UserID, "room_id", event.RoomID, "event_type", event.EventType)
	}
}

// Close drains the queue and stops the writer goroutine.
func (l *fileConversationLogger) Close() error {
	l.once.Do(func() {
		close(l.queue)
	})
	<-l.done
	return nil
}

func (l *fileConversationLogger) run() {
	defer close(l.done)
	for event := range l.queue {
		line, err := json.Marshal(event)
		if err != nil {
			l.logger.Warn("failed to marshal conversation log event", "error", err)
			continue
		}
		line = append(line, '\n')

		if l.cfg.Enabled {
			path := filepath.Join(l.cfg.Dir, sanitizePathComponent(event.UserID), sanitizePathComponent(event.RoomID)+".ndjson")
			l.appendLine(path, line)
		}
		if l.cfg.GlobalEnabled {
			l.appendLine(l.cfg.GlobalPath, line)
		}
	}
}

func (l *fileConversationLogger) appendLine(path string, line []byte) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		l.logger.Warn("failed to create conversation log dir", "path", path, "error", err)
		return
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		l.logger.Warn("failed to open conversation log file", "path", path, "error", err)
		return
	}
	if _, err := f.Write(line); err != nil {
		l.logger.Warn("failed to write conversation log line", "path", path, "error", err)
	}
	if err := f.Close(); err != nil {
		l.logger.Warn("failed to close conversation log file", "path", path, "error", err)
	}
}

var ansiEscape = regexp.MustCompile(`\x1b\[[0-9;?]*[a-zA-Z]`)

// cleanForReadability strips terminal escape sequences and normalizes line
// endings so the cleaned content reads as plain text.
func cleanForReadability(raw string) string {
	clean := ansiEscape.ReplaceAllString(raw, "")
	clean = strings.ReplaceAll(clean, "\r\n", "\n")
	return strings.TrimRight(clean, "\n")
}

// sanitizePathComponent keeps log file names within the log directory even
// when ids contain separators.
func sanitizePathComponent(s string) string {
	if s == "" {
		return "unknown"
	}
	s = strings.ReplaceAll(s, string(os.PathSeparator), "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "..", "_")
	return s
}
