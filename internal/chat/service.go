package chat

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ashureev/docchat/internal/domain"
	"github.com/ashureev/docchat/internal/extraction"
	"github.com/ashureev/docchat/internal/store"
	"github.com/ashureev/docchat/internal/upstage"
)

// ErrEmptyMessage is returned when a send carries neither text nor a file.
var ErrEmptyMessage = errors.New("message has no content and no file")

// Service is the conversation engine. It owns room selection and per-room
// turn state, and drives each turn through its parse, extraction, and
// streaming phases against the collaborator interfaces.
//
// The engine does not guard against concurrent turns in one room; callers
// are expected to disable input while a turn is in flight.
type Service struct {
	repo      store.Repository
	parser    DocumentParser
	extractor Extractor
	streamer  ChatStreamer
	convLog   ConversationLogger
	logger    *slog.Logger

	mu            sync.Mutex
	currentRoomID string
	turnStates    map[string]TurnState
	lastRoomID    int64
}

// NewService creates a conversation engine over the given repository and
// Upstage collaborators. A nil convLog disables conversation logging.
func NewService(repo store.Repository, parser DocumentParser, extractor Extractor, streamer ChatStreamer, convLog ConversationLogger, logger *slog.Logger) *Service {
	if convLog == nil {
		convLog = noopConversationLogger{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:       repo,
		parser:     parser,
		extractor:  extractor,
		streamer:   streamer,
		convLog:    convLog,
		logger:     logger,
		turnStates: make(map[string]TurnState),
	}
}

// CreateRoom creates a room with the placeholder title and selects it.
func (s *Service) CreateRoom(ctx context.Context, creatorID string) (*domain.ChatRoom, error) {
	room := &domain.ChatRoom{
		ID:        s.nextRoomID(),
		CreatorID: creatorID,
		Title:     domain.PlaceholderTitle,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.CreateRoom(ctx, room); err != nil {
		return nil, fmt.Errorf("create room: %w", err)
	}

	s.mu.Lock()
	s.currentRoomID = room.ID
	s.mu.Unlock()

	s.logger.Info("room created", "room_id", room.ID, "creator_id", creatorID)
	return room, nil
}

// nextRoomID derives a unique room id from the wall clock. Ids created within
// the same millisecond are bumped forward so they stay unique and ordered.
func (s *Service) nextRoomID() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := time.Now().UnixMilli()
	if id <= s.lastRoomID {
		id = s.lastRoomID + 1
	}
	s.lastRoomID = id
	return strconv.FormatInt(id, 10)
}

// Select moves the current-room pointer. Selecting an unknown id is allowed;
// its history simply reads as empty.
func (s *Service) Select(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentRoomID = roomID
}

// CurrentRoomID returns the selected room id, or "" when none is selected.
func (s *Service) CurrentRoomID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentRoomID
}

// TurnState reports which phase of a turn the room is in.
func (s *Service) TurnState(roomID string) TurnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.turnStates[roomID]
}

func (s *Service) setTurnState(roomID string, state TurnState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if state == StateIdle {
		delete(s.turnStates, roomID)
		return
	}
	s.turnStates[roomID] = state
}

// Rooms lists rooms for a creator, most recently created first.
func (s *Service) Rooms(ctx context.Context, creatorID string) ([]*domain.ChatRoom, error) {
	return s.repo.ListRooms(ctx, creatorID)
}

// Messages lists a room's history in append order.
func (s *Service) Messages(ctx context.Context, roomID string) ([]*domain.Message, error) {
	return s.repo.ListMessages(ctx, roomID)
}

// SendMessage runs one full turn and yields its observable events in order:
// room announcement, phase status changes, the recorded user message, reply
// fragments as they arrive, and the finalized assistant message.
//
// Collaborator failures degrade rather than abort: a parse failure records a
// fallback marker, an extraction failure is swallowed, and a stream failure
// leaves partial content in place or substitutes a fixed apology when nothing
// arrived. Only repository failures end the turn with an error.
func (s *Service) SendMessage(ctx context.Context, req SendRequest) iter.Seq2[*TurnEvent, error] {
	return func(yield func(*TurnEvent, error) bool) {
		if req.Content == "" && req.File == nil {
			yield(nil, ErrEmptyMessage)
			return
		}

		room, err := s.resolveRoom(ctx, req)
		if err != nil {
			yield(nil, err)
			return
		}
		defer s.setTurnState(room.ID, StateIdle)

		if !yield(&TurnEvent{Type: EventRoom, RoomID: room.ID}, nil) {
			return
		}

		attachment, parsed, fields, ok := s.processAttachment(ctx, room.ID, req, yield)
		if !ok {
			return
		}

		display := displayContent(req.Content, req.File)

		// History is captured before the new user message is recorded so
		// the streamed request replays exactly the prior turns.
		history, err := s.repo.ListMessages(ctx, room.ID)
		if err != nil {
			yield(nil, fmt.Errorf("list history: %w", err))
			return
		}

		userMsg := &domain.Message{
			ID:         uuid.NewString(),
			RoomID:     room.ID,
			Role:       domain.RoleUser,
			Content:    display,
			CreatedAt:  time.Now().UTC(),
			Attachment: attachment,
		}
		if err := s.repo.AppendMessage(ctx, userMsg); err != nil {
			yield(nil, fmt.Errorf("append user message: %w", err))
			return
		}
		s.logUserMessage(room, userMsg)
		if !yield(&TurnEvent{Type: EventUserMessage, RoomID: room.ID, Message: userMsg}, nil) {
			return
		}

		s.assignTitle(ctx, room, req)

		payload := buildTurnPayload(display, req.File, parsed, fields)
		messages := buildChatMessages(history, payload)

		s.streamReply(ctx, room, messages, yield)
	}
}

// resolveRoom picks the turn's target room: an explicit id, else the current
// selection, else a freshly created room.
func (s *Service) resolveRoom(ctx context.Context, req SendRequest) (*domain.ChatRoom, error) {
	roomID := req.RoomID
	if roomID == "" {
		roomID = s.CurrentRoomID()
	}
	if roomID != "" {
		room, err := s.repo.GetRoom(ctx, roomID)
		if err != nil {
			return nil, fmt.Errorf("get room: %w", err)
		}
		if room == nil {
			return nil, fmt.Errorf("room %s not found", roomID)
		}
		s.Select(room.ID)
		return room, nil
	}
	return s.CreateRoom(ctx, req.CreatorID)
}

// processAttachment runs the parse and extraction phases for an attached
// file. Both phases degrade on failure; the returned bool is false only when
// the event consumer stopped.
func (s *Service) processAttachment(ctx context.Context, roomID string, req SendRequest, yield func(*TurnEvent, error) bool) (*domain.FileAttachment, string, extraction.Fields, bool) {
	if req.File == nil {
		return nil, "", nil, true
	}

	attachment := &domain.FileAttachment{
		Name:     req.File.Name,
		MIMEType: req.File.MIMEType,
		Size:     req.File.Size,
	}
	doc := upstage.Document{
		Name:     req.File.Name,
		MIMEType: req.File.MIMEType,
		Data:     req.File.Data,
	}

	var parsed string
	if attachment.IsDocument() {
		s.setTurnState(roomID, StateParsingFile)
		if !yield(&TurnEvent{Type: EventStatus, RoomID: roomID, Status: StateParsingFile.String()}, nil) {
			return nil, "", nil, false
		}
		result, err := s.parser.ParseDocument(ctx, doc)
		if err != nil {
			s.logger.Warn("document parse failed", "room_id", roomID, "file", req.File.Name, "error", err)
			parsed = parseFailedFallback
		} else {
			parsed = result.Content.Text
		}
		attachment.ParsedContent = parsed
	}

	var fields extraction.Fields
	if attachment.IsImage() && req.Content != "" {
		s.setTurnState(roomID, StateExtracting)
		if !yield(&TurnEvent{Type: EventStatus, RoomID: roomID, Status: StateExtracting.String()}, nil) {
			return nil, "", nil, false
		}
		schema := extraction.SchemaFromQuery(req.Content)
		result, err := s.extractor.Extract(ctx, doc, schema)
		if err != nil {
			// Extraction is an enrichment step. The turn proceeds
			// without structured fields.
			s.logger.Warn("information extraction failed", "room_id", roomID, "file", req.File.Name, "error", err)
		} else {
			fields = extraction.ParseExtractionResult(result)
		}
		attachment.ExtractedData = fields
	}

	return attachment, parsed, fields, true
}

// assignTitle replaces the placeholder title once, derived from the first
// message. Losing the optimistic check means the room is already titled.
func (s *Service) assignTitle(ctx context.Context, room *domain.ChatRoom, req SendRequest) {
	if !room.HasPlaceholderTitle() {
		return
	}
	source := req.Content
	if source == "" && req.File != nil {
		source = domain.AttachmentTitle(req.File.Name)
	}
	title := domain.TitleFromContent(source)
	err := s.repo.UpdateRoomTitle(ctx, room.ID, title, domain.PlaceholderTitle)
	switch {
	case errors.Is(err, store.ErrStaleTitle):
		// Already titled by an earlier turn.
	case err != nil:
		s.logger.Warn("room title update failed", "room_id", room.ID, "error", err)
	default:
		room.Title = title
	}
}

// streamReply records an empty assistant message, grows it fragment by
// fragment as the reply streams in, and finalizes it.
func (s *Service) streamReply(ctx context.Context, room *domain.ChatRoom, messages []upstage.ChatMessage, yield func(*TurnEvent, error) bool) {
	s.setTurnState(room.ID, StateStreaming)

	assistant := &domain.Message{
		ID:        uuid.NewString(),
		RoomID:    room.ID,
		Role:      domain.RoleAssistant,
		Content:   "",
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.AppendMessage(ctx, assistant); err != nil {
		yield(nil, fmt.Errorf("append assistant message: %w", err))
		return
	}

	chunks := 0
	var streamErr error
	for fragment, err := range s.streamer.StreamChat(ctx, messages) {
		if err != nil {
			streamErr = err
			break
		}
		if err := s.repo.AppendMessageContent(ctx, room.ID, assistant.ID, fragment); err != nil {
			yield(nil, fmt.Errorf("append reply fragment: %w", err))
			return
		}
		assistant.Content += fragment
		chunks++
		if !yield(&TurnEvent{Type: EventToken, RoomID: room.ID, Content: fragment}, nil) {
			return
		}
	}

	if streamErr != nil {
		s.logger.Error("chat stream failed", "room_id", room.ID, "chunks", chunks, "error", streamErr)
		if chunks == 0 {
			assistant.Content = apologyMessage
			if err := s.repo.SetMessageContent(ctx, room.ID, assistant.ID, apologyMessage); err != nil {
				s.logger.Warn("failed to record apology message", "room_id", room.ID, "error", err)
			}
		}
		// Partial replies keep whatever arrived.
	}

	s.logAssistantMessage(room, assistant, chunks, streamErr)
	yield(&TurnEvent{Type: EventDone, RoomID: room.ID, Message: assistant}, nil)
}

func (s *Service) logUserMessage(room *domain.ChatRoom, msg *domain.Message) {
	event := ConversationLogEvent{
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		UserID:     room.CreatorID,
		RoomID:     room.ID,
		Channel:    "chat_http",
		Direction:  "outbound",
		EventType:  "chat_user_message",
		ContentRaw: msg.Content,
	}
	if msg.Attachment != nil {
		event.Attachment = msg.Attachment.Name
	}
	s.convLog.Log(event)
}

func (s *Service) logAssistantMessage(room *domain.ChatRoom, msg *domain.Message, chunks int, streamErr error) {
	event := ConversationLogEvent{
		Timestamp:    time.Now().UTC().Format(time.RFC3339Nano),
		UserID:       room.CreatorID,
		RoomID:       room.ID,
		Channel:      "chat_http",
		Direction:    "inbound",
		EventType:    "chat_assistant_message",
		ContentRaw:   msg.Content,
		StreamChunks: chunks,
		Partial:      streamErr != nil && chunks > 0,
	}
	if streamErr != nil {
		event.Error = streamErr.Error()
	}
	s.convLog.Log(event)
}
