package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ashureev/docchat/internal/domain"
	"github.com/ashureev/docchat/internal/extraction"
)

// repositories returns every Repository implementation under test.
func repositories(t *testing.T) map[string]Repository {
	t.Helper()

	sqlite, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = sqlite.Close() })

	return map[string]Repository{
		"memory": NewMemory(),
		"sqlite": sqlite,
	}
}

func newRoom(id, creatorID string) *domain.ChatRoom {
	return &domain.ChatRoom{
		ID:        id,
		CreatorID: creatorID,
		Title:     domain.PlaceholderTitle,
		CreatedAt: time.Now().UTC(),
	}
}

func TestRepositoryRoomLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			if err := repo.CreateRoom(ctx, newRoom("1", "anon-1")); err != nil {
				t.Fatalf("create room failed: %v", err)
			}

			room, err := repo.GetRoom(ctx, "1")
			if err != nil {
				t.Fatalf("get room failed: %v", err)
			}
			if room == nil || room.Title != domain.PlaceholderTitle || room.CreatorID != "anon-1" {
				t.Fatalf("unexpected room: %+v", room)
			}

			missing, err := repo.GetRoom(ctx, "nope")
			if err != nil || missing != nil {
				t.Fatalf("expected (nil, nil) for missing room, got %+v, %v", missing, err)
			}
		})
	}
}

func TestRepositoryListRoomsNewestFirstScopedToCreator(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			base := time.Now().UTC()
			for i, tc := range []struct{ id, creator string }{
				{"10", "anon-1"},
				{"11", "anon-2"},
				{"12", "anon-1"},
			} {
				room := newRoom(tc.id, tc.creator)
				room.CreatedAt = base.Add(time.Duration(i) * time.Second)
				if err := repo.CreateRoom(ctx, room); err != nil {
					t.Fatalf("create room failed: %v", err)
				}
			}

			rooms, err := repo.ListRooms(ctx, "anon-1")
			if err != nil {
				t.Fatalf("list rooms failed: %v", err)
			}
			if len(rooms) != 2 {
				t.Fatalf("expected 2 rooms for anon-1, got %d", len(rooms))
			}
			if rooms[0].ID != "12" || rooms[1].ID != "10" {
				t.Fatalf("expected newest first, got %q then %q", rooms[0].ID, rooms[1].ID)
			}
		})
	}
}

func TestRepositoryTitleUpdateIsOneShot(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			if err := repo.CreateRoom(ctx, newRoom("1", "anon-1")); err != nil {
				t.Fatalf("create room failed: %v", err)
			}

			if err := repo.UpdateRoomTitle(ctx, "1", "첫 제목", domain.PlaceholderTitle); err != nil {
				t.Fatalf("first title update failed: %v", err)
			}

			err := repo.UpdateRoomTitle(ctx, "1", "다른 제목", domain.PlaceholderTitle)
			if !errors.Is(err, ErrStaleTitle) {
				t.Fatalf("expected ErrStaleTitle, got %v", err)
			}

			room, err := repo.GetRoom(ctx, "1")
			if err != nil {
				t.Fatalf("get room failed: %v", err)
			}
			if room.Title != "첫 제목" {
				t.Fatalf("expected first title kept, got %q", room.Title)
			}
		})
	}
}

func TestRepositoryMessageAppendOrder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			if err := repo.CreateRoom(ctx, newRoom("1", "anon-1")); err != nil {
				t.Fatalf("create room failed: %v", err)
			}

			now := time.Now().UTC()
			for i, msg := range []*domain.Message{
				{ID: "m1", RoomID: "1", Role: domain.RoleUser, Content: "질문"},
				{ID: "m2", RoomID: "1", Role: domain.RoleAssistant, Content: ""},
			} {
				msg.CreatedAt = now.Add(time.Duration(i) * time.Millisecond)
				if err := repo.AppendMessage(ctx, msg); err != nil {
					t.Fatalf("append message failed: %v", err)
				}
			}

			messages, err := repo.ListMessages(ctx, "1")
			if err != nil {
				t.Fatalf("list messages failed: %v", err)
			}
			if len(messages) != 2 || messages[0].ID != "m1" || messages[1].ID != "m2" {
				t.Fatalf("unexpected message order: %+v", messages)
			}

			empty, err := repo.ListMessages(ctx, "unknown")
			if err != nil {
				t.Fatalf("list unknown room failed: %v", err)
			}
			if len(empty) != 0 {
				t.Fatalf("expected empty history for unknown room, got %d", len(empty))
			}
		})
	}
}

func TestRepositoryStreamingContentGrowth(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			if err := repo.CreateRoom(ctx, newRoom("1", "anon-1")); err != nil {
				t.Fatalf("create room failed: %v", err)
			}
			msg := &domain.Message{ID: "m1", RoomID: "1", Role: domain.RoleAssistant, Content: "", CreatedAt: time.Now().UTC()}
			if err := repo.AppendMessage(ctx, msg); err != nil {
				t.Fatalf("append message failed: %v", err)
			}

			for _, fragment := range []string{"안녕", "하세요"} {
				if err := repo.AppendMessageContent(ctx, "1", "m1", fragment); err != nil {
					t.Fatalf("append content failed: %v", err)
				}
			}

			messages, err := repo.ListMessages(ctx, "1")
			if err != nil {
				t.Fatalf("list messages failed: %v", err)
			}
			if messages[0].Content != "안녕하세요" {
				t.Fatalf("expected grown content, got %q", messages[0].Content)
			}

			if err := repo.SetMessageContent(ctx, "1", "m1", "교체됨"); err != nil {
				t.Fatalf("set content failed: %v", err)
			}
			messages, err = repo.ListMessages(ctx, "1")
			if err != nil {
				t.Fatalf("list messages failed: %v", err)
			}
			if messages[0].Content != "교체됨" {
				t.Fatalf("expected replaced content, got %q", messages[0].Content)
			}
		})
	}
}

func TestRepositoryAttachmentRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			if err := repo.CreateRoom(ctx, newRoom("1", "anon-1")); err != nil {
				t.Fatalf("create room failed: %v", err)
			}

			msg := &domain.Message{
				ID:        "m1",
				RoomID:    "1",
				Role:      domain.RoleUser,
				Content:   "이 파일 봐줘",
				CreatedAt: time.Now().UTC(),
				Attachment: &domain.FileAttachment{
					Name:          "scan.png",
					MIMEType:      "image/png",
					Size:          1024,
					ParsedContent: "파싱된 내용",
					ExtractedData: extraction.Fields{
						{Key: "balance", Value: "1,000원"},
						{Key: "date", Value: "2024-01-01"},
					},
				},
			}
			if err := repo.AppendMessage(ctx, msg); err != nil {
				t.Fatalf("append message failed: %v", err)
			}

			messages, err := repo.ListMessages(ctx, "1")
			if err != nil {
				t.Fatalf("list messages failed: %v", err)
			}
			got := messages[0].Attachment
			if got == nil || got.Name != "scan.png" || got.ParsedContent != "파싱된 내용" {
				t.Fatalf("attachment lost in round trip: %+v", got)
			}
			if len(got.ExtractedData) != 2 || got.ExtractedData[0].Key != "balance" {
				t.Fatalf("extracted data order lost: %+v", got.ExtractedData)
			}
		})
	}
}

func TestMemoryStoreSnapshotsReads(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	repo := NewMemory()
	if err := repo.CreateRoom(ctx, newRoom("1", "anon-1")); err != nil {
		t.Fatalf("create room failed: %v", err)
	}

	room, err := repo.GetRoom(ctx, "1")
	if err != nil {
		t.Fatalf("get room failed: %v", err)
	}
	room.Title = "mutated"

	fresh, err := repo.GetRoom(ctx, "1")
	if err != nil {
		t.Fatalf("get room failed: %v", err)
	}
	if fresh.Title != domain.PlaceholderTitle {
		t.Fatalf("expected stored room unaffected by caller mutation, got %q", fresh.Title)
	}
}
