package chatstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/cadencehq/driveassist/internal/chat"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "chat.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func mustCreateThread(t *testing.T, s *Store, threadID, userID string) {
	t.Helper()
	err := s.CreateThread(context.Background(), chat.Thread{ThreadID: threadID, UserID: userID})
	if err != nil {
		t.Fatalf("CreateThread(%s): %v", threadID, err)
	}
}

func mustSave(t *testing.T, s *Store, threadID, userID string, role chat.Role, content string) chat.Turn {
	t.Helper()
	saved, err := s.SaveMessage(context.Background(), chat.Turn{
		ThreadID: threadID,
		UserID:   userID,
		Role:     role,
		Content:  content,
	})
	if err != nil {
		t.Fatalf("SaveMessage(%s, %s): %v", threadID, content, err)
	}
	return saved
}

func TestStore_OpenIsIdempotent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "chat.db")
	s1, err := Open(path)
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	mustCreateThread(t, s1, "u1-1", "u1")
	if err := s1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	defer s2.Close()

	threads, err := s2.ListThreads(context.Background(), "u1")
	if err != nil {
		t.Fatalf("ListThreads: %v", err)
	}
	if len(threads) != 1 || threads[0].ThreadID != "u1-1" {
		t.Fatalf("threads after reopen = %+v", threads)
	}
}

func TestStore_DuplicateMessageReturnsExistingRow(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	mustCreateThread(t, s, "u1-1", "u1")

	first := mustSave(t, s, "u1-1", "u1", chat.RoleUser, "list my files")
	second := mustSave(t, s, "u1-1", "u1", chat.RoleUser, "list my files")

	if second.ID != first.ID {
		t.Fatalf("duplicate save returned new row: first=%s second=%s", first.ID, second.ID)
	}

	msgs, err := s.ListMessages(context.Background(), "u1-1")
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("message count = %d, want 1", len(msgs))
	}

	threads, err := s.ListThreads(context.Background(), "u1")
	if err != nil {
		t.Fatalf("ListThreads: %v", err)
	}
	if threads[0].MessageCount != 1 {
		t.Fatalf("message_count = %d, want 1", threads[0].MessageCount)
	}
}

func TestStore_SameContentDifferentRoleIsNotDuplicate(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	mustCreateThread(t, s, "u1-1", "u1")

	mustSave(t, s, "u1-1", "u1", chat.RoleUser, "hello")
	mustSave(t, s, "u1-1", "u1", chat.RoleAssistant, "hello")

	msgs, err := s.ListMessages(context.Background(), "u1-1")
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("message count = %d, want 2", len(msgs))
	}
}

func TestStore_TitleDerivedFromFirstUserMessage(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	mustCreateThread(t, s, "u1-1", "u1")

	mustSave(t, s, "u1-1", "u1", chat.RoleUser, "create a file called notes.txt with content Hello")
	mustSave(t, s, "u1-1", "u1", chat.RoleUser, "now share it")

	threads, err := s.ListThreads(context.Background(), "u1")
	if err != nil {
		t.Fatalf("ListThreads: %v", err)
	}
	if threads[0].Title != "create a file called notes.txt with content Hell" {
		t.Fatalf("derived title = %q", threads[0].Title)
	}
	if threads[0].LastMessage != "now share it" {
		t.Fatalf("last message preview = %q", threads[0].LastMessage)
	}
}

func TestStore_ThreadIsolation(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		id := fmt.Sprintf("u1-%d", i)
		mustCreateThread(t, s, id, "u1")
		mustSave(t, s, id, "u1", chat.RoleUser, fmt.Sprintf("message for thread %d", i))
	}

	// Revisit each thread; every one must only hold its own message.
	for i := 1; i <= 3; i++ {
		id := fmt.Sprintf("u1-%d", i)
		msgs, err := s.ListMessages(ctx, id)
		if err != nil {
			t.Fatalf("ListMessages(%s): %v", id, err)
		}
		if len(msgs) != 1 {
			t.Fatalf("thread %s message count = %d, want 1", id, len(msgs))
		}
		want := fmt.Sprintf("message for thread %d", i)
		if msgs[0].Content != want {
			t.Fatalf("thread %s content = %q, want %q", id, msgs[0].Content, want)
		}
	}
}

func TestStore_DeleteThreadCascades(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	mustCreateThread(t, s, "u1-1", "u1")
	mustCreateThread(t, s, "u1-2", "u1")
	mustSave(t, s, "u1-1", "u1", chat.RoleUser, "keep me")
	mustSave(t, s, "u1-2", "u1", chat.RoleUser, "delete me")

	if err := s.DeleteThread(ctx, "u1-2"); err != nil {
		t.Fatalf("DeleteThread: %v", err)
	}

	msgs, err := s.ListMessages(ctx, "u1-2")
	if err != nil {
		t.Fatalf("ListMessages after delete: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("orphaned messages after cascade: %d", len(msgs))
	}

	threads, err := s.ListThreads(ctx, "u1")
	if err != nil {
		t.Fatalf("ListThreads: %v", err)
	}
	if len(threads) != 1 || threads[0].ThreadID != "u1-1" {
		t.Fatalf("threads after delete = %+v", threads)
	}

	if err := s.DeleteThread(ctx, "u1-2"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("deleting missing thread: err = %v, want ErrNoRows", err)
	}
}

func TestStore_SaveRejectsUnknownThread(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	_, err := s.SaveMessage(context.Background(), chat.Turn{
		ThreadID: "u1-99",
		UserID:   "u1",
		Role:     chat.RoleUser,
		Content:  "hello",
	})
	if err == nil {
		t.Fatal("expected error for unknown thread")
	}
}

func TestStore_AttachmentsRoundTrip(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	mustCreateThread(t, s, "u1-1", "u1")

	saved, err := s.SaveMessage(context.Background(), chat.Turn{
		ThreadID: "u1-1",
		UserID:   "u1",
		Role:     chat.RoleUser,
		Content:  "review this",
		Attachments: []chat.Attachment{
			{Name: "q3.pdf", URL: "file://q3.pdf", MimeType: "application/pdf", Size: 1024},
		},
	})
	if err != nil {
		t.Fatalf("SaveMessage: %v", err)
	}
	if len(saved.Attachments) != 1 {
		t.Fatalf("saved attachments = %d, want 1", len(saved.Attachments))
	}

	msgs, err := s.ListMessages(context.Background(), "u1-1")
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != 1 || len(msgs[0].Attachments) != 1 || msgs[0].Attachments[0].Name != "q3.pdf" {
		t.Fatalf("attachments did not round-trip: %+v", msgs)
	}
}

func TestStore_ListMessagesPage(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	mustCreateThread(t, s, "u1-1", "u1")

	for i := 1; i <= 7; i++ {
		mustSave(t, s, "u1-1", "u1", chat.RoleUser, fmt.Sprintf("message %d", i))
	}

	page1, cursor, more, err := s.ListMessagesPage(ctx, "u1-1", 3, 0)
	if err != nil {
		t.Fatalf("page 1: %v", err)
	}
	if len(page1) != 3 || !more {
		t.Fatalf("page 1 = %d messages, more=%v", len(page1), more)
	}
	if page1[0].Content != "message 5" || page1[2].Content != "message 7" {
		t.Fatalf("page 1 order = [%s .. %s]", page1[0].Content, page1[2].Content)
	}

	page2, cursor, more, err := s.ListMessagesPage(ctx, "u1-1", 3, cursor)
	if err != nil {
		t.Fatalf("page 2: %v", err)
	}
	if len(page2) != 3 || !more {
		t.Fatalf("page 2 = %d messages, more=%v", len(page2), more)
	}
	if page2[0].Content != "message 2" {
		t.Fatalf("page 2 start = %s", page2[0].Content)
	}

	page3, _, more, err := s.ListMessagesPage(ctx, "u1-1", 3, cursor)
	if err != nil {
		t.Fatalf("page 3: %v", err)
	}
	if len(page3) != 1 || more {
		t.Fatalf("page 3 = %d messages, more=%v", len(page3), more)
	}
	if page3[0].Content != "message 1" {
		t.Fatalf("page 3 content = %s", page3[0].Content)
	}
}

func TestStore_UpdateThreadTitle(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	mustCreateThread(t, s, "u1-1", "u1")

	if err := s.UpdateThreadTitle(ctx, "u1-1", "Budget planning"); err != nil {
		t.Fatalf("UpdateThreadTitle: %v", err)
	}
	threads, err := s.ListThreads(ctx, "u1")
	if err != nil {
		t.Fatalf("ListThreads: %v", err)
	}
	if threads[0].Title != "Budget planning" {
		t.Fatalf("title = %q", threads[0].Title)
	}

	if err := s.UpdateThreadTitle(ctx, "u1-99", "x"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("missing thread: err = %v, want ErrNoRows", err)
	}
}
