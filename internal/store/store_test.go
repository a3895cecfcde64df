package store

import (
	"context"
	"testing"

	"chat-relay/internal/message"
)

func TestMemoryUsersCreateAndLookup(t *testing.T) {
	s := NewMemoryUsers()
	ctx := context.Background()

	u, err := s.Create(ctx, "alice", "hash")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if u.ID == "" {
		t.Fatal("expected store-assigned ID")
	}

	got, err := s.ByID(ctx, u.ID)
	if err != nil {
		t.Fatalf("by id: %v", err)
	}
	if got.Username != "alice" {
		t.Errorf("expected username alice, got %s", got.Username)
	}

	got, err = s.ByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("by username: %v", err)
	}
	if got.ID != u.ID {
		t.Errorf("expected ID %s, got %s", u.ID, got.ID)
	}
}

func TestMemoryUsersUsernameTaken(t *testing.T) {
	s := NewMemoryUsers()
	ctx := context.Background()

	if _, err := s.Create(ctx, "alice", "hash"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.Create(ctx, "alice", "other"); err != ErrUsernameTaken {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}
}

func TestMemoryUsersNotFound(t *testing.T) {
	s := NewMemoryUsers()
	ctx := context.Background()

	if _, err := s.ByID(ctx, "ghost"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.ByUsername(ctx, "ghost"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.SetOnline(ctx, "ghost", true); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryUsersSetOnline(t *testing.T) {
	s := NewMemoryUsers()
	ctx := context.Background()

	u, _ := s.Create(ctx, "alice", "hash")

	updated, err := s.SetOnline(ctx, u.ID, true)
	if err != nil {
		t.Fatalf("set online: %v", err)
	}
	if !updated.Online {
		t.Error("expected online after SetOnline(true)")
	}

	got, _ := s.ByID(ctx, u.ID)
	if !got.Online {
		t.Error("expected online flag to persist")
	}
}

func TestMemoryUsersList(t *testing.T) {
	s := NewMemoryUsers()
	ctx := context.Background()

	s.Create(ctx, "carol", "hash")
	s.Create(ctx, "alice", "hash")
	s.Create(ctx, "bob", "hash")

	refs, err := s.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(refs) != 3 {
		t.Fatalf("expected 3 users, got %d", len(refs))
	}
	for i, want := range []string{"alice", "bob", "carol"} {
		if refs[i].Username != want {
			t.Errorf("expected refs[%d] = %s, got %s", i, want, refs[i].Username)
		}
	}
}

func TestMemoryMessagesAppendAssignsIDAndTime(t *testing.T) {
	s := NewMemoryMessages()
	ctx := context.Background()

	msg := &message.Message{Sender: "u1", Receiver: "u2", Content: "hi"}
	if err := s.Append(ctx, msg); err != nil {
		t.Fatalf("append: %v", err)
	}
	if msg.ID == "" {
		t.Error("expected assigned message ID")
	}
	if msg.CreatedAt.IsZero() {
		t.Error("expected assigned timestamp")
	}
}

func TestMemoryMessagesByParticipant(t *testing.T) {
	s := NewMemoryMessages()
	ctx := context.Background()

	s.Append(ctx, &message.Message{Sender: "u1", Receiver: "u2", Content: "one"})
	s.Append(ctx, &message.Message{Sender: "u2", Receiver: "u1", Content: "two"})
	s.Append(ctx, &message.Message{Sender: "u2", Receiver: "u3", Content: "three"})

	msgs, err := s.ByParticipant(ctx, "u1")
	if err != nil {
		t.Fatalf("by participant: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages for u1, got %d", len(msgs))
	}
	if msgs[0].Content != "one" || msgs[1].Content != "two" {
		t.Errorf("expected chronological [one two], got [%s %s]", msgs[0].Content, msgs[1].Content)
	}

	msgs, _ = s.ByParticipant(ctx, "u3")
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message for u3, got %d", len(msgs))
	}
	if msgs[0].Content != "three" {
		t.Errorf("expected content three, got %s", msgs[0].Content)
	}
}

func TestMemoryMessagesSelfMessageStoredOnce(t *testing.T) {
	s := NewMemoryMessages()
	ctx := context.Background()

	s.Append(ctx, &message.Message{Sender: "u1", Receiver: "u1", Content: "note"})

	msgs, _ := s.ByParticipant(ctx, "u1")
	if len(msgs) != 1 {
		t.Fatalf("expected self-message stored once, got %d", len(msgs))
	}
}
