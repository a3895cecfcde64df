package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"chat-relay/internal/message"
	"chat-relay/internal/user"
)

var (
	// ErrNotFound is returned when a user lookup misses.
	ErrNotFound = errors.New("store: not found")

	// ErrUsernameTaken is returned by Create when the username is in use.
	ErrUsernameTaken = errors.New("store: username taken")
)

// UserStore is the persistence interface for accounts.
type UserStore interface {
	Create(ctx context.Context, username, passwordHash string) (*user.User, error)
	ByID(ctx context.Context, id string) (*user.User, error)
	ByUsername(ctx context.Context, username string) (*user.User, error)
	List(ctx context.Context) ([]user.Ref, error)
	SetOnline(ctx context.Context, id string, online bool) (*user.User, error)
}

// MessageStore is the persistence interface for direct messages. Append
// assigns the message ID and timestamp; ByParticipant returns every
// message the given user sent or received, oldest first.
type MessageStore interface {
	Append(ctx context.Context, msg *message.Message) error
	ByParticipant(ctx context.Context, id string) ([]*message.Message, error)
}

// MemoryUsers is an in-memory UserStore for development and tests.
type MemoryUsers struct {
	mu     sync.RWMutex
	byID   map[string]*user.User
	byName map[string]string
}

// NewMemoryUsers creates an empty in-memory user store.
func NewMemoryUsers() *MemoryUsers {
	return &MemoryUsers{
		byID:   make(map[string]*user.User),
		byName: make(map[string]string),
	}
}

// Create adds a new user with a store-assigned ID.
func (s *MemoryUsers) Create(ctx context.Context, username, passwordHash string) (*user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byName[username]; ok {
		return nil, ErrUsernameTaken
	}
	u := &user.User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
	s.byID[u.ID] = u
	s.byName[username] = u.ID
	cp := *u
	return &cp, nil
}

// ByID returns the user with the given ID.
func (s *MemoryUsers) ByID(ctx context.Context, id string) (*user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

// ByUsername returns the user with the given username.
func (s *MemoryUsers) ByUsername(ctx context.Context, username string) (*user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byName[username]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s.byID[id]
	return &cp, nil
}

// List returns the public directory, sorted by username.
func (s *MemoryUsers) List(ctx context.Context) ([]user.Ref, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	refs := make([]user.Ref, 0, len(s.byID))
	for _, u := range s.byID {
		refs = append(refs, u.Ref())
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Username < refs[j].Username })
	return refs, nil
}

// SetOnline updates the online flag and returns the updated user.
func (s *MemoryUsers) SetOnline(ctx context.Context, id string, online bool) (*user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	u.Online = online
	cp := *u
	return &cp, nil
}

// MemoryMessages is an in-memory MessageStore. Each message is indexed
// under both participants so ByParticipant is a single map read.
type MemoryMessages struct {
	mu     sync.RWMutex
	byUser map[string][]*message.Message
}

// NewMemoryMessages creates an empty in-memory message store.
func NewMemoryMessages() *MemoryMessages {
	return &MemoryMessages{byUser: make(map[string][]*message.Message)}
}

// Append stores a message, assigning its ID and timestamp.
func (s *MemoryMessages) Append(ctx context.Context, msg *message.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *msg
	s.byUser[msg.Sender] = append(s.byUser[msg.Sender], &cp)
	if msg.Receiver != msg.Sender {
		s.byUser[msg.Receiver] = append(s.byUser[msg.Receiver], &cp)
	}
	return nil
}

// ByParticipant returns every message sent or received by the user,
// oldest first.
func (s *MemoryMessages) ByParticipant(ctx context.Context, id string) ([]*message.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.byUser[id]
	// Copy the slice so callers can't observe later appends.
	result := make([]*message.Message, len(msgs))
	copy(result, msgs)
	return result, nil
}
