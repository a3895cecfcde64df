package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"chat-relay/internal/message"
	"chat-relay/internal/user"
)

func userKey(id string) string {
	return "user:" + id
}

func usernameKey(name string) string {
	return "username:" + name
}

func inboxKey(id string) string {
	return "msgs:" + id
}

// usersKey is the set of all user IDs, used for the directory listing.
const usersKey = "users"

// RedisUsers is a Redis-backed UserStore. Users are stored as JSON under
// user:<id>, with a username:<name> index for login lookups.
type RedisUsers struct {
	client redis.Cmdable
}

// NewRedisUsers creates a Redis-backed user store.
func NewRedisUsers(client redis.Cmdable) *RedisUsers {
	return &RedisUsers{client: client}
}

// Create adds a new user, claiming the username atomically via SETNX.
func (s *RedisUsers) Create(ctx context.Context, username, passwordHash string) (*user.User, error) {
	u := &user.User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}

	ok, err := s.client.SetNX(ctx, usernameKey(username), u.ID, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: claim username: %w", err)
	}
	if !ok {
		return nil, ErrUsernameTaken
	}

	if err := s.write(ctx, u); err != nil {
		return nil, err
	}
	if err := s.client.SAdd(ctx, usersKey, u.ID).Err(); err != nil {
		return nil, fmt.Errorf("redis: index user: %w", err)
	}
	return u, nil
}

// ByID returns the user stored under the given ID.
func (s *RedisUsers) ByID(ctx context.Context, id string) (*user.User, error) {
	data, err := s.client.Get(ctx, userKey(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis: read user: %w", err)
	}
	return decodeUser(data)
}

// ByUsername resolves the username index, then loads the user.
func (s *RedisUsers) ByUsername(ctx context.Context, username string) (*user.User, error) {
	id, err := s.client.Get(ctx, usernameKey(username)).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis: read username index: %w", err)
	}
	return s.ByID(ctx, id)
}

// List returns the public directory for all stored users.
func (s *RedisUsers) List(ctx context.Context) ([]user.Ref, error) {
	ids, err := s.client.SMembers(ctx, usersKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: list users: %w", err)
	}

	refs := make([]user.Ref, 0, len(ids))
	for _, id := range ids {
		u, err := s.ByID(ctx, id)
		if err == ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		refs = append(refs, u.Ref())
	}
	return refs, nil
}

// SetOnline rewrites the stored user with the updated online flag.
func (s *RedisUsers) SetOnline(ctx context.Context, id string, online bool) (*user.User, error) {
	u, err := s.ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	u.Online = online
	if err := s.write(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *RedisUsers) write(ctx context.Context, u *user.User) error {
	data, err := json.Marshal(storedUser{
		ID:           u.ID,
		Username:     u.Username,
		PasswordHash: u.PasswordHash,
		Online:       u.Online,
		CreatedAt:    u.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("redis: marshal user: %w", err)
	}
	if err := s.client.Set(ctx, userKey(u.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("redis: write user: %w", err)
	}
	return nil
}

// storedUser is the on-disk shape of a user. The model's json tags hide
// the password hash, so persistence uses its own struct.
type storedUser struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"password_hash"`
	Online       bool      `json:"online"`
	CreatedAt    time.Time `json:"created_at"`
}

func decodeUser(data []byte) (*user.User, error) {
	var su storedUser
	if err := json.Unmarshal(data, &su); err != nil {
		return nil, fmt.Errorf("redis: unmarshal user: %w", err)
	}
	return &user.User{
		ID:           su.ID,
		Username:     su.Username,
		PasswordHash: su.PasswordHash,
		Online:       su.Online,
		CreatedAt:    su.CreatedAt,
	}, nil
}

// RedisMessages is a Redis-backed MessageStore using one list per
// participant, so history retrieval is a single LRANGE.
type RedisMessages struct {
	client redis.Cmdable
}

// NewRedisMessages creates a Redis-backed message store.
func NewRedisMessages(client redis.Cmdable) *RedisMessages {
	return &RedisMessages{client: client}
}

// Append stores the message under both participants' lists in one
// pipeline. Self-messages are stored once.
func (s *RedisMessages) Append(ctx context.Context, msg *message.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("redis: marshal message: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, inboxKey(msg.Sender), data)
	if msg.Receiver != msg.Sender {
		pipe.RPush(ctx, inboxKey(msg.Receiver), data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: append message: %w", err)
	}
	return nil
}

// ByParticipant returns every message the user sent or received,
// oldest first.
func (s *RedisMessages) ByParticipant(ctx context.Context, id string) ([]*message.Message, error) {
	vals, err := s.client.LRange(ctx, inboxKey(id), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: read messages: %w", err)
	}

	msgs := make([]*message.Message, 0, len(vals))
	for _, v := range vals {
		var m message.Message
		if err := json.Unmarshal([]byte(v), &m); err != nil {
			return nil, fmt.Errorf("redis: unmarshal message: %w", err)
		}
		msgs = append(msgs, &m)
	}
	return msgs, nil
}
