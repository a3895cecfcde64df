package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"chat-relay/internal/message"
	"chat-relay/internal/user"
)

const (
	badgerUserPrefix = "user:id:"
	badgerNamePrefix = "user:name:"
)

// badgerMessageKey builds msg:<participant>:<padded-nanos>:<uuid>. The
// 19-digit zero-padded timestamp makes lexicographic key order match
// chronological order; the uuid disambiguates same-nanosecond writes.
func badgerMessageKey(participant string, at time.Time, id string) []byte {
	return []byte(fmt.Sprintf("msg:%s:%019d:%s", participant, at.UnixNano(), id))
}

func badgerMessagePrefix(participant string) []byte {
	return []byte("msg:" + participant + ":")
}

// BadgerUsers is an embedded on-disk UserStore backed by Badger.
type BadgerUsers struct {
	db *badger.DB
}

// NewBadgerUsers creates a Badger-backed user store.
func NewBadgerUsers(db *badger.DB) *BadgerUsers {
	return &BadgerUsers{db: db}
}

// Create adds a new user; the username index write and the uniqueness
// check share one transaction.
func (s *BadgerUsers) Create(ctx context.Context, username, passwordHash string) (*user.User, error) {
	u := &user.User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}

	data, err := json.Marshal(storedUser{
		ID:           u.ID,
		Username:     u.Username,
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("badger: marshal user: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		nameKey := []byte(badgerNamePrefix + username)
		if _, err := txn.Get(nameKey); err == nil {
			return ErrUsernameTaken
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.Set(nameKey, []byte(u.ID)); err != nil {
			return err
		}
		return txn.Set([]byte(badgerUserPrefix+u.ID), data)
	})
	if err != nil {
		if errors.Is(err, ErrUsernameTaken) {
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("badger: create user: %w", err)
	}
	return u, nil
}

// ByID returns the user stored under the given ID.
func (s *BadgerUsers) ByID(ctx context.Context, id string) (*user.User, error) {
	var u *user.User
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(badgerUserPrefix + id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			u, err = decodeUser(val)
			return err
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("badger: read user: %w", err)
	}
	return u, nil
}

// ByUsername resolves the username index, then loads the user.
func (s *BadgerUsers) ByUsername(ctx context.Context, username string) (*user.User, error) {
	var id string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(badgerNamePrefix + username))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			id = string(val)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("badger: read username index: %w", err)
	}
	return s.ByID(ctx, id)
}

// List returns the public directory via a prefix scan, sorted by
// username.
func (s *BadgerUsers) List(ctx context.Context) ([]user.Ref, error) {
	var refs []user.Ref
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		prefix := []byte(badgerUserPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				u, err := decodeUser(val)
				if err != nil {
					return err
				}
				refs = append(refs, u.Ref())
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badger: list users: %w", err)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Username < refs[j].Username })
	return refs, nil
}

// SetOnline rewrites the stored user with the updated online flag.
func (s *BadgerUsers) SetOnline(ctx context.Context, id string, online bool) (*user.User, error) {
	var u *user.User
	err := s.db.Update(func(txn *badger.Txn) error {
		key := []byte(badgerUserPrefix + id)
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		if err := item.Value(func(val []byte) error {
			u, err = decodeUser(val)
			return err
		}); err != nil {
			return err
		}
		u.Online = online
		data, err := json.Marshal(storedUser{
			ID:           u.ID,
			Username:     u.Username,
			PasswordHash: u.PasswordHash,
			Online:       u.Online,
			CreatedAt:    u.CreatedAt,
		})
		if err != nil {
			return err
		}
		return txn.Set(key, data)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("badger: set online: %w", err)
	}
	return u, nil
}

// BadgerMessages is an embedded on-disk MessageStore. Each message is
// written under both participants' prefixes so history retrieval is a
// single chronological prefix scan.
type BadgerMessages struct {
	db *badger.DB
}

// NewBadgerMessages creates a Badger-backed message store.
func NewBadgerMessages(db *badger.DB) *BadgerMessages {
	return &BadgerMessages{db: db}
}

// Append stores the message, assigning its ID and timestamp.
// Self-messages are stored once.
func (s *BadgerMessages) Append(ctx context.Context, msg *message.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("badger: marshal message: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(badgerMessageKey(msg.Sender, msg.CreatedAt, msg.ID), data); err != nil {
			return err
		}
		if msg.Receiver == msg.Sender {
			return nil
		}
		return txn.Set(badgerMessageKey(msg.Receiver, msg.CreatedAt, msg.ID), data)
	})
	if err != nil {
		return fmt.Errorf("badger: append message: %w", err)
	}
	return nil
}

// ByParticipant returns every message the user sent or received,
// oldest first by key order.
func (s *BadgerMessages) ByParticipant(ctx context.Context, id string) ([]*message.Message, error) {
	var msgs []*message.Message
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := badgerMessagePrefix(id)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var m message.Message
				if err := json.Unmarshal(val, &m); err != nil {
					return err
				}
				msgs = append(msgs, &m)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badger: read messages: %w", err)
	}
	return msgs, nil
}
