package relay

import (
	"context"
	"errors"
	"fmt"

	"chat-relay/internal/message"
	"chat-relay/internal/store"
	"chat-relay/internal/ws"
)

var (
	// ErrParticipantNotFound is returned when the sender or receiver of
	// a message does not resolve to an existing user. Nothing is
	// persisted in that case.
	ErrParticipantNotFound = errors.New("relay: participant not found")

	// ErrEmptyContent is returned for messages with no content.
	ErrEmptyContent = errors.New("relay: content is required")
)

// Router is the delivery surface: identity-scoped emit plus the
// process-wide broadcast used for presence events.
type Router interface {
	Emit(identity, event string, payload any)
	EmitAll(event string, payload any)
}

// Relay orchestrates one message send: resolve both participants,
// persist, then fan out to both rooms. Persistence strictly precedes
// fanout, so a crash between the two loses at most delivery, never
// data.
type Relay struct {
	users    store.UserStore
	messages store.MessageStore
	router   Router
}

// New creates a message relay.
func New(users store.UserStore, messages store.MessageStore, router Router) *Relay {
	return &Relay{users: users, messages: messages, router: router}
}

// Send persists a message from sender to receiver and emits the
// composed payload to both participants' rooms. Resolution or
// persistence failures abort the send with nothing stored or emitted;
// fanout failures are per-connection and never surface here. Emitting
// to a room with no members is fine, the message is stored regardless.
//
// sender == receiver is allowed; the room then receives the payload
// twice per connection, matching the double emit below.
func (r *Relay) Send(ctx context.Context, sender, receiver, content string) error {
	if content == "" {
		return ErrEmptyContent
	}

	senderUser, err := r.users.ByID(ctx, sender)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: sender %q", ErrParticipantNotFound, sender)
	}
	if err != nil {
		return fmt.Errorf("relay: resolve sender: %w", err)
	}

	receiverUser := senderUser
	if receiver != sender {
		receiverUser, err = r.users.ByID(ctx, receiver)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: receiver %q", ErrParticipantNotFound, receiver)
		}
		if err != nil {
			return fmt.Errorf("relay: resolve receiver: %w", err)
		}
	}

	msg := &message.Message{Sender: sender, Receiver: receiver, Content: content}
	if err := r.messages.Append(ctx, msg); err != nil {
		return fmt.Errorf("relay: persist message: %w", err)
	}

	payload := message.Compose(msg, senderUser, receiverUser)
	r.router.Emit(receiver, ws.EventMessage, payload)
	r.router.Emit(sender, ws.EventMessage, payload)
	return nil
}
