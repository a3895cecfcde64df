package message

import (
	"time"

	"chat-relay/internal/user"
)

// Message is one persisted direct message. Messages are immutable once
// stored; there is no edit or delete path.
type Message struct {
	ID        string    `json:"id"`
	Sender    string    `json:"sender"`
	Receiver  string    `json:"receiver"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Delivery is the composed payload fanned out to both participants'
// rooms after a message is persisted. Sender and receiver carry display
// data so clients don't need a directory lookup per message.
type Delivery struct {
	ID        string    `json:"id"`
	Sender    user.Ref  `json:"sender"`
	Receiver  user.Ref  `json:"receiver"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Compose builds the delivery payload for a stored message.
func Compose(msg *Message, sender, receiver *user.User) Delivery {
	return Delivery{
		ID:        msg.ID,
		Sender:    sender.Ref(),
		Receiver:  receiver.Ref(),
		Content:   msg.Content,
		CreatedAt: msg.CreatedAt,
	}
}
