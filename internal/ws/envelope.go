package ws

import "encoding/json"

// Event names carried in the envelope's type field.
const (
	EventJoin        = "join"
	EventMessage     = "message"
	EventUserOnline  = "user-online"
	EventUserOffline = "user-offline"
	EventError       = "error"
)

// Envelope is the JSON structure sent over the WebSocket in both
// directions. Payload shapes are tagged structs validated at this
// boundary before anything downstream sees them.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// JoinPayload binds the connection to a user's delivery room.
type JoinPayload struct {
	UserID string `json:"user_id"`
}

// SendPayload is a client request to deliver a message.
type SendPayload struct {
	Sender   string `json:"sender"`
	Receiver string `json:"receiver"`
	Content  string `json:"content"`
}

// ErrorPayload reports a rejected client event.
type ErrorPayload struct {
	Message string `json:"message"`
}

// MarshalEvent wraps a payload in an envelope of the given type.
func MarshalEvent(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: event, Payload: data})
}
