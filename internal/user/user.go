package user

import "time"

// User represents a registered account. PasswordHash is opaque to
// everything except the auth service and is never serialized.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Online       bool      `json:"online"`
	CreatedAt    time.Time `json:"created_at"`
}

// Ref is the public projection of a user embedded in message payloads
// and the user directory.
type Ref struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Ref returns the public projection of the user.
func (u *User) Ref() Ref {
	return Ref{ID: u.ID, Username: u.Username}
}
