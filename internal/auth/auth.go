package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"chat-relay/internal/store"
	"chat-relay/internal/user"
)

var (
	// ErrInvalidCredentials covers both unknown usernames and password
	// mismatches, so login failures don't leak which one happened.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")

	// ErrInvalidToken is returned when a bearer token fails verification.
	ErrInvalidToken = errors.New("auth: invalid token")

	// ErrMissingFields is returned when username or password is empty.
	ErrMissingFields = errors.New("auth: username and password are required")
)

// Claims is the JWT payload for issued tokens.
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// Service implements account creation, credential verification, and
// token issue/verify over a UserStore.
type Service struct {
	users  store.UserStore
	secret []byte
	ttl    time.Duration
}

// NewService creates an auth service signing tokens with secret, valid
// for ttl.
func NewService(users store.UserStore, secret string, ttl time.Duration) *Service {
	return &Service{users: users, secret: []byte(secret), ttl: ttl}
}

// Signup creates a new account with a bcrypt-hashed password.
func (s *Service) Signup(ctx context.Context, username, password string) (*user.User, error) {
	if username == "" || password == "" {
		return nil, ErrMissingFields
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("auth: hash password: %w", err)
	}
	return s.users.Create(ctx, username, string(hash))
}

// Login verifies the credentials and returns a signed token.
func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	u, err := s.users.ByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return "", ErrInvalidCredentials
	}
	if err != nil {
		return "", err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return "", ErrInvalidCredentials
	}
	return s.issue(u.ID)
}

// issue signs an HS256 token carrying the user ID.
func (s *Service) issue(userID string) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "chat-relay",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a token, returning the user ID it was
// issued for.
func (s *Service) Verify(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return "", ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return "", ErrInvalidToken
	}
	return claims.UserID, nil
}
