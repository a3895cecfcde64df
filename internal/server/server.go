package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"chat-relay/internal/auth"
	"chat-relay/internal/message"
	"chat-relay/internal/ratelimit"
	"chat-relay/internal/store"
	"chat-relay/internal/user"
)

// Server is the HTTP surface: account endpoints, message history, the
// WebSocket upgrade route, and health.
type Server struct {
	auth     *auth.Service
	users    store.UserStore
	messages store.MessageStore
	limiter  *ratelimit.Limiter
	mux      *http.ServeMux
	srv      *http.Server
}

// New creates a Server listening on addr. The ws handler is mounted at
// GET /ws; signup and login sit behind the rate limiter.
func New(addr string, authSvc *auth.Service, users store.UserStore, messages store.MessageStore, wsHandler http.Handler) *Server {
	s := &Server{
		auth:     authSvc,
		users:    users,
		messages: messages,
		limiter:  ratelimit.New(20, time.Minute),
		mux:      http.NewServeMux(),
	}
	s.routes(wsHandler)
	s.srv = &http.Server{Addr: addr, Handler: s.mux}
	return s
}

// Run starts the HTTP server and blocks until it stops.
func (s *Server) Run() error {
	return s.srv.ListenAndServe()
}

// Shutdown stops accepting requests and drains in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// Handler exposes the mux, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes(wsHandler http.Handler) {
	s.mux.HandleFunc("POST /auth/signup", s.limiter.Wrap(s.handleSignup))
	s.mux.HandleFunc("POST /auth/login", s.limiter.Wrap(s.handleLogin))
	s.mux.HandleFunc("GET /auth/me", s.handleMe)
	s.mux.HandleFunc("GET /auth/users", s.handleUsers)
	s.mux.HandleFunc("GET /messages/{userID}", s.handleMessages)
	if wsHandler != nil {
		s.mux.Handle("GET /ws", wsHandler)
	}
	s.mux.HandleFunc("GET /health", s.handleHealth)
}

// credentials is the request body for signup and login.
type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var creds credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if _, err := s.auth.Signup(r.Context(), creds.Username, creds.Password); err != nil {
		if errors.Is(err, store.ErrUsernameTaken) || errors.Is(err, auth.ErrMissingFields) {
			writeError(w, http.StatusBadRequest, "user creation failed")
			return
		}
		writeError(w, http.StatusInternalServerError, "user creation failed")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"message": "user created successfully"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	token, err := s.auth.Login(r.Context(), creds.Username, creds.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		writeError(w, http.StatusBadRequest, "invalid credentials")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerToken(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "access denied")
		return
	}

	id, err := s.auth.Verify(token)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid token")
		return
	}

	u, err := s.users.ByID(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to retrieve user")
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	refs, err := s.users.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to fetch users")
		return
	}
	if refs == nil {
		refs = []user.Ref{}
	}
	writeJSON(w, http.StatusOK, refs)
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.messages.ByParticipant(r.Context(), r.PathValue("userID"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to retrieve messages")
		return
	}
	if msgs == nil {
		msgs = []*message.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// bearerToken extracts the token from an Authorization: Bearer header.
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return "", false
	}
	return token, true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
