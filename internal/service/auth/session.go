// Package auth keeps the signed-in user's token and id, persisted in blob storage.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"zonewatch/internal/logger"
	"zonewatch/internal/model"
	"zonewatch/internal/service/storage"
	"zonewatch/internal/service/visit"
)

const (
	TokenKey  = "token"
	UserIDKey = "userId"
)

var (
	ErrNetwork      = errors.New("auth: network error")
	ErrUnauthorized = errors.New("auth: not signed in")
)

// Error is a non-2xx answer from the auth backend
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("auth: status %d: %s", e.Status, e.Message)
}

type User struct {
	ID       model.FlexibleID `json:"id"`
	Username string           `json:"username"`
	Email    string           `json:"email"`
}

type authResponse struct {
	JWT  string `json:"jwt"`
	User User   `json:"user"`
}

// Session is the single signed-in identity of the process
type Session struct {
	baseURL string
	client  *http.Client
	store   storage.BlobStore

	mu    sync.RWMutex
	token string
	user  *User
}

func NewSession(baseURL string, timeout time.Duration, store storage.BlobStore) *Session {
	return &Session{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		store:   store,
	}
}

// Login exchanges credentials for a token and persists it
func (s *Session) Login(ctx context.Context, identifier, password string) (*User, error) {
	return s.authenticate(ctx, "/api/auth/local", map[string]string{
		"identifier": identifier,
		"password":   password,
	})
}

// Register creates an account and signs it in
func (s *Session) Register(ctx context.Context, username, email, password string) (*User, error) {
	return s.authenticate(ctx, "/api/auth/register", map[string]string{
		"name":     username,
		"username": username,
		"email":    email,
		"password": password,
	})
}

func (s *Session) authenticate(ctx context.Context, path string, payload map[string]string) (*User, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	var res authResponse
	if err := s.do(req, &res); err != nil {
		return nil, err
	}
	if res.JWT == "" {
		return nil, &Error{Status: http.StatusBadGateway, Message: "response carries no token"}
	}

	if err := s.persist(ctx, res.JWT, &res.User); err != nil {
		return nil, err
	}
	logger.L().Info("auth_signed_in", "user_id", res.User.ID)
	return &res.User, nil
}

// Me fetches the current user with the stored token
func (s *Session) Me(ctx context.Context) (*User, error) {
	token := s.Token()
	if token == "" {
		return nil, ErrUnauthorized
	}
	return s.me(ctx, token)
}

func (s *Session) me(ctx context.Context, token string) (*User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/api/users/me", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	var u User
	if err := s.do(req, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Restore reloads a persisted token and validates it against the backend.
// A rejected token is cleared; a network failure keeps it for a later attempt.
func (s *Session) Restore(ctx context.Context) (*User, error) {
	raw, err := s.store.Get(ctx, TokenKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrUnauthorized
	}
	if err != nil {
		return nil, fmt.Errorf("error reading token: %w", err)
	}
	token := string(raw)

	u, err := s.me(ctx, token)
	var aerr *Error
	if errors.As(err, &aerr) {
		logger.L().Warn("auth_token_rejected", "status", aerr.Status)
		s.Logout(ctx)
		return nil, ErrUnauthorized
	}
	if err != nil {
		s.mu.Lock()
		s.token = token
		if id, err := s.store.Get(ctx, UserIDKey); err == nil {
			s.user = &User{ID: model.FlexibleID(id)}
		}
		s.mu.Unlock()
		return nil, err
	}

	if err := s.persist(ctx, token, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Logout forgets the identity in memory and in storage
func (s *Session) Logout(ctx context.Context) error {
	s.mu.Lock()
	s.token = ""
	s.user = nil
	s.mu.Unlock()

	if err := s.store.Remove(ctx, TokenKey); err != nil {
		return err
	}
	return s.store.Remove(ctx, UserIDKey)
}

func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *Session) User() *User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// Identity implements visit.IdentityProvider
func (s *Session) Identity(context.Context) visit.Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id := visit.Identity{Token: s.token}
	if s.user != nil && s.user.ID != "" {
		uid := string(s.user.ID)
		id.UserID = &uid
	}
	return id
}

func (s *Session) persist(ctx context.Context, token string, u *User) error {
	if err := s.store.Set(ctx, TokenKey, []byte(token)); err != nil {
		return fmt.Errorf("error saving token: %w", err)
	}
	if err := s.store.Set(ctx, UserIDKey, []byte(u.ID)); err != nil {
		return fmt.Errorf("error saving user id: %w", err)
	}

	s.mu.Lock()
	s.token = token
	cp := *u
	s.user = &cp
	s.mu.Unlock()
	return nil
}

func (s *Session) do(req *http.Request, into any) error {
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		aerr := &Error{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var env struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(raw, &env) == nil && env.Error.Message != "" {
			aerr.Message = env.Error.Message
		}
		return aerr
	}

	if err := json.Unmarshal(raw, into); err != nil {
		return fmt.Errorf("error decoding auth response: %w", err)
	}
	return nil
}
