// Package session reads the login state the app persists locally:
// the bearer token and the user profile.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/blockedby/stagesync/internal/apperr"
	"github.com/blockedby/stagesync/internal/models"
)

// KV is the local key-value store.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Session exposes userToken and userData.
type Session struct {
	kv KV
}

// New creates a session reader over kv.
func New(kv KV) *Session {
	return &Session{kv: kv}
}

// Token returns the bearer token. A missing token is apperr.ErrAuth.
func (s *Session) Token(ctx context.Context) (string, error) {
	token, ok, err := s.kv.Get(ctx, models.KeyUserToken)
	if err != nil {
		return "", fmt.Errorf("read token: %w", err)
	}
	token = strings.TrimSpace(token)
	if !ok || token == "" {
		return "", fmt.Errorf("read token: %w", apperr.ErrAuth)
	}
	return token, nil
}

// Email returns the logged-in student's email.
func (s *Session) Email(ctx context.Context) (string, error) {
	raw, ok, err := s.kv.Get(ctx, models.KeyUserData)
	if err != nil {
		return "", fmt.Errorf("read user data: %w", err)
	}
	if !ok {
		return "", fmt.Errorf("read user data: %w", apperr.ErrAuth)
	}
	data, err := models.ParseUserData(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %w", apperr.ErrPersistence, err)
	}
	return data.Profile().Email, nil
}

// Save stores a fresh login, in the same shape the login screen writes.
func (s *Session) Save(ctx context.Context, token string, profile models.UserProfile) error {
	payload, err := json.Marshal(struct {
		UserData models.UserProfile `json:"userData"`
	}{profile})
	if err != nil {
		return fmt.Errorf("encode user data: %w", err)
	}
	if err := s.kv.Set(ctx, models.KeyUserData, string(payload)); err != nil {
		return err
	}
	return s.kv.Set(ctx, models.KeyUserToken, token)
}

// Clear forgets the login.
func (s *Session) Clear(ctx context.Context) error {
	if err := s.kv.Delete(ctx, models.KeyUserToken); err != nil {
		return err
	}
	return s.kv.Delete(ctx, models.KeyUserData)
}
