package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fininsight/fininsight/internal/events"
	"github.com/fininsight/fininsight/internal/models"
	"github.com/fininsight/fininsight/internal/repo"
	"github.com/fininsight/fininsight/internal/transport"
	"github.com/fininsight/fininsight/pkg/hash"
	"github.com/fininsight/fininsight/pkg/logging"
	"github.com/fininsight/fininsight/pkg/tokens"
)

var (
	ErrValidation = errors.New("missing required fields")
	ErrConflict   = errors.New("user already exists")
	// ErrInvalidCredentials is deliberately the same for an unknown email and
	// a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidSession covers missing, malformed, expired and rotated-away
	// refresh tokens alike.
	ErrInvalidSession = errors.New("invalid session")
)

type Publisher interface {
	PublishEvent(ctx context.Context, key string, event any) error
}

type SessionService struct {
	Repo   repo.GormRepo
	Tokens *tokens.Issuer
	Events Publisher
}

// AuthResult carries everything a handler needs to answer a successful
// register/login: the body payload plus the cookie material.
type AuthResult struct {
	AccessToken string
	// RefreshToken is handed to the transport for the cookie only; it is
	// never part of a response body.
	RefreshToken string
	RefreshExp   time.Time
	User         transport.UserSummary
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *SessionService) Register(ctx context.Context, username, email, password string) (*AuthResult, error) {
	l := logging.FromContext(ctx).With("svc", "session.register")

	email = normalizeEmail(email)
	if username == "" || email == "" || password == "" {
		return nil, ErrValidation
	}

	pwHash, err := hash.HashPassword(password)
	if err != nil {
		l.Error("register failed", "reason", "cannot hash password", "error", err)
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := models.User{
		Username:     username,
		Email:        email,
		PasswordHash: pwHash,
		Topic:        "pending",
	}
	if err := s.Repo.CreateUser(ctx, &user); err != nil {
		if errors.Is(err, repo.ErrUserAlreadyExists) {
			l.Warn("register conflict", "email", email)
			return nil, ErrConflict
		}
		l.Error("register failed", "error", err)
		return nil, fmt.Errorf("create user: %w", err)
	}

	res, err := s.openSession(ctx, &user)
	if err != nil {
		l.Error("register failed", "error", err)
		return nil, err
	}

	s.publish(ctx, &user, events.TypeUserRegistered)
	l.Info("user registered", "user_id", user.ID.String())
	return res, nil
}

func (s *SessionService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	l := logging.FromContext(ctx).With("svc", "session.login")

	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrValidation
	}

	user, err := s.Repo.UserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			l.Warn("login failed", "reason", "unknown email")
			return nil, ErrInvalidCredentials
		}
		l.Error("login failed", "error", err)
		return nil, fmt.Errorf("find user: %w", err)
	}

	if !hash.CheckPassword(user.PasswordHash, password) {
		l.Warn("login failed", "reason", "password mismatch", "user_id", user.ID.String())
		return nil, ErrInvalidCredentials
	}

	res, err := s.openSession(ctx, user)
	if err != nil {
		l.Error("login failed", "error", err)
		return nil, err
	}

	s.publish(ctx, user, events.TypeUserLoggedIn)
	l.Info("login successful", "user_id", user.ID.String())
	return res, nil
}

// openSession mints both tokens and rotates the stored refresh digest. Any
// previously issued refresh token for this identity stops validating once
// the write lands.
func (s *SessionService) openSession(ctx context.Context, user *models.User) (*AuthResult, error) {
	accessToken, _, err := s.Tokens.IssueAccess(user.ID.String())
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}

	refreshToken, refreshExp, err := s.Tokens.IssueRefresh(user.ID.String())
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}

	if err := s.Repo.SetActiveRefreshToken(ctx, user.ID, hash.TokenDigest(refreshToken)); err != nil {
		return nil, fmt.Errorf("persist refresh token: %w", err)
	}

	return &AuthResult{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		RefreshExp:   refreshExp,
		User: transport.UserSummary{
			ID:       user.ID.String(),
			Username: user.Username,
			Email:    user.Email,
		},
	}, nil
}

// Authenticate resolves a refresh cookie into an identity. The presented
// token must match the stored session digest, so a cookie from before the
// latest rotation is rejected even though its signature still verifies.
func (s *SessionService) Authenticate(ctx context.Context, refreshToken string) (*models.User, error) {
	l := logging.FromContext(ctx).With("svc", "session.authenticate")

	if refreshToken == "" {
		return nil, ErrInvalidSession
	}

	claims, err := s.Tokens.VerifyRefresh(refreshToken)
	if err != nil {
		l.Warn("authenticate failed", "reason", "token verification", "error", err)
		return nil, ErrInvalidSession
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		l.Warn("authenticate failed", "reason", "malformed subject")
		return nil, ErrInvalidSession
	}

	user, err := s.Repo.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			l.Warn("authenticate failed", "reason", "unknown subject")
			return nil, ErrInvalidSession
		}
		l.Error("authenticate failed", "error", err)
		return nil, fmt.Errorf("find user: %w", err)
	}

	presented := []byte(hash.TokenDigest(refreshToken))
	stored := []byte(user.ActiveRefreshToken)
	if len(stored) == 0 || subtle.ConstantTimeCompare(presented, stored) != 1 {
		l.Warn("authenticate failed", "reason", "stale session", "user_id", user.ID.String())
		return nil, ErrInvalidSession
	}

	return user, nil
}

// Refresh mints a new access token for an already-authenticated identity.
// The refresh token itself is not rotated here; rotation happens on login.
func (s *SessionService) Refresh(ctx context.Context, user *models.User) (string, error) {
	accessToken, _, err := s.Tokens.IssueAccess(user.ID.String())
	if err != nil {
		return "", fmt.Errorf("issue access token: %w", err)
	}
	return accessToken, nil
}

func (s *SessionService) LogOut(ctx context.Context, userID uuid.UUID) error {
	l := logging.FromContext(ctx).With("svc", "session.logout")

	if err := s.Repo.ClearActiveRefreshToken(ctx, userID); err != nil {
		l.Error("logout failed", "error", err)
		return fmt.Errorf("clear refresh token: %w", err)
	}

	s.publish(ctx, &models.User{ID: userID}, events.TypeUserLoggedOut)
	l.Info("logout successful", "user_id", userID.String())
	return nil
}

// publish is best effort: a broker outage must not fail the auth request.
func (s *SessionService) publish(ctx context.Context, user *models.User, eventType string) {
	if s.Events == nil {
		return
	}
	ev := events.UserEvent{
		Type:       eventType,
		UserID:     user.ID.String(),
		Email:      user.Email,
		OccurredAt: time.Now().UTC(),
	}
	if err := s.Events.PublishEvent(ctx, ev.UserID, ev); err != nil {
		logging.FromContext(ctx).Warn("event publish failed", "type", eventType, "error", err)
	}
}
