// Package auth ties users, tokens, login guard and csrf guard into login sessions.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/authcore/internal/apperrors"
	"github.com/nkiryanov/authcore/internal/clock"
	"github.com/nkiryanov/authcore/internal/logger"
	"github.com/nkiryanov/authcore/internal/models"
	"github.com/nkiryanov/authcore/internal/service/loginguard"
)

type tokenManager interface {
	IssuePair(subject string, secondaryID string) (models.TokenPair, error)
	Rotate(refresh string) (models.TokenPair, error)
	Revoke(refresh string) (bool, error)
	RevokeAllForSubject(subject string) int
	AccessTTL() time.Duration
	RefreshTTL() time.Duration
}

type userService interface {
	CreateUser(ctx context.Context, username string, password string) (models.User, error)

	// Has to return apperrors.ErrInvalidCredentials if user unknown or password wrong
	VerifyCredentials(ctx context.Context, username string, password string) (models.User, error)

	GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error)
}

type loginGuard interface {
	// Checks and takes an attempt slot in one step, attempt is nil when locked out
	Begin(identifier string) (loginguard.Status, *loginguard.Attempt)
}

type csrfGuard interface {
	Issue(subject string) (string, error)
	Verify(token string, subject string) bool
}

// Login refused until RetryAfter passes
type LockedOutError struct {
	RetryAfter time.Duration

	// RetryAfter rounded up to whole minutes
	Minutes int
}

func (e *LockedOutError) Error() string {
	return fmt.Sprintf("%s, retry after %s", apperrors.ErrLockedOut, e.RetryAfter)
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds
func (e *LockedOutError) RetryAfterSeconds() int {
	return clock.RoundUp(e.RetryAfter, time.Second)
}

func (e *LockedOutError) Unwrap() error {
	return apperrors.ErrLockedOut
}

type AuthService struct {
	transport

	tokens tokenManager
	users  userService
	guard  loginGuard
	csrf   csrfGuard
	logger logger.Logger
}

func NewService(cfg Config, tokens tokenManager, users userService, guard loginGuard, csrf csrfGuard, l logger.Logger) (*AuthService, error) {
	if tokens == nil || users == nil || guard == nil || csrf == nil {
		return nil, errors.New("token manager, user service, login guard and csrf guard must not be nil")
	}
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	return &AuthService{
		transport: newTransport(cfg, tokens.AccessTTL(), tokens.RefreshTTL()),
		tokens:    tokens,
		users:     users,
		guard:     guard,
		csrf:      csrf,
		logger:    l,
	}, nil
}

// Register user and issue the first token pair
func (s *AuthService) Register(ctx context.Context, username string, password string) (models.TokenPair, error) {
	user, err := s.users.CreateUser(ctx, username, password)
	if err != nil {
		return models.TokenPair{}, err
	}

	pair, err := s.tokens.IssuePair(user.Subject(), user.Username)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("error while issuing tokens. Err: %w", err)
	}

	return pair, nil
}

// Login checks credentials unless username is locked out for the client address
// Returns *LockedOutError if locked out, apperrors.ErrInvalidCredentials if credentials are wrong
func (s *AuthService) Login(ctx context.Context, username string, password string, clientAddr string) (models.TokenPair, error) {
	key := attemptKey(username, clientAddr)

	status, attempt := s.guard.Begin(key)
	if attempt == nil {
		s.logger.Warn("Login refused: locked out", "username", username, "client", clientAddr, "lockout_remaining", status.LockoutRemaining)
		return models.TokenPair{}, &LockedOutError{RetryAfter: status.LockoutRemaining, Minutes: status.LockoutMinutes()}
	}
	// No-op once the outcome is recorded
	defer attempt.Abandon()

	user, err := s.users.VerifyCredentials(ctx, username, password)
	switch {
	case err == nil:
	case errors.Is(err, apperrors.ErrInvalidCredentials):
		attempt.Failed()
		s.logger.Info("Login failed", "username", username, "client", clientAddr, "attempts_left", status.RemainingAttempts-1)
		return models.TokenPair{}, err
	default:
		return models.TokenPair{}, fmt.Errorf("error while checking credentials. Err: %w", err)
	}

	attempt.Succeeded()

	pair, err := s.tokens.IssuePair(user.Subject(), user.Username)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("error while issuing tokens. Err: %w", err)
	}

	return pair, nil
}

// Refresh exchanges refresh token for a new pair, the old one can't be used again
func (s *AuthService) Refresh(ctx context.Context, refresh string) (models.TokenPair, error) {
	return s.tokens.Rotate(refresh)
}

// Logout ends the session the refresh token belongs to
func (s *AuthService) Logout(ctx context.Context, refresh string) (bool, error) {
	return s.tokens.Revoke(refresh)
}

// LogoutAll ends every session of subject, returns number of ended sessions
func (s *AuthService) LogoutAll(ctx context.Context, subject string) int {
	return s.tokens.RevokeAllForSubject(subject)
}

func (s *AuthService) IssueCSRF(subject string) (string, error) {
	return s.csrf.Issue(subject)
}

func (s *AuthService) VerifyCSRF(token string, subject string) bool {
	return s.csrf.Verify(token, subject)
}

// GetUser by token subject
func (s *AuthService) GetUser(ctx context.Context, subject string) (models.User, error) {
	id, err := uuid.Parse(subject)
	if err != nil {
		return models.User{}, apperrors.ErrUserNotFound
	}
	return s.users.GetUserByID(ctx, id)
}

// Failures are counted per username and client address pair
func attemptKey(username string, clientAddr string) string {
	return username + "|" + clientAddr
}
