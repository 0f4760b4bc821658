package tokenmanager

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/nkiryanov/authcore/internal/apperrors"
	"github.com/nkiryanov/authcore/internal/clock"
	"github.com/nkiryanov/authcore/internal/logger"
	"github.com/nkiryanov/authcore/internal/models"
	"github.com/nkiryanov/authcore/internal/service/auth/tokencodec"
)

const (
	defaultAccessTokenTTL  = 15 * time.Minute
	defaultRefreshTokenTTL = 7 * 24 * time.Hour
)

// Registry of live refresh token ids
type refreshRegistry interface {
	Register(tokenID string, subject string, expiresAt time.Time)

	// Delete the entry if it is live, report whether it was
	Consume(tokenID string) (subject string, ok bool)

	Revoke(tokenID string) bool
	RevokeAllForSubject(subject string) int
}

// Token manager with sensible default
type Config struct {
	// Secret key to sign tokens
	// Required to be set, at least 32 bytes
	SecretKey string

	// Token envelope: issuer and audience
	// If not set than default is used
	Issuer   string
	Audience string

	// Access and refresh token lifetimes
	// If not set than default is used
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// Time and randomness sources
	// If not set than real clock and crypto/rand are used
	Clock clock.Clock
	Rand  io.Reader
}

type TokenManager struct {
	codec *tokencodec.Codec
	clock clock.Clock

	// Access and refresh token lifetimes
	accessTTL  time.Duration
	refreshTTL time.Duration

	// Live refresh tokens
	registry refreshRegistry

	logger logger.Logger
}

func New(cfg Config, registry refreshRegistry, l logger.Logger) (*TokenManager, error) {
	if registry == nil {
		return nil, errors.New("refresh registry must not be nil")
	}
	if l == nil {
		l = logger.NewNoOpLogger()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}

	setDefaultDuration := func(field *time.Duration, def time.Duration) {
		if *field == 0 {
			*field = def
		}
	}
	setDefaultDuration(&cfg.AccessTTL, defaultAccessTokenTTL)
	setDefaultDuration(&cfg.RefreshTTL, defaultRefreshTokenTTL)

	if cfg.RefreshTTL <= cfg.AccessTTL {
		return nil, fmt.Errorf("refresh ttl (%s) must be longer than access ttl (%s)", cfg.RefreshTTL, cfg.AccessTTL)
	}

	codec, err := tokencodec.New(tokencodec.Config{
		Secret:   []byte(cfg.SecretKey),
		Issuer:   cfg.Issuer,
		Audience: cfg.Audience,
		Rand:     cfg.Rand,
	}, cfg.Clock)
	if err != nil {
		return nil, fmt.Errorf("error while creating token codec. Err: %w", err)
	}

	return &TokenManager{
		codec:      codec,
		clock:      cfg.Clock,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		registry:   registry,
		logger:     l,
	}, nil
}

// IssuePair creates access and refresh tokens for subject and registers the refresh one
func (m *TokenManager) IssuePair(subject string, secondaryID string) (models.TokenPair, error) {
	var pair models.TokenPair

	access, accessClaims, err := m.codec.Issue(tokencodec.Claims{
		Subject:     subject,
		SecondaryID: secondaryID,
		Kind:        tokencodec.KindAccess,
	}, m.accessTTL)
	if err != nil {
		return pair, fmt.Errorf("error while issuing access token. Err: %w", err)
	}

	refresh, refreshClaims, err := m.codec.Issue(tokencodec.Claims{
		Subject:     subject,
		SecondaryID: secondaryID,
		Kind:        tokencodec.KindRefresh,
	}, m.refreshTTL)
	if err != nil {
		return pair, fmt.Errorf("error while issuing refresh token. Err: %w", err)
	}

	m.registry.Register(refreshClaims.ID, subject, refreshClaims.ExpiresAt)

	return models.TokenPair{
		Access:    models.IssuedToken{Value: access, ExpiresAt: accessClaims.ExpiresAt},
		Refresh:   models.IssuedToken{Value: refresh, ExpiresAt: refreshClaims.ExpiresAt},
		AccessTTL: m.accessTTL,
	}, nil
}

// Parse and validate access token, return its subject
// Registry is not consulted: access tokens are contained by their short lifetime
func (m *TokenManager) VerifyAccess(access string) (subject string, err error) {
	claims, err := m.verifyKind(access, tokencodec.KindAccess)
	if err != nil {
		return "", err
	}

	return claims.Subject, nil
}

// Rotate exchanges a live refresh token for a fresh pair
// The old refresh token is consumed: a second rotation with it fails with ErrRefreshTokenRevoked
func (m *TokenManager) Rotate(refresh string) (models.TokenPair, error) {
	claims, err := m.verifyKind(refresh, tokencodec.KindRefresh)
	if err != nil {
		return models.TokenPair{}, err
	}

	if _, ok := m.registry.Consume(claims.ID); !ok {
		m.logger.Warn("Refresh token reuse or unknown token", "subject", claims.Subject, "jti", claims.ID)
		return models.TokenPair{}, fmt.Errorf("error while rotating refresh token. Err: %w", apperrors.ErrRefreshTokenRevoked)
	}

	pair, err := m.IssuePair(claims.Subject, claims.SecondaryID)
	if err != nil {
		return pair, err
	}

	m.logger.Debug("Refresh token rotated", "subject", claims.Subject, "jti", claims.ID)
	return pair, nil
}

// Revoke one session (logout). Reports whether the refresh token was still registered
func (m *TokenManager) Revoke(refresh string) (bool, error) {
	claims, err := m.verifyKind(refresh, tokencodec.KindRefresh)
	if err != nil {
		return false, err
	}

	return m.registry.Revoke(claims.ID), nil
}

// Revoke every session of subject, return number of refresh tokens revoked
func (m *TokenManager) RevokeAllForSubject(subject string) int {
	count := m.registry.RevokeAllForSubject(subject)
	m.logger.Info("All sessions revoked", "subject", subject, "count", count)
	return count
}

// IsExpiringSoon is an advisory check for clients to rotate before hard expiry
// Signature is NOT verified; never use it for access control
// Undecodable tokens are reported as expiring
func (m *TokenManager) IsExpiringSoon(token string, threshold time.Duration) bool {
	claims, err := m.codec.DecodeUnsafe(token)
	if err != nil {
		return true
	}

	return claims.ExpiresAt.Sub(m.clock.Now()) <= threshold
}

func (m *TokenManager) AccessTTL() time.Duration  { return m.accessTTL }
func (m *TokenManager) RefreshTTL() time.Duration { return m.refreshTTL }

func (m *TokenManager) verifyKind(token string, kind tokencodec.Kind) (tokencodec.Claims, error) {
	claims, err := m.codec.Verify(token)
	if err != nil {
		return claims, fmt.Errorf("error while verifying %s token. Err: %w", kind, err)
	}

	if claims.Kind != kind {
		return tokencodec.Claims{}, fmt.Errorf("expected %s token, got %s. Err: %w: %w", kind, claims.Kind, apperrors.ErrTokenKindMismatch, apperrors.ErrTokenMalformed)
	}

	return claims, nil
}
