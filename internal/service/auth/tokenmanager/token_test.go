package tokenmanager

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/authcore/internal/apperrors"
	"github.com/nkiryanov/authcore/internal/clock"
	"github.com/nkiryanov/authcore/internal/service/auth/revocation"
)

const testSecret = "test-secret-key-of-32-bytes-long"

var testNow = time.Date(2024, 1, 1, 19, 0, 0, 0, time.UTC)

func Test_TokenManager(t *testing.T) {
	t.Parallel()

	withManager := func(t *testing.T, accessTTL time.Duration, refreshTTL time.Duration, fn func(m *TokenManager, clk *clock.Mock, reg *revocation.Registry)) {
		clk := clock.NewMock(testNow)
		reg := revocation.New(clk)

		m, err := New(Config{
			SecretKey:  testSecret,
			AccessTTL:  accessTTL,
			RefreshTTL: refreshTTL,
			Clock:      clk,
		}, reg, nil)
		require.NoError(t, err, "token manager should be created without errors")

		fn(m, clk, reg)
	}

	t.Run("new defaults", func(t *testing.T) {
		m, err := New(Config{SecretKey: testSecret}, revocation.New(nil), nil)
		require.NoError(t, err, "token manager should be created without errors")

		require.Equal(t, defaultAccessTokenTTL, m.accessTTL, "default access token TTL should be set")
		require.Equal(t, defaultRefreshTokenTTL, m.refreshTTL, "default refresh token TTL")
	})

	t.Run("new fails", func(t *testing.T) {
		tests := []struct {
			name string
			cfg  Config
		}{
			{"empty secret", Config{}},
			{"short secret", Config{SecretKey: "secret"}},
			{"refresh shorter than access", Config{SecretKey: testSecret, AccessTTL: time.Hour, RefreshTTL: time.Minute}},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := New(tt.cfg, revocation.New(nil), nil)
				require.Error(t, err)
			})
		}

		t.Run("nil registry", func(t *testing.T) {
			_, err := New(Config{SecretKey: testSecret}, nil, nil)
			require.Error(t, err)
		})
	})

	t.Run("IssuePair", func(t *testing.T) {
		t.Run("return token pair", func(t *testing.T) {
			withManager(t, 15*time.Minute, 24*time.Hour, func(m *TokenManager, _ *clock.Mock, reg *revocation.Registry) {
				pair, err := m.IssuePair("user-1", "+15550001")

				require.NoError(t, err)
				assert.NotEmpty(t, pair.Access.Value, "access token should not be empty")
				assert.Equal(t, testNow.Add(15*time.Minute), pair.Access.ExpiresAt)
				assert.NotEmpty(t, pair.Refresh.Value, "refresh token should not be empty")
				assert.Equal(t, testNow.Add(24*time.Hour), pair.Refresh.ExpiresAt)
				assert.EqualValues(t, 15*60, pair.AccessTTLSeconds())
				assert.Equal(t, 1, reg.Len(), "refresh token has to be registered")
			})
		})

		t.Run("access claims", func(t *testing.T) {
			withManager(t, 15*time.Minute, 24*time.Hour, func(m *TokenManager, _ *clock.Mock, _ *revocation.Registry) {
				pair, err := m.IssuePair("user-1", "+15550001")
				require.NoError(t, err)

				// Parse and verify the access token with the library directly
				claims := jwt.MapClaims{}
				_, err = jwt.NewParser(jwt.WithTimeFunc(func() time.Time { return testNow })).ParseWithClaims(pair.Access.Value, claims, func(token *jwt.Token) (any, error) {
					return []byte(testSecret), nil
				})
				require.NoError(t, err)

				assert.Equal(t, "user-1", claims["sub"])
				assert.Equal(t, "+15550001", claims["sid"])
				assert.Equal(t, "access", claims["knd"])
				assert.NotEmpty(t, claims["jti"], "token has to has jti")
			})
		})

		t.Run("generate different tokens", func(t *testing.T) {
			withManager(t, 15*time.Minute, 24*time.Hour, func(m *TokenManager, _ *clock.Mock, _ *revocation.Registry) {
				pair1, err := m.IssuePair("user-1", "")
				require.NoError(t, err)

				pair2, err := m.IssuePair("user-1", "")
				require.NoError(t, err)

				assert.NotEqual(t, pair1.Refresh.Value, pair2.Refresh.Value, "refresh tokens should be different")
				assert.NotEqual(t, pair1.Access.Value, pair2.Access.Value, "access tokens should be different")
			})
		})
	})

	t.Run("VerifyAccess", func(t *testing.T) {
		t.Run("valid token", func(t *testing.T) {
			withManager(t, 15*time.Minute, 24*time.Hour, func(m *TokenManager, _ *clock.Mock, _ *revocation.Registry) {
				pair, err := m.IssuePair("user-1", "")
				require.NoError(t, err, "token pair should be generated without errors")

				subject, err := m.VerifyAccess(pair.Access.Value)
				require.NoError(t, err, "valid token should be parsed without errors")
				require.Equal(t, "user-1", subject)
			})
		})

		t.Run("not a token", func(t *testing.T) {
			withManager(t, 15*time.Minute, 24*time.Hour, func(m *TokenManager, _ *clock.Mock, _ *revocation.Registry) {
				_, err := m.VerifyAccess("invalid token")
				require.ErrorIs(t, err, apperrors.ErrTokenMalformed, "parsing even not a token should return an error")
			})
		})

		t.Run("expired token", func(t *testing.T) {
			withManager(t, time.Minute, time.Hour, func(m *TokenManager, clk *clock.Mock, _ *revocation.Registry) {
				pair, err := m.IssuePair("user-1", "")
				require.NoError(t, err)

				clk.Advance(time.Minute + time.Second)

				_, err = m.VerifyAccess(pair.Access.Value)
				require.ErrorIs(t, err, apperrors.ErrTokenExpired, "token has to become expired")
			})
		})

		t.Run("refresh token refused", func(t *testing.T) {
			withManager(t, 15*time.Minute, 24*time.Hour, func(m *TokenManager, _ *clock.Mock, _ *revocation.Registry) {
				pair, err := m.IssuePair("user-1", "")
				require.NoError(t, err)

				_, err = m.VerifyAccess(pair.Refresh.Value)
				require.ErrorIs(t, err, apperrors.ErrTokenKindMismatch)
			})
		})

		t.Run("still valid after session revoke", func(t *testing.T) {
			withManager(t, 15*time.Minute, 24*time.Hour, func(m *TokenManager, _ *clock.Mock, _ *revocation.Registry) {
				pair, err := m.IssuePair("user-1", "")
				require.NoError(t, err)
				require.Equal(t, 1, m.RevokeAllForSubject("user-1"))

				_, err = m.VerifyAccess(pair.Access.Value)
				require.NoError(t, err, "access tokens are bounded by ttl, not by registry")
			})
		})
	})

	t.Run("Rotate", func(t *testing.T) {
		t.Run("rotate once", func(t *testing.T) {
			withManager(t, 15*time.Minute, 24*time.Hour, func(m *TokenManager, _ *clock.Mock, reg *revocation.Registry) {
				pair, err := m.IssuePair("user-1", "+15550001")
				require.NoError(t, err)

				newPair, err := m.Rotate(pair.Refresh.Value)
				require.NoError(t, err, "rotating refresh token should not return an error")

				require.NotEqual(t, pair.Refresh.Value, newPair.Refresh.Value)
				subject, err := m.VerifyAccess(newPair.Access.Value)
				require.NoError(t, err)
				require.Equal(t, "user-1", subject)
				require.Equal(t, 1, reg.Len(), "old entry consumed, new one registered")
			})
		})

		t.Run("rotate twice", func(t *testing.T) {
			withManager(t, 15*time.Minute, 24*time.Hour, func(m *TokenManager, _ *clock.Mock, _ *revocation.Registry) {
				pair, err := m.IssuePair("user-1", "")
				require.NoError(t, err)
				other, err := m.IssuePair("user-2", "")
				require.NoError(t, err)

				_, err = m.Rotate(pair.Refresh.Value)
				require.NoError(t, err)

				_, err = m.Rotate(other.Refresh.Value)
				require.NoError(t, err, "unrelated tokens are not affected")

				_, err = m.Rotate(pair.Refresh.Value)
				require.ErrorIs(t, err, apperrors.ErrRefreshTokenRevoked, "using the same refresh token again should return an error")
			})
		})

		t.Run("concurrent rotation single winner", func(t *testing.T) {
			withManager(t, 15*time.Minute, 24*time.Hour, func(m *TokenManager, _ *clock.Mock, _ *revocation.Registry) {
				pair, err := m.IssuePair("user-1", "")
				require.NoError(t, err)

				var wins, revoked atomic.Int32
				var wg sync.WaitGroup
				for range 20 {
					wg.Add(1)
					go func() {
						defer wg.Done()
						_, err := m.Rotate(pair.Refresh.Value)
						switch {
						case err == nil:
							wins.Add(1)
						case assert.ErrorIs(t, err, apperrors.ErrRefreshTokenRevoked):
							revoked.Add(1)
						}
					}()
				}
				wg.Wait()

				require.EqualValues(t, 1, wins.Load())
				require.EqualValues(t, 19, revoked.Load())
			})
		})

		t.Run("access token refused", func(t *testing.T) {
			withManager(t, 15*time.Minute, 24*time.Hour, func(m *TokenManager, _ *clock.Mock, _ *revocation.Registry) {
				pair, err := m.IssuePair("user-1", "")
				require.NoError(t, err)

				_, err = m.Rotate(pair.Access.Value)
				require.ErrorIs(t, err, apperrors.ErrTokenKindMismatch)
			})
		})

		t.Run("expired token", func(t *testing.T) {
			withManager(t, time.Second, 2*time.Second, func(m *TokenManager, clk *clock.Mock, _ *revocation.Registry) {
				pair, err := m.IssuePair("user-1", "")
				require.NoError(t, err)

				clk.Advance(3 * time.Second)

				_, err = m.Rotate(pair.Refresh.Value)
				require.ErrorIs(t, err, apperrors.ErrTokenExpired, "using expired refresh token should return an error")
			})
		})

		t.Run("swept token", func(t *testing.T) {
			withManager(t, 15*time.Minute, 24*time.Hour, func(m *TokenManager, _ *clock.Mock, reg *revocation.Registry) {
				pair, err := m.IssuePair("user-1", "")
				require.NoError(t, err)

				// Sweep as if far in the future: the entry is gone while the token itself is still verifiable now
				require.Equal(t, 1, reg.Sweep(testNow.Add(48*time.Hour)))

				_, err = m.Rotate(pair.Refresh.Value)
				require.ErrorIs(t, err, apperrors.ErrRefreshTokenRevoked)
			})
		})
	})

	t.Run("Revoke", func(t *testing.T) {
		withManager(t, 15*time.Minute, 24*time.Hour, func(m *TokenManager, _ *clock.Mock, _ *revocation.Registry) {
			pair, err := m.IssuePair("user-1", "")
			require.NoError(t, err)

			ok, err := m.Revoke(pair.Refresh.Value)
			require.NoError(t, err)
			require.True(t, ok)

			ok, err = m.Revoke(pair.Refresh.Value)
			require.NoError(t, err)
			require.False(t, ok, "second revoke reports nothing revoked")

			_, err = m.Rotate(pair.Refresh.Value)
			require.ErrorIs(t, err, apperrors.ErrRefreshTokenRevoked)

			_, err = m.Revoke(pair.Access.Value)
			require.ErrorIs(t, err, apperrors.ErrTokenKindMismatch, "access token can't be used for logout")
		})
	})

	t.Run("RevokeAllForSubject", func(t *testing.T) {
		withManager(t, 15*time.Minute, 24*time.Hour, func(m *TokenManager, _ *clock.Mock, _ *revocation.Registry) {
			var victims []string
			for range 3 {
				pair, err := m.IssuePair("user-1", "")
				require.NoError(t, err)
				victims = append(victims, pair.Refresh.Value)
			}
			survivor, err := m.IssuePair("user-2", "")
			require.NoError(t, err)

			require.Equal(t, 3, m.RevokeAllForSubject("user-1"))

			for _, refresh := range victims {
				_, err := m.Rotate(refresh)
				require.ErrorIs(t, err, apperrors.ErrRefreshTokenRevoked)
			}
			_, err = m.Rotate(survivor.Refresh.Value)
			require.NoError(t, err, "other subject sessions must stay rotatable")
		})
	})

	t.Run("IsExpiringSoon", func(t *testing.T) {
		withManager(t, 15*time.Minute, 24*time.Hour, func(m *TokenManager, clk *clock.Mock, _ *revocation.Registry) {
			pair, err := m.IssuePair("user-1", "")
			require.NoError(t, err)

			require.False(t, m.IsExpiringSoon(pair.Access.Value, 5*time.Minute))

			clk.Advance(11 * time.Minute)
			require.True(t, m.IsExpiringSoon(pair.Access.Value, 5*time.Minute))

			require.True(t, m.IsExpiringSoon("garbage", time.Minute), "undecodable token has to be refreshed")
		})
	})
}
