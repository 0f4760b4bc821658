package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/nkiryanov/authcore/internal/models"
)

const (
	defaultAccessHeaderName  = "Authorization"
	defaultAccessAuthScheme  = "Bearer"
	defaultAccessCookieName  = "accesstoken"
	defaultRefreshCookieName = "refreshtoken"
)

// How tokens travel over HTTP
// If not set than default is used
type Config struct {
	AccessHeaderName  string
	AccessAuthScheme  string
	AccessCookieName  string
	RefreshCookieName string

	// Mark cookies Secure, should be on behind TLS
	SecureCookies bool
}

type transport struct {
	accessHeaderName  string
	accessAuthScheme  string
	accessCookieName  string
	refreshCookieName string
	secureCookies     bool

	accessTTL  time.Duration
	refreshTTL time.Duration
}

func newTransport(cfg Config, accessTTL time.Duration, refreshTTL time.Duration) transport {
	setDefault := func(field *string, def string) {
		if *field == "" {
			*field = def
		}
	}
	setDefault(&cfg.AccessHeaderName, defaultAccessHeaderName)
	setDefault(&cfg.AccessAuthScheme, defaultAccessAuthScheme)
	setDefault(&cfg.AccessCookieName, defaultAccessCookieName)
	setDefault(&cfg.RefreshCookieName, defaultRefreshCookieName)

	return transport{
		accessHeaderName:  cfg.AccessHeaderName,
		accessAuthScheme:  cfg.AccessAuthScheme,
		accessCookieName:  cfg.AccessCookieName,
		refreshCookieName: cfg.RefreshCookieName,
		secureCookies:     cfg.SecureCookies,
		accessTTL:         accessTTL,
		refreshTTL:        refreshTTL,
	}
}

// SetTokenPair writes access token to header and both tokens to HttpOnly cookies
func (t transport) SetTokenPair(w http.ResponseWriter, pair models.TokenPair) {
	w.Header().Set(t.accessHeaderName, t.accessAuthScheme+" "+pair.Access.Value)
	http.SetCookie(w, t.cookie(t.accessCookieName, pair.Access.Value, t.accessTTL))
	http.SetCookie(w, t.cookie(t.refreshCookieName, pair.Refresh.Value, t.refreshTTL))
}

// ClearTokens asks the client to drop token cookies
func (t transport) ClearTokens(w http.ResponseWriter) {
	for _, name := range []string{t.accessCookieName, t.refreshCookieName} {
		c := t.cookie(name, "", 0)
		c.MaxAge = -1
		http.SetCookie(w, c)
	}
}

// ReadAccess returns access token from header with auth scheme or from cookie
// Empty string if none
func (t transport) ReadAccess(r *http.Request) string {
	if header := r.Header.Get(t.accessHeaderName); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if ok && strings.EqualFold(scheme, t.accessAuthScheme) {
			return strings.TrimSpace(token)
		}
		return ""
	}

	if c, err := r.Cookie(t.accessCookieName); err == nil {
		return c.Value
	}
	return ""
}

// ReadRefresh returns refresh token from cookie
func (t transport) ReadRefresh(r *http.Request) (string, error) {
	c, err := r.Cookie(t.refreshCookieName)
	if err != nil {
		return "", err
	}
	if c.Value == "" {
		return "", errors.New("refresh cookie is empty")
	}
	return c.Value, nil
}

func (t transport) cookie(name string, value string, ttl time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   t.secureCookies,
		SameSite: http.SameSiteStrictMode,
	}
}
