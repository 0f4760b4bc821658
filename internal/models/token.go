package models

import (
	"time"
)

type IssuedToken struct {
	Value     string
	ExpiresAt time.Time
}

// Token pair issued by TokenManager, AuthService
type TokenPair struct {
	Access  IssuedToken
	Refresh IssuedToken

	// Lifetime of the access token at issue time
	AccessTTL time.Duration
}

func (p TokenPair) AccessTTLSeconds() int64 {
	return int64(p.AccessTTL / time.Second)
}
