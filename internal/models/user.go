package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID             uuid.UUID
	CreatedAt      time.Time
	Username       string
	HashedPassword string
}

// Subject the user is known by in issued tokens
func (u User) Subject() string {
	return u.ID.String()
}
