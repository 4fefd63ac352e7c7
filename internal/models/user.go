package models

import (
	"time"

	"github.com/google/uuid"
)

// User is the owner of courses and bets, keyed by the identity provider subject
type User struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Sub       string    `db:"sub" json:"sub" validate:"required"`
	Email     string    `db:"email" json:"email,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
