package models

import (
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Course is a user's enrollment with a latent final grade and its per-threshold markets
type Course struct {
	ID          uuid.UUID   `db:"id" json:"id"`
	UserID      uuid.UUID   `db:"user_id" json:"user_id"`
	Code        string      `db:"code" json:"code" validate:"required"`
	Grade       *float64    `db:"grade" json:"grade"`
	Past        bool        `db:"past" json:"past"`
	Contract    *string     `db:"contract" json:"contract"`
	CompletedAt *time.Time  `db:"completed_at" json:"completed_at"`
	Odds        []OddsEntry `json:"odds"`
	CreatedAt   time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at" json:"updated_at"`
}

// NormalizeCourseCode returns the canonical upper-case form of a course code
func NormalizeCourseCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// HasContract checks if an escrow contract is attached to the course
func (c *Course) HasContract() bool {
	return c.Contract != nil && *c.Contract != ""
}

// ContractAddress returns the escrow address or an empty string
func (c *Course) ContractAddress() string {
	if !c.HasContract() {
		return ""
	}
	return *c.Contract
}

// IsResolved checks if the final grade has been recorded
func (c *Course) IsResolved() bool {
	return c.Past && c.Grade != nil
}

// OddsFor returns the odds entry for a threshold
func (c *Course) OddsFor(threshold float64) (OddsEntry, bool) {
	for _, entry := range c.Odds {
		if entry.Threshold == threshold {
			return entry, true
		}
	}
	return OddsEntry{}, false
}

// ValidGrade reports whether g is a finite grade in [0,100]
func ValidGrade(g float64) bool {
	return !math.IsNaN(g) && !math.IsInf(g, 0) && g >= 0 && g <= 100
}
