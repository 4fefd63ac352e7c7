package models

import (
	"time"

	"github.com/google/uuid"
)

// OddsMode identifies how a batch of bucket probabilities was applied
type OddsMode string

const (
	// OddsModeSeed overwrites every supplied threshold
	OddsModeSeed OddsMode = "seed"
	// OddsModeMaintain writes only thresholds whose new probability is below MaintainCutoff
	OddsModeMaintain OddsMode = "maintain"
)

// MaintainCutoff is the probability at and above which odds are frozen during maintenance
const MaintainCutoff = 0.5

// OddsEntry is the market state for one threshold of one course
type OddsEntry struct {
	CourseID    uuid.UUID `db:"course_id" json:"-"`
	Threshold   float64   `db:"threshold" json:"threshold"`
	Probability *float64  `db:"probability" json:"probability"`
	Shares      int       `db:"shares" json:"shares"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Bucket is a computed {threshold, probability} pair for the market "final grade >= threshold"
type Bucket struct {
	Threshold   float64 `json:"threshold" validate:"gte=0,lte=100"`
	Probability float64 `json:"probability" validate:"gte=0,lte=1"`
}

// OddsSyncResult reports what an odds update wrote
type OddsSyncResult struct {
	Mode    OddsMode  `json:"mode"`
	Updated []float64 `json:"updated"`
	Skipped bool      `json:"skipped"`
}
