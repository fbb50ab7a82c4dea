package evaluation

import (
	"time"

	"github.com/google/uuid"
)

// DailyEvaluation is one patient self-report, at most one per calendar day.
type DailyEvaluation struct {
	ID        uuid.UUID `json:"id"`
	PatientID uuid.UUID `json:"patient_id"`
	EvalDate  time.Time `json:"eval_date"`
	Mood      int       `json:"mood"`
	Anxiety   *int      `json:"anxiety,omitempty"`
	Sleep     *int      `json:"sleep,omitempty"`
	Note      *string   `json:"note,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

const (
	TrendImproving = "improving"
	TrendDeclining = "declining"
	TrendStable    = "stable"
)

// Stats aggregates a patient's evaluation series.
type Stats struct {
	Count       int     `json:"count"`
	AverageMood float64 `json:"average_mood"`
	Trend       string  `json:"trend"`
}
