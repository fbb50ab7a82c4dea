package sessionnote

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusUploaded   = "uploaded"
	StatusProcessing = "processing"
	StatusProcessed  = "processed"
	StatusFailed     = "failed"
)

// SessionNote is an uploaded session document plus its AI digest. The blob
// itself lives in object storage under ObjectKey.
type SessionNote struct {
	ID                 uuid.UUID  `json:"id"`
	PatientID          uuid.UUID  `json:"patient_id"`
	ProfessionalID     uuid.UUID  `json:"professional_id"`
	SessionDate        time.Time  `json:"session_date"`
	ObjectKey          string     `json:"-"`
	FileName           string     `json:"file_name"`
	ContentType        string     `json:"content_type"`
	FileSize           int64      `json:"file_size"`
	RawText            *string    `json:"raw_text,omitempty"`
	SummaryText        *string    `json:"summary_text,omitempty"`
	SummaryKeywords    []string   `json:"summary_keywords,omitempty"`
	SummaryThemes      []string   `json:"summary_themes,omitempty"`
	SummaryGeneratedAt *time.Time `json:"summary_generated_at,omitempty"`
	Status             string     `json:"status"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}
