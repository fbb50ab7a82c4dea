package notification

import (
	"time"

	"github.com/google/uuid"
)

const (
	TypeConversationStarted = "conversation_started"
	TypeHighGravity         = "high_gravity"
	TypeNoAppointment       = "no_appointment"
	TypeFollowUpNeeded      = "follow_up_needed"
	TypeNewPatient          = "new_patient"
)

const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// Notification maps to the notifications table. Push delivery is best effort;
// the row is the source of truth for the professional's in-app feed.
type Notification struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	ProfessionalID uuid.UUID  `db:"professional_id" json:"professional_id"`
	PatientID      *uuid.UUID `db:"patient_id" json:"patient_id,omitempty"`
	ConversationID *uuid.UUID `db:"conversation_id" json:"conversation_id,omitempty"`
	Type           string     `db:"type" json:"type"`
	Title          string     `db:"title" json:"title"`
	Message        string     `db:"message" json:"message"`
	Priority       string     `db:"priority" json:"priority"`
	Read           bool       `db:"read" json:"read"`
	ReadAt         *time.Time `db:"read_at" json:"read_at,omitempty"`
	Sent           bool       `db:"sent" json:"sent"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}
