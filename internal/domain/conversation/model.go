package conversation

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusActive = "active"
	StatusClosed = "closed"
)

const (
	SenderPatient      = "patient"
	SenderAI           = "ai"
	SenderProfessional = "professional"
)

// Message is one transcript entry, stored inside the conversation's JSONB
// messages column. The color is a display hint derived from the sender.
type Message struct {
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	Color     string    `json:"color"`
	Timestamp time.Time `json:"timestamp"`
}

func senderColor(sender string) string {
	switch sender {
	case SenderPatient:
		return "blue"
	case SenderAI:
		return "green"
	case SenderProfessional:
		return "purple"
	}
	return ""
}

// NewMessage builds a transcript entry with the sender's display color.
func NewMessage(sender, content string) Message {
	return Message{Sender: sender, Content: content, Color: senderColor(sender), Timestamp: time.Now()}
}

// Evaluation is the patient's self-assessment recorded at close.
type Evaluation struct {
	GravityLevel int       `json:"gravity_level"`
	EvaluatedAt  time.Time `json:"evaluated_at"`
	Rationality  bool      `json:"rationality"`
}

// Summary is the AI digest generated at close.
type Summary struct {
	Keywords          []string  `json:"keywords"`
	MainConcern       string    `json:"main_concern"`
	UrgencyDetected   bool      `json:"urgency_detected"`
	RecommendedAction string    `json:"recommended_action"`
	GeneratedAt       time.Time `json:"generated_at"`
}

// Conversation maps to the conversations table. At most one active
// conversation exists per patient; closing is terminal.
type Conversation struct {
	ID             uuid.UUID   `db:"id" json:"id"`
	PatientID      uuid.UUID   `db:"patient_id" json:"patient_id"`
	ProfessionalID uuid.UUID   `db:"professional_id" json:"professional_id"`
	Status         string      `db:"status" json:"status"`
	Messages       []Message   `db:"messages" json:"messages"`
	StartedAt      time.Time   `db:"started_at" json:"started_at"`
	ClosedAt       *time.Time  `db:"closed_at" json:"closed_at,omitempty"`
	Evaluation     *Evaluation `json:"evaluation,omitempty"`
	Summary        *Summary    `json:"summary,omitempty"`
	CreatedAt      time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time   `db:"updated_at" json:"updated_at"`
}
