package conversation

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository persists conversations. Messages travel as a whole transcript;
// a turn is appended in memory and written back in one statement so a failed
// AI call never leaves a half-persisted turn.
type Repository interface {
	Create(ctx context.Context, c *Conversation) error
	GetByID(ctx context.Context, id uuid.UUID) (*Conversation, error)
	GetActiveByPatient(ctx context.Context, patientID uuid.UUID) (*Conversation, error)
	UpdateMessages(ctx context.Context, id uuid.UUID, messages []Message) error
	Close(ctx context.Context, c *Conversation) error
	ListClosedByPatient(ctx context.Context, patientID uuid.UUID, limit int) ([]*Conversation, error)
	ListByProfessional(ctx context.Context, professionalID uuid.UUID, patientID *uuid.UUID, status string, limit int) ([]*Conversation, error)

	// Dashboard counters.
	CountActiveByProfessional(ctx context.Context, professionalID uuid.UUID) (int, error)
	CountHighGravityClosedSince(ctx context.Context, professionalID uuid.UUID, since time.Time) (int, error)
	CountCreatedPerDaySince(ctx context.Context, professionalID uuid.UUID, since time.Time) (map[string]int, error)
}
