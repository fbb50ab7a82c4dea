package sessionnote

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, n *SessionNote) error
	GetByID(ctx context.Context, id uuid.UUID) (*SessionNote, error)
	ListByPatient(ctx context.Context, patientID, professionalID uuid.UUID) ([]*SessionNote, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
	// UpdateSummary stores the extraction and digest fields and moves the
	// note to the given status.
	UpdateSummary(ctx context.Context, n *SessionNote) error
	Delete(ctx context.Context, id uuid.UUID) error
}
