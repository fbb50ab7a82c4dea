package identity

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ProfessionalRepository persists professional accounts.
type ProfessionalRepository interface {
	Create(ctx context.Context, p *Professional) error
	GetByID(ctx context.Context, id uuid.UUID) (*Professional, error)
	GetByEmail(ctx context.Context, email string) (*Professional, error)
	Update(ctx context.Context, p *Professional) error
	UpdatePushToken(ctx context.Context, id uuid.UUID, token string) error
}

// PatientRepository persists patient records.
type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetByEmail(ctx context.Context, professionalID uuid.UUID, email string) (*Patient, error)
	GetByMagicLinkHash(ctx context.Context, hash string) (*Patient, error)
	ListByProfessional(ctx context.Context, professionalID uuid.UUID, limit, offset int) ([]*Patient, int, error)
	// CountByProfessional returns the professional's active patient count
	// plus how many of those have no upcoming session.
	CountByProfessional(ctx context.Context, professionalID uuid.UUID) (total, withoutUpcoming int, err error)
	Update(ctx context.Context, p *Patient) error
	Deactivate(ctx context.Context, id uuid.UUID) error
	SetMagicLink(ctx context.Context, id uuid.UUID, hash string, expiresAt time.Time) error
	ClearMagicLink(ctx context.Context, id uuid.UUID) error
	UpdateConsent(ctx context.Context, id uuid.UUID, given bool, date *time.Time) error
	UpdateScore(ctx context.Context, id uuid.UUID, score int) error
}

// ConsentRepository persists the consent audit trail.
type ConsentRepository interface {
	Create(ctx context.Context, c *DataConsent) error
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*DataConsent, error)
}
