package evaluation

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	// Upsert inserts the evaluation or, when one already exists for
	// (patient, date), overwrites mood and any provided optional field.
	Upsert(ctx context.Context, e *DailyEvaluation) error
	GetByPatientAndDate(ctx context.Context, patientID uuid.UUID, date time.Time) (*DailyEvaluation, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, startDate, endDate *time.Time, limit int) ([]*DailyEvaluation, error)
}
