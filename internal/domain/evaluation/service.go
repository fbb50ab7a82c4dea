package evaluation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/julia/julia/internal/domain/identity"
)

const (
	// DefaultListLimit caps the professional-facing evaluation listing.
	DefaultListLimit = 90

	// DefaultHistoryLimit caps the patient's own history listing.
	DefaultHistoryLimit = 30

	// trendWindow is the number of records required before a trend is
	// computed from the two most recent 7-day means.
	trendWindow = 14
	trendDelta  = 0.5
)

// PatientDirectory is the slice of the identity store the aggregator needs.
// identity.PatientRepository satisfies it.
type PatientDirectory interface {
	GetByID(ctx context.Context, id uuid.UUID) (*identity.Patient, error)
}

// RecordInput is one self-report submission. Optional fields left nil keep
// any previously recorded value for the same day.
type RecordInput struct {
	Mood    int     `json:"mood"`
	Anxiety *int    `json:"anxiety"`
	Sleep   *int    `json:"sleep"`
	Note    *string `json:"note"`
}

type Service struct {
	repo     Repository
	patients PatientDirectory
	logger   zerolog.Logger
}

func NewService(repo Repository, patients PatientDirectory, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		patients: patients,
		logger:   logger.With().Str("component", "evaluation").Logger(),
	}
}

// today truncates to the server-local calendar day.
func today() time.Time {
	now := time.Now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}

// Record stores the patient's self-report for today. A second submission the
// same day overwrites mood and whichever optional fields it carries.
func (s *Service) Record(ctx context.Context, patientID uuid.UUID, in RecordInput) (*DailyEvaluation, error) {
	if in.Mood < 1 || in.Mood > 5 {
		return nil, fmt.Errorf("%w: mood must be between 1 and 5", ErrValidation)
	}
	if in.Anxiety != nil && (*in.Anxiety < 1 || *in.Anxiety > 5) {
		return nil, fmt.Errorf("%w: anxiety must be between 1 and 5", ErrValidation)
	}
	if in.Sleep != nil && (*in.Sleep < 1 || *in.Sleep > 5) {
		return nil, fmt.Errorf("%w: sleep must be between 1 and 5", ErrValidation)
	}

	e := &DailyEvaluation{
		PatientID: patientID,
		EvalDate:  today(),
		Mood:      in.Mood,
		Anxiety:   in.Anxiety,
		Sleep:     in.Sleep,
		Note:      in.Note,
	}
	if err := s.repo.Upsert(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// Today returns the patient's own evaluation for today, or nil.
func (s *Service) Today(ctx context.Context, patientID uuid.UUID) (*DailyEvaluation, error) {
	e, err := s.repo.GetByPatientAndDate(ctx, patientID, today())
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return e, err
}

// ListMine returns the patient's own evaluations, newest first.
func (s *Service) ListMine(ctx context.Context, patientID uuid.UUID, startDate, endDate *time.Time, limit int) ([]*DailyEvaluation, error) {
	if limit <= 0 || limit > DefaultHistoryLimit {
		limit = DefaultHistoryLimit
	}
	return s.repo.ListByPatient(ctx, patientID, startDate, endDate, limit)
}

// ListForPatient returns a patient's evaluations, newest first, with series
// statistics. The professional must own the patient.
func (s *Service) ListForPatient(ctx context.Context, professionalID, patientID uuid.UUID, startDate, endDate *time.Time, limit int) ([]*DailyEvaluation, *Stats, error) {
	patient, err := s.patients.GetByID(ctx, patientID)
	if err != nil {
		return nil, nil, err
	}
	if patient.ProfessionalID != professionalID {
		return nil, nil, fmt.Errorf("%w: patient belongs to another professional", ErrForbidden)
	}

	if limit <= 0 || limit > DefaultListLimit {
		limit = DefaultListLimit
	}
	evals, err := s.repo.ListByPatient(ctx, patientID, startDate, endDate, limit)
	if err != nil {
		return nil, nil, err
	}
	return evals, ComputeStats(evals), nil
}

// ComputeStats aggregates a newest-first evaluation series. The trend
// compares the mean mood of the 7 most recent records against the 7 before
// them and stays stable under 14 records.
func ComputeStats(evals []*DailyEvaluation) *Stats {
	stats := &Stats{Count: len(evals), Trend: TrendStable}
	if len(evals) == 0 {
		return stats
	}

	sum := 0
	for _, e := range evals {
		sum += e.Mood
	}
	stats.AverageMood = math.Round(float64(sum)/float64(len(evals))*10) / 10

	if len(evals) < trendWindow {
		return stats
	}
	recent := meanMood(evals[:7])
	prior := meanMood(evals[7:14])
	switch {
	case recent-prior > trendDelta:
		stats.Trend = TrendImproving
	case prior-recent > trendDelta:
		stats.Trend = TrendDeclining
	}
	return stats
}

func meanMood(evals []*DailyEvaluation) float64 {
	sum := 0
	for _, e := range evals {
		sum += e.Mood
	}
	return float64(sum) / float64(len(evals))
}
