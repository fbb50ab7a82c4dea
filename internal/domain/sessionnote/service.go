package sessionnote

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/julia/julia/internal/domain/identity"
	"github.com/julia/julia/internal/platform/ai"
	"github.com/julia/julia/internal/platform/blobstore"
)

// DownloadURLExpiry bounds the presigned link handed to the professional.
const DownloadURLExpiry = 15 * time.Minute

// PatientDirectory is the slice of the identity store needed for ownership
// checks. identity.PatientRepository satisfies it.
type PatientDirectory interface {
	GetByID(ctx context.Context, id uuid.UUID) (*identity.Patient, error)
}

// UploadInput describes one incoming session-note file.
type UploadInput struct {
	PatientID   uuid.UUID
	SessionDate *time.Time
	FileName    string
	ContentType string
	Size        int64
	Body        io.Reader
	RawText     *string
}

type Service struct {
	repo     Repository
	patients PatientDirectory
	blobs    blobstore.Store
	provider ai.Provider
	logger   zerolog.Logger
}

func NewService(repo Repository, patients PatientDirectory, blobs blobstore.Store, provider ai.Provider, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		patients: patients,
		blobs:    blobs,
		provider: provider,
		logger:   logger.With().Str("component", "sessionnote").Logger(),
	}
}

// Upload stores the file in the blob store and records the note. The patient
// must belong to the uploading professional.
func (s *Service) Upload(ctx context.Context, professionalID uuid.UUID, in UploadInput) (*SessionNote, error) {
	if in.FileName == "" || in.Body == nil {
		return nil, fmt.Errorf("%w: file is required", ErrValidation)
	}
	if in.Size <= 0 || in.Size > blobstore.MaxFileSize {
		return nil, fmt.Errorf("%w: file size must be between 1 byte and %d bytes", ErrValidation, blobstore.MaxFileSize)
	}
	if !blobstore.AllowedContentTypes[in.ContentType] {
		return nil, fmt.Errorf("%w: content type %s is not allowed", ErrValidation, in.ContentType)
	}

	if err := s.ownPatient(ctx, professionalID, in.PatientID); err != nil {
		return nil, err
	}

	sessionDate := time.Now()
	if in.SessionDate != nil {
		sessionDate = *in.SessionDate
	}

	key := fmt.Sprintf("session-notes/%s/%s", in.PatientID, uuid.New())
	if err := s.blobs.Put(ctx, key, in.ContentType, in.Body, in.Size); err != nil {
		return nil, fmt.Errorf("%w: blob upload: %v", ErrDependency, err)
	}

	note := &SessionNote{
		PatientID:      in.PatientID,
		ProfessionalID: professionalID,
		SessionDate:    sessionDate,
		ObjectKey:      key,
		FileName:       in.FileName,
		ContentType:    in.ContentType,
		FileSize:       in.Size,
		RawText:        in.RawText,
		Status:         StatusUploaded,
	}
	if err := s.repo.Create(ctx, note); err != nil {
		if delErr := s.blobs.Delete(ctx, key); delErr != nil {
			s.logger.Error().Err(delErr).Str("object_key", key).Msg("orphaned blob cleanup failed")
		}
		return nil, err
	}
	return note, nil
}

// Process runs the AI digest over the note's text and stores the result. A
// provider failure marks the note failed and surfaces as a dependency error.
func (s *Service) Process(ctx context.Context, professionalID, id uuid.UUID) (*SessionNote, error) {
	note, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if note.ProfessionalID != professionalID {
		return nil, fmt.Errorf("%w: session note belongs to another professional", ErrForbidden)
	}
	if note.RawText == nil || strings.TrimSpace(*note.RawText) == "" {
		return nil, fmt.Errorf("%w: no text to analyze", ErrValidation)
	}

	if err := s.repo.UpdateStatus(ctx, id, StatusProcessing); err != nil {
		return nil, err
	}

	summary, err := s.provider.AnalyzeNotes(ctx, *note.RawText)
	if err != nil {
		if stErr := s.repo.UpdateStatus(ctx, id, StatusFailed); stErr != nil {
			s.logger.Error().Err(stErr).Str("session_note_id", id.String()).Msg("failed-status update failed")
		}
		return nil, fmt.Errorf("%w: notes analysis: %v", ErrDependency, err)
	}

	now := time.Now()
	note.SummaryText = &summary
	note.SummaryGeneratedAt = &now
	note.Status = StatusProcessed
	if err := s.repo.UpdateSummary(ctx, note); err != nil {
		return nil, err
	}
	return note, nil
}

// ListForPatient returns the patient's notes, newest session first.
func (s *Service) ListForPatient(ctx context.Context, professionalID, patientID uuid.UUID) ([]*SessionNote, error) {
	if err := s.ownPatient(ctx, professionalID, patientID); err != nil {
		return nil, err
	}
	return s.repo.ListByPatient(ctx, patientID, professionalID)
}

// Get returns one note plus a temporary download URL for its file.
func (s *Service) Get(ctx context.Context, professionalID, id uuid.UUID) (*SessionNote, string, error) {
	note, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if note.ProfessionalID != professionalID {
		return nil, "", fmt.Errorf("%w: session note belongs to another professional", ErrForbidden)
	}
	url, err := s.blobs.PresignGet(ctx, note.ObjectKey, DownloadURLExpiry)
	if err != nil {
		return nil, "", fmt.Errorf("%w: presign: %v", ErrDependency, err)
	}
	return note, url, nil
}

// Delete removes the note row and its blob. A blob-store failure is logged,
// the row is removed regardless.
func (s *Service) Delete(ctx context.Context, professionalID, id uuid.UUID) error {
	note, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if note.ProfessionalID != professionalID {
		return fmt.Errorf("%w: session note belongs to another professional", ErrForbidden)
	}

	if err := s.blobs.Delete(ctx, note.ObjectKey); err != nil {
		s.logger.Error().Err(err).Str("object_key", note.ObjectKey).Msg("blob delete failed")
	}
	return s.repo.Delete(ctx, id)
}

func (s *Service) ownPatient(ctx context.Context, professionalID, patientID uuid.UUID) error {
	patient, err := s.patients.GetByID(ctx, patientID)
	if err != nil {
		return err
	}
	if patient.ProfessionalID != professionalID {
		return fmt.Errorf("%w: patient belongs to another professional", ErrForbidden)
	}
	return nil
}
