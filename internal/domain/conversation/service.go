package conversation

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/julia/julia/internal/domain/identity"
	"github.com/julia/julia/internal/platform/ai"
)

const (
	// HistoryLimit caps the patient-facing closed-conversation listing.
	HistoryLimit = 20
	// ProfessionalListLimit caps the professional's conversation listing.
	ProfessionalListLimit = 50
)

// fallbackReplies are served when the AI provider is quota-limited. The turn
// is persisted and the response is flagged as degraded.
var fallbackReplies = []string{
	"Je suis là pour vous écouter. Je rencontre un petit souci technique en ce moment, mais je vous invite à partager ce que vous ressentez. Votre thérapeute pourra y avoir accès lors de votre prochaine séance.",
	"Merci de me faire confiance. Je suis momentanément limitée techniquement, mais vos messages sont bien reçus et conservés. Votre thérapeute reste disponible si vous avez besoin d'un soutien immédiat.",
	"Je vous lis et je vous entends. Je traverse une petite limitation technique, mais prenez le temps d'exprimer ce que vous ressentez ici — tout est enregistré pour votre suivi.",
}

// fallbackSummary stands in when the AI digest cannot be produced at close.
func fallbackSummary() *ai.Summary {
	return &ai.Summary{
		Keywords:          []string{"conversation", "échange"},
		MainConcern:       "Discussion générale",
		UrgencyDetected:   false,
		RecommendedAction: "Suivi normal",
	}
}

// PatientDirectory is the slice of the identity store the engine needs.
// identity.PatientRepository satisfies it.
type PatientDirectory interface {
	GetByID(ctx context.Context, id uuid.UUID) (*identity.Patient, error)
	UpdateScore(ctx context.Context, id uuid.UUID, score int) error
}

// Notifier raises professional-facing alerts. Failures are logged and
// swallowed; a lost alert never fails a patient operation.
type Notifier interface {
	NotifyConversationStarted(ctx context.Context, professionalID, patientID, conversationID uuid.UUID) error
	NotifyHighGravity(ctx context.Context, professionalID, patientID, conversationID uuid.UUID) error
}

// TurnResult is the outcome of one patient turn.
type TurnResult struct {
	Conversation    *Conversation `json:"conversation"`
	UrgencyDetected bool          `json:"urgency_detected"`
	Degraded        bool          `json:"degraded"`
}

// patientLocks serializes mutating operations per patient. The storage-level
// partial unique index backs this up across processes. Entries are
// reference-counted and dropped once the last holder releases, so the map
// stays bounded by in-flight patients.
type patientLocks struct {
	mu sync.Mutex
	m  map[uuid.UUID]*patientLock
}

type patientLock struct {
	sync.Mutex
	refs int
}

func newPatientLocks() *patientLocks {
	return &patientLocks{m: make(map[uuid.UUID]*patientLock)}
}

func (l *patientLocks) lock(id uuid.UUID) func() {
	l.mu.Lock()
	entry, ok := l.m[id]
	if !ok {
		entry = &patientLock{}
		l.m[id] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.Lock()
	return func() {
		entry.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.m, id)
		}
		l.mu.Unlock()
	}
}

type Service struct {
	repo     Repository
	patients PatientDirectory
	provider ai.Provider
	notifier Notifier
	locks    *patientLocks
	logger   zerolog.Logger
}

func NewService(repo Repository, patients PatientDirectory, provider ai.Provider, notifier Notifier, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		patients: patients,
		provider: provider,
		notifier: notifier,
		locks:    newPatientLocks(),
		logger:   logger.With().Str("component", "conversation").Logger(),
	}
}

// Start opens (or resumes) the patient's active conversation with a first
// message and returns the AI reply. A new conversation raises a
// conversation_started alert for the professional.
func (s *Service) Start(ctx context.Context, patientID uuid.UUID, firstMessage string) (*TurnResult, error) {
	firstMessage = strings.TrimSpace(firstMessage)
	if firstMessage == "" {
		return nil, fmt.Errorf("%w: message must not be empty", ErrValidation)
	}

	unlock := s.locks.lock(patientID)
	defer unlock()

	patient, err := s.patients.GetByID(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if !patient.Active {
		return nil, fmt.Errorf("%w: patient record is inactive", ErrNotFound)
	}

	conv, err := s.repo.GetActiveByPatient(ctx, patientID)
	created := false
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		created = true
		conv = &Conversation{
			PatientID:      patientID,
			ProfessionalID: patient.ProfessionalID,
			Status:         StatusActive,
			StartedAt:      time.Now(),
		}
	default:
		return nil, err
	}

	result, err := s.runTurn(ctx, conv, patient, firstMessage)
	if err != nil {
		return nil, err
	}

	if created {
		if err := s.repo.Create(ctx, conv); err != nil {
			return nil, err
		}
		if err := s.notifier.NotifyConversationStarted(ctx, conv.ProfessionalID, patientID, conv.ID); err != nil {
			s.logger.Error().Err(err).Str("conversation_id", conv.ID.String()).Msg("conversation_started alert failed")
		}
	} else if err := s.repo.UpdateMessages(ctx, conv.ID, conv.Messages); err != nil {
		return nil, err
	}
	return result, nil
}

// SendMessage appends a patient turn to an existing active conversation.
func (s *Service) SendMessage(ctx context.Context, patientID, conversationID uuid.UUID, text string) (*TurnResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: message must not be empty", ErrValidation)
	}

	unlock := s.locks.lock(patientID)
	defer unlock()

	conv, err := s.repo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.PatientID != patientID {
		return nil, fmt.Errorf("%w: conversation belongs to another patient", ErrForbidden)
	}
	if conv.Status == StatusClosed {
		return nil, fmt.Errorf("%w: conversation is closed", ErrConflict)
	}

	patient, err := s.patients.GetByID(ctx, patientID)
	if err != nil {
		return nil, err
	}

	result, err := s.runTurn(ctx, conv, patient, text)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateMessages(ctx, conv.ID, conv.Messages); err != nil {
		return nil, err
	}
	return result, nil
}

// runTurn appends the patient message and the AI reply to the in-memory
// transcript. Nothing is persisted here: a hard provider failure discards the
// whole turn, a quota failure substitutes a fallback reply and flags the
// result as degraded.
func (s *Service) runTurn(ctx context.Context, conv *Conversation, patient *identity.Patient, text string) (*TurnResult, error) {
	conv.Messages = append(conv.Messages, NewMessage(SenderPatient, text))

	res, err := s.provider.Complete(ctx, toAIMessages(conv.Messages), patientContext(patient))
	degraded := false
	if err != nil {
		if !errors.Is(err, ai.ErrQuotaExhausted) {
			return nil, fmt.Errorf("%w: %v", ErrDependency, err)
		}
		s.logger.Warn().Str("conversation_id", conv.ID.String()).Msg("ai quota exhausted, serving fallback reply")
		res = &ai.TurnResult{Reply: fallbackReplies[rand.Intn(len(fallbackReplies))]}
		degraded = true
	}

	conv.Messages = append(conv.Messages, NewMessage(SenderAI, res.Reply))
	return &TurnResult{Conversation: conv, UrgencyDetected: res.UrgencyDetected, Degraded: degraded}, nil
}

// Close terminates a conversation with the patient's gravity self-assessment,
// generates the AI summary, updates the patient score and raises the urgent
// alert when warranted. Closing is terminal.
func (s *Service) Close(ctx context.Context, patientID, conversationID uuid.UUID, gravityLevel int) (*Conversation, error) {
	if gravityLevel < 1 || gravityLevel > 3 {
		return nil, fmt.Errorf("%w: gravity_level must be 1, 2 or 3", ErrValidation)
	}

	unlock := s.locks.lock(patientID)
	defer unlock()

	conv, err := s.repo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.PatientID != patientID {
		return nil, fmt.Errorf("%w: conversation belongs to another patient", ErrForbidden)
	}
	if conv.Status == StatusClosed {
		return nil, fmt.Errorf("%w: conversation already closed", ErrConflict)
	}

	summary, err := s.provider.Summarize(ctx, toAIMessages(conv.Messages))
	if err != nil {
		s.logger.Error().Err(err).Str("conversation_id", conv.ID.String()).Msg("summary generation failed, storing fallback")
		summary = fallbackSummary()
	}

	now := time.Now()
	conv.Status = StatusClosed
	conv.ClosedAt = &now
	conv.Evaluation = &Evaluation{GravityLevel: gravityLevel, EvaluatedAt: now, Rationality: true}
	conv.Summary = &Summary{
		Keywords:          summary.Keywords,
		MainConcern:       summary.MainConcern,
		UrgencyDetected:   summary.UrgencyDetected,
		RecommendedAction: summary.RecommendedAction,
		GeneratedAt:       now,
	}
	if conv.Summary.Keywords == nil {
		conv.Summary.Keywords = []string{}
	}

	if err := s.repo.Close(ctx, conv); err != nil {
		return nil, err
	}

	if gravityLevel == 3 || summary.UrgencyDetected {
		if err := s.notifier.NotifyHighGravity(ctx, conv.ProfessionalID, patientID, conv.ID); err != nil {
			s.logger.Error().Err(err).Str("conversation_id", conv.ID.String()).Msg("high_gravity alert failed")
		}
	}

	// Inverse mapping: gravity 1/2/3 lands on score 7/4/1.
	if err := s.patients.UpdateScore(ctx, patientID, 10-gravityLevel*3); err != nil {
		return nil, err
	}
	return conv, nil
}

// Active returns the patient's active conversation, or nil when none exists.
func (s *Service) Active(ctx context.Context, patientID uuid.UUID) (*Conversation, error) {
	conv, err := s.repo.GetActiveByPatient(ctx, patientID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return conv, err
}

// History lists the patient's closed conversations, most recently closed
// first.
func (s *Service) History(ctx context.Context, patientID uuid.UUID, limit int) ([]*Conversation, error) {
	if limit <= 0 || limit > HistoryLimit {
		limit = HistoryLimit
	}
	return s.repo.ListClosedByPatient(ctx, patientID, limit)
}

// ListForProfessional lists the professional's conversations, newest first,
// optionally filtered by patient and status.
func (s *Service) ListForProfessional(ctx context.Context, professionalID uuid.UUID, patientID *uuid.UUID, status string, limit int) ([]*Conversation, error) {
	if status != "" && status != StatusActive && status != StatusClosed {
		return nil, fmt.Errorf("%w: invalid status: %s", ErrValidation, status)
	}
	if limit <= 0 || limit > ProfessionalListLimit {
		limit = ProfessionalListLimit
	}
	return s.repo.ListByProfessional(ctx, professionalID, patientID, status, limit)
}

// Get returns one conversation for its owning professional.
func (s *Service) Get(ctx context.Context, professionalID, conversationID uuid.UUID) (*Conversation, error) {
	conv, err := s.repo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.ProfessionalID != professionalID {
		return nil, fmt.Errorf("%w: conversation belongs to another professional", ErrForbidden)
	}
	return conv, nil
}

func toAIMessages(messages []Message) []ai.Message {
	out := make([]ai.Message, len(messages))
	for i, m := range messages {
		out[i] = ai.Message{Sender: m.Sender, Content: m.Content}
	}
	return out
}

func patientContext(p *identity.Patient) ai.PatientContext {
	pc := ai.PatientContext{
		FirstName:     p.FirstName,
		LastSessionAt: p.LastSessionAt,
		NextSessionAt: p.NextSessionAt,
	}
	if p.TherapySubject != nil {
		pc.TherapySubject = *p.TherapySubject
	}
	return pc
}
