package notification

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/julia/julia/internal/domain/identity"
	delivery "github.com/julia/julia/internal/platform/notification"
)

var validTypes = map[string]bool{
	TypeConversationStarted: true, TypeHighGravity: true, TypeNoAppointment: true,
	TypeFollowUpNeeded: true, TypeNewPatient: true,
}

var validPriorities = map[string]bool{
	PriorityLow: true, PriorityMedium: true, PriorityHigh: true, PriorityUrgent: true,
}

// ProfessionalDirectory is the slice of the identity store this service needs
// to resolve push tokens. identity.ProfessionalRepository satisfies it.
type ProfessionalDirectory interface {
	GetByID(ctx context.Context, id uuid.UUID) (*identity.Professional, error)
	UpdatePushToken(ctx context.Context, id uuid.UUID, token string) error
}

type Service struct {
	repo          Repository
	professionals ProfessionalDirectory
	push          delivery.PushSender
	logger        zerolog.Logger
}

func NewService(repo Repository, professionals ProfessionalDirectory, push delivery.PushSender, logger zerolog.Logger) *Service {
	return &Service{
		repo:          repo,
		professionals: professionals,
		push:          push,
		logger:        logger.With().Str("component", "notification").Logger(),
	}
}

// Notify persists a notification and attempts push delivery to the
// professional's device. Push failures are logged, never surfaced.
func (s *Service) Notify(ctx context.Context, n *Notification) error {
	if n.ProfessionalID == uuid.Nil {
		return fmt.Errorf("%w: professional_id is required", ErrValidation)
	}
	if !validTypes[n.Type] {
		return fmt.Errorf("%w: invalid type: %s", ErrValidation, n.Type)
	}
	if n.Priority == "" {
		n.Priority = PriorityMedium
	}
	if !validPriorities[n.Priority] {
		return fmt.Errorf("%w: invalid priority: %s", ErrValidation, n.Priority)
	}
	if n.Title == "" || n.Message == "" {
		return fmt.Errorf("%w: title and message are required", ErrValidation)
	}

	if err := s.repo.Create(ctx, n); err != nil {
		return err
	}

	pro, err := s.professionals.GetByID(ctx, n.ProfessionalID)
	if err != nil {
		s.logger.Warn().Err(err).Str("professional_id", n.ProfessionalID.String()).Msg("push skipped, professional lookup failed")
		return nil
	}
	if pro.PushToken == nil || !delivery.IsExpoPushToken(*pro.PushToken) {
		return nil
	}

	data := map[string]string{"notification_id": n.ID.String(), "type": n.Type}
	if n.ConversationID != nil {
		data["conversation_id"] = n.ConversationID.String()
	}
	if n.PatientID != nil {
		data["patient_id"] = n.PatientID.String()
	}
	if err := s.push.SendPush(ctx, *pro.PushToken, n.Title, n.Message, data); err != nil {
		s.logger.Error().Err(err).Str("notification_id", n.ID.String()).Msg("push delivery failed")
		return nil
	}

	if err := s.repo.MarkSent(ctx, n.ID); err != nil {
		s.logger.Error().Err(err).Str("notification_id", n.ID.String()).Msg("failed to flag notification as sent")
	} else {
		n.Sent = true
	}
	return nil
}

// NotifyConversationStarted emits the medium-priority alert raised when a
// patient opens a conversation.
func (s *Service) NotifyConversationStarted(ctx context.Context, professionalID, patientID, conversationID uuid.UUID) error {
	return s.Notify(ctx, &Notification{
		ProfessionalID: professionalID,
		PatientID:      &patientID,
		ConversationID: &conversationID,
		Type:           TypeConversationStarted,
		Title:          "Nouvelle conversation",
		Message:        "Un patient a démarré une conversation",
		Priority:       PriorityMedium,
	})
}

// NotifyHighGravity emits the urgent alert raised when a closed conversation
// signals a serious situation.
func (s *Service) NotifyHighGravity(ctx context.Context, professionalID, patientID, conversationID uuid.UUID) error {
	return s.Notify(ctx, &Notification{
		ProfessionalID: professionalID,
		PatientID:      &patientID,
		ConversationID: &conversationID,
		Type:           TypeHighGravity,
		Title:          "⚠️ Alerte gravité élevée",
		Message:        "Un patient a signalé une situation grave",
		Priority:       PriorityUrgent,
	})
}

func (s *Service) List(ctx context.Context, professionalID uuid.UUID, unreadOnly bool, limit, offset int) ([]*Notification, int, error) {
	return s.repo.ListByProfessional(ctx, professionalID, unreadOnly, limit, offset)
}

func (s *Service) MarkRead(ctx context.Context, professionalID, id uuid.UUID) (*Notification, error) {
	n, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if n.ProfessionalID != professionalID {
		return nil, fmt.Errorf("%w: notification belongs to another professional", ErrForbidden)
	}
	if err := s.repo.MarkRead(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, id)
}

func (s *Service) MarkAllRead(ctx context.Context, professionalID uuid.UUID) error {
	return s.repo.MarkAllRead(ctx, professionalID)
}

func (s *Service) Delete(ctx context.Context, professionalID, id uuid.UUID) error {
	n, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if n.ProfessionalID != professionalID {
		return fmt.Errorf("%w: notification belongs to another professional", ErrForbidden)
	}
	return s.repo.Delete(ctx, id)
}

// RegisterPushToken stores the professional's Expo device token.
func (s *Service) RegisterPushToken(ctx context.Context, professionalID uuid.UUID, token string) error {
	if token == "" {
		return fmt.Errorf("%w: token is required", ErrValidation)
	}
	if !delivery.IsExpoPushToken(token) {
		return fmt.Errorf("%w: not a valid Expo push token", ErrValidation)
	}
	return s.professionals.UpdatePushToken(ctx, professionalID, token)
}
