package identity

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/julia/julia/internal/platform/auth"
	"github.com/julia/julia/internal/platform/notification"
)

var validProfessions = map[string]bool{
	"psychologist": true, "psychiatrist": true, "psychotherapist": true, "other": true,
}

var validConsultationTypes = map[string]bool{
	"online": true, "in_person": true, "both": true,
}

var validCalendarTypes = map[string]bool{
	"doctolib": true, "medoucine": true, "calendly": true, "google": true, "systemeio": true, "none": true,
}

// TxRunner runs fn atomically. Production wiring binds it to db.WithTx so
// repositories pick the transaction up from the context.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

type Service struct {
	professionals ProfessionalRepository
	patients      PatientRepository
	consents      ConsentRepository
	conversations ConversationCounter
	tokens        *auth.Manager
	email         notification.EmailSender
	tx            TxRunner
	frontendURL   string
	logger        zerolog.Logger
}

func NewService(
	professionals ProfessionalRepository,
	patients PatientRepository,
	consents ConsentRepository,
	conversations ConversationCounter,
	tokens *auth.Manager,
	email notification.EmailSender,
	tx TxRunner,
	frontendURL string,
	logger zerolog.Logger,
) *Service {
	if tx == nil {
		tx = func(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }
	}
	return &Service{
		professionals: professionals,
		patients:      patients,
		consents:      consents,
		conversations: conversations,
		tokens:        tokens,
		email:         email,
		tx:            tx,
		frontendURL:   frontendURL,
		logger:        logger.With().Str("component", "identity").Logger(),
	}
}

// -- Professional accounts --

type RegisterInput struct {
	Email            string  `json:"email"`
	Password         string  `json:"password"`
	FirstName        string  `json:"first_name"`
	LastName         string  `json:"last_name"`
	Profession       string  `json:"profession"`
	WorkLocation     *string `json:"work_location"`
	ConsultationType string  `json:"consultation_type"`
	Phone            *string `json:"phone"`
}

// Register creates a professional account and returns it with a signed token.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Professional, string, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if in.Email == "" || in.Password == "" {
		return nil, "", fmt.Errorf("%w: email and password are required", ErrValidation)
	}
	if len(in.Password) < 6 {
		return nil, "", fmt.Errorf("%w: password must be at least 6 characters", ErrValidation)
	}
	if in.FirstName == "" || in.LastName == "" {
		return nil, "", fmt.Errorf("%w: first_name and last_name are required", ErrValidation)
	}
	if in.Profession == "" {
		in.Profession = "other"
	}
	if !validProfessions[in.Profession] {
		return nil, "", fmt.Errorf("%w: invalid profession: %s", ErrValidation, in.Profession)
	}
	if in.ConsultationType == "" {
		in.ConsultationType = "both"
	}
	if !validConsultationTypes[in.ConsultationType] {
		return nil, "", fmt.Errorf("%w: invalid consultation_type: %s", ErrValidation, in.ConsultationType)
	}

	if _, err := s.professionals.GetByEmail(ctx, in.Email); err == nil {
		return nil, "", fmt.Errorf("%w: email already in use", ErrConflict)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, "", err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("hash password: %w", err)
	}

	p := &Professional{
		Email:            in.Email,
		PasswordHash:     string(hash),
		FirstName:        in.FirstName,
		LastName:         in.LastName,
		Profession:       in.Profession,
		WorkLocation:     in.WorkLocation,
		ConsultationType: in.ConsultationType,
		Phone:            in.Phone,
		CalendarType:     "none",
		Active:           true,
	}
	if err := s.professionals.Create(ctx, p); err != nil {
		return nil, "", err
	}

	token, err := s.tokens.Issue(p.ID, auth.ActorProfessional)
	if err != nil {
		return nil, "", err
	}
	return p, token, nil
}

// Login checks professional credentials and returns a signed token.
func (s *Service) Login(ctx context.Context, email, password string) (*Professional, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	p, err := s.professionals.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, "", fmt.Errorf("%w: unknown email or password", ErrAuthentication)
		}
		return nil, "", err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(p.PasswordHash), []byte(password)); err != nil {
		return nil, "", fmt.Errorf("%w: unknown email or password", ErrAuthentication)
	}

	token, err := s.tokens.Issue(p.ID, auth.ActorProfessional)
	if err != nil {
		return nil, "", err
	}
	return p, token, nil
}

func (s *Service) GetProfessional(ctx context.Context, id uuid.UUID) (*Professional, error) {
	return s.professionals.GetByID(ctx, id)
}

type ProfessionalUpdate struct {
	FirstName        *string `json:"first_name"`
	LastName         *string `json:"last_name"`
	Profession       *string `json:"profession"`
	WorkLocation     *string `json:"work_location"`
	ConsultationType *string `json:"consultation_type"`
	Phone            *string `json:"phone"`
	CalendarType     *string `json:"calendar_type"`
	CalendarURL      *string `json:"calendar_url"`
	CalendarAPIKey   *string `json:"calendar_api_key"`
}

// UpdateProfile merges the provided fields into the professional's own
// record. Email and password are not updatable here.
func (s *Service) UpdateProfile(ctx context.Context, id uuid.UUID, in ProfessionalUpdate) (*Professional, error) {
	p, err := s.professionals.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.FirstName != nil {
		p.FirstName = *in.FirstName
	}
	if in.LastName != nil {
		p.LastName = *in.LastName
	}
	if in.Profession != nil {
		if !validProfessions[*in.Profession] {
			return nil, fmt.Errorf("%w: invalid profession: %s", ErrValidation, *in.Profession)
		}
		p.Profession = *in.Profession
	}
	if in.WorkLocation != nil {
		p.WorkLocation = in.WorkLocation
	}
	if in.ConsultationType != nil {
		if !validConsultationTypes[*in.ConsultationType] {
			return nil, fmt.Errorf("%w: invalid consultation type: %s", ErrValidation, *in.ConsultationType)
		}
		p.ConsultationType = *in.ConsultationType
	}
	if in.Phone != nil {
		p.Phone = in.Phone
	}
	if in.CalendarType != nil {
		if !validCalendarTypes[*in.CalendarType] {
			return nil, fmt.Errorf("%w: invalid calendar type: %s", ErrValidation, *in.CalendarType)
		}
		p.CalendarType = *in.CalendarType
	}
	if in.CalendarURL != nil {
		p.CalendarURL = in.CalendarURL
	}
	if in.CalendarAPIKey != nil {
		p.CalendarAPIKey = in.CalendarAPIKey
	}

	if err := s.professionals.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// -- Dashboard --

// DailyActivity is one day of conversation volume.
type DailyActivity struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// DashboardStats is the professional's home-screen summary.
type DashboardStats struct {
	TotalPatients              int             `json:"total_patients"`
	ActiveConversations        int             `json:"active_conversations"`
	UrgentConversations        int             `json:"urgent_conversations"`
	PatientsWithoutAppointment int             `json:"patients_without_appointment"`
	RecentActivity             []DailyActivity `json:"recent_activity"`
}

// ConversationCounter is the slice of the conversation store the dashboard
// needs. The conversation repository satisfies it.
type ConversationCounter interface {
	CountActiveByProfessional(ctx context.Context, professionalID uuid.UUID) (int, error)
	CountHighGravityClosedSince(ctx context.Context, professionalID uuid.UUID, since time.Time) (int, error)
	CountCreatedPerDaySince(ctx context.Context, professionalID uuid.UUID, since time.Time) (map[string]int, error)
}

// Dashboard aggregates the professional's patient and conversation counts:
// active patients, open conversations, gravity-3 closes of the last 24h,
// patients with no upcoming session, and per-day conversation volume over
// the last 7 days.
func (s *Service) Dashboard(ctx context.Context, professionalID uuid.UUID) (*DashboardStats, error) {
	now := time.Now()

	totalPatients, withoutAppointment, err := s.patients.CountByProfessional(ctx, professionalID)
	if err != nil {
		return nil, err
	}
	active, err := s.conversations.CountActiveByProfessional(ctx, professionalID)
	if err != nil {
		return nil, err
	}
	urgent, err := s.conversations.CountHighGravityClosedSince(ctx, professionalID, now.Add(-24*time.Hour))
	if err != nil {
		return nil, err
	}
	perDay, err := s.conversations.CountCreatedPerDaySince(ctx, professionalID, now.AddDate(0, 0, -7))
	if err != nil {
		return nil, err
	}

	activity := make([]DailyActivity, 0, len(perDay))
	for date, count := range perDay {
		activity = append(activity, DailyActivity{Date: date, Count: count})
	}
	sort.Slice(activity, func(i, j int) bool { return activity[i].Date < activity[j].Date })

	return &DashboardStats{
		TotalPatients:              totalPatients,
		ActiveConversations:        active,
		UrgentConversations:        urgent,
		PatientsWithoutAppointment: withoutAppointment,
		RecentActivity:             activity,
	}, nil
}

// -- Patients --

type PatientInput struct {
	Email              string              `json:"email"`
	FirstName          string              `json:"first_name"`
	LastName           string              `json:"last_name"`
	BirthDate          *time.Time          `json:"birth_date"`
	Profession         *string             `json:"profession"`
	FamilySituation    *string             `json:"family_situation"`
	TherapySubject     *string             `json:"therapy_subject"`
	RecommendedActions []RecommendedAction `json:"recommended_actions"`
	GravityThresholds  *GravityThresholds  `json:"gravity_thresholds"`
}

// CreatePatient registers a patient under the calling professional, seeds the
// default self-care actions and thresholds, and emails a sign-in link.
// The link is also returned so the professional can share it directly.
func (s *Service) CreatePatient(ctx context.Context, professionalID uuid.UUID, in PatientInput) (*Patient, string, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if in.Email == "" {
		return nil, "", fmt.Errorf("%w: email is required", ErrValidation)
	}
	if in.FirstName == "" || in.LastName == "" {
		return nil, "", fmt.Errorf("%w: first_name and last_name are required", ErrValidation)
	}

	if _, err := s.patients.GetByEmail(ctx, professionalID, in.Email); err == nil {
		return nil, "", fmt.Errorf("%w: a patient with this email already exists", ErrConflict)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, "", err
	}

	actions := in.RecommendedActions
	if len(actions) == 0 {
		actions = DefaultRecommendedActions()
	}
	thresholds := DefaultGravityThresholds()
	if in.GravityThresholds != nil {
		thresholds = *in.GravityThresholds
	}

	p := &Patient{
		ProfessionalID:     professionalID,
		Email:              in.Email,
		FirstName:          in.FirstName,
		LastName:           in.LastName,
		BirthDate:          in.BirthDate,
		Profession:         in.Profession,
		FamilySituation:    in.FamilySituation,
		TherapySubject:     in.TherapySubject,
		CurrentScore:       5,
		RecommendedActions: actions,
		GravityThresholds:  thresholds,
		Active:             true,
	}
	if err := s.patients.Create(ctx, p); err != nil {
		return nil, "", err
	}

	link, err := s.issueMagicLink(ctx, p)
	if err != nil {
		return nil, "", err
	}
	return p, link, nil
}

func (s *Service) ListPatients(ctx context.Context, professionalID uuid.UUID, limit, offset int) ([]*Patient, int, error) {
	return s.patients.ListByProfessional(ctx, professionalID, limit, offset)
}

// GetPatient resolves a patient owned by the calling professional.
func (s *Service) GetPatient(ctx context.Context, professionalID, id uuid.UUID) (*Patient, error) {
	p, err := s.patients.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.ProfessionalID != professionalID {
		return nil, fmt.Errorf("%w: patient belongs to another professional", ErrForbidden)
	}
	return p, nil
}

type PatientUpdate struct {
	Email              *string             `json:"email"`
	FirstName          *string             `json:"first_name"`
	LastName           *string             `json:"last_name"`
	BirthDate          *time.Time          `json:"birth_date"`
	Profession         *string             `json:"profession"`
	FamilySituation    *string             `json:"family_situation"`
	TherapySubject     *string             `json:"therapy_subject"`
	TotalSessions      *int                `json:"total_sessions"`
	LastSessionAt      *time.Time          `json:"last_session_at"`
	NextSessionAt      *time.Time          `json:"next_session_at"`
	RecommendedActions []RecommendedAction `json:"recommended_actions"`
	GravityThresholds  *GravityThresholds  `json:"gravity_thresholds"`
}

// UpdatePatient applies the provided fields to an owned patient record.
func (s *Service) UpdatePatient(ctx context.Context, professionalID, id uuid.UUID, in PatientUpdate) (*Patient, error) {
	p, err := s.GetPatient(ctx, professionalID, id)
	if err != nil {
		return nil, err
	}

	if in.Email != nil {
		p.Email = strings.ToLower(strings.TrimSpace(*in.Email))
	}
	if in.FirstName != nil {
		p.FirstName = *in.FirstName
	}
	if in.LastName != nil {
		p.LastName = *in.LastName
	}
	if in.BirthDate != nil {
		p.BirthDate = in.BirthDate
	}
	if in.Profession != nil {
		p.Profession = in.Profession
	}
	if in.FamilySituation != nil {
		p.FamilySituation = in.FamilySituation
	}
	if in.TherapySubject != nil {
		p.TherapySubject = in.TherapySubject
	}
	if in.TotalSessions != nil {
		p.TotalSessions = *in.TotalSessions
	}
	if in.LastSessionAt != nil {
		p.LastSessionAt = in.LastSessionAt
	}
	if in.NextSessionAt != nil {
		p.NextSessionAt = in.NextSessionAt
	}
	if in.RecommendedActions != nil {
		p.RecommendedActions = in.RecommendedActions
	}
	if in.GravityThresholds != nil {
		p.GravityThresholds = *in.GravityThresholds
	}

	if err := s.patients.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// DeletePatient deactivates an owned patient record. The row is kept.
func (s *Service) DeletePatient(ctx context.Context, professionalID, id uuid.UUID) error {
	if _, err := s.GetPatient(ctx, professionalID, id); err != nil {
		return err
	}
	return s.patients.Deactivate(ctx, id)
}

// ResendMagicLink regenerates and re-emails the sign-in link for an owned
// patient.
func (s *Service) ResendMagicLink(ctx context.Context, professionalID, patientID uuid.UUID) (string, error) {
	p, err := s.GetPatient(ctx, professionalID, patientID)
	if err != nil {
		return "", err
	}
	return s.issueMagicLink(ctx, p)
}

func (s *Service) issueMagicLink(ctx context.Context, p *Patient) (string, error) {
	raw, hash, err := auth.NewMagicToken()
	if err != nil {
		return "", err
	}
	if err := s.patients.SetMagicLink(ctx, p.ID, hash, time.Now().Add(auth.MagicLinkTTL)); err != nil {
		return "", err
	}

	link := fmt.Sprintf("%s/auth/verify?token=%s", s.frontendURL, raw)
	subject, text, html := notification.MagicLinkEmail(s.frontendURL, raw, p.FirstName)
	if err := s.email.SendEmail(ctx, p.Email, p.FirstName+" "+p.LastName, subject, text, html); err != nil {
		s.logger.Error().Err(err).Str("patient_id", p.ID.String()).Msg("magic link email delivery failed")
	}
	return link, nil
}

// VerifyMagicLink exchanges a raw emailed token for a patient session token.
// The stored token is single use.
func (s *Service) VerifyMagicLink(ctx context.Context, raw string) (*Patient, string, error) {
	if raw == "" {
		return nil, "", fmt.Errorf("%w: token is required", ErrValidation)
	}
	p, err := s.patients.GetByMagicLinkHash(ctx, auth.HashMagicToken(raw))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, "", fmt.Errorf("%w: invalid or expired link", ErrAuthentication)
		}
		return nil, "", err
	}
	if err := s.patients.ClearMagicLink(ctx, p.ID); err != nil {
		return nil, "", err
	}

	token, err := s.tokens.Issue(p.ID, auth.ActorPatient)
	if err != nil {
		return nil, "", err
	}
	return p, token, nil
}

// MyProfile returns the calling patient's own record.
func (s *Service) MyProfile(ctx context.Context, patientID uuid.UUID) (*Patient, error) {
	return s.patients.GetByID(ctx, patientID)
}

// UpdateConsent records a consent decision on the patient and appends an
// audit row. Withdrawal keeps the patient active but clears the consent date.
func (s *Service) UpdateConsent(ctx context.Context, patientID uuid.UUID, given bool, reason *string, ip string) (*Patient, error) {
	if _, err := s.patients.GetByID(ctx, patientID); err != nil {
		return nil, err
	}

	now := time.Now()
	var consentDate *time.Time
	if given {
		consentDate = &now
	}
	audit := &DataConsent{
		PatientID:    patientID,
		ConsentGiven: given,
		ConsentDate:  now,
		Version:      "1.0",
	}
	if ip != "" {
		audit.IPAddress = &ip
	}
	if !given {
		audit.WithdrawnDate = &now
		audit.WithdrawnReason = reason
	}

	// The patient flag and the audit row move together.
	err := s.tx(ctx, func(ctx context.Context) error {
		if err := s.patients.UpdateConsent(ctx, patientID, given, consentDate); err != nil {
			return err
		}
		return s.consents.Create(ctx, audit)
	})
	if err != nil {
		return nil, err
	}

	return s.patients.GetByID(ctx, patientID)
}
