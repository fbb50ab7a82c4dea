package identity

import (
	"time"

	"github.com/google/uuid"
)

// Professional maps to the professionals table.
type Professional struct {
	ID               uuid.UUID `db:"id" json:"id"`
	Email            string    `db:"email" json:"email"`
	PasswordHash     string    `db:"password_hash" json:"-"`
	FirstName        string    `db:"first_name" json:"first_name"`
	LastName         string    `db:"last_name" json:"last_name"`
	Profession       string    `db:"profession" json:"profession"`
	WorkLocation     *string   `db:"work_location" json:"work_location,omitempty"`
	ConsultationType string    `db:"consultation_type" json:"consultation_type"`
	Phone            *string   `db:"phone" json:"phone,omitempty"`
	CalendarType     string    `db:"calendar_type" json:"calendar_type"`
	CalendarURL      *string   `db:"calendar_url" json:"calendar_url,omitempty"`
	CalendarAPIKey   *string   `db:"calendar_api_key" json:"-"`
	PushToken        *string   `db:"push_token" json:"-"`
	Active           bool      `db:"active" json:"active"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// RecommendedAction is a self-care suggestion shown to the patient, stored as
// JSONB on the patient row.
type RecommendedAction struct {
	Type        string `json:"type"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Link        string `json:"link,omitempty"`
}

// GravityThresholds are the per-patient cut-offs on the urgency scale.
type GravityThresholds struct {
	Low    int `json:"low"`
	Medium int `json:"medium"`
	High   int `json:"high"`
}

// Patient maps to the patients table.
type Patient struct {
	ID                 uuid.UUID           `db:"id" json:"id"`
	ProfessionalID     uuid.UUID           `db:"professional_id" json:"professional_id"`
	Email              string              `db:"email" json:"email"`
	FirstName          string              `db:"first_name" json:"first_name"`
	LastName           string              `db:"last_name" json:"last_name"`
	BirthDate          *time.Time          `db:"birth_date" json:"birth_date,omitempty"`
	Profession         *string             `db:"profession" json:"profession,omitempty"`
	FamilySituation    *string             `db:"family_situation" json:"family_situation,omitempty"`
	TherapySubject     *string             `db:"therapy_subject" json:"therapy_subject,omitempty"`
	TotalSessions      int                 `db:"total_sessions" json:"total_sessions"`
	LastSessionAt      *time.Time          `db:"last_session_at" json:"last_session_at,omitempty"`
	NextSessionAt      *time.Time          `db:"next_session_at" json:"next_session_at,omitempty"`
	CurrentScore       int                 `db:"current_score" json:"current_score"`
	RecommendedActions []RecommendedAction `db:"recommended_actions" json:"recommended_actions"`
	GravityThresholds  GravityThresholds   `json:"gravity_thresholds"`
	ConsentGiven       bool                `db:"consent_given" json:"consent_given"`
	ConsentDate        *time.Time          `db:"consent_date" json:"consent_date,omitempty"`
	MagicLinkHash      *string             `db:"magic_link_hash" json:"-"`
	MagicLinkExpiresAt *time.Time          `db:"magic_link_expires_at" json:"-"`
	Active             bool                `db:"active" json:"active"`
	CreatedAt          time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time           `db:"updated_at" json:"updated_at"`
}

// DataConsent maps to the data_consents audit table.
type DataConsent struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	PatientID       uuid.UUID  `db:"patient_id" json:"patient_id"`
	ConsentGiven    bool       `db:"consent_given" json:"consent_given"`
	ConsentDate     time.Time  `db:"consent_date" json:"consent_date"`
	WithdrawnDate   *time.Time `db:"withdrawn_date" json:"withdrawn_date,omitempty"`
	WithdrawnReason *string    `db:"withdrawn_reason" json:"withdrawn_reason,omitempty"`
	IPAddress       *string    `db:"ip_address" json:"ip_address,omitempty"`
	Version         string     `db:"version" json:"version"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
}

// DefaultRecommendedActions seeds a new patient with baseline self-care
// suggestions until the professional customizes them.
func DefaultRecommendedActions() []RecommendedAction {
	return []RecommendedAction{
		{Type: "breathing", Title: "Exercice de respiration", Description: "Prenez 5 minutes pour respirer profondément"},
		{Type: "walk", Title: "Marche de 10 minutes", Description: "Sortez prendre l'air et marcher"},
		{Type: "call", Title: "Appeler un proche", Description: "Contactez une personne de confiance"},
	}
}

// DefaultGravityThresholds returns the 3/6/9 urgency cut-offs.
func DefaultGravityThresholds() GravityThresholds {
	return GravityThresholds{Low: 3, Medium: 6, High: 9}
}
