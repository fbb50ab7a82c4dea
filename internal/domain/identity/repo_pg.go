package identity

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/julia/julia/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// =========== Professional Repository ===========

type professionalRepoPG struct{ pool *pgxpool.Pool }

func NewProfessionalRepoPG(pool *pgxpool.Pool) ProfessionalRepository {
	return &professionalRepoPG{pool: pool}
}

func (r *professionalRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const professionalCols = `id, email, password_hash, first_name, last_name, profession,
	work_location, consultation_type, phone, calendar_type, calendar_url, calendar_api_key,
	push_token, active, created_at, updated_at`

func (r *professionalRepoPG) scanProfessional(row pgx.Row) (*Professional, error) {
	var p Professional
	err := row.Scan(&p.ID, &p.Email, &p.PasswordHash, &p.FirstName, &p.LastName, &p.Profession,
		&p.WorkLocation, &p.ConsultationType, &p.Phone, &p.CalendarType, &p.CalendarURL, &p.CalendarAPIKey,
		&p.PushToken, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &p, err
}

func (r *professionalRepoPG) Create(ctx context.Context, p *Professional) error {
	p.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO professionals (id, email, password_hash, first_name, last_name, profession,
			work_location, consultation_type, phone, calendar_type, calendar_url, calendar_api_key)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		p.ID, p.Email, p.PasswordHash, p.FirstName, p.LastName, p.Profession,
		p.WorkLocation, p.ConsultationType, p.Phone, p.CalendarType, p.CalendarURL, p.CalendarAPIKey)
	return err
}

func (r *professionalRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Professional, error) {
	return r.scanProfessional(r.conn(ctx).QueryRow(ctx, `SELECT `+professionalCols+` FROM professionals WHERE id = $1 AND active`, id))
}

func (r *professionalRepoPG) GetByEmail(ctx context.Context, email string) (*Professional, error) {
	return r.scanProfessional(r.conn(ctx).QueryRow(ctx, `SELECT `+professionalCols+` FROM professionals WHERE email = $1 AND active`, email))
}

func (r *professionalRepoPG) Update(ctx context.Context, p *Professional) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE professionals SET first_name=$2, last_name=$3, profession=$4, work_location=$5,
			consultation_type=$6, phone=$7, calendar_type=$8, calendar_url=$9, calendar_api_key=$10,
			updated_at=NOW()
		WHERE id = $1`,
		p.ID, p.FirstName, p.LastName, p.Profession, p.WorkLocation,
		p.ConsultationType, p.Phone, p.CalendarType, p.CalendarURL, p.CalendarAPIKey)
	return err
}

func (r *professionalRepoPG) UpdatePushToken(ctx context.Context, id uuid.UUID, token string) error {
	_, err := r.conn(ctx).Exec(ctx, `UPDATE professionals SET push_token=$2, updated_at=NOW() WHERE id = $1`, id, token)
	return err
}

// =========== Patient Repository ===========

type patientRepoPG struct{ pool *pgxpool.Pool }

func NewPatientRepoPG(pool *pgxpool.Pool) PatientRepository {
	return &patientRepoPG{pool: pool}
}

func (r *patientRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const patientCols = `id, professional_id, email, first_name, last_name, birth_date,
	profession, family_situation, therapy_subject, total_sessions, last_session_at, next_session_at,
	current_score, recommended_actions, gravity_threshold_low, gravity_threshold_medium, gravity_threshold_high,
	consent_given, consent_date, magic_link_hash, magic_link_expires_at, active, created_at, updated_at`

func (r *patientRepoPG) scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.ProfessionalID, &p.Email, &p.FirstName, &p.LastName, &p.BirthDate,
		&p.Profession, &p.FamilySituation, &p.TherapySubject, &p.TotalSessions, &p.LastSessionAt, &p.NextSessionAt,
		&p.CurrentScore, &p.RecommendedActions, &p.GravityThresholds.Low, &p.GravityThresholds.Medium, &p.GravityThresholds.High,
		&p.ConsentGiven, &p.ConsentDate, &p.MagicLinkHash, &p.MagicLinkExpiresAt, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &p, err
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO patients (id, professional_id, email, first_name, last_name, birth_date,
			profession, family_situation, therapy_subject, current_score, recommended_actions,
			gravity_threshold_low, gravity_threshold_medium, gravity_threshold_high)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		p.ID, p.ProfessionalID, p.Email, p.FirstName, p.LastName, p.BirthDate,
		p.Profession, p.FamilySituation, p.TherapySubject, p.CurrentScore, p.RecommendedActions,
		p.GravityThresholds.Low, p.GravityThresholds.Medium, p.GravityThresholds.High)
	return err
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return r.scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE id = $1`, id))
}

func (r *patientRepoPG) GetByEmail(ctx context.Context, professionalID uuid.UUID, email string) (*Patient, error) {
	return r.scanPatient(r.conn(ctx).QueryRow(ctx,
		`SELECT `+patientCols+` FROM patients WHERE professional_id = $1 AND email = $2`, professionalID, email))
}

func (r *patientRepoPG) GetByMagicLinkHash(ctx context.Context, hash string) (*Patient, error) {
	return r.scanPatient(r.conn(ctx).QueryRow(ctx,
		`SELECT `+patientCols+` FROM patients WHERE magic_link_hash = $1 AND magic_link_expires_at > NOW() AND active`, hash))
}

func (r *patientRepoPG) ListByProfessional(ctx context.Context, professionalID uuid.UUID, limit, offset int) ([]*Patient, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM patients WHERE professional_id = $1 AND active`, professionalID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+patientCols+` FROM patients WHERE professional_id = $1 AND active ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		professionalID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Patient
	for rows.Next() {
		p, err := r.scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, nil
}

func (r *patientRepoPG) CountByProfessional(ctx context.Context, professionalID uuid.UUID) (int, int, error) {
	var total, withoutUpcoming int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE next_session_at IS NULL OR next_session_at < NOW())
		FROM patients WHERE professional_id = $1 AND active`,
		professionalID).Scan(&total, &withoutUpcoming)
	return total, withoutUpcoming, err
}

func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE patients SET email=$2, first_name=$3, last_name=$4, birth_date=$5, profession=$6,
			family_situation=$7, therapy_subject=$8, total_sessions=$9, last_session_at=$10,
			next_session_at=$11, recommended_actions=$12, gravity_threshold_low=$13,
			gravity_threshold_medium=$14, gravity_threshold_high=$15, updated_at=NOW()
		WHERE id = $1`,
		p.ID, p.Email, p.FirstName, p.LastName, p.BirthDate, p.Profession,
		p.FamilySituation, p.TherapySubject, p.TotalSessions, p.LastSessionAt,
		p.NextSessionAt, p.RecommendedActions, p.GravityThresholds.Low,
		p.GravityThresholds.Medium, p.GravityThresholds.High)
	return err
}

func (r *patientRepoPG) Deactivate(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `UPDATE patients SET active=FALSE, updated_at=NOW() WHERE id = $1`, id)
	return err
}

func (r *patientRepoPG) SetMagicLink(ctx context.Context, id uuid.UUID, hash string, expiresAt time.Time) error {
	_, err := r.conn(ctx).Exec(ctx,
		`UPDATE patients SET magic_link_hash=$2, magic_link_expires_at=$3, updated_at=NOW() WHERE id = $1`,
		id, hash, expiresAt)
	return err
}

func (r *patientRepoPG) ClearMagicLink(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx,
		`UPDATE patients SET magic_link_hash=NULL, magic_link_expires_at=NULL, updated_at=NOW() WHERE id = $1`, id)
	return err
}

func (r *patientRepoPG) UpdateConsent(ctx context.Context, id uuid.UUID, given bool, date *time.Time) error {
	_, err := r.conn(ctx).Exec(ctx,
		`UPDATE patients SET consent_given=$2, consent_date=$3, updated_at=NOW() WHERE id = $1`, id, given, date)
	return err
}

func (r *patientRepoPG) UpdateScore(ctx context.Context, id uuid.UUID, score int) error {
	_, err := r.conn(ctx).Exec(ctx,
		`UPDATE patients SET current_score=$2, updated_at=NOW() WHERE id = $1`, id, score)
	return err
}

// =========== Consent Repository ===========

type consentRepoPG struct{ pool *pgxpool.Pool }

func NewConsentRepoPG(pool *pgxpool.Pool) ConsentRepository {
	return &consentRepoPG{pool: pool}
}

func (r *consentRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const consentCols = `id, patient_id, consent_given, consent_date, withdrawn_date, withdrawn_reason,
	ip_address, version, created_at`

func (r *consentRepoPG) Create(ctx context.Context, c *DataConsent) error {
	c.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO data_consents (id, patient_id, consent_given, consent_date, withdrawn_date,
			withdrawn_reason, ip_address, version)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		c.ID, c.PatientID, c.ConsentGiven, c.ConsentDate, c.WithdrawnDate,
		c.WithdrawnReason, c.IPAddress, c.Version)
	return err
}

func (r *consentRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*DataConsent, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+consentCols+` FROM data_consents WHERE patient_id = $1 ORDER BY consent_date DESC`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*DataConsent
	for rows.Next() {
		var c DataConsent
		if err := rows.Scan(&c.ID, &c.PatientID, &c.ConsentGiven, &c.ConsentDate, &c.WithdrawnDate,
			&c.WithdrawnReason, &c.IPAddress, &c.Version, &c.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &c)
	}
	return items, nil
}
