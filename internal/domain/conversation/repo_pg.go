package conversation

import (
	"context"
	"errors"
	"fmt"
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

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const conversationCols = `id, patient_id, professional_id, status, messages, started_at, closed_at,
	gravity_level, evaluated_at, rationality,
	summary_keywords, summary_main_concern, summary_urgency_detected, summary_recommended_action, summary_generated_at,
	created_at, updated_at`

func (r *repoPG) scanConversation(row pgx.Row) (*Conversation, error) {
	var (
		c              Conversation
		gravity        *int
		evaluatedAt    *time.Time
		rationality    *bool
		keywords       []string
		mainConcern    *string
		urgency        *bool
		recommended    *string
		summaryCreated *time.Time
	)
	err := row.Scan(&c.ID, &c.PatientID, &c.ProfessionalID, &c.Status, &c.Messages, &c.StartedAt, &c.ClosedAt,
		&gravity, &evaluatedAt, &rationality,
		&keywords, &mainConcern, &urgency, &recommended, &summaryCreated,
		&c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if gravity != nil && evaluatedAt != nil {
		c.Evaluation = &Evaluation{GravityLevel: *gravity, EvaluatedAt: *evaluatedAt}
		if rationality != nil {
			c.Evaluation.Rationality = *rationality
		}
	}
	if summaryCreated != nil {
		c.Summary = &Summary{Keywords: keywords, GeneratedAt: *summaryCreated}
		if mainConcern != nil {
			c.Summary.MainConcern = *mainConcern
		}
		if urgency != nil {
			c.Summary.UrgencyDetected = *urgency
		}
		if recommended != nil {
			c.Summary.RecommendedAction = *recommended
		}
	}
	return &c, nil
}

func (r *repoPG) Create(ctx context.Context, c *Conversation) error {
	c.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO conversations (id, patient_id, professional_id, status, messages, started_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		c.ID, c.PatientID, c.ProfessionalID, c.Status, c.Messages, c.StartedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: patient already has an active conversation", ErrConflict)
	}
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Conversation, error) {
	return r.scanConversation(r.conn(ctx).QueryRow(ctx,
		`SELECT `+conversationCols+` FROM conversations WHERE id = $1`, id))
}

func (r *repoPG) GetActiveByPatient(ctx context.Context, patientID uuid.UUID) (*Conversation, error) {
	return r.scanConversation(r.conn(ctx).QueryRow(ctx,
		`SELECT `+conversationCols+` FROM conversations WHERE patient_id = $1 AND status = 'active'`, patientID))
}

func (r *repoPG) UpdateMessages(ctx context.Context, id uuid.UUID, messages []Message) error {
	_, err := r.conn(ctx).Exec(ctx,
		`UPDATE conversations SET messages=$2, updated_at=NOW() WHERE id = $1`, id, messages)
	return err
}

func (r *repoPG) Close(ctx context.Context, c *Conversation) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE conversations SET status=$2, messages=$3, closed_at=$4,
			gravity_level=$5, evaluated_at=$6, rationality=$7,
			summary_keywords=$8, summary_main_concern=$9, summary_urgency_detected=$10,
			summary_recommended_action=$11, summary_generated_at=$12, updated_at=NOW()
		WHERE id = $1`,
		c.ID, c.Status, c.Messages, c.ClosedAt,
		c.Evaluation.GravityLevel, c.Evaluation.EvaluatedAt, c.Evaluation.Rationality,
		c.Summary.Keywords, c.Summary.MainConcern, c.Summary.UrgencyDetected,
		c.Summary.RecommendedAction, c.Summary.GeneratedAt)
	return err
}

func (r *repoPG) ListClosedByPatient(ctx context.Context, patientID uuid.UUID, limit int) ([]*Conversation, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+conversationCols+` FROM conversations
		 WHERE patient_id = $1 AND status = 'closed' ORDER BY closed_at DESC LIMIT $2`,
		patientID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.collect(rows)
}

func (r *repoPG) ListByProfessional(ctx context.Context, professionalID uuid.UUID, patientID *uuid.UUID, status string, limit int) ([]*Conversation, error) {
	query := `SELECT ` + conversationCols + ` FROM conversations WHERE professional_id = $1`
	args := []interface{}{professionalID}
	idx := 2

	if patientID != nil {
		query += fmt.Sprintf(` AND patient_id = $%d`, idx)
		args = append(args, *patientID)
		idx++
	}
	if status != "" {
		query += fmt.Sprintf(` AND status = $%d`, idx)
		args = append(args, status)
		idx++
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, idx)
	args = append(args, limit)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.collect(rows)
}

func (r *repoPG) CountActiveByProfessional(ctx context.Context, professionalID uuid.UUID) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM conversations WHERE professional_id = $1 AND status = 'active'`,
		professionalID).Scan(&n)
	return n, err
}

func (r *repoPG) CountHighGravityClosedSince(ctx context.Context, professionalID uuid.UUID, since time.Time) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*) FROM conversations
		 WHERE professional_id = $1 AND status = 'closed'
		   AND gravity_level = 3 AND closed_at >= $2`,
		professionalID, since).Scan(&n)
	return n, err
}

func (r *repoPG) CountCreatedPerDaySince(ctx context.Context, professionalID uuid.UUID, since time.Time) (map[string]int, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT to_char(created_at, 'YYYY-MM-DD') AS day, COUNT(*)
		  FROM conversations
		 WHERE professional_id = $1 AND created_at >= $2
		 GROUP BY day`,
		professionalID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var day string
		var n int
		if err := rows.Scan(&day, &n); err != nil {
			return nil, err
		}
		counts[day] = n
	}
	return counts, rows.Err()
}

func (r *repoPG) collect(rows pgx.Rows) ([]*Conversation, error) {
	var items []*Conversation
	for rows.Next() {
		c, err := r.scanConversation(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}
