package sessionnote

import (
	"context"
	"errors"

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

const sessionNoteCols = `id, patient_id, professional_id, session_date, object_key, file_name,
	content_type, file_size, raw_text, summary_text, summary_keywords, summary_themes,
	summary_generated_at, status, created_at, updated_at`

func (r *repoPG) scanSessionNote(row pgx.Row) (*SessionNote, error) {
	var n SessionNote
	err := row.Scan(&n.ID, &n.PatientID, &n.ProfessionalID, &n.SessionDate, &n.ObjectKey, &n.FileName,
		&n.ContentType, &n.FileSize, &n.RawText, &n.SummaryText, &n.SummaryKeywords, &n.SummaryThemes,
		&n.SummaryGeneratedAt, &n.Status, &n.CreatedAt, &n.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &n, err
}

func (r *repoPG) Create(ctx context.Context, n *SessionNote) error {
	n.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO session_notes (id, patient_id, professional_id, session_date, object_key,
			file_name, content_type, file_size, raw_text, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		n.ID, n.PatientID, n.ProfessionalID, n.SessionDate, n.ObjectKey,
		n.FileName, n.ContentType, n.FileSize, n.RawText, n.Status)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*SessionNote, error) {
	return r.scanSessionNote(r.conn(ctx).QueryRow(ctx,
		`SELECT `+sessionNoteCols+` FROM session_notes WHERE id = $1`, id))
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID, professionalID uuid.UUID) ([]*SessionNote, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+sessionNoteCols+` FROM session_notes
		WHERE patient_id = $1 AND professional_id = $2
		ORDER BY session_date DESC`,
		patientID, professionalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*SessionNote
	for rows.Next() {
		n, err := r.scanSessionNote(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *repoPG) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE session_notes SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) UpdateSummary(ctx context.Context, n *SessionNote) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE session_notes SET raw_text = $2, summary_text = $3, summary_keywords = $4,
			summary_themes = $5, summary_generated_at = $6, status = $7, updated_at = NOW()
		WHERE id = $1`,
		n.ID, n.RawText, n.SummaryText, n.SummaryKeywords, n.SummaryThemes,
		n.SummaryGeneratedAt, n.Status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM session_notes WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
