package evaluation

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

const evaluationCols = `id, patient_id, eval_date, mood, anxiety, sleep, note, created_at, updated_at`

func (r *repoPG) scanEvaluation(row pgx.Row) (*DailyEvaluation, error) {
	var e DailyEvaluation
	err := row.Scan(&e.ID, &e.PatientID, &e.EvalDate, &e.Mood, &e.Anxiety, &e.Sleep, &e.Note,
		&e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &e, err
}

func (r *repoPG) Upsert(ctx context.Context, e *DailyEvaluation) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	row := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO daily_evaluations (id, patient_id, eval_date, mood, anxiety, sleep, note)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (patient_id, eval_date) DO UPDATE SET
			mood = EXCLUDED.mood,
			anxiety = COALESCE(EXCLUDED.anxiety, daily_evaluations.anxiety),
			sleep = COALESCE(EXCLUDED.sleep, daily_evaluations.sleep),
			note = COALESCE(EXCLUDED.note, daily_evaluations.note),
			updated_at = NOW()
		RETURNING `+evaluationCols,
		e.ID, e.PatientID, e.EvalDate, e.Mood, e.Anxiety, e.Sleep, e.Note)

	stored, err := r.scanEvaluation(row)
	if err != nil {
		return err
	}
	*e = *stored
	return nil
}

func (r *repoPG) GetByPatientAndDate(ctx context.Context, patientID uuid.UUID, date time.Time) (*DailyEvaluation, error) {
	return r.scanEvaluation(r.conn(ctx).QueryRow(ctx,
		`SELECT `+evaluationCols+` FROM daily_evaluations WHERE patient_id = $1 AND eval_date = $2`,
		patientID, date))
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, startDate, endDate *time.Time, limit int) ([]*DailyEvaluation, error) {
	query := `SELECT ` + evaluationCols + ` FROM daily_evaluations WHERE patient_id = $1`
	args := []interface{}{patientID}
	if startDate != nil {
		args = append(args, *startDate)
		query += fmt.Sprintf(" AND eval_date >= $%d", len(args))
	}
	if endDate != nil {
		args = append(args, *endDate)
		query += fmt.Sprintf(" AND eval_date <= $%d", len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY eval_date DESC LIMIT $%d", len(args))

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*DailyEvaluation
	for rows.Next() {
		e, err := r.scanEvaluation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
