package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

const timetableColumns = `id, school_id, class_id, term_id, class_name, schedule, period_count, unplaced_count, generated_at, created_at, updated_at`

// TimetableRepository persists generated class timetables.
type TimetableRepository struct {
	db *sqlx.DB
}

// NewTimetableRepository constructs repository.
func NewTimetableRepository(db *sqlx.DB) *TimetableRepository {
	return &TimetableRepository{db: db}
}

func (r *TimetableRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Upsert stores the timetable of a (school, class, term), replacing any
// previous schedule wholesale in a single statement.
func (r *TimetableRepository) Upsert(ctx context.Context, exec sqlx.ExtContext, timetable *models.Timetable) error {
	if timetable == nil {
		return fmt.Errorf("timetable payload is nil")
	}
	if timetable.SchoolID == "" || timetable.ClassID == "" || timetable.TermID == "" {
		return fmt.Errorf("school_id, class_id and term_id are required")
	}
	if timetable.ID == "" {
		timetable.ID = uuid.NewString()
	}
	if len(timetable.Schedule) == 0 {
		timetable.Schedule = types.JSONText(`{}`)
	}
	now := time.Now().UTC()
	if timetable.GeneratedAt.IsZero() {
		timetable.GeneratedAt = now
	}
	if timetable.CreatedAt.IsZero() {
		timetable.CreatedAt = now
	}
	timetable.UpdatedAt = now

	const query = `
INSERT INTO timetables (id, school_id, class_id, term_id, class_name, schedule, period_count, unplaced_count, generated_at, created_at, updated_at)
VALUES (:id, :school_id, :class_id, :term_id, :class_name, :schedule, :period_count, :unplaced_count, :generated_at, :created_at, :updated_at)
ON CONFLICT (school_id, class_id, term_id) DO UPDATE
SET class_name = EXCLUDED.class_name,
    schedule = EXCLUDED.schedule,
    period_count = EXCLUDED.period_count,
    unplaced_count = EXCLUDED.unplaced_count,
    generated_at = EXCLUDED.generated_at,
    updated_at = EXCLUDED.updated_at
RETURNING id, created_at`
	rows, err := sqlx.NamedQueryContext(ctx, r.exec(exec), query, timetable)
	if err != nil {
		return fmt.Errorf("upsert timetable: %w", err)
	}
	defer rows.Close()
	if rows.Next() {
		if err := rows.Scan(&timetable.ID, &timetable.CreatedAt); err != nil {
			return fmt.Errorf("scan upserted timetable: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("upsert timetable rows: %w", err)
	}
	return nil
}

// FindByClass loads the timetable of a class for a term.
func (r *TimetableRepository) FindByClass(ctx context.Context, schoolID, classID, termID string) (*models.Timetable, error) {
	query := `SELECT ` + timetableColumns + ` FROM timetables WHERE school_id = $1 AND class_id = $2 AND term_id = $3`
	var timetable models.Timetable
	if err := r.db.GetContext(ctx, &timetable, query, schoolID, classID, termID); err != nil {
		return nil, err
	}
	return &timetable, nil
}

// ListBySchoolTerm returns one page of timetables and the total count.
func (r *TimetableRepository) ListBySchoolTerm(ctx context.Context, filter models.TimetableFilter) ([]models.Timetable, int, error) {
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	const countQuery = `SELECT COUNT(*) FROM timetables WHERE school_id = $1 AND term_id = $2`
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, filter.SchoolID, filter.TermID); err != nil {
		return nil, 0, fmt.Errorf("count timetables: %w", err)
	}

	query := `SELECT ` + timetableColumns + ` FROM timetables WHERE school_id = $1 AND term_id = $2 ORDER BY class_name ASC, class_id ASC LIMIT $3 OFFSET $4`
	var timetables []models.Timetable
	if err := r.db.SelectContext(ctx, &timetables, query, filter.SchoolID, filter.TermID, size, offset); err != nil {
		return nil, 0, fmt.Errorf("list timetables: %w", err)
	}
	return timetables, total, nil
}

// ListAllBySchoolTerm returns every timetable of the term, ordered by class name.
func (r *TimetableRepository) ListAllBySchoolTerm(ctx context.Context, schoolID, termID string) ([]models.Timetable, error) {
	query := `SELECT ` + timetableColumns + ` FROM timetables WHERE school_id = $1 AND term_id = $2 ORDER BY class_name ASC, class_id ASC`
	var timetables []models.Timetable
	if err := r.db.SelectContext(ctx, &timetables, query, schoolID, termID); err != nil {
		return nil, fmt.Errorf("list term timetables: %w", err)
	}
	return timetables, nil
}

// BeginTxx starts a transaction on the underlying database.
func (r *TimetableRepository) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return r.db.BeginTxx(ctx, opts)
}
