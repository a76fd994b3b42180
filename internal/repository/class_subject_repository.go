package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

// ClassSubjectRepository reads the subjects each class takes in a term.
type ClassSubjectRepository struct {
	db *sqlx.DB
}

// NewClassSubjectRepository creates a new repository.
func NewClassSubjectRepository(db *sqlx.DB) *ClassSubjectRepository {
	return &ClassSubjectRepository{db: db}
}

// ListLoadsByClassAndTerm returns the weekly subject loads of a class. Subject
// and teacher references are outer joined so dangling rows surface as nil names.
func (r *ClassSubjectRepository) ListLoadsByClassAndTerm(ctx context.Context, classID, termID string) ([]models.ClassSubjectLoad, error) {
	const query = `
SELECT cs.class_id, c.name AS class_name, cs.term_id, cs.subject_id,
       s.name AS subject_name, cs.teacher_id, t.full_name AS teacher_name,
       cs.periods_per_week, cs.requires_double
FROM class_subjects cs
JOIN classes c ON c.id = cs.class_id
LEFT JOIN subjects s ON s.id = cs.subject_id
LEFT JOIN teachers t ON t.id = cs.teacher_id
WHERE cs.class_id = $1 AND cs.term_id = $2
ORDER BY cs.subject_id ASC`
	var loads []models.ClassSubjectLoad
	if err := r.db.SelectContext(ctx, &loads, query, classID, termID); err != nil {
		return nil, fmt.Errorf("list class subject loads: %w", err)
	}
	return loads, nil
}
