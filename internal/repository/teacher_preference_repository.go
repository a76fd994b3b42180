package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

// TeacherPreferenceRepository reads teacher availability preferences.
type TeacherPreferenceRepository struct {
	db *sqlx.DB
}

// NewTeacherPreferenceRepository constructs the repository.
func NewTeacherPreferenceRepository(db *sqlx.DB) *TeacherPreferenceRepository {
	return &TeacherPreferenceRepository{db: db}
}

// ListByTeachers returns stored preferences for the given teachers.
func (r *TeacherPreferenceRepository) ListByTeachers(ctx context.Context, teacherIDs []string) ([]models.TeacherPreference, error) {
	if len(teacherIDs) == 0 {
		return nil, nil
	}
	const query = `SELECT id, teacher_id, COALESCE(max_load_per_day, 0) AS max_load_per_day, COALESCE(max_load_per_week, 0) AS max_load_per_week, unavailable, created_at, updated_at FROM teacher_preferences WHERE teacher_id = ANY($1) ORDER BY teacher_id`
	var prefs []models.TeacherPreference
	if err := r.db.SelectContext(ctx, &prefs, query, pq.Array(teacherIDs)); err != nil {
		return nil, fmt.Errorf("list teacher preferences: %w", err)
	}
	return prefs, nil
}
