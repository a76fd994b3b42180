package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassRepositoryListBySchool(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewClassRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM classes WHERE school_id = $1 ORDER BY name ASC, id ASC")).
		WithArgs("school-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "school_id", "name", "grade", "created_at", "updated_at"}).
			AddRow("class-1", "school-1", "X-1", "10", now, now).
			AddRow("class-2", "school-1", "X-2", "10", now, now))

	classes, err := repo.ListBySchool(context.Background(), "school-1")
	require.NoError(t, err)
	require.Len(t, classes, 2)
	assert.Equal(t, "X-1", classes[0].Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassAndTermRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM classes WHERE id = $1")).
		WithArgs("class-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "school_id", "name", "grade", "created_at", "updated_at"}).
			AddRow("class-1", "school-1", "X-1", "10", now, now))
	mock.ExpectQuery(regexp.QuoteMeta("FROM terms WHERE id = $1")).
		WithArgs("term-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "school_id", "name", "academic_year", "is_active", "created_at", "updated_at"}).
			AddRow("term-1", "school-1", "Odd", "2024/2025", true, now, now))

	class, err := NewClassRepository(db).FindByID(context.Background(), "class-1")
	require.NoError(t, err)
	assert.Equal(t, "school-1", class.SchoolID)

	term, err := NewTermRepository(db).FindByID(context.Background(), "term-1")
	require.NoError(t, err)
	assert.Equal(t, "2024/2025", term.AcademicYear)
	assert.NoError(t, mock.ExpectationsWereMet())
}
