package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

var timetableRowColumns = []string{"id", "school_id", "class_id", "term_id", "class_name", "schedule", "period_count", "unplaced_count", "generated_at", "created_at", "updated_at"}

func TestTimetableRepositoryUpsertKeepsExistingID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	created := time.Date(2024, 7, 1, 8, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO timetables")+"(?s).*"+regexp.QuoteMeta("ON CONFLICT (school_id, class_id, term_id) DO UPDATE")).
		WithArgs(sqlmock.AnyArg(), "school-1", "class-1", "term-1", "X-IPA-1", sqlmock.AnyArg(), 38, 2, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow("tt-existing", created))

	payload := &models.Timetable{
		SchoolID:      "school-1",
		ClassID:       "class-1",
		TermID:        "term-1",
		ClassName:     "X-IPA-1",
		Schedule:      types.JSONText(`{"MONDAY":[]}`),
		PeriodCount:   38,
		UnplacedCount: 2,
	}
	require.NoError(t, repo.Upsert(context.Background(), nil, payload))
	assert.Equal(t, "tt-existing", payload.ID)
	assert.Equal(t, created, payload.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableRepositoryUpsertRequiresKeys(t *testing.T) {
	db, _, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	err := repo.Upsert(context.Background(), nil, &models.Timetable{SchoolID: "school-1"})
	assert.Error(t, err)
	assert.Error(t, repo.Upsert(context.Background(), nil, nil))
}

func TestTimetableRepositoryFindByClass(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM timetables WHERE school_id = $1 AND class_id = $2 AND term_id = $3")).
		WithArgs("school-1", "class-1", "term-1").
		WillReturnRows(sqlmock.NewRows(timetableRowColumns).
			AddRow("tt-1", "school-1", "class-1", "term-1", "X-IPA-1", []byte(`{"MONDAY":[]}`), 0, 0, now, now, now))

	timetable, err := repo.FindByClass(context.Background(), "school-1", "class-1", "term-1")
	require.NoError(t, err)
	assert.Equal(t, "tt-1", timetable.ID)
	assert.JSONEq(t, `{"MONDAY":[]}`, string(timetable.Schedule))

	mock.ExpectQuery(regexp.QuoteMeta("FROM timetables WHERE school_id = $1 AND class_id = $2 AND term_id = $3")).
		WithArgs("school-1", "class-9", "term-1").
		WillReturnError(sql.ErrNoRows)
	_, err = repo.FindByClass(context.Background(), "school-1", "class-9", "term-1")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableRepositoryListBySchoolTerm(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM timetables WHERE school_id = $1 AND term_id = $2")).
		WithArgs("school-1", "term-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY class_name ASC, class_id ASC LIMIT $3 OFFSET $4")).
		WithArgs("school-1", "term-1", 2, 2).
		WillReturnRows(sqlmock.NewRows(timetableRowColumns).
			AddRow("tt-3", "school-1", "class-3", "term-1", "XII-IPS-1", []byte(`{}`), 0, 0, now, now, now))

	list, total, err := repo.ListBySchoolTerm(context.Background(), models.TimetableFilter{SchoolID: "school-1", TermID: "term-1", Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, list, 1)
	assert.Equal(t, "XII-IPS-1", list[0].ClassName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableRepositoryListAllBySchoolTerm(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM timetables WHERE school_id = $1 AND term_id = $2 ORDER BY class_name ASC, class_id ASC")).
		WithArgs("school-1", "term-1").
		WillReturnRows(sqlmock.NewRows(timetableRowColumns).
			AddRow("tt-1", "school-1", "class-1", "term-1", "X-1", []byte(`{}`), 0, 0, now, now, now).
			AddRow("tt-2", "school-1", "class-2", "term-1", "X-2", []byte(`{}`), 0, 0, now, now, now))

	list, err := repo.ListAllBySchoolTerm(context.Background(), "school-1", "term-1")
	require.NoError(t, err)
	assert.Len(t, list, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}
