package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jmoiron/sqlx/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/scheduler"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
	"github.com/noah-isme/sma-timetable-api/pkg/events"
)

type stubCacheRepo struct {
	store   map[string][]byte
	deleted []string
}

func newStubCacheRepo() *stubCacheRepo {
	return &stubCacheRepo{store: map[string][]byte{}}
}

func (s *stubCacheRepo) Get(_ context.Context, key string, dest interface{}) error {
	payload, ok := s.store[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(payload, dest)
}

func (s *stubCacheRepo) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.store[key] = payload
	return nil
}

func (s *stubCacheRepo) DeleteByPattern(_ context.Context, pattern string) error {
	s.deleted = append(s.deleted, pattern)
	delete(s.store, pattern)
	return nil
}

type timetableListerStub struct {
	records []models.Timetable
	err     error
	calls   int
	// afterRead runs once the records have been read.
	afterRead func()
}

func (s *timetableListerStub) ListAllBySchoolTerm(ctx context.Context, schoolID, termID string) ([]models.Timetable, error) {
	s.calls++
	records := s.records
	if s.afterRead != nil {
		s.afterRead()
	}
	return records, s.err
}

func verifierRecord(t *testing.T, classID, className string, schedule scheduler.PersistedSchedule) models.Timetable {
	t.Helper()
	payload, err := json.Marshal(schedule)
	require.NoError(t, err)
	return models.Timetable{ID: "tt-" + classID, SchoolID: "s1", ClassID: classID, TermID: "term-1", ClassName: className, Schedule: types.JSONText(payload)}
}

func gatheredValue(t *testing.T, metrics *MetricsService, name string) float64 {
	t.Helper()
	families, err := metrics.Registry().Gather()
	require.NoError(t, err)
	total := 0.0
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			total += metric.GetCounter().GetValue() + metric.GetGauge().GetValue()
		}
	}
	return total
}

func TestTimetableVerifierDetectsConflicts(t *testing.T) {
	lister := &timetableListerStub{records: []models.Timetable{
		verifierRecord(t, "c1", "X-A", scheduler.PersistedSchedule{
			"MONDAY": {{Period: 1, StartTime: "08:00", EndTime: "08:40", SubjectID: "math", TeacherID: "t1"}},
		}),
		verifierRecord(t, "c2", "X-B", scheduler.PersistedSchedule{
			"MONDAY": {{Period: 1, StartTime: "08:00", EndTime: "08:40", SubjectID: "math", TeacherID: "t1"}},
		}),
	}}
	publisher := &publisherStub{}
	metrics := NewMetricsService()
	svc := NewTimetableVerifierService(lister, nil, time.Minute, metrics, publisher, zap.NewNop())

	report, err := svc.Verify(context.Background(), "s1", "term-1")
	require.NoError(t, err)
	assert.True(t, report.HasConflicts)
	require.Len(t, report.Conflicts, 1)
	assert.Equal(t, "08:00", report.Conflicts[0].OverlapStart)
	assert.Equal(t, "08:40", report.Conflicts[0].OverlapEnd)

	assert.Equal(t, []string{events.TimetableConflictsDetected}, publisher.keys)
	event, ok := publisher.data[0].(conflictsDetectedEvent)
	require.True(t, ok)
	assert.Equal(t, 1, event.Count)

	assert.Equal(t, float64(1), gatheredValue(t, metrics, "timetable_verifications_total"))
	assert.Equal(t, float64(1), gatheredValue(t, metrics, "timetable_conflicts_last_verification"))
}

func TestTimetableVerifierCleanAndNoData(t *testing.T) {
	publisher := &publisherStub{}
	lister := &timetableListerStub{}
	svc := NewTimetableVerifierService(lister, nil, time.Minute, nil, publisher, nil)

	report, err := svc.Verify(context.Background(), "s1", "term-1")
	require.NoError(t, err)
	assert.True(t, report.NoData)
	assert.False(t, report.HasConflicts)

	lister.records = []models.Timetable{
		verifierRecord(t, "c1", "X-A", scheduler.PersistedSchedule{
			"MONDAY": {{Period: 1, StartTime: "08:00", EndTime: "08:40", SubjectID: "math", TeacherID: "t1"}},
		}),
		verifierRecord(t, "c2", "X-B", scheduler.PersistedSchedule{
			"MONDAY": {{Period: 2, StartTime: "08:40", EndTime: "09:20", SubjectID: "math", TeacherID: "t1"}},
		}),
	}
	report, err = svc.Verify(context.Background(), "s1", "term-1")
	require.NoError(t, err)
	assert.False(t, report.NoData)
	assert.False(t, report.HasConflicts)
	require.Len(t, report.Summary, 1)
	assert.Equal(t, 2, report.Summary[0].ClassCount)
	assert.Empty(t, publisher.keys)
}

func TestTimetableVerifierSkipsUnreadableRecords(t *testing.T) {
	lister := &timetableListerStub{records: []models.Timetable{
		{ID: "tt-bad", ClassID: "c9", ClassName: "XII-Z", Schedule: types.JSONText(`["not", "a", "schedule"]`)},
		verifierRecord(t, "c1", "X-A", scheduler.PersistedSchedule{
			"MONDAY": {{Period: 1, StartTime: "08:00", EndTime: "08:40", SubjectID: "math", TeacherID: "t1"}},
		}),
	}}
	svc := NewTimetableVerifierService(lister, nil, time.Minute, nil, nil, nil)

	report, err := svc.Verify(context.Background(), "s1", "term-1")
	require.NoError(t, err)
	assert.Equal(t, 1, report.TimetableCount)
	require.Len(t, report.Skipped, 1)
	assert.Contains(t, report.Skipped[0], "XII-Z")
}

func TestTimetableVerifierUsesCache(t *testing.T) {
	lister := &timetableListerStub{records: []models.Timetable{
		verifierRecord(t, "c1", "X-A", scheduler.PersistedSchedule{
			"MONDAY": {{Period: 1, StartTime: "08:00", EndTime: "08:40", SubjectID: "math", TeacherID: "t1"}},
		}),
	}}
	repo := newStubCacheRepo()
	cache := NewCacheService(repo, nil, time.Minute, zap.NewNop(), true)
	svc := NewTimetableVerifierService(lister, cache, time.Minute, nil, nil, nil)

	first, err := svc.Verify(context.Background(), "s1", "term-1")
	require.NoError(t, err)
	second, err := svc.Verify(context.Background(), "s1", "term-1")
	require.NoError(t, err)

	assert.Equal(t, 1, lister.calls)
	assert.Equal(t, first.EntryCount, second.EntryCount)
	assert.Contains(t, repo.store, "timetable:verify:s1:term-1")

	cache.Invalidate(context.Background(), verifyCacheKey("s1", "term-1"))
	_, err = svc.Verify(context.Background(), "s1", "term-1")
	require.NoError(t, err)
	assert.Equal(t, 2, lister.calls)
}

func TestTimetableVerifierDropsReportInvalidatedWhileLoading(t *testing.T) {
	lister := &timetableListerStub{records: []models.Timetable{
		verifierRecord(t, "c1", "X-A", scheduler.PersistedSchedule{
			"MONDAY": {{Period: 1, StartTime: "08:00", EndTime: "08:40", SubjectID: "math", TeacherID: "t1"}},
		}),
	}}
	repo := newStubCacheRepo()
	cache := NewCacheService(repo, nil, time.Minute, zap.NewNop(), true)
	svc := NewTimetableVerifierService(lister, cache, time.Minute, nil, nil, nil)

	// A generation commits a clashing timetable while the first read is in flight.
	lister.afterRead = func() {
		lister.afterRead = nil
		lister.records = append(lister.records, verifierRecord(t, "c2", "X-B", scheduler.PersistedSchedule{
			"MONDAY": {{Period: 1, StartTime: "08:00", EndTime: "08:40", SubjectID: "math", TeacherID: "t1"}},
		}))
		cache.Invalidate(context.Background(), verifyCacheKey("s1", "term-1"))
	}

	stale, err := svc.Verify(context.Background(), "s1", "term-1")
	require.NoError(t, err)
	assert.False(t, stale.HasConflicts)
	assert.NotContains(t, repo.store, "timetable:verify:s1:term-1")

	fresh, err := svc.Verify(context.Background(), "s1", "term-1")
	require.NoError(t, err)
	assert.Equal(t, 2, lister.calls)
	assert.True(t, fresh.HasConflicts)
	assert.Contains(t, repo.store, "timetable:verify:s1:term-1")
}

func TestCacheServiceSetIfUnchanged(t *testing.T) {
	repo := newStubCacheRepo()
	cache := NewCacheService(repo, nil, time.Minute, zap.NewNop(), true)

	generation := cache.Generation()
	cache.Invalidate(context.Background(), "other")
	assert.False(t, cache.SetIfUnchanged(context.Background(), "k", "v", 0, generation))
	assert.NotContains(t, repo.store, "k")

	assert.True(t, cache.SetIfUnchanged(context.Background(), "k", "v", 0, cache.Generation()))
	assert.Contains(t, repo.store, "k")

	var disabled *CacheService
	assert.False(t, disabled.SetIfUnchanged(context.Background(), "k", "v", 0, disabled.Generation()))
}

func TestTimetableVerifierErrors(t *testing.T) {
	svc := NewTimetableVerifierService(&timetableListerStub{err: errors.New("db down")}, nil, time.Minute, nil, nil, nil)

	_, err := svc.Verify(context.Background(), "", "term-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.Verify(context.Background(), "s1", "term-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
}

func TestGeneratorInvalidatesVerificationCache(t *testing.T) {
	repo := newStubCacheRepo()
	repo.store[verifyCacheKey("s1", "term-1")] = []byte(`{"hasConflicts":false}`)
	fx := newGeneratorFixture(t)
	fx.service.cache = NewCacheService(repo, nil, time.Minute, zap.NewNop(), true)
	fx.loads.loads["c1"] = []models.ClassSubjectLoad{subjectLoad("c1", "math", "Mathematics", "t-math", "Bu Sari", 1)}

	_, err := fx.service.Generate(context.Background(), generateRequest())
	require.NoError(t, err)
	assert.Equal(t, []string{"timetable:verify:s1:term-1"}, repo.deleted)
	assert.NotContains(t, repo.store, "timetable:verify:s1:term-1")
}
