package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/scheduler"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
	"github.com/noah-isme/sma-timetable-api/pkg/events"
)

type storedTimetableLister interface {
	ListAllBySchoolTerm(ctx context.Context, schoolID, termID string) ([]models.Timetable, error)
}

func verifyCacheKey(schoolID, termID string) string {
	return fmt.Sprintf("timetable:verify:%s:%s", schoolID, termID)
}

type conflictsDetectedEvent struct {
	SchoolID  string               `json:"schoolId"`
	TermID    string               `json:"termId"`
	Count     int                  `json:"count"`
	Conflicts []scheduler.Conflict `json:"conflicts"`
}

// TimetableVerifierService checks stored timetables for teacher double bookings.
type TimetableVerifierService struct {
	timetables storedTimetableLister
	cache      *CacheService
	cacheTTL   time.Duration
	metrics    *MetricsService
	events     eventPublisher
	logger     *zap.Logger
}

// NewTimetableVerifierService constructs the verifier service.
func NewTimetableVerifierService(timetables storedTimetableLister, cache *CacheService, cacheTTL time.Duration, metrics *MetricsService, publisher eventPublisher, logger *zap.Logger) *TimetableVerifierService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &TimetableVerifierService{
		timetables: timetables,
		cache:      cache,
		cacheTTL:   cacheTTL,
		metrics:    metrics,
		events:     publisher,
		logger:     logger,
	}
}

// Verify reports every pair of overlapping periods taught by the same teacher
// across the stored timetables of a term. It never modifies them.
func (s *TimetableVerifierService) Verify(ctx context.Context, schoolID, termID string) (*scheduler.Report, error) {
	if schoolID == "" || termID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "schoolId and termId are required")
	}

	key := verifyCacheKey(schoolID, termID)
	generation := s.cache.Generation()
	var cached scheduler.Report
	if s.cache.Get(ctx, key, &cached) {
		return &cached, nil
	}

	records, err := s.timetables.ListAllBySchoolTerm(ctx, schoolID, termID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetables")
	}

	schedules := make([]scheduler.ClassSchedule, 0, len(records))
	var unreadable []string
	for _, record := range records {
		schedule, err := decodeSchedule(record.Schedule)
		if err != nil {
			s.logger.Warn("skipping unreadable timetable", zap.String("timetable_id", record.ID), zap.Error(err))
			unreadable = append(unreadable, fmt.Sprintf("timetable of class %s is unreadable", record.ClassName))
			continue
		}
		schedules = append(schedules, scheduler.ClassSchedule{ClassID: record.ClassID, ClassName: record.ClassName, Schedule: schedule})
	}

	report := scheduler.Verify(schedules)
	report.Skipped = append(unreadable, report.Skipped...)

	result := "clean"
	switch {
	case report.NoData:
		result = "no_data"
	case report.HasConflicts:
		result = "conflicts"
	}
	s.metrics.RecordVerification(result, len(report.Conflicts))
	s.cache.SetIfUnchanged(ctx, key, report, s.cacheTTL, generation)

	if report.HasConflicts {
		s.logger.Warn("teacher conflicts detected",
			zap.String("school_id", schoolID),
			zap.String("term_id", termID),
			zap.Int("conflicts", len(report.Conflicts)),
		)
		event := conflictsDetectedEvent{SchoolID: schoolID, TermID: termID, Count: len(report.Conflicts), Conflicts: report.Conflicts}
		if err := s.events.Publish(ctx, events.TimetableConflictsDetected, event); err != nil {
			s.logger.Warn("failed to publish conflicts event", zap.Error(err))
		}
	}
	return &report, nil
}
