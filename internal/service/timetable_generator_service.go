package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/scheduler"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
	"github.com/noah-isme/sma-timetable-api/pkg/events"
	"github.com/noah-isme/sma-timetable-api/pkg/export"
	"github.com/noah-isme/sma-timetable-api/pkg/jobs"
)

// GenerateSchoolJobType identifies queued whole-school generation jobs.
const GenerateSchoolJobType = "timetable.generate_school"

const (
	scopeClass  = "class"
	scopeSchool = "school"

	outcomeComplete = "complete"
	outcomePartial  = "partial"
	outcomeFailed   = "failed"
)

type timetableStore interface {
	Upsert(ctx context.Context, exec sqlx.ExtContext, timetable *models.Timetable) error
	FindByClass(ctx context.Context, schoolID, classID, termID string) (*models.Timetable, error)
	ListBySchoolTerm(ctx context.Context, filter models.TimetableFilter) ([]models.Timetable, int, error)
	ListAllBySchoolTerm(ctx context.Context, schoolID, termID string) ([]models.Timetable, error)
}

type classReader interface {
	FindByID(ctx context.Context, id string) (*models.Class, error)
	ListBySchool(ctx context.Context, schoolID string) ([]models.Class, error)
}

type termReader interface {
	FindByID(ctx context.Context, id string) (*models.Term, error)
}

type subjectLoadReader interface {
	ListLoadsByClassAndTerm(ctx context.Context, classID, termID string) ([]models.ClassSubjectLoad, error)
}

type preferenceReader interface {
	ListByTeachers(ctx context.Context, teacherIDs []string) ([]models.TeacherPreference, error)
}

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

type eventPublisher interface {
	Publish(ctx context.Context, routingKey string, data interface{}) error
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) (string, error)
	Status(id string) (jobs.Status, error)
}

// TimetableGeneratorConfig governs generator behaviour.
type TimetableGeneratorConfig struct {
	Grid        scheduler.Grid
	MaxPerDay   int
	TieBreakers scheduler.TieBreakerFactory
}

// TimetableGeneratorService generates, stores and exports class timetables.
type TimetableGeneratorService struct {
	timetables  timetableStore
	classes     classReader
	terms       termReader
	loads       subjectLoadReader
	preferences preferenceReader
	tx          txProvider
	locker      generationLocker
	events      eventPublisher
	cache       *CacheService
	metrics     *MetricsService
	queue       jobDispatcher
	validator   *validator.Validate
	logger      *zap.Logger
	cfg         TimetableGeneratorConfig
	csv         *export.CSVExporter
	pdf         *export.PDFExporter
	now         func() time.Time
}

// NewTimetableGeneratorService wires generator dependencies.
func NewTimetableGeneratorService(
	timetables timetableStore,
	classes classReader,
	terms termReader,
	loads subjectLoadReader,
	preferences preferenceReader,
	tx txProvider,
	locker generationLocker,
	publisher eventPublisher,
	cache *CacheService,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg TimetableGeneratorConfig,
) *TimetableGeneratorService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if locker == nil {
		locker = NewLocalGenerationLocker()
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if cfg.MaxPerDay <= 0 {
		cfg.MaxPerDay = scheduler.DefaultMaxPerDay
	}
	if cfg.TieBreakers == nil {
		cfg.TieBreakers = scheduler.NewTieBreakerFactory("ordered", 0)
	}
	return &TimetableGeneratorService{
		timetables:  timetables,
		classes:     classes,
		terms:       terms,
		loads:       loads,
		preferences: preferences,
		tx:          tx,
		locker:      locker,
		events:      publisher,
		cache:       cache,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
		cfg:         cfg,
		csv:         export.NewCSVExporter(),
		pdf:         export.NewPDFExporter(),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// AttachQueue sets the dispatcher used for background batches. The queue
// handler is usually HandleJob, so the queue is built after the service.
func (s *TimetableGeneratorService) AttachQueue(queue jobDispatcher) {
	s.queue = queue
}

type classPlan struct {
	class       models.Class
	assignments []scheduler.Assignment
	required    int
}

type classOutcome struct {
	plan     classPlan
	record   *models.Timetable
	schedule scheduler.PersistedSchedule
	result   scheduler.ClassResult
	response dto.GenerateTimetableResponse
}

type timetableGeneratedEvent struct {
	TimetableID   string    `json:"timetableId"`
	SchoolID      string    `json:"schoolId"`
	ClassID       string    `json:"classId"`
	TermID        string    `json:"termId"`
	PlacedPeriods int       `json:"placedPeriods"`
	UnplacedCount int       `json:"unplacedCount"`
	GeneratedAt   time.Time `json:"generatedAt"`
}

// Generate builds and stores the timetable of one class. Timetables already
// stored for the other classes of the term keep their teacher bookings.
func (s *TimetableGeneratorService) Generate(ctx context.Context, req dto.GenerateTimetableRequest) (*dto.GenerateTimetableResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid generate request")
	}
	if err := s.checkGrid(); err != nil {
		return nil, err
	}
	class, err := s.loadClass(ctx, req.SchoolID, req.ClassID)
	if err != nil {
		return nil, err
	}
	if err := s.ensureTerm(ctx, req.SchoolID, req.TermID); err != nil {
		return nil, err
	}

	release, err := s.locker.Lock(ctx, generationLockKey(req.SchoolID, req.TermID))
	if err != nil {
		return nil, err
	}
	defer release()

	started := time.Now()
	resp, err := s.generateClass(ctx, *class, req)
	if err != nil {
		s.metrics.ObserveGeneration(scopeClass, outcomeFailed, time.Since(started))
		return nil, err
	}
	s.metrics.ObserveGeneration(scopeClass, outcomeOf(resp.Unplaced), time.Since(started))
	return resp, nil
}

func (s *TimetableGeneratorService) generateClass(ctx context.Context, class models.Class, req dto.GenerateTimetableRequest) (*dto.GenerateTimetableResponse, error) {
	plan, err := s.planClass(ctx, class, req.TermID)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, fmt.Sprintf("class %s has no subject loads for the term", class.Name))
	}

	run := s.newRun(req.TermID)
	warnings, err := s.replayStored(ctx, run, req.SchoolID, req.TermID, map[string]bool{class.ID: true})
	if err != nil {
		return nil, err
	}
	if err := s.blockUnavailable(ctx, run, teacherIDsOf([]classPlan{*plan})); err != nil {
		return nil, err
	}

	outcome, err := s.schedulePlan(run, *plan, req.SchoolID, req.TermID, s.maxPerDay(req.MaxPerDay))
	if err != nil {
		return nil, err
	}
	if err := s.timetables.Upsert(ctx, nil, outcome.record); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store timetable")
	}

	s.afterPersist(ctx, req.SchoolID, req.TermID, []*classOutcome{outcome})
	outcome.response.Timetable = toTimetableView(outcome.record, outcome.schedule)
	outcome.response.Warnings = warnings
	return &outcome.response, nil
}

// GenerateSchool regenerates every class of the school in class name order.
// One run threads teacher bookings through the whole batch and all
// timetables are stored in a single transaction.
func (s *TimetableGeneratorService) GenerateSchool(ctx context.Context, req dto.GenerateSchoolRequest) (*dto.GenerateSchoolResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid generate request")
	}
	if err := s.checkGrid(); err != nil {
		return nil, err
	}
	if err := s.ensureTerm(ctx, req.SchoolID, req.TermID); err != nil {
		return nil, err
	}

	release, err := s.locker.Lock(ctx, generationLockKey(req.SchoolID, req.TermID))
	if err != nil {
		return nil, err
	}
	defer release()

	started := time.Now()
	resp, err := s.generateSchool(ctx, req)
	if err != nil {
		s.metrics.ObserveGeneration(scopeSchool, outcomeFailed, time.Since(started))
		return nil, err
	}
	outcome := outcomeComplete
	if resp.TotalUnplaced > 0 {
		outcome = outcomePartial
	}
	s.metrics.ObserveGeneration(scopeSchool, outcome, time.Since(started))
	return resp, nil
}

func (s *TimetableGeneratorService) generateSchool(ctx context.Context, req dto.GenerateSchoolRequest) (*dto.GenerateSchoolResponse, error) {
	classes, err := s.classes.ListBySchool(ctx, req.SchoolID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load classes")
	}
	sort.SliceStable(classes, func(i, j int) bool { return classes[i].Name < classes[j].Name })

	var (
		plans    []classPlan
		warnings []string
	)
	regenerated := make(map[string]bool, len(classes))
	for _, class := range classes {
		plan, err := s.planClass(ctx, class, req.TermID)
		if err != nil {
			return nil, err
		}
		if plan == nil {
			warnings = append(warnings, fmt.Sprintf("class %s has no subject loads for the term and was skipped", class.Name))
			continue
		}
		plans = append(plans, *plan)
		regenerated[class.ID] = true
	}
	if len(plans) == 0 {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "no class of the school has subject loads for the term")
	}

	run := s.newRun(req.TermID)
	replayWarnings, err := s.replayStored(ctx, run, req.SchoolID, req.TermID, regenerated)
	if err != nil {
		return nil, err
	}
	warnings = append(warnings, replayWarnings...)
	if err := s.blockUnavailable(ctx, run, teacherIDsOf(plans)); err != nil {
		return nil, err
	}

	maxPerDay := s.maxPerDay(req.MaxPerDay)
	outcomes := make([]*classOutcome, 0, len(plans))
	for _, plan := range plans {
		outcome, err := s.schedulePlan(run, plan, req.SchoolID, req.TermID, maxPerDay)
		if err != nil {
			return nil, err
		}
		outcomes = append(outcomes, outcome)
	}

	if err := s.persistBatch(ctx, outcomes); err != nil {
		return nil, err
	}
	s.afterPersist(ctx, req.SchoolID, req.TermID, outcomes)

	resp := &dto.GenerateSchoolResponse{
		SchoolID: req.SchoolID,
		TermID:   req.TermID,
		Classes:  make([]dto.GenerateTimetableResponse, 0, len(outcomes)),
		Warnings: warnings,
	}
	for _, outcome := range outcomes {
		outcome.response.Timetable = toTimetableView(outcome.record, outcome.schedule)
		resp.Classes = append(resp.Classes, outcome.response)
		resp.TotalUnplaced += len(outcome.response.Unplaced)
	}
	return resp, nil
}

// GenerateSchoolAsync queues a whole-school batch and returns its job id.
func (s *TimetableGeneratorService) GenerateSchoolAsync(ctx context.Context, req dto.GenerateSchoolRequest) (*dto.GenerationJobResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid generate request")
	}
	if s.queue == nil {
		return nil, appErrors.Clone(appErrors.ErrUnavailable, "background generation is not configured")
	}
	if err := s.ensureTerm(ctx, req.SchoolID, req.TermID); err != nil {
		return nil, err
	}
	id, err := s.queue.Enqueue(jobs.Job{Type: GenerateSchoolJobType, Payload: req})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "failed to queue generation")
	}
	s.logger.Info("timetable generation queued", zap.String("job_id", id), zap.String("school_id", req.SchoolID), zap.String("term_id", req.TermID))
	return &dto.GenerationJobResponse{JobID: id, State: string(jobs.StateQueued)}, nil
}

// HandleJob runs a queued whole-school batch.
func (s *TimetableGeneratorService) HandleJob(ctx context.Context, job jobs.Job) (interface{}, error) {
	req, ok := job.Payload.(dto.GenerateSchoolRequest)
	if !ok {
		return nil, fmt.Errorf("job %s: unexpected payload %T", job.ID, job.Payload)
	}
	resp, err := s.GenerateSchool(ctx, req)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// JobStatus reports the progress of a queued batch.
func (s *TimetableGeneratorService) JobStatus(id string) (*jobs.Status, error) {
	if s.queue == nil {
		return nil, appErrors.Clone(appErrors.ErrUnavailable, "background generation is not configured")
	}
	status, err := s.queue.Status(id)
	if err != nil {
		if errors.Is(err, jobs.ErrUnknownJob) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "generation job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load job status")
	}
	return &status, nil
}

// Get returns the stored timetable of a class.
func (s *TimetableGeneratorService) Get(ctx context.Context, schoolID, classID, termID string) (*dto.TimetableView, error) {
	record, schedule, err := s.findTimetable(ctx, schoolID, classID, termID)
	if err != nil {
		return nil, err
	}
	view := toTimetableView(record, schedule)
	return &view, nil
}

// List returns one page of the term's stored timetables.
func (s *TimetableGeneratorService) List(ctx context.Context, schoolID, termID string, query dto.TimetableListQuery) ([]dto.TimetableView, *models.Pagination, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid pagination")
	}
	page := query.Page
	if page <= 0 {
		page = 1
	}
	size := query.PageSize
	if size <= 0 {
		size = 20
	}
	records, total, err := s.timetables.ListBySchoolTerm(ctx, models.TimetableFilter{SchoolID: schoolID, TermID: termID, Page: page, PageSize: size})
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list timetables")
	}
	views := make([]dto.TimetableView, 0, len(records))
	for i := range records {
		schedule, err := decodeSchedule(records[i].Schedule)
		if err != nil {
			return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "stored timetable is unreadable")
		}
		views = append(views, toTimetableView(&records[i], schedule))
	}
	return views, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

func (s *TimetableGeneratorService) findTimetable(ctx context.Context, schoolID, classID, termID string) (*models.Timetable, scheduler.PersistedSchedule, error) {
	record, err := s.timetables.FindByClass(ctx, schoolID, classID, termID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "timetable not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable")
	}
	schedule, err := decodeSchedule(record.Schedule)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "stored timetable is unreadable")
	}
	return record, schedule, nil
}

// planClass maps the class loads to assignments. A nil plan means the class
// has nothing to schedule this term.
func (s *TimetableGeneratorService) planClass(ctx context.Context, class models.Class, termID string) (*classPlan, error) {
	loads, err := s.loads.ListLoadsByClassAndTerm(ctx, class.ID, termID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject loads")
	}
	if len(loads) == 0 {
		return nil, nil
	}
	plan := &classPlan{class: class, assignments: make([]scheduler.Assignment, 0, len(loads))}
	for _, load := range loads {
		assignment := scheduler.Assignment{
			ClassID:        class.ID,
			ClassName:      class.Name,
			SubjectID:      load.SubjectID,
			PeriodsPerWeek: load.PeriodsPerWeek,
			RequiresDouble: load.RequiresDouble,
		}
		// Outer joins leave names nil when the referenced row is gone.
		if load.SubjectName != nil {
			assignment.SubjectName = *load.SubjectName
		} else {
			assignment.SubjectMissing = load.SubjectID != ""
		}
		if load.TeacherID != nil {
			assignment.TeacherID = *load.TeacherID
			assignment.TeacherMissing = load.TeacherName == nil
		}
		if load.TeacherName != nil {
			assignment.TeacherName = *load.TeacherName
		}
		if load.PeriodsPerWeek > 0 {
			plan.required += load.PeriodsPerWeek
		}
		plan.assignments = append(plan.assignments, assignment)
	}
	return plan, nil
}

func (s *TimetableGeneratorService) schedulePlan(run *scheduler.Run, plan classPlan, schoolID, termID string, maxPerDay int) (*classOutcome, error) {
	result := run.ScheduleClass(plan.class.ID, plan.assignments, maxPerDay)
	schedule, err := scheduler.ToPersistable(run.Grid(), result.Timetable.ByDay())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to serialise timetable")
	}
	payload, err := json.Marshal(schedule)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode timetable")
	}

	unplaced := make([]dto.UnplacedLesson, 0, len(result.Unplaced))
	for _, u := range result.Unplaced {
		unplaced = append(unplaced, dto.UnplacedLesson{
			SubjectID: u.Task.SubjectID,
			TeacherID: u.Task.TeacherID,
			Double:    u.Task.IsDouble,
			Reason:    string(u.Reason),
			Message:   u.Detail,
		})
	}

	record := &models.Timetable{
		SchoolID:      schoolID,
		ClassID:       plan.class.ID,
		TermID:        termID,
		ClassName:     plan.class.Name,
		Schedule:      types.JSONText(payload),
		PeriodCount:   schedule.PeriodCount(),
		UnplacedCount: len(unplaced),
		GeneratedAt:   s.now(),
	}
	if len(unplaced) > 0 {
		s.logger.Warn("timetable generated with unplaced lessons",
			zap.String("class_id", plan.class.ID),
			zap.String("term_id", termID),
			zap.Int("unplaced", len(unplaced)),
		)
	}

	return &classOutcome{
		plan:     plan,
		record:   record,
		schedule: schedule,
		result:   result,
		response: dto.GenerateTimetableResponse{
			RequiredPeriods:   plan.required,
			PlacedPeriods:     result.PlacedPeriods,
			RelaxedPlacements: result.RelaxedTasks,
			LoadSpread:        run.LoadSpread(plan.class.ID),
			Unplaced:          unplaced,
		},
	}, nil
}

func (s *TimetableGeneratorService) persistBatch(ctx context.Context, outcomes []*classOutcome) (err error) {
	if s.tx == nil {
		for _, outcome := range outcomes {
			if err := s.timetables.Upsert(ctx, nil, outcome.record); err != nil {
				return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store timetable")
			}
		}
		return nil
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, outcome := range outcomes {
		if err = s.timetables.Upsert(ctx, tx, outcome.record); err != nil {
			err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store timetable")
			return err
		}
	}
	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit timetables")
		return err
	}
	return nil
}

// afterPersist runs the side effects of a stored generation. None of them
// fail the request.
func (s *TimetableGeneratorService) afterPersist(ctx context.Context, schoolID, termID string, outcomes []*classOutcome) {
	s.cache.Invalidate(ctx, verifyCacheKey(schoolID, termID))

	for _, outcome := range outcomes {
		byReason := make(map[string]int)
		for _, u := range outcome.result.Unplaced {
			byReason[string(u.Reason)]++
		}
		s.metrics.RecordPlacement(outcome.result.PlacedPeriods, byReason)

		event := timetableGeneratedEvent{
			TimetableID:   outcome.record.ID,
			SchoolID:      schoolID,
			ClassID:       outcome.record.ClassID,
			TermID:        termID,
			PlacedPeriods: outcome.result.PlacedPeriods,
			UnplacedCount: outcome.record.UnplacedCount,
			GeneratedAt:   outcome.record.GeneratedAt,
		}
		if err := s.events.Publish(ctx, events.TimetableGenerated, event); err != nil {
			s.logger.Warn("failed to publish timetable event", zap.String("class_id", event.ClassID), zap.Error(err))
		}
		s.logger.Info("timetable generated",
			zap.String("timetable_id", outcome.record.ID),
			zap.String("class_id", outcome.record.ClassID),
			zap.String("term_id", termID),
			zap.Int("placed", outcome.result.PlacedPeriods),
			zap.Int("relaxed", outcome.result.RelaxedTasks),
		)
	}
}

// replayStored books the teachers of stored timetables into run, skipping the
// classes being regenerated. Clashes and unreadable records become warnings.
func (s *TimetableGeneratorService) replayStored(ctx context.Context, run *scheduler.Run, schoolID, termID string, skip map[string]bool) ([]string, error) {
	records, err := s.timetables.ListAllBySchoolTerm(ctx, schoolID, termID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load stored timetables")
	}
	var warnings []string
	for _, record := range records {
		if skip[record.ClassID] {
			continue
		}
		schedule, err := decodeSchedule(record.Schedule)
		if err == nil {
			var entries []scheduler.Entry
			entries, err = scheduler.FromPersistable(record.ClassID, schedule)
			if err == nil {
				for _, clash := range run.Teachers().Replay(entries) {
					holder, _ := run.Teachers().Owner(clash.TeacherID, clash.Day, clash.Period)
					warnings = append(warnings, fmt.Sprintf("teacher %s is booked twice on %s period %d in stored timetables (class %s, already held by class %s)", clash.TeacherID, clash.Day, clash.Period, record.ClassName, holder))
				}
				continue
			}
		}
		s.logger.Warn("ignoring unreadable stored timetable", zap.String("class_id", record.ClassID), zap.Error(err))
		warnings = append(warnings, fmt.Sprintf("stored timetable of class %s is unreadable and was ignored", record.ClassName))
	}
	return warnings, nil
}

// blockUnavailable applies the stored load limits and unavailable windows of
// teacherIDs.
func (s *TimetableGeneratorService) blockUnavailable(ctx context.Context, run *scheduler.Run, teacherIDs []string) error {
	if s.preferences == nil || len(teacherIDs) == 0 {
		return nil
	}
	prefs, err := s.preferences.ListByTeachers(ctx, teacherIDs)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher preferences")
	}
	grid := run.Grid()
	for _, pref := range prefs {
		run.Teachers().SetLimits(pref.TeacherID, scheduler.TeacherLimits{
			MaxPerDay:  pref.MaxLoadPerDay,
			MaxPerWeek: pref.MaxLoadPerWeek,
		})
		if len(pref.Unavailable) == 0 {
			continue
		}
		var windows []models.TeacherUnavailableSlot
		if err := pref.Unavailable.Unmarshal(&windows); err != nil {
			s.logger.Warn("ignoring invalid teacher preference", zap.String("teacher_id", pref.TeacherID), zap.Error(err))
			continue
		}
		for _, window := range windows {
			day, ok := scheduler.ParseDay(window.DayOfWeek)
			if !ok {
				continue
			}
			for _, period := range expandPeriodRange(window.TimeRange, grid.PeriodsPerDay()) {
				if grid.Contains(scheduler.TimeSlot{Day: day, Period: period}) {
					run.Teachers().Block(pref.TeacherID, day, period)
				}
			}
		}
	}
	return nil
}

func (s *TimetableGeneratorService) loadClass(ctx context.Context, schoolID, classID string) (*models.Class, error) {
	class, err := s.classes.FindByID(ctx, classID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	if class.SchoolID != schoolID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
	}
	return class, nil
}

func (s *TimetableGeneratorService) ensureTerm(ctx context.Context, schoolID, termID string) error {
	term, err := s.terms.FindByID(ctx, termID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "term not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load term")
	}
	if term.SchoolID != schoolID {
		return appErrors.Clone(appErrors.ErrNotFound, "term not found")
	}
	return nil
}

func (s *TimetableGeneratorService) checkGrid() error {
	if s.cfg.Grid.Capacity() == 0 {
		return appErrors.Clone(appErrors.ErrInvalidGrid, "timetable grid is not configured")
	}
	return nil
}

func (s *TimetableGeneratorService) newRun(termID string) *scheduler.Run {
	return scheduler.NewRun(s.cfg.Grid, termID, scheduler.WithTieBreaker(s.cfg.TieBreakers()))
}

func (s *TimetableGeneratorService) maxPerDay(requested int) int {
	if requested > 0 {
		return requested
	}
	return s.cfg.MaxPerDay
}

func teacherIDsOf(plans []classPlan) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, plan := range plans {
		for _, a := range plan.assignments {
			if a.TeacherID == "" || seen[a.TeacherID] {
				continue
			}
			seen[a.TeacherID] = true
			ids = append(ids, a.TeacherID)
		}
	}
	sort.Strings(ids)
	return ids
}

func outcomeOf(unplaced []dto.UnplacedLesson) string {
	if len(unplaced) > 0 {
		return outcomePartial
	}
	return outcomeComplete
}

func decodeSchedule(raw types.JSONText) (scheduler.PersistedSchedule, error) {
	schedule := scheduler.PersistedSchedule{}
	if len(raw) == 0 {
		return schedule, nil
	}
	if err := raw.Unmarshal(&schedule); err != nil {
		return nil, err
	}
	return schedule, nil
}

func toTimetableView(record *models.Timetable, schedule scheduler.PersistedSchedule) dto.TimetableView {
	return dto.TimetableView{
		ID:            record.ID,
		SchoolID:      record.SchoolID,
		ClassID:       record.ClassID,
		ClassName:     record.ClassName,
		TermID:        record.TermID,
		Schedule:      schedule,
		PeriodCount:   record.PeriodCount,
		UnplacedCount: record.UnplacedCount,
		GeneratedAt:   record.GeneratedAt,
	}
}

// expandPeriodRange turns "1-3" into [1 2 3] and "4" into [4]. Periods past
// maxPeriod are dropped.
func expandPeriodRange(raw string, maxPeriod int) []int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	from, to, isRange := strings.Cut(raw, "-")
	if !isRange {
		to = from
	}
	start, err := strconv.Atoi(strings.TrimSpace(from))
	if err != nil {
		return nil
	}
	end, err := strconv.Atoi(strings.TrimSpace(to))
	if err != nil || start < 1 || end < start {
		return nil
	}
	if end > maxPeriod {
		end = maxPeriod
	}
	if start > end {
		return nil
	}
	periods := make([]int, 0, end-start+1)
	for p := start; p <= end; p++ {
		periods = append(periods, p)
	}
	return periods
}
