package service

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/scheduler"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
	"github.com/noah-isme/sma-timetable-api/pkg/export"
)

// Export renders the stored timetable of a class as CSV or PDF.
func (s *TimetableGeneratorService) Export(ctx context.Context, schoolID, classID, termID, format string) (*dto.TimetableFile, error) {
	parsed, err := export.ParseFormat(format)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "unsupported export format")
	}
	record, schedule, err := s.findTimetable(ctx, schoolID, classID, termID)
	if err != nil {
		return nil, err
	}

	dataset := s.timetableDataset(record, schedule, s.resolveLessonNames(ctx, classID, termID))

	var body []byte
	switch parsed {
	case export.FormatPDF:
		body, err = s.pdf.Render(dataset)
	default:
		body, err = s.csv.Render(dataset)
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render timetable")
	}

	return &dto.TimetableFile{
		Filename:    export.Filename(parsed, "timetable", record.ClassName, termID),
		ContentType: parsed.ContentType(),
		Body:        body,
	}, nil
}

type lessonNames struct {
	subjects map[string]string
	teachers map[string]string
}

func (n lessonNames) cell(period scheduler.PersistedPeriod) string {
	subject := period.SubjectID
	if name, ok := n.subjects[period.SubjectID]; ok && name != "" {
		subject = name
	}
	teacher := period.TeacherID
	if name, ok := n.teachers[period.TeacherID]; ok && name != "" {
		teacher = name
	}
	return subject + " / " + teacher
}

// resolveLessonNames resolves display names from the class loads. Missing names
// fall back to ids.
func (s *TimetableGeneratorService) resolveLessonNames(ctx context.Context, classID, termID string) lessonNames {
	names := lessonNames{subjects: map[string]string{}, teachers: map[string]string{}}
	if s.loads == nil {
		return names
	}
	loads, err := s.loads.ListLoadsByClassAndTerm(ctx, classID, termID)
	if err != nil {
		s.logger.Warn("export falls back to ids", zap.String("class_id", classID), zap.Error(err))
		return names
	}
	for _, load := range loads {
		if load.SubjectName != nil {
			names.subjects[load.SubjectID] = *load.SubjectName
		}
		if load.TeacherID != nil && load.TeacherName != nil {
			names.teachers[*load.TeacherID] = *load.TeacherName
		}
	}
	return names
}

// timetableDataset lays the week out as one row per period and one column
// per day. Days present only in the stored document are kept.
func (s *TimetableGeneratorService) timetableDataset(record *models.Timetable, schedule scheduler.PersistedSchedule, names lessonNames) export.Dataset {
	grid := s.cfg.Grid

	type cellKey struct {
		day    scheduler.Day
		period int
	}
	cells := make(map[cellKey]scheduler.PersistedPeriod)
	storedDays := make(map[scheduler.Day]bool)
	periods := grid.PeriodsPerDay()
	for name, entries := range schedule {
		day, ok := scheduler.ParseDay(name)
		if !ok {
			continue
		}
		storedDays[day] = true
		for _, entry := range entries {
			cells[cellKey{day: day, period: entry.Period}] = entry
			if entry.Period > periods {
				periods = entry.Period
			}
		}
	}

	var days []scheduler.Day
	for day := scheduler.Monday; day <= scheduler.Sunday; day++ {
		if grid.HasDay(day) || storedDays[day] {
			days = append(days, day)
		}
	}

	headers := []string{"Period", "Time"}
	for _, day := range days {
		headers = append(headers, day.String())
	}

	rows := make([][]string, 0, periods)
	for period := 1; period <= periods; period++ {
		row := []string{strconv.Itoa(period), ""}
		if start, end, ok := grid.PeriodWindow(period); ok {
			row[1] = scheduler.FormatClock(start) + "-" + scheduler.FormatClock(end)
		}
		for _, day := range days {
			entry, ok := cells[cellKey{day: day, period: period}]
			if !ok {
				row = append(row, "")
				continue
			}
			if row[1] == "" {
				row[1] = entry.StartTime + "-" + entry.EndTime
			}
			row = append(row, names.cell(entry))
		}
		rows = append(rows, row)
	}

	return export.Dataset{
		Title:    fmt.Sprintf("Timetable %s", record.ClassName),
		Subtitle: fmt.Sprintf("Term %s, generated %s", record.TermID, record.GeneratedAt.Format("2006-01-02 15:04")),
		Headers:  headers,
		Rows:     rows,
	}
}
