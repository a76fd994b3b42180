package scheduler

import (
	"errors"
	"fmt"
	"sort"
)

// ErrMalformedEntry is returned when an entry cannot be persisted.
var ErrMalformedEntry = errors.New("malformed schedule entry")

// PersistedPeriod is the stored form of one placed period.
type PersistedPeriod struct {
	Period    int    `json:"period"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
	SubjectID string `json:"subjectId"`
	TeacherID string `json:"teacherId"`
	Double    bool   `json:"double,omitempty"`
}

// PersistedSchedule maps day names to their ordered periods.
type PersistedSchedule map[string][]PersistedPeriod

// PeriodCount returns the number of stored periods across all days.
func (p PersistedSchedule) PeriodCount() int {
	total := 0
	for _, periods := range p {
		total += len(periods)
	}
	return total
}

// ToPersistable converts grouped entries into their stored form. Nothing is
// returned if any entry is malformed.
func ToPersistable(grid Grid, byDay map[Day][]Entry) (PersistedSchedule, error) {
	out := make(PersistedSchedule, len(byDay))
	for day, entries := range byDay {
		if !grid.HasDay(day) {
			return nil, fmt.Errorf("%w: %s is not a working day", ErrMalformedEntry, day)
		}
		periods := make([]PersistedPeriod, 0, len(entries))
		seen := make(map[int]bool, len(entries))
		for _, entry := range entries {
			if entry.SubjectID == "" || entry.TeacherID == "" {
				return nil, fmt.Errorf("%w: %s period %d lacks subject or teacher", ErrMalformedEntry, day, entry.Period)
			}
			if entry.Day != day {
				return nil, fmt.Errorf("%w: entry for %s grouped under %s", ErrMalformedEntry, entry.Day, day)
			}
			start, end, ok := grid.PeriodWindow(entry.Period)
			if !ok {
				return nil, fmt.Errorf("%w: period %d outside 1-%d", ErrMalformedEntry, entry.Period, grid.PeriodsPerDay())
			}
			if seen[entry.Period] {
				return nil, fmt.Errorf("%w: %s period %d appears twice", ErrMalformedEntry, day, entry.Period)
			}
			seen[entry.Period] = true
			periods = append(periods, PersistedPeriod{
				Period:    entry.Period,
				StartTime: FormatClock(start),
				EndTime:   FormatClock(end),
				SubjectID: entry.SubjectID,
				TeacherID: entry.TeacherID,
				Double:    entry.Double,
			})
		}
		sort.Slice(periods, func(i, j int) bool { return periods[i].Period < periods[j].Period })
		out[day.String()] = periods
	}
	return out, nil
}

// FromPersistable rebuilds entries of classID from a stored schedule.
func FromPersistable(classID string, schedule PersistedSchedule) ([]Entry, error) {
	var entries []Entry
	for name, periods := range schedule {
		day, ok := ParseDay(name)
		if !ok {
			return nil, fmt.Errorf("%w: unknown day %q", ErrMalformedEntry, name)
		}
		for _, p := range periods {
			if p.SubjectID == "" || p.TeacherID == "" || p.Period < 1 {
				return nil, fmt.Errorf("%w: %s period %d", ErrMalformedEntry, name, p.Period)
			}
			entries = append(entries, Entry{
				Day:       day,
				Period:    p.Period,
				SubjectID: p.SubjectID,
				TeacherID: p.TeacherID,
				ClassID:   classID,
				Double:    p.Double,
			})
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Day == entries[j].Day {
			return entries[i].Period < entries[j].Period
		}
		return entries[i].Day < entries[j].Day
	})
	return entries, nil
}
