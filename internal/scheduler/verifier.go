package scheduler

import (
	"fmt"
	"sort"
)

// ClassSchedule is a stored timetable as read back for verification.
type ClassSchedule struct {
	ClassID   string
	ClassName string
	Schedule  PersistedSchedule
}

// Occupant is one side of a teacher conflict.
type Occupant struct {
	ClassID   string `json:"classId"`
	ClassName string `json:"className"`
	SubjectID string `json:"subjectId"`
	Period    int    `json:"period"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

// Conflict reports a teacher booked into two overlapping periods.
type Conflict struct {
	TeacherID    string   `json:"teacherId"`
	Day          string   `json:"day"`
	OverlapStart string   `json:"overlapStart"`
	OverlapEnd   string   `json:"overlapEnd"`
	First        Occupant `json:"first"`
	Second       Occupant `json:"second"`
}

// TeacherWorkload aggregates what a teacher teaches per week.
type TeacherWorkload struct {
	TeacherID    string   `json:"teacherId"`
	ClassCount   int      `json:"classCount"`
	TotalPeriods int      `json:"totalPeriods"`
	ClassIDs     []string `json:"classIds"`
}

// Report is the outcome of a verification pass.
type Report struct {
	HasConflicts   bool              `json:"hasConflicts"`
	NoData         bool              `json:"noData"`
	Conflicts      []Conflict        `json:"conflicts"`
	Summary        []TeacherWorkload `json:"summary"`
	TimetableCount int               `json:"timetableCount"`
	EntryCount     int               `json:"entryCount"`
	Skipped        []string          `json:"skipped,omitempty"`
}

type flatEntry struct {
	teacherID string
	day       Day
	start     int
	end       int
	occupant  Occupant
}

// Verify audits stored timetables for teacher double-booking. It compares
// every pair of same-teacher same-day entries; two periods overlap when
// start1 < end2 and start2 < end1, so back-to-back periods are fine.
func Verify(records []ClassSchedule) Report {
	report := Report{
		Conflicts:      []Conflict{},
		Summary:        []TeacherWorkload{},
		TimetableCount: len(records),
	}
	if len(records) == 0 {
		report.NoData = true
		return report
	}

	flat, skipped := flatten(records)
	report.EntryCount = len(flat)
	report.Skipped = skipped

	for i := 0; i < len(flat); i++ {
		for j := i + 1; j < len(flat); j++ {
			a, b := flat[i], flat[j]
			if a.teacherID != b.teacherID || a.day != b.day {
				continue
			}
			if a.start < b.end && b.start < a.end {
				report.Conflicts = append(report.Conflicts, Conflict{
					TeacherID:    a.teacherID,
					Day:          a.day.String(),
					OverlapStart: FormatClock(max(a.start, b.start)),
					OverlapEnd:   FormatClock(min(a.end, b.end)),
					First:        a.occupant,
					Second:       b.occupant,
				})
			}
		}
	}
	report.HasConflicts = len(report.Conflicts) > 0
	report.Summary = workload(flat)
	return report
}

func flatten(records []ClassSchedule) ([]flatEntry, []string) {
	var (
		flat    []flatEntry
		skipped []string
	)
	for _, record := range records {
		names := make([]string, 0, len(record.Schedule))
		for name := range record.Schedule {
			names = append(names, name)
		}
		sort.Slice(names, func(i, j int) bool {
			di, _ := ParseDay(names[i])
			dj, _ := ParseDay(names[j])
			if di == dj {
				return names[i] < names[j]
			}
			return di < dj
		})
		for _, name := range names {
			day, ok := ParseDay(name)
			if !ok {
				skipped = append(skipped, fmt.Sprintf("class %s: unknown day %q", record.ClassID, name))
				continue
			}
			for _, period := range record.Schedule[name] {
				start, errStart := ParseClock(period.StartTime)
				end, errEnd := ParseClock(period.EndTime)
				if errStart != nil || errEnd != nil || end <= start || period.TeacherID == "" {
					skipped = append(skipped, fmt.Sprintf("class %s: %s period %d has an unusable time window or teacher", record.ClassID, name, period.Period))
					continue
				}
				flat = append(flat, flatEntry{
					teacherID: period.TeacherID,
					day:       day,
					start:     start,
					end:       end,
					occupant: Occupant{
						ClassID:   record.ClassID,
						ClassName: record.ClassName,
						SubjectID: period.SubjectID,
						Period:    period.Period,
						StartTime: period.StartTime,
						EndTime:   period.EndTime,
					},
				})
			}
		}
	}
	return flat, skipped
}

func workload(flat []flatEntry) []TeacherWorkload {
	type acc struct {
		periods int
		classes map[string]bool
	}
	byTeacher := make(map[string]*acc)
	for _, entry := range flat {
		a, ok := byTeacher[entry.teacherID]
		if !ok {
			a = &acc{classes: make(map[string]bool)}
			byTeacher[entry.teacherID] = a
		}
		a.periods++
		a.classes[entry.occupant.ClassID] = true
	}

	summary := make([]TeacherWorkload, 0, len(byTeacher))
	for teacherID, a := range byTeacher {
		classIDs := make([]string, 0, len(a.classes))
		for classID := range a.classes {
			classIDs = append(classIDs, classID)
		}
		sort.Strings(classIDs)
		summary = append(summary, TeacherWorkload{
			TeacherID:    teacherID,
			ClassCount:   len(classIDs),
			TotalPeriods: a.periods,
			ClassIDs:     classIDs,
		})
	}
	sort.Slice(summary, func(i, j int) bool {
		if summary[i].TotalPeriods == summary[j].TotalPeriods {
			return summary[i].TeacherID < summary[j].TeacherID
		}
		return summary[i].TotalPeriods > summary[j].TotalPeriods
	})
	return summary
}
