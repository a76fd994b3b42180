package scheduler

import (
	"fmt"
	"sort"
)

// FailureReason explains why a task could not be placed.
type FailureReason string

const (
	ReasonNone             FailureReason = ""
	ReasonNoFreeSlot       FailureReason = "NO_FREE_SLOT"
	ReasonNoContiguousPair FailureReason = "NO_CONTIGUOUS_PAIR"
	ReasonDailyCap         FailureReason = "DAILY_CAP_REACHED"
	ReasonTeacherLoad      FailureReason = "TEACHER_LOAD_LIMIT"
	ReasonMissingData      FailureReason = "MISSING_ASSIGNMENT_DATA"
)

// Describe renders a human readable message for the failure of task.
func (r FailureReason) Describe(task PlacementTask) string {
	switch r {
	case ReasonNoFreeSlot:
		return fmt.Sprintf("no free period left for subject %s with teacher %s", task.SubjectID, task.TeacherID)
	case ReasonNoContiguousPair:
		return fmt.Sprintf("no two consecutive free periods for double %s with teacher %s", task.SubjectID, task.TeacherID)
	case ReasonDailyCap:
		return fmt.Sprintf("subject %s already reached its daily limit on every free day", task.SubjectID)
	case ReasonTeacherLoad:
		return fmt.Sprintf("teacher %s reached their daily or weekly period limit", task.TeacherID)
	case ReasonMissingData:
		return "assignment is missing class, subject or teacher"
	}
	return ""
}

func errClassMismatch(got, want string) error {
	return fmt.Errorf("assignment belongs to class %q, not %q", got, want)
}

// PlaceTask tries to place task into its class timetable. With relaxed false a
// day only qualifies while the subject has fewer than maxPerDay periods on it.
// Failure is reported, never retried.
func (r *Run) PlaceTask(task PlacementTask, maxPerDay int, relaxed bool) (bool, FailureReason) {
	if task.ClassID == "" || task.SubjectID == "" || task.TeacherID == "" {
		return false, ReasonMissingData
	}
	if maxPerDay <= 0 {
		maxPerDay = DefaultMaxPerDay
	}
	tt := r.Timetable(task.ClassID)

	candidates := make(map[Day][]int)
	anyFree, loadLimited := false, false
	for _, slot := range r.grid.AllSlots() {
		if !r.slotOpen(tt, task.TeacherID, slot) {
			continue
		}
		if !r.teachers.HasCapacity(task.TeacherID, slot.Day, task.Periods()) {
			loadLimited = true
			continue
		}
		anyFree = true
		if task.IsDouble {
			next := TimeSlot{Day: slot.Day, Period: slot.Period + 1}
			if !r.grid.Contiguous(slot.Period) || !r.slotOpen(tt, task.TeacherID, next) {
				continue
			}
		}
		candidates[slot.Day] = append(candidates[slot.Day], slot.Period)
	}
	if len(candidates) == 0 {
		switch {
		case task.IsDouble && anyFree:
			return false, ReasonNoContiguousPair
		case loadLimited:
			return false, ReasonTeacherLoad
		}
		return false, ReasonNoFreeSlot
	}

	for _, day := range r.rankDays(task, candidates) {
		if !relaxed && r.SubjectDayCount(task.ClassID, task.SubjectID, day) >= maxPerDay {
			continue
		}
		period := r.pickPeriod(candidates[day])
		if err := r.commit(tt, task, day, period); err != nil {
			return false, ReasonNoFreeSlot
		}
		return true, ReasonNone
	}
	return false, ReasonDailyCap
}

// slotOpen ignores teacher load limits; PlaceTask checks them per day for
// the whole task.
func (r *Run) slotOpen(tt *Timetable, teacherID string, slot TimeSlot) bool {
	if !r.grid.Contains(slot) || tt.Occupied(slot) {
		return false
	}
	return r.teachers.SlotOpen(teacherID, slot.Day, slot.Period)
}

// rankDays orders candidate days by subject spread, then class load, then the
// tie-breaker.
func (r *Run) rankDays(task PlacementTask, candidates map[Day][]int) []Day {
	days := make([]Day, 0, len(candidates))
	for _, day := range r.grid.days {
		if len(candidates[day]) > 0 {
			days = append(days, day)
		}
	}
	r.tieBreak.Shuffle(len(days), func(i, j int) { days[i], days[j] = days[j], days[i] })
	sort.SliceStable(days, func(i, j int) bool {
		si := r.SubjectDayCount(task.ClassID, task.SubjectID, days[i])
		sj := r.SubjectDayCount(task.ClassID, task.SubjectID, days[j])
		if si != sj {
			return si < sj
		}
		return r.ClassDayLoad(task.ClassID, days[i]) < r.ClassDayLoad(task.ClassID, days[j])
	})
	return days
}

func (r *Run) pickPeriod(periods []int) int {
	options := make([]int, len(periods))
	copy(options, periods)
	r.tieBreak.Shuffle(len(options), func(i, j int) { options[i], options[j] = options[j], options[i] })
	return options[0]
}

func (r *Run) commit(tt *Timetable, task PlacementTask, day Day, period int) error {
	placed := make([]Entry, 0, task.Periods())
	for offset := 0; offset < task.Periods(); offset++ {
		entry := Entry{
			Day:       day,
			Period:    period + offset,
			SubjectID: task.SubjectID,
			TeacherID: task.TeacherID,
			ClassID:   task.ClassID,
			Double:    task.IsDouble,
		}
		if err := tt.put(entry); err != nil {
			r.rollback(tt, placed)
			return err
		}
		if err := r.teachers.Reserve(task.TeacherID, task.ClassID, day, entry.Period); err != nil {
			delete(tt.cells, entry.Slot())
			r.rollback(tt, placed)
			return err
		}
		placed = append(placed, entry)
	}
	r.subjectDay[subjectDayKey{ClassID: task.ClassID, SubjectID: task.SubjectID, Day: day}] += len(placed)
	r.classDay[classDayKey{ClassID: task.ClassID, Day: day}] += len(placed)
	return nil
}

func (r *Run) rollback(tt *Timetable, entries []Entry) {
	for _, entry := range entries {
		delete(tt.cells, entry.Slot())
		r.teachers.Release(entry.TeacherID, entry.Day, entry.Period)
	}
}
