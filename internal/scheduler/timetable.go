package scheduler

import (
	"fmt"
	"sort"
)

// Assignment is one subject a class must be taught during the week.
type Assignment struct {
	ClassID        string
	ClassName      string
	SubjectID      string
	SubjectName    string
	TeacherID      string
	TeacherName    string
	PeriodsPerWeek int
	RequiresDouble bool
	// SubjectMissing and TeacherMissing mark ids whose referenced row no
	// longer exists in the assignment source.
	SubjectMissing bool
	TeacherMissing bool
}

// Validate reports missing identifiers or a non-positive weekly load.
func (a Assignment) Validate() error {
	switch {
	case a.ClassID == "":
		return fmt.Errorf("assignment for subject %q has no class", a.SubjectID)
	case a.SubjectID == "":
		return fmt.Errorf("assignment for class %q has no subject", a.ClassID)
	case a.TeacherID == "":
		return fmt.Errorf("subject %q of class %q has no teacher", a.SubjectID, a.ClassID)
	case a.SubjectMissing:
		return fmt.Errorf("subject %q of class %q no longer exists", a.SubjectID, a.ClassID)
	case a.TeacherMissing:
		return fmt.Errorf("teacher %q of subject %q in class %q no longer exists", a.TeacherID, a.SubjectID, a.ClassID)
	case a.PeriodsPerWeek <= 0:
		return fmt.Errorf("subject %q of class %q needs a positive weekly load", a.SubjectID, a.ClassID)
	}
	return nil
}

// PlacementTask is one unit of placement work: a single period or a double.
type PlacementTask struct {
	SubjectID           string
	ClassID             string
	TeacherID           string
	RequiredOccurrences int
	OccurrenceIndex     int
	IsDouble            bool
}

// Periods returns how many consecutive periods the task occupies.
func (t PlacementTask) Periods() int {
	if t.IsDouble {
		return 2
	}
	return 1
}

// Decompose splits an assignment into placement tasks. A double-period
// subject becomes N/2 doubles, plus a single when N is odd.
func Decompose(a Assignment) []PlacementTask {
	if a.PeriodsPerWeek <= 0 {
		return nil
	}
	base := PlacementTask{
		SubjectID:           a.SubjectID,
		ClassID:             a.ClassID,
		TeacherID:           a.TeacherID,
		RequiredOccurrences: a.PeriodsPerWeek,
	}
	var tasks []PlacementTask
	index := 0
	if a.RequiresDouble {
		for i := 0; i < a.PeriodsPerWeek/2; i++ {
			task := base
			task.IsDouble = true
			task.OccurrenceIndex = index
			tasks = append(tasks, task)
			index++
		}
		if a.PeriodsPerWeek%2 == 1 {
			task := base
			task.OccurrenceIndex = index
			tasks = append(tasks, task)
		}
		return tasks
	}
	for i := 0; i < a.PeriodsPerWeek; i++ {
		task := base
		task.OccurrenceIndex = i
		tasks = append(tasks, task)
	}
	return tasks
}

// Entry is one placed period of a class timetable.
type Entry struct {
	Day       Day
	Period    int
	SubjectID string
	TeacherID string
	ClassID   string
	// Double is set on both halves of a double period.
	Double bool
}

// Slot returns the grid cell of the entry.
func (e Entry) Slot() TimeSlot {
	return TimeSlot{Day: e.Day, Period: e.Period}
}

// Timetable holds the placed entries of one class for one term.
type Timetable struct {
	ClassID string
	TermID  string
	cells   map[TimeSlot]Entry
}

// NewTimetable returns an empty timetable.
func NewTimetable(classID, termID string) *Timetable {
	return &Timetable{ClassID: classID, TermID: termID, cells: make(map[TimeSlot]Entry)}
}

// Occupied reports whether the class already has a lesson in slot.
func (t *Timetable) Occupied(slot TimeSlot) bool {
	_, ok := t.cells[slot]
	return ok
}

// At returns the entry placed in slot.
func (t *Timetable) At(slot TimeSlot) (Entry, bool) {
	entry, ok := t.cells[slot]
	return entry, ok
}

func (t *Timetable) put(entry Entry) error {
	slot := entry.Slot()
	if existing, ok := t.cells[slot]; ok {
		return fmt.Errorf("class %s already has %s on %s period %d", t.ClassID, existing.SubjectID, slot.Day, slot.Period)
	}
	t.cells[slot] = entry
	return nil
}

// Len returns the number of placed periods.
func (t *Timetable) Len() int {
	return len(t.cells)
}

// Entries returns every entry ordered by day then period.
func (t *Timetable) Entries() []Entry {
	entries := make([]Entry, 0, len(t.cells))
	for _, entry := range t.cells {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Day == entries[j].Day {
			return entries[i].Period < entries[j].Period
		}
		return entries[i].Day < entries[j].Day
	})
	return entries
}

// ByDay groups entries per day, each day ordered by period.
func (t *Timetable) ByDay() map[Day][]Entry {
	grouped := make(map[Day][]Entry)
	for _, entry := range t.Entries() {
		grouped[entry.Day] = append(grouped[entry.Day], entry)
	}
	return grouped
}

// CountSubject returns how many periods of subjectID were placed.
func (t *Timetable) CountSubject(subjectID string) int {
	count := 0
	for _, entry := range t.cells {
		if entry.SubjectID == subjectID {
			count++
		}
	}
	return count
}
