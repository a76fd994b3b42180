package scheduler

import (
	"errors"
	"fmt"
)

var (
	// ErrTeacherBooked is returned when a teacher slot is reserved twice.
	ErrTeacherBooked = errors.New("teacher already booked")
	// ErrTeacherOverloaded is returned when a reservation would exceed a
	// teacher's daily or weekly limit.
	ErrTeacherOverloaded = errors.New("teacher load limit reached")
)

type teacherSlotKey struct {
	TeacherID string
	Day       Day
	Period    int
}

type teacherDayKey struct {
	TeacherID string
	Day       Day
}

// TeacherLimits caps how many periods a teacher may hold. Zero means no limit.
type TeacherLimits struct {
	MaxPerDay  int
	MaxPerWeek int
}

// TeacherIndex tracks teacher occupancy across every class of a generation run.
type TeacherIndex struct {
	assigned map[teacherSlotKey]string
	blocked  map[teacherSlotKey]bool
	daily    map[teacherDayKey]int
	weekly   map[string]int
	limits   map[string]TeacherLimits
}

// NewTeacherIndex returns an empty index.
func NewTeacherIndex() *TeacherIndex {
	return &TeacherIndex{
		assigned: make(map[teacherSlotKey]string),
		blocked:  make(map[teacherSlotKey]bool),
		daily:    make(map[teacherDayKey]int),
		weekly:   make(map[string]int),
		limits:   make(map[string]TeacherLimits),
	}
}

// SetLimits sets the daily and weekly period caps of teacherID.
func (t *TeacherIndex) SetLimits(teacherID string, limits TeacherLimits) {
	if limits.MaxPerDay <= 0 && limits.MaxPerWeek <= 0 {
		delete(t.limits, teacherID)
		return
	}
	t.limits[teacherID] = limits
}

// IsFree reports whether the teacher can take the slot: it is neither blocked
// nor taken, and one more period keeps the teacher within their limits.
func (t *TeacherIndex) IsFree(teacherID string, day Day, period int) bool {
	return t.SlotOpen(teacherID, day, period) && t.HasCapacity(teacherID, day, 1)
}

// SlotOpen reports whether the slot is neither blocked nor taken, ignoring
// load limits.
func (t *TeacherIndex) SlotOpen(teacherID string, day Day, period int) bool {
	key := teacherSlotKey{TeacherID: teacherID, Day: day, Period: period}
	if t.blocked[key] {
		return false
	}
	_, taken := t.assigned[key]
	return !taken
}

// HasCapacity reports whether periods more periods on day fit the teacher's limits.
func (t *TeacherIndex) HasCapacity(teacherID string, day Day, periods int) bool {
	limits, ok := t.limits[teacherID]
	if !ok {
		return true
	}
	if limits.MaxPerDay > 0 && t.DailyLoad(teacherID, day)+periods > limits.MaxPerDay {
		return false
	}
	if limits.MaxPerWeek > 0 && t.WeeklyLoad(teacherID)+periods > limits.MaxPerWeek {
		return false
	}
	return true
}

// Reserve marks the slot as taught by teacherID for classID.
func (t *TeacherIndex) Reserve(teacherID, classID string, day Day, period int) error {
	key := teacherSlotKey{TeacherID: teacherID, Day: day, Period: period}
	if owner, taken := t.assigned[key]; taken {
		return fmt.Errorf("%w: %s on %s period %d (class %s)", ErrTeacherBooked, teacherID, day, period, owner)
	}
	if t.blocked[key] {
		return fmt.Errorf("%w: %s is unavailable on %s period %d", ErrTeacherBooked, teacherID, day, period)
	}
	if !t.HasCapacity(teacherID, day, 1) {
		return fmt.Errorf("%w: %s on %s", ErrTeacherOverloaded, teacherID, day)
	}
	t.assigned[key] = classID
	t.count(teacherID, day, 1)
	return nil
}

// Release frees a slot previously reserved.
func (t *TeacherIndex) Release(teacherID string, day Day, period int) {
	key := teacherSlotKey{TeacherID: teacherID, Day: day, Period: period}
	if _, taken := t.assigned[key]; !taken {
		return
	}
	delete(t.assigned, key)
	t.count(teacherID, day, -1)
}

// Block marks a window the teacher can never be scheduled in.
func (t *TeacherIndex) Block(teacherID string, day Day, period int) {
	t.blocked[teacherSlotKey{TeacherID: teacherID, Day: day, Period: period}] = true
}

// Owner returns the class occupying the teacher slot, if any.
func (t *TeacherIndex) Owner(teacherID string, day Day, period int) (string, bool) {
	classID, ok := t.assigned[teacherSlotKey{TeacherID: teacherID, Day: day, Period: period}]
	return classID, ok
}

// DailyLoad returns how many periods the teacher holds on day in this run.
func (t *TeacherIndex) DailyLoad(teacherID string, day Day) int {
	return t.daily[teacherDayKey{TeacherID: teacherID, Day: day}]
}

// WeeklyLoad returns how many periods the teacher holds in this run.
func (t *TeacherIndex) WeeklyLoad(teacherID string) int {
	return t.weekly[teacherID]
}

// Replay reserves every entry of already generated timetables, ignoring blocked
// windows and limits. Entries whose slot is already held are returned so
// callers can surface stale data.
func (t *TeacherIndex) Replay(entries []Entry) []Entry {
	var clashes []Entry
	for _, entry := range entries {
		key := teacherSlotKey{TeacherID: entry.TeacherID, Day: entry.Day, Period: entry.Period}
		if _, taken := t.assigned[key]; taken {
			clashes = append(clashes, entry)
			continue
		}
		t.assigned[key] = entry.ClassID
		t.count(entry.TeacherID, entry.Day, 1)
	}
	return clashes
}

func (t *TeacherIndex) count(teacherID string, day Day, delta int) {
	dayKey := teacherDayKey{TeacherID: teacherID, Day: day}
	t.daily[dayKey] += delta
	if t.daily[dayKey] <= 0 {
		delete(t.daily, dayKey)
	}
	t.weekly[teacherID] += delta
	if t.weekly[teacherID] <= 0 {
		delete(t.weekly, teacherID)
	}
}
