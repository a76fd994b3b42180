package scheduler

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidGrid is returned when a grid cannot host any placement.
var ErrInvalidGrid = errors.New("invalid grid configuration")

// Day is a weekday where Monday is 1 and Sunday is 7.
type Day int

const (
	Monday Day = iota + 1
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

var dayNames = map[Day]string{
	Monday:    "MONDAY",
	Tuesday:   "TUESDAY",
	Wednesday: "WEDNESDAY",
	Thursday:  "THURSDAY",
	Friday:    "FRIDAY",
	Saturday:  "SATURDAY",
	Sunday:    "SUNDAY",
}

var dayIndex = map[string]Day{
	"MONDAY":    Monday,
	"TUESDAY":   Tuesday,
	"WEDNESDAY": Wednesday,
	"THURSDAY":  Thursday,
	"FRIDAY":    Friday,
	"SATURDAY":  Saturday,
	"SUNDAY":    Sunday,
}

// String returns the upper-case day name.
func (d Day) String() string {
	if name, ok := dayNames[d]; ok {
		return name
	}
	return fmt.Sprintf("DAY(%d)", int(d))
}

// Valid reports whether d is between Monday and Sunday.
func (d Day) Valid() bool {
	return d >= Monday && d <= Sunday
}

// ParseDay accepts day names in any case as well as their three letter prefix.
func ParseDay(raw string) (Day, bool) {
	name := strings.ToUpper(strings.TrimSpace(raw))
	if day, ok := dayIndex[name]; ok {
		return day, true
	}
	if len(name) == 3 {
		for full, day := range dayIndex {
			if strings.HasPrefix(full, name) {
				return day, true
			}
		}
	}
	return 0, false
}

// TimeSlot identifies one cell of the weekly grid.
type TimeSlot struct {
	Day    Day
	Period int
}

// Break is a pause inserted after a period.
type Break struct {
	Name        string
	AfterPeriod int
	Minutes     int
}

// GridConfig describes the shape of a school week.
type GridConfig struct {
	Days          []Day
	PeriodsPerDay int
	// DayStart is minutes after midnight at which period 1 starts.
	DayStart      int
	LessonMinutes int
	Breaks        []Break
}

// DefaultGridConfig returns a Monday-Friday week of eight 40 minute periods starting at 08:00.
func DefaultGridConfig() GridConfig {
	return GridConfig{
		Days:          []Day{Monday, Tuesday, Wednesday, Thursday, Friday},
		PeriodsPerDay: 8,
		DayStart:      8 * 60,
		LessonMinutes: 40,
		Breaks: []Break{
			{Name: "Morning Break", AfterPeriod: 3, Minutes: 20},
			{Name: "Lunch Break", AfterPeriod: 6, Minutes: 40},
		},
	}
}

// Grid is the immutable weekly layout shared by every class of a run.
type Grid struct {
	days          []Day
	periodsPerDay int
	starts        []int
	ends          []int
}

// NewGrid validates cfg and precomputes period windows.
func NewGrid(cfg GridConfig) (Grid, error) {
	if len(cfg.Days) == 0 {
		return Grid{}, fmt.Errorf("%w: at least one working day is required", ErrInvalidGrid)
	}
	if cfg.PeriodsPerDay <= 0 {
		return Grid{}, fmt.Errorf("%w: periods per day must be positive", ErrInvalidGrid)
	}
	if cfg.LessonMinutes <= 0 {
		return Grid{}, fmt.Errorf("%w: lesson length must be positive", ErrInvalidGrid)
	}
	if cfg.DayStart < 0 {
		return Grid{}, fmt.Errorf("%w: day start must not be negative", ErrInvalidGrid)
	}

	seen := make(map[Day]bool, len(cfg.Days))
	days := make([]Day, 0, len(cfg.Days))
	for _, day := range cfg.Days {
		if !day.Valid() {
			return Grid{}, fmt.Errorf("%w: unknown day %d", ErrInvalidGrid, int(day))
		}
		if seen[day] {
			return Grid{}, fmt.Errorf("%w: duplicate day %s", ErrInvalidGrid, day)
		}
		seen[day] = true
		days = append(days, day)
	}

	pause := make(map[int]int, len(cfg.Breaks))
	for _, br := range cfg.Breaks {
		if br.AfterPeriod < 1 || br.AfterPeriod >= cfg.PeriodsPerDay {
			return Grid{}, fmt.Errorf("%w: break %q must follow a period between 1 and %d", ErrInvalidGrid, br.Name, cfg.PeriodsPerDay-1)
		}
		if br.Minutes <= 0 {
			return Grid{}, fmt.Errorf("%w: break %q must last at least one minute", ErrInvalidGrid, br.Name)
		}
		pause[br.AfterPeriod] += br.Minutes
	}

	starts := make([]int, cfg.PeriodsPerDay)
	ends := make([]int, cfg.PeriodsPerDay)
	clock := cfg.DayStart
	for i := 0; i < cfg.PeriodsPerDay; i++ {
		starts[i] = clock
		clock += cfg.LessonMinutes
		ends[i] = clock
		clock += pause[i+1]
	}
	if ends[len(ends)-1] >= 24*60 {
		return Grid{}, fmt.Errorf("%w: school day must end before midnight", ErrInvalidGrid)
	}

	return Grid{days: days, periodsPerDay: cfg.PeriodsPerDay, starts: starts, ends: ends}, nil
}

// Days returns the working days in configured order.
func (g Grid) Days() []Day {
	out := make([]Day, len(g.days))
	copy(out, g.days)
	return out
}

// PeriodsPerDay returns the number of periods in each day.
func (g Grid) PeriodsPerDay() int {
	return g.periodsPerDay
}

// HasDay reports whether day is a working day of the grid.
func (g Grid) HasDay(day Day) bool {
	for _, d := range g.days {
		if d == day {
			return true
		}
	}
	return false
}

// Contains reports whether slot is addressable in the grid.
func (g Grid) Contains(slot TimeSlot) bool {
	return slot.Period >= 1 && slot.Period <= g.periodsPerDay && g.HasDay(slot.Day)
}

// AllSlots enumerates every slot, day by day in configured order.
func (g Grid) AllSlots() []TimeSlot {
	slots := make([]TimeSlot, 0, len(g.days)*g.periodsPerDay)
	for _, day := range g.days {
		for period := 1; period <= g.periodsPerDay; period++ {
			slots = append(slots, TimeSlot{Day: day, Period: period})
		}
	}
	return slots
}

// Capacity is the number of slots available to one class per week.
func (g Grid) Capacity() int {
	return len(g.days) * g.periodsPerDay
}

// PeriodWindow returns start and end of a period in minutes after midnight.
func (g Grid) PeriodWindow(period int) (int, int, bool) {
	if period < 1 || period > g.periodsPerDay {
		return 0, 0, false
	}
	return g.starts[period-1], g.ends[period-1], true
}

// Contiguous reports whether period+1 starts exactly when period ends.
func (g Grid) Contiguous(period int) bool {
	if period < 1 || period >= g.periodsPerDay {
		return false
	}
	return g.ends[period-1] == g.starts[period]
}

// FormatClock renders minutes after midnight as HH:MM.
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// ParseClock parses an HH:MM (or HH:MM:SS) value into minutes after midnight.
func ParseClock(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if len(raw) < 5 || raw[2] != ':' {
		return 0, fmt.Errorf("parse clock %q: expected HH:MM", raw)
	}
	h, err := strconv.Atoi(raw[:2])
	if err != nil {
		return 0, fmt.Errorf("parse clock %q: %w", raw, err)
	}
	m, err := strconv.Atoi(raw[3:5])
	if err != nil {
		return 0, fmt.Errorf("parse clock %q: %w", raw, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("parse clock %q: out of range", raw)
	}
	return h*60 + m, nil
}
