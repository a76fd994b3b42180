package scheduler

import "sort"

// DefaultMaxPerDay is the per-day subject cap used when none is configured.
const DefaultMaxPerDay = 1

type subjectDayKey struct {
	ClassID   string
	SubjectID string
	Day       Day
}

type classDayKey struct {
	ClassID string
	Day     Day
}

// Run is the scheduling state of one generation run. Every class scheduled
// through the same Run shares its teacher index.
type Run struct {
	grid       Grid
	termID     string
	teachers   *TeacherIndex
	tieBreak   TieBreaker
	subjectDay map[subjectDayKey]int
	classDay   map[classDayKey]int
	timetables map[string]*Timetable
}

// RunOption customises a Run.
type RunOption func(*Run)

// WithTeacherIndex threads an existing occupancy index into the run.
func WithTeacherIndex(index *TeacherIndex) RunOption {
	return func(r *Run) {
		if index != nil {
			r.teachers = index
		}
	}
}

// WithTieBreaker sets the strategy for equally ranked candidates.
func WithTieBreaker(tb TieBreaker) RunOption {
	return func(r *Run) {
		if tb != nil {
			r.tieBreak = tb
		}
	}
}

// NewRun starts an empty run for termID.
func NewRun(grid Grid, termID string, opts ...RunOption) *Run {
	r := &Run{
		grid:       grid,
		termID:     termID,
		teachers:   NewTeacherIndex(),
		tieBreak:   OrderedTieBreaker{},
		subjectDay: make(map[subjectDayKey]int),
		classDay:   make(map[classDayKey]int),
		timetables: make(map[string]*Timetable),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Grid returns the run's grid.
func (r *Run) Grid() Grid {
	return r.grid
}

// Teachers returns the shared teacher occupancy index.
func (r *Run) Teachers() *TeacherIndex {
	return r.teachers
}

// Timetable returns the timetable of classID, creating it on first use.
func (r *Run) Timetable(classID string) *Timetable {
	tt, ok := r.timetables[classID]
	if !ok {
		tt = NewTimetable(classID, r.termID)
		r.timetables[classID] = tt
	}
	return tt
}

// SubjectDayCount returns periods of subjectID already placed on day for classID.
func (r *Run) SubjectDayCount(classID, subjectID string, day Day) int {
	return r.subjectDay[subjectDayKey{ClassID: classID, SubjectID: subjectID, Day: day}]
}

// ClassDayLoad returns the total periods placed on day for classID.
func (r *Run) ClassDayLoad(classID string, day Day) int {
	return r.classDay[classDayKey{ClassID: classID, Day: day}]
}

// LoadSpread returns max minus min ClassDayLoad across the working days.
func (r *Run) LoadSpread(classID string) int {
	days := r.grid.Days()
	if len(days) == 0 {
		return 0
	}
	lo, hi := r.ClassDayLoad(classID, days[0]), r.ClassDayLoad(classID, days[0])
	for _, day := range days[1:] {
		load := r.ClassDayLoad(classID, day)
		if load < lo {
			lo = load
		}
		if load > hi {
			hi = load
		}
	}
	return hi - lo
}

// UnplacedTask is a task left out of the timetable together with the reason.
type UnplacedTask struct {
	Task   PlacementTask
	Reason FailureReason
	Detail string
}

// ClassResult summarises the scheduling of one class.
type ClassResult struct {
	ClassID       string
	Timetable     *Timetable
	PlacedPeriods int
	RelaxedTasks  int
	Unplaced      []UnplacedTask
}

// ScheduleClass places every assignment of classID: a balanced pass under the
// per-day cap, then a relaxed pass for whatever did not fit.
func (r *Run) ScheduleClass(classID string, assignments []Assignment, maxPerDay int) ClassResult {
	result := ClassResult{ClassID: classID, Timetable: r.Timetable(classID)}

	var tasks []PlacementTask
	for _, assignment := range assignments {
		err := assignment.Validate()
		if err == nil && assignment.ClassID != classID {
			err = errClassMismatch(assignment.ClassID, classID)
		}
		if err != nil {
			missing := Decompose(assignment)
			if len(missing) == 0 {
				missing = []PlacementTask{{SubjectID: assignment.SubjectID, ClassID: assignment.ClassID, TeacherID: assignment.TeacherID}}
			}
			for _, task := range missing {
				result.Unplaced = append(result.Unplaced, UnplacedTask{Task: task, Reason: ReasonMissingData, Detail: err.Error()})
			}
			continue
		}
		tasks = append(tasks, Decompose(assignment)...)
	}
	orderTasks(tasks)

	var deferred []PlacementTask
	for _, task := range tasks {
		if ok, _ := r.PlaceTask(task, maxPerDay, false); ok {
			result.PlacedPeriods += task.Periods()
			continue
		}
		deferred = append(deferred, task)
	}
	for _, task := range deferred {
		ok, reason := r.PlaceTask(task, maxPerDay, true)
		if ok {
			result.PlacedPeriods += task.Periods()
			result.RelaxedTasks++
			continue
		}
		result.Unplaced = append(result.Unplaced, UnplacedTask{Task: task, Reason: reason, Detail: reason.Describe(task)})
	}
	return result
}

// orderTasks puts the hardest tasks first: doubles, then subjects with the
// most weekly occurrences.
func orderTasks(tasks []PlacementTask) {
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]
		if a.IsDouble != b.IsDouble {
			return a.IsDouble
		}
		if a.RequiredOccurrences != b.RequiredOccurrences {
			return a.RequiredOccurrences > b.RequiredOccurrences
		}
		if a.SubjectID != b.SubjectID {
			return a.SubjectID < b.SubjectID
		}
		return a.OccurrenceIndex < b.OccurrenceIndex
	})
}
