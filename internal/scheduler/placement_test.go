package scheduler

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustGrid(t *testing.T, cfg GridConfig) Grid {
	t.Helper()
	grid, err := NewGrid(cfg)
	require.NoError(t, err)
	return grid
}

func singleDayGrid(t *testing.T, periods int, breaks ...Break) Grid {
	return mustGrid(t, GridConfig{Days: []Day{Monday}, PeriodsPerDay: periods, DayStart: 8 * 60, LessonMinutes: 40, Breaks: breaks})
}

func TestScheduleClassSpreadsSubjectsEvenly(t *testing.T) {
	run := NewRun(mustGrid(t, DefaultGridConfig()), "term-1")

	var assignments []Assignment
	for i := 1; i <= 5; i++ {
		assignments = append(assignments, Assignment{
			ClassID:        "class-1",
			SubjectID:      fmt.Sprintf("subject-%d", i),
			TeacherID:      fmt.Sprintf("teacher-%d", i),
			PeriodsPerWeek: 2,
		})
	}

	result := run.ScheduleClass("class-1", assignments, 1)
	require.Empty(t, result.Unplaced)
	assert.Equal(t, 10, result.PlacedPeriods)
	assert.Zero(t, result.RelaxedTasks)

	for _, day := range run.Grid().Days() {
		assert.Equal(t, 2, run.ClassDayLoad("class-1", day), "load on %s", day)
	}
	assert.Equal(t, 0, run.LoadSpread("class-1"))

	days := map[string]map[Day]bool{}
	for _, entry := range result.Timetable.Entries() {
		if days[entry.SubjectID] == nil {
			days[entry.SubjectID] = map[Day]bool{}
		}
		days[entry.SubjectID][entry.Day] = true
	}
	for subject, seen := range days {
		assert.Len(t, seen, 2, "subject %s should land on two distinct days", subject)
		assert.Equal(t, 2, result.Timetable.CountSubject(subject))
	}
}

func TestPlaceTaskHonoursDailyCapUntilRelaxed(t *testing.T) {
	run := NewRun(singleDayGrid(t, 4), "term-1")
	task := PlacementTask{SubjectID: "math", ClassID: "class-1", TeacherID: "teacher-1", RequiredOccurrences: 2}

	ok, reason := run.PlaceTask(task, 1, false)
	require.True(t, ok)
	assert.Equal(t, ReasonNone, reason)

	task.OccurrenceIndex = 1
	ok, reason = run.PlaceTask(task, 1, false)
	assert.False(t, ok)
	assert.Equal(t, ReasonDailyCap, reason)

	ok, reason = run.PlaceTask(task, 1, true)
	assert.True(t, ok)
	assert.Equal(t, ReasonNone, reason)
	assert.Equal(t, 2, run.SubjectDayCount("class-1", "math", Monday))
}

func TestRelaxedRetryOnlyFailsWhenGridIsExhausted(t *testing.T) {
	run := NewRun(singleDayGrid(t, 2), "term-1")
	for i := 0; i < 2; i++ {
		ok, _ := run.PlaceTask(PlacementTask{SubjectID: fmt.Sprintf("s%d", i), ClassID: "class-1", TeacherID: fmt.Sprintf("t%d", i)}, 1, false)
		require.True(t, ok)
	}

	task := PlacementTask{SubjectID: "s9", ClassID: "class-1", TeacherID: "t9"}
	ok, reason := run.PlaceTask(task, 1, false)
	assert.False(t, ok)
	assert.Equal(t, ReasonNoFreeSlot, reason)

	ok, reason = run.PlaceTask(task, 1, true)
	assert.False(t, ok)
	assert.Equal(t, ReasonNoFreeSlot, reason)
}

func TestPlaceTaskPreventsTeacherClashAcrossClasses(t *testing.T) {
	run := NewRun(singleDayGrid(t, 2), "term-1")

	first := run.ScheduleClass("class-a", []Assignment{{ClassID: "class-a", SubjectID: "math", TeacherID: "teacher-1", PeriodsPerWeek: 2}}, 1)
	require.Empty(t, first.Unplaced)
	assert.Equal(t, 1, first.RelaxedTasks)

	second := run.ScheduleClass("class-b", []Assignment{{ClassID: "class-b", SubjectID: "math", TeacherID: "teacher-1", PeriodsPerWeek: 1}}, 1)
	require.Len(t, second.Unplaced, 1)
	assert.Equal(t, ReasonNoFreeSlot, second.Unplaced[0].Reason)
	assert.Zero(t, second.Timetable.Len())
}

func TestDoublePeriodIsContiguous(t *testing.T) {
	run := NewRun(mustGrid(t, DefaultGridConfig()), "term-1")
	result := run.ScheduleClass("class-1", []Assignment{
		{ClassID: "class-1", SubjectID: "chemistry", TeacherID: "teacher-1", PeriodsPerWeek: 5, RequiresDouble: true},
		{ClassID: "class-1", SubjectID: "math", TeacherID: "teacher-2", PeriodsPerWeek: 5},
	}, 1)
	require.Empty(t, result.Unplaced)
	assert.Equal(t, 10, result.PlacedPeriods)

	grid := run.Grid()
	doubles := 0
	for _, entry := range result.Timetable.Entries() {
		if entry.SubjectID != "chemistry" || !entry.Double {
			continue
		}
		next, ok := result.Timetable.At(TimeSlot{Day: entry.Day, Period: entry.Period + 1})
		prev, hasPrev := result.Timetable.At(TimeSlot{Day: entry.Day, Period: entry.Period - 1})
		if ok && next.SubjectID == "chemistry" && next.Double && !(hasPrev && prev.SubjectID == "chemistry" && prev.Double) {
			_, end, _ := grid.PeriodWindow(entry.Period)
			start, _, _ := grid.PeriodWindow(entry.Period + 1)
			assert.Equal(t, end, start, "double on %s must not straddle a break", entry.Day)
			doubles++
		}
	}
	assert.Equal(t, 2, doubles)
	assert.Equal(t, 5, result.Timetable.CountSubject("chemistry"))
}

func TestDoubleWithoutContiguousPairIsDistinctFailure(t *testing.T) {
	run := NewRun(singleDayGrid(t, 3), "term-1")
	require.NoError(t, run.Teachers().Reserve("teacher-1", "other-class", Monday, 2))

	ok, reason := run.PlaceTask(PlacementTask{SubjectID: "lab", ClassID: "class-1", TeacherID: "teacher-1", IsDouble: true}, 1, true)
	assert.False(t, ok)
	assert.Equal(t, ReasonNoContiguousPair, reason)
	assert.Zero(t, run.Timetable("class-1").Len(), "a double must never degrade into singles")
}

func TestDoubleCannotStraddleBreak(t *testing.T) {
	run := NewRun(singleDayGrid(t, 2, Break{Name: "recess", AfterPeriod: 1, Minutes: 15}), "term-1")

	ok, reason := run.PlaceTask(PlacementTask{SubjectID: "lab", ClassID: "class-1", TeacherID: "teacher-1", IsDouble: true}, 1, true)
	assert.False(t, ok)
	assert.Equal(t, ReasonNoContiguousPair, reason)
}

func TestScheduleClassReportsMissingAssignmentData(t *testing.T) {
	run := NewRun(mustGrid(t, DefaultGridConfig()), "term-1")
	result := run.ScheduleClass("class-1", []Assignment{
		{ClassID: "class-1", SubjectID: "math", PeriodsPerWeek: 2},
		{ClassID: "class-2", SubjectID: "art", TeacherID: "teacher-3", PeriodsPerWeek: 1},
		{ClassID: "class-1", SubjectID: "music", TeacherID: "teacher-4", PeriodsPerWeek: 0},
		{ClassID: "class-1", SubjectID: "english", TeacherID: "teacher-2", PeriodsPerWeek: 1},
	}, 1)

	require.Len(t, result.Unplaced, 4)
	for _, gap := range result.Unplaced {
		assert.Equal(t, ReasonMissingData, gap.Reason)
		assert.NotEmpty(t, gap.Detail)
	}
	assert.Equal(t, 1, result.PlacedPeriods)

	ok, reason := run.PlaceTask(PlacementTask{ClassID: "class-1", SubjectID: "math"}, 1, true)
	assert.False(t, ok)
	assert.Equal(t, ReasonMissingData, reason)
}

func TestScheduleClassKeepsIdsOfDanglingReferences(t *testing.T) {
	run := NewRun(mustGrid(t, DefaultGridConfig()), "term-1")
	result := run.ScheduleClass("class-1", []Assignment{
		{ClassID: "class-1", SubjectID: "chem", TeacherID: "teacher-1", PeriodsPerWeek: 2, SubjectMissing: true},
		{ClassID: "class-1", SubjectID: "bio", TeacherID: "teacher-9", PeriodsPerWeek: 1, TeacherMissing: true},
	}, 1)

	require.Len(t, result.Unplaced, 3)
	assert.Zero(t, result.PlacedPeriods)
	for _, gap := range result.Unplaced {
		assert.Equal(t, ReasonMissingData, gap.Reason)
		assert.NotEmpty(t, gap.Task.SubjectID)
		assert.NotEmpty(t, gap.Task.TeacherID)
		assert.Contains(t, gap.Detail, "no longer exists")
	}
	assert.Equal(t, "chem", result.Unplaced[0].Task.SubjectID)
	assert.Equal(t, "teacher-9", result.Unplaced[2].Task.TeacherID)
}

func TestTeacherDailyLimitSpreadsAcrossDays(t *testing.T) {
	grid := mustGrid(t, GridConfig{Days: []Day{Monday, Tuesday}, PeriodsPerDay: 4, DayStart: 8 * 60, LessonMinutes: 40})
	run := NewRun(grid, "term-1")
	run.Teachers().SetLimits("teacher-1", TeacherLimits{MaxPerDay: 1})

	for i := 0; i < 2; i++ {
		ok, _ := run.PlaceTask(PlacementTask{SubjectID: "math", ClassID: "class-1", TeacherID: "teacher-1"}, 4, true)
		require.True(t, ok)
	}
	assert.Equal(t, 1, run.Teachers().DailyLoad("teacher-1", Monday))
	assert.Equal(t, 1, run.Teachers().DailyLoad("teacher-1", Tuesday))

	ok, reason := run.PlaceTask(PlacementTask{SubjectID: "math", ClassID: "class-2", TeacherID: "teacher-1"}, 4, true)
	assert.False(t, ok)
	assert.Equal(t, ReasonTeacherLoad, reason)
	assert.False(t, run.Teachers().IsFree("teacher-1", Monday, 3))
	assert.True(t, run.Teachers().SlotOpen("teacher-1", Monday, 3))
}

func TestTeacherWeeklyLimitStopsPlacement(t *testing.T) {
	run := NewRun(mustGrid(t, DefaultGridConfig()), "term-1")
	run.Teachers().SetLimits("teacher-1", TeacherLimits{MaxPerWeek: 3})

	result := run.ScheduleClass("class-1", []Assignment{
		{ClassID: "class-1", SubjectID: "math", TeacherID: "teacher-1", PeriodsPerWeek: 5},
	}, 1)
	assert.Equal(t, 3, result.PlacedPeriods)
	require.Len(t, result.Unplaced, 2)
	for _, gap := range result.Unplaced {
		assert.Equal(t, ReasonTeacherLoad, gap.Reason)
	}
	assert.Equal(t, 3, run.Teachers().WeeklyLoad("teacher-1"))
	assert.ErrorIs(t, run.Teachers().Reserve("teacher-1", "class-2", Friday, 8), ErrTeacherOverloaded)
}

func TestTeacherDailyLimitRejectsDoubleThatWouldOverflow(t *testing.T) {
	run := NewRun(singleDayGrid(t, 4), "term-1")
	run.Teachers().SetLimits("teacher-1", TeacherLimits{MaxPerDay: 1})

	ok, reason := run.PlaceTask(PlacementTask{SubjectID: "lab", ClassID: "class-1", TeacherID: "teacher-1", IsDouble: true}, 1, true)
	assert.False(t, ok)
	assert.Equal(t, ReasonTeacherLoad, reason)
	assert.Zero(t, run.Teachers().WeeklyLoad("teacher-1"))
}

func TestBlockedTeacherWindowIsSkipped(t *testing.T) {
	run := NewRun(singleDayGrid(t, 3), "term-1")
	run.Teachers().Block("teacher-1", Monday, 1)

	ok, _ := run.PlaceTask(PlacementTask{SubjectID: "math", ClassID: "class-1", TeacherID: "teacher-1"}, 1, false)
	require.True(t, ok)
	_, taken := run.Timetable("class-1").At(TimeSlot{Day: Monday, Period: 1})
	assert.False(t, taken)
	_, taken = run.Timetable("class-1").At(TimeSlot{Day: Monday, Period: 2})
	assert.True(t, taken)
}

func TestRandomTieBreakKeepsInvariants(t *testing.T) {
	subjects := []Assignment{
		{SubjectID: "math", TeacherID: "t-math", PeriodsPerWeek: 5},
		{SubjectID: "english", TeacherID: "t-english", PeriodsPerWeek: 5},
		{SubjectID: "science", TeacherID: "t-science", PeriodsPerWeek: 4, RequiresDouble: true},
		{SubjectID: "history", TeacherID: "t-history", PeriodsPerWeek: 3},
		{SubjectID: "art", TeacherID: "t-art", PeriodsPerWeek: 2, RequiresDouble: true},
	}
	classes := []string{"class-a", "class-b", "class-c"}

	for seed := int64(1); seed <= 20; seed++ {
		run := NewRun(mustGrid(t, DefaultGridConfig()), "term-1", WithTieBreaker(NewRandomTieBreaker(seed)))
		var records []ClassSchedule
		for _, classID := range classes {
			var assignments []Assignment
			for _, subject := range subjects {
				subject.ClassID = classID
				assignments = append(assignments, subject)
			}
			result := run.ScheduleClass(classID, assignments, 1)

			unplaced := map[string]bool{}
			for _, gap := range result.Unplaced {
				unplaced[gap.Task.SubjectID] = true
			}
			for _, subject := range subjects {
				if !unplaced[subject.SubjectID] {
					assert.Equal(t, subject.PeriodsPerWeek, result.Timetable.CountSubject(subject.SubjectID), "seed %d %s %s", seed, classID, subject.SubjectID)
				}
			}

			persisted, err := ToPersistable(run.Grid(), result.Timetable.ByDay())
			require.NoError(t, err)
			records = append(records, ClassSchedule{ClassID: classID, ClassName: classID, Schedule: persisted})
		}

		report := Verify(records)
		assert.False(t, report.HasConflicts, "seed %d produced teacher clashes: %+v", seed, report.Conflicts)
	}
}

func TestDecomposeSplitsDoubles(t *testing.T) {
	tasks := Decompose(Assignment{ClassID: "c", SubjectID: "s", TeacherID: "t", PeriodsPerWeek: 5, RequiresDouble: true})
	require.Len(t, tasks, 3)
	doubles := 0
	for _, task := range tasks {
		if task.IsDouble {
			doubles++
		}
		assert.Equal(t, 5, task.RequiredOccurrences)
	}
	assert.Equal(t, 2, doubles)

	assert.Len(t, Decompose(Assignment{ClassID: "c", SubjectID: "s", TeacherID: "t", PeriodsPerWeek: 3}), 3)
	assert.Empty(t, Decompose(Assignment{ClassID: "c", SubjectID: "s", TeacherID: "t"}))
}

func TestTeacherIndexReplayReportsClashes(t *testing.T) {
	index := NewTeacherIndex()
	clashes := index.Replay([]Entry{
		{Day: Monday, Period: 1, TeacherID: "t1", ClassID: "a", SubjectID: "math"},
		{Day: Monday, Period: 1, TeacherID: "t1", ClassID: "b", SubjectID: "math"},
		{Day: Monday, Period: 2, TeacherID: "t1", ClassID: "b", SubjectID: "math"},
	})
	require.Len(t, clashes, 1)
	assert.Equal(t, "b", clashes[0].ClassID)
	assert.False(t, index.IsFree("t1", Monday, 1))
	assert.Equal(t, 2, index.WeeklyLoad("t1"))

	assert.ErrorIs(t, index.Reserve("t1", "c", Monday, 2), ErrTeacherBooked)
	owner, ok := index.Owner("t1", Monday, 2)
	require.True(t, ok)
	assert.Equal(t, "b", owner)
	index.Release("t1", Monday, 2)
	assert.True(t, index.IsFree("t1", Monday, 2))
	assert.Equal(t, 1, index.DailyLoad("t1", Monday))
}
