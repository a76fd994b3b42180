package service

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/noah-isme/sma-timetable-api/internal/scheduler"
	"github.com/noah-isme/sma-timetable-api/pkg/config"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
)

// GridFromConfig builds the weekly grid described by the scheduler settings.
// Any problem is reported as INVALID_GRID.
func GridFromConfig(cfg config.SchedulerConfig) (scheduler.Grid, error) {
	gridCfg := scheduler.DefaultGridConfig()

	if len(cfg.Days) > 0 {
		days := make([]scheduler.Day, 0, len(cfg.Days))
		for _, raw := range cfg.Days {
			day, ok := scheduler.ParseDay(raw)
			if !ok {
				return scheduler.Grid{}, appErrors.Clone(appErrors.ErrInvalidGrid, fmt.Sprintf("unknown day %q", raw))
			}
			days = append(days, day)
		}
		gridCfg.Days = days
	}
	if cfg.PeriodsPerDay != 0 {
		gridCfg.PeriodsPerDay = cfg.PeriodsPerDay
	}
	if cfg.LessonMinutes != 0 {
		gridCfg.LessonMinutes = cfg.LessonMinutes
	}
	if strings.TrimSpace(cfg.DayStart) != "" {
		start, err := scheduler.ParseClock(cfg.DayStart)
		if err != nil {
			return scheduler.Grid{}, appErrors.Wrap(err, appErrors.ErrInvalidGrid.Code, appErrors.ErrInvalidGrid.Status, "invalid day start")
		}
		gridCfg.DayStart = start
	}
	if cfg.Breaks != nil {
		breaks := make([]scheduler.Break, 0, len(cfg.Breaks))
		for i, b := range cfg.Breaks {
			breaks = append(breaks, scheduler.Break{
				Name:        "Break " + strconv.Itoa(i+1),
				AfterPeriod: b.AfterPeriod,
				Minutes:     b.Minutes,
			})
		}
		gridCfg.Breaks = breaks
	}

	grid, err := scheduler.NewGrid(gridCfg)
	if err != nil {
		return scheduler.Grid{}, appErrors.Wrap(err, appErrors.ErrInvalidGrid.Code, appErrors.ErrInvalidGrid.Status, err.Error())
	}
	return grid, nil
}
