package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// Timetable is the persisted weekly timetable of one class in one term.
// Schedule holds the day name to ordered periods document.
type Timetable struct {
	ID            string         `db:"id" json:"id"`
	SchoolID      string         `db:"school_id" json:"school_id"`
	ClassID       string         `db:"class_id" json:"class_id"`
	TermID        string         `db:"term_id" json:"term_id"`
	ClassName     string         `db:"class_name" json:"class_name"`
	Schedule      types.JSONText `db:"schedule" json:"schedule"`
	PeriodCount   int            `db:"period_count" json:"period_count"`
	UnplacedCount int            `db:"unplaced_count" json:"unplaced_count"`
	GeneratedAt   time.Time      `db:"generated_at" json:"generated_at"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at" json:"updated_at"`
}

// TimetableFilter narrows timetable listings.
type TimetableFilter struct {
	SchoolID string
	TermID   string
	Page     int
	PageSize int
}
