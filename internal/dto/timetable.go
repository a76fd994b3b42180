package dto

import (
	"time"

	"github.com/noah-isme/sma-timetable-api/internal/scheduler"
)

// GenerateTimetableRequest asks for the timetable of one class.
type GenerateTimetableRequest struct {
	SchoolID  string `json:"schoolId" validate:"required"`
	ClassID   string `json:"classId" validate:"required"`
	TermID    string `json:"termId" validate:"required"`
	MaxPerDay int    `json:"maxPerDay" validate:"omitempty,min=1,max=16"`
}

// GenerateSchoolRequest asks for the timetables of every class of a school.
type GenerateSchoolRequest struct {
	SchoolID  string `json:"schoolId" validate:"required"`
	TermID    string `json:"termId" validate:"required"`
	MaxPerDay int    `json:"maxPerDay" validate:"omitempty,min=1,max=16"`
}

// UnplacedLesson reports a period (or double) the generator could not place.
type UnplacedLesson struct {
	SubjectID string `json:"subjectId"`
	TeacherID string `json:"teacherId,omitempty"`
	Double    bool   `json:"double"`
	Reason    string `json:"reason"`
	Message   string `json:"message"`
}

// TimetableView is the API shape of a stored timetable.
type TimetableView struct {
	ID            string                      `json:"id"`
	SchoolID      string                      `json:"schoolId"`
	ClassID       string                      `json:"classId"`
	ClassName     string                      `json:"className"`
	TermID        string                      `json:"termId"`
	Schedule      scheduler.PersistedSchedule `json:"schedule"`
	PeriodCount   int                         `json:"periodCount"`
	UnplacedCount int                         `json:"unplacedCount"`
	GeneratedAt   time.Time                   `json:"generatedAt"`
}

// GenerateTimetableResponse summarises the generation of one class.
type GenerateTimetableResponse struct {
	Timetable         TimetableView    `json:"timetable"`
	RequiredPeriods   int              `json:"requiredPeriods"`
	PlacedPeriods     int              `json:"placedPeriods"`
	RelaxedPlacements int              `json:"relaxedPlacements"`
	LoadSpread        int              `json:"loadSpread"`
	Unplaced          []UnplacedLesson `json:"unplaced"`
	Warnings          []string         `json:"warnings,omitempty"`
}

// GenerateSchoolResponse summarises a whole-school batch.
type GenerateSchoolResponse struct {
	SchoolID      string                      `json:"schoolId"`
	TermID        string                      `json:"termId"`
	Classes       []GenerateTimetableResponse `json:"classes"`
	TotalUnplaced int                         `json:"totalUnplaced"`
	Warnings      []string                    `json:"warnings,omitempty"`
}

// GenerationJobResponse is returned when a batch is queued.
type GenerationJobResponse struct {
	JobID string `json:"jobId"`
	State string `json:"state"`
}

// TimetableListQuery carries pagination for timetable listings.
type TimetableListQuery struct {
	Page     int `form:"page" validate:"omitempty,min=1"`
	PageSize int `form:"page_size" validate:"omitempty,min=1,max=100"`
}

// TimetableFile is a rendered timetable export.
type TimetableFile struct {
	Filename    string
	ContentType string
	Body        []byte
}
