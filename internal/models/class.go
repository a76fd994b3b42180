package models

import "time"

// Class represents a class (rombel) of one school.
type Class struct {
	ID        string    `db:"id" json:"id"`
	SchoolID  string    `db:"school_id" json:"school_id"`
	Name      string    `db:"name" json:"name"`
	Grade     string    `db:"grade" json:"grade"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// ClassSubjectLoad is one subject a class takes in a term, with its teacher
// and weekly load. Subject and teacher columns come from outer joins and are
// nil when the referenced row no longer exists.
type ClassSubjectLoad struct {
	ClassID        string  `db:"class_id" json:"class_id"`
	ClassName      string  `db:"class_name" json:"class_name"`
	TermID         string  `db:"term_id" json:"term_id"`
	SubjectID      string  `db:"subject_id" json:"subject_id"`
	SubjectName    *string `db:"subject_name" json:"subject_name,omitempty"`
	TeacherID      *string `db:"teacher_id" json:"teacher_id,omitempty"`
	TeacherName    *string `db:"teacher_name" json:"teacher_name,omitempty"`
	PeriodsPerWeek int     `db:"periods_per_week" json:"periods_per_week"`
	RequiresDouble bool    `db:"requires_double" json:"requires_double"`
}
