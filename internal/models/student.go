package models

import "time"

// StudentStatus is the lifecycle state of a student record.
type StudentStatus string

const (
	StudentStatusActive    StudentStatus = "active"
	StudentStatusGraduated StudentStatus = "graduated"
)

// Student represents an enrolled or graduated learner. NUE is the unique
// enrollment number; GraduationAverage is set only for graduated students.
type Student struct {
	ID                string        `db:"id" json:"id"`
	Name              string        `db:"name" json:"name"`
	StartYear         int           `db:"start_year" json:"startYear"`
	NUE               string        `db:"nue" json:"nue"`
	Status            StudentStatus `db:"status" json:"status"`
	GraduationAverage *float64      `db:"graduation_average" json:"graduationAverage"`
	CreatedAt         time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time     `db:"updated_at" json:"updatedAt"`
}

// StudentStats summarises the roster for the dashboard.
type StudentStats struct {
	Total     int `json:"total"`
	Active    int `json:"active"`
	Graduated int `json:"graduated"`
}
