package models

import (
	"math"
	"time"
)

// SectionKey identifies a section: one faculty teaching one course.
type SectionKey struct {
	CourseID  string `json:"course_id" validate:"required"`
	FacultyID string `json:"faculty_id" validate:"required"`
}

// String renders the key for logs and lock names.
func (k SectionKey) String() string {
	return k.CourseID + "/" + k.FacultyID
}

// Less orders keys by course then faculty, the global lock order.
func (k SectionKey) Less(other SectionKey) bool {
	if k.CourseID != other.CourseID {
		return k.CourseID < other.CourseID
	}
	return k.FacultyID < other.FacultyID
}

// Allocation authorises a faculty to teach a course with its own seat capacity.
type Allocation struct {
	CourseID  string    `db:"course_id" json:"course_id"`
	FacultyID string    `db:"faculty_id" json:"faculty_id"`
	Capacity  int       `db:"capacity" json:"capacity"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Key returns the section key of the allocation.
func (a Allocation) Key() SectionKey {
	return SectionKey{CourseID: a.CourseID, FacultyID: a.FacultyID}
}

// Offering is the student-facing view of a section with live seat counts.
type Offering struct {
	Allocation
	CourseName    string `db:"course_name" json:"course_name"`
	Credits       int    `db:"credits" json:"credits"`
	Semester      int    `db:"semester" json:"semester"`
	FacultyName   string `db:"faculty_name" json:"faculty_name"`
	EnrolledCount int    `db:"enrolled_count" json:"enrolled_count"`
	SeatsLeft     int    `db:"-" json:"seats_left"`
}

// FillSeats derives SeatsLeft from capacity and the enrolled count.
func (o *Offering) FillSeats() {
	o.SeatsLeft = o.Capacity - o.EnrolledCount
	if o.SeatsLeft < 0 {
		o.SeatsLeft = 0
	}
}

// Utilisation summarises seat usage across all allocations.
type Utilisation struct {
	Sections      int     `db:"sections" json:"sections"`
	TotalCapacity int     `db:"total_capacity" json:"total_capacity"`
	ActiveSeats   int     `db:"active_seats" json:"active_seats"`
	Percentage    float64 `db:"-" json:"percentage"`
}

// OfferingFilter narrows offering listings. Empty fields are ignored.
type OfferingFilter struct {
	CourseID  string
	FacultyID string
	DegreeID  string
	Semester  int
}

// FacultyLoad lists the sections a faculty member teaches.
type FacultyLoad struct {
	Faculty   Faculty    `json:"faculty"`
	Offerings []Offering `json:"offerings"`
}

// Fill derives Percentage, rounded to two decimals.
func (u *Utilisation) Fill() {
	if u.TotalCapacity <= 0 {
		u.Percentage = 0
		return
	}
	u.Percentage = math.Round(float64(u.ActiveSeats)/float64(u.TotalCapacity)*10000) / 100
}
