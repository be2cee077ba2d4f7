package models

import (
	"sort"
	"strings"
	"time"
)

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses.
const (
	EnrollmentStatusActive    EnrollmentStatus = "active"
	EnrollmentStatusCompleted EnrollmentStatus = "completed"
	EnrollmentStatusBacklog   EnrollmentStatus = "backlog"
)

// Terminal reports whether the status can no longer change.
func (s EnrollmentStatus) Terminal() bool {
	return s == EnrollmentStatusCompleted || s == EnrollmentStatusBacklog
}

// Enrollment is a student's seat in one section. Grade is set once graded.
type Enrollment struct {
	ID         string           `db:"id" json:"id"`
	StudentID  string           `db:"student_id" json:"student_id"`
	CourseID   string           `db:"course_id" json:"course_id"`
	FacultyID  string           `db:"faculty_id" json:"faculty_id"`
	Semester   int              `db:"semester" json:"semester"`
	Status     EnrollmentStatus `db:"status" json:"status"`
	Grade      *float64         `db:"grade" json:"grade,omitempty"`
	EnrolledAt time.Time        `db:"enrolled_at" json:"enrolled_at"`
	GradedAt   *time.Time       `db:"graded_at" json:"graded_at,omitempty"`
}

// Section returns the section the enrollment occupies.
func (e Enrollment) Section() SectionKey {
	return SectionKey{CourseID: e.CourseID, FacultyID: e.FacultyID}
}

// EnrollmentDetail enriches Enrollment with course and faculty info.
type EnrollmentDetail struct {
	Enrollment
	CourseName  string `db:"course_name" json:"course_name"`
	Credits     int    `db:"credits" json:"credits"`
	FacultyName string `db:"faculty_name" json:"faculty_name"`
}

// EnrollmentFilter narrows enrollment listings. Empty fields are ignored.
type EnrollmentFilter struct {
	StudentID string
	CourseID  string
	FacultyID string
	DegreeID  string
	Status    EnrollmentStatus
}

// CourseCompletions counts completed enrollments of one course.
type CourseCompletions struct {
	CourseID  string `json:"course_id"`
	Name      string `json:"name"`
	Semester  int    `json:"semester"`
	Completed int    `json:"completed"`
}

// DegreeCompletions totals completed enrollments across the courses of a degree.
type DegreeCompletions struct {
	DegreeID         string              `json:"degree_id"`
	TotalCompletions int                 `json:"total_completions"`
	Courses          []CourseCompletions `json:"courses"`
}

// StudentCourseKey identifies the one-active-enrollment slot of a student in a course.
type StudentCourseKey struct {
	StudentID string
	CourseID  string
}

// LockScope lists every section and student slot a critical section touches.
type LockScope struct {
	Sections []SectionKey
	Students []StudentCourseKey
}

// Normalize sorts and de-duplicates the scope into the global lock order.
func (s LockScope) Normalize() LockScope {
	sections := make([]SectionKey, 0, len(s.Sections))
	seenSection := make(map[SectionKey]struct{}, len(s.Sections))
	for _, k := range s.Sections {
		if _, ok := seenSection[k]; ok {
			continue
		}
		seenSection[k] = struct{}{}
		sections = append(sections, k)
	}
	sort.Slice(sections, func(i, j int) bool { return sections[i].Less(sections[j]) })

	students := make([]StudentCourseKey, 0, len(s.Students))
	seenStudent := make(map[StudentCourseKey]struct{}, len(s.Students))
	for _, k := range s.Students {
		if _, ok := seenStudent[k]; ok {
			continue
		}
		seenStudent[k] = struct{}{}
		students = append(students, k)
	}
	sort.Slice(students, func(i, j int) bool {
		if students[i].StudentID != students[j].StudentID {
			return students[i].StudentID < students[j].StudentID
		}
		return students[i].CourseID < students[j].CourseID
	})
	return LockScope{Sections: sections, Students: students}
}

// SelectionSet is a validated set of sections chosen by one student, at most
// one per course, kept in course order.
type SelectionSet struct {
	items []SectionKey
}

// SelectionError describes why raw selections were rejected.
type SelectionError struct {
	CourseID string
	Reason   string
}

func (e *SelectionError) Error() string {
	if e.CourseID == "" {
		return e.Reason
	}
	return e.Reason + ": " + e.CourseID
}

// Selection error reasons.
const (
	SelectionReasonEmpty     = "no sections selected"
	SelectionReasonBlank     = "course_id and faculty_id are required"
	SelectionReasonDuplicate = "course selected more than once"
)

// NewSelectionSet validates raw selections.
func NewSelectionSet(raw []SectionKey) (SelectionSet, error) {
	if len(raw) == 0 {
		return SelectionSet{}, &SelectionError{Reason: SelectionReasonEmpty}
	}
	seen := make(map[string]struct{}, len(raw))
	items := make([]SectionKey, 0, len(raw))
	for _, k := range raw {
		k.CourseID = strings.TrimSpace(k.CourseID)
		k.FacultyID = strings.TrimSpace(k.FacultyID)
		if k.CourseID == "" || k.FacultyID == "" {
			return SelectionSet{}, &SelectionError{CourseID: k.CourseID, Reason: SelectionReasonBlank}
		}
		if _, dup := seen[k.CourseID]; dup {
			return SelectionSet{}, &SelectionError{CourseID: k.CourseID, Reason: SelectionReasonDuplicate}
		}
		seen[k.CourseID] = struct{}{}
		items = append(items, k)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Less(items[j]) })
	return SelectionSet{items: items}, nil
}

// Sections returns a copy of the selected sections in course order.
func (s SelectionSet) Sections() []SectionKey {
	out := make([]SectionKey, len(s.items))
	copy(out, s.items)
	return out
}

// CourseIDs returns the selected course ids in order.
func (s SelectionSet) CourseIDs() []string {
	ids := make([]string, len(s.items))
	for i, k := range s.items {
		ids[i] = k.CourseID
	}
	return ids
}

// Len returns the number of selections.
func (s SelectionSet) Len() int {
	return len(s.items)
}
