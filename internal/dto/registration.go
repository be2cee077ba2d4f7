package dto

import "github.com/noah-isme/course-registration-api/internal/models"

// AllocateRequest assigns a faculty member to a course. Capacity overrides the
// course seat limit when set.
type AllocateRequest struct {
	CourseID  string `json:"course_id" validate:"required"`
	FacultyID string `json:"faculty_id" validate:"required"`
	Capacity  *int   `json:"capacity,omitempty" validate:"omitempty,min=0"`
}

// EnrollRequest selects one section per course for a student. StudentID
// defaults to the caller.
type EnrollRequest struct {
	StudentID  string              `json:"student_id,omitempty"`
	Selections []models.SectionKey `json:"selections" validate:"required,min=1,dive"`
}

// PostGradeRequest records the final grade of an enrollment on the 0-4 scale.
type PostGradeRequest struct {
	Grade *float64 `json:"grade" validate:"required,min=0,max=4"`
}

// EnrollResult lists enrollments created by one request and the credits they carry.
type EnrollResult struct {
	Enrollments []models.Enrollment `json:"enrollments"`
	Credits     int                 `json:"credits"`
}
