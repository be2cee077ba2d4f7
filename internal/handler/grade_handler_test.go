package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-registration-api/internal/dto"
	"github.com/noah-isme/course-registration-api/internal/models"
	appErrors "github.com/noah-isme/course-registration-api/pkg/errors"
)

type gradeServiceMock struct {
	enrollment *models.Enrollment
	items      []models.EnrollmentDetail
	summary    *models.DegreeCompletions
	err        error

	lastID    string
	lastGrade *float64
	lastList  string
}

func (m *gradeServiceMock) PostGrade(ctx context.Context, actor models.Actor, enrollmentID string, req dto.PostGradeRequest) (*models.Enrollment, error) {
	m.lastID = enrollmentID
	m.lastGrade = req.Grade
	return m.enrollment, m.err
}

func (m *gradeServiceMock) BacklogsForFaculty(ctx context.Context, actor models.Actor, facultyID string) ([]models.EnrollmentDetail, error) {
	m.lastList = "faculty-backlogs:" + facultyID
	return m.items, m.err
}

func (m *gradeServiceMock) BacklogsForStudent(ctx context.Context, actor models.Actor, studentID string) ([]models.EnrollmentDetail, error) {
	m.lastList = "student-backlogs:" + studentID
	return m.items, m.err
}

func (m *gradeServiceMock) CompletedForStudent(ctx context.Context, actor models.Actor, studentID string) ([]models.EnrollmentDetail, error) {
	m.lastList = "student-completed:" + studentID
	return m.items, m.err
}

func (m *gradeServiceMock) DegreeCompletions(ctx context.Context, actor models.Actor, degreeID string) (*models.DegreeCompletions, error) {
	m.lastList = "degree-completions:" + degreeID
	return m.summary, m.err
}

func TestGradeHandlerPostGrade(t *testing.T) {
	mockSvc := &gradeServiceMock{enrollment: &models.Enrollment{ID: "e-1", Status: models.EnrollmentStatusCompleted}}
	handler := NewGradeHandler(mockSvc)

	c, w := newTestContext(http.MethodPost, "/enrollments/e-1/grade", `{"grade":3.5}`, facultyClaims)
	c.Params = gin.Params{{Key: "id", Value: "e-1"}}
	handler.PostGrade(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "e-1", mockSvc.lastID)
	require.NotNil(t, mockSvc.lastGrade)
	assert.InDelta(t, 3.5, *mockSvc.lastGrade, 1e-9)
}

func TestGradeHandlerPostGradeInvalidTransition(t *testing.T) {
	handler := NewGradeHandler(&gradeServiceMock{err: appErrors.ErrInvalidTransition})

	c, w := newTestContext(http.MethodPost, "/enrollments/e-1/grade", `{"grade":1}`, facultyClaims)
	c.Params = gin.Params{{Key: "id", Value: "e-1"}}
	handler.PostGrade(c)

	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, decodeEnvelope(t, w).Error.Code)
}

func TestGradeHandlerListings(t *testing.T) {
	mockSvc := &gradeServiceMock{items: []models.EnrollmentDetail{{}}}
	handler := NewGradeHandler(mockSvc)

	cases := []struct {
		name   string
		call   gin.HandlerFunc
		expect string
	}{
		{"faculty backlogs", handler.FacultyBacklogs, "faculty-backlogs:X"},
		{"student backlogs", handler.StudentBacklogs, "student-backlogs:X"},
		{"student completed", handler.StudentCompleted, "student-completed:X"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, w := newTestContext(http.MethodGet, "/x", "", adminClaims)
			c.Params = gin.Params{{Key: "id", Value: "X"}}
			tc.call(c)

			require.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tc.expect, mockSvc.lastList)
		})
	}
}

func TestGradeHandlerDegreeCompletions(t *testing.T) {
	mockSvc := &gradeServiceMock{summary: &models.DegreeCompletions{DegreeID: "BTECH-CSE", TotalCompletions: 3}}
	handler := NewGradeHandler(mockSvc)

	c, w := newTestContext(http.MethodGet, "/degrees/BTECH-CSE/completions", "", adminClaims)
	c.Params = gin.Params{{Key: "id", Value: "BTECH-CSE"}}
	handler.DegreeCompletions(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "degree-completions:BTECH-CSE", mockSvc.lastList)
	assert.Contains(t, string(decodeEnvelope(t, w).Data), `"total_completions":3`)
}
