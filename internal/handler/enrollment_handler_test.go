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
	"github.com/noah-isme/course-registration-api/pkg/export"
)

type enrollmentServiceMock struct {
	enrollResp *dto.EnrollResult
	roster     []models.EnrollmentDetail
	doc        *export.Document
	err        error

	lastRequest dto.EnrollRequest
	lastFormat  export.Format
	lastKey     models.SectionKey
	lastID      string
	exported    bool
	called      bool
}

func (m *enrollmentServiceMock) Enroll(ctx context.Context, actor models.Actor, req dto.EnrollRequest) (*dto.EnrollResult, error) {
	m.called = true
	m.lastRequest = req
	return m.enrollResp, m.err
}

func (m *enrollmentServiceMock) Withdraw(ctx context.Context, actor models.Actor, enrollmentID string) error {
	m.called = true
	m.lastID = enrollmentID
	return m.err
}

func (m *enrollmentServiceMock) ListForStudent(ctx context.Context, actor models.Actor, studentID string) ([]models.EnrollmentDetail, error) {
	m.called = true
	m.lastID = studentID
	return m.roster, m.err
}

func (m *enrollmentServiceMock) SectionRoster(ctx context.Context, actor models.Actor, key models.SectionKey) ([]models.EnrollmentDetail, error) {
	m.called = true
	m.lastKey = key
	return m.roster, m.err
}

func (m *enrollmentServiceMock) ExportRoster(ctx context.Context, actor models.Actor, key models.SectionKey, format export.Format) (*export.Document, error) {
	m.exported = true
	m.lastKey = key
	m.lastFormat = format
	return m.doc, m.err
}

func TestEnrollmentHandlerEnroll(t *testing.T) {
	mockSvc := &enrollmentServiceMock{enrollResp: &dto.EnrollResult{Credits: 20}}
	handler := NewEnrollmentHandler(mockSvc)

	body := `{"selections":[{"course_id":"CS301","faculty_id":"F1"},{"course_id":"CS302","faculty_id":"F2"}]}`
	c, w := newTestContext(http.MethodPost, "/enrollments", body, studentClaims)
	handler.Enroll(c)

	require.Equal(t, http.StatusCreated, w.Code)
	require.Len(t, mockSvc.lastRequest.Selections, 2)
	assert.Equal(t, models.SectionKey{CourseID: "CS302", FacultyID: "F2"}, mockSvc.lastRequest.Selections[1])
}

func TestEnrollmentHandlerEnrollRuleViolation(t *testing.T) {
	details := map[string]interface{}{"required": 20, "selected": 8, "shortfall": 12}
	mockSvc := &enrollmentServiceMock{err: appErrors.WithDetails(appErrors.ErrInsufficientCredits, "", details)}
	handler := NewEnrollmentHandler(mockSvc)

	c, w := newTestContext(http.MethodPost, "/enrollments", `{"selections":[{"course_id":"CS301","faculty_id":"F1"}]}`, studentClaims)
	handler.Enroll(c)

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	env := decodeEnvelope(t, w)
	assert.Equal(t, appErrors.ErrInsufficientCredits.Code, env.Error.Code)
	assert.EqualValues(t, 12, env.Error.Details["shortfall"])
}

func TestEnrollmentHandlerEnrollBusy(t *testing.T) {
	handler := NewEnrollmentHandler(&enrollmentServiceMock{err: appErrors.ErrBusy})

	c, w := newTestContext(http.MethodPost, "/enrollments", `{"selections":[{"course_id":"CS301","faculty_id":"F1"}]}`, studentClaims)
	handler.Enroll(c)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestEnrollmentHandlerWithdraw(t *testing.T) {
	mockSvc := &enrollmentServiceMock{}
	handler := NewEnrollmentHandler(mockSvc)

	c, w := newTestContext(http.MethodDelete, "/enrollments/e-1", "", studentClaims)
	c.Params = gin.Params{{Key: "id", Value: "e-1"}}
	handler.Withdraw(c)

	c.Writer.WriteHeaderNow()
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "e-1", mockSvc.lastID)
}

func TestEnrollmentHandlerRosterJSON(t *testing.T) {
	mockSvc := &enrollmentServiceMock{roster: []models.EnrollmentDetail{{Enrollment: models.Enrollment{StudentID: "S1"}}}}
	handler := NewEnrollmentHandler(mockSvc)

	c, w := newTestContext(http.MethodGet, "/sections/CS301/F1/roster", "", facultyClaims)
	c.Params = gin.Params{{Key: "courseId", Value: "CS301"}, {Key: "facultyId", Value: "F1"}}
	handler.Roster(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, mockSvc.called)
	assert.False(t, mockSvc.exported)
	assert.Equal(t, models.SectionKey{CourseID: "CS301", FacultyID: "F1"}, mockSvc.lastKey)
}

func TestEnrollmentHandlerRosterCSV(t *testing.T) {
	mockSvc := &enrollmentServiceMock{doc: &export.Document{
		Filename:    "roster-CS301-F1.csv",
		ContentType: export.FormatCSV.ContentType(),
		Body:        []byte("student_id\nS1\n"),
	}}
	handler := NewEnrollmentHandler(mockSvc)

	c, w := newTestContext(http.MethodGet, "/sections/CS301/F1/roster?format=csv", "", facultyClaims)
	c.Params = gin.Params{{Key: "courseId", Value: "CS301"}, {Key: "facultyId", Value: "F1"}}
	handler.Roster(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, export.FormatCSV, mockSvc.lastFormat)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "roster-CS301-F1.csv")
	assert.Equal(t, "student_id\nS1\n", w.Body.String())
}

func TestEnrollmentHandlerRosterUnknownFormat(t *testing.T) {
	mockSvc := &enrollmentServiceMock{}
	handler := NewEnrollmentHandler(mockSvc)

	c, w := newTestContext(http.MethodGet, "/sections/CS301/F1/roster?format=xlsx", "", facultyClaims)
	handler.Roster(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, mockSvc.exported)
}
