package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-registration-api/internal/dto"
	"github.com/noah-isme/course-registration-api/internal/models"
	appErrors "github.com/noah-isme/course-registration-api/pkg/errors"
	"github.com/noah-isme/course-registration-api/pkg/response"
)

type gradeService interface {
	PostGrade(ctx context.Context, actor models.Actor, enrollmentID string, req dto.PostGradeRequest) (*models.Enrollment, error)
	BacklogsForFaculty(ctx context.Context, actor models.Actor, facultyID string) ([]models.EnrollmentDetail, error)
	BacklogsForStudent(ctx context.Context, actor models.Actor, studentID string) ([]models.EnrollmentDetail, error)
	CompletedForStudent(ctx context.Context, actor models.Actor, studentID string) ([]models.EnrollmentDetail, error)
	DegreeCompletions(ctx context.Context, actor models.Actor, degreeID string) (*models.DegreeCompletions, error)
}

// GradeHandler exposes grading and backlog endpoints.
type GradeHandler struct {
	service gradeService
}

// NewGradeHandler builds a new handler.
func NewGradeHandler(service gradeService) *GradeHandler {
	return &GradeHandler{service: service}
}

// PostGrade godoc
// @Summary Post the final grade of an enrollment
// @Tags Grades
// @Accept json
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param payload body dto.PostGradeRequest true "Grade on a 0-4 scale"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /enrollments/{id}/grade [post]
func (h *GradeHandler) PostGrade(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.PostGradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid grade payload"))
		return
	}
	enrollment, err := h.service.PostGrade(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment)
}

// FacultyBacklogs godoc
// @Summary Backlogs in sections taught by a faculty member
// @Tags Grades
// @Produce json
// @Param id path string true "Faculty ID"
// @Success 200 {object} response.Envelope
// @Router /faculty/{id}/backlogs [get]
func (h *GradeHandler) FacultyBacklogs(c *gin.Context) {
	h.list(c, h.service.BacklogsForFaculty)
}

// StudentBacklogs godoc
// @Summary Backlogs of a student
// @Tags Grades
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/backlogs [get]
func (h *GradeHandler) StudentBacklogs(c *gin.Context) {
	h.list(c, h.service.BacklogsForStudent)
}

// StudentCompleted godoc
// @Summary Completed courses of a student
// @Tags Grades
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/completed [get]
func (h *GradeHandler) StudentCompleted(c *gin.Context) {
	h.list(c, h.service.CompletedForStudent)
}

// DegreeCompletions godoc
// @Summary Completed enrollments per course of a degree
// @Tags Grades
// @Produce json
// @Param id path string true "Degree ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /degrees/{id}/completions [get]
func (h *GradeHandler) DegreeCompletions(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	summary, err := h.service.DegreeCompletions(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary)
}

func (h *GradeHandler) list(c *gin.Context, fetch func(context.Context, models.Actor, string) ([]models.EnrollmentDetail, error)) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	items, err := fetch(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.List(c, items)
}
