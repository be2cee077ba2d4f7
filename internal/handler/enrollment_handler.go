package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-registration-api/internal/dto"
	"github.com/noah-isme/course-registration-api/internal/models"
	appErrors "github.com/noah-isme/course-registration-api/pkg/errors"
	"github.com/noah-isme/course-registration-api/pkg/export"
	"github.com/noah-isme/course-registration-api/pkg/response"
)

type enrollmentService interface {
	Enroll(ctx context.Context, actor models.Actor, req dto.EnrollRequest) (*dto.EnrollResult, error)
	Withdraw(ctx context.Context, actor models.Actor, enrollmentID string) error
	ListForStudent(ctx context.Context, actor models.Actor, studentID string) ([]models.EnrollmentDetail, error)
	SectionRoster(ctx context.Context, actor models.Actor, key models.SectionKey) ([]models.EnrollmentDetail, error)
	ExportRoster(ctx context.Context, actor models.Actor, key models.SectionKey, format export.Format) (*export.Document, error)
}

// EnrollmentHandler exposes enrollment endpoints.
type EnrollmentHandler struct {
	service enrollmentService
}

// NewEnrollmentHandler builds a new handler.
func NewEnrollmentHandler(service enrollmentService) *EnrollmentHandler {
	return &EnrollmentHandler{service: service}
}

// Enroll godoc
// @Summary Enroll a student into one section per selected course
// @Description All selections succeed together or none are recorded.
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param payload body dto.EnrollRequest true "Selections"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /enrollments [post]
func (h *EnrollmentHandler) Enroll(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.EnrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid enrollment payload"))
		return
	}
	result, err := h.service.Enroll(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Withdraw godoc
// @Summary Withdraw from an active enrollment
// @Tags Enrollments
// @Param id path string true "Enrollment ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /enrollments/{id} [delete]
func (h *EnrollmentHandler) Withdraw(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	if err := h.service.Withdraw(c.Request.Context(), actor, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// StudentEnrollments godoc
// @Summary List every enrollment record of a student
// @Tags Enrollments
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/enrollments [get]
func (h *EnrollmentHandler) StudentEnrollments(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	items, err := h.service.ListForStudent(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.List(c, items)
}

// Roster godoc
// @Summary Active students of a section
// @Tags Enrollments
// @Produce json,text/csv,application/pdf
// @Param courseId path string true "Course ID"
// @Param facultyId path string true "Faculty ID"
// @Param format query string false "json (default), csv or pdf"
// @Success 200 {object} response.Envelope
// @Router /sections/{courseId}/{facultyId}/roster [get]
func (h *EnrollmentHandler) Roster(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	key := sectionFromPath(c)
	raw := c.DefaultQuery("format", "json")
	if raw == "json" {
		items, err := h.service.SectionRoster(c.Request.Context(), actor, key)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.List(c, items)
		return
	}

	format, err := export.ParseFormat(raw)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "format must be json, csv or pdf"))
		return
	}
	doc, err := h.service.ExportRoster(c.Request.Context(), actor, key, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, doc.Filename, doc.ContentType, doc.Body)
}
