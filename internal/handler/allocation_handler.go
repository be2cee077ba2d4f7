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

type allocationService interface {
	Allocate(ctx context.Context, actor models.Actor, req dto.AllocateRequest) (*models.Allocation, error)
	Deallocate(ctx context.Context, actor models.Actor, key models.SectionKey) error
	ListOfferings(ctx context.Context, courseID string) ([]models.Offering, error)
	ListDegreeOfferings(ctx context.Context, degreeID string, semester int) ([]models.Offering, error)
	ListFacultyLoad(ctx context.Context, actor models.Actor, facultyID string) (*models.FacultyLoad, error)
	Utilisation(ctx context.Context, actor models.Actor) (*models.Utilisation, error)
}

// AllocationHandler exposes faculty allocation and offering endpoints.
type AllocationHandler struct {
	service allocationService
}

// NewAllocationHandler builds a new handler.
func NewAllocationHandler(service allocationService) *AllocationHandler {
	return &AllocationHandler{service: service}
}

// Allocate godoc
// @Summary Allocate a faculty member to a course
// @Tags Allocations
// @Accept json
// @Produce json
// @Param payload body dto.AllocateRequest true "Allocation payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /allocations [post]
func (h *AllocationHandler) Allocate(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.AllocateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid allocation payload"))
		return
	}
	allocation, err := h.service.Allocate(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, allocation)
}

// Deallocate godoc
// @Summary Remove a faculty allocation
// @Tags Allocations
// @Param courseId path string true "Course ID"
// @Param facultyId path string true "Faculty ID"
// @Success 204
// @Failure 409 {object} response.Envelope
// @Router /allocations/{courseId}/{facultyId} [delete]
func (h *AllocationHandler) Deallocate(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	if err := h.service.Deallocate(c.Request.Context(), actor, sectionFromPath(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// CourseOfferings godoc
// @Summary List sections of a course with seats left
// @Tags Allocations
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/offerings [get]
func (h *AllocationHandler) CourseOfferings(c *gin.Context) {
	offerings, err := h.service.ListOfferings(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.List(c, offerings)
}

// DegreeOfferings godoc
// @Summary List sections open to a degree
// @Tags Allocations
// @Produce json
// @Param id path string true "Degree ID"
// @Param semester query int false "Semester filter"
// @Success 200 {object} response.Envelope
// @Router /degrees/{id}/offerings [get]
func (h *AllocationHandler) DegreeOfferings(c *gin.Context) {
	semester, err := optionalIntQuery(c, "semester")
	if err != nil {
		response.Error(c, err)
		return
	}
	offerings, err := h.service.ListDegreeOfferings(c.Request.Context(), c.Param("id"), semester)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.List(c, offerings)
}

// FacultyLoad godoc
// @Summary List sections taught by a faculty member
// @Tags Allocations
// @Produce json
// @Param id path string true "Faculty ID"
// @Success 200 {object} response.Envelope
// @Router /faculty/{id}/load [get]
func (h *AllocationHandler) FacultyLoad(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	load, err := h.service.ListFacultyLoad(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, load)
}

// Utilisation godoc
// @Summary Seat utilisation across all sections
// @Tags Allocations
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /allocations/utilisation [get]
func (h *AllocationHandler) Utilisation(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	usage, err := h.service.Utilisation(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, usage)
}
