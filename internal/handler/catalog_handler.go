package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-registration-api/internal/models"
	appErrors "github.com/noah-isme/course-registration-api/pkg/errors"
	"github.com/noah-isme/course-registration-api/pkg/response"
)

type catalogService interface {
	ListDegrees(ctx context.Context, degreeType string) ([]models.Degree, error)
	GetDegreeCourses(ctx context.Context, degreeID string) ([]models.Course, error)
	ListCourses(ctx context.Context) ([]models.Course, error)
	ListFaculty(ctx context.Context) ([]models.Faculty, error)
	UpdateCourseLimits(ctx context.Context, actor models.Actor, id string, limits models.CourseLimits) (*models.Course, error)
}

// CatalogHandler exposes degree, course and faculty lookups.
type CatalogHandler struct {
	service catalogService
}

// NewCatalogHandler builds a new handler.
func NewCatalogHandler(service catalogService) *CatalogHandler {
	return &CatalogHandler{service: service}
}

// ListDegrees godoc
// @Summary List degrees
// @Tags Catalog
// @Produce json
// @Param type query string false "UG or PG"
// @Success 200 {object} response.Envelope
// @Router /degrees [get]
func (h *CatalogHandler) ListDegrees(c *gin.Context) {
	degrees, err := h.service.ListDegrees(c.Request.Context(), c.Query("type"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.List(c, degrees)
}

// DegreeCourses godoc
// @Summary List the courses of a degree by semester
// @Tags Catalog
// @Produce json
// @Param id path string true "Degree ID"
// @Success 200 {object} response.Envelope
// @Router /degrees/{id}/courses [get]
func (h *CatalogHandler) DegreeCourses(c *gin.Context) {
	courses, err := h.service.GetDegreeCourses(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.List(c, courses)
}

// ListCourses godoc
// @Summary List every course in the catalog
// @Tags Catalog
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /courses [get]
func (h *CatalogHandler) ListCourses(c *gin.Context) {
	courses, err := h.service.ListCourses(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.List(c, courses)
}

// ListFaculty godoc
// @Summary List faculty
// @Tags Catalog
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /faculty [get]
func (h *CatalogHandler) ListFaculty(c *gin.Context) {
	faculty, err := h.service.ListFaculty(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.List(c, faculty)
}

// UpdateCourseLimits godoc
// @Summary Change credits and seat limit of a course
// @Tags Catalog
// @Accept json
// @Produce json
// @Param id path string true "Course ID"
// @Param payload body models.CourseLimits true "Limits"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/limits [patch]
func (h *CatalogHandler) UpdateCourseLimits(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var limits models.CourseLimits
	if err := c.ShouldBindJSON(&limits); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid course limits payload"))
		return
	}
	course, err := h.service.UpdateCourseLimits(c.Request.Context(), actor, c.Param("id"), limits)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, course)
}
