package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-registration-api/internal/middleware"
	"github.com/noah-isme/course-registration-api/internal/models"
)

// Handlers groups every HTTP handler mounted under the API prefix.
type Handlers struct {
	Allocation *AllocationHandler
	Enrollment *EnrollmentHandler
	Grade      *GradeHandler
	Catalog    *CatalogHandler
}

// Register mounts the registration API on group. Every route requires a
// bearer token; role gates mirror the service policy so obvious misuse is
// rejected before any lock is taken.
func (h Handlers) Register(group *gin.RouterGroup, tokens middleware.TokenValidator) {
	admin := middleware.RequireRoles(models.RoleAdmin)

	api := group.Group("")
	api.Use(middleware.JWT(tokens))

	allocations := api.Group("/allocations")
	allocations.POST("", admin, h.Allocation.Allocate)
	allocations.GET("/utilisation", admin, h.Allocation.Utilisation)
	allocations.DELETE("/:courseId/:facultyId", admin, h.Allocation.Deallocate)

	enrollments := api.Group("/enrollments")
	enrollments.POST("", middleware.RequireRoles(models.RoleStudent, models.RoleAdmin), h.Enrollment.Enroll)
	enrollments.DELETE("/:id", middleware.RequireRoles(models.RoleStudent, models.RoleAdmin), h.Enrollment.Withdraw)
	enrollments.POST("/:id/grade", middleware.RequireRoles(models.RoleFaculty, models.RoleAdmin), h.Grade.PostGrade)

	students := api.Group("/students/:id")
	students.Use(middleware.RBAC(string(models.RoleAdmin), "SELF:id"))
	students.GET("/enrollments", h.Enrollment.StudentEnrollments)
	students.GET("/backlogs", h.Grade.StudentBacklogs)
	students.GET("/completed", h.Grade.StudentCompleted)

	api.GET("/sections/:courseId/:facultyId/roster", middleware.RequireRoles(models.RoleFaculty, models.RoleAdmin), h.Enrollment.Roster)

	api.GET("/faculty", h.Catalog.ListFaculty)
	faculty := api.Group("/faculty/:id")
	faculty.Use(middleware.RBAC(string(models.RoleAdmin), "SELF:id"))
	faculty.GET("/load", h.Allocation.FacultyLoad)
	faculty.GET("/backlogs", h.Grade.FacultyBacklogs)

	api.GET("/degrees", h.Catalog.ListDegrees)
	api.GET("/degrees/:id/courses", h.Catalog.DegreeCourses)
	api.GET("/degrees/:id/offerings", h.Allocation.DegreeOfferings)
	api.GET("/degrees/:id/completions", admin, h.Grade.DegreeCompletions)
	api.GET("/courses", h.Catalog.ListCourses)
	api.GET("/courses/:id/offerings", h.Allocation.CourseOfferings)
	api.PATCH("/courses/:id/limits", admin, h.Catalog.UpdateCourseLimits)
}
