package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/course-registration-api/internal/models"
	"github.com/noah-isme/course-registration-api/pkg/cache"
	appErrors "github.com/noah-isme/course-registration-api/pkg/errors"
)

// CatalogStore reads and updates degrees, courses and faculty.
type CatalogStore interface {
	GetDegree(ctx context.Context, id string) (*models.Degree, error)
	ListDegrees(ctx context.Context, degreeType models.DegreeType) ([]models.Degree, error)
	GetCourse(ctx context.Context, id string) (*models.Course, error)
	GetDegreeCourses(ctx context.Context, degreeID string) ([]models.Course, error)
	ListCourses(ctx context.Context) ([]models.Course, error)
	GetFaculty(ctx context.Context, id string) (*models.Faculty, error)
	ListFaculty(ctx context.Context) ([]models.Faculty, error)
	UpdateCourseLimits(ctx context.Context, id string, limits models.CourseLimits) error
}

// CatalogService serves catalog reads through an optional Redis cache.
type CatalogService struct {
	store     CatalogStore
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCatalogService constructs the service. cache may be nil.
func NewCatalogService(store CatalogStore, cacheSvc *CacheService, validate *validator.Validate, logger *zap.Logger) *CatalogService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogService{store: store, cache: cacheSvc, validator: validate, logger: logger}
}

// GetCourse returns a course by ID.
func (s *CatalogService) GetCourse(ctx context.Context, id string) (*models.Course, error) {
	key := cache.Key("catalog", "course", id)
	var cached models.Course
	if s.cache.Get(ctx, key, &cached) {
		return &cached, nil
	}
	course, err := s.store.GetCourse(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "course not found", "failed to load course")
	}
	s.cache.Set(ctx, key, course)
	return course, nil
}

// GetDegreeCourses returns the courses of a degree ordered by semester.
func (s *CatalogService) GetDegreeCourses(ctx context.Context, degreeID string) ([]models.Course, error) {
	key := cache.Key("catalog", "degree-courses", degreeID)
	var cached []models.Course
	if s.cache.Get(ctx, key, &cached) {
		return cached, nil
	}
	if _, err := s.store.GetDegree(ctx, degreeID); err != nil {
		return nil, notFoundOr(err, "degree not found", "failed to load degree")
	}
	courses, err := s.store.GetDegreeCourses(ctx, degreeID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list degree courses")
	}
	s.cache.Set(ctx, key, courses)
	return courses, nil
}

// ListCourses returns the full course catalog.
func (s *CatalogService) ListCourses(ctx context.Context) ([]models.Course, error) {
	key := cache.Key("catalog", "courses")
	var cached []models.Course
	if s.cache.Get(ctx, key, &cached) {
		return cached, nil
	}
	courses, err := s.store.ListCourses(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	if courses == nil {
		courses = []models.Course{}
	}
	s.cache.Set(ctx, key, courses)
	return courses, nil
}

// ListDegrees returns all degrees, or those of one type.
func (s *CatalogService) ListDegrees(ctx context.Context, degreeType string) ([]models.Degree, error) {
	t := models.DegreeType(strings.ToUpper(strings.TrimSpace(degreeType)))
	if t != "" && !t.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "degree type must be UG or PG")
	}
	label := string(t)
	if label == "" {
		label = "all"
	}
	key := cache.Key("catalog", "degrees", label)
	var cached []models.Degree
	if s.cache.Get(ctx, key, &cached) {
		return cached, nil
	}
	degrees, err := s.store.ListDegrees(ctx, t)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list degrees")
	}
	s.cache.Set(ctx, key, degrees)
	return degrees, nil
}

// GetFaculty returns a faculty member by ID.
func (s *CatalogService) GetFaculty(ctx context.Context, id string) (*models.Faculty, error) {
	faculty, err := s.store.GetFaculty(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "faculty not found", "failed to load faculty")
	}
	return faculty, nil
}

// ListFaculty returns every faculty member.
func (s *CatalogService) ListFaculty(ctx context.Context) ([]models.Faculty, error) {
	faculty, err := s.store.ListFaculty(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list faculty")
	}
	return faculty, nil
}

// UpdateCourseLimits changes credits and seat limit of a course. Existing
// allocations keep the capacity they were created with.
func (s *CatalogService) UpdateCourseLimits(ctx context.Context, actor models.Actor, id string, limits models.CourseLimits) (*models.Course, error) {
	if err := authorizeAdmin(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(limits); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course limits")
	}
	if err := s.store.UpdateCourseLimits(ctx, id, limits); err != nil {
		return nil, notFoundOr(err, "course not found", "failed to update course limits")
	}
	s.cache.Invalidate(ctx, cache.Key("catalog", "*"))
	s.logger.Info("course limits updated",
		zap.String("course_id", id),
		zap.String("actor_id", actor.ID),
		zap.Int("credits", limits.Credits),
		zap.Int("max_enroll", limits.MaxEnroll),
	)
	course, err := s.store.GetCourse(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "course not found", "failed to load course")
	}
	return course, nil
}

func notFoundOr(err error, notFoundMsg, internalMsg string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, notFoundMsg)
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, internalMsg)
}
