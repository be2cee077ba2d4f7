package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/course-registration-api/internal/dto"
	"github.com/noah-isme/course-registration-api/internal/models"
	"github.com/noah-isme/course-registration-api/internal/repository"
	appErrors "github.com/noah-isme/course-registration-api/pkg/errors"
)

// OfferingReader serves allocation views with live seat counts.
type OfferingReader interface {
	FindAllocation(ctx context.Context, key models.SectionKey) (*models.Allocation, error)
	ListOfferings(ctx context.Context, filter models.OfferingFilter) ([]models.Offering, error)
	Utilisation(ctx context.Context) (*models.Utilisation, error)
}

// catalogLookup resolves catalog entries into domain errors.
type catalogLookup interface {
	GetCourse(ctx context.Context, id string) (*models.Course, error)
	GetFaculty(ctx context.Context, id string) (*models.Faculty, error)
	GetDegreeCourses(ctx context.Context, degreeID string) ([]models.Course, error)
}

// AllocationConfig tunes allocation rules.
type AllocationConfig struct {
	EnforceDepartment bool
	MaxRetries        int
}

// AllocationService manages which faculty teach which courses.
type AllocationService struct {
	catalog   catalogLookup
	offerings OfferingReader
	runner    lockedRunner
	cfg       AllocationConfig
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAllocationService constructs the service.
func NewAllocationService(
	catalog catalogLookup,
	offerings OfferingReader,
	ledger Ledger,
	cfg AllocationConfig,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
) *AllocationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AllocationService{
		catalog:   catalog,
		offerings: offerings,
		runner:    lockedRunner{ledger: ledger, metrics: metrics, logger: logger, maxRetries: cfg.MaxRetries},
		cfg:       cfg,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
	}
}

// Allocate assigns a faculty member to a course. Capacity is the course seat
// limit unless req.Capacity overrides it.
func (s *AllocationService) Allocate(ctx context.Context, actor models.Actor, req dto.AllocateRequest) (allocation *models.Allocation, err error) {
	defer func() {
		s.metrics.RecordOperation("allocate", err)
		logOutcome(s.logger, "allocate", err, zap.String("course_id", req.CourseID), zap.String("faculty_id", req.FacultyID), zap.String("actor_id", actor.ID))
	}()

	if err := authorizeAdmin(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid allocation payload")
	}

	course, err := s.catalog.GetCourse(ctx, req.CourseID)
	if err != nil {
		return nil, err
	}
	faculty, err := s.catalog.GetFaculty(ctx, req.FacultyID)
	if err != nil {
		return nil, err
	}
	if s.cfg.EnforceDepartment && course.Department != "" && course.Department != faculty.Department {
		return nil, appErrors.WithDetails(appErrors.ErrIneligibleFaculty, "faculty department does not match course department", map[string]interface{}{
			"courseDepartment":  course.Department,
			"facultyDepartment": faculty.Department,
		})
	}

	capacity := course.MaxEnroll
	if req.Capacity != nil {
		capacity = *req.Capacity
	}
	key := models.SectionKey{CourseID: course.ID, FacultyID: faculty.ID}

	err = s.runner.run(ctx, "allocate", models.LockScope{Sections: []models.SectionKey{key}}, func(tx repository.LedgerTx) error {
		if _, err := tx.Allocation(ctx, key); err == nil {
			return appErrors.Clone(appErrors.ErrDuplicateAllocation, "")
		} else if !errors.Is(err, sql.ErrNoRows) {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load allocation")
		}
		candidate := &models.Allocation{CourseID: key.CourseID, FacultyID: key.FacultyID, Capacity: capacity}
		if err := tx.InsertAllocation(ctx, candidate); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return appErrors.Clone(appErrors.ErrDuplicateAllocation, "")
			}
			return err
		}
		allocation = candidate
		return nil
	})
	if err != nil {
		return nil, err
	}
	return allocation, nil
}

// Deallocate removes an allocation that no active enrollment references.
func (s *AllocationService) Deallocate(ctx context.Context, actor models.Actor, key models.SectionKey) (err error) {
	defer func() {
		s.metrics.RecordOperation("deallocate", err)
		logOutcome(s.logger, "deallocate", err, zap.String("section", key.String()), zap.String("actor_id", actor.ID))
	}()

	if err := authorizeAdmin(actor); err != nil {
		return err
	}
	return s.runner.run(ctx, "deallocate", models.LockScope{Sections: []models.SectionKey{key}}, func(tx repository.LedgerTx) error {
		if _, err := tx.Allocation(ctx, key); err != nil {
			return notFoundOr(err, "allocation not found", "failed to load allocation")
		}
		active, err := tx.CountActive(ctx, key)
		if err != nil {
			return err
		}
		if active > 0 {
			return appErrors.WithDetails(appErrors.ErrHasActiveEnrollments, "", map[string]interface{}{
				"courseId":          key.CourseID,
				"facultyId":         key.FacultyID,
				"activeEnrollments": active,
			})
		}
		return tx.DeleteAllocation(ctx, key)
	})
}

// ListOfferings returns every section of a course ordered by faculty id.
func (s *AllocationService) ListOfferings(ctx context.Context, courseID string) ([]models.Offering, error) {
	if _, err := s.catalog.GetCourse(ctx, courseID); err != nil {
		return nil, err
	}
	return s.listOfferings(ctx, models.OfferingFilter{CourseID: courseID})
}

// ListDegreeOfferings returns the sections open to students of a degree,
// optionally narrowed to one semester.
func (s *AllocationService) ListDegreeOfferings(ctx context.Context, degreeID string, semester int) ([]models.Offering, error) {
	if semester < 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "semester must be positive")
	}
	if _, err := s.catalog.GetDegreeCourses(ctx, degreeID); err != nil {
		return nil, err
	}
	return s.listOfferings(ctx, models.OfferingFilter{DegreeID: degreeID, Semester: semester})
}

// ListFacultyLoad returns the sections taught by a faculty member.
func (s *AllocationService) ListFacultyLoad(ctx context.Context, actor models.Actor, facultyID string) (*models.FacultyLoad, error) {
	if err := authorizeFaculty(actor, facultyID); err != nil {
		return nil, err
	}
	faculty, err := s.catalog.GetFaculty(ctx, facultyID)
	if err != nil {
		return nil, err
	}
	offerings, err := s.listOfferings(ctx, models.OfferingFilter{FacultyID: facultyID})
	if err != nil {
		return nil, err
	}
	return &models.FacultyLoad{Faculty: *faculty, Offerings: offerings}, nil
}

// Utilisation reports seat usage across all sections.
func (s *AllocationService) Utilisation(ctx context.Context, actor models.Actor) (*models.Utilisation, error) {
	if err := authorizeAdmin(actor); err != nil {
		return nil, err
	}
	usage, err := s.offerings.Utilisation(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load utilisation")
	}
	return usage, nil
}

func (s *AllocationService) listOfferings(ctx context.Context, filter models.OfferingFilter) ([]models.Offering, error) {
	offerings, err := s.offerings.ListOfferings(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list offerings")
	}
	if offerings == nil {
		offerings = []models.Offering{}
	}
	return offerings, nil
}
