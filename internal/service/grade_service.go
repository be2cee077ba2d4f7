package service

import (
	"context"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/course-registration-api/internal/dto"
	"github.com/noah-isme/course-registration-api/internal/models"
	"github.com/noah-isme/course-registration-api/internal/repository"
	appErrors "github.com/noah-isme/course-registration-api/pkg/errors"
)

// Grade scale bounds.
const (
	MinGrade = 0.0
	MaxGrade = 4.0
)

// GradeConfig carries the grading rules.
type GradeConfig struct {
	PassingGrade float64
	MaxRetries   int
}

// GradeService moves enrollments from active to completed or backlog.
type GradeService struct {
	ledger    Ledger
	catalog   catalogLookup
	runner    lockedRunner
	cfg       GradeConfig
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewGradeService constructs the service.
func NewGradeService(ledger Ledger, catalog catalogLookup, cfg GradeConfig, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *GradeService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GradeService{
		ledger:    ledger,
		catalog:   catalog,
		runner:    lockedRunner{ledger: ledger, metrics: metrics, logger: logger, maxRetries: cfg.MaxRetries},
		cfg:       cfg,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// StatusForGrade maps a grade to its terminal status.
func (s *GradeService) StatusForGrade(grade float64) models.EnrollmentStatus {
	if grade >= s.cfg.PassingGrade {
		return models.EnrollmentStatusCompleted
	}
	return models.EnrollmentStatusBacklog
}

// PostGrade records the final grade of an active enrollment.
func (s *GradeService) PostGrade(ctx context.Context, actor models.Actor, enrollmentID string, req dto.PostGradeRequest) (graded *models.Enrollment, err error) {
	defer func() {
		s.metrics.RecordOperation("post_grade", err)
		logOutcome(s.logger, "post_grade", err, zap.String("enrollment_id", enrollmentID), zap.String("actor_id", actor.ID))
	}()

	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "grade must be between 0 and 4")
	}
	grade := *req.Grade
	if math.IsNaN(grade) || grade < MinGrade || grade > MaxGrade {
		return nil, appErrors.Clone(appErrors.ErrValidation, "grade must be between 0 and 4")
	}

	current, err := s.ledger.FindEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, notFoundOr(err, "enrollment not found", "failed to load enrollment")
	}
	if err := authorizeFaculty(actor, current.FacultyID); err != nil {
		return nil, err
	}

	scope := models.LockScope{
		Sections: []models.SectionKey{current.Section()},
		Students: []models.StudentCourseKey{{StudentID: current.StudentID, CourseID: current.CourseID}},
	}
	status := s.StatusForGrade(grade)
	err = s.runner.run(ctx, "post_grade", scope, func(tx repository.LedgerTx) error {
		locked, err := tx.FindEnrollment(ctx, enrollmentID)
		if err != nil {
			return notFoundOr(err, "enrollment not found", "failed to load enrollment")
		}
		if locked.Status.Terminal() {
			return appErrors.WithDetails(appErrors.ErrInvalidTransition, "", map[string]interface{}{
				"enrollmentId": enrollmentID,
				"status":       locked.Status,
			})
		}
		gradedAt := s.now()
		if err := tx.GradeEnrollment(ctx, enrollmentID, status, grade, gradedAt); err != nil {
			return err
		}
		locked.Status = status
		locked.Grade = &grade
		locked.GradedAt = &gradedAt
		graded = locked
		return nil
	})
	if err != nil {
		return nil, err
	}
	return graded, nil
}

// BacklogsForFaculty lists backlog records of sections taught by a faculty member.
func (s *GradeService) BacklogsForFaculty(ctx context.Context, actor models.Actor, facultyID string) ([]models.EnrollmentDetail, error) {
	if err := authorizeFaculty(actor, facultyID); err != nil {
		return nil, err
	}
	if _, err := s.catalog.GetFaculty(ctx, facultyID); err != nil {
		return nil, err
	}
	return s.list(ctx, models.EnrollmentFilter{FacultyID: facultyID, Status: models.EnrollmentStatusBacklog})
}

// BacklogsForStudent lists a student's backlog records.
func (s *GradeService) BacklogsForStudent(ctx context.Context, actor models.Actor, studentID string) ([]models.EnrollmentDetail, error) {
	if err := authorizeReader(actor, studentID); err != nil {
		return nil, err
	}
	return s.list(ctx, models.EnrollmentFilter{StudentID: studentID, Status: models.EnrollmentStatusBacklog})
}

// CompletedForStudent lists a student's completed records.
func (s *GradeService) CompletedForStudent(ctx context.Context, actor models.Actor, studentID string) ([]models.EnrollmentDetail, error) {
	if err := authorizeReader(actor, studentID); err != nil {
		return nil, err
	}
	return s.list(ctx, models.EnrollmentFilter{StudentID: studentID, Status: models.EnrollmentStatusCompleted})
}

// DegreeCompletions counts completed enrollments per course of a degree.
// Courses without completions are listed with a zero count.
func (s *GradeService) DegreeCompletions(ctx context.Context, actor models.Actor, degreeID string) (*models.DegreeCompletions, error) {
	if err := authorizeAdmin(actor); err != nil {
		return nil, err
	}
	courses, err := s.catalog.GetDegreeCourses(ctx, degreeID)
	if err != nil {
		return nil, err
	}
	completed, err := s.list(ctx, models.EnrollmentFilter{DegreeID: degreeID, Status: models.EnrollmentStatusCompleted})
	if err != nil {
		return nil, err
	}

	perCourse := make(map[string]int, len(courses))
	for _, e := range completed {
		perCourse[e.CourseID]++
	}
	summary := &models.DegreeCompletions{DegreeID: degreeID, Courses: make([]models.CourseCompletions, 0, len(courses))}
	for _, c := range courses {
		n := perCourse[c.ID]
		summary.Courses = append(summary.Courses, models.CourseCompletions{CourseID: c.ID, Name: c.Name, Semester: c.Semester, Completed: n})
		summary.TotalCompletions += n
	}
	return summary, nil
}

func (s *GradeService) list(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, error) {
	items, err := s.ledger.ListEnrollments(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	if items == nil {
		items = []models.EnrollmentDetail{}
	}
	return items, nil
}
