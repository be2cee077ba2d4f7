package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/course-registration-api/internal/dto"
	"github.com/noah-isme/course-registration-api/internal/models"
	"github.com/noah-isme/course-registration-api/internal/repository"
	appErrors "github.com/noah-isme/course-registration-api/pkg/errors"
	"github.com/noah-isme/course-registration-api/pkg/export"
)

// EnrollmentConfig carries the registration rules.
type EnrollmentConfig struct {
	MinCredits int
	MaxRetries int
}

// EnrollmentService reserves and releases seats for students.
type EnrollmentService struct {
	catalog   catalogLookup
	offerings OfferingReader
	ledger    Ledger
	runner    lockedRunner
	cfg       EnrollmentConfig
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewEnrollmentService constructs the service.
func NewEnrollmentService(
	catalog catalogLookup,
	offerings OfferingReader,
	ledger Ledger,
	cfg EnrollmentConfig,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{
		catalog:   catalog,
		offerings: offerings,
		ledger:    ledger,
		runner:    lockedRunner{ledger: ledger, metrics: metrics, logger: logger, maxRetries: cfg.MaxRetries},
		cfg:       cfg,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
	}
}

type resolvedSelection struct {
	key    models.SectionKey
	course *models.Course
	alloc  *models.Allocation
}

// Enroll registers a student into every selected section or none of them.
// All rules are checked under the section and student locks before the
// first insert.
func (s *EnrollmentService) Enroll(ctx context.Context, actor models.Actor, req dto.EnrollRequest) (result *dto.EnrollResult, err error) {
	studentID := req.StudentID
	if studentID == "" && actor.Role == models.RoleStudent {
		studentID = actor.ID
	}
	defer func() {
		s.metrics.RecordOperation("enroll", err)
		logOutcome(s.logger, "enroll", err, zap.String("student_id", studentID), zap.Int("selections", len(req.Selections)), zap.String("actor_id", actor.ID))
	}()

	// Only a student may omit the id; anyone else must name the student.
	if studentID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student_id is required")
	}
	if err := authorizeStudent(actor, studentID); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}
	selection, err := models.NewSelectionSet(req.Selections)
	if err != nil {
		return nil, selectionError(err)
	}

	scope := models.LockScope{Sections: selection.Sections()}
	for _, courseID := range selection.CourseIDs() {
		scope.Students = append(scope.Students, models.StudentCourseKey{StudentID: studentID, CourseID: courseID})
	}

	err = s.runner.run(ctx, "enroll", scope, func(tx repository.LedgerTx) error {
		resolved, err := s.resolve(ctx, tx, selection)
		if err != nil {
			return err
		}

		for _, r := range resolved {
			active, err := tx.HasActive(ctx, studentID, r.key.CourseID)
			if err != nil {
				return err
			}
			if active {
				return appErrors.WithDetails(appErrors.ErrAlreadyEnrolled, "", map[string]interface{}{"courseId": r.key.CourseID})
			}
		}

		credits := 0
		for _, r := range resolved {
			credits += r.course.Credits
		}
		if credits < s.cfg.MinCredits {
			return appErrors.WithDetails(appErrors.ErrInsufficientCredits,
				fmt.Sprintf("selected %d credits, at least %d required", credits, s.cfg.MinCredits),
				map[string]interface{}{
					"required":  s.cfg.MinCredits,
					"selected":  credits,
					"shortfall": s.cfg.MinCredits - credits,
				})
		}

		for _, r := range resolved {
			enrolled, err := tx.CountActive(ctx, r.key)
			if err != nil {
				return err
			}
			if enrolled >= r.alloc.Capacity {
				return appErrors.WithDetails(appErrors.ErrSectionFull, "", map[string]interface{}{
					"courseId":  r.key.CourseID,
					"facultyId": r.key.FacultyID,
					"capacity":  r.alloc.Capacity,
				})
			}
		}

		now := time.Now().UTC()
		created := make([]models.Enrollment, 0, len(resolved))
		for _, r := range resolved {
			enrollment := models.Enrollment{
				StudentID:  studentID,
				CourseID:   r.key.CourseID,
				FacultyID:  r.key.FacultyID,
				Semester:   r.course.Semester,
				Status:     models.EnrollmentStatusActive,
				EnrolledAt: now,
			}
			if err := tx.InsertEnrollment(ctx, &enrollment); err != nil {
				return err
			}
			created = append(created, enrollment)
		}
		result = &dto.EnrollResult{Enrollments: created, Credits: credits}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *EnrollmentService) resolve(ctx context.Context, tx repository.LedgerTx, selection models.SelectionSet) ([]resolvedSelection, error) {
	resolved := make([]resolvedSelection, 0, selection.Len())
	for _, key := range selection.Sections() {
		invalid := appErrors.WithDetails(appErrors.ErrInvalidSelection, "", map[string]interface{}{
			"courseId":  key.CourseID,
			"facultyId": key.FacultyID,
		})
		alloc, err := tx.Allocation(ctx, key)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, invalid
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load allocation")
		}
		course, err := s.catalog.GetCourse(ctx, key.CourseID)
		if err != nil {
			if appErrors.HasCode(err, appErrors.ErrNotFound.Code) {
				return nil, invalid
			}
			return nil, err
		}
		resolved = append(resolved, resolvedSelection{key: key, course: course, alloc: alloc})
	}
	return resolved, nil
}

func selectionError(err error) error {
	var selErr *models.SelectionError
	if !errors.As(err, &selErr) {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid selections")
	}
	if selErr.Reason == models.SelectionReasonDuplicate {
		return appErrors.WithDetails(appErrors.ErrDuplicateCourseSelection, "", map[string]interface{}{"courseId": selErr.CourseID})
	}
	return appErrors.Clone(appErrors.ErrValidation, selErr.Error())
}

// Withdraw drops an active enrollment and frees its seat.
func (s *EnrollmentService) Withdraw(ctx context.Context, actor models.Actor, enrollmentID string) (err error) {
	defer func() {
		s.metrics.RecordOperation("withdraw", err)
		logOutcome(s.logger, "withdraw", err, zap.String("enrollment_id", enrollmentID), zap.String("actor_id", actor.ID))
	}()

	current, err := s.ledger.FindEnrollment(ctx, enrollmentID)
	if err != nil {
		return notFoundOr(err, "enrollment not found", "failed to load enrollment")
	}
	if err := authorizeStudent(actor, current.StudentID); err != nil {
		return err
	}
	if current.Status.Terminal() {
		return appErrors.Clone(appErrors.ErrNotFound, "active enrollment not found")
	}

	scope := models.LockScope{
		Sections: []models.SectionKey{current.Section()},
		Students: []models.StudentCourseKey{{StudentID: current.StudentID, CourseID: current.CourseID}},
	}
	return s.runner.run(ctx, "withdraw", scope, func(tx repository.LedgerTx) error {
		locked, err := tx.FindEnrollment(ctx, enrollmentID)
		if err != nil {
			return notFoundOr(err, "enrollment not found", "failed to load enrollment")
		}
		if locked.Status.Terminal() {
			return appErrors.Clone(appErrors.ErrNotFound, "active enrollment not found")
		}
		if err := tx.DeleteEnrollment(ctx, enrollmentID); err != nil {
			return notFoundOr(err, "active enrollment not found", "failed to delete enrollment")
		}
		return nil
	})
}

// ListForStudent returns every enrollment record of a student, terminal ones included.
func (s *EnrollmentService) ListForStudent(ctx context.Context, actor models.Actor, studentID string) ([]models.EnrollmentDetail, error) {
	if err := authorizeReader(actor, studentID); err != nil {
		return nil, err
	}
	return s.list(ctx, models.EnrollmentFilter{StudentID: studentID})
}

// SectionRoster returns the active enrollments of a section.
func (s *EnrollmentService) SectionRoster(ctx context.Context, actor models.Actor, key models.SectionKey) ([]models.EnrollmentDetail, error) {
	if err := authorizeFaculty(actor, key.FacultyID); err != nil {
		return nil, err
	}
	if _, err := s.offerings.FindAllocation(ctx, key); err != nil {
		return nil, notFoundOr(err, "section not found", "failed to load section")
	}
	return s.list(ctx, models.EnrollmentFilter{CourseID: key.CourseID, FacultyID: key.FacultyID, Status: models.EnrollmentStatusActive})
}

// ExportRoster renders the section roster as CSV or PDF.
func (s *EnrollmentService) ExportRoster(ctx context.Context, actor models.Actor, key models.SectionKey, format export.Format) (*export.Document, error) {
	roster, err := s.SectionRoster(ctx, actor, key)
	if err != nil {
		return nil, err
	}
	data := export.Dataset{
		Title:   "Section Roster",
		Headers: []string{"Student ID", "Enrollment ID", "Semester", "Enrolled At"},
		Rows:    make([]map[string]string, 0, len(roster)),
	}
	if len(roster) > 0 {
		data.Subtitle = fmt.Sprintf("%s %s / %s", roster[0].CourseID, roster[0].CourseName, roster[0].FacultyName)
	} else {
		data.Subtitle = key.String()
	}
	for _, e := range roster {
		data.Rows = append(data.Rows, map[string]string{
			"Student ID":    e.StudentID,
			"Enrollment ID": e.ID,
			"Semester":      fmt.Sprintf("%d", e.Semester),
			"Enrolled At":   e.EnrolledAt.Format(time.RFC3339),
		})
	}
	doc, err := export.Render(format, fmt.Sprintf("roster-%s-%s", key.CourseID, key.FacultyID), data)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render roster")
	}
	return doc, nil
}

func (s *EnrollmentService) list(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, error) {
	items, err := s.ledger.ListEnrollments(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	if items == nil {
		items = []models.EnrollmentDetail{}
	}
	return items, nil
}
