package service

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/course-registration-api/internal/dto"
	"github.com/noah-isme/course-registration-api/internal/models"
	appErrors "github.com/noah-isme/course-registration-api/pkg/errors"
	"github.com/noah-isme/course-registration-api/pkg/export"
)

func TestEnrollLastSeatThenSectionFull(t *testing.T) {
	engine := newTestEngine(t, 1)
	ctx := context.Background()

	result, err := engine.enrollments.Enroll(ctx, studentS1, fullLoad(""))
	require.NoError(t, err)
	assert.Equal(t, 20, result.Credits)
	require.Len(t, result.Enrollments, 5)
	for _, e := range result.Enrollments {
		assert.Equal(t, "S1", e.StudentID)
		assert.Equal(t, models.EnrollmentStatusActive, e.Status)
		assert.NotEmpty(t, e.ID)
	}
	assert.Equal(t, 1, engine.enrolledCount(t, sectionCS301))

	_, err = engine.enrollments.Enroll(ctx, studentS2, fullLoad(""))
	require.ErrorIs(t, err, appErrors.ErrSectionFull)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "CS301", appErr.Details["courseId"])
	assert.Equal(t, 1, appErr.Details["capacity"])

	s2, err := engine.enrollments.ListForStudent(ctx, studentS2, "S2")
	require.NoError(t, err)
	assert.Empty(t, s2, "a rejected request must not leave partial enrollments")
	assert.Equal(t, 1, engine.enrolledCount(t, models.SectionKey{CourseID: "CS302", FacultyID: "F2"}))
	assert.Equal(t, float64(1), testutil.ToFloat64(engine.metrics.operations.WithLabelValues("enroll", appErrors.ErrSectionFull.Code)))
}

func TestEnrollBelowMinimumCreditsWritesNothing(t *testing.T) {
	engine := newTestEngine(t, 30)
	req := fullLoad("S1")
	req.Selections = req.Selections[:4]

	_, err := engine.enrollments.Enroll(context.Background(), studentS1, req)
	require.ErrorIs(t, err, appErrors.ErrInsufficientCredits)

	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 20, appErr.Details["required"])
	assert.Equal(t, 16, appErr.Details["selected"])
	assert.Equal(t, 4, appErr.Details["shortfall"])

	for _, key := range req.Selections {
		assert.Zero(t, engine.enrolledCount(t, key))
	}
}

func TestEnrollRejectsSecondSectionOfSameCourse(t *testing.T) {
	engine := newTestEngine(t, 30)
	req := fullLoad("S1")
	req.Selections = append(req.Selections, models.SectionKey{CourseID: "CS301", FacultyID: "F2"})

	_, err := engine.enrollments.Enroll(context.Background(), studentS1, req)
	require.ErrorIs(t, err, appErrors.ErrDuplicateCourseSelection)
	assert.Zero(t, engine.enrolledCount(t, sectionCS301))
}

func TestEnrollRejectsUnallocatedSection(t *testing.T) {
	engine := newTestEngine(t, 30)
	req := fullLoad("S1")
	req.Selections[0] = models.SectionKey{CourseID: "CS301", FacultyID: "F3"}

	_, err := engine.enrollments.Enroll(context.Background(), studentS1, req)
	require.ErrorIs(t, err, appErrors.ErrInvalidSelection)

	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "F3", appErr.Details["facultyId"])
	assert.Zero(t, engine.enrolledCount(t, models.SectionKey{CourseID: "CS302", FacultyID: "F2"}))
}

func TestEnrollRejectsActiveCourse(t *testing.T) {
	engine := newTestEngine(t, 30)
	ctx := context.Background()
	_, err := engine.enrollments.Enroll(ctx, studentS1, fullLoad("S1"))
	require.NoError(t, err)

	_, err = engine.enrollments.Enroll(ctx, studentS1, fullLoad("S1"))
	require.ErrorIs(t, err, appErrors.ErrAlreadyEnrolled)
	assert.Equal(t, 1, engine.enrolledCount(t, sectionCS301))
}

func TestEnrollValidationAndPolicy(t *testing.T) {
	engine := newTestEngine(t, 30)
	ctx := context.Background()

	_, err := engine.enrollments.Enroll(ctx, studentS1, dto.EnrollRequest{})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = engine.enrollments.Enroll(ctx, studentS2, fullLoad("S1"))
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = engine.enrollments.Enroll(ctx, facultyF1, fullLoad("S1"))
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = engine.enrollments.Enroll(ctx, adminActor, fullLoad(""))
	require.ErrorIs(t, err, appErrors.ErrValidation)
	assert.Equal(t, "student_id is required", appErrors.FromError(err).Message)
	assert.Equal(t, 0, engine.enrolledCount(t, sectionCS301))
	history, err := engine.enrollments.ListForStudent(ctx, adminActor, adminActor.ID)
	require.NoError(t, err)
	assert.Empty(t, history)

	_, err = engine.enrollments.Enroll(ctx, facultyF1, fullLoad(""))
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	self, err := engine.enrollments.Enroll(ctx, studentS2, fullLoad(""))
	require.NoError(t, err)
	assert.Equal(t, "S2", self.Enrollments[0].StudentID)

	result, err := engine.enrollments.Enroll(ctx, adminActor, fullLoad("S1"))
	require.NoError(t, err)
	assert.Equal(t, "S1", result.Enrollments[0].StudentID)
	assert.Equal(t, 2, engine.enrolledCount(t, sectionCS301))
}

func TestEnrollCanceledByCaller(t *testing.T) {
	engine := newTestEngine(t, 30)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.enrollments.Enroll(ctx, studentS1, fullLoad("S1"))
	require.ErrorIs(t, err, appErrors.ErrRequestCanceled)
	assert.Equal(t, appErrors.StatusClientClosedRequest, appErrors.FromError(err).Status)
	assert.Equal(t, 0, engine.enrolledCount(t, sectionCS301))
	assert.Equal(t, float64(1), testutil.ToFloat64(engine.metrics.operations.WithLabelValues("enroll", appErrors.ErrRequestCanceled.Code)))
	assert.Equal(t, float64(0), testutil.ToFloat64(engine.metrics.operations.WithLabelValues("enroll", appErrors.ErrInternal.Code)))
}

func TestEnrollConcurrentRaceForLastSeat(t *testing.T) {
	engine := newTestEngine(t, 1)
	const students = 20

	var succeeded, full int32
	var g errgroup.Group
	for i := 0; i < students; i++ {
		studentID := fmt.Sprintf("S%02d", i)
		g.Go(func() error {
			actor := models.Actor{ID: studentID, Role: models.RoleStudent}
			_, err := engine.enrollments.Enroll(context.Background(), actor, fullLoad(studentID))
			switch {
			case err == nil:
				atomic.AddInt32(&succeeded, 1)
			case appErrors.HasCode(err, appErrors.ErrSectionFull.Code):
				atomic.AddInt32(&full, 1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(1), succeeded)
	assert.Equal(t, int32(students-1), full)
	assert.Equal(t, 1, engine.enrolledCount(t, sectionCS301))
	assert.Equal(t, 1, engine.enrolledCount(t, models.SectionKey{CourseID: "HS301", FacultyID: "F3"}))
}

func TestEnrollConcurrentSameStudentKeepsOneActiveRecord(t *testing.T) {
	engine := newTestEngine(t, 30)

	var g errgroup.Group
	var succeeded int32
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			_, err := engine.enrollments.Enroll(context.Background(), studentS1, fullLoad("S1"))
			if err == nil {
				atomic.AddInt32(&succeeded, 1)
				return nil
			}
			if appErrors.HasCode(err, appErrors.ErrAlreadyEnrolled.Code) {
				return nil
			}
			return err
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(1), succeeded)
	assert.Equal(t, 1, engine.enrolledCount(t, sectionCS301))
}

func TestWithdrawFreesSeat(t *testing.T) {
	engine := newTestEngine(t, 1)
	ctx := context.Background()
	_, err := engine.enrollments.Enroll(ctx, studentS1, fullLoad("S1"))
	require.NoError(t, err)
	id := engine.activeEnrollmentID(t, "S1", "CS301")

	require.ErrorIs(t, engine.enrollments.Withdraw(ctx, studentS2, id), appErrors.ErrForbidden)
	require.NoError(t, engine.enrollments.Withdraw(ctx, studentS1, id))
	assert.Zero(t, engine.enrolledCount(t, sectionCS301))

	assert.ErrorIs(t, engine.enrollments.Withdraw(ctx, studentS1, id), appErrors.ErrNotFound)
	assert.ErrorIs(t, engine.enrollments.Withdraw(ctx, studentS1, "missing"), appErrors.ErrNotFound)
}

func TestWithdrawGradedEnrollmentIsNotFound(t *testing.T) {
	engine := newTestEngine(t, 30)
	ctx := context.Background()
	_, err := engine.enrollments.Enroll(ctx, studentS1, fullLoad("S1"))
	require.NoError(t, err)
	id := engine.activeEnrollmentID(t, "S1", "CS301")

	_, err = engine.grades.PostGrade(ctx, facultyF1, id, dto.PostGradeRequest{Grade: ptrFloat(3)})
	require.NoError(t, err)

	assert.ErrorIs(t, engine.enrollments.Withdraw(ctx, studentS1, id), appErrors.ErrNotFound)
}

func TestSectionRosterAndExport(t *testing.T) {
	engine := newTestEngine(t, 30)
	ctx := context.Background()
	for _, actor := range []models.Actor{studentS1, studentS2} {
		_, err := engine.enrollments.Enroll(ctx, actor, fullLoad(actor.ID))
		require.NoError(t, err)
	}

	roster, err := engine.enrollments.SectionRoster(ctx, facultyF1, sectionCS301)
	require.NoError(t, err)
	require.Len(t, roster, 2)
	assert.Equal(t, "Operating Systems", roster[0].CourseName)

	_, err = engine.enrollments.SectionRoster(ctx, facultyF2, sectionCS301)
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = engine.enrollments.SectionRoster(ctx, adminActor, models.SectionKey{CourseID: "CS301", FacultyID: "F3"})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	doc, err := engine.enrollments.ExportRoster(ctx, facultyF1, sectionCS301, export.FormatCSV)
	require.NoError(t, err)
	assert.Equal(t, "roster-CS301-F1.csv", doc.Filename)
	body := string(doc.Body)
	assert.True(t, strings.HasPrefix(body, "Student ID,Enrollment ID,Semester,Enrolled At"))
	assert.Contains(t, body, "S1,")
	assert.Contains(t, body, "S2,")

	pdf, err := engine.enrollments.ExportRoster(ctx, adminActor, sectionCS301, export.FormatPDF)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(pdf.Body), "%PDF"))
}

func TestListForStudentPolicy(t *testing.T) {
	engine := newTestEngine(t, 30)
	ctx := context.Background()

	items, err := engine.enrollments.ListForStudent(ctx, studentS1, "S1")
	require.NoError(t, err)
	assert.NotNil(t, items)

	_, err = engine.enrollments.ListForStudent(ctx, studentS1, "S2")
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}
