package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-registration-api/internal/dto"
	"github.com/noah-isme/course-registration-api/internal/models"
	appErrors "github.com/noah-isme/course-registration-api/pkg/errors"
)

func TestAllocateUsesCourseLimitOrOverride(t *testing.T) {
	engine := newTestEngine(t, 30)
	ctx := context.Background()

	allocation, err := engine.allocations.Allocate(ctx, adminActor, dto.AllocateRequest{CourseID: "CS302", FacultyID: "F1"})
	require.NoError(t, err)
	assert.Equal(t, 30, allocation.Capacity)

	allocation, err = engine.allocations.Allocate(ctx, adminActor, dto.AllocateRequest{CourseID: "CS304", FacultyID: "F1", Capacity: ptrInt(12)})
	require.NoError(t, err)
	assert.Equal(t, 12, allocation.Capacity)

	offerings, err := engine.allocations.ListOfferings(ctx, "CS302")
	require.NoError(t, err)
	require.Len(t, offerings, 2)
	assert.Equal(t, "F1", offerings[0].FacultyID)
	assert.Equal(t, "F2", offerings[1].FacultyID)
}

func TestAllocateRejections(t *testing.T) {
	engine := newTestEngine(t, 30)
	ctx := context.Background()

	_, err := engine.allocations.Allocate(ctx, adminActor, dto.AllocateRequest{CourseID: "CS301", FacultyID: "F1"})
	assert.ErrorIs(t, err, appErrors.ErrDuplicateAllocation)

	_, err = engine.allocations.Allocate(ctx, adminActor, dto.AllocateRequest{CourseID: "HS301", FacultyID: "F1"})
	assert.ErrorIs(t, err, appErrors.ErrIneligibleFaculty)

	_, err = engine.allocations.Allocate(ctx, adminActor, dto.AllocateRequest{CourseID: "CS999", FacultyID: "F1"})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	_, err = engine.allocations.Allocate(ctx, adminActor, dto.AllocateRequest{CourseID: "CS302", FacultyID: "F9"})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	_, err = engine.allocations.Allocate(ctx, adminActor, dto.AllocateRequest{CourseID: "CS302"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = engine.allocations.Allocate(ctx, facultyF1, dto.AllocateRequest{CourseID: "CS302", FacultyID: "F1"})
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestDeallocateWithActiveEnrollmentKeepsAllocation(t *testing.T) {
	engine := newTestEngine(t, 30)
	ctx := context.Background()
	_, err := engine.enrollments.Enroll(ctx, studentS1, fullLoad("S1"))
	require.NoError(t, err)

	err = engine.allocations.Deallocate(ctx, adminActor, sectionCS301)
	require.ErrorIs(t, err, appErrors.ErrHasActiveEnrollments)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 1, appErr.Details["activeEnrollments"])

	_, err = engine.store.FindAllocation(ctx, sectionCS301)
	assert.NoError(t, err)
}

func TestDeallocateAfterGradingSucceeds(t *testing.T) {
	engine := newTestEngine(t, 30)
	ctx := context.Background()
	_, err := engine.enrollments.Enroll(ctx, studentS1, fullLoad("S1"))
	require.NoError(t, err)
	id := engine.activeEnrollmentID(t, "S1", "CS301")
	_, err = engine.grades.PostGrade(ctx, facultyF1, id, dto.PostGradeRequest{Grade: ptrFloat(3)})
	require.NoError(t, err)

	require.NoError(t, engine.allocations.Deallocate(ctx, adminActor, sectionCS301))

	offerings, err := engine.allocations.ListOfferings(ctx, "CS301")
	require.NoError(t, err)
	assert.Empty(t, offerings)

	assert.ErrorIs(t, engine.allocations.Deallocate(ctx, adminActor, sectionCS301), appErrors.ErrNotFound)
	assert.ErrorIs(t, engine.allocations.Deallocate(ctx, facultyF1, sectionCS301), appErrors.ErrForbidden)
}

func TestOfferingViews(t *testing.T) {
	engine := newTestEngine(t, 1)
	ctx := context.Background()
	_, err := engine.enrollments.Enroll(ctx, studentS1, fullLoad("S1"))
	require.NoError(t, err)

	degree, err := engine.allocations.ListDegreeOfferings(ctx, "BTECH-CSE", 5)
	require.NoError(t, err)
	require.Len(t, degree, 5)
	assert.Equal(t, "CS301", degree[0].CourseID)
	assert.Equal(t, 0, degree[0].SeatsLeft)
	assert.Equal(t, 29, degree[1].SeatsLeft)

	none, err := engine.allocations.ListDegreeOfferings(ctx, "BTECH-CSE", 3)
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = engine.allocations.ListDegreeOfferings(ctx, "NOPE", 0)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	load, err := engine.allocations.ListFacultyLoad(ctx, facultyF1, "F1")
	require.NoError(t, err)
	assert.Equal(t, "Dr. Rao", load.Faculty.Name)
	require.Len(t, load.Offerings, 2)
	assert.Equal(t, []string{"CS301", "CS303"}, []string{load.Offerings[0].CourseID, load.Offerings[1].CourseID})

	_, err = engine.allocations.ListFacultyLoad(ctx, facultyF2, "F1")
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	usage, err := engine.allocations.Utilisation(ctx, adminActor)
	require.NoError(t, err)
	assert.Equal(t, 5, usage.Sections)
	assert.Equal(t, 151, usage.TotalCapacity)
	assert.Equal(t, 5, usage.ActiveSeats)

	_, err = engine.allocations.Utilisation(ctx, studentS1)
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestAllocateThenEnrollUsesNewSection(t *testing.T) {
	engine := newTestEngine(t, 1)
	ctx := context.Background()
	_, err := engine.enrollments.Enroll(ctx, studentS1, fullLoad("S1"))
	require.NoError(t, err)

	_, err = engine.allocations.Allocate(ctx, adminActor, dto.AllocateRequest{CourseID: "CS301", FacultyID: "F2", Capacity: ptrInt(5)})
	require.NoError(t, err)

	req := fullLoad("S2")
	req.Selections[0] = models.SectionKey{CourseID: "CS301", FacultyID: "F2"}
	_, err = engine.enrollments.Enroll(ctx, studentS2, req)
	require.NoError(t, err)
	assert.Equal(t, 1, engine.enrolledCount(t, models.SectionKey{CourseID: "CS301", FacultyID: "F2"}))
}
