package service

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/course-registration-api/internal/dto"
	"github.com/noah-isme/course-registration-api/internal/models"
	"github.com/noah-isme/course-registration-api/internal/repository"
)

var (
	adminActor   = models.Actor{ID: "admin", Role: models.RoleAdmin}
	facultyF1    = models.Actor{ID: "F1", Role: models.RoleFaculty}
	facultyF2    = models.Actor{ID: "F2", Role: models.RoleFaculty}
	studentS1    = models.Actor{ID: "S1", Role: models.RoleStudent}
	studentS2    = models.Actor{ID: "S2", Role: models.RoleStudent}
	sectionCS301 = models.SectionKey{CourseID: "CS301", FacultyID: "F1"}
)

// testEngine wires every registration service over one in-memory store.
type testEngine struct {
	store       *repository.MemoryStore
	metrics     *MetricsService
	catalog     *CatalogService
	allocations *AllocationService
	enrollments *EnrollmentService
	grades      *GradeService
}

// newTestEngine seeds five 4-credit semester-5 courses. CS301/F1 holds
// cs301Capacity seats; every other section holds 30.
func newTestEngine(t *testing.T, cs301Capacity int) *testEngine {
	t.Helper()
	ctx := context.Background()
	store := repository.NewMemoryStore(500*time.Millisecond, nil)

	require.NoError(t, store.UpsertDegree(ctx, models.Degree{ID: "BTECH-CSE", Name: "B.Tech CSE", Type: models.DegreeTypeUG}))
	require.NoError(t, store.UpsertDegree(ctx, models.Degree{ID: "MTECH-CSE", Name: "M.Tech CSE", Type: models.DegreeTypePG}))
	courses := []models.Course{
		{ID: "CS301", Name: "Operating Systems", Credits: 4, MaxEnroll: cs301Capacity, Department: "CSE"},
		{ID: "CS302", Name: "Database Systems", Credits: 4, MaxEnroll: 30, Department: "CSE"},
		{ID: "CS303", Name: "Computer Networks", Credits: 4, MaxEnroll: 30, Department: "CSE"},
		{ID: "CS304", Name: "Theory of Computation", Credits: 4, MaxEnroll: 30, Department: "CSE"},
		{ID: "HS301", Name: "Engineering Economics", Credits: 4, MaxEnroll: 60, Department: "HSS"},
	}
	for _, c := range courses {
		c.DegreeID, c.Year, c.Semester = "BTECH-CSE", 3, 5
		require.NoError(t, store.UpsertCourse(ctx, c))
	}
	require.NoError(t, store.UpsertFaculty(ctx, models.Faculty{ID: "F1", Name: "Dr. Rao", Department: "CSE"}))
	require.NoError(t, store.UpsertFaculty(ctx, models.Faculty{ID: "F2", Name: "Dr. Iyer", Department: "CSE"}))
	require.NoError(t, store.UpsertFaculty(ctx, models.Faculty{ID: "F3", Name: "Dr. Sen", Department: "HSS"}))

	sections := []models.Allocation{
		{CourseID: "CS301", FacultyID: "F1", Capacity: cs301Capacity},
		{CourseID: "CS302", FacultyID: "F2", Capacity: 30},
		{CourseID: "CS303", FacultyID: "F1", Capacity: 30},
		{CourseID: "CS304", FacultyID: "F2", Capacity: 30},
		{CourseID: "HS301", FacultyID: "F3", Capacity: 60},
	}
	for i := range sections {
		require.NoError(t, store.CreateAllocation(ctx, &sections[i]))
	}

	validate := validator.New()
	logger := zap.NewNop()
	metrics := NewMetricsService()
	catalog := NewCatalogService(store, nil, validate, logger)

	return &testEngine{
		store:       store,
		metrics:     metrics,
		catalog:     catalog,
		allocations: NewAllocationService(catalog, store, store, AllocationConfig{EnforceDepartment: true, MaxRetries: 1}, metrics, validate, logger),
		enrollments: NewEnrollmentService(catalog, store, store, EnrollmentConfig{MinCredits: 20, MaxRetries: 1}, metrics, validate, logger),
		grades:      NewGradeService(store, catalog, GradeConfig{PassingGrade: 2.0, MaxRetries: 1}, metrics, validate, logger),
	}
}

// fullLoad selects all five seeded sections, 20 credits in total.
func fullLoad(studentID string) dto.EnrollRequest {
	return dto.EnrollRequest{
		StudentID: studentID,
		Selections: []models.SectionKey{
			{CourseID: "CS301", FacultyID: "F1"},
			{CourseID: "CS302", FacultyID: "F2"},
			{CourseID: "CS303", FacultyID: "F1"},
			{CourseID: "CS304", FacultyID: "F2"},
			{CourseID: "HS301", FacultyID: "F3"},
		},
	}
}

func (e *testEngine) enrolledCount(t *testing.T, key models.SectionKey) int {
	t.Helper()
	offerings, err := e.store.ListOfferings(context.Background(), models.OfferingFilter{CourseID: key.CourseID, FacultyID: key.FacultyID})
	require.NoError(t, err)
	require.Len(t, offerings, 1)
	return offerings[0].EnrolledCount
}

func (e *testEngine) activeEnrollmentID(t *testing.T, studentID, courseID string) string {
	t.Helper()
	items, err := e.store.ListEnrollments(context.Background(), models.EnrollmentFilter{StudentID: studentID, CourseID: courseID, Status: models.EnrollmentStatusActive})
	require.NoError(t, err)
	require.Len(t, items, 1)
	return items[0].ID
}

func ptrFloat(v float64) *float64 { return &v }

func ptrInt(v int) *int { return &v }
