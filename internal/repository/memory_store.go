package repository

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/course-registration-api/internal/models"
)

// MemoryStore keeps the catalog, allocations and enrollments in process. It
// offers the same locking contract as the Postgres repositories: WithLocks
// serialises callers per section and per student-course slot, and staged
// writes become visible only when the critical section returns nil.
type MemoryStore struct {
	mu          sync.RWMutex
	degrees     map[string]models.Degree
	courses     map[string]models.Course
	faculty     map[string]models.Faculty
	allocations map[models.SectionKey]models.Allocation
	enrollments map[string]models.Enrollment

	locks       *keyedLocks
	lockTimeout time.Duration
	logger      *zap.Logger
	now         func() time.Time
}

// NewMemoryStore constructs an empty store. lockTimeout bounds each lock wait.
func NewMemoryStore(lockTimeout time.Duration, logger *zap.Logger) *MemoryStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryStore{
		degrees:     make(map[string]models.Degree),
		courses:     make(map[string]models.Course),
		faculty:     make(map[string]models.Faculty),
		allocations: make(map[models.SectionKey]models.Allocation),
		enrollments: make(map[string]models.Enrollment),
		locks:       newKeyedLocks(),
		lockTimeout: lockTimeout,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Ping always succeeds.
func (s *MemoryStore) Ping(context.Context) error { return nil }

// UpsertDegree inserts or replaces a degree.
func (s *MemoryStore) UpsertDegree(_ context.Context, degree models.Degree) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.degrees[degree.ID] = degree
	return nil
}

// UpsertCourse inserts or replaces a course.
func (s *MemoryStore) UpsertCourse(_ context.Context, course models.Course) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.courses[course.ID] = course
	return nil
}

// UpsertFaculty inserts or replaces a faculty member.
func (s *MemoryStore) UpsertFaculty(_ context.Context, faculty models.Faculty) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faculty[faculty.ID] = faculty
	return nil
}

// GetDegree returns a degree or sql.ErrNoRows.
func (s *MemoryStore) GetDegree(_ context.Context, id string) (*models.Degree, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	degree, ok := s.degrees[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &degree, nil
}

// ListDegrees returns degrees ordered by ID, optionally filtered by type.
func (s *MemoryStore) ListDegrees(_ context.Context, degreeType models.DegreeType) ([]models.Degree, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	degrees := make([]models.Degree, 0, len(s.degrees))
	for _, d := range s.degrees {
		if degreeType != "" && d.Type != degreeType {
			continue
		}
		degrees = append(degrees, d)
	}
	sort.Slice(degrees, func(i, j int) bool { return degrees[i].ID < degrees[j].ID })
	return degrees, nil
}

// GetCourse returns a course or sql.ErrNoRows.
func (s *MemoryStore) GetCourse(_ context.Context, id string) (*models.Course, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	course, ok := s.courses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &course, nil
}

// GetDegreeCourses returns a degree's courses in semester order.
func (s *MemoryStore) GetDegreeCourses(_ context.Context, degreeID string) ([]models.Course, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	courses := make([]models.Course, 0)
	for _, c := range s.courses {
		if c.DegreeID == degreeID {
			courses = append(courses, c)
		}
	}
	sort.Slice(courses, func(i, j int) bool {
		a, b := courses[i], courses[j]
		if a.Semester != b.Semester {
			return a.Semester < b.Semester
		}
		return a.ID < b.ID
	})
	return courses, nil
}

// ListCourses returns every course ordered by degree, semester and ID.
func (s *MemoryStore) ListCourses(context.Context) ([]models.Course, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	courses := make([]models.Course, 0, len(s.courses))
	for _, c := range s.courses {
		courses = append(courses, c)
	}
	sort.Slice(courses, func(i, j int) bool {
		a, b := courses[i], courses[j]
		if a.DegreeID != b.DegreeID {
			return a.DegreeID < b.DegreeID
		}
		if a.Semester != b.Semester {
			return a.Semester < b.Semester
		}
		return a.ID < b.ID
	})
	return courses, nil
}

// GetFaculty returns a faculty member or sql.ErrNoRows.
func (s *MemoryStore) GetFaculty(_ context.Context, id string) (*models.Faculty, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	faculty, ok := s.faculty[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &faculty, nil
}

// ListFaculty returns faculty ordered by ID.
func (s *MemoryStore) ListFaculty(context.Context) ([]models.Faculty, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	faculty := make([]models.Faculty, 0, len(s.faculty))
	for _, f := range s.faculty {
		faculty = append(faculty, f)
	}
	sort.Slice(faculty, func(i, j int) bool { return faculty[i].ID < faculty[j].ID })
	return faculty, nil
}

// UpdateCourseLimits changes credits and seat limit of a course.
func (s *MemoryStore) UpdateCourseLimits(_ context.Context, id string, limits models.CourseLimits) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	course, ok := s.courses[id]
	if !ok {
		return sql.ErrNoRows
	}
	course.Credits = limits.Credits
	course.MaxEnroll = limits.MaxEnroll
	s.courses[id] = course
	return nil
}

// CreateAllocation inserts an allocation, returning ErrDuplicate if the pair exists.
func (s *MemoryStore) CreateAllocation(_ context.Context, allocation *models.Allocation) error {
	if allocation.CreatedAt.IsZero() {
		allocation.CreatedAt = s.now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := allocation.Key()
	if _, exists := s.allocations[key]; exists {
		return ErrDuplicate
	}
	s.allocations[key] = *allocation
	return nil
}

// FindAllocation returns an allocation or sql.ErrNoRows.
func (s *MemoryStore) FindAllocation(_ context.Context, key models.SectionKey) (*models.Allocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	allocation, ok := s.allocations[key]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &allocation, nil
}

// ListOfferings returns allocations joined with catalog names and live seat counts.
func (s *MemoryStore) ListOfferings(_ context.Context, filter models.OfferingFilter) ([]models.Offering, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	active := make(map[models.SectionKey]int)
	for _, e := range s.enrollments {
		if e.Status == models.EnrollmentStatusActive {
			active[e.Section()]++
		}
	}

	offerings := make([]models.Offering, 0)
	for key, a := range s.allocations {
		if filter.CourseID != "" && key.CourseID != filter.CourseID {
			continue
		}
		if filter.FacultyID != "" && key.FacultyID != filter.FacultyID {
			continue
		}
		course, ok := s.courses[key.CourseID]
		if !ok {
			continue
		}
		faculty, ok := s.faculty[key.FacultyID]
		if !ok {
			continue
		}
		if filter.DegreeID != "" && course.DegreeID != filter.DegreeID {
			continue
		}
		if filter.Semester > 0 && course.Semester != filter.Semester {
			continue
		}
		offering := models.Offering{
			Allocation:    a,
			CourseName:    course.Name,
			Credits:       course.Credits,
			Semester:      course.Semester,
			FacultyName:   faculty.Name,
			EnrolledCount: active[key],
		}
		offering.FillSeats()
		offerings = append(offerings, offering)
	}
	sort.Slice(offerings, func(i, j int) bool { return offerings[i].Key().Less(offerings[j].Key()) })
	return offerings, nil
}

// Utilisation aggregates capacity and active seats over every allocation.
func (s *MemoryStore) Utilisation(context.Context) (*models.Utilisation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	usage := models.Utilisation{Sections: len(s.allocations)}
	for _, a := range s.allocations {
		usage.TotalCapacity += a.Capacity
	}
	for _, e := range s.enrollments {
		if e.Status == models.EnrollmentStatusActive {
			usage.ActiveSeats++
		}
	}
	usage.Fill()
	return &usage, nil
}

// FindEnrollment returns an enrollment or sql.ErrNoRows.
func (s *MemoryStore) FindEnrollment(_ context.Context, id string) (*models.Enrollment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	enrollment, ok := s.enrollments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &enrollment, nil
}

// ListEnrollments returns matching enrollments ordered by grading time for
// terminal records and enrollment time otherwise.
func (s *MemoryStore) ListEnrollments(_ context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	details := make([]models.EnrollmentDetail, 0)
	for _, e := range s.enrollments {
		if filter.StudentID != "" && e.StudentID != filter.StudentID {
			continue
		}
		if filter.CourseID != "" && e.CourseID != filter.CourseID {
			continue
		}
		if filter.FacultyID != "" && e.FacultyID != filter.FacultyID {
			continue
		}
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		course, ok := s.courses[e.CourseID]
		if filter.DegreeID != "" && (!ok || course.DegreeID != filter.DegreeID) {
			continue
		}
		detail := models.EnrollmentDetail{Enrollment: e}
		if ok {
			detail.CourseName = course.Name
			detail.Credits = course.Credits
		}
		if faculty, ok := s.faculty[e.FacultyID]; ok {
			detail.FacultyName = faculty.Name
		}
		details = append(details, detail)
	}
	sort.Slice(details, func(i, j int) bool {
		a, b := sortTime(details[i].Enrollment), sortTime(details[j].Enrollment)
		if !a.Equal(b) {
			return a.Before(b)
		}
		return details[i].ID < details[j].ID
	})
	return details, nil
}

func sortTime(e models.Enrollment) time.Time {
	if e.GradedAt != nil {
		return *e.GradedAt
	}
	return e.EnrolledAt
}

// WithLocks acquires the scope's locks in global order, runs fn against a
// staging view and publishes the staged writes if fn succeeds.
func (s *MemoryStore) WithLocks(ctx context.Context, scope models.LockScope, fn func(LedgerTx) error) error {
	names := lockNames(scope.Normalize())
	release, err := s.locks.acquire(ctx, names, s.lockTimeout)
	if err != nil {
		if err == ErrLockTimeout {
			s.logger.Warn("lock wait timed out", zap.Strings("locks", names), zap.Duration("timeout", s.lockTimeout))
		}
		return err
	}
	defer release()

	tx := &memoryTx{
		store:        s,
		staged:       make(map[string]models.Enrollment),
		deleted:      make(map[string]struct{}),
		addedAlloc:   make(map[models.SectionKey]models.Allocation),
		droppedAlloc: make(map[models.SectionKey]struct{}),
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.commit(tx)
	return nil
}

func (s *MemoryStore) commit(tx *memoryTx) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range tx.deleted {
		delete(s.enrollments, id)
	}
	for id, e := range tx.staged {
		s.enrollments[id] = e
	}
	for key := range tx.droppedAlloc {
		delete(s.allocations, key)
	}
	for key, a := range tx.addedAlloc {
		s.allocations[key] = a
	}
}

// memoryTx overlays staged writes on the shared maps.
type memoryTx struct {
	store        *MemoryStore
	staged       map[string]models.Enrollment
	deleted      map[string]struct{}
	addedAlloc   map[models.SectionKey]models.Allocation
	droppedAlloc map[models.SectionKey]struct{}
}

func (t *memoryTx) Allocation(_ context.Context, key models.SectionKey) (*models.Allocation, error) {
	if a, added := t.addedAlloc[key]; added {
		return &a, nil
	}
	if _, dropped := t.droppedAlloc[key]; dropped {
		return nil, sql.ErrNoRows
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	allocation, ok := t.store.allocations[key]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &allocation, nil
}

// each visits the effective enrollment set: committed rows with staged
// changes applied, then rows inserted in this section.
func (t *memoryTx) each(visit func(models.Enrollment)) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	for id, e := range t.store.enrollments {
		if _, gone := t.deleted[id]; gone {
			continue
		}
		if staged, ok := t.staged[id]; ok {
			e = staged
		}
		visit(e)
	}
	for id, e := range t.staged {
		if _, committed := t.store.enrollments[id]; !committed {
			visit(e)
		}
	}
}

func (t *memoryTx) CountActive(_ context.Context, key models.SectionKey) (int, error) {
	count := 0
	t.each(func(e models.Enrollment) {
		if e.Status == models.EnrollmentStatusActive && e.Section() == key {
			count++
		}
	})
	return count, nil
}

func (t *memoryTx) HasActive(_ context.Context, studentID, courseID string) (bool, error) {
	found := false
	t.each(func(e models.Enrollment) {
		if e.Status == models.EnrollmentStatusActive && e.StudentID == studentID && e.CourseID == courseID {
			found = true
		}
	})
	return found, nil
}

func (t *memoryTx) FindEnrollment(_ context.Context, id string) (*models.Enrollment, error) {
	if _, gone := t.deleted[id]; gone {
		return nil, sql.ErrNoRows
	}
	if e, ok := t.staged[id]; ok {
		return &e, nil
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	e, ok := t.store.enrollments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &e, nil
}

func (t *memoryTx) InsertEnrollment(_ context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.EnrolledAt.IsZero() {
		enrollment.EnrolledAt = t.store.now()
	}
	if enrollment.Status == "" {
		enrollment.Status = models.EnrollmentStatusActive
	}
	if _, exists := t.staged[enrollment.ID]; exists {
		return ErrDuplicate
	}
	t.store.mu.RLock()
	_, exists := t.store.enrollments[enrollment.ID]
	t.store.mu.RUnlock()
	if exists {
		return ErrDuplicate
	}
	t.staged[enrollment.ID] = *enrollment
	return nil
}

func (t *memoryTx) GradeEnrollment(ctx context.Context, id string, status models.EnrollmentStatus, grade float64, gradedAt time.Time) error {
	current, err := t.FindEnrollment(ctx, id)
	if err != nil {
		return err
	}
	if current.Status != models.EnrollmentStatusActive {
		return sql.ErrNoRows
	}
	g := grade
	at := gradedAt
	current.Status = status
	current.Grade = &g
	current.GradedAt = &at
	t.staged[id] = *current
	return nil
}

func (t *memoryTx) DeleteEnrollment(ctx context.Context, id string) error {
	current, err := t.FindEnrollment(ctx, id)
	if err != nil {
		return err
	}
	if current.Status != models.EnrollmentStatusActive {
		return sql.ErrNoRows
	}
	delete(t.staged, id)
	t.deleted[id] = struct{}{}
	return nil
}

func (t *memoryTx) InsertAllocation(ctx context.Context, allocation *models.Allocation) error {
	if _, err := t.Allocation(ctx, allocation.Key()); err == nil {
		return ErrDuplicate
	}
	if allocation.CreatedAt.IsZero() {
		allocation.CreatedAt = t.store.now()
	}
	delete(t.droppedAlloc, allocation.Key())
	t.addedAlloc[allocation.Key()] = *allocation
	return nil
}

func (t *memoryTx) DeleteAllocation(ctx context.Context, key models.SectionKey) error {
	if _, err := t.Allocation(ctx, key); err != nil {
		return err
	}
	delete(t.addedAlloc, key)
	t.droppedAlloc[key] = struct{}{}
	return nil
}
