package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/course-registration-api/internal/models"
	"github.com/noah-isme/course-registration-api/pkg/database"
)

const activeEnrollmentIndex = "enrollments_one_active_idx"

const enrollmentColumns = "id, student_id, course_id, faculty_id, semester, status, grade, enrolled_at, graded_at"

// EnrollmentRepository handles persistence of enrollments and the locked
// sections that mutate them.
type EnrollmentRepository struct {
	db          *sqlx.DB
	sb          sq.StatementBuilderType
	lockTimeout time.Duration
}

// NewEnrollmentRepository constructs the repository. lockTimeout bounds every
// row and advisory lock wait inside WithLocks.
func NewEnrollmentRepository(db *sqlx.DB, lockTimeout time.Duration) *EnrollmentRepository {
	return &EnrollmentRepository{
		db:          db,
		sb:          sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		lockTimeout: lockTimeout,
	}
}

// WithLocks runs fn in one transaction after locking every allocation row in
// scope (FOR UPDATE, course/faculty order) and every student-course slot
// (transaction advisory locks, student/course order). The transaction is
// rolled back when fn fails or ctx is cancelled.
func (r *EnrollmentRepository) WithLocks(ctx context.Context, scope models.LockScope, fn func(LedgerTx) error) (err error) {
	scope = scope.Normalize()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin registration transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if r.lockTimeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", r.lockTimeout.Milliseconds())
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return classifyTxError(fmt.Errorf("set lock timeout: %w", err))
		}
	}

	if len(scope.Sections) > 0 {
		if err = r.lockSections(ctx, tx, scope.Sections); err != nil {
			return classifyTxError(err)
		}
	}

	for _, slot := range scope.Students {
		if _, err = tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, slot.StudentID+"/"+slot.CourseID); err != nil {
			return classifyTxError(fmt.Errorf("lock student course slot: %w", err))
		}
	}

	if err = fn(&pgLedgerTx{tx: tx}); err != nil {
		return classifyTxError(err)
	}

	if err = tx.Commit(); err != nil {
		return classifyTxError(fmt.Errorf("commit registration transaction: %w", err))
	}
	return nil
}

func (r *EnrollmentRepository) lockSections(ctx context.Context, tx *sqlx.Tx, keys []models.SectionKey) error {
	match := make(sq.Or, 0, len(keys))
	for _, k := range keys {
		match = append(match, sq.Eq{"course_id": k.CourseID, "faculty_id": k.FacultyID})
	}
	query, args, err := r.sb.Select("course_id", "faculty_id").
		From("allocations").
		Where(match).
		OrderBy("course_id", "faculty_id").
		Suffix("FOR UPDATE").
		ToSql()
	if err != nil {
		return fmt.Errorf("build section lock query: %w", err)
	}
	rows, err := tx.QueryxContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("lock sections: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("lock sections: %w", err)
	}
	return nil
}

func classifyTxError(err error) error {
	switch {
	case err == nil:
		return nil
	case database.IsLockTimeout(err):
		return fmt.Errorf("%w: %v", ErrLockTimeout, err)
	case database.IsQueryCanceled(err):
		return fmt.Errorf("%w: %v", context.Canceled, err)
	case database.IsRetryable(err), database.IsUniqueViolation(err, activeEnrollmentIndex):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	default:
		return err
	}
}

// FindEnrollment returns an enrollment by its ID without locking it.
func (r *EnrollmentRepository) FindEnrollment(ctx context.Context, id string) (*models.Enrollment, error) {
	query := "SELECT " + enrollmentColumns + " FROM enrollments WHERE id = $1"
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// ListEnrollments returns enrollments with course and faculty names, ordered
// by grading time for terminal records and enrollment time otherwise.
func (r *EnrollmentRepository) ListEnrollments(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, error) {
	builder := r.sb.Select(
		"e.id", "e.student_id", "e.course_id", "e.faculty_id", "e.semester", "e.status", "e.grade", "e.enrolled_at", "e.graded_at",
		"c.name AS course_name", "c.credits", "f.name AS faculty_name",
	).
		From("enrollments e").
		Join("courses c ON c.id = e.course_id").
		Join("faculty f ON f.id = e.faculty_id")

	if filter.StudentID != "" {
		builder = builder.Where(sq.Eq{"e.student_id": filter.StudentID})
	}
	if filter.CourseID != "" {
		builder = builder.Where(sq.Eq{"e.course_id": filter.CourseID})
	}
	if filter.FacultyID != "" {
		builder = builder.Where(sq.Eq{"e.faculty_id": filter.FacultyID})
	}
	if filter.DegreeID != "" {
		builder = builder.Where(sq.Eq{"c.degree_id": filter.DegreeID})
	}
	if filter.Status != "" {
		builder = builder.Where(sq.Eq{"e.status": filter.Status})
	}

	query, args, err := builder.OrderBy("COALESCE(e.graded_at, e.enrolled_at) ASC", "e.id ASC").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build enrollment list query: %w", err)
	}
	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}
	return enrollments, nil
}

type pgLedgerTx struct {
	tx *sqlx.Tx
}

func (t *pgLedgerTx) Allocation(ctx context.Context, key models.SectionKey) (*models.Allocation, error) {
	const query = `SELECT course_id, faculty_id, capacity, created_at FROM allocations WHERE course_id = $1 AND faculty_id = $2`
	var allocation models.Allocation
	if err := t.tx.GetContext(ctx, &allocation, query, key.CourseID, key.FacultyID); err != nil {
		return nil, err
	}
	return &allocation, nil
}

func (t *pgLedgerTx) CountActive(ctx context.Context, key models.SectionKey) (int, error) {
	const query = `SELECT COUNT(*) FROM enrollments WHERE course_id = $1 AND faculty_id = $2 AND status = $3`
	var count int
	if err := t.tx.GetContext(ctx, &count, query, key.CourseID, key.FacultyID, models.EnrollmentStatusActive); err != nil {
		return 0, fmt.Errorf("count active enrollments: %w", err)
	}
	return count, nil
}

func (t *pgLedgerTx) HasActive(ctx context.Context, studentID, courseID string) (bool, error) {
	const query = `SELECT 1 FROM enrollments WHERE student_id = $1 AND course_id = $2 AND status = $3 LIMIT 1`
	var exists int
	if err := t.tx.GetContext(ctx, &exists, query, studentID, courseID, models.EnrollmentStatusActive); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check active enrollment: %w", err)
	}
	return true, nil
}

func (t *pgLedgerTx) FindEnrollment(ctx context.Context, id string) (*models.Enrollment, error) {
	query := "SELECT " + enrollmentColumns + " FROM enrollments WHERE id = $1 FOR UPDATE"
	var enrollment models.Enrollment
	if err := t.tx.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

func (t *pgLedgerTx) InsertEnrollment(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.EnrolledAt.IsZero() {
		enrollment.EnrolledAt = time.Now().UTC()
	}
	if enrollment.Status == "" {
		enrollment.Status = models.EnrollmentStatusActive
	}
	const query = `INSERT INTO enrollments (id, student_id, course_id, faculty_id, semester, status, grade, enrolled_at, graded_at)
        VALUES (:id, :student_id, :course_id, :faculty_id, :semester, :status, :grade, :enrolled_at, :graded_at)`
	if _, err := t.tx.NamedExecContext(ctx, query, enrollment); err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

func (t *pgLedgerTx) GradeEnrollment(ctx context.Context, id string, status models.EnrollmentStatus, grade float64, gradedAt time.Time) error {
	const query = `UPDATE enrollments SET status = $2, grade = $3, graded_at = $4 WHERE id = $1 AND status = $5`
	result, err := t.tx.ExecContext(ctx, query, id, status, grade, gradedAt, models.EnrollmentStatusActive)
	if err != nil {
		return fmt.Errorf("grade enrollment: %w", err)
	}
	return expectOneRow(result, "grade enrollment")
}

func (t *pgLedgerTx) DeleteEnrollment(ctx context.Context, id string) error {
	const query = `DELETE FROM enrollments WHERE id = $1 AND status = $2`
	result, err := t.tx.ExecContext(ctx, query, id, models.EnrollmentStatusActive)
	if err != nil {
		return fmt.Errorf("delete enrollment: %w", err)
	}
	return expectOneRow(result, "delete enrollment")
}

func (t *pgLedgerTx) InsertAllocation(ctx context.Context, allocation *models.Allocation) error {
	if allocation.CreatedAt.IsZero() {
		allocation.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO allocations (course_id, faculty_id, capacity, created_at) VALUES (:course_id, :faculty_id, :capacity, :created_at)`
	if _, err := t.tx.NamedExecContext(ctx, query, allocation); err != nil {
		if database.IsUniqueViolation(err, allocationPrimaryKey) {
			return ErrDuplicate
		}
		return fmt.Errorf("create allocation: %w", err)
	}
	return nil
}

func (t *pgLedgerTx) DeleteAllocation(ctx context.Context, key models.SectionKey) error {
	const query = `DELETE FROM allocations WHERE course_id = $1 AND faculty_id = $2`
	result, err := t.tx.ExecContext(ctx, query, key.CourseID, key.FacultyID)
	if err != nil {
		return fmt.Errorf("delete allocation: %w", err)
	}
	return expectOneRow(result, "delete allocation")
}

func expectOneRow(result sql.Result, op string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows: %w", op, err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
