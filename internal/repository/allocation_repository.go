package repository

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/course-registration-api/internal/models"
	"github.com/noah-isme/course-registration-api/pkg/database"
)

const allocationPrimaryKey = "allocations_pkey"

// AllocationRepository persists faculty-to-course allocations and serves
// offering views with live seat counts.
type AllocationRepository struct {
	db *sqlx.DB
	sb sq.StatementBuilderType
}

// NewAllocationRepository constructs the repository.
func NewAllocationRepository(db *sqlx.DB) *AllocationRepository {
	return &AllocationRepository{db: db, sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar)}
}

// CreateAllocation inserts an allocation, returning ErrDuplicate if the pair exists.
func (r *AllocationRepository) CreateAllocation(ctx context.Context, allocation *models.Allocation) error {
	if allocation.CreatedAt.IsZero() {
		allocation.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO allocations (course_id, faculty_id, capacity, created_at) VALUES (:course_id, :faculty_id, :capacity, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, allocation); err != nil {
		if database.IsUniqueViolation(err, allocationPrimaryKey) {
			return ErrDuplicate
		}
		return fmt.Errorf("create allocation: %w", err)
	}
	return nil
}

// FindAllocation fetches one allocation; sql.ErrNoRows when absent.
func (r *AllocationRepository) FindAllocation(ctx context.Context, key models.SectionKey) (*models.Allocation, error) {
	const query = `SELECT course_id, faculty_id, capacity, created_at FROM allocations WHERE course_id = $1 AND faculty_id = $2`
	var allocation models.Allocation
	if err := r.db.GetContext(ctx, &allocation, query, key.CourseID, key.FacultyID); err != nil {
		return nil, err
	}
	return &allocation, nil
}

// ListOfferings returns allocations joined with course and faculty names and
// the number of active enrollments per section.
func (r *AllocationRepository) ListOfferings(ctx context.Context, filter models.OfferingFilter) ([]models.Offering, error) {
	builder := r.sb.Select(
		"a.course_id", "a.faculty_id", "a.capacity", "a.created_at",
		"c.name AS course_name", "c.credits", "c.semester", "f.name AS faculty_name",
		"COUNT(e.id) AS enrolled_count",
	).
		From("allocations a").
		Join("courses c ON c.id = a.course_id").
		Join("faculty f ON f.id = a.faculty_id").
		LeftJoin("enrollments e ON e.course_id = a.course_id AND e.faculty_id = a.faculty_id AND e.status = ?", models.EnrollmentStatusActive)

	if filter.CourseID != "" {
		builder = builder.Where(sq.Eq{"a.course_id": filter.CourseID})
	}
	if filter.FacultyID != "" {
		builder = builder.Where(sq.Eq{"a.faculty_id": filter.FacultyID})
	}
	if filter.DegreeID != "" {
		builder = builder.Where(sq.Eq{"c.degree_id": filter.DegreeID})
	}
	if filter.Semester > 0 {
		builder = builder.Where(sq.Eq{"c.semester": filter.Semester})
	}

	query, args, err := builder.
		GroupBy("a.course_id", "a.faculty_id", "a.capacity", "a.created_at", "c.name", "c.credits", "c.semester", "f.name").
		OrderBy("a.course_id", "a.faculty_id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build offering query: %w", err)
	}

	var offerings []models.Offering
	if err := r.db.SelectContext(ctx, &offerings, query, args...); err != nil {
		return nil, fmt.Errorf("list offerings: %w", err)
	}
	for i := range offerings {
		offerings[i].FillSeats()
	}
	return offerings, nil
}

// Utilisation aggregates capacity and active seats over every allocation.
func (r *AllocationRepository) Utilisation(ctx context.Context) (*models.Utilisation, error) {
	const query = `
SELECT
	(SELECT COUNT(*) FROM allocations) AS sections,
	(SELECT COALESCE(SUM(capacity), 0) FROM allocations) AS total_capacity,
	(SELECT COUNT(*) FROM enrollments WHERE status = $1) AS active_seats`
	var usage models.Utilisation
	if err := r.db.GetContext(ctx, &usage, query, models.EnrollmentStatusActive); err != nil {
		return nil, fmt.Errorf("load utilisation: %w", err)
	}
	usage.Fill()
	return &usage, nil
}
