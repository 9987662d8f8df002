package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/student-records-api/internal/models"
)

// ErrDuplicateNUE is returned by Create when the unique constraint on nue rejects the insert.
var ErrDuplicateNUE = errors.New("student nue already exists")

const (
	studentColumns       = "id, name, start_year, nue, status, graduation_average, created_at, updated_at"
	pqUniqueViolation    = "23505"
	studentNUEConstraint = "students_nue_key"
)

// StudentRepository manages persistence for student records.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// List returns every student, newest first.
func (r *StudentRepository) List(ctx context.Context) ([]models.Student, error) {
	query := fmt.Sprintf("SELECT %s FROM students ORDER BY created_at DESC, id", studentColumns)
	students := []models.Student{}
	if err := r.db.SelectContext(ctx, &students, query); err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	return students, nil
}

// FindByID fetches a student by ID. It returns sql.ErrNoRows when absent.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.Student, error) {
	query := fmt.Sprintf("SELECT %s FROM students WHERE id = $1", studentColumns)
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find student: %w", err)
	}
	return &student, nil
}

// FindByNUE fetches a student by enrollment number. It returns sql.ErrNoRows when absent.
func (r *StudentRepository) FindByNUE(ctx context.Context, nue string) (*models.Student, error) {
	query := fmt.Sprintf("SELECT %s FROM students WHERE nue = $1 LIMIT 1", studentColumns)
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, nue); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find student by nue: %w", err)
	}
	return &student, nil
}

// Create inserts a new student record, assigning its identity and timestamps.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if student.CreatedAt.IsZero() {
		student.CreatedAt = now
	}
	student.UpdatedAt = now
	const query = `INSERT INTO students (id, name, start_year, nue, status, graduation_average, created_at, updated_at)
        VALUES (:id, :name, :start_year, :nue, :status, :graduation_average, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		if isUniqueViolation(err, studentNUEConstraint) {
			return fmt.Errorf("create student %s: %w", student.NUE, ErrDuplicateNUE)
		}
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// Count returns the number of students, optionally restricted to one status.
func (r *StudentRepository) Count(ctx context.Context, status *models.StudentStatus) (int, error) {
	query := "SELECT COUNT(*) FROM students"
	args := []interface{}{}
	if status != nil {
		query += " WHERE status = $1"
		args = append(args, *status)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, query, args...); err != nil {
		return 0, fmt.Errorf("count students: %w", err)
	}
	return total, nil
}

// Delete removes a student by ID. It returns sql.ErrNoRows when nothing was deleted.
func (r *StudentRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM students WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete student: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete student rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteAll removes every student.
func (r *StudentRepository) DeleteAll(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, "TRUNCATE TABLE students"); err != nil {
		return fmt.Errorf("truncate students: %w", err)
	}
	return nil
}

func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return string(pqErr.Code) == pqUniqueViolation && (constraint == "" || pqErr.Constraint == constraint)
}
