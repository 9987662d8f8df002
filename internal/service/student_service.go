package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/student-records-api/internal/models"
	"github.com/noah-isme/student-records-api/internal/repository"
	appErrors "github.com/noah-isme/student-records-api/pkg/errors"
)

const studentStatsCacheKey = "students:stats"

type studentRepository interface {
	List(ctx context.Context) ([]models.Student, error)
	FindByID(ctx context.Context, id string) (*models.Student, error)
	FindByNUE(ctx context.Context, nue string) (*models.Student, error)
	Create(ctx context.Context, student *models.Student) error
	Count(ctx context.Context, status *models.StudentStatus) (int, error)
	Delete(ctx context.Context, id string) error
	DeleteAll(ctx context.Context) error
}

// StudentServiceParams groups constructor dependencies.
type StudentServiceParams struct {
	Repo      studentRepository
	Validator *validator.Validate
	Cache     *CacheService
	Metrics   *MetricsService
	Logger    *zap.Logger
	StatsTTL  time.Duration
	Now       func() time.Time
}

// StudentService handles student use-cases, including spreadsheet imports.
type StudentService struct {
	repo     studentRepository
	rules    *studentRules
	cache    *CacheService
	metrics  *MetricsService
	logger   *zap.Logger
	statsTTL time.Duration
}

// NewStudentService constructs the student service.
func NewStudentService(params StudentServiceParams) *StudentService {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ttl := params.StatsTTL
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &StudentService{
		repo:     params.Repo,
		rules:    newStudentRules(params.Validator, params.Now),
		cache:    params.Cache,
		metrics:  params.Metrics,
		logger:   logger,
		statsTTL: ttl,
	}
}

// List returns every student.
func (s *StudentService) List(ctx context.Context) ([]models.Student, error) {
	students, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	return students, nil
}

// Get returns one student by ID.
func (s *StudentService) Get(ctx context.Context, id string) (*models.Student, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

// Stats returns roster counters and whether they were served from cache.
func (s *StudentService) Stats(ctx context.Context) (*models.StudentStats, bool, error) {
	if s.cache != nil {
		var cached models.StudentStats
		hit, err := s.cache.Get(ctx, studentStatsCacheKey, &cached)
		if err == nil && hit {
			return &cached, true, nil
		}
	}

	total, err := s.repo.Count(ctx, nil)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count students")
	}
	active := models.StudentStatusActive
	activeCount, err := s.repo.Count(ctx, &active)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count active students")
	}
	graduated := models.StudentStatusGraduated
	graduatedCount, err := s.repo.Count(ctx, &graduated)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count graduated students")
	}

	stats := &models.StudentStats{Total: total, Active: activeCount, Graduated: graduatedCount}
	if s.cache != nil {
		_ = s.cache.Set(ctx, studentStatsCacheKey, stats, s.statsTTL)
	}
	return stats, false, nil
}

// Create registers a single student. Validation and uniqueness failures are
// returned to the caller as typed errors.
func (s *StudentService) Create(ctx context.Context, req CreateStudentRequest) (*models.Student, error) {
	req = s.rules.normalize(req)
	if messages := s.rules.check(req, nil); len(messages) > 0 {
		return nil, appErrors.WithDetails(appErrors.ErrValidation, "invalid student payload", messages)
	}

	if _, err := s.repo.FindByNUE(ctx, req.NUE); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, duplicateNUEMessage(req.NUE))
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate nue")
	}

	student := req.toStudent()
	if err := s.repo.Create(ctx, student); err != nil {
		if errors.Is(err, repository.ErrDuplicateNUE) {
			return nil, appErrors.Clone(appErrors.ErrConflict, duplicateNUEMessage(req.NUE))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
	}
	s.invalidateStats(ctx)
	return student, nil
}

// Delete removes a student by ID.
func (s *StudentService) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete student")
	}
	s.invalidateStats(ctx)
	return nil
}

// Truncate removes every student.
func (s *StudentService) Truncate(ctx context.Context) error {
	if err := s.repo.DeleteAll(ctx); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete students")
	}
	s.logger.Info("students truncated")
	s.invalidateStats(ctx)
	return nil
}

func (s *StudentService) invalidateStats(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, studentStatsCacheKey); err != nil {
		s.logger.Warn("stats cache invalidation failed", zap.Error(err))
	}
}

func duplicateNUEMessage(nue string) string {
	return fmt.Sprintf("nue %s already exists", nue)
}
