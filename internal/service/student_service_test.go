package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/student-records-api/internal/models"
	"github.com/noah-isme/student-records-api/internal/repository"
	appErrors "github.com/noah-isme/student-records-api/pkg/errors"
)

type mockStudentRepo struct {
	students  map[string]models.Student
	seq       int
	createErr map[string]error
	findErr   error
	countErr  error
	listErr   error
	creates   int
	truncated bool
}

func newMockStudentRepo(existing ...models.Student) *mockStudentRepo {
	repo := &mockStudentRepo{students: make(map[string]models.Student)}
	for _, st := range existing {
		repo.students[st.ID] = st
	}
	return repo
}

func (m *mockStudentRepo) List(ctx context.Context) ([]models.Student, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]models.Student, 0, len(m.students))
	for _, st := range m.students {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NUE < out[j].NUE })
	return out, nil
}

func (m *mockStudentRepo) FindByID(ctx context.Context, id string) (*models.Student, error) {
	if st, ok := m.students[id]; ok {
		return &st, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockStudentRepo) FindByNUE(ctx context.Context, nue string) (*models.Student, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	for _, st := range m.students {
		if st.NUE == nue {
			found := st
			return &found, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockStudentRepo) Create(ctx context.Context, student *models.Student) error {
	m.creates++
	if err, ok := m.createErr[student.NUE]; ok {
		return err
	}
	m.seq++
	student.ID = fmt.Sprintf("00000000-0000-0000-0000-%012d", m.seq)
	m.students[student.ID] = *student
	return nil
}

func (m *mockStudentRepo) Count(ctx context.Context, status *models.StudentStatus) (int, error) {
	if m.countErr != nil {
		return 0, m.countErr
	}
	n := 0
	for _, st := range m.students {
		if status == nil || st.Status == *status {
			n++
		}
	}
	return n, nil
}

func (m *mockStudentRepo) Delete(ctx context.Context, id string) error {
	if _, ok := m.students[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.students, id)
	return nil
}

func (m *mockStudentRepo) DeleteAll(ctx context.Context) error {
	m.truncated = true
	m.students = make(map[string]models.Student)
	return nil
}

type memoryCacheRepo struct {
	values  map[string]interface{}
	deleted []string
}

func (m *memoryCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	v, ok := m.values[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	stats, ok := dest.(*models.StudentStats)
	if !ok {
		return errors.New("unexpected destination")
	}
	*stats = *(v.(*models.StudentStats))
	return nil
}

func (m *memoryCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if m.values == nil {
		m.values = make(map[string]interface{})
	}
	m.values[key] = value
	return nil
}

func (m *memoryCacheRepo) Delete(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(m.values, key)
	}
	m.deleted = append(m.deleted, keys...)
	return nil
}

var fixedNow = func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }

func newTestStudentService(repo *mockStudentRepo, cache *CacheService) *StudentService {
	return NewStudentService(StudentServiceParams{
		Repo:      repo,
		Validator: validator.New(),
		Cache:     cache,
		Logger:    zap.NewNop(),
		Now:       fixedNow,
	})
}

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }

func TestStudentServiceCreate(t *testing.T) {
	repo := newMockStudentRepo()
	svc := newTestStudentService(repo, nil)

	student, err := svc.Create(context.Background(), CreateStudentRequest{
		Name:              "  Ana Pérez ",
		StartYear:         intPtr(2020),
		NUE:               " N-001 ",
		Status:            models.StudentStatusGraduated,
		GraduationAverage: floatPtr(8.5),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, student.ID)
	assert.Equal(t, "Ana Pérez", student.Name)
	assert.Equal(t, "N-001", student.NUE)
	require.NotNil(t, student.GraduationAverage)
	assert.Equal(t, 8.5, *student.GraduationAverage)
}

func TestStudentServiceCreateAcceptsLocalizedStatus(t *testing.T) {
	svc := newTestStudentService(newMockStudentRepo(), nil)

	active, err := svc.Create(context.Background(), CreateStudentRequest{
		Name: "Ana", StartYear: intPtr(2020), NUE: "N1", Status: "activo",
	})
	require.NoError(t, err)
	assert.Equal(t, models.StudentStatusActive, active.Status)

	graduated, err := svc.Create(context.Background(), CreateStudentRequest{
		Name: "Luis", StartYear: intPtr(2015), NUE: "N2", Status: "Graduado", GraduationAverage: floatPtr(9),
	})
	require.NoError(t, err)
	assert.Equal(t, models.StudentStatusGraduated, graduated.Status)
	require.NotNil(t, graduated.GraduationAverage)
	assert.Equal(t, 9.0, *graduated.GraduationAverage)
}

func TestStudentServiceCreateDropsAverageForActive(t *testing.T) {
	svc := newTestStudentService(newMockStudentRepo(), nil)

	student, err := svc.Create(context.Background(), CreateStudentRequest{
		Name: "Luis", StartYear: intPtr(2021), NUE: "N-2", Status: models.StudentStatusActive, GraduationAverage: floatPtr(42),
	})
	require.NoError(t, err)
	assert.Nil(t, student.GraduationAverage)
}

func TestStudentServiceCreateValidation(t *testing.T) {
	repo := newMockStudentRepo()
	svc := newTestStudentService(repo, nil)

	_, err := svc.Create(context.Background(), CreateStudentRequest{
		StartYear: intPtr(2030), NUE: "N-1", Status: models.StudentStatusGraduated,
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Equal(t, []string{
		"name must not be empty",
		"startYear must not be greater than 2024",
		"graduationAverage is required when status is graduated",
	}, appErr.Details)
	assert.Zero(t, repo.creates)
}

func TestStudentServiceCreateConflict(t *testing.T) {
	repo := newMockStudentRepo(models.Student{ID: "a", NUE: "N-1", Status: models.StudentStatusActive})
	svc := newTestStudentService(repo, nil)
	req := CreateStudentRequest{Name: "Ana", StartYear: intPtr(2020), NUE: "N-1", Status: models.StudentStatusActive}

	_, err := svc.Create(context.Background(), req)
	assert.ErrorIs(t, err, appErrors.ErrConflict)
	assert.Zero(t, repo.creates)

	repo.createErr = map[string]error{"N-2": repository.ErrDuplicateNUE}
	req.NUE = "N-2"
	_, err = svc.Create(context.Background(), req)
	require.ErrorIs(t, err, appErrors.ErrConflict)
	assert.Equal(t, "nue N-2 already exists", appErrors.FromError(err).Message)
}

func TestStudentServiceGet(t *testing.T) {
	id := "11111111-1111-1111-1111-111111111111"
	svc := newTestStudentService(newMockStudentRepo(models.Student{ID: id, NUE: "N-1"}), nil)

	student, err := svc.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "N-1", student.NUE)

	_, err = svc.Get(context.Background(), "33333333-3333-3333-3333-333333333333")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestStudentServiceDelete(t *testing.T) {
	id := "11111111-1111-1111-1111-111111111111"
	repo := newMockStudentRepo(models.Student{ID: id, NUE: "N-1"})
	svc := newTestStudentService(repo, nil)

	assert.ErrorIs(t, svc.Delete(context.Background(), "not-a-uuid"), appErrors.ErrNotFound)
	assert.ErrorIs(t, svc.Delete(context.Background(), "22222222-2222-2222-2222-222222222222"), appErrors.ErrNotFound)
	require.NoError(t, svc.Delete(context.Background(), id))
	assert.Empty(t, repo.students)
}

func TestStudentServiceStatsUsesCache(t *testing.T) {
	repo := newMockStudentRepo(
		models.Student{ID: "a", NUE: "1", Status: models.StudentStatusActive},
		models.Student{ID: "b", NUE: "2", Status: models.StudentStatusGraduated},
		models.Student{ID: "c", NUE: "3", Status: models.StudentStatusActive},
	)
	cacheRepo := &memoryCacheRepo{}
	cache := NewCacheService(cacheRepo, nil, time.Minute, zap.NewNop(), true)
	svc := newTestStudentService(repo, cache)

	stats, hit, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, models.StudentStats{Total: 3, Active: 2, Graduated: 1}, *stats)

	repo.countErr = errors.New("should not be called")
	stats, hit, err = svc.Stats(context.Background())
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 3, stats.Total)

	repo.countErr = nil
	require.NoError(t, svc.Truncate(context.Background()))
	assert.True(t, repo.truncated)
	assert.Contains(t, cacheRepo.deleted, studentStatsCacheKey)

	stats, hit, err = svc.Stats(context.Background())
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Zero(t, stats.Total)
}

func TestStudentServiceStatsError(t *testing.T) {
	repo := newMockStudentRepo()
	repo.countErr = errors.New("boom")
	svc := newTestStudentService(repo, nil)

	_, _, err := svc.Stats(context.Background())
	assert.ErrorIs(t, err, appErrors.ErrInternal)
}

func TestStudentServiceExport(t *testing.T) {
	repo := newMockStudentRepo(
		models.Student{ID: "a", Name: "Ana", StartYear: 2019, NUE: "N-1", Status: models.StudentStatusGraduated, GraduationAverage: floatPtr(9.25)},
		models.Student{ID: "b", Name: "Luis", StartYear: 2022, NUE: "N-2", Status: models.StudentStatusActive},
	)
	svc := newTestStudentService(repo, nil)

	file, err := svc.Export(context.Background(), ExportFormatCSV)
	require.NoError(t, err)
	assert.Contains(t, file.Filename, ".csv")
	assert.Equal(t, "\ufeffnombre_estudiante,anio_inicio,nue,estado,promedio_graduacion\n"+
		"Ana,2019,N-1,graduado,9.25\n"+
		"Luis,2022,N-2,activo,\n", string(file.Data))

	_, err = svc.Export(context.Background(), "docx")
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestStudentServiceExportReimports(t *testing.T) {
	source := newMockStudentRepo(
		models.Student{ID: "a", Name: "Ana", StartYear: 2019, NUE: "N-1", Status: models.StudentStatusGraduated, GraduationAverage: floatPtr(9.25)},
		models.Student{ID: "b", Name: "Luis", StartYear: 2022, NUE: "N-2", Status: models.StudentStatusActive},
	)
	file, err := newTestStudentService(source, nil).Export(context.Background(), ExportFormatXLSX)
	require.NoError(t, err)

	target := newMockStudentRepo()
	result, err := newTestStudentService(target, nil).Import(context.Background(), file.Data, file.ContentType)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Success)
	assert.Zero(t, result.Failed)
}
