package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tuition-portal-api/internal/models"
	appErrors "github.com/noah-isme/tuition-portal-api/pkg/errors"
)

type enrollmentRepoStub struct {
	enrollments map[string]*models.Enrollment
	active      map[string]bool
	created     []*models.Enrollment
	statuses    map[string]models.EnrollmentStatus
}

func (s *enrollmentRepoStub) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	var out []models.EnrollmentDetail
	for _, e := range s.enrollments {
		out = append(out, models.EnrollmentDetail{Enrollment: *e})
	}
	return out, len(out), nil
}

func (s *enrollmentRepoStub) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	if e, ok := s.enrollments[id]; ok {
		return e, nil
	}
	return nil, sql.ErrNoRows
}

func (s *enrollmentRepoStub) FindByStudentAndClass(ctx context.Context, studentID, classID string) (*models.Enrollment, error) {
	for _, e := range s.enrollments {
		if e.StudentID == studentID && e.ClassID == classID {
			return e, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *enrollmentRepoStub) ExistsActive(ctx context.Context, studentID, classID string) (bool, error) {
	return s.active[studentID+"/"+classID], nil
}

func (s *enrollmentRepoStub) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = "enr-new"
	}
	if s.enrollments == nil {
		s.enrollments = make(map[string]*models.Enrollment)
	}
	s.enrollments[enrollment.ID] = enrollment
	s.created = append(s.created, enrollment)
	return nil
}

func (s *enrollmentRepoStub) UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus) error {
	if s.statuses == nil {
		s.statuses = make(map[string]models.EnrollmentStatus)
	}
	s.statuses[id] = status
	return nil
}

type studentStub struct {
	students map[string]*models.Student
}

func (s *studentStub) FindByID(ctx context.Context, id string) (*models.Student, error) {
	if st, ok := s.students[id]; ok {
		return st, nil
	}
	return nil, sql.ErrNoRows
}

type classStub struct {
	classes map[string]*models.Class
}

func (s *classStub) FindByID(ctx context.Context, id string) (*models.Class, error) {
	if c, ok := s.classes[id]; ok {
		return c, nil
	}
	return nil, sql.ErrNoRows
}

func newEnrollmentFixture() (*EnrollmentService, *enrollmentRepoStub, *recomputerStub) {
	repo := &enrollmentRepoStub{active: map[string]bool{}}
	recomputer := &recomputerStub{}
	svc := NewEnrollmentService(
		repo,
		&studentStub{students: map[string]*models.Student{
			"stu-1": {ID: "stu-1", FullName: "Student One", Active: true},
			"stu-2": {ID: "stu-2", FullName: "Student Two", Active: false},
		}},
		&classStub{classes: map[string]*models.Class{
			"class-1": {ID: "class-1", CourseID: "course-1"},
		}},
		recomputer,
		nil, nil,
	)
	return svc, repo, recomputer
}

func TestEnrollmentServiceEnrollSeedsProjection(t *testing.T) {
	svc, repo, recomputer := newEnrollmentFixture()

	enrollment, err := svc.Enroll(context.Background(), EnrollStudentRequest{StudentID: "stu-1", ClassID: "class-1"})
	require.NoError(t, err)

	assert.Equal(t, models.EnrollmentStatusActive, enrollment.Status)
	require.Len(t, repo.created, 1)
	assert.Equal(t, 1, recomputer.calls)
}

func TestEnrollmentServiceEnrollRejectsInactiveStudent(t *testing.T) {
	svc, _, _ := newEnrollmentFixture()

	_, err := svc.Enroll(context.Background(), EnrollStudentRequest{StudentID: "stu-2", ClassID: "class-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentServiceEnrollRejectsUnknownClass(t *testing.T) {
	svc, _, _ := newEnrollmentFixture()

	_, err := svc.Enroll(context.Background(), EnrollStudentRequest{StudentID: "stu-1", ClassID: "class-x"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentServiceEnrollRejectsDuplicate(t *testing.T) {
	svc, repo, _ := newEnrollmentFixture()
	repo.active["stu-1/class-1"] = true

	_, err := svc.Enroll(context.Background(), EnrollStudentRequest{StudentID: "stu-1", ClassID: "class-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentServiceEnrollValidatesPayload(t *testing.T) {
	svc, _, _ := newEnrollmentFixture()

	_, err := svc.Enroll(context.Background(), EnrollStudentRequest{StudentID: "", ClassID: ""})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentServiceUpdateStatus(t *testing.T) {
	svc, repo, _ := newEnrollmentFixture()
	repo.enrollments = map[string]*models.Enrollment{
		"enr-1": {ID: "enr-1", StudentID: "stu-1", ClassID: "class-1", Status: models.EnrollmentStatusActive},
	}

	enrollment, err := svc.UpdateStatus(context.Background(), "enr-1", UpdateEnrollmentStatusRequest{Status: "DROPPED"})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusDropped, enrollment.Status)
	assert.Equal(t, models.EnrollmentStatusDropped, repo.statuses["enr-1"])
}

func TestEnrollmentServiceUpdateStatusNoOpWhenUnchanged(t *testing.T) {
	svc, repo, _ := newEnrollmentFixture()
	repo.enrollments = map[string]*models.Enrollment{
		"enr-1": {ID: "enr-1", Status: models.EnrollmentStatusActive},
	}

	_, err := svc.UpdateStatus(context.Background(), "enr-1", UpdateEnrollmentStatusRequest{Status: "ACTIVE"})
	require.NoError(t, err)
	assert.Empty(t, repo.statuses)
}

func TestEnrollmentServiceUpdateStatusRejectsUnknownStatus(t *testing.T) {
	svc, _, _ := newEnrollmentFixture()

	_, err := svc.UpdateStatus(context.Background(), "enr-1", UpdateEnrollmentStatusRequest{Status: "PAUSED"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentServiceListPaginates(t *testing.T) {
	svc, repo, _ := newEnrollmentFixture()
	repo.enrollments = map[string]*models.Enrollment{
		"enr-1": {ID: "enr-1"},
		"enr-2": {ID: "enr-2"},
	}

	items, pagination, err := svc.List(context.Background(), models.EnrollmentFilter{})
	require.NoError(t, err)
	assert.Len(t, items, 2)
	assert.Equal(t, 1, pagination.Page)
	assert.Equal(t, 20, pagination.PageSize)
	assert.Equal(t, 2, pagination.TotalCount)
}
