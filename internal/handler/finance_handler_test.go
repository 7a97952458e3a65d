package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tuition-portal-api/internal/middleware"
	"github.com/noah-isme/tuition-portal-api/internal/models"
	"github.com/noah-isme/tuition-portal-api/internal/service"
	appErrors "github.com/noah-isme/tuition-portal-api/pkg/errors"
)

type financeProjectorMock struct {
	statusResp  *models.FinancialStatus
	statusErr   error
	suspendResp *models.FinancialStatus
	suspendErr  error
	lastSuspend service.SetSuspensionRequest
	lastActor   string
}

func (m *financeProjectorMock) Status(ctx context.Context, studentID, classID string) (*models.FinancialStatus, error) {
	return m.statusResp, m.statusErr
}

func (m *financeProjectorMock) Recompute(ctx context.Context, enrollmentID string) (*models.FinancialStatus, error) {
	return m.statusResp, m.statusErr
}

func (m *financeProjectorMock) SetSuspension(ctx context.Context, enrollmentID string, req service.SetSuspensionRequest, actorID string) (*models.FinancialStatus, error) {
	m.lastSuspend = req
	m.lastActor = actorID
	return m.suspendResp, m.suspendErr
}

func TestFinanceHandlerStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewFinanceHandler(&financeProjectorMock{statusResp: &models.FinancialStatus{
		EnrollmentID: "enr-1",
		CurrentBlock: models.BlockTwo,
	}})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/students/stu-1/classes/class-1/financial-status", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "studentId", Value: "stu-1"}, {Key: "classId", Value: "class-1"}}

	h.Status(c)
	require.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Data models.FinancialStatus `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, models.BlockTwo, envelope.Data.CurrentBlock)
}

func TestFinanceHandlerStatusNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewFinanceHandler(&financeProjectorMock{statusErr: appErrors.ErrNotFound})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/students/stu-x/classes/class-x/financial-status", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "studentId", Value: "stu-x"}, {Key: "classId", Value: "class-x"}}

	h.Status(c)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestFinanceHandlerSetSuspension(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &financeProjectorMock{suspendResp: &models.FinancialStatus{IsSuspended: true}}
	h := NewFinanceHandler(mockSvc)

	body, _ := json.Marshal(service.SetSuspensionRequest{Suspended: true})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPut, "/enrollments/enr-1/suspension", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "enr-1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin-1", Role: models.RoleFinance})

	h.SetSuspension(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, mockSvc.lastSuspend.Suspended)
	assert.Equal(t, "admin-1", mockSvc.lastActor)
}

func TestFinanceHandlerSetSuspensionRequiresClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewFinanceHandler(&financeProjectorMock{})

	body, _ := json.Marshal(service.SetSuspensionRequest{Suspended: true})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPut, "/enrollments/enr-1/suspension", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "enr-1"}}

	h.SetSuspension(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}
