package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tuition-portal-api/internal/models"
	"github.com/noah-isme/tuition-portal-api/internal/service"
	appErrors "github.com/noah-isme/tuition-portal-api/pkg/errors"
	"github.com/noah-isme/tuition-portal-api/pkg/response"
)

type financeProjector interface {
	Status(ctx context.Context, studentID, classID string) (*models.FinancialStatus, error)
	Recompute(ctx context.Context, enrollmentID string) (*models.FinancialStatus, error)
	SetSuspension(ctx context.Context, enrollmentID string, req service.SetSuspensionRequest, actorID string) (*models.FinancialStatus, error)
}

// FinanceHandler exposes the financial status projection.
type FinanceHandler struct {
	finance financeProjector
}

// NewFinanceHandler constructs FinanceHandler.
func NewFinanceHandler(finance financeProjector) *FinanceHandler {
	return &FinanceHandler{finance: finance}
}

// Status godoc
// @Summary Get a student's financial status for a class
// @Tags Finance
// @Produce json
// @Param studentId path string true "Student ID"
// @Param classId path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Router /students/{studentId}/classes/{classId}/financial-status [get]
func (h *FinanceHandler) Status(c *gin.Context) {
	status, err := h.finance.Status(c.Request.Context(), c.Param("studentId"), c.Param("classId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// Recompute godoc
// @Summary Recompute the financial status projection for an enrollment
// @Tags Finance
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/financial-status/recompute [post]
func (h *FinanceHandler) Recompute(c *gin.Context) {
	status, err := h.finance.Recompute(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// SetSuspension godoc
// @Summary Set or clear the suspension flag on an enrollment
// @Tags Finance
// @Accept json
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param payload body service.SetSuspensionRequest true "Suspension payload"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/suspension [put]
func (h *FinanceHandler) SetSuspension(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.SetSuspensionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	status, err := h.finance.SetSuspension(c.Request.Context(), c.Param("id"), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}
