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

type accessGate interface {
	CheckEntry(ctx context.Context, studentID, classID string) models.AccessDecision
}

type invoiceResolver interface {
	InvoiceAmount(ctx context.Context, req service.InvoiceAmountRequest) (*service.InvoiceAmount, error)
}

// AccessHandler exposes the class entry gate and invoice amount resolution.
type AccessHandler struct {
	gate accessGate
	fees invoiceResolver
}

// NewAccessHandler constructs AccessHandler.
func NewAccessHandler(gate accessGate, fees invoiceResolver) *AccessHandler {
	return &AccessHandler{gate: gate, fees: fees}
}

// CheckEntry godoc
// @Summary Evaluate whether a student may enter a class right now
// @Tags Access
// @Produce json
// @Param studentId path string true "Student ID"
// @Param classId path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Router /students/{studentId}/classes/{classId}/access [get]
func (h *AccessHandler) CheckEntry(c *gin.Context) {
	decision := h.gate.CheckEntry(c.Request.Context(), c.Param("studentId"), c.Param("classId"))
	response.JSON(c, http.StatusOK, decision, nil)
}

// InvoiceAmount godoc
// @Summary Resolve the invoice amount for a class and payment purpose
// @Tags Finance
// @Accept json
// @Produce json
// @Param payload body service.InvoiceAmountRequest true "Invoice query"
// @Success 200 {object} response.Envelope
// @Router /invoices/amount [post]
func (h *AccessHandler) InvoiceAmount(c *gin.Context) {
	var req service.InvoiceAmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	amount, err := h.fees.InvoiceAmount(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, amount, nil)
}
