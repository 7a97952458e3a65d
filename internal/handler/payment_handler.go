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

type paymentWorkflow interface {
	Record(ctx context.Context, req service.RecordPaymentRequest, actorID string) (*models.PaymentRecord, error)
	Complete(ctx context.Context, paymentID, actorID string) (*service.CompletePaymentResult, error)
	Ledger(ctx context.Context, enrollmentID string) ([]models.PaymentRecord, error)
	ExportLedgerCSV(ctx context.Context, enrollmentID string) ([]byte, string, error)
	Receipt(ctx context.Context, paymentID string) ([]byte, string, error)
}

// PaymentHandler exposes payment ledger endpoints.
type PaymentHandler struct {
	payments paymentWorkflow
}

// NewPaymentHandler constructs PaymentHandler.
func NewPaymentHandler(payments paymentWorkflow) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

// Record godoc
// @Summary Record a pending payment
// @Tags Payments
// @Accept json
// @Produce json
// @Param payload body service.RecordPaymentRequest true "Payment payload"
// @Success 201 {object} response.Envelope
// @Router /payments [post]
func (h *PaymentHandler) Record(c *gin.Context) {
	var req service.RecordPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	actorID := ""
	if claims := claimsFromContext(c); claims != nil {
		actorID = claims.UserID
	}
	payment, err := h.payments.Record(c.Request.Context(), req, actorID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, payment)
}

// Complete godoc
// @Summary Mark a payment completed
// @Tags Payments
// @Produce json
// @Param id path string true "Payment ID"
// @Success 200 {object} response.Envelope
// @Router /payments/{id}/complete [post]
func (h *PaymentHandler) Complete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	result, err := h.payments.Complete(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Ledger godoc
// @Summary List the payment ledger for an enrollment
// @Tags Payments
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/payments [get]
func (h *PaymentHandler) Ledger(c *gin.Context) {
	payments, err := h.payments.Ledger(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, payments, nil)
}

// ExportLedger godoc
// @Summary Download the payment ledger as CSV
// @Tags Payments
// @Produce text/csv
// @Param id path string true "Enrollment ID"
// @Success 200 {string} string "CSV payload"
// @Router /enrollments/{id}/payments/export [get]
func (h *PaymentHandler) ExportLedger(c *gin.Context) {
	payload, filename, err := h.payments.ExportLedgerCSV(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.File(c, "text/csv", filename, payload)
}

// Receipt godoc
// @Summary Download a PDF receipt for a completed payment
// @Tags Payments
// @Produce application/pdf
// @Param id path string true "Payment ID"
// @Success 200 {string} string "PDF payload"
// @Router /payments/{id}/receipt [get]
func (h *PaymentHandler) Receipt(c *gin.Context) {
	payload, filename, err := h.payments.Receipt(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.File(c, "application/pdf", filename, payload)
}
