package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/tuition-portal-api/internal/models"
	appErrors "github.com/noah-isme/tuition-portal-api/pkg/errors"
)

// Installment shares of the base course fee. Block1 covers 70%, block2 the
// remaining 30%; the late fee is an additional charge.
var (
	block1Share  = decimal.NewFromFloat(0.70)
	lateFeeShare = decimal.NewFromFloat(0.05)
)

type feeContextReader interface {
	FeeContext(ctx context.Context, classID string) (*models.FeeContext, error)
}

// InvoiceAmountRequest asks for the amount due on an invoice purpose.
type InvoiceAmountRequest struct {
	ClassID        string           `json:"class_id" validate:"required"`
	Purpose        string           `json:"purpose" validate:"required"`
	SuppliedAmount *decimal.Decimal `json:"supplied_amount,omitempty"`
}

// InvoiceAmount is the resolved amount plus the fee context it came from.
type InvoiceAmount struct {
	ClassID  string                 `json:"class_id"`
	Purpose  models.PaymentPurpose  `json:"purpose"`
	Amount   decimal.Decimal        `json:"amount"`
	BaseFee  decimal.Decimal        `json:"base_fee"`
	PlanType models.PaymentPlanType `json:"plan_type"`
}

// FeeService resolves invoice amounts from the fee schedule. Amount
// computation itself is pure; only the fee-context lookup touches storage.
type FeeService struct {
	fees            feeContextReader
	registrationFee decimal.Decimal
	logger          *zap.Logger
}

// NewFeeService constructs FeeService. registrationFee is the flat
// platform-level registration amount.
func NewFeeService(fees feeContextReader, registrationFee decimal.Decimal, logger *zap.Logger) *FeeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FeeService{fees: fees, registrationFee: registrationFee, logger: logger}
}

// ResolveAmount computes the amount due for an invoice purpose. Rounding is
// half-up to two decimal places and happens exactly once, here. Block2 is the
// remainder after block1 rather than an independently rounded share, so
// block1 + block2 always equals the base fee.
func (s *FeeService) ResolveAmount(baseFee decimal.Decimal, purpose models.PaymentPurpose, supplied *decimal.Decimal) (decimal.Decimal, error) {
	if baseFee.IsNegative() {
		return decimal.Zero, appErrors.Clone(appErrors.ErrInvalidAmount, "base fee cannot be negative")
	}

	switch purpose {
	case models.PurposeRegistration:
		return s.registrationFee.Round(2), nil
	case models.PurposeBlock1:
		return baseFee.Mul(block1Share).Round(2), nil
	case models.PurposeBlock2:
		return baseFee.Round(2).Sub(baseFee.Mul(block1Share).Round(2)), nil
	case models.PurposeLateFee:
		return baseFee.Mul(lateFeeShare).Round(2), nil
	case models.PurposeOther:
		if supplied == nil || !supplied.IsPositive() {
			return decimal.Zero, appErrors.Clone(appErrors.ErrInvalidAmount, "ad-hoc invoices require a positive amount")
		}
		return *supplied, nil
	default:
		return decimal.Zero, appErrors.Clone(appErrors.ErrUnknownPurpose, "unrecognized invoice purpose: "+string(purpose))
	}
}

// InvoiceAmount resolves the fee context for a class and computes the amount
// due for the requested purpose.
func (s *FeeService) InvoiceAmount(ctx context.Context, req InvoiceAmountRequest) (*InvoiceAmount, error) {
	purpose := models.PaymentPurpose(req.Purpose)
	if !models.KnownPurpose(purpose) {
		return nil, appErrors.Clone(appErrors.ErrUnknownPurpose, "unrecognized invoice purpose: "+req.Purpose)
	}

	fc, err := s.fees.FeeContext(ctx, req.ClassID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve fee context")
	}

	amount, err := s.ResolveAmount(fc.BaseFee, purpose, req.SuppliedAmount)
	if err != nil {
		return nil, err
	}

	return &InvoiceAmount{
		ClassID:  fc.ClassID,
		Purpose:  purpose,
		Amount:   amount,
		BaseFee:  fc.BaseFee,
		PlanType: fc.PlanType,
	}, nil
}
