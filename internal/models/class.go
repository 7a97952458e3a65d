package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentPlanType distinguishes full upfront payment from the two-block
// installment plan.
type PaymentPlanType string

const (
	PlanFull  PaymentPlanType = "FULL"
	PlanBlock PaymentPlanType = "BLOCK"
)

// Course is a catalog entry carrying the tuition fee and payment plan that
// apply to every class scheduled from it.
type Course struct {
	ID        string          `db:"id" json:"id"`
	Code      string          `db:"code" json:"code"`
	Name      string          `db:"name" json:"name"`
	BaseFee   decimal.Decimal `db:"base_fee" json:"base_fee"`
	PlanType  PaymentPlanType `db:"plan_type" json:"plan_type"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

// Class is a scheduled offering of a course.
type Class struct {
	ID        string    `db:"id" json:"id"`
	CourseID  string    `db:"course_id" json:"course_id"`
	Name      string    `db:"name" json:"name"`
	StartDate time.Time `db:"start_date" json:"start_date"`
	EndDate   time.Time `db:"end_date" json:"end_date"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// FeeContext is the fee information for a class resolved once per request:
// the course fee row joined with the class schedule.
type FeeContext struct {
	ClassID   string          `db:"class_id" json:"class_id"`
	CourseID  string          `db:"course_id" json:"course_id"`
	BaseFee   decimal.Decimal `db:"base_fee" json:"base_fee"`
	PlanType  PaymentPlanType `db:"plan_type" json:"plan_type"`
	StartDate time.Time       `db:"start_date" json:"start_date"`
}
