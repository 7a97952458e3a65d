package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/tuition-portal-api/internal/models"
)

// Access windows anchored to the class start date. The pre-open window lets
// students review materials shortly before the class begins; the grace
// window keeps an unpaid student's access alive for a week after start.
const (
	preOpenWindowDays = 2
	graceWindowDays   = 7
)

type financialStatusReader interface {
	Status(ctx context.Context, studentID, classID string) (*models.FinancialStatus, error)
}

// AccessService is the class-entry gate. Stateless: every evaluation derives
// the category from the injected clock and the latest projection; nothing is
// persisted between calls.
type AccessService struct {
	fees     feeContextReader
	statuses financialStatusReader
	audit    auditRecorder
	logger   *zap.Logger
	now      func() time.Time
}

// NewAccessService constructs AccessService.
func NewAccessService(fees feeContextReader, statuses financialStatusReader, audit auditRecorder, logger *zap.Logger) *AccessService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccessService{
		fees:     fees,
		statuses: statuses,
		audit:    audit,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Evaluate runs the access state machine. States are mutually exclusive and
// checked in precedence order; a free course grants access regardless of
// payment state, and a cleared balance grants access regardless of dates.
// status may be nil when no projection exists; the caller decides whether
// that means fail-closed (CheckEntry does).
func (s *AccessService) Evaluate(fc *models.FeeContext, status *models.FinancialStatus, now time.Time) models.AccessDecision {
	openAt := fc.StartDate.AddDate(0, 0, -preOpenWindowDays)
	graceEnd := fc.StartDate.AddDate(0, 0, graceWindowDays)

	decision := models.AccessDecision{}
	if status != nil {
		decision.Suspended = status.IsSuspended
	}

	switch {
	case now.Before(openAt):
		decision.State = models.AccessNotYetOpen
		decision.CanEnter = false
		decision.DaysUntilOpen = wholeDays(now, openAt)
		decision.Message = fmt.Sprintf("class opens in %d day(s)", decision.DaysUntilOpen)
	case fc.BaseFee.IsZero():
		decision.State = models.AccessFree
		decision.CanEnter = true
		decision.Message = "free course, access granted"
	case status != nil && status.IsCleared:
		decision.State = models.AccessPaidComplete
		decision.CanEnter = true
		decision.Message = "fees cleared, access granted"
	case !now.After(graceEnd):
		decision.State = models.AccessGracePeriod
		decision.CanEnter = true
		decision.GraceDaysRemaining = wholeDays(now, graceEnd)
		decision.Message = fmt.Sprintf("outstanding balance, %d day(s) of grace remaining", decision.GraceDaysRemaining)
	default:
		decision.State = models.AccessRestricted
		decision.CanEnter = false
		decision.Message = "grace period elapsed with outstanding balance"
	}

	return decision
}

// CheckEntry evaluates whether a student may enter a class right now. Any
// failure to load the fee context or the projection fails closed: the result
// is restricted, never an error that a page could mistake for permission.
func (s *AccessService) CheckEntry(ctx context.Context, studentID, classID string) models.AccessDecision {
	now := s.now()

	fc, err := s.fees.FeeContext(ctx, classID)
	if err != nil {
		s.logger.Warn("access check failed to resolve fee context, failing closed",
			zap.String("class_id", classID), zap.Error(err))
		return restrictedDecision()
	}

	status, err := s.statuses.Status(ctx, studentID, classID)
	if err != nil {
		s.logger.Warn("access check failed to load financial status, failing closed",
			zap.String("student_id", studentID), zap.String("class_id", classID), zap.Error(err))
		return restrictedDecision()
	}

	decision := s.Evaluate(fc, status, now)

	if s.audit != nil {
		student := studentID
		class := classID
		_ = s.audit.CreateAuditLog(ctx, &models.AuditLog{
			UserID:     &student,
			Action:     models.AuditActionAccessEvaluate,
			Resource:   "class",
			ResourceID: &class,
			NewValues:  []byte(fmt.Sprintf(`{"state":%q,"can_enter":%t}`, decision.State, decision.CanEnter)),
		})
	}

	return decision
}

func restrictedDecision() models.AccessDecision {
	return models.AccessDecision{
		State:    models.AccessRestricted,
		CanEnter: false,
		Message:  "access could not be verified",
	}
}

// wholeDays returns the number of whole days from now until t, never
// negative.
func wholeDays(now, t time.Time) int {
	if !t.After(now) {
		return 0
	}
	return int(t.Sub(now).Hours() / 24)
}
