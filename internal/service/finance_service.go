package service

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/tuition-portal-api/internal/models"
	"github.com/noah-isme/tuition-portal-api/internal/repository"
	appErrors "github.com/noah-isme/tuition-portal-api/pkg/errors"
)

type financeRepository interface {
	FindByEnrollment(ctx context.Context, enrollmentID string) (*models.FinancialStatus, error)
	FindByStudentAndClass(ctx context.Context, studentID, classID string) (*models.FinancialStatus, error)
	Upsert(ctx context.Context, status *models.FinancialStatus) error
	UpdateSuspension(ctx context.Context, enrollmentID string, suspended bool, updatedAt time.Time) error
}

type completedLedgerReader interface {
	SumCompleted(ctx context.Context, enrollmentID string) (decimal.Decimal, error)
	CompletedPurposeDates(ctx context.Context, enrollmentID string) (map[models.PaymentPurpose]time.Time, error)
}

type enrollmentReader interface {
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
}

type statusCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type auditRecorder interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// keyedMutex serializes work per string key. Recomputation for the same
// enrollment must not interleave: two concurrent recomputes could both read
// a stale paid total and overwrite each other's block flags. Entries are
// reference counted and dropped once the last holder releases, so the map
// does not grow with every enrollment ever seen.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) acquire(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyedLock)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// FinanceService maintains the financial status projection for enrollments.
type FinanceService struct {
	repo        financeRepository
	payments    completedLedgerReader
	enrollments enrollmentReader
	fees        feeContextReader
	cache       statusCache
	audit       auditRecorder
	metrics     *MetricsService
	logger      *zap.Logger
	cacheTTL    time.Duration
	now         func() time.Time
	recomputes  keyedMutex
}

// NewFinanceService constructs FinanceService. cache and metrics may be nil.
func NewFinanceService(repo financeRepository, payments completedLedgerReader, enrollments enrollmentReader, fees feeContextReader, cache statusCache, audit auditRecorder, metrics *MetricsService, logger *zap.Logger, cacheTTL time.Duration) *FinanceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &FinanceService{
		repo:        repo,
		payments:    payments,
		enrollments: enrollments,
		fees:        fees,
		cache:       cache,
		audit:       audit,
		metrics:     metrics,
		logger:      logger,
		cacheTTL:    cacheTTL,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Recompute rebuilds the projection for an enrollment from the payment
// ledger and the fee schedule. Idempotent: with no intervening ledger change
// two calls produce the same projection. Serialized per enrollment.
func (s *FinanceService) Recompute(ctx context.Context, enrollmentID string) (*models.FinancialStatus, error) {
	release := s.recomputes.acquire(enrollmentID)
	defer release()

	if s.metrics != nil {
		defer func(start time.Time) {
			s.metrics.ObserveRecompute(time.Since(start))
		}(time.Now())
	}

	enrollment, err := s.enrollments.FindByID(ctx, enrollmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}

	fc, err := s.fees.FeeContext(ctx, enrollment.ClassID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class fee context not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve fee context")
	}

	sumStart := time.Now()
	paid, err := s.payments.SumCompleted(ctx, enrollmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sum payments")
	}
	if s.metrics != nil {
		s.metrics.ObserveDBQuery("ledger_sum_completed", time.Since(sumStart))
	}

	status := &models.FinancialStatus{
		EnrollmentID: enrollmentID,
		StudentID:    enrollment.StudentID,
		ClassID:      enrollment.ClassID,
		TotalFee:     fc.BaseFee,
		PaidAmount:   paid,
		Balance:      fc.BaseFee.Sub(paid),
		CurrentBlock: models.BlockCleared,
	}
	status.IsCleared = !status.Balance.IsPositive()

	if fc.PlanType == models.PlanBlock {
		dates, err := s.payments.CompletedPurposeDates(ctx, enrollmentID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load completed purposes")
		}
		if at, ok := dates[models.PurposeRegistration]; ok {
			status.RegistrationPaid = true
			status.RegistrationAt = &at
		}
		if at, ok := dates[models.PurposeBlock1]; ok {
			status.Block1Paid = true
			status.Block1PaidAt = &at
		}
		if at, ok := dates[models.PurposeBlock2]; ok {
			status.Block2Paid = true
			status.Block2PaidAt = &at
		}
		switch {
		case !status.Block1Paid:
			status.CurrentBlock = models.BlockOne
		case !status.Block2Paid:
			status.CurrentBlock = models.BlockTwo
		default:
			status.CurrentBlock = models.BlockCleared
		}
	}

	// Fields owned by external processes carry through unchanged.
	existing, err := s.repo.FindByEnrollment(ctx, enrollmentID)
	switch {
	case err == nil:
		status.ID = existing.ID
		status.IsSuspended = existing.IsSuspended
		status.NextPaymentDue = existing.NextPaymentDue
	case errors.Is(err, sql.ErrNoRows):
		// first projection for this enrollment
	default:
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load existing projection")
	}

	status.UpdatedAt = s.now()

	if err := s.repo.Upsert(ctx, status); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store projection")
	}

	s.refreshCache(ctx, status)

	return status, nil
}

// Status returns the projection for a (student, class) pair, serving from
// cache when possible.
func (s *FinanceService) Status(ctx context.Context, studentID, classID string) (*models.FinancialStatus, error) {
	key := repository.FinancialStatusKey(studentID, classID)

	if s.cache != nil {
		start := time.Now()
		var cached models.FinancialStatus
		err := s.cache.Get(ctx, key, &cached)
		if s.metrics != nil {
			s.metrics.RecordCacheOperation(err == nil, time.Since(start))
		}
		if err == nil {
			return &cached, nil
		}
	}

	status, err := s.repo.FindByStudentAndClass(ctx, studentID, classID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "financial status not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load financial status")
	}

	s.refreshCache(ctx, status)

	return status, nil
}

// SetSuspensionRequest flips the advisory suspension flag for an enrollment.
type SetSuspensionRequest struct {
	Suspended bool `json:"suspended"`
}

// SetSuspension is the boundary used by the delinquency workflow. It touches
// only the is_suspended flag; recomputation never derives it. Takes the same
// per-enrollment lock as Recompute so the two writers never interleave and
// the cache refresh that follows reflects the final ordering.
func (s *FinanceService) SetSuspension(ctx context.Context, enrollmentID string, req SetSuspensionRequest, actorID string) (*models.FinancialStatus, error) {
	release := s.recomputes.acquire(enrollmentID)
	defer release()

	enrollment, err := s.enrollments.FindByID(ctx, enrollmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}

	if err := s.repo.UpdateSuspension(ctx, enrollmentID, req.Suspended, s.now()); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update suspension")
	}

	if s.cache != nil {
		_ = s.cache.Delete(ctx, repository.FinancialStatusKey(enrollment.StudentID, enrollment.ClassID))
	}

	if s.audit != nil {
		actor := actorID
		_ = s.audit.CreateAuditLog(ctx, &models.AuditLog{
			UserID:     &actor,
			Action:     models.AuditActionSuspensionChange,
			Resource:   "enrollment",
			ResourceID: &enrollmentID,
		})
	}

	status, err := s.repo.FindByEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload projection")
	}
	s.refreshCache(ctx, status)
	return status, nil
}

func (s *FinanceService) refreshCache(ctx context.Context, status *models.FinancialStatus) {
	if s.cache == nil || status == nil {
		return
	}
	key := repository.FinancialStatusKey(status.StudentID, status.ClassID)
	start := time.Now()
	if err := s.cache.Set(ctx, key, status, s.cacheTTL); err != nil {
		s.logger.Warn("failed to cache financial status", zap.String("key", key), zap.Error(err))
		return
	}
	if s.metrics != nil {
		s.metrics.ObserveCacheWrite(time.Since(start))
	}
}
