package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/julioctb/Dashboard-pletorica-sub001/internal/models"
	"github.com/julioctb/Dashboard-pletorica-sub001/internal/period"
	appErrors "github.com/julioctb/Dashboard-pletorica-sub001/pkg/errors"
)

type periodStore interface {
	Latest(ctx context.Context, contractID string) (*models.Deliverable, error)
	InsertPeriod(ctx context.Context, deliverable *models.Deliverable) (bool, error)
}

type contractReader interface {
	GetByID(ctx context.Context, id string) (*models.Contract, error)
	PrimaryDeliverableType(ctx context.Context, contractID string) (*models.DeliverableTypeConfig, error)
}

type syncLocker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error)
}

// PeriodSyncService creates the deliverable rows of every elapsed period of a contract.
// It is idempotent and safe to call on every read.
type PeriodSyncService struct {
	deliverables periodStore
	contracts    contractReader
	audit        auditLogger
	cache        *CacheService
	metrics      *MetricsService
	locker       syncLocker
	lockTTL      time.Duration
	timeout      time.Duration
	location     *time.Location
	logger       *zap.Logger
	now          func() time.Time
	group        singleflight.Group
}

// PeriodSyncOption configures the synchroniser.
type PeriodSyncOption func(*PeriodSyncService)

// WithSyncLocker serialises synchronisation of a contract across instances.
func WithSyncLocker(locker syncLocker, ttl time.Duration) PeriodSyncOption {
	return func(s *PeriodSyncService) {
		s.locker = locker
		if ttl > 0 {
			s.lockTTL = ttl
		}
	}
}

// WithSyncCache invalidates cached stats after new periods are created.
func WithSyncCache(cache *CacheService) PeriodSyncOption {
	return func(s *PeriodSyncService) { s.cache = cache }
}

// WithSyncMetrics records synchronisation metrics.
func WithSyncMetrics(metrics *MetricsService) PeriodSyncOption {
	return func(s *PeriodSyncService) { s.metrics = metrics }
}

// WithSyncAudit records created periods in the audit trail.
func WithSyncAudit(audit auditLogger) PeriodSyncOption {
	return func(s *PeriodSyncService) { s.audit = audit }
}

// WithSyncLocation sets the business timezone used to decide which day "today" is.
func WithSyncLocation(loc *time.Location) PeriodSyncOption {
	return func(s *PeriodSyncService) {
		if loc != nil {
			s.location = loc
		}
	}
}

// WithSyncClock overrides the time source.
func WithSyncClock(now func() time.Time) PeriodSyncOption {
	return func(s *PeriodSyncService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewPeriodSyncService constructs the synchroniser.
func NewPeriodSyncService(deliverables periodStore, contracts contractReader, logger *zap.Logger, opts ...PeriodSyncOption) *PeriodSyncService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &PeriodSyncService{
		deliverables: deliverables,
		contracts:    contracts,
		lockTTL:      15 * time.Second,
		timeout:      30 * time.Second,
		location:     time.UTC,
		logger:       logger,
		now:          time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// Synchronize creates the missing deliverables of a contract and returns how many rows were written.
// Contracts without dates, without a periodicity or outside DRAFT/ACTIVE are a no-op.
//
// Concurrent calls for one contract share a single run. That run is detached from the
// caller's cancellation and bounded by its own timeout, so a caller that gives up only
// stops waiting.
func (s *PeriodSyncService) Synchronize(ctx context.Context, contractID string) (int, error) {
	ch := s.group.DoChan(contractID, func() (interface{}, error) {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		return s.synchronize(runCtx, contractID)
	})
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case res := <-ch:
		created, _ := res.Val.(int)
		return created, res.Err
	}
}

func (s *PeriodSyncService) synchronize(ctx context.Context, contractID string) (created int, err error) {
	started := time.Now()
	defer func() {
		s.metrics.ObserveSync(created, time.Since(started), infraError(err))
	}()

	contract, err := s.contracts.GetByID(ctx, contractID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, appErrors.Clone(appErrors.ErrNotFound, "contract not found")
		}
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load contract")
	}
	if !contract.Status.Syncable() || contract.StartDate == nil || contract.EndDate == nil {
		return 0, nil
	}
	config, err := s.contracts.PrimaryDeliverableType(ctx, contractID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load deliverable configuration")
	}
	if !config.Periodicity.Valid() {
		s.logger.Debug("contract periodicity not recognised",
			zap.String("contract_id", contractID),
			zap.String("periodicity", string(config.Periodicity)))
		return 0, nil
	}

	release := s.lock(ctx, contractID)
	defer release()

	latest, err := s.deliverables.Latest(ctx, contractID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read existing deliverables")
	}

	today := period.Date(s.now().In(s.location))
	maxNumber := 0
	var required []period.Period
	if latest == nil {
		required = period.Required(*contract.StartDate, *contract.EndDate, config.Periodicity, today)
	} else {
		// existing rows are frozen: new periods continue after the last one
		maxNumber = latest.PeriodNumber
		if latest.Periodicity != "" && latest.Periodicity != config.Periodicity {
			s.logger.Warn("contract periodicity changed after periods were generated; existing periods kept",
				zap.String("contract_id", contractID),
				zap.String("previous", string(latest.Periodicity)),
				zap.String("current", string(config.Periodicity)),
				zap.Int("last_period", latest.PeriodNumber))
		}
		next := period.Date(latest.PeriodEnd).AddDate(0, 0, 1)
		required = period.RequiredFrom(next, *contract.EndDate, config.Periodicity, today, maxNumber+1)
	}

	var inserted []int
	for _, p := range required {
		if p.Number <= maxNumber {
			continue
		}
		row := &models.Deliverable{
			ContractID:   contractID,
			PeriodNumber: p.Number,
			PeriodStart:  p.Start,
			PeriodEnd:    p.End,
			Periodicity:  config.Periodicity,
		}
		ok, insertErr := s.deliverables.InsertPeriod(ctx, row)
		if insertErr != nil {
			s.finish(ctx, contract, inserted)
			s.logger.Error("period synchronisation interrupted",
				zap.String("contract_id", contractID),
				zap.Int("period_number", p.Number),
				zap.Int("created", len(inserted)),
				zap.Error(insertErr))
			return len(inserted), appErrors.Wrap(insertErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create deliverable period")
		}
		if ok {
			inserted = append(inserted, p.Number)
		}
	}
	s.finish(ctx, contract, inserted)
	return len(inserted), nil
}

func (s *PeriodSyncService) finish(ctx context.Context, contract *models.Contract, inserted []int) {
	if len(inserted) == 0 {
		return
	}
	s.logger.Info("deliverable periods created",
		zap.String("contract_id", contract.ID),
		zap.Ints("period_numbers", inserted))
	s.cache.InvalidateContract(ctx, contract.ID, contract.CompanyID)
	if s.audit == nil {
		return
	}
	payload, _ := json.Marshal(map[string]interface{}{"periodNumbers": inserted})
	contractID := contract.ID
	entry := &models.AuditLog{
		Action:     models.AuditActionDeliverablesCreated,
		Resource:   "contract",
		ResourceID: &contractID,
		NewValues:  payload,
		IPAddress:  "system",
		UserAgent:  "period-sync",
	}
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}

// lock takes the distributed contract lock when available. The returned release is never nil.
func (s *PeriodSyncService) lock(ctx context.Context, contractID string) func() {
	noop := func() {}
	if s.locker == nil {
		return noop
	}
	key := fmt.Sprintf("lock:deliverables:sync:%s", contractID)
	release, err := s.locker.Acquire(ctx, key, s.lockTTL)
	if err != nil {
		s.logger.Warn("could not obtain sync lock; proceeding without it",
			zap.String("contract_id", contractID),
			zap.Error(err))
		return noop
	}
	return func() {
		if err := release(context.Background()); err != nil {
			s.logger.Warn("failed to release sync lock", zap.String("contract_id", contractID), zap.Error(err))
		}
	}
}

// infraError filters out business-rule errors so only infrastructure failures are counted.
func infraError(err error) error {
	if err == nil || appErrors.IsBusinessRule(err) {
		return nil
	}
	return err
}
